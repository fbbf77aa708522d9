// Package cookiestore persists the named session cookies of an
// authenticated login as a flat JSON object (cookie name to value)
// so a session can be reused across process restarts.
package cookiestore

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cookie is a single named session cookie. Session marks cookies
// that should not outlive the process; persisted cookies always
// reload as durable.
type Cookie struct {
	Name    string
	Value   string
	Domain  string
	Session bool
}

// cookies that are transient or anti-automation state rather than
// authentication material, never reloaded from disk
var denylist = map[string]bool{
	"ACCOUNT_CHOOSER": true,
	"GALX":            true,
	"GAPS":            true,
	"LSID":            true,
	"NID":             true,
}

// Denylisted reports whether a cookie name is excluded from reload.
func Denylisted(name string) bool {
	return denylist[name]
}

// Store is a stateless codec over a cookie file path. Every loaded
// cookie is synthesized as a durable cookie scoped to Domain.
type Store struct {
	Path   string
	Domain string
}

func (s Store) Exists() bool {
	_, err := os.Stat(s.Path)
	return err == nil
}

// Load reads the cookie file, skipping denylisted names. The caller
// gets os.ErrNotExist when no file has been written yet.
func (s Store) Load() ([]Cookie, error) {
	contents, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}

	var byName map[string]string
	err = json.Unmarshal(contents, &byName)
	if err != nil {
		return nil, fmt.Errorf("parse cookie file %s: %w", s.Path, err)
	}

	var cookies []Cookie
	for name, value := range byName {
		if denylist[name] {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   name,
			Value:  value,
			Domain: s.Domain,
		})
	}
	return cookies, nil
}

// Save writes the supplied cookies verbatim, last write for a name
// wins. Filtering is the caller's concern: the login flow filters
// before saving, the externally-triggered refresh path does not.
func (s Store) Save(cookies []Cookie) error {
	byName := map[string]string{}
	for _, c := range cookies {
		byName[c.Name] = c.Value
	}

	contents, err := json.MarshalIndent(byName, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, contents, 0600)
}

// Delete removes the cookie file, forcing the next authentication
// to run the full network flow.
func (s Store) Delete() error {
	err := os.Remove(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
