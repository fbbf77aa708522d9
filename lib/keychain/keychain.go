// Package keychain stores the username/password pairs the client
// replays through the authenticator when a persisted session has
// expired and the login flow must run again.
package keychain

import (
	"context"
	"database/sql"

	_ "embed"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("keychain")

//go:embed schema.sql
var schema string

type Credential struct {
	ID       string
	Username string
	Password string
}

type Store struct {
	db *sql.DB
}

// New applies the schema to an already-open database.
func New(database *sql.DB) (*Store, error) {
	_, err := database.Exec(schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: database}, nil
}

// Open opens (or creates) a sqlite keychain at path.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return New(database)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored credential, or (nil, nil) when the id is
// unknown.
func (s *Store) Get(ctx context.Context, id string) (*Credential, error) {
	ctx, span := tracer.Start(ctx, "Get")
	defer span.End()

	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, username, password FROM credentials WHERE id = ?`,
		id,
	)
	var c Credential
	err := row.Scan(&c.ID, &c.Username, &c.Password)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read credential")
		return nil, err
	}
	return &c, nil
}

// Set inserts or replaces the credential for an id.
func (s *Store) Set(ctx context.Context, c Credential) error {
	ctx, span := tracer.Start(ctx, "Set")
	defer span.End()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO credentials (id, username, password) VALUES (?, ?, ?)`,
		c.ID, c.Username, c.Password,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write credential")
	}
	return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Delete")
	defer span.End()

	_, err := s.db.ExecContext(
		ctx,
		`DELETE FROM credentials WHERE id = ?`,
		id,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete credential")
	}
	return err
}
