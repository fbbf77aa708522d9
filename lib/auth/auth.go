// Package auth reproduces the interactive login flow of the chat
// service well enough to obtain an authenticated session without a
// browser: username/password submission behind an anti-forgery
// token, an optional SMS or TOTP second-factor challenge, manual
// redirect-following, and persistence of the resulting session
// cookies across process restarts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"hangish/lib/cookiestore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("auth")

var ErrNoPendingChallenge = errors.New("no pending second-factor challenge")

// Phase is the current step of the authentication state machine; it
// governs how the next HTTP response is interpreted.
type Phase int

const (
	PhaseInitial Phase = iota
	PhaseGalxRequested
	PhaseCredentialsSent
	PhaseSecondFactorPinSent
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseGalxRequested:
		return "galx_requested"
	case PhaseCredentialsSent:
		return "credentials_sent"
	case PhaseSecondFactorPinSent:
		return "second_factor_pin_sent"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

const (
	galxCookieName = "GALX"
	// the one session-scoped cookie that is persisted anyway
	alwaysPersistedCookie = "S"
)

// the service considers a session live only when every one of these
// is present
var authCookieNames = []string{"APISID", "HSID", "SAPISID", "SID", "SSID"}

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/41.0.2272.76 Safari/537.36"

	defaultLoginUrl        = "https://accounts.google.com/ServiceLogin"
	defaultCredentialsUrl  = "https://accounts.google.com/ServiceLoginAuth"
	defaultSmsChallengeUrl = "https://accounts.google.com/signin/challenge"
	defaultSecondFactorUrl = "https://accounts.google.com/SecondFactor"
	defaultContinueUrl     = "https://talkgadget.google.com/talkgadget/gauth?verify=true"
	defaultCookieDomain    = ".google.com"
)

type Options struct {
	// where session cookies are persisted between runs
	CookiePath string
	UserAgent  string

	LoginUrl        string
	CredentialsUrl  string
	SmsChallengeUrl string
	SecondFactorUrl string
	ContinueUrl     string
	CookieDomain    string

	// defaults to the resty transport; tests substitute a scripted
	// fake here
	Transport Transport
	// defaults to NopEvents
	Events Events
}

type pendingChallenge struct {
	kind ChallengeKind
	sms  smsChallenge
	totp totpChallenge
}

// Authenticator drives the login flow: one request in flight at a
// time, responses dispatched strictly by the current phase. It is
// not safe for concurrent use; one instance owns one cookie file.
type Authenticator struct {
	opts      Options
	transport Transport
	store     cookiestore.Store
	events    Events

	phase     Phase
	cookies   map[string]cookiestore.Cookie
	galx      string
	challenge pendingChallenge
}

func NewAuthenticator(opts Options) *Authenticator {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.LoginUrl == "" {
		opts.LoginUrl = defaultLoginUrl
	}
	if opts.CredentialsUrl == "" {
		opts.CredentialsUrl = defaultCredentialsUrl
	}
	if opts.SmsChallengeUrl == "" {
		opts.SmsChallengeUrl = defaultSmsChallengeUrl
	}
	if opts.SecondFactorUrl == "" {
		opts.SecondFactorUrl = defaultSecondFactorUrl
	}
	if opts.ContinueUrl == "" {
		opts.ContinueUrl = defaultContinueUrl
	}
	if opts.CookieDomain == "" {
		opts.CookieDomain = defaultCookieDomain
	}
	if opts.Transport == nil {
		opts.Transport = NewTransport(opts.UserAgent)
	}
	if opts.Events == nil {
		opts.Events = NopEvents{}
	}

	return &Authenticator{
		opts:      opts,
		transport: opts.Transport,
		store: cookiestore.Store{
			Path:   opts.CookiePath,
			Domain: opts.CookieDomain,
		},
		events:  opts.Events,
		cookies: map[string]cookiestore.Cookie{},
	}
}

func (a *Authenticator) Phase() Phase {
	return a.phase
}

// SessionCookies returns the accumulated cookie set, sorted by name.
// The channel collaborator replays these on its own requests.
func (a *Authenticator) SessionCookies() []cookiestore.Cookie {
	cookies := make([]cookiestore.Cookie, 0, len(a.cookies))
	for _, c := range a.cookies {
		cookies = append(cookies, c)
	}
	sort.Slice(cookies, func(i, j int) bool {
		return cookies[i].Name < cookies[j].Name
	})
	return cookies
}

// Authenticate either restores a persisted session from the cookie
// file (trust-on-first-use, no liveness check) or starts the network
// flow by requesting the anti-forgery token. Outcomes are delivered
// through Events; the returned error covers cookie-file I/O only.
func (a *Authenticator) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Authenticate")
	defer span.End()

	if a.store.Exists() {
		loaded, err := a.store.Load()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to load cookie file")
			return err
		}
		a.cookies = map[string]cookiestore.Cookie{}
		for _, c := range loaded {
			a.cookies[c.Name] = c
		}
		slog.DebugContext(ctx, "restored session from cookie file",
			"path", a.store.Path, "cookies", len(loaded))
		a.events.CookiesReady(a.SessionCookies())
		return nil
	}

	a.requestGalxToken(ctx)
	return nil
}

// requestGalxToken fetches the login page in silent mode; the
// anti-forgery cookie on the response is the prerequisite for the
// credentials POST.
func (a *Authenticator) requestGalxToken(ctx context.Context) {
	a.cookies = map[string]cookiestore.Cookie{}
	a.phase = PhaseGalxRequested

	query := url.Values{}
	query.Set("passive", "true")
	query.Set("skipvpage", "true")
	query.Set("continue", a.opts.ContinueUrl)
	query.Set("authuser", "0")

	res, err := a.transport.Get(ctx, a.opts.LoginUrl+"?"+query.Encode(), nil)
	a.handleResponse(ctx, res, err)
}

// SendCredentials submits username/password along with the captured
// anti-forgery token. Whether a token was actually captured is not
// validated locally; the service rejects the POST on its own.
func (a *Authenticator) SendCredentials(ctx context.Context, username, password string) {
	ctx, span := tracer.Start(ctx, "SendCredentials")
	defer span.End()

	a.phase = PhaseCredentialsSent

	form := url.Values{}
	form.Set("GALX", a.galx)
	form.Set("Email", username)
	form.Set("Passwd", password)
	form.Set("bgresponse", "js_disabled")
	form.Set("dnConn", "0")
	form.Set("signIn", "Accedi")
	form.Set("checkedDomains", "youtube")
	form.Set("PersistentCookie", "yes")
	form.Set("rmShown", "1")
	form.Set("pstMsg", "0")
	form.Set("skipvpage", "true")
	form.Set("continue", a.opts.ContinueUrl)

	res, err := a.transport.PostForm(ctx, a.opts.CredentialsUrl, a.requestHeaders(), form)
	a.handleResponse(ctx, res, err)
}

// SendChallengePin submits the PIN for whichever challenge the
// credentials phase left pending, consuming it. Calling without a
// pending challenge is a caller-ordering error.
func (a *Authenticator) SendChallengePin(ctx context.Context, pin string) error {
	ctx, span := tracer.Start(ctx, "SendChallengePin")
	defer span.End()

	switch a.challenge.kind {
	case ChallengeSMS:
		a.sendSmsPin(ctx, pin)
		return nil
	case ChallengeTOTP:
		a.sendTotpPin(ctx, pin)
		return nil
	}
	span.SetStatus(codes.Error, ErrNoPendingChallenge.Error())
	return ErrNoPendingChallenge
}

func (a *Authenticator) sendSmsPin(ctx context.Context, pin string) {
	a.phase = PhaseSecondFactorPinSent
	challenge := a.challenge.sms
	a.challenge = pendingChallenge{}

	form := url.Values{}
	form.Set("challengeId", challenge.challengeID)
	form.Set("challengeType", challenge.challengeType)
	form.Set("continue", a.opts.ContinueUrl)
	form.Set("skipvpage", "true")
	form.Set("checkedDomains", "youtube")
	form.Set("pstMsg", "0")
	form.Set("gxf", challenge.gxf)
	form.Set("Pin", pin)
	form.Set("TrustDevice", "true")

	res, err := a.transport.PostForm(ctx, a.opts.SmsChallengeUrl, a.requestHeaders(), form)
	a.handleResponse(ctx, res, err)
}

func (a *Authenticator) sendTotpPin(ctx context.Context, pin string) {
	a.phase = PhaseSecondFactorPinSent
	challenge := a.challenge.totp
	a.challenge = pendingChallenge{}

	form := url.Values{}
	form.Set("timeStmp", challenge.timeStmp)
	form.Set("secTok", challenge.secTok)
	form.Set("smsUserPin", pin)
	form.Set("smsVerifyPin", "Verify")
	form.Set("smsToken", "")
	form.Set("checkedConnection", "youtube:73:0")
	form.Set("checkedDomains", "youtube")
	form.Set("PersistentCookie", "on")
	form.Set("PersistentOptionSelection", "1")
	form.Set("pstMsg", "0")
	form.Set("skipvpage", "true")

	res, err := a.transport.PostForm(ctx, a.opts.SecondFactorUrl, a.requestHeaders(), form)
	a.handleResponse(ctx, res, err)
}

// handleResponse is the single dispatch point: fresh cookies merge
// first, then the branch taken depends strictly on the phase.
func (a *Authenticator) handleResponse(ctx context.Context, res Response, reqErr error) {
	slog.DebugContext(ctx, "handling response",
		"phase", a.phase.String(),
		"status", res.StatusCode,
		"url", res.URL,
		"err", reqErr,
	)

	if reqErr != nil {
		switch a.phase {
		case PhaseGalxRequested:
			a.events.AuthFailed(FailureGalxToken, reqErr.Error())
		case PhaseCredentialsSent, PhaseSecondFactorPinSent:
			a.events.AuthFailed(FailureUnknown, reqErr.Error())
		default:
			slog.ErrorContext(ctx, "transport error outside an active flow",
				"phase", a.phase.String(), "err", reqErr)
		}
		return
	}

	a.mergeCookies(res.Cookies)

	switch a.phase {
	case PhaseGalxRequested:
		a.handleGalxResponse(ctx)
	case PhaseCredentialsSent:
		a.handleCredentialsResponse(ctx, res)
	case PhaseSecondFactorPinSent:
		a.handleSecondFactorResponse(ctx, res)
	default:
		// not a reachable production state; log and take no action
		slog.ErrorContext(ctx, "response received in unexpected phase",
			"phase", a.phase.String(), "url", res.URL)
	}
}

// mergeCookies adds fresh Set-Cookie entries to the session set. The
// first value seen for a name in a flow wins: later redirects must
// not overwrite anti-forgery cookies with values they control.
func (a *Authenticator) mergeCookies(cookies []*http.Cookie) {
	for _, c := range cookies {
		if _, exists := a.cookies[c.Name]; exists {
			continue
		}
		a.cookies[c.Name] = cookiestore.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Domain:  c.Domain,
			Session: c.Expires.IsZero() && c.MaxAge == 0,
		}
	}
}

func (a *Authenticator) handleGalxResponse(ctx context.Context) {
	galx, ok := a.cookies[galxCookieName]
	if !ok {
		slog.WarnContext(ctx, "login page did not set the anti-forgery cookie")
		return
	}
	a.galx = galx.Value
	slog.DebugContext(ctx, "captured anti-forgery token")
	a.events.LoginFormReady()
}

func (a *Authenticator) handleCredentialsResponse(ctx context.Context, res Response) {
	switch {
	case res.StatusCode == http.StatusFound:
		a.followRedirection(ctx, res.RedirectLocation())

	case res.StatusCode == http.StatusOK && a.isAuthenticated():
		a.finishLogin(ctx)

	case res.StatusCode == http.StatusOK && strings.HasPrefix(res.URL, a.opts.SmsChallengeUrl):
		challenge := scrapeSmsChallenge(string(res.Body))
		if challenge == (smsChallenge{}) {
			a.events.AuthFailed(FailureUnrecognizedChallenge, res.URL)
			return
		}
		a.challenge = pendingChallenge{kind: ChallengeSMS, sms: challenge}
		a.events.SecondFactorRequired(ChallengeSMS)

	case res.StatusCode == http.StatusOK && strings.HasPrefix(res.URL, a.opts.SecondFactorUrl):
		challenge := scrapeTotpChallenge(string(res.Body))
		if challenge == (totpChallenge{}) {
			a.events.AuthFailed(FailureUnrecognizedChallenge, res.URL)
			return
		}
		a.challenge = pendingChallenge{kind: ChallengeTOTP, totp: challenge}
		a.events.SecondFactorRequired(ChallengeTOTP)

	case res.StatusCode == http.StatusOK:
		// a 200 off every known endpoint with no live session means
		// the credentials were rejected; drop the half-authenticated
		// cookie set rather than retain it
		a.cookies = map[string]cookiestore.Cookie{}
		a.events.AuthFailed(FailureWrongCredentials, res.URL)

	default:
		a.events.AuthFailed(FailureUnknown, fmt.Sprintf("unexpected status %d", res.StatusCode))
	}
}

func (a *Authenticator) handleSecondFactorResponse(ctx context.Context, res Response) {
	switch {
	case res.StatusCode == http.StatusOK && a.isAuthenticated():
		a.finishLogin(ctx)
	case res.StatusCode == http.StatusOK:
		a.events.AuthFailed(FailureWrongPin, res.URL)
	case res.StatusCode == http.StatusFound:
		a.followRedirection(ctx, res.RedirectLocation())
	default:
		a.events.AuthFailed(FailureUnknown, fmt.Sprintf("unexpected status %d", res.StatusCode))
	}
}

// followRedirection re-enters the dispatch path without a phase
// change. Cookies are attached explicitly rather than via a jar:
// not every collected cookie should be forwarded blindly.
func (a *Authenticator) followRedirection(ctx context.Context, target string) {
	slog.DebugContext(ctx, "following redirect", "url", target)
	res, err := a.transport.Get(ctx, target, a.requestHeaders())
	a.handleResponse(ctx, res, err)
}

func (a *Authenticator) requestHeaders() map[string]string {
	headers := map[string]string{}
	if len(a.cookies) > 0 {
		headers["cookie"] = a.cookieHeader()
	}
	return headers
}

func (a *Authenticator) cookieHeader() string {
	cookies := a.SessionCookies()
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// isAuthenticated reports whether every designated authentication
// cookie is present. All five are required; partial sets show up
// mid-redirect and do not count.
func (a *Authenticator) isAuthenticated() bool {
	present := 0
	for _, name := range authCookieNames {
		if _, ok := a.cookies[name]; ok {
			present++
		}
	}
	return present >= len(authCookieNames)
}

func (a *Authenticator) finishLogin(ctx context.Context) {
	err := a.saveAuthCookies(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to persist session cookies", "err", err)
	}
	a.phase = PhaseDone
	a.events.CookiesReady(a.SessionCookies())
}

// saveAuthCookies persists the durable service-domain cookies (plus
// the one always-saved session cookie) and narrows the in-memory set
// to exactly that subset, dropping flow-transient cookies.
func (a *Authenticator) saveAuthCookies(ctx context.Context) error {
	serviceDomain := strings.TrimPrefix(a.opts.CookieDomain, ".")

	durable := map[string]cookiestore.Cookie{}
	for name, c := range a.cookies {
		if name == alwaysPersistedCookie ||
			(!c.Session && strings.Contains(c.Domain, serviceDomain)) {
			durable[name] = c
		}
	}
	a.cookies = durable

	slog.DebugContext(ctx, "saving session cookies",
		"path", a.store.Path, "cookies", len(durable))
	return a.store.Save(a.SessionCookies())
}

// UpdateCookieFile is the channel collaborator's entry point for
// rotated cookies: a destructive clear-then-rebuild of both the file
// and the in-memory set, never a merge. Unlike saveAuthCookies it
// applies no filtering, the supplied list is written verbatim.
func (a *Authenticator) UpdateCookieFile(ctx context.Context, cookies []cookiestore.Cookie) error {
	ctx, span := tracer.Start(ctx, "UpdateCookieFile")
	defer span.End()

	a.cookies = map[string]cookiestore.Cookie{}

	err := a.store.Save(cookies)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to rewrite cookie file")
		return err
	}

	for _, c := range cookies {
		a.cookies[c.Name] = c
	}
	slog.DebugContext(ctx, "rewrote cookie file", "cookies", len(cookies))
	return nil
}

// DeleteCookies discards the persisted session and resets the flow
// so the next Authenticate starts from the network.
func (a *Authenticator) DeleteCookies() error {
	a.cookies = map[string]cookiestore.Cookie{}
	a.phase = PhaseInitial
	a.galx = ""
	a.challenge = pendingChallenge{}
	return a.store.Delete()
}
