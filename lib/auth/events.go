package auth

import "hangish/lib/cookiestore"

// FailureKind classifies a terminal authentication failure. The flow
// never retries on its own; the caller decides whether to re-run
// Authenticate or resubmit credentials.
type FailureKind string

const (
	// the login page never handed out the anti-forgery cookie
	FailureGalxToken        FailureKind = "cannot_obtain_anti_forgery_token"
	FailureWrongCredentials FailureKind = "wrong_credentials"
	// a second factor was demanded but the challenge form could not
	// be understood
	FailureUnrecognizedChallenge FailureKind = "unrecognized_challenge_type"
	FailureWrongPin              FailureKind = "wrong_second_factor_pin"
	FailureUnknown               FailureKind = "unknown_error"
)

// ChallengeKind identifies which second-factor challenge the service
// presented after accepting the credentials.
type ChallengeKind string

const (
	ChallengeNone ChallengeKind = ""
	ChallengeSMS  ChallengeKind = "sms"
	ChallengeTOTP ChallengeKind = "totp"
)

// Events receives the outcomes of the authentication flow. Callbacks
// run synchronously on the goroutine driving the flow.
type Events interface {
	// the session is established, either restored from disk or
	// freshly persisted after a successful login
	CookiesReady(cookies []cookiestore.Cookie)
	// the anti-forgery token was captured; the caller should now
	// call SendCredentials
	LoginFormReady()
	// the service demands a second factor; the caller should obtain
	// a PIN and call SendChallengePin
	SecondFactorRequired(kind ChallengeKind)
	AuthFailed(kind FailureKind, detail string)
}

// NopEvents discards every event. Embed it to implement only the
// callbacks a collaborator cares about.
type NopEvents struct{}

func (NopEvents) CookiesReady([]cookiestore.Cookie)  {}
func (NopEvents) LoginFormReady()                    {}
func (NopEvents) SecondFactorRequired(ChallengeKind) {}
func (NopEvents) AuthFailed(FailureKind, string)     {}
