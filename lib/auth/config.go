package auth

import "hangish/lib/configutil"

type EndpointsConfig struct {
	Login        string `json:"login"`
	Credentials  string `json:"credentials"`
	SmsChallenge string `json:"sms_challenge"`
	SecondFactor string `json:"second_factor"`
	Continue     string `json:"continue"`
}

type Config struct {
	CookiePath   string          `json:"cookie_path"`
	UserAgent    string          `json:"user_agent"`
	CookieDomain string          `json:"cookie_domain"`
	Endpoints    EndpointsConfig `json:"endpoints"`
}

// ReadConfig searches up the filesystem from the cwd for a
// hangish.json5 file. Every field is optional; unset fields fall
// back to the service defaults in NewAuthenticator.
func ReadConfig() (Config, error) {
	return configutil.ReadRecursively[Config]("hangish.json5")
}

func (c Config) Options() Options {
	return Options{
		CookiePath:      c.CookiePath,
		UserAgent:       c.UserAgent,
		CookieDomain:    c.CookieDomain,
		LoginUrl:        c.Endpoints.Login,
		CredentialsUrl:  c.Endpoints.Credentials,
		SmsChallengeUrl: c.Endpoints.SmsChallenge,
		SecondFactorUrl: c.Endpoints.SecondFactor,
		ContinueUrl:     c.Endpoints.Continue,
	}
}
