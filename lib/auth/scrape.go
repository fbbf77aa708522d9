package auth

import "hangish/lib/htmlutil"

// best-effort scraping of the second-factor challenge pages. the
// markup is a third party's and changes without notice, so every
// extraction degrades to "" instead of failing.

type smsChallenge struct {
	challengeID   string
	challengeType string
	gxf           string
}

// scrapeSmsChallenge pulls the hidden inputs out of the challenge
// form that the PIN submission must echo back.
func scrapeSmsChallenge(body string) smsChallenge {
	fragment := htmlutil.ClipTag(body, `<form id="challenge"`, "</form>")
	return smsChallenge{
		challengeID:   htmlutil.InputValue(fragment, "challengeId"),
		challengeType: htmlutil.InputValue(fragment, "challengeType"),
		gxf:           htmlutil.InputValue(fragment, "gxf"),
	}
}

type totpChallenge struct {
	secTok   string
	timeStmp string
}

// scrapeTotpChallenge extracts the script-embedded tokens of the
// older second-factor page, which carries them as quoted literals
// rather than form inputs.
func scrapeTotpChallenge(body string) totpChallenge {
	return totpChallenge{
		secTok:   htmlutil.SingleQuoted(body, `id="secTok"`),
		timeStmp: htmlutil.SingleQuoted(body, `id="timeStmp"`),
	}
}
