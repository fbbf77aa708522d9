package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"hangish/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// Response is the slice of an HTTP exchange the state machine
// dispatches on.
type Response struct {
	StatusCode int
	// the final URL of the request, the service encodes outcomes in
	// which endpoint ended up serving the page
	URL     string
	Header  http.Header
	Cookies []*http.Cookie
	Body    []byte
}

// RedirectLocation returns the redirect target of a 3xx response,
// or "".
func (r Response) RedirectLocation() string {
	return r.Header.Get("Location")
}

// Transport issues the HTTP round-trips of the login flow. Redirects
// are never followed automatically: the state machine decides which
// cookies travel on each hop. Implementations handle one request at
// a time.
type Transport interface {
	Get(ctx context.Context, target string, headers map[string]string) (Response, error)
	PostForm(ctx context.Context, target string, headers map[string]string, form url.Values) (Response, error)
}

type restyTransport struct {
	client *resty.Client
}

// NewTransport builds the production Transport on resty with the
// bot-protection bypass attached, since the login page sits behind
// the same kind of fingerprinting the rest of the service uses.
func NewTransport(userAgent string) Transport {
	client := resty.New()
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(time.Second * 30)
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(
		func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	telemetry.InstrumentResty(client, "auth/http")

	return restyTransport{client: client}
}

func toResponse(res *resty.Response) Response {
	finalUrl := res.Request.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		finalUrl = res.RawResponse.Request.URL.String()
	}
	return Response{
		StatusCode: res.StatusCode(),
		URL:        finalUrl,
		Header:     res.Header(),
		Cookies:    res.Cookies(),
		Body:       res.Body(),
	}
}

func (t restyTransport) Get(ctx context.Context, target string, headers map[string]string) (Response, error) {
	res, err := t.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(target)
	if err != nil {
		return Response{}, err
	}
	return toResponse(res), nil
}

func (t restyTransport) PostForm(ctx context.Context, target string, headers map[string]string, form url.Values) (Response, error) {
	res, err := t.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetHeader("content-type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		Post(target)
	if err != nil {
		return Response{}, err
	}
	return toResponse(res), nil
}
