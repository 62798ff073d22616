package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"
)

// TokenSource supplies the current token snapshot. An empty string means no
// token is available.
type TokenSource interface {
	Token() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

// Token returns f().
func (f TokenSourceFunc) Token() string { return f() }

// TransportConfig configures a Transport.
type TransportConfig struct {
	// Base performs the actual round trip. Nil selects http.DefaultTransport.
	Base http.RoundTripper
	// Policy is required.
	Policy *Policy
	// Tokens may be nil, in which case no token is ever attached.
	Tokens TokenSource
	// Jar holds credentials. Nil creates a public-suffix-aware jar unless
	// DisableCookies is set.
	Jar            http.CookieJar
	DisableCookies bool
	// Observe, when set, is called with the outgoing request and its
	// decision right before dispatch.
	Observe func(req *http.Request, d Decision)
}

// Transport applies the policy to every request it carries.
type Transport struct {
	base    http.RoundTripper
	policy  *Policy
	tokens  TokenSource
	jar     http.CookieJar
	observe func(*http.Request, Decision)
}

// NewTransport validates cfg and returns a Transport.
func NewTransport(cfg TransportConfig) (*Transport, error) {
	if cfg.Policy == nil {
		return nil, errors.New("gateway transport requires a policy")
	}
	if cfg.Base == nil {
		cfg.Base = http.DefaultTransport
	}

	jar := cfg.Jar
	if jar == nil && !cfg.DisableCookies {
		j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		jar = j
	}
	if cfg.DisableCookies {
		jar = nil
	}

	return &Transport{
		base:    cfg.Base,
		policy:  cfg.Policy,
		tokens:  cfg.Tokens,
		jar:     jar,
		observe: cfg.Observe,
	}, nil
}

// Jar returns the credential jar, or nil when cookies are disabled.
func (t *Transport) Jar() http.CookieJar {
	return t.jar
}

// Policy returns the policy the transport enforces.
func (t *Transport) Policy() *Policy {
	return t.policy
}

// RoundTrip snapshots the token, decides, and dispatches a clone of req. The
// caller's request is never modified. The policy sees only the URL path, so
// an endpoint fragment appearing in the query string does not exclude a
// request.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var token string
	if t.tokens != nil {
		token = t.tokens.Token()
	}
	d := t.policy.Decide(req.URL.Path, token)

	out := req.Clone(req.Context())
	d.Apply(out)
	if d.IncludeCredentials && t.jar != nil {
		for _, c := range t.jar.Cookies(out.URL) {
			out.AddCookie(c)
		}
	}
	if t.observe != nil {
		t.observe(out, d)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if d.IncludeCredentials && t.jar != nil {
		if cookies := resp.Cookies(); len(cookies) > 0 {
			t.jar.SetCookies(out.URL, cookies)
		}
	}
	return resp, nil
}

// CloseIdleConnections forwards to the base transport when supported.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if c, ok := t.base.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}
