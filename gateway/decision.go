package gateway

import "net/http"

// Decision is the per-request outcome of the policy.
type Decision struct {
	AttachAuthHeader   bool
	Token              string
	IncludeCredentials bool
}

// Excluded reports whether the decision came from an unauthenticated endpoint.
func (d Decision) Excluded() bool {
	return !d.IncludeCredentials
}

// Apply writes the decision onto req's headers. Attaching sets
// "Authorization: Bearer <token>". An excluded request has any Authorization
// and Cookie headers stripped. A non-excluded request without a token is left
// as the caller built it.
func (d Decision) Apply(req *http.Request) {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if d.AttachAuthHeader && d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}
	if !d.IncludeCredentials {
		req.Header.Del("Authorization")
		req.Header.Del("Cookie")
	}
}
