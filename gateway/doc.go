// Package gateway decides, for every outgoing API request, whether to attach
// the bearer token and whether to send ambient credentials (cookies).
//
// # Policy
//
// A [Policy] holds a fixed set of endpoint path fragments reachable without
// authentication (password-reset flow endpoints by default). Requests whose
// path matches a fragment get neither the Authorization header nor cookies.
// Every other request carries cookies, and carries the token when one is
// available.
//
// # Transport
//
// [Transport] is an http.RoundTripper that applies the policy decision to a
// clone of each request before handing it to the base transport. It owns the
// cookie jar, so credential-off requests neither send nor store cookies.
//
// # What this package must NOT do
//
//   - Hold or persist tokens (it reads a [TokenSource] snapshot per request).
//   - Retry, time out, or otherwise alter transport behavior.
//   - Mutate anything other than the cloned outgoing request and its jar.
package gateway
