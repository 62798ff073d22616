// Package apitest is an in-process stand-in for the authentication backend,
// used by tests and the runnable example.
//
// It implements just enough of the backend contract to exercise a client:
// registration and login returning a signed HS256 token, the three
// password-reset flow endpoints, and one protected endpoint (/v1/me) that
// rejects requests without a valid bearer token. Every request is recorded
// so tests can assert on what the client actually sent.
package apitest
