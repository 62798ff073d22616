// Package authclient is the client side of a token-authenticated backend API:
// who is logged in on this device, and which outgoing requests carry their
// credentials.
//
// A [Client] is assembled by a [Builder]. It owns a session.Store (token and
// user profile, restored from durable storage at build time) and an
// http.Client whose transport runs the gateway policy on every request:
// password-reset flow endpoints go out without the bearer token and without
// cookies, everything else gets cookies and, when logged in, the token.
//
// # Architecture boundaries
//
// authclient is the public surface. Session state lives in package session,
// the per-request decision in package gateway, and unverified token claims
// in package jwt. There is no process-wide singleton: every collaborator
// that needs the session is handed the *Client or its session.Store.
//
// # What this package must NOT do
//
//   - Render anything. Notices are values handed to a [Notifier].
//   - Validate tokens. The backend is the only authority on validity.
//   - Retry or reinterpret backend failures beyond mapping status codes to
//     sentinel errors.
package authclient
