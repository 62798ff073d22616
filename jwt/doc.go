// Package jwt reads the claims of a bearer token on the client side.
//
// The client never holds the signing key, so nothing here verifies a
// signature. Inspection exists for status display and for noticing that a
// restored token has already expired; the backend remains the only
// authority on whether a token is valid.
package jwt
