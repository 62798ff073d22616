package session

import (
	"bytes"
	"encoding/json"
)

// Session is a point-in-time copy of the authentication state.
//
// An empty Token means no token is present. A nil User means no profile is
// present. A token without a user is valid: the two keys are restored
// independently.
type Session struct {
	Token string
	User  json.RawMessage
}

// Authenticated reports whether the snapshot carries a non-empty token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// HasUser reports whether a user record is present.
func (s Session) HasUser() bool {
	return len(s.User) > 0
}

func (s Session) clone() Session {
	return Session{
		Token: s.Token,
		User:  cloneRaw(s.User),
	}
}

// Equal reports whether two snapshots hold the same token and the same
// encoded user record.
func (s Session) Equal(other Session) bool {
	return s.Token == other.Token && bytes.Equal(s.User, other.User)
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
