package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidUser is returned by SetAuth when the user record cannot be encoded as JSON.
var ErrInvalidUser = errors.New("invalid user record")

var jsonNull = []byte("null")

// EncodeUser converts a user record into its persisted JSON form.
//
// A nil user, or one that marshals to JSON null, encodes to nil. A
// json.RawMessage or []byte is validated and compacted instead of being
// re-marshaled.
func EncodeUser(user any) (json.RawMessage, error) {
	var raw []byte
	switch v := user.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
		}
		raw = encoded
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	if bytes.Equal(buf.Bytes(), jsonNull) {
		return nil, nil
	}
	return json.RawMessage(buf.Bytes()), nil
}

// DecodeUser parses a persisted user value. It reports false for empty,
// null, or malformed input; malformed data is discarded rather than returned
// as an error.
func DecodeUser(stored string) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace([]byte(stored))
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, false
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, false
	}
	if bytes.Equal(buf.Bytes(), jsonNull) {
		return nil, false
	}
	return json.RawMessage(buf.Bytes()), true
}

func persistedUser(raw json.RawMessage) string {
	if len(raw) == 0 {
		return string(jsonNull)
	}
	return string(raw)
}
