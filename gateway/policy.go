package gateway

import (
	"errors"
	"fmt"
	"strings"
)

// MatchMode selects how a request path is tested against the exclusion set.
type MatchMode uint8

const (
	// MatchContains excludes a path when it contains any fragment as a
	// substring.
	MatchContains MatchMode = iota
	// MatchSegments excludes a path only when a fragment's segments appear
	// as consecutive whole segments of the path. "/v1/reset-password"
	// matches "/api/v1/reset-password" but not "/api/v1/reset-password-audit".
	MatchSegments
)

// String returns the config name of the mode.
func (m MatchMode) String() string {
	switch m {
	case MatchContains:
		return "contains"
	case MatchSegments:
		return "segments"
	default:
		return fmt.Sprintf("MatchMode(%d)", uint8(m))
	}
}

// ParseMatchMode parses "contains" or "segments". An empty string selects
// MatchContains.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "contains":
		return MatchContains, nil
	case "segments":
		return MatchSegments, nil
	default:
		return 0, fmt.Errorf("unknown match mode %q", s)
	}
}

// DefaultUnauthenticatedEndpoints are the password-reset flow endpoints the
// backend serves to users who are not logged in.
var DefaultUnauthenticatedEndpoints = []string{
	"/v1/forget-password",
	"/v1/verify-otp",
	"/v1/reset-password",
}

// Policy is the immutable endpoint authorization policy.
type Policy struct {
	excluded []string
	segments [][]string
	mode     MatchMode
}

// NewPolicy builds a Policy. Fragments are trimmed; blank fragments are
// rejected because an empty substring would exclude every request.
func NewPolicy(excluded []string, mode MatchMode) (*Policy, error) {
	if mode != MatchContains && mode != MatchSegments {
		return nil, fmt.Errorf("invalid match mode %d", uint8(mode))
	}

	p := &Policy{
		excluded: make([]string, 0, len(excluded)),
		mode:     mode,
	}
	for _, fragment := range excluded {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			return nil, errors.New("exclusion set contains empty endpoint")
		}
		p.excluded = append(p.excluded, fragment)
		if mode == MatchSegments {
			segs := splitSegments(fragment)
			if len(segs) == 0 {
				return nil, fmt.Errorf("endpoint %q has no path segments", fragment)
			}
			p.segments = append(p.segments, segs)
		}
	}
	return p, nil
}

// DefaultPolicy returns the substring policy over
// DefaultUnauthenticatedEndpoints.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy(DefaultUnauthenticatedEndpoints, MatchContains)
	return p
}

// Mode returns the policy's match mode.
func (p *Policy) Mode() MatchMode {
	return p.mode
}

// Endpoints returns a copy of the exclusion set.
func (p *Policy) Endpoints() []string {
	out := make([]string, len(p.excluded))
	copy(out, p.excluded)
	return out
}

// Excluded reports whether path belongs to an unauthenticated endpoint.
func (p *Policy) Excluded(path string) bool {
	if p == nil {
		return false
	}
	if p.mode == MatchSegments {
		pathSegs := splitSegments(path)
		for _, segs := range p.segments {
			if containsRun(pathSegs, segs) {
				return true
			}
		}
		return false
	}

	for _, fragment := range p.excluded {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

// Decide computes the header and credential decision for a request to path
// given the current token snapshot. It is pure.
func (p *Policy) Decide(path, token string) Decision {
	if p.Excluded(path) {
		return Decision{}
	}
	if token == "" {
		return Decision{IncludeCredentials: true}
	}
	return Decision{
		AttachAuthHeader:   true,
		Token:              token,
		IncludeCredentials: true,
	}
}

func splitSegments(path string) []string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, seg := range raw {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func containsRun(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
