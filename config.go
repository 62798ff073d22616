package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/authclient/gateway"
)

// Storage backends selectable by SessionConfig.Backend.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the full client configuration. Obtain a populated value from
// DefaultConfig and override fields; the zero value does not validate.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Policy  PolicyConfig  `yaml:"policy"`
	Notify  NotifyConfig  `yaml:"notify"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig describes the backend the client talks to.
type APIConfig struct {
	// BaseURL is the absolute prefix every API path is joined onto,
	// e.g. "http://localhost:8080/api".
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// Accept is sent on every request that does not set its own.
	Accept          string `yaml:"accept"`
	UserAgent       string `yaml:"user_agent"`
	RequestIDHeader string `yaml:"request_id_header"`
	// DisableCookies turns off the cookie jar entirely. Credential-on
	// requests still carry the bearer token.
	DisableCookies bool `yaml:"disable_cookies"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig selects where the session is persisted and under which keys.
type SessionConfig struct {
	Backend     string `yaml:"backend"`
	FilePath    string `yaml:"file_path"`
	RedisPrefix string `yaml:"redis_prefix"`

	// RedisTTL expires the persisted keys. A running client keeps its
	// in-memory session after they expire, so the two can disagree until
	// Session().Reload is called or the process restarts. Zero disables
	// expiry.
	RedisTTL time.Duration `yaml:"redis_ttl"`

	TokenKey string `yaml:"token_key"`
	UserKey  string `yaml:"user_key"`

	// ClearExpiredOnRestore drops a restored JWT whose exp is already in the
	// past (beyond ExpiryLeeway). Opaque tokens are never cleared.
	ClearExpiredOnRestore bool          `yaml:"clear_expired_on_restore"`
	ExpiryLeeway          time.Duration `yaml:"expiry_leeway"`
}

/*
====================================
POLICY CONFIG
====================================
*/

// PolicyConfig is the endpoint authorization policy.
type PolicyConfig struct {
	UnauthenticatedEndpoints []string `yaml:"unauthenticated_endpoints"`
	// MatchMode is "contains" (default) or "segments".
	MatchMode string `yaml:"match_mode"`
}

/*
====================================
NOTIFY CONFIG
====================================
*/

// NotifyConfig holds the presentation defaults stamped onto every Notice.
type NotifyConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Timeout      time.Duration `yaml:"timeout"`
	Position     string        `yaml:"position"`
	CloseOnClick bool          `yaml:"close_on_click"`
	PauseOnHover bool          `yaml:"pause_on_hover"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

var notifyPositions = []string{
	"top-left", "top-center", "top-right",
	"bottom-left", "bottom-center", "bottom-right",
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:         "http://localhost:8080/api",
			Timeout:         30 * time.Second,
			Accept:          "application/json",
			UserAgent:       "authclient",
			RequestIDHeader: "X-Request-ID",
		},
		Session: SessionConfig{
			Backend:      BackendMemory,
			RedisPrefix:  "authclient",
			TokenKey:     "token",
			UserKey:      "user",
			ExpiryLeeway: 30 * time.Second,
		},
		Policy: PolicyConfig{
			UnauthenticatedEndpoints: slices.Clone(gateway.DefaultUnauthenticatedEndpoints),
			MatchMode:                gateway.MatchContains.String(),
		},
		Notify: NotifyConfig{
			Enabled:      true,
			Timeout:      5 * time.Second,
			Position:     "top-right",
			CloseOnClick: true,
			PauseOnHover: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Policy.UnauthenticatedEndpoints = slices.Clone(cfg.Policy.UnauthenticatedEndpoints)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL must be set")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("API BaseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("API BaseURL must be an absolute http or https URL")
	}
	if u.Host == "" {
		return errors.New("API BaseURL must include a host")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}
	if c.API.RequestIDHeader != "" && strings.ContainsAny(c.API.RequestIDHeader, " :\t\r\n") {
		return errors.New("API RequestIDHeader is not a valid header name")
	}

	// Session
	switch c.Session.Backend {
	case BackendMemory, BackendRedis:
	case BackendFile:
		if strings.TrimSpace(c.Session.FilePath) == "" {
			return errors.New("Session FilePath required for file backend")
		}
	default:
		return fmt.Errorf("unsupported Session Backend %q", c.Session.Backend)
	}
	if strings.TrimSpace(c.Session.TokenKey) == "" || strings.TrimSpace(c.Session.UserKey) == "" {
		return errors.New("Session TokenKey and UserKey must be set")
	}
	if c.Session.TokenKey == c.Session.UserKey {
		return errors.New("Session TokenKey and UserKey must differ")
	}
	if c.Session.RedisTTL < 0 {
		return errors.New("Session RedisTTL must be >= 0")
	}
	if c.Session.ExpiryLeeway < 0 || c.Session.ExpiryLeeway > 5*time.Minute {
		return errors.New("Session ExpiryLeeway must be between 0 and 5m")
	}

	// Policy
	if _, err := gateway.ParseMatchMode(c.Policy.MatchMode); err != nil {
		return fmt.Errorf("Policy MatchMode: %w", err)
	}
	if _, err := c.policy(); err != nil {
		return fmt.Errorf("Policy: %w", err)
	}

	// Notify
	if c.Notify.Enabled {
		if c.Notify.Timeout < 0 {
			return errors.New("Notify Timeout must be >= 0")
		}
		if !slices.Contains(notifyPositions, c.Notify.Position) {
			return fmt.Errorf("unsupported Notify Position %q", c.Notify.Position)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func (c *Config) policy() (*gateway.Policy, error) {
	mode, err := gateway.ParseMatchMode(c.Policy.MatchMode)
	if err != nil {
		return nil, err
	}
	return gateway.NewPolicy(c.Policy.UnauthenticatedEndpoints, mode)
}
