package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authclient/gateway"
	"github.com/MrEthical07/authclient/jwt"
	"github.com/MrEthical07/authclient/session"
)

// maxResponseBytes caps how much of a response body the client reads.
const maxResponseBytes = 1 << 20

// Client is the authentication client. It is safe for concurrent use.
type Client struct {
	config   Config
	baseURL  *url.URL
	policy   *gateway.Policy
	logger   *slog.Logger
	notifier Notifier
	metrics  *Metrics
	audit    *auditDispatcher

	session     *session.Store
	unsubscribe func()
	gateway     *gateway.Transport
	http        *http.Client

	closed atomic.Bool
}

// Session returns the session store the client reads and writes.
func (c *Client) Session() *session.Store {
	return c.session
}

// HTTPClient returns an http.Client that applies the authorization policy.
// Requests made through it get the same headers and credential handling as
// the client's own calls.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Policy returns the endpoint authorization policy the client enforces.
func (c *Client) Policy() *gateway.Policy {
	return c.policy
}

// Metrics returns the live counters. Use MetricsSnapshot for a copy.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot copies the current counters, for exporters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Config returns a copy of the validated configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close flushes the audit buffer and releases idle connections. The session
// is left untouched.
func (c *Client) Close() {
	if c == nil || !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.unsubscribe()
	c.audit.Close()
	c.gateway.CloseIdleConnections()
}

// StatusReport describes the current session.
type StatusReport struct {
	Authenticated bool
	User          json.RawMessage
	// Claims is nil when the token is absent or not a JWT.
	Claims  *jwt.Claims
	Expired bool
	BaseURL string
	Backend string
}

// Status reports the session as seen locally. It never contacts the backend.
func (c *Client) Status() StatusReport {
	snap := c.session.Snapshot()
	report := StatusReport{
		Authenticated: snap.Authenticated(),
		User:          snap.User,
		BaseURL:       c.baseURL.String(),
		Backend:       c.config.Session.Backend,
	}
	if !report.Authenticated {
		return report
	}
	if claims, err := jwt.Inspect(snap.Token); err == nil {
		report.Claims = claims
		report.Expired = claims.Expired(time.Now(), c.config.Session.ExpiryLeeway)
	}
	return report
}

// Do sends a JSON request to path, resolved against API.BaseURL, and decodes
// a 2xx JSON body into out when out is non-nil. body is marshaled as JSON
// unless nil. Non-2xx responses return *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if c == nil || c.closed.Load() {
		return ErrClientNotReady
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// resolve joins a relative path onto the base URL, keeping its query.
// Absolute URLs pass through.
func (c *Client) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	u := c.baseURL.JoinPath(ref.Path)
	u.RawQuery = ref.RawQuery
	return u.String(), nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: body}

	var parsed errorBody
	if json.Unmarshal(body, &parsed) == nil {
		e.Message = parsed.Message
		if e.Message == "" {
			e.Message = parsed.Error
		}
		return e
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	e.Message = text
	return e
}

func (c *Client) observeDecision(req *http.Request, d gateway.Decision) {
	switch {
	case d.Excluded():
		c.metrics.Inc(MetricRequestExcluded)
	case d.AttachAuthHeader:
		c.metrics.Inc(MetricRequestAuthorized)
	default:
		c.metrics.Inc(MetricRequestAnonymous)
	}
	c.logger.Debug("request authorization",
		slog.String("path", req.URL.Path),
		slog.Bool("bearer", d.AttachAuthHeader),
		slog.Bool("credentials", d.IncludeCredentials),
	)
}

func (c *Client) onSessionChange(s session.Session) {
	event := AuditSessionCleared
	if s.Authenticated() {
		event = AuditSessionSet
		c.metrics.Inc(MetricSessionSet)
	} else {
		c.metrics.Inc(MetricSessionCleared)
	}

	ev := newAuditEvent(event, true)
	ev.UserID = tokenSubject(s.Token)
	c.audit.EmitNoWait(ev)
}

// checkRestored records what the store restored and, for JWT tokens whose
// exp already passed, warns and optionally clears the session.
func (c *Client) checkRestored(ctx context.Context) {
	restored := c.session.Restored()
	if restored.UserDiscarded {
		c.metrics.Inc(MetricSessionUserDiscarded)
	}
	if !restored.TokenFound {
		return
	}
	c.metrics.Inc(MetricSessionRestored)

	token := c.session.Token()
	ev := newAuditEvent(AuditSessionRestored, true)
	ev.UserID = tokenSubject(token)
	c.audit.Emit(ctx, ev)

	claims, err := jwt.Inspect(token)
	if err != nil {
		c.logger.Debug("restored token is not a JWT; expiry unknown")
		return
	}
	if !claims.Expired(time.Now(), c.config.Session.ExpiryLeeway) {
		return
	}

	c.metrics.Inc(MetricSessionExpiredOnRestore)
	c.logger.Warn("restored token already expired",
		slog.Time("expires_at", claims.ExpiresAt),
		slog.Bool("clearing", c.config.Session.ClearExpiredOnRestore),
	)
	if c.config.Session.ClearExpiredOnRestore {
		c.session.ClearAuth(ctx)
	}
}

func tokenSubject(token string) string {
	if token == "" {
		return ""
	}
	claims, err := jwt.Inspect(token)
	if err != nil {
		return ""
	}
	return claims.UserID
}

func (c *Client) notify(ctx context.Context, level NoticeLevel, message string) {
	c.notifier.Notify(ctx, c.config.Notify.notice(level, message))
}
