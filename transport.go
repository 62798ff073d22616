package authclient

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// clientTransport stamps client-wide headers onto each request and records
// its outcome. It sits in front of the gateway transport.
type clientTransport struct {
	next   http.RoundTripper
	client *Client
}

func (t *clientTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cfg := t.client.config.API
	out := req.Clone(req.Context())

	if cfg.Accept != "" && out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", cfg.Accept)
	}
	if cfg.UserAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", cfg.UserAgent)
	}

	requestID := ""
	if cfg.RequestIDHeader != "" {
		requestID = out.Header.Get(cfg.RequestIDHeader)
		if requestID == "" {
			if id, ok := RequestIDFromContext(req.Context()); ok {
				requestID = id
			} else {
				requestID = uuid.NewString()
			}
			out.Header.Set(cfg.RequestIDHeader, requestID)
		}
	}

	start := time.Now()
	resp, err := t.next.RoundTrip(out)
	elapsed := time.Since(start)
	t.client.metrics.Observe(MetricRequestLatency, elapsed)

	if err != nil {
		t.client.metrics.Inc(MetricRequestTransportError)
		t.client.logger.Debug("request failed",
			slog.String("method", out.Method),
			slog.String("path", out.URL.Path),
			slog.String("request_id", requestID),
			slog.Any("error", err),
		)
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		t.client.metrics.Inc(MetricResponseUnauthorized)
	case resp.StatusCode >= 400:
		t.client.metrics.Inc(MetricResponseError)
	}

	t.client.logger.Debug("request",
		slog.String("method", out.Method),
		slog.String("path", out.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", elapsed),
		slog.String("request_id", requestID),
	)
	return resp, nil
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the base.
func (t *clientTransport) CloseIdleConnections() {
	if ci, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
}
