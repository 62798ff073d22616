package authclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MrEthical07/authclient/gateway"
	"github.com/MrEthical07/authclient/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Client. A Builder is single-use.
type Builder struct {
	config Config

	storage session.Storage
	redis   redis.UniversalClient
	base    http.RoundTripper

	logger    *slog.Logger
	auditSink AuditSink
	notifier  Notifier

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The Builder keeps a copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage injects the session storage, overriding Session.Backend.
func (b *Builder) WithStorage(s session.Storage) *Builder {
	b.storage = s
	return b
}

// WithRedis supplies the client for the redis backend and selects it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	b.config.Session.Backend = BackendRedis
	return b
}

// WithBaseTransport sets the RoundTripper underneath the gateway, e.g. a
// test server's transport. Nil means http.DefaultTransport.
func (b *Builder) WithBaseTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithLogger sets the structured logger. Nil keeps the discarding default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNotifier sets the receiver of user-facing notices when
// Notify.Enabled is set.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithMetricsEnabled toggles the client counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, restores the persisted session and
// returns the Client. ctx bounds the restore reads only.
func (b *Builder) Build(ctx context.Context) (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseURL, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("API BaseURL: %w", err)
	}

	policy, err := cfg.policy()
	if err != nil {
		return nil, err
	}

	storage, err := b.resolveStorage(cfg.Session)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	notifier := b.notifier
	if notifier == nil || !cfg.Notify.Enabled {
		notifier = NoOpNotifier{}
	}

	c := &Client{
		config:   cloneConfig(cfg),
		baseURL:  baseURL,
		policy:   policy,
		logger:   logger,
		notifier: notifier,
		metrics:  NewMetrics(cfg.Metrics),
		audit:    newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	// -------- SESSION --------
	c.session = session.NewStore(ctx, storage, session.Config{
		TokenKey: cfg.Session.TokenKey,
		UserKey:  cfg.Session.UserKey,
		Logger:   logger.With(slog.String("component", "session")),
		OnStorageError: func(session.Op, string, error) {
			c.metrics.Inc(MetricStorageFailure)
		},
	})
	c.unsubscribe = c.session.Subscribe(c.onSessionChange)

	// -------- TRANSPORT --------
	gw, err := gateway.NewTransport(gateway.TransportConfig{
		Base:           b.base,
		Policy:         policy,
		Tokens:         c.session,
		DisableCookies: cfg.API.DisableCookies,
		Observe:        c.observeDecision,
	})
	if err != nil {
		c.unsubscribe()
		c.audit.Close()
		return nil, err
	}
	c.gateway = gw
	c.http = &http.Client{
		Transport: &clientTransport{next: gw, client: c},
		Timeout:   cfg.API.Timeout,
	}

	c.checkRestored(ctx)

	b.built = true

	return c, nil
}

func (b *Builder) resolveStorage(cfg SessionConfig) (session.Storage, error) {
	if b.storage != nil {
		return b.storage, nil
	}

	switch cfg.Backend {
	case BackendFile:
		return session.NewFileStorage(cfg.FilePath), nil
	case BackendRedis:
		if b.redis == nil {
			return nil, errors.New("redis backend requires a redis client")
		}
		return session.NewRedisStorage(b.redis, cfg.RedisPrefix, cfg.RedisTTL), nil
	default:
		return session.NewMemoryStorage(), nil
	}
}
