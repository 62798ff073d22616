package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authclient"
	"github.com/MrEthical07/authclient/metrics/export/prometheus"
)

// environment carries what every command needs and owns the resources
// opened for it.
type environment struct {
	opts   globalOptions
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	logger *slog.Logger

	client  *authclient.Client
	cleanup []func()
}

func (e *environment) open(ctx context.Context) error {
	cfg, err := loadConfig(e.opts, e.getenv)
	if err != nil {
		return err
	}

	builder := authclient.New().
		WithConfig(cfg).
		WithLogger(e.logger).
		WithNotifier(authclient.NewWriterNotifier(e.stderr))

	if cfg.Session.Backend == authclient.BackendRedis {
		rdb, err := e.openRedis()
		if err != nil {
			return err
		}
		builder.WithRedis(rdb)
	}

	client, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	e.client = client
	e.cleanup = append(e.cleanup, client.Close)
	return nil
}

func (e *environment) openRedis() (redis.UniversalClient, error) {
	addr := e.opts.redisAddr
	if addr == "" {
		addr = e.getenv("AUTHCLIENT_REDIS_ADDR")
	}
	if addr == "" {
		return nil, usagef("--store=redis requires --redis-addr or AUTHCLIENT_REDIS_ADDR")
	}

	if addr == "mem" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start in-process redis: %w", err)
		}
		e.cleanup = append(e.cleanup, mr.Close)
		addr = mr.Addr()
		e.logger.Info("using in-process redis", slog.String("addr", addr))
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{addr},
	})
	e.cleanup = append(e.cleanup, func() { _ = rdb.Close() })
	return rdb, nil
}

// close prints metrics when asked and releases resources in reverse order.
func (e *environment) close() {
	if e.opts.metrics && e.client != nil {
		fmt.Fprint(e.stderr, prometheus.NewPrometheusExporter(e.client).Render())
	}
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
}
