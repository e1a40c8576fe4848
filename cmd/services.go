package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Lumos-Labs-HQ/flashgate/internal/builder"
	"github.com/Lumos-Labs-HQ/flashgate/internal/config"
	"github.com/Lumos-Labs-HQ/flashgate/internal/database"
	"github.com/Lumos-Labs-HQ/flashgate/internal/gateway"
	"github.com/Lumos-Labs-HQ/flashgate/internal/logger"
	"github.com/Lumos-Labs-HQ/flashgate/internal/logsink"
	"go.uber.org/zap"
)

// services bundles the collaborators shared by serve and raw.
type services struct {
	log     *zap.Logger
	sink    logsink.Sink
	store   database.Store
	gateway *gateway.Gateway
}

func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("service", cfg.Service.Name))

	sink, err := newSink(cfg, log)
	if err != nil {
		return nil, err
	}

	dbURL, err := cfg.GetDatabaseURL()
	if err != nil {
		return nil, fmt.Errorf("failed to get database URL: %w", err)
	}

	store, err := database.Open(ctx, cfg.Database.Provider, dbURL)
	if err != nil {
		sink.Close(ctx)
		return nil, err
	}

	dialect, err := builder.ParseDialect(cfg.Database.Provider)
	if err != nil {
		store.Close()
		sink.Close(ctx)
		return nil, err
	}
	b, err := builder.New(dialect)
	if err != nil {
		store.Close()
		sink.Close(ctx)
		return nil, err
	}

	gw := gateway.New(store, b, log, sink, gateway.Options{
		RequireWipeConfirm: cfg.Gateway.RequireWipeConfirm,
	})

	return &services{log: log, sink: sink, store: store, gateway: gw}, nil
}

func newSink(cfg *config.Config, log *zap.Logger) (logsink.Sink, error) {
	sc := cfg.Logging.Sink

	var transport logsink.Transport
	switch sc.Kind {
	case "http":
		transport = logsink.NewHTTPTransport(sc.URL, cfg.GetSinkToken(), sc.Timeout)
	case "redis":
		t, err := logsink.NewRedisTransport(sc.RedisURL, sc.RedisKey)
		if err != nil {
			return nil, err
		}
		transport = t
	default:
		return logsink.Nop{}, nil
	}

	return logsink.NewForwarder(transport, cfg.Service.Name, sc.Buffer, sc.Timeout, log), nil
}

func (r *services) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.sink.Close(ctx); err != nil {
		r.log.Warn("log sink did not drain", zap.Error(err))
	}
	if err := r.store.Close(); err != nil {
		r.log.Warn("failed to close database", zap.Error(err))
	}
	_ = r.log.Sync()
}
