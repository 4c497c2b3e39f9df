package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/tokenart/artifact"
	"github.com/jonwraymond/tokenart/cache"
	"github.com/jonwraymond/tokenart/config"
	"github.com/jonwraymond/tokenart/health"
	"github.com/jonwraymond/tokenart/observe"
	"github.com/jonwraymond/tokenart/render"
	"github.com/jonwraymond/tokenart/render/chrome"
	"github.com/jonwraymond/tokenart/resilience"
	"github.com/jonwraymond/tokenart/secret"
	"github.com/jonwraymond/tokenart/store"
)

// resourceFactory opens the render resource.
type resourceFactory func(ctx context.Context, cfg chrome.Config) (render.Resource, error)

func defaultResource(ctx context.Context, cfg chrome.Config) (render.Resource, error) {
	return chrome.New(ctx, cfg)
}

// app holds every long-lived component.
type app struct {
	cfg       config.Config
	obs       observe.Observer
	logger    observe.Logger
	metadata  store.MetadataStore
	artifacts *store.ArtifactStore
	coord     *render.Coordinator
	svc       *artifact.Service
	health    *health.Aggregator
}

func openApp(ctx context.Context, cfg config.Config, newResource resourceFactory) (_ *app, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	obs, err := observe.NewObserver(ctx, cfg.Observe(version))
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	closers = append(closers, func() error { return obs.Shutdown(context.Background()) })
	logger := obs.Logger()

	mw, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	metadata, err := openMetadataStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, metadata.Close)

	artifacts, err := store.NewOSArtifactStore(cfg.ArtifactDir)
	if err != nil {
		return nil, err
	}

	mc, err := cache.New(cfg.CachePolicy())
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg.ChromeConfig())
	if err != nil {
		return nil, fmt.Errorf("open render resource: %w", err)
	}
	closers = append(closers, res.Close)

	coord, err := render.NewCoordinator(res, artifacts, metadata, mc,
		render.WithMiddleware(mw),
		render.WithThumbnailSize(cfg.ThumbnailSize),
	)
	if err != nil {
		return nil, err
	}

	svc, err := artifact.New(coord, artifacts, metadata, mc,
		artifact.WithLogger(logger),
		artifact.WithMetrics(mw.Metrics()),
	)
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator()
	agg.Register(health.NewPingChecker("metadata_store", metadata))
	agg.Register(health.NewPingChecker("artifact_store", artifacts))
	agg.Register(health.NewRenderQueueChecker(coord.GuardMetrics, cfg.QueueDegradedAt))

	logger.Info(ctx, "tokenart ready",
		observe.F("store", cfg.Store),
		observe.F("artifact_dir", artifacts.Dir()),
		observe.F("cache_bounded", cfg.CachePolicy().Bounded()),
	)

	return &app{
		cfg:       cfg,
		obs:       obs,
		logger:    logger,
		metadata:  metadata,
		artifacts: artifacts,
		coord:     coord,
		svc:       svc,
		health:    agg,
	}, nil
}

// openMetadataStore connects the configured backend and waits for it to
// answer a ping. Only startup retries; the render path never does.
func openMetadataStore(ctx context.Context, cfg config.Config, logger observe.Logger) (store.MetadataStore, error) {
	var (
		s   store.MetadataStore
		err error
	)
	switch cfg.Store {
	case config.StoreRedis:
		s, err = store.OpenRedis(cfg.RedisURL)
	case config.StoreSQLite:
		s, err = store.OpenSQLite(cfg.SQLitePath)
	case config.StoreMemory:
		s = store.NewMemoryMetadataStore()
	default:
		err = fmt.Errorf("unknown metadata store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	err = resilience.Retry(ctx, resilience.RetryConfig{
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn(ctx, "metadata store not reachable, retrying",
				observe.F("store", cfg.Store),
				observe.F("target", target(cfg)),
				observe.F("attempt", attempt),
				observe.F("delay_ms", delay.Milliseconds()),
				observe.F("error", err),
			)
		},
	}, s.Ping)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect metadata store: %w", err)
	}
	return s, nil
}

func target(cfg config.Config) string {
	switch cfg.Store {
	case config.StoreRedis:
		return secret.RedactURL(cfg.RedisURL)
	case config.StoreSQLite:
		return cfg.SQLitePath
	default:
		return cfg.Store
	}
}

// Close waits for an in-flight render, then releases every component.
func (a *app) Close(ctx context.Context) error {
	return errors.Join(
		a.coord.Close(),
		a.metadata.Close(),
		a.obs.Shutdown(ctx),
	)
}
