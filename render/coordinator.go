package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/tokenart/cache"
	"github.com/jonwraymond/tokenart/observe"
	"github.com/jonwraymond/tokenart/resilience"
	"github.com/jonwraymond/tokenart/store"
)

// Coordinator serializes access to a Resource and persists every result.
//
// Contract:
//   - Concurrency: safe for concurrent use; at most one execution reaches the
//     Resource at a time. Concurrent identical requests are not merged here.
//   - Context: ctx is honored only while waiting for the Resource. Once a
//     document is submitted the render and its fan-out run to completion.
//   - Errors: nothing is retried. The Resource is released on every path.
type Coordinator struct {
	resource  Resource
	guard     *resilience.Guard
	templates *Templates
	artifacts *store.ArtifactStore
	metadata  store.MetadataStore
	cache     cache.Cache
	mw        *observe.Middleware
	thumbSize int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTemplates replaces the embedded document templates.
func WithTemplates(t *Templates) Option {
	return func(c *Coordinator) {
		c.templates = t
	}
}

// WithMiddleware instruments renders with tracing, metrics, and logging.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(c *Coordinator) {
		c.mw = mw
	}
}

// WithThumbnailSize sets the edge length of derived thumbnails.
func WithThumbnailSize(size int) Option {
	return func(c *Coordinator) {
		c.thumbSize = size
	}
}

// NewCoordinator creates a Coordinator that owns res. The artifact store,
// metadata store, and in-process cache receive every successful render.
func NewCoordinator(res Resource, artifacts *store.ArtifactStore, metadata store.MetadataStore, mc cache.Cache, opts ...Option) (*Coordinator, error) {
	if res == nil {
		return nil, ErrNilResource
	}
	if artifacts == nil || metadata == nil {
		return nil, errors.New("render: artifact and metadata stores are required")
	}
	if mc == nil {
		return nil, cache.ErrNilCache
	}

	c := &Coordinator{
		resource:  res,
		guard:     resilience.NewGuard(resilience.GuardConfig{Capacity: 1}),
		templates: DefaultTemplates(),
		artifacts: artifacts,
		metadata:  metadata,
		cache:     mc,
		mw:        observe.NopMiddleware(),
		thumbSize: DefaultThumbnailSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Render executes req against the Resource and persists the result to all
// three tiers before returning it.
func (c *Coordinator) Render(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	var result Result
	err := c.mw.Wrap(func(ctx context.Context, meta observe.TokenMeta) error {
		res, err := c.execute(ctx, req)
		if err != nil {
			return err
		}
		if err := c.persist(context.WithoutCancel(ctx), req, &res); err != nil {
			return err
		}
		result = res
		return nil
	})(ctx, req.Meta())

	return result, err
}

// execute is the exclusive section: build, submit, await, and capture.
func (c *Coordinator) execute(ctx context.Context, req Request) (Result, error) {
	doc, err := c.templates.Build(req)
	if err != nil {
		return Result{}, err
	}

	wait, err := c.guard.Acquire(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("render: acquire resource: %w", err)
	}
	defer c.guard.Release()

	runCtx := context.WithoutCancel(ctx)
	c.mw.Metrics().RecordLockWait(runCtx, req.Meta(), wait)

	completion, err := c.resource.Execute(runCtx, doc)
	if err != nil {
		return Result{}, fmt.Errorf("render: execute document: %w", err)
	}

	res, err := completion.Decode()
	if err != nil {
		return Result{}, err
	}

	if res.Image == nil {
		shot, err := c.resource.Capture(runCtx)
		if err != nil {
			return Result{}, fmt.Errorf("render: capture surface: %w", err)
		}
		if len(shot) == 0 {
			return Result{}, errors.New("render: capture surface: empty screenshot")
		}
		res.Image = shot
	}

	return res, nil
}

// persist fans a result out. Files go first and the metadata record last,
// so an interrupted fan-out leaves files without metadata, which the next
// metadata lookup repairs by rendering again.
func (c *Coordinator) persist(ctx context.Context, req Request, res *Result) error {
	hash := req.Token.TokenHash

	if res.Thumbnail == nil {
		thumb, err := Thumbnail(res.Image, c.thumbSize)
		if err != nil {
			return fmt.Errorf("render: derive thumbnail: %w", err)
		}
		res.Thumbnail = thumb
	}

	if err := c.artifacts.Write(ctx, c.artifacts.ImagePath(hash), res.Image); err != nil {
		return fmt.Errorf("render: persist image: %w", err)
	}
	if err := c.artifacts.Write(ctx, c.artifacts.ThumbnailPath(hash), res.Thumbnail); err != nil {
		return fmt.Errorf("render: persist thumbnail: %w", err)
	}
	if err := c.metadata.Set(ctx, req.Token.TokenID, res.Metadata); err != nil {
		return fmt.Errorf("render: persist metadata: %w", err)
	}
	c.cache.Set(ctx, hash, res.Metadata)

	c.mw.Logger().WithToken(req.Meta()).Debug(ctx, "artifact persisted",
		observe.F("image_bytes", len(res.Image)),
		observe.F("thumbnail_bytes", len(res.Thumbnail)),
	)
	return nil
}

// GuardMetrics reports the state of the Resource guard: how many renders
// hold it, how many are queued, and how many have run.
func (c *Coordinator) GuardMetrics() resilience.GuardMetrics {
	return c.guard.Metrics()
}

// Close releases the Resource. It waits for an in-flight render to finish.
func (c *Coordinator) Close() error {
	if _, err := c.guard.Acquire(context.Background()); err != nil {
		return err
	}
	defer c.guard.Release()
	return c.resource.Close()
}
