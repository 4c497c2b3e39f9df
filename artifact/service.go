package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/tokenart/cache"
	"github.com/jonwraymond/tokenart/observe"
	"github.com/jonwraymond/tokenart/render"
	"github.com/jonwraymond/tokenart/store"
)

// Renderer produces and persists a token's artifacts.
// render.Coordinator is the production implementation.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (render.Result, error)
}

// Service is the artifact cache orchestrator.
//
// Contract:
//   - Concurrency: safe for concurrent use. Misses for one token hash are
//     merged into a single render.
//   - Context: a caller whose ctx ends stops waiting and gets ctx.Err().
//     The shared render it started or joined still completes and persists.
//   - Errors: render and store errors are returned wrapped, never retried.
//     A stored metadata value that is not valid JSON counts as a miss.
type Service struct {
	renderer  Renderer
	artifacts *store.ArtifactStore
	metadata  store.MetadataStore
	cache     cache.Cache

	flights singleflight.Group

	logger  observe.Logger
	metrics observe.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records cache lookups per tier.
func WithMetrics(m observe.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a Service. The renderer must persist to the same stores and
// cache the Service reads from.
func New(renderer Renderer, artifacts *store.ArtifactStore, metadata store.MetadataStore, mc cache.Cache, opts ...Option) (*Service, error) {
	if renderer == nil {
		return nil, errors.New("artifact: renderer is nil")
	}
	if artifacts == nil || metadata == nil {
		return nil, errors.New("artifact: artifact and metadata stores are required")
	}
	if mc == nil {
		return nil, cache.ErrNilCache
	}

	s := &Service{
		renderer:  renderer,
		artifacts: artifacts,
		metadata:  metadata,
		cache:     mc,
		logger:    observe.NopLogger(),
		metrics:   observe.NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StaticImagePath returns the path of the token's full image, rendering it
// first if the file does not exist.
func (s *Service) StaticImagePath(ctx context.Context, req render.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return s.filePath(ctx, req, s.artifacts.ImagePath(req.Token.TokenHash))
}

// ThumbnailPath returns the path of the token's thumbnail, rendering it
// first if the file does not exist.
func (s *Service) ThumbnailPath(ctx context.Context, req render.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return s.filePath(ctx, req, s.artifacts.ThumbnailPath(req.Token.TokenHash))
}

func (s *Service) filePath(ctx context.Context, req render.Request, path string) (string, error) {
	ok, err := s.artifacts.Exists(ctx, path)
	if err != nil {
		return "", fmt.Errorf("artifact: %w", err)
	}
	s.metrics.RecordLookup(ctx, observe.TierArtifact, ok)
	if ok {
		return path, nil
	}

	if _, err := s.render(ctx, req); err != nil {
		return "", err
	}
	return path, nil
}

// Metadata returns the token's metadata from the in-process cache, then the
// metadata store, then a fresh render.
func (s *Service) Metadata(ctx context.Context, req render.Request) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	hash, id := req.Token.TokenHash, req.Token.TokenID

	if value, ok := s.cache.Get(ctx, hash); ok {
		s.metrics.RecordLookup(ctx, observe.TierMemory, true)
		return value, nil
	}
	s.metrics.RecordLookup(ctx, observe.TierMemory, false)

	value, ok, err := s.metadata.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrMalformedValue) {
			return nil, fmt.Errorf("artifact: read metadata: %w", err)
		}
		s.logger.WithToken(req.Meta()).Warn(ctx, "stored metadata is malformed, rendering again",
			observe.F("error", err))
		ok = false
	}
	s.metrics.RecordLookup(ctx, observe.TierStore, ok)
	if ok {
		s.cache.Set(ctx, hash, value)
		return value, nil
	}

	res, err := s.render(ctx, req)
	if err != nil {
		return nil, err
	}
	return cloneRaw(res.Metadata), nil
}

// render joins or starts the single in-flight render for the token hash.
// The render itself runs detached from ctx.
func (s *Service) render(ctx context.Context, req render.Request) (render.Result, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.flights.DoChan(req.Token.TokenHash, func() (any, error) {
		if metadata, ok := s.complete(detached, req.Token.TokenHash); ok {
			return render.Result{Metadata: metadata}, nil
		}
		return s.renderer.Render(detached, req)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return render.Result{}, r.Err
		}
		return r.Val.(render.Result), nil
	case <-ctx.Done():
		s.logger.WithToken(req.Meta()).Debug(ctx, "caller stopped waiting for render",
			observe.F("error", ctx.Err()))
		return render.Result{}, ctx.Err()
	}
}

// complete reports whether a render that finished just before this flight
// started already produced every tier.
func (s *Service) complete(ctx context.Context, hash string) (json.RawMessage, bool) {
	metadata, ok := s.cache.Get(ctx, hash)
	if !ok {
		return nil, false
	}
	for _, path := range []string{s.artifacts.ImagePath(hash), s.artifacts.ThumbnailPath(hash)} {
		if exists, err := s.artifacts.Exists(ctx, path); err != nil || !exists {
			return nil, false
		}
	}
	return metadata, true
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
