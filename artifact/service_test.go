package artifact

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/afero"

	"github.com/jonwraymond/tokenart/cache"
	"github.com/jonwraymond/tokenart/observe"
	"github.com/jonwraymond/tokenart/render"
	"github.com/jonwraymond/tokenart/store"
)

const testMetadata = `{"name":"Token #1","attributes":[]}`

// gatedResource completes every document with fixed artifacts. When gate is
// set, Execute blocks until it is closed.
type gatedResource struct {
	gate       chan struct{}
	started    chan struct{}
	startOnce  sync.Once
	executions atomic.Int32
	err        error
}

func (r *gatedResource) Execute(context.Context, string) (render.Completion, error) {
	r.executions.Add(1)
	if r.started != nil {
		r.startOnce.Do(func() { close(r.started) })
	}
	if r.gate != nil {
		<-r.gate
	}
	if r.err != nil {
		return nil, r.err
	}
	img, _ := json.Marshal(base64.StdEncoding.EncodeToString([]byte("image")))
	thumb, _ := json.Marshal(base64.StdEncoding.EncodeToString([]byte("thumb")))
	return render.Completion{json.RawMessage(testMetadata), img, thumb}, nil
}

func (r *gatedResource) Capture(context.Context) ([]byte, error) {
	return nil, errors.New("capture not supported")
}

func (r *gatedResource) Close() error { return nil }

// recordingMetrics counts lookups per tier and result.
type recordingMetrics struct {
	mu      sync.Mutex
	lookups map[string]int
}

func (m *recordingMetrics) RecordRender(context.Context, observe.TokenMeta, time.Duration, error) {}
func (m *recordingMetrics) RecordLockWait(context.Context, observe.TokenMeta, time.Duration)      {}
func (m *recordingMetrics) RecordLookup(_ context.Context, tier string, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookups == nil {
		m.lookups = make(map[string]int)
	}
	m.lookups[fmt.Sprintf("%s/%t", tier, hit)]++
}

func (m *recordingMetrics) count(tier string, hit bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookups[fmt.Sprintf("%s/%t", tier, hit)]
}

type fixture struct {
	svc       *Service
	res       *gatedResource
	fs        afero.Fs
	artifacts *store.ArtifactStore
	metadata  store.MetadataStore
	cache     cache.Cache
	metrics   *recordingMetrics
}

func newFixture(t *testing.T, res *gatedResource, metadata store.MetadataStore) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	artifacts, err := store.NewArtifactStore(fs, "generated")
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	if metadata == nil {
		metadata = store.NewMemoryMetadataStore()
	}
	return newFixtureWith(t, res, fs, artifacts, metadata, cache.NewMemoryCache())
}

func newFixtureWith(t *testing.T, res *gatedResource, fs afero.Fs, artifacts *store.ArtifactStore, metadata store.MetadataStore, mc cache.Cache) *fixture {
	t.Helper()
	coord, err := render.NewCoordinator(res, artifacts, metadata, mc)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	metrics := &recordingMetrics{}
	svc, err := New(coord, artifacts, metadata, mc, WithMetrics(metrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{svc: svc, res: res, fs: fs, artifacts: artifacts, metadata: metadata, cache: mc, metrics: metrics}
}

func request() render.Request {
	return render.Request{
		Script:   "x",
		Template: render.TemplateP5,
		Token:    render.TokenInfo{TokenHash: "abc", TokenID: "1"},
		Count:    1,
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, nil, nil); err == nil {
		t.Error("New(nil renderer) should fail")
	}
}

func TestService_FreshTokenScenario(t *testing.T) {
	f := newFixture(t, &gatedResource{}, nil)
	ctx := context.Background()

	meta, err := f.svc.Metadata(ctx, request())
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if string(meta) != testMetadata {
		t.Errorf("Metadata = %s", meta)
	}
	if got := f.res.executions.Load(); got != 1 {
		t.Fatalf("executions = %d, want 1", got)
	}

	img, err := f.svc.StaticImagePath(ctx, request())
	if err != nil || img != "generated/abc.png" {
		t.Errorf("StaticImagePath = %q, %v", img, err)
	}
	thumb, err := f.svc.ThumbnailPath(ctx, request())
	if err != nil || thumb != "generated/thumb_abc.png" {
		t.Errorf("ThumbnailPath = %q, %v", thumb, err)
	}
	if got := f.res.executions.Load(); got != 1 {
		t.Errorf("executions after path queries = %d, want 1", got)
	}

	stored, ok, err := f.metadata.Get(ctx, "1")
	if err != nil || !ok || string(stored) != testMetadata {
		t.Errorf("metadata_1 = %s, %v, %v", stored, ok, err)
	}

	// A repeated query on the same instance is served from the in-process cache.
	storeLookups := f.metrics.count(observe.TierStore, false) + f.metrics.count(observe.TierStore, true)
	meta, err = f.svc.Metadata(ctx, request())
	if err != nil || string(meta) != testMetadata {
		t.Fatalf("second Metadata = %s, %v", meta, err)
	}
	if got := f.res.executions.Load(); got != 1 {
		t.Errorf("executions after second query = %d, want 1", got)
	}
	if f.metrics.count(observe.TierMemory, true) != 1 {
		t.Error("second query should hit the in-process cache")
	}
	if n := f.metrics.count(observe.TierStore, false) + f.metrics.count(observe.TierStore, true); n != storeLookups {
		t.Errorf("second query consulted the metadata store")
	}

	// A restarted process has an empty in-process cache but the same stores.
	restarted := newFixtureWith(t, f.res, f.fs, f.artifacts, f.metadata, cache.NewMemoryCache())
	meta, err = restarted.svc.Metadata(ctx, request())
	if err != nil || string(meta) != testMetadata {
		t.Fatalf("Metadata after restart = %s, %v", meta, err)
	}
	if got := f.res.executions.Load(); got != 1 {
		t.Errorf("executions after restart = %d, want 1", got)
	}
	if cached, ok := restarted.cache.Get(ctx, "abc"); !ok || string(cached) != testMetadata {
		t.Error("store hit should populate the in-process cache")
	}
	if restarted.metrics.count(observe.TierStore, true) != 1 {
		t.Error("store hit should be recorded")
	}
}

func TestService_LookupPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		cached     string
		stored     string
		want       string
		wantRender int32
	}{
		{"cache wins over store", `{"tier":"memory"}`, `{"tier":"store"}`, `{"tier":"memory"}`, 0},
		{"store when cache misses", "", `{"tier":"store"}`, `{"tier":"store"}`, 0},
		{"render when both miss", "", "", testMetadata, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &gatedResource{}, nil)
			ctx := context.Background()
			if tt.cached != "" {
				f.cache.Set(ctx, "abc", json.RawMessage(tt.cached))
			}
			if tt.stored != "" {
				if err := f.metadata.Set(ctx, "1", json.RawMessage(tt.stored)); err != nil {
					t.Fatalf("seed store: %v", err)
				}
			}

			got, err := f.svc.Metadata(ctx, request())
			if err != nil {
				t.Fatalf("Metadata: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Metadata = %s, want %s", got, tt.want)
			}
			if n := f.res.executions.Load(); n != tt.wantRender {
				t.Errorf("executions = %d, want %d", n, tt.wantRender)
			}
		})
	}
}

func TestService_PathQueriesAreIndependent(t *testing.T) {
	f := newFixture(t, &gatedResource{}, nil)
	ctx := context.Background()

	// Only the image exists; the metadata tiers are empty.
	if err := f.artifacts.Write(ctx, "generated/abc.png", []byte("old")); err != nil {
		t.Fatalf("seed image: %v", err)
	}

	path, err := f.svc.StaticImagePath(ctx, request())
	if err != nil || path != "generated/abc.png" {
		t.Fatalf("StaticImagePath = %q, %v", path, err)
	}
	if n := f.res.executions.Load(); n != 0 {
		t.Errorf("existing image should not render, executions = %d", n)
	}

	if _, err := f.svc.ThumbnailPath(ctx, request()); err != nil {
		t.Fatalf("ThumbnailPath: %v", err)
	}
	if n := f.res.executions.Load(); n != 1 {
		t.Errorf("missing thumbnail should render once, executions = %d", n)
	}
	if f.metrics.count(observe.TierArtifact, true) != 1 || f.metrics.count(observe.TierArtifact, false) != 1 {
		t.Errorf("artifact lookups = %v", f.metrics.lookups)
	}
}

func TestService_PathsAreIdempotent(t *testing.T) {
	f := newFixture(t, &gatedResource{}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		path, err := f.svc.ThumbnailPath(ctx, request())
		if err != nil || path != "generated/thumb_abc.png" {
			t.Fatalf("ThumbnailPath #%d = %q, %v", i, path, err)
		}
	}
	if n := f.res.executions.Load(); n != 1 {
		t.Errorf("executions = %d, want 1", n)
	}
}

func TestService_ConcurrentQueriesShareOneRender(t *testing.T) {
	res := &gatedResource{gate: make(chan struct{}), started: make(chan struct{})}
	f := newFixture(t, res, nil)
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = f.svc.Metadata(ctx, request())
			case 1:
				_, err = f.svc.StaticImagePath(ctx, request())
			default:
				_, err = f.svc.ThumbnailPath(ctx, request())
			}
			errs <- err
		}(i)
	}

	<-res.started
	time.Sleep(20 * time.Millisecond)
	close(res.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("query: %v", err)
		}
	}
	if got := res.executions.Load(); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}
}

func TestService_DifferentTokensRenderSeparately(t *testing.T) {
	f := newFixture(t, &gatedResource{}, nil)
	ctx := context.Background()

	other := request()
	other.Token = render.TokenInfo{TokenHash: "def", TokenID: "2"}

	if _, err := f.svc.Metadata(ctx, request()); err != nil {
		t.Fatalf("Metadata abc: %v", err)
	}
	if _, err := f.svc.Metadata(ctx, other); err != nil {
		t.Fatalf("Metadata def: %v", err)
	}
	if n := f.res.executions.Load(); n != 2 {
		t.Errorf("executions = %d, want 2", n)
	}
}

func TestService_UnusableStoredValueRendersAgain(t *testing.T) {
	tests := []struct {
		name   string
		stored string
	}{
		{"malformed", "{truncated"},
		{"null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			rs, err := store.OpenRedis("redis://" + mr.Addr())
			if err != nil {
				t.Fatalf("OpenRedis: %v", err)
			}
			t.Cleanup(func() { _ = rs.Close() })
			if err := mr.Set("metadata_1", tt.stored); err != nil {
				t.Fatalf("seed: %v", err)
			}

			f := newFixture(t, &gatedResource{}, rs)
			for i := 0; i < 2; i++ {
				meta, err := f.svc.Metadata(context.Background(), request())
				if err != nil {
					t.Fatalf("Metadata call %d: %v", i, err)
				}
				if string(meta) != testMetadata {
					t.Errorf("Metadata call %d = %s", i, meta)
				}
			}
			if n := f.res.executions.Load(); n != 1 {
				t.Errorf("executions = %d, want 1", n)
			}
			if got, _ := mr.Get("metadata_1"); got != testMetadata {
				t.Errorf("repaired value = %q", got)
			}
		})
	}
}

func TestService_StoreErrorIsReturned(t *testing.T) {
	ms := store.NewMemoryMetadataStore()
	_ = ms.Close()
	f := newFixture(t, &gatedResource{}, ms)

	_, err := f.svc.Metadata(context.Background(), request())
	if !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Metadata = %v, want store.ErrClosed", err)
	}
	if n := f.res.executions.Load(); n != 0 {
		t.Errorf("store error should not render, executions = %d", n)
	}
}

func TestService_RenderErrorIsNotCached(t *testing.T) {
	res := &gatedResource{err: errors.New("script threw")}
	f := newFixture(t, res, nil)
	ctx := context.Background()

	if _, err := f.svc.StaticImagePath(ctx, request()); err == nil {
		t.Fatal("expected render error")
	}
	if f.cache.Len() != 0 {
		t.Error("failed render must not populate the cache")
	}

	res.err = nil
	if _, err := f.svc.StaticImagePath(ctx, request()); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if n := res.executions.Load(); n != 2 {
		t.Errorf("executions = %d, want 2", n)
	}
}

func TestService_CancelledCallerDoesNotAbortRender(t *testing.T) {
	res := &gatedResource{gate: make(chan struct{}), started: make(chan struct{})}
	f := newFixture(t, res, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Metadata(ctx, request())
		done <- err
	}()

	<-res.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Metadata = %v, want context.Canceled", err)
	}

	close(res.gate)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok, _ := f.metadata.Get(context.Background(), "1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("render did not persist after the caller left")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := f.svc.Metadata(context.Background(), request()); err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if n := res.executions.Load(); n != 1 {
		t.Errorf("executions = %d, want 1", n)
	}
}

func TestService_InvalidRequest(t *testing.T) {
	f := newFixture(t, &gatedResource{}, nil)
	req := request()
	req.Token.TokenHash = ""

	if _, err := f.svc.StaticImagePath(context.Background(), req); !errors.Is(err, render.ErrInvalidRequest) {
		t.Errorf("StaticImagePath = %v", err)
	}
	if _, err := f.svc.Metadata(context.Background(), req); !errors.Is(err, render.ErrInvalidRequest) {
		t.Errorf("Metadata = %v", err)
	}
}
