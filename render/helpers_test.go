package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/jonwraymond/tokenart/cache"
	"github.com/jonwraymond/tokenart/store"
)

// makePNG returns a w×h PNG with a gradient so resized output differs from input.
func makePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func slot(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal slot: %v", err)
	}
	return data
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// fakeResource records executions and fails the test if two overlap.
type fakeResource struct {
	mu         sync.Mutex
	docs       []string
	completion Completion
	execErr    error
	capture    []byte
	captureErr error
	delay      time.Duration

	active     atomic.Int32
	overlapped atomic.Bool
	executions atomic.Int32
	captures   atomic.Int32
	closed     atomic.Bool
}

func (f *fakeResource) Execute(ctx context.Context, document string) (Completion, error) {
	if f.active.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	defer f.active.Add(-1)
	f.executions.Add(1)

	f.mu.Lock()
	f.docs = append(f.docs, document)
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.completion, nil
}

func (f *fakeResource) Capture(ctx context.Context) ([]byte, error) {
	f.captures.Add(1)
	return f.capture, f.captureErr
}

func (f *fakeResource) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeResource) lastDoc() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.docs) == 0 {
		return ""
	}
	return f.docs[len(f.docs)-1]
}

type fixture struct {
	res       *fakeResource
	coord     *Coordinator
	artifacts *store.ArtifactStore
	metadata  store.MetadataStore
	cache     cache.Cache
}

func newFixture(t *testing.T, res *fakeResource, metadata store.MetadataStore, opts ...Option) *fixture {
	t.Helper()
	artifacts, err := store.NewArtifactStore(afero.NewMemMapFs(), "generated")
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	if metadata == nil {
		metadata = store.NewMemoryMetadataStore()
	}
	mc := cache.NewMemoryCache()

	coord, err := NewCoordinator(res, artifacts, metadata, mc, opts...)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return &fixture{res: res, coord: coord, artifacts: artifacts, metadata: metadata, cache: mc}
}

func testRequest() Request {
	return Request{
		Script:   "x",
		Template: TemplateP5,
		Token:    TokenInfo{TokenHash: "abc", TokenID: "1"},
		Count:    1,
	}
}
