// Package chrome implements render.Resource on a headless Chrome tab
// driven over the DevTools protocol.
package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/jonwraymond/tokenart/render"
)

// DefaultSelector is the element captured when a document asks for a screenshot.
const DefaultSelector = "#render"

// awaitCompletion resolves with the argument list the document passed to
// complete(). It polls for wait() because parser-blocking script tags can
// delay its definition past SetDocumentContent.
const awaitCompletion = `new Promise((resolve) => {
  const poll = () => (typeof wait === "function" ? wait(resolve) : setTimeout(poll, 10));
  poll();
})`

// ErrClosed is returned by a Resource after Close.
var ErrClosed = errors.New("chrome: resource is closed")

// Config configures the browser.
type Config struct {
	// ExecPath overrides the Chrome binary. Empty lets chromedp search the usual locations.
	ExecPath string

	// RemoteURL attaches to an already running browser's DevTools endpoint
	// instead of launching one.
	RemoteURL string

	// Headless runs the browser without a window.
	// Default: true
	Headless *bool

	// NoSandbox disables the Chrome sandbox, which containers usually require.
	NoSandbox bool

	// Width and Height size the viewport.
	// Default: 1024x1024
	Width  int
	Height int

	// Selector is the element Capture screenshots.
	// Default: "#render"
	Selector string

	// Timeout bounds one Execute call. Zero waits for the document indefinitely.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Headless == nil {
		headless := true
		c.Headless = &headless
	}
	if c.Width <= 0 {
		c.Width = 1024
	}
	if c.Height <= 0 {
		c.Height = 1024
	}
	if strings.TrimSpace(c.Selector) == "" {
		c.Selector = DefaultSelector
	}
	return c
}

// allocatorOptions returns the exec allocator flags for a local browser.
func (c Config) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", *c.Headless),
		chromedp.Flag("disable-gpu", *c.Headless),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(c.Width, c.Height),
	)
	if c.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if path := strings.TrimSpace(c.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	return opts
}

// Resource is one browser tab. Documents replace each other in the same tab,
// so callers must not interleave Execute and Capture; render.Coordinator
// serializes them.
type Resource struct {
	cfg Config

	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

var _ render.Resource = (*Resource)(nil)

// New launches (or attaches to) a browser and opens the render tab.
// The browser lives until Close, independent of ctx.
func New(ctx context.Context, cfg Config) (*Resource, error) {
	cfg = cfg.withDefaults()
	base := context.WithoutCancel(ctx)

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if url := strings.TrimSpace(cfg.RemoteURL); url != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, url)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, cfg.allocatorOptions()...)
	}
	tab, tabCancel := chromedp.NewContext(allocCtx)

	r := &Resource{
		cfg:         cfg,
		tab:         tab,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}

	if err := chromedp.Run(tab,
		emulation.SetDeviceMetricsOverride(int64(cfg.Width), int64(cfg.Height), 1, false),
		chromedp.Navigate("about:blank"),
	); err != nil {
		r.shutdown()
		return nil, fmt.Errorf("chrome: start browser: %w", err)
	}
	return r, nil
}

// Execute loads document into the tab and waits for it to call complete().
// Cancelling ctx abandons the wait; the tab is reset by the next Execute.
func (r *Resource) Execute(ctx context.Context, document string) (render.Completion, error) {
	runCtx, cancel, err := r.runContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var slots []json.RawMessage
	err = chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, document).Do(ctx)
		}),
		chromedp.Evaluate(awaitCompletion, &slots, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome: run document: %w", err)
	}
	return render.Completion(slots), nil
}

// Capture screenshots the configured selector in the current document.
func (r *Resource) Capture(ctx context.Context) ([]byte, error) {
	runCtx, cancel, err := r.runContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx,
		chromedp.Screenshot(r.cfg.Selector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("chrome: screenshot %s: %w", r.cfg.Selector, err)
	}
	return buf, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (r *Resource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.shutdown()
	return nil
}

func (r *Resource) shutdown() {
	r.tabCancel()
	r.allocCancel()
}

// runContext derives a context bound to the tab that also ends with ctx
// and, when configured, the per-call timeout.
func (r *Resource) runContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}

	runCtx, cancel := context.WithCancel(r.tab)
	stop := context.AfterFunc(ctx, cancel)
	if r.cfg.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, r.cfg.Timeout)
		prev := cancel
		cancel = func() {
			timeoutCancel()
			prev()
		}
	}
	return runCtx, func() {
		stop()
		cancel()
	}, nil
}
