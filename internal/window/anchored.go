package window

import (
	"context"
	"time"

	"github.com/karlmicha/rguils/internal/anchor"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
)

// AnchoredWindow is a window whose position is not known until its
// anchor node is located on screen. Anchoring lays the chrome controls
// over the node's freshly computed region, so a window that moved
// since the last anchor gets new button targets.
type AnchoredWindow struct {
	d     screen.Driver
	node  *anchor.Node
	title string
	opts  []Option
	win   *Window
}

// NewAnchoredWindow wraps an anchor node as a window. An empty title
// defaults to the node's name. The options are applied to the inner
// window each time the node is anchored.
func NewAnchoredWindow(d screen.Driver, title string, node *anchor.Node, opts ...Option) (*AnchoredWindow, error) {
	if node == nil {
		return nil, uierr.New(uierr.InvalidState, "anchored window: nil anchor node")
	}
	if title == "" {
		title = node.Name()
	}
	return &AnchoredWindow{d: d, node: node, title: title, opts: opts}, nil
}

// Anchor locates the anchor image and lays the window over the
// anchored region.
func (a *AnchoredWindow) Anchor(ctx context.Context, timeout time.Duration) error {
	if err := a.node.Anchor(ctx, timeout); err != nil {
		return err
	}
	win, err := NewWindow(a.d, a.title, a.node.Region(), a.opts...)
	if err != nil {
		return err
	}
	a.win = win
	return nil
}

// Window returns the chrome controls over the anchored region. It is
// an InvalidState failure before the first successful Anchor.
func (a *AnchoredWindow) Window() (*Window, error) {
	if a.win == nil {
		return nil, uierr.Newf(uierr.InvalidState, "window %q is not anchored", a.title)
	}
	return a.win, nil
}

// Title returns the window title.
func (a *AnchoredWindow) Title() string { return a.title }

// Node returns the underlying anchor node.
func (a *AnchoredWindow) Node() *anchor.Node { return a.node }

// Anchored reports whether the window has been located at least once.
func (a *AnchoredWindow) Anchored() bool { return a.win != nil }

// Region returns the anchored region, the zero region before Anchor.
func (a *AnchoredWindow) Region() geom.Region { return a.node.Region() }

// IsDisplayed probes once for the anchor image without waiting.
func (a *AnchoredWindow) IsDisplayed() (bool, error) { return a.node.IsDisplayed() }

// WaitUntilDisplayed polls until the anchor image's visibility equals
// expected, failing Timeout otherwise.
func (a *AnchoredWindow) WaitUntilDisplayed(ctx context.Context, timeout time.Duration, expected bool) error {
	return a.node.WaitUntilDisplayed(ctx, timeout, expected)
}
