// Package anchor maintains regions whose position is derived from a
// template match inside a parent region. Anchoring a node refreshes its
// coordinates; a stale parent is refreshed first, so a moved ancestor
// ripples to descendants the next time they are used.
package anchor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
	"github.com/karlmicha/rguils/internal/wait"
)

// Node is one region in the anchor tree. Its position is computed from
// the location of its anchor image inside the parent's current region:
// x = match.x - offsetX, y = match.y - offsetY. A node with no parent
// searches an explicit base region.
//
// Nodes are not safe for concurrent use.
type Node struct {
	name     string
	img      screen.Image
	offsetX  int
	offsetY  int
	width    int
	height   int
	parent   *Node
	base     geom.Region
	d        screen.Driver
	log      *zap.SugaredLogger
	pub      events.Publisher
	interval time.Duration
	sleeper  wait.Sleeper

	findCount int
	region    geom.Region
	match     *screen.Match
	anchored  bool
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node's logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(n *Node) { n.log = log }
}

// WithPublisher makes the node emit anchor.moved events.
func WithPublisher(pub events.Publisher) Option {
	return func(n *Node) { n.pub = pub }
}

// WithInterval sets the polling interval for WaitUntilDisplayed.
func WithInterval(interval time.Duration) Option {
	return func(n *Node) { n.interval = interval }
}

// WithSleeper replaces the real sleep between polls, for tests.
func WithSleeper(s wait.Sleeper) Option {
	return func(n *Node) { n.sleeper = s }
}

// NewNode creates a node anchored inside a parent node's region.
// Width and height declare the node's size; both zero means the node
// adopts its anchor match's size, in which case the offsets must be
// zero too.
func NewNode(d screen.Driver, name string, img screen.Image, offsetX, offsetY, width, height int, parent *Node, opts ...Option) (*Node, error) {
	if parent == nil {
		return nil, uierr.Newf(uierr.InvalidState, "anchor %q: nil parent, use NewBaseNode", name)
	}
	return build(d, name, img, offsetX, offsetY, width, height, parent, geom.Region{}, opts)
}

// NewBaseNode creates a root node searching an explicit base region,
// typically the whole screen or one window.
func NewBaseNode(d screen.Driver, name string, img screen.Image, offsetX, offsetY, width, height int, base geom.Region, opts ...Option) (*Node, error) {
	return build(d, name, img, offsetX, offsetY, width, height, nil, base, opts)
}

func build(d screen.Driver, name string, img screen.Image, offsetX, offsetY, width, height int, parent *Node, base geom.Region, opts []Option) (*Node, error) {
	if width < 0 || height < 0 {
		return nil, uierr.Newf(uierr.InvalidState, "anchor %q: negative size %dx%d", name, width, height)
	}
	if width == 0 || height == 0 {
		if offsetX != 0 || offsetY != 0 || width != 0 || height != 0 {
			return nil, uierr.Newf(uierr.InvalidState,
				"anchor %q: degenerate size %dx%d requires zero offsets and size", name, width, height)
		}
	}

	n := &Node{
		name:     name,
		img:      img,
		offsetX:  offsetX,
		offsetY:  offsetY,
		width:    width,
		height:   height,
		parent:   parent,
		base:     base,
		d:        d,
		log:      zap.NewNop().Sugar(),
		interval: wait.DefaultInterval,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// searchRegion is the parent's current region, or the base for roots.
func (n *Node) searchRegion() geom.Region {
	if n.parent != nil {
		return n.parent.region
	}
	return n.base
}

// Anchor locates the anchor image and recomputes the node's region.
// The find count increments on every attempt; if the parent's count is
// behind this node's, the parent is re-anchored first. Failing to see
// the anchor image within the timeout is a NotFound failure, and the
// node keeps its previous region.
func (n *Node) Anchor(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return uierr.Wrap(uierr.Canceled, err, fmt.Sprintf("anchor %q", n.name))
	}

	n.findCount++
	if n.parent != nil && n.parent.findCount < n.findCount {
		if err := n.parent.Anchor(ctx, timeout); err != nil {
			return fmt.Errorf("re-anchor parent of %q: %w", n.name, err)
		}
	}

	m, err := screen.Await(n.d, n.img, n.searchRegion(), timeout)
	if err != nil {
		return err
	}

	region := geom.Region{
		X: m.Region.X - n.offsetX,
		Y: m.Region.Y - n.offsetY,
		W: n.width,
		H: n.height,
	}
	if n.width == 0 || n.height == 0 {
		region.W = m.Region.W
		region.H = m.Region.H
	}

	moved := !n.anchored || region != n.region
	n.region = region
	n.match = m
	n.anchored = true

	if moved {
		n.log.Debugw("anchored", "name", n.name, "region", region.String(), "findCount", n.findCount)
		events.Emit(n.pub, events.NewAnchorMovedEvent("anchor", n.name, region.String(), n.findCount))
	}
	return nil
}

// IsDisplayed reports whether the anchor image is currently visible in
// the parent region. Absence is not a failure; it probes once without
// waiting and without re-anchoring anything.
func (n *Node) IsDisplayed() (bool, error) {
	m, err := screen.Probe(n.d, n.img, n.searchRegion())
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// WaitUntilDisplayed polls until the anchor image's visibility equals
// expected, failing Timeout otherwise.
func (n *Node) WaitUntilDisplayed(ctx context.Context, timeout time.Duration, expected bool) error {
	message := fmt.Sprintf("waiting for anchor %q visibility %t", n.name, expected)
	opts := []wait.Option{wait.WithInterval(n.interval), wait.WithMessage(message)}
	if n.sleeper != nil {
		opts = append(opts, wait.WithSleeper(n.sleeper))
	}
	w := wait.New(timeout, opts...)
	for {
		visible, err := n.IsDisplayed()
		if err != nil {
			return err
		}
		if visible == expected {
			return nil
		}
		if err := w.Sleep(ctx); err != nil {
			return err
		}
	}
}

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// Region returns the node's current region. It is the zero region
// until the first successful Anchor.
func (n *Node) Region() geom.Region { return n.region }

// FindCount returns how many times Anchor has been attempted.
func (n *Node) FindCount() int { return n.findCount }

// Match returns the anchor match from the last successful Anchor.
func (n *Node) Match() *screen.Match { return n.match }

// Anchored reports whether the node has been anchored at least once.
func (n *Node) Anchored() bool { return n.anchored }

// Parent returns the parent node, nil for roots.
func (n *Node) Parent() *Node { return n.parent }
