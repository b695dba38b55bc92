// Package window models desktop windows and dialog hierarchies on top
// of the driver: titlebar chrome controls, windows laid over an anchor
// node's region, and dialogs that open through their parent and close
// through their children.
package window

import (
	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
)

// Chrome describes the platform's window decoration metrics. Button
// offsets locate the chrome buttons horizontally in the titlebar,
// measured from the left edge when positive and from the right edge
// when zero or negative.
type Chrome struct {
	TitlebarHeight int
	MinimizeOffset int
	MaximizeOffset int
	CloseOffset    int
	TaskbarHeight  int
}

// DefaultChrome returns the classic Windows decoration metrics.
func DefaultChrome() Chrome {
	return Chrome{
		TitlebarHeight: 30,
		MinimizeOffset: -62,
		MaximizeOffset: -39,
		CloseOffset:    -16,
		TaskbarHeight:  31,
	}
}

// buttonTarget returns a 1x1 click region at the given horizontal
// offset in the titlebar, vertically centered in it.
func (c Chrome) buttonTarget(titlebar geom.Region, offset int) geom.Region {
	x := titlebar.X + offset
	if offset <= 0 {
		x = titlebar.X + titlebar.W + offset
	}
	return geom.Rect(x, titlebar.Y+c.TitlebarHeight/2, 1, 1)
}

// TaskbarRegion returns the taskbar strip at the bottom of bounds.
func (c Chrome) TaskbarRegion(bounds geom.Region) geom.Region {
	return geom.Rect(bounds.X, bounds.Y+bounds.H-c.TaskbarHeight, bounds.W, c.TaskbarHeight)
}

// Window drives the chrome of one desktop window: clicking the
// titlebar for focus and the minimize, maximize and close buttons in
// its upper right corner. The window's region includes the titlebar.
//
// Not safe for concurrent use.
type Window struct {
	d      screen.Driver
	title  string
	region geom.Region
	chrome Chrome
	log    *zap.SugaredLogger
}

// Option configures a Window.
type Option func(*Window)

// WithChrome overrides the decoration metrics.
func WithChrome(c Chrome) Option {
	return func(w *Window) { w.chrome = c }
}

// WithLogger sets the window's logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(w *Window) { w.log = log }
}

// NewWindow creates a window covering region.
func NewWindow(d screen.Driver, title string, region geom.Region, opts ...Option) (*Window, error) {
	if region.Empty() {
		return nil, uierr.Newf(uierr.InvalidState, "window %q: empty region", title)
	}
	w := &Window{
		d:      d,
		title:  title,
		region: region,
		chrome: DefaultChrome(),
		log:    zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.chrome.TitlebarHeight <= 0 || w.chrome.TitlebarHeight > region.H {
		return nil, uierr.Newf(uierr.InvalidState,
			"window %q: titlebar height %d does not fit region %s", title, w.chrome.TitlebarHeight, region)
	}
	return w, nil
}

// Title returns the window title.
func (w *Window) Title() string { return w.title }

// Region returns the window's region, titlebar included.
func (w *Window) Region() geom.Region { return w.region }

// TitlebarRegion returns the titlebar strip at the top of the window.
func (w *Window) TitlebarRegion() geom.Region {
	return geom.Rect(w.region.X, w.region.Y, w.region.W, w.chrome.TitlebarHeight)
}

// ContentRegion returns the window's region below the titlebar.
func (w *Window) ContentRegion() geom.Region {
	return geom.Rect(w.region.X, w.region.Y+w.chrome.TitlebarHeight,
		w.region.W, w.region.H-w.chrome.TitlebarHeight)
}

// Focus clicks the center of the titlebar to give the window focus.
func (w *Window) Focus() error {
	w.log.Debugw("focus window", "title", w.title)
	_, err := w.d.Click(w.TitlebarRegion(), screen.ModNone)
	return err
}

// Minimize clicks the minimize button in the titlebar.
func (w *Window) Minimize() error {
	w.log.Debugw("minimize window", "title", w.title)
	_, err := w.d.Click(w.chrome.buttonTarget(w.TitlebarRegion(), w.chrome.MinimizeOffset), screen.ModNone)
	return err
}

// Maximize clicks the maximize button in the titlebar.
func (w *Window) Maximize() error {
	w.log.Debugw("maximize window", "title", w.title)
	_, err := w.d.Click(w.chrome.buttonTarget(w.TitlebarRegion(), w.chrome.MaximizeOffset), screen.ModNone)
	return err
}

// Close clicks the close button in the titlebar.
func (w *Window) Close() error {
	w.log.Debugw("close window", "title", w.title)
	_, err := w.d.Click(w.chrome.buttonTarget(w.TitlebarRegion(), w.chrome.CloseOffset), screen.ModNone)
	return err
}
