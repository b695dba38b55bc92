// Package screentest provides a scripted screen.Driver for package tests.
// Probes consume scripted frames instead of real captures, waiting is
// counted in ticks instead of wall time, and clicks are recorded so tests
// can assert on them or flip scripted state in response.
package screentest

import (
	"image"
	"time"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
)

// Template is a named test image
type Template struct {
	name string
}

// Img creates a test image. Identity is pointer identity, so two Img("x")
// calls are distinct templates.
func Img(name string) *Template {
	return &Template{name: name}
}

// Name returns the template name
func (t *Template) Name() string { return t.name }

// Pixels returns a placeholder raster; the fake never matches pixels
func (t *Template) Pixels() (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

// MatchAt builds a match for scripting
func MatchAt(img screen.Image, region geom.Region, score float64) *screen.Match {
	return &screen.Match{Image: img, Region: region, Score: score}
}

// ClickRecord is one recorded click
type ClickRecord struct {
	Target geom.Region
	Mod    screen.Modifier
}

// frame is the set of matches visible for one probe tick
type frame []*screen.Match

type imageScript struct {
	frames []frame
	tick   int
}

// current returns the frame for the current tick and advances. The last
// frame repeats once the script is exhausted.
func (s *imageScript) current() frame {
	var f frame
	if len(s.frames) > 0 {
		i := s.tick
		if i >= len(s.frames) {
			i = len(s.frames) - 1
		}
		f = s.frames[i]
	}
	s.tick++
	return f
}

// Fake is a scripted screen.Driver
type Fake struct {
	// DefaultAutoWait is the ambient timeout for regions without overrides
	DefaultAutoWait time.Duration
	// DefaultThrow is the ambient throw flag for regions without overrides
	DefaultThrow bool
	// TickInterval converts an ambient timeout into internal probe ticks:
	// a waiting Find consumes 1 + timeout/TickInterval frames
	TickInterval time.Duration
	// ScreenBounds is returned by Bounds
	ScreenBounds geom.Region
	// Frame is returned by Capture when set
	Frame image.Image
	// FindErr, when set, makes every probe fail as an infrastructure error
	FindErr error
	// Clicks records every click in order
	Clicks []ClickRecord
	// Keys records every tapped key in order
	Keys []string
	// OnClick, when set, runs after each recorded click so tests can
	// mutate scripts in response
	OnClick func(target geom.Region, m screen.Modifier)

	scripts  map[screen.Image]*imageScript
	timeouts map[geom.Region]time.Duration
	throws   map[geom.Region]bool
}

var _ screen.Driver = (*Fake)(nil)

// New creates a fake with ambient defaults matching the desktop driver
func New() *Fake {
	return &Fake{
		DefaultAutoWait: 3 * time.Second,
		DefaultThrow:    true,
		TickInterval:    time.Second,
		ScreenBounds:    geom.Rect(0, 0, 1920, 1080),
		scripts:         make(map[screen.Image]*imageScript),
		timeouts:        make(map[geom.Region]time.Duration),
		throws:          make(map[geom.Region]bool),
	}
}

func (f *Fake) script(img screen.Image) *imageScript {
	s, ok := f.scripts[img]
	if !ok {
		s = &imageScript{}
		f.scripts[img] = s
	}
	return s
}

// Show makes img visible at the given matches from now on
func (f *Fake) Show(img screen.Image, matches ...*screen.Match) {
	s := f.script(img)
	s.frames = []frame{frame(matches)}
	s.tick = 0
}

// Hide makes img invisible from now on
func (f *Fake) Hide(img screen.Image) {
	f.Show(img)
}

// ShowAfter keeps img invisible for n probe ticks, then visible at the
// given matches
func (f *Fake) ShowAfter(img screen.Image, n int, matches ...*screen.Match) {
	s := f.script(img)
	s.frames = nil
	for i := 0; i < n; i++ {
		s.frames = append(s.frames, nil)
	}
	s.frames = append(s.frames, frame(matches))
	s.tick = 0
}

// Script sets the full per-tick visibility sequence; the last entry
// repeats forever
func (f *Fake) Script(img screen.Image, frames ...[]*screen.Match) {
	s := f.script(img)
	s.frames = nil
	for _, fr := range frames {
		s.frames = append(s.frames, frame(fr))
	}
	s.tick = 0
}

// Probes returns how many probe ticks img has consumed
func (f *Fake) Probes(img screen.Image) int {
	return f.script(img).tick
}

// visibleIn filters a frame to matches whose center lies in region
func visibleIn(fr frame, region geom.Region) []*screen.Match {
	var out []*screen.Match
	for _, m := range fr {
		if region.Contains(m.Region.Center()) {
			out = append(out, m)
		}
	}
	return out
}

// ticksFor converts region's ambient timeout into internal probe ticks
func (f *Fake) ticksFor(region geom.Region) int {
	timeout := f.AutoWaitTimeout(region)
	if timeout <= 0 || f.TickInterval <= 0 {
		return 1
	}
	return 1 + int(timeout/f.TickInterval)
}

// Find implements screen.Driver
func (f *Fake) Find(img screen.Image, region geom.Region) (*screen.Match, error) {
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	s := f.script(img)
	for i := 0; i < f.ticksFor(region); i++ {
		vis := visibleIn(s.current(), region)
		if len(vis) == 0 {
			continue
		}
		best := vis[0]
		for _, m := range vis[1:] {
			if m.Score > best.Score {
				best = m
			}
		}
		return best, nil
	}
	if f.ThrowOnFail(region) {
		return nil, uierr.Newf(uierr.NotFound, "image %q not found in %s", img.Name(), region)
	}
	return nil, nil
}

// FindAll implements screen.Driver
func (f *Fake) FindAll(img screen.Image, region geom.Region) ([]*screen.Match, error) {
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	s := f.script(img)
	for i := 0; i < f.ticksFor(region); i++ {
		if vis := visibleIn(s.current(), region); len(vis) > 0 {
			return vis, nil
		}
	}
	if f.ThrowOnFail(region) {
		return nil, uierr.Newf(uierr.NotFound, "image %q not found in %s", img.Name(), region)
	}
	return nil, nil
}

// Click implements screen.Driver
func (f *Fake) Click(target geom.Region, m screen.Modifier) (int, error) {
	f.Clicks = append(f.Clicks, ClickRecord{Target: target, Mod: m})
	if f.OnClick != nil {
		f.OnClick(target, m)
	}
	return 1, nil
}

// TapKey records a key press, satisfying key-driven dialog flows
func (f *Fake) TapKey(key string) error {
	f.Keys = append(f.Keys, key)
	return nil
}

// Capture implements screen.Driver
func (f *Fake) Capture(region geom.Region) (image.Image, error) {
	if f.Frame != nil {
		return f.Frame, nil
	}
	return image.NewRGBA(region.ToImageRect()), nil
}

// Bounds implements screen.Driver
func (f *Fake) Bounds() geom.Region {
	return f.ScreenBounds
}

// AutoWaitTimeout implements screen.Driver
func (f *Fake) AutoWaitTimeout(region geom.Region) time.Duration {
	if d, ok := f.timeouts[region]; ok {
		return d
	}
	return f.DefaultAutoWait
}

// SetAutoWaitTimeout implements screen.Driver
func (f *Fake) SetAutoWaitTimeout(region geom.Region, d time.Duration) {
	f.timeouts[region] = d
}

// ThrowOnFail implements screen.Driver
func (f *Fake) ThrowOnFail(region geom.Region) bool {
	if t, ok := f.throws[region]; ok {
		return t
	}
	return f.DefaultThrow
}

// SetThrowOnFail implements screen.Driver
func (f *Fake) SetThrowOnFail(region geom.Region, throw bool) {
	f.throws[region] = throw
}
