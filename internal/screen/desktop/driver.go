// Package desktop implements screen.Driver for a physical display. Frames
// come from kbinani/screenshot, template search runs through the vision
// matcher and clicks are injected with robotgo. Auto-waiting polls the
// display on a scan interval, skipping match work while the searched
// region's perceptual hash is unchanged.
package desktop

import (
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/kbinani/screenshot"
	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
	"github.com/karlmicha/rguils/internal/vision"
)

const (
	// DefaultAutoWait is the ambient search deadline for regions without
	// an override.
	DefaultAutoWait = 3 * time.Second
	// DefaultScanInterval is the pause between probes while auto-waiting.
	DefaultScanInterval = 100 * time.Millisecond
)

// settings collects constructor options.
type settings struct {
	log      *zap.SugaredLogger
	autoWait time.Duration
	throw    bool
	scan     time.Duration
	matchCfg *vision.MatchConfig
	frameTTL time.Duration
}

// Option configures a Driver.
type Option func(*settings)

// WithLogger sets the driver logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAutoWait sets the default ambient search deadline.
func WithAutoWait(d time.Duration) Option {
	return func(s *settings) { s.autoWait = d }
}

// WithThrowOnFail sets the default ambient throw flag.
func WithThrowOnFail(throw bool) Option {
	return func(s *settings) { s.throw = throw }
}

// WithScanInterval sets the pause between probes while auto-waiting.
func WithScanInterval(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.scan = d
		}
	}
}

// WithMatchConfig sets the matching parameters for the vision service
// built by New.
func WithMatchConfig(cfg vision.MatchConfig) Option {
	return func(s *settings) { s.matchCfg = &cfg }
}

// WithFrameTTL sets the frame cache TTL for the vision service built by
// New.
func WithFrameTTL(d time.Duration) Option {
	return func(s *settings) { s.frameTTL = d }
}

// Driver is the production screen.Driver.
type Driver struct {
	vision *vision.Service
	ptr    pointer
	log    *zap.SugaredLogger

	autoWait time.Duration
	throw    bool
	scan     time.Duration

	timeouts map[geom.Region]time.Duration
	throws   map[geom.Region]bool
}

var _ screen.Driver = (*Driver)(nil)

// New creates a driver for one physical display.
func New(display int, opts ...Option) (*Driver, error) {
	n := screenshot.NumActiveDisplays()
	if display < 0 || display >= n {
		return nil, uierr.Newf(uierr.InvalidState, "display %d not available, %d active", display, n)
	}
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}

	visionOpts := []vision.Option{vision.WithLogger(s.log)}
	if s.matchCfg != nil {
		visionOpts = append(visionOpts, vision.WithMatchConfig(*s.matchCfg))
	}
	if s.frameTTL > 0 {
		visionOpts = append(visionOpts, vision.WithFrameTTL(s.frameTTL))
	}
	svc := vision.NewService(newDisplayCapturer(display), visionOpts...)
	return newDriver(svc, s), nil
}

// NewWithVision creates a driver over an existing vision service, letting
// callers capture from a custom source such as a single window.
func NewWithVision(svc *vision.Service, opts ...Option) *Driver {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	return newDriver(svc, s)
}

func defaultSettings() *settings {
	return &settings{
		log:      zap.NewNop().Sugar(),
		autoWait: DefaultAutoWait,
		throw:    true,
		scan:     DefaultScanInterval,
	}
}

func newDriver(svc *vision.Service, s *settings) *Driver {
	return &Driver{
		vision:   svc,
		ptr:      robotPointer{},
		log:      s.log,
		autoWait: s.autoWait,
		throw:    s.throw,
		scan:     s.scan,
		timeouts: make(map[geom.Region]time.Duration),
		throws:   make(map[geom.Region]bool),
	}
}

// Find implements screen.Driver.
func (d *Driver) Find(img screen.Image, region geom.Region) (*screen.Match, error) {
	deadline := time.Now().Add(d.AutoWaitTimeout(region))
	probe := true
	for {
		if probe {
			m, err := d.vision.FindImage(img, region)
			if err != nil {
				return nil, err
			}
			if m != nil {
				return m, nil
			}
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(d.scan)
		probe = d.regionWorthProbing(region)
	}
	if d.ThrowOnFail(region) {
		return nil, uierr.Newf(uierr.NotFound, "image %q not found in %s", img.Name(), region)
	}
	return nil, nil
}

// FindAll implements screen.Driver.
func (d *Driver) FindAll(img screen.Image, region geom.Region) ([]*screen.Match, error) {
	deadline := time.Now().Add(d.AutoWaitTimeout(region))
	probe := true
	for {
		if probe {
			matches, err := d.vision.FindImages(img, region)
			if err != nil {
				return nil, err
			}
			if len(matches) > 0 {
				return matches, nil
			}
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(d.scan)
		probe = d.regionWorthProbing(region)
	}
	if d.ThrowOnFail(region) {
		return nil, uierr.Newf(uierr.NotFound, "image %q not found in %s", img.Name(), region)
	}
	return nil, nil
}

// regionWorthProbing reports whether a retry round needs to run the
// matcher. A frame whose region hash is unchanged since the last miss
// cannot produce a different answer; hash trouble counts as changed.
func (d *Driver) regionWorthProbing(region geom.Region) bool {
	changed, err := d.vision.RegionChanged(region)
	return changed || err != nil
}

// Click implements screen.Driver.
func (d *Driver) Click(target geom.Region, mod screen.Modifier) (int, error) {
	if target.Empty() {
		return 0, uierr.Newf(uierr.InvalidState, "click target %s is empty", target)
	}
	center := target.Center()
	keys := modifierKeys(mod)
	for _, k := range keys {
		d.ptr.ToggleKey(k, true)
	}
	d.ptr.Move(center.X, center.Y)
	d.ptr.Click()
	for i := len(keys) - 1; i >= 0; i-- {
		d.ptr.ToggleKey(keys[i], false)
	}
	d.log.Debugw("click", "x", center.X, "y", center.Y, "modifiers", int(mod))
	return 1, nil
}

// TapKey presses and releases one named key, robotgo naming ("enter",
// "esc", "tab").
func (d *Driver) TapKey(key string) error {
	if key == "" {
		return uierr.Newf(uierr.InvalidState, "empty key name")
	}
	d.ptr.Tap(key)
	d.log.Debugw("key tap", "key", key)
	return nil
}

// modifierKeys expands a modifier mask into robotgo key names, in hold
// order.
func modifierKeys(mod screen.Modifier) []string {
	var keys []string
	if mod&screen.ModShift != 0 {
		keys = append(keys, "shift")
	}
	if mod&screen.ModCtrl != 0 {
		keys = append(keys, "ctrl")
	}
	if mod&screen.ModAlt != 0 {
		keys = append(keys, "alt")
	}
	if mod&screen.ModMeta != 0 {
		keys = append(keys, "cmd")
	}
	return keys
}

// Capture implements screen.Driver.
func (d *Driver) Capture(region geom.Region) (image.Image, error) {
	frame, err := d.vision.CaptureFrame(true)
	if err != nil {
		return nil, err
	}
	origin := d.vision.Bounds()
	rel := geom.Rect(region.X-origin.X, region.Y-origin.Y, region.W, region.H)
	rect := rel.ToImageRect().Intersect(frame.Bounds())
	if rect.Empty() {
		return nil, uierr.Newf(uierr.InvalidState, "capture region %s outside screen %s", region, origin)
	}
	return imaging.Crop(frame, rect), nil
}

// Bounds implements screen.Driver.
func (d *Driver) Bounds() geom.Region {
	return d.vision.Bounds()
}

// AutoWaitTimeout implements screen.Driver.
func (d *Driver) AutoWaitTimeout(region geom.Region) time.Duration {
	if t, ok := d.timeouts[region]; ok {
		return t
	}
	return d.autoWait
}

// SetAutoWaitTimeout implements screen.Driver.
func (d *Driver) SetAutoWaitTimeout(region geom.Region, t time.Duration) {
	d.timeouts[region] = t
}

// ThrowOnFail implements screen.Driver.
func (d *Driver) ThrowOnFail(region geom.Region) bool {
	if throw, ok := d.throws[region]; ok {
		return throw
	}
	return d.throw
}

// SetThrowOnFail implements screen.Driver.
func (d *Driver) SetThrowOnFail(region geom.Region, throw bool) {
	d.throws[region] = throw
}
