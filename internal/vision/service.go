package vision

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
)

// Capturer produces frames of one display or window. Frames are anchored
// at (0,0); Bounds locates the frame on the desktop, so a capturer for a
// secondary display reports that display's rectangle.
type Capturer interface {
	CaptureFrame() (*image.RGBA, error)
	Bounds() geom.Region
}

// Thresholder is implemented by templates that carry their own match
// threshold, overriding the service default.
type Thresholder interface {
	Threshold() float64
}

// Scaler is implemented by templates that carry their own scale list,
// overriding the service default.
type Scaler interface {
	Scales() []float64
}

// Service runs template queries against captured frames. Frames are
// cached briefly so a burst of probes within one poll round shares a
// single capture, and per-region perceptual hashes let the driver skip
// match work over screen areas that have not changed between rounds.
//
// The match configuration is fixed at construction.
type Service struct {
	capturer Capturer
	cfg      MatchConfig
	ttl      time.Duration
	log      *zap.SugaredLogger

	mu           sync.Mutex
	frame        *image.RGBA
	frameTime    time.Time
	regionHashes map[geom.Region]*goimagehash.ImageHash
}

// Option configures a Service.
type Option func(*Service)

// WithMatchConfig sets the default matching parameters.
func WithMatchConfig(cfg MatchConfig) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithFrameTTL sets how long a captured frame is reused.
func WithFrameTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithLogger sets the service logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a vision service over a capturer.
func NewService(capturer Capturer, opts ...Option) *Service {
	s := &Service{
		capturer:     capturer,
		cfg:          *DefaultMatchConfig(),
		ttl:          100 * time.Millisecond,
		log:          zap.NewNop().Sugar(),
		regionHashes: make(map[geom.Region]*goimagehash.ImageHash),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bounds returns the captured area in desktop coordinates.
func (s *Service) Bounds() geom.Region {
	return s.capturer.Bounds()
}

// CaptureFrame returns the current frame, reusing a recent capture
// within the cache TTL when useCache is set.
func (s *Service) CaptureFrame(useCache bool) (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if useCache && s.frame != nil && time.Since(s.frameTime) < s.ttl {
		return s.frame, nil
	}
	frame, err := s.capturer.CaptureFrame()
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	s.frame = frame
	s.frameTime = time.Now()
	return frame, nil
}

// InvalidateCache forces the next capture to take a fresh frame.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = nil
}

// FindImage locates the single best occurrence of a template within a
// desktop-coordinate region. A miss returns nil without error; the
// driver above decides whether a miss is fatal.
func (s *Service) FindImage(img screen.Image, region geom.Region) (*screen.Match, error) {
	frame, err := s.CaptureFrame(true)
	if err != nil {
		return nil, err
	}
	needle, err := img.Pixels()
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", img.Name(), err)
	}

	cfg := s.queryConfig(img)
	rel := s.toFrame(region).ToImageRect()
	cfg.SearchRegion = &rel
	result, err := FindTemplate(frame, needle, &cfg)
	if errors.Is(err, ErrTemplateTooLarge) {
		s.log.Debugw("template larger than search area",
			"template", img.Name(), "region", region.String())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !result.Found {
		return nil, nil
	}
	return s.toMatch(img, needle, result), nil
}

// FindImages locates every distinct occurrence of a template within a
// desktop-coordinate region, strongest first.
func (s *Service) FindImages(img screen.Image, region geom.Region) ([]*screen.Match, error) {
	frame, err := s.CaptureFrame(true)
	if err != nil {
		return nil, err
	}
	needle, err := img.Pixels()
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", img.Name(), err)
	}

	cfg := s.queryConfig(img)
	rel := s.toFrame(region).ToImageRect()
	cfg.SearchRegion = &rel
	results, err := FindTemplateAll(frame, needle, &cfg)
	if errors.Is(err, ErrTemplateTooLarge) {
		s.log.Debugw("template larger than search area",
			"template", img.Name(), "region", region.String())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	matches := make([]*screen.Match, 0, len(results))
	for i := range results {
		matches = append(matches, s.toMatch(img, needle, &results[i]))
	}
	return matches, nil
}

// RegionChanged reports whether a desktop-coordinate region looks
// different from the last time it was asked about. First sight of a
// region, and regions outside the frame, count as changed so callers
// never skip a probe they needed.
func (s *Service) RegionChanged(region geom.Region) (bool, error) {
	frame, err := s.CaptureFrame(true)
	if err != nil {
		return true, err
	}
	rect := s.toFrame(region).ToImageRect().Intersect(frame.Bounds())
	if rect.Empty() {
		return true, nil
	}

	hash, err := goimagehash.PerceptionHash(imaging.Crop(frame, rect))
	if err != nil {
		return true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.regionHashes[region]
	s.regionHashes[region] = hash
	if prev == nil {
		return true, nil
	}
	distance, err := hash.Distance(prev)
	if err != nil {
		return true, nil
	}
	return distance > 0, nil
}

// SaveSnapshot captures a fresh frame and writes it to path. The format
// follows the file extension.
func (s *Service) SaveSnapshot(path string) error {
	frame, err := s.CaptureFrame(false)
	if err != nil {
		return err
	}
	if err := imaging.Save(frame, path); err != nil {
		return fmt.Errorf("save snapshot %s: %w", path, err)
	}
	s.log.Debugw("snapshot saved", "path", path)
	return nil
}

// queryConfig derives the per-query config, honoring template-carried
// threshold and scale overrides.
func (s *Service) queryConfig(img screen.Image) MatchConfig {
	cfg := s.cfg
	if t, ok := img.(Thresholder); ok {
		if v := t.Threshold(); v > 0 {
			cfg.Threshold = v
		}
	}
	if sc, ok := img.(Scaler); ok {
		if v := sc.Scales(); len(v) > 0 {
			cfg.Scales = v
		}
	}
	return cfg
}

// toFrame translates a desktop-coordinate region into frame coordinates.
func (s *Service) toFrame(region geom.Region) geom.Region {
	origin := s.capturer.Bounds()
	return geom.Rect(region.X-origin.X, region.Y-origin.Y, region.W, region.H)
}

// toMatch translates a frame-coordinate result back to the desktop.
func (s *Service) toMatch(img screen.Image, needle *image.RGBA, r *MatchResult) *screen.Match {
	origin := s.capturer.Bounds()
	nb := needle.Bounds()
	w := int(math.Round(float64(nb.Dx()) * r.Scale))
	h := int(math.Round(float64(nb.Dy()) * r.Scale))
	return &screen.Match{
		Image:  img,
		Region: geom.Rect(origin.X+r.Location.X, origin.Y+r.Location.Y, w, h),
		Score:  r.Confidence,
	}
}
