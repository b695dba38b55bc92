package session

import (
	"context"
	"image"
	"time"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
)

// Bounds returns the driver's full screen region.
func (s *Session) Bounds() geom.Region { return s.d.Bounds() }

// Find searches the whole screen under the ambient wait settings.
func (s *Session) Find(img screen.Image) (*screen.Match, error) {
	m, err := s.d.Find(img, s.d.Bounds())
	if err == nil && m != nil {
		s.publishMatch(m)
	}
	return m, err
}

// FindAll returns every distinct occurrence on the whole screen.
func (s *Session) FindAll(img screen.Image) ([]*screen.Match, error) {
	return s.d.FindAll(img, s.d.Bounds())
}

// Exists reports presence anywhere on screen without waiting.
func (s *Session) Exists(img screen.Image) (bool, error) {
	return s.resolver.Exists(img, s.d.Bounds())
}

// Await waits up to timeout for the image anywhere on screen; a miss is
// a NotFound error.
func (s *Session) Await(img screen.Image, timeout time.Duration) (*screen.Match, error) {
	m, err := screen.Await(s.d, img, s.d.Bounds(), timeout)
	if err == nil {
		s.publishMatch(m)
	}
	return m, err
}

// Click waits for the image, clicks its center and settles for the
// configured click delay.
func (s *Session) Click(img screen.Image, mod screen.Modifier) error {
	m, err := screen.Await(s.d, img, s.d.Bounds(), s.cfg.AutoWaitTimeout)
	if err != nil {
		return err
	}
	s.publishMatch(m)
	if _, err := s.d.Click(m.Region, mod); err != nil {
		return err
	}
	if s.cfg.ClickDelay > 0 {
		time.Sleep(s.cfg.ClickDelay)
	}
	return nil
}

// ClickRegion clicks the center of an explicit region.
func (s *Session) ClickRegion(r geom.Region, mod screen.Modifier) error {
	if _, err := s.d.Click(r, mod); err != nil {
		return err
	}
	if s.cfg.ClickDelay > 0 {
		time.Sleep(s.cfg.ClickDelay)
	}
	return nil
}

// WaitVanish waits until the image is no longer anywhere on screen.
func (s *Session) WaitVanish(ctx context.Context, img screen.Image, timeout time.Duration) error {
	return s.resolver.WaitVanish(ctx, img, s.d.Bounds(), timeout)
}

// FindAny polls the whole screen until one of the images appears,
// returning its index.
func (s *Session) FindAny(ctx context.Context, images []screen.Image, timeout time.Duration) (int, *screen.Match, error) {
	return s.resolver.FindAny(ctx, images, s.d.Bounds(), timeout)
}

// Scoped runs fn with region's ambient settings temporarily replaced,
// restoring them on every exit path.
func (s *Session) Scoped(region geom.Region, timeout time.Duration, throw bool, fn func() error) error {
	return screen.Scoped(s.d, region, timeout, throw, fn)
}

// Capture grabs the whole screen raster.
func (s *Session) Capture() (image.Image, error) {
	return s.d.Capture(s.d.Bounds())
}

// CaptureRegion grabs one region's raster.
func (s *Session) CaptureRegion(r geom.Region) (image.Image, error) {
	return s.d.Capture(r)
}

func (s *Session) publishMatch(m *screen.Match) {
	if m == nil {
		return
	}
	events.Emit(s.bus, events.NewMatchFoundEvent("session", m.Image.Name(), m.Region.String(), m.Score))
}
