package screen

import (
	"time"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/uierr"
)

// Scoped runs fn with region's ambient timeout and throw flag temporarily
// replaced, restoring both previous values on every exit path. Nested
// probes must go through this so a failure deep in a retry loop cannot
// leak probe settings into the caller's region.
func Scoped(d Driver, region geom.Region, timeout time.Duration, throw bool, fn func() error) error {
	prevTimeout := d.AutoWaitTimeout(region)
	prevThrow := d.ThrowOnFail(region)
	d.SetAutoWaitTimeout(region, timeout)
	d.SetThrowOnFail(region, throw)
	defer func() {
		d.SetAutoWaitTimeout(region, prevTimeout)
		d.SetThrowOnFail(region, prevThrow)
	}()
	return fn()
}

// Probe performs a single zero-timeout, non-throwing detection. A miss is
// (nil, nil); an error means the driver itself failed.
func Probe(d Driver, img Image, region geom.Region) (*Match, error) {
	var m *Match
	err := Scoped(d, region, 0, false, func() error {
		found, err := d.Find(img, region)
		m = found
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ProbeAll performs a single zero-timeout, non-throwing multi-occurrence
// detection. A miss is an empty slice.
func ProbeAll(d Driver, img Image, region geom.Region) ([]*Match, error) {
	var ms []*Match
	err := Scoped(d, region, 0, false, func() error {
		found, err := d.FindAll(img, region)
		ms = found
		return err
	})
	if err != nil {
		return nil, err
	}
	return ms, nil
}

// Await searches for img inside region, letting the driver wait up to
// timeout. A miss is a NotFound error.
func Await(d Driver, img Image, region geom.Region, timeout time.Duration) (*Match, error) {
	var m *Match
	err := Scoped(d, region, timeout, true, func() error {
		found, err := d.Find(img, region)
		m = found
		return err
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		// Drivers in throw mode should have errored already; normalize
		// so callers can rely on the taxonomy.
		return nil, uierr.Newf(uierr.NotFound, "image %q not found in %s within %s", img.Name(), region, timeout)
	}
	return m, nil
}
