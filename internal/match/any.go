package match

import (
	"context"
	"time"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
)

// FindAny polls until any one of the images appears, probing in
// declaration order each round and returning the first hit. Timing out
// is not an error: the result is (-1, nil, nil), as it is for an empty
// image list.
func (r *Resolver) FindAny(ctx context.Context, images []screen.Image, region geom.Region, timeout time.Duration) (int, *screen.Match, error) {
	if len(images) == 0 {
		return -1, nil, nil
	}

	w := r.newWait(timeout, "waiting for any image")
	for {
		for i, img := range images {
			m, err := screen.Probe(r.d, img, region)
			if err != nil {
				return -1, nil, err
			}
			if m != nil {
				return i, m, nil
			}
		}
		if err := w.Sleep(ctx); err != nil {
			if uierr.Is(err, uierr.Timeout) {
				return -1, nil, nil
			}
			return -1, nil, err
		}
	}
}

// WaitAny is FindAny with throw semantics: not seeing any image within
// the timeout is a NotFound failure.
func (r *Resolver) WaitAny(ctx context.Context, images []screen.Image, region geom.Region, timeout time.Duration) (int, *screen.Match, error) {
	i, m, err := r.FindAny(ctx, images, region, timeout)
	if err != nil {
		return -1, nil, err
	}
	if m == nil {
		return -1, nil, uierr.Newf(uierr.NotFound,
			"none of %d images appeared in %s within %s", len(images), region, timeout)
	}
	return i, m, nil
}

// ClickAny waits for any of the images and clicks the match it finds,
// returning the index of the image that matched.
func (r *Resolver) ClickAny(ctx context.Context, images []screen.Image, region geom.Region, timeout time.Duration, mod screen.Modifier) (int, error) {
	i, m, err := r.WaitAny(ctx, images, region, timeout)
	if err != nil {
		return -1, err
	}
	if _, err := r.d.Click(m.Region, mod); err != nil {
		return -1, err
	}
	r.log.Debugw("clicked", "image", images[i].Name(), "region", m.Region.String())
	return i, nil
}

// Exists reports whether the image is on screen right now, without
// waiting.
func (r *Resolver) Exists(img screen.Image, region geom.Region) (bool, error) {
	m, err := screen.Probe(r.d, img, region)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// ExistsAny reports whether any of the images is on screen right now.
func (r *Resolver) ExistsAny(images []screen.Image, region geom.Region) (bool, error) {
	for _, img := range images {
		m, err := screen.Probe(r.d, img, region)
		if err != nil {
			return false, err
		}
		if m != nil {
			return true, nil
		}
	}
	return false, nil
}

// ClickOffset finds the image using the driver's ambient wait and
// clicks dx,dy away from the match center. The offset lets a template
// anchor a click on something beside it, like the field after a label.
func (r *Resolver) ClickOffset(img screen.Image, region geom.Region, dx, dy int, mod screen.Modifier) error {
	m, err := r.d.Find(img, region)
	if err != nil {
		return err
	}
	if m == nil {
		return uierr.Newf(uierr.NotFound, "image %q not found in %s", img.Name(), region)
	}
	target := m.Region
	target.X += dx
	target.Y += dy
	if _, err := r.d.Click(target, mod); err != nil {
		return err
	}
	return nil
}

// WaitVanish polls until the image is no longer on screen. The image
// still being visible when the timeout elapses is a Timeout failure.
func (r *Resolver) WaitVanish(ctx context.Context, img screen.Image, region geom.Region, timeout time.Duration) error {
	w := r.newWait(timeout, "waiting for "+img.Name()+" to vanish")
	for {
		m, err := screen.Probe(r.d, img, region)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		if err := w.Sleep(ctx); err != nil {
			return err
		}
	}
}
