package match

import (
	"context"
	"testing"
	"time"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/screen/screentest"
	"github.com/karlmicha/rguils/internal/uierr"
)

func TestFindAnyDeclarationOrder(t *testing.T) {
	f := screentest.New()
	a, b := screentest.Img("a"), screentest.Img("b")
	f.ShowAfter(a, 1, screentest.MatchAt(a, geom.Rect(10, 10, 20, 20), 0.9))
	r, s := newTestResolver(f)

	// a appears in round two and wins before b would be probed again.
	i, m, err := r.FindAny(context.Background(), []screen.Image{a, b}, f.Bounds(), 5*time.Second)
	if err != nil {
		t.Fatalf("FindAny: %v", err)
	}
	if i != 0 {
		t.Errorf("index = %d, want 0", i)
	}
	if m == nil || m.Region != geom.Rect(10, 10, 20, 20) {
		t.Errorf("match = %v", m)
	}
	if f.Probes(b) != 1 {
		t.Errorf("b probed %d times, want 1", f.Probes(b))
	}
	if s.n != 1 {
		t.Errorf("slept %d times, want 1", s.n)
	}
}

func TestFindAnyFirstDeclaredWinsWithinRound(t *testing.T) {
	f := screentest.New()
	a, b := screentest.Img("a"), screentest.Img("b")
	f.Show(a, screentest.MatchAt(a, geom.Rect(10, 10, 20, 20), 0.6))
	f.Show(b, screentest.MatchAt(b, geom.Rect(100, 10, 20, 20), 0.99))
	r, _ := newTestResolver(f)

	i, _, err := r.FindAny(context.Background(), []screen.Image{a, b}, f.Bounds(), 0)
	if err != nil {
		t.Fatalf("FindAny: %v", err)
	}
	if i != 0 {
		t.Errorf("index = %d, want 0: declaration order beats score", i)
	}
}

func TestFindAnyTimeout(t *testing.T) {
	f := screentest.New()
	r, s := newTestResolver(f)

	i, m, err := r.FindAny(context.Background(), []screen.Image{screentest.Img("a")}, f.Bounds(), 2*time.Second)
	if err != nil {
		t.Fatalf("FindAny: timing out must not fail, got %v", err)
	}
	if i != -1 || m != nil {
		t.Errorf("got (%d, %v), want (-1, nil)", i, m)
	}
	if s.n != 2 {
		t.Errorf("slept %d times, want 2", s.n)
	}
}

func TestFindAnyEmptyImages(t *testing.T) {
	f := screentest.New()
	r, _ := newTestResolver(f)

	i, m, err := r.FindAny(context.Background(), nil, f.Bounds(), time.Second)
	if i != -1 || m != nil || err != nil {
		t.Errorf("got (%d, %v, %v), want (-1, nil, nil)", i, m, err)
	}
}

func TestWaitAnyTimeoutFails(t *testing.T) {
	f := screentest.New()
	r, _ := newTestResolver(f)

	_, _, err := r.WaitAny(context.Background(), []screen.Image{screentest.Img("a")}, f.Bounds(), 2*time.Second)
	if !uierr.Is(err, uierr.NotFound) {
		t.Fatalf("err = %v, want not_found kind", err)
	}
}

func TestClickAny(t *testing.T) {
	f := screentest.New()
	a, b := screentest.Img("a"), screentest.Img("b")
	site := geom.Rect(100, 10, 20, 20)
	f.Show(b, screentest.MatchAt(b, site, 0.8))
	r, _ := newTestResolver(f)

	i, err := r.ClickAny(context.Background(), []screen.Image{a, b}, f.Bounds(), 5*time.Second, screen.ModNone)
	if err != nil {
		t.Fatalf("ClickAny: %v", err)
	}
	if i != 1 {
		t.Errorf("index = %d, want 1", i)
	}
	if len(f.Clicks) != 1 || f.Clicks[0].Target != site {
		t.Errorf("clicks = %v, want one click at %s", f.Clicks, site)
	}
}

func TestExists(t *testing.T) {
	f := screentest.New()
	a := screentest.Img("a")
	f.Show(a, screentest.MatchAt(a, geom.Rect(10, 10, 20, 20), 0.9))
	r, _ := newTestResolver(f)

	ok, err := r.Exists(a, f.Bounds())
	if err != nil || !ok {
		t.Errorf("Exists(a) = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = r.Exists(screentest.Img("missing"), f.Bounds())
	if err != nil || ok {
		t.Errorf("Exists(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestExistsAny(t *testing.T) {
	f := screentest.New()
	a, b := screentest.Img("a"), screentest.Img("b")
	f.Show(b, screentest.MatchAt(b, geom.Rect(10, 10, 20, 20), 0.9))
	r, _ := newTestResolver(f)

	ok, err := r.ExistsAny([]screen.Image{a, b}, f.Bounds())
	if err != nil || !ok {
		t.Errorf("ExistsAny = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = r.ExistsAny([]screen.Image{a}, f.Bounds())
	if err != nil || ok {
		t.Errorf("ExistsAny(missing only) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestClickOffset(t *testing.T) {
	f := screentest.New()
	label := screentest.Img("label")
	f.Show(label, screentest.MatchAt(label, geom.Rect(100, 100, 50, 20), 0.9))
	r, _ := newTestResolver(f)

	if err := r.ClickOffset(label, f.Bounds(), 10, 5, screen.ModNone); err != nil {
		t.Fatalf("ClickOffset: %v", err)
	}
	want := geom.Rect(110, 105, 50, 20)
	if len(f.Clicks) != 1 || f.Clicks[0].Target != want {
		t.Errorf("clicks = %v, want one click at %s", f.Clicks, want)
	}
}

func TestClickOffsetMissing(t *testing.T) {
	f := screentest.New()
	r, _ := newTestResolver(f)

	err := r.ClickOffset(screentest.Img("label"), f.Bounds(), 10, 5, screen.ModNone)
	if !uierr.Is(err, uierr.NotFound) {
		t.Fatalf("throwing region: err = %v, want not_found", err)
	}

	// A non-throwing region reports the miss through the same kind.
	f.SetThrowOnFail(f.Bounds(), false)
	err = r.ClickOffset(screentest.Img("label"), f.Bounds(), 10, 5, screen.ModNone)
	if !uierr.Is(err, uierr.NotFound) {
		t.Fatalf("non-throwing region: err = %v, want not_found", err)
	}
	if len(f.Clicks) != 0 {
		t.Errorf("clicks = %v, want none", f.Clicks)
	}
}

func TestWaitVanish(t *testing.T) {
	f := screentest.New()
	dialog := screentest.Img("dialog")
	m := screentest.MatchAt(dialog, geom.Rect(400, 300, 200, 100), 0.9)
	f.Script(dialog, []*screen.Match{m}, []*screen.Match{m}, nil)
	r, s := newTestResolver(f)

	if err := r.WaitVanish(context.Background(), dialog, f.Bounds(), 10*time.Second); err != nil {
		t.Fatalf("WaitVanish: %v", err)
	}
	if s.n != 2 {
		t.Errorf("slept %d times, want 2", s.n)
	}
}

func TestWaitVanishTimeout(t *testing.T) {
	f := screentest.New()
	dialog := screentest.Img("dialog")
	f.Show(dialog, screentest.MatchAt(dialog, geom.Rect(400, 300, 200, 100), 0.9))
	r, _ := newTestResolver(f)

	err := r.WaitVanish(context.Background(), dialog, f.Bounds(), 2*time.Second)
	if !uierr.Is(err, uierr.Timeout) {
		t.Fatalf("err = %v, want timeout kind", err)
	}
}
