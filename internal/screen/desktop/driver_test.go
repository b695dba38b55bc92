package desktop

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"testing"
	"time"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
	"github.com/karlmicha/rguils/internal/vision"
)

var (
	testGray = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	testRed  = color.RGBA{R: 255, A: 255}
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func paste(dst, src *image.RGBA, x, y int) {
	draw.Draw(dst, src.Bounds().Add(image.Pt(x, y)), src, image.Point{}, draw.Src)
}

// scriptedCapturer serves a fixed frame sequence, repeating the last.
type scriptedCapturer struct {
	frames   []*image.RGBA
	bounds   geom.Region
	captures int
}

func (c *scriptedCapturer) CaptureFrame() (*image.RGBA, error) {
	i := c.captures
	if i >= len(c.frames) {
		i = len(c.frames) - 1
	}
	c.captures++
	return c.frames[i], nil
}

func (c *scriptedCapturer) Bounds() geom.Region { return c.bounds }

// fakePointer records injected input in order.
type fakePointer struct {
	ops []string
}

func (p *fakePointer) Move(x, y int) {
	p.ops = append(p.ops, fmt.Sprintf("move %d,%d", x, y))
}

func (p *fakePointer) Click() {
	p.ops = append(p.ops, "click")
}

func (p *fakePointer) ToggleKey(key string, down bool) {
	state := "up"
	if down {
		state = "down"
	}
	p.ops = append(p.ops, key+" "+state)
}

func (p *fakePointer) Tap(key string) {
	p.ops = append(p.ops, "tap "+key)
}

type testImage struct {
	name string
	px   *image.RGBA
}

func (t *testImage) Name() string { return t.name }

func (t *testImage) Pixels() (*image.RGBA, error) { return t.px, nil }

func testDriver(frames []*image.RGBA, bounds geom.Region, opts ...Option) (*Driver, *scriptedCapturer, *fakePointer) {
	cap := &scriptedCapturer{frames: frames, bounds: bounds}
	svc := vision.NewService(cap,
		vision.WithFrameTTL(0),
		vision.WithMatchConfig(vision.MatchConfig{Method: vision.MatchMethodSSD, Threshold: 0.9, MaxMatches: 16}),
	)
	d := NewWithVision(svc, opts...)
	ptr := &fakePointer{}
	d.ptr = ptr
	return d, cap, ptr
}

func TestFindReturnsAbsoluteMatch(t *testing.T) {
	frame := solid(200, 150, testGray)
	paste(frame, solid(10, 10, testRed), 60, 40)
	d, _, _ := testDriver([]*image.RGBA{frame}, geom.Rect(0, 0, 200, 150), WithAutoWait(0))
	img := &testImage{name: "marker", px: solid(10, 10, testRed)}

	m, err := d.Find(img, d.Bounds())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if m == nil {
		t.Fatal("marker not found")
	}
	if want := geom.Rect(60, 40, 10, 10); m.Region != want {
		t.Errorf("region = %s, want %s", m.Region, want)
	}
	if m.Image != img {
		t.Errorf("match image = %v, want the queried template", m.Image)
	}
}

func TestFindMissRespectsThrowFlag(t *testing.T) {
	d, _, _ := testDriver([]*image.RGBA{solid(100, 80, testGray)}, geom.Rect(0, 0, 100, 80), WithAutoWait(0))
	img := &testImage{name: "marker", px: solid(10, 10, testRed)}

	_, err := d.Find(img, d.Bounds())
	if uierr.KindOf(err) != uierr.NotFound {
		t.Fatalf("miss with throw: err = %v, want NotFound", err)
	}

	d.SetThrowOnFail(d.Bounds(), false)
	m, err := d.Find(img, d.Bounds())
	if err != nil {
		t.Fatalf("miss without throw: %v", err)
	}
	if m != nil {
		t.Errorf("miss without throw returned %s", m.Region)
	}
}

func TestFindPollsUntilVisible(t *testing.T) {
	blank := solid(100, 80, testGray)
	shown := solid(100, 80, testGray)
	paste(shown, solid(10, 10, testRed), 30, 30)
	d, cap, _ := testDriver([]*image.RGBA{blank, blank, blank, shown}, geom.Rect(0, 0, 100, 80),
		WithAutoWait(2*time.Second), WithScanInterval(time.Millisecond))
	img := &testImage{name: "marker", px: solid(10, 10, testRed)}

	m, err := d.Find(img, d.Bounds())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if m == nil {
		t.Fatal("marker never found")
	}
	if want := geom.Rect(30, 30, 10, 10); m.Region != want {
		t.Errorf("region = %s, want %s", m.Region, want)
	}
	if cap.captures < 4 {
		t.Errorf("captures = %d, want at least 4 (poll must re-capture)", cap.captures)
	}
}

func TestFindAllFindsEveryOccurrence(t *testing.T) {
	frame := solid(160, 120, testGray)
	paste(frame, solid(10, 10, testRed), 20, 16)
	paste(frame, solid(10, 10, testRed), 90, 60)
	d, _, _ := testDriver([]*image.RGBA{frame}, geom.Rect(0, 0, 160, 120), WithAutoWait(0))
	img := &testImage{name: "marker", px: solid(10, 10, testRed)}

	matches, err := d.FindAll(img, d.Bounds())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if want := geom.Rect(20, 16, 10, 10); matches[0].Region != want {
		t.Errorf("matches[0].Region = %s, want %s", matches[0].Region, want)
	}
	if want := geom.Rect(90, 60, 10, 10); matches[1].Region != want {
		t.Errorf("matches[1].Region = %s, want %s", matches[1].Region, want)
	}

	absent := &testImage{name: "ghost", px: solid(10, 10, color.RGBA{G: 255, A: 255})}
	_, err = d.FindAll(absent, d.Bounds())
	if uierr.KindOf(err) != uierr.NotFound {
		t.Errorf("absent template: err = %v, want NotFound", err)
	}
}

func TestClickSequencesInput(t *testing.T) {
	d, _, ptr := testDriver([]*image.RGBA{solid(64, 48, testGray)}, geom.Rect(0, 0, 64, 48))

	n, err := d.Click(geom.Rect(100, 100, 20, 20), screen.ModNone)
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if n != 1 {
		t.Errorf("clicks = %d, want 1", n)
	}
	if want := []string{"move 110,110", "click"}; !reflect.DeepEqual(ptr.ops, want) {
		t.Errorf("ops = %v, want %v", ptr.ops, want)
	}

	ptr.ops = nil
	if _, err := d.Click(geom.Rect(100, 100, 20, 20), screen.ModShift|screen.ModCtrl); err != nil {
		t.Fatalf("Click with modifiers: %v", err)
	}
	want := []string{"shift down", "ctrl down", "move 110,110", "click", "ctrl up", "shift up"}
	if !reflect.DeepEqual(ptr.ops, want) {
		t.Errorf("ops = %v, want %v", ptr.ops, want)
	}
}

func TestClickEmptyTargetFails(t *testing.T) {
	d, _, ptr := testDriver([]*image.RGBA{solid(64, 48, testGray)}, geom.Rect(0, 0, 64, 48))

	n, err := d.Click(geom.Region{}, screen.ModNone)
	if uierr.KindOf(err) != uierr.InvalidState {
		t.Fatalf("err = %v, want InvalidState", err)
	}
	if n != 0 || len(ptr.ops) != 0 {
		t.Errorf("empty target injected input: n=%d ops=%v", n, ptr.ops)
	}
}

func TestTapKey(t *testing.T) {
	d, _, ptr := testDriver([]*image.RGBA{solid(64, 48, testGray)}, geom.Rect(0, 0, 64, 48))

	if err := d.TapKey("enter"); err != nil {
		t.Fatalf("TapKey: %v", err)
	}
	if want := []string{"tap enter"}; !reflect.DeepEqual(ptr.ops, want) {
		t.Errorf("ops = %v, want %v", ptr.ops, want)
	}

	if err := d.TapKey(""); uierr.KindOf(err) != uierr.InvalidState {
		t.Fatalf("err = %v, want InvalidState", err)
	}
}

func TestCaptureCropsRegion(t *testing.T) {
	frame := solid(64, 48, testGray)
	paste(frame, solid(20, 20, testRed), 10, 10)
	d, _, _ := testDriver([]*image.RGBA{frame}, geom.Rect(0, 0, 64, 48))

	img, err := d.Capture(geom.Rect(10, 10, 20, 20))
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 20 {
		t.Errorf("capture size = %dx%d, want 20x20", b.Dx(), b.Dy())
	}
	r, g, b, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	if r>>8 != 255 || g>>8 != 0 || b>>8 != 0 {
		t.Errorf("capture top-left = (%d,%d,%d), want red", r>>8, g>>8, b>>8)
	}

	if _, err := d.Capture(geom.Rect(500, 500, 10, 10)); uierr.KindOf(err) != uierr.InvalidState {
		t.Errorf("off-screen capture: err = %v, want InvalidState", err)
	}
}

func TestAmbientOverrides(t *testing.T) {
	d, _, _ := testDriver([]*image.RGBA{solid(64, 48, testGray)}, geom.Rect(0, 0, 64, 48))

	r := geom.Rect(5, 5, 10, 10)
	if got := d.AutoWaitTimeout(r); got != DefaultAutoWait {
		t.Errorf("default auto-wait = %v, want %v", got, DefaultAutoWait)
	}
	if !d.ThrowOnFail(r) {
		t.Error("default throw flag = false, want true")
	}

	d.SetAutoWaitTimeout(r, 250*time.Millisecond)
	d.SetThrowOnFail(r, false)
	if got := d.AutoWaitTimeout(r); got != 250*time.Millisecond {
		t.Errorf("override auto-wait = %v, want 250ms", got)
	}
	if d.ThrowOnFail(r) {
		t.Error("override throw flag = true, want false")
	}

	other := geom.Rect(30, 30, 10, 10)
	if got := d.AutoWaitTimeout(other); got != DefaultAutoWait {
		t.Errorf("unrelated region auto-wait = %v, want default", got)
	}

	flipped, _, _ := testDriver([]*image.RGBA{solid(64, 48, testGray)}, geom.Rect(0, 0, 64, 48),
		WithAutoWait(time.Second), WithThrowOnFail(false))
	if got := flipped.AutoWaitTimeout(r); got != time.Second {
		t.Errorf("configured auto-wait = %v, want 1s", got)
	}
	if flipped.ThrowOnFail(r) {
		t.Error("configured throw flag = true, want false")
	}
}
