package desktop

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"github.com/karlmicha/rguils/internal/geom"
)

// displayCapturer grabs frames of one physical display.
type displayCapturer struct {
	display int
	bounds  geom.Region
}

func newDisplayCapturer(display int) *displayCapturer {
	// kbinani/screenshot handles multi-monitor bounds correctly
	b := screenshot.GetDisplayBounds(display)
	return &displayCapturer{
		display: display,
		bounds:  geom.Rect(b.Min.X, b.Min.Y, b.Dx(), b.Dy()),
	}
}

// CaptureFrame implements vision.Capturer. The returned raster is
// anchored at (0,0) as the matcher requires.
func (c *displayCapturer) CaptureFrame() (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(c.bounds.ToImageRect())
	if err != nil {
		return nil, fmt.Errorf("capture display %d: %w", c.display, err)
	}
	return img, nil
}

// Bounds implements vision.Capturer.
func (c *displayCapturer) Bounds() geom.Region {
	return c.bounds
}

// pointer injects mouse and key input. Tests swap in a recording
// implementation.
type pointer interface {
	Move(x, y int)
	Click()
	ToggleKey(key string, down bool)
	Tap(key string)
}

// robotPointer drives the real cursor through robotgo.
type robotPointer struct{}

func (robotPointer) Move(x, y int) {
	robotgo.Move(x, y)
}

func (robotPointer) Click() {
	robotgo.Click("left")
}

func (robotPointer) ToggleKey(key string, down bool) {
	state := "up"
	if down {
		state = "down"
	}
	robotgo.KeyToggle(key, state)
}

func (robotPointer) Tap(key string) {
	robotgo.KeyTap(key)
}
