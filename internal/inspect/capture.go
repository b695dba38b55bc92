package inspect

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/disintegration/imaging"

	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
)

// strokeWidth is the outline thickness for match rectangles, in pixels
// of the captured frame.
const strokeWidth = 2

// CaptureTab shows the live screen with match rectangles drawn over it
type CaptureTab struct {
	controller *Controller

	templateSelect *widget.Select
	allCheck       *widget.Check
	statusLabel    *widget.Label
	view           *canvas.Image

	// Last displayed frame, kept for snapshot export
	frameMu   sync.Mutex
	lastFrame image.Image
}

// NewCaptureTab creates the capture tab
func NewCaptureTab(controller *Controller) *CaptureTab {
	return &CaptureTab{controller: controller}
}

// Build creates the capture tab UI
func (t *CaptureTab) Build() fyne.CanvasObject {
	header := widget.NewLabel("Screen Capture")
	header.TextStyle = fyne.TextStyle{Bold: true}

	t.templateSelect = widget.NewSelect(t.templateNames(), nil)
	t.templateSelect.PlaceHolder = "(template)"

	t.allCheck = widget.NewCheck("All occurrences", nil)

	probeBtn := widget.NewButton("Probe", func() {
		t.probe()
	})

	captureBtn := widget.NewButton("Capture", func() {
		go t.runCapture()
	})

	saveBtn := widget.NewButton("Save Snapshot", func() {
		t.saveSnapshot()
	})

	t.statusLabel = widget.NewLabel("")

	// Controls
	controls := container.NewHBox(
		widget.NewLabel("Template:"),
		t.templateSelect,
		t.allCheck,
		probeBtn,
		captureBtn,
		saveBtn,
	)

	// Frame view
	t.view = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	t.view.FillMode = canvas.ImageFillContain
	t.view.SetMinSize(fyne.NewSize(640, 360))

	// Layout
	return container.NewBorder(
		container.NewVBox(header, controls),
		t.statusLabel,
		nil,
		nil,
		t.view,
	)
}

// probe validates the selection on the UI thread and hands the search to
// a goroutine so matching never blocks the interface
func (t *CaptureTab) probe() {
	name := t.templateSelect.Selected
	if name == "" {
		t.statusLabel.SetText("Select a template first")
		return
	}
	go t.runProbe(name, t.allCheck.Checked)
}

// overlay is one rectangle to draw, graded by its match score
type overlay struct {
	region geom.Region
	score  float64
}

func (t *CaptureTab) runProbe(name string, all bool) {
	s := t.controller.Session()

	img, err := s.Image(name)
	if err != nil {
		t.setStatus(err.Error())
		return
	}

	bounds := s.Bounds()
	var marks []overlay
	best := 0.0
	if all {
		ms, err := screen.ProbeAll(s.Driver(), img, bounds)
		if err != nil {
			t.setStatus(fmt.Sprintf("Probe failed: %v", err))
			return
		}
		for _, m := range ms {
			marks = append(marks, overlay{region: m.Region, score: m.Score})
			if m.Score > best {
				best = m.Score
			}
			s.Bus().Publish(events.NewMatchFoundEvent("inspector", name, m.Region.String(), m.Score))
		}
	} else {
		m, err := screen.Probe(s.Driver(), img, bounds)
		if err != nil {
			t.setStatus(fmt.Sprintf("Probe failed: %v", err))
			return
		}
		if m != nil {
			marks = append(marks, overlay{region: m.Region, score: m.Score})
			best = m.Score
			s.Bus().Publish(events.NewMatchFoundEvent("inspector", name, m.Region.String(), m.Score))
		}
	}

	frame, err := s.Capture()
	if err != nil {
		t.setStatus(fmt.Sprintf("Capture failed: %v", err))
		return
	}
	annotated := annotate(frame, translate(marks, bounds))

	status := fmt.Sprintf("%s not on screen", name)
	if len(marks) == 1 {
		status = fmt.Sprintf("%s at %s (score %.3f)", name, marks[0].region, best)
	} else if len(marks) > 1 {
		status = fmt.Sprintf("%d occurrences of %s (best score %.3f)", len(marks), name, best)
	}
	t.show(annotated, status)
}

func (t *CaptureTab) runCapture() {
	s := t.controller.Session()
	frame, err := s.Capture()
	if err != nil {
		t.setStatus(fmt.Sprintf("Capture failed: %v", err))
		return
	}
	b := frame.Bounds()
	t.show(frame, fmt.Sprintf("Captured %dx%d", b.Dx(), b.Dy()))
}

// saveSnapshot writes the displayed frame, rectangles included, to a
// timestamped PNG in the temp directory
func (t *CaptureTab) saveSnapshot() {
	t.frameMu.Lock()
	frame := t.lastFrame
	t.frameMu.Unlock()

	if frame == nil {
		t.statusLabel.SetText("Nothing captured yet")
		return
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("rguils-%s.png", time.Now().Format("20060102-150405")))
	go func() {
		if err := imaging.Save(frame, path); err != nil {
			t.setStatus(fmt.Sprintf("Snapshot failed: %v", err))
			return
		}
		t.setStatus("Saved " + path)
	}()
}

// refreshTemplates reloads the template dropdown from the registry.
// Called from background goroutines after declarations change.
func (t *CaptureTab) refreshTemplates() {
	if t.templateSelect == nil {
		return
	}
	names := t.templateNames()
	fyne.Do(func() {
		t.templateSelect.Options = names
		t.templateSelect.Refresh()
	})
}

func (t *CaptureTab) templateNames() []string {
	return t.controller.Session().Registry().TemplateNames()
}

// show swaps the displayed frame and status from a background goroutine
func (t *CaptureTab) show(frame image.Image, status string) {
	t.frameMu.Lock()
	t.lastFrame = frame
	t.frameMu.Unlock()

	fyne.Do(func() {
		t.view.Image = frame
		t.view.Refresh()
		t.statusLabel.SetText(status)
	})
}

func (t *CaptureTab) setStatus(status string) {
	fyne.Do(func() {
		t.statusLabel.SetText(status)
	})
}

// translate shifts screen coordinates into frame coordinates
func translate(marks []overlay, bounds geom.Region) []overlay {
	out := make([]overlay, 0, len(marks))
	for _, m := range marks {
		m.region = geom.Rect(m.region.X-bounds.X, m.region.Y-bounds.Y, m.region.W, m.region.H)
		out = append(out, m)
	}
	return out
}

// annotate copies the frame and strokes a score-graded outline around
// each mark
func annotate(src image.Image, marks []overlay) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	for _, m := range marks {
		strokeRect(out, m.region, ScoreColor(m.score))
	}
	return out
}

func strokeRect(img *image.RGBA, r geom.Region, col color.Color) {
	x1, y1 := r.X+r.W-1, r.Y+r.H-1
	for t := 0; t < strokeWidth; t++ {
		for x := r.X - t; x <= x1+t; x++ {
			setPixel(img, x, r.Y-t, col)
			setPixel(img, x, y1+t, col)
		}
		for y := r.Y - t; y <= y1+t; y++ {
			setPixel(img, r.X-t, y, col)
			setPixel(img, x1+t, y, col)
		}
	}
}

func setPixel(img *image.RGBA, x, y int, col color.Color) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.Set(x, y, col)
	}
}
