package templates

import (
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/vision"
)

var (
	_ screen.Image       = (*Template)(nil)
	_ vision.Thresholder = (*Template)(nil)
	_ vision.Scaler      = (*Template)(nil)
)

// Template is a named template image backed by a PNG file. It implements
// screen.Image; pixels decode lazily on first use and stay cached until
// Unload. A non-zero threshold or scale rides along to the matcher
// through the vision override interfaces.
type Template struct {
	name      string
	path      string
	threshold float64
	scale     float64
	preload   bool

	mu      sync.RWMutex
	pixels  *image.RGBA
	loads   int64
	unloads int64
}

// NewTemplate wraps a PNG file as a standalone template outside any
// registry. The name defaults to the file's base name without extension.
func NewTemplate(name, path string) *Template {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &Template{name: name, path: path}
}

// Name implements screen.Image.
func (t *Template) Name() string { return t.name }

// Path returns the backing image file path.
func (t *Template) Path() string { return t.path }

// Threshold returns the template's own match threshold, 0 when the
// matcher default applies.
func (t *Template) Threshold() float64 { return t.threshold }

// Scales returns the scale list to search when the template declares a
// rendering scale: native size plus the declared scale.
func (t *Template) Scales() []float64 {
	if t.scale <= 0 || t.scale == 1.0 {
		return nil
	}
	return []float64{1.0, t.scale}
}

// Pixels implements screen.Image, decoding the PNG on first use.
func (t *Template) Pixels() (*image.RGBA, error) {
	t.mu.RLock()
	if t.pixels != nil {
		defer t.mu.RUnlock()
		return t.pixels, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pixels != nil {
		return t.pixels, nil
	}
	return t.load()
}

// load decodes the backing file. Caller must hold the write lock.
func (t *Template) load() (*image.RGBA, error) {
	file, err := os.Open(t.path)
	if err != nil {
		return nil, fmt.Errorf("open template %q: %w", t.name, err)
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode template %q: %w", t.name, err)
	}

	// The matcher indexes pixels from (0,0).
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Bounds().Min != (image.Point{}) {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	t.pixels = rgba
	t.loads++
	return rgba, nil
}

// Loaded reports whether the pixels are currently in memory.
func (t *Template) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pixels != nil
}

// Unload releases the cached pixels; the next Pixels call decodes again.
func (t *Template) Unload() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pixels != nil {
		t.pixels = nil
		t.unloads++
	}
}
