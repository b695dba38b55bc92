// Package vision is the pixel-level template matcher behind the desktop
// driver. It scores a template raster against every position of a search
// area, optionally at several scales, and reduces the hits to distinct
// occurrences. The engine above it never depends on this package; any
// matcher that can fill a screen.Match works as a primitive.
package vision

import (
	"errors"
	"image"
	"image/draw"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"

	"github.com/karlmicha/rguils/internal/geom"
)

var (
	// ErrTemplateTooLarge means the template cannot fit inside the search
	// area at any configured scale.
	ErrTemplateTooLarge = errors.New("vision: template larger than search area")
	// ErrInvalidImage means a nil, empty, or non-origin-anchored image was
	// passed. Captures and decoded templates are always anchored at (0,0).
	ErrInvalidImage = errors.New("vision: invalid image")
)

// MatchMethod selects the scoring kernel.
type MatchMethod int

const (
	// MatchMethodSAD scores by sum of absolute differences, the fastest.
	MatchMethodSAD MatchMethod = iota
	// MatchMethodSSD scores by sum of squared differences.
	MatchMethodSSD
	// MatchMethodNCC scores by normalized cross-correlation, robust to
	// uniform brightness shifts and the slowest.
	MatchMethodNCC
)

// nmsOverlap is the box overlap at which two candidate hits count as the
// same occurrence.
const nmsOverlap = 0.5

// MatchConfig configures one matching pass.
type MatchConfig struct {
	Method    MatchMethod
	Threshold float64
	// SearchRegion limits the scan to a sub-rectangle of the haystack,
	// in haystack coordinates. Nil scans everything.
	SearchRegion *image.Rectangle
	// MaxMatches caps FindTemplateAll results. Zero means unlimited.
	MaxMatches int
	// Scales lists the template scale factors to try. Empty means 1.0.
	Scales []float64
	// Grayscale collapses color before scoring.
	Grayscale bool
}

// DefaultMatchConfig returns the settings the desktop driver starts from.
func DefaultMatchConfig() *MatchConfig {
	return &MatchConfig{
		Method:     MatchMethodSSD,
		Threshold:  0.85,
		MaxMatches: 64,
	}
}

// MatchResult is one scored position.
type MatchResult struct {
	Found      bool
	Location   image.Point
	Confidence float64
	// Scale is the template scale that produced the hit.
	Scale float64
}

// FindTemplate scans for the single best position of needle within
// haystack and reports whether it clears the threshold.
func FindTemplate(haystack, needle *image.RGBA, config *MatchConfig) (*MatchResult, error) {
	if err := validate(haystack, needle); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultMatchConfig()
	}
	hay := prepare(haystack, config.Grayscale)

	best := &MatchResult{Scale: 1.0}
	fits := false
	for _, scale := range searchScales(config) {
		ndl, ok := scaledNeedle(needle, scale, config.Grayscale)
		if !ok {
			continue
		}
		span, ok := scanSpan(hay, ndl, config)
		if !ok {
			continue
		}
		fits = true
		nb := ndl.Bounds()
		for y := span.Min.Y; y <= span.Max.Y; y++ {
			for x := span.Min.X; x <= span.Max.X; x++ {
				score := matchScore(hay, ndl, x, y, nb.Dx(), nb.Dy(), config.Method)
				if score > best.Confidence {
					best.Confidence = score
					best.Location = image.Point{X: x, Y: y}
					best.Scale = scale
				}
			}
		}
	}
	if !fits {
		return nil, ErrTemplateTooLarge
	}
	best.Found = best.Confidence >= config.Threshold
	return best, nil
}

// FindTemplateAll scans for every distinct occurrence of needle above the
// threshold. Neighbouring positions matching the same occurrence are
// reduced to the strongest by greedy non-maximum suppression; results
// come back strongest first.
func FindTemplateAll(haystack, needle *image.RGBA, config *MatchConfig) ([]MatchResult, error) {
	if err := validate(haystack, needle); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultMatchConfig()
	}
	hay := prepare(haystack, config.Grayscale)

	type candidate struct {
		result MatchResult
		box    geom.Region
	}
	var candidates []candidate
	fits := false
	for _, scale := range searchScales(config) {
		ndl, ok := scaledNeedle(needle, scale, config.Grayscale)
		if !ok {
			continue
		}
		span, ok := scanSpan(hay, ndl, config)
		if !ok {
			continue
		}
		fits = true
		nb := ndl.Bounds()
		for y := span.Min.Y; y <= span.Max.Y; y++ {
			for x := span.Min.X; x <= span.Max.X; x++ {
				score := matchScore(hay, ndl, x, y, nb.Dx(), nb.Dy(), config.Method)
				if score >= config.Threshold {
					candidates = append(candidates, candidate{
						result: MatchResult{
							Found:      true,
							Location:   image.Point{X: x, Y: y},
							Confidence: score,
							Scale:      scale,
						},
						box: geom.Rect(x, y, nb.Dx(), nb.Dy()),
					})
				}
			}
		}
	}
	if !fits {
		return nil, ErrTemplateTooLarge
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].result.Confidence > candidates[b].result.Confidence
	})
	var kept []candidate
	for _, c := range candidates {
		suppressed := false
		for _, k := range kept {
			if geom.Overlap(c.box, k.box) >= nmsOverlap || geom.Overlap(k.box, c.box) >= nmsOverlap {
				suppressed = true
				break
			}
		}
		if suppressed {
			continue
		}
		kept = append(kept, c)
		if config.MaxMatches > 0 && len(kept) >= config.MaxMatches {
			break
		}
	}

	results := make([]MatchResult, len(kept))
	for i, c := range kept {
		results[i] = c.result
	}
	return results, nil
}

func validate(haystack, needle *image.RGBA) error {
	if haystack == nil || needle == nil {
		return ErrInvalidImage
	}
	if haystack.Bounds().Empty() || needle.Bounds().Empty() {
		return ErrInvalidImage
	}
	// The scoring kernels index Pix directly from (0,0).
	if haystack.Bounds().Min != (image.Point{}) || needle.Bounds().Min != (image.Point{}) {
		return ErrInvalidImage
	}
	return nil
}

func searchScales(config *MatchConfig) []float64 {
	if len(config.Scales) == 0 {
		return []float64{1.0}
	}
	return config.Scales
}

// scanSpan returns the inclusive range of top-left corners where the
// needle fits inside the configured search area.
func scanSpan(hay, ndl *image.RGBA, config *MatchConfig) (image.Rectangle, bool) {
	search := hay.Bounds()
	if config.SearchRegion != nil {
		search = config.SearchRegion.Intersect(search)
		if search.Empty() {
			return image.Rectangle{}, false
		}
	}
	nb := ndl.Bounds()
	span := image.Rectangle{
		Min: search.Min,
		Max: image.Point{X: search.Max.X - nb.Dx(), Y: search.Max.Y - nb.Dy()},
	}
	if span.Max.X < span.Min.X || span.Max.Y < span.Min.Y {
		return image.Rectangle{}, false
	}
	return span, true
}

// prepare optionally collapses color before scoring.
func prepare(img *image.RGBA, grayscale bool) *image.RGBA {
	if !grayscale {
		return img
	}
	return toRGBA(imaging.Grayscale(img))
}

// scaledNeedle resizes the template for one search scale. Degenerate
// scaled sizes are skipped.
func scaledNeedle(needle *image.RGBA, scale float64, grayscale bool) (*image.RGBA, bool) {
	if scale == 1.0 {
		return prepare(needle, grayscale), true
	}
	nb := needle.Bounds()
	w := int(math.Round(float64(nb.Dx()) * scale))
	h := int(math.Round(float64(nb.Dy()) * scale))
	if w < 1 || h < 1 {
		return nil, false
	}
	resized := resize.Resize(uint(w), uint(h), needle, resize.Bilinear)
	return prepare(toRGBA(resized), grayscale), true
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func matchScore(hay, ndl *image.RGBA, x, y, w, h int, method MatchMethod) float64 {
	switch method {
	case MatchMethodSAD:
		return matchSAD(hay, ndl, x, y, w, h)
	case MatchMethodNCC:
		return matchNCC(hay, ndl, x, y, w, h)
	default:
		return matchSSD(hay, ndl, x, y, w, h)
	}
}

func matchSAD(hay, ndl *image.RGBA, x, y, w, h int) float64 {
	var sad uint64
	for ny := 0; ny < h; ny++ {
		hIdx := (y+ny)*hay.Stride + x*4
		nIdx := ny * ndl.Stride
		for nx := 0; nx < w; nx++ {
			sad += uint64(absInt(int(hay.Pix[hIdx]) - int(ndl.Pix[nIdx])))
			sad += uint64(absInt(int(hay.Pix[hIdx+1]) - int(ndl.Pix[nIdx+1])))
			sad += uint64(absInt(int(hay.Pix[hIdx+2]) - int(ndl.Pix[nIdx+2])))
			hIdx += 4
			nIdx += 4
		}
	}
	maxSAD := float64(w * h * 3 * 255)
	return 1.0 - float64(sad)/maxSAD
}

func matchSSD(hay, ndl *image.RGBA, x, y, w, h int) float64 {
	var ssd uint64
	for ny := 0; ny < h; ny++ {
		hIdx := (y+ny)*hay.Stride + x*4
		nIdx := ny * ndl.Stride
		for nx := 0; nx < w; nx++ {
			dr := int(hay.Pix[hIdx]) - int(ndl.Pix[nIdx])
			dg := int(hay.Pix[hIdx+1]) - int(ndl.Pix[nIdx+1])
			db := int(hay.Pix[hIdx+2]) - int(ndl.Pix[nIdx+2])
			ssd += uint64(dr*dr + dg*dg + db*db)
			hIdx += 4
			nIdx += 4
		}
	}
	maxSSD := float64(w * h * 3 * 255 * 255)
	return 1.0 - float64(ssd)/maxSSD
}

// matchNCC maps the correlation coefficient from [-1,1] to [0,1]. A flat
// window has no signal to correlate and scores zero.
func matchNCC(hay, ndl *image.RGBA, x, y, w, h int) float64 {
	var sumH, sumN, sumHN, sumHH, sumNN float64
	n := float64(w * h * 3)

	for ny := 0; ny < h; ny++ {
		hIdx := (y+ny)*hay.Stride + x*4
		nIdx := ny * ndl.Stride
		for nx := 0; nx < w; nx++ {
			for c := 0; c < 3; c++ {
				hv := float64(hay.Pix[hIdx+c])
				nv := float64(ndl.Pix[nIdx+c])
				sumH += hv
				sumN += nv
				sumHN += hv * nv
				sumHH += hv * hv
				sumNN += nv * nv
			}
			hIdx += 4
			nIdx += 4
		}
	}

	numerator := sumHN - sumH*sumN/n
	denomH := math.Sqrt(sumHH - sumH*sumH/n)
	denomN := math.Sqrt(sumNN - sumN*sumN/n)
	if denomH == 0 || denomN == 0 {
		return 0
	}
	return (numerator/(denomH*denomN) + 1.0) / 2.0
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
