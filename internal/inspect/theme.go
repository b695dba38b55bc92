package inspect

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
)

// DefaultWindowSize is the default window dimensions
var DefaultWindowSize = fyne.NewSize(1100, 750)

// Overlay and status colors. Match rectangles are graded by score so a
// marginal detection reads differently from a solid one.
var (
	ColorPrimary    = color.NRGBA{R: 63, G: 81, B: 181, A: 255}
	ColorMatch      = color.NRGBA{R: 76, G: 175, B: 80, A: 255}
	ColorMarginal   = color.NRGBA{R: 255, G: 152, B: 0, A: 255}
	ColorWeak       = color.NRGBA{R: 244, G: 67, B: 54, A: 255}
	ColorBackground = color.NRGBA{R: 18, G: 18, B: 18, A: 255}
)

// Score cutoffs for the overlay grades.
const (
	solidScore    = 0.9
	marginalScore = 0.75
)

// ScoreColor grades a match score into an overlay color.
func ScoreColor(score float64) color.Color {
	switch {
	case score >= solidScore:
		return ColorMatch
	case score >= marginalScore:
		return ColorMarginal
	default:
		return ColorWeak
	}
}

// InspectorTheme is the dark theme of the inspector window
type InspectorTheme struct{}

func (t *InspectorTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	switch name {
	case theme.ColorNamePrimary, theme.ColorNameButton:
		return ColorPrimary
	case theme.ColorNameBackground:
		return ColorBackground
	case theme.ColorNameSuccess:
		return ColorMatch
	case theme.ColorNameWarning:
		return ColorMarginal
	case theme.ColorNameError:
		return ColorWeak
	default:
		return theme.DefaultTheme().Color(name, variant)
	}
}

func (t *InspectorTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (t *InspectorTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (t *InspectorTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNamePadding {
		return 6
	}
	return theme.DefaultTheme().Size(name)
}
