package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title      *color.Color
	Rule       *color.Color
	Label      *color.Color
	Value      *color.Color
	StatusOK   *color.Color
	StatusWarn *color.Color
	StatusErr  *color.Color
	Dim        *color.Color
	Highlight  *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:      color.New(color.Bold),
		Rule:       color.New(color.FgCyan),
		Label:      color.New(color.FgYellow),
		Value:      color.New(color.FgCyan),
		StatusOK:   color.New(color.FgGreen, color.Bold),
		StatusWarn: color.New(color.FgYellow, color.Bold),
		StatusErr:  color.New(color.FgRed, color.Bold),
		Dim:        color.New(color.Faint),
		Highlight:  color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// ForcedColorScheme returns the default scheme with colors on even when the
// output is not a terminal.
func ForcedColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Label, s.Value,
		s.StatusOK, s.StatusWarn, s.StatusErr,
		s.Dim, s.Highlight,
	}
}

// forRate picks the status color for an error rate.
func (s *ColorScheme) forRate(errorRate float64) *color.Color {
	switch {
	case errorRate > 0.05:
		return s.StatusErr
	case errorRate > 0.01:
		return s.StatusWarn
	default:
		return s.StatusOK
	}
}

// forStatus picks the color for an HTTP status code.
func (s *ColorScheme) forStatus(code int) *color.Color {
	switch {
	case code == 0 || code >= 500:
		return s.StatusErr
	case code >= 400:
		return s.StatusWarn
	default:
		return s.StatusOK
	}
}
