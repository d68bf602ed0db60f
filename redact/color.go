package redact

import "fmt"

// Color names one of the supported mask fill colors.
type Color string

const (
	Black Color = "black"
	White Color = "white"
	Red   Color = "red"
	Green Color = "green"
	Blue  Color = "blue"
)

// ParseColor maps a config string to a Color, defaulting to black for the
// empty string.
func ParseColor(s string) (Color, error) {
	switch Color(s) {
	case "":
		return Black, nil
	case Black, White, Red, Green, Blue:
		return Color(s), nil
	}
	return "", fmt.Errorf("unknown color %q", s)
}

// RGB returns the fill components in the 0..1 range PDF expects.
func (c Color) RGB() (r, g, b float64) {
	switch c {
	case White:
		return 1, 1, 1
	case Red:
		return 0.86, 0.13, 0.13
	case Green:
		return 0.13, 0.62, 0.21
	case Blue:
		return 0.12, 0.29, 0.69
	}
	return 0, 0, 0
}

// RGBA8 returns the fill as 8-bit components for raster overwrites.
func (c Color) RGBA8() (r, g, b uint8) {
	fr, fg, fb := c.RGB()
	return uint8(fr*255 + 0.5), uint8(fg*255 + 0.5), uint8(fb*255 + 0.5)
}

// Lightened mixes the color halfway toward white; blur mode fills with it so
// the asterisk overlay stays readable.
func (c Color) Lightened() (r, g, b float64) {
	fr, fg, fb := c.RGB()
	return fr + (1-fr)*0.55, fg + (1-fg)*0.55, fb + (1-fb)*0.55
}

// textRGB picks a contrasting color for mask text drawn over the fill.
func (c Color) textRGB() (r, g, b float64) {
	if c == White {
		return 0, 0, 0
	}
	return 1, 1, 1
}
