package heatmap

import (
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// bucketWidth groups neighbouring values so the palette stays stable
const bucketWidth = 2

// Hue range of the palette in degrees
const (
	hueCold = 236.0
	hueHot  = 0.0
)

// shades orders ASCII glyphs from coolest to warmest cell
const shades = " .:-=+*#%@"

// Bucket clamps v to [0, 100] and rounds it down to its bucket start.
func Bucket(v uint8) uint8 {
	if v > MaxValue {
		v = MaxValue
	}
	return (v / bucketWidth) * bucketWidth
}

// Color maps a cell value onto a hue ramp from blue (cold cells) to red (hot
// cells) at fixed saturation and brightness.
func Color(v uint8) color.RGBA {
	t := float64(Bucket(v)) / MaxValue
	hue := hueCold - t*(hueCold-hueHot)
	r, g, b := colorful.Hsv(hue, 1, 0.90).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Shade maps a cell value onto an ASCII glyph for terminal output.
func Shade(v uint8) byte {
	idx := int(Bucket(v)) * (len(shades) - 1) / MaxValue
	return shades[idx]
}
