// Package colormap provides intensity ramps for channel rendering and a
// categorical map for class coloring.
package colormap

import (
	stdcolor "image/color"

	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	At(t float64) stdcolor.Color
	AtIndex(i int) stdcolor.Color
}

// LinearColormap interpolates linearly between control colors.
type LinearColormap struct {
	colors []stdcolor.RGBA
}

// At returns the color at position t (0-1).
func (c LinearColormap) At(t float64) stdcolor.Color {
	if t <= 0 {
		return c.colors[0]
	}
	if t >= 1 {
		return c.colors[len(c.colors)-1]
	}

	idx := t * float64(len(c.colors)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(c.colors) {
		upper = len(c.colors) - 1
	}

	frac := idx - float64(lower)
	return interpolate(c.colors[lower], c.colors[upper], frac)
}

// AtIndex returns the control color at index i (wraps around).
func (c LinearColormap) AtIndex(i int) stdcolor.Color {
	return c.colors[i%len(c.colors)]
}

func interpolate(c1, c2 stdcolor.RGBA, t float64) stdcolor.RGBA {
	return stdcolor.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R))),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G))),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B))),
		A: 255,
	}
}

// Tint builds the ramp a channel layer renders through: black at zero
// intensity up to the layer's tint color at full intensity.
func Tint(c color.Color) LinearColormap {
	return LinearColormap{
		colors: []stdcolor.RGBA{
			{0, 0, 0, 255},
			{uint8(c.R), uint8(c.G), uint8(c.B), 255},
		},
	}
}

// Gray is the ramp for an untinted channel.
var Gray = Tint(color.White)

// Viridis pseudo-color ramp, for single-channel review.
var Viridis = LinearColormap{
	colors: []stdcolor.RGBA{
		{68, 1, 84, 255},
		{72, 35, 116, 255},
		{64, 67, 135, 255},
		{52, 94, 141, 255},
		{41, 120, 142, 255},
		{32, 144, 140, 255},
		{34, 167, 132, 255},
		{68, 190, 112, 255},
		{121, 209, 81, 255},
		{189, 222, 38, 255},
		{253, 231, 37, 255},
	},
}

// CategoricalColormap provides distinct colors for object classes, backed
// by the shared selection palette.
type CategoricalColormap struct{}

// At returns the class color closest to position t.
func (CategoricalColormap) At(t float64) stdcolor.Color {
	idx := int(t * float64(color.PaletteSize()))
	if idx >= color.PaletteSize() {
		idx = color.PaletteSize() - 1
	}
	return color.PaletteColor(idx).ToRGBA()
}

// AtIndex returns the class color at index i (wraps around).
func (CategoricalColormap) AtIndex(i int) stdcolor.Color {
	return color.PaletteColor(i).ToRGBA()
}

// Categorical is the shared class colormap.
var Categorical = CategoricalColormap{}
