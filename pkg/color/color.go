// Package color provides the immutable RGBA value type used across layers,
// selections and tool results.
package color

import (
	"fmt"
	"image/color"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Color is an immutable RGBA value. R, G and B are integers in [0, 255],
// A is a float in [0, 1]. Compare with ==; every derived-color method
// returns a new value.
type Color struct {
	R int
	G int
	B int
	A float64
}

// None is the sentinel returned by FromHex and FromRGBString on malformed
// input. It never equals a color produced by any constructor.
var None = Color{R: -1, G: -1, B: -1, A: 0}

// Common colors.
var (
	Black = Color{0, 0, 0, 1}
	White = Color{255, 255, 255, 1}
	Red   = Color{255, 0, 0, 1}
	Green = Color{0, 255, 0, 1}
	Blue  = Color{0, 0, 255, 1}
)

// New clamps the components into range and returns the color.
func New(r, g, b int, a float64) Color {
	return Color{clampInt(r), clampInt(g), clampInt(b), clampFloat(a)}
}

func clampInt(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func clampFloat(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Valid reports whether c was produced by a constructor (i.e. is not None).
func (c Color) Valid() bool {
	return c.R >= 0 && c.G >= 0 && c.B >= 0
}

var (
	hexRe = regexp.MustCompile(`^#([0-9a-fA-F]{2})([0-9a-fA-F]{2})([0-9a-fA-F]{2})$`)
	rgbRe = regexp.MustCompile(`^rgb\((\d{1,3}),\s*(\d{1,3}),\s*(\d{1,3})\)$`)
)

// FromHex parses "#rrggbb". Alpha is 1. Returns None on malformed input.
func FromHex(s string) Color {
	m := hexRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return None
	}
	r, _ := strconv.ParseUint(m[1], 16, 8)
	g, _ := strconv.ParseUint(m[2], 16, 8)
	b, _ := strconv.ParseUint(m[3], 16, 8)
	return Color{int(r), int(g), int(b), 1}
}

// FromRGBString parses "rgb(r, g, b)". Alpha is 1. Returns None on
// malformed input or out-of-range components.
func FromRGBString(s string) Color {
	m := rgbRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return None
	}
	r, _ := strconv.Atoi(m[1])
	g, _ := strconv.Atoi(m[2])
	b, _ := strconv.Atoi(m[3])
	if r > 255 || g > 255 || b > 255 {
		return None
	}
	return Color{r, g, b, 1}
}

// FromNormalizedRGBArray builds a color from [r, g, b] components in
// [0, 1]. Alpha is 1.
func FromNormalizedRGBArray(rgb [3]float64) Color {
	return Color{
		R: int(math.Round(clampFloat(rgb[0]) * 255)),
		G: int(math.Round(clampFloat(rgb[1]) * 255)),
		B: int(math.Round(clampFloat(rgb[2]) * 255)),
		A: 1,
	}
}

// Object is the plain serialized form of a Color.
type Object struct {
	R int     `json:"r" yaml:"r"`
	G int     `json:"g" yaml:"g"`
	B int     `json:"b" yaml:"b"`
	A float64 `json:"a" yaml:"a"`
}

// FromObject builds a color from its serialized form. Alpha is taken as
// is, so FromObject(c.ToObject()) == c for every valid color.
func FromObject(o Object) Color {
	return New(o.R, o.G, o.B, o.A)
}

// FromRGBObject builds a color from the {r,g,b} record shape used by the
// analysis backend, where a missing alpha means opaque.
func FromRGBObject(o Object) Color {
	if o.A == 0 {
		o.A = 1
	}
	return New(o.R, o.G, o.B, o.A)
}

// ToObject returns the plain serialized form. Round-trips exactly through
// FromObject.
func (c Color) ToObject() Object {
	return Object{R: c.R, G: c.G, B: c.B, A: c.A}
}

// ToHex formats as "#rrggbb". Alpha is not represented.
func (c Color) ToHex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ToRGBString formats as "rgb(r, g, b)".
func (c Color) ToRGBString() string {
	return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
}

// ToRGBAString formats as "rgba(r, g, b, a)".
func (c Color) ToRGBAString() string {
	return fmt.Sprintf("rgba(%d, %d, %d, %s)",
		c.R, c.G, c.B, strconv.FormatFloat(c.A, 'f', -1, 64))
}

// ToRGBA converts to the stdlib color type used by the rasterizer.
func (c Color) ToRGBA() color.RGBA {
	return color.RGBA{
		R: uint8(c.R),
		G: uint8(c.G),
		B: uint8(c.B),
		A: uint8(math.Round(c.A * 255)),
	}
}

// WithAlpha returns a copy with alpha a.
func (c Color) WithAlpha(a float64) Color {
	c.A = clampFloat(a)
	return c
}

// WithRed returns a copy with red r.
func (c Color) WithRed(r int) Color {
	c.R = clampInt(r)
	return c
}

// WithGreen returns a copy with green g.
func (c Color) WithGreen(g int) Color {
	c.G = clampInt(g)
	return c
}

// WithBlue returns a copy with blue b.
func (c Color) WithBlue(b int) Color {
	c.B = clampInt(b)
	return c
}
