package colormap

import (
	stdcolor "image/color"
	"testing"

	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

func TestTintEndpoints(t *testing.T) {
	t.Parallel()

	ramp := Tint(color.Red)

	c0, ok := ramp.At(0).(stdcolor.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (stdcolor.RGBA{R: 0, G: 0, B: 0, A: 255}) {
		t.Fatalf("unexpected ramp.At(0): %#v", c0)
	}

	c1, ok := ramp.At(1).(stdcolor.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=1")
	}
	if c1 != (stdcolor.RGBA{R: 255, G: 0, B: 0, A: 255}) {
		t.Fatalf("unexpected ramp.At(1): %#v", c1)
	}
}

func TestTintMonotonic(t *testing.T) {
	t.Parallel()

	ramp := Tint(color.Green)
	prev := uint8(0)
	for i := 0; i <= 10; i++ {
		c := ramp.At(float64(i) / 10).(stdcolor.RGBA)
		if c.G < prev {
			t.Fatalf("ramp not monotonic at t=%v: %d < %d", float64(i)/10, c.G, prev)
		}
		prev = c.G
	}
}

func TestCategoricalWraps(t *testing.T) {
	t.Parallel()

	n := color.PaletteSize()
	if Categorical.AtIndex(0) != Categorical.AtIndex(n) {
		t.Errorf("expected AtIndex to wrap at %d", n)
	}
	if Categorical.AtIndex(0) == Categorical.AtIndex(1) {
		t.Errorf("expected adjacent class colors to differ")
	}
}
