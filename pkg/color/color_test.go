package color

import "testing"

func TestFromHex(t *testing.T) {
	t.Parallel()

	c := FromHex("#ff0000")
	if c != (Color{255, 0, 0, 1}) {
		t.Fatalf("unexpected color: %#v", c)
	}
	if c != Red {
		t.Errorf("expected Red, got %#v", c)
	}

	t.Run("roundTrip", func(t *testing.T) {
		if got := c.ToHex(); got != "#ff0000" {
			t.Fatalf("expected #ff0000, got %q", got)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, s := range []string{"", "ff0000", "#ff00", "#gg0000", "#ff0000ff"} {
			if got := FromHex(s); got != None {
				t.Errorf("FromHex(%q): expected None, got %#v", s, got)
			}
		}
	})
}

func TestHexRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Color{
		{255, 0, 0, 1},
		{0, 0, 0, 1},
		{255, 255, 255, 1},
		{31, 119, 180, 1},
		{7, 200, 99, 1},
	}
	for _, c := range cases {
		if got := FromHex(c.ToHex()); got != c {
			t.Errorf("round trip failed for %#v: got %#v", c, got)
		}
	}
}

func TestFromRGBString(t *testing.T) {
	t.Parallel()

	c := FromRGBString("rgb(12, 34, 56)")
	if c != (Color{12, 34, 56, 1}) {
		t.Fatalf("unexpected color: %#v", c)
	}
	if got := FromRGBString(c.ToRGBString()); got != c {
		t.Errorf("round trip failed: got %#v", got)
	}
	if got := FromRGBString("rgb(300, 0, 0)"); got != None {
		t.Errorf("expected None for out-of-range, got %#v", got)
	}
	if got := FromRGBString("rgb(1,2)"); got != None {
		t.Errorf("expected None for malformed, got %#v", got)
	}
}

func TestFromNormalizedRGBArray(t *testing.T) {
	t.Parallel()

	c := FromNormalizedRGBArray([3]float64{1, 0, 0.5})
	if c != (Color{255, 0, 128, 1}) {
		t.Fatalf("unexpected color: %#v", c)
	}
}

func TestFromObject(t *testing.T) {
	t.Parallel()

	c := FromObject(Object{R: 10, G: 20, B: 30, A: 0.5})
	if c != (Color{10, 20, 30, 0.5}) {
		t.Fatalf("unexpected color: %#v", c)
	}
	if got := FromObject(c.ToObject()); got != c {
		t.Errorf("object round trip failed: got %#v", got)
	}

	// Fully transparent colors survive the round trip too.
	clear := New(10, 20, 30, 0)
	if got := FromObject(clear.ToObject()); got != clear {
		t.Errorf("transparent round trip failed: got %#v", got)
	}
}

func TestFromRGBObject(t *testing.T) {
	t.Parallel()

	// The backend's {r,g,b} records carry no alpha; default to opaque.
	if got := FromRGBObject(Object{R: 1, G: 2, B: 3}); got.A != 1 {
		t.Errorf("expected opaque default, got a=%v", got.A)
	}
	if got := FromRGBObject(Object{R: 1, G: 2, B: 3, A: 0.5}); got.A != 0.5 {
		t.Errorf("expected explicit alpha kept, got a=%v", got.A)
	}
}

func TestDerivedColors(t *testing.T) {
	t.Parallel()

	base := Color{10, 20, 30, 1}
	faded := base.WithAlpha(0.25)
	if faded.A != 0.25 || faded.R != 10 {
		t.Fatalf("unexpected derived color: %#v", faded)
	}
	// The original is untouched.
	if base.A != 1 {
		t.Errorf("WithAlpha mutated receiver: %#v", base)
	}
	if got := base.WithRed(300); got.R != 255 {
		t.Errorf("expected clamped red, got %d", got.R)
	}
}

func TestToRGBAString(t *testing.T) {
	t.Parallel()

	c := Color{255, 0, 0, 0.5}
	if got := c.ToRGBAString(); got != "rgba(255, 0, 0, 0.5)" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Red.ToRGBAString(); got != "rgba(255, 0, 0, 1)" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestSelectionPalette(t *testing.T) {
	t.Parallel()

	var p SelectionPalette
	seen := make(map[Color]bool)
	for i := 0; i < PaletteSize(); i++ {
		c := p.Next()
		if seen[c] {
			t.Fatalf("palette repeated color %#v before wrapping", c)
		}
		seen[c] = true
	}
	// Wraps to the first color afterwards.
	if c := p.Next(); !seen[c] {
		t.Errorf("expected wrap-around, got new color %#v", c)
	}
}
