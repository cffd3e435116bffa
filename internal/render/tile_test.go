package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/viewer"
	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

func TestRenderVisualTile(t *testing.T) {
	t.Parallel()

	r := NewTileRenderer(Config{TileSize: 64})

	l := viewer.NewSegmentationLayer("cells", viewer.SegmentationParams{
		ObjectType: "cells",
		Fill:       color.Red,
		Stroke:     color.White,
	})
	l.AddVisual(viewer.NewPointVisual(1, viewer.Point{X: 32, Y: 32}))
	l.AddVisual(viewer.NewPolygonVisual(2, []viewer.Point{
		{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 20}, {X: 10, Y: 20},
	}))

	data, err := r.RenderVisualTile(l, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("tile is not a valid png: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Fatalf("unexpected tile size: %v", img.Bounds())
	}

	// The marker center must be opaque red-ish, a far corner transparent.
	_, _, _, a := img.At(32, 32).RGBA()
	if a == 0 {
		t.Errorf("expected painted pixel at marker center")
	}
	_, _, _, a = img.At(63, 63).RGBA()
	if a != 0 {
		t.Errorf("expected transparent pixel away from visuals")
	}
}

func TestRenderVisualTileOffTile(t *testing.T) {
	t.Parallel()

	r := NewTileRenderer(Config{TileSize: 64})
	l := viewer.NewResultLayer("result-1")
	v := viewer.NewPointVisual(1, viewer.Point{X: 1000, Y: 1000})
	v.Fill = color.Green
	l.AddVisual(v)

	data, err := r.RenderVisualTile(l, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	for x := 0; x < 64; x += 8 {
		for y := 0; y < 64; y += 8 {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				t.Fatalf("expected empty tile, painted pixel at (%d,%d)", x, y)
			}
		}
	}
}

func TestChannelComposite(t *testing.T) {
	t.Parallel()

	vp := viewer.NewViewport("v1", viewer.NewBus(), nil)
	if err := vp.AddLayer(viewer.NewChannelLayer("dapi", viewer.ChannelParams{
		Channel: "dapi", MaxIntensity: 4096, Min: 0.2, Max: 0.8, Tint: color.Blue,
	})); err != nil {
		t.Fatal(err)
	}
	if err := vp.AddLayer(viewer.NewChannelLayer("gfp-t1", viewer.ChannelParams{
		Channel: "gfp", Tpoint: 1, MaxIntensity: 4096, Tint: color.Green,
	})); err != nil {
		t.Fatal(err)
	}

	paints := ChannelComposite(vp)
	if len(paints) != 1 {
		t.Fatalf("expected 1 contributing channel, got %d", len(paints))
	}
	if paints[0].Channel != "dapi" || paints[0].Min != 0.2 {
		t.Fatalf("unexpected paint params: %+v", paints[0])
	}
}

func TestChannelPixel(t *testing.T) {
	t.Parallel()

	p := viewer.ChannelParams{
		MaxIntensity: 4096,
		Min:          0.2,
		Max:          0.8,
		Tint:         color.Red,
	}
	// Transformed intensity 0.5 through a red tint at full opacity.
	c := ChannelPixel(p, 1, 0.5*4096)
	if c.G != 0 || c.B != 0 {
		t.Fatalf("red tint must not produce green/blue: %+v", c)
	}
	if c.R == 0 || c.R == 255 {
		t.Fatalf("expected mid-ramp red, got %d", c.R)
	}

	// Zero opacity contributes nothing.
	c = ChannelPixel(p, 0, 0.5*4096)
	if c.R != 0 {
		t.Fatalf("expected zero contribution at zero opacity, got %+v", c)
	}
}
