// Package render rasterizes segmentation and result layer visuals into
// PNG tiles and computes the channel-layer paint parameterization handed
// to the external tile source.
package render

import (
	"bytes"
	"image"
	stdcolor "image/color"
	"image/png"
	"math"
	"sync"

	"github.com/fogleman/gg"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/viewer"
	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/colormap"
)

// Config contains renderer configuration.
type Config struct {
	TileSize int
}

// TileRenderer renders layer visuals into tiles.
type TileRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewTileRenderer creates a new tile renderer.
func NewTileRenderer(cfg Config) *TileRenderer {
	return &TileRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.TileSize, cfg.TileSize)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// markerRadius is the pixel radius of a centroid marker.
const markerRadius = 4.0

// RenderVisualTile renders the visuals of a segmentation or result layer
// into tile (z, x, y). z is the pyramid downsample level: level 0 is full
// resolution, each level halves it. Layer opacity scales every visual's
// alpha.
func (r *TileRenderer) RenderVisualTile(l *viewer.Layer, z, x, y int) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(stdcolor.Transparent)
	dc.Clear()

	scale := math.Pow(2, float64(z))
	tileSize := float64(r.config.TileSize)
	originX := float64(x) * tileSize
	originY := float64(y) * tileSize

	var layerFill, layerStroke color.Color
	layerFill, layerStroke = color.None, color.None
	if l.Segmentation != nil {
		layerFill = l.Segmentation.Fill
		layerStroke = l.Segmentation.Stroke
	}

	l.EachVisual(func(v *viewer.Visual) {
		switch v.Kind {
		case viewer.GeometryPoint:
			px := v.Center.X/scale - originX
			py := v.Center.Y/scale - originY
			if px < -markerRadius || px >= tileSize+markerRadius ||
				py < -markerRadius || py >= tileSize+markerRadius {
				return
			}
			if fill := v.EffectiveFill(layerFill); fill.Valid() {
				dc.SetColor(withOpacity(fill, l.Opacity))
				dc.DrawCircle(px, py, markerRadius)
				dc.Fill()
			}
		case viewer.GeometryPolygon:
			if len(v.Outline) < 3 {
				return
			}
			dc.NewSubPath()
			for i, p := range v.Outline {
				px := p.X/scale - originX
				py := p.Y/scale - originY
				if i == 0 {
					dc.MoveTo(px, py)
				} else {
					dc.LineTo(px, py)
				}
			}
			dc.ClosePath()
			if fill := v.EffectiveFill(layerFill); fill.Valid() {
				dc.SetColor(withOpacity(fill, l.Opacity))
				dc.FillPreserve()
			}
			if stroke := v.EffectiveStroke(layerStroke); stroke.Valid() {
				dc.SetColor(withOpacity(stroke, l.Opacity))
				dc.SetLineWidth(1)
				dc.Stroke()
			} else {
				dc.ClearPath()
			}
		}
	})

	return r.encodeContext(dc)
}

func withOpacity(c color.Color, opacity float64) stdcolor.Color {
	return c.WithAlpha(c.A * opacity).ToRGBA()
}

func (r *TileRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	// Use fast PNG encoder
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// CreateEmptyTile creates a fully transparent tile.
func (r *TileRenderer) CreateEmptyTile() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, r.config.TileSize, r.config.TileSize))

	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ChannelPaint is the per-layer parameterization the external tile source
// needs to paint one channel layer's pixel contribution.
type ChannelPaint struct {
	LayerID    string       `json:"layer_id"`
	Channel    string       `json:"channel"`
	Tpoint     int          `json:"tpoint"`
	Zplane     int          `json:"zplane"`
	Min        float64      `json:"min"`
	Max        float64      `json:"max"`
	Brightness float64      `json:"brightness"`
	Tint       color.Object `json:"tint"`
	Opacity    float64      `json:"opacity"`
	Additive   bool         `json:"additive"`
}

// ChannelComposite returns, back-to-front, the paint parameters of every
// channel layer contributing to the viewport's composite at its current
// plane.
func ChannelComposite(vp *viewer.Viewport) []ChannelPaint {
	var out []ChannelPaint
	for _, l := range vp.VisibleLayers() {
		if l.Channel == nil {
			continue
		}
		p := l.Channel
		out = append(out, ChannelPaint{
			LayerID:    l.ID,
			Channel:    p.Channel,
			Tpoint:     p.Tpoint,
			Zplane:     p.Zplane,
			Min:        p.Min,
			Max:        p.Max,
			Brightness: p.Brightness,
			Tint:       p.Tint.ToObject(),
			Opacity:    l.Opacity,
			Additive:   p.Additive,
		})
	}
	return out
}

// ChannelPixel applies a channel layer's full transform to one raw
// intensity: windowing, brightness, tint ramp, opacity.
func ChannelPixel(p viewer.ChannelParams, opacity float64, raw float64) stdcolor.RGBA {
	t := p.TransformIntensity(raw)
	c := colormap.Tint(p.Tint).At(t).(stdcolor.RGBA)
	return stdcolor.RGBA{
		R: uint8(float64(c.R) * opacity),
		G: uint8(float64(c.G) * opacity),
		B: uint8(float64(c.B) * opacity),
		A: 255,
	}
}
