package viewer

import "github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"

// LayerKind identifies the type of a rendering layer.
type LayerKind uint8

const (
	// LayerChannel renders one imaging channel at one (tpoint, zplane)
	// with windowing, brightness and tint parameters.
	LayerChannel LayerKind = iota
	// LayerSegmentation renders per-object outlines for one object type.
	LayerSegmentation
	// LayerResult renders the visuals produced by a tool result.
	LayerResult
)

// String returns a human-readable name for the layer kind.
func (k LayerKind) String() string {
	switch k {
	case LayerChannel:
		return "channel"
	case LayerSegmentation:
		return "segmentation"
	case LayerResult:
		return "result"
	default:
		return "unknown"
	}
}

// ChannelParams holds the per-pixel intensity parameterization of a
// channel layer. The actual paint is delegated to the external tile
// source; these parameters fully determine its output.
type ChannelParams struct {
	Channel      string
	Tpoint       int
	Zplane       int
	MinIntensity int // sensor range lower bound
	MaxIntensity int // sensor range upper bound
	Min          float64
	Max          float64
	Brightness   float64
	Tint         color.Color
	Additive     bool
}

// TransformIntensity maps a raw sensor intensity to a normalized output
// intensity in [0, 1]. Monotonically non-decreasing in raw and clamped
// outside the [Min, Max] window.
func (p ChannelParams) TransformIntensity(raw float64) float64 {
	sensorMax := float64(p.MaxIntensity)
	if sensorMax == 0 {
		return 0
	}
	var v float64
	if p.Max > p.Min {
		v = (raw/sensorMax-p.Min)/(p.Max-p.Min) + p.Brightness
	} else {
		// degenerate window: hard threshold at Min
		if raw/sensorMax >= p.Min {
			v = 1 + p.Brightness
		} else {
			v = p.Brightness
		}
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SegmentationParams holds the layer-wide colors of a segmentation layer.
type SegmentationParams struct {
	ObjectType string
	Fill       color.Color
	Stroke     color.Color
}

// Layer is one unit of the viewport's paint stack. Exactly one of the
// kind-specific fields is set, per Kind; there is no inheritance across
// variants, dispatch is explicit on Kind.
type Layer struct {
	ID      string
	Kind    LayerKind
	Visible bool
	Opacity float64
	ZIndex  int

	Channel      *ChannelParams      // LayerChannel
	Segmentation *SegmentationParams // LayerSegmentation

	// visuals are owned by the layer (segmentation and result kinds)
	// and destroyed when the layer is removed.
	visuals map[int64]*Visual
}

// NewChannelLayer builds a channel layer with default full-range windowing.
func NewChannelLayer(id string, p ChannelParams) *Layer {
	if p.Max == 0 && p.Min == 0 {
		p.Max = 1
	}
	if !p.Tint.Valid() {
		p.Tint = color.White
	}
	return &Layer{ID: id, Kind: LayerChannel, Visible: true, Opacity: 1, Channel: &p}
}

// NewSegmentationLayer builds an empty segmentation layer.
func NewSegmentationLayer(id string, p SegmentationParams) *Layer {
	return &Layer{
		ID:           id,
		Kind:         LayerSegmentation,
		Visible:      true,
		Opacity:      1,
		Segmentation: &p,
		visuals:      make(map[int64]*Visual),
	}
}

// NewResultLayer builds an empty result layer; only tool results produce
// these.
func NewResultLayer(id string) *Layer {
	return &Layer{
		ID:      id,
		Kind:    LayerResult,
		Visible: true,
		Opacity: 1,
		visuals: make(map[int64]*Visual),
	}
}

// AddVisual attaches v to the layer, replacing any visual for the same
// object id.
func (l *Layer) AddVisual(v *Visual) {
	if l.visuals == nil {
		l.visuals = make(map[int64]*Visual)
	}
	l.visuals[v.ObjectID] = v
}

// VisualFor returns the visual for an object id, or nil.
func (l *Layer) VisualFor(objectID int64) *Visual {
	return l.visuals[objectID]
}

// VisualCount returns the number of visuals owned by the layer.
func (l *Layer) VisualCount() int {
	return len(l.visuals)
}

// EachVisual calls fn for every visual. Iteration order is unspecified.
func (l *Layer) EachVisual(fn func(*Visual)) {
	for _, v := range l.visuals {
		fn(v)
	}
}

// destroyVisuals drops all owned visuals. Called on layer removal.
func (l *Layer) destroyVisuals() {
	l.visuals = nil
}

// SetFill sets the layer-wide fill color of a segmentation layer.
// Setting the current color again is a no-op; returns whether anything
// changed.
func (l *Layer) SetFill(c color.Color) bool {
	if l.Segmentation == nil || l.Segmentation.Fill == c {
		return false
	}
	l.Segmentation.Fill = c
	return true
}

// SetStroke sets the layer-wide stroke color of a segmentation layer.
func (l *Layer) SetStroke(c color.Color) bool {
	if l.Segmentation == nil || l.Segmentation.Stroke == c {
		return false
	}
	l.Segmentation.Stroke = c
	return true
}

// matchesPlane reports whether a channel layer belongs to the given
// (tpoint, zplane).
func (l *Layer) matchesPlane(tpoint, zplane int) bool {
	return l.Channel != nil && l.Channel.Tpoint == tpoint && l.Channel.Zplane == zplane
}
