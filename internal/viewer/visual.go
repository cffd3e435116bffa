package viewer

import "github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"

// GeometryKind identifies the shape of a visual.
type GeometryKind uint8

const (
	// GeometryPoint is a centroid marker.
	GeometryPoint GeometryKind = iota
	// GeometryPolygon is a closed outline.
	GeometryPolygon
)

// String returns a human-readable name for the geometry kind.
func (k GeometryKind) String() string {
	switch k {
	case GeometryPoint:
		return "point"
	case GeometryPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Point is a map-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Visual is a single renderable shape. It is owned by exactly one layer
// and destroyed with it. Fill and Stroke default to color.None, meaning
// the owning layer's layer-wide color applies; a tool result may override
// them per visual.
type Visual struct {
	ObjectID int64
	Kind     GeometryKind
	Center   Point   // GeometryPoint
	Outline  []Point // GeometryPolygon
	Fill     color.Color
	Stroke   color.Color
}

// NewPointVisual builds a centroid marker for an object.
func NewPointVisual(objectID int64, at Point) *Visual {
	return &Visual{ObjectID: objectID, Kind: GeometryPoint, Center: at, Fill: color.None, Stroke: color.None}
}

// NewPolygonVisual builds an outline visual for an object.
func NewPolygonVisual(objectID int64, outline []Point) *Visual {
	return &Visual{ObjectID: objectID, Kind: GeometryPolygon, Outline: outline, Fill: color.None, Stroke: color.None}
}

// EffectiveFill resolves the fill color against the layer-wide default.
func (v *Visual) EffectiveFill(layerDefault color.Color) color.Color {
	if v.Fill.Valid() {
		return v.Fill
	}
	return layerDefault
}

// EffectiveStroke resolves the stroke color against the layer-wide default.
func (v *Visual) EffectiveStroke(layerDefault color.Color) color.Color {
	if v.Stroke.Valid() {
		return v.Stroke
	}
	return layerDefault
}
