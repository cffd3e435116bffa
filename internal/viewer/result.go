package viewer

import (
	"encoding/json"

	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// LegendEntry maps one class label to its color and the number of
// objects the class resolved to.
type LegendEntry struct {
	Label string      `json:"label"`
	Color color.Color `json:"color"`
	Count int         `json:"count"`
}

// Plot is an opaque plot artifact returned by a tool, passed through to
// the consuming widget.
type Plot struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data,omitempty"`
	Visible bool            `json:"visible"`
}

// ToolResult is the renderable artifact of a completed tool interaction.
// It is owned by the viewer; deleting it detaches and destroys its layer,
// legend and plots but leaves the originating session alive.
type ToolResult struct {
	ID           string
	Name         string
	SubmissionID string
	SessionUUID  string
	LayerID      string
	Legend       []LegendEntry
	Plots        []Plot

	// visible is the single source of truth for "is this result
	// currently shown"; the layer's own flag follows it.
	visible bool
}

// Visible reports whether the result is currently shown.
func (r *ToolResult) Visible() bool {
	return r.visible
}
