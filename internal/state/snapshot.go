// Package state serializes viewport and selection state so an open view
// can be persisted and restored. Snapshots are gzip-compressed at rest.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/viewer"
	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// ChannelLayerOption is the persisted parameterization of one channel
// layer.
type ChannelLayerOption struct {
	LayerID    string       `json:"layer_id"`
	Channel    string       `json:"channel"`
	Tpoint     int          `json:"tpoint"`
	Zplane     int          `json:"zplane"`
	Min        float64      `json:"min"`
	Max        float64      `json:"max"`
	Brightness float64      `json:"brightness"`
	Tint       color.Object `json:"tint"`
	Opacity    float64      `json:"opacity"`
	Visible    bool         `json:"visible"`
	Additive   bool         `json:"additive"`
}

// MapState is the persisted camera state.
type MapState struct {
	Zoom       float64      `json:"zoom"`
	Center     viewer.Point `json:"center"`
	Resolution float64      `json:"resolution"`
	Rotation   float64      `json:"rotation"`
}

// SelectionRecord is the persisted form of one selection.
type SelectionRecord struct {
	ID         int          `json:"id"`
	Name       string       `json:"name"`
	ObjectType string       `json:"object_type"`
	Color      color.Object `json:"color"`
	MemberIDs  []int64      `json:"member_ids"`
}

// ActiveSelectionRef identifies the active selection, if any.
type ActiveSelectionRef struct {
	ObjectType string `json:"object_type"`
	ID         int    `json:"id"`
}

// SelectionHandlerState is the persisted form of the selection handler.
type SelectionHandlerState struct {
	Selections      []SelectionRecord   `json:"selections"`
	ActiveSelection *ActiveSelectionRef `json:"active_selection_id,omitempty"`
}

// Snapshot is the persisted viewport/selection state of one viewer.
type Snapshot struct {
	ChannelLayerOptions []ChannelLayerOption  `json:"channelLayerOptions"`
	MapState            MapState              `json:"mapState"`
	SelectionHandler    SelectionHandlerState `json:"selectionHandler"`
}

// Capture extracts a snapshot from a live viewer.
func Capture(v *viewer.Viewer) Snapshot {
	var snap Snapshot

	for _, l := range v.Viewport.Layers() {
		if l.Channel == nil {
			continue
		}
		p := l.Channel
		snap.ChannelLayerOptions = append(snap.ChannelLayerOptions, ChannelLayerOption{
			LayerID:    l.ID,
			Channel:    p.Channel,
			Tpoint:     p.Tpoint,
			Zplane:     p.Zplane,
			Min:        p.Min,
			Max:        p.Max,
			Brightness: p.Brightness,
			Tint:       p.Tint.ToObject(),
			Opacity:    l.Opacity,
			Visible:    l.Visible,
			Additive:   p.Additive,
		})
	}

	cam := v.Viewport.Camera()
	snap.MapState = MapState{
		Zoom:       cam.Zoom,
		Center:     cam.Center,
		Resolution: cam.Resolution,
		Rotation:   cam.Rotation,
	}

	active := v.Selections.ActiveSelection()
	for _, objectType := range v.Selections.ObjectTypes() {
		for _, sel := range v.Selections.SelectionsForType(objectType) {
			snap.SelectionHandler.Selections = append(snap.SelectionHandler.Selections, SelectionRecord{
				ID:         sel.ID,
				Name:       sel.Name,
				ObjectType: objectType,
				Color:      sel.Color.ToObject(),
				MemberIDs:  sel.MemberIDs(),
			})
			if sel == active {
				snap.SelectionHandler.ActiveSelection = &ActiveSelectionRef{
					ObjectType: objectType,
					ID:         sel.ID,
				}
			}
		}
	}

	return snap
}

// Restore applies a snapshot to a live viewer. Channel options referring
// to layers the viewer no longer has are skipped.
func Restore(v *viewer.Viewer, snap Snapshot) error {
	for _, opt := range snap.ChannelLayerOptions {
		if _, err := v.Viewport.Layer(opt.LayerID); err != nil {
			continue
		}
		if err := v.Viewport.SetIntensityWindow(opt.LayerID, opt.Min, opt.Max); err != nil {
			return fmt.Errorf("restore layer %s: %w", opt.LayerID, err)
		}
		if err := v.Viewport.SetBrightness(opt.LayerID, opt.Brightness); err != nil {
			return err
		}
		if err := v.Viewport.SetTint(opt.LayerID, color.FromObject(opt.Tint)); err != nil {
			return err
		}
		if err := v.Viewport.SetOpacity(opt.LayerID, opt.Opacity); err != nil {
			return err
		}
		if err := v.Viewport.SetVisible(opt.LayerID, opt.Visible); err != nil {
			return err
		}
	}

	v.Viewport.SetCamera(viewer.Camera{
		Zoom:       snap.MapState.Zoom,
		Center:     snap.MapState.Center,
		Resolution: snap.MapState.Resolution,
		Rotation:   snap.MapState.Rotation,
	})

	// The snapshot replaces the live selection state wholesale; anything
	// already present would otherwise clash with restored ids.
	v.Selections.Reset()
	for _, rec := range snap.SelectionHandler.Selections {
		sel := v.Selections.RestoreSelection(
			rec.ObjectType, rec.ID, rec.Name, color.FromObject(rec.Color), rec.MemberIDs)
		ref := snap.SelectionHandler.ActiveSelection
		if ref != nil && ref.ObjectType == rec.ObjectType && ref.ID == rec.ID {
			v.Selections.ToggleActiveSelection(sel)
		}
	}

	return nil
}

// Encode marshals and gzips a snapshot.
func Encode(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a gzipped snapshot.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
