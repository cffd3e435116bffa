package viewer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/tools"
	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// MapObject is one segmentation object known to the viewer: a detected
// entity with a centroid and, when available, an outline.
type MapObject struct {
	ID       int64   `json:"id"`
	Centroid Point   `json:"centroid"`
	Outline  []Point `json:"outline,omitempty"`
}

// Viewer binds one experiment to one viewport, one selection handler and
// the set of available tools and their sessions. All engine state hangs
// off the viewer and dies with it.
type Viewer struct {
	ID         string
	Experiment string

	Bus        *Bus
	Viewport   *Viewport
	Selections *MapObjectSelectionHandler

	catalog *tools.Catalog
	client  ToolClient
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*ToolSession // keyed by tool id
	results  map[string]*ToolResult
	objects  map[string]map[int64]MapObject // object type -> id -> object
}

// New creates a viewer for an experiment.
func New(experiment string, catalog *tools.Catalog, client ToolClient, log *zap.Logger) *Viewer {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	bus := NewBus()
	return &Viewer{
		ID:         id,
		Experiment: experiment,
		Bus:        bus,
		Viewport:   NewViewport(id, bus, log),
		Selections: NewSelectionHandler(id, bus, log),
		catalog:    catalog,
		client:     client,
		log:        log.With(zap.String("viewer", id)),
		sessions:   make(map[string]*ToolSession),
		results:    make(map[string]*ToolResult),
		objects:    make(map[string]map[int64]MapObject),
	}
}

// RegisterObjects loads segmentation objects of one type into the
// viewer's object registry. Tool responses resolve ids against it.
func (v *Viewer) RegisterObjects(objectType string, objs []MapObject) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m := v.objects[objectType]
	if m == nil {
		m = make(map[int64]MapObject, len(objs))
		v.objects[objectType] = m
	}
	for _, o := range objs {
		m[o.ID] = o
	}
}

// ObjectCount returns how many objects of the type are registered.
func (v *Viewer) ObjectCount(objectType string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.objects[objectType])
}

// EachObject calls fn for every registered object of the type, in
// ascending id order.
func (v *Viewer) EachObject(objectType string, fn func(MapObject)) {
	v.mu.Lock()
	ids := make([]int64, 0, len(v.objects[objectType]))
	for id := range v.objects[objectType] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	objs := make([]MapObject, 0, len(ids))
	for _, id := range ids {
		objs = append(objs, v.objects[objectType][id])
	}
	v.mu.Unlock()

	for _, o := range objs {
		fn(o)
	}
}

// Tools returns the tool catalog entries available to this viewer.
func (v *Viewer) Tools() []tools.Tool {
	return v.catalog.Tools()
}

// Session returns the session for toolID, creating it on first use. The
// same session is reused until DiscardSession.
func (v *Viewer) Session(toolID string) (*ToolSession, error) {
	t, ok := v.catalog.Get(toolID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, toolID)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.sessions[toolID]; ok {
		return s, nil
	}
	s := newToolSession(t)
	v.sessions[toolID] = s
	v.log.Info("tool session created",
		zap.String("tool", toolID), zap.String("session", s.UUID))
	return s, nil
}

// SessionByUUID resolves a session by its uuid.
func (v *Viewer) SessionByUUID(id string) (*ToolSession, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range v.sessions {
		if s.UUID == id {
			return s, true
		}
	}
	return nil, false
}

// DiscardSession drops the session for toolID; the next open allocates a
// fresh one. Results produced by the session stay attached.
func (v *Viewer) DiscardSession(toolID string) {
	v.mu.Lock()
	delete(v.sessions, toolID)
	v.mu.Unlock()
}

// SubmitToolRequest transmits req on the session and returns a future
// that settles with the attached result or an error. A second submit
// while the session is running fails immediately with ErrSessionBusy.
// The toolRequestSent and toolRequestDone notifications bound the
// running indicator.
func (v *Viewer) SubmitToolRequest(ctx context.Context, s *ToolSession, req tools.Request) (<-chan ToolOutcome, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	req.SessionUUID = s.UUID
	req.ToolID = s.Tool.ID

	v.Bus.Publish(Event{Topic: EventToolRequestSent, ViewerID: v.ID, Data: s.UUID})

	out := make(chan ToolOutcome, 1)
	go func() {
		resp, err := v.client.Send(ctx, req)

		var result *ToolResult
		if err == nil {
			result, err = v.attachResult(s, req.ChosenObjectType, resp)
		}

		s.end()
		v.Bus.Publish(Event{Topic: EventToolRequestDone, ViewerID: v.ID, Data: s.UUID})

		if err != nil {
			v.log.Warn("tool request failed",
				zap.String("tool", s.Tool.ID), zap.Error(err))
		}
		out <- ToolOutcome{Result: result, Err: err}
	}()
	return out, nil
}

// attachResult converts a response into a result layer of colored
// visuals and attaches it to the viewport. Response ids that do not
// resolve in the object registry are skipped, not fatal.
func (v *Viewer) attachResult(s *ToolSession, objectType string, resp *tools.Response) (*ToolResult, error) {
	if objectType == "" {
		objectType = v.Selections.ActiveObjectType()
	}

	resultID := uuid.NewString()
	layer := NewResultLayer("result-" + resultID)

	var legend []LegendEntry
	skipped := 0

	v.mu.Lock()
	registry := v.objects[objectType]
	for _, class := range resp.Classes {
		c := color.FromRGBObject(class.Color)
		resolved := 0
		for _, id := range class.CellIDs {
			obj, ok := registry[id]
			if !ok {
				skipped++
				continue
			}
			var vis *Visual
			if len(obj.Outline) > 0 {
				vis = NewPolygonVisual(id, obj.Outline)
			} else {
				vis = NewPointVisual(id, obj.Centroid)
			}
			vis.Fill = c
			vis.Stroke = c
			layer.AddVisual(vis)
			resolved++
		}
		legend = append(legend, LegendEntry{Label: class.Label, Color: c, Count: resolved})
	}
	v.mu.Unlock()

	if skipped > 0 {
		v.log.Info("tool response referenced unknown objects",
			zap.String("tool", s.Tool.ID),
			zap.String("object_type", objectType),
			zap.Int("skipped", skipped))
	}

	if err := v.Viewport.AddLayer(layer); err != nil {
		return nil, err
	}

	name := resp.Name
	if name == "" {
		name = s.Tool.Name
	}
	result := &ToolResult{
		ID:           resultID,
		Name:         name,
		SubmissionID: resp.SubmissionID,
		SessionUUID:  s.UUID,
		LayerID:      layer.ID,
		Legend:       legend,
		visible:      true,
	}

	v.mu.Lock()
	v.results[resultID] = result
	v.mu.Unlock()

	v.Bus.Publish(Event{Topic: EventResultAttached, ViewerID: v.ID, Data: resultID})
	return result, nil
}

// Result returns a tool result by id.
func (v *Viewer) Result(id string) (*ToolResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	return r, nil
}

// Results returns all tool results, ordered by id.
func (v *Viewer) Results() []*ToolResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*ToolResult, 0, len(v.results))
	for _, r := range v.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetResultVisible toggles the result's layer, legend and plots together.
// The result flag is the single source of truth; the layer's own flag
// follows it.
func (v *Viewer) SetResultVisible(id string, visible bool) error {
	v.mu.Lock()
	r, ok := v.results[id]
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	r.visible = visible
	for i := range r.Plots {
		r.Plots[i].Visible = visible
	}
	layerID := r.LayerID
	v.mu.Unlock()

	return v.Viewport.SetVisible(layerID, visible)
}

// DeleteResult removes the result's layer from the viewport and destroys
// its legend and plots. The originating session stays alive.
func (v *Viewer) DeleteResult(id string) error {
	v.mu.Lock()
	r, ok := v.results[id]
	if !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	delete(v.results, id)
	layerID := r.LayerID
	r.Legend = nil
	r.Plots = nil
	v.mu.Unlock()

	v.Viewport.RemoveLayer(layerID)
	return nil
}
