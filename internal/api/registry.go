package api

import (
	"sync"

	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/tools"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/viewer"
)

// ViewerInfo contains summary information about a viewer for API responses.
type ViewerInfo struct {
	ID         string `json:"id"`
	Experiment string `json:"experiment"`
	Layers     int    `json:"layers"`
}

// ViewerRegistry holds all live viewers. Each viewer carries a revision
// counter that advances on every state mutation; tile cache keys embed
// it so stale tiles fall out naturally.
type ViewerRegistry struct {
	mu        sync.Mutex
	viewers   map[string]*viewer.Viewer
	revisions map[string]uint64
	order     []string

	catalog *tools.Catalog
	client  viewer.ToolClient
	log     *zap.Logger
}

// NewViewerRegistry creates an empty registry.
func NewViewerRegistry(catalog *tools.Catalog, client viewer.ToolClient, log *zap.Logger) *ViewerRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &ViewerRegistry{
		viewers:   make(map[string]*viewer.Viewer),
		revisions: make(map[string]uint64),
		catalog:   catalog,
		client:    client,
		log:       log,
	}
}

// Create makes a new viewer for an experiment and registers it.
func (r *ViewerRegistry) Create(experiment string) *viewer.Viewer {
	v := viewer.New(experiment, r.catalog, r.client, r.log)

	r.mu.Lock()
	r.viewers[v.ID] = v
	r.revisions[v.ID] = 0
	r.order = append(r.order, v.ID)
	r.mu.Unlock()

	// Result layers are attached from the submit goroutine, outside any
	// handler, so the revision bump has to ride the event bus.
	v.Bus.Subscribe(viewer.EventResultAttached, func(viewer.Event) {
		r.Bump(v.ID)
	})
	return v
}

// Get returns the viewer for an ID, or nil if not found.
func (r *ViewerRegistry) Get(id string) *viewer.Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewers[id]
}

// Delete removes a viewer and all its state.
func (r *ViewerRegistry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.viewers[id]; !ok {
		return false
	}
	delete(r.viewers, id)
	delete(r.revisions, id)
	for i, vid := range r.order {
		if vid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Viewers returns summary info for all viewers in creation order.
func (r *ViewerRegistry) Viewers() []ViewerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	infos := make([]ViewerInfo, 0, len(r.order))
	for _, id := range r.order {
		v := r.viewers[id]
		infos = append(infos, ViewerInfo{
			ID:         v.ID,
			Experiment: v.Experiment,
			Layers:     len(v.Viewport.Layers()),
		})
	}
	return infos
}

// Bump advances a viewer's revision counter.
func (r *ViewerRegistry) Bump(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.revisions[id]; ok {
		r.revisions[id]++
	}
}

// Revision returns the current revision of a viewer.
func (r *ViewerRegistry) Revision(id string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revisions[id]
}
