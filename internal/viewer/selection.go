package viewer

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// Selection is a named, colored, user-curated set of object ids used as
// ground truth for analysis. Ids are unique per object type.
type Selection struct {
	ID         int
	Name       string
	ObjectType string
	Color      color.Color
	Active     bool

	members map[int64]struct{}
}

// Size returns the number of member objects.
func (s *Selection) Size() int {
	return len(s.members)
}

// Contains reports membership of an object id.
func (s *Selection) Contains(id int64) bool {
	_, ok := s.members[id]
	return ok
}

// MemberIDs returns the member ids in ascending order. Insertion order is
// not meaningful for selections.
func (s *Selection) MemberIDs() []int64 {
	out := make([]int64, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MapObjectSelectionHandler owns the selections of one viewer, their
// activation rules and the marker-pick mode. At most one selection is
// active across the whole handler at any time, regardless of object type.
type MapObjectSelectionHandler struct {
	mu sync.Mutex

	activeObjectType string
	byType           map[string][]*Selection
	active           *Selection
	markerMode       bool

	palettes map[string]*color.SelectionPalette
	nextID   map[string]int

	bus *Bus
	log *zap.Logger

	viewerID string
}

// NewSelectionHandler creates an empty handler publishing on bus.
func NewSelectionHandler(viewerID string, bus *Bus, log *zap.Logger) *MapObjectSelectionHandler {
	if bus == nil {
		bus = NewBus()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MapObjectSelectionHandler{
		byType:   make(map[string][]*Selection),
		palettes: make(map[string]*color.SelectionPalette),
		nextID:   make(map[string]int),
		bus:      bus,
		log:      log,
		viewerID: viewerID,
	}
}

// ActiveObjectType returns the object type picks currently apply to.
func (h *MapObjectSelectionHandler) ActiveObjectType() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.activeObjectType
}

// SetActiveObjectType switches the object type picks apply to. An active
// selection of a different type is deactivated so the active selection
// always belongs to the active object type.
func (h *MapObjectSelectionHandler) SetActiveObjectType(objectType string) {
	h.mu.Lock()
	deactivated := false
	if h.active != nil && h.active.ObjectType != objectType {
		h.active.Active = false
		h.active = nil
		deactivated = true
	}
	h.activeObjectType = objectType
	h.mu.Unlock()

	if deactivated {
		h.publishChanged()
	}
}

// AddNewSelection creates an empty selection for objectType with an
// auto-chosen color distinct (round-robin over a fixed palette) from the
// existing selections of that type.
func (h *MapObjectSelectionHandler) AddNewSelection(objectType string) *Selection {
	h.mu.Lock()
	p := h.palettes[objectType]
	if p == nil {
		p = &color.SelectionPalette{}
		h.palettes[objectType] = p
	}
	h.nextID[objectType]++
	sel := &Selection{
		ID:         h.nextID[objectType],
		Name:       fmt.Sprintf("selection #%d", h.nextID[objectType]),
		ObjectType: objectType,
		Color:      p.Next(),
		members:    make(map[int64]struct{}),
	}
	h.byType[objectType] = append(h.byType[objectType], sel)
	if h.activeObjectType == "" {
		h.activeObjectType = objectType
	}
	h.mu.Unlock()

	h.publishChanged()
	return sel
}

// RestoreSelection rebuilds a selection from persisted state, keeping its
// original id, color and members.
func (h *MapObjectSelectionHandler) RestoreSelection(objectType string, id int, name string, c color.Color, members []int64) *Selection {
	h.mu.Lock()
	if h.palettes[objectType] == nil {
		h.palettes[objectType] = &color.SelectionPalette{}
	}
	// Advance the palette cursor past the restored entry so the next new
	// selection does not reuse a restored color.
	h.palettes[objectType].Next()
	if id > h.nextID[objectType] {
		h.nextID[objectType] = id
	}
	sel := &Selection{
		ID:         id,
		Name:       name,
		ObjectType: objectType,
		Color:      c,
		members:    make(map[int64]struct{}, len(members)),
	}
	for _, m := range members {
		sel.members[m] = struct{}{}
	}
	h.byType[objectType] = append(h.byType[objectType], sel)
	if h.activeObjectType == "" {
		h.activeObjectType = objectType
	}
	h.mu.Unlock()

	h.publishChanged()
	return sel
}

// Reset drops every selection and resets the palette and id counters.
// Marker mode is left untouched. Used when a persisted snapshot replaces
// the live selection state.
func (h *MapObjectSelectionHandler) Reset() {
	h.mu.Lock()
	h.byType = make(map[string][]*Selection)
	h.palettes = make(map[string]*color.SelectionPalette)
	h.nextID = make(map[string]int)
	h.active = nil
	h.activeObjectType = ""
	h.mu.Unlock()

	h.publishChanged()
}

// RemoveSelection destroys the selection. If it is the active one the
// active pointer is cleared first so it can never dangle.
func (h *MapObjectSelectionHandler) RemoveSelection(sel *Selection) {
	h.mu.Lock()
	if h.active == sel {
		h.active = nil
		sel.Active = false
	}
	bucket := h.byType[sel.ObjectType]
	for i, s := range bucket {
		if s == sel {
			h.byType[sel.ObjectType] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	h.mu.Unlock()

	h.publishChanged()
}

// ToggleActiveSelection activates sel, implicitly deactivating whatever
// was active before; if sel is already active it is deactivated.
// Exclusivity holds by construction, there is no "deactivate all" pass.
func (h *MapObjectSelectionHandler) ToggleActiveSelection(sel *Selection) {
	h.mu.Lock()
	if h.active == sel {
		sel.Active = false
		h.active = nil
	} else {
		if h.active != nil {
			h.active.Active = false
		}
		sel.Active = true
		h.active = sel
		h.activeObjectType = sel.ObjectType
	}
	h.mu.Unlock()

	h.publishChanged()
}

// ActiveSelection returns the single active selection, or nil.
func (h *MapObjectSelectionHandler) ActiveSelection() *Selection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// ActivateMarkerSelectionMode enables marker-pick mode.
func (h *MapObjectSelectionHandler) ActivateMarkerSelectionMode() {
	h.mu.Lock()
	h.markerMode = true
	h.mu.Unlock()
}

// DeactivateMarkerSelectionMode disables marker-pick mode.
func (h *MapObjectSelectionHandler) DeactivateMarkerSelectionMode() {
	h.mu.Lock()
	h.markerMode = false
	h.mu.Unlock()
}

// MarkerModeActive reports whether picks are currently consumed.
func (h *MapObjectSelectionHandler) MarkerModeActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.markerMode
}

// Pick delivers a map pick of an object id. While marker mode is active
// the id toggles in and out of the active selection's members; without an
// active selection (or outside marker mode) the pick is a logged no-op.
// Reports whether membership changed.
func (h *MapObjectSelectionHandler) Pick(objectID int64) bool {
	h.mu.Lock()
	if !h.markerMode {
		h.mu.Unlock()
		h.log.Debug("pick outside marker mode ignored", zap.Int64("object", objectID))
		return false
	}
	if h.active == nil {
		h.mu.Unlock()
		h.log.Debug("pick with no active selection ignored", zap.Int64("object", objectID))
		return false
	}
	if _, ok := h.active.members[objectID]; ok {
		delete(h.active.members, objectID)
	} else {
		h.active.members[objectID] = struct{}{}
	}
	h.mu.Unlock()

	h.publishChanged()
	return true
}

// Register adds object ids in bulk to sel (e.g. from a tool-config
// widget), skipping ids already present.
func (h *MapObjectSelectionHandler) Register(sel *Selection, ids []int64) {
	h.mu.Lock()
	for _, id := range ids {
		sel.members[id] = struct{}{}
	}
	h.mu.Unlock()

	h.publishChanged()
}

// Clear empties sel's members without destroying the selection.
func (h *MapObjectSelectionHandler) Clear(sel *Selection) {
	h.mu.Lock()
	sel.members = make(map[int64]struct{})
	h.mu.Unlock()

	h.publishChanged()
}

// SelectionsForType returns the live list for objectType. Callers must
// not mutate it; mutation goes exclusively through the handler.
func (h *MapObjectSelectionHandler) SelectionsForType(objectType string) []*Selection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.byType[objectType]
}

// Selection returns a selection of objectType by id, or
// ErrSelectionNotFound.
func (h *MapObjectSelectionHandler) Selection(objectType string, id int) (*Selection, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.byType[objectType] {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%d", ErrSelectionNotFound, objectType, id)
}

// ObjectTypes returns the object types that have selections, sorted.
func (h *MapObjectSelectionHandler) ObjectTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.byType))
	for t := range h.byType {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (h *MapObjectSelectionHandler) publishChanged() {
	h.bus.Publish(Event{Topic: EventSelectionChanged, ViewerID: h.viewerID})
}
