package viewer

import (
	"reflect"
	"testing"

	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

func newTestHandler() *MapObjectSelectionHandler {
	return NewSelectionHandler("v1", NewBus(), nil)
}

func TestAddNewSelectionDistinctColors(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	a := h.AddNewSelection("cells")
	b := h.AddNewSelection("cells")
	if a.Color == b.Color {
		t.Errorf("expected distinct colors, both %#v", a.Color)
	}
	if a.ID == b.ID {
		t.Errorf("expected unique ids per type")
	}
	if got := h.SelectionsForType("cells"); len(got) != 2 {
		t.Fatalf("expected 2 selections, got %d", len(got))
	}
}

func TestToggleActiveSelectionExclusive(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	a := h.AddNewSelection("cells")
	b := h.AddNewSelection("cells")

	h.ToggleActiveSelection(a)
	if !a.Active || h.ActiveSelection() != a {
		t.Fatalf("expected a active")
	}

	// Activating b implicitly deactivates a.
	h.ToggleActiveSelection(b)
	if a.Active {
		t.Errorf("a still active after b was activated")
	}
	if !b.Active || h.ActiveSelection() != b {
		t.Fatalf("expected b active")
	}

	// Toggling the active selection deactivates it.
	h.ToggleActiveSelection(b)
	if b.Active || h.ActiveSelection() != nil {
		t.Fatalf("expected no active selection")
	}
}

func TestExclusivityAcrossObjectTypes(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	cells := h.AddNewSelection("cells")
	nuclei := h.AddNewSelection("nuclei")

	h.ToggleActiveSelection(cells)
	h.ToggleActiveSelection(nuclei)
	if cells.Active {
		t.Errorf("exclusivity is global, not per-type")
	}
	if h.ActiveSelection() != nuclei {
		t.Fatalf("expected nuclei selection active")
	}
	if h.ActiveObjectType() != "nuclei" {
		t.Errorf("active object type should follow activation, got %q", h.ActiveObjectType())
	}
}

func TestSetActiveObjectTypeDeactivatesOtherType(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	cells := h.AddNewSelection("cells")
	h.ToggleActiveSelection(cells)

	h.SetActiveObjectType("nuclei")
	if cells.Active {
		t.Errorf("cells selection stayed active after switching to nuclei")
	}
	if h.ActiveSelection() != nil {
		t.Fatalf("active selection must belong to the active object type")
	}
	if h.ActiveObjectType() != "nuclei" {
		t.Errorf("active object type = %q, want nuclei", h.ActiveObjectType())
	}

	// Switching to the active selection's own type keeps it active.
	h.ToggleActiveSelection(cells)
	h.SetActiveObjectType("cells")
	if !cells.Active || h.ActiveSelection() != cells {
		t.Fatalf("same-type switch must keep the selection active")
	}
}

func TestRestoreSelectionAdvancesPalette(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	first := (&color.SelectionPalette{}).Next()
	restored := h.RestoreSelection("cells", 1, "selection #1", first, []int64{4, 5})
	if restored.Size() != 2 || !restored.Contains(4) {
		t.Fatalf("restored members lost: %v", restored.MemberIDs())
	}

	next := h.AddNewSelection("cells")
	if next.Color == restored.Color {
		t.Errorf("new selection reused the restored color %#v", next.Color)
	}
	if next.ID <= restored.ID {
		t.Errorf("new id %d must come after restored id %d", next.ID, restored.ID)
	}
}

func TestResetDropsAllSelections(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	a := h.AddNewSelection("cells")
	h.AddNewSelection("nuclei")
	h.ToggleActiveSelection(a)
	h.ActivateMarkerSelectionMode()

	h.Reset()
	if len(h.ObjectTypes()) != 0 {
		t.Fatalf("selections survived reset: %v", h.ObjectTypes())
	}
	if h.ActiveSelection() != nil || h.ActiveObjectType() != "" {
		t.Fatalf("activation state survived reset")
	}
	// Marker mode is user-level UI state, not snapshot state.
	if !h.MarkerModeActive() {
		t.Errorf("reset must leave marker mode alone")
	}

	// Counters start over: the first selection afterwards gets id 1 and
	// the first palette color again.
	b := h.AddNewSelection("cells")
	if b.ID != 1 {
		t.Errorf("id counter not reset, got %d", b.ID)
	}
	if b.Color != a.Color {
		t.Errorf("palette not reset: %#v vs %#v", b.Color, a.Color)
	}
}

func TestRemoveActiveSelectionClearsPointer(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	a := h.AddNewSelection("cells")
	h.ToggleActiveSelection(a)

	h.RemoveSelection(a)
	if h.ActiveSelection() != nil {
		t.Fatalf("active pointer dangles after removal")
	}
	if got := h.SelectionsForType("cells"); len(got) != 0 {
		t.Fatalf("selection not removed from its bucket")
	}
}

func TestMarkerPickToggles(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	a := h.AddNewSelection("cells")
	h.Register(a, []int64{12, 47, 99})
	h.ToggleActiveSelection(a)
	h.ActivateMarkerSelectionMode()

	if !h.Pick(55) {
		t.Fatalf("pick was ignored")
	}
	want := []int64{12, 47, 55, 99}
	if got := a.MemberIDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Picking the same id again reverts membership.
	if !h.Pick(55) {
		t.Fatalf("second pick was ignored")
	}
	want = []int64{12, 47, 99}
	if got := a.MemberIDs(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestPickWithoutActiveSelectionIsNoop(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	a := h.AddNewSelection("cells")
	h.ActivateMarkerSelectionMode()

	if h.Pick(1) {
		t.Fatalf("pick with no active selection must be a no-op")
	}
	if a.Size() != 0 {
		t.Fatalf("inactive selection gained members")
	}

	// Outside marker mode picks are ignored even with an active selection.
	h.DeactivateMarkerSelectionMode()
	h.ToggleActiveSelection(a)
	if h.Pick(1) {
		t.Fatalf("pick outside marker mode must be a no-op")
	}
}

func TestClearKeepsSelection(t *testing.T) {
	t.Parallel()

	h := newTestHandler()
	a := h.AddNewSelection("cells")
	h.Register(a, []int64{1, 2, 3})

	h.Clear(a)
	if a.Size() != 0 {
		t.Fatalf("expected empty members, got %d", a.Size())
	}
	if got := h.SelectionsForType("cells"); len(got) != 1 {
		t.Fatalf("clear must not destroy the selection")
	}
}

func TestSelectionChangedEvents(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	var events int
	bus.Subscribe(EventSelectionChanged, func(Event) { events++ })

	h := NewSelectionHandler("v1", bus, nil)
	a := h.AddNewSelection("cells")
	h.ToggleActiveSelection(a)
	h.ActivateMarkerSelectionMode()
	h.Pick(5)

	if events != 3 {
		t.Fatalf("expected 3 selectionChanged events, got %d", events)
	}
}
