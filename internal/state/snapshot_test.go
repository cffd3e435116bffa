package state

import (
	"reflect"
	"testing"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/tools"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/viewer"
	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

func newTestViewer(t *testing.T) *viewer.Viewer {
	t.Helper()
	catalog, err := tools.ParseManifest([]byte("- {id: classifier, name: Classifier, template: c.html}\n"))
	if err != nil {
		t.Fatal(err)
	}
	return viewer.New("exp1", catalog, nil, nil)
}

func TestCaptureRestoreRoundTrip(t *testing.T) {
	t.Parallel()

	v := newTestViewer(t)
	if err := v.Viewport.AddLayer(viewer.NewChannelLayer("dapi", viewer.ChannelParams{
		Channel: "dapi", MaxIntensity: 4096,
	})); err != nil {
		t.Fatal(err)
	}
	if err := v.Viewport.SetIntensityWindow("dapi", 0.2, 0.8); err != nil {
		t.Fatal(err)
	}
	if err := v.Viewport.SetTint("dapi", color.Blue); err != nil {
		t.Fatal(err)
	}
	v.Viewport.SetCamera(viewer.Camera{Zoom: 3, Center: viewer.Point{X: 100, Y: 200}, Resolution: 0.5})

	sel := v.Selections.AddNewSelection("cells")
	v.Selections.Register(sel, []int64{12, 47, 99})
	v.Selections.ToggleActiveSelection(sel)

	snap := Capture(v)

	data, err := Encode(snap)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(snap, decoded) {
		t.Fatalf("snapshot changed across encode/decode:\n%+v\n%+v", snap, decoded)
	}

	// Colors survive without precision loss.
	if decoded.ChannelLayerOptions[0].Tint != (color.Object{R: 0, G: 0, B: 255, A: 1}) {
		t.Fatalf("tint corrupted: %+v", decoded.ChannelLayerOptions[0].Tint)
	}

	// Restore into a fresh viewer with the same layers.
	v2 := newTestViewer(t)
	if err := v2.Viewport.AddLayer(viewer.NewChannelLayer("dapi", viewer.ChannelParams{
		Channel: "dapi", MaxIntensity: 4096,
	})); err != nil {
		t.Fatal(err)
	}
	if err := Restore(v2, decoded); err != nil {
		t.Fatal(err)
	}

	l, err := v2.Viewport.Layer("dapi")
	if err != nil {
		t.Fatal(err)
	}
	if l.Channel.Min != 0.2 || l.Channel.Max != 0.8 {
		t.Errorf("window not restored: [%v, %v]", l.Channel.Min, l.Channel.Max)
	}
	if l.Channel.Tint != color.Blue {
		t.Errorf("tint not restored: %#v", l.Channel.Tint)
	}
	if cam := v2.Viewport.Camera(); cam.Zoom != 3 || cam.Center.X != 100 {
		t.Errorf("camera not restored: %+v", cam)
	}

	restored := v2.Selections.SelectionsForType("cells")
	if len(restored) != 1 {
		t.Fatalf("expected 1 restored selection, got %d", len(restored))
	}
	if !reflect.DeepEqual(restored[0].MemberIDs(), []int64{12, 47, 99}) {
		t.Errorf("members not restored: %v", restored[0].MemberIDs())
	}
	if v2.Selections.ActiveSelection() != restored[0] {
		t.Errorf("active selection not restored")
	}
}

func TestRestoreReplacesExistingSelections(t *testing.T) {
	t.Parallel()

	v := newTestViewer(t)
	sel := v.Selections.AddNewSelection("cells")
	v.Selections.Register(sel, []int64{12, 47})
	snap := Capture(v)

	// Restoring into the same viewer must not double up the selections,
	// and a fresh selection afterwards must not collide with a restored
	// id or color.
	if err := Restore(v, snap); err != nil {
		t.Fatal(err)
	}
	if err := Restore(v, snap); err != nil {
		t.Fatal(err)
	}
	restored := v.Selections.SelectionsForType("cells")
	if len(restored) != 1 {
		t.Fatalf("expected 1 selection after repeated restore, got %d", len(restored))
	}
	if !reflect.DeepEqual(restored[0].MemberIDs(), []int64{12, 47}) {
		t.Errorf("members corrupted: %v", restored[0].MemberIDs())
	}

	next := v.Selections.AddNewSelection("cells")
	if next.ID == restored[0].ID {
		t.Errorf("new selection reused restored id %d", next.ID)
	}
	if next.Color == restored[0].Color {
		t.Errorf("new selection reused restored color %#v", next.Color)
	}
}

func TestRestoreSkipsUnknownLayers(t *testing.T) {
	t.Parallel()

	v := newTestViewer(t)
	snap := Snapshot{
		ChannelLayerOptions: []ChannelLayerOption{{LayerID: "gone", Min: 0, Max: 1}},
	}
	if err := Restore(v, snap); err != nil {
		t.Fatalf("restore must skip unknown layers, got %v", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()

	if _, err := Decode([]byte("not gzip")); err == nil {
		t.Fatal("expected error for garbage input")
	}
}
