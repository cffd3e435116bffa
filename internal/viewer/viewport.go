package viewer

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// Camera is the pan/zoom state of a viewport.
type Camera struct {
	Zoom       float64 `json:"zoom"`
	Center     Point   `json:"center"`
	Resolution float64 `json:"resolution"`
	Rotation   float64 `json:"rotation"`
}

// Viewport owns the ordered layer stack for one open experiment view,
// the current time/z indices and the camera state. Layers are owned by
// the viewport: removing the viewport (or a layer) destroys the visuals.
//
// mu guards all fields; event publication happens after the lock is
// released so subscribers may call back into the viewport.
type Viewport struct {
	mu     sync.Mutex
	layers []*Layer

	tpoint int
	zplane int
	camera Camera

	// enabled tracks the user's visibility choice per channel so a
	// channel toggled off stays off across plane switches.
	enabled map[string]bool

	bus *Bus
	log *zap.Logger

	viewerID string
}

// NewViewport creates an empty viewport publishing on bus.
func NewViewport(viewerID string, bus *Bus, log *zap.Logger) *Viewport {
	if bus == nil {
		bus = NewBus()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Viewport{
		enabled:  make(map[string]bool),
		bus:      bus,
		log:      log,
		viewerID: viewerID,
	}
}

// AddLayer appends l to the stack. The next free z-index is assigned
// unless l carries an explicit non-zero one. Fails with ErrDuplicateLayer
// if a layer with the same id — or, for channel layers, the same
// (channel, tpoint, zplane) — already exists.
func (vp *Viewport) AddLayer(l *Layer) error {
	vp.mu.Lock()
	for _, existing := range vp.layers {
		if existing.ID == l.ID {
			vp.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateLayer, l.ID)
		}
		if l.Channel != nil && existing.Channel != nil &&
			existing.Channel.Channel == l.Channel.Channel &&
			existing.matchesPlane(l.Channel.Tpoint, l.Channel.Zplane) {
			vp.mu.Unlock()
			return fmt.Errorf("%w: channel %s at t=%d z=%d",
				ErrDuplicateLayer, l.Channel.Channel, l.Channel.Tpoint, l.Channel.Zplane)
		}
	}

	if l.ZIndex == 0 {
		l.ZIndex = vp.nextZIndexLocked()
	} else {
		// Explicit z-index: shift colliding layers up to keep the
		// order total.
		for _, existing := range vp.layers {
			if existing.ZIndex >= l.ZIndex {
				existing.ZIndex++
			}
		}
	}

	if l.Channel != nil {
		if _, ok := vp.enabled[l.Channel.Channel]; !ok {
			vp.enabled[l.Channel.Channel] = true
		}
		l.Visible = vp.enabled[l.Channel.Channel] && l.matchesPlane(vp.tpoint, vp.zplane)
	}

	vp.layers = append(vp.layers, l)
	vp.sortLocked()
	vp.mu.Unlock()

	vp.bus.Publish(Event{Topic: EventLayerAdded, ViewerID: vp.viewerID, Data: l.ID})
	return nil
}

func (vp *Viewport) nextZIndexLocked() int {
	max := 0
	for _, l := range vp.layers {
		if l.ZIndex > max {
			max = l.ZIndex
		}
	}
	return max + 1
}

func (vp *Viewport) sortLocked() {
	sort.SliceStable(vp.layers, func(i, j int) bool {
		return vp.layers[i].ZIndex < vp.layers[j].ZIndex
	})
}

// RemoveLayer detaches the layer and destroys its visuals. Removing an
// absent layer is a logged no-op.
func (vp *Viewport) RemoveLayer(id string) {
	vp.mu.Lock()
	idx := -1
	for i, l := range vp.layers {
		if l.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		vp.mu.Unlock()
		vp.log.Debug("remove of absent layer ignored", zap.String("layer", id))
		return
	}
	l := vp.layers[idx]
	vp.layers = append(vp.layers[:idx], vp.layers[idx+1:]...)
	l.destroyVisuals()
	vp.mu.Unlock()

	vp.bus.Publish(Event{Topic: EventLayerRemoved, ViewerID: vp.viewerID, Data: id})
}

// Layer returns the layer with the given id, or ErrLayerNotFound.
func (vp *Viewport) Layer(id string) (*Layer, error) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return vp.layerLocked(id)
}

func (vp *Viewport) layerLocked(id string) (*Layer, error) {
	for _, l := range vp.layers {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, id)
}

// Layers returns the stack back-to-front.
func (vp *Viewport) Layers() []*Layer {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	out := make([]*Layer, len(vp.layers))
	copy(out, vp.layers)
	return out
}

// VisibleLayers returns, back-to-front, the layers that contribute to the
// composite at the current (tpoint, zplane). Layers with Visible=false or
// zero opacity contribute nothing.
func (vp *Viewport) VisibleLayers() []*Layer {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	var out []*Layer
	for _, l := range vp.layers {
		if !l.Visible || l.Opacity == 0 {
			continue
		}
		if l.Channel != nil && !l.matchesPlane(vp.tpoint, vp.zplane) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// SetIntensityWindow updates the windowing parameters of a channel layer.
// min must be < max; violating calls fail with ErrInvalidRange and leave
// the prior values unchanged.
func (vp *Viewport) SetIntensityWindow(id string, min, max float64) error {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	l, err := vp.layerLocked(id)
	if err != nil {
		return err
	}
	if l.Channel == nil {
		return fmt.Errorf("%w: %s is not a channel layer", ErrLayerNotFound, id)
	}
	if min >= max {
		return fmt.Errorf("%w: [%v, %v]", ErrInvalidRange, min, max)
	}
	l.Channel.Min = min
	l.Channel.Max = max
	return nil
}

// SetBrightness updates a channel layer's brightness, clamped to [0, 1].
func (vp *Viewport) SetBrightness(id string, b float64) error {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	l, err := vp.layerLocked(id)
	if err != nil {
		return err
	}
	if l.Channel == nil {
		return fmt.Errorf("%w: %s is not a channel layer", ErrLayerNotFound, id)
	}
	if b < 0 {
		b = 0
	}
	if b > 1 {
		b = 1
	}
	l.Channel.Brightness = b
	return nil
}

// SetTint updates a channel layer's tint color.
func (vp *Viewport) SetTint(id string, c color.Color) error {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	l, err := vp.layerLocked(id)
	if err != nil {
		return err
	}
	if l.Channel == nil {
		return fmt.Errorf("%w: %s is not a channel layer", ErrLayerNotFound, id)
	}
	l.Channel.Tint = c
	return nil
}

// SetOpacity sets a layer's opacity, clamped to [0, 1].
func (vp *Viewport) SetOpacity(id string, o float64) error {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	l, err := vp.layerLocked(id)
	if err != nil {
		return err
	}
	if o < 0 {
		o = 0
	}
	if o > 1 {
		o = 1
	}
	l.Opacity = o
	return nil
}

// SetVisible toggles a layer. For channel layers the choice is remembered
// per channel so it survives plane switches.
func (vp *Viewport) SetVisible(id string, visible bool) error {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	l, err := vp.layerLocked(id)
	if err != nil {
		return err
	}
	if l.Channel != nil {
		vp.enabled[l.Channel.Channel] = visible
		l.Visible = visible && l.matchesPlane(vp.tpoint, vp.zplane)
		return nil
	}
	l.Visible = visible
	return nil
}

// Plane returns the current (tpoint, zplane).
func (vp *Viewport) Plane() (tpoint, zplane int) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return vp.tpoint, vp.zplane
}

// SetPlane switches the current time point and z-plane. Channel layers of
// other planes become invisible, not deleted, so toggling back is O(1);
// the enabled channels at the new plane become visible again.
func (vp *Viewport) SetPlane(tpoint, zplane int) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.tpoint = tpoint
	vp.zplane = zplane
	for _, l := range vp.layers {
		if l.Channel == nil {
			continue
		}
		l.Visible = vp.enabled[l.Channel.Channel] && l.matchesPlane(tpoint, zplane)
	}
}

// Camera returns the current camera state.
func (vp *Viewport) Camera() Camera {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return vp.camera
}

// SetCamera replaces the camera state.
func (vp *Viewport) SetCamera(c Camera) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.camera = c
}
