// Package viewer implements the layer/selection/tool-session engine: the
// stateful core behind one open experiment view.
package viewer

import "sync"

// Event topics published by the engine.
const (
	EventLayerAdded       = "layerAdded"
	EventLayerRemoved     = "layerRemoved"
	EventSelectionChanged = "selectionChanged"
	EventToolRequestSent  = "toolRequestSent"
	EventToolRequestDone  = "toolRequestDone"
	EventResultAttached   = "resultAttached"
)

// Event is a notification published on the bus.
type Event struct {
	Topic    string
	ViewerID string
	Data     interface{}
}

// Handler receives published events.
type Handler func(Event)

// Bus is a synchronous in-process pub/sub bus. Widgets subscribe to topics
// instead of relying on implicit scope propagation; delivery happens on the
// publisher's goroutine, in subscription order.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers fn for topic.
func (b *Bus) Subscribe(topic string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], fn)
}

// Publish delivers ev to all handlers subscribed to its topic.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	hs := append([]Handler(nil), b.handlers[ev.Topic]...)
	b.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}
