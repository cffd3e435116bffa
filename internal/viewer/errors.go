package viewer

import "errors"

// Engine error kinds. Configuration errors (duplicate layer) are returned
// synchronously at add time; invariant violations (invalid range, busy
// session) leave prior state unchanged.
var (
	ErrDuplicateLayer    = errors.New("layer with this id already exists")
	ErrLayerNotFound     = errors.New("layer not found")
	ErrInvalidRange      = errors.New("invalid intensity range: min must be < max")
	ErrSelectionNotFound = errors.New("selection not found")
	ErrSessionBusy       = errors.New("tool session has a request in flight")
	ErrResultNotFound    = errors.New("tool result not found")
	ErrUnknownTool       = errors.New("unknown tool")
)
