package viewer

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/tools"
)

// ToolClient sends a session-scoped request to the remote backend.
// Implemented by tools.Client.
type ToolClient interface {
	Send(ctx context.Context, req tools.Request) (*tools.Response, error)
}

// ToolSession is one open interactive instance of a tool against a
// viewer. It is created on first open of the tool window and reused
// across subsequent opens until explicitly discarded.
type ToolSession struct {
	UUID string
	Tool tools.Tool

	mu      sync.Mutex
	running bool
}

func newToolSession(t tools.Tool) *ToolSession {
	return &ToolSession{UUID: uuid.NewString(), Tool: t}
}

// IsRunning reports whether a request is in flight. It is true for the
// entire interval between the toolRequestSent and toolRequestDone
// notifications of a request and false outside it.
func (s *ToolSession) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// begin flips the running flag on; a second request while one is in
// flight is rejected rather than interleaved.
func (s *ToolSession) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("%w: %s", ErrSessionBusy, s.UUID)
	}
	s.running = true
	return nil
}

func (s *ToolSession) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// ToolOutcome is the settled result of one tool request.
type ToolOutcome struct {
	Result *ToolResult
	Err    error
}
