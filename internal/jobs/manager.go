// Package jobs manages background execution of tool submissions with
// SQLite-backed persistence.
package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/toolstore"
)

// ErrStopped is returned by Submit after the manager has been stopped.
var ErrStopped = errors.New("submission manager is stopped")

// ManagerConfig contains configuration for the submission manager.
type ManagerConfig struct {
	MaxConcurrent int    // Max concurrent tool submissions (default 1)
	SQLitePath    string // Path to SQLite database
	RetentionDays int    // Days to keep finished submissions (default 7)
	CleanupPeriod time.Duration
}

// Manager runs queued tool submissions on a bounded worker pool.
type Manager struct {
	cfg      ManagerConfig
	store    *toolstore.Store
	log      *zap.Logger
	queue    chan string // submission IDs
	running  map[string]context.CancelFunc
	stopped  bool // guarded by mu; no sends on queue once set
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// Executor is called to perform the actual tool request.
	Executor func(ctx context.Context, store *toolstore.Store, submissionID string) error
}

// NewManager creates a new submission manager with SQLite persistence.
func NewManager(cfg ManagerConfig, log *zap.Logger) (*Manager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}

	store, err := toolstore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:     cfg,
		store:   store,
		log:     log,
		queue:   make(chan string, 100),
		running: make(map[string]context.CancelFunc),
		stopCh:  make(chan struct{}),
	}
	return m, nil
}

// Store returns the underlying store for direct access.
func (m *Manager) Store() *toolstore.Store {
	return m.store
}

// Start starts the worker goroutines and cleanup ticker.
// Also recovers from a previous shutdown.
func (m *Manager) Start() {
	// Mark any running submissions as failed (server restart)
	if err := m.store.MarkRunningAsFailed("server restarted"); err != nil {
		m.log.Warn("failed to mark running submissions as failed", zap.Error(err))
	}

	// Re-queue any queued submissions
	queued, err := m.store.ListQueued()
	if err != nil {
		m.log.Warn("failed to list queued submissions", zap.Error(err))
	} else {
		for _, sub := range queued {
			select {
			case m.queue <- sub.ID:
				m.log.Info("re-queued submission", zap.String("id", sub.ID))
			default:
				m.log.Warn("queue full, cannot re-queue submission", zap.String("id", sub.ID))
			}
		}
	}

	for i := 0; i < m.cfg.MaxConcurrent; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	go m.cleaner()
}

// Stop stops all workers gracefully.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
		close(m.queue)
		m.wg.Wait()
		m.store.Close()
	})
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for id := range m.queue {
		m.run(id)
	}
}

func (m *Manager) run(id string) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.running[id] = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}()

	if err := m.store.UpdateStarted(id); err != nil {
		m.log.Warn("failed to mark submission as started", zap.String("id", id), zap.Error(err))
		return
	}

	var execErr error
	if m.Executor != nil {
		execErr = m.Executor(ctx, m.store, id)
	}

	if ctx.Err() == context.Canceled {
		m.store.UpdateStatus(id, toolstore.StatusCancelled, "cancelled by user")
	} else if execErr != nil {
		m.store.UpdateStatus(id, toolstore.StatusFailed, execErr.Error())
	} else {
		m.store.UpdateStatus(id, toolstore.StatusCompleted, "")
	}
}

func (m *Manager) cleaner() {
	ticker := time.NewTicker(m.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	deleted, err := m.store.DeleteExpired(m.cfg.RetentionDays)
	if err != nil {
		m.log.Warn("submission cleanup failed", zap.Error(err))
	} else if deleted > 0 {
		m.log.Info("cleaned up expired submissions", zap.Int("deleted", deleted))
	}
}

// Submit creates a new submission and enqueues it for execution. After
// Stop it returns ErrStopped.
func (m *Manager) Submit(params toolstore.SubmissionParams) (*toolstore.Submission, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	m.mu.Unlock()

	id := generateSubmissionID()
	sub := &toolstore.Submission{
		ID:        id,
		ViewerID:  params.ViewerID,
		Status:    toolstore.StatusQueued,
		Params:    params,
		CreatedAt: time.Now(),
	}

	if err := m.store.CreateSubmission(sub); err != nil {
		return nil, err
	}

	// The enqueue must see any Stop that set stopped before the queue was
	// closed, so both run under the same lock.
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	select {
	case m.queue <- id:
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		// Queue full; mark as failed immediately
		m.store.UpdateStatus(id, toolstore.StatusFailed, "submission queue is full; try again later")
	}

	return sub, nil
}

// Get returns a submission by ID, or nil when absent.
func (m *Manager) Get(id string) *toolstore.Submission {
	sub, err := m.store.GetSubmission(id)
	if err != nil {
		m.log.Warn("error getting submission", zap.String("id", id), zap.Error(err))
		return nil
	}
	return sub
}

// Cancel attempts to cancel a queued or running submission.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	cancel, ok := m.running[id]
	m.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	sub, err := m.store.GetSubmission(id)
	if err != nil || sub == nil {
		return false
	}
	if sub.Status == toolstore.StatusQueued {
		m.store.UpdateStatus(id, toolstore.StatusCancelled, "cancelled before start")
		return true
	}
	return false
}

// Delete deletes a submission and its stored classes.
func (m *Manager) Delete(id string) error {
	return m.store.DeleteSubmission(id)
}

func generateSubmissionID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
