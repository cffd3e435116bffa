// Package stream maintains a persistent websocket channel to the tool
// backend for submission status and log messages.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is one status update pushed by the tool backend.
type Message struct {
	Type    string          `json:"type"` // "status", "log" or "output"
	JobID   string          `json:"jobId"`
	Status  string          `json:"status,omitempty"`
	Line    string          `json:"line,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives messages for a watched job.
type Handler func(Message)

// runRequest announces the watched job set to the backend.
type runRequest struct {
	Type    string   `json:"type"` // always "run"
	JobIDs  []string `json:"jobIds"`
	Project string   `json:"jtproject,omitempty"`
}

// Client keeps a websocket connection to the backend open and dispatches
// incoming messages to per-job handlers. Messages for jobs nobody
// watches are dropped; delivery is at most once.
type Client struct {
	url           string
	project       string
	retryInterval time.Duration
	log           *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	conn     *websocket.Conn

	// wmu serializes all writes on conn; gorilla/websocket allows at
	// most one concurrent writer.
	wmu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewClient creates a stream client. Run must be called to connect.
func NewClient(url, project string, retryInterval time.Duration, log *zap.Logger) *Client {
	if retryInterval <= 0 {
		retryInterval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:           url,
		project:       project,
		retryInterval: retryInterval,
		log:           log,
		handlers:      make(map[string]Handler),
		done:          make(chan struct{}),
	}
}

// Watch registers a handler for one job. It replaces any previous
// handler for the same id and re-announces the watch list to the backend.
func (c *Client) Watch(jobID string, h Handler) {
	c.mu.Lock()
	c.handlers[jobID] = h
	conn := c.conn
	req := c.runRequestLocked()
	c.mu.Unlock()

	if conn != nil {
		if err := c.writeJSON(conn, req); err != nil {
			c.log.Warn("failed to send run request", zap.Error(err))
		}
	}
}

// Unwatch removes the handler for a job.
func (c *Client) Unwatch(jobID string) {
	c.mu.Lock()
	delete(c.handlers, jobID)
	c.mu.Unlock()
}

func (c *Client) runRequestLocked() runRequest {
	ids := make([]string, 0, len(c.handlers))
	for id := range c.handlers {
		ids = append(ids, id)
	}
	return runRequest{Type: "run", JobIDs: ids, Project: c.project}
}

func (c *Client) writeJSON(conn *websocket.Conn, v interface{}) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteJSON(v)
}

// Run connects and keeps the connection alive until Close is called.
// Reconnects after a fixed delay when the connection drops.
func (c *Client) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	defer close(c.done)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.connectAndRead(ctx); err != nil {
			c.log.Warn("stream connection lost", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryInterval):
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	req := c.runRequestLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	// Close the socket when the context is cancelled so ReadJSON unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	if len(req.JobIDs) > 0 {
		if err := c.writeJSON(conn, req); err != nil {
			return err
		}
	}

	c.log.Info("stream connected", zap.String("url", c.url))
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	h := c.handlers[msg.JobID]
	c.mu.Unlock()

	if h == nil {
		return
	}
	h(msg)
}

// Close shuts the stream down and waits for the run loop to exit.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
			<-c.done
		}
	})
}
