package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/pkg/color"
)

// Distinguished client error kinds. ErrUnauthorized lets the caller
// redirect to re-authentication instead of showing a generic failure.
var (
	ErrUnauthorized = errors.New("tool backend rejected credentials")
	ErrBadResponse  = errors.New("tool backend returned an unparseable response")
)

// Class is one labeled group of objects in a tool response.
type Class struct {
	Label   string       `json:"label"`
	Color   color.Object `json:"color"`
	CellIDs []int64      `json:"cell_ids"`
}

// Response is the parsed body of a completed tool request. Classifier
// responses carry Classes; clustering/statistics tools return their own
// shapes, preserved in Raw for the consuming widget.
type Response struct {
	Name         string          `json:"name,omitempty"`
	SubmissionID string          `json:"submission_id,omitempty"`
	Classes      []Class         `json:"classes,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

// TrainingClass is one named group of ground-truth objects in a request.
type TrainingClass struct {
	Name      string       `json:"name"`
	ObjectIDs []int64      `json:"object_ids"`
	Color     color.Object `json:"color"`
}

// Request is the body POSTed to a per-session endpoint. Extra holds the
// tool-specific fields merged in by the widget.
type Request struct {
	SessionUUID      string                 `json:"session_uuid"`
	ToolID           string                 `json:"tool_id"`
	ChosenObjectType string                 `json:"chosen_object_type,omitempty"`
	TrainingClasses  []TrainingClass        `json:"training_classes,omitempty"`
	SelectedFeatures []string               `json:"selected_features,omitempty"`
	Extra            map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Extra into the top-level object.
func (r Request) MarshalJSON() ([]byte, error) {
	type plain Request
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]interface{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, reserved := merged[k]; !reserved {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON is the inverse of MarshalJSON: unknown top-level keys
// land back in Extra.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Request(p)

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	known := map[string]bool{
		"session_uuid":       true,
		"tool_id":            true,
		"chosen_object_type": true,
		"training_classes":   true,
		"selected_features":  true,
	}
	for k, raw := range all {
		if known[k] {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if r.Extra == nil {
			r.Extra = make(map[string]interface{})
		}
		r.Extra[k] = v
	}
	return nil
}

// Client talks to the remote analysis backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Send POSTs req to the per-session endpoint and parses the response.
// Transport failures and non-2xx statuses are returned as errors carrying
// a human-readable message; they are never swallowed.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode tool request: %w", err)
	}

	url := fmt.Sprintf("%s/sessions/%s/requests", c.baseURL, req.SessionUUID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug("tool request sent",
		zap.String("tool", req.ToolID),
		zap.String("session", req.SessionUUID))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tool request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read tool response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("tool backend returned %d: %s", resp.StatusCode, errorMessage(raw))
	}

	var parsed Response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	parsed.Raw = raw
	return &parsed, nil
}

// errorMessage extracts a message from an error body, falling back to a
// truncated raw body.
func errorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "(empty body)"
	}
	return s
}
