package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/tools"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/toolstore"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/viewer"
)

// ToolExecutor returns the executor run by the submission manager's
// workers. It replays the persisted request through the viewer's tool
// session and stores the class summaries of the response.
func ToolExecutor(registry *ViewerRegistry) func(ctx context.Context, store *toolstore.Store, submissionID string) error {
	return func(ctx context.Context, store *toolstore.Store, submissionID string) error {
		sub, err := store.GetSubmission(submissionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return fmt.Errorf("submission %s not found", submissionID)
		}

		v := registry.Get(sub.Params.ViewerID)
		if v == nil {
			return fmt.Errorf("viewer %s is gone", sub.Params.ViewerID)
		}
		sess, ok := v.SessionByUUID(sub.Params.SessionUUID)
		if !ok {
			return fmt.Errorf("session %s was discarded", sub.Params.SessionUUID)
		}

		var req tools.Request
		if err := json.Unmarshal(sub.Params.Payload, &req); err != nil {
			return fmt.Errorf("bad request payload: %w", err)
		}
		req.SessionUUID = sess.UUID
		req.ToolID = sub.Params.ToolID

		outcome, err := v.SubmitToolRequest(ctx, sess, req)
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out := <-outcome:
			if out.Err != nil {
				return out.Err
			}
			if err := store.SetResultID(submissionID, out.Result.ID); err != nil {
				return err
			}
			return store.InsertClasses(submissionID, classSummaries(out.Result))
		}
	}
}

func classSummaries(res *viewer.ToolResult) []toolstore.ClassSummary {
	out := make([]toolstore.ClassSummary, 0, len(res.Legend))
	for _, entry := range res.Legend {
		colorJSON, _ := json.Marshal(entry.Color.ToObject())
		out = append(out, toolstore.ClassSummary{
			Label:       entry.Label,
			ColorJSON:   string(colorJSON),
			ObjectCount: entry.Count,
		})
	}
	return out
}
