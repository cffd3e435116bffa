package toolstore

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "tools.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSubmission(id string) *Submission {
	return &Submission{
		ID:       id,
		ViewerID: "viewer-1",
		Status:   StatusQueued,
		Params: SubmissionParams{
			ViewerID:         "viewer-1",
			ToolID:           "clustering",
			SessionUUID:      "sess-abc",
			ChosenObjectType: "cells",
			Payload:          json.RawMessage(`{"k":3}`),
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestCreateAndGetSubmission(t *testing.T) {
	s := newTestStore(t)

	sub := sampleSubmission("sub-1")
	if err := s.CreateSubmission(sub); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	got, err := s.GetSubmission("sub-1")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got == nil {
		t.Fatal("expected submission, got nil")
	}
	if got.Status != StatusQueued {
		t.Errorf("status = %s, want queued", got.Status)
	}
	if got.Params.ToolID != "clustering" {
		t.Errorf("tool id = %s, want clustering", got.Params.ToolID)
	}
	if got.StartedAt != nil || got.FinishedAt != nil {
		t.Error("expected nil started/finished times for queued submission")
	}
}

func TestGetSubmissionMissing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetSubmission("nope")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing submission, got %+v", got)
	}
}

func TestStatusLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateSubmission(sampleSubmission("sub-1")); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	if err := s.UpdateStarted("sub-1"); err != nil {
		t.Fatalf("UpdateStarted: %v", err)
	}
	got, _ := s.GetSubmission("sub-1")
	if got.Status != StatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("expected started_at to be set")
	}

	if err := s.UpdateStatus("sub-1", StatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ = s.GetSubmission("sub-1")
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set for completed submission")
	}
}

func TestUpdateStatusFailure(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateSubmission(sampleSubmission("sub-1")); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	if err := s.UpdateStatus("sub-1", StatusFailed, "backend unreachable"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, _ := s.GetSubmission("sub-1")
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "backend unreachable" {
		t.Errorf("error = %q, want backend unreachable", got.Error)
	}
}

func TestMarkRunningAsFailed(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateSubmission(sampleSubmission(id)); err != nil {
			t.Fatalf("CreateSubmission: %v", err)
		}
	}
	s.UpdateStarted("a")
	s.UpdateStarted("b")

	if err := s.MarkRunningAsFailed("server restarted"); err != nil {
		t.Fatalf("MarkRunningAsFailed: %v", err)
	}

	for _, tc := range []struct {
		id   string
		want SubmissionStatus
	}{
		{"a", StatusFailed},
		{"b", StatusFailed},
		{"c", StatusQueued},
	} {
		got, _ := s.GetSubmission(tc.id)
		if got.Status != tc.want {
			t.Errorf("submission %s status = %s, want %s", tc.id, got.Status, tc.want)
		}
	}
}

func TestListQueued(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateSubmission(sampleSubmission(id)); err != nil {
			t.Fatalf("CreateSubmission: %v", err)
		}
	}
	s.UpdateStarted("b")

	queued, err := s.ListQueued()
	if err != nil {
		t.Fatalf("ListQueued: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("queued = %d, want 2", len(queued))
	}
	for _, sub := range queued {
		if sub.ID == "b" {
			t.Error("running submission appeared in queued list")
		}
	}
}

func TestListByViewer(t *testing.T) {
	s := newTestStore(t)

	a := sampleSubmission("a")
	b := sampleSubmission("b")
	b.ViewerID = "viewer-2"
	s.CreateSubmission(a)
	s.CreateSubmission(b)

	subs, err := s.ListByViewer("viewer-1")
	if err != nil {
		t.Fatalf("ListByViewer: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "a" {
		t.Errorf("expected only submission a for viewer-1, got %d entries", len(subs))
	}
}

func TestClassesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateSubmission(sampleSubmission("sub-1")); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	classes := []ClassSummary{
		{Label: "positive", ColorJSON: `{"r":255,"g":0,"b":0,"a":1}`, ObjectCount: 3},
		{Label: "negative", ColorJSON: `{"r":0,"g":255,"b":0,"a":1}`, ObjectCount: 2},
	}
	if err := s.InsertClasses("sub-1", classes); err != nil {
		t.Fatalf("InsertClasses: %v", err)
	}

	got, err := s.QueryClasses("sub-1")
	if err != nil {
		t.Fatalf("QueryClasses: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("classes = %d, want 2", len(got))
	}
	if got[0].Label != "positive" || got[0].ObjectCount != 3 {
		t.Errorf("unexpected first class: %+v", got[0])
	}
}

func TestDeleteSubmission(t *testing.T) {
	s := newTestStore(t)

	s.CreateSubmission(sampleSubmission("sub-1"))
	s.InsertClasses("sub-1", []ClassSummary{{Label: "x", ColorJSON: "{}", ObjectCount: 1}})

	if err := s.DeleteSubmission("sub-1"); err != nil {
		t.Fatalf("DeleteSubmission: %v", err)
	}

	got, _ := s.GetSubmission("sub-1")
	if got != nil {
		t.Error("expected submission to be gone")
	}
	classes, _ := s.QueryClasses("sub-1")
	if len(classes) != 0 {
		t.Errorf("expected classes to be gone, got %d", len(classes))
	}
}

func TestDeleteExpired(t *testing.T) {
	s := newTestStore(t)

	old := sampleSubmission("old")
	s.CreateSubmission(old)
	s.UpdateStatus("old", StatusCompleted, "")
	// Backdate the finish time past the retention window.
	past := time.Now().AddDate(0, 0, -10).Format(time.RFC3339)
	if _, err := s.db.Exec(`UPDATE tool_submissions SET finished_at = ? WHERE submission_id = ?`, past, "old"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	fresh := sampleSubmission("fresh")
	s.CreateSubmission(fresh)
	s.UpdateStatus("fresh", StatusCompleted, "")

	n, err := s.DeleteExpired(7)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if got, _ := s.GetSubmission("old"); got != nil {
		t.Error("expected old submission to be deleted")
	}
	if got, _ := s.GetSubmission("fresh"); got == nil {
		t.Error("expected fresh submission to survive")
	}
}

func TestSetResultID(t *testing.T) {
	s := newTestStore(t)

	s.CreateSubmission(sampleSubmission("sub-1"))
	if err := s.SetResultID("sub-1", "result-9"); err != nil {
		t.Fatalf("SetResultID: %v", err)
	}
	got, _ := s.GetSubmission("sub-1")
	if got.ResultID != "result-9" {
		t.Errorf("result id = %q, want result-9", got.ResultID)
	}
}
