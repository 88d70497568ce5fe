package workflow

import (
	"context"
	"database/sql"
	"testing"
	"time"
)

func auditEvent(runID, stepID, status string) AuditEvent {
	return AuditEvent{
		RunID:     runID,
		Playbook:  "pb",
		StepID:    stepID,
		StepType:  "standard",
		Status:    status,
		Output:    map[string]any{"ok": true},
		StartedAt: time.Now().UTC(),
	}
}

func TestMemoryAuditStoreFilters(t *testing.T) {
	store := NewMemoryAuditStore()
	ctx := context.Background()
	for _, event := range []AuditEvent{
		auditEvent("run-1", "s1", "started"),
		auditEvent("run-1", "s1", "completed"),
		auditEvent("run-2", "s1", "started"),
		auditEvent("run-2", "s1", "failed"),
	} {
		if err := store.Record(ctx, event); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	events, err := store.List(ctx, AuditFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for run-1, got %d", len(events))
	}

	events, err = store.List(ctx, AuditFilter{Status: "failed"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].RunID != "run-2" {
		t.Fatalf("unexpected failed events: %+v", events)
	}

	events, err = store.List(ctx, AuditFilter{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(events))
	}
}

func TestMemoryAuditStoreRejectsIncompleteEvent(t *testing.T) {
	store := NewMemoryAuditStore()
	if err := store.Record(context.Background(), AuditEvent{StepID: "s1"}); err == nil {
		t.Fatalf("expected error for event without run_id")
	}
}

func TestSQLiteAuditStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:workflow_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}

	event := auditEvent("run-1", "s1", "completed")
	event.FinishedAt = event.StartedAt.Add(time.Second)
	if err := store.Record(context.Background(), event); err != nil {
		t.Fatalf("record: %v", err)
	}

	events, err := store.List(context.Background(), AuditFilter{RunID: "run-1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	got := events[0]
	if got.StepID != "s1" || got.Status != "completed" || got.Playbook != "pb" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Output["ok"] != true {
		t.Fatalf("output did not round-trip: %v", got.Output)
	}
	if got.FinishedAt.IsZero() {
		t.Fatalf("expected finished_at to round-trip")
	}
}
