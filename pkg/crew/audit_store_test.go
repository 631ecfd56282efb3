package crew

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryAuditStore(t *testing.T) {
	store := NewMemoryAuditStore()
	started := time.Now().UTC()
	for _, ev := range []AuditEvent{
		{RunID: "run-1", TaskID: "scrape", AgentID: "scraper", Status: "running", StartedAt: started},
		{RunID: "run-1", TaskID: "scrape", AgentID: "scraper", Status: "succeeded", Output: map[string]any{"title": "x"}, StartedAt: started, FinishedAt: started},
		{RunID: "run-2", TaskID: "scrape", AgentID: "scraper", Status: "running", StartedAt: started},
	} {
		if err := store.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	events, err := store.List(context.Background(), AuditFilter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Status != "succeeded" {
		t.Fatalf("unexpected status: %s", events[1].Status)
	}
	limited, _ := store.List(context.Background(), AuditFilter{Status: "running", Limit: 1})
	if len(limited) != 1 || limited[0].RunID != "run-1" {
		t.Fatalf("unexpected limited list: %+v", limited)
	}
}

func TestSQLiteAuditStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:crew_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	event := AuditEvent{
		RunID:      "run-1",
		TaskID:     "scrape",
		AgentID:    "scraper",
		Status:     "succeeded",
		Output:     map[string]any{"title": "Web scraping"},
		RetryCount: 1,
		Steps:      3,
		StartedAt:  time.Now().UTC(),
	}
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
	if events[0].AgentID != "scraper" || events[0].RetryCount != 1 || events[0].Steps != 3 {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	out, ok := events[0].Output.(map[string]any)
	if !ok || out["title"] != "Web scraping" {
		t.Fatalf("unexpected output: %#v", events[0].Output)
	}
}

func TestOpenSQLiteAuditStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	store, closeFn, err := OpenSQLiteAuditStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()
	if err := store.Record(context.Background(), AuditEvent{RunID: "r", TaskID: "t", Status: "failed", Error: "boom"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	events, err := store.List(context.Background(), AuditFilter{Status: "failed"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Error != "boom" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if _, _, err := OpenSQLiteAuditStore(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
