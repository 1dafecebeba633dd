// Copyright 2024-2026 Aiku AI

package bridge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func adminFixture(t *testing.T, online bool) (*AdminServer, *Store) {
	t.Helper()
	source := &mockSource{connected: true, healthy: true}
	dest := &mockDest{healthy: true}
	health := NewHealthMonitor(source, dest, "", time.Minute, testLogger())
	health.online.Store(online)
	store := newTestStore(t)
	return NewAdminServer(":0", health, store, testLogger()), store
}

func TestAdminHealthz(t *testing.T) {
	t.Parallel()
	a, _ := adminFixture(t, true)

	rec := httptest.NewRecorder()
	a.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", rec.Code)
	}

	var snapshot map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !snapshot["online"] || !snapshot["source"] || !snapshot["destination"] {
		t.Errorf("snapshot: got %v", snapshot)
	}
}

func TestAdminHealthzOffline(t *testing.T) {
	t.Parallel()
	a, _ := adminFixture(t, false)

	rec := httptest.NewRecorder()
	a.handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rec.Code)
	}
}

func TestAdminHealthzMethodNotAllowed(t *testing.T) {
	t.Parallel()
	a, _ := adminFixture(t, true)

	rec := httptest.NewRecorder()
	a.handleHealthz(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rec.Code)
	}
}

func TestAdminMissed(t *testing.T) {
	t.Parallel()
	a, store := adminFixture(t, true)
	if err := store.RecordMissed("main", 101, 200, "timeout"); err != nil {
		t.Fatalf("RecordMissed: %v", err)
	}
	if err := store.RecordMissed("other", 102, 201, "forbidden"); err != nil {
		t.Fatalf("RecordMissed: %v", err)
	}

	rec := httptest.NewRecorder()
	a.handleMissed(rec, httptest.NewRequest(http.MethodGet, "/api/missed?route=main", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var entries []struct {
		Route              string `json:"route"`
		SourceID           int64  `json:"source_id"`
		DestinationChannel int64  `json:"destination_channel"`
		Reason             string `json:"reason"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	if entries[0].Route != "main" || entries[0].SourceID != 101 || entries[0].Reason != "timeout" {
		t.Errorf("entry: got %+v", entries[0])
	}
}

func TestAdminMissedEmpty(t *testing.T) {
	t.Parallel()
	a, _ := adminFixture(t, true)

	rec := httptest.NewRecorder()
	a.handleMissed(rec, httptest.NewRequest(http.MethodGet, "/api/missed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "[]\n" && got != "[]" {
		t.Errorf("empty list body: got %q", got)
	}
}
