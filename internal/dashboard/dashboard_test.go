package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/foldsort/foldsort/internal/audit"
	"github.com/foldsort/foldsort/internal/runregistry"
)

func newTestDashboard(t *testing.T) *Dashboard {
	t.Helper()
	dir := t.TempDir()

	a, err := audit.New(filepath.Join(dir, "audit"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	reg, err := runregistry.NewRegistry(filepath.Join(dir, "runs.yaml"))
	if err != nil {
		t.Fatal(err)
	}

	return New(Options{AuditLog: a, Registry: reg})
}

func TestDashboard_ServeHTTP_ReturnsHTML(t *testing.T) {
	d := newTestDashboard(t)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	rec := httptest.NewRecorder()

	d.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "<html") {
		t.Error("expected HTML body")
	}
}

func TestDashboard_APIStatus_Idle(t *testing.T) {
	d := newTestDashboard(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()

	d.APIHandler().ServeHTTP(rec, req)

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "idle" {
		t.Errorf("expected idle status with no runs, got %v", body)
	}
}

func TestDashboard_APIRuns_ReflectsRegistry(t *testing.T) {
	d := newTestDashboard(t)
	d.registry.Start("run-1", "/inbox", false)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()
	d.APIHandler().ServeHTTP(rec, req)

	var runs []runregistry.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("expected run-1 in runs list, got %+v", runs)
	}
}

func TestDashboard_APIRunsCancel_FlipsFlag(t *testing.T) {
	d := newTestDashboard(t)
	flag := d.registry.Start("run-1", "/inbox", false)

	body := strings.NewReader(`{"id":"run-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/runs/cancel", body)
	rec := httptest.NewRecorder()
	d.APIHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if !flag.Load() {
		t.Error("expected cancel flag to be set")
	}
}

func TestDashboard_APIRunsCancel_UnknownRun(t *testing.T) {
	d := newTestDashboard(t)

	body := strings.NewReader(`{"id":"missing"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/runs/cancel", body)
	rec := httptest.NewRecorder()
	d.APIHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rec.Code)
	}
}

func TestDashboard_APIAudit_ReturnsEntries(t *testing.T) {
	d := newTestDashboard(t)
	d.auditLog.LogAction("run-1", "photos", "/inbox/a.jpg", "move", "/photos/a.jpg", true, "")

	req := httptest.NewRequest(http.MethodGet, "/api/audit?run_id=run-1", nil)
	rec := httptest.NewRecorder()
	d.APIHandler().ServeHTTP(rec, req)

	var entries []audit.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Path != "/inbox/a.jpg" {
		t.Errorf("expected 1 audit entry for run-1, got %+v", entries)
	}
}

func TestDashboard_OnProgress_BroadcastsToHub(t *testing.T) {
	d := newTestDashboard(t)

	// No connected clients — should not block or panic.
	d.OnProgress(5, 2, "/inbox/c.jpg")
}
