// Package dashboard serves a small web UI and REST/WebSocket API for
// watching a Sort run's progress live.
//
// The dashboard is mounted on /dashboard and /api/ by whatever process
// hosts it (normally `foldsort sort --watch`, which starts an HTTP
// server for the duration of one run). It provides:
//
//   - Web UI:    GET /dashboard        — Single-page progress view
//   - WebSocket: GET /dashboard/ws     — Live per-file progress feed
//   - REST API:  GET /api/status       — Latest run summary
//                GET /api/runs         — Run history
//                POST /api/runs/cancel — Request cancellation of a run
//                GET /api/audit        — Recent audit log entries
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/foldsort/foldsort/internal/audit"
	"github.com/foldsort/foldsort/internal/runregistry"
)

// Options holds the dependencies injected into the dashboard.
type Options struct {
	AuditLog *audit.AuditLog
	Registry *runregistry.Registry
}

// Dashboard serves the progress web UI and REST/WebSocket API.
// It also implements sorter.Observer, so it can be passed directly as
// a Sort run's progress callback.
type Dashboard struct {
	auditLog *audit.AuditLog
	registry *runregistry.Registry
	wsHub    *wsHub
}

// New creates a new Dashboard with the given dependencies.
func New(opts Options) *Dashboard {
	d := &Dashboard{
		auditLog: opts.AuditLog,
		registry: opts.Registry,
		wsHub:    newWSHub(),
	}

	go d.wsHub.run()

	return d
}

// OnProgress implements sorter.Observer. Called by the Sorter's worker
// goroutines as files are scanned and matched; hands the event to the
// hub for marshaling and fan-out to every connected WebSocket client.
// Non-blocking.
func (d *Dashboard) OnProgress(scanned, matched int, currentPath string) {
	d.wsHub.broadcast(progressEvent{ScannedN: scanned, MatchedN: matched, CurrentPath: currentPath})
}

// ServeHTTP handles requests to /dashboard and /dashboard/.
// Serves a minimal embedded HTML progress view.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(dashboardHTML))
}

// WebSocketHandler returns an http.Handler for the /dashboard/ws endpoint.
// Clients connect here to receive real-time progress events.
func (d *Dashboard) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.handleWebSocket(w, r)
	})
}

// APIHandler returns an http.Handler for the /api/ REST endpoints.
func (d *Dashboard) APIHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", d.handleAPIStatus)
	mux.HandleFunc("/api/runs", d.handleAPIRuns)
	mux.HandleFunc("/api/runs/cancel", d.handleAPIRunsCancel)
	mux.HandleFunc("/api/audit", d.handleAPIAudit)

	return mux
}

// handleAPIStatus returns a summary of the most recently started run.
// GET /api/status
func (d *Dashboard) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	runs := d.registry.List()
	if len(runs) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, runs[0])
}

// handleAPIRuns returns the full run history, most recent first.
// GET /api/runs
func (d *Dashboard) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, d.registry.List())
}

// handleAPIRunsCancel requests cancellation of a running Sort invocation.
// POST /api/runs/cancel  { "id": "run-1" }
func (d *Dashboard) handleAPIRunsCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id field required", http.StatusBadRequest)
		return
	}

	if err := d.registry.Cancel(req.ID); err != nil {
		slog.Error("cancel via API failed", "run", req.ID, "error", err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel_requested", "id": req.ID})
}

// handleAPIAudit returns recent audit entries.
// GET /api/audit?limit=50&run_id=run-1&outcome=failed
func (d *Dashboard) handleAPIAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	params := audit.QueryParams{
		RunID:   r.URL.Query().Get("run_id"),
		Outcome: r.URL.Query().Get("outcome"),
		Limit:   limit,
	}

	entries, err := d.auditLog.Query(params)
	if err != nil {
		slog.Error("audit query failed", "error", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

// dashboardHTML is the embedded HTML for the live progress view.
// Minimal single-page UI with zero build dependencies: run status via
// periodic fetch, per-file progress via WebSocket.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>foldsort</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
         background: #0f1117; color: #e1e4e8; padding: 24px; }
  h1 { font-size: 24px; margin-bottom: 8px; }
  .subtitle { color: #8b949e; margin-bottom: 24px; }
  .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; margin-bottom: 24px; }
  .card { background: #161b22; border: 1px solid #30363d; border-radius: 8px; padding: 16px; }
  .card h2 { font-size: 14px; color: #8b949e; text-transform: uppercase; margin-bottom: 12px; }
  table { width: 100%; border-collapse: collapse; font-size: 13px; }
  th { text-align: left; color: #8b949e; padding: 6px 8px; border-bottom: 1px solid #30363d; }
  td { padding: 6px 8px; border-bottom: 1px solid #21262d; }
  .status-running { color: #58a6ff; }
  .status-completed { color: #3fb950; }
  .status-cancelled { color: #d29922; }
  .status-failed { color: #f85149; }
  #live-feed { max-height: 300px; overflow-y: auto; font-family: monospace; font-size: 12px; }
  .feed-entry { padding: 4px 0; border-bottom: 1px solid #21262d; }
  .btn { background: #21262d; border: 1px solid #30363d; color: #e1e4e8;
         padding: 4px 12px; border-radius: 4px; cursor: pointer; font-size: 12px; }
  .btn:hover { background: #30363d; }
  .btn-danger { border-color: #f85149; color: #f85149; }
</style>
</head>
<body>
<h1>foldsort</h1>
<p class="subtitle">Live sort progress</p>

<div class="grid">
  <div class="card">
    <h2>Runs</h2>
    <table>
      <thead><tr><th>ID</th><th>Status</th><th>Source</th><th>Scanned</th><th>Matched</th><th>Action</th></tr></thead>
      <tbody id="runs-tbody"><tr><td colspan="6">Loading...</td></tr></tbody>
    </table>
  </div>
</div>

<div class="card">
  <h2>Live Progress Feed</h2>
  <div id="live-feed"><div class="feed-entry">Connecting...</div></div>
</div>

<script>
function esc(s) {
  if (s == null) return '';
  return String(s).replace(/&/g,'&amp;').replace(/</g,'&lt;').replace(/>/g,'&gt;').replace(/"/g,'&quot;').replace(/'/g,'&#39;');
}
async function refresh() {
  try {
    const res = await fetch('/api/runs');
    const runs = await res.json();
    renderRuns(runs);
  } catch(e) { console.error('refresh failed:', e); }
}

function renderRuns(runs) {
  const tbody = document.getElementById('runs-tbody');
  if (!runs || runs.length === 0) { tbody.innerHTML = '<tr><td colspan="6">No runs yet</td></tr>'; return; }
  tbody.innerHTML = runs.map(r => {
    const cls = 'status-' + esc(r.status);
    const btn = r.status === 'running'
      ? '<button class="btn btn-danger" onclick="cancelRun(\'' + esc(r.id) + '\')">Cancel</button>'
      : '';
    return '<tr><td>' + esc(r.id) + '</td><td class="' + cls + '">' + esc(r.status) +
      '</td><td>' + esc(r.source) + '</td><td>' + (r.scanned_n||0) +
      '</td><td>' + (r.matched_n||0) + '</td><td>' + btn + '</td></tr>';
  }).join('');
}

async function cancelRun(id) {
  await fetch('/api/runs/cancel', { method: 'POST', headers: {'Content-Type':'application/json'},
    body: JSON.stringify({id: id}) });
  refresh();
}

// WebSocket for live per-file progress.
function connectWS() {
  const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
  const ws = new WebSocket(proto + '//' + location.host + '/dashboard/ws');
  ws.onmessage = function(e) {
    try {
      const event = JSON.parse(e.data);
      const feed = document.getElementById('live-feed');
      const div = document.createElement('div');
      div.className = 'feed-entry';
      div.innerHTML = 'scanned=' + event.scanned_n + ' matched=' + event.matched_n +
        ' path=' + esc(event.current_path);
      feed.insertBefore(div, feed.firstChild);
      while (feed.children.length > 100) feed.removeChild(feed.lastChild);
    } catch(err) { console.error('ws parse error:', err); }
  };
  ws.onclose = function() { setTimeout(connectWS, 3000); };
  ws.onerror = function() { ws.close(); };
}

refresh();
setInterval(refresh, 3000);
connectWS();
</script>
</body>
</html>`
