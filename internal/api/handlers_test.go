package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentsocial/agentsocial/internal/agent/registry"
	"github.com/agentsocial/agentsocial/internal/lifecycle/store"
	v1 "github.com/agentsocial/agentsocial/pkg/api/v1"
)

type fakeExecutions struct {
	snapshots []v1.ExecutionSnapshot
}

func (f *fakeExecutions) Snapshot() []v1.ExecutionSnapshot { return f.snapshots }

type fakeLanes struct {
	snapshots []v1.LaneSnapshot
}

func (f *fakeLanes) Snapshot() []v1.LaneSnapshot { return f.snapshots }

type fakeBus struct {
	connected bool
}

func (f *fakeBus) IsConnected() bool { return f.connected }

func newTestRouter(t *testing.T, st store.Store) *gin.Engine {
	t.Helper()
	reg := registry.NewRegistry(nil)
	reg.LoadDefaults()

	executions := &fakeExecutions{snapshots: []v1.ExecutionSnapshot{
		{AppID: "cli_app", ChatID: "oc_chat", Mode: v1.RunModeAuto, PID: 4242, StartedAt: time.Now()},
	}}
	lanes := &fakeLanes{snapshots: []v1.LaneSnapshot{
		{Key: "cli_app:oc_chat", Pending: 2, InFlight: true},
	}}
	return NewRouter(st, executions, lanes, &fakeBus{connected: true}, reg, nil)
}

func seedRecord(t *testing.T, st store.Store, id, chatID string, state v1.CommandState) *v1.CommandRecord {
	t.Helper()
	rec := &v1.CommandRecord{
		ID:            id,
		CorrelationID: "corr-" + id,
		AppID:         "cli_app",
		ChatID:        chatID,
		Command:       "do things",
		State:         state,
	}
	if err := st.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return rec
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore())

	w := doRequest(router, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q", body["status"])
	}
}

func TestStatus(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore())

	w := doRequest(router, http.MethodGet, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Executions   []v1.ExecutionSnapshot `json:"executions"`
		Lanes        []v1.LaneSnapshot      `json:"lanes"`
		BusConnected bool                   `json:"bus_connected"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Executions) != 1 || body.Executions[0].PID != 4242 {
		t.Errorf("executions = %+v", body.Executions)
	}
	if len(body.Lanes) != 1 || body.Lanes[0].Pending != 2 {
		t.Errorf("lanes = %+v", body.Lanes)
	}
	if !body.BusConnected {
		t.Error("bus_connected = false")
	}
}

func TestListCommands(t *testing.T) {
	st := store.NewMemoryStore()
	seedRecord(t, st, "cmd-1", "oc_a", v1.CommandStateCompleted)
	seedRecord(t, st, "cmd-2", "oc_b", v1.CommandStatePlanReady)
	router := newTestRouter(t, st)

	w := doRequest(router, http.MethodGet, "/api/v1/commands")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body struct {
		Commands []*v1.CommandRecord `json:"commands"`
		Count    int                 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
}

func TestListCommandsByChat(t *testing.T) {
	st := store.NewMemoryStore()
	seedRecord(t, st, "cmd-1", "oc_a", v1.CommandStateCompleted)
	seedRecord(t, st, "cmd-2", "oc_b", v1.CommandStatePlanReady)
	router := newTestRouter(t, st)

	w := doRequest(router, http.MethodGet, "/api/v1/commands?app_id=cli_app&chat_id=oc_b")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Commands []*v1.CommandRecord `json:"commands"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Commands) != 1 || body.Commands[0].ChatID != "oc_b" {
		t.Errorf("commands = %+v", body.Commands)
	}
}

func TestListCommandsRejectsBadLimit(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore())

	for _, limit := range []string{"abc", "0", "-5"} {
		w := doRequest(router, http.MethodGet, "/api/v1/commands?limit="+limit)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, w.Code)
		}
	}
}

func TestGetCommand(t *testing.T) {
	st := store.NewMemoryStore()
	seedRecord(t, st, "cmd-1", "oc_a", v1.CommandStateExecuting)
	router := newTestRouter(t, st)

	w := doRequest(router, http.MethodGet, "/api/v1/commands/cmd-1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var rec v1.CommandRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if rec.ID != "cmd-1" || rec.State != v1.CommandStateExecuting {
		t.Errorf("record = %+v", rec)
	}
}

func TestGetCommandNotFound(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore())

	w := doRequest(router, http.MethodGet, "/api/v1/commands/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListAgentProfiles(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore())

	w := doRequest(router, http.MethodGet, "/api/v1/agents")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count < 1 {
		t.Errorf("count = %d, want at least one profile", body.Count)
	}
}

func TestGetAgentProfile(t *testing.T) {
	router := newTestRouter(t, store.NewMemoryStore())

	w := doRequest(router, http.MethodGet, "/api/v1/agents/gemini")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	w = doRequest(router, http.MethodGet, "/api/v1/agents/unknown")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
