package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"audioconv/internal/events"
	"audioconv/internal/manager"
	"audioconv/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeScheduler struct {
	mu       sync.Mutex
	state    models.RunState
	requests []manager.Request
	stops    int
}

func (f *fakeScheduler) StartConversion(req manager.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == models.StateRunning {
		return "rejected", manager.ErrAlreadyRunning
	}
	f.state = models.StateRunning
	f.requests = append(f.requests, req)
	return "run-1", nil
}

func (f *fakeScheduler) setState(state models.RunState) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

func (f *fakeScheduler) StopConversion() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.state == models.StateRunning
}

func (f *fakeScheduler) State() models.RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return models.StateIdle
	}
	return f.state
}

func (f *fakeScheduler) Stats() models.Stats {
	return models.Stats{RunID: "run-1", TotalFiles: 3}
}

type fakeHistory struct {
	runs []models.RunSummary
}

func (f fakeHistory) Recent(_ context.Context, limit int) ([]models.RunSummary, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f fakeHistory) Get(_ context.Context, runID string) (models.RunSummary, bool, error) {
	for _, r := range f.runs {
		if r.RunID == runID {
			return r, true, nil
		}
	}
	return models.RunSummary{}, false, nil
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeScheduler, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	sched := &fakeScheduler{}
	return New(sched, bus, opts), sched, bus
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFormats(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	rec := do(t, srv.Router(), http.MethodGet, "/api/formats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Output []string `json:"output"`
		Input  []string `json:"input"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Output) == 0 || len(body.Input) == 0 {
		t.Fatalf("empty format lists: %+v", body)
	}
}

func TestConvertAcceptedThenConflict(t *testing.T) {
	srv, sched, _ := newTestServer(t, Options{})
	router := srv.Router()

	rec := do(t, router, http.MethodPost, "/api/convert", `{"paths":["/music/a.wav"],"format":"mp3"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), "run-1") {
		t.Errorf("body = %s", rec.Body)
	}
	if len(sched.requests) != 1 || sched.requests[0].Format != "mp3" {
		t.Fatalf("requests = %+v", sched.requests)
	}

	rec = do(t, router, http.MethodPost, "/api/convert", `{"paths":["/music/b.wav"],"format":"flac"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", rec.Code)
	}
}

func TestConvertValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed", `{"paths":`},
		{"no paths", `{"format":"mp3"}`},
		{"no format", `{"paths":["a.wav"]}`},
		{"bad format", `{"paths":["a.wav"],"format":"xyz"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, sched, _ := newTestServer(t, Options{})
			rec := do(t, srv.Router(), http.MethodPost, "/api/convert", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if len(sched.requests) != 0 {
				t.Fatal("scheduler should not be called")
			}
		})
	}
}

func TestStop(t *testing.T) {
	srv, sched, _ := newTestServer(t, Options{})
	sched.setState(models.StateRunning)
	rec := do(t, srv.Router(), http.MethodPost, "/api/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"stopping":true`) {
		t.Errorf("body = %s", rec.Body)
	}
	if sched.stops != 1 {
		t.Errorf("stops = %d", sched.stops)
	}
}

func TestStatusIncludesSnapshot(t *testing.T) {
	srv, _, bus := newTestServer(t, Options{})
	bus.Publish(events.Status("run-1", "Found 3 audio files"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := do(t, srv.Router(), http.MethodGet, "/api/status", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "Found 3 audio files") {
			if !strings.Contains(rec.Body.String(), `"state":"idle"`) {
				t.Errorf("body = %s", rec.Body)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never reflected status: %s", rec.Body)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHistoryRoutes(t *testing.T) {
	hist := fakeHistory{runs: []models.RunSummary{
		{RunID: "b", Format: "mp3", Success: true},
		{RunID: "a", Format: "flac"},
	}}
	srv, _, _ := newTestServer(t, Options{History: hist})
	router := srv.Router()

	rec := do(t, router, http.MethodGet, "/api/history?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Runs []models.RunSummary `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) != 1 || body.Runs[0].RunID != "b" {
		t.Fatalf("runs = %+v", body.Runs)
	}

	if rec := do(t, router, http.MethodGet, "/api/history?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/api/history/a", ""); rec.Code != http.StatusOK {
		t.Errorf("get run status = %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/api/history/zzz", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d", rec.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	if rec := do(t, srv.Router(), http.MethodGet, "/api/history", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func readResponse(t *testing.T, conn *websocket.Conn) wsResponse {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var raw struct {
		Type  string          `json:"type"`
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := conn.ReadJSON(&raw); err != nil {
		t.Fatalf("read: %v", err)
	}
	return wsResponse{Type: raw.Type, Data: raw.Data, Error: raw.Error}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	srv, sched, bus := newTestServer(t, Options{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if msg := readResponse(t, conn); msg.Type != "state" {
		t.Fatalf("first message = %q, want state", msg.Type)
	}

	// The subscription is in place once a command has been answered.
	if err := conn.WriteJSON(wsMessage{Type: "get_state"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readResponse(t, conn); msg.Type != "state" {
		t.Fatalf("get_state reply = %q", msg.Type)
	}
	if srv.ClientCount() != 1 {
		t.Errorf("clients = %d, want 1", srv.ClientCount())
	}

	bus.Publish(events.Progress("run-1", 40))
	msg := readResponse(t, conn)
	if msg.Type != string(events.KindProgress) {
		t.Fatalf("event type = %q", msg.Type)
	}
	var e events.Event
	if err := json.Unmarshal(msg.Data.(json.RawMessage), &e); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if e.Percent != 40 || e.RunID != "run-1" {
		t.Errorf("event = %+v", e)
	}

	sched.setState(models.StateRunning)
	if err := conn.WriteJSON(wsMessage{Type: "stop"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readResponse(t, conn); msg.Type != "stop_response" {
		t.Fatalf("stop reply = %q", msg.Type)
	}

	if err := conn.WriteJSON(wsMessage{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readResponse(t, conn); msg.Error == "" {
		t.Fatal("expected error for unknown command")
	}
}

func TestRunShutsDownOnCancel(t *testing.T) {
	srv, _, _ := newTestServer(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
