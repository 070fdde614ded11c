package kiosk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/labdeck/internal/bridge"
	"github.com/danmuck/labdeck/internal/supervisor"
	"github.com/danmuck/labdeck/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

// fakeBackend stands in for the bridge.
type fakeBackend struct {
	mu        sync.Mutex
	commands  []string
	reply     string
	nextSub   int
	subs      map[int]func(string)
	tasks     []bridge.TaskStatus
	commandUp bool
	updatesUp bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		reply:     `{"status":"started","id":"abcd1234","original_request":"x"}`,
		subs:      make(map[int]func(string)),
		commandUp: true,
		updatesUp: true,
	}
}

func (f *fakeBackend) SendCommand(_ context.Context, command string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	return f.reply
}

func (f *fakeBackend) OnUpdate(fn func(string)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	id := f.nextSub
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeBackend) publish(raw string) {
	f.mu.Lock()
	fns := make([]func(string), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(raw)
	}
}

func (f *fakeBackend) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeBackend) Tasks() []bridge.TaskStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks
}

func (f *fakeBackend) CommandUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commandUp
}

func (f *fakeBackend) TelemetryUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updatesUp
}

var testNow = time.UnixMilli(1700000000000)

func newTestApp(t *testing.T, fake *fakeBackend) *App {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts := Options{Now: func() time.Time { return testNow }}
	if fake != nil {
		opts.Commander = fake
		opts.Telemetry = fake
		opts.Tasks = fake
		opts.Health = fake
	}
	app, err := New(opts)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(app.Close)
	return app
}

func do(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if _, isString := body.(string); body != nil && !isString {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	app.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	fake := newFakeBackend()
	app := newTestApp(t, fake)
	app.opts.BackendStatus = func() supervisor.Status {
		return supervisor.Status{PID: 42, Running: true}
	}

	rr := do(t, app, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"pid":42`) {
		t.Fatalf("unexpected health: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, app, http.MethodGet, "/ready", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d %s", rr.Code, rr.Body.String())
	}

	fake.mu.Lock()
	fake.updatesUp = false
	fake.mu.Unlock()
	rr = do(t, app, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	if body["command"] != true || body["telemetry"] != false {
		t.Fatalf("unexpected readiness body: %v", body)
	}

	if rr := do(t, newTestApp(t, nil), http.MethodGet, "/ready", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("app without a bridge should not be ready, got %d", rr.Code)
	}
}

func TestSubmitJobRelaysReplyVerbatim(t *testing.T) {
	testlog.Start(t)
	fake := newFakeBackend()
	app := newTestApp(t, fake)

	rr := do(t, app, http.MethodPost, "/api/jobs", "  analyze plate 3 ")
	if rr.Code != http.StatusOK || rr.Body.String() != fake.reply {
		t.Fatalf("unexpected reply: %d %s", rr.Code, rr.Body.String())
	}
	rr = do(t, app, http.MethodPost, "/api/jobs", map[string]string{"command": "calibrate"})
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if len(fake.commands) != 2 || fake.commands[0] != "  analyze plate 3 " || fake.commands[1] != "calibrate" {
		t.Fatalf("commands should be forwarded untouched: %q", fake.commands)
	}

	for _, blank := range []string{"", " \n\t"} {
		if rr := do(t, app, http.MethodPost, "/api/jobs", blank); rr.Code != http.StatusBadRequest {
			t.Fatalf("blank command %q should be rejected, got %d", blank, rr.Code)
		}
	}

	atLimit := strings.Repeat("x", maxCommandBytes)
	if rr := do(t, app, http.MethodPost, "/api/jobs", atLimit); rr.Code != http.StatusOK {
		t.Fatalf("command at the limit should pass, got %d", rr.Code)
	}
	if rr := do(t, app, http.MethodPost, "/api/jobs", atLimit+"y"); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized command should be rejected, got %d", rr.Code)
	}
	if len(fake.commands) != 3 || len(fake.commands[2]) != maxCommandBytes {
		t.Fatalf("oversized command must not reach the backend: %d commands", len(fake.commands))
	}

	bare := newTestApp(t, nil)
	rr = do(t, bare, http.MethodPost, "/api/jobs", "hello")
	if rr.Code != http.StatusOK || rr.Body.String() != bridge.ErrorReply {
		t.Fatalf("expected error reply without backend, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestTasksAndLabwareListings(t *testing.T) {
	testlog.Start(t)
	fake := newFakeBackend()
	fake.tasks = []bridge.TaskStatus{{ID: "abcd1234", Status: "running", Progress: 40}}
	app := newTestApp(t, fake)

	tasks := decode[struct {
		Tasks []bridge.TaskStatus `json:"tasks"`
	}](t, do(t, app, http.MethodGet, "/api/tasks", nil))
	if len(tasks.Tasks) != 1 || tasks.Tasks[0].Progress != 40 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}

	empty := do(t, newTestApp(t, nil), http.MethodGet, "/api/tasks", nil)
	if !strings.Contains(empty.Body.String(), `"tasks":[]`) {
		t.Fatalf("expected empty task list, got %s", empty.Body.String())
	}

	cats := decode[struct {
		Categories []string `json:"categories"`
	}](t, do(t, app, http.MethodGet, "/api/labware/categories", nil))
	if len(cats.Categories) == 0 {
		t.Fatalf("expected categories")
	}
	filtered := decode[struct {
		Labware []struct {
			Category string `json:"category"`
		} `json:"labware"`
	}](t, do(t, app, http.MethodGet, "/api/labware?category=Reservoir", nil))
	if len(filtered.Labware) == 0 {
		t.Fatalf("expected reservoir labware")
	}
	for _, lw := range filtered.Labware {
		if lw.Category != "Reservoir" {
			t.Fatalf("filter leaked category %q", lw.Category)
		}
	}
}
