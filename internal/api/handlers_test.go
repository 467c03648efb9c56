package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/metrics"
	"github.com/LeventeLantos/message-scheduler/internal/model"
	"github.com/LeventeLantos/message-scheduler/internal/repo"
	"github.com/LeventeLantos/message-scheduler/internal/scheduler"
	"github.com/LeventeLantos/message-scheduler/internal/service"
)

type fakeChannel struct {
	ready     bool
	qr        string
	logoutErr error
	loggedOut bool
	known     []model.KnownContact
}

func (f *fakeChannel) IsReady() bool       { return f.ready }
func (f *fakeChannel) PairingCode() string { return f.qr }

func (f *fakeChannel) SendText(ctx context.Context, phone, body string) (string, error) {
	return "m-" + phone, nil
}

func (f *fakeChannel) SendMedia(ctx context.Context, phone, body, attachmentPath string) (string, error) {
	return "m-" + phone, nil
}

func (f *fakeChannel) Logout(context.Context) error {
	if f.logoutErr != nil {
		return f.logoutErr
	}
	f.loggedOut = true
	f.ready = false
	return nil
}

func (f *fakeChannel) ListKnownContacts(context.Context) ([]model.KnownContact, error) {
	return f.known, nil
}

type testEnv struct {
	store   *repo.Store
	sched   *scheduler.Scheduler
	channel *fakeChannel
	mux     http.Handler
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := repo.Open(context.Background(), repo.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ch := &fakeChannel{ready: true}
	stats := service.NewStats(store, time.UTC)
	dispatcher := service.NewDispatcher(store, store, ch, stats, zerolog.Nop()).WithLocation(time.UTC)

	// Long interval so only the immediate tick happens.
	s, err := scheduler.New(time.Hour, func(ctx context.Context) {
		_, _ = dispatcher.RunPass(ctx)
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	h := NewHandler(Deps{
		Scheduler: s,
		Queue:     service.NewQueue(store, store, store, time.UTC, 10, zerolog.Nop()),
		Directory: service.NewDirectory(store, store, ch, zerolog.Nop()),
		Stats:     stats,
		Channel:   ch,
		DB:        store,
		Registry:  metrics.New().Registry,
		Log:       zerolog.Nop(),
	})
	return &testEnv{store: store, sched: s, channel: ch, mux: Router(h)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func expectCode(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%q", want, rr.Code, rr.Body.String())
	}
}

func createdID(t *testing.T, rr *httptest.ResponseRecorder) int64 {
	t.Helper()
	expectCode(t, rr, http.StatusCreated)
	id, ok := decodeJSON(t, rr)["id"].(float64)
	if !ok {
		t.Fatalf("expected id in body, got %q", rr.Body.String())
	}
	return int64(id)
}

func TestHealth(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodGet, "/v1/health", nil)
	expectCode(t, rr, http.StatusOK)
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	body := decodeJSON(t, rr)
	if v, ok := body["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %v", body)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	env := newTestServer(t)

	// Initially should be false.
	{
		rr := env.do(t, http.MethodGet, "/v1/scheduler/status", nil)
		expectCode(t, rr, http.StatusOK)
		body := decodeJSON(t, rr)
		if running, ok := body["running"].(bool); !ok || running {
			t.Fatalf("expected running=false, got %v", body)
		}
	}

	// Start
	{
		rr := env.do(t, http.MethodPost, "/v1/scheduler/start", nil)
		expectCode(t, rr, http.StatusOK)
		body := decodeJSON(t, rr)
		if running, ok := body["running"].(bool); !ok || !running {
			t.Fatalf("expected running=true after start, got %v", body)
		}
	}

	// Stop
	{
		rr := env.do(t, http.MethodPost, "/v1/scheduler/stop", nil)
		expectCode(t, rr, http.StatusOK)
		body := decodeJSON(t, rr)
		if running, ok := body["running"].(bool); !ok || running {
			t.Fatalf("expected running=false after stop, got %v", body)
		}
	}
}

func TestStatusAndLogout(t *testing.T) {
	env := newTestServer(t)
	env.channel.ready = false
	env.channel.qr = "qr-data"

	body := decodeJSON(t, env.do(t, http.MethodGet, "/v1/status", nil))
	if body["ready"] != false || body["qr"] != "qr-data" {
		t.Fatalf("unexpected status: %v", body)
	}

	expectCode(t, env.do(t, http.MethodPost, "/v1/logout", nil), http.StatusOK)
	if !env.channel.loggedOut {
		t.Fatalf("expected logout to reach the channel")
	}

	env.channel.logoutErr = errors.New("bridge unreachable")
	expectCode(t, env.do(t, http.MethodPost, "/v1/logout", nil), http.StatusInternalServerError)
}

func TestContactsCRUD(t *testing.T) {
	env := newTestServer(t)

	id := createdID(t, env.do(t, http.MethodPost, "/v1/contacts", map[string]any{"name": "Ann", "phone": "+1 555 123 4567"}))

	rr := env.do(t, http.MethodGet, "/v1/contacts/"+itoa(id), nil)
	expectCode(t, rr, http.StatusOK)
	if got := decodeJSON(t, rr)["phone"]; got != "15551234567" {
		t.Fatalf("expected normalized phone, got %v", got)
	}

	expectCode(t, env.do(t, http.MethodPost, "/v1/contacts", map[string]any{"name": "Dup", "phone": "15551234567"}), http.StatusConflict)
	expectCode(t, env.do(t, http.MethodPost, "/v1/contacts", map[string]any{"name": "Bad", "phone": "12"}), http.StatusBadRequest)
	expectCode(t, env.do(t, http.MethodPost, "/v1/contacts", "{not json"), http.StatusBadRequest)

	expectCode(t, env.do(t, http.MethodPut, "/v1/contacts/"+itoa(id), map[string]any{"name": "Annie", "phone": "15551234567"}), http.StatusOK)

	rr = env.do(t, http.MethodGet, "/v1/contacts", nil)
	expectCode(t, rr, http.StatusOK)
	items := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["name"] != "Annie" {
		t.Fatalf("unexpected contacts: %v", items)
	}

	expectCode(t, env.do(t, http.MethodDelete, "/v1/contacts/"+itoa(id), nil), http.StatusNoContent)
	expectCode(t, env.do(t, http.MethodGet, "/v1/contacts/"+itoa(id), nil), http.StatusNotFound)
	expectCode(t, env.do(t, http.MethodGet, "/v1/contacts/abc", nil), http.StatusBadRequest)
}

func TestGroupsAndBulkAssign(t *testing.T) {
	env := newTestServer(t)

	gid := createdID(t, env.do(t, http.MethodPost, "/v1/groups", map[string]any{"name": "family"}))
	expectCode(t, env.do(t, http.MethodPost, "/v1/groups", map[string]any{"name": "family"}), http.StatusConflict)

	a := createdID(t, env.do(t, http.MethodPost, "/v1/contacts", map[string]any{"name": "Ann", "phone": "15550000001"}))
	b := createdID(t, env.do(t, http.MethodPost, "/v1/contacts", map[string]any{"name": "Bob", "phone": "15550000002"}))

	rr := env.do(t, http.MethodPost, "/v1/contacts/bulk-group", map[string]any{"contactIds": []int64{a, b}, "groupId": gid})
	expectCode(t, rr, http.StatusOK)
	if decodeJSON(t, rr)["updated"] != float64(2) {
		t.Fatalf("unexpected bulk result: %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/groups", nil)
	items := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["memberCount"] != float64(2) {
		t.Fatalf("unexpected groups: %v", items)
	}

	expectCode(t, env.do(t, http.MethodDelete, "/v1/groups/"+itoa(gid), nil), http.StatusNoContent)
	expectCode(t, env.do(t, http.MethodDelete, "/v1/groups/"+itoa(gid), nil), http.StatusNotFound)
	expectCode(t, env.do(t, http.MethodGet, "/v1/contacts/"+itoa(a), nil), http.StatusOK)
}

func TestImportAndClean(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodPost, "/v1/contacts/import", map[string]any{"contacts": []map[string]any{
		{"name": "Ann", "phone": "15550000001"},
		{"name": "Bad", "phone": "1"},
	}})
	expectCode(t, rr, http.StatusOK)
	body := decodeJSON(t, rr)
	if body["imported"] != float64(1) || len(body["errors"].([]any)) != 1 {
		t.Fatalf("unexpected import result: %v", body)
	}

	env.channel.known = []model.KnownContact{{Name: "Cid", Phone: "15550000003"}}
	rr = env.do(t, http.MethodPost, "/v1/contacts/import-channel", nil)
	expectCode(t, rr, http.StatusOK)
	if decodeJSON(t, rr)["imported"] != float64(1) {
		t.Fatalf("unexpected channel import: %q", rr.Body.String())
	}

	env.channel.ready = false
	expectCode(t, env.do(t, http.MethodPost, "/v1/contacts/import-channel", nil), http.StatusServiceUnavailable)

	rr = env.do(t, http.MethodPost, "/v1/contacts/clean", nil)
	expectCode(t, rr, http.StatusOK)
	body = decodeJSON(t, rr)
	if body["cleaned"] != float64(0) || body["duplicates"] != float64(0) {
		t.Fatalf("unexpected clean result: %v", body)
	}
}

func TestMessagesAndQueue(t *testing.T) {
	env := newTestServer(t)
	cid := createdID(t, env.do(t, http.MethodPost, "/v1/contacts", map[string]any{"name": "Ann", "phone": "15550000001"}))

	// Non-numeric delay falls back to the default.
	rr := env.do(t, http.MethodPost, "/v1/messages", map[string]any{
		"contactId": cid, "message": "later", "scheduledTime": "2099-01-01T09:00", "delaySeconds": "abc",
	})
	first := createdID(t, rr)

	rr = env.do(t, http.MethodPost, "/v1/messages", map[string]any{
		"contactId": cid, "message": "later too", "scheduledTime": "2099-01-01 10:00", "delaySeconds": "5",
	})
	second := createdID(t, rr)

	expectCode(t, env.do(t, http.MethodPost, "/v1/messages", map[string]any{
		"contactId": cid, "message": "x", "delaySeconds": -3,
	}), http.StatusBadRequest)
	expectCode(t, env.do(t, http.MethodPost, "/v1/messages", map[string]any{"message": "no target"}), http.StatusBadRequest)

	rr = env.do(t, http.MethodGet, "/v1/queue/"+itoa(first), nil)
	expectCode(t, rr, http.StatusOK)
	if decodeJSON(t, rr)["delaySeconds"] != float64(10) {
		t.Fatalf("expected default delay, got %q", rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/v1/queue/"+itoa(second), nil)
	if decodeJSON(t, rr)["delaySeconds"] != float64(5) {
		t.Fatalf("expected delay 5, got %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/queue", nil)
	expectCode(t, rr, http.StatusOK)
	if items := decodeJSON(t, rr)["items"].([]any); len(items) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(items))
	}

	if err := env.store.SetStatus(context.Background(), first, model.Processing); err != nil {
		t.Fatalf("SetStatus() error: %v", err)
	}
	expectCode(t, env.do(t, http.MethodDelete, "/v1/queue/"+itoa(first), nil), http.StatusConflict)
	expectCode(t, env.do(t, http.MethodDelete, "/v1/queue/999", nil), http.StatusNotFound)

	rr = env.do(t, http.MethodDelete, "/v1/queue", nil)
	expectCode(t, rr, http.StatusOK)
	if decodeJSON(t, rr)["removed"] != float64(1) {
		t.Fatalf("unexpected clear result: %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/queue/"+itoa(first)+"/receipts", nil)
	expectCode(t, rr, http.StatusOK)
	if items := decodeJSON(t, rr)["items"].([]any); len(items) != 0 {
		t.Fatalf("expected no receipts, got %v", items)
	}
}

func TestRunPassAndStats(t *testing.T) {
	env := newTestServer(t)
	cid := createdID(t, env.do(t, http.MethodPost, "/v1/contacts", map[string]any{"name": "Ann", "phone": "15550000001"}))

	id := createdID(t, env.do(t, http.MethodPost, "/v1/messages", map[string]any{
		"contactId": cid, "message": "Hello", "scheduledTime": "2020-01-01T09:00",
	}))

	rr := env.do(t, http.MethodPost, "/v1/scheduler/run", nil)
	expectCode(t, rr, http.StatusOK)
	if decodeJSON(t, rr)["ran"] != true {
		t.Fatalf("expected pass to run, got %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/queue/"+itoa(id), nil)
	if decodeJSON(t, rr)["status"] != "sent" {
		t.Fatalf("expected sent, got %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/v1/stats?days=7", nil)
	expectCode(t, rr, http.StatusOK)
	items := decodeJSON(t, rr)["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["messagesSent"] != float64(1) {
		t.Fatalf("unexpected stats: %v", items)
	}

	expectCode(t, env.do(t, http.MethodDelete, "/v1/stats", nil), http.StatusOK)
	rr = env.do(t, http.MethodGet, "/v1/stats", nil)
	if items := decodeJSON(t, rr)["items"].([]any); len(items) != 0 {
		t.Fatalf("expected stats reset, got %v", items)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	expectCode(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), "scheduler_passes_total") {
		t.Fatalf("expected scheduler metrics in exposition")
	}
}

func TestRouterRoot(t *testing.T) {
	env := newTestServer(t)

	rr := env.do(t, http.MethodGet, "/", nil)
	expectCode(t, rr, http.StatusOK)
	if got := strings.TrimSpace(rr.Body.String()); got != "message-scheduler" {
		t.Fatalf("expected body %q, got %q", "message-scheduler", got)
	}
}

func TestDelayField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want *int
	}{
		{``, nil},
		{`null`, nil},
		{`7`, intp(7)},
		{`"12"`, intp(12)},
		{`"abc"`, nil},
		{`2.5`, nil},
		{`-1`, intp(-1)},
	}
	for _, tc := range cases {
		got := delayField(json.RawMessage(tc.raw))
		switch {
		case tc.want == nil && got != nil:
			t.Fatalf("delayField(%s) = %d, want nil", tc.raw, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Fatalf("delayField(%s) = %v, want %d", tc.raw, got, *tc.want)
		}
	}
}

func intp(v int) *int { return &v }

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
