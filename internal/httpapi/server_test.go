package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pingwatch/internal/domain"
	apimw "github.com/hamed0406/pingwatch/internal/httpapi/middleware"
	"github.com/hamed0406/pingwatch/internal/metrics"
	"github.com/hamed0406/pingwatch/internal/monitor"
	"github.com/hamed0406/pingwatch/internal/notify"
	"github.com/hamed0406/pingwatch/internal/repo/memory"
	"github.com/hamed0406/pingwatch/internal/scheduler"
)

// ---- test helpers ----

// fakeRunner reports every target up, or down when down is set.
type fakeRunner struct {
	down    atomic.Bool
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, t *domain.Target) (*domain.Observation, error) {
	if f.block != nil {
		f.started <- struct{}{}
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	o := &domain.Observation{
		TargetID:   t.ID,
		Status:     domain.StatusUp,
		StatusCode: 200,
		LatencyMS:  12.5,
		CheckedAt:  time.Now().UTC(),
	}
	if f.down.Load() {
		o.Status = domain.StatusDown
		o.StatusCode = 503
		o.Error = "503 Service Unavailable (expected 200)"
		o.Reason = domain.ReasonStatusMismatch
	}
	return o, nil
}

type discard struct{}

func (discard) Enqueue(notify.Alert) bool { return true }

func setupServer(t *testing.T, runner monitor.Runner) *httptest.Server {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	m := metrics.New()

	exec := monitor.NewExecutor(log, runner, store, discard{}, m)
	sched := scheduler.New(log, exec, store, m, time.Hour, time.Hour)
	svc := monitor.NewService(log, store, store, store, sched)
	srv := NewServer(log, svc, m)

	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, key, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

const exampleTarget = `{"id":"web","protocol":"http","address":"https://example.com","interval":60}`

// ---- tests ----

func TestAddTarget_OK_Duplicate_Invalid(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})

	code, body := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", exampleTarget)
	if code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", code, body)
	}
	var got domain.Target
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode add resp: %v", err)
	}
	if got.Method != "GET" || got.ExpectedStatus != 200 || got.Name != "https://example.com" {
		t.Fatalf("defaults not applied: %+v", got)
	}

	if code, _ := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", exampleTarget); code != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", code)
	}

	bad := `{"id":"bad","protocol":"http","address":"ftp://bad","interval":60}`
	if code, _ := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", bad); code != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid address, got %d", code)
	}
	if code, _ := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", `{"url":`); code != http.StatusBadRequest {
		t.Fatalf("want 400 on malformed body, got %d", code)
	}
}

func TestAddTarget_HeadersAsJSONString(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})

	ok := `{"id":"h1","protocol":"http","address":"https://example.com","interval":60,` +
		`"headers":"{\"Authorization\":\"Bearer x\"}"}`
	code, body := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", ok)
	if code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", code, body)
	}
	var got domain.Target
	_ = json.Unmarshal(body, &got)
	if got.Headers["Authorization"] != "Bearer x" {
		t.Fatalf("headers not decoded: %v", got.Headers)
	}

	bad := `{"id":"h2","protocol":"http","address":"https://example.com","interval":60,"headers":"{not json"}`
	if code, body := do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", bad); code != http.StatusBadRequest {
		t.Fatalf("want 400 for malformed header string, got %d: %s", code, body)
	}
	upd := `{"protocol":"http","address":"https://example.com","interval":60,"headers":"{\"X-Env\":\"prod\"}"}`
	if code, body := do(t, http.MethodPut, ts.URL+"/api/targets/h1", "adm_test", upd); code != http.StatusOK {
		t.Fatalf("update with header string: %d %s", code, body)
	}
}

func TestAuth_PublicCannotWrite(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})

	if code, _ := do(t, http.MethodPost, ts.URL+"/api/targets", "pub_test", exampleTarget); code != http.StatusForbidden {
		t.Fatalf("public key should be forbidden, got %d", code)
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/targets", "", ""); code != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401, got %d", code)
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/api/targets", "pub_test", ""); code != http.StatusOK {
		t.Fatalf("public read should pass, got %d", code)
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/healthz", "", ""); code != http.StatusOK {
		t.Fatalf("healthz should be open, got %d", code)
	}
}

func TestCheckStateLogsUptime(t *testing.T) {
	runner := &fakeRunner{}
	ts := setupServer(t, runner)
	base := ts.URL + "/api/targets/web"

	do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", exampleTarget)

	code, body := do(t, http.MethodGet, base+"/state", "pub_test", "")
	if code != http.StatusOK || !strings.Contains(string(body), `"status":"unknown"`) {
		t.Fatalf("want unknown state before first probe, got %d %s", code, body)
	}

	for i := 0; i < 3; i++ {
		if code, body := do(t, http.MethodPost, base+"/check", "adm_test", ""); code != http.StatusOK {
			t.Fatalf("check: %d %s", code, body)
		}
	}
	runner.down.Store(true)
	code, body = do(t, http.MethodPost, base+"/check", "adm_test", "")
	if code != http.StatusOK {
		t.Fatalf("check: %d %s", code, body)
	}
	var obs domain.Observation
	_ = json.Unmarshal(body, &obs)
	if obs.Status != domain.StatusDown || obs.StatusCode != 503 {
		t.Fatalf("unexpected observation: %+v", obs)
	}

	_, body = do(t, http.MethodGet, base+"/state", "pub_test", "")
	var st domain.TargetState
	_ = json.Unmarshal(body, &st)
	if st.Status != domain.StatusDown || st.LastError == "" {
		t.Fatalf("state not updated: %+v", st)
	}

	_, body = do(t, http.MethodGet, base+"/logs?window=1d", "pub_test", "")
	var logs logsResponse
	_ = json.Unmarshal(body, &logs)
	if len(logs.Observations) != 4 || logs.Window != "1d" {
		t.Fatalf("want 4 observations in 1d window, got %+v", logs)
	}

	_, body = do(t, http.MethodGet, base+"/uptime", "pub_test", "")
	var up monitor.Uptime
	_ = json.Unmarshal(body, &up)
	if up.Percent != 75.0 || up.Window != domain.DefaultUptimeWindow {
		t.Fatalf("want 75.0 over 7d, got %+v", up)
	}

	if code, _ := do(t, http.MethodGet, base+"/uptime?window=fortnight", "pub_test", ""); code != http.StatusBadRequest {
		t.Fatalf("unknown window should be 400, got %d", code)
	}
}

func TestPausedTargetRejectsCheck(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})
	base := ts.URL + "/api/targets/web"
	do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", exampleTarget)

	if code, _ := do(t, http.MethodPost, base+"/pause", "adm_test", ""); code != http.StatusNoContent {
		t.Fatalf("pause: %d", code)
	}
	if code, _ := do(t, http.MethodPost, base+"/check", "adm_test", ""); code != http.StatusConflict {
		t.Fatalf("check on paused target should be 409, got %d", code)
	}
	if code, _ := do(t, http.MethodPost, base+"/resume", "adm_test", ""); code != http.StatusNoContent {
		t.Fatalf("resume: %d", code)
	}
	if code, _ := do(t, http.MethodPost, base+"/check", "adm_test", ""); code != http.StatusOK {
		t.Fatalf("check after resume: %d", code)
	}
}

func TestConcurrentCheckIsRejected(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	ts := setupServer(t, runner)
	base := ts.URL + "/api/targets/web"
	do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", exampleTarget)

	first := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, base+"/check", nil)
		req.Header.Set("X-API-Key", "adm_test")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("first check never started")
	}
	if code, _ := do(t, http.MethodPost, base+"/check", "adm_test", ""); code != http.StatusConflict {
		t.Fatalf("second check should be 409, got %d", code)
	}
	close(runner.block)
	if code := <-first; code != http.StatusOK {
		t.Fatalf("first check: %d", code)
	}
}

func TestUpdateDeleteAndNotFound(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})
	base := ts.URL + "/api/targets/web"
	do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", exampleTarget)

	upd := `{"protocol":"tcp","address":"example.com","port":443,"interval":30,"labels":["edge"]}`
	if code, body := do(t, http.MethodPut, base, "adm_test", upd); code != http.StatusOK {
		t.Fatalf("update: %d %s", code, body)
	}
	_, body := do(t, http.MethodGet, ts.URL+"/api/targets?label=edge", "pub_test", "")
	var list []domain.Target
	_ = json.Unmarshal(body, &list)
	if len(list) != 1 || list[0].Protocol != domain.ProtocolTCP || list[0].Port != 443 {
		t.Fatalf("update not visible: %+v", list)
	}

	if code, _ := do(t, http.MethodPut, ts.URL+"/api/targets/missing", "adm_test", upd); code != http.StatusNotFound {
		t.Fatalf("update of missing target should be 404, got %d", code)
	}
	if code, _ := do(t, http.MethodDelete, base, "adm_test", ""); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := do(t, http.MethodGet, base, "pub_test", ""); code != http.StatusNotFound {
		t.Fatalf("get after delete should be 404, got %d", code)
	}
	if code, _ := do(t, http.MethodGet, base+"/logs", "pub_test", ""); code != http.StatusNotFound {
		t.Fatalf("logs of deleted target should be 404, got %d", code)
	}
}

func TestImportYAML(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})

	good := `
targets:
  - id: api
    protocol: http
    address: https://api.example.com/health
    interval: 30s
  - id: dns
    protocol: dns
    address: example.com
    interval: 60
`
	code, body := do(t, http.MethodPost, ts.URL+"/api/targets/import", "adm_test", good)
	if code != http.StatusOK || !strings.Contains(string(body), `"imported":2`) {
		t.Fatalf("import: %d %s", code, body)
	}

	bad := "targets:\n  - id: x\n    protocol: gopher\n    address: x\n    interval: 10\n"
	if code, _ := do(t, http.MethodPost, ts.URL+"/api/targets/import", "adm_test", bad); code != http.StatusBadRequest {
		t.Fatalf("bad import should be 400, got %d", code)
	}
}

func TestNotificationSettings(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})
	url := ts.URL + "/api/settings/notifications"

	if code, _ := do(t, http.MethodPut, url, "adm_test", `{"enabled":true}`); code != http.StatusBadRequest {
		t.Fatalf("enabled without credentials should be 400, got %d", code)
	}
	cfg := `{"telegram_bot_token":"123:abc","telegram_chat_id":"-100","enabled":true}`
	if code, body := do(t, http.MethodPut, url, "adm_test", cfg); code != http.StatusOK {
		t.Fatalf("put settings: %d %s", code, body)
	}
	_, body := do(t, http.MethodGet, url, "adm_test", "")
	var got domain.NotificationConfig
	_ = json.Unmarshal(body, &got)
	if !got.Active() || got.TelegramChatID != "-100" {
		t.Fatalf("settings not stored: %+v", got)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	ts := setupServer(t, &fakeRunner{})
	do(t, http.MethodPost, ts.URL+"/api/targets", "adm_test", exampleTarget)
	do(t, http.MethodPost, ts.URL+"/api/targets/web/check", "adm_test", "")

	_, body := do(t, http.MethodGet, ts.URL+"/api/status", "pub_test", "")
	var rows []monitor.TargetStatus
	if err := json.Unmarshal(body, &rows); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if len(rows) != 1 || rows[0].State.Status != domain.StatusUp || rows[0].Uptime != 100 {
		t.Fatalf("unexpected overview: %s", body)
	}

	code, body := do(t, http.MethodGet, ts.URL+"/metrics", "", "")
	if code != http.StatusOK || !strings.Contains(string(body), "pingwatch_") {
		t.Fatalf("metrics: %d", code)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrPaused, http.StatusConflict},
		{domain.ErrProbeInFlight, http.StatusConflict},
		{&domain.ConfigError{Field: "x", Msg: "y"}, http.StatusBadRequest},
		{&domain.StorageError{Op: "append", Err: io.EOF}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusOf(tc.err); got != tc.want {
			t.Fatalf("%v: want %d got %d", tc.err, tc.want, got)
		}
	}
}
