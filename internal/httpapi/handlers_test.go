package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/STJr/SRB2-sub004/internal/auth"
	"github.com/STJr/SRB2-sub004/internal/demo"
	"github.com/STJr/SRB2-sub004/internal/logging"
	"github.com/STJr/SRB2-sub004/internal/replay"
	"github.com/STJr/SRB2-sub004/internal/simulation"
)

type stubReadiness struct {
	uptime time.Duration
	err    error
}

func (s *stubReadiness) StartupError() error   { return s.err }
func (s *stubReadiness) Uptime() time.Duration { return s.uptime }

type stubLimiter struct {
	remaining int
}

func (s *stubLimiter) Allow(string) bool {
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

// recordStream records a short attack run. Ghost streams carry one frame per tic.
func recordStream(t *testing.T, ghost bool, tics int, scores demo.Scores) []byte {
	t.Helper()
	rec, err := demo.NewRecorder(demo.RecordOptions{
		Header: demo.Header{Map: 1, Ghost: ghost, Attack: demo.AttackRecord, Name: "Tester", Skin: "sonic"},
		Logger: logging.NewTestLogger(),
	})
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for i := 1; i <= tics; i++ {
		rec.WriteTiccmd(demo.Ticcmd{Forward: 50})
		rec.WriteGhost(&demo.ActorSnapshot{X: demo.Fixed(i) << demo.FracBits, Scale: demo.FracUnit, Height: 48 * demo.FracUnit})
	}
	if err := rec.SetResult(scores); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	data, err := rec.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return data
}

func writeReplay(t *testing.T, home, name string, data []byte) {
	t.Helper()
	dir := filepath.Join(home, "replay")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".lmp"), data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newSigner(t *testing.T) *auth.Signer {
	t.Helper()
	signer, err := auth.NewSigner("admin-secret", time.Second)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return signer
}

func issue(t *testing.T, signer *auth.Signer, scope string) string {
	t.Helper()
	token, err := signer.Issue("ops", scope, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestLivenessHandlerReturnsJSON(t *testing.T) {
	fixed := time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), TimeSource: func() time.Time { return fixed }})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)

	handlers.LivenessHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var payload struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "alive" || payload.Timestamp != fixed.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestReadinessHandlerUnavailable(t *testing.T) {
	readiness := &stubReadiness{uptime: 45 * time.Second, err: errors.New("replay directory unreadable")}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Readiness: readiness})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var payload struct {
		Status        string  `json:"status"`
		Message       string  `json:"message"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "error" || payload.Message != "replay directory unreadable" || payload.UptimeSeconds != 45 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestMetricsHandlerReportsStorageAndTics(t *testing.T) {
	monitor := simulation.NewTickMonitor()
	monitor.Observe(2*time.Millisecond, time.Millisecond)
	monitor.Observe(500*time.Microsecond, time.Millisecond)
	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Readiness: &stubReadiness{uptime: 90 * time.Second},
		Storage: func() replay.StorageStats {
			return replay.StorageStats{Categories: 2, Recordings: 5, Protected: 4, Bytes: 1234}
		},
		Monitor: monitor,
	})
	rr := httptest.NewRecorder()
	handlers.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		"demo_uptime_seconds 90",
		"demo_watchers 0",
		"demo_replay_categories 2",
		"demo_replay_recordings 5",
		"demo_replay_protected 4",
		"demo_replay_bytes 1234",
		"demo_tics_total 2",
		"demo_tic_overruns_total 1",
	} {
		if !strings.Contains(body, want+"\n") {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestReplaysHandlerListsCatalog(t *testing.T) {
	home := t.TempDir()
	records := replay.NewRecords(home, ".lmp", logging.NewTestLogger())
	if _, err := records.Save("main", recordStream(t, false, 3, demo.Scores{Time: 2100, Score: 500, Rings: 20})); err != nil {
		t.Fatalf("Save: %v", err)
	}
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Records: records})

	rr := httptest.NewRecorder()
	handlers.ReplaysHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/replays?category=main", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Category string         `json:"category"`
		Replays  []replay.Entry `json:"replays"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	//1.- last, the snapshot and three best slots.
	if payload.Category != "main" || len(payload.Replays) != 5 {
		t.Fatalf("unexpected catalog %+v", payload)
	}
	for _, entry := range payload.Replays {
		if entry.Summary.MapName != "MAP01" || entry.Summary.Time != 2100 {
			t.Fatalf("unexpected summary %+v", entry.Summary)
		}
	}

	rr = httptest.NewRecorder()
	handlers.ReplaysHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/replays?category=empty", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"replays":[]`) {
		t.Fatalf("expected empty list, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestReplaysHandlerUploadRequiresScopedToken(t *testing.T) {
	home := t.TempDir()
	signer := newSigner(t)
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		Records:    replay.NewRecords(home, ".lmp", logging.NewTestLogger()),
		Authorizer: signer,
	})
	run := recordStream(t, false, 3, demo.Scores{Time: 2100, Score: 500, Rings: 20})
	post := func(token string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/replays?category=main", strings.NewReader(string(body)))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		handlers.ReplaysHandler().ServeHTTP(rr, req)
		return rr
	}

	if rr := post("", run); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := post(issue(t, signer, auth.ScopeExport), run); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for export-only token, got %d", rr.Code)
	}
	if rr := post(issue(t, signer, auth.ScopeUpload), []byte("not a replay")); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for garbage, got %d", rr.Code)
	}

	rr := post(issue(t, signer, auth.ScopeUpload), run)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Last     string        `json:"last"`
		Promoted []replay.Slot `json:"promoted"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Promoted) != 3 || filepath.Base(payload.Last) != "MAP01-sonic-last.lmp" {
		t.Fatalf("unexpected upload result %+v", payload)
	}
}

func TestCompareHandler(t *testing.T) {
	home := t.TempDir()
	writeReplay(t, home, "old", recordStream(t, false, 2, demo.Scores{Time: 3000, Score: 100, Rings: 50}))
	writeReplay(t, home, "new", recordStream(t, false, 2, demo.Scores{Time: 2500, Score: 100, Rings: 20}))
	handlers := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Source: replay.NewLocator(home, ".lmp", nil)})

	rr := httptest.NewRecorder()
	handlers.CompareHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/replays/compare?old=old&new=new", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Flags  int      `json:"flags"`
		Better []string `json:"better"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Flags != int(demo.BetterTime|demo.BetterScore) || strings.Join(payload.Better, ",") != "time,score" {
		t.Fatalf("unexpected comparison %+v", payload)
	}

	cases := map[string]int{
		"/replays/compare?old=old":             http.StatusBadRequest,
		"/replays/compare?old=old&new=missing": http.StatusNotFound,
	}
	for target, code := range cases {
		rr := httptest.NewRecorder()
		handlers.CompareHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != code {
			t.Fatalf("%s: expected %d, got %d", target, code, rr.Code)
		}
	}
}

func TestExportHandlerAuthorisesAndRateLimits(t *testing.T) {
	home := t.TempDir()
	records := replay.NewRecords(home, ".lmp", logging.NewTestLogger())
	if _, err := records.Save("main", recordStream(t, false, 3, demo.Scores{Time: 2100, Score: 500, Rings: 20})); err != nil {
		t.Fatalf("Save: %v", err)
	}
	signer := newSigner(t)
	fixed := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	handlers := NewHandlerSet(Options{
		Logger:      logging.NewTestLogger(),
		Records:     records,
		Authorizer:  signer,
		RateLimiter: &stubLimiter{remaining: 1},
		TimeSource:  func() time.Time { return fixed },
	})
	token := issue(t, signer, auth.ScopeExport)
	export := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/replays/export?category=main", nil)
		req.Header.Set("X-Admin-Token", token)
		rr := httptest.NewRecorder()
		handlers.ExportHandler().ServeHTTP(rr, req)
		return rr
	}

	if rr := export(http.MethodGet); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	rr := export(http.MethodPost)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload struct {
		Location string `json:"location"`
		Replays  int    `json:"replays"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Replays != 4 {
		t.Fatalf("expected the four slot files, got %+v", payload)
	}
	archived, err := replay.ReadArchive(payload.Location)
	if err != nil || len(archived) != 4 {
		t.Fatalf("ReadArchive: %d replays, %v", len(archived), err)
	}
	if rr := export(http.MethodPost); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the limiter is exhausted, got %d", rr.Code)
	}

	disabled := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Records: records})
	rr = httptest.NewRecorder()
	disabled.ExportHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/replays/export", nil))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin auth, got %d", rr.Code)
	}
}
