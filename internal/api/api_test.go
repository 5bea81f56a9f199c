package api

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/auth"
	"github.com/triage-ai/botsentry/internal/chread"
	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/extsync"
	"github.com/triage-ai/botsentry/internal/ipverify"
	"github.com/triage-ai/botsentry/internal/storage"
	"github.com/triage-ai/botsentry/internal/store"
)

const (
	adminHeader = "Bearer bsk_admin_test_key"
	gptbotUA    = "Mozilla/5.0 AppleWebKit/537.36 (KHTML, like Gecko; compatible; GPTBot/1.0; +https://openai.com/gptbot)"
)

// --- fakes ---

type fakeDetector struct {
	results map[string]engine.DetectionResult
}

func (f *fakeDetector) Detect(_ context.Context, ua string) engine.DetectionResult {
	if r, ok := f.results[ua]; ok {
		return r
	}
	return engine.UnknownResult()
}

type fakeAuth struct {
	err error
}

func (f *fakeAuth) Authenticate(_ context.Context, header string) (*auth.Admin, error) {
	if f.err != nil {
		return nil, f.err
	}
	if header == "" {
		return nil, auth.ErrMissingAPIKey
	}
	if header != adminHeader {
		return nil, auth.ErrInvalidAPIKey
	}
	return &auth.Admin{KeyID: 1, Name: "test", Source: "config"}, nil
}

type fakeStore struct {
	mu          sync.Mutex
	patterns    map[int64]*store.BotPattern
	nextID      int64
	inserted    []store.NewPattern
	statusCalls map[int64]store.ClassificationStatus
	unknown     []store.UnknownBot
	runs        []store.SyncRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		patterns:    make(map[int64]*store.BotPattern),
		statusCalls: make(map[int64]store.ClassificationStatus),
	}
}

func (f *fakeStore) ListPatterns(_ context.Context, _ store.ListPatternsParams) ([]store.BotPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.BotPattern
	for _, p := range f.patterns {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) GetPattern(_ context.Context, id int64) (*store.BotPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.patterns[id], nil
}

func (f *fakeStore) InsertPattern(_ context.Context, np store.NewPattern) (*store.BotPattern, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.patterns {
		if p.IsActive && p.Pattern == np.Pattern {
			return nil, false, nil
		}
	}
	f.inserted = append(f.inserted, np)
	f.nextID++
	p := &store.BotPattern{
		ID: f.nextID, Pattern: np.Pattern, PatternType: np.PatternType, BotName: np.BotName,
		BotCategory: np.BotCategory, Priority: np.Priority, Source: np.Source, IsActive: true,
	}
	f.patterns[p.ID] = p
	return p, true, nil
}

func (f *fakeStore) UpdatePattern(_ context.Context, id int64, params store.UpdatePatternParams) (*store.BotPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	if !ok {
		return nil, nil
	}
	if params.Priority != nil {
		p.Priority = *params.Priority
	}
	if params.BotName != nil {
		p.BotName = *params.BotName
	}
	return p, nil
}

func (f *fakeStore) DeactivatePattern(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	if !ok || !p.IsActive {
		return sql.ErrNoRows
	}
	p.IsActive = false
	return nil
}

func (f *fakeStore) ListUnknownBots(_ context.Context, _ store.ListUnknownParams) ([]store.UnknownBot, error) {
	return f.unknown, nil
}

func (f *fakeStore) SetClassificationStatus(_ context.Context, id int64, status store.ClassificationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != 42 {
		return sql.ErrNoRows
	}
	f.statusCalls[id] = status
	return nil
}

func (f *fakeStore) ListSyncRuns(_ context.Context, _ string, _ int) ([]store.SyncRun, error) {
	return f.runs, nil
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) Invalidate() { c.n.Add(1) }

type recordingWriter struct {
	mu     sync.Mutex
	events []*storage.DetectionEvent
}

func (w *recordingWriter) Write(e *storage.DetectionEvent) {
	w.mu.Lock()
	w.events = append(w.events, e)
	w.mu.Unlock()
}

func (w *recordingWriter) Close() {}

type fakeReader struct {
	rows []chread.EventRow
}

func (f *fakeReader) ListEvents(_ context.Context, _ chread.ListEventsParams) ([]chread.EventRow, int, error) {
	return f.rows, len(f.rows), nil
}

func (f *fakeReader) GetEvent(_ context.Context, requestID string) (*chread.EventRow, error) {
	for i := range f.rows {
		if f.rows[i].RequestID == requestID {
			return &f.rows[i], nil
		}
	}
	return nil, nil
}

func (f *fakeReader) GetAnalytics(_ context.Context, _ int) (*chread.AnalyticsResult, error) {
	return &chread.AnalyticsResult{Summary: chread.SummaryStats{TotalDetections: 3, Bots: 2}}, nil
}

type fakeSyncer struct {
	results map[string]extsync.SourceResult
}

func (f *fakeSyncer) RunSync(context.Context) map[string]extsync.SourceResult { return f.results }

type fakeLearner struct {
	promoted int
	err      error
}

func (f *fakeLearner) ProcessPendingBots(context.Context) (int, error) { return f.promoted, f.err }

// --- harness ---

type testEnv struct {
	handler http.Handler
	deps    *Dependencies
	store   *fakeStore
	writer  *recordingWriter
	catalog *countingInvalidator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	verifier, err := ipverify.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	gpt := engine.NewKnownResult(engine.KnownMatch{
		Pattern: "/GPTBot/i", Name: "GPTBot", Vendor: "OpenAI",
		Category: engine.CategoryAI, Priority: engine.PriorityHigh, Regex: true,
	})
	blocked := engine.NewKnownResult(engine.KnownMatch{
		Pattern: "/Bytespider/i", Name: "Bytespider", Category: engine.CategoryAI,
		Priority: engine.PriorityBlocked, Regex: true,
	})
	env := &testEnv{
		store:   newFakeStore(),
		writer:  &recordingWriter{},
		catalog: &countingInvalidator{},
	}
	env.deps = &Dependencies{
		Detector: &fakeDetector{results: map[string]engine.DetectionResult{
			gptbotUA:     gpt,
			"Bytespider": blocked,
		}},
		Policy:   engine.DefaultServePolicy(),
		Verifier: verifier,
		Store:    env.store,
		Catalog:  env.catalog,
		Learner:  &fakeLearner{promoted: 2},
		Syncer:   &fakeSyncer{},
		Writer:   env.writer,
		Auth:     &fakeAuth{},
		Logger:   zap.NewNop(),
	}
	env.handler = NewRouter(env.deps)
	return env
}

func (e *testEnv) do(method, path, body, authHeader string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if authHeader != "" {
		r.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// --- detect ---

func TestDetect_KnownBotVerifiedIP(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/v1/detect", `{"user_agent":"`+gptbotUA+`","ip":"23.98.142.7"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[DetectResponse](t, w)
	if !resp.Result.IsBot || resp.Result.BotName != "GPTBot" {
		t.Errorf("unexpected result: %+v", resp.Result)
	}
	if resp.Decision.Verdict != "allow" || resp.Decision.CacheTTLSec != int64((48*time.Hour)/time.Second) {
		t.Errorf("unexpected decision: %+v", resp.Decision)
	}
	if resp.IPVerification == nil || resp.IPVerification.Status != ipverify.StatusVerified {
		t.Errorf("expected verified ip, got %+v", resp.IPVerification)
	}
	if resp.RequestID == "" || w.Header().Get(requestIDHeader) != resp.RequestID {
		t.Errorf("request id %q not echoed in header %q", resp.RequestID, w.Header().Get(requestIDHeader))
	}

	if len(env.writer.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(env.writer.events))
	}
	ev := env.writer.events[0]
	if ev.RequestID != resp.RequestID || ev.Source != "api" || ev.IPVerification != "verified" || ev.Verdict != "allow" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.UserAgentHash != store.HashUserAgent(gptbotUA) {
		t.Error("event must carry the user agent hash")
	}
}

func TestDetect_BlockedAgent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/v1/detect", `{"user_agent":"Bytespider"}`, "")
	resp := decode[DetectResponse](t, w)
	if resp.Decision.Verdict != "block" || resp.Decision.CacheTTLSec != 0 {
		t.Errorf("expected block with ttl 0, got %+v", resp.Decision)
	}
	if resp.Decision.Reason == nil || !strings.Contains(*resp.Decision.Reason, "Bytespider") {
		t.Errorf("expected reason naming the agent, got %v", resp.Decision.Reason)
	}
	if resp.IPVerification != nil {
		t.Error("no ip given, no verification expected")
	}
}

func TestDetect_EmptyUserAgent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/v1/detect", `{"user_agent":""}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[DetectResponse](t, w)
	if resp.Result.IsBot || resp.Result.Method != engine.MethodUnknown {
		t.Errorf("expected non-bot unknown result, got %+v", resp.Result)
	}
}

func TestDetect_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{"invalid json", `{`, "Invalid JSON body"},
		{"unknown field", `{"ua":"x"}`, "Invalid JSON body"},
		{"bad ip", `{"user_agent":"x","ip":"not-an-ip"}`, "ip: failed ip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/v1/detect", tt.body, "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			if got := decode[ErrorResp](t, w).Detail; got != tt.detail {
				t.Errorf("expected detail %q, got %q", tt.detail, got)
			}
		})
	}
}

func TestDescribeAgent(t *testing.T) {
	browser, os, device := describeAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if !strings.HasPrefix(browser, "Chrome") || !strings.HasPrefix(os, "Windows") || device != "Computer" {
		t.Errorf("got browser=%q os=%q device=%q", browser, os, device)
	}

	browser, os, device = describeAgent("")
	if browser != "" || os != "" || device != "" {
		t.Error("empty user agent must not be described")
	}
}

// --- admin auth ---

func TestAdminAuth(t *testing.T) {
	tests := []struct {
		name     string
		authErr  error
		header   string
		wantCode int
	}{
		{"missing", nil, "", http.StatusUnauthorized},
		{"invalid", nil, "Bearer bsk_wrong", http.StatusUnauthorized},
		{"backend down", auth.ErrAuthUnavailable, adminHeader, http.StatusServiceUnavailable},
		{"valid", nil, adminHeader, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.deps.Auth = &fakeAuth{err: tt.authErr}
			if got := env.do("GET", "/api/patterns", "", tt.header).Code; got != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, got)
			}
		})
	}
}

func TestDetect_NoAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Auth = &fakeAuth{err: errors.New("should not be called")}
	if got := env.do("POST", "/v1/detect", `{"user_agent":"x"}`, "").Code; got != http.StatusOK {
		t.Errorf("expected 200, got %d", got)
	}
}

// --- patterns ---

func TestCreatePattern(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/patterns", `{"pattern":"FooBot","bot_name":"FooBot","bot_category":"ai"}`, adminHeader)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[PatternResp](t, w)
	if resp.Pattern != "/FooBot/i" || resp.Source != store.SourceManual {
		t.Errorf("unexpected pattern: %+v", resp)
	}
	if env.catalog.n.Load() != 1 {
		t.Errorf("expected catalog invalidated once, got %d", env.catalog.n.Load())
	}

	w = env.do("POST", "/api/patterns", `{"pattern":"FooBot","bot_name":"Other"}`, adminHeader)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", w.Code)
	}
	if env.catalog.n.Load() != 1 {
		t.Error("duplicate must not invalidate the catalog")
	}
}

func TestCreatePattern_ExactKeptVerbatim(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/patterns", `{"pattern":"Acme Fetcher","pattern_type":"exact","bot_name":"Acme"}`, adminHeader)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if got := env.store.inserted[0].Pattern; got != "Acme Fetcher" {
		t.Errorf("exact pattern rewritten to %q", got)
	}
}

func TestCreatePattern_Invalid(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
	}{
		{"missing bot name", `{"pattern":"FooBot"}`},
		{"blank pattern", `{"pattern":"   ","bot_name":"x"}`},
		{"bad category", `{"pattern":"FooBot","bot_name":"x","bot_category":"robots"}`},
		{"bad priority", `{"pattern":"FooBot","bot_name":"x","priority":"urgent"}`},
		{"uncompilable", `{"pattern":"/foo[/i","bot_name":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.do("POST", "/api/patterns", tt.body, adminHeader).Code; got != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", got)
			}
		})
	}
	if len(env.store.inserted) != 0 {
		t.Error("invalid requests must not reach the store")
	}
}

func TestUpdateAndDeletePattern(t *testing.T) {
	env := newTestEnv(t)
	env.do("POST", "/api/patterns", `{"pattern":"FooBot","bot_name":"FooBot"}`, adminHeader)

	w := env.do("PATCH", "/api/patterns/1", `{"priority":"blocked"}`, adminHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if decode[PatternResp](t, w).Priority != "blocked" {
		t.Error("priority not updated")
	}

	if got := env.do("PATCH", "/api/patterns/99", `{"priority":"low"}`, adminHeader).Code; got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
	if got := env.do("PATCH", "/api/patterns/abc", `{}`, adminHeader).Code; got != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", got)
	}

	if got := env.do("DELETE", "/api/patterns/1", "", adminHeader).Code; got != http.StatusNoContent {
		t.Errorf("expected 204, got %d", got)
	}
	if got := env.do("DELETE", "/api/patterns/1", "", adminHeader).Code; got != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", got)
	}
	// create, patch, delete
	if got := env.catalog.n.Load(); got != 3 {
		t.Errorf("expected 3 invalidations, got %d", got)
	}
}

// --- unknown bots & jobs ---

func TestUnknownBots(t *testing.T) {
	env := newTestEnv(t)
	env.store.unknown = []store.UnknownBot{{
		ID: 42, UserAgent: "AcmeFetch/2.0", IsBot: true, Confidence: 0.4,
		Method: engine.MethodHeuristic, Indicators: []engine.Indicator{engine.IndicatorVersionPattern},
		HeuristicBotProbability: 0.64, VisitCount: 2, ClassificationStatus: store.StatusPending,
	}}

	w := env.do("GET", "/api/unknown-bots?status=pending", "", adminHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	bots := decode[[]UnknownBotResp](t, w)
	if len(bots) != 1 || bots[0].SuggestedBotName != nil || bots[0].Indicators[0] != "version_pattern" {
		t.Errorf("unexpected bots: %+v", bots)
	}

	if got := env.do("GET", "/api/unknown-bots?status=maybe", "", adminHeader).Code; got != http.StatusBadRequest {
		t.Errorf("expected 400 for bad status, got %d", got)
	}
	if got := env.do("POST", "/api/unknown-bots/42/reject", "", adminHeader).Code; got != http.StatusNoContent {
		t.Errorf("expected 204, got %d", got)
	}
	if env.store.statusCalls[42] != store.StatusRejected {
		t.Error("candidate not rejected")
	}
	if got := env.do("POST", "/api/unknown-bots/7/reject", "", adminHeader).Code; got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestRunJobs(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/learner/run", "", adminHeader)
	if w.Code != http.StatusOK || decode[LearnerRunResp](t, w).Promoted != 2 {
		t.Errorf("unexpected learner response %d: %s", w.Code, w.Body.String())
	}

	w = env.do("POST", "/api/sync/run", "", adminHeader)
	if !decode[SyncResultResp](t, w).Skipped {
		t.Error("empty sync result should report skipped")
	}

	env.deps.Syncer = &fakeSyncer{results: map[string]extsync.SourceResult{
		"crawler-detect": {PatternsAdded: 3, Total: 10},
	}}
	w = env.do("POST", "/api/sync/run", "", adminHeader)
	resp := decode[SyncResultResp](t, w)
	if resp.Skipped || resp.Sources["crawler-detect"].PatternsAdded != 3 {
		t.Errorf("unexpected sync response: %+v", resp)
	}

	env.deps.Learner = &fakeLearner{err: errors.New("db down")}
	if got := env.do("POST", "/api/learner/run", "", adminHeader).Code; got != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", got)
	}
}

func TestListSyncRuns(t *testing.T) {
	env := newTestEnv(t)
	env.store.runs = []store.SyncRun{
		{ID: 2, SourceName: "crawler-detect", Status: store.SyncFailed, ErrorMessage: "boom"},
		{ID: 1, SourceName: "crawler-detect", Status: store.SyncSuccess, AddedCount: 5},
	}

	runs := decode[[]SyncRunResp](t, env.do("GET", "/api/sync/runs", "", adminHeader))
	if len(runs) != 2 || runs[0].ErrorMessage == nil || runs[1].ErrorMessage != nil {
		t.Errorf("unexpected runs: %+v", runs)
	}
}

// --- events ---

func TestEvents_NoReader(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/api/detections", "/api/detections/abc", "/api/analytics"} {
		if got := env.do("GET", path, "", adminHeader).Code; got != http.StatusServiceUnavailable {
			t.Errorf("%s: expected 503, got %d", path, got)
		}
	}
}

func TestEvents_WithReader(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Reader = &fakeReader{rows: []chread.EventRow{
		{RequestID: "req-1", IsBot: 1, BotName: "GPTBot", Method: "known_pattern", Verdict: "allow"},
	}}

	list := decode[EventListResp](t, env.do("GET", "/api/detections?page_size=1000", "", adminHeader))
	if list.Total != 1 || list.PageSize != 200 || !list.Events[0].IsBot || list.Events[0].IP != nil {
		t.Errorf("unexpected list: %+v", list)
	}
	if list.Events[0].Indicators == nil {
		t.Error("indicators must serialise as an empty list")
	}

	if got := env.do("GET", "/api/detections/req-1", "", adminHeader).Code; got != http.StatusOK {
		t.Errorf("expected 200, got %d", got)
	}
	if got := env.do("GET", "/api/detections/missing", "", adminHeader).Code; got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}

	analytics := decode[chread.AnalyticsResult](t, env.do("GET", "/api/analytics?days=500", "", adminHeader))
	if analytics.Summary.TotalDetections != 3 {
		t.Errorf("unexpected analytics: %+v", analytics.Summary)
	}
}

// --- misc ---

func TestHealthzAndCORS(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/healthz", "", "")
	if w.Code != http.StatusOK || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected healthz response %d %v", w.Code, w.Header())
	}

	env.deps.CORSOrigins = []string{"https://admin.example.com"}
	handler := NewRouter(env.deps)
	r := httptest.NewRequest(http.MethodOptions, "/api/patterns", nil)
	r.Header.Set("Origin", "https://admin.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://admin.example.com" {
		t.Errorf("unexpected preflight %d %v", rec.Code, rec.Header())
	}

	r = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin must not be allowed")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Errorf("unexpected metrics response %d", w.Code)
	}
}

func BenchmarkDetectHandler(b *testing.B) {
	verifier, _ := ipverify.New(nil)
	deps := &Dependencies{
		Detector: &fakeDetector{results: map[string]engine.DetectionResult{}},
		Policy:   engine.DefaultServePolicy(),
		Verifier: verifier,
		Writer:   storage.NewLogWriter(zap.NewNop()),
		Logger:   zap.NewNop(),
	}
	handler := NewRouter(deps)
	body := []byte(`{"user_agent":"` + gptbotUA + `","ip":"23.98.142.7"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := httptest.NewRequest("POST", "/v1/detect", bytes.NewReader(body))
		handler.ServeHTTP(httptest.NewRecorder(), r)
	}
}
