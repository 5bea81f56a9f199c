package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/auth"
	"github.com/triage-ai/botsentry/internal/chread"
	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/extsync"
	"github.com/triage-ai/botsentry/internal/ipverify"
	"github.com/triage-ai/botsentry/internal/storage"
	"github.com/triage-ai/botsentry/internal/store"
)

// Detector classifies user agents.
type Detector interface {
	Detect(ctx context.Context, userAgent string) engine.DetectionResult
}

// AdminStore is the Postgres surface the admin handlers use. *store.Store
// satisfies it.
type AdminStore interface {
	ListPatterns(ctx context.Context, params store.ListPatternsParams) ([]store.BotPattern, error)
	GetPattern(ctx context.Context, id int64) (*store.BotPattern, error)
	InsertPattern(ctx context.Context, np store.NewPattern) (*store.BotPattern, bool, error)
	UpdatePattern(ctx context.Context, id int64, params store.UpdatePatternParams) (*store.BotPattern, error)
	DeactivatePattern(ctx context.Context, id int64) error
	ListUnknownBots(ctx context.Context, params store.ListUnknownParams) ([]store.UnknownBot, error)
	SetClassificationStatus(ctx context.Context, id int64, status store.ClassificationStatus) error
	ListSyncRuns(ctx context.Context, source string, limit int) ([]store.SyncRun, error)
}

// Learner runs an auto-learning batch.
type Learner interface {
	ProcessPendingBots(ctx context.Context) (int, error)
}

// Syncer runs an external pattern sync.
type Syncer interface {
	RunSync(ctx context.Context) map[string]extsync.SourceResult
}

// EventReader queries stored detection events. *chread.Reader satisfies it.
type EventReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	GetEvent(ctx context.Context, requestID string) (*chread.EventRow, error)
	GetAnalytics(ctx context.Context, days int) (*chread.AnalyticsResult, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Detector    Detector
	Policy      engine.ServePolicy
	Verifier    *ipverify.Verifier // nil disables IP verification
	Store       AdminStore
	Catalog     interface{ Invalidate() }
	Learner     Learner
	Syncer      Syncer
	Writer      storage.EventWriter
	Reader      EventReader // nil if ClickHouse unavailable
	Auth        auth.Authenticator
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Detection (public)
	mux.HandleFunc("POST /v1/detect", deps.handleDetect)

	// Catalog administration
	mux.HandleFunc("GET /api/patterns", deps.adminOnly(deps.handleListPatterns))
	mux.HandleFunc("POST /api/patterns", deps.adminOnly(deps.handleCreatePattern))
	mux.HandleFunc("GET /api/patterns/{id}", deps.adminOnly(deps.handleGetPattern))
	mux.HandleFunc("PATCH /api/patterns/{id}", deps.adminOnly(deps.handleUpdatePattern))
	mux.HandleFunc("DELETE /api/patterns/{id}", deps.adminOnly(deps.handleDeletePattern))

	// Learning
	mux.HandleFunc("GET /api/unknown-bots", deps.adminOnly(deps.handleListUnknownBots))
	mux.HandleFunc("POST /api/unknown-bots/{id}/reject", deps.adminOnly(deps.handleRejectUnknownBot))
	mux.HandleFunc("POST /api/learner/run", deps.adminOnly(deps.handleRunLearner))

	// External sync
	mux.HandleFunc("POST /api/sync/run", deps.adminOnly(deps.handleRunSync))
	mux.HandleFunc("GET /api/sync/runs", deps.adminOnly(deps.handleListSyncRuns))

	// Events & analytics
	mux.HandleFunc("GET /api/detections", deps.adminOnly(deps.handleListEvents))
	mux.HandleFunc("GET /api/detections/{request_id}", deps.adminOnly(deps.handleGetEvent))
	mux.HandleFunc("GET /api/analytics", deps.adminOnly(deps.handleGetAnalytics))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return corsMiddleware(requestLogging(mux, deps.Logger), deps.CORSOrigins)
}
