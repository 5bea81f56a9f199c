package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/store"
)

// handleRunLearner runs one learning batch inline. A run skipped because
// another process holds the lease reports 0 promoted.
func (d *Dependencies) handleRunLearner(w http.ResponseWriter, r *http.Request) {
	if d.Learner == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Learner not configured"})
		return
	}
	promoted, err := d.Learner.ProcessPendingBots(r.Context())
	if err != nil {
		d.Logger.Error("learner run failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Learner run failed"})
		return
	}
	writeJSON(w, http.StatusOK, LearnerRunResp{Promoted: promoted})
}

// handleRunSync fetches every configured source inline. An empty result
// means the run was skipped because another process holds the lease.
func (d *Dependencies) handleRunSync(w http.ResponseWriter, r *http.Request) {
	if d.Syncer == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Sync not configured"})
		return
	}
	results := d.Syncer.RunSync(r.Context())
	writeJSON(w, http.StatusOK, SyncResultResp{Skipped: len(results) == 0, Sources: results})
}

func (d *Dependencies) handleListSyncRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	runs, err := d.Store.ListSyncRuns(r.Context(), q.Get("source"), clamp(queryInt(q, "limit", 50), 1, 500))
	if err != nil {
		d.Logger.Error("failed to list sync runs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list sync runs"})
		return
	}

	resp := make([]SyncRunResp, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, syncRunToResp(run))
	}
	writeJSON(w, http.StatusOK, resp)
}

func syncRunToResp(run store.SyncRun) SyncRunResp {
	return SyncRunResp{
		ID:            run.ID,
		SourceName:    run.SourceName,
		SourceVersion: run.SourceVersion,
		AddedCount:    run.AddedCount,
		UpdatedCount:  run.UpdatedCount,
		TotalCount:    run.TotalCount,
		Status:        string(run.Status),
		ErrorMessage:  nilIfEmpty(run.ErrorMessage),
		SyncedAt:      run.SyncedAt,
	}
}
