package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/store"
)

func (d *Dependencies) handleListUnknownBots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.ListUnknownParams{
		Limit:  clamp(queryInt(q, "limit", 50), 1, 200),
		Offset: max(queryInt(q, "offset", 0), 0),
	}
	if v := q.Get("status"); v != "" {
		status := store.ClassificationStatus(v)
		switch status {
		case store.StatusPending, store.StatusPromoted, store.StatusRejected:
			params.Status = &status
		default:
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "status must be pending, promoted or rejected"})
			return
		}
	}
	if v := q.Get("min_probability"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p < 0 || p > 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "min_probability must be between 0 and 1"})
			return
		}
		params.MinProbability = p
	}

	bots, err := d.Store.ListUnknownBots(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list unknown bots", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list unknown bots"})
		return
	}

	resp := make([]UnknownBotResp, 0, len(bots))
	for i := range bots {
		resp = append(resp, unknownBotToResp(&bots[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRejectUnknownBot marks a candidate so the learner never promotes it.
func (d *Dependencies) handleRejectUnknownBot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := d.Store.SetClassificationStatus(r.Context(), id, store.StatusRejected)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Unknown bot not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to reject unknown bot", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to reject unknown bot"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func unknownBotToResp(u *store.UnknownBot) UnknownBotResp {
	indicators := make([]string, len(u.Indicators))
	for i, ind := range u.Indicators {
		indicators[i] = string(ind)
	}
	return UnknownBotResp{
		ID:                      u.ID,
		UserAgent:               u.UserAgent,
		IsBot:                   u.IsBot,
		Confidence:              u.Confidence,
		Method:                  string(u.Method),
		SuggestedBotName:        nilIfEmpty(u.SuggestedBotName),
		Indicators:              indicators,
		HeuristicBotProbability: u.HeuristicBotProbability,
		VisitCount:              u.VisitCount,
		ClassificationStatus:    string(u.ClassificationStatus),
		FirstSeen:               u.FirstSeen,
		LastSeen:                u.LastSeen,
	}
}
