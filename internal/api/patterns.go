package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/pattern"
	"github.com/triage-ai/botsentry/internal/store"
)

func (d *Dependencies) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := store.ListPatternsParams{
		Limit:  clamp(queryInt(q, "limit", 100), 1, 500),
		Offset: max(queryInt(q, "offset", 0), 0),
	}
	if v := q.Get("source"); v != "" {
		params.Source = &v
	}
	if v := q.Get("active"); v != "" {
		b := v == "true" || v == "1"
		params.Active = &b
	}

	patterns, err := d.Store.ListPatterns(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list patterns", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list patterns"})
		return
	}

	resp := make([]PatternResp, 0, len(patterns))
	for i := range patterns {
		resp = append(resp, patternToResp(&patterns[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleCreatePattern(w http.ResponseWriter, r *http.Request) {
	var req CreatePatternReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if msg := validateRequest(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: msg})
		return
	}
	if strings.TrimSpace(req.Pattern) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "pattern: failed required"})
		return
	}

	np := store.NewPattern{
		Pattern:     req.Pattern,
		PatternType: store.PatternType(req.PatternType),
		BotName:     strings.TrimSpace(req.BotName),
		BotVendor:   strings.TrimSpace(req.BotVendor),
		BotCategory: engine.Category(req.BotCategory),
		Priority:    engine.Priority(req.Priority),
		Source:      store.SourceManual,
	}
	if np.PatternType != store.PatternExact {
		np.Pattern = pattern.Normalize(req.Pattern)
		if _, err := pattern.Compile(np.Pattern); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "pattern does not compile: " + err.Error()})
			return
		}
	}

	p, created, err := d.Store.InsertPattern(r.Context(), np)
	if err != nil {
		d.Logger.Error("failed to create pattern", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create pattern"})
		return
	}
	if !created {
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: "An active pattern with this text already exists."})
		return
	}

	d.invalidateCatalog()
	writeJSON(w, http.StatusCreated, patternToResp(p))
}

func (d *Dependencies) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := d.Store.GetPattern(r.Context(), id)
	if err != nil {
		d.Logger.Error("failed to get pattern", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get pattern"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Pattern not found."})
		return
	}
	writeJSON(w, http.StatusOK, patternToResp(p))
}

func (d *Dependencies) handleUpdatePattern(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req UpdatePatternReq
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if msg := validateRequest(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: msg})
		return
	}

	params := store.UpdatePatternParams{
		BotName:   req.BotName,
		BotVendor: req.BotVendor,
		IsActive:  req.IsActive,
	}
	if req.BotCategory != nil {
		c := engine.Category(*req.BotCategory)
		params.BotCategory = &c
	}
	if req.Priority != nil {
		p := engine.Priority(*req.Priority)
		params.Priority = &p
	}

	p, err := d.Store.UpdatePattern(r.Context(), id, params)
	if errors.Is(err, store.ErrDuplicatePattern) {
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: "An active pattern with this text already exists."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to update pattern", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update pattern"})
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Pattern not found."})
		return
	}

	d.invalidateCatalog()
	writeJSON(w, http.StatusOK, patternToResp(p))
}

// handleDeletePattern deactivates a pattern. Patterns are never hard-deleted.
func (d *Dependencies) handleDeletePattern(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := d.Store.DeactivatePattern(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Pattern not found."})
		return
	}
	if err != nil {
		d.Logger.Error("failed to deactivate pattern", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete pattern"})
		return
	}

	d.invalidateCatalog()
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) invalidateCatalog() {
	if d.Catalog != nil {
		d.Catalog.Invalidate()
	}
}

func patternToResp(p *store.BotPattern) PatternResp {
	return PatternResp{
		ID:            p.ID,
		Pattern:       p.Pattern,
		PatternType:   string(p.PatternType),
		BotName:       p.BotName,
		BotVendor:     p.BotVendor,
		BotCategory:   string(p.BotCategory),
		Priority:      string(p.Priority),
		Source:        p.Source,
		SourceVersion: p.SourceVersion,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// pathID parses the {id} path value, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func queryInt(q interface{ Get(string) string }, key string, defaultVal int) int {
	v := q.Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
