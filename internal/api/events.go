package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/chread"
)

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	params := chread.ListEventsParams{
		Page:     max(queryInt(q, "page", 1), 1),
		PageSize: clamp(queryInt(q, "page_size", 50), 1, 200),
	}

	if v := q.Get("is_bot"); v != "" {
		b := v == "true" || v == "1"
		params.IsBot = &b
	}
	if v := q.Get("needs_review"); v != "" {
		b := v == "true" || v == "1"
		params.NeedsReview = &b
	}
	if v := q.Get("method"); v != "" {
		params.Method = &v
	}
	if v := q.Get("category"); v != "" {
		params.Category = &v
	}
	if v := q.Get("bot_name"); v != "" {
		params.BotName = &v
	}
	if v := q.Get("verdict"); v != "" {
		params.Verdict = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list detections", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list detections"})
		return
	}

	resp := EventListResp{
		Events:   make([]DetectionEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	event, err := d.Reader.GetEvent(r.Context(), r.PathValue("request_id"))
	if err != nil {
		d.Logger.Error("failed to get detection", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get detection"})
		return
	}
	if event == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Detection not found."})
		return
	}
	writeJSON(w, http.StatusOK, eventRowToResp(*event))
}

func (d *Dependencies) handleGetAnalytics(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	days := clamp(queryInt(r.URL.Query(), "days", 7), 1, 90)
	result, err := d.Reader.GetAnalytics(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to get analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get analytics"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// eventRowToResp converts a ClickHouse row to the API response.
func eventRowToResp(e chread.EventRow) DetectionEventResp {
	indicators := e.Indicators
	if indicators == nil {
		indicators = []string{}
	}
	return DetectionEventResp{
		RequestID:      e.RequestID,
		Timestamp:      e.Timestamp,
		UserAgent:      e.UserAgent,
		IP:             nilIfEmpty(e.IP),
		IsBot:          e.IsBot == 1,
		Confidence:     e.Confidence,
		BotName:        nilIfEmpty(e.BotName),
		BotVendor:      nilIfEmpty(e.BotVendor),
		BotCategory:    nilIfEmpty(e.BotCategory),
		Method:         e.Method,
		Indicators:     indicators,
		NeedsReview:    e.NeedsReview == 1,
		Priority:       nilIfEmpty(e.Priority),
		MatchedPattern: nilIfEmpty(e.MatchedPattern),
		Verdict:        e.Verdict,
		IPVerification: nilIfEmpty(e.IPVerification),
		Browser:        nilIfEmpty(e.Browser),
		OS:             nilIfEmpty(e.OS),
		DeviceType:     nilIfEmpty(e.DeviceType),
		LatencyMs:      e.LatencyMs,
		Source:         e.Source,
	}
}
