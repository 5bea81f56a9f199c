package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/google/uuid"

	"github.com/triage-ai/botsentry/internal/engine"
	"github.com/triage-ai/botsentry/internal/ipverify"
	"github.com/triage-ai/botsentry/internal/storage"
	"github.com/triage-ai/botsentry/internal/store"
)

// handleDetect implements POST /v1/detect.
func (d *Dependencies) handleDetect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req DetectRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if msg := validateRequest(&req); msg != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: msg})
		return
	}

	result := d.Detector.Detect(r.Context(), req.UserAgent)
	decision := engine.Decide(result, d.Policy)

	var verification *ipverify.Verification
	if d.Verifier != nil && req.IP != "" && result.IsBot && result.BotName != "" {
		v := d.Verifier.Verify(result.BotName, req.IP)
		verification = &v
	}

	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	// Fire-and-forget: the writer never blocks.
	if d.Writer != nil {
		d.Writer.Write(newDetectionEvent(requestID, req, result, decision, verification, float32(latencyMs)))
	}

	var reason *string
	if decision.Reason != "" {
		reason = &decision.Reason
	}
	writeJSON(w, http.StatusOK, DetectResponse{
		RequestID: requestID,
		Result:    result,
		Decision: DecisionResp{
			Verdict:     decision.Verdict.String(),
			CacheTTLSec: int64(decision.CacheTTL / time.Second),
			Reason:      reason,
		},
		IPVerification: verification,
		LatencyMs:      latencyMs,
	})
}

func newDetectionEvent(
	requestID string,
	req DetectRequest,
	result engine.DetectionResult,
	decision engine.Decision,
	verification *ipverify.Verification,
	latencyMs float32,
) *storage.DetectionEvent {
	indicators := make([]string, len(result.Indicators))
	for i, ind := range result.Indicators {
		indicators[i] = string(ind)
	}

	var ipStatus string
	if verification != nil {
		ipStatus = string(verification.Status)
	}

	browser, os, device := describeAgent(req.UserAgent)

	return &storage.DetectionEvent{
		RequestID:      requestID,
		Timestamp:      time.Now(),
		UserAgent:      storage.Truncate(req.UserAgent, storage.UserAgentPreviewLength),
		UserAgentHash:  store.HashUserAgent(req.UserAgent),
		IP:             req.IP,
		IsBot:          result.IsBot,
		Confidence:     float32(result.Confidence),
		BotName:        result.BotName,
		BotVendor:      result.BotVendor,
		BotCategory:    string(result.BotCategory),
		Method:         string(result.Method),
		Indicators:     indicators,
		NeedsReview:    result.NeedsReview,
		Priority:       string(result.Priority),
		MatchedPattern: result.MatchedPattern,
		Verdict:        decision.Verdict.String(),
		CacheTTLSec:    uint32(decision.CacheTTL / time.Second),
		IPVerification: ipStatus,
		Browser:        browser,
		OS:             os,
		DeviceType:     device,
		LatencyMs:      latencyMs,
		Source:         "api",
	}
}

// describeAgent returns browser, OS and device labels for a user agent.
// Unrecognised parts come back empty.
func describeAgent(userAgent string) (browser, os, device string) {
	if strings.TrimSpace(userAgent) == "" {
		return "", "", ""
	}
	ua := uasurfer.Parse(userAgent)

	if ua.Browser.Name != uasurfer.BrowserUnknown {
		browser = fmt.Sprintf("%s %d.%d", strings.TrimPrefix(ua.Browser.Name.String(), "Browser"),
			ua.Browser.Version.Major, ua.Browser.Version.Minor)
	}
	if ua.OS.Name != uasurfer.OSUnknown {
		os = fmt.Sprintf("%s %d.%d", strings.TrimPrefix(ua.OS.Name.String(), "OS"),
			ua.OS.Version.Major, ua.OS.Version.Minor)
	}
	if ua.DeviceType != uasurfer.DeviceUnknown {
		device = strings.TrimPrefix(ua.DeviceType.String(), "Device")
	}
	return browser, os, device
}
