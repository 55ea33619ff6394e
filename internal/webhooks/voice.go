package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"recruitflow/internal/calls"
	"recruitflow/internal/common/config"
	"recruitflow/internal/common/database"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/metrics"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
	"recruitflow/internal/positions"
)

// Evaluator scores a completed call; implemented by the evaluation engine.
type Evaluator interface {
	Evaluate(ctx context.Context, call *models.Call) (*models.Evaluation, error)
}

// VoiceHandler receives call completion events from the voice provider.
//
// Response codes follow redelivery semantics: business outcomes (duplicate
// event, unknown session, no matching attempt) return 200 so the provider
// stops retrying; only infrastructure failures return 5xx to trigger
// redelivery.
type VoiceHandler struct {
	cfg       config.VoiceConfig
	redis     *database.RedisClient
	callStore *calls.Store
	apps      *lifecycle.Store
	positions *positions.Store
	machine   *lifecycle.Machine
	evaluator Evaluator
	logger    logger.Logger
}

func NewVoiceHandler(
	cfg config.VoiceConfig,
	redis *database.RedisClient,
	callStore *calls.Store,
	apps *lifecycle.Store,
	positionStore *positions.Store,
	machine *lifecycle.Machine,
	evaluator Evaluator,
	log logger.Logger,
) *VoiceHandler {
	return &VoiceHandler{
		cfg:       cfg,
		redis:     redis,
		callStore: callStore,
		apps:      apps,
		positions: positionStore,
		machine:   machine,
		evaluator: evaluator,
		logger:    log.WithFields(map[string]interface{}{"component": "voice-webhook"}),
	}
}

// voiceEvent tolerates both payload shapes the provider sends: fields nested
// under "data" for signed event deliveries, or flat at the top level.
type voiceEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`

	voiceEventData
}

type voiceEventData struct {
	ConversationID  string       `json:"conversation_id"`
	Status          string       `json:"status"`
	Transcript      []calls.Turn `json:"transcript"`
	Summary         string       `json:"call_summary"`
	SummaryTitle    string       `json:"call_summary_title"`
	RecordingURL    string       `json:"recording_url"`
	DurationSeconds int          `json:"call_duration_secs"`

	Analysis struct {
		TranscriptSummary string `json:"transcript_summary"`
	} `json:"analysis"`
	InitiationData struct {
		UserID string `json:"user_id"`
	} `json:"conversation_initiation_client_data"`
}

func (h *VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.reject(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := ValidateSignature(h.cfg.WebhookSecret, r.Header.Get("Elevenlabs-Signature"), body, time.Now()); err != nil {
		metrics.WebhookEvents.WithLabelValues("voice", "rejected").Inc()
		h.logger.Warn("webhook signature rejected", map[string]interface{}{"error": err.Error()})
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	event, err := parseVoiceEvent(body)
	if err != nil {
		h.reject(w, http.StatusBadRequest, "malformed payload")
		return
	}
	if event.ConversationID == "" {
		h.reject(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	result := h.process(r.Context(), event)
	metrics.WebhookEvents.WithLabelValues("voice", result).Inc()
	switch result {
	case "infra_error":
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func parseVoiceEvent(body []byte) (*voiceEventData, error) {
	var event voiceEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if len(event.Data) > 0 {
		var nested voiceEventData
		if err := json.Unmarshal(event.Data, &nested); err != nil {
			return nil, err
		}
		return &nested, nil
	}
	return &event.voiceEventData, nil
}

// process returns the metric label for the outcome.
func (h *VoiceHandler) process(ctx context.Context, event *voiceEventData) string {
	// Duplicate deliveries are dropped before touching the database. The
	// marker is advisory; the evaluation engine's locked re-check is the
	// real duplicate barrier.
	dedupKey := "webhook:voice:" + event.ConversationID
	if h.redis != nil {
		fresh, err := h.redis.SetNX(ctx, dedupKey, "1", 24*time.Hour)
		if err == nil && !fresh {
			h.logger.Info("duplicate webhook delivery dropped", map[string]interface{}{
				"conversation_id": event.ConversationID,
			})
			return "duplicate"
		}
	}

	result := h.handleEvent(ctx, event)
	if result == "infra_error" {
		// A 5xx makes the provider redeliver; the marker must not swallow
		// that redelivery as a duplicate.
		h.clearDedupMarker(ctx, dedupKey)
	}
	return result
}

func (h *VoiceHandler) clearDedupMarker(ctx context.Context, key string) {
	if h.redis == nil {
		return
	}
	if err := h.redis.Del(ctx, key); err != nil {
		h.logger.WithError(err).Warn("dedup marker cleanup failed", map[string]interface{}{
			"key": key,
		})
	}
}

func (h *VoiceHandler) handleEvent(ctx context.Context, event *voiceEventData) string {
	call, err := h.resolveCall(ctx, event)
	if err != nil {
		h.logger.WithError(err).Error("call lookup failed", nil)
		return "infra_error"
	}
	if call == nil {
		h.logger.Warn("no attempt matches webhook event, dropped", map[string]interface{}{
			"conversation_id": event.ConversationID,
			"user_id":         event.InitiationData.UserID,
		})
		return "unmatched"
	}

	status := calls.MapProviderStatus(event.Status, h.logger)
	if status == models.CallStatusProgress {
		if err := h.callStore.MarkInProgress(ctx, call.ID); err != nil {
			return "infra_error"
		}
		return "progress"
	}
	if !calls.IsTerminal(status) {
		return "ignored"
	}

	if err := h.callStore.UpdateResult(ctx, call.ID, status, statusResult(event)); err != nil {
		return "infra_error"
	}
	call.Status = status
	call.Transcript = calls.FormatTranscript(event.Transcript)

	if status == models.CallCompleted {
		return h.handleCompleted(ctx, call)
	}
	return h.handleUnanswered(ctx, call, status)
}

// resolveCall finds the attempt for an event: by bound session id first, then
// by late-binding the application id echoed through the provider's client
// data.
func (h *VoiceHandler) resolveCall(ctx context.Context, event *voiceEventData) (*models.Call, error) {
	call, err := h.callStore.GetByConversationID(ctx, event.ConversationID)
	if err != nil || call != nil {
		return call, err
	}

	applicationID, err := strconv.ParseInt(event.InitiationData.UserID, 10, 64)
	if err != nil || applicationID <= 0 {
		return nil, nil
	}
	return h.callStore.BindConversation(ctx, applicationID, event.ConversationID)
}

func (h *VoiceHandler) handleCompleted(ctx context.Context, call *models.Call) string {
	metrics.CallsCompleted.WithLabelValues(string(models.CallCompleted)).Inc()
	if _, err := h.machine.ApplyTransition(ctx, call.ApplicationID, lifecycle.EventCallCompleted, lifecycle.Payload{
		Actor: "voice-webhook",
		Note:  fmt.Sprintf("completion event, attempt %d", call.AttemptNumber),
	}); err != nil {
		// The stuck-call poll may have won the race; evaluation resolves it.
		h.logger.WithError(err).Warn("completion transition rejected, evaluating anyway", map[string]interface{}{
			"application_id": call.ApplicationID,
		})
	}

	if _, err := h.evaluator.Evaluate(ctx, call); err != nil {
		h.logger.WithError(err).Error("evaluation failed, provider will redeliver", map[string]interface{}{
			"call_id": call.ID,
		})
		return "infra_error"
	}
	return "completed"
}

// handleUnanswered applies the retry budget for no_answer, busy, and failed
// events.
func (h *VoiceHandler) handleUnanswered(ctx context.Context, call *models.Call, status models.CallStatus) string {
	metrics.CallsCompleted.WithLabelValues(string(status)).Inc()

	app, err := h.apps.Get(ctx, call.ApplicationID)
	if err != nil {
		return "infra_error"
	}
	pos, err := h.positions.GetByID(ctx, app.PositionID)
	if err != nil {
		return "infra_error"
	}
	count, err := h.callStore.CountAttempts(ctx, call.ApplicationID)
	if err != nil {
		return "infra_error"
	}

	event := lifecycle.EventCallRetry
	note := fmt.Sprintf("%s on attempt %d of %d, re-queued", status, count, pos.CallRetryMax)
	if count >= pos.CallRetryMax {
		event = lifecycle.EventCallFailed
		note = fmt.Sprintf("retry budget exhausted: %s on attempt %d of %d", status, count, pos.CallRetryMax)
	}
	if _, err := h.machine.ApplyTransition(ctx, call.ApplicationID, event, lifecycle.Payload{
		Actor: "voice-webhook",
		Note:  note,
	}); err != nil {
		h.logger.WithError(err).Warn("retry transition rejected", map[string]interface{}{
			"application_id": call.ApplicationID,
		})
	}
	return "unanswered"
}

func statusResult(event *voiceEventData) *calls.StatusResult {
	summary := event.Summary
	if summary == "" {
		summary = event.Analysis.TranscriptSummary
	}
	return &calls.StatusResult{
		Status:          event.Status,
		Transcript:      event.Transcript,
		Summary:         summary,
		SummaryTitle:    event.SummaryTitle,
		RecordingURL:    event.RecordingURL,
		DurationSeconds: event.DurationSeconds,
	}
}

func (h *VoiceHandler) reject(w http.ResponseWriter, code int, reason string) {
	metrics.WebhookEvents.WithLabelValues("voice", "rejected").Inc()
	h.logger.Warn("webhook rejected", map[string]interface{}{"reason": reason})
	w.WriteHeader(code)
}
