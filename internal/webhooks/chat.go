package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"recruitflow/internal/candidates"
	"recruitflow/internal/common/config"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/metrics"
	"recruitflow/internal/cvs"
	"recruitflow/internal/models"
)

// DocumentMatcher runs the matching cascade; implemented by cvs.Matcher.
type DocumentMatcher interface {
	Match(ctx context.Context, in *cvs.Inbound) (*cvs.MatchResult, error)
}

// ReplyStore persists text-only inbound items; implemented by cvs.Store.
type ReplyStore interface {
	InsertReply(ctx context.Context, reply *models.InboundReply) error
}

// ChatHandler receives inbound chat messages. Media messages run through the
// matching cascade; text-only messages are stored as replies for recruiter
// review. A message carrying both does both.
type ChatHandler struct {
	cfg     config.MessagingConfig
	storage config.StorageConfig
	matcher DocumentMatcher
	replies ReplyStore
	cands   *candidates.Store
	logger  logger.Logger
}

func NewChatHandler(
	cfg config.MessagingConfig,
	storage config.StorageConfig,
	matcher DocumentMatcher,
	replies ReplyStore,
	cands *candidates.Store,
	log logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		cfg:     cfg,
		storage: storage,
		matcher: matcher,
		replies: replies,
		cands:   cands,
		logger:  log.WithFields(map[string]interface{}{"component": "chat-webhook"}),
	}
}

type chatEvent struct {
	From       string `json:"from"`
	SenderName string `json:"sender_name"`
	Text       string `json:"text"`
	Media      *struct {
		FileName string `json:"file_name"`
		MimeType string `json:"mime_type"`
		Content  string `json:"content"` // base64
	} `json:"media"`
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		metrics.WebhookEvents.WithLabelValues("chat", "rejected").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event chatEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		metrics.WebhookEvents.WithLabelValues("chat", "rejected").Inc()
		h.logger.Warn("malformed chat payload", map[string]interface{}{"error": err.Error()})
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if event.From == "" {
		metrics.WebhookEvents.WithLabelValues("chat", "rejected").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result := h.process(r.Context(), &event)
	metrics.WebhookEvents.WithLabelValues("chat", result).Inc()
	if result == "infra_error" {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *ChatHandler) authorized(r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	secret := h.cfg.Chat.WebhookSecret
	return secret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func (h *ChatHandler) process(ctx context.Context, event *chatEvent) string {
	matched := "text_only"

	if event.Media != nil && event.Media.Content != "" {
		data, err := base64.StdEncoding.DecodeString(event.Media.Content)
		if err != nil {
			h.logger.Warn("undecodable media content, dropped", map[string]interface{}{
				"from": event.From,
			})
			return "rejected"
		}
		path, err := cvs.SaveAttachment(h.storage.CVDir, event.Media.FileName, data)
		if err != nil {
			h.logger.WithError(err).Error("attachment save failed", nil)
			return "infra_error"
		}

		result, err := h.matcher.Match(ctx, &cvs.Inbound{
			Channel:        "chat",
			SenderName:     event.SenderName,
			SenderPhone:    event.From,
			Caption:        event.Text,
			AttachmentName: event.Media.FileName,
			FilePath:       path,
		})
		if err != nil {
			h.logger.WithError(err).Error("cascade match failed", nil)
			return "infra_error"
		}
		matched = "unmatched"
		if result.Matched() {
			matched = "matched"
		}
	}

	if event.Text != "" {
		if err := h.storeReply(ctx, event); err != nil {
			h.logger.WithError(err).Error("reply insert failed", nil)
			if matched == "text_only" {
				return "infra_error"
			}
		}
	}
	return matched
}

func (h *ChatHandler) storeReply(ctx context.Context, event *chatEvent) error {
	reply := &models.InboundReply{
		Channel: "chat",
		Sender:  event.From,
		Body:    event.Text,
	}
	if cand, err := h.cands.FindByPhone(ctx, event.From); err == nil && cand != nil {
		reply.CandidateID = &cand.ID
	}
	return h.replies.InsertReply(ctx, reply)
}
