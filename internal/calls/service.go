package calls

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"recruitflow/internal/common/config"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/metrics"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
)

// QueueItem is one application ready for dialing, with its joined candidate
// and position rows.
type QueueItem struct {
	Application *models.Application
	Candidate   *models.Candidate
	Position    *models.Position
}

// PromptSource resolves the active meta-prompt for a category; implemented by
// prompts.Store.
type PromptSource interface {
	GetActiveTemplate(ctx context.Context, categoryKey string) (*models.PromptTemplate, error)
}

// Prompt template categories consulted when a position has no prompt of its
// own.
const (
	CategorySystemPrompt = "call_system_prompt"
	CategoryFirstMessage = "call_first_message"
)

// Service drives call submission: attempt rows, prompt rendering, provider
// calls, and the lifecycle transitions around them.
type Service struct {
	provider  *ProviderClient
	store     *Store
	machine   *lifecycle.Machine
	templates PromptSource
	cfg       config.VoiceConfig
	logger    logger.Logger
}

func NewService(provider *ProviderClient, store *Store, machine *lifecycle.Machine, templates PromptSource, cfg config.VoiceConfig, log logger.Logger) *Service {
	return &Service{
		provider:  provider,
		store:     store,
		machine:   machine,
		templates: templates,
		cfg:       cfg,
		logger:    log,
	}
}

func (s *Service) buildRequest(ctx context.Context, item QueueItem) CallRequest {
	vars := PromptVars(item.Candidate, item.Position)
	return CallRequest{
		ApplicationID: item.Application.ID,
		PhoneNumber:   item.Candidate.Phone,
		SystemPrompt:  RenderTemplate(s.promptOrActive(ctx, item.Position.SystemPrompt, CategorySystemPrompt), vars),
		FirstMessage:  RenderTemplate(s.promptOrActive(ctx, item.Position.FirstMessage, CategoryFirstMessage), vars),
	}
}

// promptOrActive falls back to the category's active template when the
// position carries no prompt of its own. A resolution failure degrades to the
// empty prompt rather than blocking the call.
func (s *Service) promptOrActive(ctx context.Context, own, categoryKey string) string {
	if own != "" || s.templates == nil {
		return own
	}
	tpl, err := s.templates.GetActiveTemplate(ctx, categoryKey)
	if err != nil {
		s.logger.WithError(err).Warn("active prompt template lookup failed", map[string]interface{}{
			"category": categoryKey,
		})
		return own
	}
	if tpl == nil {
		return own
	}
	return tpl.MetaPrompt
}

// SubmitSingle places one call (the callback path). The attempt row exists
// before the provider responds; the session id binds as soon as it returns.
func (s *Service) SubmitSingle(ctx context.Context, item QueueItem) error {
	attempt, err := s.store.CreateAttempt(ctx, item.Application.ID, "", "")
	if err != nil {
		return err
	}

	conversationID, err := s.provider.SubmitSingle(ctx, s.buildRequest(ctx, item))
	if err != nil {
		return s.handleSubmissionFailure(ctx, item, attempt, err)
	}

	if _, err := s.store.db.Exec(ctx,
		`UPDATE call_attempts SET conversation_id = $2 WHERE id = $1`,
		attempt.ID, conversationID,
	); err != nil {
		s.logger.WithError(err).Error("failed to record conversation id", map[string]interface{}{
			"call_id": attempt.ID,
		})
	}

	metrics.CallsSubmitted.WithLabelValues("single").Inc()
	_, err = s.machine.ApplyTransition(ctx, item.Application.ID, lifecycle.EventCallSubmitted, lifecycle.Payload{
		Actor: "dispatcher",
		Note:  fmt.Sprintf("call submitted, attempt %d", attempt.AttemptNumber),
	})
	return err
}

// SubmitBatch submits one provider batch for up to the configured chunk size
// of items. Attempt rows are created with unbound session ids; the batch
// correlation id is stamped on them once the provider returns it. Each
// application's transition runs in its own transaction so one conflict does
// not poison the rest of the batch.
func (s *Service) SubmitBatch(ctx context.Context, items []QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	if max := s.cfg.BatchChunkSize; max > 0 && len(items) > max {
		return fmt.Errorf("batch of %d exceeds chunk size %d", len(items), max)
	}

	attempts := make(map[int64]*models.Call, len(items))
	reqs := make([]CallRequest, 0, len(items))
	for _, item := range items {
		attempt, err := s.store.CreateAttempt(ctx, item.Application.ID, "", "")
		if err != nil {
			return err
		}
		attempts[item.Application.ID] = attempt
		reqs = append(reqs, s.buildRequest(ctx, item))
	}

	batchName := fmt.Sprintf("screening-%s", uuid.NewString())
	batchID, err := s.provider.SubmitBatch(ctx, batchName, reqs)
	if err != nil {
		for _, item := range items {
			if failErr := s.handleSubmissionFailure(ctx, item, attempts[item.Application.ID], err); failErr != nil {
				s.logger.WithError(failErr).Error("batch failure handling failed", map[string]interface{}{
					"application_id": item.Application.ID,
				})
			}
		}
		return err
	}

	for _, item := range items {
		attempt := attempts[item.Application.ID]
		if _, err := s.store.db.Exec(ctx,
			`UPDATE call_attempts SET batch_id = $2 WHERE id = $1`,
			attempt.ID, batchID,
		); err != nil {
			s.logger.WithError(err).Error("failed to record batch id", map[string]interface{}{
				"call_id": attempt.ID,
			})
		}

		metrics.CallsSubmitted.WithLabelValues("batch").Inc()
		if _, err := s.machine.ApplyTransition(ctx, item.Application.ID, lifecycle.EventCallSubmitted, lifecycle.Payload{
			Actor: "dispatcher",
			Note:  fmt.Sprintf("batch %s, attempt %d", batchID, attempt.AttemptNumber),
		}); err != nil {
			// Logged and skipped; the other applications in the batch proceed.
			s.logger.WithError(err).Error("transition after batch submission failed", map[string]interface{}{
				"application_id": item.Application.ID,
			})
		}
	}

	s.logger.Info("batch submitted", map[string]interface{}{
		"batch_id": batchID,
		"count":    len(items),
	})
	return nil
}

// handleSubmissionFailure marks the attempt failed and applies the retry
// budget: under budget the application stays call_queued for the next tick;
// at budget it flips to call_failed.
func (s *Service) handleSubmissionFailure(ctx context.Context, item QueueItem, attempt *models.Call, cause error) error {
	if err := s.store.UpdateResult(ctx, attempt.ID, models.CallFailed, nil); err != nil {
		s.logger.WithError(err).Error("failed to mark attempt failed", map[string]interface{}{
			"call_id": attempt.ID,
		})
	}

	count, err := s.store.CountAttempts(ctx, item.Application.ID)
	if err != nil {
		return err
	}
	if count < item.Position.CallRetryMax {
		s.logger.Warn("call submission failed, staying queued", map[string]interface{}{
			"application_id": item.Application.ID,
			"attempt":        count,
			"retry_max":      item.Position.CallRetryMax,
			"error":          cause.Error(),
		})
		return nil
	}

	_, err = s.machine.ApplyTransition(ctx, item.Application.ID, lifecycle.EventCallFailed, lifecycle.Payload{
		Actor: "dispatcher",
		Note:  fmt.Sprintf("retry budget exhausted after %d attempts: %v", count, cause),
	})
	return err
}

// FetchStatus proxies the provider poll, mapping the status onto the attempt
// enum.
func (s *Service) FetchStatus(ctx context.Context, conversationID string) (models.CallStatus, *StatusResult, error) {
	result, err := s.provider.FetchStatus(ctx, conversationID)
	if err != nil {
		return "", nil, err
	}
	return MapProviderStatus(result.Status, s.logger), result, nil
}
