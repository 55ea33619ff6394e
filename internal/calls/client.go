// Package calls wraps the voice provider's outbound-call API and owns the
// call_attempts table.
package calls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"recruitflow/internal/common/config"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/logger"
)

// ProviderClient talks to the voice provider. Batch submissions return only a
// correlation id; per-call ids for batched calls arrive later over the
// completion webhook.
type ProviderClient struct {
	cfg    config.VoiceConfig
	client *http.Client
	logger logger.Logger
}

func NewProviderClient(cfg config.VoiceConfig, log logger.Logger) *ProviderClient {
	return &ProviderClient{
		cfg: cfg,
		// No client-level timeout; the per-request context bounds every call.
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"component": "voice-provider"}),
	}
}

// CallRequest is one outbound call submission.
type CallRequest struct {
	ApplicationID int64
	PhoneNumber   string
	SystemPrompt  string
	FirstMessage  string
}

type singleCallPayload struct {
	AgentID       string         `json:"agent_id"`
	PhoneNumberID string         `json:"agent_phone_number_id"`
	ToNumber      string         `json:"to_number"`
	Overrides     agentOverrides `json:"conversation_initiation_client_data"`
}

type agentOverrides struct {
	AgentConfig agentConfig `json:"conversation_config_override"`
	// Echoed back verbatim on the completion webhook; carries the
	// application id for batch late-binding.
	UserID string `json:"user_id"`
}

type agentConfig struct {
	Prompt       promptOverride `json:"agent"`
	FirstMessage string         `json:"first_message,omitempty"`
}

type promptOverride struct {
	Prompt string `json:"prompt,omitempty"`
}

type batchPayload struct {
	CallName      string           `json:"call_name"`
	AgentID       string           `json:"agent_id"`
	PhoneNumberID string           `json:"agent_phone_number_id"`
	Recipients    []batchRecipient `json:"recipients"`
}

type batchRecipient struct {
	PhoneNumber string         `json:"phone_number"`
	Overrides   agentOverrides `json:"conversation_initiation_client_data"`
}

// StatusResult is the provider's view of one call, used by both the webhook
// handler and the stuck-call poll fallback.
type StatusResult struct {
	Status          string          `json:"status"`
	Transcript      []Turn          `json:"transcript"`
	Summary         string          `json:"call_summary"`
	SummaryTitle    string          `json:"call_summary_title"`
	RecordingURL    string          `json:"recording_url"`
	DurationSeconds int             `json:"call_duration_secs"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// Turn is one transcript entry. Providers disagree on the text field name, so
// all three spellings are accepted.
type Turn struct {
	Role    string `json:"role"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

func (t Turn) Line() string {
	switch {
	case t.Text != "":
		return t.Text
	case t.Message != "":
		return t.Message
	default:
		return t.Content
	}
}

func (c *ProviderClient) timeout() time.Duration {
	return time.Duration(c.cfg.Timeout) * time.Millisecond
}

// SubmitSingle places one call and returns the provider's call-session id.
func (c *ProviderClient) SubmitSingle(ctx context.Context, req CallRequest) (string, error) {
	payload := singleCallPayload{
		AgentID:       c.cfg.AgentID,
		PhoneNumberID: c.cfg.PhoneNumberID,
		ToNumber:      req.PhoneNumber,
		Overrides:     buildOverrides(req),
	}

	var out struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.post(ctx, "/v1/convai/twilio/outbound-call", payload, &out); err != nil {
		return "", err
	}
	if out.ConversationID == "" {
		return "", apperrors.NewProviderUnavailableError("voice", fmt.Errorf("empty conversation id"))
	}
	return out.ConversationID, nil
}

// SubmitBatch places up to the configured chunk size of calls in one provider
// request and returns the batch correlation id. Per-call session ids are not
// available at submission time.
func (c *ProviderClient) SubmitBatch(ctx context.Context, name string, reqs []CallRequest) (string, error) {
	payload := batchPayload{
		CallName:      name,
		AgentID:       c.cfg.AgentID,
		PhoneNumberID: c.cfg.PhoneNumberID,
	}
	for _, r := range reqs {
		payload.Recipients = append(payload.Recipients, batchRecipient{
			PhoneNumber: r.PhoneNumber,
			Overrides:   buildOverrides(r),
		})
	}

	var out struct {
		BatchID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/convai/batch-calling/submit", payload, &out); err != nil {
		return "", err
	}
	if out.BatchID == "" {
		return "", apperrors.NewProviderUnavailableError("voice", fmt.Errorf("empty batch id"))
	}
	return out.BatchID, nil
}

// FetchStatus polls the provider for one call's current state. Fallback path
// for missed webhooks.
func (c *ProviderClient) FetchStatus(ctx context.Context, conversationID string) (*StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/v1/convai/conversations/"+conversationID, nil)
	if err != nil {
		return nil, apperrors.NewProviderUnavailableError("voice", err)
	}
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewProviderTimeoutError("voice")
		}
		return nil, apperrors.NewProviderUnavailableError("voice", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperrors.NewProviderUnavailableError("voice",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var result StatusResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.NewProviderUnavailableError("voice", err)
	}
	return &result, nil
}

func (c *ProviderClient) post(ctx context.Context, path string, payload, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal voice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return apperrors.NewProviderUnavailableError("voice", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperrors.NewProviderTimeoutError("voice")
		}
		return apperrors.NewProviderUnavailableError("voice", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("voice provider rejected request", map[string]interface{}{
			"path":   path,
			"status": resp.StatusCode,
			"body":   string(respBody),
		})
		return apperrors.NewProviderUnavailableError("voice",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewProviderUnavailableError("voice", err)
	}
	return nil
}

func buildOverrides(req CallRequest) agentOverrides {
	return agentOverrides{
		AgentConfig: agentConfig{
			Prompt:       promptOverride{Prompt: req.SystemPrompt},
			FirstMessage: req.FirstMessage,
		},
		UserID: fmt.Sprintf("%d", req.ApplicationID),
	}
}
