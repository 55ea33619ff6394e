// Package evaluations scores call transcripts and commits the verdict exactly
// once per call attempt.
package evaluations

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

// ScoringRequest carries everything the scoring provider sees: the dialogue,
// the position's qualification criteria, and the candidate's intake answers.
type ScoringRequest struct {
	Transcript            string
	QualificationCriteria string
	IntakeAnswers         string
}

// Scorer produces a raw verdict string for a transcript. Satisfied by
// ScoringClient; tests substitute a stub.
type Scorer interface {
	Score(ctx context.Context, req ScoringRequest) (string, error)
}

// ScoringClient calls an OpenAI-compatible chat completion endpoint.
type ScoringClient struct {
	cfg    config.ScoringConfig
	client *http.Client
	logger logger.Logger
}

func NewScoringClient(cfg config.ScoringConfig, log logger.Logger) *ScoringClient {
	return &ScoringClient{
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"component": "scoring-provider"}),
	}
}

const scoringSystemPrompt = `You evaluate screening-call transcripts for recruitment.
Respond with a single JSON object, no prose, with exactly these fields:
{"outcome": "qualified|not_qualified|callback_requested|needs_human",
 "qualified": bool, "score": 0-100, "reasoning": string,
 "callback_requested": bool, "callback_notes": string, "callback_at": string|null,
 "needs_human": bool, "needs_human_notes": string}`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Score sends the transcript for evaluation and returns the raw model output.
// No database locks may be held across this call; it can take seconds.
func (c *ScoringClient) Score(ctx context.Context, req ScoringRequest) (string, error) {
	userPrompt := fmt.Sprintf(
		"Qualification criteria:\n%s\n\nCandidate intake answers:\n%s\n\nTranscript:\n%s",
		req.QualificationCriteria, req.IntakeAnswers, req.Transcript,
	)
	return c.complete(ctx, c.cfg.Model, scoringSystemPrompt, userPrompt)
}

// ExtractContact asks the fast model to pull name/email/phone fields out of
// free document text. Used by the matching cascade's content tier.
func (c *ScoringClient) ExtractContact(ctx context.Context, text string) (string, error) {
	system := `Extract contact details from the document text.
Respond with a single JSON object: {"full_name": string, "email": string, "phone": string}.
Use "" for anything not present.`
	// CVs can be long; the extraction fields are always near the top.
	if len(text) > 6000 {
		text = text[:6000]
	}
	return c.complete(ctx, c.cfg.FastModel, system, text)
}

func (c *ScoringClient) complete(ctx context.Context, model, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.Timeout)*time.Millisecond)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal scoring request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", apperrors.NewProviderUnavailableError("scoring", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.NewProviderTimeoutError("scoring")
		}
		return "", apperrors.NewProviderUnavailableError("scoring", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("scoring provider rejected request", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(respBody),
		})
		return "", apperrors.NewProviderUnavailableError("scoring",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperrors.NewProviderUnavailableError("scoring", err)
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.NewProviderUnavailableError("scoring", fmt.Errorf("no choices in response"))
	}
	return parsed.Choices[0].Message.Content, nil
}
