package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"recruitflow/internal/common/config"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/logger"
)

// ChatClient sends outbound chat messages over the provider's HTTP API.
type ChatClient struct {
	cfg    config.MessagingConfig
	client *http.Client
	logger logger.Logger
}

func NewChatClient(cfg config.MessagingConfig, log logger.Logger) *ChatClient {
	return &ChatClient{
		cfg:    cfg,
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"component": "chat-client"}),
	}
}

type chatSendPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type chatSendResponse struct {
	MessageID string `json:"message_id"`
}

// SendText delivers one text message to a chat number and returns the provider
// message id.
func (c *ChatClient) SendText(ctx context.Context, to, text string) (string, error) {
	body, err := json.Marshal(chatSendPayload{To: to, Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	timeout := time.Duration(c.cfg.Chat.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.Chat.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Chat.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.NewProviderTimeoutError("chat")
		}
		return "", apperrors.NewProviderUnavailableError("chat", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Warn("chat provider rejected message", map[string]interface{}{
			"status": resp.StatusCode,
			"body":   string(raw),
		})
		return "", apperrors.NewProviderUnavailableError("chat",
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed chatSendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return parsed.MessageID, nil
}
