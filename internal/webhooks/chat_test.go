package webhooks

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"recruitflow/internal/candidates"
	"recruitflow/internal/common/config"
	"recruitflow/internal/common/database"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/cvs"
	"recruitflow/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type stubMatcher struct {
	inbounds []*cvs.Inbound
	result   *cvs.MatchResult
}

func (s *stubMatcher) Match(ctx context.Context, in *cvs.Inbound) (*cvs.MatchResult, error) {
	s.inbounds = append(s.inbounds, in)
	if s.result != nil {
		return s.result, nil
	}
	return &cvs.MatchResult{}, nil
}

type stubReplies struct {
	replies []*models.InboundReply
}

func (s *stubReplies) InsertReply(ctx context.Context, reply *models.InboundReply) error {
	s.replies = append(s.replies, reply)
	return nil
}

func newChatHandler(t *testing.T) (*ChatHandler, sqlmock.Sqlmock, *stubMatcher, *stubReplies) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.MessagingConfig{}
	cfg.Chat.WebhookSecret = "chat-secret"

	matcher := &stubMatcher{}
	replies := &stubReplies{}
	handler := NewChatHandler(
		cfg,
		config.StorageConfig{CVDir: t.TempDir()},
		matcher,
		replies,
		candidates.NewStore(&database.PostgresClient{DB: db}),
		logger.NewZapAdapter(zaptest.NewLogger(t)),
	)
	return handler, mock, matcher, replies
}

func chatRequest(t *testing.T, event map[string]interface{}) *http.Request {
	body, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer chat-secret")
	return req
}

// ==========================
// Chat Handler Tests
// ==========================

func TestChatWebhook_RejectsBadToken(t *testing.T) {
	handler, _, matcher, _ := newChatHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/chat", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Authorization", "Bearer wrong")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, matcher.inbounds)
}

func TestChatWebhook_TextOnlyStoresReply(t *testing.T) {
	handler, mock, matcher, replies := newChatHandler(t)

	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, chatRequest(t, map[string]interface{}{
		"from": "+40721234567",
		"text": "I will send my CV tomorrow",
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, matcher.inbounds)
	require.Len(t, replies.replies, 1)
	assert.Equal(t, "+40721234567", replies.replies[0].Sender)
	assert.Equal(t, "I will send my CV tomorrow", replies.replies[0].Body)
}

func TestChatWebhook_MediaRunsCascade(t *testing.T) {
	handler, _, matcher, replies := newChatHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, chatRequest(t, map[string]interface{}{
		"from":        "+40721234567",
		"sender_name": "Maria Ionescu",
		"media": map[string]string{
			"file_name": "cv.pdf",
			"content":   base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 test")),
		},
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, matcher.inbounds, 1)
	in := matcher.inbounds[0]
	assert.Equal(t, "chat", in.Channel)
	assert.Equal(t, "+40721234567", in.SenderPhone)
	assert.Equal(t, "cv.pdf", in.AttachmentName)
	assert.Empty(t, replies.replies)

	// The attachment landed on disk with the original extension preserved.
	data, err := os.ReadFile(in.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(data))
	assert.Equal(t, ".pdf", filepath.Ext(in.FilePath))
}

func TestChatWebhook_CaptionWithMediaDoesBoth(t *testing.T) {
	handler, mock, matcher, replies := newChatHandler(t)

	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, chatRequest(t, map[string]interface{}{
		"from": "+40721234567",
		"text": "here is my CV",
		"media": map[string]string{
			"file_name": "cv.pdf",
			"content":   base64.StdEncoding.EncodeToString([]byte("pdf")),
		},
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, matcher.inbounds, 1)
	assert.Equal(t, "here is my CV", matcher.inbounds[0].Caption)
	require.Len(t, replies.replies, 1)
}

func TestChatWebhook_MissingSenderRejected(t *testing.T) {
	handler, _, _, _ := newChatHandler(t)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, chatRequest(t, map[string]interface{}{"text": "hi"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
