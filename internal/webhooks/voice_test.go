package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"recruitflow/internal/calls"
	"recruitflow/internal/common/config"
	"recruitflow/internal/common/database"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
	"recruitflow/internal/positions"
)

// ==========================
// Test Helper Functions
// ==========================

const testSecret = "wh-secret"

type stubEvaluator struct {
	evaluated []*models.Call
}

func (s *stubEvaluator) Evaluate(ctx context.Context, call *models.Call) (*models.Evaluation, error) {
	s.evaluated = append(s.evaluated, call)
	return &models.Evaluation{ID: 1, CallID: call.ID}, nil
}

func newVoiceHandler(t *testing.T, redis *database.RedisClient) (*VoiceHandler, sqlmock.Sqlmock, *stubEvaluator) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := &database.PostgresClient{DB: db}
	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	evaluator := &stubEvaluator{}
	handler := NewVoiceHandler(
		config.VoiceConfig{WebhookSecret: testSecret},
		redis,
		calls.NewCallStore(client, log),
		lifecycle.NewStore(client),
		positions.NewStore(client),
		lifecycle.NewMachine(client, log),
		evaluator,
		log,
	)
	return handler, mock, evaluator
}

func signedRequest(body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader(body))
	req.Header.Set("Elevenlabs-Signature", SignPayload(testSecret, body, time.Now()))
	return req
}

func callRows(id, applicationID int64, conversationID string) *sqlmock.Rows {
	now := time.Now().UTC().Add(-time.Minute)
	return sqlmock.NewRows([]string{
		"id", "application_id", "attempt_number", "conversation_id", "batch_id", "status",
		"transcript", "summary", "summary_title", "recording_url", "duration_seconds",
		"initiated_at", "ended_at",
	}).AddRow(id, applicationID, 1, conversationID, "", "initiated",
		nil, nil, nil, nil, nil, now, nil)
}

func appRows(id int64, status models.ApplicationStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "candidate_id", "position_id", "status", "qualified", "score",
		"score_notes", "cv_received_at", "callback_scheduled_at",
		"needs_human_reason", "created_at", "updated_at",
	}).AddRow(id, int64(3), int64(20), string(status), nil, nil, nil, nil, nil, nil, now, now)
}

func expectTransition(mock sqlmock.Sqlmock, appID int64, status models.ApplicationStatus) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(appID).
		WillReturnRows(appRows(appID, status))
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO status_changes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

const completedPayload = `{
	"type": "post_call_transcription",
	"data": {
		"conversation_id": "conv_1",
		"status": "done",
		"transcript": [{"role": "agent", "message": "Hello"}],
		"analysis": {"transcript_summary": "short call"},
		"conversation_initiation_client_data": {"user_id": "100"}
	}
}`

// ==========================
// Voice Handler Tests
// ==========================

func TestVoiceWebhook_RejectsInvalidSignature(t *testing.T) {
	handler, _, evaluator := newVoiceHandler(t, nil)

	body := []byte(completedPayload)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice", bytes.NewReader(body))
	req.Header.Set("Elevenlabs-Signature", "t=1,v0=deadbeef")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, evaluator.evaluated)
}

func TestVoiceWebhook_CompletedEventEvaluates(t *testing.T) {
	handler, mock, evaluator := newVoiceHandler(t, nil)

	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnRows(callRows(7, 100, "conv_1"))
	mock.ExpectExec("UPDATE call_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTransition(mock, 100, models.StatusCallInProgress)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest([]byte(completedPayload)))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, evaluator.evaluated, 1)
	assert.Equal(t, "Agent: Hello", evaluator.evaluated[0].Transcript)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoiceWebhook_LateBindsBatchAttempt(t *testing.T) {
	handler, mock, evaluator := newVoiceHandler(t, nil)

	// No attempt bound to the session id yet; the application id from the
	// client data finds the unbound attempt instead.
	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs(int64(100), "initiated").
		WillReturnRows(callRows(7, 100, ""))
	mock.ExpectExec("UPDATE call_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE call_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTransition(mock, 100, models.StatusCallInProgress)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest([]byte(completedPayload)))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, evaluator.evaluated, 1)
	assert.Equal(t, int64(7), evaluator.evaluated[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoiceWebhook_NoMatchingAttemptDropsWith200(t *testing.T) {
	handler, mock, evaluator := newVoiceHandler(t, nil)

	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs(int64(100), "initiated").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest([]byte(completedPayload)))

	assert.Equal(t, http.StatusOK, rec.Code, "a business no-match must not trigger provider redelivery")
	assert.Empty(t, evaluator.evaluated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoiceWebhook_DuplicateDeliveryDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := &database.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}

	handler, mock, evaluator := newVoiceHandler(t, redisClient)

	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnRows(callRows(7, 100, "conv_1"))
	mock.ExpectExec("UPDATE call_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTransition(mock, 100, models.StatusCallInProgress)

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, signedRequest([]byte(completedPayload)))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signedRequest([]byte(completedPayload)))
	assert.Equal(t, http.StatusOK, second.Code)

	assert.Len(t, evaluator.evaluated, 1, "the second delivery must not evaluate again")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoiceWebhook_FailedDeliveryAcceptsRedelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := &database.RedisClient{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}

	handler, mock, evaluator := newVoiceHandler(t, redisClient)

	// First delivery dies on the attempt lookup; the provider gets a 5xx.
	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnError(errors.New("connection refused"))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, signedRequest([]byte(completedPayload)))
	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Empty(t, evaluator.evaluated)

	// The redelivery must not be dropped as a duplicate of the failed one.
	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnRows(callRows(7, 100, "conv_1"))
	mock.ExpectExec("UPDATE call_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTransition(mock, 100, models.StatusCallInProgress)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, signedRequest([]byte(completedPayload)))
	assert.Equal(t, http.StatusOK, second.Code)
	require.Len(t, evaluator.evaluated, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVoiceWebhook_FlatPayloadAccepted(t *testing.T) {
	handler, mock, evaluator := newVoiceHandler(t, nil)

	body := []byte(`{"conversation_id": "conv_1", "status": "done",
		"transcript": [{"role": "user", "text": "Yes"}]}`)
	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnRows(callRows(7, 100, "conv_1"))
	mock.ExpectExec("UPDATE call_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectTransition(mock, 100, models.StatusCallInProgress)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, evaluator.evaluated, 1)
}

func TestVoiceWebhook_NoAnswerAppliesRetryBudget(t *testing.T) {
	handler, mock, evaluator := newVoiceHandler(t, nil)

	body := []byte(`{"conversation_id": "conv_1", "status": "no_answer",
		"conversation_initiation_client_data": {"user_id": "100"}}`)

	mock.ExpectQuery("SELECT (.+) FROM call_attempts").
		WithArgs("conv_1").
		WillReturnRows(callRows(7, 100, "conv_1"))
	mock.ExpectExec("UPDATE call_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WillReturnRows(appRows(100, models.StatusCallInProgress))
	mock.ExpectQuery("SELECT (.+) FROM positions").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "title", "description", "status", "campaign_questions",
			"system_prompt", "first_message", "qualification_prompt",
			"call_retry_max", "call_retry_interval_minutes",
			"calling_hour_start", "calling_hour_end",
			"follow_up_interval_hours", "rejected_cv_timeout_days",
			"created_at", "updated_at",
		}).AddRow(int64(20), "Store Manager", nil, "open", nil, nil, nil, "criteria",
			3, 60, 10, 18, 24, 7, time.Now().UTC(), time.Now().UTC()))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	expectTransition(mock, 100, models.StatusCallInProgress)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, evaluator.evaluated)
	assert.NoError(t, mock.ExpectationsWereMet())
}
