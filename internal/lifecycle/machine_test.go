package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestMachine(t *testing.T) (*Machine, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := &database.PostgresClient{DB: db}
	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	return NewMachine(client, log), mock
}

func applicationRows(id int64, status models.ApplicationStatus) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "candidate_id", "position_id", "status", "qualified", "score",
		"score_notes", "cv_received_at", "callback_scheduled_at",
		"needs_human_reason", "created_at", "updated_at",
	}).AddRow(id, int64(10), int64(20), string(status), nil, nil, nil, nil, nil, nil, now, now)
}

// ==========================
// Transition Table Tests
// ==========================

func TestNext_HappyPath(t *testing.T) {
	tests := []struct {
		name  string
		from  models.ApplicationStatus
		event Event
		want  models.ApplicationStatus
	}{
		{"queue from pending", models.StatusPendingCall, EventQueueForCall, models.StatusCallQueued},
		{"submit queued call", models.StatusCallQueued, EventCallSubmitted, models.StatusCallInProgress},
		{"complete call", models.StatusCallInProgress, EventCallCompleted, models.StatusCallCompleted},
		{"retry no-answer", models.StatusCallInProgress, EventCallRetry, models.StatusCallQueued},
		{"exhaust retries", models.StatusCallInProgress, EventCallFailed, models.StatusCallFailed},
		{"start scoring", models.StatusCallCompleted, EventScoringStarted, models.StatusScoring},
		{"verdict qualified", models.StatusScoring, EventVerdictQualified, models.StatusQualified},
		{"verdict not qualified", models.StatusScoring, EventVerdictNotQualified, models.StatusNotQualified},
		{"verdict callback", models.StatusScoring, EventVerdictCallback, models.StatusCallbackScheduled},
		{"verdict needs human", models.StatusScoring, EventVerdictNeedsHuman, models.StatusNeedsHuman},
		{"request cv qualified track", models.StatusQualified, EventDocumentRequested, models.StatusAwaitingCV},
		{"request cv rejected track", models.StatusNotQualified, EventDocumentRequested, models.StatusAwaitingCVRejected},
		{"callback due", models.StatusCallbackScheduled, EventCallbackDue, models.StatusCallQueued},
		{"first follow-up", models.StatusAwaitingCV, EventFollowUpSent, models.StatusCVFollowup1},
		{"second follow-up", models.StatusCVFollowup1, EventFollowUpSent, models.StatusCVFollowup2},
		{"follow-ups exhausted", models.StatusCVFollowup2, EventFollowUpExpired, models.StatusCVOverdue},
		{"cv received while awaiting", models.StatusAwaitingCV, EventDocumentReceived, models.StatusCVReceived},
		{"cv received after follow-up", models.StatusCVFollowup2, EventDocumentReceived, models.StatusCVReceived},
		{"cv received overdue", models.StatusCVOverdue, EventDocumentReceived, models.StatusCVReceived},
		{"cv received rejected track", models.StatusAwaitingCVRejected, EventDocumentReceived, models.StatusCVReceivedRejected},
		{"close overdue", models.StatusCVOverdue, EventClosed, models.StatusClosed},
		{"close rejected", models.StatusAwaitingCVRejected, EventClosed, models.StatusClosed},
		{"re-queue failed call", models.StatusCallFailed, EventQueueForCall, models.StatusCallQueued},
		{"re-queue needs human", models.StatusNeedsHuman, EventQueueForCall, models.StatusCallQueued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Next(tt.from, tt.event)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		from  models.ApplicationStatus
		event Event
	}{
		{"verdict before scoring", models.StatusPendingCall, EventVerdictQualified},
		{"re-score outside scoring", models.StatusQualified, EventVerdictQualified},
		{"complete without submission", models.StatusCallQueued, EventCallCompleted},
		{"follow-up on rejected track", models.StatusAwaitingCVRejected, EventFollowUpSent},
		{"third follow-up", models.StatusCVFollowup2, EventFollowUpSent},
		{"close already closed", models.StatusClosed, EventClosed},
		{"queue closed", models.StatusClosed, EventQueueForCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Next(tt.from, tt.event)
			assert.False(t, ok)
		})
	}
}

func TestNext_ClosedFromAnywhere(t *testing.T) {
	all := []models.ApplicationStatus{
		models.StatusPendingCall, models.StatusCallQueued, models.StatusCallInProgress,
		models.StatusCallCompleted, models.StatusCallFailed, models.StatusScoring,
		models.StatusQualified, models.StatusAwaitingCV, models.StatusCVFollowup1,
		models.StatusCVFollowup2, models.StatusCVOverdue, models.StatusCVReceived,
		models.StatusNotQualified, models.StatusAwaitingCVRejected,
		models.StatusCVReceivedRejected, models.StatusCallbackScheduled,
		models.StatusNeedsHuman,
	}
	for _, from := range all {
		next, ok := Next(from, EventClosed)
		assert.True(t, ok, "close from %s", from)
		assert.Equal(t, models.StatusClosed, next)
	}
}

// ==========================
// ApplyTransition Tests
// ==========================

func TestApplyTransition_Success(t *testing.T) {
	machine, mock := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(int64(1)).
		WillReturnRows(applicationRows(1, models.StatusPendingCall))
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO status_changes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app, err := machine.ApplyTransition(context.Background(), 1, EventQueueForCall, Payload{
		Actor: "operator",
		Note:  "bulk queue",
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusCallQueued, app.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransition_InvalidTransitionRollsBack(t *testing.T) {
	machine, mock := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(int64(1)).
		WillReturnRows(applicationRows(1, models.StatusPendingCall))
	mock.ExpectRollback()

	_, err := machine.ApplyTransition(context.Background(), 1, EventVerdictQualified, Payload{Actor: "system"})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransition_SideFieldsPersisted(t *testing.T) {
	machine, mock := newTestMachine(t)

	score := 85
	qualified := true
	notes := "strong availability and experience"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(int64(7)).
		WillReturnRows(applicationRows(7, models.StatusScoring))
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO status_changes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	app, err := machine.ApplyTransition(context.Background(), 7, EventVerdictQualified, Payload{
		Actor:      "evaluation-engine",
		Qualified:  &qualified,
		Score:      &score,
		ScoreNotes: &notes,
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusQualified, app.Status)
	require.NotNil(t, app.Score)
	assert.Equal(t, 85, *app.Score)
	require.NotNil(t, app.Qualified)
	assert.True(t, *app.Qualified)
	assert.Equal(t, notes, app.ScoreNotes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransition_ApplicationNotFound(t *testing.T) {
	machine, mock := newTestMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "candidate_id", "position_id", "status", "qualified", "score",
			"score_notes", "cv_received_at", "callback_scheduled_at",
			"needs_human_reason", "created_at", "updated_at",
		}))
	mock.ExpectRollback()

	_, err := machine.ApplyTransition(context.Background(), 99, EventQueueForCall, Payload{Actor: "operator"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
