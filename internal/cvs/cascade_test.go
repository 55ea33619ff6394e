package cvs

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"recruitflow/internal/candidates"
	"recruitflow/internal/common/database"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type stubExtractor struct {
	response string
	err      error
	calls    int
}

func (s *stubExtractor) ExtractContact(ctx context.Context, text string) (string, error) {
	s.calls++
	return s.response, s.err
}

func newTestMatcher(t *testing.T, extractor ContactExtractor) (*Matcher, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := &database.PostgresClient{DB: db}
	log := logger.NewZapAdapter(zaptest.NewLogger(t))
	matcher := NewMatcher(
		candidates.NewStore(client),
		lifecycle.NewStore(client),
		lifecycle.NewMachine(client, log),
		NewStore(client),
		extractor,
		log,
	)
	return matcher, mock
}

func candidateRow(id int64, fullName, email string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "full_name", "phone", "email",
		"chat_number", "source", "lead_id", "form_answers", "notes",
		"created_at", "updated_at",
	}).AddRow(id, "", "", fullName, "+40721234567", email, nil, "lead_form", nil, nil, nil, now, now)
}

type appEntry struct {
	id          int64
	candidateID int64
	status      models.ApplicationStatus
}

func appRows(entries ...appEntry) *sqlmock.Rows {
	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "candidate_id", "position_id", "status", "qualified", "score",
		"score_notes", "cv_received_at", "callback_scheduled_at",
		"needs_human_reason", "created_at", "updated_at",
	})
	for _, e := range entries {
		rows.AddRow(e.id, e.candidateID, int64(20), string(e.status), nil, nil, nil, nil, nil, nil, now, now)
	}
	return rows
}

func expectAttachTransition(mock sqlmock.Sqlmock, app appEntry) {
	mock.ExpectQuery("INSERT INTO cv_uploads").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(app.id).
		WillReturnRows(appRows(app))
	mock.ExpectExec("UPDATE applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO status_changes").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

// ==========================
// Cascade Tests
// ==========================

func TestMatch_Tier1ExactEmailShortCircuits(t *testing.T) {
	extractor := &stubExtractor{}
	matcher, mock := newTestMatcher(t, extractor)

	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WithArgs("maria@example.com").
		WillReturnRows(candidateRow(3, "Maria Ionescu", "maria@example.com"))
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(int64(3), "awaiting_cv", "cv_followup_1", "cv_followup_2", "cv_overdue", "awaiting_cv_rejected").
		WillReturnRows(appRows(appEntry{100, 3, models.StatusAwaitingCV}))
	expectAttachTransition(mock, appEntry{100, 3, models.StatusAwaitingCV})

	result, err := matcher.Match(context.Background(), &Inbound{
		Channel:        "email",
		SenderEmail:    "maria@example.com",
		SenderName:     "Completely Different Name",
		AttachmentName: "cv.pdf",
		AttachmentText: "some cv text",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched())
	assert.Equal(t, models.MatchExactEmail, result.Method)
	assert.False(t, result.NeedsReview)
	assert.Equal(t, 0, extractor.calls, "an exact-email hit must never reach the content tier")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch_MultiInstanceAttachment(t *testing.T) {
	matcher, mock := newTestMatcher(t, nil)

	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WithArgs("maria@example.com").
		WillReturnRows(candidateRow(3, "Maria Ionescu", "maria@example.com"))
	// Role A awaiting on the qualified track, Role B on the rejected track.
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WillReturnRows(appRows(
			appEntry{100, 3, models.StatusAwaitingCV},
			appEntry{101, 3, models.StatusAwaitingCVRejected},
		))
	expectAttachTransition(mock, appEntry{100, 3, models.StatusAwaitingCV})
	expectAttachTransition(mock, appEntry{101, 3, models.StatusAwaitingCVRejected})

	result, err := matcher.Match(context.Background(), &Inbound{
		Channel:     "email",
		SenderEmail: "maria@example.com",
	})
	require.NoError(t, err)
	require.Len(t, result.Applications, 2)
	assert.Equal(t, models.StatusCVReceived, result.Applications[0].Status)
	assert.Equal(t, models.StatusCVReceivedRejected, result.Applications[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch_CandidateWithoutAwaitingAppsFallsThrough(t *testing.T) {
	matcher, mock := newTestMatcher(t, nil)

	// Tier 1 resolves a candidate who holds nothing awaiting.
	mock.ExpectQuery("SELECT (.+) FROM candidates").
		WithArgs("maria@example.com").
		WillReturnRows(candidateRow(3, "Maria Ionescu", "maria@example.com"))
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WillReturnRows(appRows())
	// The pool for the later tiers is empty too.
	mock.ExpectQuery("SELECT DISTINCT (.+) FROM candidates").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO unmatched_inbound").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))

	result, err := matcher.Match(context.Background(), &Inbound{
		Channel:     "email",
		SenderEmail: "maria@example.com",
	})
	require.NoError(t, err)
	assert.False(t, result.Matched())
	require.NotNil(t, result.Unmatched)
	assert.Equal(t, "maria@example.com", result.Unmatched.Sender)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch_FuzzyNameTierSetsNeedsReview(t *testing.T) {
	matcher, mock := newTestMatcher(t, nil)

	// No contact fields and no token on the item; straight to the pool.
	mock.ExpectQuery("SELECT DISTINCT (.+) FROM candidates").
		WillReturnRows(candidateRow(3, "Maria Ionescu", "maria@example.com"))
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WillReturnRows(appRows(appEntry{100, 3, models.StatusCVFollowup1}))
	expectAttachTransition(mock, appEntry{100, 3, models.StatusCVFollowup1})

	result, err := matcher.Match(context.Background(), &Inbound{
		Channel:    "chat",
		SenderName: "Ionescu Maria",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched())
	assert.Equal(t, models.MatchFuzzyName, result.Method)
	assert.True(t, result.NeedsReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch_ReferenceTokenAttachesSingleApplication(t *testing.T) {
	matcher, mock := newTestMatcher(t, nil)

	mock.ExpectQuery("SELECT (.+) FROM applications").
		WithArgs(int64(100)).
		WillReturnRows(appRows(appEntry{100, 3, models.StatusAwaitingCV}))
	expectAttachTransition(mock, appEntry{100, 3, models.StatusAwaitingCV})

	result, err := matcher.Match(context.Background(), &Inbound{
		Channel: "email",
		Subject: "CV for application #100",
	})
	require.NoError(t, err)
	require.Len(t, result.Applications, 1)
	assert.Equal(t, models.MatchSubjectID, result.Method)
	assert.False(t, result.NeedsReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatch_ContentTierExtractsContact(t *testing.T) {
	extractor := &stubExtractor{response: "```json\n{\"full_name\": \"Maria Ionescu\", \"email\": \"maria@example.com\", \"phone\": \"\"}\n```"}
	matcher, mock := newTestMatcher(t, extractor)

	// The sender display name is useless; the document content is not.
	mock.ExpectQuery("SELECT DISTINCT (.+) FROM candidates").
		WillReturnRows(candidateRow(3, "Maria Ionescu", "maria@example.com"))
	mock.ExpectQuery("SELECT (.+) FROM applications").
		WillReturnRows(appRows(appEntry{100, 3, models.StatusAwaitingCV}))
	expectAttachTransition(mock, appEntry{100, 3, models.StatusAwaitingCV})

	result, err := matcher.Match(context.Background(), &Inbound{
		Channel:        "email",
		SenderName:     "jobs inbox",
		AttachmentName: "cv.pdf",
		AttachmentText: "Maria Ionescu\nmaria@example.com\nExperienced retail manager",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched())
	assert.Equal(t, models.MatchCVContent, result.Method)
	assert.True(t, result.NeedsReview)
	assert.Equal(t, 1, extractor.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBestFuzzyMatch_TieDisqualifies(t *testing.T) {
	pool := []*models.Candidate{
		{ID: 1, FullName: "Maria Ionescu"},
		{ID: 2, FullName: "Maria Ionescu"},
	}
	assert.Nil(t, bestFuzzyMatch("Maria Ionescu", pool))
}

func TestBestFuzzyMatch_BelowThreshold(t *testing.T) {
	pool := []*models.Candidate{{ID: 1, FullName: "John Smith"}}
	assert.Nil(t, bestFuzzyMatch("Maria Ionescu", pool))
}

func TestSnippet_TruncatesOnRuneBoundary(t *testing.T) {
	caption := strings.Repeat("ă", 300) // two bytes per rune

	out := snippet(caption, 499)
	assert.True(t, utf8.ValidString(out))
	assert.Len(t, out, 498)

	assert.Equal(t, caption, snippet(caption, 600))
}
