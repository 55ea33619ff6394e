package calls

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/models"
)

// Store owns the call_attempts table.
type Store struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewCallStore(db *database.PostgresClient, log logger.Logger) *Store {
	return &Store{db: db, logger: log}
}

const callColumns = `id, application_id, attempt_number, conversation_id, batch_id, status,
	transcript, summary, summary_title, recording_url, duration_seconds,
	initiated_at, ended_at`

// CreateAttempt inserts the next numbered attempt for an application. For
// batch submissions conversationID is empty and bound later by the webhook.
func (s *Store) CreateAttempt(ctx context.Context, applicationID int64, conversationID, batchID string) (*models.Call, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO call_attempts (application_id, attempt_number, conversation_id, batch_id, status, initiated_at)
		VALUES ($1,
		        (SELECT COALESCE(MAX(attempt_number), 0) + 1 FROM call_attempts WHERE application_id = $1),
		        $2, $3, $4, $5)
		RETURNING id, attempt_number`

	call := &models.Call{
		ApplicationID:  applicationID,
		ConversationID: conversationID,
		BatchID:        batchID,
		Status:         models.CallInitiated,
		InitiatedAt:    now,
	}
	err := s.db.QueryRow(ctx, query,
		applicationID, conversationID, batchID, string(models.CallInitiated), now,
	).Scan(&call.ID, &call.AttemptNumber)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("create call attempt", err)
	}
	return call, nil
}

// BindConversation attaches a provider call-session id to the application's
// most recent unbound attempt in initiated status. Completion events for
// batched calls carry only the application id, so this is how they find
// their attempt row.
//
// Returns nil, nil when no unbound attempt exists — duplicate delivery or an
// already-bound attempt; the caller logs and drops the event rather than
// creating a phantom attempt.
func (s *Store) BindConversation(ctx context.Context, applicationID int64, conversationID string) (*models.Call, error) {
	var call *models.Call
	err := s.db.WithinTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s FROM call_attempts
			WHERE application_id = $1 AND status = $2 AND conversation_id = ''
			ORDER BY attempt_number DESC
			FOR UPDATE`, callColumns),
			applicationID, string(models.CallInitiated))
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("find unbound attempt", err)
		}
		defer rows.Close()

		var candidates []*models.Call
		for rows.Next() {
			c, err := scanCall(rows)
			if err != nil {
				return apperrors.NewQueryExecutionFailedError("find unbound attempt", err)
			}
			candidates = append(candidates, c)
		}
		if err := rows.Err(); err != nil {
			return apperrors.NewQueryExecutionFailedError("find unbound attempt", err)
		}

		if len(candidates) == 0 {
			return nil
		}
		if len(candidates) > 1 {
			s.logger.Warn("multiple unbound attempts for application, binding most recent", map[string]interface{}{
				"application_id": applicationID,
				"count":          len(candidates),
			})
		}

		chosen := candidates[0]
		if _, err := tx.ExecContext(ctx,
			`UPDATE call_attempts SET conversation_id = $2 WHERE id = $1`,
			chosen.ID, conversationID,
		); err != nil {
			return apperrors.NewQueryExecutionFailedError("bind conversation", err)
		}
		chosen.ConversationID = conversationID
		call = chosen
		return nil
	})
	if err != nil {
		return nil, err
	}
	return call, nil
}

// GetByConversationID finds the attempt bound to a provider session id.
func (s *Store) GetByConversationID(ctx context.Context, conversationID string) (*models.Call, error) {
	query := fmt.Sprintf(`SELECT %s FROM call_attempts WHERE conversation_id = $1`, callColumns)
	call, err := scanCall(s.db.QueryRow(ctx, query, conversationID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewQueryExecutionFailedError("get call by conversation", err)
	}
	return call, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*models.Call, error) {
	query := fmt.Sprintf(`SELECT %s FROM call_attempts WHERE id = $1`, callColumns)
	call, err := scanCall(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("call attempt %d not found", id)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get call", err)
	}
	return call, nil
}

// UpdateResult stores the terminal provider result on an attempt.
func (s *Store) UpdateResult(ctx context.Context, callID int64, status models.CallStatus, result *StatusResult) error {
	now := time.Now().UTC()
	transcript := ""
	summary, title, recording := "", "", ""
	duration := 0
	if result != nil {
		transcript = FormatTranscript(result.Transcript)
		summary = result.Summary
		title = result.SummaryTitle
		recording = result.RecordingURL
		duration = result.DurationSeconds
	}

	_, err := s.db.Exec(ctx, `
		UPDATE call_attempts
		SET status = $2, transcript = $3, summary = $4, summary_title = $5,
		    recording_url = $6, duration_seconds = $7, ended_at = $8
		WHERE id = $1`,
		callID, string(status), transcript, summary, title, recording, duration, now,
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("update call result", err)
	}
	return nil
}

// MarkInProgress flips an attempt out of initiated when the provider reports
// the call ringing or answered.
func (s *Store) MarkInProgress(ctx context.Context, callID int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE call_attempts SET status = $2 WHERE id = $1`,
		callID, string(models.CallStatusProgress),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("mark call in progress", err)
	}
	return nil
}

// ListStuck returns bound attempts still initiated/in_progress older than the
// threshold. These get polled directly as the webhook fallback.
func (s *Store) ListStuck(ctx context.Context, olderThan time.Time) ([]*models.Call, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM call_attempts
		WHERE status IN ($1, $2)
		  AND conversation_id <> ''
		  AND initiated_at <= $3
		ORDER BY initiated_at ASC`, callColumns)

	rows, err := s.db.Query(ctx, query,
		string(models.CallInitiated), string(models.CallStatusProgress), olderThan)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list stuck calls", err)
	}
	defer rows.Close()

	var out []*models.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list stuck calls", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list stuck calls", err)
	}
	return out, nil
}

// CountAttempts returns how many attempts exist for an application; the
// retry budget check compares this against the position's maximum.
func (s *Store) CountAttempts(ctx context.Context, applicationID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM call_attempts WHERE application_id = $1`,
		applicationID,
	).Scan(&n)
	if err != nil {
		return 0, apperrors.NewQueryExecutionFailedError("count call attempts", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCall(row rowScanner) (*models.Call, error) {
	var c models.Call
	var (
		conv, batch, transcript, summary, title, recording sql.NullString
		duration                                           sql.NullInt64
		endedAt                                            sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.ApplicationID, &c.AttemptNumber, &conv, &batch, &c.Status,
		&transcript, &summary, &title, &recording, &duration,
		&c.InitiatedAt, &endedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ConversationID = conv.String
	c.BatchID = batch.String
	c.Transcript = transcript.String
	c.Summary = summary.String
	c.SummaryTitle = title.String
	c.RecordingURL = recording.String
	c.DurationSeconds = int(duration.Int64)
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return &c, nil
}
