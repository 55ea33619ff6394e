// Package lifecycle owns the application state machine. Every status write in
// the system funnels through ApplyTransition; the applications table has no
// other writer for the status column or the side fields it carries.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/metrics"
	"recruitflow/internal/models"
)

// Payload carries the side-field updates that land together with a status
// change. Nil fields are left untouched.
type Payload struct {
	Actor string
	Note  string

	Qualified        *bool
	Score            *int
	ScoreNotes       *string
	CallbackAt       *time.Time
	CVReceivedAt     *time.Time
	NeedsHumanReason *string
}

type Machine struct {
	db     *database.PostgresClient
	logger logger.Logger
}

func NewMachine(db *database.PostgresClient, log logger.Logger) *Machine {
	return &Machine{db: db, logger: log}
}

const selectForUpdateQuery = `
	SELECT id, candidate_id, position_id, status, qualified, score, score_notes,
	       cv_received_at, callback_scheduled_at, needs_human_reason,
	       created_at, updated_at
	FROM applications
	WHERE id = $1
	FOR UPDATE`

const updateApplicationQuery = `
	UPDATE applications
	SET status = $2,
	    qualified = COALESCE($3, qualified),
	    score = COALESCE($4, score),
	    score_notes = COALESCE($5, score_notes),
	    callback_scheduled_at = COALESCE($6, callback_scheduled_at),
	    cv_received_at = COALESCE($7, cv_received_at),
	    needs_human_reason = COALESCE($8, needs_human_reason),
	    updated_at = $9
	WHERE id = $1`

const insertStatusChangeQuery = `
	INSERT INTO status_changes (application_id, from_status, to_status, actor, note, changed_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

// ApplyTransition runs ApplyTransitionTx in its own transaction.
func (m *Machine) ApplyTransition(ctx context.Context, applicationID int64, event Event, p Payload) (*models.Application, error) {
	var app *models.Application
	err := m.db.WithinTx(ctx, func(tx *sql.Tx) error {
		var txErr error
		app, txErr = m.ApplyTransitionTx(ctx, tx, applicationID, event, p)
		return txErr
	})
	return app, err
}

// ApplyTransitionTx applies one lifecycle event inside the caller's
// transaction: row lock, table check, status + side-field update, one audit
// row. Callers that need the transition atomic with their own writes (the
// evaluation commit, the matching cascade) pass their transaction in.
func (m *Machine) ApplyTransitionTx(ctx context.Context, tx *sql.Tx, applicationID int64, event Event, p Payload) (*models.Application, error) {
	app, err := scanApplication(tx.QueryRowContext(ctx, selectForUpdateQuery, applicationID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("application %d not found", applicationID)
		}
		return nil, apperrors.NewQueryExecutionFailedError("lock application", err)
	}

	next, ok := Next(app.Status, event)
	if !ok {
		metrics.InvalidTransitions.WithLabelValues(string(event)).Inc()
		m.logger.Warn("transition rejected", map[string]interface{}{
			"application_id": applicationID,
			"status":         string(app.Status),
			"event":          string(event),
		})
		return nil, fmt.Errorf("%w: event %q not allowed from status %q",
			apperrors.ErrInvalidTransition, event, app.Status)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, updateApplicationQuery,
		applicationID, string(next),
		p.Qualified, p.Score, p.ScoreNotes,
		p.CallbackAt, p.CVReceivedAt, p.NeedsHumanReason,
		now,
	); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("update application", err)
	}

	if _, err := tx.ExecContext(ctx, insertStatusChangeQuery,
		applicationID, string(app.Status), string(next), p.Actor, p.Note, now,
	); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("insert status change", err)
	}

	metrics.TransitionsApplied.WithLabelValues(string(event)).Inc()
	m.logger.Info("transition applied", map[string]interface{}{
		"application_id": applicationID,
		"from":           string(app.Status),
		"to":             string(next),
		"event":          string(event),
		"actor":          p.Actor,
	})

	app.Status = next
	app.UpdatedAt = now
	if p.Qualified != nil {
		app.Qualified = p.Qualified
	}
	if p.Score != nil {
		app.Score = p.Score
	}
	if p.ScoreNotes != nil {
		app.ScoreNotes = *p.ScoreNotes
	}
	if p.CallbackAt != nil {
		app.CallbackScheduledAt = p.CallbackAt
	}
	if p.CVReceivedAt != nil {
		app.CVReceivedAt = p.CVReceivedAt
	}
	if p.NeedsHumanReason != nil {
		app.NeedsHumanReason = *p.NeedsHumanReason
	}

	return app, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var app models.Application
	var (
		qualified  sql.NullBool
		score      sql.NullInt64
		scoreNotes sql.NullString
		cvAt       sql.NullTime
		callbackAt sql.NullTime
		humanWhy   sql.NullString
	)
	err := row.Scan(
		&app.ID, &app.CandidateID, &app.PositionID, &app.Status,
		&qualified, &score, &scoreNotes, &cvAt, &callbackAt, &humanWhy,
		&app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if qualified.Valid {
		app.Qualified = &qualified.Bool
	}
	if score.Valid {
		v := int(score.Int64)
		app.Score = &v
	}
	app.ScoreNotes = scoreNotes.String
	if cvAt.Valid {
		t := cvAt.Time
		app.CVReceivedAt = &t
	}
	if callbackAt.Valid {
		t := callbackAt.Time
		app.CallbackScheduledAt = &t
	}
	app.NeedsHumanReason = humanWhy.String
	return &app, nil
}
