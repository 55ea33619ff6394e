package evaluations

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/models"
)

// Store owns the evaluations table. One row per call attempt, enforced by a
// unique constraint on call_id in addition to the engine's locked re-check.
type Store struct {
	db *database.PostgresClient
}

func NewStore(db *database.PostgresClient) *Store {
	return &Store{db: db}
}

const evaluationColumns = `id, application_id, call_id, outcome, qualified, score, reasoning,
	callback_requested, callback_notes, callback_at,
	needs_human, needs_human_notes, raw_response, evaluated_at`

// GetByCallID is the unlocked fast-path read. Not relied on for correctness;
// the locked re-check inside the commit transaction is authoritative.
func (s *Store) GetByCallID(ctx context.Context, callID int64) (*models.Evaluation, error) {
	return s.getByCallID(ctx, s.db.QueryRow, callID)
}

// GetByCallIDTx re-checks inside the caller's transaction, after the call row
// lock is held.
func (s *Store) GetByCallIDTx(ctx context.Context, tx *sql.Tx, callID int64) (*models.Evaluation, error) {
	return s.getByCallID(ctx, tx.QueryRowContext, callID)
}

type queryRowFn func(ctx context.Context, query string, args ...interface{}) *sql.Row

func (s *Store) getByCallID(ctx context.Context, queryRow queryRowFn, callID int64) (*models.Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations WHERE call_id = $1`
	eval, err := scanEvaluation(queryRow(ctx, query, callID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewQueryExecutionFailedError("get evaluation", err)
	}
	return eval, nil
}

// InsertTx writes the evaluation inside the commit transaction. A unique
// violation here means a concurrent writer won a race the lock should have
// prevented; it maps to the duplicate sentinel so the caller re-reads.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, eval *models.Evaluation) error {
	eval.EvaluatedAt = time.Now().UTC()
	err := tx.QueryRowContext(ctx, `
		INSERT INTO evaluations (application_id, call_id, outcome, qualified, score, reasoning,
			callback_requested, callback_notes, callback_at,
			needs_human, needs_human_notes, raw_response, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		eval.ApplicationID, eval.CallID, string(eval.Outcome), eval.Qualified, eval.Score,
		eval.Reasoning, eval.CallbackRequested, eval.CallbackNotes, eval.CallbackAt,
		eval.NeedsHuman, eval.NeedsHumanNotes, eval.RawResponse, eval.EvaluatedAt,
	).Scan(&eval.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return apperrors.ErrDuplicateEvaluation
		}
		return apperrors.NewQueryExecutionFailedError("insert evaluation", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvaluation(row rowScanner) (*models.Evaluation, error) {
	var e models.Evaluation
	var (
		reasoning, cbNotes, nhNotes sql.NullString
		callbackAt                  sql.NullTime
		raw                         []byte
	)
	err := row.Scan(
		&e.ID, &e.ApplicationID, &e.CallID, &e.Outcome, &e.Qualified, &e.Score,
		&reasoning, &e.CallbackRequested, &cbNotes, &callbackAt,
		&e.NeedsHuman, &nhNotes, &raw, &e.EvaluatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Reasoning = reasoning.String
	e.CallbackNotes = cbNotes.String
	e.NeedsHumanNotes = nhNotes.String
	if callbackAt.Valid {
		t := callbackAt.Time
		e.CallbackAt = &t
	}
	e.RawResponse = raw
	return &e, nil
}
