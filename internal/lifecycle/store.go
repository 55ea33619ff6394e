package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/models"
)

// Store reads application rows. All queries re-derive their working set from
// the database on every call; jobs hold no cross-tick state.
type Store struct {
	db *database.PostgresClient
}

func NewStore(db *database.PostgresClient) *Store {
	return &Store{db: db}
}

const applicationColumns = `a.id, a.candidate_id, a.position_id, a.status, a.qualified, a.score,
	a.score_notes, a.cv_received_at, a.callback_scheduled_at, a.needs_human_reason,
	a.created_at, a.updated_at`

// Get loads one application without locking.
func (s *Store) Get(ctx context.Context, id int64) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications a WHERE a.id = $1`, applicationColumns)
	app, err := scanApplication(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("application %d not found", id)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get application", err)
	}
	return app, nil
}

// ListQueuedForOpenPositions returns call_queued applications whose position
// is still open. The calling-hours filter happens in the dispatcher, per
// position, against the tick's local time.
func (s *Store) ListQueuedForOpenPositions(ctx context.Context) ([]*models.Application, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM applications a
		JOIN positions p ON p.id = a.position_id
		WHERE a.status = $1 AND p.status = $2
		ORDER BY a.updated_at ASC`, applicationColumns)
	return s.list(ctx, "list queued", query, string(models.StatusCallQueued), string(models.PositionOpen))
}

// ListDueCallbacks returns callback_scheduled applications whose callback
// time has passed.
func (s *Store) ListDueCallbacks(ctx context.Context, now time.Time) ([]*models.Application, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM applications a
		JOIN positions p ON p.id = a.position_id
		WHERE a.status = $1 AND p.status = $2
		  AND a.callback_scheduled_at IS NOT NULL
		  AND a.callback_scheduled_at <= $3
		ORDER BY a.callback_scheduled_at ASC`, applicationColumns)
	return s.list(ctx, "list due callbacks", query,
		string(models.StatusCallbackScheduled), string(models.PositionOpen), now)
}

// ListFollowUpDue returns qualified-track applications whose most recent
// outbound message is older than the position's follow-up interval. The
// rejected track never appears here.
func (s *Store) ListFollowUpDue(ctx context.Context, now time.Time) ([]*models.Application, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM applications a
		JOIN positions p ON p.id = a.position_id
		WHERE a.status IN ($1, $2, $3)
		  AND COALESCE(
		        (SELECT MAX(m.sent_at) FROM outbound_messages m WHERE m.application_id = a.id),
		        a.updated_at
		      ) <= $4 - (p.follow_up_interval_hours * INTERVAL '1 hour')
		ORDER BY a.updated_at ASC`, applicationColumns)
	return s.list(ctx, "list follow-up due", query,
		string(models.StatusAwaitingCV), string(models.StatusCVFollowup1),
		string(models.StatusCVFollowup2), now)
}

// ListStrandedVerdicts returns applications still resting on a verdict status
// past the grace window: the post-verdict document request never completed,
// and nothing else re-derives those states.
func (s *Store) ListStrandedVerdicts(ctx context.Context, olderThan time.Time) ([]*models.Application, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM applications a
		WHERE a.status IN ($1, $2)
		  AND a.updated_at <= $3
		ORDER BY a.updated_at ASC`, applicationColumns)
	return s.list(ctx, "list stranded verdicts", query,
		string(models.StatusQualified), string(models.StatusNotQualified), olderThan)
}

// ListStaleRejected returns awaiting_cv_rejected applications past the
// position's rejected timeout, due for a silent close.
func (s *Store) ListStaleRejected(ctx context.Context, now time.Time) ([]*models.Application, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM applications a
		JOIN positions p ON p.id = a.position_id
		WHERE a.status = $1
		  AND a.updated_at <= $2 - (p.rejected_cv_timeout_days * INTERVAL '1 day')
		ORDER BY a.updated_at ASC`, applicationColumns)
	return s.list(ctx, "list stale rejected", query,
		string(models.StatusAwaitingCVRejected), now)
}

// ListAwaitingByCandidate returns the candidate's applications currently in
// any awaiting-document state. Feeds the multi-instance attachment rule.
func (s *Store) ListAwaitingByCandidate(ctx context.Context, candidateID int64) ([]*models.Application, error) {
	placeholders := make([]string, len(models.AwaitingCVStatuses))
	args := make([]interface{}, 0, len(models.AwaitingCVStatuses)+1)
	args = append(args, candidateID)
	for i, st := range models.AwaitingCVStatuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, string(st))
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM applications a
		WHERE a.candidate_id = $1 AND a.status IN (%s)
		ORDER BY a.id ASC`, applicationColumns, strings.Join(placeholders, ", "))
	return s.list(ctx, "list awaiting by candidate", query, args...)
}

func (s *Store) list(ctx context.Context, op, query string, args ...interface{}) ([]*models.Application, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(op, err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError(op, err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError(op, err)
	}
	return apps, nil
}
