// Package positions stores the roles being screened for.
package positions

import (
	"context"
	"database/sql"
	"fmt"

	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/models"
)

type Store struct {
	db *database.PostgresClient
}

func NewStore(db *database.PostgresClient) *Store {
	return &Store{db: db}
}

const positionColumns = `p.id, p.title, p.description, p.status, p.campaign_questions,
	p.system_prompt, p.first_message, p.qualification_prompt,
	p.call_retry_max, p.call_retry_interval_minutes,
	p.calling_hour_start, p.calling_hour_end,
	p.follow_up_interval_hours, p.rejected_cv_timeout_days,
	p.created_at, p.updated_at`

func (s *Store) GetByID(ctx context.Context, id int64) (*models.Position, error) {
	query := fmt.Sprintf(`SELECT %s FROM positions p WHERE p.id = $1`, positionColumns)
	pos, err := scanPosition(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("position %d not found", id)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get position", err)
	}
	return pos, nil
}

func (s *Store) ListOpen(ctx context.Context) ([]*models.Position, error) {
	query := fmt.Sprintf(`SELECT %s FROM positions p WHERE p.status = $1 ORDER BY p.id ASC`, positionColumns)
	rows, err := s.db.Query(ctx, query, string(models.PositionOpen))
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list open positions", err)
	}
	defer rows.Close()

	var out []*models.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list open positions", err)
		}
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list open positions", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var description, questions, system, first, qual sql.NullString
	err := row.Scan(
		&p.ID, &p.Title, &description, &p.Status, &questions,
		&system, &first, &qual,
		&p.CallRetryMax, &p.CallRetryIntervalMinutes,
		&p.CallingHourStart, &p.CallingHourEnd,
		&p.FollowUpIntervalHours, &p.RejectedCVTimeoutDays,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.CampaignQuestions = questions.String
	p.SystemPrompt = system.String
	p.FirstMessage = first.String
	p.QualificationPrompt = qual.String
	return &p, nil
}
