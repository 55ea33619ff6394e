// Package candidates resolves inbound contact details to known people.
package candidates

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/validation"
	"recruitflow/internal/models"
)

type Store struct {
	db *database.PostgresClient
}

func NewStore(db *database.PostgresClient) *Store {
	return &Store{db: db}
}

const candidateColumns = `c.id, c.first_name, c.last_name, c.full_name, c.phone, c.email,
	c.chat_number, c.source, c.lead_id, c.form_answers, c.notes, c.created_at, c.updated_at`

func (s *Store) GetByID(ctx context.Context, id int64) (*models.Candidate, error) {
	query := fmt.Sprintf(`SELECT %s FROM candidates c WHERE c.id = $1`, candidateColumns)
	cand, err := scanCandidate(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("candidate %d not found", id)
		}
		return nil, apperrors.NewQueryExecutionFailedError("get candidate", err)
	}
	return cand, nil
}

// FindByEmail resolves an exact (case-insensitive) email match, or nil when
// no candidate carries the address.
func (s *Store) FindByEmail(ctx context.Context, email string) (*models.Candidate, error) {
	normalized := validation.NormalizeEmail(email)
	if normalized == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM candidates c WHERE LOWER(c.email) = $1 LIMIT 1`, candidateColumns)
	cand, err := scanCandidate(s.db.QueryRow(ctx, query, normalized))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewQueryExecutionFailedError("find candidate by email", err)
	}
	return cand, nil
}

// FindByPhone resolves a phone or chat number. SQL narrows by the last seven
// digits; the digits-only suffix comparison in Go makes the final call so
// country-code variants of the same number agree.
func (s *Store) FindByPhone(ctx context.Context, phone string) (*models.Candidate, error) {
	normalized := validation.NormalizePhone(phone)
	if len(normalized) < 7 {
		return nil, nil
	}
	suffix := "%" + normalized[len(normalized)-7:]

	query := fmt.Sprintf(`
		SELECT %s FROM candidates c
		WHERE regexp_replace(COALESCE(c.phone, ''), '\D', '', 'g') LIKE $1
		   OR regexp_replace(COALESCE(c.chat_number, ''), '\D', '', 'g') LIKE $1`,
		candidateColumns)

	rows, err := s.db.Query(ctx, query, suffix)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("find candidate by phone", err)
	}
	defer rows.Close()

	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("find candidate by phone", err)
		}
		if validation.PhonesMatch(cand.Phone, phone) || validation.PhonesMatch(cand.ChatNumber, phone) {
			return cand, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("find candidate by phone", err)
	}
	return nil, nil
}

// ListWithAwaitingApplications returns candidates who currently hold at least
// one application in an awaiting-document state. This is the fuzzy-match pool
// for the name and content tiers of the cascade.
func (s *Store) ListWithAwaitingApplications(ctx context.Context) ([]*models.Candidate, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT %s
		FROM candidates c
		JOIN applications a ON a.candidate_id = c.id
		WHERE a.status = ANY($1)`, candidateColumns)

	statuses := make([]string, len(models.AwaitingCVStatuses))
	for i, st := range models.AwaitingCVStatuses {
		statuses[i] = string(st)
	}

	rows, err := s.db.Query(ctx, query, pq.Array(statuses))
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list awaiting candidates", err)
	}
	defer rows.Close()

	var out []*models.Candidate
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list awaiting candidates", err)
		}
		out = append(out, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list awaiting candidates", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var c models.Candidate
	var (
		phone, email, chat, leadID, notes sql.NullString
		formAnswers                       []byte
	)
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.FullName,
		&phone, &email, &chat, &c.Source, &leadID, &formAnswers, &notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Phone = phone.String
	c.Email = email.String
	c.ChatNumber = chat.String
	c.LeadID = leadID.String
	c.Notes = notes.String
	if len(formAnswers) > 0 {
		if err := json.Unmarshal(formAnswers, &c.FormAnswers); err != nil {
			return nil, fmt.Errorf("decode form answers for candidate %d: %w", c.ID, err)
		}
	}
	return &c, nil
}
