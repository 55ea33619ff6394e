// Package messaging delivers document requests and follow-ups over the email
// and chat channels and owns the outbound_messages audit table.
package messaging

import (
	"context"
	"database/sql"
	"time"

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

// Insert records one delivery attempt. Called once per channel per send, after
// the provider accepted or refused the message.
func (s *Store) Insert(ctx context.Context, msg *models.Message) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO outbound_messages (application_id, channel, message_type, status,
			external_id, body, sent_at, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		msg.ApplicationID, string(msg.Channel), string(msg.MessageType), string(msg.Status),
		msg.ExternalID, msg.Body, msg.SentAt, msg.ErrorDetail,
	).Scan(&msg.ID)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("insert outbound message", err)
	}
	return nil
}

// UpdateStatusByExternalID applies a delivery receipt from a provider
// callback. Unknown external ids are ignored; receipts can outlive the row's
// retention.
func (s *Store) UpdateStatusByExternalID(ctx context.Context, externalID string, status models.MessageStatus) error {
	_, err := s.db.Exec(ctx, `
		UPDATE outbound_messages SET status = $2 WHERE external_id = $1`,
		externalID, string(status),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("update message status", err)
	}
	return nil
}

// LastSentAt returns the most recent delivery time for an application, or nil
// when nothing was ever sent.
func (s *Store) LastSentAt(ctx context.Context, applicationID int64) (*time.Time, error) {
	var at sql.NullTime
	err := s.db.QueryRow(ctx, `
		SELECT MAX(sent_at) FROM outbound_messages WHERE application_id = $1`,
		applicationID,
	).Scan(&at)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("last sent at", err)
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}
