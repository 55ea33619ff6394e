// Package cvs attributes inbound documents to applications via the six-tier
// matching cascade and owns the cv_uploads and unmatched_inbound tables.
package cvs

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

// InsertUpload records one CV attached to one application. A multi-instance
// attachment produces one row per application, sharing the stored file.
func (s *Store) InsertUpload(ctx context.Context, upload *models.CVUpload) error {
	upload.ReceivedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO cv_uploads (candidate_id, application_id, file_name, file_path,
			source, match_method, needs_review, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		upload.CandidateID, upload.ApplicationID, upload.FileName, upload.FilePath,
		string(upload.Source), string(upload.MatchMethod), upload.NeedsReview, upload.ReceivedAt,
	).Scan(&upload.ID)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("insert cv upload", err)
	}
	return nil
}

// InsertUnmatched records an inbound item the cascade could not attribute.
func (s *Store) InsertUnmatched(ctx context.Context, item *models.UnmatchedInbound) error {
	item.ReceivedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO unmatched_inbound (channel, sender, subject, body_snippet,
			attachment_name, raw_payload, file_path, received_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
		RETURNING id`,
		item.Channel, item.Sender, item.Subject, item.BodySnippet,
		item.AttachmentName, item.RawPayload, item.FilePath, item.ReceivedAt,
	).Scan(&item.ID)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("insert unmatched inbound", err)
	}
	return nil
}

// ResolveUnmatched flips an unmatched item once a recruiter attributes it.
func (s *Store) ResolveUnmatched(ctx context.Context, id, applicationID int64) error {
	res, err := s.db.Exec(ctx, `
		UPDATE unmatched_inbound
		SET resolved = TRUE, resolved_by_application_id = $2, resolved_at = $3
		WHERE id = $1 AND resolved = FALSE`,
		id, applicationID, time.Now().UTC(),
	)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("resolve unmatched inbound", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InsertReply stores a text-only inbound item for recruiter review.
func (s *Store) InsertReply(ctx context.Context, reply *models.InboundReply) error {
	reply.ReceivedAt = time.Now().UTC()
	err := s.db.QueryRow(ctx, `
		INSERT INTO inbound_replies (channel, sender, body, candidate_id, received_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		reply.Channel, reply.Sender, reply.Body, reply.CandidateID, reply.ReceivedAt,
	).Scan(&reply.ID)
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("insert inbound reply", err)
	}
	return nil
}
