// Package prompts manages the reusable meta-prompt templates used to generate
// a position's call prompts. Each category has exactly one active template,
// referenced by prompt_categories.active_template_id; activation swaps the
// pointer in one transaction so readers never observe zero or two active
// templates.
package prompts

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

// GetActiveTemplate returns the active template for a category key, or nil
// when the category has no active template yet.
func (s *Store) GetActiveTemplate(ctx context.Context, categoryKey string) (*models.PromptTemplate, error) {
	query := `
		SELECT t.id, t.category_id, t.name, t.meta_prompt, t.created_at, t.updated_at
		FROM prompt_templates t
		JOIN prompt_categories c ON c.active_template_id = t.id
		WHERE c.key = $1`

	var t models.PromptTemplate
	err := s.db.QueryRow(ctx, query, categoryKey).Scan(
		&t.ID, &t.CategoryID, &t.Name, &t.MetaPrompt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.NewQueryExecutionFailedError("get active template", err)
	}
	return &t, nil
}

// ActivateTemplate points a category at a new template. The template must
// belong to the category; the check and the pointer swap share a transaction.
func (s *Store) ActivateTemplate(ctx context.Context, categoryID, templateID int64) error {
	return s.db.WithinTx(ctx, func(tx *sql.Tx) error {
		var owner int64
		err := tx.QueryRowContext(ctx,
			`SELECT category_id FROM prompt_templates WHERE id = $1 FOR UPDATE`,
			templateID,
		).Scan(&owner)
		if err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("prompt template %d not found", templateID)
			}
			return apperrors.NewQueryExecutionFailedError("lock template", err)
		}
		if owner != categoryID {
			return fmt.Errorf("prompt template %d belongs to category %d, not %d",
				templateID, owner, categoryID)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE prompt_categories SET active_template_id = $2 WHERE id = $1`,
			categoryID, templateID,
		)
		if err != nil {
			return apperrors.NewQueryExecutionFailedError("activate template", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("prompt category %d not found", categoryID)
		}
		return nil
	})
}

// ListTemplates returns all templates in a category, newest first.
func (s *Store) ListTemplates(ctx context.Context, categoryID int64) ([]*models.PromptTemplate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT t.id, t.category_id, t.name, t.meta_prompt, t.created_at, t.updated_at
		FROM prompt_templates t
		WHERE t.category_id = $1
		ORDER BY t.created_at DESC`, categoryID)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list templates", err)
	}
	defer rows.Close()

	var out []*models.PromptTemplate
	for rows.Next() {
		var t models.PromptTemplate
		if err := rows.Scan(&t.ID, &t.CategoryID, &t.Name, &t.MetaPrompt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("list templates", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("list templates", err)
	}
	return out, nil
}
