package cvs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"recruitflow/internal/models"
)

// SaveAttachment stores raw attachment bytes under dir with a collision-free
// name and returns the stored path.
func SaveAttachment(dir, originalName string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cv dir: %w", err)
	}
	name := uuid.NewString()
	if ext := filepath.Ext(originalName); ext != "" {
		name += ext
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write cv file: %w", err)
	}
	return path, nil
}

// ManualAttach is the recruiter path around the cascade: attach an uploaded
// file to every awaiting application of a known candidate, optionally
// resolving the unmatched-inbound item it came from.
func (m *Matcher) ManualAttach(ctx context.Context, candidateID int64, fileName, filePath string, unmatchedID *int64) (*MatchResult, error) {
	apps, err := m.apps.ListAwaitingByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, fmt.Errorf("candidate %d has no application awaiting a document", candidateID)
	}

	in := &Inbound{
		Channel:        "manual",
		AttachmentName: fileName,
		FilePath:       filePath,
	}
	result, err := m.attach(ctx, in, &candidateID, apps, models.MatchManual, false)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("manual attachment failed for candidate %d", candidateID)
	}

	if unmatchedID != nil && len(result.Applications) > 0 {
		if err := m.store.ResolveUnmatched(ctx, *unmatchedID, result.Applications[0].ID); err != nil {
			m.logger.WithError(err).Warn("failed to resolve unmatched inbound", map[string]interface{}{
				"unmatched_id": *unmatchedID,
			})
		}
	}
	return result, nil
}
