package calls

import (
	"recruitflow/internal/common/logger"
	"recruitflow/internal/models"
)

// providerStatusMap covers every provider status string seen in the wild.
var providerStatusMap = map[string]models.CallStatus{
	"initiated":   models.CallInitiated,
	"queued":      models.CallInitiated,
	"pending":     models.CallInitiated,
	"in_progress": models.CallStatusProgress,
	"in-progress": models.CallStatusProgress,
	"processing":  models.CallStatusProgress,
	"ringing":     models.CallStatusProgress,
	"done":        models.CallCompleted,
	"completed":   models.CallCompleted,
	"success":     models.CallCompleted,
	"no_answer":   models.CallNoAnswer,
	"no-answer":   models.CallNoAnswer,
	"unanswered":  models.CallNoAnswer,
	"busy":        models.CallBusy,
	"failed":      models.CallFailed,
	"error":       models.CallFailed,
	"cancelled":   models.CallFailed,
}

// MapProviderStatus maps a provider status string onto the attempt enum.
// Unrecognized values map to failed with a warning; a new provider status
// must never crash the caller.
func MapProviderStatus(providerStatus string, log logger.Logger) models.CallStatus {
	if mapped, ok := providerStatusMap[providerStatus]; ok {
		return mapped
	}
	log.Warn("unrecognized provider call status, treating as failed", map[string]interface{}{
		"provider_status": providerStatus,
	})
	return models.CallFailed
}

// IsTerminal reports whether an attempt status is final.
func IsTerminal(status models.CallStatus) bool {
	switch status {
	case models.CallCompleted, models.CallNoAnswer, models.CallBusy, models.CallFailed:
		return true
	}
	return false
}
