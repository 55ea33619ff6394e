package models

import "time"

// CallStatus is the fixed status enum for one dial attempt. Provider status
// strings are mapped onto this set by the calls package; unrecognized values
// map to failed.
type CallStatus string

const (
	CallInitiated      CallStatus = "initiated"
	CallStatusProgress CallStatus = "in_progress"
	CallCompleted      CallStatus = "completed"
	CallNoAnswer       CallStatus = "no_answer"
	CallBusy           CallStatus = "busy"
	CallFailed         CallStatus = "failed"
)

// Call is one dial attempt against an application, numbered from 1.
// Batch submissions leave ConversationID empty until the provider's
// completion event late-binds it.
type Call struct {
	ID            int64 `json:"id"`
	ApplicationID int64 `json:"applicationId"`
	AttemptNumber int   `json:"attemptNumber"`

	// External call-session id; empty until bound for batch calls.
	ConversationID string `json:"conversationId"`
	// Batch correlation id returned by the provider's batch endpoint.
	BatchID string `json:"batchId"`

	Status          CallStatus `json:"status"`
	Transcript      string     `json:"transcript"`
	Summary         string     `json:"summary"`
	SummaryTitle    string     `json:"summaryTitle"`
	RecordingURL    string     `json:"recordingUrl"`
	DurationSeconds int        `json:"durationSeconds"`

	InitiatedAt time.Time  `json:"initiatedAt"`
	EndedAt     *time.Time `json:"endedAt"`
}
