package models

import "time"

// ApplicationStatus is the closed set of workflow states an application can
// occupy. Persistence and every transition go through the lifecycle package;
// nothing else writes this field.
type ApplicationStatus string

const (
	// Pre-call
	StatusPendingCall ApplicationStatus = "pending_call"
	StatusCallQueued  ApplicationStatus = "call_queued"

	// In-call
	StatusCallInProgress ApplicationStatus = "call_in_progress"
	StatusCallCompleted  ApplicationStatus = "call_completed"
	StatusCallFailed     ApplicationStatus = "call_failed"

	// Post-call / scoring
	StatusScoring ApplicationStatus = "scoring"

	// Qualified path
	StatusQualified   ApplicationStatus = "qualified"
	StatusAwaitingCV  ApplicationStatus = "awaiting_cv"
	StatusCVFollowup1 ApplicationStatus = "cv_followup_1"
	StatusCVFollowup2 ApplicationStatus = "cv_followup_2"
	StatusCVOverdue   ApplicationStatus = "cv_overdue"
	StatusCVReceived  ApplicationStatus = "cv_received"

	// Not-qualified path
	StatusNotQualified       ApplicationStatus = "not_qualified"
	StatusAwaitingCVRejected ApplicationStatus = "awaiting_cv_rejected"
	StatusCVReceivedRejected ApplicationStatus = "cv_received_rejected"

	// Special outcomes
	StatusCallbackScheduled ApplicationStatus = "callback_scheduled"
	StatusNeedsHuman        ApplicationStatus = "needs_human"

	// Terminal
	StatusClosed ApplicationStatus = "closed"
)

// AwaitingCVStatuses are the states in which an inbound CV is expected and
// will advance the application. Shared by the matching cascade and the manual
// upload path.
var AwaitingCVStatuses = []ApplicationStatus{
	StatusAwaitingCV,
	StatusCVFollowup1,
	StatusCVFollowup2,
	StatusCVOverdue,
	StatusAwaitingCVRejected,
}

// Application links a candidate to a position and owns all workflow state.
// Unique on (candidate_id, position_id); enforced by the storage layer.
type Application struct {
	ID          int64             `json:"id"`
	CandidateID int64             `json:"candidateId"`
	PositionID  int64             `json:"positionId"`
	Status      ApplicationStatus `json:"status"`

	// Scoring results; nil until the evaluation commits.
	Qualified  *bool  `json:"qualified"`
	Score      *int   `json:"score"`
	ScoreNotes string `json:"scoreNotes"`

	CVReceivedAt        *time.Time `json:"cvReceivedAt"`
	CallbackScheduledAt *time.Time `json:"callbackScheduledAt"`

	NeedsHumanReason string `json:"needsHumanReason"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusChange is one immutable audit-trail entry per transition.
type StatusChange struct {
	ID            int64             `json:"id"`
	ApplicationID int64             `json:"applicationId"`
	FromStatus    ApplicationStatus `json:"fromStatus"`
	ToStatus      ApplicationStatus `json:"toStatus"`
	Actor         string            `json:"actor"`
	Note          string            `json:"note"`
	ChangedAt     time.Time         `json:"changedAt"`
}
