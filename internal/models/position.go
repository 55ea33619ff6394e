package models

import "time"

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionPaused PositionStatus = "paused"
	PositionClosed PositionStatus = "closed"
)

// Position is one role being screened for. Carries the per-role prompts and
// all scheduling knobs the dispatcher reads.
type Position struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      PositionStatus `json:"status"`

	// Screening questions, one per line; input to prompt generation.
	CampaignQuestions string `json:"campaignQuestions"`

	// Rendered into the voice provider's agent override per call.
	SystemPrompt string `json:"systemPrompt"`
	FirstMessage string `json:"firstMessage"`

	// Sent to the scoring provider together with the transcript.
	QualificationPrompt string `json:"qualificationPrompt"`

	// Call scheduling and retry config.
	CallRetryMax             int `json:"callRetryMax"`
	CallRetryIntervalMinutes int `json:"callRetryIntervalMinutes"`
	CallingHourStart         int `json:"callingHourStart"`
	CallingHourEnd           int `json:"callingHourEnd"`

	// CV follow-up config; follow-ups apply to qualified candidates only.
	FollowUpIntervalHours int `json:"followUpIntervalHours"`
	RejectedCVTimeoutDays int `json:"rejectedCvTimeoutDays"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
