package models

import "time"

// Outcome is the scoring provider's qualification decision. Adding a value
// here requires extending the evaluation engine's dispatch switch, which
// fails closed on unknown outcomes.
type Outcome string

const (
	OutcomeQualified         Outcome = "qualified"
	OutcomeNotQualified      Outcome = "not_qualified"
	OutcomeCallbackRequested Outcome = "callback_requested"
	OutcomeNeedsHuman        Outcome = "needs_human"
)

// ValidOutcome reports whether s is a member of the closed outcome set.
func ValidOutcome(s string) bool {
	switch Outcome(s) {
	case OutcomeQualified, OutcomeNotQualified, OutcomeCallbackRequested, OutcomeNeedsHuman:
		return true
	}
	return false
}

// Evaluation is the committed scoring verdict for one call. At most one per
// call, enforced by a unique constraint on call_id and the engine's locked
// re-check. Immutable once created.
type Evaluation struct {
	ID            int64 `json:"id"`
	ApplicationID int64 `json:"applicationId"`
	CallID        int64 `json:"callId"`

	Outcome   Outcome `json:"outcome"`
	Qualified bool    `json:"qualified"`
	Score     int     `json:"score"`
	Reasoning string  `json:"reasoning"`

	CallbackRequested bool       `json:"callbackRequested"`
	CallbackNotes     string     `json:"callbackNotes"`
	CallbackAt        *time.Time `json:"callbackAt"`

	NeedsHuman      bool   `json:"needsHuman"`
	NeedsHumanNotes string `json:"needsHumanNotes"`

	// Full provider response kept for debugging and re-evaluation.
	RawResponse []byte `json:"rawResponse"`

	EvaluatedAt time.Time `json:"evaluatedAt"`
}
