package models

import "time"

type CandidateSource string

const (
	CandidateSourceLeadForm CandidateSource = "lead_form"
	CandidateSourceManual   CandidateSource = "manual"
)

// Candidate is a known person. FullName is preserved as imported; first/last
// are parsed at import time and used for fuzzy matching.
type Candidate struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`

	Phone string `json:"phone"`
	Email string `json:"email"`
	// Set only when the chat number differs from the main phone.
	ChatNumber string `json:"chatNumber"`

	Source CandidateSource `json:"source"`
	// Dedup key from the lead-import source, e.g. "l:1990233898539318".
	LeadID string `json:"leadId"`

	// Intake question/answer pairs from the lead form; keys are underscored
	// column headers.
	FormAnswers map[string]string `json:"formAnswers"`

	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
