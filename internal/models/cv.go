package models

import "time"

type CVSource string

const (
	CVSourceEmailAttachment CVSource = "email_attachment"
	CVSourceChatMedia       CVSource = "chat_media"
	CVSourceManualUpload    CVSource = "manual_upload"
)

// MatchMethod records which cascade tier attributed an inbound CV.
type MatchMethod string

const (
	MatchExactEmail MatchMethod = "exact_email"
	MatchExactPhone MatchMethod = "exact_phone"
	MatchSubjectID  MatchMethod = "subject_id"
	MatchFuzzyName  MatchMethod = "fuzzy_name"
	MatchCVContent  MatchMethod = "cv_content"
	MatchManual     MatchMethod = "manual"
)

// CVUpload is one received CV attached to one application. A single inbound
// submission may produce several rows (one per open application of the
// matched candidate) sharing the same stored file.
type CVUpload struct {
	ID            int64  `json:"id"`
	CandidateID   *int64 `json:"candidateId"`
	ApplicationID int64  `json:"applicationId"`

	FileName string `json:"fileName"`
	// Local path or object key, depending on the storage backend.
	FilePath string `json:"filePath"`

	Source      CVSource    `json:"source"`
	MatchMethod MatchMethod `json:"matchMethod"`

	// Set by medium-confidence tiers (fuzzy_name, cv_content); surfaces the
	// upload for recruiter confirmation.
	NeedsReview bool `json:"needsReview"`

	ReceivedAt time.Time `json:"receivedAt"`
}

// UnmatchedInbound holds inbound items the cascade could not attribute to any
// candidate, pending manual resolution.
type UnmatchedInbound struct {
	ID      int64  `json:"id"`
	Channel string `json:"channel"`
	Sender  string `json:"sender"`

	Subject        string `json:"subject"`
	BodySnippet    string `json:"bodySnippet"`
	AttachmentName string `json:"attachmentName"`

	// Raw inbound payload kept for debugging and re-processing.
	RawPayload []byte `json:"rawPayload"`
	FilePath   string `json:"filePath"`

	ReceivedAt time.Time `json:"receivedAt"`

	Resolved                *bool      `json:"resolved"`
	ResolvedByApplicationID *int64     `json:"resolvedByApplicationId"`
	ResolvedAt              *time.Time `json:"resolvedAt"`
}
