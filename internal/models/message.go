package models

import "time"

type MessageChannel string

const (
	ChannelEmail MessageChannel = "email"
	ChannelChat  MessageChannel = "chat"
)

type MessageType string

const (
	MessageCVRequest         MessageType = "cv_request"
	MessageCVRequestRejected MessageType = "cv_request_rejected"
	MessageCVFollowup1       MessageType = "cv_followup_1"
	MessageCVFollowup2       MessageType = "cv_followup_2"
)

type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// Message is the audit record of one outbound delivery attempt over one
// channel. Created at send time; delivery status updated by provider
// callbacks.
type Message struct {
	ID            int64          `json:"id"`
	ApplicationID int64          `json:"applicationId"`
	Channel       MessageChannel `json:"channel"`
	MessageType   MessageType    `json:"messageType"`
	Status        MessageStatus  `json:"status"`

	// Provider message id, when the send succeeded.
	ExternalID  string     `json:"externalId"`
	Body        string     `json:"body"`
	SentAt      *time.Time `json:"sentAt"`
	ErrorDetail string     `json:"errorDetail"`
}

// InboundReply is a text-only inbound chat or email item attributed to a
// sender, stored for recruiter review.
type InboundReply struct {
	ID          int64     `json:"id"`
	Channel     string    `json:"channel"`
	Sender      string    `json:"sender"`
	Body        string    `json:"body"`
	CandidateID *int64    `json:"candidateId"`
	ReceivedAt  time.Time `json:"receivedAt"`
}
