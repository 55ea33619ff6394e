package lifecycle

import "recruitflow/internal/models"

// Event is a lifecycle trigger. Every status change goes through exactly one
// event; the transition table below is the only definition of which events
// are legal from which status.
type Event string

const (
	// Operator bulk action, or manual re-queue out of a quasi-terminal state.
	EventQueueForCall Event = "queue_for_call"

	// Dispatcher: scheduled callback time has passed inside calling hours.
	EventCallbackDue Event = "callback_due"

	// Dispatcher: call handed to the voice provider.
	EventCallSubmitted Event = "call_submitted"

	// Voice provider reported a finished call with a transcript.
	EventCallCompleted Event = "call_completed"

	// No answer or busy with retry budget left; back in the queue.
	EventCallRetry Event = "call_retry"

	// Retry budget exhausted, or submission failed past the budget.
	EventCallFailed Event = "call_failed"

	EventScoringStarted Event = "scoring_started"

	// Committed verdict outcomes, fired by the evaluation engine.
	EventVerdictQualified    Event = "verdict_qualified"
	EventVerdictNotQualified Event = "verdict_not_qualified"
	EventVerdictCallback     Event = "verdict_callback"
	EventVerdictNeedsHuman   Event = "verdict_needs_human"

	// Document request sent over the outbound channels.
	EventDocumentRequested Event = "document_requested"

	EventFollowUpSent    Event = "follow_up_sent"
	EventFollowUpExpired Event = "follow_up_expired"

	EventDocumentReceived Event = "document_received"

	// Terminal close; legal from every status except closed itself.
	EventClosed Event = "closed"
)

// transitions maps current status -> event -> next status. EventClosed is
// handled separately (any non-closed status may close).
var transitions = map[models.ApplicationStatus]map[Event]models.ApplicationStatus{
	models.StatusPendingCall: {
		EventQueueForCall: models.StatusCallQueued,
	},
	models.StatusCallQueued: {
		EventCallSubmitted: models.StatusCallInProgress,
		EventCallFailed:    models.StatusCallFailed,
	},
	models.StatusCallInProgress: {
		EventCallCompleted: models.StatusCallCompleted,
		EventCallRetry:     models.StatusCallQueued,
		EventCallFailed:    models.StatusCallFailed,
	},
	models.StatusCallCompleted: {
		EventScoringStarted: models.StatusScoring,
	},
	models.StatusScoring: {
		EventVerdictQualified:    models.StatusQualified,
		EventVerdictNotQualified: models.StatusNotQualified,
		EventVerdictCallback:     models.StatusCallbackScheduled,
		EventVerdictNeedsHuman:   models.StatusNeedsHuman,
	},
	models.StatusQualified: {
		EventDocumentRequested: models.StatusAwaitingCV,
	},
	models.StatusNotQualified: {
		EventDocumentRequested: models.StatusAwaitingCVRejected,
	},
	models.StatusCallbackScheduled: {
		EventCallbackDue: models.StatusCallQueued,
	},
	models.StatusAwaitingCV: {
		EventFollowUpSent:     models.StatusCVFollowup1,
		EventDocumentReceived: models.StatusCVReceived,
	},
	models.StatusCVFollowup1: {
		EventFollowUpSent:     models.StatusCVFollowup2,
		EventDocumentReceived: models.StatusCVReceived,
	},
	models.StatusCVFollowup2: {
		EventFollowUpExpired:  models.StatusCVOverdue,
		EventDocumentReceived: models.StatusCVReceived,
	},
	models.StatusCVOverdue: {
		EventDocumentReceived: models.StatusCVReceived,
	},
	models.StatusAwaitingCVRejected: {
		EventDocumentReceived: models.StatusCVReceivedRejected,
	},
	// Quasi-terminal: recruiters re-queue manually.
	models.StatusCallFailed: {
		EventQueueForCall: models.StatusCallQueued,
	},
	models.StatusNeedsHuman: {
		EventQueueForCall: models.StatusCallQueued,
	},
}

// Next returns the status the event leads to from the given status. The
// second return is false when the event is not legal from that status.
func Next(from models.ApplicationStatus, event Event) (models.ApplicationStatus, bool) {
	if event == EventClosed {
		if from == models.StatusClosed {
			return "", false
		}
		return models.StatusClosed, true
	}
	next, ok := transitions[from][event]
	return next, ok
}

// CanApply reports whether the event is legal from the given status.
func CanApply(from models.ApplicationStatus, event Event) bool {
	_, ok := Next(from, event)
	return ok
}
