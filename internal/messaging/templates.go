package messaging

import (
	"fmt"

	"recruitflow/internal/models"
)

// Subject and body builders per message kind. Every body carries the
// "application #N" reference token so a reply that loses the sender's address
// can still be attributed by the cascade's token tier.

func subjectFor(msgType models.MessageType, pos *models.Position, app *models.Application) string {
	switch msgType {
	case models.MessageCVRequestRejected:
		return fmt.Sprintf("Your application for %s (application #%d)", pos.Title, app.ID)
	default:
		return fmt.Sprintf("Next step for your %s application (application #%d)", pos.Title, app.ID)
	}
}

func bodyFor(msgType models.MessageType, cand *models.Candidate, pos *models.Position, app *models.Application) string {
	name := cand.FirstName
	if name == "" {
		name = cand.FullName
	}

	switch msgType {
	case models.MessageCVRequest:
		return fmt.Sprintf(
			"Hi %s,\n\nThank you for speaking with us about the %s role. "+
				"To move forward, please reply to this message with your CV attached.\n\n"+
				"Reference: application #%d\n",
			name, pos.Title, app.ID)
	case models.MessageCVRequestRejected:
		return fmt.Sprintf(
			"Hi %s,\n\nThank you for your time discussing the %s role. "+
				"While this position was not a match, we would like to keep your CV on file "+
				"for future openings. You can reply to this message with it attached.\n\n"+
				"Reference: application #%d\n",
			name, pos.Title, app.ID)
	case models.MessageCVFollowup1:
		return fmt.Sprintf(
			"Hi %s,\n\nJust a reminder that we are still waiting for your CV for the %s role. "+
				"Please reply with it attached when you get a moment.\n\n"+
				"Reference: application #%d\n",
			name, pos.Title, app.ID)
	case models.MessageCVFollowup2:
		return fmt.Sprintf(
			"Hi %s,\n\nFinal reminder: we need your CV to keep your %s application open. "+
				"Without it we will have to close the application soon.\n\n"+
				"Reference: application #%d\n",
			name, pos.Title, app.ID)
	default:
		return fmt.Sprintf("Hi %s,\n\nPlease reply with your CV attached.\n\nReference: application #%d\n",
			name, app.ID)
	}
}
