package scheduler

import (
	"context"
	"time"

	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
)

// verdictRedriveGrace keeps the sweep off applications the evaluation engine
// is still finishing.
const verdictRedriveGrace = 10 * time.Minute

// CheckFollowups finishes stranded post-verdict hand-offs, then advances the
// qualified-track reminder ladder. Applications in awaiting_cv, cv_followup_1,
// or cv_followup_2 whose last outbound message is older than the position's
// interval get the next step; after the second reminder the application goes
// overdue and closes immediately. The rejected track is excluded by the query
// itself.
func (d *Dispatcher) CheckFollowups(ctx context.Context) error {
	if err := d.redriveVerdicts(ctx); err != nil {
		d.logger.WithError(err).Error("verdict redrive failed", nil)
	}

	due, err := d.apps.ListFollowUpDue(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, app := range due {
		if err := d.followUpOne(ctx, app); err != nil {
			d.logger.WithError(err).Error("follow-up failed", map[string]interface{}{
				"application_id": app.ID,
				"status":         string(app.Status),
			})
		}
	}
	return nil
}

func (d *Dispatcher) followUpOne(ctx context.Context, app *models.Application) error {
	switch app.Status {
	case models.StatusAwaitingCV:
		return d.sendFollowUpStep(ctx, app, 1)
	case models.StatusCVFollowup1:
		return d.sendFollowUpStep(ctx, app, 2)
	case models.StatusCVFollowup2:
		return d.expireFollowUps(ctx, app)
	default:
		// The query should never hand us anything else.
		d.logger.Warn("unexpected status in follow-up sweep", map[string]interface{}{
			"application_id": app.ID,
			"status":         string(app.Status),
		})
		return nil
	}
}

// redriveVerdicts picks up applications stuck on qualified or not_qualified
// because the post-verdict transition failed after the evaluation committed.
// The document request is sent again when only the transition failed before;
// the candidate may see the request twice, never not at all.
func (d *Dispatcher) redriveVerdicts(ctx context.Context) error {
	stranded, err := d.apps.ListStrandedVerdicts(ctx, time.Now().UTC().Add(-verdictRedriveGrace))
	if err != nil {
		return err
	}

	for _, app := range stranded {
		cand, err := d.cands.GetByID(ctx, app.CandidateID)
		if err != nil {
			d.logger.WithError(err).Error("candidate load failed, skipping redrive", map[string]interface{}{
				"application_id": app.ID,
			})
			continue
		}
		rejected := app.Status == models.StatusNotQualified
		if err := d.messenger.SendDocumentRequest(ctx, app, cand, rejected); err != nil {
			d.logger.WithError(err).Error("stranded document request failed", map[string]interface{}{
				"application_id": app.ID,
			})
			continue
		}
		if _, err := d.machine.ApplyTransition(ctx, app.ID, lifecycle.EventDocumentRequested, lifecycle.Payload{
			Actor: "scheduler",
			Note:  "document request redelivered",
		}); err != nil {
			d.logger.WithError(err).Error("redrive transition failed", map[string]interface{}{
				"application_id": app.ID,
			})
		}
	}
	return nil
}

// sendFollowUpStep sends first, transitions second: a failed send leaves the
// application where it was, and the next tick retries because no new outbound
// row moved the interval clock.
func (d *Dispatcher) sendFollowUpStep(ctx context.Context, app *models.Application, step int) error {
	cand, err := d.cands.GetByID(ctx, app.CandidateID)
	if err != nil {
		return err
	}
	if err := d.messenger.SendFollowUp(ctx, app, cand, step); err != nil {
		return err
	}
	_, err = d.machine.ApplyTransition(ctx, app.ID, lifecycle.EventFollowUpSent, lifecycle.Payload{
		Actor: "scheduler",
		Note:  "follow-up sent",
	})
	return err
}

// expireFollowUps runs the cv_followup_2 endgame: overdue, then an immediate
// close.
func (d *Dispatcher) expireFollowUps(ctx context.Context, app *models.Application) error {
	if _, err := d.machine.ApplyTransition(ctx, app.ID, lifecycle.EventFollowUpExpired, lifecycle.Payload{
		Actor: "scheduler",
		Note:  "no document after final reminder",
	}); err != nil {
		return err
	}
	_, err := d.machine.ApplyTransition(ctx, app.ID, lifecycle.EventClosed, lifecycle.Payload{
		Actor: "scheduler",
		Note:  "closed overdue",
	})
	return err
}

// CloseStaleRejected silently closes rejected-track applications past the
// position's timeout. No message is sent; rejected candidates are never
// contacted twice.
func (d *Dispatcher) CloseStaleRejected(ctx context.Context) error {
	stale, err := d.apps.ListStaleRejected(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	for _, app := range stale {
		if _, err := d.machine.ApplyTransition(ctx, app.ID, lifecycle.EventClosed, lifecycle.Payload{
			Actor: "scheduler",
			Note:  "rejected-track timeout",
		}); err != nil {
			d.logger.WithError(err).Error("stale rejected close failed", map[string]interface{}{
				"application_id": app.ID,
			})
		}
	}
	return nil
}

// PollInbox drains the mailbox source and runs every item through the
// matching cascade. Configured only when inbound email arrives by polling
// rather than webhook.
func (d *Dispatcher) PollInbox(ctx context.Context) error {
	if d.inbox == nil || d.matcher == nil {
		return nil
	}
	items, err := d.inbox.Fetch(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := d.matcher.Match(ctx, item); err != nil {
			d.logger.WithError(err).Error("inbox item match failed", map[string]interface{}{
				"sender": item.SenderEmail,
			})
		}
	}
	return nil
}
