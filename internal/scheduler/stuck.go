package scheduler

import (
	"context"
	"fmt"
	"time"

	"recruitflow/internal/calls"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
)

// SyncStuckCalls polls the provider for attempts whose completion event never
// arrived. This is the webhook fallback: a call stuck in initiated or
// in_progress past the threshold gets its status fetched directly, and a
// terminal result flows through the same evaluation path the webhook uses.
func (d *Dispatcher) SyncStuckCalls(ctx context.Context) error {
	threshold := time.Duration(d.cfg.StuckCallThresholdMinutes) * time.Minute
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}

	stuck, err := d.callStore.ListStuck(ctx, time.Now().UTC().Add(-threshold))
	if err != nil {
		return err
	}

	for _, call := range stuck {
		if err := d.syncOne(ctx, call); err != nil {
			d.logger.WithError(err).Error("stuck call sync failed", map[string]interface{}{
				"call_id":         call.ID,
				"conversation_id": call.ConversationID,
			})
		}
	}
	return nil
}

func (d *Dispatcher) syncOne(ctx context.Context, call *models.Call) error {
	status, result, err := d.submitter.FetchStatus(ctx, call.ConversationID)
	if err != nil {
		return err
	}

	if status == models.CallStatusProgress {
		if call.Status == models.CallInitiated {
			return d.callStore.MarkInProgress(ctx, call.ID)
		}
		return nil
	}
	if !calls.IsTerminal(status) {
		return nil
	}

	if err := d.callStore.UpdateResult(ctx, call.ID, status, result); err != nil {
		return err
	}
	call.Status = status
	if result != nil {
		call.Transcript = calls.FormatTranscript(result.Transcript)
	}

	if status == models.CallCompleted {
		return d.completeAndEvaluate(ctx, call)
	}
	return d.handleUnansweredCall(ctx, call, status)
}

// completeAndEvaluate advances the application and hands the attempt to the
// evaluation engine. The engine is idempotent, so racing with a late webhook
// delivery resolves to the first committed verdict.
func (d *Dispatcher) completeAndEvaluate(ctx context.Context, call *models.Call) error {
	if _, err := d.machine.ApplyTransition(ctx, call.ApplicationID, lifecycle.EventCallCompleted, lifecycle.Payload{
		Actor: "dispatcher",
		Note:  fmt.Sprintf("completion recovered by stuck-call poll, attempt %d", call.AttemptNumber),
	}); err != nil {
		// Likely already advanced by the webhook; the evaluation fast path
		// sorts it out.
		d.logger.WithError(err).Warn("completion transition rejected, evaluating anyway", map[string]interface{}{
			"application_id": call.ApplicationID,
		})
	}
	_, err := d.evaluator.Evaluate(ctx, call)
	return err
}

// handleUnansweredCall applies the retry budget for no_answer, busy, and
// failed outcomes.
func (d *Dispatcher) handleUnansweredCall(ctx context.Context, call *models.Call, status models.CallStatus) error {
	app, err := d.apps.Get(ctx, call.ApplicationID)
	if err != nil {
		return err
	}
	pos, err := d.positions.GetByID(ctx, app.PositionID)
	if err != nil {
		return err
	}
	count, err := d.callStore.CountAttempts(ctx, call.ApplicationID)
	if err != nil {
		return err
	}

	if count < pos.CallRetryMax {
		_, err = d.machine.ApplyTransition(ctx, call.ApplicationID, lifecycle.EventCallRetry, lifecycle.Payload{
			Actor: "dispatcher",
			Note:  fmt.Sprintf("%s on attempt %d of %d, re-queued", status, count, pos.CallRetryMax),
		})
		return err
	}

	_, err = d.machine.ApplyTransition(ctx, call.ApplicationID, lifecycle.EventCallFailed, lifecycle.Payload{
		Actor: "dispatcher",
		Note:  fmt.Sprintf("retry budget exhausted: %s on attempt %d of %d", status, count, pos.CallRetryMax),
	})
	return err
}
