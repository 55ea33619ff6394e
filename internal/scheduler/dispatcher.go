package scheduler

import (
	"context"
	"time"

	"recruitflow/internal/calls"
	"recruitflow/internal/candidates"
	"recruitflow/internal/common/config"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/cvs"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
	"recruitflow/internal/positions"
)

// CallSubmitter is the calls.Service surface the dispatcher drives.
type CallSubmitter interface {
	SubmitSingle(ctx context.Context, item calls.QueueItem) error
	SubmitBatch(ctx context.Context, items []calls.QueueItem) error
	FetchStatus(ctx context.Context, conversationID string) (models.CallStatus, *calls.StatusResult, error)
}

// Evaluator scores a completed call attempt; implemented by the evaluation
// engine.
type Evaluator interface {
	Evaluate(ctx context.Context, call *models.Call) (*models.Evaluation, error)
}

// FollowUpSender delivers document requests and follow-up messages;
// implemented by the messaging service.
type FollowUpSender interface {
	SendDocumentRequest(ctx context.Context, app *models.Application, cand *models.Candidate, rejected bool) error
	SendFollowUp(ctx context.Context, app *models.Application, cand *models.Candidate, step int) error
}

// InboxSource fetches pending inbound items from a mailbox between ticks.
type InboxSource interface {
	Fetch(ctx context.Context) ([]*cvs.Inbound, error)
}

// DocumentMatcher runs the matching cascade over one inbound item.
type DocumentMatcher interface {
	Match(ctx context.Context, in *cvs.Inbound) (*cvs.MatchResult, error)
}

// Dispatcher owns the periodic jobs. Every job re-derives its working set from
// the database on each tick and isolates per-application failures, so one bad
// row never stalls the sweep.
type Dispatcher struct {
	apps      *lifecycle.Store
	cands     *candidates.Store
	positions *positions.Store
	machine   *lifecycle.Machine
	callStore *calls.Store
	submitter CallSubmitter
	evaluator Evaluator
	messenger FollowUpSender
	inbox     InboxSource
	matcher   DocumentMatcher

	cfg config.SchedulerConfig
	loc *time.Location
	// Batch size for queue submissions.
	chunkSize int

	logger logger.Logger
}

func NewDispatcher(
	apps *lifecycle.Store,
	cands *candidates.Store,
	positionStore *positions.Store,
	machine *lifecycle.Machine,
	callStore *calls.Store,
	submitter CallSubmitter,
	evaluator Evaluator,
	messenger FollowUpSender,
	inbox InboxSource,
	matcher DocumentMatcher,
	cfg config.SchedulerConfig,
	chunkSize int,
	loc *time.Location,
	log logger.Logger,
) *Dispatcher {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	return &Dispatcher{
		apps:      apps,
		cands:     cands,
		positions: positionStore,
		machine:   machine,
		callStore: callStore,
		submitter: submitter,
		evaluator: evaluator,
		messenger: messenger,
		inbox:     inbox,
		matcher:   matcher,
		cfg:       cfg,
		loc:       loc,
		chunkSize: chunkSize,
		logger:    log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// ProcessCallQueue submits queued applications in provider batches and due
// callbacks as individual calls, both gated by each position's calling hours.
func (d *Dispatcher) ProcessCallQueue(ctx context.Context) error {
	now := time.Now().UTC()

	queued, err := d.apps.ListQueuedForOpenPositions(ctx)
	if err != nil {
		return err
	}

	items, err := d.loadQueueItems(ctx, queued, now)
	if err != nil {
		return err
	}
	for start := 0; start < len(items); start += d.chunkSize {
		end := start + d.chunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := d.submitter.SubmitBatch(ctx, items[start:end]); err != nil {
			// The service already applied per-application failure handling;
			// remaining chunks still go out.
			d.logger.WithError(err).Error("batch submission failed", map[string]interface{}{
				"chunk_size": end - start,
			})
		}
	}

	return d.processDueCallbacks(ctx, now)
}

// loadQueueItems joins candidate and position rows onto the queued
// applications and drops those outside their position's calling window.
func (d *Dispatcher) loadQueueItems(ctx context.Context, apps []*models.Application, now time.Time) ([]calls.QueueItem, error) {
	posCache := map[int64]*models.Position{}
	var items []calls.QueueItem
	for _, app := range apps {
		pos, ok := posCache[app.PositionID]
		if !ok {
			var err error
			pos, err = d.positions.GetByID(ctx, app.PositionID)
			if err != nil {
				d.logger.WithError(err).Error("position load failed, skipping application", map[string]interface{}{
					"application_id": app.ID,
				})
				continue
			}
			posCache[app.PositionID] = pos
		}
		if !PositionCallable(now, d.loc, pos) {
			continue
		}

		cand, err := d.cands.GetByID(ctx, app.CandidateID)
		if err != nil {
			d.logger.WithError(err).Error("candidate load failed, skipping application", map[string]interface{}{
				"application_id": app.ID,
			})
			continue
		}
		items = append(items, calls.QueueItem{Application: app, Candidate: cand, Position: pos})
	}
	return items, nil
}

// processDueCallbacks re-queues callback_scheduled applications whose time has
// come and dials each one individually.
func (d *Dispatcher) processDueCallbacks(ctx context.Context, now time.Time) error {
	due, err := d.apps.ListDueCallbacks(ctx, now)
	if err != nil {
		return err
	}

	items, err := d.loadQueueItems(ctx, due, now)
	if err != nil {
		return err
	}
	for _, item := range items {
		if _, err := d.machine.ApplyTransition(ctx, item.Application.ID, lifecycle.EventCallbackDue, lifecycle.Payload{
			Actor: "dispatcher",
			Note:  "callback time reached",
		}); err != nil {
			d.logger.WithError(err).Error("callback re-queue failed", map[string]interface{}{
				"application_id": item.Application.ID,
			})
			continue
		}
		if err := d.submitter.SubmitSingle(ctx, item); err != nil {
			d.logger.WithError(err).Error("callback call submission failed", map[string]interface{}{
				"application_id": item.Application.ID,
			})
		}
	}
	return nil
}
