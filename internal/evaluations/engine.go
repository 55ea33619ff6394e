package evaluations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"recruitflow/internal/candidates"
	"recruitflow/internal/common/config"
	"recruitflow/internal/common/database"
	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/metrics"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/models"
	"recruitflow/internal/positions"
)

// DocumentRequester sends the post-verdict document request. Implemented by
// the messaging service.
type DocumentRequester interface {
	SendDocumentRequest(ctx context.Context, app *models.Application, cand *models.Candidate, rejected bool) error
}

// Alerter publishes operator alerts. Implemented by the SNS wrapper.
type Alerter interface {
	PublishAlert(ctx context.Context, topicARN, subject, message string) error
}

// Engine commits scoring verdicts exactly once per call attempt. Two delivery
// paths (completion webhook and the stuck-call poll) can race into Evaluate
// for the same attempt; the locked re-check inside the commit transaction
// serializes them.
type Engine struct {
	db        *database.PostgresClient
	redis     *database.RedisClient
	scorer    Scorer
	store     *Store
	machine   *lifecycle.Machine
	apps      *lifecycle.Store
	cands     *candidates.Store
	positions *positions.Store
	messenger DocumentRequester
	alerter   Alerter
	alerts    config.AlertConfig
	logger    logger.Logger
}

func NewEngine(
	db *database.PostgresClient,
	redis *database.RedisClient,
	scorer Scorer,
	store *Store,
	machine *lifecycle.Machine,
	apps *lifecycle.Store,
	cands *candidates.Store,
	positionStore *positions.Store,
	messenger DocumentRequester,
	alerter Alerter,
	alerts config.AlertConfig,
	log logger.Logger,
) *Engine {
	return &Engine{
		db:        db,
		redis:     redis,
		scorer:    scorer,
		store:     store,
		machine:   machine,
		apps:      apps,
		cands:     cands,
		positions: positionStore,
		messenger: messenger,
		alerter:   alerter,
		alerts:    alerts,
		logger:    log.WithFields(map[string]interface{}{"component": "evaluation-engine"}),
	}
}

func evalCacheKey(callID int64) string {
	return fmt.Sprintf("eval:call:%d", callID)
}

// Evaluate scores one completed call attempt and commits the verdict.
// Idempotent: a second call for the same attempt returns the first's
// evaluation, never creates another.
func (e *Engine) Evaluate(ctx context.Context, call *models.Call) (*models.Evaluation, error) {
	// Step 1: fast-path duplicate checks. Cheap reads, no locks, not
	// load-bearing for correctness — the authoritative re-check happens
	// under the row lock below.
	if e.redis != nil {
		if _, err := e.redis.Get(ctx, evalCacheKey(call.ID)); err == nil {
			if existing, err := e.store.GetByCallID(ctx, call.ID); err == nil && existing != nil {
				return existing, nil
			}
		}
	}
	if existing, err := e.store.GetByCallID(ctx, call.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	app, err := e.apps.Get(ctx, call.ApplicationID)
	if err != nil {
		return nil, err
	}
	cand, err := e.cands.GetByID(ctx, app.CandidateID)
	if err != nil {
		return nil, err
	}
	pos, err := e.positions.GetByID(ctx, app.PositionID)
	if err != nil {
		return nil, err
	}

	if err := e.ensureScoring(ctx, app, call.ID); err != nil {
		if existing, readErr := e.store.GetByCallID(ctx, call.ID); readErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	// Step 2: provider call. No locks held here; this can take seconds.
	raw, err := e.scorer.Score(ctx, ScoringRequest{
		Transcript:            call.Transcript,
		QualificationCriteria: pos.QualificationPrompt,
		IntakeAnswers:         intakeAnswersBlock(cand),
	})
	if err != nil {
		return nil, err
	}

	// Step 3: parse, with one lenient repair pass inside ParseVerdict.
	verdict, err := ParseVerdict(raw)
	if err != nil {
		metrics.VerdictParseFailures.Inc()
		e.logger.WithError(err).Error("verdict unparseable, surfacing to operators", map[string]interface{}{
			"call_id":        call.ID,
			"application_id": app.ID,
		})
		e.alert(ctx, "Verdict parse failure",
			fmt.Sprintf("Call %d (application %d): scoring verdict could not be parsed. Raw response kept in logs.", call.ID, app.ID))
		return nil, err
	}

	// Step 4: the atomic unit — call row lock, authoritative re-check,
	// evaluation insert, and the outcome transition, all in one transaction.
	var result *models.Evaluation
	duplicate := false
	err = e.db.WithinTx(ctx, func(tx *sql.Tx) error {
		var locked int64
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM call_attempts WHERE id = $1 FOR UPDATE`, call.ID,
		).Scan(&locked); err != nil {
			return apperrors.NewQueryExecutionFailedError("lock call attempt", err)
		}

		existing, err := e.store.GetByCallIDTx(ctx, tx, call.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			duplicate = true
			return nil
		}

		eval := verdictToEvaluation(verdict, app.ID, call.ID, []byte(raw))
		if err := e.store.InsertTx(ctx, tx, eval); err != nil {
			if errors.Is(err, apperrors.ErrDuplicateEvaluation) {
				existing, readErr := e.store.GetByCallIDTx(ctx, tx, call.ID)
				if readErr != nil {
					return readErr
				}
				result = existing
				duplicate = true
				return nil
			}
			return err
		}

		event, payload, err := outcomeTransition(verdict)
		if err != nil {
			return err
		}
		if _, err := e.machine.ApplyTransitionTx(ctx, tx, app.ID, event, payload); err != nil {
			return err
		}

		result = eval
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.redis != nil {
		if err := e.redis.Set(ctx, evalCacheKey(call.ID), "1", 24*time.Hour); err != nil {
			e.logger.WithError(err).Warn("failed to cache evaluation marker", nil)
		}
	}

	if duplicate {
		e.logger.Info("duplicate evaluation resolved to existing record", map[string]interface{}{
			"call_id": call.ID,
		})
		return result, nil
	}

	metrics.EvaluationsProcessed.WithLabelValues(string(result.Outcome)).Inc()
	e.dispatchSideEffects(ctx, app, cand, result)
	return result, nil
}

// ensureScoring moves the application into scoring when it is still in
// call_completed. Already-scoring is fine (a concurrent caller got there
// first); anything else is rejected by the machine.
func (e *Engine) ensureScoring(ctx context.Context, app *models.Application, callID int64) error {
	if app.Status == models.StatusScoring {
		return nil
	}
	_, err := e.machine.ApplyTransition(ctx, app.ID, lifecycle.EventScoringStarted, lifecycle.Payload{
		Actor: "evaluation-engine",
		Note:  fmt.Sprintf("scoring call %d", callID),
	})
	if err != nil && errors.Is(err, apperrors.ErrInvalidTransition) {
		// Re-read: a concurrent evaluator may have advanced the status
		// between our load and this transition.
		fresh, readErr := e.apps.Get(ctx, app.ID)
		if readErr == nil && fresh.Status == models.StatusScoring {
			return nil
		}
	}
	return err
}

// outcomeTransition is the closed dispatch from verdict outcome to lifecycle
// event. Unknown outcomes cannot reach here (ParseVerdict validates against
// the enum), but the default still fails loudly rather than guessing.
func outcomeTransition(v *Verdict) (lifecycle.Event, lifecycle.Payload, error) {
	score := v.Score
	reasoning := v.Reasoning
	payload := lifecycle.Payload{
		Actor:      "evaluation-engine",
		Note:       fmt.Sprintf("verdict: %s (score %d)", v.Outcome, v.Score),
		Score:      &score,
		ScoreNotes: &reasoning,
	}

	switch models.Outcome(v.Outcome) {
	case models.OutcomeQualified:
		q := true
		payload.Qualified = &q
		return lifecycle.EventVerdictQualified, payload, nil
	case models.OutcomeNotQualified:
		q := false
		payload.Qualified = &q
		return lifecycle.EventVerdictNotQualified, payload, nil
	case models.OutcomeCallbackRequested:
		at := v.CallbackTime(time.Now().UTC())
		payload.CallbackAt = &at
		return lifecycle.EventVerdictCallback, payload, nil
	case models.OutcomeNeedsHuman:
		reason := v.NeedsHumanNotes
		if reason == "" {
			reason = "flagged by scoring provider"
		}
		payload.NeedsHumanReason = &reason
		return lifecycle.EventVerdictNeedsHuman, payload, nil
	default:
		return "", lifecycle.Payload{}, fmt.Errorf("unhandled verdict outcome %q", v.Outcome)
	}
}

// dispatchSideEffects runs the post-commit work per outcome. Failures here
// are logged, not returned: the evaluation is already committed and the
// follow-up sweep self-heals a missed send.
func (e *Engine) dispatchSideEffects(ctx context.Context, app *models.Application, cand *models.Candidate, eval *models.Evaluation) {
	switch eval.Outcome {
	case models.OutcomeQualified, models.OutcomeNotQualified:
		rejected := eval.Outcome == models.OutcomeNotQualified
		if e.messenger != nil {
			if err := e.messenger.SendDocumentRequest(ctx, app, cand, rejected); err != nil {
				e.logger.WithError(err).Error("document request send failed", map[string]interface{}{
					"application_id": app.ID,
				})
			}
		}
		if _, err := e.machine.ApplyTransition(ctx, app.ID, lifecycle.EventDocumentRequested, lifecycle.Payload{
			Actor: "evaluation-engine",
			Note:  "document request dispatched",
		}); err != nil {
			e.logger.WithError(err).Error("post-verdict transition failed", map[string]interface{}{
				"application_id": app.ID,
			})
		}
	case models.OutcomeCallbackRequested:
		// Nothing further; the queue processor picks the callback up when
		// its time arrives.
	case models.OutcomeNeedsHuman:
		e.alert(ctx, "Application needs human review",
			fmt.Sprintf("Application %d (%s): %s", app.ID, cand.FullName, eval.NeedsHumanNotes))
	}
}

func (e *Engine) alert(ctx context.Context, subject, message string) {
	if !e.alerts.Enabled || e.alerter == nil {
		return
	}
	if err := e.alerter.PublishAlert(ctx, e.alerts.TopicARN, subject, message); err != nil {
		e.logger.WithError(err).Warn("operator alert publish failed", nil)
	}
}

func intakeAnswersBlock(cand *models.Candidate) string {
	if len(cand.FormAnswers) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(cand.FormAnswers))
	for k := range cand.FormAnswers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s: %s\n", k, cand.FormAnswers[k])
	}
	return out
}

func verdictToEvaluation(v *Verdict, applicationID, callID int64, raw []byte) *models.Evaluation {
	eval := &models.Evaluation{
		ApplicationID:     applicationID,
		CallID:            callID,
		Outcome:           models.Outcome(v.Outcome),
		Qualified:         v.Qualified,
		Score:             v.Score,
		Reasoning:         v.Reasoning,
		CallbackRequested: v.CallbackRequested,
		CallbackNotes:     v.CallbackNotes,
		NeedsHuman:        v.NeedsHuman,
		NeedsHumanNotes:   v.NeedsHumanNotes,
		RawResponse:       raw,
	}
	if v.CallbackAt != "" {
		at := v.CallbackTime(time.Now().UTC())
		eval.CallbackAt = &at
	}
	return eval
}
