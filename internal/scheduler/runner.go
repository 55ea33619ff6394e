package scheduler

import (
	"context"
	"sync"
	"time"

	"recruitflow/internal/common/metrics"
	"recruitflow/internal/common/observability"
)

// Runner drives the dispatcher's jobs on their configured intervals until the
// context is cancelled. Each job runs on its own ticker; a slow tick of one
// job never delays the others.
type Runner struct {
	dispatcher *Dispatcher
	obs        *observability.Observability
}

func NewRunner(dispatcher *Dispatcher, obs *observability.Observability) *Runner {
	return &Runner{dispatcher: dispatcher, obs: obs}
}

type job struct {
	name     string
	interval time.Duration
	run      func(context.Context) error
}

func (r *Runner) jobs() []job {
	cfg := r.dispatcher.cfg
	return []job{
		{"call_queue", minutesOr(cfg.QueueIntervalMinutes, 5), r.dispatcher.ProcessCallQueue},
		{"stuck_sync", minutesOr(cfg.StuckSyncIntervalMinutes, 10), r.dispatcher.SyncStuckCalls},
		{"followups", minutesOr(cfg.FollowupIntervalMinutes, 60), r.dispatcher.CheckFollowups},
		{"stale_close", hoursOr(cfg.StaleCloseIntervalHours, 24), r.dispatcher.CloseStaleRejected},
		{"inbox_poll", minutesOr(cfg.InboxPollIntervalMinutes, 5), r.dispatcher.PollInbox},
	}
}

// Run blocks until ctx is cancelled. Every job runs once at startup so a
// restart does not wait a full interval to resume work.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range r.jobs() {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			r.tick(ctx, j)

			ticker := time.NewTicker(j.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					r.tick(ctx, j)
				}
			}
		}(j)
	}
	wg.Wait()
}

func (r *Runner) tick(ctx context.Context, j job) {
	start := time.Now()
	err := j.run(ctx)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		r.dispatcher.logger.WithError(err).Error("job tick failed", map[string]interface{}{
			"job": j.name,
		})
	}

	metrics.SchedulerJobRuns.WithLabelValues(j.name, outcome).Inc()
	metrics.SchedulerJobDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())
	if r.obs != nil {
		r.obs.RecordJobProcessed(ctx, j.name, outcome)
		r.obs.RecordJobDuration(ctx, j.name, elapsed)
	}
}

func minutesOr(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func hoursOr(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Hour
}
