// cmd/scheduler/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"recruitflow/internal/calls"
	"recruitflow/internal/candidates"
	"recruitflow/internal/common/aws"
	"recruitflow/internal/common/config"
	"recruitflow/internal/common/database"
	"recruitflow/internal/common/logger"
	"recruitflow/internal/common/observability"
	"recruitflow/internal/cvs"
	"recruitflow/internal/evaluations"
	"recruitflow/internal/lifecycle"
	"recruitflow/internal/messaging"
	"recruitflow/internal/positions"
	"recruitflow/internal/prompts"
	"recruitflow/internal/scheduler"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting scheduler...")

	obs := observability.New("scheduler")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- AWS clients ---
	var emailSender messaging.EmailSender
	if cfg.Messaging.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Messaging.AWS.Region)
		if err != nil {
			zapLog.Fatal("ses client init failed", zap.Error(err))
		}
		emailSender = sesClient
	}

	var alerter evaluations.Alerter
	if cfg.Alerts.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Messaging.AWS.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		alerter = snsClient
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		zapLog.Warn("unknown timezone, falling back to UTC", zap.String("timezone", cfg.App.Timezone))
		loc = time.UTC
	}

	// --- Stores and services ---
	appStore := lifecycle.NewStore(pg)
	machine := lifecycle.NewMachine(pg, log)
	candidateStore := candidates.NewStore(pg)
	positionStore := positions.NewStore(pg)
	callStore := calls.NewCallStore(pg, log)

	callService := calls.NewService(calls.NewProviderClient(cfg.Voice, log), callStore, machine,
		prompts.NewStore(pg), cfg.Voice, log)
	scoringClient := evaluations.NewScoringClient(cfg.Scoring, log)
	messagingService := messaging.NewService(messaging.NewStore(pg), emailSender,
		messaging.NewChatClient(cfg.Messaging, log), positionStore, cfg.Messaging, log)

	engine := evaluations.NewEngine(pg, redis, scoringClient, evaluations.NewStore(pg),
		machine, appStore, candidateStore, positionStore, messagingService, alerter, cfg.Alerts, log)

	matcher := cvs.NewMatcher(candidateStore, appStore, machine, cvs.NewStore(pg), scoringClient, log)

	// Inbound email arrives over the webhook server; no mailbox poller is
	// wired, so the inbox job idles.
	dispatcher := scheduler.NewDispatcher(
		appStore, candidateStore, positionStore, machine, callStore,
		callService, engine, messagingService, nil, matcher,
		cfg.Scheduler, cfg.Voice.BatchChunkSize, loc, log,
	)

	// --- Health & Metrics Server ---
	metricsAddr := cfg.Scheduler.MetricsAddress
	if metricsAddr == "" {
		metricsAddr = ":8080"
	}
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", metricsAddr))
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Run until shutdown signal ---
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		zapLog.Info("Shutdown signal received, stopping jobs...")
		cancel()
	}()

	scheduler.NewRunner(dispatcher, obs).Run(runCtx)
	zapLog.Info("Scheduler stopped")
}
