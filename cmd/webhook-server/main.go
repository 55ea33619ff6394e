// cmd/webhook-server/main.go
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
	"recruitflow/internal/webhooks"
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

	zapLog.Info("Starting webhook server...")

	obs := observability.New("webhook-server")
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

	// --- Stores and services ---
	appStore := lifecycle.NewStore(pg)
	machine := lifecycle.NewMachine(pg, log)
	candidateStore := candidates.NewStore(pg)
	positionStore := positions.NewStore(pg)
	callStore := calls.NewCallStore(pg, log)
	cvStore := cvs.NewStore(pg)

	scoringClient := evaluations.NewScoringClient(cfg.Scoring, log)
	messagingService := messaging.NewService(messaging.NewStore(pg), emailSender,
		messaging.NewChatClient(cfg.Messaging, log), positionStore, cfg.Messaging, log)

	engine := evaluations.NewEngine(pg, redis, scoringClient, evaluations.NewStore(pg),
		machine, appStore, candidateStore, positionStore, messagingService, alerter, cfg.Alerts, log)

	matcher := cvs.NewMatcher(candidateStore, appStore, machine, cvStore, scoringClient, log)

	voiceHandler := webhooks.NewVoiceHandler(cfg.Voice, redis, callStore, appStore,
		positionStore, machine, engine, log)
	chatHandler := webhooks.NewChatHandler(cfg.Messaging, cfg.Storage, matcher, cvStore,
		candidateStore, log)

	mux := http.NewServeMux()
	mux.Handle("/webhooks/voice", voiceHandler)
	mux.Handle("/webhooks/chat", chatHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	listenAddr := cfg.Webhooks.ListenAddress
	if listenAddr == "" {
		listenAddr = ":8081"
	}
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		zapLog.Info("Webhook server listening", zap.String("address", listenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("webhook server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining connections...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("server shutdown failed", zap.Error(err))
	}
	zapLog.Info("Webhook server stopped")
}
