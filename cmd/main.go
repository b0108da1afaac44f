// job-monitor matching service
//
// Two-stage matching pipeline for job seekers:
//  1. embedding similarity pre-filter over unseen postings
//  2. batched Gemini scoring with per-requirement alignment mappings
//
// Exposes a REST API used by the Gateway:
//   - POST /run-matching              — trigger a background matching run
//   - GET  /matching-status           — poll run progress
//   - GET  /matches                   — list scored matches
//   - GET  /match-explanation         — per-requirement breakdown for one match
//   - POST /matches/{jobId}/status    — move a match through its lifecycle
//
// A cron loop backfills postings for all active search configs, deduplicated
// across users through the combination ledger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Inclusist/job-monitor-sub000/internal/ai/gemini"
	"github.com/Inclusist/job-monitor-sub000/internal/backfill"
	"github.com/Inclusist/job-monitor-sub000/internal/config"
	"github.com/Inclusist/job-monitor-sub000/internal/db"
	"github.com/Inclusist/job-monitor-sub000/internal/embedding"
	"github.com/Inclusist/job-monitor-sub000/internal/explain"
	"github.com/Inclusist/job-monitor-sub000/internal/httpapi"
	"github.com/Inclusist/job-monitor-sub000/internal/logger"
	"github.com/Inclusist/job-monitor-sub000/internal/matching"
	"github.com/Inclusist/job-monitor-sub000/internal/scheduler"
	"github.com/Inclusist/job-monitor-sub000/internal/scoring"
	"github.com/Inclusist/job-monitor-sub000/internal/store"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[matcher] config error: %v", err)
	}

	zlog, err := logger.New(cfg.JSONLog, cfg.Debug)
	if err != nil {
		log.Fatalf("[matcher] logger error: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("postgres connection failed", zap.Error(err))
	}
	defer pool.Close()
	zlog.Info("postgres connected")

	// ── Redis ────────────────────────────────────────────────────────────────
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		zlog.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()
	zlog.Info("redis connected")

	// ── Gemini ───────────────────────────────────────────────────────────────
	ai, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.EmbeddingModel, zlog)
	if err != nil {
		zlog.Fatal("gemini client failed", zap.Error(err))
	}

	// ── Stores ───────────────────────────────────────────────────────────────
	profiles := store.NewProfileStore(pool)
	jobs := store.NewJobStore(pool)
	matches := store.NewMatchRecordStore(pool)
	backfills := store.NewBackfillStore(pool)

	// ── Matching pipeline ────────────────────────────────────────────────────
	filter := embedding.NewFilter(ai, cfg.BoostKeywords, embedding.ModeTitle, zlog)
	engine := scoring.NewEngine(ai, cfg.ScoringBatchSize, zlog)

	orchestrator := matching.NewOrchestrator(ctx,
		matching.Config{SemanticGate: cfg.SemanticGate},
		&matching.Deps{
			Profiles: profiles,
			Matches:  matches,
			Jobs:     jobs,
			Filter:   filter,
			Engine:   engine,
			Status:   matching.NewRedisStatusStore(rdb),
			Events:   rdb,
			Logger:   zlog,
		})

	resolver := explain.NewResolver(ai, zlog)

	// ── Backfill cron ────────────────────────────────────────────────────────
	var providers []backfill.Provider
	if cfg.AdzunaAppID != "" && cfg.AdzunaAppKey != "" {
		providers = append(providers,
			backfill.NewAdzunaProvider(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.AdzunaCountry, zlog))
	} else {
		zlog.Warn("adzuna credentials missing, backfill will find no postings")
	}

	ledger := backfill.NewLedger(backfills, jobs, providers, zlog)
	sched := scheduler.New(backfills, ledger, cfg.BackfillIntervalHours, zlog)
	if err := sched.Start(ctx); err != nil {
		zlog.Fatal("scheduler failed", zap.Error(err))
	}
	defer sched.Stop()

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	h := httpapi.NewHandler(orchestrator, resolver, profiles, jobs, matches, zlog)
	h.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("listening", zap.String("version", version), zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("http server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	cancel() // stops in-flight matching runs

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown error", zap.Error(err))
	}
	zlog.Info("stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "matching-service",
		"version": version,
	})
}
