package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leandro-lugaresi/hub"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/grovelab/grove/internal/adapters/http"
	"github.com/grovelab/grove/internal/app"
	"github.com/grovelab/grove/internal/config"
	"github.com/grovelab/grove/internal/core"
	"github.com/grovelab/grove/internal/github"
	"github.com/grovelab/grove/internal/poller"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	bus := hub.New()
	baselines := poller.NewBaselineStore()
	ghClient := github.NewClient(cfg.GitHub.BaseURL)
	scheduler := poller.NewScheduler(poller.Config{
		InitialDelay:      cfg.Poll.InitialDelay,
		Interval:          cfg.Poll.Interval,
		RateLimitInterval: cfg.Poll.RateLimitInterval,
	}, ghClient, baselines, bus)

	orch := &app.Orchestrator{
		Registry:   core.NewRegistry(),
		Rooms:      core.NewAllocator(cfg.Rooms.Initial, cfg.Rooms.Capacity),
		Guard:      core.NewSessionGuard(),
		Aggregator: core.NewAggregator(core.Weights{Commit: cfg.Progress.CommitWeight, PullRequest: cfg.Progress.PullRequestWeight}),
		Poller:     scheduler,
		Bus:        bus,
	}
	orch.Run(ctx)

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Grove server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
