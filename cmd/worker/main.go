// Package main provides the scheduled worker entry point for the portfolio
// evaluator: weekly price sweeps, post ingestion and pending post processing.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-evaluator/internal/app"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/retry"
	"github.com/portfolio-evaluator/internal/worker"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()
	logger := application.Logger.WithField("component", "worker")

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		JobTimeout: cfg.Worker.JobTimeout,
		Retry: &retry.RetryConfig{
			MaxAttempts:  cfg.Pipeline.RetryMaxAttempts,
			InitialDelay: cfg.Pipeline.RetryInitialDelay,
			MaxDelay:     cfg.Pipeline.RetryMaxDelay,
			Multiplier:   2.0,
		},
		Logger: logger,
	})

	var ingestor worker.PostIngestor
	if len(cfg.Providers.Reddit.Subreddits) > 0 {
		ingestor = application.Ingestor
	}
	for _, job := range worker.PipelineJobs(cfg.Worker, application.Sweeper, ingestor) {
		if err := scheduler.AddJob(job); err != nil {
			logger.WithError(err).Fatalf("Failed to schedule job %s", job.Name)
		}
	}

	// Metrics endpoint for the scheduled jobs
	metricsServer := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	scheduler.Start()
	for _, status := range scheduler.Status() {
		logger.WithFields(map[string]interface{}{
			"job":      status.Name,
			"schedule": status.Schedule,
			"nextRun":  status.NextRun,
		}).Info("Job scheduled")
	}

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("Shutdown signal received, stopping scheduler...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Jobs still running at shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Error stopping metrics server")
	}

	logger.Info("Worker stopped. Goodbye!")
}
