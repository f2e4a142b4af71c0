package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voxgate/voxgate/internal/cache"
	"github.com/voxgate/voxgate/internal/call"
	"github.com/voxgate/voxgate/internal/circuitbreaker"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/ratelimit"
	"github.com/voxgate/voxgate/internal/server"
	"github.com/voxgate/voxgate/internal/telemetry"
	"github.com/voxgate/voxgate/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting voxgate", "version", version, "addr", cfg.Server.Addr)

	ctx := context.Background()

	// Tracing
	if cfg.Telemetry.Tracing.Enabled {
		shutdown, err := telemetry.SetupTracing(ctx,
			cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	// Metrics
	var metrics *telemetry.Metrics
	var gatherer prometheus.Gatherer
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = telemetry.NewMetrics(reg)
		gatherer = reg
	}

	// Admission control
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		MaxConnsPerOrigin:    cfg.RateLimits.MaxConnsPerOrigin,
		MaxMessagesPerSecond: cfg.RateLimits.MaxMessagesPerSecond,
		MaxBytesPerSecond:    cfg.RateLimits.MaxBytesPerSecond,
		BucketCapacity:       cfg.RateLimits.BucketCapacity,
		CleanupInterval:      cfg.RateLimits.CleanupInterval,
		IdleBucketTimeout:    cfg.RateLimits.IdleBucketTimeout,
	})
	usage := ratelimit.NewUsageTracker()

	pipe, err := newPipeline(cfg, metrics)
	if err != nil {
		return err
	}

	// Create HTTP server
	handler := server.New(server.Deps{
		Limiter:  limiter,
		Pipeline: pipe,
		CallConfig: call.Config{
			MaxFrameBytes: cfg.Calls.MaxFrameBytes,
			QueueDepth:    cfg.Calls.QueueDepth,
		},
		Usage:      usage,
		Metrics:    metrics,
		PromGather: gatherer,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background workers. The sweeper covers idle periods where no call
	// loop triggers a cleanup pass.
	workers := worker.NewRunner(
		worker.NewBucketSweeper(limiter, cfg.RateLimits.CleanupInterval),
		worker.NewStatsReporter(limiter, usage, time.Minute),
	)
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	workerErrCh := make(chan error, 1)
	go func() {
		workerErrCh <- workers.Run(workerCtx)
	}()

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("voxgate ready", "addr", cfg.Server.Addr)

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	case err := <-workerErrCh:
		return err
	}

	// Shutdown: stop admitting, then drain in-flight calls.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("voxgate stopped")
	return nil
}

// newPipeline assembles the speech pipeline. Vendor transcriber, agent and
// synthesizer adapters are registered here; without them the gateway still
// admits, throttles and supervises calls. The synthesizer stage is served
// through the audio cache, and every registered stage gets its own circuit
// breaker.
func newPipeline(cfg *config.Config, metrics *telemetry.Metrics) (call.Pipeline, error) {
	var pipe call.Pipeline

	if cfg.Cache.Enabled {
		mem, err := cache.NewMemory(cfg.Cache.MaxSize, cfg.Cache.DefaultTTL, metrics)
		if err != nil {
			return call.Pipeline{}, err
		}
		pipe.Synthesizer = cache.NewSynthesizer(pipe.Synthesizer, mem, cfg.Cache.DefaultTTL)
	}

	return call.GuardPipeline(pipe, circuitbreaker.DefaultConfig()), nil
}
