package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"mediaqueue/config"
	"mediaqueue/credentials"
	"mediaqueue/encoder"
	"mediaqueue/failures"
	"mediaqueue/job"
	"mediaqueue/logger"
	"mediaqueue/metrics"
	"mediaqueue/probe"
	"mediaqueue/records"
	"mediaqueue/routes"
	"mediaqueue/success"
	"mediaqueue/taskqueue"
	writerbackends "mediaqueue/writerBackends"
)

// retention is how long success and failure records are kept.
const retention = 30 * 24 * time.Hour

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "mediaqueue",
		Short:        "Media conversion queue server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := logger.ParseLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	if err := logger.Init(settings.LogFile, true, level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()
	logger.Info("Starting mediaqueue server initialization")

	if settings.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: settings.SentryDSN}); err != nil {
			logger.Errorf("Sentry initialization failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	engines := encoder.NewRegistry()
	if !encoder.RegisterDefaults(engines, settings.FFmpegPath) {
		logger.Fatalf("ffmpeg not found at %q, cannot convert media", settings.FFmpegPath)
	}
	logger.Infof("Registered encoders: %v", engines.Formats())

	for _, dir := range []string{settings.TempPath, settings.MediaPath, settings.DataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger.Debug("Initializing records database")
	store, err := records.OpenSQLite(config.RecordsDBPath(settings.DataDir))
	if err != nil {
		logger.Fatalf("Failed to initialize records store: %v", err)
	}
	defer store.Close()

	logger.Debug("Initializing credentials database")
	creds, err := credentials.Open(config.CredentialsDBPath(settings.DataDir))
	if err != nil {
		logger.Fatalf("Failed to initialize credentials store: %v", err)
	}
	defer creds.Close()

	logger.Debug("Initializing failures database")
	failureStore, err := failures.Open(config.FailuresDBPath(settings.DataDir))
	if err != nil {
		logger.Fatalf("Failed to initialize failure store: %v", err)
	}
	defer failureStore.Close()

	logger.Debug("Initializing success database")
	successStore, err := success.Open(config.SuccessDBPath(settings.DataDir))
	if err != nil {
		logger.Fatalf("Failed to initialize success store: %v", err)
	}
	defer successStore.Close()
	if err := successStore.CheckHealth(); err != nil {
		logger.Warnf("Success database health check failed: %v", err)
	}

	journal, err := taskqueue.OpenJournal(config.JournalDBPath(settings.DataDir))
	if err != nil {
		logger.Fatalf("Failed to open job journal: %v", err)
	}
	defer journal.Close()
	logger.Info("Databases initialized successfully")

	m := metrics.New()
	tracker := job.NewTracker()
	retry := &job.RetryController{
		Engines:        engines,
		Negotiator:     probe.NewNegotiator(probe.Default(settings.FFprobePath)),
		TempPath:       settings.TempPath,
		MediaPath:      settings.MediaPath,
		MaxRetries:     settings.MaxRetries,
		AttemptTimeout: settings.AttemptTimeout,
	}
	processor := job.NewProcessor(retry, store, tracker, m)
	processor.Success = successStore
	processor.Failures = failureStore
	processor.Report = job.ReportToSentry
	if mirror := writerbackends.NewMirror(settings.Mirrors, creds, config.GetDirectServeBaseDir()); mirror.Enabled() {
		processor.Mirror = mirror
	}

	pool := taskqueue.NewPool(settings.Workers, processor.Handle, taskqueue.WithJournal(journal))
	m.WatchQueueDepth(pool.QueueDepth)
	if n, err := pool.Recover(); err != nil {
		logger.Errorf("Failed to replay journaled jobs: %v", err)
	} else if n > 0 {
		logger.Infof("Replayed %d journaled jobs", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	logger.Info("Starting cleanup routine (runs every 24 hours)")
	go cleanupRoutine(ctx, successStore, failureStore, tracker)

	srv := &routes.Server{
		Settings:    &settings,
		Queue:       pool,
		Records:     store,
		Tracker:     tracker,
		Success:     successStore,
		Failures:    failureStore,
		Credentials: creds,
		Metrics:     m,
	}
	httpServer := &http.Server{
		Addr:              settings.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("mediaqueue server listening on %s", settings.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Infof("Received %s, shutting down", s)
	case err := <-serverErr:
		logger.Errorf("Server failed: %v", err)
	}

	shutdown(httpServer, pool, settings.DrainTimeout, cancel)
	logger.Info("Shutdown complete")
	return nil
}

// shutdown stops the HTTP server, then lets running conversions finish within
// drain. Only jobs still running when the window ends are interrupted
// through cancel and left in the journal.
func shutdown(httpServer *http.Server, pool *taskqueue.Pool, drain time.Duration, cancel context.CancelFunc) {
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.Errorf("HTTP server shutdown: %v", err)
	}

	logger.Infof("Waiting up to %s for %d running jobs", drain, pool.InFlight())
	if err := pool.Drain(drain, cancel); err != nil {
		logger.Warnf("Worker pool drain: %v", err)
	}
}

// cleanupRoutine periodically cleans up old success and failure records
func cleanupRoutine(ctx context.Context, successStore *success.Store, failureStore *failures.Store, tracker *job.Tracker) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			logger.Info("Running scheduled cleanup of old records")

			if n, err := successStore.CleanupOldRecords(retention); err != nil {
				logger.Errorf("Failed to cleanup old success records: %v", err)
			} else {
				logger.Infof("Removed %d success records older than %v", n, retention)
			}

			if n, err := failureStore.CleanupOldRecords(retention); err != nil {
				logger.Errorf("Failed to cleanup old failure records: %v", err)
			} else {
				logger.Infof("Removed %d failure records older than %v", n, retention)
			}

			if n := tracker.Forget(retention); n > 0 {
				logger.Debugf("Forgot %d finished jobs", n)
			}
		}
	}
}
