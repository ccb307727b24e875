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

	"github.com/bnema/peakclips/config"
	"github.com/bnema/peakclips/internal/adapter/converter/ffmpeg"
	"github.com/bnema/peakclips/internal/adapter/fetch"
	HTTPAdapter "github.com/bnema/peakclips/internal/adapter/http"
	"github.com/bnema/peakclips/internal/adapter/storage/memory"
	sqlitestore "github.com/bnema/peakclips/internal/adapter/storage/sqlite"
	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/port"
	"github.com/bnema/peakclips/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	log := logger.Named("serve")

	for _, dir := range []string{cfg.DataDir, cfg.UploadDir(), cfg.ClipsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	var (
		store       port.JobStore
		interrupted func() ([]*domain.Job, error)
	)
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := sqlitestore.NewStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = s.Close() }()
		store = s
		interrupted = s.Interrupted
	default:
		store = memory.NewStore()
	}

	converter := ffmpeg.NewConverter(cfg.FFmpegPath, cfg.FFprobePath)
	fetcher := fetch.NewRouter(
		fetch.NewHTTPDownloader(int64(cfg.MaxUploadMB)*1024*1024),
		fetch.NewYtDlp(cfg.YtDlpPath),
	)
	eventBus := service.NewEventBus()
	pool := service.NewWorkerPool(cfg.Workers)

	orch := service.NewOrchestrator(
		store,
		converter,
		service.NewPeakDetector(converter, cfg.NumClips),
		service.NewPeakCache(0),
		eventBus,
		service.OrchestratorConfig{
			ClipsDir:      cfg.ClipsDir(),
			PublicBaseURL: cfg.PublicBaseURL,
			ClipSeconds:   cfg.ClipSeconds,
			ClipTimeout:   cfg.ClipTimeout,
		},
	)
	jobs := service.NewJobService(store, fetcher, pool, orch, service.JobServiceConfig{
		UploadDir:    cfg.UploadDir(),
		ClipsDir:     cfg.ClipsDir(),
		FetchTimeout: cfg.FetchTimeout,
	})

	if interrupted != nil {
		stale, err := interrupted()
		if err != nil {
			return fmt.Errorf("list interrupted jobs: %w", err)
		}
		if n := jobs.FailInterrupted(stale); n > 0 {
			log.Info("failed jobs interrupted by restart", zap.Int("count", n))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitor := service.NewJanitor(store, cfg.ClipsDir(), cfg.UploadDir(), cfg.Retention)
	if janitor.Enabled() {
		go janitor.Run(ctx)
	}

	server := HTTPAdapter.NewServer(jobs, eventBus, HTTPAdapter.Config{
		MaxUploadMB:       cfg.MaxUploadMB,
		ResultRedirectURL: cfg.ResultRedirectURL,
		CORSOrigins:       cfg.CORSOrigins,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", cfg.Addr()),
			zap.String("store", cfg.Store),
			zap.Int("workers", cfg.Workers))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", zap.Error(err))
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn("workers did not finish before deadline", zap.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}
