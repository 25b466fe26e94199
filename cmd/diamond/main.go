// Command diamond evaluates a play-by-play corpus layer by layer and writes
// one feature record per play, resuming from its checkpoint when the input
// has not changed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/diamond/internal/adapters/http/api"
	"github.com/okian/diamond/internal/adapters/http/swagger"
	service "github.com/okian/diamond/internal/app"
	"github.com/okian/diamond/internal/config"
	"github.com/okian/diamond/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	progressInterval  = 10 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := setupLogging(cfg); err != nil {
		os.Stderr.WriteString("failed to configure logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "run failed", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

// setupLogging re-initializes the global logger in the configured format
// and level.
func setupLogging(cfg *config.Config) error {
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

func newService(cfg *config.Config) *service.Service {
	return service.New(
		service.WithLogger(logger.Get()),
		service.WithPlaysPath(cfg.PlaysPath),
		service.WithCheckpointPath(cfg.CheckpointPath),
		service.WithDatasetPath(cfg.DatasetPath),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithShardCount(cfg.ShardCount),
		service.WithQueueSize(cfg.RecordQueueSize),
		service.WithRatingParams(cfg.RatingParams()),
	)
}

func newHTTPServer(ctx context.Context, addr string, svc *service.Service) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// run evaluates the corpus, serving the inspection API meanwhile when an
// address is configured.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()
	svc := newService(cfg)
	defer svc.Stop()

	if cfg.Addr != "" {
		srv := newHTTPServer(ctx, cfg.Addr, svc)
		go func() {
			log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "HTTP server failed", logger.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(ctx, "server shutdown failed", logger.Error(err))
			}
		}()
	}

	reportCtx, cancelReport := context.WithCancel(ctx)
	defer cancelReport()
	go startProgressReporter(reportCtx, svc, progressInterval)

	res, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	log.Info(ctx, "done",
		logger.Int("layers", res.Layers),
		logger.Int("resumed_layers", res.Skipped),
		logger.Int("records", res.Records),
		logger.String("dataset", cfg.DatasetPath),
	)
	return nil
}

// startProgressReporter logs run progress until ctx is done.
func startProgressReporter(ctx context.Context, svc *service.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := svc.Progress()
			logger.Get().Info(ctx, "progress",
				logger.String("phase", p.Phase.String()),
				logger.Int("layer", p.Layer),
				logger.Int("layers", p.Layers),
				logger.Int64("plays", p.PlaysDone),
				logger.Int64("underflows", p.Underflows),
			)
		}
	}
}
