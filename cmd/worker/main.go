package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nadmax/opskpi/internal/config"
	"github.com/nadmax/opskpi/internal/logger"
	"github.com/nadmax/opskpi/internal/notify"
	"github.com/nadmax/opskpi/internal/queue"
	"github.com/nadmax/opskpi/internal/report"
	"github.com/nadmax/opskpi/internal/repository/postgres"
	"github.com/nadmax/opskpi/internal/worker"
)

func main() {
	zl, err := logger.New("opskpi-worker")
	if err != nil {
		log.Fatal(err)
	}

	code := execute(zl)
	_ = zl.Sync()
	os.Exit(code)
}

// execute runs the worker until SIGINT or SIGTERM and returns the process exit code.
func execute(zl *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, zl); err != nil {
		zl.Error("worker stopped", zap.Error(err))
		return 1
	}
	zl.Info("shutting down worker")
	return 0
}

func run(ctx context.Context, zl *zap.Logger) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required")
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	repo, err := postgres.NewPostgresDatasetRepository(cfg.PostgresDSN, cfg.ExcludedAnalysts, loc, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			zl.Warn("failed to close Postgres repository", zap.Error(err))
		}
	}()

	q, err := queue.NewQueue(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := q.Close(); err != nil {
			zl.Warn("failed to close worker queue", zap.Error(err))
		}
	}()

	watcher := config.NewWatcher(watchPath(), cfg.Rules, zl)
	generator := report.NewGenerator(repo, watcher.Engine, cfg.ReportDir, zl)
	if mailer := notify.New(notify.Config(cfg.Email), zl); mailer != nil {
		generator.WithNotifier(mailer)
	}

	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%d", time.Now().Unix())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })
	for i := range cfg.Workers {
		w := worker.NewWorker(fmt.Sprintf("%s-%d", workerID, i), q, zl)
		w.SetPollInterval(cfg.PollInterval)
		w.RegisterHandler(queue.KindExportReport, generator.Handle)
		g.Go(func() error { return w.Start(gctx) })
	}

	return g.Wait()
}

func watchPath() string {
	path := config.Path("")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
