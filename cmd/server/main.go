package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nadmax/opskpi/internal/api"
	"github.com/nadmax/opskpi/internal/config"
	"github.com/nadmax/opskpi/internal/logger"
	"github.com/nadmax/opskpi/internal/middleware"
	"github.com/nadmax/opskpi/internal/notify"
	"github.com/nadmax/opskpi/internal/queue"
	"github.com/nadmax/opskpi/internal/report"
	"github.com/nadmax/opskpi/internal/repository"
	"github.com/nadmax/opskpi/internal/repository/postgres"
	"github.com/nadmax/opskpi/internal/worker"
)

func main() {
	zl, err := logger.New("opskpi-server")
	if err != nil {
		log.Fatal(err)
	}

	code := execute(zl)
	_ = zl.Sync()
	os.Exit(code)
}

// execute runs the server until SIGINT or SIGTERM and returns the process exit code.
func execute(zl *zap.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, zl); err != nil {
		zl.Error("server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, zl *zap.Logger) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	repo, embedded, err := openRepository(ctx, cfg, loc, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			zl.Warn("failed to close repository", zap.Error(err))
		}
	}()

	q, err := queue.NewQueue(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := q.Close(); err != nil {
			zl.Warn("failed to close server queue", zap.Error(err))
		}
	}()

	watcher := config.NewWatcher(watchPath(), cfg.Rules, zl)
	handler := middleware.AccessLog(zl)(middleware.MetricsMiddleware(api.NewAPI(repo, q, watcher.Engine, loc, zl)))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zl.Info("server starting", zap.String("addr", srv.Addr), zap.String("redis", cfg.RedisAddr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	g.Go(func() error {
		startMetricsCollector(gctx, q, cfg.MetricsInterval, zl)
		return nil
	})

	// The in-memory repository lives in this process, so exports must run here too.
	if embedded {
		generator := report.NewGenerator(repo, watcher.Engine, cfg.ReportDir, zl)
		if mailer := notify.New(notify.Config(cfg.Email), zl); mailer != nil {
			generator.WithNotifier(mailer)
		}
		for i := range cfg.Workers {
			w := worker.NewWorker(embeddedWorkerID(i), q, zl)
			w.SetPollInterval(cfg.PollInterval)
			w.RegisterHandler(queue.KindExportReport, generator.Handle)
			g.Go(func() error { return w.Start(gctx) })
		}
	}

	return g.Wait()
}

// openRepository connects to Postgres when a DSN is configured and otherwise keeps datasets
// in memory. The boolean reports the in-memory case.
func openRepository(ctx context.Context, cfg config.Config, loc *time.Location, zl *zap.Logger) (repository.DatasetRepository, bool, error) {
	if cfg.PostgresDSN == "" {
		zl.Warn("POSTGRES_DSN not set: datasets are kept in memory")
		return repository.NewMemoryRepository(cfg.ExcludedAnalysts), true, nil
	}

	repo, err := postgres.NewPostgresDatasetRepository(cfg.PostgresDSN, cfg.ExcludedAnalysts, loc, zl)
	if err != nil {
		return nil, false, err
	}
	if err := repo.Migrate(ctx); err != nil {
		_ = repo.Close()
		return nil, false, err
	}
	return repo, false, nil
}

// watchPath is the config file to hot-reload, or empty when none exists.
func watchPath() string {
	path := config.Path("")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func embeddedWorkerID(i int) string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-embedded-%d", host, i)
}
