package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/kpi"
	"github.com/nadmax/opskpi/internal/metrics"
	"github.com/nadmax/opskpi/internal/queue"
	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/repository"
	"github.com/nadmax/opskpi/internal/worker"
)

var ErrUnknownKind = errors.New("unknown report kind")

// EngineSource returns the engine built from the current rules.
type EngineSource func() *kpi.Engine

type Notifier interface {
	ReportReady(ctx context.Context, job *queue.Job) error
}

// Compute loads the owner's dataset for kind and runs it, recording the computation outcome.
func Compute(ctx context.Context, repo repository.DatasetRepository, engine *kpi.Engine, kind Kind, owner string, f Filter) (Output, error) {
	table, err := repo.Load(ctx, owner, kind.Dataset)
	if err != nil {
		return Output{}, fmt.Errorf("failed to load %s dataset: %w", kind.Dataset, err)
	}

	start := time.Now()
	out, err := kind.Run(engine, table, f)
	metrics.RecordComputation(kind.Name, Outcome(err), time.Since(start))
	return out, err
}

// Outcome classifies a computation error for metrics.
func Outcome(err error) string {
	var missing *record.MissingColumnsError
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &missing):
		return metrics.OutcomeMissingColumns
	default:
		return metrics.OutcomeError
	}
}

// Generator runs export jobs: it computes the report, writes the file and notifies the owner.
type Generator struct {
	repo     repository.DatasetRepository
	engine   EngineSource
	dir      string
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewGenerator(repo repository.DatasetRepository, engine EngineSource, dir string, logger *zap.Logger) *Generator {
	return &Generator{
		repo:   repo,
		engine: engine,
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

func (g *Generator) WithNotifier(n Notifier) *Generator {
	g.notifier = n
	return g
}

// Handle is the worker handler for export jobs. Invalid requests and datasets lacking the
// report's columns fail without retry.
func (g *Generator) Handle(ctx context.Context, job *queue.Job) error {
	kind, ok := Lookup(job.Report)
	if !ok {
		return worker.Permanent(fmt.Errorf("%w: %s", ErrUnknownKind, job.Report))
	}
	if !ValidFormat(job.Format) {
		return worker.Permanent(fmt.Errorf("unsupported format: %s", job.Format))
	}
	filter, err := ParseFilter(job.Params)
	if err == nil {
		err = kind.CheckFilter(filter)
	}
	if err != nil {
		return worker.Permanent(err)
	}

	g.logger.Info("generating report",
		zap.String("job_id", job.ID),
		zap.String("report", job.Report),
		zap.String("format", job.Format),
		zap.String("owner", job.Owner),
	)

	out, err := Compute(ctx, g.repo, g.engine(), kind, job.Owner, filter)
	if err != nil {
		if Outcome(err) == metrics.OutcomeMissingColumns {
			return worker.Permanent(err)
		}
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	path, err := Save(g.dir, kind.Name, job.Format, out.Sheet, g.now())
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	job.OutputPath = path

	g.logger.Info("report generated",
		zap.String("job_id", job.ID),
		zap.String("path", path),
		zap.Int("rows", len(out.Sheet.Rows)-1),
	)

	if g.notifier != nil && job.NotifyEmail != "" {
		if err := g.notifier.ReportReady(ctx, job); err != nil {
			g.logger.Warn("report notification failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return nil
}
