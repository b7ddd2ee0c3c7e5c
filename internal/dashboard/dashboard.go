// Package dashboard serves the team and analyst overview panels and the export job monitor.
package dashboard

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/httputil"
	"github.com/nadmax/opskpi/internal/kpi"
	"github.com/nadmax/opskpi/internal/queue"
	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/report"
	"github.com/nadmax/opskpi/internal/repository"
	"github.com/nadmax/opskpi/internal/repository/models"
)

const rankingHead = 5

type Dashboard struct {
	repo   repository.DatasetRepository
	queue  *queue.Queue
	engine report.EngineSource
	logger *zap.Logger
}

type (
	Team struct {
		TMO         kpi.TeamTMO   `json:"tmo"`
		Registered  int           `json:"registered"`
		Updated     int           `json:"updated"`
		Distributed int           `json:"distributed"`
		Analysts    int           `json:"analysts"`
		Ranking     []kpi.RankRow `json:"ranking"`
		LastUpdated time.Time     `json:"last_updated"`
	}
	Analyst struct {
		Summary   kpi.AnalystSummary    `json:"summary"`
		BestDays  kpi.BestDays          `json:"best_days"`
		Monthly   []kpi.AnalystMonthTMO `json:"monthly"`
		Idle      []kpi.IdleRow         `json:"idle"`
		IdleTotal string                `json:"idle_total"`
		Queues    []kpi.AnalystQueueTMO `json:"queues"`
		Daily     []kpi.AnalystDayTMO   `json:"daily"`
		// Causes stays empty when the export has no cause type column.
		Causes []kpi.CauseCount `json:"causes"`
	}
	ExportStats struct {
		Total           int            `json:"total"`
		Pending         int            `json:"pending"`
		Running         int            `json:"running"`
		Completed       int            `json:"completed"`
		Failed          int            `json:"failed"`
		ByReport        map[string]int `json:"by_report"`
		AverageWaitTime string         `json:"average_wait_time"`
		LastUpdated     time.Time      `json:"last_updated"`
	}
	ExportHistory struct {
		JobID       string          `json:"job_id"`
		Report      string          `json:"report"`
		Format      string          `json:"format"`
		Status      queue.JobStatus `json:"status"`
		CreatedAt   time.Time       `json:"created_at"`
		CompletedAt *time.Time      `json:"completed_at"`
		Duration    string          `json:"duration"`
		Error       string          `json:"error,omitempty"`
	}
)

func NewDashboard(repo repository.DatasetRepository, q *queue.Queue, engine report.EngineSource, logger *zap.Logger) *Dashboard {
	return &Dashboard{repo: repo, queue: q, engine: engine, logger: logger}
}

// tasks loads the owner's task dataset narrowed by the request's from/to/analyst parameters.
func (d *Dashboard) tasks(w http.ResponseWriter, r *http.Request, analyst string) (*record.Table, bool) {
	q := r.URL.Query()
	filter, err := report.ParseFilter(queue.Params{From: q.Get("from"), To: q.Get("to"), Analyst: analyst})
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	table, err := d.repo.Load(r.Context(), httputil.Owner(r), models.DatasetTasks)
	if err != nil {
		d.logger.Error("failed to load tasks", zap.Error(err))
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return filter.Apply(table), true
}

func (d *Dashboard) GetTeam(w http.ResponseWriter, r *http.Request) {
	table, ok := d.tasks(w, r, "")
	if !ok {
		return
	}
	e := d.engine()

	tmo, err := e.TeamTMO(table)
	if err != nil {
		httputil.WriteComputeError(w, err)
		return
	}
	ranking, err := e.Rank(table, nil)
	if err != nil {
		httputil.WriteComputeError(w, err)
		return
	}

	team := Team{TMO: tmo, Analysts: len(ranking), LastUpdated: time.Now()}
	for _, row := range ranking {
		team.Registered += row.Registered
		team.Updated += row.Updated
		team.Distributed += row.Distributed
	}
	team.Ranking = ranking[:min(rankingHead, len(ranking))]

	httputil.WriteJSON(w, http.StatusOK, team)
}

func (d *Dashboard) GetAnalyst(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("analyst"))
	if name == "" {
		httputil.WriteJSONError(w, "Analyst is required", http.StatusBadRequest)
		return
	}

	table, ok := d.tasks(w, r, name)
	if !ok {
		return
	}
	e := d.engine()

	var (
		out Analyst
		err error
	)
	if out.Summary, err = e.AnalystSummary(table, name); err != nil {
		httputil.WriteComputeError(w, err)
		return
	}
	if out.BestDays, err = e.BestDays(table, name); err != nil {
		httputil.WriteComputeError(w, err)
		return
	}
	if out.Monthly, err = e.TMOByAnalystMonth(table, name); err != nil {
		httputil.WriteComputeError(w, err)
		return
	}
	if out.Idle, err = e.IdleTime(table); err != nil {
		httputil.WriteComputeError(w, err)
		return
	}

	if out.Queues, err = e.QueueTMOForAnalyst(table, name); err != nil {
		httputil.WriteComputeError(w, err)
		return
	}
	if out.Daily, err = e.DailyRegistrationTMOByAnalyst(table); err != nil {
		httputil.WriteComputeError(w, err)
		return
	}
	var missing *record.MissingColumnsError
	if out.Causes, err = e.CauseBreakdown(table, name); err != nil && !errors.As(err, &missing) {
		httputil.WriteComputeError(w, err)
		return
	}

	var idle time.Duration
	for _, row := range out.Idle {
		idle += row.Idle
	}
	out.IdleTotal = record.FormatClock(idle)

	httputil.WriteJSON(w, http.StatusOK, out)
}

func (d *Dashboard) GetExportStats(w http.ResponseWriter, r *http.Request) {
	jobs, err := d.queue.List(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, exportStats(jobs, time.Now()))
}

func exportStats(jobs []*queue.Job, now time.Time) ExportStats {
	stats := ExportStats{
		Total:       len(jobs),
		ByReport:    make(map[string]int),
		LastUpdated: now,
	}

	var totalWait time.Duration
	waitCount := 0

	for _, job := range jobs {
		switch job.Status {
		case queue.StatusPending:
			stats.Pending++
		case queue.StatusRunning:
			stats.Running++
		case queue.StatusCompleted:
			stats.Completed++
		case queue.StatusFailed:
			stats.Failed++
		}

		stats.ByReport[job.Report]++

		if job.StartedAt != nil {
			totalWait += job.StartedAt.Sub(job.CreatedAt)
			waitCount++
		}
	}

	if waitCount > 0 {
		stats.AverageWaitTime = (totalWait / time.Duration(waitCount)).Round(time.Millisecond).String()
	} else {
		stats.AverageWaitTime = "N/A"
	}
	return stats
}

// GetRecentExports lists exports finished in the last 24 hours.
func (d *Dashboard) GetRecentExports(w http.ResponseWriter, r *http.Request) {
	jobs, err := d.queue.List(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, recentExports(jobs, time.Now()))
}

func recentExports(jobs []*queue.Job, now time.Time) []ExportHistory {
	cutoff := now.Add(-24 * time.Hour)
	history := []ExportHistory{}

	for _, job := range jobs {
		if job.CompletedAt == nil || job.CompletedAt.Before(cutoff) {
			continue
		}

		var duration string
		if job.StartedAt != nil {
			duration = job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond).String()
		}

		history = append(history, ExportHistory{
			JobID:       job.ID,
			Report:      job.Report,
			Format:      job.Format,
			Status:      job.Status,
			CreatedAt:   job.CreatedAt,
			CompletedAt: job.CompletedAt,
			Duration:    duration,
			Error:       job.Error,
		})
	}
	return history
}
