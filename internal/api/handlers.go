// Package api exposes dataset upload, KPI reports, export jobs and the dashboard over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/dashboard"
	"github.com/nadmax/opskpi/internal/httputil"
	"github.com/nadmax/opskpi/internal/ingest"
	"github.com/nadmax/opskpi/internal/metrics"
	"github.com/nadmax/opskpi/internal/queue"
	"github.com/nadmax/opskpi/internal/report"
	"github.com/nadmax/opskpi/internal/repository"
	"github.com/nadmax/opskpi/internal/repository/models"
)

const maxUploadSize = 64 << 20

type API struct {
	repo   repository.DatasetRepository
	queue  *queue.Queue
	engine report.EngineSource
	loc    *time.Location
	logger *zap.Logger
	mux    *http.ServeMux
}

type (
	UploadResponse struct {
		Dataset    models.Dataset       `json:"dataset"`
		Stats      models.DedupStats    `json:"stats"`
		Quarantine []ingest.Quarantined `json:"quarantine"`
		Ignored    []string             `json:"ignored_columns,omitempty"`
	}
	CreateExportRequest struct {
		Report      string       `json:"report"`
		Format      string       `json:"format"`
		Params      queue.Params `json:"params"`
		NotifyEmail string       `json:"notify_email"`
		ScheduleIn  *int         `json:"schedule_in"`
	}
	KindInfo struct {
		Name    string         `json:"name"`
		Title   string         `json:"title"`
		Dataset models.Dataset `json:"dataset"`
	}
)

func NewAPI(repo repository.DatasetRepository, q *queue.Queue, engine report.EngineSource, loc *time.Location, logger *zap.Logger) *API {
	api := &API{
		repo:   repo,
		queue:  q,
		engine: engine,
		loc:    loc,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("POST /api/datasets/{dataset}", a.uploadDataset)
	a.mux.HandleFunc("GET /api/datasets/{dataset}", a.datasetSummary)

	a.mux.HandleFunc("GET /api/reports", a.listKinds)
	a.mux.HandleFunc("GET /api/reports/{kind}", a.runReport)

	a.mux.HandleFunc("POST /api/exports", a.createExport)
	a.mux.HandleFunc("GET /api/exports", a.listExports)
	a.mux.HandleFunc("GET /api/exports/{id}", a.getExport)

	dash := dashboard.NewDashboard(a.repo, a.queue, a.engine, a.logger)
	a.mux.HandleFunc("GET /api/dashboard/team", dash.GetTeam)
	a.mux.HandleFunc("GET /api/dashboard/analysts/{analyst}", dash.GetAnalyst)
	a.mux.HandleFunc("GET /api/dashboard/exports", dash.GetExportStats)
	a.mux.HandleFunc("GET /api/dashboard/exports/recent", dash.GetRecentExports)

	a.mux.HandleFunc("GET /health", a.health)
	a.mux.Handle("GET /metrics", promhttp.Handler())
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func datasetParam(w http.ResponseWriter, r *http.Request) (models.Dataset, bool) {
	ds, err := models.ParseDataset(r.PathValue("dataset"))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusNotFound)
		return "", false
	}
	return ds, true
}

// uploadBody returns the spreadsheet and its file name, from a multipart "file" field or
// from the raw body named by the filename query parameter.
func uploadBody(r *http.Request) (io.Reader, string, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, r.URL.Query().Get("filename"), func() {}, nil
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", nil, fmt.Errorf("missing upload field 'file': %w", err)
	}
	return file, header.Filename, func() { _ = file.Close() }, nil
}

func (a *API) uploadDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := datasetParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	body, name, closeBody, err := uploadBody(r)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer closeBody()

	result, err := ingest.Read(body, name, a.loc)
	if err != nil {
		httputil.WriteJSONError(w, fmt.Sprintf("Failed to read spreadsheet: %v", err), http.StatusBadRequest)
		return
	}

	owner := httputil.Owner(r)
	stats, err := a.repo.Append(r.Context(), owner, ds, result.Table)
	if err != nil {
		a.logger.Error("failed to store dataset", zap.String("owner", owner), zap.String("dataset", string(ds)), zap.Error(err))
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.RecordIngest(ds, stats, len(result.Quarantine))

	a.logger.Info("dataset uploaded",
		zap.String("owner", owner),
		zap.String("dataset", string(ds)),
		zap.Int("inserted", stats.Inserted),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("quarantined", len(result.Quarantine)),
	)

	quarantine := result.Quarantine
	if quarantine == nil {
		quarantine = []ingest.Quarantined{}
	}
	httputil.WriteJSON(w, http.StatusOK, UploadResponse{
		Dataset:    ds,
		Stats:      stats,
		Quarantine: quarantine,
		Ignored:    result.Ignored,
	})
}

func (a *API) datasetSummary(w http.ResponseWriter, r *http.Request) {
	ds, ok := datasetParam(w, r)
	if !ok {
		return
	}

	summary, err := a.repo.Summary(r.Context(), httputil.Owner(r), ds)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (a *API) listKinds(w http.ResponseWriter, _ *http.Request) {
	kinds := report.Kinds()
	out := make([]KindInfo, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, KindInfo{Name: k.Name, Title: k.Title, Dataset: k.Dataset})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// requestParams reads from/to/analyst and the analysts list, given either repeated or
// comma-separated.
func requestParams(r *http.Request) queue.Params {
	q := r.URL.Query()
	p := queue.Params{
		From:      q.Get("from"),
		To:        q.Get("to"),
		AfterFrom: q.Get("after_from"),
		AfterTo:   q.Get("after_to"),
		Analyst:   q.Get("analyst"),
	}
	for _, v := range q["analysts"] {
		for name := range strings.SplitSeq(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				p.Analysts = append(p.Analysts, name)
			}
		}
	}
	return p
}

func (a *API) runReport(w http.ResponseWriter, r *http.Request) {
	kind, ok := report.Lookup(r.PathValue("kind"))
	if !ok {
		httputil.WriteJSONError(w, fmt.Sprintf("unknown report kind: %s", r.PathValue("kind")), http.StatusNotFound)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = report.FormatJSON
	}
	if !report.ValidFormat(format) {
		httputil.WriteJSONError(w, fmt.Sprintf("unsupported format: %s", format), http.StatusBadRequest)
		return
	}

	filter, err := report.ParseFilter(requestParams(r))
	if err == nil {
		err = kind.CheckFilter(filter)
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := report.Compute(r.Context(), a.repo, a.engine(), kind, httputil.Owner(r), filter)
	if err != nil {
		if report.Outcome(err) == metrics.OutcomeError {
			a.logger.Error("report failed", zap.String("kind", kind.Name), zap.Error(err))
		}
		httputil.WriteComputeError(w, err)
		return
	}

	download := format == report.FormatCSV || format == report.FormatXLSX || r.URL.Query().Get("download") != ""
	if !download {
		httputil.WriteJSON(w, http.StatusOK, out)
		return
	}

	w.Header().Set("Content-Type", report.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="opskpi_%s.%s"`, kind.Name, format))
	if err := report.Encode(w, format, out.Sheet, time.Now()); err != nil {
		a.logger.Error("failed to encode report", zap.String("kind", kind.Name), zap.Error(err))
	}
}

func (a *API) createExport(w http.ResponseWriter, r *http.Request) {
	var req CreateExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	kind, ok := report.Lookup(req.Report)
	if !ok {
		httputil.WriteJSONError(w, fmt.Sprintf("unknown report kind: %s", req.Report), http.StatusBadRequest)
		return
	}
	if req.Format == "" {
		req.Format = report.FormatCSV
	}
	if !report.ValidFormat(req.Format) {
		httputil.WriteJSONError(w, fmt.Sprintf("unsupported format: %s", req.Format), http.StatusBadRequest)
		return
	}
	filter, err := report.ParseFilter(req.Params)
	if err == nil {
		err = kind.CheckFilter(filter)
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := queue.NewExportJob(httputil.Owner(r), req.Report, req.Format, req.Params)
	job.NotifyEmail = strings.TrimSpace(req.NotifyEmail)
	if req.ScheduleIn != nil && *req.ScheduleIn > 0 {
		job.ScheduledAt = time.Now().Add(time.Duration(*req.ScheduleIn) * time.Second)
	}

	if err := a.queue.Enqueue(r.Context(), job); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.RecordExportEnqueued(job.Report, job.Format)

	httputil.WriteJSON(w, http.StatusCreated, job)
}

// listExports returns the requesting owner's jobs.
func (a *API) listExports(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.queue.List(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	owner := httputil.Owner(r)
	out := []*queue.Job{}
	for _, job := range jobs {
		if job.Owner == owner {
			out = append(out, job)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (a *API) getExport(w http.ResponseWriter, r *http.Request) {
	job, err := a.queue.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, queue.ErrJobNotFound):
		httputil.WriteJSONError(w, "Export not found", http.StatusNotFound)
		return
	case err != nil:
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if job.Owner != httputil.Owner(r) {
		httputil.WriteJSONError(w, "Export not found", http.StatusNotFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}
