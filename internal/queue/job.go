package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	JobStatus string
	JobKind   string
)

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

const KindExportReport JobKind = "export_report"

// Params narrows the dataset a report is computed from. Dates use YYYY-MM-DD. AfterFrom and
// AfterTo bound the second period of a before/after comparison.
type Params struct {
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	AfterFrom string   `json:"after_from,omitempty"`
	AfterTo   string   `json:"after_to,omitempty"`
	Analyst   string   `json:"analyst,omitempty"`
	Analysts  []string `json:"analysts,omitempty"`
}

type Job struct {
	ID          string     `json:"id"`
	Kind        JobKind    `json:"kind"`
	Report      string     `json:"report"`
	Owner       string     `json:"owner"`
	Format      string     `json:"format"`
	Params      Params     `json:"params"`
	NotifyEmail string     `json:"notify_email,omitempty"`
	Status      JobStatus  `json:"status"`
	MaxRetries  int        `json:"max_retries"`
	Retries     int        `json:"retries"`
	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	OutputPath  string     `json:"output_path,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewExportJob builds a pending export of report for owner, runnable immediately.
func NewExportJob(owner, report, format string, params Params) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.New().String(),
		Kind:        KindExportReport,
		Report:      report,
		Owner:       owner,
		Format:      format,
		Params:      params,
		Status:      StatusPending,
		MaxRetries:  3,
		CreatedAt:   now,
		ScheduledAt: now,
	}
}

func (j *Job) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	return string(data), err
}

func JobFromJSON(data string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, err
	}
	return &job, nil
}
