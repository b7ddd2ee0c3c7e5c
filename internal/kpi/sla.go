package kpi

import (
	"math"
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

type (
	// SLAParams bounds the creation date; a zero From or To leaves that side open.
	// To is inclusive of the whole day.
	SLAParams struct {
		From         time.Time
		To           time.Time
		Queues       []string
		TaskTypes    []string
		DeadlineDays int
	}
	SLARow struct {
		Queue   string  `json:"queue"`
		Entries int     `json:"entries"`
		Treated int     `json:"treated"`
		OnTime  int     `json:"on_time"`
		Percent float64 `json:"percent"`
	}
	SLAReport struct {
		Queues  []SLARow `json:"queues"`
		Entries int      `json:"entries"`
		OnTime  int      `json:"on_time"`
		Overall float64  `json:"overall"`
	}
	QueueCount struct {
		Queue string `json:"queue"`
		Count int    `json:"count"`
	}
	IntakeDay struct {
		Day    time.Time    `json:"day"`
		Queues []QueueCount `json:"queues"`
		Total  int          `json:"total"`
	}
	TreatmentRow struct {
		Queue   string `json:"queue"`
		Entries int    `json:"entries"`
		Treated int    `json:"treated"`
	}
	TreatmentDay struct {
		Day     time.Time      `json:"day"`
		Queues  []TreatmentRow `json:"queues"`
		Entries int            `json:"entries"`
		Treated int            `json:"treated"`
		Rate    float64        `json:"rate"`
	}
)

var (
	slaSchema       = record.Schema{record.ColCreatedAt, record.ColCompletedAt, record.ColQueue, record.ColTaskType}
	intakeSchema    = record.Schema{record.ColCreatedAt, record.ColQueue, record.ColTaskType}
	treatmentSchema = record.Schema{record.ColCreatedAt, record.ColCompletedAt, record.ColQueue}
)

// Params returns SLA parameters for the range using the configured queues, task types and deadline.
func (e *Engine) Params(from, to time.Time) SLAParams {
	return SLAParams{
		From:         from,
		To:           to,
		Queues:       e.rules.SLA.Queues,
		TaskTypes:    e.rules.SLA.TaskTypes,
		DeadlineDays: e.rules.SLA.DeadlineDays,
	}
}

func (p SLAParams) inRange(created time.Time) bool {
	return Period{From: p.From, To: p.To}.Contains(created)
}

// monitoredQueue returns the configured name matching queue.
func (p SLAParams) monitoredQueue(queue string) (string, bool) {
	for _, q := range p.Queues {
		if record.SameName(q, queue) {
			return q, true
		}
	}
	return "", false
}

// onTime reports whether the protocol closed within the deadline, counting whole elapsed days.
func onTime(created, completed time.Time, deadline int) bool {
	days := math.Floor(completed.Sub(created).Hours() / 24)
	return days <= float64(deadline)
}

// SLA evaluates compliance per monitored queue. Every monitored queue is listed, with 0%
// when it has no entries.
func (e *Engine) SLA(t *record.Table, p SLAParams) (SLAReport, error) {
	if err := t.Require(slaSchema); err != nil {
		return SLAReport{}, err
	}

	rows := make(map[string]*SLARow, len(p.Queues))
	for _, q := range p.Queues {
		rows[q] = &SLARow{Queue: q}
	}
	t.Each(func(r record.Record) {
		if r.CreatedAt == nil || !p.inRange(*r.CreatedAt) || !containsName(p.TaskTypes, r.TaskType) {
			return
		}
		q, ok := p.monitoredQueue(r.Queue)
		if !ok {
			return
		}
		row := rows[q]
		row.Entries++
		if r.CompletedAt == nil {
			return
		}
		row.Treated++
		if onTime(*r.CreatedAt, *r.CompletedAt, p.DeadlineDays) {
			row.OnTime++
		}
	})

	var report SLAReport
	seen := make(map[string]bool, len(p.Queues))
	for _, q := range p.Queues {
		if seen[q] {
			continue
		}
		seen[q] = true
		row := rows[q]
		row.Percent = percent(row.OnTime, row.Entries)
		report.Queues = append(report.Queues, *row)
		report.Entries += row.Entries
		report.OnTime += row.OnTime
	}
	report.Overall = percent(report.OnTime, report.Entries)
	return report, nil
}

// IntakeByDay counts protocols of the monitored queues and task types per creation day.
func (e *Engine) IntakeByDay(t *record.Table, p SLAParams) ([]IntakeDay, error) {
	if err := t.Require(intakeSchema); err != nil {
		return nil, err
	}

	days := make(map[time.Time]map[string]int)
	t.Each(func(r record.Record) {
		if r.CreatedAt == nil || !p.inRange(*r.CreatedAt) || !containsName(p.TaskTypes, r.TaskType) {
			return
		}
		q, ok := p.monitoredQueue(r.Queue)
		if !ok {
			return
		}
		day := record.DateOf(*r.CreatedAt)
		if days[day] == nil {
			days[day] = make(map[string]int)
		}
		days[day][q]++
	})

	out := make([]IntakeDay, 0, len(days))
	for _, day := range sortedDays(days) {
		entry := IntakeDay{Day: day}
		for _, q := range sortedKeys(days[day]) {
			n := days[day][q]
			entry.Queues = append(entry.Queues, QueueCount{Queue: q, Count: n})
			entry.Total += n
		}
		out = append(out, entry)
	}
	return out, nil
}

// DailyTreatment reports, per creation day, the entries and treated protocols of every
// monitored queue regardless of task type.
func (e *Engine) DailyTreatment(t *record.Table, p SLAParams) ([]TreatmentDay, error) {
	if err := t.Require(treatmentSchema); err != nil {
		return nil, err
	}

	days := make(map[time.Time]map[string]*TreatmentRow)
	t.Each(func(r record.Record) {
		if r.CreatedAt == nil || !p.inRange(*r.CreatedAt) {
			return
		}
		q, ok := p.monitoredQueue(r.Queue)
		if !ok {
			return
		}
		day := record.DateOf(*r.CreatedAt)
		if days[day] == nil {
			days[day] = make(map[string]*TreatmentRow)
		}
		row := days[day][q]
		if row == nil {
			row = &TreatmentRow{Queue: q}
			days[day][q] = row
		}
		row.Entries++
		if r.CompletedAt != nil {
			row.Treated++
		}
	})

	out := make([]TreatmentDay, 0, len(days))
	for _, day := range sortedDays(days) {
		entry := TreatmentDay{Day: day}
		for _, q := range sortedKeys(days[day]) {
			row := days[day][q]
			entry.Queues = append(entry.Queues, *row)
			entry.Entries += row.Entries
			entry.Treated += row.Treated
		}
		entry.Rate = percent(entry.Treated, entry.Entries)
		out = append(out, entry)
	}
	return out, nil
}
