package kpi

import (
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

type (
	AnalystSummary struct {
		Analyst         string        `json:"analyst"`
		Finalized       int           `json:"finalized"`
		Distributed     int           `json:"distributed"`
		Updated         int           `json:"updated"`
		TMORegistration time.Duration `json:"tmo_registration"`
		TMOUpdate       time.Duration `json:"tmo_update"`
		TMOOverall      time.Duration `json:"tmo_overall"`
		WorkedDays      int           `json:"worked_days"`
		PerDay          int           `json:"per_day"`
	}
	BestDays struct {
		TMODay          *time.Time    `json:"tmo_day,omitempty"`
		TMO             time.Duration `json:"tmo"`
		RegistrationDay *time.Time    `json:"registration_day,omitempty"`
		Registrations   int           `json:"registrations"`
	}
)

var (
	summarySchema  = record.Schema{record.ColAnalyst, record.ColStatus, record.ColQueue, record.ColCompletion, record.ColOperationalTime, record.ColCompletedAt}
	bestDaysSchema = record.Schema{record.ColAnalyst, record.ColStatus, record.ColCompletion, record.ColOperationalTime, record.ColCompletedAt}
)

// AnalystSummary covers the analyst's finished rows outside the unknown queue, with
// doubt-queue outliers dropped. Finalized counts every row not marked out of scope.
func (e *Engine) AnalystSummary(t *record.Table, analyst string) (AnalystSummary, error) {
	if err := t.Require(summarySchema); err != nil {
		return AnalystSummary{}, err
	}

	var (
		finalized, distributed, updated tally
		days                            = make(map[time.Time]struct{})
	)
	t.Each(func(r record.Record) {
		if !record.SameName(r.Analyst, analyst) || r.Status != record.StatusFinished {
			return
		}
		if record.SameName(r.Queue, e.rules.UnknownQueue) || e.doubtful(r) {
			return
		}
		if r.Completion != record.CompletionOutOfScope {
			finalized.add(r)
		}
		switch r.Completion {
		case record.CompletionDistributed:
			distributed.add(r)
		case record.CompletionUpdated:
			updated.add(r)
		case record.CompletionRegistered:
			if day, ok := r.CompletionDate(); ok {
				days[day] = struct{}{}
			}
		}
	})

	s := AnalystSummary{
		Analyst:         analyst,
		Finalized:       finalized.count,
		Distributed:     distributed.count,
		Updated:         updated.count,
		TMORegistration: finalized.mean(),
		TMOUpdate:       updated.mean(),
		TMOOverall: average(
			finalized.total+updated.total+distributed.total,
			finalized.count+updated.count+distributed.count,
		),
		WorkedDays: len(days),
	}
	if s.WorkedDays > 0 {
		s.PerDay = s.Finalized / s.WorkedDays
	}
	return s, nil
}

// BestDays finds the analyst's closed registration day with the lowest TMO and the day with
// the most registrations. Ties resolve to the earliest day.
func (e *Engine) BestDays(t *record.Table, analyst string) (BestDays, error) {
	if err := t.Require(bestDaysSchema); err != nil {
		return BestDays{}, err
	}

	registered := t.Filter(func(r record.Record) bool {
		return r.Completion == record.CompletionRegistered && record.SameName(r.Analyst, analyst)
	})

	var best BestDays
	for _, d := range tmoByDay(registered, func(r record.Record) bool { return r.Status.Closed() }) {
		if best.TMODay == nil || d.TMO < best.TMO {
			day := d.Day
			best.TMODay, best.TMO = &day, d.TMO
		}
	}

	counts := make(map[time.Time]int)
	registered.Each(func(r record.Record) {
		if day, ok := r.CompletionDate(); ok {
			counts[day]++
		}
	})
	for _, day := range sortedDays(counts) {
		if counts[day] > best.Registrations {
			d := day
			best.RegistrationDay, best.Registrations = &d, counts[day]
		}
	}
	return best, nil
}
