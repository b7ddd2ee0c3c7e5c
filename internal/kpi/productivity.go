package kpi

import (
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

type (
	DayProductivity struct {
		Day   time.Time `json:"day"`
		Count int       `json:"count"`
	}
	DayRegistrationProductivity struct {
		Day        time.Time `json:"day"`
		Registered int       `json:"registered"`
		Updated    int       `json:"updated"`
		Total      int       `json:"total"`
	}
)

var productivitySchema = record.Schema{record.ColCompletedAt, record.ColCompletion}

// DailyProductivity counts rows carrying a completion code per completion date. Days
// whose rows all lack a code are still listed with zero.
func (e *Engine) DailyProductivity(t *record.Table) ([]DayProductivity, error) {
	if err := t.Require(productivitySchema); err != nil {
		return nil, err
	}

	counts := make(map[time.Time]int)
	t.Each(func(r record.Record) {
		day, ok := r.CompletionDate()
		if !ok {
			return
		}
		n := counts[day]
		if r.Completion.Present() {
			n++
		}
		counts[day] = n
	})

	out := make([]DayProductivity, 0, len(counts))
	for _, day := range sortedDays(counts) {
		out = append(out, DayProductivity{Day: day, Count: counts[day]})
	}
	return out, nil
}

func (e *Engine) DailyRegistrationProductivity(t *record.Table) ([]DayRegistrationProductivity, error) {
	if err := t.Require(productivitySchema); err != nil {
		return nil, err
	}

	days := make(map[time.Time]*DayRegistrationProductivity)
	t.Each(func(r record.Record) {
		if r.Completion != record.CompletionRegistered && r.Completion != record.CompletionUpdated {
			return
		}
		day, ok := r.CompletionDate()
		if !ok {
			return
		}
		d := days[day]
		if d == nil {
			d = &DayRegistrationProductivity{Day: day}
			days[day] = d
		}
		if r.Completion == record.CompletionRegistered {
			d.Registered++
		} else {
			d.Updated++
		}
		d.Total++
	})

	out := make([]DayRegistrationProductivity, 0, len(days))
	for _, day := range sortedDays(days) {
		out = append(out, *days[day])
	}
	return out, nil
}
