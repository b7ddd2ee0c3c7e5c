package kpi

import (
	"cmp"
	"slices"
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

type (
	CauseCount struct {
		Cause string `json:"cause"`
		Count int    `json:"count"`
	}
	AnalystQueueTMO struct {
		Queue                 string        `json:"queue"`
		Quantity              int           `json:"quantity"`
		Registration          time.Duration `json:"registration"`
		Update                time.Duration `json:"update"`
		RegistrationFormatted string        `json:"registration_formatted"`
		UpdateFormatted       string        `json:"update_formatted"`
	}
	AnalystDayTMO struct {
		Analyst   string        `json:"analyst"`
		Day       time.Time     `json:"day"`
		Count     int           `json:"count"`
		TMO       time.Duration `json:"tmo"`
		Formatted string        `json:"formatted"`
	}
	// Period is an inclusive range of calendar days. A zero bound is open.
	Period struct {
		From time.Time `json:"from"`
		To   time.Time `json:"to"`
	}
	TMOComparison struct {
		Analyst         string        `json:"analyst"`
		Before          time.Duration `json:"before"`
		BeforeCount     int           `json:"before_count"`
		After           time.Duration `json:"after"`
		AfterCount      int           `json:"after_count"`
		BeforeFormatted string        `json:"before_formatted"`
		AfterFormatted  string        `json:"after_formatted"`
	}
)

var (
	causeSchema        = record.Schema{record.ColAnalyst, record.ColCompletion, record.ColCauseType}
	analystQueueSchema = record.Schema{record.ColAnalyst, record.ColQueue, record.ColCompletion, record.ColOperationalTime}
	analystDaySchema   = record.Schema{record.ColAnalyst, record.ColCompletion, record.ColOperationalTime, record.ColCompletedAt}
)

func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && record.CompareDates(t, p.From) < 0 {
		return false
	}
	return p.To.IsZero() || record.CompareDates(t, p.To) <= 0
}

// matchesAnalyst reports whether r belongs to analyst; an empty name matches everyone.
func matchesAnalyst(r record.Record, analyst string) bool {
	return analyst == "" || record.SameName(r.Analyst, analyst)
}

// CauseBreakdown counts the analyst's registered rows per cause type, most frequent first.
// Rows without a cause are skipped.
func (e *Engine) CauseBreakdown(t *record.Table, analyst string) ([]CauseCount, error) {
	if err := t.Require(causeSchema); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string
	t.Each(func(r record.Record) {
		if r.Completion != record.CompletionRegistered || r.CauseType == "" || !matchesAnalyst(r, analyst) {
			return
		}
		if _, ok := counts[r.CauseType]; !ok {
			order = append(order, r.CauseType)
		}
		counts[r.CauseType]++
	})

	out := make([]CauseCount, 0, len(order))
	for _, cause := range order {
		out = append(out, CauseCount{Cause: cause, Count: counts[cause]})
	}
	slices.SortStableFunc(out, func(a, b CauseCount) int { return b.Count - a.Count })
	return out, nil
}

// QueueTMOForAnalyst reports, per queue, how many rows the analyst registered or updated and
// the mean operational time of each code.
func (e *Engine) QueueTMOForAnalyst(t *record.Table, analyst string) ([]AnalystQueueTMO, error) {
	if err := t.Require(analystQueueSchema); err != nil {
		return nil, err
	}

	type queueTallies struct {
		quantity int
		reg, upd tally
	}
	buckets := make(map[string]*queueTallies)
	t.Each(func(r record.Record) {
		if !matchesAnalyst(r, analyst) {
			return
		}
		if r.Completion != record.CompletionRegistered && r.Completion != record.CompletionUpdated {
			return
		}
		b := buckets[r.Queue]
		if b == nil {
			b = &queueTallies{}
			buckets[r.Queue] = b
		}
		b.quantity++
		if r.Completion == record.CompletionRegistered {
			b.reg.add(r)
		} else {
			b.upd.add(r)
		}
	})

	out := make([]AnalystQueueTMO, 0, len(buckets))
	for _, q := range sortedKeys(buckets) {
		b := buckets[q]
		row := AnalystQueueTMO{Queue: q, Quantity: b.quantity, Registration: b.reg.timedMean(), Update: b.upd.timedMean()}
		row.RegistrationFormatted = record.FormatClock(row.Registration)
		row.UpdateFormatted = record.FormatClock(row.Update)
		out = append(out, row)
	}
	return out, nil
}

// DailyRegistrationTMOByAnalyst reports each analyst's registered rows per completion day.
// Rows without an operational time count toward the divisor.
func (e *Engine) DailyRegistrationTMOByAnalyst(t *record.Table) ([]AnalystDayTMO, error) {
	if err := t.Require(analystDaySchema); err != nil {
		return nil, err
	}

	type key struct {
		analyst string
		day     time.Time
	}
	buckets := make(map[key]*tally)
	t.Each(func(r record.Record) {
		if r.Completion != record.CompletionRegistered || r.Analyst == "" || r.CompletedAt == nil {
			return
		}
		k := key{r.Analyst, record.DateOf(*r.CompletedAt)}
		b := buckets[k]
		if b == nil {
			b = &tally{}
			buckets[k] = b
		}
		b.add(r)
	})

	out := make([]AnalystDayTMO, 0, len(buckets))
	for k, b := range buckets {
		tmo := b.mean()
		out = append(out, AnalystDayTMO{Analyst: k.analyst, Day: k.day, Count: b.count, TMO: tmo, Formatted: record.FormatClock(tmo)})
	}
	slices.SortFunc(out, func(a, b AnalystDayTMO) int {
		return cmp.Or(cmp.Compare(a.Analyst, b.Analyst), a.Day.Compare(b.Day))
	})
	return out, nil
}

// CompareTMO contrasts each analyst's registration TMO over two periods. An analyst present in
// only one period reports zero for the other. An empty selection compares every analyst.
func (e *Engine) CompareTMO(t *record.Table, selected []string, before, after Period) ([]TMOComparison, error) {
	if err := t.Require(analystDaySchema); err != nil {
		return nil, err
	}

	type pair struct{ before, after tally }
	buckets := make(map[string]*pair)
	t.Each(func(r record.Record) {
		if r.Completion != record.CompletionRegistered || r.Analyst == "" || r.CompletedAt == nil {
			return
		}
		if len(selected) > 0 && !containsName(selected, r.Analyst) {
			return
		}
		inBefore, inAfter := before.Contains(*r.CompletedAt), after.Contains(*r.CompletedAt)
		if !inBefore && !inAfter {
			return
		}
		b := buckets[r.Analyst]
		if b == nil {
			b = &pair{}
			buckets[r.Analyst] = b
		}
		if inBefore {
			b.before.add(r)
		}
		if inAfter {
			b.after.add(r)
		}
	})

	out := make([]TMOComparison, 0, len(buckets))
	for _, analyst := range sortedKeys(buckets) {
		b := buckets[analyst]
		row := TMOComparison{
			Analyst:     analyst,
			Before:      b.before.timedMean(),
			BeforeCount: b.before.count,
			After:       b.after.timedMean(),
			AfterCount:  b.after.count,
		}
		row.BeforeFormatted = record.FormatClock(row.Before)
		row.AfterFormatted = record.FormatClock(row.After)
		out = append(out, row)
	}
	return out, nil
}
