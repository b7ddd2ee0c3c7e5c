package kpi

import (
	"cmp"
	"slices"
	"time"

	"github.com/nadmax/opskpi/internal/record"
)

type IdleRow struct {
	Analyst   string        `json:"analyst"`
	Day       time.Time     `json:"day"`
	Idle      time.Duration `json:"idle"`
	Formatted string        `json:"formatted"`
}

var idleSchema = record.Schema{record.ColAnalyst, record.ColStartedAt, record.ColCompletedAt}

type idleKey struct {
	analyst string
	day     time.Time
}

// IdleTime sums, per analyst and completion day, the gap between finishing a task and
// starting the next one. Gaps outside (0, IdleCap] count as zero.
func (e *Engine) IdleTime(t *record.Table) (rows []IdleRow, err error) {
	defer recoverDiagnostic("idle time", &err)

	if err := t.Require(idleSchema); err != nil {
		return nil, err
	}

	var tasks []record.Record
	t.Each(func(r record.Record) {
		if r.Analyst != "" && r.StartedAt != nil && r.CompletedAt != nil {
			tasks = append(tasks, r)
		}
	})
	slices.SortStableFunc(tasks, func(a, b record.Record) int {
		if c := cmp.Compare(a.Analyst, b.Analyst); c != 0 {
			return c
		}
		return a.StartedAt.Compare(*b.StartedAt)
	})

	sums := make(map[idleKey]time.Duration)
	for i, cur := range tasks {
		key := idleKey{analyst: cur.Analyst, day: record.DateOf(*cur.CompletedAt)}
		var gap time.Duration
		if i+1 < len(tasks) && tasks[i+1].Analyst == cur.Analyst {
			gap = e.clipIdle(tasks[i+1].StartedAt.Sub(*cur.CompletedAt))
		}
		sums[key] += gap
	}

	keys := make([]idleKey, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b idleKey) int {
		if c := cmp.Compare(a.analyst, b.analyst); c != 0 {
			return c
		}
		return a.day.Compare(b.day)
	})

	rows = make([]IdleRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, IdleRow{Analyst: k.analyst, Day: k.day, Idle: sums[k], Formatted: FormatIdle(sums[k])})
	}
	return rows, nil
}

func (e *Engine) clipIdle(gap time.Duration) time.Duration {
	if gap <= 0 || gap > e.rules.IdleCap {
		return 0
	}
	return gap
}
