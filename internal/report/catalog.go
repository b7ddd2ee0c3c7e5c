// Package report renders KPI results as tabular sheets and exports them as CSV, JSON or
// XLSX files. Each report kind names the dataset it reads and the engine operation it runs.
package report

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/opskpi/internal/kpi"
	"github.com/nadmax/opskpi/internal/queue"
	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/repository/models"
)

const dateLayout = "2006-01-02"

var ErrInvalidFilter = errors.New("invalid filter")

// Sheet is a table whose first row is the header.
type Sheet struct {
	Title string
	Rows  [][]string
}

func (s Sheet) Header() []string {
	if len(s.Rows) == 0 {
		return nil
	}
	return s.Rows[0]
}

// Output carries a report both as typed results and as a rendered sheet.
type Output struct {
	Kind   string `json:"kind"`
	Result any    `json:"result"`
	Sheet  Sheet  `json:"-"`
}

// Filter narrows the rows a report reads. For the task dataset the date range applies to the
// completion date; SLA reports pass it to the evaluator as a creation-date range. After is the
// second period of a before/after comparison, whose first period is From and To.
type Filter struct {
	From     time.Time
	To       time.Time
	After    kpi.Period
	Analyst  string
	Analysts []string
}

func (f Filter) Before() kpi.Period {
	return kpi.Period{From: f.From, To: f.To}
}

func ParseFilter(p queue.Params) (Filter, error) {
	f := Filter{Analyst: strings.TrimSpace(p.Analyst), Analysts: p.Analysts}

	var err error
	if f.From, f.To, err = parseRange("", p.From, p.To); err != nil {
		return Filter{}, err
	}
	if f.After.From, f.After.To, err = parseRange("after_", p.AfterFrom, p.AfterTo); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func parseRange(prefix, from, to string) (start, end time.Time, err error) {
	if from != "" {
		if start, err = time.Parse(dateLayout, from); err != nil {
			return start, end, fmt.Errorf("%w: %sfrom date %q: %w", ErrInvalidFilter, prefix, from, err)
		}
	}
	if to != "" {
		if end, err = time.Parse(dateLayout, to); err != nil {
			return start, end, fmt.Errorf("%w: %sto date %q: %w", ErrInvalidFilter, prefix, to, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("%w: date range ends before it starts: %s to %s", ErrInvalidFilter, from, to)
	}
	return start, end, nil
}

// Apply restricts task rows to the filter: one analyst, a selection of analysts and an
// inclusive completion-day range. Rows without a completion time fall outside any date range.
// A criterion whose column the table lacks is ignored.
func (f Filter) Apply(t *record.Table) *record.Table {
	return f.apply(t, true)
}

func (f Filter) apply(t *record.Table, dates bool) *record.Table {
	byAnalyst := f.Analyst != "" && t.Has(record.ColAnalyst)
	bySelection := len(f.Analysts) > 0 && t.Has(record.ColAnalyst)
	byDate := dates && (!f.From.IsZero() || !f.To.IsZero()) && t.Has(record.ColCompletedAt)
	if !byAnalyst && !bySelection && !byDate {
		return t
	}
	return t.Filter(func(r record.Record) bool {
		if byAnalyst && !record.SameName(r.Analyst, f.Analyst) {
			return false
		}
		if bySelection && !slices.ContainsFunc(f.Analysts, func(name string) bool { return record.SameName(name, r.Analyst) }) {
			return false
		}
		if !byDate {
			return true
		}
		return r.CompletedAt != nil && f.Before().Contains(*r.CompletedAt)
	})
}

type runner func(e *kpi.Engine, t *record.Table, f Filter) (any, [][]string, error)

type Kind struct {
	Name    string
	Title   string
	Dataset models.Dataset
	run     runner
	// periods marks kinds that compare the before and after periods themselves.
	periods bool
}

// CheckFilter rejects a filter the kind cannot run with.
func (k Kind) CheckFilter(f Filter) error {
	if !k.periods {
		return nil
	}
	if f.From.IsZero() && f.To.IsZero() {
		return fmt.Errorf("%w: %s needs a before period (from, to)", ErrInvalidFilter, k.Name)
	}
	if f.After.From.IsZero() && f.After.To.IsZero() {
		return fmt.Errorf("%w: %s needs an after period (after_from, after_to)", ErrInvalidFilter, k.Name)
	}
	return nil
}

// Run computes the report over t. Missing columns surface as *record.MissingColumnsError.
func (k Kind) Run(e *kpi.Engine, t *record.Table, f Filter) (Output, error) {
	if err := k.CheckFilter(f); err != nil {
		return Output{}, err
	}
	if k.Dataset == models.DatasetTasks {
		t = f.apply(t, !k.periods)
	}
	result, rows, err := k.run(e, t, f)
	if err != nil {
		return Output{}, err
	}
	return Output{Kind: k.Name, Result: result, Sheet: Sheet{Title: k.Title, Rows: rows}}, nil
}

func tabular[T any](header []string, compute func(*kpi.Engine, *record.Table, Filter) (T, error), render func(T) [][]string) runner {
	return func(e *kpi.Engine, t *record.Table, f Filter) (any, [][]string, error) {
		result, err := compute(e, t, f)
		if err != nil {
			return nil, nil, err
		}
		return result, append([][]string{header}, render(result)...), nil
	}
}

var catalog = map[string]Kind{}

func register(name, title string, ds models.Dataset, run runner) {
	catalog[name] = Kind{Name: name, Title: title, Dataset: ds, run: run}
}

func registerComparison(name, title string, run runner) {
	catalog[name] = Kind{Name: name, Title: title, Dataset: models.DatasetTasks, run: run, periods: true}
}

func Lookup(name string) (Kind, bool) {
	k, ok := catalog[name]
	return k, ok
}

// Kinds lists every report kind by name.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(catalog))
	for _, k := range catalog {
		kinds = append(kinds, k)
	}
	slices.SortFunc(kinds, func(a, b Kind) int { return strings.Compare(a.Name, b.Name) })
	return kinds
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func day(t time.Time) string {
	return t.Format("02/01/2006")
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func pct(v float64) string {
	return fmtFloat(v) + "%"
}
