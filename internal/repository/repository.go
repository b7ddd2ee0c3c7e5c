// Package repository persists uploaded datasets per owner. Appends are de-duplicated by row
// fingerprint and remember which columns the uploads carried.
package repository

import (
	"context"

	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/repository/models"
)

type DatasetRepository interface {
	Load(ctx context.Context, owner string, ds models.Dataset) (*record.Table, error)
	Append(ctx context.Context, owner string, ds models.Dataset, t *record.Table) (models.DedupStats, error)
	Summary(ctx context.Context, owner string, ds models.Dataset) (models.DatasetSummary, error)
	Close() error
}

// DefaultExcludedAnalysts are automation accounts whose rows never reach the task dataset.
var DefaultExcludedAnalysts = []string{"robohub_amil"}

// Admit drops task rows without an analyst or owned by an excluded account. SLA rows are
// kept as they are.
func Admit(ds models.Dataset, t *record.Table, excluded []string) (kept []record.Record, filtered int) {
	rows := t.Records()
	if ds != models.DatasetTasks {
		return rows, 0
	}

	kept = rows[:0]
	for _, r := range rows {
		if r.Analyst == "" || isExcluded(r.Analyst, excluded) {
			filtered++
			continue
		}
		kept = append(kept, r)
	}
	return kept, filtered
}

func isExcluded(analyst string, excluded []string) bool {
	for _, e := range excluded {
		if record.SameName(analyst, e) {
			return true
		}
	}
	return false
}

// ColumnNames renders the table columns as stored headers.
func ColumnNames(t *record.Table) []string {
	cols := t.Columns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = string(c)
	}
	return names
}

// ParseColumns maps stored headers back to columns, skipping names no longer known.
func ParseColumns(names []string) []record.Column {
	cols := make([]record.Column, 0, len(names))
	for _, n := range names {
		if c, ok := record.LookupColumn(n); ok {
			cols = append(cols, c)
		}
	}
	return cols
}
