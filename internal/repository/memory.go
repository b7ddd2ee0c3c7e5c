package repository

import (
	"context"
	"sync"
	"time"

	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/repository/models"
)

type datasetKey struct {
	owner   string
	dataset models.Dataset
}

type memoryDataset struct {
	columns   []record.Column
	rows      []record.Record
	seen      map[string]struct{}
	updatedAt time.Time
}

// MemoryRepository keeps datasets in process. The error fields let tests force failures.
type MemoryRepository struct {
	mu          sync.Mutex
	datasets    map[datasetKey]*memoryDataset
	excluded    []string
	AppendCalls []AppendCall
	LoadError   error
	AppendError error
}

type AppendCall struct {
	Owner   string
	Dataset models.Dataset
	Rows    int
}

func NewMemoryRepository(excluded []string) *MemoryRepository {
	return &MemoryRepository{
		datasets: make(map[datasetKey]*memoryDataset),
		excluded: excluded,
	}
}

func (m *MemoryRepository) Load(_ context.Context, owner string, ds models.Dataset) (*record.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadError != nil {
		return nil, m.LoadError
	}

	d, ok := m.datasets[datasetKey{owner, ds}]
	if !ok {
		return record.NewTable(nil, nil), nil
	}
	rows := make([]record.Record, len(d.rows))
	copy(rows, d.rows)
	return record.NewTable(d.columns, rows), nil
}

func (m *MemoryRepository) Append(_ context.Context, owner string, ds models.Dataset, t *record.Table) (models.DedupStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls = append(m.AppendCalls, AppendCall{Owner: owner, Dataset: ds, Rows: t.Len()})
	if m.AppendError != nil {
		return models.DedupStats{}, m.AppendError
	}

	key := datasetKey{owner, ds}
	d, ok := m.datasets[key]
	if !ok {
		d = &memoryDataset{seen: make(map[string]struct{})}
		m.datasets[key] = d
	}

	stats := models.DedupStats{Received: t.Len()}
	kept, filtered := Admit(ds, t, m.excluded)
	stats.Filtered = filtered
	for _, r := range kept {
		fp := r.Fingerprint()
		if _, dup := d.seen[fp]; dup {
			stats.Duplicates++
			continue
		}
		d.seen[fp] = struct{}{}
		d.rows = append(d.rows, r)
		stats.Inserted++
	}

	d.columns = record.NewTable(d.columns, nil).Concat(record.NewTable(t.Columns(), nil)).Columns()
	d.updatedAt = time.Now()
	return stats, nil
}

func (m *MemoryRepository) Summary(_ context.Context, owner string, ds models.Dataset) (models.DatasetSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summary := models.DatasetSummary{Owner: owner, Dataset: ds, Columns: []string{}}
	d, ok := m.datasets[datasetKey{owner, ds}]
	if !ok {
		return summary, nil
	}
	summary.Rows = len(d.rows)
	summary.Columns = ColumnNames(record.NewTable(d.columns, nil))
	updated := d.updatedAt
	summary.UpdatedAt = &updated
	return summary, nil
}

func (m *MemoryRepository) Close() error {
	return nil
}
