// Package postgres provides PostgreSQL-backed implementations of repository interfaces.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/repository"
	"github.com/nadmax/opskpi/internal/repository/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS dataset_rows (
		id BIGSERIAL,
		owner TEXT NOT NULL,
		dataset TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		protocol_id TEXT NOT NULL DEFAULT '',
		analyst TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		completion TEXT NOT NULL DEFAULT '',
		queue TEXT NOT NULL DEFAULT '',
		operational_time_ns BIGINT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ,
		task_type TEXT NOT NULL DEFAULT '',
		cause_type TEXT NOT NULL DEFAULT '',
		justification TEXT NOT NULL DEFAULT '',
		inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (owner, dataset, fingerprint)
	);
	CREATE TABLE IF NOT EXISTS dataset_columns (
		owner TEXT NOT NULL,
		dataset TEXT NOT NULL,
		columns TEXT[] NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (owner, dataset)
	);
`

// PostgresDatasetRepository stores dataset rows in Postgres. Timestamps come back in the
// session zone and are converted to loc so day and month buckets match the ingested data.
type PostgresDatasetRepository struct {
	db       *sql.DB
	excluded []string
	loc      *time.Location
	logger   *zap.Logger
}

func NewPostgresDatasetRepository(connectionString string, excluded []string, loc *time.Location, logger *zap.Logger) (*PostgresDatasetRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewWithDB(db, excluded, loc, logger), nil
}

func NewWithDB(db *sql.DB, excluded []string, loc *time.Location, logger *zap.Logger) *PostgresDatasetRepository {
	if loc == nil {
		loc = time.Local
	}
	return &PostgresDatasetRepository{db: db, excluded: excluded, loc: loc, logger: logger}
}

// Migrate creates the dataset tables when missing.
func (r *PostgresDatasetRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (r *PostgresDatasetRepository) Load(ctx context.Context, owner string, ds models.Dataset) (*record.Table, error) {
	names, _, err := r.columns(ctx, owner, ds)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			protocol_id, analyst, status, completion, queue,
			operational_time_ns, started_at, completed_at, created_at,
			task_type, cause_type, justification
		FROM dataset_rows
		WHERE owner = $1 AND dataset = $2
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, owner, string(ds))
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset rows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", zap.Error(err))
		}
	}()

	var records []record.Record
	for rows.Next() {
		var (
			rec                               record.Record
			status, completion                string
			opTime                            sql.NullInt64
			startedAt, completedAt, createdAt sql.NullTime
		)
		if err := rows.Scan(
			&rec.ProtocolID,
			&rec.Analyst,
			&status,
			&completion,
			&rec.Queue,
			&opTime,
			&startedAt,
			&completedAt,
			&createdAt,
			&rec.TaskType,
			&rec.CauseType,
			&rec.Justification,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}

		rec.Status = record.Status(status)
		rec.Completion = record.Completion(completion)
		if opTime.Valid {
			d := time.Duration(opTime.Int64)
			rec.OperationalTime = &d
		}
		rec.StartedAt = nullTime(startedAt, r.loc)
		rec.CompletedAt = nullTime(completedAt, r.loc)
		rec.CreatedAt = nullTime(createdAt, r.loc)

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return record.NewTable(repository.ParseColumns(names), records), nil
}

func (r *PostgresDatasetRepository) Append(ctx context.Context, owner string, ds models.Dataset, t *record.Table) (stats models.DedupStats, err error) {
	stats.Received = t.Len()
	kept, filtered := repository.Admit(ds, t, r.excluded)
	stats.Filtered = filtered

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Warn("failed to roll back append", zap.Error(rbErr))
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dataset_rows (
			owner, dataset, fingerprint, protocol_id, analyst, status, completion, queue,
			operational_time_ns, started_at, completed_at, created_at,
			task_type, cause_type, justification
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (owner, dataset, fingerprint) DO NOTHING
	`)
	if err != nil {
		return stats, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range kept {
		res, err := stmt.ExecContext(
			ctx,
			owner,
			string(ds),
			rec.Fingerprint(),
			rec.ProtocolID,
			rec.Analyst,
			string(rec.Status),
			string(rec.Completion),
			rec.Queue,
			nullDuration(rec.OperationalTime),
			nullTimestamp(rec.StartedAt),
			nullTimestamp(rec.CompletedAt),
			nullTimestamp(rec.CreatedAt),
			rec.TaskType,
			rec.CauseType,
			rec.Justification,
		)
		if err != nil {
			return stats, fmt.Errorf("failed to insert dataset row: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return stats, fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			stats.Duplicates++
		} else {
			stats.Inserted++
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dataset_columns (owner, dataset, columns, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner, dataset) DO UPDATE SET
			columns = ARRAY(SELECT DISTINCT unnest(dataset_columns.columns || EXCLUDED.columns)),
			updated_at = NOW()
	`, owner, string(ds), pq.Array(repository.ColumnNames(t)))
	if err != nil {
		return stats, fmt.Errorf("failed to record dataset columns: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return stats, fmt.Errorf("failed to commit append: %w", err)
	}
	return stats, nil
}

func (r *PostgresDatasetRepository) Summary(ctx context.Context, owner string, ds models.Dataset) (models.DatasetSummary, error) {
	summary := models.DatasetSummary{Owner: owner, Dataset: ds, Columns: []string{}}

	names, updatedAt, err := r.columns(ctx, owner, ds)
	if err != nil {
		return summary, err
	}
	if names != nil {
		summary.Columns = repository.ColumnNames(record.NewTable(repository.ParseColumns(names), nil))
	}
	summary.UpdatedAt = updatedAt

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dataset_rows WHERE owner = $1 AND dataset = $2`,
		owner, string(ds),
	).Scan(&summary.Rows)
	if err != nil {
		return summary, fmt.Errorf("failed to count dataset rows: %w", err)
	}
	return summary, nil
}

func (r *PostgresDatasetRepository) columns(ctx context.Context, owner string, ds models.Dataset) ([]string, *time.Time, error) {
	var (
		names     []string
		updatedAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT columns, updated_at FROM dataset_columns WHERE owner = $1 AND dataset = $2`,
		owner, string(ds),
	).Scan(pq.Array(&names), &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load dataset columns: %w", err)
	}
	return names, &updatedAt, nil
}

func (r *PostgresDatasetRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresDatasetRepository) Close() error {
	return r.db.Close()
}

func nullTime(t sql.NullTime, loc *time.Location) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.In(loc)
	return &v
}

func nullTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullDuration(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return int64(*d)
}
