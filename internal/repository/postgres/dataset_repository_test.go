package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nadmax/opskpi/internal/record"
	"github.com/nadmax/opskpi/internal/repository"
	"github.com/nadmax/opskpi/internal/repository/models"
)

var rowColumns = []string{
	"protocol_id", "analyst", "status", "completion", "queue",
	"operational_time_ns", "started_at", "completed_at", "created_at",
	"task_type", "cause_type", "justification",
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresDatasetRepository) {
	return setupMockDBIn(t, time.UTC)
}

func setupMockDBIn(t *testing.T, loc *time.Location) (*sql.DB, sqlmock.Sqlmock, *PostgresDatasetRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewWithDB(db, repository.DefaultExcludedAnalysts, loc, zap.NewNop())
	return db, mock, repo
}

func TestNewPostgresDatasetRepository(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		t.Skip("Integration test - requires real database")
	})

	t.Run("connection failure", func(t *testing.T) {
		_, err := NewPostgresDatasetRepository("invalid connection string", nil, time.UTC, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestMigrate(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS dataset_rows").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Migrate(context.Background()))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS dataset_rows").WillReturnError(errors.New("permission denied"))
	err := repo.Migrate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to migrate schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	completed := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	t.Run("rows and remembered columns", func(t *testing.T) {
		mock.ExpectQuery("SELECT columns, updated_at FROM dataset_columns").
			WithArgs("ana@example.com", "tasks").
			WillReturnRows(sqlmock.NewRows([]string{"columns", "updated_at"}).
				AddRow(`{"USUÁRIO QUE CONCLUIU A TAREFA","FINALIZAÇÃO","TEMPO MÉDIO OPERACIONAL","COLUNA ANTIGA"}`, completed))

		mock.ExpectQuery("SELECT.*FROM dataset_rows").
			WithArgs("ana@example.com", "tasks").
			WillReturnRows(sqlmock.NewRows(rowColumns).
				AddRow("1001", "ana", "finished", "registered", "FILA A", int64(5*time.Minute), nil, completed, nil, "", "", "").
				AddRow("1002", "ana", "finished", "", "FILA A", nil, nil, nil, nil, "", "", "late"))

		table, err := repo.Load(ctx, "ana@example.com", models.DatasetTasks)
		require.NoError(t, err)
		require.Equal(t, 2, table.Len())
		assert.Equal(t, []record.Column{record.ColAnalyst, record.ColCompletion, record.ColOperationalTime}, table.Columns())

		rows := table.Records()
		assert.Equal(t, record.CompletionRegistered, rows[0].Completion)
		require.NotNil(t, rows[0].OperationalTime)
		assert.Equal(t, 5*time.Minute, *rows[0].OperationalTime)
		require.NotNil(t, rows[0].CompletedAt)
		assert.True(t, completed.Equal(*rows[0].CompletedAt))
		assert.Nil(t, rows[1].OperationalTime)
		assert.Equal(t, "late", rows[1].Justification)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown owner has no columns", func(t *testing.T) {
		mock.ExpectQuery("SELECT columns, updated_at FROM dataset_columns").
			WithArgs("nobody", "sla").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT.*FROM dataset_rows").
			WithArgs("nobody", "sla").
			WillReturnRows(sqlmock.NewRows(rowColumns))

		table, err := repo.Load(ctx, "nobody", models.DatasetSLA)
		require.NoError(t, err)
		assert.Zero(t, table.Len())
		assert.Empty(t, table.Columns())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		mock.ExpectQuery("SELECT columns, updated_at FROM dataset_columns").
			WithArgs("ana", "tasks").
			WillReturnError(errors.New("connection reset"))

		_, err := repo.Load(ctx, "ana", models.DatasetTasks)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load dataset columns")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoad_ConvertsTimestampsToLocation(t *testing.T) {
	saoPaulo, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	db, mock, repo := setupMockDBIn(t, saoPaulo)
	defer func() { _ = db.Close() }()

	// 04/03/2024 22:30 in Sao Paulo, as the driver hands it back in a UTC session.
	completed := time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC)
	started := completed.Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT columns, updated_at FROM dataset_columns").
		WithArgs("ana", "tasks").
		WillReturnRows(sqlmock.NewRows([]string{"columns", "updated_at"}).
			AddRow(`{"USUÁRIO QUE CONCLUIU A TAREFA","DATA DE INÍCIO DA TAREFA","DATA DE CONCLUSÃO DA TAREFA","DATA CRIAÇÃO PROTOCOLO"}`, completed))
	mock.ExpectQuery("SELECT.*FROM dataset_rows").
		WithArgs("ana", "tasks").
		WillReturnRows(sqlmock.NewRows(rowColumns).
			AddRow("1001", "ana", "finished", "registered", "FILA A", nil, started, completed, completed, "", "", ""))

	table, err := repo.Load(context.Background(), "ana", models.DatasetTasks)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	row := table.Records()[0]
	require.NotNil(t, row.CompletedAt)
	require.NotNil(t, row.StartedAt)
	require.NotNil(t, row.CreatedAt)
	assert.Equal(t, saoPaulo, row.CompletedAt.Location())
	assert.Equal(t, saoPaulo, row.StartedAt.Location())
	assert.Equal(t, saoPaulo, row.CreatedAt.Location())
	assert.True(t, completed.Equal(*row.CompletedAt))

	day, ok := row.CompletionDate()
	require.True(t, ok)
	assert.Equal(t, "04/03/2024", day.Format("02/01/2006"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	op := 3 * time.Minute
	table := record.NewTable(
		[]record.Column{record.ColAnalyst, record.ColOperationalTime},
		[]record.Record{
			{Analyst: "ana", OperationalTime: &op},
			{Analyst: "ana", OperationalTime: &op},
			{Analyst: "robohub_amil"},
			{Analyst: ""},
		},
	)

	t.Run("dedup and filter", func(t *testing.T) {
		mock.ExpectBegin()
		prep := mock.ExpectPrepare("INSERT INTO dataset_rows")
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
		prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO dataset_columns").
			WithArgs("ana", "tasks", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		stats, err := repo.Append(ctx, "ana", models.DatasetTasks, table)
		require.NoError(t, err)
		assert.Equal(t, models.DedupStats{Received: 4, Filtered: 2, Duplicates: 1, Inserted: 1}, stats)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		prep := mock.ExpectPrepare("INSERT INTO dataset_rows")
		prep.ExpectExec().WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err := repo.Append(ctx, "ana", models.DatasetTasks, table)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert dataset row")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSummary(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	updated := time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT columns, updated_at FROM dataset_columns").
		WithArgs("ana", "sla").
		WillReturnRows(sqlmock.NewRows([]string{"columns", "updated_at"}).AddRow(`{"FILA","DATA CRIAÇÃO PROTOCOLO"}`, updated))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("ana", "sla").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	summary, err := repo.Summary(context.Background(), "ana", models.DatasetSLA)
	require.NoError(t, err)
	assert.Equal(t, 42, summary.Rows)
	assert.Equal(t, []string{"FILA", "DATA CRIAÇÃO PROTOCOLO"}, summary.Columns)
	require.NotNil(t, summary.UpdatedAt)
	assert.True(t, updated.Equal(*summary.UpdatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
