package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRun_RequiresPostgres(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTGRES_DSN", "")

	err := run(context.Background(), zap.NewNop())
	assert.EqualError(t, err, "POSTGRES_DSN is required")
}

func TestExecute_LogsAndReturnsExitCode(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTGRES_DSN", "")

	core, logs := observer.New(zapcore.InfoLevel)

	assert.Equal(t, 1, execute(zap.New(core)))

	entries := logs.FilterMessage("worker stopped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Zero(t, logs.FilterMessage("shutting down worker").Len())
}
