package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadmax/opskpi/internal/record"
)

func TestSingleRowTMO(t *testing.T) {
	e := New(DefaultRules())
	op := 7*time.Minute + 15*time.Second
	table := record.FullTable([]record.Record{task("ana", record.CompletionRegistered, op, at(4, 10, 0))})

	days, err := e.TMOByDay(table)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, op, days[0].TMO)
	assert.Equal(t, "7 min 15s", days[0].Formatted)

	regDays, err := e.TMOByDayRegistration(table)
	require.NoError(t, err)
	require.Len(t, regDays, 1)
	assert.Equal(t, op, regDays[0].TMO)

	months, err := e.TMOByMonth(table)
	require.NoError(t, err)
	require.Len(t, months, 1)
	assert.Equal(t, 7.25, months[0].Minutes)
	assert.Equal(t, "Março de 2024", months[0].Label)

	analysts, err := e.TMOByAnalyst(table)
	require.NoError(t, err)
	require.Len(t, analysts, 1)
	assert.Equal(t, op, analysts[0].TMO)
	assert.Equal(t, "00:07:15", analysts[0].Formatted)
}

func TestTMOByDayCountsUntimedRows(t *testing.T) {
	e := New(DefaultRules())
	untimed := task("ana", record.CompletionRegistered, 0, at(4, 11, 0))
	untimed.OperationalTime = nil
	pending := task("ana", record.CompletionRegistered, time.Hour, at(4, 12, 0))
	pending.Status = record.StatusPending

	table := record.FullTable([]record.Record{
		task("ana", record.CompletionRegistered, 10*time.Minute, at(4, 10, 0)),
		untimed,
		pending,
		task("bia", record.CompletionUpdated, 4*time.Minute, at(5, 9, 0)),
	})

	days, err := e.TMOByDay(table)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, 2, days[0].Count)
	assert.Equal(t, 5*time.Minute, days[0].TMO)
	assert.Equal(t, 4*time.Minute, days[1].TMO)
}

func TestTMOByMonthExcludesUntimedRows(t *testing.T) {
	e := New(DefaultRules())
	untimed := task("ana", record.CompletionUpdated, 0, at(20, 10, 0))
	untimed.OperationalTime = nil
	feb := task("ana", record.CompletionDistributed, 90*time.Minute, at(1, 10, 0))
	febDay := time.Date(2024, 2, 10, 10, 0, 0, 0, time.UTC)
	feb.CompletedAt = &febDay

	table := record.FullTable([]record.Record{
		task("ana", record.CompletionRegistered, 10*time.Minute, at(4, 10, 0)),
		task("ana", record.CompletionOutOfScope, 50*time.Minute, at(4, 11, 0)),
		untimed,
		feb,
	})

	months, err := e.TMOByMonth(table)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "1h 30m 0s", months[0].Formatted)
	assert.Equal(t, 1, months[1].Count)
	assert.Equal(t, "10 min 0s", months[1].Formatted)
}

func TestTMOByQueue(t *testing.T) {
	e := New(DefaultRules())
	row := func(protocol, queue string, c record.Completion, op time.Duration) record.Record {
		return record.Record{ProtocolID: protocol, Queue: queue, Completion: c, OperationalTime: dur(op)}
	}
	untimed := row("9", "FILA A", record.CompletionRegistered, 0)
	untimed.OperationalTime = nil

	table := record.FullTable([]record.Record{
		row("1", "FILA A", record.CompletionRegistered, 10*time.Minute),
		row("2", "FILA A", record.CompletionRegistered, 20*time.Minute),
		row("3", "FILA A", record.CompletionUpdated, 6*time.Minute),
		row("4", "FILA A", record.CompletionOutOfScope, time.Minute),
		row("4", "FILA A", record.CompletionOutOfScope, time.Minute),
		row("5", "FILA B", record.CompletionUpdated, 2*time.Minute),
		row("6", "Distribuição", record.CompletionDistributed, 3*time.Minute),
		row("7", "Distribuição", record.CompletionDistributed, 5*time.Minute),
		untimed,
	})

	queues, err := e.TMOByQueue(table)
	require.NoError(t, err)
	require.Len(t, queues, 3)

	a := queues[0]
	assert.Equal(t, "FILA A", a.Queue)
	assert.Equal(t, 3, a.Quantity)
	assert.Equal(t, 2, a.Registered)
	assert.Equal(t, 1, a.Updated)
	assert.Equal(t, 1, a.OutOfScope)
	assert.Equal(t, 15*time.Minute, a.TMORegistration)
	assert.Equal(t, "00:06:00", a.UpdateFormatted)

	b := queues[1]
	assert.Equal(t, "FILA B", b.Queue)
	assert.Zero(t, b.TMORegistration)
	assert.Equal(t, "00:00:00", b.RegistrationFormatted)

	dist := queues[2]
	assert.Equal(t, "Distribuição", dist.Queue)
	assert.Equal(t, 2, dist.Quantity)
	assert.Equal(t, 4*time.Minute, dist.TMORegistration)
}

func TestTMOByAnalystDropsDoubtOutliers(t *testing.T) {
	e := New(DefaultRules())
	outlier := task("ana", record.CompletionRegistered, 2*time.Hour, at(4, 12, 0))
	outlier.Queue = "Dúvida"
	short := task("ana", record.CompletionRegistered, 20*time.Minute, at(4, 13, 0))
	short.Queue = "DÚVIDA"
	cancelled := task("bia", record.CompletionUpdated, 9*time.Minute, at(4, 14, 0))
	cancelled.Status = record.StatusCancelled

	table := record.FullTable([]record.Record{
		task("ana", record.CompletionRegistered, 10*time.Minute, at(4, 10, 0)),
		outlier,
		short,
		cancelled,
	})

	analysts, err := e.TMOByAnalyst(table)
	require.NoError(t, err)
	require.Len(t, analysts, 2)

	assert.Equal(t, "ana", analysts[0].Analyst)
	assert.Equal(t, 2, analysts[0].Count)
	assert.Equal(t, 15*time.Minute, analysts[0].TMO)

	assert.Equal(t, "bia", analysts[1].Analyst)
	assert.Zero(t, analysts[1].Count)
	assert.Equal(t, "00:00:00", analysts[1].Formatted)
}

func TestTeamTMO(t *testing.T) {
	e := New(DefaultRules())
	table := record.FullTable([]record.Record{
		task("ana", record.CompletionRegistered, 10*time.Minute, at(4, 10, 0)),
		task("bia", record.CompletionRegistered, 20*time.Minute, at(4, 11, 0)),
		task("bia", record.CompletionUpdated, 3*time.Minute, at(4, 12, 0)),
	})

	team, err := e.TeamTMO(table)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, team.Registration)
	assert.Equal(t, "00:03:00", team.UpdateFormatted)
}

func TestTMOByAnalystMonth(t *testing.T) {
	e := New(DefaultRules())
	table := record.FullTable([]record.Record{
		task("ana", record.CompletionRegistered, 10*time.Minute, at(4, 10, 0)),
		task("ana", record.CompletionUpdated, 4*time.Minute, at(5, 10, 0)),
		task("bia", record.CompletionRegistered, time.Hour, at(5, 11, 0)),
	})

	months, err := e.TMOByAnalystMonth(table, "ANA")
	require.NoError(t, err)
	require.Len(t, months, 1)
	assert.Equal(t, 7*time.Minute, months[0].General)
	assert.Equal(t, 10*time.Minute, months[0].Registration)
	assert.Equal(t, 4*time.Minute, months[0].Update)
}
