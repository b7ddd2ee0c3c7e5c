package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupColumn(t *testing.T) {
	col, ok := LookupColumn("  numero do protocolo ")
	require.True(t, ok)
	assert.Equal(t, ColProtocol, col)

	col, ok = LookupColumn("Situação da Tarefa")
	require.True(t, ok)
	assert.Equal(t, ColStatus, col)

	col, ok = LookupColumn("TP Causa (TP Complemento)")
	require.True(t, ok)
	assert.Equal(t, ColCauseType, col)

	_, ok = LookupColumn("CLASSIFICAÇÃO")
	assert.False(t, ok)
}

func TestTableRequire(t *testing.T) {
	table := NewTable([]Column{ColAnalyst, ColQueue}, nil)

	assert.NoError(t, table.Require(Schema{ColAnalyst}))

	err := table.Require(Schema{ColAnalyst, ColCompletion, ColOperationalTime})
	require.Error(t, err)

	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []Column{ColCompletion, ColOperationalTime}, missing.Missing)
	assert.Contains(t, err.Error(), "'FINALIZAÇÃO' (completion)")
	assert.Contains(t, err.Error(), "(duration)")
}

func TestTableFilterDoesNotMutate(t *testing.T) {
	table := FullTable([]Record{
		{Analyst: "ana", Queue: "A"},
		{Analyst: "bia", Queue: "B"},
		{Analyst: "caio", Queue: "A"},
	})

	filtered := table.Filter(func(r Record) bool { return r.Queue == "A" })

	assert.Equal(t, 2, filtered.Len())
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, table.Columns(), filtered.Columns())

	rows := table.Records()
	rows[0].Analyst = "changed"
	assert.Equal(t, "ana", table.Records()[0].Analyst)
}

func TestTableConcat(t *testing.T) {
	a := NewTable([]Column{ColAnalyst}, []Record{{Analyst: "ana"}})
	b := NewTable([]Column{ColAnalyst, ColQueue}, []Record{{Analyst: "bia", Queue: "X"}})

	merged := a.Concat(b)

	assert.Equal(t, 2, merged.Len())
	assert.True(t, merged.Has(ColQueue))
	assert.Equal(t, []Column{ColAnalyst, ColQueue}, merged.Columns())
	assert.False(t, a.Has(ColQueue))
}
