package record

import (
	"fmt"
	"slices"
	"strings"
)

type (
	Column    string
	FieldType string
	Schema    []Column
)

const (
	ColProtocol        Column = "NÚMERO DO PROTOCOLO"
	ColAnalyst         Column = "USUÁRIO QUE CONCLUIU A TAREFA"
	ColStatus          Column = "SITUAÇÃO DA TAREFA"
	ColCompletion      Column = "FINALIZAÇÃO"
	ColQueue           Column = "FILA"
	ColOperationalTime Column = "TEMPO MÉDIO OPERACIONAL"
	ColStartedAt       Column = "DATA DE INÍCIO DA TAREFA"
	ColCompletedAt     Column = "DATA DE CONCLUSÃO DA TAREFA"
	ColCreatedAt       Column = "DATA CRIAÇÃO PROTOCOLO"
	ColTaskType        Column = "TAREFA"
	ColCauseType       Column = "TP CAUSA"
	ColJustification   Column = "Justificativa"
)

const (
	FieldText       FieldType = "text"
	FieldDuration   FieldType = "duration"
	FieldTimestamp  FieldType = "timestamp"
	FieldStatus     FieldType = "status"
	FieldCompletion FieldType = "completion"
)

// AllColumns lists every known column in export order.
var AllColumns = []Column{
	ColProtocol,
	ColAnalyst,
	ColStatus,
	ColCompletion,
	ColQueue,
	ColOperationalTime,
	ColStartedAt,
	ColCompletedAt,
	ColCreatedAt,
	ColTaskType,
	ColCauseType,
	ColJustification,
}

var fieldTypes = map[Column]FieldType{
	ColProtocol:        FieldText,
	ColAnalyst:         FieldText,
	ColStatus:          FieldStatus,
	ColCompletion:      FieldCompletion,
	ColQueue:           FieldText,
	ColOperationalTime: FieldDuration,
	ColStartedAt:       FieldTimestamp,
	ColCompletedAt:     FieldTimestamp,
	ColCreatedAt:       FieldTimestamp,
	ColTaskType:        FieldText,
	ColCauseType:       FieldText,
	ColJustification:   FieldText,
}

func (c Column) Type() FieldType {
	if t, ok := fieldTypes[c]; ok {
		return t
	}
	return FieldText
}

// headerAliases maps alternative export spellings onto known columns.
var headerAliases = map[string]Column{
	"TP CAUSA (TP COMPLEMENTO)": ColCauseType,
}

// LookupColumn resolves a spreadsheet header to a known column, ignoring case and accents.
func LookupColumn(header string) (Column, bool) {
	key := Fold(header)
	if c, ok := headerAliases[key]; ok {
		return c, true
	}
	for _, c := range AllColumns {
		if Fold(string(c)) == key {
			return c, true
		}
	}
	return "", false
}

type MissingColumnsError struct {
	Missing []Column
}

func (e *MissingColumnsError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, c := range e.Missing {
		names = append(names, fmt.Sprintf("'%s' (%s)", c, c.Type()))
	}
	return fmt.Sprintf("required columns not found in the dataset: %s", strings.Join(names, ", "))
}

// Table is an immutable working set of records plus the columns its source carried.
type Table struct {
	columns map[Column]struct{}
	records []Record
}

func NewTable(columns []Column, records []Record) *Table {
	set := make(map[Column]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return &Table{columns: set, records: records}
}

// FullTable builds a table that carries every known column.
func FullTable(records []Record) *Table {
	return NewTable(AllColumns, records)
}

func (t *Table) Has(c Column) bool {
	_, ok := t.columns[c]
	return ok
}

// Columns returns the present columns in export order.
func (t *Table) Columns() []Column {
	cols := make([]Column, 0, len(t.columns))
	for _, c := range AllColumns {
		if t.Has(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Records returns a copy of the rows so callers cannot reorder the table.
func (t *Table) Records() []Record {
	return slices.Clone(t.records)
}

func (t *Table) Len() int {
	return len(t.records)
}

// Each visits rows in table order.
func (t *Table) Each(fn func(Record)) {
	for _, r := range t.records {
		fn(r)
	}
}

// Filter returns a new table with the same columns holding the rows keep accepts.
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return &Table{columns: t.columns, records: out}
}

// Require reports every column of s missing from the table.
func (t *Table) Require(s Schema) error {
	var missing []Column
	for _, c := range s {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnsError{Missing: missing}
	}
	return nil
}

// Concat appends other's rows and unions the column sets.
func (t *Table) Concat(other *Table) *Table {
	cols := t.Columns()
	for _, c := range other.Columns() {
		if !t.Has(c) {
			cols = append(cols, c)
		}
	}
	records := make([]Record, 0, t.Len()+other.Len())
	records = append(records, t.records...)
	records = append(records, other.records...)
	return NewTable(cols, records)
}

// SameName compares queue, task and analyst names ignoring case and accents.
func SameName(a, b string) bool {
	return Fold(a) == Fold(b)
}
