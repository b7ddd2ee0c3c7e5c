// Package ingest turns uploaded spreadsheets into record tables. Rows carrying status or
// completion codes outside the known sets are quarantined rather than loaded.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nadmax/opskpi/internal/record"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrEmpty      = errors.New("spreadsheet has no header row")
	ErrNoColumns  = errors.New("spreadsheet has no recognized column")
	zipSignature  = []byte("PK\x03\x04")
	utf8BOM       = []byte("\xef\xbb\xbf")
	maxSniffBytes = 4096
)

type (
	Quarantined struct {
		Line   int    `json:"line"`
		Reason string `json:"reason"`
	}
	Result struct {
		Table      *record.Table `json:"-"`
		Quarantine []Quarantined `json:"quarantine"`
		Ignored    []string      `json:"ignored_columns,omitempty"`
	}
)

// Detect picks the reader from the file extension, falling back to the content signature.
func Detect(name string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv", ".txt":
		return FormatCSV
	}
	if bytes.HasPrefix(head, zipSignature) {
		return FormatXLSX
	}
	return FormatCSV
}

// Read loads a CSV or XLSX upload. Timestamps without a zone are read in loc.
func Read(r io.Reader, name string, loc *time.Location) (*Result, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(len(zipSignature))

	if Detect(name, head) == FormatXLSX {
		return ReadXLSX(br, loc)
	}
	return ReadCSV(br, loc)
}

// ReadCSV accepts ';' or ',' separated files, choosing whichever the header line uses more.
func ReadCSV(r io.Reader, loc *time.Location) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return parseRows(rows, loc)
}

func sniffDelimiter(data []byte) rune {
	line := data[:min(len(data), maxSniffBytes)]
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// ReadXLSX reads the first worksheet with raw cell values, so dates arrive as serial numbers.
func ReadXLSX(r io.Reader, loc *time.Location) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return parseRows(rows, loc)
}

func parseRows(rows [][]string, loc *time.Location) (*Result, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	result := &Result{}
	index := make(map[record.Column]int)
	var columns []record.Column
	for i, header := range rows[0] {
		col, ok := record.LookupColumn(header)
		if !ok {
			if strings.TrimSpace(header) != "" {
				result.Ignored = append(result.Ignored, header)
			}
			continue
		}
		if _, dup := index[col]; dup {
			continue
		}
		index[col] = i
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return nil, ErrNoColumns
	}

	records := make([]record.Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec, err := parseRecord(row, index, loc)
		if err != nil {
			result.Quarantine = append(result.Quarantine, Quarantined{Line: n + 2, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}

	result.Table = record.NewTable(columns, records)
	return result, nil
}

func parseRecord(row []string, index map[record.Column]int, loc *time.Location) (record.Record, error) {
	cell := func(c record.Column) string {
		i, ok := index[c]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	status, err := record.ParseStatus(cell(record.ColStatus))
	if err != nil {
		return record.Record{}, err
	}
	completion, err := record.ParseCompletion(cell(record.ColCompletion))
	if err != nil {
		return record.Record{}, err
	}

	return record.Record{
		ProtocolID:      cell(record.ColProtocol),
		Analyst:         cell(record.ColAnalyst),
		Status:          status,
		Completion:      completion,
		Queue:           cell(record.ColQueue),
		OperationalTime: record.ParseDuration(cell(record.ColOperationalTime)),
		StartedAt:       record.ParseTimestamp(cell(record.ColStartedAt), loc),
		CompletedAt:     record.ParseTimestamp(cell(record.ColCompletedAt), loc),
		CreatedAt:       record.ParseTimestamp(cell(record.ColCreatedAt), loc),
		TaskType:        cell(record.ColTaskType),
		CauseType:       cell(record.ColCauseType),
		Justification:   cell(record.ColJustification),
	}, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
