package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

var ErrNoHeader = errors.New("sheet has no header row")

func ValidFormat(format string) bool {
	switch format {
	case FormatCSV, FormatJSON, FormatXLSX:
		return true
	}
	return false
}

// ContentType returns the MIME type served for an export format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Save writes the sheet under dir as opskpi_<kind>_<timestamp>.<format> and returns the path.
func Save(dir, kind, format string, sheet Sheet, now time.Time) (path string, err error) {
	if !ValidFormat(format) {
		return "", fmt.Errorf("unsupported format: %s", format)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("opskpi_%s_%s.%s", kind, now.Format("20060102_150405"), format)
	path = filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
	}()

	return path, Encode(file, format, sheet, now)
}

// Encode writes the sheet to w in the given format.
func Encode(w io.Writer, format string, sheet Sheet, now time.Time) error {
	switch format {
	case FormatCSV:
		return encodeCSV(w, sheet)
	case FormatJSON:
		return encodeJSON(w, sheet, now)
	case FormatXLSX:
		return encodeXLSX(w, sheet)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func encodeCSV(w io.Writer, sheet Sheet) error {
	writer := csv.NewWriter(w)
	if err := writer.WriteAll(sheet.Rows); err != nil {
		return err
	}
	return writer.Error()
}

func encodeJSON(w io.Writer, sheet Sheet, now time.Time) error {
	headers := sheet.Header()
	if headers == nil {
		return ErrNoHeader
	}

	records := make([]map[string]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		entry := make(map[string]string, len(headers))
		for i, header := range headers {
			if i < len(row) {
				entry[header] = row[i]
			}
		}
		records = append(records, entry)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]any{
		"title":        sheet.Title,
		"generated_at": now.Format(time.RFC3339),
		"data":         records,
		"total_rows":   len(records),
	})
}

// sheetName trims a title to the 31 characters a worksheet name allows.
func sheetName(title string) string {
	runes := []rune(title)
	if len(runes) == 0 {
		return "Relatório"
	}
	if len(runes) > 31 {
		runes = runes[:31]
	}
	return string(runes)
}

func encodeXLSX(w io.Writer, sheet Sheet) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	name := sheetName(sheet.Title)
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return err
	}

	for i, row := range sheet.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return err
		}
	}

	if header := sheet.Header(); header != nil {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(name, "A1", last, style); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}
