package history

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rpattn/histd/internal/domain"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	columnAliases = map[string]string{
		"hostname":          "hostname",
		"host":              "hostname",
		"working_directory": "working_directory",
		"workingdirectory":  "working_directory",
		"pwd":               "working_directory",
		"cwd":               "working_directory",
		"command":           "command",
		"cmd":               "command",
	}
)

// ImportRequest describes an uploaded history file.
type ImportRequest struct {
	FileName string
	Data     io.Reader
}

// RowError describes a row that could not be imported.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportSummary returns import level metrics.
type ImportSummary struct {
	TotalRows    int        `json:"totalRows"`
	ImportedRows int        `json:"importedRows"`
	InvalidRows  int        `json:"invalidRows"`
	Errors       []RowError `json:"errors"`
}

// Import records every row of a CSV or XLSX history export. Rows go through
// Record, so duplicates collapse onto one entry. A storage failure stops the
// import and is returned with the summary so far.
func (s *Service) Import(ctx context.Context, req ImportRequest) (ImportSummary, error) {
	summary := ImportSummary{Errors: []RowError{}}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}

	records, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, err
	}

	header, rows, headerRow := splitHeader(records)
	if header == nil {
		return summary, &ValidationError{Field: "file", Message: "no rows found in file"}
	}
	columns, err := mapColumns(header)
	if err != nil {
		return summary, err
	}

	for i, row := range rows {
		rowNumber := headerRow + i + 2
		if isEmptyRow(row) {
			continue
		}
		summary.TotalRows++

		entry := domain.NewHistory{
			Hostname:         cell(row, columns["hostname"]),
			WorkingDirectory: cell(row, columns["working_directory"]),
			Command:          cell(row, columns["command"]),
		}
		if _, err := s.Record(ctx, entry); err != nil {
			var validationErr *ValidationError
			if errors.As(err, &validationErr) {
				summary.InvalidRows++
				summary.Errors = append(summary.Errors, RowError{Row: rowNumber, Message: validationErr.Error()})
				continue
			}
			return summary, fmt.Errorf("failed to import row %d: %w", rowNumber, err)
		}
		summary.ImportedRows++
	}

	s.logger.InfoContext(ctx, "history import finished",
		"file", req.FileName,
		"total", summary.TotalRows,
		"imported", summary.ImportedRows,
		"invalid", summary.InvalidRows,
	)
	return summary, nil
}

func parseTable(fileName string, payload []byte) ([][]string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("failed to read csv: %v", err)}
	}
	return records, nil
}

func parseExcel(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &ValidationError{Field: "file", Message: fmt.Sprintf("failed to open xlsx: %v", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ValidationError{Field: "file", Message: "excel file has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

// splitHeader returns the first non-empty row as header, the rows after it and
// its zero based index.
func splitHeader(records [][]string) ([]string, [][]string, int) {
	for idx, row := range records {
		if isEmptyRow(row) {
			continue
		}
		return row, records[idx+1:], idx
	}
	return nil, nil, -1
}

func mapColumns(header []string) (map[string]int, error) {
	columns := map[string]int{}
	for idx, label := range header {
		key := strings.ToLower(strings.TrimSpace(label))
		key = strings.ReplaceAll(strings.ReplaceAll(key, " ", "_"), "-", "_")
		if canonical, ok := columnAliases[key]; ok {
			if _, seen := columns[canonical]; !seen {
				columns[canonical] = idx
			}
		}
	}

	var missing []string
	for _, name := range []string{"hostname", "working_directory", "command"} {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Field: "file", Message: "missing columns: " + strings.Join(missing, ", ")}
	}
	return columns, nil
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func isEmptyRow(row []string) bool {
	for _, value := range row {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
