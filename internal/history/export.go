package history

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rpattn/histd/internal/domain"

	"github.com/xuri/excelize/v2"
)

const (
	// ExportCSV writes comma separated values.
	ExportCSV = "csv"
	// ExportXLSX writes a single sheet workbook.
	ExportXLSX = "xlsx"

	exportSheet = "history"
)

var exportHeader = []string{"id", "hostname", "working_directory", "command", "created_at", "updated_at"}

// ExportFormat validates a requested export format, defaulting to CSV.
func ExportFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// Export writes the entries matching filter to w in the given format. Import
// reads the same columns back.
func (s *Service) Export(ctx context.Context, filter domain.HistoryFilter, format string, w io.Writer) (domain.SearchResult, error) {
	format, err := ExportFormat(format)
	if err != nil {
		return domain.SearchResult{}, err
	}

	result, err := s.Search(ctx, filter)
	if err != nil {
		return domain.SearchResult{}, err
	}

	switch format {
	case ExportXLSX:
		err = writeXLSX(w, result.Histories)
	default:
		err = writeCSV(w, result.Histories)
	}
	if err != nil {
		return domain.SearchResult{}, fmt.Errorf("failed to write %s export: %w", format, err)
	}
	return result, nil
}

func exportRow(h domain.History) []string {
	pwd := ""
	if h.WorkingDirectory != nil {
		pwd = *h.WorkingDirectory
	}
	return []string{
		fmt.Sprint(h.ID),
		h.Hostname,
		pwd,
		h.Command,
		h.CreatedAt.UTC().Format(time.RFC3339Nano),
		h.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func writeCSV(w io.Writer, histories []domain.History) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, h := range histories {
		if err := cw.Write(exportRow(h)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, histories []domain.History) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return err
	}

	if err := sw.SetRow("A1", toCells(exportHeader)); err != nil {
		return err
	}
	for i, h := range histories {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cellName, toCells(exportRow(h))); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
