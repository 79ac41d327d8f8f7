package docconv

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// convertXLSX serializes a workbook sheet by sheet, one row per line with
// cells tab-separated. Empty sheets are skipped.
func convertXLSX(in Input) (*Result, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(in.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: open workbook: %v", ErrCorruptInput, err)
	}
	defer wb.Close()

	var sb strings.Builder
	for _, sheet := range wb.GetSheetList() {
		rows, err := wb.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: read sheet %q: %v", ErrCorruptInput, sheet, err)
		}
		lines := rowsToLines(rows)
		if len(lines) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("## " + sheet + "\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}

	content := strings.TrimSpace(sb.String())
	if content == "" {
		return nil, ErrNoTextExtracted
	}
	return &Result{
		Title:       firstLine(content),
		Content:     content,
		ChunkSource: in.Name,
	}, nil
}

// convertCSV serializes a CSV file one record per line. Ragged rows are
// accepted; a structurally broken file is corrupt input.
func convertCSV(in Input) (*Result, error) {
	r := csv.NewReader(bytes.NewReader(in.Data))
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse csv: %v", ErrCorruptInput, err)
		}
		rows = append(rows, record)
	}

	lines := rowsToLines(rows)
	if len(lines) == 0 {
		return nil, ErrNoTextExtracted
	}
	content := strings.Join(lines, "\n")
	return &Result{
		Title:       firstLine(content),
		Content:     content,
		ChunkSource: in.Name,
	}, nil
}

func rowsToLines(rows [][]string) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		line := strings.TrimSpace(strings.Join(row, "\t"))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
