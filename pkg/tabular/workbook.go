package tabular

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseWorkbook reads the first sheet of an .xlsx workbook. Rows follow the
// same header normalization and padding rules as Parse.
func ParseWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []Row{}, nil
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	var headers []string
	rows := []Row{}
	for _, line := range cells {
		if isBlank(line) {
			continue
		}
		if headers == nil {
			headers = normalizeHeaders(line)
			continue
		}
		trimmed := make([]string, len(line))
		for i, c := range line {
			trimmed[i] = strings.TrimSpace(c)
		}
		rows = append(rows, buildRow(headers, trimmed))
	}
	return rows, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
