// Package tabular parses delimited text exports and spreadsheets into rows
// keyed by normalized header names.
package tabular

import (
	"strings"
)

// DefaultSeparator is the field separator for comma-separated exports.
const DefaultSeparator = ','

// Row maps a normalized header name to a trimmed cell value.
type Row map[string]string

// Parse parses comma-separated text. Empty or whitespace-only input yields
// zero rows.
func Parse(text string) []Row {
	return ParseWithSeparator(text, DefaultSeparator)
}

// ParseWithSeparator parses delimited text using sep as the field boundary.
// The first non-empty line is the header row and every following non-blank
// line produces exactly one row.
func ParseWithSeparator(text string, sep rune) []Row {
	lines := nonBlankLines(text)
	if len(lines) == 0 {
		return []Row{}
	}

	headers := normalizeHeaders(SplitLine(lines[0], sep))
	rows := make([]Row, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, buildRow(headers, SplitLine(line, sep)))
	}
	return rows
}

// Headers returns the normalized header names of text in column order.
func Headers(text string) []string {
	lines := nonBlankLines(text)
	if len(lines) == 0 {
		return nil
	}
	return normalizeHeaders(SplitLine(lines[0], DefaultSeparator))
}

// SplitLine splits one line on sep. A double quote toggles the quoted state
// and separators inside a quoted span are kept. Quote characters are dropped
// and every field is trimmed. Escaped quotes are not recognized.
func SplitLine(line string, sep rune) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == sep && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// NormalizeHeader lower-cases h and replaces every character outside
// [a-z0-9] with an underscore.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	var b strings.Builder
	b.Grow(len(h))
	for _, r := range h {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		headers[i] = NormalizeHeader(h)
	}
	return headers
}

// buildRow pads missing trailing cells with "" and ignores cells beyond the header.
func buildRow(headers, cells []string) Row {
	row := make(Row, len(headers))
	for i, h := range headers {
		if i < len(cells) {
			row[h] = cells[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

func nonBlankLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
