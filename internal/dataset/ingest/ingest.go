// Package ingest parses uploaded CSV files, cleans them and extracts metric data points.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"bizlens/backend/internal/dataset/domain"
	"bizlens/backend/internal/dataset/quality"
)

// MaxRows caps the data rows accepted in one upload.
const MaxRows = 100_000

// Kind is the inferred type of a column.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindDate
)

// Table is a parsed CSV: normalized headers and data rows padded to the header width.
type Table struct {
	Headers []string
	Rows    [][]string
	Kinds   []Kind
}

// Parse reads a CSV with a header row. Headers are normalized to lower_snake and rows that
// are entirely empty are dropped.
func Parse(r io.Reader, maxRows int) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCSV, err)
	}
	t := &Table{Headers: NormalizeHeaders(header)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCSV, err)
		}
		if emptyRow(rec) {
			continue
		}
		if maxRows > 0 && len(t.Rows) >= maxRows {
			return nil, domain.ErrTooManyRows
		}
		row := make([]string, len(t.Headers))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	if len(t.Rows) == 0 {
		return nil, domain.ErrEmptyFile
	}
	return t, nil
}

func emptyRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// NormalizeHeaders lower-cases headers and joins words with underscores. Blank headers become
// column_<n> and repeated names get the first numeric suffix no other column uses.
func NormalizeHeaders(raw []string) []string {
	out := make([]string, len(raw))
	used := make(map[string]int, len(raw))
	for i, h := range raw {
		n := normalizeHeader(strings.TrimPrefix(h, "\ufeff"))
		if n == "" {
			n = "column_" + strconv.Itoa(i+1)
		}
		if k := used[n]; k > 0 {
			cand := n
			for used[cand] > 0 {
				k++
				cand = n + "_" + strconv.Itoa(k)
			}
			used[n] = k
			n = cand
		}
		used[n]++
		out[i] = n
	}
	return out
}

func normalizeHeader(h string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(h) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// IsDateColumn reports whether a column holds dates, judged by its name.
func IsDateColumn(name string) bool {
	return strings.Contains(name, "date") || strings.Contains(name, "timestamp")
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04",
	"2006-01",
}

// ParseDate parses the date formats seen in spreadsheet exports. Times without a zone are UTC.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Clean infers column kinds and fills missing cells in place: numeric columns get "0",
// string columns get "", and date columns are rewritten as RFC 3339 ("" when unparseable).
func Clean(t *Table) {
	t.Kinds = make([]Kind, len(t.Headers))
	for i, h := range t.Headers {
		switch {
		case IsDateColumn(h):
			t.Kinds[i] = KindDate
		case numericColumn(t.Rows, i):
			t.Kinds[i] = KindNumber
		}
	}
	for _, row := range t.Rows {
		for i, v := range row {
			switch t.Kinds[i] {
			case KindDate:
				if d, ok := ParseDate(v); ok {
					row[i] = d.Format(time.RFC3339)
				} else {
					row[i] = ""
				}
			case KindNumber:
				if quality.IsMissing(v) {
					row[i] = "0"
				} else {
					row[i] = strings.TrimSpace(v)
				}
			default:
				if quality.IsMissing(v) {
					row[i] = ""
				}
			}
		}
	}
}

func numericColumn(rows [][]string, col int) bool {
	present, parsed := 0, 0
	for _, row := range rows {
		if quality.IsMissing(row[col]) {
			continue
		}
		present++
		if _, ok := quality.ParseNumber(row[col]); ok {
			parsed++
		}
	}
	return present > 0 && float64(parsed) >= quality.NumericRatio*float64(present)
}

// DataPoints turns every numeric cell of a cleaned table into a data point. The timestamp is
// the row's first parseable date column, or fallback. String columns become dimensions.
func DataPoints(t *Table, datasetID, companyID string, fallback time.Time) []*domain.DataPoint {
	var out []*domain.DataPoint
	for _, row := range t.Rows {
		recorded, dated := fallback, false
		var dims map[string]string
		for i, v := range row {
			switch t.Kinds[i] {
			case KindDate:
				if d, ok := ParseDate(v); ok && !dated {
					recorded, dated = d, true
				}
			case KindString:
				if v != "" {
					if dims == nil {
						dims = make(map[string]string)
					}
					dims[t.Headers[i]] = v
				}
			}
		}
		for i, v := range row {
			if t.Kinds[i] != KindNumber {
				continue
			}
			f, ok := quality.ParseNumber(v)
			if !ok {
				continue
			}
			out = append(out, &domain.DataPoint{
				DatasetID:   datasetID,
				CompanyID:   companyID,
				MetricName:  t.Headers[i],
				MetricValue: f,
				RecordedAt:  recorded,
				Dimensions:  dims,
			})
		}
	}
	return out
}

// Records returns the rows as column-name maps for storage.
func (t *Table) Records() []domain.Row {
	out := make([]domain.Row, len(t.Rows))
	for r, row := range t.Rows {
		m := make(domain.Row, len(t.Headers))
		for i, h := range t.Headers {
			m[h] = row[i]
		}
		out[r] = m
	}
	return out
}
