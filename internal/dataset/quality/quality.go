// Package quality scores in-memory tabular data for missing values, 3σ outliers and exact duplicates.
package quality

import (
	"crypto/sha256"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"bizlens/backend/internal/dataset/domain"
)

const (
	// NumericRatio is the share of non-missing cells that must parse as numbers for a column to be numeric.
	NumericRatio = 0.8
	// OutlierSigma is the z-score beyond which a cell is an outlier.
	OutlierSigma = 3.0

	duplicateWeight = 0.5
	outlierWeight   = 0.25
)

// IsMissing reports whether a cell counts as missing: blank, or null/NaN/N/A in any case.
func IsMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "null", "nan", "n/a":
		return true
	}
	return false
}

// ParseNumber parses a numeric cell. Thousands separators are not accepted.
func ParseNumber(v string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

type cell struct {
	row int
	v   float64
}

// column accumulates running statistics with Welford's update.
type column struct {
	missing  int
	present  int
	values   []cell
	mean, m2 float64
	min, max float64
}

func (c *column) add(row int, v float64) {
	if len(c.values) == 0 {
		c.min, c.max = v, v
	}
	c.values = append(c.values, cell{row: row, v: v})
	n := float64(len(c.values))
	d := v - c.mean
	c.mean += d / n
	c.m2 += d * (v - c.mean)
	c.min = math.Min(c.min, v)
	c.max = math.Max(c.max, v)
}

func (c *column) numeric() bool {
	return c.present > 0 && float64(len(c.values)) >= NumericRatio*float64(c.present)
}

func (c *column) stddev() float64 {
	if len(c.values) == 0 {
		return 0
	}
	return math.Sqrt(c.m2 / float64(len(c.values)))
}

// Analyze computes the quality report for rows laid out under headers. Rows shorter than
// the header are treated as having missing trailing cells.
func Analyze(headers []string, rows [][]string) *domain.QualityReport {
	cols := make([]column, len(headers))
	seen := make(map[[sha256.Size]byte]struct{}, len(rows))
	report := &domain.QualityReport{
		TotalRows:       len(rows),
		TotalColumns:    len(headers),
		MissingByColumn: make(map[string]int, len(headers)),
		Outliers:        []domain.Outlier{},
		DuplicateRows:   []int{},
		ColumnStats:     map[string]domain.ColumnStats{},
	}

	pairs := make([][2]string, len(headers))
	for r, row := range rows {
		for i := range headers {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			pairs[i] = [2]string{headers[i], v}
			c := &cols[i]
			if IsMissing(v) {
				c.missing++
				continue
			}
			c.present++
			if f, ok := ParseNumber(v); ok {
				c.add(r, f)
			}
		}
		b, _ := json.Marshal(pairs)
		h := sha256.Sum256(b)
		if _, dup := seen[h]; dup {
			report.DuplicateRows = append(report.DuplicateRows, r)
			continue
		}
		seen[h] = struct{}{}
	}
	report.DuplicateCount = len(report.DuplicateRows)

	for i, name := range headers {
		c := &cols[i]
		report.MissingByColumn[name] = c.missing
		report.MissingValues += c.missing
		if !c.numeric() {
			continue
		}
		sd := c.stddev()
		report.ColumnStats[name] = domain.ColumnStats{
			Mean: c.mean, StdDev: sd, Min: c.min, Max: c.max, Count: len(c.values),
		}
		if sd == 0 {
			continue
		}
		for _, x := range c.values {
			z := (x.v - c.mean) / sd
			if math.Abs(z) > OutlierSigma {
				report.Outliers = append(report.Outliers, domain.Outlier{Column: name, Row: x.row, Value: x.v, ZScore: round(z)})
			}
		}
	}
	report.Score = Score(report)
	return report
}

// Score is 100 × (1 − missing/cells − 0.5×duplicates/rows − 0.25×outliers/cells), clamped to [0, 100].
func Score(r *domain.QualityReport) float64 {
	cells := float64(r.TotalRows * r.TotalColumns)
	if cells == 0 {
		return 0
	}
	s := 1 - float64(r.MissingValues)/cells -
		duplicateWeight*float64(r.DuplicateCount)/float64(r.TotalRows) -
		outlierWeight*float64(len(r.Outliers))/cells
	return round(100 * math.Max(0, math.Min(1, s)))
}

func round(v float64) float64 { return math.Round(v*100) / 100 }
