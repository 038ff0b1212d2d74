package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	weatherdomain "pvsim-cloud/internal/weather/domain"
)

var (
	ErrNoDatetimeColumn = errors.New("ingest: csv has no datetime column")
	ErrNoDataRows       = errors.New("ingest: csv has no data rows")
)

// Timestamp layouts accepted in uploaded CSVs, tried in order. Layouts
// without a zone are interpreted in the caller-provided location.
var csvTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
}

// ReadCSV parses an uploaded CSV with arbitrary headers. The first column
// whose name contains "time" or "date" is the timestamp; the remaining
// columns go through fuzzy mapping and unit inference. loc resolves naive
// timestamps and may be nil for UTC.
func ReadCSV(r io.Reader, fileName string, loc *time.Location) (weatherdomain.Series, weatherdomain.SourceMeta, error) {
	if loc == nil {
		loc = time.UTC
	}
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("ingest: read csv: %w", err)
	}
	if len(records) < 2 {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, ErrNoDataRows
	}

	header := records[0]
	timeIdx := -1
	for i, name := range header {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "time") || strings.Contains(lower, "date") {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, ErrNoDatetimeColumn
	}

	rows := records[1:]
	times := make([]time.Time, 0, len(rows))
	columns := make([]weatherdomain.Column, 0, len(header)-1)
	colIdx := make([]int, 0, len(header)-1)
	for i, name := range header {
		if i == timeIdx {
			continue
		}
		columns = append(columns, weatherdomain.Column{
			Name:   name,
			Values: make([]float64, 0, len(rows)),
		})
		colIdx = append(colIdx, i)
	}

	for rowNum, rec := range rows {
		if len(rec) != len(header) {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("ingest: csv row %d has %d fields, want %d", rowNum+2, len(rec), len(header))
		}
		ts, err := parseCSVTime(rec[timeIdx], loc)
		if err != nil {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("ingest: csv row %d: %w", rowNum+2, err)
		}
		times = append(times, ts)
		for c := range columns {
			columns[c].Values = append(columns[c].Values, parseCSVValue(rec[colIdx[c]]))
		}
	}

	series, conversions, err := weatherdomain.Normalize(weatherdomain.Table{Times: times, Columns: columns})
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("ingest: %w", err)
	}
	meta := weatherdomain.SourceMeta{
		Name:        "CSV Upload",
		Details:     map[string]string{"original_name": fileName},
		Conversions: conversions,
		Derived: map[string]string{
			"dni": weatherdomain.DerivedUnknown,
			"dhi": weatherdomain.DerivedUnknown,
		},
	}
	return series, meta, nil
}

func parseCSVTime(field string, loc *time.Location) (time.Time, error) {
	field = strings.TrimSpace(field)
	for _, layout := range csvTimeLayouts {
		if strings.Contains(layout, "Z07") {
			if ts, err := time.Parse(layout, field); err == nil {
				return ts, nil
			}
			continue
		}
		if ts, err := time.ParseInLocation(layout, field, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", field)
}

func parseCSVValue(field string) float64 {
	field = strings.TrimSpace(field)
	if field == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
