// Package ingest parses uploaded weather files (EPW and free-form CSV) into
// the canonical hourly schema.
package ingest

import (
	"bufio"
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
	ErrBadEPWHeader = errors.New("ingest: malformed epw header")
	ErrShortEPWRow  = errors.New("ingest: epw data row too short")
)

// EPW field positions (0-based) and missing-value markers.
const (
	epwHeaderLines = 8

	epwFieldHour      = 3
	epwFieldDryBulb   = 6
	epwFieldPressure  = 9
	epwFieldGHI       = 13
	epwFieldDNI       = 14
	epwFieldDHI       = 15
	epwFieldWindSpeed = 21
	epwMinFields      = 22

	epwMissingTemp       = 99.9
	epwMissingPressure   = 999999.0
	epwMissingIrradiance = 9999.0
	epwMissingWind       = 999.0
)

// EPWLocation is the site header of an EPW file.
type EPWLocation struct {
	City          string  `json:"city"`
	Country       string  `json:"country"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	TimezoneHours float64 `json:"timezone_hours"`
	ElevationM    float64 `json:"elevation_m"`
}

// ReadEPW parses an EnergyPlus weather file. EPW stamps rows with hours 1-24
// meaning "the hour ending at"; timestamps are shifted to hour-beginning in
// the file's local standard time.
func ReadEPW(r io.Reader, fileName string) (weatherdomain.Series, EPWLocation, weatherdomain.SourceMeta, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return weatherdomain.Series{}, EPWLocation{}, weatherdomain.SourceMeta{}, ErrBadEPWHeader
	}
	loc, err := parseEPWLocation(scanner.Text())
	if err != nil {
		return weatherdomain.Series{}, EPWLocation{}, weatherdomain.SourceMeta{}, err
	}
	for i := 1; i < epwHeaderLines; i++ {
		if !scanner.Scan() {
			return weatherdomain.Series{}, EPWLocation{}, weatherdomain.SourceMeta{}, ErrBadEPWHeader
		}
	}

	offset := int(loc.TimezoneHours * 3600)
	zone := time.FixedZone(fmt.Sprintf("UTC%+.1f", loc.TimezoneHours), offset)

	var samples []weatherdomain.Sample
	line := epwHeaderLines
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) < epwMinFields {
			return weatherdomain.Series{}, EPWLocation{}, weatherdomain.SourceMeta{}, fmt.Errorf("%w: line %d", ErrShortEPWRow, line)
		}

		year, err1 := strconv.Atoi(fields[0])
		month, err2 := strconv.Atoi(fields[1])
		day, err3 := strconv.Atoi(fields[2])
		hour, err4 := strconv.Atoi(fields[epwFieldHour])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return weatherdomain.Series{}, EPWLocation{}, weatherdomain.SourceMeta{}, fmt.Errorf("ingest: epw line %d: bad timestamp", line)
		}
		ts := time.Date(year, time.Month(month), day, hour-1, 0, 0, 0, zone)

		samples = append(samples, weatherdomain.Sample{
			Time:      ts,
			GHI:       epwValue(fields[epwFieldGHI], epwMissingIrradiance),
			DNI:       epwValue(fields[epwFieldDNI], epwMissingIrradiance),
			DHI:       epwValue(fields[epwFieldDHI], epwMissingIrradiance),
			TempAir:   epwValue(fields[epwFieldDryBulb], epwMissingTemp),
			WindSpeed: epwValue(fields[epwFieldWindSpeed], epwMissingWind),
			Pressure:  epwValue(fields[epwFieldPressure], epwMissingPressure),
		})
	}
	if err := scanner.Err(); err != nil {
		return weatherdomain.Series{}, EPWLocation{}, weatherdomain.SourceMeta{}, fmt.Errorf("ingest: read epw: %w", err)
	}

	series, err := weatherdomain.NewSeries(samples)
	if err != nil {
		return weatherdomain.Series{}, EPWLocation{}, weatherdomain.SourceMeta{}, fmt.Errorf("ingest: %w", err)
	}
	meta := weatherdomain.SourceMeta{
		Name: "EPW Upload",
		Details: map[string]string{
			"original_name": fileName,
			"city":          loc.City,
			"country":       loc.Country,
		},
		Derived: map[string]string{
			"dni": weatherdomain.DerivedMeasured,
			"dhi": weatherdomain.DerivedMeasured,
		},
	}
	return series, loc, meta, nil
}

func parseEPWLocation(header string) (EPWLocation, error) {
	fields := strings.Split(header, ",")
	if len(fields) < 10 || !strings.EqualFold(strings.TrimSpace(fields[0]), "LOCATION") {
		return EPWLocation{}, ErrBadEPWHeader
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(fields[6]), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(fields[7]), 64)
	tz, err3 := strconv.ParseFloat(strings.TrimSpace(fields[8]), 64)
	elev, err4 := strconv.ParseFloat(strings.TrimSpace(fields[9]), 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return EPWLocation{}, ErrBadEPWHeader
	}
	return EPWLocation{
		City:          strings.TrimSpace(fields[1]),
		Country:       strings.TrimSpace(fields[3]),
		Latitude:      lat,
		Longitude:     lon,
		TimezoneHours: tz,
		ElevationM:    elev,
	}, nil
}

func epwValue(field string, missing float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || v == missing {
		return math.NaN()
	}
	return v
}
