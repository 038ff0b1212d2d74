package domain

import (
	"math"
	"strings"
	"time"
)

// Canonical column names shared across all weather sources.
const (
	ColGHI       = "ghi"
	ColDNI       = "dni"
	ColDHI       = "dhi"
	ColTempAir   = "temp_air"
	ColWindSpeed = "wind_speed"
	ColPressure  = "pressure"
	ColAlbedo    = "albedo"
)

// CanonicalUnits maps canonical columns to their target units.
var CanonicalUnits = map[string]string{
	ColGHI:       "W/m2",
	ColDNI:       "W/m2",
	ColDHI:       "W/m2",
	ColTempAir:   "degC",
	ColWindSpeed: "m/s",
	ColPressure:  "Pa",
	ColAlbedo:    "-",
}

// fuzzyAliases lists header fragments that identify a canonical column.
// Order matters: more specific columns are matched before catch-alls.
var fuzzyAliases = []struct {
	canonical string
	aliases   []string
}{
	{ColDNI, []string{"dni", "direct", "beam", "gbn", "allskysfcswdni"}},
	{ColDHI, []string{"dhi", "diffuse", "gdh", "allskysfcswdiff"}},
	{ColGHI, []string{"ghi", "global", "globalhor", "igh", "allskysfcswdwn", "gh"}},
	{ColTempAir, []string{"tempair", "temp", "t2m", "ta", "temperature", "drybulb"}},
	{ColWindSpeed, []string{"windspeed", "wind", "ws2m", "ws10m", "wspd"}},
	{ColPressure, []string{"pressure", "press", "ps", "pres", "sp"}},
	{ColAlbedo, []string{"albedo", "rho"}},
}

// GuessColumn maps a raw header name onto a canonical column name.
// Returns "" when the header is not recognized.
func GuessColumn(name string) string {
	n := normalizeHeader(name)
	if n == "" {
		return ""
	}
	for _, entry := range fuzzyAliases {
		for _, alias := range entry.aliases {
			if n == alias || strings.HasPrefix(n, alias) {
				return entry.canonical
			}
		}
	}
	return ""
}

func normalizeHeader(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Pressure units recognized by inference.
const (
	UnitPa  = "Pa"
	UnitHPa = "hPa"
	UnitKPa = "kPa"

	UnitWPerM2    = "W/m2"
	UnitKWhPerM2  = "kWh/m2"
	sampleWindow  = 500
	minKWhMeanCut = 5.0
)

// InferPressureUnit guesses the unit of a pressure column from its magnitude:
// sea-level pressure is ~101 kPa, ~1013 hPa, ~101325 Pa.
func InferPressureUnit(values []float64) string {
	mean, ok := finiteMean(values, sampleWindow)
	if !ok {
		return UnitPa
	}
	switch {
	case mean > 70 && mean < 110:
		return UnitKPa
	case mean > 700 && mean < 1100:
		return UnitHPa
	default:
		return UnitPa
	}
}

// InferIrradianceUnit guesses whether an irradiance column carries average
// power (W/m2) or energy per interval (kWh/m2). Hourly energy values rarely
// exceed ~1.4 kWh/m2, so a small mean indicates energy units.
func InferIrradianceUnit(values []float64, stepSeconds int) string {
	mean, ok := finiteMean(values, sampleWindow)
	if !ok {
		return UnitWPerM2
	}
	if mean < minKWhMeanCut && stepSeconds > 0 {
		return UnitKWhPerM2
	}
	return UnitWPerM2
}

func finiteMean(values []float64, limit int) (float64, bool) {
	sum := 0.0
	count := 0
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		count++
		if count >= limit {
			break
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// EnergyToPower converts kWh/m2 per interval into average W/m2 over the interval.
func EnergyToPower(kwh float64, stepSeconds int) float64 {
	if stepSeconds <= 0 {
		stepSeconds = 3600
	}
	return kwh * 1000.0 * 3600.0 / float64(stepSeconds)
}

// Column is one raw data column as delivered by a source.
type Column struct {
	Name   string
	Values []float64
}

// Table is a raw, source-shaped hourly dataset prior to harmonization.
type Table struct {
	Times   []time.Time
	Columns []Column
}

// StepSeconds returns the median sampling interval of the table, 3600 by default.
func (t Table) StepSeconds() int {
	if len(t.Times) < 2 {
		return 3600
	}
	diffs := make([]float64, 0, len(t.Times)-1)
	for i := 1; i < len(t.Times); i++ {
		diffs = append(diffs, t.Times[i].Sub(t.Times[i-1]).Seconds())
	}
	// median without a full sort dependency on order
	min, max := diffs[0], diffs[0]
	for _, d := range diffs {
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	if min == max {
		return int(min)
	}
	sorted := append([]float64(nil), diffs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return int(sorted[len(sorted)/2])
}

// Normalize harmonizes a raw table into the canonical series schema:
// fuzzy column mapping, unit inference and conversion. Unrecognized columns
// are dropped. The returned conversions describe every unit change applied.
func Normalize(table Table) (Series, []Conversion, error) {
	if len(table.Times) == 0 {
		return Series{}, nil, ErrEmptySeries
	}
	step := table.StepSeconds()

	samples := make([]Sample, len(table.Times))
	for i, ts := range table.Times {
		samples[i] = Sample{
			Time:      ts,
			GHI:       math.NaN(),
			DNI:       math.NaN(),
			DHI:       math.NaN(),
			TempAir:   math.NaN(),
			WindSpeed: math.NaN(),
			Pressure:  math.NaN(),
		}
	}

	var conversions []Conversion
	seen := map[string]bool{}
	for _, col := range table.Columns {
		canonical := GuessColumn(col.Name)
		if canonical == "" || canonical == ColAlbedo || seen[canonical] {
			continue
		}
		seen[canonical] = true

		values := col.Values
		switch canonical {
		case ColPressure:
			unit := InferPressureUnit(values)
			factor := 1.0
			switch unit {
			case UnitKPa:
				factor = 1000.0
			case UnitHPa:
				factor = 100.0
			}
			conversions = append(conversions, Conversion{Column: col.Name, From: unit, To: UnitPa})
			values = scale(values, factor)
		case ColGHI, ColDNI, ColDHI:
			unit := InferIrradianceUnit(values, step)
			if unit == UnitKWhPerM2 {
				converted := make([]float64, len(values))
				for i, v := range values {
					converted[i] = EnergyToPower(v, step)
				}
				values = converted
			}
			conversions = append(conversions, Conversion{Column: col.Name, From: unit, To: UnitWPerM2})
		}

		for i := range samples {
			if i >= len(values) {
				break
			}
			v := values[i]
			switch canonical {
			case ColGHI:
				samples[i].GHI = v
			case ColDNI:
				samples[i].DNI = v
			case ColDHI:
				samples[i].DHI = v
			case ColTempAir:
				samples[i].TempAir = v
			case ColWindSpeed:
				samples[i].WindSpeed = v
			case ColPressure:
				samples[i].Pressure = v
			}
		}
	}

	series, err := NewSeries(samples)
	if err != nil {
		return Series{}, nil, err
	}
	return series, conversions, nil
}

func scale(values []float64, factor float64) []float64 {
	if factor == 1.0 {
		return values
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out
}
