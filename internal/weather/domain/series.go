package domain

import (
	"errors"
	"math"
	"sort"
	"time"
)

var (
	// ErrEmptySeries is returned when a series has no samples.
	ErrEmptySeries = errors.New("weather: empty series")
	// ErrUnorderedSeries is returned when two samples share a timestamp.
	ErrUnorderedSeries = errors.New("weather: timestamps not strictly increasing")
	// ErrNoIrradiance is returned when neither GHI nor DNI+DHI is present.
	ErrNoIrradiance = errors.New("weather: need ghi, or both dni and dhi")
)

// Sample is one hourly weather record in canonical units:
// irradiance W/m2, temperature degC, wind speed m/s, pressure Pa.
// Missing values are NaN.
type Sample struct {
	Time      time.Time
	GHI       float64
	DNI       float64
	DHI       float64
	TempAir   float64
	WindSpeed float64
	Pressure  float64
}

// Series is an hourly weather time series with strictly increasing timestamps.
type Series struct {
	Samples []Sample
}

// NewSeries wraps samples into a Series. Input is sorted by time; duplicate
// timestamps are rejected.
func NewSeries(samples []Sample) (Series, error) {
	if len(samples) == 0 {
		return Series{}, ErrEmptySeries
	}
	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Time.After(sorted[i-1].Time) {
			return Series{}, ErrUnorderedSeries
		}
	}
	return Series{Samples: sorted}, nil
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Samples) }

// Start returns the first timestamp.
func (s Series) Start() time.Time {
	if len(s.Samples) == 0 {
		return time.Time{}
	}
	return s.Samples[0].Time
}

// End returns the last timestamp.
func (s Series) End() time.Time {
	if len(s.Samples) == 0 {
		return time.Time{}
	}
	return s.Samples[len(s.Samples)-1].Time
}

// StepSeconds returns the median sampling interval in seconds, 3600 by default.
func (s Series) StepSeconds() int {
	if len(s.Samples) < 2 {
		return 3600
	}
	diffs := make([]float64, 0, len(s.Samples)-1)
	for i := 1; i < len(s.Samples); i++ {
		diffs = append(diffs, s.Samples[i].Time.Sub(s.Samples[i-1].Time).Seconds())
	}
	sort.Float64s(diffs)
	return int(diffs[len(diffs)/2])
}

// HasGHI reports whether any finite GHI value is present.
func (s Series) HasGHI() bool { return s.hasFinite(func(sm Sample) float64 { return sm.GHI }) }

// HasDNI reports whether any finite DNI value is present.
func (s Series) HasDNI() bool { return s.hasFinite(func(sm Sample) float64 { return sm.DNI }) }

// HasDHI reports whether any finite DHI value is present.
func (s Series) HasDHI() bool { return s.hasFinite(func(sm Sample) float64 { return sm.DHI }) }

func (s Series) hasFinite(get func(Sample) float64) bool {
	for _, sample := range s.Samples {
		value := get(sample)
		if !math.IsNaN(value) && !math.IsInf(value, 0) {
			return true
		}
	}
	return false
}

// ValidateIrradiance verifies the series can feed the simulation at all.
func (s Series) ValidateIrradiance() error {
	if len(s.Samples) == 0 {
		return ErrEmptySeries
	}
	if s.HasGHI() {
		return nil
	}
	if s.HasDNI() && s.HasDHI() {
		return nil
	}
	return ErrNoIrradiance
}

// Default met values applied before simulation when a column is absent.
const (
	DefaultTempAirC    = 20.0
	DefaultWindSpeedMS = 1.0
)

// FillMetDefaults replaces missing air temperature and wind speed with
// conservative defaults so the thermal model always has inputs.
// It returns the names of the columns that were defaulted.
func (s *Series) FillMetDefaults() []string {
	tempFilled := false
	windFilled := false
	for i := range s.Samples {
		if math.IsNaN(s.Samples[i].TempAir) {
			s.Samples[i].TempAir = DefaultTempAirC
			tempFilled = true
		}
		if math.IsNaN(s.Samples[i].WindSpeed) {
			s.Samples[i].WindSpeed = DefaultWindSpeedMS
			windFilled = true
		}
	}
	var filled []string
	if tempFilled {
		filled = append(filled, ColTempAir)
	}
	if windFilled {
		filled = append(filled, ColWindSpeed)
	}
	return filled
}
