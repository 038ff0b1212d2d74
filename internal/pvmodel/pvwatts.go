// Package pvmodel implements a fixed PVWatts v5 model chain: plane-of-array
// transposition, Faiman cell temperature, a linear temperature-derated DC
// model, lumped system losses and the PVWatts inverter curve.
package pvmodel

import (
	"errors"
	"fmt"
	"math"
	"time"

	"pvsim-cloud/internal/solar"
	weatherdomain "pvsim-cloud/internal/weather/domain"
)

const (
	LayoutFixedTilt = "fixed_tilt"

	// DC model parameters.
	gammaPdc         = -0.003 // 1/degC
	tempRefC         = 25.0
	faimanU0         = 25.0
	faimanU1         = 6.84
	defaultACDCRatio = 0.9

	// PVWatts inverter parameters.
	inverterEtaNominal   = 0.96
	inverterEtaReference = 0.9637
)

var (
	ErrInvalidConfig     = errors.New("pvmodel: invalid system configuration")
	ErrMissingIrradiance = errors.New("pvmodel: series lacks ghi, dni or dhi")
)

// SystemConfig describes a fixed-tilt PV system. Zero values for ACKilowatts
// and ACDCRatio mean "not set"; sizing then falls back to a 0.9 AC/DC ratio.
type SystemConfig struct {
	Layout        string  `json:"layout" yaml:"layout"`
	TiltDeg       float64 `json:"tilt_deg" yaml:"tilt_deg"`
	AzimuthDeg    float64 `json:"azimuth_deg" yaml:"azimuth_deg"`
	DCKilowatts   float64 `json:"dc_kwp" yaml:"dc_kwp"`
	ACKilowatts   float64 `json:"ac_kw,omitempty" yaml:"ac_kw,omitempty"`
	ACDCRatio     float64 `json:"ac_dc_ratio,omitempty" yaml:"ac_dc_ratio,omitempty"`
	LossesPct     float64 `json:"losses_pct" yaml:"losses_pct"`
	Transposition string  `json:"transposition" yaml:"transposition"`
	Albedo        float64 `json:"albedo" yaml:"albedo"`
}

// DefaultSystemConfig mirrors the sizing defaults applied when a request
// omits system parameters.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Layout:        LayoutFixedTilt,
		TiltDeg:       30,
		AzimuthDeg:    180,
		DCKilowatts:   1,
		LossesPct:     14,
		Transposition: solar.ModelPerez,
		Albedo:        0.2,
	}
}

// Validate checks geometry, sizing and model selection.
func (c SystemConfig) Validate() error {
	if c.Layout != "" && c.Layout != LayoutFixedTilt {
		return fmt.Errorf("%w: unsupported layout %q", ErrInvalidConfig, c.Layout)
	}
	if c.TiltDeg < 0 || c.TiltDeg > 90 {
		return fmt.Errorf("%w: tilt %.1f out of [0,90]", ErrInvalidConfig, c.TiltDeg)
	}
	if c.AzimuthDeg < 0 || c.AzimuthDeg > 360 {
		return fmt.Errorf("%w: azimuth %.1f out of [0,360]", ErrInvalidConfig, c.AzimuthDeg)
	}
	if c.DCKilowatts <= 0 {
		return fmt.Errorf("%w: dc capacity must be positive", ErrInvalidConfig)
	}
	if c.ACKilowatts < 0 || c.ACDCRatio < 0 {
		return fmt.Errorf("%w: ac sizing must not be negative", ErrInvalidConfig)
	}
	if c.LossesPct < 0 || c.LossesPct >= 100 {
		return fmt.Errorf("%w: losses %.1f out of [0,100)", ErrInvalidConfig, c.LossesPct)
	}
	switch c.Transposition {
	case solar.ModelPerez, solar.ModelHayDavies:
	default:
		return fmt.Errorf("%w: transposition %q", ErrInvalidConfig, c.Transposition)
	}
	if c.Albedo < 0 || c.Albedo > 1 {
		return fmt.Errorf("%w: albedo %.2f out of [0,1]", ErrInvalidConfig, c.Albedo)
	}
	return nil
}

// DCWatts returns the DC nameplate in watts.
func (c SystemConfig) DCWatts() float64 { return c.DCKilowatts * 1000 }

// ACNameplateWatts resolves the inverter DC rating: an explicit AC size wins,
// then an AC/DC ratio, then the 0.9 default.
func (c SystemConfig) ACNameplateWatts() float64 {
	switch {
	case c.ACKilowatts > 0:
		return c.ACKilowatts * 1000
	case c.ACDCRatio > 0:
		return c.DCWatts() * c.ACDCRatio
	default:
		return c.DCWatts() * defaultACDCRatio
	}
}

// LossFactor converts the lumped loss percentage into a multiplicative DC
// derate. The total is spread over a fixed PVWatts breakdown; the remainder
// above the 9% fixed categories is booked as availability.
func LossFactor(pct float64) float64 {
	components := []float64{
		2.0,                  // soiling
		2.0,                  // mismatch
		2.0,                  // wiring
		0.5,                  // connections
		1.5,                  // light-induced degradation
		1.0,                  // nameplate rating
		math.Max(0, pct-9.0), // availability
	}
	factor := 1.0
	for _, c := range components {
		factor *= 1 - c/100
	}
	return factor
}

// FaimanCellTemp returns the cell temperature in degC for the given
// plane-of-array irradiance, air temperature and wind speed.
func FaimanCellTemp(poaWM2, tempAirC, windMS float64) float64 {
	if poaWM2 <= 0 {
		return tempAirC
	}
	return tempAirC + poaWM2/(faimanU0+faimanU1*windMS)
}

// PVWattsDC applies the linear temperature-coefficient DC model.
func PVWattsDC(effPoaWM2, cellTempC, pdc0W float64) float64 {
	if effPoaWM2 <= 0 {
		return 0
	}
	return effPoaWM2 / 1000 * pdc0W * (1 + gammaPdc*(cellTempC-tempRefC))
}

// PVWattsAC converts DC power to AC with the PVWatts part-load efficiency
// curve. pdc0InvW is the inverter DC rating; output clips at its nominal AC
// limit.
func PVWattsAC(pdcW, pdc0InvW float64) float64 {
	if pdcW <= 0 || pdc0InvW <= 0 {
		return 0
	}
	pac0 := inverterEtaNominal * pdc0InvW
	zeta := pdcW / pdc0InvW
	eta := inverterEtaNominal / inverterEtaReference *
		(-0.0162*zeta - 0.0059/zeta + 0.9858)
	if eta < 0 {
		return 0
	}
	pac := eta * pdcW
	if pac > pac0 {
		pac = pac0
	}
	return math.Max(0, pac)
}

// HourResult carries one simulated hour. Time is hour-beginning in the
// series' local zone.
type HourResult struct {
	Time         time.Time
	POAGlobalWM2 float64
	CellTempC    float64
	DCPowerW     float64
	ACPowerW     float64
}

// Simulate runs the model chain over a normalized weather series. The series
// must already have ghi, dni and dhi; missing met columns should have been
// filled beforehand.
func Simulate(series weatherdomain.Series, latitude, longitude float64, cfg SystemConfig) ([]HourResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !series.HasGHI() || !series.HasDNI() || !series.HasDHI() {
		return nil, ErrMissingIrradiance
	}

	pdc0 := cfg.DCWatts()
	pdc0Inv := cfg.ACNameplateWatts()
	lossFactor := LossFactor(cfg.LossesPct)

	results := make([]HourResult, 0, series.Len())
	for _, s := range series.Samples {
		pos := solar.SunPosition(s.Time, latitude, longitude)

		ghi := zeroIfNaN(s.GHI)
		dni := zeroIfNaN(s.DNI)
		dhi := zeroIfNaN(s.DHI)

		poa, err := solar.Transpose(cfg.Transposition, solar.TranspositionInput{
			Pos:        pos,
			GHI:        ghi,
			DNI:        dni,
			DHI:        dhi,
			DayOfYear:  s.Time.YearDay(),
			PressurePa: s.Pressure,
			Albedo:     cfg.Albedo,
		}, cfg.TiltDeg, cfg.AzimuthDeg)
		if err != nil {
			return nil, err
		}

		tempAir := s.TempAir
		if math.IsNaN(tempAir) {
			tempAir = weatherdomain.DefaultTempAirC
		}
		wind := s.WindSpeed
		if math.IsNaN(wind) || wind < 0 {
			wind = weatherdomain.DefaultWindSpeedMS
		}

		cellTemp := FaimanCellTemp(poa.Global, tempAir, wind)
		effective := poa.BeamIAMApplied + poa.SkyDiffuse + poa.GroundDiffuse
		dc := PVWattsDC(effective, cellTemp, pdc0) * lossFactor
		ac := PVWattsAC(dc, pdc0Inv)

		results = append(results, HourResult{
			Time:         s.Time,
			POAGlobalWM2: poa.Global,
			CellTempC:    cellTemp,
			DCPowerW:     dc,
			ACPowerW:     ac,
		})
	}
	return results, nil
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
