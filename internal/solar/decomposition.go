package solar

import "math"

// Decomposition thresholds. Beyond maxDecompositionZenith the beam estimate
// from GHI is numerically unstable and forced to zero.
const (
	maxDecompositionZenith = 87.0
	maxClearnessIndex      = 1.1
)

// ClearnessIndex returns GHI normalized by the horizontal extraterrestrial
// irradiance, clamped to [0, maxClearnessIndex].
func ClearnessIndex(ghi, zenithDeg float64, dayOfYear int) float64 {
	if zenithDeg >= 90 || ghi <= 0 {
		return 0
	}
	horizontal := ExtraterrestrialNormal(dayOfYear) * math.Cos(zenithDeg*degToRad)
	if horizontal <= 0 {
		return 0
	}
	return clamp(ghi/horizontal, 0, maxClearnessIndex)
}

// ErbsDHI estimates diffuse horizontal irradiance from GHI with the Erbs
// correlation. Returns GHI itself when the sun is below the usable horizon
// (everything is diffuse at twilight).
func ErbsDHI(ghi, zenithDeg float64, dayOfYear int) float64 {
	if ghi <= 0 {
		return 0
	}
	if zenithDeg >= maxDecompositionZenith {
		return ghi
	}
	kt := ClearnessIndex(ghi, zenithDeg, dayOfYear)
	var fraction float64
	switch {
	case kt <= 0.22:
		fraction = 1.0 - 0.09*kt
	case kt <= 0.8:
		fraction = 0.9511 - 0.1604*kt + 4.388*kt*kt - 16.638*kt*kt*kt + 12.336*kt*kt*kt*kt
	default:
		fraction = 0.165
	}
	return clamp(fraction, 0, 1) * ghi
}

// DISCDNI estimates direct normal irradiance from GHI with the DISC model.
// pressurePa may be NaN (standard pressure is assumed).
func DISCDNI(ghi, zenithDeg float64, dayOfYear int, pressurePa float64) float64 {
	if ghi <= 0 || zenithDeg >= maxDecompositionZenith {
		return 0
	}
	i0 := ExtraterrestrialNormal(dayOfYear)
	kt := ClearnessIndex(ghi, zenithDeg, dayOfYear)
	if kt <= 0 {
		return 0
	}

	am := AbsoluteAirmass(RelativeAirmass(zenithDeg), pressurePa)
	if math.IsNaN(am) {
		return 0
	}

	var a, b, c float64
	if kt <= 0.6 {
		a = 0.512 - 1.56*kt + 2.286*kt*kt - 2.222*kt*kt*kt
		b = 0.370 + 0.962*kt
		c = -0.280 + 0.932*kt - 2.048*kt*kt
	} else {
		a = -5.743 + 21.77*kt - 27.49*kt*kt + 11.56*kt*kt*kt
		b = 41.40 - 118.5*kt + 66.05*kt*kt + 31.90*kt*kt*kt
		c = -47.01 + 184.2*kt - 222.0*kt*kt + 73.81*kt*kt*kt
	}

	kn := a + b*math.Exp(c*am)
	knc := 0.866 - 0.122*am + 0.0121*am*am - 0.000653*am*am*am + 0.000014*am*am*am*am
	dni := i0 * (knc - kn)
	if dni < 0 || math.IsNaN(dni) {
		return 0
	}
	return dni
}
