// Package solar implements the solar geometry and irradiance models the
// simulation chain needs: solar position, clearness decomposition of global
// horizontal irradiance, and transposition onto a tilted plane.
package solar

import (
	"math"
	"time"
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi

	// SolarConstant is the mean extraterrestrial normal irradiance in W/m2.
	SolarConstant = 1366.1
)

// Position holds sun angles for one instant, in degrees.
type Position struct {
	Zenith    float64
	Elevation float64
	Azimuth   float64 // 0 = north, 90 = east, 180 = south
}

// SunPosition computes the solar position for a UTC instant at the given
// site, using the Michalsky-style closed-form approximation (accurate to a
// fraction of a degree over the satellite-data era, which is ample for an
// hourly energy model).
func SunPosition(t time.Time, latitude, longitude float64) Position {
	utc := t.UTC()

	// Days since J2000.0, including the fractional day.
	julian := julianDay(utc)
	n := julian - 2451545.0

	// Mean longitude and mean anomaly of the sun (degrees).
	meanLong := wrap360(280.460 + 0.9856474*n)
	meanAnom := wrap360(357.528+0.9856003*n) * degToRad

	// Ecliptic longitude and obliquity.
	eclipticLong := (meanLong + 1.915*math.Sin(meanAnom) + 0.020*math.Sin(2*meanAnom)) * degToRad
	obliquity := (23.439 - 0.0000004*n) * degToRad

	// Declination and right ascension.
	declination := math.Asin(math.Sin(obliquity) * math.Sin(eclipticLong))
	rightAscension := math.Atan2(math.Cos(obliquity)*math.Sin(eclipticLong), math.Cos(eclipticLong))

	// Local mean sidereal time (degrees).
	gmst := wrap360(280.46061837 + 360.98564736629*n)
	lmst := wrap360(gmst + longitude)

	// Hour angle in radians, wrapped to [-180, 180).
	hourAngle := lmst - rightAscension*radToDeg
	for hourAngle < -180 {
		hourAngle += 360
	}
	for hourAngle >= 180 {
		hourAngle -= 360
	}
	ha := hourAngle * degToRad

	lat := latitude * degToRad
	cosZenith := math.Sin(lat)*math.Sin(declination) + math.Cos(lat)*math.Cos(declination)*math.Cos(ha)
	cosZenith = clamp(cosZenith, -1, 1)
	zenith := math.Acos(cosZenith)

	// Azimuth measured clockwise from north.
	azimuth := math.Atan2(
		-math.Sin(ha),
		math.Tan(declination)*math.Cos(lat)-math.Sin(lat)*math.Cos(ha),
	)
	azimuthDeg := wrap360(azimuth * radToDeg)

	return Position{
		Zenith:    zenith * radToDeg,
		Elevation: 90 - zenith*radToDeg,
		Azimuth:   azimuthDeg,
	}
}

// ExtraterrestrialNormal returns the extraterrestrial normal irradiance for a
// day of year, including the earth-sun distance (eccentricity) correction.
func ExtraterrestrialNormal(dayOfYear int) float64 {
	b := 2 * math.Pi * float64(dayOfYear) / 365.0
	correction := 1.00011 + 0.034221*math.Cos(b) + 0.00128*math.Sin(b) +
		0.000719*math.Cos(2*b) + 0.000077*math.Sin(2*b)
	return SolarConstant * correction
}

// RelativeAirmass returns the Kasten-Young 1989 relative airmass for a zenith
// angle in degrees. Returns NaN for the sun at or below the horizon.
func RelativeAirmass(zenithDeg float64) float64 {
	if zenithDeg >= 90 {
		return math.NaN()
	}
	z := zenithDeg * degToRad
	return 1.0 / (math.Cos(z) + 0.50572*math.Pow(96.07995-zenithDeg, -1.6364))
}

// AbsoluteAirmass pressure-corrects a relative airmass. pressurePa defaults to
// standard pressure when NaN.
func AbsoluteAirmass(relative, pressurePa float64) float64 {
	if math.IsNaN(relative) {
		return math.NaN()
	}
	if math.IsNaN(pressurePa) || pressurePa <= 0 {
		pressurePa = 101325.0
	}
	return relative * pressurePa / 101325.0
}

func julianDay(t time.Time) float64 {
	year := t.Year()
	month := int(t.Month())
	day := t.Day()
	if month <= 2 {
		year--
		month += 12
	}
	a := year / 100
	b := 2 - a + a/4
	jd := math.Floor(365.25*float64(year+4716)) + math.Floor(30.6001*float64(month+1)) +
		float64(day) + float64(b) - 1524.5
	frac := (float64(t.Hour()) + float64(t.Minute())/60.0 + float64(t.Second())/3600.0) / 24.0
	return jd + frac
}

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
