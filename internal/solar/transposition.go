package solar

import (
	"errors"
	"math"
)

// Transposition model identifiers accepted in system configuration.
const (
	ModelHayDavies = "haydavies"
	ModelPerez     = "perez"
)

// ErrUnknownModel is returned for an unsupported transposition model name.
var ErrUnknownModel = errors.New("solar: unknown transposition model")

// POA holds plane-of-array irradiance components in W/m2.
type POA struct {
	Global         float64
	Beam           float64
	SkyDiffuse     float64
	GroundDiffuse  float64
	AngleOfIncDeg  float64
	BeamIAMApplied float64 // beam after the physical IAM factor
}

// AngleOfIncidence returns the angle in degrees between the sun vector and
// the surface normal for a tilted, oriented plane.
func AngleOfIncidence(pos Position, surfaceTiltDeg, surfaceAzimuthDeg float64) float64 {
	zen := pos.Zenith * degToRad
	tilt := surfaceTiltDeg * degToRad
	cosAOI := math.Cos(zen)*math.Cos(tilt) +
		math.Sin(zen)*math.Sin(tilt)*math.Cos((pos.Azimuth-surfaceAzimuthDeg)*degToRad)
	return math.Acos(clamp(cosAOI, -1, 1)) * radToDeg
}

// PhysicalIAM computes the incidence angle modifier from Snell/Bougher physics
// with glass defaults (n=1.526, K=4 1/m, L=0.002 m).
func PhysicalIAM(aoiDeg float64) float64 {
	if aoiDeg >= 90 {
		return 0
	}
	if aoiDeg <= 0 {
		return 1
	}
	const (
		n = 1.526
		k = 4.0
		l = 0.002
	)
	theta1 := aoiDeg * degToRad
	theta2 := math.Asin(math.Sin(theta1) / n)

	tau := math.Exp(-k*l/math.Cos(theta2)) *
		(1 - 0.5*(sq(math.Sin(theta2-theta1))/sq(math.Sin(theta2+theta1))+
			sq(math.Tan(theta2-theta1))/sq(math.Tan(theta2+theta1))))

	theta2Zero := math.Asin(math.Sin(0.000001) / n)
	tauZero := math.Exp(-k*l/math.Cos(theta2Zero)) *
		(1 - 0.5*(sq(math.Sin(theta2Zero-0.000001))/sq(math.Sin(theta2Zero+0.000001))+
			sq(math.Tan(theta2Zero-0.000001))/sq(math.Tan(theta2Zero+0.000001))))

	iam := tau / tauZero
	return clamp(iam, 0, 1)
}

func sq(v float64) float64 { return v * v }

// TranspositionInput bundles the per-hour quantities a transposition needs.
type TranspositionInput struct {
	Pos        Position
	GHI        float64
	DNI        float64
	DHI        float64
	DayOfYear  int
	PressurePa float64
	Albedo     float64
}

// Transpose projects irradiance components onto the array plane with the
// requested sky-diffuse model.
func Transpose(model string, in TranspositionInput, surfaceTiltDeg, surfaceAzimuthDeg float64) (POA, error) {
	switch model {
	case ModelHayDavies, ModelPerez:
	default:
		return POA{}, ErrUnknownModel
	}

	aoi := AngleOfIncidence(in.Pos, surfaceTiltDeg, surfaceAzimuthDeg)
	cosAOI := math.Max(0, math.Cos(aoi*degToRad))

	beam := math.Max(0, in.DNI) * cosAOI

	var sky float64
	if model == ModelHayDavies {
		sky = hayDaviesSkyDiffuse(in, aoi, surfaceTiltDeg)
	} else {
		sky = perezSkyDiffuse(in, aoi, surfaceTiltDeg)
	}

	ground := math.Max(0, in.GHI) * in.Albedo * (1 - math.Cos(surfaceTiltDeg*degToRad)) / 2

	global := beam + sky + ground
	if global < 0 || math.IsNaN(global) {
		global = 0
	}
	return POA{
		Global:         global,
		Beam:           beam,
		SkyDiffuse:     math.Max(0, sky),
		GroundDiffuse:  math.Max(0, ground),
		AngleOfIncDeg:  aoi,
		BeamIAMApplied: beam * PhysicalIAM(aoi),
	}, nil
}

func hayDaviesSkyDiffuse(in TranspositionInput, aoiDeg, tiltDeg float64) float64 {
	dhi := math.Max(0, in.DHI)
	if dhi == 0 {
		return 0
	}
	i0 := ExtraterrestrialNormal(in.DayOfYear)
	anisotropy := 0.0
	if i0 > 0 && in.DNI > 0 {
		anisotropy = clamp(in.DNI/i0, 0, 1)
	}
	cosZen := math.Cos(in.Pos.Zenith * degToRad)
	rb := 0.0
	if cosZen > 0.01745 { // zenith < ~89 deg
		rb = math.Max(0, math.Cos(aoiDeg*degToRad)) / cosZen
	}
	isotropicView := (1 + math.Cos(tiltDeg*degToRad)) / 2
	return dhi * (anisotropy*rb + (1-anisotropy)*isotropicView)
}

// Perez 1990 "all sites composite" brightness coefficients, indexed by the
// sky clearness bin.
var perezF1 = [8][3]float64{
	{-0.0083117, 0.5877285, -0.0620636},
	{0.1299457, 0.6825954, -0.1513752},
	{0.3296958, 0.4868735, -0.2210958},
	{0.5682053, 0.1874525, -0.2951290},
	{0.8730280, -0.3920403, -0.3616149},
	{1.1326077, -1.2367284, -0.4118494},
	{1.0601591, -1.5999137, -0.3589221},
	{0.6777470, -0.3272588, -0.2504286},
}

var perezF2 = [8][3]float64{
	{-0.0596012, 0.0721249, -0.0220216},
	{-0.0189325, 0.0659650, -0.0288748},
	{0.0554140, -0.0639588, -0.0260542},
	{0.1088631, -0.1519229, -0.0139754},
	{0.2255647, -0.4620442, 0.0012448},
	{0.2877813, -0.8230357, 0.0558651},
	{0.2642124, -1.1272340, 0.1310694},
	{0.1561313, -1.3765031, 0.2506212},
}

var perezBinEdges = []float64{1.065, 1.230, 1.500, 1.950, 2.800, 4.500, 6.200}

func perezSkyDiffuse(in TranspositionInput, aoiDeg, tiltDeg float64) float64 {
	dhi := math.Max(0, in.DHI)
	if dhi == 0 {
		return 0
	}
	zenRad := in.Pos.Zenith * degToRad

	// Sky clearness epsilon with the kappa*z^3 stabilizer.
	const kappa = 1.041
	z3 := kappa * zenRad * zenRad * zenRad
	epsilon := ((dhi+math.Max(0, in.DNI))/dhi + z3) / (1 + z3)

	bin := len(perezBinEdges)
	for i, edge := range perezBinEdges {
		if epsilon < edge {
			bin = i
			break
		}
	}

	am := RelativeAirmass(in.Pos.Zenith)
	if math.IsNaN(am) {
		// Sun below horizon: isotropic fallback.
		return dhi * (1 + math.Cos(tiltDeg*degToRad)) / 2
	}
	i0 := ExtraterrestrialNormal(in.DayOfYear)
	brightness := dhi * am / i0

	f1 := perezF1[bin][0] + perezF1[bin][1]*brightness + perezF1[bin][2]*zenRad
	if f1 < 0 {
		f1 = 0
	}
	f2 := perezF2[bin][0] + perezF2[bin][1]*brightness + perezF2[bin][2]*zenRad

	a := math.Max(0, math.Cos(aoiDeg*degToRad))
	b := math.Max(math.Cos(85*degToRad), math.Cos(zenRad))

	tiltRad := tiltDeg * degToRad
	sky := dhi * ((1-f1)*(1+math.Cos(tiltRad))/2 + f1*a/b + f2*math.Sin(tiltRad))
	return math.Max(0, sky)
}
