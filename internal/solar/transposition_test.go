package solar

import (
	"math"
	"testing"
	"time"
)

func clearNoonInput(t *testing.T) TranspositionInput {
	t.Helper()
	pos := SunPosition(time.Date(2021, 6, 21, 12, 0, 0, 0, time.UTC), 45.0, 0)
	dni := 850.0
	dhi := 110.0
	ghi := dni*math.Cos(pos.Zenith*degToRad) + dhi
	return TranspositionInput{
		Pos:        pos,
		GHI:        ghi,
		DNI:        dni,
		DHI:        dhi,
		DayOfYear:  172,
		PressurePa: 101325,
		Albedo:     0.2,
	}
}

func TestTransposeUnknownModel(t *testing.T) {
	if _, err := Transpose("isotropic-typo", clearNoonInput(t), 30, 180); err != ErrUnknownModel {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
}

func TestTransposeHorizontalRecoversGHI(t *testing.T) {
	in := clearNoonInput(t)
	for _, model := range []string{ModelHayDavies, ModelPerez} {
		poa, err := Transpose(model, in, 0, 180)
		if err != nil {
			t.Fatalf("%s: %v", model, err)
		}
		if poa.GroundDiffuse != 0 {
			t.Fatalf("%s: flat plane sees no ground reflection, got %f", model, poa.GroundDiffuse)
		}
		if math.Abs(poa.Global-in.GHI)/in.GHI > 0.02 {
			t.Fatalf("%s: horizontal POA should equal GHI: got %f want %f", model, poa.Global, in.GHI)
		}
	}
}

func TestTransposeTiltGainsAtNoon(t *testing.T) {
	// A south-facing tilt near the latitude collects more than a flat
	// plane at noon.
	in := clearNoonInput(t)
	flat, err := Transpose(ModelHayDavies, in, 0, 180)
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	tilted, err := Transpose(ModelHayDavies, in, 35, 180)
	if err != nil {
		t.Fatalf("tilted: %v", err)
	}
	if tilted.Global <= flat.Global {
		t.Fatalf("expected tilt gain: flat=%f tilted=%f", flat.Global, tilted.Global)
	}
}

func TestTransposeNightIsZero(t *testing.T) {
	pos := SunPosition(time.Date(2021, 6, 21, 0, 0, 0, 0, time.UTC), 45.0, 0)
	in := TranspositionInput{Pos: pos, GHI: 0, DNI: 0, DHI: 0, DayOfYear: 172, Albedo: 0.2}
	for _, model := range []string{ModelHayDavies, ModelPerez} {
		poa, err := Transpose(model, in, 30, 180)
		if err != nil {
			t.Fatalf("%s: %v", model, err)
		}
		if poa.Global != 0 {
			t.Fatalf("%s: night POA should be zero, got %f", model, poa.Global)
		}
	}
}

func TestAngleOfIncidence(t *testing.T) {
	// Sun straight overhead, flat plane: AOI is the zenith itself.
	pos := Position{Zenith: 0, Elevation: 90, Azimuth: 180}
	if aoi := AngleOfIncidence(pos, 0, 180); math.Abs(aoi) > 1e-6 {
		t.Fatalf("expected aoi 0, got %f", aoi)
	}
	// Sun overhead, vertical plane: AOI is 90.
	if aoi := AngleOfIncidence(pos, 90, 180); math.Abs(aoi-90) > 1e-6 {
		t.Fatalf("expected aoi 90, got %f", aoi)
	}
}

func TestPhysicalIAM(t *testing.T) {
	if iam := PhysicalIAM(0); math.Abs(iam-1) > 1e-6 {
		t.Fatalf("iam at normal incidence should be 1, got %f", iam)
	}
	if iam := PhysicalIAM(90); iam != 0 {
		t.Fatalf("iam at grazing incidence should be 0, got %f", iam)
	}
	mid := PhysicalIAM(60)
	if mid < 0.85 || mid >= 1 {
		t.Fatalf("iam at 60 degrees out of range: %f", mid)
	}
	if PhysicalIAM(75) >= mid {
		t.Fatalf("iam must decrease with angle")
	}
}
