package ingest

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
)

func epwRow(year, month, day, hour int, drybulb, pressure, ghi, dni, dhi, wind string) string {
	fields := make([]string, 35)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = strconv.Itoa(year)
	fields[1] = strconv.Itoa(month)
	fields[2] = strconv.Itoa(day)
	fields[3] = strconv.Itoa(hour)
	fields[4] = "0"
	fields[5] = "?9?9?9"
	fields[6] = drybulb
	fields[9] = pressure
	fields[13] = ghi
	fields[14] = dni
	fields[15] = dhi
	fields[21] = wind
	return strings.Join(fields, ",")
}

func epwFixture() string {
	header := []string{
		"LOCATION,Berlin,BE,DEU,TMYx,103840,52.47,13.40,1.0,36.0",
		"DESIGN CONDITIONS,0",
		"TYPICAL/EXTREME PERIODS,0",
		"GROUND TEMPERATURES,0",
		"HOLIDAYS/DAYLIGHT SAVINGS,No,0,0,0",
		"COMMENTS 1",
		"COMMENTS 2",
		"DATA PERIODS,1,1,Data,Sunday,1/1,12/31",
	}
	rows := []string{
		epwRow(2021, 6, 1, 1, "14.2", "101200", "0", "0", "0", "1.1"),
		epwRow(2021, 6, 1, 12, "21.0", "101100", "620", "700", "150", "2.5"),
		epwRow(2021, 6, 1, 13, "99.9", "999999", "9999", "9999", "9999", "999"),
	}
	return strings.Join(append(header, rows...), "\n") + "\n"
}

func TestReadEPW(t *testing.T) {
	series, loc, meta, err := ReadEPW(strings.NewReader(epwFixture()), "berlin.epw")
	if err != nil {
		t.Fatalf("read epw: %v", err)
	}
	if loc.City != "Berlin" || loc.Country != "DEU" {
		t.Fatalf("location header: %+v", loc)
	}
	if loc.Latitude != 52.47 || loc.Longitude != 13.40 || loc.TimezoneHours != 1.0 || loc.ElevationM != 36.0 {
		t.Fatalf("location numbers: %+v", loc)
	}
	if series.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", series.Len())
	}

	// EPW hour 1 means 00:00-01:00; the sample is stamped hour-beginning
	// in the file's fixed offset.
	first := series.Samples[0]
	if first.Time.Hour() != 0 {
		t.Fatalf("hour-ending shift missing: %s", first.Time)
	}
	if _, off := first.Time.Zone(); off != 3600 {
		t.Fatalf("expected +1h zone, got offset %d", off)
	}

	noon := series.Samples[1]
	if noon.GHI != 620 || noon.DNI != 700 || noon.DHI != 150 {
		t.Fatalf("irradiance fields: %+v", noon)
	}
	if noon.TempAir != 21.0 || noon.WindSpeed != 2.5 || noon.Pressure != 101100 {
		t.Fatalf("met fields: %+v", noon)
	}

	// Sentinel markers become missing values.
	gap := series.Samples[2]
	if !math.IsNaN(gap.TempAir) || !math.IsNaN(gap.Pressure) || !math.IsNaN(gap.GHI) || !math.IsNaN(gap.WindSpeed) {
		t.Fatalf("missing markers not cleaned: %+v", gap)
	}

	if meta.Name != "EPW Upload" || meta.Details["original_name"] != "berlin.epw" {
		t.Fatalf("provenance: %+v", meta)
	}
	if meta.Derived["dni"] != "measured" {
		t.Fatalf("epw components are measured: %+v", meta.Derived)
	}
}

func TestReadEPWBadHeader(t *testing.T) {
	if _, _, _, err := ReadEPW(strings.NewReader("NOT-A-LOCATION,x\n"), "bad.epw"); !errors.Is(err, ErrBadEPWHeader) {
		t.Fatalf("expected ErrBadEPWHeader, got %v", err)
	}
	// Truncated header block.
	if _, _, _, err := ReadEPW(strings.NewReader("LOCATION,City,ST,CC,src,1,50.0,10.0,1.0,100.0\nDESIGN\n"), "bad.epw"); !errors.Is(err, ErrBadEPWHeader) {
		t.Fatalf("expected ErrBadEPWHeader on truncated file, got %v", err)
	}
}

func TestReadEPWShortRow(t *testing.T) {
	fixture := epwFixture()
	truncated := fixture + "2021,6,1,14,0\n"
	if _, _, _, err := ReadEPW(strings.NewReader(truncated), "bad.epw"); !errors.Is(err, ErrShortEPWRow) {
		t.Fatalf("expected ErrShortEPWRow, got %v", err)
	}
}
