package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"pvsim-cloud/internal/pvmodel"
	simdomain "pvsim-cloud/internal/simulation/domain"
	weatherdomain "pvsim-cloud/internal/weather/domain"
)

func completedRun() (*simdomain.Run, []simdomain.Hour) {
	pr := 0.84
	cf := 0.13
	run := &simdomain.Run{
		ID:           "run-test",
		TenantID:     "tenant-1",
		Name:         "rooftop",
		Status:       simdomain.StatusCompleted,
		Source:       simdomain.SourcePVGISHourly,
		Latitude:     52.0,
		Longitude:    13.4,
		TimezoneName: "UTC+1",
		System:       pvmodel.DefaultSystemConfig(),
		KPIs: &pvmodel.KPIs{
			AnnualKWh:        1042.5,
			POAAnnualKWhM2:   1250.2,
			PerformanceRatio: &pr,
			CapacityFactor:   &cf,
			MonthlyKWh:       map[string]float64{"2020-01-01": 40.2, "2020-02-01": 62.8},
		},
		SourceMeta: &weatherdomain.SourceMeta{
			Name:    "PVGIS",
			Details: map[string]string{"year": "2020"},
			Derived: map[string]string{"dni": weatherdomain.DerivedBeamSun},
		},
	}
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	hours := []simdomain.Hour{
		{RunID: run.ID, Time: base, POAGlobalWM2: 0, CellTempC: 2.0, DCPowerW: 0, ACPowerW: 0},
		{RunID: run.ID, Time: base.Add(12 * time.Hour), POAGlobalWM2: 320.5, CellTempC: 14.3, DCPowerW: 280.1, ACPowerW: 268.9},
	}
	return run, hours
}

func TestBuildHourlyCSV(t *testing.T) {
	run, hours := completedRun()
	data, err := BuildHourlyCSV(run, hours)
	if err != nil {
		t.Fatalf("build csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "time,poa_global_wm2,cell_temp_c,dc_power_w,ac_power_w" {
		t.Fatalf("header: %s", lines[0])
	}
	if !strings.Contains(lines[2], "320.50") || !strings.Contains(lines[2], "268.90") {
		t.Fatalf("noon row: %s", lines[2])
	}
}

func TestBuildCSVRejectsIncompleteRun(t *testing.T) {
	run, hours := completedRun()
	run.Status = simdomain.StatusFailed
	if _, err := BuildHourlyCSV(run, hours); !errors.Is(err, ErrRunNotCompleted) {
		t.Fatalf("expected ErrRunNotCompleted, got %v", err)
	}
	if _, err := BuildRunXLSX(run, hours); !errors.Is(err, ErrRunNotCompleted) {
		t.Fatalf("xlsx: expected ErrRunNotCompleted, got %v", err)
	}
	if _, err := BuildProvenanceJSON(run); !errors.Is(err, ErrRunNotCompleted) {
		t.Fatalf("provenance: expected ErrRunNotCompleted, got %v", err)
	}
}

func TestBuildRunXLSX(t *testing.T) {
	run, hours := completedRun()
	data, err := BuildRunXLSX(run, hours)
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	// XLSX files are ZIP containers.
	if len(data) < 4 || data[0] != 'P' || data[1] != 'K' {
		t.Fatalf("not a zip container")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	var sawSheet bool
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/") {
			sawSheet = true
		}
	}
	if !sawSheet {
		t.Fatalf("workbook has no worksheets")
	}
}

func TestBuildProvenanceJSON(t *testing.T) {
	run, _ := completedRun()
	data, err := BuildProvenanceJSON(run)
	if err != nil {
		t.Fatalf("build provenance: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["run_id"] != "run-test" || payload["source"] != "pvgis" {
		t.Fatalf("payload: %v", payload)
	}
	weather, ok := payload["weather"].(map[string]any)
	if !ok || weather["name"] != "PVGIS" {
		t.Fatalf("weather provenance missing: %v", payload["weather"])
	}
}

func TestBuildBundleZIP(t *testing.T) {
	run, hours := completedRun()
	data, err := BuildBundleZIP(run, hours)
	if err != nil {
		t.Fatalf("build bundle: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	want := map[string]bool{
		"run-test-hourly.csv":      false,
		"run-test-report.xlsx":     false,
		"run-test-provenance.json": false,
	}
	for _, f := range zr.File {
		if _, ok := want[f.Name]; ok {
			want[f.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("bundle missing %s", name)
		}
	}
}
