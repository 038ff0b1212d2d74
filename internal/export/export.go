// Package export renders completed simulation runs as CSV, XLSX, provenance
// JSON and a combined ZIP bundle.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	simdomain "pvsim-cloud/internal/simulation/domain"
)

var ErrRunNotCompleted = errors.New("export: run not completed")

var hourlyHeader = []string{"time", "poa_global_wm2", "cell_temp_c", "dc_power_w", "ac_power_w"}

// BuildHourlyCSV renders the hourly results table.
func BuildHourlyCSV(run *simdomain.Run, hours []simdomain.Hour) ([]byte, error) {
	if run == nil || run.Status != simdomain.StatusCompleted {
		return nil, ErrRunNotCompleted
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(hourlyHeader); err != nil {
		return nil, err
	}
	for _, h := range hours {
		rec := []string{
			h.Time.Format(time.RFC3339),
			strconv.FormatFloat(h.POAGlobalWM2, 'f', 2, 64),
			strconv.FormatFloat(h.CellTempC, 'f', 2, 64),
			strconv.FormatFloat(h.DCPowerW, 'f', 2, 64),
			strconv.FormatFloat(h.ACPowerW, 'f', 2, 64),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRunXLSX renders a workbook with summary, monthly and hourly sheets.
func BuildRunXLSX(run *simdomain.Run, hours []simdomain.Hour) ([]byte, error) {
	if run == nil || run.Status != simdomain.StatusCompleted || run.KPIs == nil {
		return nil, ErrRunNotCompleted
	}
	f := excelize.NewFile()
	summarySheet := "summary"
	monthlySheet := "monthly"
	hourlySheet := "hourly"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(monthlySheet)
	f.NewSheet(hourlySheet)

	_ = f.SetCellValue(summarySheet, "A1", "PV Simulation Run")
	_ = f.SetCellValue(summarySheet, "A3", "Run ID")
	_ = f.SetCellValue(summarySheet, "B3", run.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Name")
	_ = f.SetCellValue(summarySheet, "B4", run.Name)
	_ = f.SetCellValue(summarySheet, "A5", "Source")
	_ = f.SetCellValue(summarySheet, "B5", run.Source)
	_ = f.SetCellValue(summarySheet, "A6", "Latitude")
	_ = f.SetCellValue(summarySheet, "B6", run.Latitude)
	_ = f.SetCellValue(summarySheet, "A7", "Longitude")
	_ = f.SetCellValue(summarySheet, "B7", run.Longitude)
	_ = f.SetCellValue(summarySheet, "A8", "Timezone")
	_ = f.SetCellValue(summarySheet, "B8", run.TimezoneName)
	_ = f.SetCellValue(summarySheet, "A9", "DC Capacity (kWp)")
	_ = f.SetCellValue(summarySheet, "B9", run.System.DCKilowatts)
	_ = f.SetCellValue(summarySheet, "A10", "AC Nameplate (kW)")
	_ = f.SetCellValue(summarySheet, "B10", run.System.ACNameplateWatts()/1000)
	_ = f.SetCellValue(summarySheet, "A11", "Tilt (deg)")
	_ = f.SetCellValue(summarySheet, "B11", run.System.TiltDeg)
	_ = f.SetCellValue(summarySheet, "A12", "Azimuth (deg)")
	_ = f.SetCellValue(summarySheet, "B12", run.System.AzimuthDeg)
	_ = f.SetCellValue(summarySheet, "A13", "Transposition")
	_ = f.SetCellValue(summarySheet, "B13", run.System.Transposition)
	_ = f.SetCellValue(summarySheet, "A15", "Annual Energy (kWh)")
	_ = f.SetCellValue(summarySheet, "B15", run.KPIs.AnnualKWh)
	_ = f.SetCellValue(summarySheet, "A16", "POA Insolation (kWh/m2)")
	_ = f.SetCellValue(summarySheet, "B16", run.KPIs.POAAnnualKWhM2)
	if run.KPIs.PerformanceRatio != nil {
		_ = f.SetCellValue(summarySheet, "A17", "Performance Ratio")
		_ = f.SetCellValue(summarySheet, "B17", *run.KPIs.PerformanceRatio)
	}
	if run.KPIs.CapacityFactor != nil {
		_ = f.SetCellValue(summarySheet, "A18", "Capacity Factor")
		_ = f.SetCellValue(summarySheet, "B18", *run.KPIs.CapacityFactor)
	}

	_ = f.SetCellValue(monthlySheet, "A1", "Month")
	_ = f.SetCellValue(monthlySheet, "B1", "Energy (kWh)")
	for i, key := range run.KPIs.SortedMonthKeys() {
		row := i + 2
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("A%d", row), key)
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("B%d", row), run.KPIs.MonthlyKWh[key])
	}

	for col, name := range hourlyHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(hourlySheet, cell, name)
	}
	for i, h := range hours {
		row := i + 2
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("A%d", row), h.Time.Format(time.RFC3339))
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("B%d", row), h.POAGlobalWM2)
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("C%d", row), h.CellTempC)
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("D%d", row), h.DCPowerW)
		_ = f.SetCellValue(hourlySheet, fmt.Sprintf("E%d", row), h.ACPowerW)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildProvenanceJSON renders the run's source provenance record.
func BuildProvenanceJSON(run *simdomain.Run) ([]byte, error) {
	if run == nil || run.Status != simdomain.StatusCompleted {
		return nil, ErrRunNotCompleted
	}
	payload := map[string]any{
		"run_id":    run.ID,
		"name":      run.Name,
		"source":    run.Source,
		"latitude":  run.Latitude,
		"longitude": run.Longitude,
		"timezone":  run.TimezoneName,
		"system":    run.System,
		"kpis":      run.KPIs,
	}
	if run.SourceMeta != nil {
		payload["weather"] = run.SourceMeta
	}
	return json.MarshalIndent(payload, "", "  ")
}

// BuildBundleZIP packages CSV, XLSX and provenance JSON into one archive.
func BuildBundleZIP(run *simdomain.Run, hours []simdomain.Hour) ([]byte, error) {
	csvData, err := BuildHourlyCSV(run, hours)
	if err != nil {
		return nil, err
	}
	xlsxData, err := BuildRunXLSX(run, hours)
	if err != nil {
		return nil, err
	}
	provData, err := BuildProvenanceJSON(run)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct {
		name string
		data []byte
	}{
		{run.ID + "-hourly.csv", csvData},
		{run.ID + "-report.xlsx", xlsxData},
		{run.ID + "-provenance.json", provData},
	}
	for _, file := range files {
		w, err := zw.Create(file.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(file.data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
