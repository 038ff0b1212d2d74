// Command simulate runs the PV model offline against a local EPW or CSV
// weather file and prints the resulting KPIs.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"pvsim-cloud/internal/pvmodel"
	simapp "pvsim-cloud/internal/simulation/application"
	simdomain "pvsim-cloud/internal/simulation/domain"
	weatherdomain "pvsim-cloud/internal/weather/domain"
	"pvsim-cloud/internal/weather/ingest"
)

type options struct {
	file     string
	source   string
	lat      float64
	lon      float64
	timezone string
	outPath  string

	tilt    float64
	azimuth float64
	dcKW    float64
	losses  float64
	model   string
}

func main() {
	var opts options
	flag.StringVar(&opts.file, "file", "", "path to the weather file")
	flag.StringVar(&opts.source, "source", "epw", "file format: epw or csv")
	flag.Float64Var(&opts.lat, "lat", 0, "site latitude (EPW header used when omitted)")
	flag.Float64Var(&opts.lon, "lon", 0, "site longitude (EPW header used when omitted)")
	flag.StringVar(&opts.timezone, "tz", "", "IANA timezone for naive csv timestamps")
	flag.StringVar(&opts.outPath, "out", "", "optional path for the hourly results csv")
	flag.Float64Var(&opts.tilt, "tilt", 30, "surface tilt in degrees")
	flag.Float64Var(&opts.azimuth, "azimuth", 180, "surface azimuth in degrees, 180=south")
	flag.Float64Var(&opts.dcKW, "dc-kw", 1, "dc nameplate in kWp")
	flag.Float64Var(&opts.losses, "losses", 14, "lumped system losses in percent")
	flag.StringVar(&opts.model, "model", "perez", "transposition model: perez or haydavies")
	flag.Parse()

	if opts.file == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		log.Fatalf("simulate: %v", err)
	}
}

func run(opts options) error {
	f, err := os.Open(opts.file)
	if err != nil {
		return err
	}
	defer f.Close()

	var series weatherdomain.Series
	var meta weatherdomain.SourceMeta
	switch opts.source {
	case simdomain.SourceEPWUpload:
		var loc ingest.EPWLocation
		series, loc, meta, err = ingest.ReadEPW(f, opts.file)
		if err != nil {
			return err
		}
		if opts.lat == 0 && opts.lon == 0 {
			opts.lat = loc.Latitude
			opts.lon = loc.Longitude
		}
	case simdomain.SourceCSVUpload:
		loc, _, tzErr := simdomain.ResolveTimezone(opts.timezone, opts.lon)
		if tzErr != nil {
			return tzErr
		}
		series, meta, err = ingest.ReadCSV(f, opts.file, loc)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown source %q", opts.source)
	}

	for _, col := range series.FillMetDefaults() {
		meta.MarkDerived(col, weatherdomain.DerivedDefault)
	}
	if err := series.ValidateIrradiance(); err != nil {
		return err
	}
	simapp.DeriveIrradiance(&series, opts.lat, opts.lon, &meta)

	system := pvmodel.DefaultSystemConfig()
	system.TiltDeg = opts.tilt
	system.AzimuthDeg = opts.azimuth
	system.DCKilowatts = opts.dcKW
	system.LossesPct = opts.losses
	system.Transposition = opts.model
	if err := system.Validate(); err != nil {
		return err
	}

	results, err := pvmodel.Simulate(series, opts.lat, opts.lon, system)
	if err != nil {
		return err
	}
	kpis := pvmodel.ComputeKPIs(results, system)

	fmt.Printf("samples:          %d\n", series.Len())
	fmt.Printf("annual energy:    %.2f kWh\n", kpis.AnnualKWh)
	fmt.Printf("poa insolation:   %.2f kWh/m2\n", kpis.POAAnnualKWhM2)
	if kpis.PerformanceRatio != nil {
		fmt.Printf("performance:      %.3f\n", *kpis.PerformanceRatio)
	}
	if kpis.CapacityFactor != nil {
		fmt.Printf("capacity factor:  %.3f\n", *kpis.CapacityFactor)
	}
	for _, key := range kpis.SortedMonthKeys() {
		fmt.Printf("  %s  %8.2f kWh\n", key, kpis.MonthlyKWh[key])
	}
	for col, method := range meta.Derived {
		fmt.Printf("derived %s: %s\n", col, method)
	}

	if opts.outPath != "" {
		if err := writeHourly(opts.outPath, results); err != nil {
			return err
		}
		fmt.Printf("hourly results written to %s\n", opts.outPath)
	}
	return nil
}

func writeHourly(path string, results []pvmodel.HourResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "poa_global_wm2", "cell_temp_c", "dc_power_w", "ac_power_w"}); err != nil {
		return err
	}
	for _, r := range results {
		rec := []string{
			r.Time.Format(time.RFC3339),
			strconv.FormatFloat(r.POAGlobalWM2, 'f', 2, 64),
			strconv.FormatFloat(r.CellTempC, 'f', 2, 64),
			strconv.FormatFloat(r.DCPowerW, 'f', 2, 64),
			strconv.FormatFloat(r.ACPowerW, 'f', 2, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
