package pvmodel

import (
	"math"
	"sort"
	"time"
)

// KPIs summarizes a simulated year. PerformanceRatio and CapacityFactor are
// nil when the denominator is degenerate (no plane-of-array energy, no AC
// capacity).
type KPIs struct {
	AnnualKWh        float64            `json:"annual_kwh"`
	PerformanceRatio *float64           `json:"performance_ratio"`
	CapacityFactor   *float64           `json:"capacity_factor"`
	POAAnnualKWhM2   float64            `json:"poa_annual_kwh_m2"`
	MonthlyKWh       map[string]float64 `json:"monthly_kwh"`
}

// MonthKey formats a month-start key ("2021-06-01") for the monthly table.
func MonthKey(t time.Time) string {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).Format("2006-01-02")
}

// SortedMonthKeys returns the monthly table keys in calendar order.
func (k KPIs) SortedMonthKeys() []string {
	keys := make([]string, 0, len(k.MonthlyKWh))
	for key := range k.MonthlyKWh {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ComputeKPIs derives annual energy, performance ratio, capacity factor and
// monthly energy from simulated hours.
//
// PR = E_ac / (Pdc0_kW * H_poa_kWh/m2); CF = E_ac / (Pac_kW * hours).
func ComputeKPIs(results []HourResult, cfg SystemConfig) KPIs {
	var annualKWh, poaKWhM2 float64
	monthly := make(map[string]float64)
	for _, r := range results {
		kwh := r.ACPowerW / 1000
		annualKWh += kwh
		poaKWhM2 += r.POAGlobalWM2 / 1000
		monthly[MonthKey(r.Time)] += kwh
	}
	for key, v := range monthly {
		monthly[key] = round2(v)
	}

	kpis := KPIs{
		AnnualKWh:      round2(annualKWh),
		POAAnnualKWhM2: round2(poaKWhM2),
		MonthlyKWh:     monthly,
	}

	if poaKWhM2 > 0 && cfg.DCKilowatts > 0 {
		pr := round3(annualKWh / (cfg.DCKilowatts * poaKWhM2))
		if !math.IsNaN(pr) && !math.IsInf(pr, 0) {
			kpis.PerformanceRatio = &pr
		}
	}

	hours := float64(len(results))
	acKW := cfg.ACNameplateWatts() / 1000
	if hours > 0 && acKW > 0 {
		cf := round3(annualKWh / (acKW * hours))
		if !math.IsNaN(cf) && !math.IsInf(cf, 0) {
			kpis.CapacityFactor = &cf
		}
	}
	return kpis
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
