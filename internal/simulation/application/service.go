// Package application orchestrates simulation runs: weather acquisition with
// caching, harmonization, irradiance derivation, the PV model chain and run
// persistence.
package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"pvsim-cloud/internal/observability/metrics"
	"pvsim-cloud/internal/pvmodel"
	simdomain "pvsim-cloud/internal/simulation/domain"
	"pvsim-cloud/internal/solar"
	weatherdomain "pvsim-cloud/internal/weather/domain"
)

// PVGISClient fetches PVGIS datasets.
type PVGISClient interface {
	FetchHourly(ctx context.Context, lat, lon float64, year int) (weatherdomain.Series, weatherdomain.SourceMeta, error)
	FetchTMY(ctx context.Context, lat, lon float64) (weatherdomain.Series, weatherdomain.SourceMeta, error)
}

// NASAPowerClient fetches NASA POWER hourly data.
type NASAPowerClient interface {
	FetchHourly(ctx context.Context, lat, lon float64, start, end time.Time) (weatherdomain.Series, weatherdomain.SourceMeta, error)
}

// WeatherCache stores fetched series keyed by request parameters.
type WeatherCache interface {
	Get(prefix string, parts map[string]string) (weatherdomain.Series, bool, error)
	Put(prefix string, parts map[string]string, series weatherdomain.Series) (string, error)
}

// RunRepository persists runs and their hourly results.
type RunRepository interface {
	Create(ctx context.Context, run *simdomain.Run) error
	MarkCompleted(ctx context.Context, run *simdomain.Run) error
	MarkFailed(ctx context.Context, id, message string, at time.Time) error
	GetByID(ctx context.Context, tenantID, id string) (*simdomain.Run, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]simdomain.Run, error)
	InsertHours(ctx context.Context, runID string, hours []simdomain.Hour) error
	ListHours(ctx context.Context, runID string) ([]simdomain.Hour, error)
}

// Service runs simulations.
type Service struct {
	repo       RunRepository
	cache      WeatherCache
	pvgis      PVGISClient
	nasa       NASAPowerClient
	logger     *log.Logger
	now        func() time.Time
	runTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithRunTimeout bounds the fetch-and-simulate stage of each run.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Service) { s.runTimeout = d }
}

// NewService constructs a Service. The cache may be nil (every fetch goes
// upstream); clients may be nil when their sources are not configured.
func NewService(repo RunRepository, cache WeatherCache, pvgis PVGISClient, nasa NASAPowerClient, logger *log.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("simulation: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		repo:   repo,
		cache:  cache,
		pvgis:  pvgis,
		nasa:   nasa,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes a simulation request end to end. The run record is created
// up front; failures are persisted with their message.
func (s *Service) Run(ctx context.Context, req simdomain.RunRequest) (*simdomain.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	loc, tzMethod, err := simdomain.ResolveTimezone(req.Timezone, req.Longitude)
	if err != nil {
		return nil, err
	}

	started := s.now()
	run := &simdomain.Run{
		ID:           newRunID(),
		TenantID:     req.TenantID,
		Name:         req.Name,
		Status:       simdomain.StatusRequested,
		Source:       req.Source,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		TimezoneName: loc.String(),
		System:       req.System,
		CreatedAt:    started,
		UpdatedAt:    started,
	}
	if err := s.repo.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("simulation: create run: %w", err)
	}

	// The timeout covers fetch and simulation only; failure bookkeeping
	// below still runs on the caller's context.
	execCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}
	result, err := s.execute(execCtx, req, loc, tzMethod)
	if err != nil {
		run.Status = simdomain.StatusFailed
		run.Error = err.Error()
		run.UpdatedAt = s.now()
		if markErr := s.repo.MarkFailed(ctx, run.ID, run.Error, run.UpdatedAt); markErr != nil {
			s.logger.Printf("simulation: mark failed %s: %v", run.ID, markErr)
		}
		metrics.ObserveSimulation(req.Source, simdomain.StatusFailed, s.now().Sub(started).Seconds())
		return run, err
	}

	run.Status = simdomain.StatusCompleted
	run.KPIs = &result.kpis
	run.SourceMeta = &result.meta
	run.UpdatedAt = s.now()
	run.CompletedAt = run.UpdatedAt
	if err := s.repo.MarkCompleted(ctx, run); err != nil {
		return run, fmt.Errorf("simulation: persist result: %w", err)
	}
	if err := s.repo.InsertHours(ctx, run.ID, result.hours); err != nil {
		return run, fmt.Errorf("simulation: persist hours: %w", err)
	}
	metrics.ObserveSimulation(req.Source, simdomain.StatusCompleted, s.now().Sub(started).Seconds())
	s.logger.Printf("simulation: run %s completed source=%s hours=%d annual_kwh=%.1f",
		run.ID, run.Source, len(result.hours), result.kpis.AnnualKWh)
	return run, nil
}

type runResult struct {
	hours []simdomain.Hour
	kpis  pvmodel.KPIs
	meta  weatherdomain.SourceMeta
}

func (s *Service) execute(ctx context.Context, req simdomain.RunRequest, loc *time.Location, tzMethod string) (runResult, error) {
	series, meta, err := s.resolveSeries(ctx, req)
	if err != nil {
		return runResult{}, err
	}
	if meta.Details == nil {
		meta.Details = map[string]string{}
	}
	meta.Details["timezone"] = loc.String()
	meta.Details["timezone_method"] = tzMethod

	series = localize(series, loc)
	for _, col := range series.FillMetDefaults() {
		meta.MarkDerived(col, weatherdomain.DerivedDefault)
	}
	if err := series.ValidateIrradiance(); err != nil {
		return runResult{}, err
	}
	DeriveIrradiance(&series, req.Latitude, req.Longitude, &meta)

	results, err := pvmodel.Simulate(series, req.Latitude, req.Longitude, req.System)
	if err != nil {
		return runResult{}, err
	}
	kpis := pvmodel.ComputeKPIs(results, req.System)

	hours := make([]simdomain.Hour, len(results))
	for i, r := range results {
		hours[i] = simdomain.Hour{
			Time:         r.Time,
			POAGlobalWM2: r.POAGlobalWM2,
			CellTempC:    r.CellTempC,
			DCPowerW:     r.DCPowerW,
			ACPowerW:     r.ACPowerW,
		}
	}
	return runResult{hours: hours, kpis: kpis, meta: meta}, nil
}

func (s *Service) resolveSeries(ctx context.Context, req simdomain.RunRequest) (weatherdomain.Series, weatherdomain.SourceMeta, error) {
	switch req.Source {
	case simdomain.SourceEPWUpload, simdomain.SourceCSVUpload:
		return req.UploadSeries, req.UploadMeta, nil

	case simdomain.SourcePVGISHourly:
		if s.pvgis == nil {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, errors.New("simulation: pvgis source not configured")
		}
		key := map[string]string{
			"src":  req.Source,
			"lat":  formatCoord(req.Latitude),
			"lon":  formatCoord(req.Longitude),
			"year": strconv.Itoa(req.Year),
		}
		meta := weatherdomain.SourceMeta{
			Name:    "PVGIS",
			Details: map[string]string{"year": strconv.Itoa(req.Year)},
			Derived: map[string]string{
				"dni": weatherdomain.DerivedBeamSun,
				"dhi": weatherdomain.DerivedMeasured,
			},
		}
		return s.cachedFetch(req.Source, key, meta, func() (weatherdomain.Series, weatherdomain.SourceMeta, error) {
			return s.pvgis.FetchHourly(ctx, req.Latitude, req.Longitude, req.Year)
		})

	case simdomain.SourcePVGISTMY:
		if s.pvgis == nil {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, errors.New("simulation: pvgis source not configured")
		}
		key := map[string]string{
			"src": req.Source,
			"lat": formatCoord(req.Latitude),
			"lon": formatCoord(req.Longitude),
		}
		meta := weatherdomain.SourceMeta{
			Name: "PVGIS TMY",
			Derived: map[string]string{
				"dni": weatherdomain.DerivedMeasured,
				"dhi": weatherdomain.DerivedMeasured,
			},
		}
		return s.cachedFetch(req.Source, key, meta, func() (weatherdomain.Series, weatherdomain.SourceMeta, error) {
			return s.pvgis.FetchTMY(ctx, req.Latitude, req.Longitude)
		})

	case simdomain.SourceNASAPower:
		if s.nasa == nil {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, errors.New("simulation: nasa_power source not configured")
		}
		key := map[string]string{
			"src":   req.Source,
			"lat":   formatCoord(req.Latitude),
			"lon":   formatCoord(req.Longitude),
			"start": req.StartDate.UTC().Format("20060102"),
			"end":   req.EndDate.UTC().Format("20060102"),
		}
		meta := weatherdomain.SourceMeta{
			Name: "NASA POWER Hourly",
			Details: map[string]string{
				"start": key["start"],
				"end":   key["end"],
			},
			Derived: map[string]string{
				"dni": weatherdomain.DerivedUnknown,
				"dhi": weatherdomain.DerivedUnknown,
			},
		}
		return s.cachedFetch(req.Source, key, meta, func() (weatherdomain.Series, weatherdomain.SourceMeta, error) {
			return s.nasa.FetchHourly(ctx, req.Latitude, req.Longitude, req.StartDate, req.EndDate)
		})
	}
	return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("%w: unknown source %q", simdomain.ErrInvalidRequest, req.Source)
}

// cachedFetch serves from the cache when possible. cachedMeta is the
// provenance attached to cache hits, where the upstream response meta is no
// longer available.
func (s *Service) cachedFetch(prefix string, key map[string]string, cachedMeta weatherdomain.SourceMeta, fetch func() (weatherdomain.Series, weatherdomain.SourceMeta, error)) (weatherdomain.Series, weatherdomain.SourceMeta, error) {
	if s.cache != nil {
		series, hit, err := s.cache.Get(prefix, key)
		if err != nil {
			s.logger.Printf("simulation: cache read %s: %v", prefix, err)
		} else if hit {
			metrics.ObserveWeatherFetch(prefix, true)
			if cachedMeta.Details == nil {
				cachedMeta.Details = map[string]string{}
			}
			cachedMeta.Details["cache"] = "hit"
			return series, cachedMeta, nil
		}
	}
	series, meta, err := fetch()
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, err
	}
	metrics.ObserveWeatherFetch(prefix, false)
	if s.cache != nil {
		if _, err := s.cache.Put(prefix, key, series); err != nil {
			s.logger.Printf("simulation: cache write %s: %v", prefix, err)
		}
	}
	return series, meta, nil
}

// DeriveIrradiance fills missing irradiance components. GHI-only sources get
// DHI from the Erbs correlation and DNI from DISC; component-only sources
// get GHI from the closure equation.
func DeriveIrradiance(series *weatherdomain.Series, lat, lon float64, meta *weatherdomain.SourceMeta) {
	hasGHI := series.HasGHI()
	hasDNI := series.HasDNI()
	hasDHI := series.HasDHI()
	if hasGHI && hasDNI && hasDHI {
		return
	}

	for i := range series.Samples {
		sm := &series.Samples[i]
		pos := solar.SunPosition(sm.Time, lat, lon)
		doy := sm.Time.YearDay()

		if !hasGHI {
			dni := sm.DNI
			dhi := sm.DHI
			if !math.IsNaN(dni) && !math.IsNaN(dhi) {
				ghi := dhi
				if pos.Zenith < 90 {
					ghi += dni * math.Cos(pos.Zenith*math.Pi/180)
				}
				sm.GHI = math.Max(0, ghi)
			}
			continue
		}

		ghi := sm.GHI
		if math.IsNaN(ghi) {
			continue
		}
		if !hasDHI || math.IsNaN(sm.DHI) {
			sm.DHI = solar.ErbsDHI(ghi, pos.Zenith, doy)
		}
		if !hasDNI || math.IsNaN(sm.DNI) {
			sm.DNI = solar.DISCDNI(ghi, pos.Zenith, doy, sm.Pressure)
		}
	}

	if !hasGHI {
		meta.MarkDerived("ghi", weatherdomain.DerivedClosure)
		return
	}
	if !hasDHI {
		meta.MarkDerived("dhi", weatherdomain.DerivedErbs)
	}
	if !hasDNI {
		meta.MarkDerived("dni", weatherdomain.DerivedDISC)
	}
}

// Get returns a run scoped to a tenant.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*simdomain.Run, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

// List returns recent runs for a tenant.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]simdomain.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListByTenant(ctx, tenantID, limit)
}

// Hours returns the hourly results of a completed run, tenant-scoped.
func (s *Service) Hours(ctx context.Context, tenantID, id string) (*simdomain.Run, []simdomain.Hour, error) {
	run, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, nil, err
	}
	hours, err := s.repo.ListHours(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, hours, nil
}

func localize(series weatherdomain.Series, loc *time.Location) weatherdomain.Series {
	for i := range series.Samples {
		series.Samples[i].Time = series.Samples[i].Time.In(loc)
	}
	return series
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 5, 64)
}

func newRunID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "run-" + hex.EncodeToString(buf)
}
