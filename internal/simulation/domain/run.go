// Package domain defines the simulation run aggregate: one request to turn a
// weather source into hourly PV production and KPIs.
package domain

import (
	"errors"
	"fmt"
	"time"

	"pvsim-cloud/internal/pvmodel"
	weatherdomain "pvsim-cloud/internal/weather/domain"
)

// Weather source identifiers.
const (
	SourcePVGISHourly = "pvgis"
	SourcePVGISTMY    = "pvgis_tmy"
	SourceNASAPower   = "nasa_power"
	SourceEPWUpload   = "epw"
	SourceCSVUpload   = "csv"
)

// Run lifecycle statuses.
const (
	StatusRequested = "requested"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrNotFound       = errors.New("simulation: run not found")
	ErrInvalidRequest = errors.New("simulation: invalid request")
)

// RunRequest is a validated simulation request. For upload sources the
// series arrives pre-parsed; for remote sources it is fetched by the service.
type RunRequest struct {
	TenantID string
	Name     string
	Source   string

	Latitude  float64
	Longitude float64
	// Timezone is an optional IANA name. When empty, a fixed offset is
	// derived from the longitude.
	Timezone string

	// Year selects the pvgis hourly archive year.
	Year int
	// StartDate/EndDate bound the nasa_power range (inclusive days, UTC).
	StartDate time.Time
	EndDate   time.Time

	System pvmodel.SystemConfig

	// Upload sources only.
	UploadSeries weatherdomain.Series
	UploadMeta   weatherdomain.SourceMeta
}

// Validate checks the request invariants common to every source plus the
// source-specific ones.
func (r RunRequest) Validate() error {
	if r.TenantID == "" {
		return fmt.Errorf("%w: tenant required", ErrInvalidRequest)
	}
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("%w: latitude %.4f out of [-90,90]", ErrInvalidRequest, r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("%w: longitude %.4f out of [-180,180]", ErrInvalidRequest, r.Longitude)
	}
	if err := r.System.Validate(); err != nil {
		return err
	}
	switch r.Source {
	case SourcePVGISHourly:
		if r.Year == 0 {
			return fmt.Errorf("%w: year required for %s", ErrInvalidRequest, r.Source)
		}
	case SourcePVGISTMY:
	case SourceNASAPower:
		if r.StartDate.IsZero() || r.EndDate.IsZero() {
			return fmt.Errorf("%w: start and end dates required for %s", ErrInvalidRequest, r.Source)
		}
		if r.EndDate.Before(r.StartDate) {
			return fmt.Errorf("%w: end date before start date", ErrInvalidRequest)
		}
	case SourceEPWUpload, SourceCSVUpload:
		if r.UploadSeries.Len() == 0 {
			return fmt.Errorf("%w: upload series required for %s", ErrInvalidRequest, r.Source)
		}
	default:
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRequest, r.Source)
	}
	return nil
}

// Run is the persisted simulation aggregate.
type Run struct {
	ID       string
	TenantID string
	Name     string
	Status   string
	Source   string

	Latitude     float64
	Longitude    float64
	TimezoneName string

	System pvmodel.SystemConfig

	KPIs       *pvmodel.KPIs
	SourceMeta *weatherdomain.SourceMeta
	Error      string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
}

// Hour is one persisted simulated hour of a run.
type Hour struct {
	RunID        string
	Time         time.Time
	POAGlobalWM2 float64
	CellTempC    float64
	DCPowerW     float64
	ACPowerW     float64
}
