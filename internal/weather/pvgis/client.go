// Package pvgis fetches hourly satellite irradiance and TMY datasets from the
// PVGIS v5.2 API and maps them onto the canonical weather schema.
package pvgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	weatherdomain "pvsim-cloud/internal/weather/domain"
)

const (
	// Satellite coverage of the hourly radiation archive.
	MinYear = 2005
	MaxYear = 2023

	// Below this solar elevation the beam-to-normal conversion blows up
	// and DNI is forced to zero.
	minSunElevationDeg = 1.0

	timeLayout = "20060102:1504"

	// TMY months are picked from different source years, so their raw
	// timestamps do not form a monotonic series. They are re-stamped onto
	// a single non-leap reference year.
	tmyReferenceYear = 2015
)

var (
	ErrYearOutOfRange = fmt.Errorf("pvgis: year outside %d-%d", MinYear, MaxYear)
	ErrEmptyResponse  = errors.New("pvgis: empty response")
)

// Client talks to a PVGIS API endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a PVGIS client. baseURL defaults to the public API.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = "https://re.jrc.ec.europa.eu/api/v5_2"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type hourlyRecord struct {
	Time   string  `json:"time"`
	GBeam  float64 `json:"Gb(i)"`
	GDiff  float64 `json:"Gd(i)"`
	GRefl  float64 `json:"Gr(i)"`
	SunH   float64 `json:"H_sun"`
	Temp2M float64 `json:"T2m"`
	Wind10 float64 `json:"WS10m"`
}

type hourlyResponse struct {
	Outputs struct {
		Hourly []hourlyRecord `json:"hourly"`
	} `json:"outputs"`
}

// FetchHourly retrieves one calendar year of hourly satellite data for a
// horizontal plane. DNI is recovered from the horizontal beam component and
// the sun height; GHI is the sum of beam, diffuse and reflected parts.
func (c *Client) FetchHourly(ctx context.Context, lat, lon float64, year int) (weatherdomain.Series, weatherdomain.SourceMeta, error) {
	if year < MinYear || year > MaxYear {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, ErrYearOutOfRange
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.5f", lat))
	q.Set("lon", fmt.Sprintf("%.5f", lon))
	q.Set("startyear", fmt.Sprintf("%d", year))
	q.Set("endyear", fmt.Sprintf("%d", year))
	q.Set("components", "1")
	q.Set("outputformat", "json")

	var resp hourlyResponse
	if err := c.doJSON(ctx, "/seriescalc?"+q.Encode(), &resp); err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, err
	}
	if len(resp.Outputs.Hourly) == 0 {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, ErrEmptyResponse
	}

	samples := make([]weatherdomain.Sample, 0, len(resp.Outputs.Hourly))
	for _, rec := range resp.Outputs.Hourly {
		ts, err := time.Parse(timeLayout, rec.Time)
		if err != nil {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("pvgis: parse time %q: %w", rec.Time, err)
		}
		dni := 0.0
		if rec.SunH > minSunElevationDeg {
			dni = rec.GBeam / math.Sin(rec.SunH*math.Pi/180)
		}
		samples = append(samples, weatherdomain.Sample{
			Time:      ts.UTC(),
			GHI:       rec.GBeam + rec.GDiff + rec.GRefl,
			DNI:       dni,
			DHI:       rec.GDiff,
			TempAir:   rec.Temp2M,
			WindSpeed: rec.Wind10,
			Pressure:  math.NaN(),
		})
	}

	series, err := weatherdomain.NewSeries(samples)
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("pvgis: %w", err)
	}
	meta := weatherdomain.SourceMeta{
		Name:    "PVGIS",
		Details: map[string]string{"year": fmt.Sprintf("%d", year)},
		Derived: map[string]string{
			"dni": weatherdomain.DerivedBeamSun,
			"dhi": weatherdomain.DerivedMeasured,
		},
	}
	return series, meta, nil
}

type tmyRecord struct {
	Time     string  `json:"time(UTC)"`
	Temp2M   float64 `json:"T2m"`
	GHor     float64 `json:"G(h)"`
	GBeamN   float64 `json:"Gb(n)"`
	GDiffHor float64 `json:"Gd(h)"`
	Wind10   float64 `json:"WS10m"`
	Pressure float64 `json:"SP"`
}

type tmyResponse struct {
	Outputs struct {
		TMYHourly []tmyRecord `json:"tmy_hourly"`
	} `json:"outputs"`
}

// FetchTMY retrieves the typical meteorological year for a location. The TMY
// dataset reports DNI directly.
func (c *Client) FetchTMY(ctx context.Context, lat, lon float64) (weatherdomain.Series, weatherdomain.SourceMeta, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.5f", lat))
	q.Set("lon", fmt.Sprintf("%.5f", lon))
	q.Set("outputformat", "json")

	var resp tmyResponse
	if err := c.doJSON(ctx, "/tmy?"+q.Encode(), &resp); err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, err
	}
	if len(resp.Outputs.TMYHourly) == 0 {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, ErrEmptyResponse
	}

	samples := make([]weatherdomain.Sample, 0, len(resp.Outputs.TMYHourly))
	for _, rec := range resp.Outputs.TMYHourly {
		ts, err := time.Parse(timeLayout, rec.Time)
		if err != nil {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("pvgis: parse time %q: %w", rec.Time, err)
		}
		pressure := rec.Pressure
		if pressure == 0 {
			pressure = math.NaN()
		}
		ts = time.Date(tmyReferenceYear, ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), 0, 0, time.UTC)
		samples = append(samples, weatherdomain.Sample{
			Time:      ts,
			GHI:       rec.GHor,
			DNI:       rec.GBeamN,
			DHI:       rec.GDiffHor,
			TempAir:   rec.Temp2M,
			WindSpeed: rec.Wind10,
			Pressure:  pressure,
		})
	}

	series, err := weatherdomain.NewSeries(samples)
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("pvgis: %w", err)
	}
	meta := weatherdomain.SourceMeta{
		Name:    "PVGIS TMY",
		Details: map[string]string{"coerced_year": fmt.Sprintf("%d", tmyReferenceYear)},
		Derived: map[string]string{
			"dni": weatherdomain.DerivedMeasured,
			"dhi": weatherdomain.DerivedMeasured,
		},
	}
	return series, meta, nil
}

func (c *Client) doJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("pvgis: http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
