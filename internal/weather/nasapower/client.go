// Package nasapower fetches hourly GHI and meteorology from the NASA POWER
// API. The service reports no irradiance components, so DNI and DHI must be
// derived downstream.
package nasapower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	weatherdomain "pvsim-cloud/internal/weather/domain"
)

const (
	fillValue  = -999.0
	timeLayout = "2006010215"
	dateLayout = "20060102"
)

var ErrEmptyResponse = errors.New("nasapower: empty response")

// Client talks to a NASA POWER API endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a POWER client. baseURL defaults to the public API.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = "https://power.larc.nasa.gov/api"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type powerResponse struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

// FetchHourly retrieves GHI, 2m air temperature, 2m wind speed and surface
// pressure for the inclusive date range. Timestamps are UTC, hour beginning.
func (c *Client) FetchHourly(ctx context.Context, lat, lon float64, start, end time.Time) (weatherdomain.Series, weatherdomain.SourceMeta, error) {
	q := url.Values{}
	q.Set("parameters", "ALLSKY_SFC_SW_DWN,T2M,WS2M,PS")
	q.Set("community", "RE")
	q.Set("longitude", fmt.Sprintf("%.5f", lon))
	q.Set("latitude", fmt.Sprintf("%.5f", lat))
	q.Set("start", start.UTC().Format(dateLayout))
	q.Set("end", end.UTC().Format(dateLayout))
	q.Set("format", "JSON")
	q.Set("time-standard", "UTC")
	requestURL := c.baseURL + "/temporal/hourly/point?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("nasapower: http %d", resp.StatusCode)
	}
	var payload powerResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("nasapower: decode: %w", err)
	}

	ghi := payload.Properties.Parameter["ALLSKY_SFC_SW_DWN"]
	if len(ghi) == 0 {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, ErrEmptyResponse
	}
	temp := payload.Properties.Parameter["T2M"]
	wind := payload.Properties.Parameter["WS2M"]
	pressure := payload.Properties.Parameter["PS"]

	keys := make([]string, 0, len(ghi))
	for k := range ghi {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	samples := make([]weatherdomain.Sample, 0, len(keys))
	for _, k := range keys {
		ts, err := time.Parse(timeLayout, k)
		if err != nil {
			return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("nasapower: parse time %q: %w", k, err)
		}
		samples = append(samples, weatherdomain.Sample{
			Time:      ts.UTC(),
			GHI:       cleanFill(ghi[k]),
			DNI:       math.NaN(),
			DHI:       math.NaN(),
			TempAir:   lookupClean(temp, k),
			WindSpeed: lookupClean(wind, k),
			Pressure:  kPaToPa(lookupClean(pressure, k)),
		})
	}

	series, err := weatherdomain.NewSeries(samples)
	if err != nil {
		return weatherdomain.Series{}, weatherdomain.SourceMeta{}, fmt.Errorf("nasapower: %w", err)
	}
	meta := weatherdomain.SourceMeta{
		Name: "NASA POWER Hourly",
		Details: map[string]string{
			"url":   requestURL,
			"start": start.UTC().Format(dateLayout),
			"end":   end.UTC().Format(dateLayout),
		},
		Conversions: []weatherdomain.Conversion{
			{Column: weatherdomain.ColPressure, From: "kPa", To: "Pa"},
		},
		Derived: map[string]string{
			"dni": weatherdomain.DerivedUnknown,
			"dhi": weatherdomain.DerivedUnknown,
		},
	}
	return series, meta, nil
}

// POWER reports surface pressure in kPa.
func kPaToPa(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return v * 1000
}

func lookupClean(m map[string]float64, key string) float64 {
	v, ok := m[key]
	if !ok {
		return math.NaN()
	}
	return cleanFill(v)
}

func cleanFill(v float64) float64 {
	if v == fillValue {
		return math.NaN()
	}
	return v
}
