package nasapower

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchHourly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/temporal/hourly/point" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("parameters") != "ALLSKY_SFC_SW_DWN,T2M,WS2M,PS" {
			t.Fatalf("unexpected parameters %s", q.Get("parameters"))
		}
		if q.Get("start") != "20210701" || q.Get("end") != "20210702" {
			t.Fatalf("unexpected range %s", r.URL.RawQuery)
		}
		if q.Get("time-standard") != "UTC" {
			t.Fatalf("expected UTC time standard")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"properties":{"parameter":{
			"ALLSKY_SFC_SW_DWN":{"2021070112":650.5,"2021070111":600.0,"2021070113":-999.0},
			"T2M":{"2021070111":22.0,"2021070112":23.5,"2021070113":24.0},
			"WS2M":{"2021070111":1.5,"2021070112":-999.0,"2021070113":2.0},
			"PS":{"2021070111":101.3,"2021070112":101.2,"2021070113":101.1}
		}}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	start := time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 7, 2, 0, 0, 0, 0, time.UTC)
	series, meta, err := client.FetchHourly(context.Background(), 52.0, 13.4, start, end)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("expected 3 samples, got %d", series.Len())
	}

	// Map keys arrive unordered; the series is chronological.
	first := series.Samples[0]
	if want := time.Date(2021, 7, 1, 11, 0, 0, 0, time.UTC); !first.Time.Equal(want) {
		t.Fatalf("time: want %s got %s", want, first.Time)
	}
	if first.GHI != 600 || first.TempAir != 22 || first.WindSpeed != 1.5 {
		t.Fatalf("values off: %+v", first)
	}
	// kPa converts to Pa.
	if math.Abs(first.Pressure-101300) > 0.01 {
		t.Fatalf("pressure: %f", first.Pressure)
	}
	// Fill values become missing.
	if !math.IsNaN(series.Samples[1].WindSpeed) {
		t.Fatalf("fill wind should be missing: %f", series.Samples[1].WindSpeed)
	}
	if !math.IsNaN(series.Samples[2].GHI) {
		t.Fatalf("fill ghi should be missing: %f", series.Samples[2].GHI)
	}
	// No components in this source.
	if series.HasDNI() || series.HasDHI() {
		t.Fatalf("power reports no irradiance components")
	}
	if meta.Name != "NASA POWER Hourly" || meta.Derived["dni"] != "unknown" {
		t.Fatalf("unexpected provenance: %+v", meta)
	}
	if len(meta.Conversions) != 1 || meta.Conversions[0].From != "kPa" {
		t.Fatalf("missing pressure conversion record: %+v", meta.Conversions)
	}
}

func TestFetchHourlyEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"properties":{"parameter":{}}}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL)
	start := time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	if _, _, err := client.FetchHourly(context.Background(), 52, 13, start, start); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestFetchHourlyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL)
	start := time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	if _, _, err := client.FetchHourly(context.Background(), 52, 13, start, start); err == nil {
		t.Fatalf("expected error on http 429")
	}
}
