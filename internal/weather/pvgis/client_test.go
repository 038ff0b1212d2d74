package pvgis

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
		if r.URL.Path != "/seriescalc" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("components") != "1" || q.Get("outputformat") != "json" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("startyear") != "2020" || q.Get("endyear") != "2020" {
			t.Fatalf("unexpected year range %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"outputs":{"hourly":[
			{"time":"20200101:0010","Gb(i)":0.0,"Gd(i)":0.0,"Gr(i)":0.0,"H_sun":0.0,"T2m":3.1,"WS10m":2.4},
			{"time":"20200101:1110","Gb(i)":200.0,"Gd(i)":90.0,"Gr(i)":5.0,"H_sun":30.0,"T2m":8.0,"WS10m":3.0},
			{"time":"20200101:1610","Gb(i)":10.0,"Gd(i)":20.0,"Gr(i)":1.0,"H_sun":0.5,"T2m":5.0,"WS10m":2.0}
		]}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	series, meta, err := client.FetchHourly(context.Background(), 52.0, 13.4, 2020)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("expected 3 samples, got %d", series.Len())
	}

	night := series.Samples[0]
	if night.GHI != 0 || night.DNI != 0 {
		t.Fatalf("night sample should be dark: %+v", night)
	}
	if night.TempAir != 3.1 || night.WindSpeed != 2.4 {
		t.Fatalf("met fields lost: %+v", night)
	}
	if !math.IsNaN(night.Pressure) {
		t.Fatalf("hourly archive carries no pressure, got %f", night.Pressure)
	}

	noon := series.Samples[1]
	if noon.GHI != 295 {
		t.Fatalf("ghi should sum beam+diffuse+reflected, got %f", noon.GHI)
	}
	// dni = Gb / sin(30 deg) = 400.
	if math.Abs(noon.DNI-400) > 0.01 {
		t.Fatalf("dni from sun height off: %f", noon.DNI)
	}
	if noon.DHI != 90 {
		t.Fatalf("dhi: %f", noon.DHI)
	}
	if want := time.Date(2020, 1, 1, 11, 10, 0, 0, time.UTC); !noon.Time.Equal(want) {
		t.Fatalf("time: want %s got %s", want, noon.Time)
	}

	// Sun below the elevation cutoff: no beam recovery.
	if dusk := series.Samples[2]; dusk.DNI != 0 {
		t.Fatalf("low sun must zero dni, got %f", dusk.DNI)
	}

	if meta.Name != "PVGIS" || meta.Derived["dni"] != "beam_over_sin_elevation" {
		t.Fatalf("unexpected provenance: %+v", meta)
	}
}

func TestFetchHourlyYearBounds(t *testing.T) {
	client, err := NewClient("http://localhost:1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	for _, year := range []int{2004, 2024} {
		if _, _, err := client.FetchHourly(context.Background(), 52, 13, year); !errors.Is(err, ErrYearOutOfRange) {
			t.Fatalf("year %d: expected ErrYearOutOfRange, got %v", year, err)
		}
	}
}

func TestFetchHourlyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "location over sea", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL)
	if _, _, err := client.FetchHourly(context.Background(), 0, -140, 2020); err == nil {
		t.Fatalf("expected error on http 400")
	}
}

func TestFetchTMY(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tmy" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// Months picked from different source years, out of year order.
		_, _ = w.Write([]byte(`{"outputs":{"tmy_hourly":[
			{"time(UTC)":"20120101:0000","T2m":2.0,"G(h)":0.0,"Gb(n)":0.0,"Gd(h)":0.0,"WS10m":3.0,"SP":101200.0},
			{"time(UTC)":"20090201:0000","T2m":4.0,"G(h)":50.0,"Gb(n)":120.0,"Gd(h)":30.0,"WS10m":2.0,"SP":0.0}
		]}}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL)
	series, meta, err := client.FetchTMY(context.Background(), 52.0, 13.4)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", series.Len())
	}
	// Both months land in the reference year, in calendar order.
	if y := series.Samples[0].Time.Year(); y != tmyReferenceYear {
		t.Fatalf("expected coerced year %d, got %d", tmyReferenceYear, y)
	}
	if series.Samples[0].Time.Month() != time.January || series.Samples[1].Time.Month() != time.February {
		t.Fatalf("month order lost: %s, %s", series.Samples[0].Time, series.Samples[1].Time)
	}
	feb := series.Samples[1]
	if feb.GHI != 50 || feb.DNI != 120 || feb.DHI != 30 {
		t.Fatalf("irradiance mapping off: %+v", feb)
	}
	// A zero surface pressure is a gap, not vacuum.
	if !math.IsNaN(feb.Pressure) {
		t.Fatalf("zero pressure should map to missing, got %f", feb.Pressure)
	}
	if series.Samples[0].Pressure != 101200 {
		t.Fatalf("pressure lost: %f", series.Samples[0].Pressure)
	}
	if meta.Name != "PVGIS TMY" || meta.Derived["dni"] != "measured" {
		t.Fatalf("unexpected provenance: %+v", meta)
	}
}

func TestFetchTMYEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"outputs":{"tmy_hourly":[]}}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL)
	if _, _, err := client.FetchTMY(context.Background(), 52, 13); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}
