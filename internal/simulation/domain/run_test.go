package domain

import (
	"errors"
	"testing"
	"time"

	"pvsim-cloud/internal/pvmodel"
	weatherdomain "pvsim-cloud/internal/weather/domain"
)

func validRequest() RunRequest {
	return RunRequest{
		TenantID:  "tenant-1",
		Source:    SourcePVGISHourly,
		Latitude:  52.0,
		Longitude: 13.4,
		Year:      2020,
		System:    pvmodel.DefaultSystemConfig(),
	}
}

func TestRunRequestValidate(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*RunRequest)
	}{
		{"tenant", func(r *RunRequest) { r.TenantID = "" }},
		{"latitude", func(r *RunRequest) { r.Latitude = 95 }},
		{"longitude", func(r *RunRequest) { r.Longitude = -181 }},
		{"source", func(r *RunRequest) { r.Source = "meteonorm" }},
		{"year", func(r *RunRequest) { r.Year = 0 }},
	}
	for _, tc := range cases {
		req := validRequest()
		tc.mutate(&req)
		if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", tc.name, err)
		}
	}

	// System validation flows through.
	req := validRequest()
	req.System.TiltDeg = 120
	if err := req.Validate(); !errors.Is(err, pvmodel.ErrInvalidConfig) {
		t.Fatalf("expected system config error, got %v", err)
	}
}

func TestRunRequestValidateNASARange(t *testing.T) {
	req := validRequest()
	req.Source = SourceNASAPower
	req.Year = 0
	if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("missing range should fail, got %v", err)
	}
	req.StartDate = time.Date(2021, 7, 2, 0, 0, 0, 0, time.UTC)
	req.EndDate = time.Date(2021, 7, 1, 0, 0, 0, 0, time.UTC)
	if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("inverted range should fail, got %v", err)
	}
	req.EndDate = time.Date(2021, 7, 10, 0, 0, 0, 0, time.UTC)
	if err := req.Validate(); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
}

func TestRunRequestValidateUpload(t *testing.T) {
	req := validRequest()
	req.Source = SourceCSVUpload
	req.Year = 0
	if err := req.Validate(); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty upload should fail, got %v", err)
	}
	series, err := weatherdomain.NewSeries([]weatherdomain.Sample{
		{Time: time.Date(2021, 7, 1, 10, 0, 0, 0, time.UTC), GHI: 500},
		{Time: time.Date(2021, 7, 1, 11, 0, 0, 0, time.UTC), GHI: 600},
	})
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	req.UploadSeries = series
	if err := req.Validate(); err != nil {
		t.Fatalf("upload request rejected: %v", err)
	}
}

func TestResolveTimezone(t *testing.T) {
	loc, method, err := ResolveTimezone("Europe/Berlin", 13.4)
	if err != nil || loc.String() != "Europe/Berlin" || method != TimezoneIANA {
		t.Fatalf("iana resolution: loc=%v method=%s err=%v", loc, method, err)
	}

	loc, method, err = ResolveTimezone("", 13.4)
	if err != nil || method != TimezoneLongitudeOffset {
		t.Fatalf("fallback resolution: method=%s err=%v", method, err)
	}
	// 13.4 degrees east rounds to +1 hour.
	if _, off := time.Date(2021, 1, 1, 0, 0, 0, 0, loc).Zone(); off != 3600 {
		t.Fatalf("expected +1h offset, got %d", off)
	}

	loc, _, err = ResolveTimezone("", -122.4)
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if _, off := time.Date(2021, 1, 1, 0, 0, 0, 0, loc).Zone(); off != -8*3600 {
		t.Fatalf("expected -8h offset, got %d", off)
	}

	if _, _, err := ResolveTimezone("Mars/Olympus", 0); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for unknown zone, got %v", err)
	}
}
