package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PVSIM_CONFIG", "")
	t.Setenv("PVSIM_HTTP_ADDR", "")
	t.Setenv("PVSIM_CACHE_ROOT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr = %s", cfg.HTTPAddr)
	}
	if cfg.CacheRoot == "" {
		t.Fatalf("cache root default missing")
	}
	if cfg.RunTimeout != 5*time.Minute {
		t.Fatalf("run timeout = %s", cfg.RunTimeout)
	}
	if cfg.DefaultSystem.TiltDeg != 30 {
		t.Fatalf("default tilt = %v", cfg.DefaultSystem.TiltDeg)
	}
}

func TestLoadConfigYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	overlay := []byte(`
http_addr: ":9090"
list_limit: 25
default_system:
  tilt_deg: 20
  azimuth_deg: 170
  dc_kwp: 5
  losses_pct: 10
  transposition: haydavies
  albedo: 0.25
`)
	if err := os.WriteFile(path, overlay, 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("PVSIM_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.ListLimit != 25 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.DefaultSystem.TiltDeg != 20 || cfg.DefaultSystem.Transposition != "haydavies" {
		t.Fatalf("system overlay not applied: %+v", cfg.DefaultSystem)
	}
}

func TestLoadConfigRejectsBadSystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	overlay := []byte("default_system:\n  tilt_deg: 120\n")
	if err := os.WriteFile(path, overlay, 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("PVSIM_CONFIG", path)

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected validation error for tilt 120")
	}
}
