package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"pvsim-cloud/internal/audit"
	"pvsim-cloud/internal/auth"
	"pvsim-cloud/internal/observability/metrics"
	simapp "pvsim-cloud/internal/simulation/application"
	simpostgres "pvsim-cloud/internal/simulation/infrastructure/postgres"
	simhttp "pvsim-cloud/internal/simulation/interfaces/http"
	"pvsim-cloud/internal/weather/filecache"
	"pvsim-cloud/internal/weather/nasapower"
	"pvsim-cloud/internal/weather/pvgis"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := simapp.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("PVSIM_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal("PVSIM_JWT_SECRET is required")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)
	runRepo := simpostgres.NewRunRepository(db)

	cache, err := filecache.New(cfg.CacheRoot)
	if err != nil {
		logger.Fatalf("weather cache error: %v", err)
	}
	pvgisClient, err := pvgis.NewClient(cfg.PVGISBaseURL)
	if err != nil {
		logger.Fatalf("pvgis client error: %v", err)
	}
	nasaClient, err := nasapower.NewClient(cfg.NASAPowerBaseURL)
	if err != nil {
		logger.Fatalf("nasa power client error: %v", err)
	}

	service, err := simapp.NewService(runRepo, cache, pvgisClient, nasaClient, logger,
		simapp.WithRunTimeout(cfg.RunTimeout))
	if err != nil {
		logger.Fatalf("simulation service error: %v", err)
	}
	simHandler, err := simhttp.NewHandler(service, auditRepo, cfg.DefaultSystem, cfg.ListLimit)
	if err != nil {
		logger.Fatalf("simulation handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/simulations", simHandler)
	mux.Handle("/api/v1/simulations/", simHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadTimeout: 30 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTP(routeLabel(r.URL.Path), resp.status, elapsed)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, elapsed)
	})
}

// routeLabel collapses run-specific paths to keep metric cardinality bounded.
func routeLabel(path string) string {
	if path == "/api/v1/simulations" {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/simulations/") {
		rest := strings.TrimPrefix(path, "/api/v1/simulations/")
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			return "/api/v1/simulations/{id}/" + rest[idx+1:]
		}
		return "/api/v1/simulations/{id}"
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
