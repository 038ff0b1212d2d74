// Package http exposes the simulation REST surface.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pvsim-cloud/internal/audit"
	"pvsim-cloud/internal/auth"
	"pvsim-cloud/internal/export"
	"pvsim-cloud/internal/observability/metrics"
	"pvsim-cloud/internal/pvmodel"
	simapp "pvsim-cloud/internal/simulation/application"
	simdomain "pvsim-cloud/internal/simulation/domain"
	"pvsim-cloud/internal/weather/ingest"
)

const (
	routePrefix      = "/api/v1/simulations"
	dateLayout       = "2006-01-02"
	maxUploadBytes   = 32 << 20
	defaultListLimit = 100
)

// Handler serves simulation endpoints.
type Handler struct {
	service       *simapp.Service
	auditLogger   audit.Logger
	defaultSystem pvmodel.SystemConfig
	listLimit     int
}

// NewHandler constructs a Handler.
func NewHandler(service *simapp.Service, auditLogger audit.Logger, defaultSystem pvmodel.SystemConfig, listLimit int) (*Handler, error) {
	if service == nil {
		return nil, errors.New("simulation handler: nil service")
	}
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	return &Handler{
		service:       service,
		auditLogger:   auditLogger,
		defaultSystem: defaultSystem,
		listLimit:     listLimit,
	}, nil
}

// ServeHTTP routes simulation requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, routePrefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, routePrefix)
	rest = strings.TrimPrefix(rest, "/")

	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusForbidden)
		return
	}

	if rest == "" {
		switch r.Method {
		case http.MethodPost:
			h.handleCreate(w, r, tenantID)
		case http.MethodGet:
			h.handleList(w, r, tenantID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	parts := strings.Split(rest, "/")
	runID := parts[0]
	if runID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGet(w, r, tenantID, runID)
		return
	}
	if len(parts) == 2 && r.Method == http.MethodGet {
		switch parts[1] {
		case "hourly.csv":
			h.handleExport(w, r, tenantID, runID, "csv")
			return
		case "export.xlsx":
			h.handleExport(w, r, tenantID, runID, "xlsx")
			return
		case "provenance.json":
			h.handleExport(w, r, tenantID, runID, "provenance")
			return
		case "bundle.zip":
			h.handleExport(w, r, tenantID, runID, "bundle")
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

type createRequest struct {
	Name      string          `json:"name"`
	Source    string          `json:"source"`
	Latitude  float64         `json:"latitude"`
	Longitude float64         `json:"longitude"`
	Timezone  string          `json:"timezone"`
	Year      int             `json:"year"`
	StartDate string          `json:"start_date"`
	EndDate   string          `json:"end_date"`
	System    *systemOverride `json:"system"`
}

// systemOverride mirrors pvmodel.SystemConfig with pointer fields so an
// absent field and an explicit zero (tilt 0, losses 0) are distinguishable.
type systemOverride struct {
	Layout        *string  `json:"layout"`
	TiltDeg       *float64 `json:"tilt_deg"`
	AzimuthDeg    *float64 `json:"azimuth_deg"`
	DCKilowatts   *float64 `json:"dc_kwp"`
	ACKilowatts   *float64 `json:"ac_kw"`
	ACDCRatio     *float64 `json:"ac_dc_ratio"`
	LossesPct     *float64 `json:"losses_pct"`
	Transposition *string  `json:"transposition"`
	Albedo        *float64 `json:"albedo"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req simdomain.RunRequest
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = h.parseUploadRequest(r, tenantID)
	} else {
		req, err = h.parseJSONRequest(r, tenantID)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.service.Run(r.Context(), req)
	if err != nil {
		if run != nil {
			// Persisted failed run: report it with the failure message.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(toRunResponse(run))
			h.logAudit(r, run.ID, "simulation.run.create", map[string]any{"source": req.Source, "status": run.Status})
			return
		}
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toRunResponse(run))
	h.logAudit(r, run.ID, "simulation.run.create", map[string]any{"source": req.Source, "status": run.Status})
}

func (h *Handler) parseJSONRequest(r *http.Request, tenantID string) (simdomain.RunRequest, error) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return simdomain.RunRequest{}, errors.New("invalid json")
	}
	req := simdomain.RunRequest{
		TenantID:  tenantID,
		Name:      body.Name,
		Source:    body.Source,
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Timezone:  body.Timezone,
		Year:      body.Year,
		System:    mergeSystem(h.defaultSystem, body.System),
	}
	if body.StartDate != "" {
		start, err := time.Parse(dateLayout, body.StartDate)
		if err != nil {
			return simdomain.RunRequest{}, errors.New("start_date must be YYYY-MM-DD")
		}
		req.StartDate = start.UTC()
	}
	if body.EndDate != "" {
		end, err := time.Parse(dateLayout, body.EndDate)
		if err != nil {
			return simdomain.RunRequest{}, errors.New("end_date must be YYYY-MM-DD")
		}
		req.EndDate = end.UTC()
	}
	return req, nil
}

func (h *Handler) parseUploadRequest(r *http.Request, tenantID string) (simdomain.RunRequest, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return simdomain.RunRequest{}, errors.New("invalid multipart form")
	}
	source := r.FormValue("source")
	req := simdomain.RunRequest{
		TenantID: tenantID,
		Name:     r.FormValue("name"),
		Source:   source,
		Timezone: r.FormValue("timezone"),
		System:   h.defaultSystem,
	}
	if raw := r.FormValue("system"); raw != "" {
		var override systemOverride
		if err := json.Unmarshal([]byte(raw), &override); err != nil {
			return simdomain.RunRequest{}, errors.New("system must be json")
		}
		req.System = mergeSystem(h.defaultSystem, &override)
	}
	var err error
	if v := r.FormValue("latitude"); v != "" {
		if req.Latitude, err = strconv.ParseFloat(v, 64); err != nil {
			return simdomain.RunRequest{}, errors.New("latitude must be a number")
		}
	}
	if v := r.FormValue("longitude"); v != "" {
		if req.Longitude, err = strconv.ParseFloat(v, 64); err != nil {
			return simdomain.RunRequest{}, errors.New("longitude must be a number")
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return simdomain.RunRequest{}, errors.New("file is required")
	}
	defer file.Close()

	switch source {
	case simdomain.SourceEPWUpload:
		series, loc, meta, err := ingest.ReadEPW(file, header.Filename)
		if err != nil {
			return simdomain.RunRequest{}, err
		}
		req.UploadSeries = series
		req.UploadMeta = meta
		// The EPW site header fills in anything the form left out.
		if req.Latitude == 0 && req.Longitude == 0 {
			req.Latitude = loc.Latitude
			req.Longitude = loc.Longitude
		}
	case simdomain.SourceCSVUpload:
		loc, _, err := simdomain.ResolveTimezone(req.Timezone, req.Longitude)
		if err != nil {
			return simdomain.RunRequest{}, err
		}
		series, meta, err := ingest.ReadCSV(file, header.Filename, loc)
		if err != nil {
			return simdomain.RunRequest{}, err
		}
		req.UploadSeries = series
		req.UploadMeta = meta
	default:
		return simdomain.RunRequest{}, errors.New("source must be epw or csv for uploads")
	}
	return req, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, tenantID string) {
	limit := h.listLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	runs, err := h.service.List(r.Context(), tenantID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	resp := make([]runResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, toRunResponse(&runs[i]))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, tenantID, runID string) {
	run, err := h.service.Get(r.Context(), tenantID, runID)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toRunResponse(run))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, tenantID, runID, format string) {
	started := time.Now()
	run, hours, err := h.service.Hours(r.Context(), tenantID, runID)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		respondError(w, err)
		return
	}

	var data []byte
	var contentType, fileName string
	switch format {
	case "csv":
		data, err = export.BuildHourlyCSV(run, hours)
		contentType = "text/csv"
		fileName = run.ID + "-hourly.csv"
	case "xlsx":
		data, err = export.BuildRunXLSX(run, hours)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		fileName = run.ID + "-report.xlsx"
	case "provenance":
		data, err = export.BuildProvenanceJSON(run)
		contentType = "application/json"
		fileName = run.ID + "-provenance.json"
	case "bundle":
		data, err = export.BuildBundleZIP(run, hours)
		contentType = "application/zip"
		fileName = run.ID + "-bundle.zip"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(started))
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	_, _ = w.Write(data)
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(started))
	h.logAudit(r, runID, "simulation.run.export", map[string]any{"format": format})
}

type runResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name,omitempty"`
	Status      string               `json:"status"`
	Source      string               `json:"source"`
	Latitude    float64              `json:"latitude"`
	Longitude   float64              `json:"longitude"`
	Timezone    string               `json:"timezone"`
	System      pvmodel.SystemConfig `json:"system"`
	KPIs        *pvmodel.KPIs        `json:"kpis,omitempty"`
	Weather     any                  `json:"weather,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

func toRunResponse(run *simdomain.Run) runResponse {
	resp := runResponse{
		ID:        run.ID,
		Name:      run.Name,
		Status:    run.Status,
		Source:    run.Source,
		Latitude:  run.Latitude,
		Longitude: run.Longitude,
		Timezone:  run.TimezoneName,
		System:    run.System,
		KPIs:      run.KPIs,
		Error:     run.Error,
		CreatedAt: run.CreatedAt,
	}
	if run.SourceMeta != nil {
		resp.Weather = run.SourceMeta
	}
	if !run.CompletedAt.IsZero() {
		completed := run.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// mergeSystem overlays the fields present in an override onto the default
// system configuration. Explicit zeroes (flat tilt, zero losses) survive.
func mergeSystem(base pvmodel.SystemConfig, override *systemOverride) pvmodel.SystemConfig {
	if override == nil {
		return base
	}
	if override.Layout != nil {
		base.Layout = *override.Layout
	}
	if override.TiltDeg != nil {
		base.TiltDeg = *override.TiltDeg
	}
	if override.AzimuthDeg != nil {
		base.AzimuthDeg = *override.AzimuthDeg
	}
	if override.DCKilowatts != nil {
		base.DCKilowatts = *override.DCKilowatts
	}
	if override.ACKilowatts != nil {
		base.ACKilowatts = *override.ACKilowatts
	}
	if override.ACDCRatio != nil {
		base.ACDCRatio = *override.ACDCRatio
	}
	if override.LossesPct != nil {
		base.LossesPct = *override.LossesPct
	}
	if override.Transposition != nil {
		base.Transposition = *override.Transposition
	}
	if override.Albedo != nil {
		base.Albedo = *override.Albedo
	}
	return base
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, simdomain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, simdomain.ErrInvalidRequest), errors.Is(err, pvmodel.ErrInvalidConfig):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, export.ErrRunNotCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) logAudit(r *http.Request, runID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "simulation_run",
		ResourceID:   runID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
