package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"pvsim-cloud/internal/pvmodel"
	simdomain "pvsim-cloud/internal/simulation/domain"
	weatherdomain "pvsim-cloud/internal/weather/domain"
)

// RunRepository persists simulation runs and their hourly results.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run in requested state.
func (r *RunRepository) Create(ctx context.Context, run *simdomain.Run) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run == nil {
		return errors.New("run repo: nil run")
	}
	system, err := json.Marshal(run.System)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO simulation_runs (
	id, tenant_id, name, status, source, latitude, longitude, timezone_name,
	system_config, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		run.ID, run.TenantID, run.Name, run.Status, run.Source,
		run.Latitude, run.Longitude, run.TimezoneName,
		system, run.CreatedAt, run.UpdatedAt,
	)
	return err
}

// MarkCompleted stores KPIs and provenance and flips the status.
func (r *RunRepository) MarkCompleted(ctx context.Context, run *simdomain.Run) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run == nil || run.KPIs == nil {
		return errors.New("run repo: incomplete run")
	}
	kpis, err := json.Marshal(run.KPIs)
	if err != nil {
		return err
	}
	var meta []byte
	if run.SourceMeta != nil {
		meta, err = json.Marshal(run.SourceMeta)
		if err != nil {
			return err
		}
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE simulation_runs
SET status = $1, kpis = $2, source_meta = $3, completed_at = $4, updated_at = $4
WHERE id = $5`,
		simdomain.StatusCompleted, kpis, meta, run.CompletedAt, run.ID)
	return err
}

// MarkFailed records the failure message.
func (r *RunRepository) MarkFailed(ctx context.Context, id, message string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE simulation_runs
SET status = $1, error_message = $2, updated_at = $3
WHERE id = $4`,
		simdomain.StatusFailed, message, at, id)
	return err
}

// GetByID fetches a run scoped to a tenant.
func (r *RunRepository) GetByID(ctx context.Context, tenantID, id string) (*simdomain.Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, name, status, source, latitude, longitude, timezone_name,
	system_config, kpis, source_meta, error_message,
	created_at, updated_at, completed_at
FROM simulation_runs
WHERE id = $1 AND tenant_id = $2
LIMIT 1`, id, tenantID)
	run, err := scanRun(row)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, simdomain.ErrNotFound
	}
	return run, nil
}

// ListByTenant returns recent runs, newest first.
func (r *RunRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]simdomain.Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, name, status, source, latitude, longitude, timezone_name,
	system_config, kpis, source_meta, error_message,
	created_at, updated_at, completed_at
FROM simulation_runs
WHERE tenant_id = $1
ORDER BY created_at DESC
LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []simdomain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run != nil {
			result = append(result, *run)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// InsertHours stores hourly results in one transaction.
func (r *RunRepository) InsertHours(ctx context.Context, runID string, hours []simdomain.Hour) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if len(hours) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO simulation_run_hours (run_id, hour_start, poa_global_wm2, cell_temp_c, dc_power_w, ac_power_w)
VALUES ($1,$2,$3,$4,$5,$6)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, h := range hours {
		if _, err := stmt.ExecContext(ctx, runID, h.Time, h.POAGlobalWM2, h.CellTempC, h.DCPowerW, h.ACPowerW); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListHours returns hourly results in time order.
func (r *RunRepository) ListHours(ctx context.Context, runID string) ([]simdomain.Hour, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, hour_start, poa_global_wm2, cell_temp_c, dc_power_w, ac_power_w
FROM simulation_run_hours
WHERE run_id = $1
ORDER BY hour_start ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []simdomain.Hour
	for rows.Next() {
		var h simdomain.Hour
		if err := rows.Scan(&h.RunID, &h.Time, &h.POAGlobalWM2, &h.CellTempC, &h.DCPowerW, &h.ACPowerW); err != nil {
			return nil, err
		}
		h.Time = h.Time.UTC()
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*simdomain.Run, error) {
	var run simdomain.Run
	var system []byte
	var kpis []byte
	var meta []byte
	var errMsg sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.TenantID,
		&run.Name,
		&run.Status,
		&run.Source,
		&run.Latitude,
		&run.Longitude,
		&run.TimezoneName,
		&system,
		&kpis,
		&meta,
		&errMsg,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(system) > 0 {
		if err := json.Unmarshal(system, &run.System); err != nil {
			return nil, err
		}
	}
	if len(kpis) > 0 {
		var k pvmodel.KPIs
		if err := json.Unmarshal(kpis, &k); err != nil {
			return nil, err
		}
		run.KPIs = &k
	}
	if len(meta) > 0 {
		var m weatherdomain.SourceMeta
		if err := json.Unmarshal(meta, &m); err != nil {
			return nil, err
		}
		run.SourceMeta = &m
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time.UTC()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	return &run, nil
}
