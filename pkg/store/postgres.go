/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"k8s.io/utils/clock"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
)

const (
	// The pool must stay ahead of the sum of all brand concurrency caps so
	// that no executor ever queues on a connection.
	defaultMaxOpenConns = 20
	defaultMaxIdleConns = 10
)

// Postgres implements Store on PostgreSQL through sqlx. All methods run on
// ext, which is either the pooled handle or an open transaction.
type Postgres struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	clk clock.PassiveClock
}

// Open connects to DATABASE_URL and configures the pool.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database, %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func NewPostgres(db *sqlx.DB, clk clock.PassiveClock) *Postgres {
	return &Postgres{db: db, ext: db, clk: clk}
}

func (p *Postgres) Probe(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// Transact opens a serializable transaction and runs fn against a
// transaction-scoped view. A nested call observes the enclosing transaction.
func (p *Postgres) Transact(ctx context.Context, fn func(Store) error) error {
	if _, nested := p.ext.(*sqlx.Tx); nested {
		return fn(p)
	}
	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction, %w", err)
	}
	scoped := &Postgres{db: p.db, ext: tx, clk: p.clk}
	if err := fn(scoped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const plantColumns = `id, name, brand, vendor_plant_id, timezone, integration_status, status,
	installed_capacity_w, owner_customer_id, alerts_silenced_until, deleted_at, created_at, updated_at`

func (p *Postgres) ListActivePlants(ctx context.Context) ([]v1.Plant, error) {
	plants := []v1.Plant{}
	query := fmt.Sprintf(`SELECT %s FROM plants
		WHERE integration_status = $1 AND deleted_at IS NULL ORDER BY id`, plantColumns)
	if err := sqlx.SelectContext(ctx, p.ext, &plants, query, v1.IntegrationActive); err != nil {
		return nil, fmt.Errorf("listing active plants, %w", err)
	}
	return plants, nil
}

func (p *Postgres) GetPlant(ctx context.Context, id string) (*v1.Plant, error) {
	plant := &v1.Plant{}
	query := fmt.Sprintf(`SELECT %s FROM plants WHERE id = $1`, plantColumns)
	if err := sqlx.GetContext(ctx, p.ext, plant, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("plant %s, %w", id, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting plant %s, %w", id, err)
	}
	return plant, nil
}

func (p *Postgres) GetCredential(ctx context.Context, plantID string) (*v1.Credential, error) {
	credential := &v1.Credential{}
	query := `SELECT plant_id, brand, encrypted_blob, key_version, updated_at FROM credentials WHERE plant_id = $1`
	if err := sqlx.GetContext(ctx, p.ext, credential, query, plantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("credential for plant %s, %w", plantID, errors.ErrNotFound)
		}
		return nil, fmt.Errorf("getting credential for plant %s, %w", plantID, err)
	}
	return credential, nil
}

func (p *Postgres) SetIntegrationStatus(ctx context.Context, plantID string, status v1.IntegrationStatus) error {
	query := `UPDATE plants SET integration_status = $1, updated_at = $2 WHERE id = $3`
	if _, err := p.ext.ExecContext(ctx, query, status, p.clk.Now().UTC(), plantID); err != nil {
		return fmt.Errorf("setting integration status of plant %s, %w", plantID, err)
	}
	return nil
}

func (p *Postgres) SetPlantStatus(ctx context.Context, plantID string, status v1.PlantStatus) error {
	query := `UPDATE plants SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := p.ext.ExecContext(ctx, query, status, p.clk.Now().UTC(), plantID); err != nil {
		return fmt.Errorf("setting status of plant %s, %w", plantID, err)
	}
	return nil
}

const snapshotColumns = `id, plant_id, date::text AS date, timezone, today_energy_kwh, current_power_w,
	grid_injection_power_w, total_energy_kwh, last_seen_at, source_sampled_at, created_at, updated_at`

func (p *Postgres) UpsertSnapshot(ctx context.Context, snapshot *v1.MetricSnapshot) error {
	p.stampSnapshot(snapshot)
	query := `INSERT INTO metric_snapshots (id, plant_id, date, timezone, today_energy_kwh, current_power_w,
			grid_injection_power_w, total_energy_kwh, last_seen_at, source_sampled_at, created_at, updated_at)
		VALUES (:id, :plant_id, :date, :timezone, :today_energy_kwh, :current_power_w,
			:grid_injection_power_w, :total_energy_kwh, :last_seen_at, :source_sampled_at, :created_at, :updated_at)
		ON CONFLICT (plant_id, date) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			today_energy_kwh = EXCLUDED.today_energy_kwh,
			current_power_w = EXCLUDED.current_power_w,
			grid_injection_power_w = EXCLUDED.grid_injection_power_w,
			total_energy_kwh = EXCLUDED.total_energy_kwh,
			last_seen_at = EXCLUDED.last_seen_at,
			source_sampled_at = EXCLUDED.source_sampled_at,
			updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, snapshot); err != nil {
		return fmt.Errorf("upserting snapshot for plant %s on %s, %w", snapshot.PlantID, snapshot.Date, err)
	}
	return nil
}

func (p *Postgres) InsertSnapshotIfAbsent(ctx context.Context, snapshot *v1.MetricSnapshot) (bool, error) {
	p.stampSnapshot(snapshot)
	query := `INSERT INTO metric_snapshots (id, plant_id, date, timezone, today_energy_kwh, current_power_w,
			grid_injection_power_w, total_energy_kwh, last_seen_at, source_sampled_at, created_at, updated_at)
		VALUES (:id, :plant_id, :date, :timezone, :today_energy_kwh, :current_power_w,
			:grid_injection_power_w, :total_energy_kwh, :last_seen_at, :source_sampled_at, :created_at, :updated_at)
		ON CONFLICT (plant_id, date) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, p.ext, query, snapshot)
	if err != nil {
		return false, fmt.Errorf("inserting snapshot for plant %s on %s, %w", snapshot.PlantID, snapshot.Date, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (p *Postgres) stampSnapshot(snapshot *v1.MetricSnapshot) {
	now := p.clk.Now().UTC()
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now
}

func (p *Postgres) ListSnapshots(ctx context.Context, plantID string, dates []localtime.Date) ([]v1.MetricSnapshot, error) {
	if len(dates) == 0 {
		return []v1.MetricSnapshot{}, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(
		`SELECT %s FROM metric_snapshots WHERE plant_id = ? AND date IN (?) ORDER BY date DESC`, snapshotColumns), plantID, dates)
	if err != nil {
		return nil, fmt.Errorf("building snapshot query, %w", err)
	}
	snapshots := []v1.MetricSnapshot{}
	if err := sqlx.SelectContext(ctx, p.ext, &snapshots, p.ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing snapshots of plant %s, %w", plantID, err)
	}
	return snapshots, nil
}

func (p *Postgres) ListSnapshotsBefore(ctx context.Context, plantID string, before localtime.Date, limit int) ([]v1.MetricSnapshot, error) {
	snapshots := []v1.MetricSnapshot{}
	query := fmt.Sprintf(
		`SELECT %s FROM metric_snapshots WHERE plant_id = $1 AND date < $2 ORDER BY date DESC LIMIT $3`, snapshotColumns)
	if err := sqlx.SelectContext(ctx, p.ext, &snapshots, query, plantID, before, limit); err != nil {
		return nil, fmt.Errorf("listing snapshots of plant %s before %s, %w", plantID, before, err)
	}
	return snapshots, nil
}

const alertColumns = `id, plant_id, type, severity, state, vendor_alarm_code, device_sn, message,
	occurred_at, cleared_at, last_notified_at, last_seen_at, notifiable, created_at, updated_at`

func (p *Postgres) ListActiveAlerts(ctx context.Context, plantID string) ([]v1.Alert, error) {
	alerts := []v1.Alert{}
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE plant_id = $1 AND state IN ($2, $3) ORDER BY occurred_at`, alertColumns)
	if err := sqlx.SelectContext(ctx, p.ext, &alerts, query, plantID, v1.AlertStateNew, v1.AlertStateAcked); err != nil {
		return nil, fmt.Errorf("listing active alerts of plant %s, %w", plantID, err)
	}
	return alerts, nil
}

func (p *Postgres) InsertAlert(ctx context.Context, alert *v1.Alert) error {
	now := p.clk.Now().UTC()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now
	query := `INSERT INTO alerts (id, plant_id, type, severity, state, vendor_alarm_code, device_sn, message,
			occurred_at, cleared_at, last_notified_at, last_seen_at, notifiable, created_at, updated_at)
		VALUES (:id, :plant_id, :type, :severity, :state, :vendor_alarm_code, :device_sn, :message,
			:occurred_at, :cleared_at, :last_notified_at, :last_seen_at, :notifiable, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, alert); err != nil {
		return fmt.Errorf("inserting alert for plant %s, %w", alert.PlantID, err)
	}
	return nil
}

func (p *Postgres) UpdateAlert(ctx context.Context, alert *v1.Alert) error {
	alert.UpdatedAt = p.clk.Now().UTC()
	query := `UPDATE alerts SET severity = :severity, state = :state, message = :message,
			cleared_at = :cleared_at, last_notified_at = :last_notified_at, last_seen_at = :last_seen_at,
			notifiable = :notifiable, updated_at = :updated_at
		WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, alert); err != nil {
		return fmt.Errorf("updating alert %s, %w", alert.ID, err)
	}
	return nil
}

func (p *Postgres) InsertPollLog(ctx context.Context, pollLog *v1.PollLog) error {
	if pollLog.ID == "" {
		pollLog.ID = uuid.NewString()
	}
	query := `INSERT INTO poll_logs (id, plant_id, job_type, status, duration_ms, adapter_error_type, http_status, started_at, finished_at)
		VALUES (:id, :plant_id, :job_type, :status, :duration_ms, :adapter_error_type, :http_status, :started_at, :finished_at)`
	if _, err := sqlx.NamedExecContext(ctx, p.ext, query, pollLog); err != nil {
		return fmt.Errorf("inserting poll log for plant %s, %w", pollLog.PlantID, err)
	}
	return nil
}
