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

// Package polling executes poll and daily-verification jobs against vendor
// clouds. One execution holds the plant lock end to end, normalizes what the
// vendor returned into snapshots and alerts, recomputes the plant's
// traffic-light status and always leaves behind exactly one poll log row,
// panics included.
package polling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"k8s.io/utils/clock"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	"github.com/heliofleet/heliofleet/pkg/alerts"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/events"
	"github.com/heliofleet/heliofleet/pkg/locks"
	"github.com/heliofleet/heliofleet/pkg/status"
	"github.com/heliofleet/heliofleet/pkg/store"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"
	"github.com/heliofleet/heliofleet/pkg/utils/pretty"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

const (
	// DefaultJobTimeout bounds one job end to end. An overrun surfaces as
	// NETWORK_TIMEOUT and follows the normal retry path.
	DefaultJobTimeout = 60 * time.Second
	// DefaultAdapterTimeout bounds each individual vendor API call.
	DefaultAdapterTimeout = 8 * time.Second
	// DefaultPollInterval matches the scheduler cadence and sizes the plant
	// lock TTL.
	DefaultPollInterval = 10 * time.Minute

	// alarmLookback is how far back vendor alarms are requested. Anything
	// older is already folded into existing alert rows.
	alarmLookback = 24 * time.Hour
)

// Config carries the executor timeouts. Zero values fall back to the
// defaults.
type Config struct {
	// PollInterval is the scheduler cadence. The plant lock TTL is twice this
	// so a crashed worker cannot block a plant for more than one missed round.
	PollInterval   time.Duration
	JobTimeout     time.Duration
	AdapterTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = DefaultAdapterTimeout
	}
	return c
}

// Executor runs one job ticket at a time. It is stateless between executions
// and safe for concurrent use by every brand queue worker.
type Executor struct {
	store          store.Store
	locker         locks.Locker
	vault          vault.Vault
	registry       *adapters.Registry
	recorder       events.Recorder
	reconciler     *alerts.Reconciler
	zoneMismatch   *pretty.ChangeMonitor
	clk            clock.Clock
	lockTTL        time.Duration
	jobTimeout     time.Duration
	adapterTimeout time.Duration
}

func NewExecutor(s store.Store, locker locks.Locker, v vault.Vault, registry *adapters.Registry, recorder events.Recorder, clk clock.Clock, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		store:          s,
		locker:         locker,
		vault:          v,
		registry:       registry,
		recorder:       recorder,
		reconciler:     alerts.NewReconciler(clk),
		zoneMismatch:   pretty.NewChangeMonitor(),
		clk:            clk,
		lockTTL:        2 * cfg.PollInterval,
		jobTimeout:     cfg.JobTimeout,
		adapterTimeout: cfg.AdapterTimeout,
	}
}

// result is the outcome of one execution as it lands in the poll log.
type result struct {
	status     v1.PollStatus
	kind       v1.ErrorKind
	httpStatus *int
	err        error
}

func succeeded() result {
	return result{status: v1.PollSuccess}
}

// skippedResult records a job that did no work but did not fail, keeping the
// reason in the log row for audit.
func skippedResult(kind v1.ErrorKind) result {
	return result{status: v1.PollSuccess, kind: kind}
}

func failedResult(err error) result {
	res := result{status: v1.PollError, kind: errors.Kind(err), err: err}
	if code, ok := errors.HTTPStatus(err); ok {
		res.httpStatus = &code
	}
	return res
}

// Execute runs one ticket within the job budget and writes exactly one poll
// log row, whatever happens. The returned error feeds the queue's retry
// decision.
func (e *Executor) Execute(ctx context.Context, ticket *v1.JobTicket) error {
	startedAt := e.clk.Now()
	ctx, cancel := context.WithTimeout(ctx, e.jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			e.writeLog(ctx, ticket, startedAt, result{status: v1.PollError, kind: v1.ErrorKindUnknown})
			panic(r)
		}
	}()

	res := e.run(ctx, ticket)
	e.writeLog(ctx, ticket, startedAt, res)
	return res.err
}

func (e *Executor) run(ctx context.Context, ticket *v1.JobTicket) result {
	log := logging.FromContext(ctx)
	adapter, ok := e.registry.ForBrand(ticket.Brand)
	if !ok {
		return failedResult(errors.Unknown(fmt.Errorf("no adapter registered for brand %s", ticket.Brand)))
	}

	key := locks.PlantLockKey(ticket.PlantID)
	token := uuid.NewString()
	acquired, err := e.locker.Acquire(ctx, key, token, e.lockTTL)
	if err != nil {
		return failedResult(fmt.Errorf("acquiring plant lock, %w", err))
	}
	if !acquired {
		lockContentionCounter.WithLabelValues(string(ticket.Brand)).Inc()
		log.Info("plant locked by another worker, skipping")
		return skippedResult(v1.ErrorKindLockSkipped)
	}
	defer func() {
		if _, err := e.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			log.Error(err, "releasing plant lock")
		}
	}()

	plant, err := e.store.GetPlant(ctx, ticket.PlantID)
	if err != nil {
		if errors.IsNotFound(err) {
			return failedResult(errors.PlantNotFound(fmt.Errorf("plant %s does not exist", ticket.PlantID)))
		}
		return failedResult(fmt.Errorf("loading plant, %w", err))
	}
	if plant.Deleted() {
		return failedResult(errors.PlantNotFound(fmt.Errorf("plant %s is deleted", ticket.PlantID)))
	}
	if plant.IntegrationStatus != v1.IntegrationActive {
		return e.skipInactive(ctx, plant)
	}

	creds, failure := e.decryptCredentials(ctx, plant)
	if failure != nil {
		return *failure
	}
	defer creds.Zero()

	if ticket.JobType == v1.JobTypeDaily {
		return e.runDaily(ctx, adapter, plant, creds, ticket.Date)
	}
	return e.runPoll(ctx, adapter, plant, creds)
}

// skipInactive recomputes the traffic light of a plant whose integration is
// paused or disabled without touching the vendor.
func (e *Executor) skipInactive(ctx context.Context, plant *v1.Plant) result {
	next := status.Evaluate(status.Inputs{IntegrationStatus: plant.IntegrationStatus, Now: e.clk.Now()})
	if next != plant.Status {
		if err := e.store.SetPlantStatus(ctx, plant.ID, next); err != nil {
			return failedResult(fmt.Errorf("updating plant status, %w", err))
		}
		statusTransitionsCounter.WithLabelValues(string(plant.Status), string(next)).Inc()
		e.recorder.PlantStatusChanged(plant, plant.Status, next)
	}
	logging.FromContext(ctx).Info("integration not active, skipping", "integrationStatus", plant.IntegrationStatus)
	return succeeded()
}

// decryptCredentials loads and opens the plant's credential blob. Both a
// missing row and a failed decryption pause the integration so the scheduler
// stops queueing work the vendor would only reject.
func (e *Executor) decryptCredentials(ctx context.Context, plant *v1.Plant) (*vault.Credentials, *result) {
	cred, err := e.store.GetCredential(ctx, plant.ID)
	if errors.IsNotFound(err) {
		return nil, lo.ToPtr(e.authFailure(ctx, plant, errors.AuthFailed(fmt.Errorf("plant %s has no stored credential", plant.ID))))
	}
	if err != nil {
		return nil, lo.ToPtr(failedResult(fmt.Errorf("loading credential, %w", err)))
	}
	creds, err := e.vault.Decrypt(cred.EncryptedBlob)
	if err != nil {
		return nil, lo.ToPtr(e.authFailure(ctx, plant, errors.AuthFailed(fmt.Errorf("credential decryption failed, %w", err))))
	}
	return creds, nil
}

// authFailure pauses the integration and shapes the terminal result. The
// pause is what stops an expiring credential from burning the vendor's rate
// budget every cycle.
func (e *Executor) authFailure(ctx context.Context, plant *v1.Plant, err error) result {
	if serr := e.store.SetIntegrationStatus(ctx, plant.ID, v1.IntegrationPausedAuthError); serr != nil {
		logging.FromContext(ctx).Error(serr, "pausing integration after auth failure")
	} else {
		integrationPausedCounter.WithLabelValues(string(plant.Brand)).Inc()
		e.recorder.IntegrationPaused(plant)
	}
	return failedResult(err)
}

// adapterFailure maps a vendor call error into a result, pausing the
// integration when the vendor rejected our credentials.
func (e *Executor) adapterFailure(ctx context.Context, plant *v1.Plant, err error) result {
	if errors.IsAuthFailed(err) {
		return e.authFailure(ctx, plant, err)
	}
	return failedResult(err)
}

// runPoll is the latest-values path: fetch, persist, backfill, derive.
func (e *Executor) runPoll(ctx context.Context, adapter adapters.Adapter, plant *v1.Plant, creds *vault.Credentials) result {
	summary, err := e.fetchSummary(ctx, adapter, plant, creds)
	if err != nil {
		return e.adapterFailure(ctx, plant, err)
	}
	loc, err := localtime.LoadZone(plant.Timezone)
	if err != nil {
		return failedResult(errors.InvalidDataf("plant timezone %q, %v", plant.Timezone, err))
	}
	// The configured zone wins over whatever the vendor reports; warn once per
	// plant, not every ten minutes.
	if summary.Timezone != plant.Timezone && e.zoneMismatch.HasChanged(plant.ID, summary.Timezone) {
		logging.FromContext(ctx).Info("adapter reported a different timezone than configured, keeping the configured zone",
			"configured", plant.Timezone, "reported", summary.Timezone)
	}

	// The snapshot lands on the local date of the measurement, not of the
	// poll, so a value fetched just after midnight still credits the right
	// day.
	date := localtime.DateOf(summary.LastSeenAt, loc)
	if err := e.store.UpsertSnapshot(ctx, snapshotFromSummary(plant, date, summary)); err != nil {
		return failedResult(fmt.Errorf("upserting snapshot, %w", err))
	}
	snapshotsWrittenCounter.WithLabelValues(string(plant.Brand), sourceLive).Inc()

	alarms, err := e.fetchAlarms(ctx, adapter, plant, creds)
	if err != nil {
		return e.adapterFailure(ctx, plant, err)
	}
	if _, err := e.backfill(ctx, adapter, plant, creds, loc); err != nil {
		return e.adapterFailure(ctx, plant, err)
	}

	now := e.clk.Now()
	history, err := e.store.ListSnapshotsBefore(ctx, plant.ID, date, lowGenHistoryDays)
	if err != nil {
		return failedResult(fmt.Errorf("listing snapshot history, %w", err))
	}
	lowGen, level := deriveLowGen(history, summary.TodayEnergyKWh, now)
	offline := deriveOffline(summary.LastSeenAt, now)
	if err := e.finalize(ctx, plant, alarms, offline, lowGen, level, summary.LastSeenAt); err != nil {
		return failedResult(fmt.Errorf("reconciling derived state, %w", err))
	}
	return succeeded()
}

// runDaily verifies that the snapshot for the ticket's date exists, repairing
// it from the vendor's series when missing, then refreshes the derived state
// from what is stored. It never calls the vendor's live or alarm endpoints.
func (e *Executor) runDaily(ctx context.Context, adapter adapters.Adapter, plant *v1.Plant, creds *vault.Credentials, date localtime.Date) result {
	loc, err := localtime.LoadZone(plant.Timezone)
	if err != nil {
		return failedResult(errors.InvalidDataf("plant timezone %q, %v", plant.Timezone, err))
	}
	if date == "" {
		date = localtime.DateOf(e.clk.Now(), loc).AddDays(-1)
	}

	rows, err := e.store.ListSnapshots(ctx, plant.ID, []localtime.Date{date})
	if err != nil {
		return failedResult(fmt.Errorf("listing snapshots, %w", err))
	}
	if len(rows) == 0 && adapter.Capabilities().SupportsDailySeries {
		if res := e.repairSnapshot(ctx, adapter, plant, creds, date); res != nil {
			return *res
		}
	}

	now := e.clk.Now()
	today := localtime.DateOf(now, loc)
	latest, err := e.store.ListSnapshotsBefore(ctx, plant.ID, today.AddDays(1), 1)
	if err != nil {
		return failedResult(fmt.Errorf("listing latest snapshot, %w", err))
	}
	var lastSeen time.Time
	if len(latest) > 0 {
		lastSeen = latest[0].LastSeenAt
	}

	lowGen, level := (*alerts.Signal)(nil), status.LowGenNone
	todayRows, err := e.store.ListSnapshots(ctx, plant.ID, []localtime.Date{today})
	if err != nil {
		return failedResult(fmt.Errorf("listing snapshots, %w", err))
	}
	if len(todayRows) > 0 {
		history, err := e.store.ListSnapshotsBefore(ctx, plant.ID, today, lowGenHistoryDays)
		if err != nil {
			return failedResult(fmt.Errorf("listing snapshot history, %w", err))
		}
		lowGen, level = deriveLowGen(history, todayRows[0].TodayEnergyKWh, now)
	}

	if err := e.finalize(ctx, plant, nil, deriveOffline(lastSeen, now), lowGen, level, lastSeen); err != nil {
		return failedResult(fmt.Errorf("reconciling derived state, %w", err))
	}
	return succeeded()
}

func (e *Executor) repairSnapshot(ctx context.Context, adapter adapters.Adapter, plant *v1.Plant, creds *vault.Credentials, date localtime.Date) *result {
	callCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()
	points, err := adapter.GetDailyEnergySeries(callCtx, plant.Ref(), creds, date, date)
	if err != nil {
		return lo.ToPtr(e.adapterFailure(ctx, plant, err))
	}
	now := e.clk.Now()
	for _, point := range points {
		if point.Date != date {
			continue
		}
		inserted, err := e.store.InsertSnapshotIfAbsent(ctx, &v1.MetricSnapshot{
			PlantID:         plant.ID,
			Date:            date,
			Timezone:        plant.Timezone,
			TodayEnergyKWh:  point.EnergyKWh,
			LastSeenAt:      now,
			SourceSampledAt: now,
		})
		if err != nil {
			return lo.ToPtr(failedResult(fmt.Errorf("writing verified snapshot, %w", err)))
		}
		if inserted {
			snapshotsWrittenCounter.WithLabelValues(string(plant.Brand), sourceBackfill).Inc()
			logging.FromContext(ctx).Info("repaired missing daily snapshot", "date", date)
		}
	}
	return nil
}

func (e *Executor) fetchSummary(ctx context.Context, adapter adapters.Adapter, plant *v1.Plant, creds *vault.Credentials) (*v1.NormalizedSummary, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()
	summary, err := adapter.GetPlantSummary(callCtx, plant.Ref(), creds)
	if err != nil {
		return nil, err
	}
	if err := adapters.ValidateSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (e *Executor) fetchAlarms(ctx context.Context, adapter adapters.Adapter, plant *v1.Plant, creds *vault.Credentials) ([]v1.NormalizedAlarm, error) {
	if !adapter.Capabilities().SupportsAlarms {
		return nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()
	return adapter.GetAlarmsSince(callCtx, plant.Ref(), creds, e.clk.Now().Add(-alarmLookback))
}

// finalize reconciles alerts and recomputes the traffic light in one
// transaction, so a reader never observes a critical alert alongside a green
// plant.
func (e *Executor) finalize(ctx context.Context, plant *v1.Plant, alarms []v1.NormalizedAlarm, offline, lowGen *alerts.Signal, level status.LowGenLevel, lastSeen time.Time) error {
	log := logging.FromContext(ctx)
	var outcome alerts.Outcome
	prev, next := plant.Status, plant.Status
	err := e.store.Transact(ctx, func(s store.Store) error {
		var err error
		outcome, err = e.reconciler.Reconcile(ctx, s, plant, alarms, offline, lowGen)
		if err != nil {
			return err
		}
		next = status.Evaluate(status.Inputs{
			IntegrationStatus: plant.IntegrationStatus,
			Now:               e.clk.Now(),
			LastSeenAt:        lastSeen,
			ActiveCritical:    outcome.ActiveCritical,
			LowGen:            level,
		})
		if next != prev {
			return s.SetPlantStatus(ctx, plant.ID, next)
		}
		return nil
	})
	if err != nil {
		return err
	}
	plant.Status = next
	if next != prev {
		statusTransitionsCounter.WithLabelValues(string(prev), string(next)).Inc()
		e.recorder.PlantStatusChanged(plant, prev, next)
	}
	for action, count := range map[string]int{"created": outcome.Created, "updated": outcome.Updated, "resolved": outcome.Resolved} {
		if count > 0 {
			alertActionsCounter.WithLabelValues(action).Add(float64(count))
		}
	}
	if delta := outcome.Created - outcome.Resolved; delta != 0 {
		activeAlertsGauge.Add(float64(delta))
	}
	for i := range outcome.Notifiable {
		e.recorder.AlertRaised(&outcome.Notifiable[i])
	}
	for i := range outcome.Cleared {
		e.recorder.AlertResolved(&outcome.Cleared[i])
	}
	if len(outcome.Notifiable) > 0 {
		log.Info("alerts flagged for notification", "count", len(outcome.Notifiable))
	}
	return nil
}

// writeLog records the execution. It runs even when the surrounding context
// is cancelled or the job deadline has passed, the audit trail being the one
// thing a failed poll must still deliver.
func (e *Executor) writeLog(ctx context.Context, ticket *v1.JobTicket, startedAt time.Time, res result) {
	finishedAt := e.clk.Now()
	entry := &v1.PollLog{
		PlantID:          ticket.PlantID,
		JobType:          ticket.JobType,
		Status:           res.status,
		DurationMS:       finishedAt.Sub(startedAt).Milliseconds(),
		AdapterErrorType: res.kind,
		HTTPStatus:       res.httpStatus,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
	}
	if err := e.store.InsertPollLog(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx).Error(err, "writing poll log")
	}
}

func snapshotFromSummary(plant *v1.Plant, date localtime.Date, summary *v1.NormalizedSummary) *v1.MetricSnapshot {
	return &v1.MetricSnapshot{
		PlantID:             plant.ID,
		Date:                date,
		Timezone:            plant.Timezone,
		TodayEnergyKWh:      summary.TodayEnergyKWh,
		CurrentPowerW:       summary.CurrentPowerW,
		GridInjectionPowerW: summary.GridInjectionPowerW,
		TotalEnergyKWh:      summary.TotalEnergyKWh,
		LastSeenAt:          summary.LastSeenAt,
		SourceSampledAt:     summary.SourceSampledAt,
	}
}
