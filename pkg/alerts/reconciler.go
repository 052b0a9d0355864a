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

// Package alerts merges vendor alarms and derived conditions into the stored
// alert set. Alerts are deduplicated on (plant, type, vendor code, device
// serial), so a condition the vendor keeps reporting folds into one row, and
// a resolved row never revives. A re-occurrence after resolution is a new row.
package alerts

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/store"
)

// renotifyAfter throttles how often an alert that stays active may be handed
// to the notification layer again.
const renotifyAfter = 6 * time.Hour

// Signal is a derived condition, evaluated by the poll pipeline, entering
// reconciliation as if the vendor had reported it.
type Signal struct {
	Active     bool
	Severity   v1.AlertSeverity
	Message    string
	OccurredAt time.Time
}

// Outcome summarizes one reconciliation pass.
type Outcome struct {
	// ActiveCritical is the number of CRITICAL alerts active after the pass.
	ActiveCritical int
	// Notifiable holds the active alerts flagged for the notification layer.
	Notifiable []v1.Alert
	// Cleared holds the alerts resolved by this pass.
	Cleared []v1.Alert

	Created  int
	Updated  int
	Resolved int
}

type Reconciler struct {
	clk clock.PassiveClock
}

func NewReconciler(clk clock.PassiveClock) *Reconciler {
	return &Reconciler{clk: clk}
}

// Reconcile applies vendor alarms and the derived offline and low-generation
// signals to a plant's active alerts. A nil signal means the condition could
// not be evaluated this pass and its alerts are left untouched; a non-nil
// inactive signal resolves them. Callers run it inside a store transaction so
// a failed pass leaves no partial alert writes behind.
func (r *Reconciler) Reconcile(ctx context.Context, s store.Store, plant *v1.Plant, alarms []v1.NormalizedAlarm, offline, lowGen *Signal) (Outcome, error) {
	existing, err := s.ListActiveAlerts(ctx, plant.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing active alerts, %w", err)
	}
	active := map[v1.AlertKey]*v1.Alert{}
	for i := range existing {
		active[existing[i].Key()] = &existing[i]
	}

	now := r.clk.Now()
	pass := &reconcilePass{store: s, plant: plant, active: active, now: now}
	for _, alarm := range alarms {
		key := v1.AlertKey{PlantID: plant.ID, Type: v1.AlertTypeFault, VendorAlarmCode: alarm.VendorAlarmCode, DeviceSN: alarm.DeviceSN}
		if err := pass.apply(ctx, key, &Signal{
			Active:     alarm.IsActive,
			Severity:   alarm.Severity,
			Message:    alarm.Message,
			OccurredAt: alarm.OccurredAt,
		}); err != nil {
			return Outcome{}, err
		}
	}
	if err := pass.apply(ctx, v1.AlertKey{PlantID: plant.ID, Type: v1.AlertTypeOffline}, offline); err != nil {
		return Outcome{}, err
	}
	if err := pass.apply(ctx, v1.AlertKey{PlantID: plant.ID, Type: v1.AlertTypeLowGen}, lowGen); err != nil {
		return Outcome{}, err
	}
	for _, alert := range pass.active {
		if alert.Severity == v1.SeverityCritical {
			pass.outcome.ActiveCritical++
		}
	}
	return pass.outcome, nil
}

type reconcilePass struct {
	store   store.Store
	plant   *v1.Plant
	active  map[v1.AlertKey]*v1.Alert
	now     time.Time
	outcome Outcome
}

func (p *reconcilePass) apply(ctx context.Context, key v1.AlertKey, sig *Signal) error {
	if sig == nil {
		return nil
	}
	alert, exists := p.active[key]
	switch {
	case exists && sig.Active:
		alert.LastSeenAt = p.now
		if sig.Severity.Rank() > alert.Severity.Rank() {
			alert.Severity = sig.Severity
		}
		if sig.Message != "" {
			alert.Message = sig.Message
		}
		p.markNotifiable(alert)
		if err := p.store.UpdateAlert(ctx, alert); err != nil {
			return fmt.Errorf("updating alert, %w", err)
		}
		p.outcome.Updated++
	case exists && !sig.Active:
		alert.State = v1.AlertStateResolved
		alert.ClearedAt = &p.now
		alert.Notifiable = false
		if err := p.store.UpdateAlert(ctx, alert); err != nil {
			return fmt.Errorf("resolving alert, %w", err)
		}
		delete(p.active, key)
		p.outcome.Cleared = append(p.outcome.Cleared, *alert)
		p.outcome.Resolved++
	case !exists && sig.Active:
		alert := &v1.Alert{
			PlantID:         key.PlantID,
			Type:            key.Type,
			Severity:        sig.Severity,
			State:           v1.AlertStateNew,
			VendorAlarmCode: key.VendorAlarmCode,
			DeviceSN:        key.DeviceSN,
			Message:         sig.Message,
			OccurredAt:      sig.OccurredAt,
			LastSeenAt:      p.now,
		}
		p.markNotifiable(alert)
		if err := p.store.InsertAlert(ctx, alert); err != nil {
			return fmt.Errorf("inserting alert, %w", err)
		}
		p.active[key] = alert
		p.outcome.Created++
	default:
		// Inactive and unknown: nothing to resolve.
	}
	return nil
}

// markNotifiable flags an active alert for the notification layer, throttled
// per alert and muted entirely while the plant is silenced. Sending and the
// last_notified_at update belong to the notification layer.
func (p *reconcilePass) markNotifiable(alert *v1.Alert) {
	throttled := alert.LastNotifiedAt != nil && p.now.Sub(*alert.LastNotifiedAt) < renotifyAfter
	alert.Notifiable = !throttled && !p.plant.Silenced(p.now)
	if alert.Notifiable {
		p.outcome.Notifiable = append(p.outcome.Notifiable, *alert)
	}
}
