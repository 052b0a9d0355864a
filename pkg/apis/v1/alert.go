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

package v1

import "time"

// AlertType classifies what an alert is about. FAULT alerts originate from
// vendor alarms, OFFLINE and LOW_GEN are derived by the executor.
type AlertType string

const (
	AlertTypeFault   AlertType = "FAULT"
	AlertTypeOffline AlertType = "OFFLINE"
	AlertTypeLowGen  AlertType = "LOW_GEN"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Rank orders severities so that reconciliation can upgrade without ever
// downgrading. Unknown severities rank below LOW.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (s AlertSeverity) Valid() bool {
	return s.Rank() > 0
}

type AlertState string

const (
	AlertStateNew      AlertState = "NEW"
	AlertStateAcked    AlertState = "ACKED"
	AlertStateResolved AlertState = "RESOLVED"
)

// Alert is one raised condition on a plant. At most one alert per dedup key
// (PlantID, Type, VendorAlarmCode, DeviceSN) is in NEW or ACKED at a time; a
// re-occurrence after RESOLVED creates a new row.
type Alert struct {
	ID              string        `db:"id" json:"id"`
	PlantID         string        `db:"plant_id" json:"plantId"`
	Type            AlertType     `db:"type" json:"type"`
	Severity        AlertSeverity `db:"severity" json:"severity"`
	State           AlertState    `db:"state" json:"state"`
	VendorAlarmCode string        `db:"vendor_alarm_code" json:"vendorAlarmCode"`
	DeviceSN        string        `db:"device_sn" json:"deviceSn"`
	Message         string        `db:"message" json:"message"`
	OccurredAt      time.Time     `db:"occurred_at" json:"occurredAt"`
	ClearedAt       *time.Time    `db:"cleared_at" json:"clearedAt,omitempty"`
	LastNotifiedAt  *time.Time    `db:"last_notified_at" json:"lastNotifiedAt,omitempty"`
	LastSeenAt      time.Time     `db:"last_seen_at" json:"lastSeenAt"`
	Notifiable      bool          `db:"notifiable" json:"notifiable"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// Active reports whether the alert still demands attention.
func (a *Alert) Active() bool {
	return a.State == AlertStateNew || a.State == AlertStateAcked
}

// AlertKey is the dedup identity of an alert. Vendor alarm code and device
// serial are normalized to the empty string, never null, before comparison.
type AlertKey struct {
	PlantID         string
	Type            AlertType
	VendorAlarmCode string
	DeviceSN        string
}

func (a *Alert) Key() AlertKey {
	return AlertKey{PlantID: a.PlantID, Type: a.Type, VendorAlarmCode: a.VendorAlarmCode, DeviceSN: a.DeviceSN}
}
