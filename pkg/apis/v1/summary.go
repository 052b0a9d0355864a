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

// NormalizedSummary is the canonical shape every adapter produces from a
// vendor's live-data endpoint: power in watts, energy in kilowatt-hours,
// UTC-normalized instants and an IANA timezone.
type NormalizedSummary struct {
	CurrentPowerW       *float64  `json:"currentPowerW,omitempty"`
	TodayEnergyKWh      float64   `json:"todayEnergyKWh"`
	TotalEnergyKWh      *float64  `json:"totalEnergyKWh,omitempty"`
	GridInjectionPowerW *float64  `json:"gridInjectionPowerW,omitempty"`
	LastSeenAt          time.Time `json:"lastSeenAt"`
	SourceSampledAt     time.Time `json:"sourceSampledAt"`
	Timezone            string    `json:"timezone"`
}

// NormalizedAlarm is one vendor alarm after brand-specific code and severity
// mapping. DeviceSN is empty when the vendor reports at plant granularity.
type NormalizedAlarm struct {
	VendorAlarmCode string        `json:"vendorAlarmCode"`
	DeviceSN        string        `json:"deviceSn,omitempty"`
	Message         string        `json:"message"`
	OccurredAt      time.Time     `json:"occurredAt"`
	IsActive        bool          `json:"isActive"`
	Severity        AlertSeverity `json:"severity"`
}

// Device is one inverter or datalogger reported by a vendor's device-list
// endpoint.
type Device struct {
	SN     string `json:"sn"`
	Kind   string `json:"kind,omitempty"`
	Model  string `json:"model,omitempty"`
	Online bool   `json:"online"`
}

// TestResult is the outcome of a connectivity check against vendor
// credentials.
type TestResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}
