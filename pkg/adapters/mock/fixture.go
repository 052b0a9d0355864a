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

package mock

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
)

// Fixture is the per-brand mock document. It is the sole source of simulated
// vendor data; a document that fails validation aborts startup so that a bad
// fixture can never masquerade as vendor behavior.
type Fixture struct {
	PlantSummary FixtureSummary       `json:"plant_summary" validate:"required"`
	DailySeries  []FixtureSeriesPoint `json:"daily_series" validate:"dive"`
	Alarms       []FixtureAlarm       `json:"alarms" validate:"dive"`
	Devices      []FixtureDevice      `json:"devices" validate:"dive"`
}

type FixtureSummary struct {
	CurrentPowerW       *float64  `json:"currentPowerW"`
	TodayEnergyKWh      *float64  `json:"todayEnergyKWh" validate:"required"`
	TotalEnergyKWh      *float64  `json:"totalEnergyKWh"`
	GridInjectionPowerW *float64  `json:"gridInjectionPowerW"`
	LastSeenAt          time.Time `json:"lastSeenAt" validate:"required"`
	SourceSampledAt     time.Time `json:"sourceSampledAt" validate:"required"`
	Timezone            string    `json:"timezone" validate:"required"`
}

type FixtureSeriesPoint struct {
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	EnergyKWh float64 `json:"energyKWh" validate:"gte=0"`
}

type FixtureAlarm struct {
	VendorAlarmCode string    `json:"vendorAlarmCode" validate:"required"`
	DeviceSN        string    `json:"deviceSn"`
	Message         string    `json:"message"`
	OccurredAt      time.Time `json:"occurredAt" validate:"required"`
	IsActive        bool      `json:"isActive"`
	Severity        string    `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
}

type FixtureDevice struct {
	SN     string `json:"sn" validate:"required"`
	Kind   string `json:"kind"`
	Model  string `json:"model"`
	Online bool   `json:"online"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFixture reads and validates one brand fixture document.
func LoadFixture(fsys afero.Fs, path string) (*Fixture, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s, %w", path, err)
	}
	fixture := &Fixture{}
	if err := json.Unmarshal(data, fixture); err != nil {
		return nil, fmt.Errorf("decoding fixture %s, %w", path, err)
	}
	if err := validate.Struct(fixture); err != nil {
		return nil, fmt.Errorf("validating fixture %s, %w", path, err)
	}
	return fixture, nil
}
