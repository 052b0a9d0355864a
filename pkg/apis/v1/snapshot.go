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

import (
	"time"

	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
)

// MetricSnapshot aggregates one plant's production for one local calendar day.
// The (PlantID, Date) pair is unique; polling the same day again overwrites the
// measured fields in place.
type MetricSnapshot struct {
	ID                  string         `db:"id" json:"id"`
	PlantID             string         `db:"plant_id" json:"plantId"`
	Date                localtime.Date `db:"date" json:"date"`
	Timezone            string         `db:"timezone" json:"timezone"`
	TodayEnergyKWh      float64        `db:"today_energy_kwh" json:"todayEnergyKWh"`
	CurrentPowerW       *float64       `db:"current_power_w" json:"currentPowerW,omitempty"`
	GridInjectionPowerW *float64       `db:"grid_injection_power_w" json:"gridInjectionPowerW,omitempty"`
	TotalEnergyKWh      *float64       `db:"total_energy_kwh" json:"totalEnergyKWh,omitempty"`
	LastSeenAt          time.Time      `db:"last_seen_at" json:"lastSeenAt"`
	SourceSampledAt     time.Time      `db:"source_sampled_at" json:"sourceSampledAt"`
	CreatedAt           time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updatedAt"`
}

// DailyEnergyPoint is one day of a vendor's historical energy series.
type DailyEnergyPoint struct {
	Date      localtime.Date `json:"date"`
	EnergyKWh float64        `json:"energyKWh"`
}
