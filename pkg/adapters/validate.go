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

package adapters

import (
	"math"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
)

// ValidateSummary enforces the normalization contract on a summary. Adapters
// run it before returning and the executor runs it again before persisting;
// a violation is INVALID_DATA and never reaches the store.
func ValidateSummary(summary *v1.NormalizedSummary) error {
	if summary == nil {
		return errors.InvalidDataf("summary is missing")
	}
	if !finite(summary.TodayEnergyKWh) || summary.TodayEnergyKWh < 0 {
		return errors.InvalidDataf("todayEnergyKWh %v is not a finite non-negative number", summary.TodayEnergyKWh)
	}
	if summary.CurrentPowerW != nil && (!finite(*summary.CurrentPowerW) || *summary.CurrentPowerW < 0) {
		return errors.InvalidDataf("currentPowerW %v is not a finite non-negative number", *summary.CurrentPowerW)
	}
	// Grid injection may legitimately be negative when the site imports.
	if summary.GridInjectionPowerW != nil && !finite(*summary.GridInjectionPowerW) {
		return errors.InvalidDataf("gridInjectionPowerW is not finite")
	}
	if summary.TotalEnergyKWh != nil && (!finite(*summary.TotalEnergyKWh) || *summary.TotalEnergyKWh < 0) {
		return errors.InvalidDataf("totalEnergyKWh %v is not a finite non-negative number", *summary.TotalEnergyKWh)
	}
	if summary.LastSeenAt.IsZero() || summary.SourceSampledAt.IsZero() {
		return errors.InvalidDataf("lastSeenAt and sourceSampledAt must be absolute instants")
	}
	if _, err := localtime.LoadZone(summary.Timezone); err != nil {
		return errors.InvalidData(err)
	}
	return nil
}

// ValidateAlarm enforces the normalization contract on one vendor alarm.
func ValidateAlarm(alarm v1.NormalizedAlarm) error {
	if alarm.VendorAlarmCode == "" {
		return errors.InvalidDataf("alarm is missing vendorAlarmCode")
	}
	if !alarm.Severity.Valid() {
		return errors.InvalidDataf("alarm %s has unknown severity %q", alarm.VendorAlarmCode, alarm.Severity)
	}
	if alarm.OccurredAt.IsZero() {
		return errors.InvalidDataf("alarm %s is missing occurredAt", alarm.VendorAlarmCode)
	}
	return nil
}

// ValidateSeries enforces the normalization contract on a daily energy
// series.
func ValidateSeries(series []v1.DailyEnergyPoint) error {
	for _, point := range series {
		if point.Date == "" {
			return errors.InvalidDataf("series point is missing date")
		}
		if !finite(point.EnergyKWh) || point.EnergyKWh < 0 {
			return errors.InvalidDataf("series point %s energy %v is not a finite non-negative number", point.Date, point.EnergyKWh)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
