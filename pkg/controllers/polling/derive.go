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

package polling

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/alerts"
	"github.com/heliofleet/heliofleet/pkg/status"
)

const (
	// lowGenHistoryDays is how many prior local days feed the production
	// baseline.
	lowGenHistoryDays = 7
	// lowGenMinHistory is the minimum number of prior days required before
	// low generation is judged at all.
	lowGenMinHistory = 3

	lowGenCriticalRatio = 0.10
	lowGenWarningRatio  = 0.30

	// offlineAfter is how long a plant may stay silent before it is treated
	// as offline rather than merely lagging.
	offlineAfter = 24 * time.Hour
)

// deriveLowGen grades today's energy against the median of up to the last
// seven prior days. With fewer than three prior days there is no baseline; the
// nil signal leaves any existing LOW_GEN alert untouched.
func deriveLowGen(history []v1.MetricSnapshot, todayEnergyKWh float64, now time.Time) (*alerts.Signal, status.LowGenLevel) {
	if len(history) < lowGenMinHistory {
		return nil, status.LowGenNone
	}
	baseline := median(lo.Map(history, func(s v1.MetricSnapshot, _ int) float64 { return s.TodayEnergyKWh }))
	if baseline <= 0 {
		// A zero baseline grades nothing as low; clear any standing alert.
		return &alerts.Signal{}, status.LowGenNone
	}
	switch {
	case todayEnergyKWh < lowGenCriticalRatio*baseline:
		return &alerts.Signal{
			Active:     true,
			Severity:   v1.SeverityCritical,
			Message:    lowGenMessage(todayEnergyKWh, baseline),
			OccurredAt: now,
		}, status.LowGenRed
	case todayEnergyKWh < lowGenWarningRatio*baseline:
		return &alerts.Signal{
			Active:     true,
			Severity:   v1.SeverityHigh,
			Message:    lowGenMessage(todayEnergyKWh, baseline),
			OccurredAt: now,
		}, status.LowGenYellow
	default:
		return &alerts.Signal{}, status.LowGenNone
	}
}

func lowGenMessage(today, baseline float64) string {
	return fmt.Sprintf("production %.1f kWh is %.0f%% of the %.1f kWh baseline", today, 100*today/baseline, baseline)
}

// deriveOffline flags a plant whose vendor stopped reporting. A zero lastSeen
// means no snapshot exists yet, which is not evidence of an outage.
func deriveOffline(lastSeen time.Time, now time.Time) *alerts.Signal {
	if lastSeen.IsZero() {
		return nil
	}
	silence := now.Sub(lastSeen)
	if silence <= offlineAfter {
		return &alerts.Signal{}
	}
	return &alerts.Signal{
		Active:     true,
		Severity:   v1.SeverityCritical,
		Message:    fmt.Sprintf("no vendor data for %s", silence.Round(time.Minute)),
		OccurredAt: now,
	}
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
