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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heliofleet/heliofleet/pkg/metrics"
)

const (
	sourceLive     = "live"
	sourceBackfill = "backfill"
)

var (
	lockContentionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "polling",
			Name:      "lock_contention_total",
			Help:      "Number of jobs skipped because another worker already held the plant lock.",
		},
		[]string{metrics.BrandLabel},
	)
	snapshotsWrittenCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "polling",
			Name:      "snapshots_written_total",
			Help:      "Number of daily snapshots written, by origin (live poll or series backfill).",
		},
		[]string{metrics.BrandLabel, "source"},
	)
	statusTransitionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "polling",
			Name:      "status_transitions_total",
			Help:      "Number of plant traffic-light transitions.",
		},
		[]string{"from", "to"},
	)
	alertActionsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "polling",
			Name:      "alert_actions_total",
			Help:      "Number of alert rows created, updated or resolved by reconciliation.",
		},
		[]string{"action"},
	)
	integrationPausedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "polling",
			Name:      "integration_paused_total",
			Help:      "Number of integrations paused after an authentication failure.",
		},
		[]string{metrics.BrandLabel},
	)
	activeAlertsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "polling",
			Name:      "active_alerts",
			Help:      "Number of active alerts across the fleet, tracked from reconciliation deltas.",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(
		lockContentionCounter,
		snapshotsWrittenCounter,
		statusTransitionsCounter,
		alertActionsCounter,
		integrationPausedCounter,
		activeAlertsGauge,
	)
}
