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

package scheduling

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heliofleet/heliofleet/pkg/metrics"
)

var (
	roundsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduling",
			Name:      "rounds_total",
			Help:      "Number of scheduling rounds started.",
		},
		[]string{metrics.JobTypeLabel},
	)
	submittedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduling",
			Name:      "tickets_submitted_total",
			Help:      "Number of tickets accepted by a queue, absorbed duplicates excluded.",
		},
		[]string{metrics.JobTypeLabel},
	)
	activePlantsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduling",
			Name:      "active_plants",
			Help:      "Number of plants with an active integration seen by the last round.",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(roundsCounter, submittedCounter, activePlantsGauge)
}
