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

package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heliofleet/heliofleet/pkg/metrics"
)

func init() {
	metrics.Registry.MustRegister(queueDepthGauge)
	metrics.Registry.MustRegister(jobsTotalCounter)
	metrics.Registry.MustRegister(jobDurationHistogram)
	metrics.Registry.MustRegister(retriesTotalCounter)
	metrics.Registry.MustRegister(absorbedTotalCounter)
	metrics.Registry.MustRegister(droppedTotalCounter)
}

var queueDepthGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: metrics.Namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Number of tickets currently pending or running, per brand.",
	},
	[]string{metrics.BrandLabel},
)

var jobsTotalCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "queue",
		Name:      "jobs_total",
		Help:      "Number of job executions. Labeled by brand, job type and result.",
	},
	[]string{metrics.BrandLabel, metrics.JobTypeLabel, metrics.ResultLabel},
)

var jobDurationHistogram = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: metrics.Namespace,
		Subsystem: "queue",
		Name:      "job_duration_seconds",
		Help:      "Duration of job executions in seconds.",
		Buckets:   metrics.DurationBuckets(),
	},
	[]string{metrics.BrandLabel, metrics.JobTypeLabel},
)

var retriesTotalCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "queue",
		Name:      "retries_total",
		Help:      "Number of ticket retries scheduled. Labeled by brand and error type.",
	},
	[]string{metrics.BrandLabel, metrics.ErrorLabel},
)

var absorbedTotalCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "queue",
		Name:      "tickets_absorbed_total",
		Help:      "Number of submissions absorbed by an existing ticket with the same id.",
	},
	[]string{metrics.BrandLabel},
)

var droppedTotalCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metrics.Namespace,
		Subsystem: "queue",
		Name:      "tickets_dropped_total",
		Help:      "Number of tickets dropped because the work buffer was full.",
	},
	[]string{metrics.BrandLabel},
)
