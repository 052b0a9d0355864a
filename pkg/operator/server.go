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

package operator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heliofleet/heliofleet/pkg/metrics"
)

const (
	readHeaderTimeout = 5 * time.Second
	readyzTimeout     = 5 * time.Second
)

// NewMetricsServer serves the engine's metric registry.
func (o *Operator) NewMetricsServer() *http.Server {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", o.Options.MetricsPort),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// NewHealthServer serves the liveness and readiness probes. Liveness only
// proves the process is up; readiness re-probes both stores so that a
// dependency outage takes the instance out of rotation instead of letting it
// poll without locks.
func (o *Operator) NewHealthServer() *http.Server {
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
		defer cancel()
		if err := o.Store.Probe(ctx); err != nil {
			http.Error(w, "postgres unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := o.Locker.Probe(ctx); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", o.Options.HealthProbePort),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
