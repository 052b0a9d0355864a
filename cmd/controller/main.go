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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/oklog/run"
	_ "go.uber.org/automaxprocs"

	"github.com/heliofleet/heliofleet/pkg/controllers"
	"github.com/heliofleet/heliofleet/pkg/controllers/polling"
	"github.com/heliofleet/heliofleet/pkg/operator"
	"github.com/heliofleet/heliofleet/pkg/operator/options"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"
)

const serverShutdownTimeout = 5 * time.Second

func main() {
	opts := options.New().MustParse()
	ctx, op, err := operator.NewOperator(context.Background(), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "starting operator: %s\n", err)
		os.Exit(1)
	}
	log := logging.FromContext(ctx)

	engine, err := controllers.NewControllers(op.Clock, op.Store, op.Locker, op.Vault, op.Registry, op.Recorder, op.Journal, controllers.Config{
		Poll: polling.Config{
			PollInterval:   opts.PollInterval,
			JobTimeout:     opts.JobTimeout,
			AdapterTimeout: opts.AdapterTimeout,
		},
		DailySweepSpec: opts.DailyVerifySchedule,
		DrainTimeout:   opts.ShutdownGrace,
	})
	if err != nil {
		log.Error(err, "assembling engine")
		os.Exit(1)
	}

	metricsServer := op.NewMetricsServer()
	healthServer := op.NewHealthServer()

	// One cancellation fans out to every actor: the scheduler stops producing
	// immediately, the queues drain in-flight jobs inside the grace period,
	// and the servers shut down alongside.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var group run.Group
	group.Add(run.SignalHandler(runCtx, os.Interrupt, syscall.SIGTERM))
	group.Add(func() error {
		engine.Scheduler.Run(runCtx)
		return nil
	}, func(error) {
		cancel()
	})
	group.Add(func() error {
		return engine.Queues.Run(runCtx)
	}, func(error) {
		cancel()
	})
	group.Add(serverActor(log, "metrics", metricsServer))
	group.Add(serverActor(log, "health", healthServer))

	log.Info("starting engine", "pollInterval", opts.PollInterval.String(), "brands", len(op.Registry.Brands()), "mockMode", opts.MockMode)
	err = group.Run()
	if closeErr := op.Close(); closeErr != nil {
		log.Error(closeErr, "closing connections")
	}

	var signalErr run.SignalError
	if errors.As(err, &signalErr) {
		log.Info("shutdown complete", "signal", signalErr.Signal.String())
		return
	}
	if err != nil {
		log.Error(err, "engine exited")
		os.Exit(1)
	}
}

func serverActor(log logr.Logger, name string, server *http.Server) (func() error, func(error)) {
	return func() error {
			log.Info("serving "+name, "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server, %w", name, err)
			}
			return nil
		}, func(error) {
			shutdownCtx, done := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer done()
			_ = server.Shutdown(shutdownCtx)
		}
}
