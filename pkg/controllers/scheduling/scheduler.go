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

// Package scheduling turns the plant fleet into a steady ticket stream: a
// poll round for every active plant each interval, and a nightly sweep that
// verifies yesterday's totals. Deterministic ticket ids make every round
// idempotent; whatever is still queued from the last round absorbs the
// resubmission.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"github.com/samber/lo"
	"github.com/samber/lo/parallel"
	"k8s.io/utils/clock"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/store"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"
)

const (
	// DefaultPollInterval is the fleet-wide poll cadence.
	DefaultPollInterval = 10 * time.Minute
	// DefaultDailySweepSpec runs the daily verification shortly after
	// midnight UTC, when every European plant has closed its production day.
	DefaultDailySweepSpec = "30 0 * * *"

	// initialDelay is how long after startup the first poll round fires. Long
	// enough for the queues to be running, short enough that a fresh deploy
	// shows data immediately.
	initialDelay = 2 * time.Second
)

// Dispatcher places a ticket on the queue of its brand. Implemented by
// queue.Set.
type Dispatcher interface {
	Submit(ctx context.Context, ticket *v1.JobTicket) bool
}

type Config struct {
	PollInterval time.Duration
	// DailySweepSpec is a standard five-field cron expression.
	DailySweepSpec string
}

type Scheduler struct {
	store      store.Store
	dispatcher Dispatcher
	clk        clock.Clock
	interval   time.Duration
	sweep      cron.Schedule
}

func NewScheduler(s store.Store, d Dispatcher, clk clock.Clock, cfg Config) (*Scheduler, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	spec := cfg.DailySweepSpec
	if spec == "" {
		spec = DefaultDailySweepSpec
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing daily sweep spec %q, %w", spec, err)
	}
	return &Scheduler{
		store:      s,
		dispatcher: d,
		clk:        clk,
		interval:   cfg.PollInterval,
		sweep:      schedule,
	}, nil
}

// Run blocks, dispatching rounds until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	poll := s.clk.NewTimer(initialDelay)
	defer poll.Stop()
	sweep := s.clk.NewTimer(s.untilNextSweep())
	defer sweep.Stop()

	logging.FromContext(ctx).Info("scheduler started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C():
			s.pollRound(ctx)
			poll.Reset(s.interval)
		case <-sweep.C():
			s.dailySweep(ctx)
			sweep.Reset(s.untilNextSweep())
		}
	}
}

func (s *Scheduler) untilNextSweep() time.Duration {
	now := s.clk.Now()
	return s.sweep.Next(now).Sub(now)
}

// pollRound submits a latest-values ticket for every active plant.
func (s *Scheduler) pollRound(ctx context.Context) {
	log := logging.FromContext(ctx)
	roundsCounter.WithLabelValues(string(v1.JobTypePoll)).Inc()
	plants, err := s.store.ListActivePlants(ctx)
	if err != nil {
		log.Error(err, "listing active plants")
		return
	}
	activePlantsGauge.Set(float64(len(plants)))

	// Submission is fanned out because a full queue applies backpressure per
	// brand; one slow brand must not delay the rest of the round.
	now := s.clk.Now()
	submitted := lo.Sum(parallel.Map(plants, func(plant v1.Plant, _ int) int {
		if s.dispatcher.Submit(ctx, v1.NewPollTicket(&plant, now)) {
			return 1
		}
		return 0
	}))
	submittedCounter.WithLabelValues(string(v1.JobTypePoll)).Add(float64(submitted))
	log.V(1).Info("poll round dispatched", "plants", len(plants), "submitted", submitted)
}

// dailySweep submits a verification ticket for every active plant's previous
// local date. Plants behind an unresolvable timezone are skipped and logged,
// never blocking the rest of the fleet.
func (s *Scheduler) dailySweep(ctx context.Context) {
	log := logging.FromContext(ctx)
	roundsCounter.WithLabelValues(string(v1.JobTypeDaily)).Inc()
	plants, err := s.store.ListActivePlants(ctx)
	if err != nil {
		log.Error(err, "listing active plants")
		return
	}

	now := s.clk.Now()
	submitted := 0
	for i := range plants {
		loc, err := localtime.LoadZone(plants[i].Timezone)
		if err != nil {
			log.Error(err, "skipping plant with unresolvable timezone", "plant", plants[i].ID)
			continue
		}
		date := localtime.DateOf(now, loc).AddDays(-1)
		if s.dispatcher.Submit(ctx, v1.NewDailyTicket(&plants[i], date, now)) {
			submitted++
		}
	}
	submittedCounter.WithLabelValues(string(v1.JobTypeDaily)).Add(float64(submitted))
	log.Info("daily sweep dispatched", "plants", len(plants), "submitted", submitted)
}
