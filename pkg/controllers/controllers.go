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

package controllers

import (
	"time"

	"github.com/samber/lo"
	"k8s.io/utils/clock"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	"github.com/heliofleet/heliofleet/pkg/controllers/polling"
	"github.com/heliofleet/heliofleet/pkg/controllers/scheduling"
	"github.com/heliofleet/heliofleet/pkg/events"
	"github.com/heliofleet/heliofleet/pkg/locks"
	"github.com/heliofleet/heliofleet/pkg/queue"
	"github.com/heliofleet/heliofleet/pkg/store"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

type Config struct {
	Poll           polling.Config
	DailySweepSpec string
	// DrainTimeout bounds how long in-flight jobs may finish after shutdown
	// begins.
	DrainTimeout time.Duration
	// ClaimTTL bounds how long a crashed instance's ticket claims survive in
	// the journal.
	ClaimTTL time.Duration
}

// Engine is the assembled polling engine: one queue per registered brand sized
// from that brand's capability table, the executor they all share, and the
// scheduler that feeds them.
type Engine struct {
	Queues    *queue.Set
	Scheduler *scheduling.Scheduler
}

func NewControllers(clk clock.Clock, s store.Store, locker locks.Locker, sealer vault.Vault, registry *adapters.Registry,
	recorder events.Recorder, journal *queue.Journal, cfg Config) (*Engine, error) {

	executor := polling.NewExecutor(s, locker, sealer, registry, recorder, clk, cfg.Poll)
	queues := lo.Map(registry.Capabilities(), func(c adapters.Capabilities, _ int) *queue.BrandQueue {
		return queue.NewBrandQueue(queue.Config{
			Brand:         c.Brand,
			MaxConcurrent: c.MaxConcurrent,
			MaxPerMinute:  c.MaxPerMinute,
			DrainTimeout:  cfg.DrainTimeout,
			ClaimTTL:      cfg.ClaimTTL,
		}, executor, clk, journal)
	})
	set := queue.NewSet(queues...)

	scheduler, err := scheduling.NewScheduler(s, set, clk, scheduling.Config{
		PollInterval:   cfg.Poll.PollInterval,
		DailySweepSpec: cfg.DailySweepSpec,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{Queues: set, Scheduler: scheduler}, nil
}
