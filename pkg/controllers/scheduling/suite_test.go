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

package scheduling_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	testingclock "k8s.io/utils/clock/testing"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/controllers/scheduling"
	"github.com/heliofleet/heliofleet/pkg/fake"
	"github.com/heliofleet/heliofleet/pkg/test"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	ctx        context.Context
	cancel     context.CancelFunc
	clk        *testingclock.FakeClock
	str        *fake.Store
	dispatcher *recordingDispatcher
)

var startTime = time.Date(2024, time.June, 15, 11, 0, 0, 0, time.UTC)

func TestScheduling(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scheduling")
}

var _ = BeforeEach(func() {
	ctx, cancel = context.WithCancel(context.Background())
	clk = testingclock.NewFakeClock(startTime)
	str = fake.NewStore(clk)
	dispatcher = &recordingDispatcher{}
})

var _ = AfterEach(func() {
	cancel()
})

func startScheduler(cfg scheduling.Config) {
	scheduler, err := scheduling.NewScheduler(str, dispatcher, clk, cfg)
	Expect(err).ToNot(HaveOccurred())
	go scheduler.Run(ctx)
	Eventually(clk.HasWaiters).Should(BeTrue())
}

// stepUntil advances the fake clock in increments until the condition holds.
func stepUntil(step time.Duration, condition func() bool) {
	Eventually(func() bool {
		clk.Step(step)
		return condition()
	}).Should(BeTrue())
}

var _ = Describe("Scheduler", func() {
	It("should reject a malformed sweep spec", func() {
		_, err := scheduling.NewScheduler(str, dispatcher, clk, scheduling.Config{DailySweepSpec: "once in a while"})
		Expect(err).To(HaveOccurred())
	})
	It("should dispatch the first poll round right after startup", func() {
		plantA := str.AddPlant(test.Plant())
		plantB := str.AddPlant(test.Plant())

		startScheduler(scheduling.Config{})
		clk.Step(2 * time.Second)

		Eventually(func() []*v1.JobTicket { return dispatcher.byType(v1.JobTypePoll) }).Should(HaveLen(2))
		ids := lo.Map(dispatcher.byType(v1.JobTypePoll), func(t *v1.JobTicket, _ int) string { return t.ID })
		Expect(ids).To(ConsistOf(v1.PollTicketID(plantA.ID), v1.PollTicketID(plantB.ID)))
	})
	It("should keep polling every interval", func() {
		str.AddPlant(test.Plant())

		startScheduler(scheduling.Config{PollInterval: 10 * time.Minute})
		clk.Step(2 * time.Second)
		Eventually(func() []*v1.JobTicket { return dispatcher.byType(v1.JobTypePoll) }).Should(HaveLen(1))

		stepUntil(time.Minute, func() bool { return len(dispatcher.byType(v1.JobTypePoll)) >= 2 })
	})
	It("should only schedule plants with an active integration", func() {
		active := str.AddPlant(test.Plant())
		str.AddPlant(test.Plant(v1.Plant{IntegrationStatus: v1.IntegrationPausedAuthError}))
		str.AddPlant(test.Plant(v1.Plant{DeletedAt: lo.ToPtr(clk.Now())}))

		startScheduler(scheduling.Config{})
		clk.Step(2 * time.Second)

		Eventually(func() []*v1.JobTicket { return dispatcher.byType(v1.JobTypePoll) }).Should(HaveLen(1))
		Expect(dispatcher.byType(v1.JobTypePoll)[0].PlantID).To(Equal(active.ID))
	})
	It("should sweep yesterday's local date shortly after midnight", func() {
		plant := str.AddPlant(test.Plant())

		startScheduler(scheduling.Config{})
		// The sweep is due at 00:30 UTC, 13.5 hours from the start time.
		stepUntil(time.Hour, func() bool { return len(dispatcher.byType(v1.JobTypeDaily)) >= 1 })

		daily := dispatcher.byType(v1.JobTypeDaily)[0]
		Expect(daily.PlantID).To(Equal(plant.ID))
		// At 00:30 UTC the plant's Madrid day has already rolled over, so
		// yesterday is still June 15th.
		Expect(daily.ID).To(Equal(v1.DailyTicketID(plant.ID, "2024-06-15")))
		Expect(daily.Date).To(Equal(localtime.Date("2024-06-15")))
	})
	It("should skip unresolvable timezones without blocking the sweep", func() {
		sound := str.AddPlant(test.Plant())
		str.AddPlant(test.Plant(v1.Plant{Timezone: "Mars/Olympus"}))

		startScheduler(scheduling.Config{})
		stepUntil(time.Hour, func() bool { return len(dispatcher.byType(v1.JobTypeDaily)) >= 1 })

		daily := dispatcher.byType(v1.JobTypeDaily)
		Expect(daily).To(HaveLen(1))
		Expect(daily[0].PlantID).To(Equal(sound.ID))
	})
})

type recordingDispatcher struct {
	mu      sync.Mutex
	tickets []*v1.JobTicket
}

func (d *recordingDispatcher) Submit(_ context.Context, ticket *v1.JobTicket) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tickets = append(d.tickets, ticket)
	return true
}

func (d *recordingDispatcher) byType(jobType v1.JobType) []*v1.JobTicket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo.Filter(d.tickets, func(t *v1.JobTicket, _ int) bool { return t.JobType == jobType })
}
