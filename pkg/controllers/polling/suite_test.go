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

package polling_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/controllers/polling"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/events"
	"github.com/heliofleet/heliofleet/pkg/fake"
	"github.com/heliofleet/heliofleet/pkg/locks"
	"github.com/heliofleet/heliofleet/pkg/store"
	"github.com/heliofleet/heliofleet/pkg/test"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var (
	ctx      context.Context
	clk      *testingclock.FakeClock
	str      *fake.Store
	locker   *fake.Locker
	sealer   *fake.Vault
	adapter  *fake.Adapter
	executor *polling.Executor
	plant    *v1.Plant
)

// 11:00 UTC is 13:00 in the plants' Europe/Madrid zone, local date 2024-06-15.
var startTime = time.Date(2024, time.June, 15, 11, 0, 0, 0, time.UTC)

const today = localtime.Date("2024-06-15")

func TestPolling(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Polling")
}

var _ = BeforeEach(func() {
	ctx = context.Background()
	clk = testingclock.NewFakeClock(startTime)
	str = fake.NewStore(clk)
	locker = fake.NewLocker()
	sealer = fake.NewVault()
	adapter = fake.NewAdapter(v1.BrandSolis, clk)
	executor = newExecutor(str, adapter)
	plant = addPlant(test.Plant())
})

func newExecutor(s store.Store, adapters ...*fake.Adapter) *polling.Executor {
	recorder := events.NewRecorder(logging.NewTestLogger())
	return polling.NewExecutor(s, locker, sealer, newRegistry(adapters...), recorder, clk, polling.Config{PollInterval: 10 * time.Minute})
}

func newRegistry(fakes ...*fake.Adapter) *adapters.Registry {
	registered := lo.Map(fakes, func(a *fake.Adapter, _ int) adapters.Adapter { return a })
	return adapters.NewRegistry(registered...)
}

func addPlant(p *v1.Plant) *v1.Plant {
	str.AddPlant(p)
	str.AddCredential(&v1.Credential{PlantID: p.ID, Brand: p.Brand, EncryptedBlob: fake.SealedCredentials(`{"apiKey":"k1"}`)})
	return p
}

func primeSummary(overrides ...v1.NormalizedSummary) {
	adapter.GetPlantSummaryBehavior.Output.Set(test.Summary(overrides...))
}

func seedHistory(days int, energyKWh float64) {
	for i := 1; i <= days; i++ {
		str.AddSnapshot(test.Snapshot(v1.MetricSnapshot{
			PlantID:        plant.ID,
			Date:           today.AddDays(-i),
			TodayEnergyKWh: energyKWh,
			LastSeenAt:     clk.Now(),
		}))
	}
}

func storedPlant(id string) *v1.Plant {
	p, err := str.GetPlant(ctx, id)
	Expect(err).ToNot(HaveOccurred())
	return p
}

func lastLog() v1.PollLog {
	pollLogs := str.PollLogs()
	Expect(pollLogs).ToNot(BeEmpty())
	return pollLogs[len(pollLogs)-1]
}

var _ = Describe("Executor", func() {
	Context("latest-values poll", func() {
		It("should persist the summary as today's snapshot", func() {
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 18.2, LastSeenAt: clk.Now(), SourceSampledAt: clk.Now().Add(-time.Minute)})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			snapshots := str.Snapshots(plant.ID)
			Expect(snapshots).To(HaveLen(1))
			Expect(snapshots[0].Date).To(Equal(today))
			Expect(snapshots[0].Timezone).To(Equal("Europe/Madrid"))
			Expect(snapshots[0].TodayEnergyKWh).To(Equal(18.2))
			Expect(snapshots[0].LastSeenAt).To(Equal(clk.Now()))
			Expect(snapshots[0].SourceSampledAt).To(Equal(clk.Now().Add(-time.Minute)))

			pollLogs := str.PollLogs()
			Expect(pollLogs).To(HaveLen(1))
			Expect(pollLogs[0].PlantID).To(Equal(plant.ID))
			Expect(pollLogs[0].JobType).To(Equal(v1.JobTypePoll))
			Expect(pollLogs[0].Status).To(Equal(v1.PollSuccess))
			Expect(pollLogs[0].AdapterErrorType).To(BeEmpty())
		})
		It("should update the existing row for the day instead of adding one", func() {
			str.AddSnapshot(test.Snapshot(v1.MetricSnapshot{PlantID: plant.ID, Date: today, TodayEnergyKWh: 5.0, LastSeenAt: clk.Now().Add(-10 * time.Minute)}))
			seededID := str.Snapshots(plant.ID)[0].ID
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 18.2, LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			snapshots := str.Snapshots(plant.ID)
			Expect(snapshots).To(HaveLen(1))
			Expect(snapshots[0].ID).To(Equal(seededID))
			Expect(snapshots[0].TodayEnergyKWh).To(Equal(18.2))
		})
		It("should credit a measurement to the local date it was taken on", func() {
			// 21:59 UTC on the 14th is 23:59 local, still the 14th.
			primeSummary(v1.NormalizedSummary{LastSeenAt: time.Date(2024, time.June, 14, 21, 59, 0, 0, time.UTC)})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			snapshots := str.Snapshots(plant.ID)
			Expect(snapshots).To(HaveLen(1))
			Expect(snapshots[0].Date).To(Equal(localtime.Date("2024-06-14")))
		})
		It("should release the plant lock when done", func() {
			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())
			Expect(locker.Holder(locks.PlantLockKey(plant.ID))).To(BeEmpty())
			Expect(locker.Released()).To(ContainElement(locks.PlantLockKey(plant.ID)))
		})
		It("should release the plant lock when the vendor call fails", func() {
			adapter.NextError.Set(errors.NetworkTimeout(fmt.Errorf("connect timed out")))
			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).ToNot(Succeed())
			Expect(locker.Holder(locks.PlantLockKey(plant.ID))).To(BeEmpty())
		})
		It("should skip without error when another worker holds the plant lock", func() {
			locker.Hold(locks.PlantLockKey(plant.ID), "other-worker")

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			Expect(adapter.GetPlantSummaryBehavior.Calls()).To(Equal(0))
			Expect(lastLog().Status).To(Equal(v1.PollSuccess))
			Expect(lastLog().AdapterErrorType).To(Equal(v1.ErrorKindLockSkipped))
			Expect(locker.Holder(locks.PlantLockKey(plant.ID))).To(Equal("other-worker"))
		})
	})

	Context("plant gating", func() {
		It("should fail terminally when the plant does not exist", func() {
			ghost := test.Plant()
			err := executor.Execute(ctx, v1.NewPollTicket(ghost, clk.Now()))
			Expect(err).To(HaveOccurred())
			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindPlantNotFound))
			Expect(errors.IsRetryable(err)).To(BeFalse())
			Expect(lastLog().Status).To(Equal(v1.PollError))
			Expect(lastLog().AdapterErrorType).To(Equal(v1.ErrorKindPlantNotFound))
		})
		It("should fail terminally on a soft-deleted plant", func() {
			gone := addPlant(test.Plant(v1.Plant{DeletedAt: lo.ToPtr(clk.Now())}))
			err := executor.Execute(ctx, v1.NewPollTicket(gone, clk.Now()))
			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindPlantNotFound))
			Expect(adapter.GetPlantSummaryBehavior.Calls()).To(Equal(0))
		})
		It("should grey out a paused integration without calling the vendor", func() {
			paused := addPlant(test.Plant(v1.Plant{IntegrationStatus: v1.IntegrationPausedAuthError}))

			Expect(executor.Execute(ctx, v1.NewPollTicket(paused, clk.Now()))).To(Succeed())

			Expect(storedPlant(paused.ID).Status).To(Equal(v1.StatusGrey))
			Expect(adapter.GetPlantSummaryBehavior.Calls()).To(Equal(0))
			Expect(lastLog().Status).To(Equal(v1.PollSuccess))
		})
	})

	Context("credentials", func() {
		It("should pause the integration when no credential is stored", func() {
			bare := str.AddPlant(test.Plant())

			err := executor.Execute(ctx, v1.NewPollTicket(bare, clk.Now()))

			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindAuthFailed))
			Expect(errors.IsRetryable(err)).To(BeFalse())
			Expect(storedPlant(bare.ID).IntegrationStatus).To(Equal(v1.IntegrationPausedAuthError))
			Expect(locker.Holder(locks.PlantLockKey(bare.ID))).To(BeEmpty())
		})
		It("should pause the integration when the blob does not decrypt", func() {
			sealer.DecryptError.Set(fmt.Errorf("message authentication failed"))

			err := executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))

			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindAuthFailed))
			Expect(storedPlant(plant.ID).IntegrationStatus).To(Equal(v1.IntegrationPausedAuthError))
			Expect(adapter.GetPlantSummaryBehavior.Calls()).To(Equal(0))
		})
		It("should pause the integration when the vendor rejects the credentials", func() {
			adapter.NextError.Set(errors.AuthFailed(fmt.Errorf("token expired")))

			err := executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))

			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindAuthFailed))
			Expect(storedPlant(plant.ID).IntegrationStatus).To(Equal(v1.IntegrationPausedAuthError))
			Expect(str.Snapshots(plant.ID)).To(BeEmpty())
			Expect(lastLog().AdapterErrorType).To(Equal(v1.ErrorKindAuthFailed))
		})
	})

	Context("adapter failures", func() {
		It("should write nothing when the summary fetch fails", func() {
			adapter.NextError.Set(errors.RateLimited(45*time.Second, fmt.Errorf("quota exhausted")).WithHTTPStatus(429))

			err := executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))

			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindRateLimited))
			Expect(str.Snapshots(plant.ID)).To(BeEmpty())
			Expect(str.Alerts()).To(BeEmpty())
			Expect(storedPlant(plant.ID).IntegrationStatus).To(Equal(v1.IntegrationActive))
			Expect(lastLog().Status).To(Equal(v1.PollError))
			Expect(lastLog().AdapterErrorType).To(Equal(v1.ErrorKindRateLimited))
			Expect(lastLog().HTTPStatus).To(HaveValue(Equal(429)))
		})
		It("should map a deadline overrun to a network timeout", func() {
			adapter.NextError.Set(context.DeadlineExceeded)

			err := executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))

			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindNetworkTimeout))
			Expect(errors.IsRetryable(err)).To(BeTrue())
			Expect(lastLog().AdapterErrorType).To(Equal(v1.ErrorKindNetworkTimeout))
		})
		It("should reject a summary that fails validation", func() {
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: -3.0, LastSeenAt: clk.Now()})

			err := executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))

			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindInvalidData))
			Expect(str.Snapshots(plant.ID)).To(BeEmpty())
		})
		It("should reject a plant with an unresolvable timezone", func() {
			martian := addPlant(test.Plant(v1.Plant{Timezone: "Mars/Olympus"}))
			adapter.GetPlantSummaryBehavior.Output.Set(test.Summary(v1.NormalizedSummary{LastSeenAt: clk.Now(), Timezone: "Mars/Olympus"}))

			err := executor.Execute(ctx, v1.NewPollTicket(martian, clk.Now()))

			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindInvalidData))
			Expect(str.Snapshots(martian.ID)).To(BeEmpty())
		})
	})

	Context("backfill", func() {
		It("should fill exactly the recent days that are missing", func() {
			str.AddSnapshot(test.Snapshot(v1.MetricSnapshot{PlantID: plant.ID, Date: today.AddDays(-1), TodayEnergyKWh: 9.0, LastSeenAt: clk.Now().Add(-20 * time.Hour)}))
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 18.2, LastSeenAt: clk.Now()})
			adapter.GetDailyEnergySeriesBehavior.Output.Set(&fake.SeriesOutput{Points: []v1.DailyEnergyPoint{
				{Date: today.AddDays(-3), EnergyKWh: 6.1},
				{Date: today.AddDays(-2), EnergyKWh: 7.2},
			}})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			request := adapter.GetDailyEnergySeriesBehavior.CalledWithInput.Pop()
			Expect(request.Start).To(Equal(today.AddDays(-3)))
			Expect(request.End).To(Equal(today.AddDays(-2)))

			snapshots := str.Snapshots(plant.ID)
			Expect(snapshots).To(HaveLen(4))
			Expect(snapshots[0].Date).To(Equal(today.AddDays(-3)))
			Expect(snapshots[0].TodayEnergyKWh).To(Equal(6.1))
			Expect(snapshots[0].LastSeenAt).To(Equal(clk.Now()))
			Expect(snapshots[0].SourceSampledAt).To(Equal(clk.Now()))
			Expect(snapshots[1].TodayEnergyKWh).To(Equal(7.2))
			// The measured day keeps its measured value.
			Expect(snapshots[2].TodayEnergyKWh).To(Equal(9.0))
			Expect(snapshots[3].TodayEnergyKWh).To(Equal(18.2))
		})
		It("should not call the series endpoint when every recent day is covered", func() {
			seedHistory(3, 10.0)
			primeSummary(v1.NormalizedSummary{LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			Expect(adapter.GetDailyEnergySeriesBehavior.Calls()).To(Equal(0))
		})
		It("should skip series and alarms on a brand without those endpoints", func() {
			basic := fake.NewAdapter(v1.BrandDele, clk)
			executor = newExecutor(str, basic)
			limited := addPlant(test.Plant(v1.Plant{Brand: v1.BrandDele}))

			Expect(executor.Execute(ctx, v1.NewPollTicket(limited, clk.Now()))).To(Succeed())

			Expect(str.Snapshots(limited.ID)).To(HaveLen(1))
			Expect(basic.GetDailyEnergySeriesBehavior.Calls()).To(Equal(0))
			Expect(basic.GetAlarmsSinceBehavior.Calls()).To(Equal(0))
		})
	})

	Context("derived alerts and status", func() {
		It("should raise a critical low-generation alert and turn the plant red on a collapse", func() {
			seedHistory(7, 10.0)
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 0.5, LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			alerts := str.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Type).To(Equal(v1.AlertTypeLowGen))
			Expect(alerts[0].Severity).To(Equal(v1.SeverityCritical))
			Expect(alerts[0].State).To(Equal(v1.AlertStateNew))
			Expect(alerts[0].Notifiable).To(BeTrue())
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusRed))
		})
		It("should raise a high low-generation alert and yellow the plant on a partial drop", func() {
			seedHistory(7, 10.0)
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 2.5, LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			alerts := str.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Severity).To(Equal(v1.SeverityHigh))
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusYellow))
		})
		It("should not judge low generation against a thin history", func() {
			seedHistory(2, 10.0)
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 0.1, LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			Expect(str.Alerts()).To(BeEmpty())
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusGreen))
		})
		It("should not judge low generation against a zero baseline", func() {
			seedHistory(3, 0)
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 0.1, LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			Expect(str.Alerts()).To(BeEmpty())
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusGreen))
		})
		It("should resolve the low-generation alert once production recovers", func() {
			seedHistory(7, 10.0)
			str.AddAlert(&v1.Alert{
				PlantID:    plant.ID,
				Type:       v1.AlertTypeLowGen,
				Severity:   v1.SeverityHigh,
				State:      v1.AlertStateNew,
				OccurredAt: clk.Now().Add(-2 * time.Hour),
				LastSeenAt: clk.Now().Add(-10 * time.Minute),
			})
			primeSummary(v1.NormalizedSummary{TodayEnergyKWh: 9.8, LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			alerts := str.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].State).To(Equal(v1.AlertStateResolved))
			Expect(alerts[0].ClearedAt).To(HaveValue(Equal(clk.Now())))
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusGreen))
		})
		It("should flag a plant offline after a day of silence", func() {
			primeSummary(v1.NormalizedSummary{LastSeenAt: clk.Now().Add(-25 * time.Hour)})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			alerts := str.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Type).To(Equal(v1.AlertTypeOffline))
			Expect(alerts[0].Severity).To(Equal(v1.SeverityCritical))
			Expect(alerts[0].VendorAlarmCode).To(BeEmpty())
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusRed))
		})
		It("should fold vendor alarms into fault alerts", func() {
			adapter.GetAlarmsSinceBehavior.Output.Set(&fake.AlarmsOutput{Alarms: []v1.NormalizedAlarm{
				test.Alarm(v1.NormalizedAlarm{VendorAlarmCode: "GRID-02", DeviceSN: "SN-9", Severity: v1.SeverityCritical, IsActive: true, OccurredAt: clk.Now().Add(-5 * time.Minute)}),
			}})
			primeSummary(v1.NormalizedSummary{LastSeenAt: clk.Now()})

			Expect(executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))).To(Succeed())

			alerts := str.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Type).To(Equal(v1.AlertTypeFault))
			Expect(alerts[0].VendorAlarmCode).To(Equal("GRID-02"))
			Expect(alerts[0].DeviceSN).To(Equal("SN-9"))
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusRed))
			Expect(lastLog().Status).To(Equal(v1.PollSuccess))
		})
		It("should keep alert writes and the traffic light in one transaction", func() {
			adapter.GetAlarmsSinceBehavior.Output.Set(&fake.AlarmsOutput{Alarms: []v1.NormalizedAlarm{
				test.Alarm(v1.NormalizedAlarm{Severity: v1.SeverityCritical, IsActive: true, OccurredAt: clk.Now()}),
			}})
			primeSummary(v1.NormalizedSummary{LastSeenAt: clk.Now()})
			str.InsertAlertError.Set(fmt.Errorf("constraint violated"))

			err := executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))

			Expect(err).To(HaveOccurred())
			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindUnknown))
			Expect(str.Alerts()).To(BeEmpty())
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusGreen))
			// The snapshot write precedes reconciliation and survives.
			Expect(str.Snapshots(plant.ID)).To(HaveLen(1))
			Expect(lastLog().Status).To(Equal(v1.PollError))
		})
	})

	Context("daily verification", func() {
		It("should repair a missing day from the vendor series", func() {
			date := localtime.Date("2024-06-13")
			adapter.GetDailyEnergySeriesBehavior.Output.Set(&fake.SeriesOutput{Points: []v1.DailyEnergyPoint{{Date: date, EnergyKWh: 8.8}}})

			Expect(executor.Execute(ctx, v1.NewDailyTicket(plant, date, clk.Now()))).To(Succeed())

			request := adapter.GetDailyEnergySeriesBehavior.CalledWithInput.Pop()
			Expect(request.Start).To(Equal(date))
			Expect(request.End).To(Equal(date))

			snapshots := str.Snapshots(plant.ID)
			Expect(snapshots).To(HaveLen(1))
			Expect(snapshots[0].Date).To(Equal(date))
			Expect(snapshots[0].TodayEnergyKWh).To(Equal(8.8))
			Expect(adapter.GetPlantSummaryBehavior.Calls()).To(Equal(0))
			Expect(adapter.GetAlarmsSinceBehavior.Calls()).To(Equal(0))
			Expect(lastLog().JobType).To(Equal(v1.JobTypeDaily))
			Expect(lastLog().Status).To(Equal(v1.PollSuccess))
		})
		It("should leave an already-verified day untouched", func() {
			date := localtime.Date("2024-06-13")
			str.AddSnapshot(test.Snapshot(v1.MetricSnapshot{PlantID: plant.ID, Date: date, TodayEnergyKWh: 7.7, LastSeenAt: clk.Now()}))

			Expect(executor.Execute(ctx, v1.NewDailyTicket(plant, date, clk.Now()))).To(Succeed())

			Expect(adapter.GetDailyEnergySeriesBehavior.Calls()).To(Equal(0))
			Expect(str.Snapshots(plant.ID)[0].TodayEnergyKWh).To(Equal(7.7))
		})
		It("should recompute staleness from the stored snapshots", func() {
			date := today.AddDays(-1)
			str.AddSnapshot(test.Snapshot(v1.MetricSnapshot{PlantID: plant.ID, Date: date, TodayEnergyKWh: 9.0, LastSeenAt: clk.Now().Add(-30 * time.Hour)}))

			Expect(executor.Execute(ctx, v1.NewDailyTicket(plant, date, clk.Now()))).To(Succeed())

			alerts := str.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].Type).To(Equal(v1.AlertTypeOffline))
			Expect(storedPlant(plant.ID).Status).To(Equal(v1.StatusRed))
		})
	})

	Context("the poll log", func() {
		It("should record the execution even when the job panics", func() {
			primeSummary(v1.NormalizedSummary{LastSeenAt: clk.Now()})
			executor = newExecutor(&explodingStore{str}, adapter)

			Expect(func() {
				_ = executor.Execute(ctx, v1.NewPollTicket(plant, clk.Now()))
			}).To(Panic())

			pollLogs := str.PollLogs()
			Expect(pollLogs).To(HaveLen(1))
			Expect(pollLogs[0].Status).To(Equal(v1.PollError))
			Expect(pollLogs[0].AdapterErrorType).To(Equal(v1.ErrorKindUnknown))
		})
	})
})

// explodingStore panics on the snapshot write to exercise the crash path.
type explodingStore struct {
	*fake.Store
}

func (e *explodingStore) UpsertSnapshot(context.Context, *v1.MetricSnapshot) error {
	panic("snapshot write exploded")
}
