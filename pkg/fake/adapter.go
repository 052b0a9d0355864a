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

package fake

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

type SummaryInput struct {
	Ref v1.PlantRef
}

type SeriesInput struct {
	Ref   v1.PlantRef
	Start localtime.Date
	End   localtime.Date
}

type AlarmsInput struct {
	Ref   v1.PlantRef
	Since time.Time
}

type SeriesOutput struct {
	Points []v1.DailyEnergyPoint
}

type AlarmsOutput struct {
	Alarms []v1.NormalizedAlarm
}

type DevicesOutput struct {
	Devices []v1.Device
}

// AdapterBehavior must be reset between tests otherwise tests will
// pollute each other.
type AdapterBehavior struct {
	TestConnectionBehavior       MockedFunction[SummaryInput, v1.TestResult]
	GetPlantSummaryBehavior      MockedFunction[SummaryInput, v1.NormalizedSummary]
	GetDailyEnergySeriesBehavior MockedFunction[SeriesInput, SeriesOutput]
	GetAlarmsSinceBehavior       MockedFunction[AlarmsInput, AlarmsOutput]
	GetDeviceListBehavior        MockedFunction[SummaryInput, DevicesOutput]
	NextError                    AtomicError
}

// Adapter is a controllable vendor integration for tests. Unprimed calls fall
// through to a benign default summary stamped at the fake clock's now.
type Adapter struct {
	AdapterBehavior

	Caps adapters.Capabilities

	clk clock.PassiveClock
}

func NewAdapter(brand v1.Brand, clk clock.PassiveClock) *Adapter {
	return &Adapter{Caps: adapters.CapabilitiesFor(brand), clk: clk}
}

func (a *Adapter) Reset() {
	a.TestConnectionBehavior.Reset()
	a.GetPlantSummaryBehavior.Reset()
	a.GetDailyEnergySeriesBehavior.Reset()
	a.GetAlarmsSinceBehavior.Reset()
	a.GetDeviceListBehavior.Reset()
	a.NextError.Reset()
}

func (a *Adapter) Capabilities() adapters.Capabilities {
	return a.Caps
}

func (a *Adapter) TestConnection(ctx context.Context, creds *vault.Credentials) (v1.TestResult, error) {
	if err := a.callable(ctx); err != nil {
		return v1.TestResult{}, err
	}
	out, err := a.TestConnectionBehavior.Invoke(&SummaryInput{}, func(*SummaryInput) (*v1.TestResult, error) {
		return &v1.TestResult{OK: true, Detail: "fake"}, nil
	})
	if err != nil {
		return v1.TestResult{}, err
	}
	return *out, nil
}

func (a *Adapter) GetPlantSummary(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) (*v1.NormalizedSummary, error) {
	if err := a.callable(ctx); err != nil {
		return nil, err
	}
	return a.GetPlantSummaryBehavior.Invoke(&SummaryInput{Ref: ref}, func(in *SummaryInput) (*v1.NormalizedSummary, error) {
		now := a.clk.Now()
		tz := in.Ref.Timezone
		if tz == "" {
			tz = "UTC"
		}
		power := 4200.0
		return &v1.NormalizedSummary{
			CurrentPowerW:   &power,
			TodayEnergyKWh:  12.5,
			LastSeenAt:      now,
			SourceSampledAt: now,
			Timezone:        tz,
		}, nil
	})
}

func (a *Adapter) GetDailyEnergySeries(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, start, end localtime.Date) ([]v1.DailyEnergyPoint, error) {
	if err := a.callable(ctx); err != nil {
		return nil, err
	}
	out, err := a.GetDailyEnergySeriesBehavior.Invoke(&SeriesInput{Ref: ref, Start: start, End: end}, func(*SeriesInput) (*SeriesOutput, error) {
		return &SeriesOutput{}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Points, nil
}

func (a *Adapter) GetAlarmsSince(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, since time.Time) ([]v1.NormalizedAlarm, error) {
	if err := a.callable(ctx); err != nil {
		return nil, err
	}
	out, err := a.GetAlarmsSinceBehavior.Invoke(&AlarmsInput{Ref: ref, Since: since}, func(*AlarmsInput) (*AlarmsOutput, error) {
		return &AlarmsOutput{}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Alarms, nil
}

func (a *Adapter) GetDeviceList(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) ([]v1.Device, error) {
	if err := a.callable(ctx); err != nil {
		return nil, err
	}
	out, err := a.GetDeviceListBehavior.Invoke(&SummaryInput{Ref: ref}, func(*SummaryInput) (*DevicesOutput, error) {
		return &DevicesOutput{}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.Devices, nil
}

func (a *Adapter) callable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.NextError.Get()
}
