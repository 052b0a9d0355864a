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

// Package mock implements the vendor adapter contract from brand fixture
// documents. It performs no I/O after construction and is the only adapter
// family permitted when mock mode is on.
package mock

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

// Adapter serves one brand from its fixture. The same plant summary is
// returned for every plant ref; fixtures model vendor behavior, not fleet
// topology.
type Adapter struct {
	capabilities adapters.Capabilities
	fixture      *Fixture
}

// New loads the brand's fixture from <dir>/<brand>.json (lowercase) and
// builds the adapter. A missing or invalid fixture is a construction error
// and aborts startup.
func New(brand v1.Brand, fsys afero.Fs, dir string) (*Adapter, error) {
	fixture, err := LoadFixture(fsys, filepath.Join(dir, strings.ToLower(string(brand))+".json"))
	if err != nil {
		return nil, err
	}
	return &Adapter{capabilities: adapters.CapabilitiesFor(brand), fixture: fixture}, nil
}

// NewFromFixture builds the adapter directly from an in-memory fixture.
func NewFromFixture(brand v1.Brand, fixture *Fixture) *Adapter {
	return &Adapter{capabilities: adapters.CapabilitiesFor(brand), fixture: fixture}
}

func (a *Adapter) Capabilities() adapters.Capabilities {
	return a.capabilities
}

func (a *Adapter) TestConnection(ctx context.Context, _ *vault.Credentials) (v1.TestResult, error) {
	if err := ctx.Err(); err != nil {
		return v1.TestResult{}, err
	}
	return v1.TestResult{OK: true, Detail: "mock"}, nil
}

func (a *Adapter) GetPlantSummary(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials) (*v1.NormalizedSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs := a.fixture.PlantSummary
	summary := &v1.NormalizedSummary{
		TodayEnergyKWh:      *fs.TodayEnergyKWh,
		CurrentPowerW:       copyFloat(fs.CurrentPowerW),
		TotalEnergyKWh:      copyFloat(fs.TotalEnergyKWh),
		GridInjectionPowerW: copyFloat(fs.GridInjectionPowerW),
		LastSeenAt:          fs.LastSeenAt.UTC(),
		SourceSampledAt:     fs.SourceSampledAt.UTC(),
		Timezone:            fs.Timezone,
	}
	if err := adapters.ValidateSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func (a *Adapter) GetDailyEnergySeries(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials, start, end localtime.Date) ([]v1.DailyEnergyPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points := lo.FilterMap(a.fixture.DailySeries, func(p FixtureSeriesPoint, _ int) (v1.DailyEnergyPoint, bool) {
		date := localtime.Date(p.Date)
		if date < start || date > end {
			return v1.DailyEnergyPoint{}, false
		}
		return v1.DailyEnergyPoint{Date: date, EnergyKWh: p.EnergyKWh}, true
	})
	if err := adapters.ValidateSeries(points); err != nil {
		return nil, err
	}
	return points, nil
}

// GetAlarmsSince returns fixture alarms inside the window plus every active
// alarm regardless of age, so that reconciliation can resolve long-standing
// conditions.
func (a *Adapter) GetAlarmsSince(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials, since time.Time) ([]v1.NormalizedAlarm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	alarms := lo.FilterMap(a.fixture.Alarms, func(fa FixtureAlarm, _ int) (v1.NormalizedAlarm, bool) {
		if !fa.IsActive && !fa.OccurredAt.After(since) {
			return v1.NormalizedAlarm{}, false
		}
		return v1.NormalizedAlarm{
			VendorAlarmCode: fa.VendorAlarmCode,
			DeviceSN:        fa.DeviceSN,
			Message:         fa.Message,
			OccurredAt:      fa.OccurredAt.UTC(),
			IsActive:        fa.IsActive,
			Severity:        v1.AlertSeverity(fa.Severity),
		}, true
	})
	for _, alarm := range alarms {
		if err := adapters.ValidateAlarm(alarm); err != nil {
			return nil, err
		}
	}
	return alarms, nil
}

func (a *Adapter) GetDeviceList(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials) ([]v1.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return lo.Map(a.fixture.Devices, func(d FixtureDevice, _ int) v1.Device {
		return v1.Device{SN: d.SN, Kind: d.Kind, Model: d.Model, Online: d.Online}
	}), nil
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
