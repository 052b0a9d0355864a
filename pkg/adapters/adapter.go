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

// Package adapters defines the vendor adapter contract that isolates brand
// specifics from the rest of the engine. Adapters normalize every vendor
// response to watts, kilowatt-hours and UTC instants before it leaves the
// package boundary; consumers never see vendor units or vendor error shapes.
package adapters

import (
	"context"
	"time"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

// Capabilities describes a brand's polling constraints. The per-brand queue
// sizes its worker pool and token bucket from these values.
type Capabilities struct {
	Brand               v1.Brand
	MaxConcurrent       int
	MaxPerMinute        int
	MinIntervalSec      int
	SupportsDailySeries bool
	SupportsAlarms      bool
	SupportsDeviceList  bool
}

// Adapter is the polymorphic vendor contract. Every returned error is an
// errors.AdapterError; every returned value satisfies the normalization
// contract (validated again by the executor before persisting).
type Adapter interface {
	// TestConnection verifies the credentials against the vendor without
	// touching any plant data.
	TestConnection(ctx context.Context, creds *vault.Credentials) (v1.TestResult, error)
	// GetPlantSummary fetches the current production state of one plant.
	GetPlantSummary(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) (*v1.NormalizedSummary, error)
	// GetDailyEnergySeries fetches per-day energy totals for an inclusive
	// local date range.
	GetDailyEnergySeries(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, start, end localtime.Date) ([]v1.DailyEnergyPoint, error)
	// GetAlarmsSince fetches vendor alarms that occurred or changed after the
	// given instant.
	GetAlarmsSince(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, since time.Time) ([]v1.NormalizedAlarm, error)
	// GetDeviceList enumerates the plant's inverters and dataloggers. Brands
	// without device granularity return an empty list.
	GetDeviceList(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) ([]v1.Device, error)
	Capabilities() Capabilities
}
