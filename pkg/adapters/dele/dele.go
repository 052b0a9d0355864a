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

// Package dele talks to the DELE cloud API, the simplest of the supported
// vendors: bearer-token auth, watts on the wire, no historical series and no
// alarm feed.
package dele

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

const defaultBaseURL = "https://cloud.dele.energy"

type Adapter struct {
	client *adapters.Client
}

func New(httpClient *http.Client) *Adapter {
	return &Adapter{client: adapters.NewClient(v1.BrandDele, defaultBaseURL, httpClient)}
}

func (a *Adapter) Capabilities() adapters.Capabilities {
	return adapters.CapabilitiesFor(v1.BrandDele)
}

func bearer(creds *vault.Credentials) http.Header {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.Field("apiKey"))
	return header
}

func (a *Adapter) TestConnection(ctx context.Context, creds *vault.Credentials) (v1.TestResult, error) {
	if err := a.client.DoJSON(ctx, http.MethodGet, "/openapi/v1/me", bearer(creds), nil, nil); err != nil {
		return v1.TestResult{}, err
	}
	return v1.TestResult{OK: true}, nil
}

type realtimePayload struct {
	PowerW         *float64 `json:"powerW"`
	EnergyTodayKwh *float64 `json:"energyTodayKwh"`
	EnergyTotalKwh *float64 `json:"energyTotalKwh"`
	SampledAt      string   `json:"sampledAt"` // RFC 3339
}

func (a *Adapter) GetPlantSummary(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) (*v1.NormalizedSummary, error) {
	payload := &realtimePayload{}
	path := fmt.Sprintf("/openapi/v1/plants/%s/realtime", ref.VendorPlantID)
	if err := a.client.DoJSON(ctx, http.MethodGet, path, bearer(creds), nil, payload); err != nil {
		return nil, err
	}
	if payload.EnergyTodayKwh == nil {
		return nil, errors.InvalidDataf("DELE realtime payload has no energyTodayKwh")
	}
	sampledAt, err := time.Parse(time.RFC3339, payload.SampledAt)
	if err != nil {
		return nil, errors.InvalidDataf("DELE sampledAt %q, %s", payload.SampledAt, err)
	}
	summary := &v1.NormalizedSummary{
		TodayEnergyKWh:  *payload.EnergyTodayKwh,
		TotalEnergyKWh:  payload.EnergyTotalKwh,
		CurrentPowerW:   payload.PowerW,
		LastSeenAt:      sampledAt.UTC(),
		SourceSampledAt: sampledAt.UTC(),
		// DELE has no timezone field at all.
		Timezone: ref.Timezone,
	}
	if err := adapters.ValidateSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// GetDailyEnergySeries is not offered by the DELE API.
func (a *Adapter) GetDailyEnergySeries(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials, _, _ localtime.Date) ([]v1.DailyEnergyPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []v1.DailyEnergyPoint{}, nil
}

// GetAlarmsSince is not offered by the DELE API.
func (a *Adapter) GetAlarmsSince(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials, _ time.Time) ([]v1.NormalizedAlarm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []v1.NormalizedAlarm{}, nil
}

// GetDeviceList is not offered by the DELE API.
func (a *Adapter) GetDeviceList(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials) ([]v1.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []v1.Device{}, nil
}
