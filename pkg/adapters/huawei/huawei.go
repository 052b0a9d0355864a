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

// Package huawei talks to the FusionSolar northbound API. Sessions are
// XSRF-token based and cached per credential fingerprint; a stale session is
// dropped and re-established once before the call fails.
package huawei

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

const (
	defaultBaseURL = "https://eu5.fusionsolar.huawei.com"
	xsrfHeader     = "XSRF-TOKEN"

	failCodeSessionExpired = 305
	failCodeRateLimited    = 407
)

type Adapter struct {
	client *adapters.Client
}

func New(httpClient *http.Client) *Adapter {
	return &Adapter{client: adapters.NewClient(v1.BrandHuawei, defaultBaseURL, httpClient)}
}

func (a *Adapter) Capabilities() adapters.Capabilities {
	return adapters.CapabilitiesFor(v1.BrandHuawei)
}

type envelope struct {
	Success  bool            `json:"success"`
	FailCode int             `json:"failCode"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
}

func (a *Adapter) session(ctx context.Context, creds *vault.Credentials) (string, error) {
	if token, ok := a.client.Session(creds); ok {
		return token, nil
	}
	body := map[string]string{"userName": creds.Field("userName"), "systemCode": creds.Field("systemCode")}
	env := &envelope{}
	respHeader, err := a.client.DoJSONHeaders(ctx, http.MethodPost, "/thirdData/login", nil, body, env)
	if err != nil {
		return "", err
	}
	if !env.Success {
		return "", errors.AuthFailed(fmt.Errorf("FusionSolar login failed, failCode %d", env.FailCode))
	}
	token := respHeader.Get(xsrfHeader)
	if token == "" {
		return "", errors.Unknown(fmt.Errorf("FusionSolar login response carries no session token"))
	}
	a.client.StoreSession(creds, token)
	return token, nil
}

func (a *Adapter) post(ctx context.Context, creds *vault.Credentials, path string, body, out interface{}) error {
	// One transparent re-login when the cached session has expired.
	for attempt := 0; ; attempt++ {
		token, err := a.session(ctx, creds)
		if err != nil {
			return err
		}
		header := http.Header{}
		header.Set(xsrfHeader, token)
		env := &envelope{}
		if err := a.client.DoJSON(ctx, http.MethodPost, path, header, body, env); err != nil {
			return err
		}
		if env.Success {
			if out != nil && len(env.Data) > 0 {
				if err := json.Unmarshal(env.Data, out); err != nil {
					return errors.InvalidDataf("decoding FusionSolar payload, %s", err)
				}
			}
			return nil
		}
		if env.FailCode == failCodeSessionExpired && attempt == 0 {
			a.client.DropSession(creds)
			continue
		}
		return classify(env)
	}
}

func classify(env *envelope) error {
	switch env.FailCode {
	case failCodeSessionExpired, 20001, 20002, 20003:
		return errors.AuthFailed(fmt.Errorf("FusionSolar rejected session, failCode %d", env.FailCode))
	case failCodeRateLimited:
		return errors.RateLimited(0, fmt.Errorf("FusionSolar access frequency too high"))
	}
	return errors.Unknown(fmt.Errorf("FusionSolar call failed, failCode %d", env.FailCode))
}

func (a *Adapter) TestConnection(ctx context.Context, creds *vault.Credentials) (v1.TestResult, error) {
	a.client.DropSession(creds)
	if _, err := a.session(ctx, creds); err != nil {
		return v1.TestResult{}, err
	}
	return v1.TestResult{OK: true}, nil
}

type stationRealKpi struct {
	StationCode string             `json:"stationCode"`
	DataItemMap map[string]float64 `json:"dataItemMap"`
}

func (a *Adapter) GetPlantSummary(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) (*v1.NormalizedSummary, error) {
	var rows []stationRealKpi
	if err := a.post(ctx, creds, "/thirdData/getStationRealKpi", map[string]string{"stationCodes": ref.VendorPlantID}, &rows); err != nil {
		return nil, err
	}
	row, found := lo.Find(rows, func(r stationRealKpi) bool { return r.StationCode == ref.VendorPlantID })
	if !found {
		return nil, errors.PlantNotFound(fmt.Errorf("FusionSolar returned no KPI row for station"))
	}
	dayPower, ok := row.DataItemMap["day_power"]
	if !ok {
		return nil, errors.InvalidDataf("FusionSolar KPI row has no day_power")
	}
	now := time.Now().UTC()
	summary := &v1.NormalizedSummary{
		TodayEnergyKWh: dayPower,
		// The northbound real KPI has no instantaneous power reading.
		CurrentPowerW:   nil,
		LastSeenAt:      now,
		SourceSampledAt: now,
		// FusionSolar reports numeric offsets only.
		Timezone: ref.Timezone,
	}
	if total, ok := row.DataItemMap["total_power"]; ok {
		summary.TotalEnergyKWh = lo.ToPtr(total)
	}
	if err := adapters.ValidateSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

type stationDayKpi struct {
	CollectTime int64              `json:"collectTime"`
	DataItemMap map[string]float64 `json:"dataItemMap"`
}

func (a *Adapter) GetDailyEnergySeries(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, start, end localtime.Date) ([]v1.DailyEnergyPoint, error) {
	loc, err := localtime.LoadZone(ref.Timezone)
	if err != nil {
		return nil, errors.InvalidData(err)
	}
	var points []v1.DailyEnergyPoint
	// The day-KPI endpoint returns one whole month per call.
	for _, month := range monthsBetween(start, end, loc) {
		var rows []stationDayKpi
		body := map[string]interface{}{"stationCodes": ref.VendorPlantID, "collectTime": month.UnixMilli()}
		if err := a.post(ctx, creds, "/thirdData/getKpiStationDay", body, &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			date := localtime.DateOf(time.UnixMilli(row.CollectTime), loc)
			if date < start || date > end {
				continue
			}
			points = append(points, v1.DailyEnergyPoint{Date: date, EnergyKWh: row.DataItemMap["inverter_power"]})
		}
	}
	if err := adapters.ValidateSeries(points); err != nil {
		return nil, err
	}
	return points, nil
}

func monthsBetween(start, end localtime.Date, loc *time.Location) []time.Time {
	startDay, err := start.StartOfDay(loc)
	if err != nil {
		return nil
	}
	endDay, err := end.StartOfDay(loc)
	if err != nil {
		return nil
	}
	var months []time.Time
	for cursor := time.Date(startDay.Year(), startDay.Month(), 1, 0, 0, 0, 0, loc); !cursor.After(endDay); cursor = cursor.AddDate(0, 1, 0) {
		months = append(months, cursor)
	}
	return months
}

type alarmRow struct {
	AlarmID    int64  `json:"alarmId"`
	AlarmName  string `json:"alarmName"`
	AlarmCause string `json:"alarmCause"`
	Lev        int    `json:"lev"`
	EsnCode    string `json:"esnCode"`
	RaiseTime  int64  `json:"raiseTime"`
	Status     int    `json:"status"` // 1 active, 2 recovered
}

func (a *Adapter) GetAlarmsSince(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, since time.Time) ([]v1.NormalizedAlarm, error) {
	var rows []alarmRow
	body := map[string]interface{}{
		"stationCodes": ref.VendorPlantID,
		"beginTime":    since.UnixMilli(),
		"endTime":      time.Now().UnixMilli(),
		"language":     "en_US",
	}
	if err := a.post(ctx, creds, "/thirdData/getAlarmList", body, &rows); err != nil {
		return nil, err
	}
	alarms := make([]v1.NormalizedAlarm, 0, len(rows))
	for _, row := range rows {
		alarm := v1.NormalizedAlarm{
			VendorAlarmCode: strconv.FormatInt(row.AlarmID, 10),
			DeviceSN:        row.EsnCode,
			Message:         row.AlarmName,
			OccurredAt:      time.UnixMilli(row.RaiseTime).UTC(),
			IsActive:        row.Status == 1,
			Severity:        severityForLevel(row.Lev),
		}
		if err := adapters.ValidateAlarm(alarm); err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}
	return alarms, nil
}

type devRow struct {
	EsnCode   string `json:"esnCode"`
	DevName   string `json:"devName"`
	DevTypeID int    `json:"devTypeId"`
	Status    int    `json:"status"`
}

func (a *Adapter) GetDeviceList(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) ([]v1.Device, error) {
	var rows []devRow
	if err := a.post(ctx, creds, "/thirdData/getDevList", map[string]string{"stationCodes": ref.VendorPlantID}, &rows); err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r devRow, _ int) v1.Device {
		kind := "inverter"
		if r.DevTypeID == 62 {
			kind = "datalogger"
		}
		return v1.Device{SN: r.EsnCode, Kind: kind, Model: r.DevName, Online: r.Status == 1}
	}), nil
}

// FusionSolar levels run 1 (most severe) to 4.
func severityForLevel(lev int) v1.AlertSeverity {
	switch lev {
	case 1:
		return v1.SeverityCritical
	case 2:
		return v1.SeverityHigh
	case 3:
		return v1.SeverityMedium
	}
	return v1.SeverityLow
}
