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

// Package solis talks to the SolisCloud platform API. Every request is signed
// with the account's key pair; power values arrive in kilowatts and are
// normalized to watts here.
package solis

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

const defaultBaseURL = "https://www.soliscloud.com:13333"

type Adapter struct {
	client *adapters.Client
}

func New(httpClient *http.Client) *Adapter {
	return &Adapter{client: adapters.NewClient(v1.BrandSolis, defaultBaseURL, httpClient)}
}

func (a *Adapter) Capabilities() adapters.Capabilities {
	return adapters.CapabilitiesFor(v1.BrandSolis)
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (a *Adapter) post(ctx context.Context, creds *vault.Credentials, path string, body, out interface{}) error {
	env := &envelope{}
	if err := a.client.DoJSON(ctx, http.MethodPost, path, sign(creds, path, body), body, env); err != nil {
		return err
	}
	if !env.Success {
		return classify(env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.InvalidDataf("decoding SOLIS payload, %s", err)
		}
	}
	return nil
}

// sign builds the SolisCloud HMAC-SHA1 request signature over the verb, body
// digest, content type, date and path.
func sign(creds *vault.Credentials, path string, body interface{}) http.Header {
	payload, _ := json.Marshal(body)
	sum := md5.Sum(payload)
	contentMD5 := base64.StdEncoding.EncodeToString(sum[:])
	date := time.Now().UTC().Format(http.TimeFormat)
	canonical := fmt.Sprintf("POST\n%s\napplication/json\n%s\n%s", contentMD5, date, path)
	mac := hmac.New(sha1.New, []byte(creds.Field("keySecret")))
	mac.Write([]byte(canonical))
	header := http.Header{}
	header.Set("Content-MD5", contentMD5)
	header.Set("Date", date)
	header.Set("Authorization", fmt.Sprintf("API %s:%s", creds.Field("keyId"), base64.StdEncoding.EncodeToString(mac.Sum(nil))))
	return header
}

func classify(env *envelope) error {
	switch env.Code {
	case "B0102", "Z0001":
		return errors.AuthFailed(fmt.Errorf("SOLIS rejected key pair, code %s", env.Code))
	case "B0104":
		return errors.RateLimited(0, fmt.Errorf("SOLIS request frequency exceeded"))
	case "B0115":
		return errors.PlantNotFound(fmt.Errorf("SOLIS has no such station"))
	}
	return errors.Unknown(fmt.Errorf("SOLIS call failed, code %s", env.Code))
}

func (a *Adapter) TestConnection(ctx context.Context, creds *vault.Credentials) (v1.TestResult, error) {
	body := map[string]interface{}{"pageNo": 1, "pageSize": 1}
	if err := a.post(ctx, creds, "/v1/api/userStationList", body, nil); err != nil {
		return v1.TestResult{}, err
	}
	return v1.TestResult{OK: true}, nil
}

type stationDetail struct {
	Power         *float64 `json:"power"`  // kW
	EToday        *float64 `json:"eToday"` // kWh
	ETotal        *float64 `json:"eTotal"` // kWh
	PSum          *float64 `json:"psum"`   // kW, negative on import
	DataTimestamp string   `json:"dataTimestamp"`
}

func (a *Adapter) GetPlantSummary(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) (*v1.NormalizedSummary, error) {
	detail := &stationDetail{}
	if err := a.post(ctx, creds, "/v1/api/stationDetail", map[string]interface{}{"id": ref.VendorPlantID}, detail); err != nil {
		return nil, err
	}
	if detail.EToday == nil {
		return nil, errors.InvalidDataf("SOLIS station detail has no eToday")
	}
	sampledAt, err := parseMillis(detail.DataTimestamp)
	if err != nil {
		return nil, errors.InvalidDataf("SOLIS dataTimestamp %q, %s", detail.DataTimestamp, err)
	}
	summary := &v1.NormalizedSummary{
		TodayEnergyKWh:      *detail.EToday,
		TotalEnergyKWh:      detail.ETotal,
		CurrentPowerW:       kilowattsToWatts(detail.Power),
		GridInjectionPowerW: kilowattsToWatts(detail.PSum),
		LastSeenAt:          sampledAt,
		SourceSampledAt:     sampledAt,
		// SolisCloud reports numeric UTC offsets only.
		Timezone: ref.Timezone,
	}
	if err := adapters.ValidateSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

type dayEnergyRecord struct {
	Date   string  `json:"date"`
	Energy float64 `json:"energy"`
}

type dayEnergyList struct {
	Records []dayEnergyRecord `json:"records"`
}

func (a *Adapter) GetDailyEnergySeries(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, start, end localtime.Date) ([]v1.DailyEnergyPoint, error) {
	list := &dayEnergyList{}
	body := map[string]interface{}{"id": ref.VendorPlantID, "startTime": start.String(), "endTime": end.String()}
	if err := a.post(ctx, creds, "/v1/api/stationDayEnergyList", body, list); err != nil {
		return nil, err
	}
	points := lo.Map(list.Records, func(r dayEnergyRecord, _ int) v1.DailyEnergyPoint {
		return v1.DailyEnergyPoint{Date: localtime.Date(r.Date), EnergyKWh: r.Energy}
	})
	if err := adapters.ValidateSeries(points); err != nil {
		return nil, err
	}
	return points, nil
}

type alarmRecord struct {
	AlarmCode      string `json:"alarmCode"`
	AlarmMsg       string `json:"alarmMsg"`
	AlarmLevel     int    `json:"alarmLevel"`
	DeviceSn       string `json:"deviceSn"`
	AlarmBeginTime string `json:"alarmBeginTime"` // epoch millis
	State          string `json:"state"`          // "0" active, "1" restored
}

type alarmList struct {
	Records []alarmRecord `json:"records"`
}

func (a *Adapter) GetAlarmsSince(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, since time.Time) ([]v1.NormalizedAlarm, error) {
	list := &alarmList{}
	body := map[string]interface{}{
		"stationId":      ref.VendorPlantID,
		"alarmBeginTime": since.UnixMilli(),
		"alarmEndTime":   time.Now().UnixMilli(),
	}
	if err := a.post(ctx, creds, "/v1/api/alarmList", body, list); err != nil {
		return nil, err
	}
	alarms := make([]v1.NormalizedAlarm, 0, len(list.Records))
	for _, r := range list.Records {
		occurredAt, err := parseMillis(r.AlarmBeginTime)
		if err != nil {
			return nil, errors.InvalidDataf("SOLIS alarmBeginTime %q, %s", r.AlarmBeginTime, err)
		}
		alarm := v1.NormalizedAlarm{
			VendorAlarmCode: r.AlarmCode,
			DeviceSN:        r.DeviceSn,
			Message:         r.AlarmMsg,
			OccurredAt:      occurredAt,
			IsActive:        r.State == "0",
			Severity:        severityForLevel(r.AlarmLevel),
		}
		if err := adapters.ValidateAlarm(alarm); err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}
	return alarms, nil
}

type inverterRecord struct {
	Sn    string `json:"sn"`
	Model string `json:"model"`
	State int    `json:"state"` // 1 online
}

type inverterList struct {
	Records []inverterRecord `json:"records"`
}

func (a *Adapter) GetDeviceList(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) ([]v1.Device, error) {
	list := &inverterList{}
	if err := a.post(ctx, creds, "/v1/api/inverterList", map[string]interface{}{"stationId": ref.VendorPlantID}, list); err != nil {
		return nil, err
	}
	return lo.Map(list.Records, func(r inverterRecord, _ int) v1.Device {
		return v1.Device{SN: r.Sn, Kind: "inverter", Model: r.Model, Online: r.State == 1}
	}), nil
}

func severityForLevel(level int) v1.AlertSeverity {
	switch level {
	case 1:
		return v1.SeverityLow
	case 2:
		return v1.SeverityMedium
	case 3:
		return v1.SeverityHigh
	}
	return v1.SeverityCritical
}

func kilowattsToWatts(kw *float64) *float64 {
	if kw == nil {
		return nil
	}
	w := *kw * 1000
	return &w
}

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	var millis int64
	if _, err := fmt.Sscanf(s, "%d", &millis); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis).UTC(), nil
}
