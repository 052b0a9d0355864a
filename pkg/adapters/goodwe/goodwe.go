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

// Package goodwe talks to the SEMS portal API. SEMS authenticates with a
// base64 token document that must accompany every call; tokens are cached per
// credential fingerprint and rebuilt on expiry.
package goodwe

import (
	"context"
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

const (
	defaultBaseURL = "https://www.semsportal.com"
	tokenHeader    = "Token"

	codeOK           = "0"
	codeTokenExpired = "100001"
	codeAuthFailed   = "100002"
)

type Adapter struct {
	client *adapters.Client
}

func New(httpClient *http.Client) *Adapter {
	return &Adapter{client: adapters.NewClient(v1.BrandGoodwe, defaultBaseURL, httpClient)}
}

func (a *Adapter) Capabilities() adapters.Capabilities {
	return adapters.CapabilitiesFor(v1.BrandGoodwe)
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// anonymousToken is the pre-login token document SEMS expects on the login
// call itself.
func anonymousToken() string {
	doc, _ := json.Marshal(map[string]string{"version": "v2.1.0", "client": "ios", "language": "en"})
	return base64.StdEncoding.EncodeToString(doc)
}

type loginData struct {
	UID       string `json:"uid"`
	Token     string `json:"token"`
	Timestamp int64  `json:"timestamp"`
}

func (a *Adapter) session(ctx context.Context, creds *vault.Credentials) (string, error) {
	if token, ok := a.client.Session(creds); ok {
		return token, nil
	}
	header := http.Header{}
	header.Set(tokenHeader, anonymousToken())
	body := map[string]string{"account": creds.Field("account"), "pwd": creds.Field("pwd")}
	env := &envelope{}
	if err := a.client.DoJSON(ctx, http.MethodPost, "/api/v2/Common/CrossLogin", header, body, env); err != nil {
		return "", err
	}
	if env.Code != codeOK {
		return "", errors.AuthFailed(fmt.Errorf("SEMS login failed, code %s", env.Code))
	}
	login := &loginData{}
	if err := json.Unmarshal(env.Data, login); err != nil {
		return "", errors.InvalidDataf("decoding SEMS login payload, %s", err)
	}
	doc, _ := json.Marshal(map[string]interface{}{
		"uid": login.UID, "token": login.Token, "timestamp": login.Timestamp,
		"version": "v2.1.0", "client": "ios", "language": "en",
	})
	token := base64.StdEncoding.EncodeToString(doc)
	a.client.StoreSession(creds, token)
	return token, nil
}

func (a *Adapter) post(ctx context.Context, creds *vault.Credentials, path string, body, out interface{}) error {
	for attempt := 0; ; attempt++ {
		token, err := a.session(ctx, creds)
		if err != nil {
			return err
		}
		header := http.Header{}
		header.Set(tokenHeader, token)
		env := &envelope{}
		if err := a.client.DoJSON(ctx, http.MethodPost, path, header, body, env); err != nil {
			return err
		}
		switch env.Code {
		case codeOK:
			if out != nil && len(env.Data) > 0 {
				if err := json.Unmarshal(env.Data, out); err != nil {
					return errors.InvalidDataf("decoding SEMS payload, %s", err)
				}
			}
			return nil
		case codeTokenExpired:
			if attempt == 0 {
				a.client.DropSession(creds)
				continue
			}
			return errors.AuthFailed(fmt.Errorf("SEMS session expired twice in a row"))
		case codeAuthFailed:
			return errors.AuthFailed(fmt.Errorf("SEMS rejected credentials"))
		default:
			return errors.Unknown(fmt.Errorf("SEMS call failed, code %s", env.Code))
		}
	}
}

func (a *Adapter) TestConnection(ctx context.Context, creds *vault.Credentials) (v1.TestResult, error) {
	a.client.DropSession(creds)
	if _, err := a.session(ctx, creds); err != nil {
		return v1.TestResult{}, err
	}
	return v1.TestResult{OK: true}, nil
}

type monitorDetail struct {
	Info struct {
		Time string `json:"time"` // "01/02/2006 15:04:05"
	} `json:"info"`
	Kpi struct {
		Pac        *float64 `json:"pac"`         // kW
		Power      *float64 `json:"power"`       // kWh today
		TotalPower *float64 `json:"total_power"` // kWh lifetime
	} `json:"kpi"`
}

func (a *Adapter) GetPlantSummary(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials) (*v1.NormalizedSummary, error) {
	detail := &monitorDetail{}
	if err := a.post(ctx, creds, "/api/v2/PowerStation/GetMonitorDetailByPowerstationId", map[string]string{"powerStationId": ref.VendorPlantID}, detail); err != nil {
		return nil, err
	}
	if detail.Kpi.Power == nil {
		return nil, errors.InvalidDataf("SEMS monitor detail has no today energy")
	}
	loc, err := localtime.LoadZone(ref.Timezone)
	if err != nil {
		return nil, errors.InvalidData(err)
	}
	sampledAt, err := time.ParseInLocation("01/02/2006 15:04:05", detail.Info.Time, loc)
	if err != nil {
		return nil, errors.InvalidDataf("SEMS sample time %q, %s", detail.Info.Time, err)
	}
	summary := &v1.NormalizedSummary{
		TodayEnergyKWh:  *detail.Kpi.Power,
		TotalEnergyKWh:  detail.Kpi.TotalPower,
		CurrentPowerW:   kilowattsToWatts(detail.Kpi.Pac),
		LastSeenAt:      sampledAt.UTC(),
		SourceSampledAt: sampledAt.UTC(),
		Timezone:        ref.Timezone,
	}
	if err := adapters.ValidateSummary(summary); err != nil {
		return nil, err
	}
	return summary, nil
}

type energyRangeRow struct {
	Date       string  `json:"date"`
	Generation float64 `json:"generation"`
}

func (a *Adapter) GetDailyEnergySeries(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, start, end localtime.Date) ([]v1.DailyEnergyPoint, error) {
	var rows []energyRangeRow
	body := map[string]string{"id": ref.VendorPlantID, "start": start.String(), "end": end.String()}
	if err := a.post(ctx, creds, "/api/v2/Statistics/GetStationEnergyByRange", body, &rows); err != nil {
		return nil, err
	}
	points := lo.Map(rows, func(r energyRangeRow, _ int) v1.DailyEnergyPoint {
		return v1.DailyEnergyPoint{Date: localtime.Date(r.Date), EnergyKWh: r.Generation}
	})
	if err := adapters.ValidateSeries(points); err != nil {
		return nil, err
	}
	return points, nil
}

type warningRow struct {
	WarningCode string `json:"warning_code"`
	WarningInfo string `json:"warninginfo"`
	DeviceSN    string `json:"devicesn"`
	HappenTime  string `json:"happentime"` // "2006-01-02 15:04:05"
	Status      int    `json:"status"`     // 0 open, 1 recovered
	ErrorLevel  int    `json:"error_level"`
}

func (a *Adapter) GetAlarmsSince(ctx context.Context, ref v1.PlantRef, creds *vault.Credentials, since time.Time) ([]v1.NormalizedAlarm, error) {
	var rows []warningRow
	if err := a.post(ctx, creds, "/api/v2/Warning/GetWarnings", map[string]string{"id": ref.VendorPlantID}, &rows); err != nil {
		return nil, err
	}
	loc, err := localtime.LoadZone(ref.Timezone)
	if err != nil {
		return nil, errors.InvalidData(err)
	}
	alarms := make([]v1.NormalizedAlarm, 0, len(rows))
	for _, row := range rows {
		occurredAt, err := time.ParseInLocation("2006-01-02 15:04:05", row.HappenTime, loc)
		if err != nil {
			return nil, errors.InvalidDataf("SEMS warning time %q, %s", row.HappenTime, err)
		}
		active := row.Status == 0
		if !active && !occurredAt.After(since) {
			continue
		}
		alarm := v1.NormalizedAlarm{
			VendorAlarmCode: row.WarningCode,
			DeviceSN:        row.DeviceSN,
			Message:         row.WarningInfo,
			OccurredAt:      occurredAt.UTC(),
			IsActive:        active,
			Severity:        severityForLevel(row.ErrorLevel),
		}
		if err := adapters.ValidateAlarm(alarm); err != nil {
			return nil, err
		}
		alarms = append(alarms, alarm)
	}
	return alarms, nil
}

// GetDeviceList is not offered by SEMS at plant granularity.
func (a *Adapter) GetDeviceList(ctx context.Context, _ v1.PlantRef, _ *vault.Credentials) ([]v1.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []v1.Device{}, nil
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
