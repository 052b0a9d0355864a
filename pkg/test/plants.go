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

// Package test provides object builders for specs. Builders take override
// structs and fill anything still zero with a workable default.
package test

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imdario/mergo"
	"github.com/samber/lo"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

func Plant(overrides ...v1.Plant) *v1.Plant {
	options := v1.Plant{}
	for _, override := range overrides {
		if err := mergo.Merge(&options, override, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge settings: %s", err))
		}
	}
	if options.ID == "" {
		options.ID = uuid.NewString()
	}
	if options.Name == "" {
		options.Name = fmt.Sprintf("plant-%s", options.ID[:8])
	}
	if options.Brand == "" {
		options.Brand = v1.BrandSolis
	}
	if options.VendorPlantID == "" {
		options.VendorPlantID = fmt.Sprintf("vendor-%s", options.ID[:8])
	}
	if options.Timezone == "" {
		options.Timezone = "Europe/Madrid"
	}
	if options.IntegrationStatus == "" {
		options.IntegrationStatus = v1.IntegrationActive
	}
	if options.Status == "" {
		options.Status = v1.StatusGreen
	}
	return &options
}

func Summary(overrides ...v1.NormalizedSummary) *v1.NormalizedSummary {
	options := v1.NormalizedSummary{}
	for _, override := range overrides {
		if err := mergo.Merge(&options, override, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge settings: %s", err))
		}
	}
	if options.CurrentPowerW == nil {
		options.CurrentPowerW = lo.ToPtr(3500.0)
	}
	if options.TodayEnergyKWh == 0 {
		options.TodayEnergyKWh = 12.5
	}
	if options.LastSeenAt.IsZero() {
		options.LastSeenAt = time.Now().UTC()
	}
	if options.SourceSampledAt.IsZero() {
		options.SourceSampledAt = options.LastSeenAt
	}
	if options.Timezone == "" {
		options.Timezone = "Europe/Madrid"
	}
	return &options
}

func Alarm(overrides ...v1.NormalizedAlarm) v1.NormalizedAlarm {
	options := v1.NormalizedAlarm{}
	for _, override := range overrides {
		if err := mergo.Merge(&options, override, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge settings: %s", err))
		}
	}
	if options.VendorAlarmCode == "" {
		options.VendorAlarmCode = "F42"
	}
	if options.Severity == "" {
		options.Severity = v1.SeverityHigh
	}
	if options.OccurredAt.IsZero() {
		options.OccurredAt = time.Now().UTC()
	}
	return options
}

func Snapshot(overrides ...v1.MetricSnapshot) *v1.MetricSnapshot {
	options := v1.MetricSnapshot{}
	for _, override := range overrides {
		if err := mergo.Merge(&options, override, mergo.WithOverride); err != nil {
			panic(fmt.Sprintf("Failed to merge settings: %s", err))
		}
	}
	if options.Timezone == "" {
		options.Timezone = "Europe/Madrid"
	}
	if options.LastSeenAt.IsZero() {
		options.LastSeenAt = time.Now().UTC()
	}
	if options.SourceSampledAt.IsZero() {
		options.SourceSampledAt = options.LastSeenAt
	}
	return &options
}
