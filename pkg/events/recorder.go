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

// Package events surfaces the engine's notable happenings as structured log
// events so operators can follow the fleet without scraping poll logs. The
// notification layer consumes the same stream.
package events

import (
	"github.com/go-logr/logr"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

// Recorder is used to record events about plants and their alerts so that our
// actions are observable without requiring poll log inspection.
type Recorder interface {
	// AlertRaised is called when an alert is created or re-flagged for
	// notification.
	AlertRaised(alert *v1.Alert)
	// AlertResolved is called when an alert clears.
	AlertResolved(alert *v1.Alert)
	// IntegrationPaused is called when an auth failure pauses a plant's
	// vendor integration.
	IntegrationPaused(plant *v1.Plant)
	// PlantStatusChanged is called on every traffic-light transition.
	PlantStatusChanged(plant *v1.Plant, from, to v1.PlantStatus)
}

type recorder struct {
	log logr.Logger
}

func NewRecorder(log logr.Logger) Recorder {
	return &recorder{log: log.WithName("events")}
}

func (r recorder) AlertRaised(alert *v1.Alert) {
	r.log.Info("alert raised", "plant", alert.PlantID, "type", alert.Type, "code", alert.VendorAlarmCode, "device", alert.DeviceSN, "severity", alert.Severity)
}

func (r recorder) AlertResolved(alert *v1.Alert) {
	r.log.Info("alert resolved", "plant", alert.PlantID, "type", alert.Type, "code", alert.VendorAlarmCode, "device", alert.DeviceSN)
}

func (r recorder) IntegrationPaused(plant *v1.Plant) {
	r.log.Info("integration paused", "plant", plant.ID, "brand", plant.Brand)
}

func (r recorder) PlantStatusChanged(plant *v1.Plant, from, to v1.PlantStatus) {
	r.log.Info("plant status changed", "plant", plant.ID, "from", from, "to", to)
}
