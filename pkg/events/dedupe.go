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

package events

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

// NewDedupeRecorder suppresses repeats of the same event within a short
// window. Retried jobs re-derive the same alerts within seconds; without this
// every retry re-announces them.
func NewDedupeRecorder(r Recorder) Recorder {
	return &dedupe{
		rec:   r,
		cache: cache.New(120*time.Second, 10*time.Second),
	}
}

type dedupe struct {
	rec   Recorder
	cache *cache.Cache
}

func (d *dedupe) AlertRaised(alert *v1.Alert) {
	if !d.shouldCreateEvent(fmt.Sprintf("alert-raised-%s-%s", alert.ID, alert.Severity)) {
		return
	}
	d.rec.AlertRaised(alert)
}

func (d *dedupe) AlertResolved(alert *v1.Alert) {
	if !d.shouldCreateEvent(fmt.Sprintf("alert-resolved-%s", alert.ID)) {
		return
	}
	d.rec.AlertResolved(alert)
}

func (d *dedupe) IntegrationPaused(plant *v1.Plant) {
	if !d.shouldCreateEvent(fmt.Sprintf("integration-paused-%s", plant.ID)) {
		return
	}
	d.rec.IntegrationPaused(plant)
}

func (d *dedupe) PlantStatusChanged(plant *v1.Plant, from, to v1.PlantStatus) {
	if !d.shouldCreateEvent(fmt.Sprintf("status-%s-%s-%s", plant.ID, from, to)) {
		return
	}
	d.rec.PlantStatusChanged(plant, from, to)
}

func (d *dedupe) shouldCreateEvent(key string) bool {
	if _, exists := d.cache.Get(key); exists {
		return false
	}
	d.cache.SetDefault(key, nil)
	return true
}
