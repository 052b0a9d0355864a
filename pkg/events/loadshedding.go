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
	"golang.org/x/time/rate"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

func NewLoadSheddingRecorder(r Recorder) Recorder {
	return &loadshedding{
		rec:          r,
		statusBucket: rate.NewLimiter(5, 10),
	}
}

type loadshedding struct {
	rec          Recorder
	statusBucket *rate.Limiter
}

func (l *loadshedding) PlantStatusChanged(plant *v1.Plant, from, to v1.PlantStatus) {
	// A grid outage flips whole regions at once. The transitions are all in
	// the metrics anyway; the event stream only needs enough of them to show
	// what is going on.
	if !l.statusBucket.Allow() {
		return
	}
	l.rec.PlantStatusChanged(plant, from, to)
}

func (l *loadshedding) AlertRaised(alert *v1.Alert) {
	l.rec.AlertRaised(alert)
}

func (l *loadshedding) AlertResolved(alert *v1.Alert) {
	l.rec.AlertResolved(alert)
}

func (l *loadshedding) IntegrationPaused(plant *v1.Plant) {
	l.rec.IntegrationPaused(plant)
}
