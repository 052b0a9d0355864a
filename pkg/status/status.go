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

// Package status computes a plant's health color from its freshest inputs.
// Evaluation is a pure function so that every caller, the poll pipeline today
// and an API layer tomorrow, derives the same color from the same facts.
package status

import (
	"time"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

// LowGenLevel grades today's generation against the plant's own recent history.
type LowGenLevel string

const (
	LowGenNone   LowGenLevel = "NONE"
	LowGenYellow LowGenLevel = "YELLOW"
	LowGenRed    LowGenLevel = "RED"
)

const (
	// staleAfter is the silence beyond which a plant is considered gone dark.
	staleAfter = 24 * time.Hour
	// lagAfter is the silence beyond which a plant is merely lagging.
	lagAfter = 2 * time.Hour
)

// Inputs are the facts a status decision is made from.
type Inputs struct {
	IntegrationStatus v1.IntegrationStatus
	Now               time.Time
	// LastSeenAt is the most recent instant the vendor reported data for the
	// plant. The zero value means it never has, which grades as stale.
	LastSeenAt     time.Time
	ActiveCritical int
	LowGen         LowGenLevel
}

// Evaluate returns exactly one status; the first matching rule wins. The 2h
// and 24h boundaries are inclusive on the higher side, so a plant silent for
// exactly 24h is RED and one silent for exactly 2h is YELLOW.
func Evaluate(in Inputs) v1.PlantStatus {
	if in.IntegrationStatus != v1.IntegrationActive {
		return v1.StatusGrey
	}
	silence := silenceOf(in)
	if in.ActiveCritical > 0 || silence >= staleAfter || in.LowGen == LowGenRed {
		return v1.StatusRed
	}
	if silence >= lagAfter || in.LowGen == LowGenYellow {
		return v1.StatusYellow
	}
	return v1.StatusGreen
}

func silenceOf(in Inputs) time.Duration {
	if in.LastSeenAt.IsZero() {
		return staleAfter
	}
	return in.Now.Sub(in.LastSeenAt)
}
