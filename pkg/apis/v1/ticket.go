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

package v1

import (
	"fmt"
	"time"

	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
)

// TicketState tracks a ticket through its queue lifetime.
type TicketState string

const (
	TicketPending   TicketState = "PENDING"
	TicketRunning   TicketState = "RUNNING"
	TicketSucceeded TicketState = "SUCCEEDED"
	TicketFailed    TicketState = "FAILED"
)

// JobTicket is one unit of queued work. Its ID is deterministic so that
// resubmitting the same logical job collapses into the ticket already queued
// or running.
type JobTicket struct {
	ID      string
	JobType JobType
	PlantID string
	Brand   Brand
	// Date is the local plant date a daily verification job covers. Zero for
	// latest-values polls.
	Date       localtime.Date
	Attempt    int
	EnqueuedAt time.Time
	State      TicketState
	LastError  ErrorKind
}

// PollTicketID is the deterministic id of the recurring latest-values poll for
// a plant. There is never more than one such ticket per plant in flight.
func PollTicketID(plantID string) string {
	return fmt.Sprintf("poll:plant:%s:latest", plantID)
}

// DailyTicketID is the deterministic id of the daily verification job for a
// plant and local date.
func DailyTicketID(plantID string, date localtime.Date) string {
	return fmt.Sprintf("daily:plant:%s:%s", plantID, date)
}

func NewPollTicket(plant *Plant, now time.Time) *JobTicket {
	return &JobTicket{
		ID:         PollTicketID(plant.ID),
		JobType:    JobTypePoll,
		PlantID:    plant.ID,
		Brand:      plant.Brand,
		Attempt:    1,
		EnqueuedAt: now,
		State:      TicketPending,
	}
}

func NewDailyTicket(plant *Plant, date localtime.Date, now time.Time) *JobTicket {
	return &JobTicket{
		ID:         DailyTicketID(plant.ID, date),
		JobType:    JobTypeDaily,
		PlantID:    plant.ID,
		Brand:      plant.Brand,
		Date:       date,
		Attempt:    1,
		EnqueuedAt: now,
		State:      TicketPending,
	}
}
