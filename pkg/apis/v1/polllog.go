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

import "time"

// JobType distinguishes the recurring latest-values poll from the daily
// verification job.
type JobType string

const (
	JobTypePoll  JobType = "POLL"
	JobTypeDaily JobType = "DAILY"
)

// PollStatus is the terminal outcome of one executed job.
type PollStatus string

const (
	PollSuccess PollStatus = "SUCCESS"
	PollError   PollStatus = "ERROR"
)

// ErrorKind is the closed taxonomy of poll failures. LOCK_SKIPPED is carried
// here for audit purposes even though the job outcome stays SUCCESS.
type ErrorKind string

const (
	ErrorKindAuthFailed     ErrorKind = "AUTH_FAILED"
	ErrorKindRateLimited    ErrorKind = "RATE_LIMITED"
	ErrorKindNetworkTimeout ErrorKind = "NETWORK_TIMEOUT"
	ErrorKindInvalidData    ErrorKind = "INVALID_DATA"
	ErrorKindPlantNotFound  ErrorKind = "PLANT_NOT_FOUND"
	ErrorKindLockSkipped    ErrorKind = "LOCK_SKIPPED"
	ErrorKindUnknown        ErrorKind = "UNKNOWN"
)

// PollLog is the append-only audit record. Exactly one row exists per started
// job, whether it succeeded, failed or skipped.
type PollLog struct {
	ID               string     `db:"id" json:"id"`
	PlantID          string     `db:"plant_id" json:"plantId"`
	JobType          JobType    `db:"job_type" json:"jobType"`
	Status           PollStatus `db:"status" json:"status"`
	DurationMS       int64      `db:"duration_ms" json:"durationMs"`
	AdapterErrorType ErrorKind  `db:"adapter_error_type" json:"adapterErrorType,omitempty"`
	HTTPStatus       *int       `db:"http_status" json:"httpStatus,omitempty"`
	StartedAt        time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt       time.Time  `db:"finished_at" json:"finishedAt"`
}
