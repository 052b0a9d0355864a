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

// Package errors carries the closed failure taxonomy for vendor interactions
// and the predicates the executor and queues branch on. Operational failures
// are always one of the taxonomy kinds; anything unclassified maps to UNKNOWN.
package errors

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

// ErrNotFound marks a store lookup that matched no row.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the entity kind and id of the lookup.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s, %w", kind, id, ErrNotFound)
}

// AdapterError is a classified vendor interaction failure. Kind drives retry
// and quarantine decisions; RetryAfter is meaningful only for RATE_LIMITED.
type AdapterError struct {
	Kind       v1.ErrorKind
	RetryAfter time.Duration
	HTTPStatus int
	Err        error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// WithHTTPStatus attaches the vendor HTTP status for audit purposes.
func (e *AdapterError) WithHTTPStatus(status int) *AdapterError {
	e.HTTPStatus = status
	return e
}

func AuthFailed(err error) *AdapterError {
	return &AdapterError{Kind: v1.ErrorKindAuthFailed, Err: err}
}

func RateLimited(retryAfter time.Duration, err error) *AdapterError {
	return &AdapterError{Kind: v1.ErrorKindRateLimited, RetryAfter: retryAfter, Err: err}
}

func NetworkTimeout(err error) *AdapterError {
	return &AdapterError{Kind: v1.ErrorKindNetworkTimeout, Err: err}
}

func InvalidData(err error) *AdapterError {
	return &AdapterError{Kind: v1.ErrorKindInvalidData, Err: err}
}

func InvalidDataf(format string, args ...interface{}) *AdapterError {
	return &AdapterError{Kind: v1.ErrorKindInvalidData, Err: fmt.Errorf(format, args...)}
}

func PlantNotFound(err error) *AdapterError {
	return &AdapterError{Kind: v1.ErrorKindPlantNotFound, Err: err}
}

func Unknown(err error) *AdapterError {
	return &AdapterError{Kind: v1.ErrorKindUnknown, Err: err}
}

// Kind classifies any error into the taxonomy. Context deadline expiry counts
// as NETWORK_TIMEOUT so that a budget overrun and a slow vendor look the same
// to retry policy and audit.
func Kind(err error) v1.ErrorKind {
	if err == nil {
		return ""
	}
	var aerr *AdapterError
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return v1.ErrorKindNetworkTimeout
	}
	return v1.ErrorKindUnknown
}

func IsAuthFailed(err error) bool {
	return Kind(err) == v1.ErrorKindAuthFailed
}

func IsRateLimited(err error) bool {
	return Kind(err) == v1.ErrorKindRateLimited
}

// RetryAfter returns the vendor-requested minimum delay before the next
// attempt, when the error carries one.
func RetryAfter(err error) (time.Duration, bool) {
	var aerr *AdapterError
	if errors.As(err, &aerr) && aerr.Kind == v1.ErrorKindRateLimited && aerr.RetryAfter > 0 {
		return aerr.RetryAfter, true
	}
	return 0, false
}

// HTTPStatus returns the vendor HTTP status attached to the error, if any.
func HTTPStatus(err error) (int, bool) {
	var aerr *AdapterError
	if errors.As(err, &aerr) && aerr.HTTPStatus != 0 {
		return aerr.HTTPStatus, true
	}
	return 0, false
}

// IsRetryable reports whether the queue may re-attempt the job. AUTH_FAILED,
// INVALID_DATA and PLANT_NOT_FOUND are terminal; retrying them cannot change
// the outcome.
func IsRetryable(err error) bool {
	switch Kind(err) {
	case v1.ErrorKindRateLimited, v1.ErrorKindNetworkTimeout, v1.ErrorKindUnknown:
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IgnoreNotFound(err error) error {
	if IsNotFound(err) {
		return nil
	}
	return err
}
