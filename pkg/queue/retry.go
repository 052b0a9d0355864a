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

package queue

import (
	"time"

	"github.com/heliofleet/heliofleet/pkg/errors"
)

// MaxAttempts bounds executions per ticket: the initial run plus two retries.
const MaxAttempts = 3

var backoffs = []time.Duration{5 * time.Second, 10 * time.Second}

// nextDelay returns the backoff before re-running a ticket whose attempt-th
// execution failed with err, and whether another attempt is allowed at all.
// A rate-limited vendor may push the delay out beyond the default, never pull
// it in. Jitter of up to 20% keeps a brand's retries from marching in step.
func nextDelay(attempt int, err error, jitter func() float64) (time.Duration, bool) {
	if attempt >= MaxAttempts || !errors.IsRetryable(err) {
		return 0, false
	}
	base := backoffs[min(attempt, len(backoffs))-1]
	if after, ok := errors.RetryAfter(err); ok && after > base {
		base = after
	}
	return base + time.Duration(jitter()*0.2*float64(base)), true
}
