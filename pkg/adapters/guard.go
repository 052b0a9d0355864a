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

package adapters

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// networkForbidden is set once at startup in mock mode and never cleared for
// the lifetime of the process.
var networkForbidden atomic.Bool

// ForbidNetwork places the process in mock mode. Constructing a live vendor
// HTTP client afterwards panics, and any client built before the guard was
// raised refuses requests through its transport.
func ForbidNetwork() {
	networkForbidden.Store(true)
}

// GuardTransport fails every request before any connection is dialed.
type GuardTransport struct {
	Next http.RoundTripper
}

func (t GuardTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if networkForbidden.Load() {
		return nil, fmt.Errorf("network I/O is forbidden in mock mode: %s %s", req.Method, req.URL.Redacted())
	}
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}

// NewHTTPClient builds the HTTP client handed to every live vendor adapter.
// Constructing one in mock mode is a wiring bug that must stop the process
// before the first request can leave it.
func NewHTTPClient(requestTimeout time.Duration) *http.Client {
	if networkForbidden.Load() {
		panic("live vendor adapter constructed in mock mode")
	}
	return &http.Client{Transport: GuardTransport{}, Timeout: requestTimeout}
}
