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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/cache"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

const maxResponseBytes = 4 << 20

// Client is the shared HTTP base of the live vendor adapters. It maps vendor
// transport failures onto the error taxonomy, trips a per-brand circuit
// breaker on consecutive transport faults, retries short transient blips, and
// caches vendor session tokens keyed by credential fingerprint.
type Client struct {
	brand      v1.Brand
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	sessions   *cache.Sessions
}

func NewClient(brand v1.Brand, baseURL string, httpClient *http.Client) *Client {
	return &Client{
		brand:      brand,
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(brand),
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Only transport-level faults trip the breaker. Auth and payload
			// problems say nothing about vendor availability.
			IsSuccessful: func(err error) bool {
				if err == nil {
					return true
				}
				return errors.Kind(err) != v1.ErrorKindNetworkTimeout
			},
		}),
		sessions: cache.NewSessions(),
	}
}

func (c *Client) Brand() v1.Brand {
	return c.brand
}

// DoJSON performs one vendor call: marshal body, send, classify the status,
// decode into out. Transient transport faults are retried twice in-place;
// everything else is returned to the caller classified.
func (c *Client) DoJSON(ctx context.Context, method, path string, header http.Header, body, out interface{}) error {
	_, err := c.DoJSONHeaders(ctx, method, path, header, body, out)
	return err
}

// DoJSONHeaders is DoJSON for vendors that return session material in
// response headers.
func (c *Client) DoJSONHeaders(ctx context.Context, method, path string, header http.Header, body, out interface{}) (http.Header, error) {
	var respHeader http.Header
	err := retry.Do(func() error {
		_, err := c.breaker.Execute(func() (interface{}, error) {
			h, err := c.do(ctx, method, path, header, body, out)
			if err == nil {
				respHeader = h
			}
			return nil, err
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return errors.NetworkTimeout(fmt.Errorf("%s circuit open", c.brand))
		}
		return err
	},
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && errors.Kind(err) == v1.ErrorKindNetworkTimeout
		}),
	)
	return respHeader, err
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out interface{}) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Unknown(fmt.Errorf("encoding request, %w", err))
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Unknown(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NetworkTimeout(err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NetworkTimeout(err)
	}
	if err := c.classifyStatus(resp); err != nil {
		return nil, err
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, errors.InvalidDataf("decoding %s response body, %s", c.brand, err)
		}
	}
	return resp.Header, nil
}

func (c *Client) classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return errors.AuthFailed(fmt.Errorf("%s rejected credentials", c.brand)).WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return errors.PlantNotFound(fmt.Errorf("%s has no such plant", c.brand)).WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.RateLimited(parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("%s rate limit", c.brand)).WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode >= 500:
		return errors.NetworkTimeout(fmt.Errorf("%s returned %d", c.brand, resp.StatusCode)).WithHTTPStatus(resp.StatusCode)
	default:
		return errors.Unknown(fmt.Errorf("%s returned %d", c.brand, resp.StatusCode)).WithHTTPStatus(resp.StatusCode)
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// Session returns a cached vendor session token for these credentials.
func (c *Client) Session(creds *vault.Credentials) (string, bool) {
	return c.sessions.Get(creds.Fingerprint())
}

// StoreSession caches a vendor session token until its TTL or until an auth
// failure invalidates it.
func (c *Client) StoreSession(creds *vault.Credentials, token string) {
	c.sessions.Set(creds.Fingerprint(), token)
}

// DropSession forgets the cached token so the next call re-authenticates.
func (c *Client) DropSession(creds *vault.Credentials) {
	c.sessions.Invalidate(creds.Fingerprint())
}
