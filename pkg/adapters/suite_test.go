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

package adapters_test

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	"github.com/heliofleet/heliofleet/pkg/adapters/mock"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/test"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

var ctx = context.Background()

func TestAdapters(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Adapters")
}

var _ = Describe("Client", func() {
	var hits atomic.Int32
	var status atomic.Int32
	var server *httptest.Server
	var client *adapters.Client

	BeforeEach(func() {
		hits.Store(0)
		status.Store(http.StatusOK)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Header().Set("X-Session", "tok-1")
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte(`{"greeting":"hi"}`))
		}))
		DeferCleanup(server.Close)
		client = adapters.NewClient(v1.BrandSolis, server.URL, server.Client())
	})

	It("should decode a JSON response", func() {
		out := struct {
			Greeting string `json:"greeting"`
		}{}
		Expect(client.DoJSON(ctx, http.MethodPost, "/v1/test", nil, map[string]string{"name": "x"}, &out)).To(Succeed())
		Expect(out.Greeting).To(Equal("hi"))
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("should hand response headers back to session-based vendors", func() {
		header, err := client.DoJSONHeaders(ctx, http.MethodGet, "/v1/login", nil, nil, nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(header.Get("X-Session")).To(Equal("tok-1"))
	})

	It("should classify a garbled body as invalid data", func() {
		garbled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{nope`))
		}))
		DeferCleanup(garbled.Close)
		c := adapters.NewClient(v1.BrandSolis, garbled.URL, garbled.Client())
		out := map[string]string{}
		err := c.DoJSON(ctx, http.MethodGet, "/", nil, nil, &out)
		Expect(errors.Kind(err)).To(Equal(v1.ErrorKindInvalidData))
	})

	It("should classify an unreachable vendor as a network timeout", func() {
		server.Close()
		err := client.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
		Expect(errors.Kind(err)).To(Equal(v1.ErrorKindNetworkTimeout))
	})

	It("should retry a transient fault once more", func() {
		server.Close()
		flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{}`))
		}))
		DeferCleanup(flaky.Close)
		hits.Store(0)
		c := adapters.NewClient(v1.BrandSolis, flaky.URL, flaky.Client())
		Expect(c.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)).To(Succeed())
		Expect(hits.Load()).To(Equal(int32(2)))
	})

	It("should not retry an auth rejection", func() {
		status.Store(http.StatusUnauthorized)
		err := client.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
		Expect(errors.Kind(err)).To(Equal(v1.ErrorKindAuthFailed))
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	DescribeTable("status classification",
		func(code int, kind v1.ErrorKind, retryable bool) {
			status.Store(int32(code))
			err := client.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
			Expect(errors.Kind(err)).To(Equal(kind))
			Expect(errors.IsRetryable(err)).To(Equal(retryable))
			got, ok := errors.HTTPStatus(err)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(code))
		},
		Entry("401 is terminal auth failure", http.StatusUnauthorized, v1.ErrorKindAuthFailed, false),
		Entry("403 is terminal auth failure", http.StatusForbidden, v1.ErrorKindAuthFailed, false),
		Entry("404 is terminal plant not found", http.StatusNotFound, v1.ErrorKindPlantNotFound, false),
		Entry("429 is retryable rate limiting", http.StatusTooManyRequests, v1.ErrorKindRateLimited, true),
		Entry("500 is retryable transport trouble", http.StatusInternalServerError, v1.ErrorKindNetworkTimeout, true),
		Entry("503 is retryable transport trouble", http.StatusServiceUnavailable, v1.ErrorKindNetworkTimeout, true),
		Entry("418 is unknown", http.StatusTeapot, v1.ErrorKindUnknown, true),
	)

	Context("Retry-After", func() {
		It("should carry a seconds value through", func() {
			limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "30")
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			DeferCleanup(limited.Close)
			c := adapters.NewClient(v1.BrandSolis, limited.URL, limited.Client())
			err := c.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
			after, ok := errors.RetryAfter(err)
			Expect(ok).To(BeTrue())
			Expect(after).To(Equal(30 * time.Second))
		})

		It("should convert an HTTP date into a delay", func() {
			limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", time.Now().Add(90*time.Second).UTC().Format(http.TimeFormat))
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			DeferCleanup(limited.Close)
			c := adapters.NewClient(v1.BrandSolis, limited.URL, limited.Client())
			err := c.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
			after, ok := errors.RetryAfter(err)
			Expect(ok).To(BeTrue())
			Expect(after).To(BeNumerically(">", time.Minute))
		})

		It("should report no delay when the vendor sends none", func() {
			status.Store(http.StatusTooManyRequests)
			err := client.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
			_, ok := errors.RetryAfter(err)
			Expect(ok).To(BeFalse())
		})
	})

	It("should open the circuit after consecutive transport faults", func() {
		status.Store(http.StatusInternalServerError)
		for i := 0; i < 3; i++ {
			_ = client.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
		}
		Expect(hits.Load()).To(Equal(int32(5)))

		err := client.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
		Expect(err).To(MatchError(ContainSubstring("circuit open")))
		Expect(errors.Kind(err)).To(Equal(v1.ErrorKindNetworkTimeout))
		Expect(hits.Load()).To(Equal(int32(5)))
	})

	It("should not let auth failures trip the circuit", func() {
		status.Store(http.StatusUnauthorized)
		for i := 0; i < 8; i++ {
			_ = client.DoJSON(ctx, http.MethodGet, "/", nil, nil, nil)
		}
		Expect(hits.Load()).To(Equal(int32(8)))
	})

	Context("Sessions", func() {
		It("should cache tokens per credential fingerprint", func() {
			creds := vault.NewCredentials([]byte(`{"apiKey":"k-1"}`))
			other := vault.NewCredentials([]byte(`{"apiKey":"k-2"}`))

			_, found := client.Session(creds)
			Expect(found).To(BeFalse())

			client.StoreSession(creds, "tok-1")
			token, found := client.Session(creds)
			Expect(found).To(BeTrue())
			Expect(token).To(Equal("tok-1"))

			_, found = client.Session(other)
			Expect(found).To(BeFalse())

			client.DropSession(creds)
			_, found = client.Session(creds)
			Expect(found).To(BeFalse())
		})
	})
})

var _ = Describe("Registry", func() {
	var registry *adapters.Registry

	BeforeEach(func() {
		registry = adapters.NewRegistry(
			mock.NewFromFixture(v1.BrandGoodwe, minimalFixture()),
			mock.NewFromFixture(v1.BrandSolis, minimalFixture()),
		)
	})

	It("should resolve adapters by brand", func() {
		adapter, ok := registry.ForBrand(v1.BrandSolis)
		Expect(ok).To(BeTrue())
		Expect(adapter.Capabilities().Brand).To(Equal(v1.BrandSolis))

		_, ok = registry.ForBrand(v1.BrandHuawei)
		Expect(ok).To(BeFalse())
	})

	It("should list brands in the stable order regardless of construction order", func() {
		Expect(registry.Brands()).To(Equal([]v1.Brand{v1.BrandSolis, v1.BrandGoodwe}))
	})

	It("should list capabilities in the same order as brands", func() {
		capabilities := registry.Capabilities()
		Expect(capabilities).To(HaveLen(2))
		Expect(capabilities[0].Brand).To(Equal(v1.BrandSolis))
		Expect(capabilities[1].Brand).To(Equal(v1.BrandGoodwe))
	})
})

var _ = DescribeTable("CapabilitiesFor",
	func(brand v1.Brand, maxConcurrent, maxPerMinute int, series, alarms, devices bool) {
		capabilities := adapters.CapabilitiesFor(brand)
		Expect(capabilities.Brand).To(Equal(brand))
		Expect(capabilities.MaxConcurrent).To(Equal(maxConcurrent))
		Expect(capabilities.MaxPerMinute).To(Equal(maxPerMinute))
		Expect(capabilities.SupportsDailySeries).To(Equal(series))
		Expect(capabilities.SupportsAlarms).To(Equal(alarms))
		Expect(capabilities.SupportsDeviceList).To(Equal(devices))
	},
	Entry("solis", v1.BrandSolis, 3, 30, true, true, true),
	Entry("huawei", v1.BrandHuawei, 2, 20, true, true, true),
	Entry("goodwe has no device list", v1.BrandGoodwe, 2, 20, true, true, false),
	Entry("dele is summary only", v1.BrandDele, 1, 10, false, false, false),
	Entry("unknown brands get the conservative floor", v1.Brand("ACME"), 1, 10, false, false, false),
)

var _ = Describe("Validation", func() {
	It("should accept a well-formed summary", func() {
		Expect(adapters.ValidateSummary(test.Summary())).To(Succeed())
	})

	It("should accept negative grid injection", func() {
		summary := test.Summary()
		summary.GridInjectionPowerW = lo.ToPtr(-1200.0)
		Expect(adapters.ValidateSummary(summary)).To(Succeed())
	})

	DescribeTable("summary violations",
		func(mutate func(*v1.NormalizedSummary)) {
			summary := test.Summary()
			mutate(summary)
			err := adapters.ValidateSummary(summary)
			Expect(errors.Kind(err)).To(Equal(v1.ErrorKindInvalidData))
		},
		Entry("negative today energy", func(s *v1.NormalizedSummary) { s.TodayEnergyKWh = -1 }),
		Entry("NaN today energy", func(s *v1.NormalizedSummary) { s.TodayEnergyKWh = math.NaN() }),
		Entry("negative current power", func(s *v1.NormalizedSummary) { s.CurrentPowerW = lo.ToPtr(-5.0) }),
		Entry("infinite grid injection", func(s *v1.NormalizedSummary) { s.GridInjectionPowerW = lo.ToPtr(math.Inf(1)) }),
		Entry("negative total energy", func(s *v1.NormalizedSummary) { s.TotalEnergyKWh = lo.ToPtr(-0.1) }),
		Entry("zero last seen", func(s *v1.NormalizedSummary) { s.LastSeenAt = time.Time{} }),
		Entry("zero sample instant", func(s *v1.NormalizedSummary) { s.SourceSampledAt = time.Time{} }),
		Entry("unknown timezone", func(s *v1.NormalizedSummary) { s.Timezone = "Mars/Olympus" }),
		Entry("fixed-offset timezone", func(s *v1.NormalizedSummary) { s.Timezone = "UTC+2" }),
	)

	It("should reject a missing summary", func() {
		Expect(errors.Kind(adapters.ValidateSummary(nil))).To(Equal(v1.ErrorKindInvalidData))
	})

	It("should accept a well-formed alarm", func() {
		Expect(adapters.ValidateAlarm(test.Alarm())).To(Succeed())
	})

	DescribeTable("alarm violations",
		func(mutate func(*v1.NormalizedAlarm)) {
			alarm := test.Alarm()
			mutate(&alarm)
			Expect(errors.Kind(adapters.ValidateAlarm(alarm))).To(Equal(v1.ErrorKindInvalidData))
		},
		Entry("missing vendor code", func(a *v1.NormalizedAlarm) { a.VendorAlarmCode = "" }),
		Entry("unknown severity", func(a *v1.NormalizedAlarm) { a.Severity = "SEVERE" }),
		Entry("missing occurrence instant", func(a *v1.NormalizedAlarm) { a.OccurredAt = time.Time{} }),
	)

	It("should accept a series with zero-production days", func() {
		Expect(adapters.ValidateSeries([]v1.DailyEnergyPoint{
			{Date: "2024-06-14", EnergyKWh: 0},
			{Date: "2024-06-15", EnergyKWh: 21.4},
		})).To(Succeed())
	})

	DescribeTable("series violations",
		func(points []v1.DailyEnergyPoint) {
			Expect(errors.Kind(adapters.ValidateSeries(points))).To(Equal(v1.ErrorKindInvalidData))
		},
		Entry("missing date", []v1.DailyEnergyPoint{{EnergyKWh: 1}}),
		Entry("negative energy", []v1.DailyEnergyPoint{{Date: "2024-06-15", EnergyKWh: -1}}),
		Entry("NaN energy", []v1.DailyEnergyPoint{{Date: "2024-06-15", EnergyKWh: math.NaN()}}),
	)
})

var _ = Describe("NetworkGuard", func() {
	It("should refuse live traffic once mock mode is locked in", func() {
		adapters.ForbidNetwork()

		guarded := &http.Client{Transport: adapters.GuardTransport{}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://vendor.invalid/api", nil)
		Expect(err).ToNot(HaveOccurred())
		_, err = guarded.Do(req)
		Expect(err).To(MatchError(ContainSubstring("network I/O is forbidden")))

		Expect(func() { adapters.NewHTTPClient(8 * time.Second) }).To(PanicWith(ContainSubstring("mock mode")))
	})
})

func minimalFixture() *mock.Fixture {
	return &mock.Fixture{
		PlantSummary: mock.FixtureSummary{
			TodayEnergyKWh:  lo.ToPtr(12.5),
			LastSeenAt:      time.Date(2024, 6, 15, 10, 55, 0, 0, time.UTC),
			SourceSampledAt: time.Date(2024, 6, 15, 10, 55, 0, 0, time.UTC),
			Timezone:        "Europe/Madrid",
		},
	}
}
