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

package options_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliofleet/heliofleet/pkg/operator/options"
)

func TestOptions(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Options")
}

var _ = Describe("Options", func() {
	var envState map[string]string
	var environmentVariables = []string{
		"DATABASE_URL",
		"REDIS_URL",
		"INTEGRATION_MOCK_MODE",
		"FIXTURES_DIR",
		"MASTER_KEY_CURRENT",
		"MASTER_KEY_PREVIOUS",
		"POLL_INTERVAL_SECONDS",
		"JOB_TIMEOUT_SECONDS",
		"ADAPTER_REQUEST_TIMEOUT_SECONDS",
		"SHUTDOWN_GRACE_SECONDS",
		"DAILY_VERIFY_SCHEDULE",
		"METRICS_PORT",
		"HEALTH_PROBE_PORT",
		"LOG_LEVEL",
	}

	BeforeEach(func() {
		envState = map[string]string{}
		for _, ev := range environmentVariables {
			if val, ok := os.LookupEnv(ev); ok {
				envState[ev] = val
			}
			os.Unsetenv(ev)
		}
	})

	AfterEach(func() {
		for _, ev := range environmentVariables {
			os.Unsetenv(ev)
		}
		for ev, val := range envState {
			os.Setenv(ev, val)
		}
	})

	Context("Parsing", func() {
		It("should apply the documented defaults", func() {
			opts := options.New()
			Expect(opts.Parse(validArgs())).To(Succeed())
			Expect(opts.MockMode).To(BeTrue())
			Expect(opts.FixturesDir).To(Equal("fixtures"))
			Expect(opts.PollInterval).To(Equal(10 * time.Minute))
			Expect(opts.JobTimeout).To(Equal(time.Minute))
			Expect(opts.AdapterTimeout).To(Equal(8 * time.Second))
			Expect(opts.ShutdownGrace).To(Equal(30 * time.Second))
			Expect(opts.DailyVerifySchedule).To(Equal("30 0 * * *"))
			Expect(opts.MetricsPort).To(Equal(8080))
			Expect(opts.HealthProbePort).To(Equal(8081))
			Expect(opts.LogLevel).To(Equal("info"))
			Expect(opts.Validate()).To(Succeed())
		})
		It("should fall back to environment variables when flags are not set", func() {
			os.Setenv("DATABASE_URL", "postgres://localhost:5432/fleet")
			os.Setenv("REDIS_URL", "redis://localhost:6379/1")
			os.Setenv("MASTER_KEY_CURRENT", strings.Repeat("cd", 32))
			os.Setenv("POLL_INTERVAL_SECONDS", "300")
			os.Setenv("METRICS_PORT", "9090")
			os.Setenv("LOG_LEVEL", "debug")
			opts := options.New()
			Expect(opts.Parse(nil)).To(Succeed())
			Expect(opts.DatabaseURL).To(Equal("postgres://localhost:5432/fleet"))
			Expect(opts.RedisURL).To(Equal("redis://localhost:6379/1"))
			Expect(opts.MasterKeyCurrent).To(Equal(strings.Repeat("cd", 32)))
			Expect(opts.PollInterval).To(Equal(5 * time.Minute))
			Expect(opts.MetricsPort).To(Equal(9090))
			Expect(opts.LogLevel).To(Equal("debug"))
			Expect(opts.Validate()).To(Succeed())
		})
		It("should prefer flags over environment variables", func() {
			os.Setenv("POLL_INTERVAL_SECONDS", "300")
			opts := options.New()
			Expect(opts.Parse(append(validArgs(), "--poll-interval", "15m"))).To(Succeed())
			Expect(opts.PollInterval).To(Equal(15 * time.Minute))
		})
	})

	Context("Validation", func() {
		It("should fail when mock mode is disabled", func() {
			opts := parse("--integration-mock-mode=false")
			Expect(opts.Validate()).To(MatchError(ContainSubstring("integration-mock-mode")))
		})
		It("should fail when the store endpoints are missing", func() {
			opts := options.New()
			Expect(opts.Parse([]string{"--master-key-current", strings.Repeat("ab", 32)})).To(Succeed())
			err := opts.Validate()
			Expect(err).To(MatchError(ContainSubstring("database-url")))
			Expect(err).To(MatchError(ContainSubstring("redis-url")))
		})
		It("should fail when the master key is missing", func() {
			opts := options.New()
			Expect(opts.Parse([]string{"--database-url", "postgres://localhost/fleet", "--redis-url", "redis://localhost:6379"})).To(Succeed())
			Expect(opts.Validate()).To(MatchError(ContainSubstring("master-key-current is required")))
		})
		It("should fail when the master key is not hex", func() {
			opts := parse("--master-key-current", strings.Repeat("zz", 32))
			Expect(opts.Validate()).To(MatchError(ContainSubstring("not valid hex")))
		})
		It("should fail when the master key has the wrong length", func() {
			opts := parse("--master-key-current", strings.Repeat("ab", 16))
			Expect(opts.Validate()).To(MatchError(ContainSubstring("expected 32")))
		})
		It("should validate the previous master key only when set", func() {
			Expect(parse().Validate()).To(Succeed())
			opts := parse("--master-key-previous", "abcd")
			Expect(opts.Validate()).To(MatchError(ContainSubstring("master-key-previous")))
		})
		It("should fail when the poll interval is below one minute", func() {
			opts := parse("--poll-interval", "30s")
			Expect(opts.Validate()).To(MatchError(ContainSubstring("poll-interval")))
		})
		It("should fail when the adapter timeout does not fit inside the job budget", func() {
			opts := parse("--adapter-request-timeout", "2m")
			Expect(opts.Validate()).To(MatchError(ContainSubstring("adapter-request-timeout")))
		})
		It("should fail when the daily verify schedule is not a cron expression", func() {
			opts := parse("--daily-verify-schedule", "whenever")
			Expect(opts.Validate()).To(MatchError(ContainSubstring("daily-verify-schedule")))
		})
		It("should fail when the serving ports collide", func() {
			opts := parse("--health-probe-port", "8080")
			Expect(opts.Validate()).To(MatchError(ContainSubstring("cannot both be 8080")))
		})
		It("should fail on an unknown log level", func() {
			opts := parse("--log-level", "trace")
			Expect(opts.Validate()).To(MatchError(ContainSubstring("log-level")))
		})
	})

	Context("Context", func() {
		It("should round-trip options through a context", func() {
			opts := parse()
			ctx := options.ToContext(context.Background(), opts)
			Expect(options.FromContext(ctx)).To(BeIdenticalTo(opts))
		})
		It("should panic when options were never injected", func() {
			Expect(func() { options.FromContext(context.Background()) }).To(Panic())
		})
	})
})

// validArgs is the minimum configuration that passes validation.
func validArgs() []string {
	return []string{
		"--database-url", "postgres://heliofleet@localhost:5432/heliofleet?sslmode=disable",
		"--redis-url", "redis://localhost:6379/0",
		"--master-key-current", strings.Repeat("ab", 32),
	}
}

func parse(args ...string) *options.Options {
	GinkgoHelper()
	opts := options.New()
	Expect(opts.Parse(append(validArgs(), args...))).To(Succeed())
	return opts
}
