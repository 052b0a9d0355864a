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

package options

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/heliofleet/heliofleet/pkg/utils/env"
)

type optionsKey struct{}

// Options for running this binary. Every field can be set by flag or by its
// environment variable; flags win. Durations are expressed in whole seconds
// in the environment.
type Options struct {
	*flag.FlagSet

	// Endpoints
	DatabaseURL string
	RedisURL    string

	// Vendor access
	MockMode    bool
	FixturesDir string

	// Credential encryption
	MasterKeyCurrent  string
	MasterKeyPrevious string

	// Timings
	PollInterval   time.Duration
	JobTimeout     time.Duration
	AdapterTimeout time.Duration
	ShutdownGrace  time.Duration

	DailyVerifySchedule string

	// Serving
	MetricsPort     int
	HealthProbePort int
	LogLevel        string
}

// New creates an Options struct and registers CLI flags and environment variables to fill-in the Options struct fields
func New() *Options {
	opts := &Options{}
	f := flag.NewFlagSet("heliofleet", flag.ContinueOnError)
	opts.FlagSet = f

	f.StringVar(&opts.DatabaseURL, "database-url", env.WithDefaultString("DATABASE_URL", ""), "PostgreSQL connection string for plants, snapshots, alerts, and poll logs")
	f.StringVar(&opts.RedisURL, "redis-url", env.WithDefaultString("REDIS_URL", ""), "Redis URL for plant locks and ticket claims")
	f.BoolVar(&opts.MockMode, "integration-mock-mode", env.WithDefaultBool("INTEGRATION_MOCK_MODE", true), "Serve vendor data from local fixtures and forbid all vendor network I/O. Must be true in this phase")
	f.StringVar(&opts.FixturesDir, "fixtures-dir", env.WithDefaultString("FIXTURES_DIR", "fixtures"), "Directory holding the per-brand fixture files used in mock mode")
	f.StringVar(&opts.MasterKeyCurrent, "master-key-current", env.WithDefaultString("MASTER_KEY_CURRENT", ""), "Hex-encoded 32-byte AES key that seals vendor credentials")
	f.StringVar(&opts.MasterKeyPrevious, "master-key-previous", env.WithDefaultString("MASTER_KEY_PREVIOUS", ""), "Hex-encoded previous AES key, set only while a key rotation is in flight")
	f.DurationVar(&opts.PollInterval, "poll-interval", env.WithDefaultDuration("POLL_INTERVAL_SECONDS", 600*time.Second), "Interval between poll rounds across the fleet")
	f.DurationVar(&opts.JobTimeout, "job-timeout", env.WithDefaultDuration("JOB_TIMEOUT_SECONDS", 60*time.Second), "Wall-clock budget for one job end to end")
	f.DurationVar(&opts.AdapterTimeout, "adapter-request-timeout", env.WithDefaultDuration("ADAPTER_REQUEST_TIMEOUT_SECONDS", 8*time.Second), "Budget for a single vendor API call within a job")
	f.DurationVar(&opts.ShutdownGrace, "shutdown-grace", env.WithDefaultDuration("SHUTDOWN_GRACE_SECONDS", 30*time.Second), "How long in-flight jobs may keep running after shutdown begins")
	f.StringVar(&opts.DailyVerifySchedule, "daily-verify-schedule", env.WithDefaultString("DAILY_VERIFY_SCHEDULE", "30 0 * * *"), "Cron schedule of the daily verification sweep, evaluated in UTC")
	f.IntVar(&opts.MetricsPort, "metrics-port", env.WithDefaultInt("METRICS_PORT", 8080), "The port the metrics endpoint binds to")
	f.IntVar(&opts.HealthProbePort, "health-probe-port", env.WithDefaultInt("HEALTH_PROBE_PORT", 8081), "The port the health probe endpoints bind to")
	f.StringVar(&opts.LogLevel, "log-level", env.WithDefaultString("LOG_LEVEL", "info"), "Log verbosity, debug or info")
	return opts
}

// MustParse reads the user passed flags, environment variables, and default values.
// Options are validated and panics if an error is returned
func (o *Options) MustParse() *Options {
	err := o.Parse(os.Args[1:])

	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		panic(err)
	}
	if err := o.Validate(); err != nil {
		panic(err)
	}
	return o
}

func ToContext(ctx context.Context, opts *Options) context.Context {
	return context.WithValue(ctx, optionsKey{}, opts)
}

func FromContext(ctx context.Context) *Options {
	retval := ctx.Value(optionsKey{})
	if retval == nil {
		panic("options doesn't exist in context")
	}
	return retval.(*Options)
}
