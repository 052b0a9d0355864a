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
	"encoding/hex"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/multierr"
)

func (o *Options) Validate() error {
	return multierr.Combine(
		o.validateMockMode(),
		o.validateEndpoints(),
		o.validateMasterKeys(),
		o.validateTimings(),
		o.validateSchedule(),
		o.validatePorts(),
		o.validateLogLevel(),
	)
}

func (o *Options) validateMockMode() error {
	if !o.MockMode {
		return fmt.Errorf("integration-mock-mode must be true, live vendor access is not enabled in this phase")
	}
	return nil
}

func (o *Options) validateEndpoints() error {
	var err error
	if o.DatabaseURL == "" {
		err = multierr.Append(err, fmt.Errorf("missing field, database-url"))
	}
	if o.RedisURL == "" {
		err = multierr.Append(err, fmt.Errorf("missing field, redis-url"))
	}
	return err
}

// validateMasterKeys checks shape only and never echoes key material.
func (o *Options) validateMasterKeys() error {
	var err error
	if keyErr := validateKey(o.MasterKeyCurrent); keyErr != nil {
		err = multierr.Append(err, fmt.Errorf("master-key-current %w", keyErr))
	}
	if o.MasterKeyPrevious != "" {
		if keyErr := validateKey(o.MasterKeyPrevious); keyErr != nil {
			err = multierr.Append(err, fmt.Errorf("master-key-previous %w", keyErr))
		}
	}
	return err
}

func validateKey(keyHex string) error {
	if keyHex == "" {
		return fmt.Errorf("is required")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return fmt.Errorf("is not valid hex")
	}
	if len(key) != 32 {
		return fmt.Errorf("is %d bytes, expected 32", len(key))
	}
	return nil
}

func (o *Options) validateTimings() error {
	var err error
	if o.PollInterval < time.Minute {
		err = multierr.Append(err, fmt.Errorf("poll-interval %s is below the 1m floor", o.PollInterval))
	}
	if o.JobTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("job-timeout must be positive"))
	}
	if o.AdapterTimeout <= 0 || o.AdapterTimeout >= o.JobTimeout {
		err = multierr.Append(err, fmt.Errorf("adapter-request-timeout must be positive and below job-timeout"))
	}
	if o.ShutdownGrace < 0 {
		err = multierr.Append(err, fmt.Errorf("shutdown-grace cannot be negative"))
	}
	return err
}

func (o *Options) validateSchedule() error {
	if _, err := cron.ParseStandard(o.DailyVerifySchedule); err != nil {
		return fmt.Errorf("daily-verify-schedule %q is not a valid cron expression", o.DailyVerifySchedule)
	}
	return nil
}

func (o *Options) validatePorts() error {
	var err error
	for flag, port := range map[string]int{"metrics-port": o.MetricsPort, "health-probe-port": o.HealthProbePort} {
		if port < 1 || port > 65535 {
			err = multierr.Append(err, fmt.Errorf("%s %d is out of range", flag, port))
		}
	}
	if o.MetricsPort == o.HealthProbePort {
		err = multierr.Append(err, fmt.Errorf("metrics-port and health-probe-port cannot both be %d", o.MetricsPort))
	}
	return err
}

func (o *Options) validateLogLevel() error {
	if o.LogLevel != "debug" && o.LogLevel != "info" {
		return fmt.Errorf("log-level may only be either debug or info")
	}
	return nil
}
