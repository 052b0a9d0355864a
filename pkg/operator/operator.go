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

package operator

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	"github.com/heliofleet/heliofleet/pkg/adapters/dele"
	"github.com/heliofleet/heliofleet/pkg/adapters/goodwe"
	"github.com/heliofleet/heliofleet/pkg/adapters/huawei"
	"github.com/heliofleet/heliofleet/pkg/adapters/mock"
	"github.com/heliofleet/heliofleet/pkg/adapters/solis"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/events"
	"github.com/heliofleet/heliofleet/pkg/locks"
	"github.com/heliofleet/heliofleet/pkg/operator/options"
	"github.com/heliofleet/heliofleet/pkg/queue"
	"github.com/heliofleet/heliofleet/pkg/store"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"
	"github.com/heliofleet/heliofleet/pkg/utils/pretty"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

const probeTimeout = 10 * time.Second

// Operator is the engine's assembled dependency set, built once at startup in
// dependency order. Construction fails fast: both stores must answer a probe
// and the vault must pass its self test before any component is handed out.
type Operator struct {
	Options  *options.Options
	Clock    clock.Clock
	Store    *store.Postgres
	Redis    *redis.Client
	Locker   *locks.RedisLocker
	Journal  *queue.Journal
	Vault    vault.Vault
	Registry *adapters.Registry
	Recorder events.Recorder
}

func NewOperator(ctx context.Context, opts *options.Options) (context.Context, *Operator, error) {
	logger := logging.NewLogger(opts.LogLevel)
	ctx = logging.WithLogger(ctx, logger)
	ctx = options.ToContext(ctx, opts)

	clk := clock.RealClock{}

	db, err := store.Open(opts.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening postgres, %w", err)
	}
	st := store.NewPostgres(db, clk)

	redisOpts, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url, %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	locker := locks.NewRedisLocker(redisClient)

	if err := checkConnectivity(ctx, st, locker); err != nil {
		return nil, nil, err
	}

	sealer, err := vault.New(opts.MasterKeyCurrent, opts.MasterKeyPrevious)
	if err != nil {
		return nil, nil, fmt.Errorf("building credential vault, %w", err)
	}

	registry, err := newRegistry(opts)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("registered vendor adapters", "mockMode", opts.MockMode, "capabilities", pretty.Concise(registry.Capabilities()))

	return ctx, &Operator{
		Options:  opts,
		Clock:    clk,
		Store:    st,
		Redis:    redisClient,
		Locker:   locker,
		Journal:  queue.NewJournal(redisClient),
		Vault:    sealer,
		Registry: registry,
		Recorder: events.NewDedupeRecorder(events.NewLoadSheddingRecorder(events.NewRecorder(logger))),
	}, nil
}

// checkConnectivity probes both stores in parallel, riding out a slow
// dependency boot with a few retries. The engine must not come up half
// connected: a reachable Postgres with an unreachable Redis would poll
// without locks.
func checkConnectivity(ctx context.Context, st *store.Postgres, locker *locks.RedisLocker) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for name, probe := range map[string]func(context.Context) error{
		"postgres": st.Probe,
		"redis":    locker.Probe,
	} {
		name, probe := name, probe
		g.Go(func() error {
			if err := retry.Do(func() error { return probe(ctx) },
				retry.Attempts(3),
				retry.Delay(time.Second),
				retry.LastErrorOnly(true),
				retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
			); err != nil {
				return fmt.Errorf("%s connectivity check failed, %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// newRegistry wires one adapter per supported brand. In mock mode every brand
// reads from its fixture file and the process-wide network guard goes up
// first, so no code path can reach a vendor cloud. In live mode the brands
// share one HTTP client bounded by the per-request timeout.
func newRegistry(opts *options.Options) (*adapters.Registry, error) {
	if opts.MockMode {
		adapters.ForbidNetwork()
		fsys := afero.NewOsFs()
		mocks := make([]adapters.Adapter, 0, len(v1.Brands()))
		for _, brand := range v1.Brands() {
			adapter, err := mock.New(brand, fsys, opts.FixturesDir)
			if err != nil {
				return nil, fmt.Errorf("loading %s fixture, %w", brand, err)
			}
			mocks = append(mocks, adapter)
		}
		return adapters.NewRegistry(mocks...), nil
	}
	httpClient := adapters.NewHTTPClient(opts.AdapterTimeout)
	return adapters.NewRegistry(
		solis.New(httpClient),
		huawei.New(httpClient),
		goodwe.New(httpClient),
		dele.New(httpClient),
	), nil
}

// Close releases the operator's connections. Safe to call once the engine has
// drained.
func (o *Operator) Close() error {
	return multierr.Combine(o.Redis.Close(), o.Store.Close())
}
