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

// Package queue runs tickets against a vendor within that vendor's published
// limits. Each brand gets its own queue: a bounded worker pool, a per-minute
// token bucket, and dedup by deterministic ticket id, so one misbehaving
// vendor can neither starve the others nor be hammered by its own backlog.
package queue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"
)

const (
	defaultDrainTimeout = 30 * time.Second
	// defaultClaimTTL comfortably covers one poll interval plus the job
	// budget, so a crashed instance's claims lapse before the next round
	// needs them.
	defaultClaimTTL = 15 * time.Minute
	workBuffer      = 4096
)

// Executor runs a single ticket to completion. A nil return means the ticket
// is done, including the expected skip outcomes; an error is classified by
// kind to decide on a retry.
type Executor interface {
	Execute(ctx context.Context, ticket *v1.JobTicket) error
}

type Config struct {
	Brand         v1.Brand
	MaxConcurrent int
	MaxPerMinute  int
	// DrainTimeout bounds how long in-flight jobs may finish after shutdown
	// begins before their context is cancelled.
	DrainTimeout time.Duration
	// ClaimTTL bounds how long a journal claim outlives a crashed instance.
	ClaimTTL time.Duration
}

func (c Config) withDefaults() Config {
	c.MaxConcurrent = max(c.MaxConcurrent, 1)
	c.MaxPerMinute = max(c.MaxPerMinute, 1)
	if c.DrainTimeout == 0 {
		c.DrainTimeout = defaultDrainTimeout
	}
	if c.ClaimTTL == 0 {
		c.ClaimTTL = defaultClaimTTL
	}
	return c
}

// BrandQueue owns every ticket of one brand from submission to a terminal
// state. Pending and running tickets absorb duplicate submissions; the last
// terminal tickets are retained for inspection.
type BrandQueue struct {
	cfg      Config
	executor Executor
	clk      clock.Clock
	journal  *Journal
	limiter  *rate.Limiter
	jitter   func() float64

	mu        sync.Mutex
	active    map[string]*v1.JobTicket
	succeeded []*v1.JobTicket
	failed    []*v1.JobTicket

	work chan string
	wg   sync.WaitGroup
}

const (
	succeededRetention = 100
	failedRetention    = 50
)

// NewBrandQueue builds a queue for one brand. The journal may be nil, in
// which case dedup is process-local only.
func NewBrandQueue(cfg Config, executor Executor, clk clock.Clock, journal *Journal) *BrandQueue {
	cfg = cfg.withDefaults()
	return &BrandQueue{
		cfg:      cfg,
		executor: executor,
		clk:      clk,
		journal:  journal,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.MaxPerMinute)), cfg.MaxPerMinute),
		jitter:   rand.Float64,
		active:   map[string]*v1.JobTicket{},
		work:     make(chan string, workBuffer),
	}
}

func (q *BrandQueue) Brand() v1.Brand {
	return q.cfg.Brand
}

// Submit offers a ticket to the queue. It reports false when an existing
// pending or running ticket with the same id absorbed the submission; that is
// the intended dedup path, not a failure.
func (q *BrandQueue) Submit(ctx context.Context, ticket *v1.JobTicket) bool {
	if q.absorbed(ticket.ID) {
		return false
	}
	if q.journal != nil {
		claimed, err := q.journal.Claim(ctx, ticket.ID, q.cfg.ClaimTTL)
		if err != nil {
			// The plant lock still serializes the work, so prefer running
			// over dropping when the journal is unreachable.
			logging.FromContext(ctx).V(1).Info("ticket journal unavailable, deduplicating in memory only", "brand", q.cfg.Brand, "ticket", ticket.ID)
		} else if !claimed {
			absorbedTotalCounter.WithLabelValues(string(q.cfg.Brand)).Inc()
			return false
		}
	}
	q.mu.Lock()
	if _, exists := q.active[ticket.ID]; exists {
		q.mu.Unlock()
		absorbedTotalCounter.WithLabelValues(string(q.cfg.Brand)).Inc()
		return false
	}
	ticket.State = v1.TicketPending
	q.active[ticket.ID] = ticket
	depth := len(q.active)
	q.mu.Unlock()

	queueDepthGauge.WithLabelValues(string(q.cfg.Brand)).Set(float64(depth))
	q.enqueue(ctx, ticket.ID)
	return true
}

func (q *BrandQueue) absorbed(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.active[id]; exists {
		absorbedTotalCounter.WithLabelValues(string(q.cfg.Brand)).Inc()
		return true
	}
	return false
}

// Run blocks until ctx is cancelled, then drains. In-flight jobs get up to
// DrainTimeout to finish before their context is cancelled; pending tickets
// are left behind for the scheduler to resubmit after restart.
func (q *BrandQueue) Run(ctx context.Context) error {
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	for i := 0; i < q.cfg.MaxConcurrent; i++ {
		q.wg.Add(1)
		go q.worker(ctx, jobCtx)
	}
	<-ctx.Done()

	idle := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-q.clk.After(q.cfg.DrainTimeout):
		logging.FromContext(ctx).Info("drain deadline reached, cancelling in-flight jobs", "brand", q.cfg.Brand)
		cancelJobs()
		<-idle
	}
	return nil
}

func (q *BrandQueue) worker(ctx, jobCtx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.work:
			q.process(ctx, jobCtx, id)
		}
	}
}

func (q *BrandQueue) process(ctx, jobCtx context.Context, id string) {
	if err := q.limiter.Wait(ctx); err != nil {
		return // shutting down, ticket stays pending
	}
	ticket := q.begin(id)
	if ticket == nil {
		return
	}
	log := logging.FromContext(jobCtx).WithValues("brand", q.cfg.Brand, "ticket", id, "plant", ticket.PlantID, "attempt", ticket.Attempt)

	start := q.clk.Now()
	err := q.execute(logging.WithLogger(jobCtx, log), ticket)
	jobDurationHistogram.WithLabelValues(string(q.cfg.Brand), string(ticket.JobType)).Observe(q.clk.Since(start).Seconds())

	if err == nil {
		jobsTotalCounter.WithLabelValues(string(q.cfg.Brand), string(ticket.JobType), "success").Inc()
		q.finish(jobCtx, ticket, v1.TicketSucceeded)
		return
	}
	jobsTotalCounter.WithLabelValues(string(q.cfg.Brand), string(ticket.JobType), "error").Inc()

	kind := errors.Kind(err)
	delay, retry := nextDelay(ticket.Attempt, err, q.jitter)
	if !retry {
		log.Error(err, "job failed terminally", "errorType", kind)
		q.mu.Lock()
		ticket.LastError = kind
		q.mu.Unlock()
		q.finish(jobCtx, ticket, v1.TicketFailed)
		return
	}
	log.Info("job failed, retrying", "errorType", kind, "delay", delay.Round(time.Millisecond).String())
	retriesTotalCounter.WithLabelValues(string(q.cfg.Brand), string(kind)).Inc()
	q.mu.Lock()
	ticket.Attempt++
	ticket.State = v1.TicketPending
	ticket.LastError = kind
	q.mu.Unlock()
	go func() {
		select {
		case <-q.clk.After(delay):
			q.enqueue(ctx, id)
		case <-ctx.Done():
		}
	}()
}

// begin flips a pending ticket to running; a stale work item whose ticket is
// gone or already running is dropped.
func (q *BrandQueue) begin(id string) *v1.JobTicket {
	q.mu.Lock()
	defer q.mu.Unlock()
	ticket, ok := q.active[id]
	if !ok || ticket.State != v1.TicketPending {
		return nil
	}
	ticket.State = v1.TicketRunning
	return ticket
}

func (q *BrandQueue) execute(ctx context.Context, ticket *v1.JobTicket) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Unknown(fmt.Errorf("job panicked: %v", r))
		}
	}()
	return q.executor.Execute(ctx, ticket)
}

func (q *BrandQueue) finish(ctx context.Context, ticket *v1.JobTicket, state v1.TicketState) {
	q.mu.Lock()
	ticket.State = state
	delete(q.active, ticket.ID)
	if state == v1.TicketSucceeded {
		q.succeeded = appendBounded(q.succeeded, ticket, succeededRetention)
	} else {
		q.failed = appendBounded(q.failed, ticket, failedRetention)
	}
	depth := len(q.active)
	q.mu.Unlock()

	queueDepthGauge.WithLabelValues(string(q.cfg.Brand)).Set(float64(depth))
	if q.journal != nil {
		if err := q.journal.Forget(ctx, ticket.ID); err != nil {
			logging.FromContext(ctx).V(1).Info("ticket journal unavailable, claim will lapse with its TTL", "brand", q.cfg.Brand, "ticket", ticket.ID)
		}
	}
}

func (q *BrandQueue) enqueue(ctx context.Context, id string) {
	select {
	case q.work <- id:
	default:
		// The buffer outsizes any realistic fleet; losing the ticket here is
		// still recoverable because the scheduler resubmits every interval.
		logging.FromContext(ctx).Info("work buffer full, dropping ticket", "brand", q.cfg.Brand, "ticket", id)
		droppedTotalCounter.WithLabelValues(string(q.cfg.Brand)).Inc()
		q.mu.Lock()
		delete(q.active, id)
		q.mu.Unlock()
	}
}

// Depth returns the number of pending and running tickets.
func (q *BrandQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Ticket returns a copy of a pending or running ticket.
func (q *BrandQueue) Ticket(id string) (v1.JobTicket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ticket, ok := q.active[id]; ok {
		return *ticket, true
	}
	return v1.JobTicket{}, false
}

// Terminal returns copies of the retained terminal tickets, oldest first.
func (q *BrandQueue) Terminal() (succeeded, failed []v1.JobTicket) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.succeeded {
		succeeded = append(succeeded, *t)
	}
	for _, t := range q.failed {
		failed = append(failed, *t)
	}
	return succeeded, failed
}

func appendBounded(ring []*v1.JobTicket, ticket *v1.JobTicket, limit int) []*v1.JobTicket {
	ring = append(ring, ticket)
	if len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return ring
}
