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
	"context"

	"golang.org/x/sync/errgroup"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"
)

// Set routes tickets to the queue of their brand and runs every queue as one
// unit.
type Set struct {
	queues map[v1.Brand]*BrandQueue
}

func NewSet(queues ...*BrandQueue) *Set {
	s := &Set{queues: map[v1.Brand]*BrandQueue{}}
	for _, q := range queues {
		s.queues[q.Brand()] = q
	}
	return s
}

// Submit places the ticket on its brand's queue. A ticket for a brand without
// a queue is dropped; that only happens when a plant's brand was registered
// with no adapter.
func (s *Set) Submit(ctx context.Context, ticket *v1.JobTicket) bool {
	q, ok := s.queues[ticket.Brand]
	if !ok {
		logging.FromContext(ctx).Info("no queue for brand, dropping ticket", "brand", ticket.Brand, "ticket", ticket.ID)
		return false
	}
	return q.Submit(ctx, ticket)
}

// Queue returns the queue of one brand.
func (s *Set) Queue(brand v1.Brand) (*BrandQueue, bool) {
	q, ok := s.queues[brand]
	return q, ok
}

// Run runs every queue until ctx is cancelled and blocks until all of them
// have drained.
func (s *Set) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, q := range s.queues {
		q := q
		g.Go(func() error {
			return q.Run(ctx)
		})
	}
	return g.Wait()
}

// Depth is the number of pending and running tickets across all queues.
func (s *Set) Depth() int {
	total := 0
	for _, q := range s.queues {
		total += q.Depth()
	}
	return total
}
