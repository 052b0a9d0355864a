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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Journal mirrors ticket claims into Redis so that two engine instances do not
// both run the same deterministic ticket. It is a dedup optimization only; the
// per-plant lock remains the actual exclusion, so a journal outage degrades to
// in-memory dedup rather than failing submissions.
type Journal struct {
	client redis.UniversalClient
}

func NewJournal(client redis.UniversalClient) *Journal {
	return &Journal{client: client}
}

func ticketClaimKey(id string) string {
	return fmt.Sprintf("queue:ticket:%s", id)
}

// Claim marks the ticket as owned until released or the TTL lapses. It
// reports false when another instance already owns it.
func (j *Journal) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := j.client.SetNX(ctx, ticketClaimKey(id), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming ticket %s, %w", id, err)
	}
	return ok, nil
}

// Forget releases a claim once the ticket reached a terminal state.
func (j *Journal) Forget(ctx context.Context, id string) error {
	if err := j.client.Del(ctx, ticketClaimKey(id)).Err(); err != nil {
		return fmt.Errorf("releasing ticket %s, %w", id, err)
	}
	return nil
}
