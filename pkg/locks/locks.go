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

// Package locks implements the per-plant exclusion lease on Redis. A lock is
// acquire-if-absent with a TTL sized so that a crashed holder expires within
// two scheduling intervals, and release-if-owner so that an expired holder can
// never release its successor's lease.
package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker is distributed mutual exclusion with TTL and caller-token semantics.
type Locker interface {
	// Acquire takes the lock when free. It reports false, nil when another
	// holder exists; that is an expected outcome, not an error.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release drops the lock only when the given token still owns it.
	Release(ctx context.Context, key, token string) (bool, error)
}

// PlantLockKey is the lock key serializing all pipeline work per plant.
func PlantLockKey(plantID string) string {
	return fmt.Sprintf("lock:plant:%s", plantID)
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`)

// RedisLocker implements Locker on a shared Redis client.
type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Probe(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s, %w", key, err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) (bool, error) {
	released, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("releasing lock %s, %w", key, err)
	}
	return released > 0, nil
}
