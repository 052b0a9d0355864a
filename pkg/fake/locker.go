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

package fake

import (
	"context"
	"sync"
	"time"
)

// Locker is an in-memory locks.Locker. TTLs are recorded but never expire on
// their own; tests drop a holder explicitly.
type Locker struct {
	AcquireError AtomicError
	ReleaseError AtomicError

	mu     sync.Mutex
	holds  map[string]string
	ttls   map[string]time.Duration
	allRel []string
}

func NewLocker() *Locker {
	return &Locker{holds: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (l *Locker) Reset() {
	l.mu.Lock()
	l.holds = map[string]string{}
	l.ttls = map[string]time.Duration{}
	l.allRel = nil
	l.mu.Unlock()

	l.AcquireError.Reset()
	l.ReleaseError.Reset()
}

func (l *Locker) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := l.AcquireError.Get(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.holds[key]; held {
		return false, nil
	}
	l.holds[key] = token
	l.ttls[key] = ttl
	return true, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) (bool, error) {
	if err := l.ReleaseError.Get(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holds[key] != token {
		return false, nil
	}
	delete(l.holds, key)
	delete(l.ttls, key)
	l.allRel = append(l.allRel, key)
	return true, nil
}

// Hold seeds a competing holder, so the next Acquire on key reports contention.
func (l *Locker) Hold(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holds[key] = token
}

// Holder returns the current token for key, empty when free.
func (l *Locker) Holder(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds[key]
}

// TTL returns the TTL the current holder acquired with.
func (l *Locker) TTL(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ttls[key]
}

// Released returns the keys released so far, in order.
func (l *Locker) Released() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.allRel...)
}
