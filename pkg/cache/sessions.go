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

// Package cache centralizes the engine's in-memory caches and their TTLs.
package cache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultCleanupInterval = 10 * time.Minute
	// SessionTTL bounds how long a vendor session token is reused before the
	// adapter logs in again. The auth-failure path drops entries earlier.
	SessionTTL = 30 * time.Minute
)

// Sessions stores vendor session tokens so that consecutive jobs against the
// same credentials skip the login round trip. An auth failure must invalidate
// the entry immediately, otherwise every retry would replay a dead token.
type Sessions struct {
	// key: credential fingerprint, value: session token
	cache *cache.Cache
}

func NewSessions() *Sessions {
	return &Sessions{
		cache: cache.New(SessionTTL, DefaultCleanupInterval),
	}
}

// Get returns the cached session token for these credentials.
func (s *Sessions) Get(fingerprint string) (string, bool) {
	if token, found := s.cache.Get(fingerprint); found {
		return token.(string), true
	}
	return "", false
}

// Set stores a fresh token under the default TTL. Storing over an existing
// entry also extends its TTL.
func (s *Sessions) Set(fingerprint, token string) {
	s.cache.SetDefault(fingerprint, token)
}

// Invalidate drops the token so the next call re-authenticates.
func (s *Sessions) Invalidate(fingerprint string) {
	s.cache.Delete(fingerprint)
}

func (s *Sessions) Flush() {
	s.cache.Flush()
}
