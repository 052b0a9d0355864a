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

package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Credentials holds a decrypted credential document for the duration of one
// job. The plaintext stays in a single byte slice so Zero can scrub it; it is
// never logged, serialized or embedded in another struct.
type Credentials struct {
	raw []byte
}

func NewCredentials(plaintext []byte) *Credentials {
	return &Credentials{raw: plaintext}
}

// Field returns one field of the credential JSON document, or "" when absent.
// Vendor adapters pick the fields their API needs.
func (c *Credentials) Field(name string) string {
	if c == nil || c.raw == nil {
		return ""
	}
	var doc map[string]string
	if err := json.Unmarshal(c.raw, &doc); err != nil {
		return ""
	}
	return doc[name]
}

// Fingerprint is a stable non-reversible digest of the credential document,
// safe to use as a session-cache key and in no other place.
func (c *Credentials) Fingerprint() string {
	if c == nil || c.raw == nil {
		return ""
	}
	sum := sha256.Sum256(c.raw)
	return hex.EncodeToString(sum[:8])
}

// Zero scrubs the plaintext. The credentials are unusable afterwards; every
// job must call this on all exit paths once the adapter call has finished.
func (c *Credentials) Zero() {
	if c == nil {
		return
	}
	for i := range c.raw {
		c.raw[i] = 0
	}
	c.raw = nil
}
