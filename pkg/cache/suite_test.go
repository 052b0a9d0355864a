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

package cache_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliofleet/heliofleet/pkg/cache"
)

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cache")
}

var _ = Describe("Sessions", func() {
	var sessions *cache.Sessions

	BeforeEach(func() {
		sessions = cache.NewSessions()
	})

	It("should miss before any token is stored", func() {
		_, found := sessions.Get("fp-1")
		Expect(found).To(BeFalse())
	})
	It("should return the stored token for the same credentials", func() {
		sessions.Set("fp-1", "token-a")
		token, found := sessions.Get("fp-1")
		Expect(found).To(BeTrue())
		Expect(token).To(Equal("token-a"))
	})
	It("should keep tokens of different credentials apart", func() {
		sessions.Set("fp-1", "token-a")
		sessions.Set("fp-2", "token-b")
		token, _ := sessions.Get("fp-2")
		Expect(token).To(Equal("token-b"))
	})
	It("should forget an invalidated token", func() {
		sessions.Set("fp-1", "token-a")
		sessions.Invalidate("fp-1")
		_, found := sessions.Get("fp-1")
		Expect(found).To(BeFalse())
	})
	It("should replace a token in place", func() {
		sessions.Set("fp-1", "token-a")
		sessions.Set("fp-1", "token-b")
		token, _ := sessions.Get("fp-1")
		Expect(token).To(Equal("token-b"))
	})
	It("should drop everything on flush", func() {
		sessions.Set("fp-1", "token-a")
		sessions.Set("fp-2", "token-b")
		sessions.Flush()
		_, found := sessions.Get("fp-1")
		Expect(found).To(BeFalse())
	})
})
