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

package locks_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/heliofleet/heliofleet/pkg/locks"
)

var (
	ctx         = context.Background()
	redisServer *miniredis.Miniredis
	locker      *locks.RedisLocker
)

func TestLocks(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Locks")
}

var _ = Describe("RedisLocker", func() {
	BeforeEach(func() {
		redisServer = miniredis.RunT(GinkgoTB())
		client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
		DeferCleanup(client.Close)
		locker = locks.NewRedisLocker(client)
	})

	It("should acquire a free lock", func() {
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)).To(BeTrue())
	})

	It("should refuse a lock another holder owns", func() {
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)).To(BeTrue())
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-b", 20*time.Minute)).To(BeFalse())
	})

	It("should keep locks for different plants independent", func() {
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)).To(BeTrue())
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p2"), "holder-a", 20*time.Minute)).To(BeTrue())
	})

	It("should free the lock when the owner releases it", func() {
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)).To(BeTrue())
		Expect(locker.Release(ctx, locks.PlantLockKey("p1"), "holder-a")).To(BeTrue())
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-b", 20*time.Minute)).To(BeTrue())
	})

	It("should not let a non-owner release the lock", func() {
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)).To(BeTrue())
		Expect(locker.Release(ctx, locks.PlantLockKey("p1"), "holder-b")).To(BeFalse())
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-c", 20*time.Minute)).To(BeFalse())
	})

	It("should expire a crashed holder's lease", func() {
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)).To(BeTrue())
		redisServer.FastForward(20*time.Minute + time.Second)
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-b", 20*time.Minute)).To(BeTrue())
	})

	It("should not release a lock the owner already lost to expiry", func() {
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)).To(BeTrue())
		redisServer.FastForward(20*time.Minute + time.Second)
		Expect(locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-b", 20*time.Minute)).To(BeTrue())
		Expect(locker.Release(ctx, locks.PlantLockKey("p1"), "holder-a")).To(BeFalse())
		Expect(locker.Release(ctx, locks.PlantLockKey("p1"), "holder-b")).To(BeTrue())
	})

	It("should report connectivity through the probe", func() {
		Expect(locker.Probe(ctx)).To(Succeed())
		redisServer.Close()
		Expect(locker.Probe(ctx)).ToNot(Succeed())
	})

	It("should surface transport failures as errors", func() {
		redisServer.Close()
		_, err := locker.Acquire(ctx, locks.PlantLockKey("p1"), "holder-a", 20*time.Minute)
		Expect(err).To(MatchError(ContainSubstring("acquiring lock")))
	})
})

var _ = DescribeTable("PlantLockKey",
	func(plantID, want string) {
		Expect(locks.PlantLockKey(plantID)).To(Equal(want))
	},
	Entry("uuid", "9a1f", "lock:plant:9a1f"),
	Entry("empty", "", "lock:plant:"),
)
