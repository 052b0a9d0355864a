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

package localtime_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
)

func TestLocaltime(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Localtime")
}

var _ = Describe("LoadZone", func() {
	It("should resolve IANA zone names", func() {
		loc, err := localtime.LoadZone("Europe/Madrid")
		Expect(err).ToNot(HaveOccurred())
		Expect(loc.String()).To(Equal("Europe/Madrid"))
	})

	It("should allow UTC", func() {
		loc, err := localtime.LoadZone("UTC")
		Expect(err).ToNot(HaveOccurred())
		Expect(loc).To(Equal(time.UTC))
	})

	DescribeTable("rejections",
		func(name, wantErr string) {
			_, err := localtime.LoadZone(name)
			Expect(err).To(MatchError(ContainSubstring(wantErr)))
		},
		Entry("empty", "", "timezone is empty"),
		Entry("fixed positive offset", "+02:00", "fixed offset"),
		Entry("fixed negative offset", "-0530", "fixed offset"),
		Entry("host local", "Local", "host dependent"),
		Entry("unknown zone", "Mars/Olympus", "resolving timezone"),
	)
})

var _ = Describe("DateOf", func() {
	madrid := func() *time.Location {
		loc, err := localtime.LoadZone("Europe/Madrid")
		Expect(err).ToNot(HaveOccurred())
		return loc
	}

	It("should key the date by the plant's zone, not UTC", func() {
		// 22:30 UTC is already the next day in summer-time Madrid.
		instant := time.Date(2024, 6, 14, 22, 30, 0, 0, time.UTC)
		Expect(localtime.DateOf(instant, madrid())).To(Equal(localtime.Date("2024-06-15")))
		Expect(localtime.DateOf(instant, time.UTC)).To(Equal(localtime.Date("2024-06-14")))
	})

	It("should walk recent dates most recent first", func() {
		instant := time.Date(2024, 6, 15, 11, 0, 0, 0, time.UTC)
		Expect(localtime.LastDates(instant, madrid(), 4)).To(Equal([]localtime.Date{
			"2024-06-15", "2024-06-14", "2024-06-13", "2024-06-12",
		}))
	})

	It("should cross month boundaries when walking back", func() {
		instant := time.Date(2024, 7, 1, 11, 0, 0, 0, time.UTC)
		Expect(localtime.LastDates(instant, madrid(), 3)).To(Equal([]localtime.Date{
			"2024-07-01", "2024-06-30", "2024-06-29",
		}))
	})

	It("should walk through a DST transition without skipping a date", func() {
		// Madrid moved to summer time on 2024-03-31.
		instant := time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)
		Expect(localtime.LastDates(instant, madrid(), 2)).To(Equal([]localtime.Date{
			"2024-03-31", "2024-03-30",
		}))
	})
})

var _ = Describe("Date", func() {
	DescribeTable("AddDays",
		func(date localtime.Date, n int, want localtime.Date) {
			Expect(date.AddDays(n)).To(Equal(want))
		},
		Entry("forward", localtime.Date("2024-06-15"), 1, localtime.Date("2024-06-16")),
		Entry("backward", localtime.Date("2024-06-15"), -1, localtime.Date("2024-06-14")),
		Entry("month boundary", localtime.Date("2024-07-01"), -1, localtime.Date("2024-06-30")),
		Entry("leap day", localtime.Date("2024-03-01"), -1, localtime.Date("2024-02-29")),
		Entry("garbage passes through unchanged", localtime.Date("yesterday"), -1, localtime.Date("yesterday")),
	)

	It("should start the day at local midnight", func() {
		loc, err := localtime.LoadZone("Europe/Madrid")
		Expect(err).ToNot(HaveOccurred())
		start, err := localtime.Date("2024-06-15").StartOfDay(loc)
		Expect(err).ToNot(HaveOccurred())
		Expect(start.UTC()).To(Equal(time.Date(2024, 6, 14, 22, 0, 0, 0, time.UTC)))
	})

	It("should refuse to start a malformed date", func() {
		_, err := localtime.Date("yesterday").StartOfDay(time.UTC)
		Expect(err).To(MatchError(ContainSubstring("parsing date")))
	})

	It("should order lexicographically in calendar order", func() {
		Expect(localtime.Date("2024-06-09") < localtime.Date("2024-06-10")).To(BeTrue())
		Expect(localtime.Date("2024-06-30") < localtime.Date("2024-07-01")).To(BeTrue())
	})
})
