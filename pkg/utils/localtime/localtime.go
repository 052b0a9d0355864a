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

// Package localtime handles the conversion between UTC instants and plant-local
// calendar dates. All daily aggregates are keyed by the date in the plant's
// configured IANA zone, never by the UTC date.
package localtime

import (
	"fmt"
	"regexp"
	"time"
)

// Date is a calendar date (yyyy-mm-dd) in some plant's local timezone.
type Date string

var fixedOffsetRe = regexp.MustCompile(`^[+-]\d{2}:?\d{2}$`)

// LoadZone resolves an IANA zone name such as "Europe/Prague". Fixed offsets
// ("+02:00") are rejected because they cannot follow DST transitions, and
// "Local" is rejected because it depends on the host. "UTC" is allowed.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("timezone is empty")
	}
	if fixedOffsetRe.MatchString(name) {
		return nil, fmt.Errorf("timezone %q is a fixed offset, expected an IANA zone name", name)
	}
	if name == "Local" {
		return nil, fmt.Errorf(`timezone "Local" is host dependent, expected an IANA zone name`)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("resolving timezone %q, %w", name, err)
	}
	return loc, nil
}

// DateOf returns the calendar date of the instant t in the given zone.
func DateOf(t time.Time, loc *time.Location) Date {
	return Date(t.In(loc).Format(time.DateOnly))
}

// LastDates returns the n calendar dates ending at the local date of t, most
// recent first. LastDates(t, loc, 4) covers today and the three prior days.
func LastDates(t time.Time, loc *time.Location, n int) []Date {
	local := t.In(loc)
	dates := make([]Date, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, Date(local.AddDate(0, 0, -i).Format(time.DateOnly)))
	}
	return dates
}

// AddDays shifts a date by n calendar days.
func (d Date) AddDays(n int) Date {
	t, err := time.Parse(time.DateOnly, string(d))
	if err != nil {
		return d
	}
	return Date(t.AddDate(0, 0, n).Format(time.DateOnly))
}

// StartOfDay returns midnight of d in the given zone.
func (d Date) StartOfDay(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, string(d), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q, %w", d, err)
	}
	return t, nil
}

func (d Date) String() string {
	return string(d)
}
