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

package polling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/heliofleet/heliofleet/pkg/adapters"
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
	"github.com/heliofleet/heliofleet/pkg/utils/logging"
	"github.com/heliofleet/heliofleet/pkg/vault"
)

// backfillDays is the window of recent local dates checked for holes, today
// included.
const backfillDays = 4

// backfill fills snapshot holes in the recent past from the vendor's daily
// energy series. Rows written here never overwrite existing ones: a day the
// live poll already measured keeps its measured values.
func (e *Executor) backfill(ctx context.Context, adapter adapters.Adapter, plant *v1.Plant, creds *vault.Credentials, loc *time.Location) (int, error) {
	if !adapter.Capabilities().SupportsDailySeries {
		return 0, nil
	}
	now := e.clk.Now()
	window := localtime.LastDates(now, loc, backfillDays)
	existing, err := e.store.ListSnapshots(ctx, plant.ID, window)
	if err != nil {
		return 0, fmt.Errorf("listing recent snapshots, %w", err)
	}
	have := lo.SliceToMap(existing, func(s v1.MetricSnapshot) (localtime.Date, struct{}) { return s.Date, struct{}{} })
	missing := lo.Filter(window, func(d localtime.Date, _ int) bool { return !lo.HasKey(have, d) })
	if len(missing) == 0 {
		return 0, nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	callCtx, cancel := context.WithTimeout(ctx, e.adapterTimeout)
	defer cancel()
	points, err := adapter.GetDailyEnergySeries(callCtx, plant.Ref(), creds, missing[0], missing[len(missing)-1])
	if err != nil {
		return 0, err
	}
	byDate := lo.SliceToMap(points, func(p v1.DailyEnergyPoint) (localtime.Date, v1.DailyEnergyPoint) { return p.Date, p })

	written := 0
	for _, date := range missing {
		point, ok := byDate[date]
		if !ok {
			// The vendor has no record for that day either.
			continue
		}
		inserted, err := e.store.InsertSnapshotIfAbsent(ctx, &v1.MetricSnapshot{
			PlantID:        plant.ID,
			Date:           date,
			Timezone:       plant.Timezone,
			TodayEnergyKWh: point.EnergyKWh,
			// Backfilled rows record when we learned the value, not when the
			// vendor measured it.
			LastSeenAt:      now,
			SourceSampledAt: now,
		})
		if err != nil {
			return written, fmt.Errorf("backfilling snapshot for %s, %w", date, err)
		}
		if inserted {
			written++
			snapshotsWrittenCounter.WithLabelValues(string(plant.Brand), sourceBackfill).Inc()
		}
	}
	if written > 0 {
		logging.FromContext(ctx).Info("backfilled missing snapshots", "days", written)
	}
	return written, nil
}
