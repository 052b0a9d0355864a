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
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"k8s.io/utils/clock"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/errors"
	"github.com/heliofleet/heliofleet/pkg/store"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
)

type snapshotKey struct {
	plantID string
	date    localtime.Date
}

// StoreBehavior must be reset between tests otherwise tests will
// pollute each other.
type StoreBehavior struct {
	UpsertSnapshotError AtomicError
	InsertSnapshotError AtomicError
	InsertAlertError    AtomicError
	UpdateAlertError    AtomicError
	InsertPollLogError  AtomicError
	TransactError       AtomicError
	NextError           AtomicError
}

// Store is an in-memory store.Store. Transact takes a copy of the state up
// front and restores it when fn fails, which approximates a rollback closely
// enough for pipeline tests.
type Store struct {
	StoreBehavior

	mu        sync.RWMutex
	clk       clock.PassiveClock
	plants    map[string]v1.Plant
	creds     map[string]v1.Credential
	snapshots map[snapshotKey]v1.MetricSnapshot
	alerts    map[string]v1.Alert
	pollLogs  []v1.PollLog
}

func NewStore(clk clock.PassiveClock) *Store {
	s := &Store{clk: clk}
	s.reset()
	return s
}

func (s *Store) Reset() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()

	s.UpsertSnapshotError.Reset()
	s.InsertSnapshotError.Reset()
	s.InsertAlertError.Reset()
	s.UpdateAlertError.Reset()
	s.InsertPollLogError.Reset()
	s.TransactError.Reset()
	s.NextError.Reset()
}

func (s *Store) reset() {
	s.plants = map[string]v1.Plant{}
	s.creds = map[string]v1.Credential{}
	s.snapshots = map[snapshotKey]v1.MetricSnapshot{}
	s.alerts = map[string]v1.Alert{}
	s.pollLogs = nil
}

// AddPlant seeds a plant, filling the id when empty.
func (s *Store) AddPlant(plant *v1.Plant) *v1.Plant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if plant.ID == "" {
		plant.ID = uuid.NewString()
	}
	s.plants[plant.ID] = *plant
	return plant
}

func (s *Store) AddCredential(cred *v1.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cred
	c.EncryptedBlob = bytes.Clone(cred.EncryptedBlob)
	s.creds[cred.PlantID] = c
}

func (s *Store) AddSnapshot(snapshot *v1.MetricSnapshot) {
	lo.Must0(s.UpsertSnapshot(context.Background(), snapshot))
}

func (s *Store) AddAlert(alert *v1.Alert) *v1.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	s.alerts[alert.ID] = *alert
	return alert
}

// Alerts returns every stored alert, active and resolved, in id order.
func (s *Store) Alerts() []v1.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortByID(lo.Values(s.alerts))
}

func (s *Store) PollLogs() []v1.PollLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]v1.PollLog{}, s.pollLogs...)
}

func (s *Store) Snapshots(plantID string) []v1.MetricSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := lo.Filter(lo.Values(s.snapshots), func(sn v1.MetricSnapshot, _ int) bool {
		return sn.PlantID == plantID
	})
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date < snaps[j].Date })
	return snaps
}

func (s *Store) Probe(ctx context.Context) error {
	return s.NextError.Get()
}

func (s *Store) ListActivePlants(ctx context.Context) ([]v1.Plant, error) {
	if err := s.NextError.Get(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	plants := lo.Filter(lo.Values(s.plants), func(p v1.Plant, _ int) bool {
		return p.IntegrationStatus == v1.IntegrationActive && !p.Deleted()
	})
	sort.Slice(plants, func(i, j int) bool { return plants[i].ID < plants[j].ID })
	return plants, nil
}

func (s *Store) GetPlant(ctx context.Context, id string) (*v1.Plant, error) {
	if err := s.NextError.Get(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	plant, ok := s.plants[id]
	if !ok {
		return nil, errors.NotFound("plant", id)
	}
	return &plant, nil
}

func (s *Store) GetCredential(ctx context.Context, plantID string) (*v1.Credential, error) {
	if err := s.NextError.Get(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[plantID]
	if !ok {
		return nil, errors.NotFound("credential", plantID)
	}
	cred.EncryptedBlob = bytes.Clone(cred.EncryptedBlob)
	return &cred, nil
}

func (s *Store) SetIntegrationStatus(ctx context.Context, plantID string, status v1.IntegrationStatus) error {
	if err := s.NextError.Get(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	plant, ok := s.plants[plantID]
	if !ok {
		return errors.NotFound("plant", plantID)
	}
	plant.IntegrationStatus = status
	plant.UpdatedAt = s.clk.Now()
	s.plants[plantID] = plant
	return nil
}

func (s *Store) SetPlantStatus(ctx context.Context, plantID string, status v1.PlantStatus) error {
	if err := s.NextError.Get(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	plant, ok := s.plants[plantID]
	if !ok {
		return errors.NotFound("plant", plantID)
	}
	plant.Status = status
	plant.UpdatedAt = s.clk.Now()
	s.plants[plantID] = plant
	return nil
}

func (s *Store) UpsertSnapshot(ctx context.Context, snapshot *v1.MetricSnapshot) error {
	if err := firstError(&s.UpsertSnapshotError, &s.NextError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{plantID: snapshot.PlantID, date: snapshot.Date}
	next := *snapshot
	if prev, ok := s.snapshots[key]; ok {
		next.ID = prev.ID
		next.CreatedAt = prev.CreatedAt
	} else {
		next.ID = uuid.NewString()
		next.CreatedAt = s.clk.Now()
	}
	next.UpdatedAt = s.clk.Now()
	s.snapshots[key] = next
	return nil
}

func (s *Store) InsertSnapshotIfAbsent(ctx context.Context, snapshot *v1.MetricSnapshot) (bool, error) {
	if err := firstError(&s.InsertSnapshotError, &s.NextError); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{plantID: snapshot.PlantID, date: snapshot.Date}
	if _, ok := s.snapshots[key]; ok {
		return false, nil
	}
	next := *snapshot
	next.ID = uuid.NewString()
	next.CreatedAt = s.clk.Now()
	next.UpdatedAt = s.clk.Now()
	s.snapshots[key] = next
	return true, nil
}

func (s *Store) ListSnapshots(ctx context.Context, plantID string, dates []localtime.Date) ([]v1.MetricSnapshot, error) {
	if err := s.NextError.Get(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var snaps []v1.MetricSnapshot
	for _, date := range dates {
		if sn, ok := s.snapshots[snapshotKey{plantID: plantID, date: date}]; ok {
			snaps = append(snaps, sn)
		}
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date < snaps[j].Date })
	return snaps, nil
}

func (s *Store) ListSnapshotsBefore(ctx context.Context, plantID string, before localtime.Date, limit int) ([]v1.MetricSnapshot, error) {
	if err := s.NextError.Get(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := lo.Filter(lo.Values(s.snapshots), func(sn v1.MetricSnapshot, _ int) bool {
		return sn.PlantID == plantID && sn.Date < before
	})
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date > snaps[j].Date })
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

func (s *Store) ListActiveAlerts(ctx context.Context, plantID string) ([]v1.Alert, error) {
	if err := s.NextError.Get(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	alerts := lo.Filter(lo.Values(s.alerts), func(a v1.Alert, _ int) bool {
		return a.PlantID == plantID && a.Active()
	})
	return sortByID(alerts), nil
}

func (s *Store) InsertAlert(ctx context.Context, alert *v1.Alert) error {
	if err := firstError(&s.InsertAlertError, &s.NextError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.CreatedAt = s.clk.Now()
	alert.UpdatedAt = s.clk.Now()
	s.alerts[alert.ID] = *alert
	return nil
}

func (s *Store) UpdateAlert(ctx context.Context, alert *v1.Alert) error {
	if err := firstError(&s.UpdateAlertError, &s.NextError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alert.ID]; !ok {
		return errors.NotFound("alert", alert.ID)
	}
	alert.UpdatedAt = s.clk.Now()
	s.alerts[alert.ID] = *alert
	return nil
}

func (s *Store) InsertPollLog(ctx context.Context, pollLog *v1.PollLog) error {
	if err := firstError(&s.InsertPollLogError, &s.NextError); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pollLog.ID == "" {
		pollLog.ID = uuid.NewString()
	}
	s.pollLogs = append(s.pollLogs, *pollLog)
	return nil
}

func (s *Store) Transact(ctx context.Context, fn func(store.Store) error) error {
	if err := firstError(&s.TransactError, &s.NextError); err != nil {
		return err
	}
	saved := s.save()
	if err := fn(s); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

type storeState struct {
	plants    map[string]v1.Plant
	creds     map[string]v1.Credential
	snapshots map[snapshotKey]v1.MetricSnapshot
	alerts    map[string]v1.Alert
	pollLogs  []v1.PollLog
}

func (s *Store) save() storeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storeState{
		plants:    lo.Assign(s.plants),
		creds:     lo.Assign(s.creds),
		snapshots: lo.Assign(s.snapshots),
		alerts:    lo.Assign(s.alerts),
		pollLogs:  append([]v1.PollLog{}, s.pollLogs...),
	}
}

func (s *Store) restore(saved storeState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plants = saved.plants
	s.creds = saved.creds
	s.snapshots = saved.snapshots
	s.alerts = saved.alerts
	s.pollLogs = saved.pollLogs
}

func sortByID(alerts []v1.Alert) []v1.Alert {
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts
}

func firstError(errs ...*AtomicError) error {
	for _, e := range errs {
		if err := e.Get(); err != nil {
			return err
		}
	}
	return nil
}
