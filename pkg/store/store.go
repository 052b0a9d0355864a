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

// Package store is the durable home of all engine entities. It exposes typed
// operations only; SQL never leaks past this package. Compound
// read-modify-write sequences run inside Transact, which guarantees
// serializable isolation.
package store

import (
	"context"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
	"github.com/heliofleet/heliofleet/pkg/utils/localtime"
)

type Store interface {
	// Probe verifies connectivity at startup.
	Probe(ctx context.Context) error

	// ListActivePlants returns all plants with ACTIVE integration that are not
	// soft-deleted, in stable id order.
	ListActivePlants(ctx context.Context) ([]v1.Plant, error)
	// GetPlant returns one plant, soft-deleted included; errors.ErrNotFound
	// when absent.
	GetPlant(ctx context.Context, id string) (*v1.Plant, error)
	// GetCredential returns the encrypted credential blob of a plant;
	// errors.ErrNotFound when absent.
	GetCredential(ctx context.Context, plantID string) (*v1.Credential, error)
	SetIntegrationStatus(ctx context.Context, plantID string, status v1.IntegrationStatus) error
	SetPlantStatus(ctx context.Context, plantID string, status v1.PlantStatus) error

	// UpsertSnapshot writes a snapshot, overwriting the measured fields when a
	// row for (plant, date) already exists.
	UpsertSnapshot(ctx context.Context, snapshot *v1.MetricSnapshot) error
	// InsertSnapshotIfAbsent writes a snapshot only when no row exists for
	// (plant, date); reports whether a row was written.
	InsertSnapshotIfAbsent(ctx context.Context, snapshot *v1.MetricSnapshot) (bool, error)
	// ListSnapshots returns the snapshots of a plant for the given dates.
	ListSnapshots(ctx context.Context, plantID string, dates []localtime.Date) ([]v1.MetricSnapshot, error)
	// ListSnapshotsBefore returns up to limit snapshots strictly before the
	// given date, most recent first.
	ListSnapshotsBefore(ctx context.Context, plantID string, before localtime.Date, limit int) ([]v1.MetricSnapshot, error)

	// ListActiveAlerts returns the alerts of a plant in NEW or ACKED state.
	ListActiveAlerts(ctx context.Context, plantID string) ([]v1.Alert, error)
	InsertAlert(ctx context.Context, alert *v1.Alert) error
	UpdateAlert(ctx context.Context, alert *v1.Alert) error

	InsertPollLog(ctx context.Context, pollLog *v1.PollLog) error

	// Transact runs fn against a store view with serializable isolation.
	// Nested calls reuse the enclosing transaction.
	Transact(ctx context.Context, fn func(Store) error) error
}
