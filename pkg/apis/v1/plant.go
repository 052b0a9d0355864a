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

package v1

import (
	"time"
)

// IntegrationStatus reflects whether the engine is allowed to poll a plant.
type IntegrationStatus string

const (
	IntegrationActive          IntegrationStatus = "ACTIVE"
	IntegrationPausedAuthError IntegrationStatus = "PAUSED_AUTH_ERROR"
	IntegrationDisabled        IntegrationStatus = "DISABLED"
)

// PlantStatus is the derived health of a plant.
type PlantStatus string

const (
	StatusGreen  PlantStatus = "GREEN"
	StatusYellow PlantStatus = "YELLOW"
	StatusRed    PlantStatus = "RED"
	StatusGrey   PlantStatus = "GREY"
)

// Plant is one monitored installation bound to a single vendor.
type Plant struct {
	ID                  string            `db:"id" json:"id"`
	Name                string            `db:"name" json:"name"`
	Brand               Brand             `db:"brand" json:"brand"`
	VendorPlantID       string            `db:"vendor_plant_id" json:"vendorPlantId"`
	Timezone            string            `db:"timezone" json:"timezone"`
	IntegrationStatus   IntegrationStatus `db:"integration_status" json:"integrationStatus"`
	Status              PlantStatus       `db:"status" json:"status"`
	InstalledCapacityW  *float64          `db:"installed_capacity_w" json:"installedCapacityW,omitempty"`
	OwnerCustomerID     *string           `db:"owner_customer_id" json:"ownerCustomerId,omitempty"`
	AlertsSilencedUntil *time.Time        `db:"alerts_silenced_until" json:"alertsSilencedUntil,omitempty"`
	DeletedAt           *time.Time        `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updatedAt"`
}

// Deleted reports whether the plant has been soft-deleted.
func (p *Plant) Deleted() bool {
	return p.DeletedAt != nil
}

// Silenced reports whether alert notification is suppressed at the given
// instant. Silencing affects notification only, never alert bookkeeping.
func (p *Plant) Silenced(now time.Time) bool {
	return p.AlertsSilencedUntil != nil && now.Before(*p.AlertsSilencedUntil)
}

// Ref returns the identifiers a vendor adapter needs to address this plant.
func (p *Plant) Ref() PlantRef {
	return PlantRef{PlantID: p.ID, VendorPlantID: p.VendorPlantID, Timezone: p.Timezone}
}

// PlantRef addresses a plant at its vendor. PlantID is carried for log scoping
// only and never sent to the vendor. Timezone is the configured IANA zone,
// used by adapters whose vendor reports only numeric UTC offsets.
type PlantRef struct {
	PlantID       string
	VendorPlantID string
	Timezone      string
}

// Credential is the encrypted vendor credential blob for one plant. The
// plaintext form never appears in this package.
type Credential struct {
	PlantID       string    `db:"plant_id" json:"plantId"`
	Brand         Brand     `db:"brand" json:"brand"`
	EncryptedBlob []byte    `db:"encrypted_blob" json:"-"`
	KeyVersion    int       `db:"key_version" json:"keyVersion"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}
