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

package adapters

import (
	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

// CapabilitiesFor is the canonical per-brand constraint table. Live and mock
// adapters share it so that queue sizing is identical in both modes. The
// concurrency and rate caps reflect each vendor's published API limits.
func CapabilitiesFor(brand v1.Brand) Capabilities {
	switch brand {
	case v1.BrandSolis:
		return Capabilities{
			Brand:               v1.BrandSolis,
			MaxConcurrent:       3,
			MaxPerMinute:        30,
			MinIntervalSec:      300,
			SupportsDailySeries: true,
			SupportsAlarms:      true,
			SupportsDeviceList:  true,
		}
	case v1.BrandHuawei:
		return Capabilities{
			Brand:               v1.BrandHuawei,
			MaxConcurrent:       2,
			MaxPerMinute:        20,
			MinIntervalSec:      300,
			SupportsDailySeries: true,
			SupportsAlarms:      true,
			SupportsDeviceList:  true,
		}
	case v1.BrandGoodwe:
		return Capabilities{
			Brand:               v1.BrandGoodwe,
			MaxConcurrent:       2,
			MaxPerMinute:        20,
			MinIntervalSec:      300,
			SupportsDailySeries: true,
			SupportsAlarms:      true,
			SupportsDeviceList:  false,
		}
	case v1.BrandDele:
		return Capabilities{
			Brand:               v1.BrandDele,
			MaxConcurrent:       1,
			MaxPerMinute:        10,
			MinIntervalSec:      600,
			SupportsDailySeries: false,
			SupportsAlarms:      false,
			SupportsDeviceList:  false,
		}
	}
	return Capabilities{Brand: brand, MaxConcurrent: 1, MaxPerMinute: 10, MinIntervalSec: 600}
}
