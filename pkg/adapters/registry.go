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
	"github.com/samber/lo"

	v1 "github.com/heliofleet/heliofleet/pkg/apis/v1"
)

// Registry maps brands to their adapter. In mock mode every brand maps to a
// fixture-backed mock adapter; in live mode each brand maps to its vendor
// client. The mapping is immutable after construction.
type Registry struct {
	adapters map[v1.Brand]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{
		adapters: lo.SliceToMap(adapters, func(a Adapter) (v1.Brand, Adapter) {
			return a.Capabilities().Brand, a
		}),
	}
}

// ForBrand returns the adapter registered for a brand.
func (r *Registry) ForBrand(brand v1.Brand) (Adapter, bool) {
	a, ok := r.adapters[brand]
	return a, ok
}

// Brands returns the registered brands in the stable brand order.
func (r *Registry) Brands() []v1.Brand {
	return lo.Filter(v1.Brands(), func(b v1.Brand, _ int) bool {
		_, ok := r.adapters[b]
		return ok
	})
}

// Capabilities returns the capabilities of every registered adapter in the
// stable brand order.
func (r *Registry) Capabilities() []Capabilities {
	return lo.Map(r.Brands(), func(b v1.Brand, _ int) Capabilities {
		return r.adapters[b].Capabilities()
	})
}
