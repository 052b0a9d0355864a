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

import "fmt"

// Brand identifies a supported inverter vendor.
type Brand string

const (
	BrandSolis  Brand = "SOLIS"
	BrandHuawei Brand = "HUAWEI"
	BrandGoodwe Brand = "GOODWE"
	BrandDele   Brand = "DELE"
)

// Brands returns all supported brands in a stable order.
func Brands() []Brand {
	return []Brand{BrandSolis, BrandHuawei, BrandGoodwe, BrandDele}
}

func (b Brand) Valid() bool {
	switch b {
	case BrandSolis, BrandHuawei, BrandGoodwe, BrandDele:
		return true
	}
	return false
}

func ParseBrand(s string) (Brand, error) {
	b := Brand(s)
	if !b.Valid() {
		return "", fmt.Errorf("unsupported brand %q", s)
	}
	return b, nil
}
