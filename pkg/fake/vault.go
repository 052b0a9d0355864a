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
	"fmt"

	"github.com/heliofleet/heliofleet/pkg/vault"
)

var fakeBlobPrefix = []byte("fake-sealed:")

// Vault is a vault.Vault whose sealing is a reversible prefix, so tests can
// hand-craft blobs without key material.
type Vault struct {
	DecryptError AtomicError
	EncryptError AtomicError
}

func NewVault() *Vault {
	return &Vault{}
}

func (v *Vault) Reset() {
	v.DecryptError.Reset()
	v.EncryptError.Reset()
}

func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	if err := v.EncryptError.Get(); err != nil {
		return nil, err
	}
	return append(bytes.Clone(fakeBlobPrefix), plaintext...), nil
}

func (v *Vault) Decrypt(blob []byte) (*vault.Credentials, error) {
	if err := v.DecryptError.Get(); err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(blob, fakeBlobPrefix) {
		return nil, fmt.Errorf("blob was not sealed by this vault")
	}
	return vault.NewCredentials(bytes.Clone(bytes.TrimPrefix(blob, fakeBlobPrefix))), nil
}

// SealedCredentials returns a blob that Decrypt will accept, for seeding
// credential rows in tests.
func SealedCredentials(fields string) []byte {
	return append(bytes.Clone(fakeBlobPrefix), []byte(fields)...)
}
