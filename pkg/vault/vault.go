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

// Package vault encrypts and decrypts vendor credential blobs with
// AES-256-GCM. Two master keys may be configured at once so that key rotation
// can proceed while old blobs are still re-encrypted in the background: decrypt
// tries the current key first and falls back to the previous one.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

const keyBytes = 32

// Vault is the credential encryption facility. The rest of the engine only
// ever sees it through this interface; plaintext handling stays confined to
// Credentials values.
type Vault interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) (*Credentials, error)
}

// AESVault implements Vault with AES-256-GCM. Blobs are nonce||ciphertext;
// there is no key-version header, the decrypt path tries current then
// previous.
type AESVault struct {
	current  cipher.AEAD
	previous cipher.AEAD
}

// New builds a vault from hex-encoded 32-byte master keys and runs an
// encrypt/decrypt self-test so a misconfigured key fails startup instead of
// the first poll. previousHex may be empty when no rotation is in progress.
func New(currentHex, previousHex string) (*AESVault, error) {
	current, err := parseKey(currentHex)
	if err != nil {
		return nil, fmt.Errorf("parsing current master key, %w", err)
	}
	v := &AESVault{current: current}
	if previousHex != "" {
		previous, err := parseKey(previousHex)
		if err != nil {
			return nil, fmt.Errorf("parsing previous master key, %w", err)
		}
		v.previous = previous
	}
	if err := v.selfTest(); err != nil {
		return nil, err
	}
	return v, nil
}

func parseKey(keyHex string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex")
	}
	if len(key) != keyBytes {
		return nil, fmt.Errorf("key is %d bytes, expected %d", len(key), keyBytes)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (v *AESVault) selfTest() error {
	probe := []byte("vault self test probe")
	blob, err := v.Encrypt(probe)
	if err != nil {
		return fmt.Errorf("vault self test encrypt failed, %w", err)
	}
	creds, err := v.Decrypt(blob)
	if err != nil {
		return fmt.Errorf("vault self test decrypt failed, %w", err)
	}
	defer creds.Zero()
	if !bytes.Equal(creds.raw, probe) {
		return fmt.Errorf("vault self test round-trip mismatch")
	}
	return nil
}

// Encrypt seals plaintext under the current key.
func (v *AESVault) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, v.current.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce, %w", err)
	}
	return v.current.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob with the current key, falling back to the previous key
// when one is configured. A failure on both keys means the blob cannot be
// used and the owning plant must be quarantined by the caller.
func (v *AESVault) Decrypt(blob []byte) (*Credentials, error) {
	nonceSize := v.current.NonceSize()
	if len(blob) <= nonceSize {
		return nil, fmt.Errorf("credential blob too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := v.current.Open(nil, nonce, ciphertext, nil)
	if err != nil && v.previous != nil {
		plaintext, err = v.previous.Open(nil, nonce, ciphertext, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("credential blob cannot be decrypted with any configured key")
	}
	return NewCredentials(plaintext), nil
}
