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

// Package clientside implements client-side Credential Access Boundary
// derivation (spec.md §4.8): an intermediary access token plus a session
// key, refreshed on a two-threshold blocking/async policy distinct from
// C1's three-state cache, and a locally AEAD-encrypted downscoped token
// that is never sent to STS.
package clientside

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/external-secrets/gauth/auth"
)

// AEAD encrypts plaintext under key with no associated data, returning a
// self-contained ciphertext (nonce and tag included). Callers may supply a
// Tink- or KMS-backed implementation in place of DefaultAEAD.
type AEAD interface {
	Encrypt(key, plaintext []byte) ([]byte, error)
}

// DefaultAEAD returns the stdlib AES-GCM implementation: spec.md §1 places
// AEAD itself out of scope as an assumed cryptographic primitive, and the
// pack carries no general-purpose AEAD library, so crypto/cipher is the
// only available default.
func DefaultAEAD() AEAD { return aesGCM{} }

type aesGCM struct{}

func (aesGCM) Encrypt(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &auth.ConfigError{Message: "clientside: invalid session key", Cause: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &auth.ConfigError{Message: "clientside: failed to build AEAD cipher", Cause: err}
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, &auth.IOError{Message: "clientside: failed to generate nonce", Cause: err}
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}
