// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

/*
  AEAD plumbing adapted from the teacher's model/aes.go (itself adapted
  from https://github.com/gtank/cryptopasta). This is the one place that
  touches the "out of scope" AES-GCM primitive directly; everything above
  this layer only ever sees AESKey and Seed.
*/

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"io"

	"github.com/piprate/metalocker-seedvault/utils/zero"
)

const KeySize = 32

// AESKey is a 256-bit symmetric key, always produced by HKDF expansion
// of a Seed — never generated or stored independently of one.
type AESKey [KeySize]byte

func (k AESKey) Bytes() []byte {
	return k[:]
}

func (k *AESKey) Zero() {
	zero.Bytea32((*[32]byte)(k))
}

func (k AESKey) Base64() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

func NewAESKey(val []byte) *AESKey {
	key := AESKey{}
	copy(key[:], val)
	return &key
}

// NewEncryptionKey generates a random 256-bit key, used only for
// synthetic/test fixtures — every production key is HKDF-derived.
func NewEncryptionKey() *AESKey {
	key := AESKey{}
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		panic(err)
	}
	return &key
}

// EncryptAESGCM encrypts data using 256-bit AES-GCM. Output takes the
// form nonce|ciphertext|tag where '|' indicates concatenation.
func EncryptAESGCM(plaintext []byte, key *AESKey) ([]byte, error) {
	if key == nil {
		return nil, NewError(CodeBadKey, "empty AES key")
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptAESGCM reverses EncryptAESGCM. Expects input form
// nonce|ciphertext|tag.
func DecryptAESGCM(ciphertext []byte, key *AESKey) ([]byte, error) {
	if key == nil {
		return nil, NewError(CodeBadKey, "empty AES key")
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, NewError(CodeBadKey, "malformed ciphertext")
	}

	pt, err := gcm.Open(nil, ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():], nil)
	if err != nil {
		return nil, NewError(CodeBadKey, err.Error())
	}
	return pt, nil
}

// Hash generates a hash of data using HMAC-SHA-512/256. tag is a
// natural-language string describing the purpose of the hash, serving as
// an HMAC "key" so different purposes produce unrelated outputs. This
// is NOT suitable for hashing passphrases — see passwordlock.go.
func Hash(tag string, data []byte) []byte {
	h := hmac.New(sha512.New512_256, []byte(tag))
	_, _ = h.Write(data)
	return h.Sum(nil)
}
