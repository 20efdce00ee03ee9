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

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// ChunkCipher encrypts/decrypts a file's chunks independently of one
// another and of chunk order: each chunk index gets its own GCM nonce,
// deterministically derived from the file's base nonce, so a client can
// fetch and decrypt chunk 50 before chunk 3 ever arrives.
type ChunkCipher struct {
	key    *AESKey
	baseIV [gcmNonceSize]byte
}

// NewChunkCipher derives a file's chunk key and base nonce from its seed
// — the same EntryCipherKeyIV expansion used for per-cell DB encryption,
// reused here for per-chunk file encryption.
func NewChunkCipher(seed Seed) *ChunkCipher {
	key, iv := EntryCipherKeyIV(seed)
	return &ChunkCipher{key: key, baseIV: iv}
}

// nonceFor XORs the chunk index into the low 4 bytes of the base nonce.
// Two distinct indices always yield distinct nonces under the same key,
// which is all AES-GCM requires for safety.
func (c *ChunkCipher) nonceFor(chunkIdx uint32) [gcmNonceSize]byte {
	nonce := c.baseIV
	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], chunkIdx)
	for i := 0; i < 4; i++ {
		nonce[gcmNonceSize-4+i] ^= idxBytes[i]
	}
	return nonce
}

// EncryptChunk seals one chunk of plaintext. Output is ciphertext|tag —
// unlike EncryptAESGCM, the nonce is not prefixed, since it's
// recomputable from chunkIdx alone.
func (c *ChunkCipher) EncryptChunk(chunkIdx uint32, plaintext []byte) ([]byte, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	nonce := c.nonceFor(chunkIdx)
	return gcm.Seal(nil, nonce[:], plaintext, nil), nil
}

// DecryptChunk reverses EncryptChunk for the same chunkIdx.
func (c *ChunkCipher) DecryptChunk(chunkIdx uint32, ciphertext []byte) ([]byte, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}
	nonce := c.nonceFor(chunkIdx)
	pt, err := gcm.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, NewError(CodeBadKey, err.Error())
	}
	return pt, nil
}

func (c *ChunkCipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key.Bytes())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
