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
	"crypto/rand"
	"encoding/base64"
	"io"
)

// SaltSize is the width of a per-cell salt.
const SaltSize = 16

// Salt is a fresh random value mixed into every per-cell entry seed
// derivation, so that encrypting the same plaintext twice (even with the
// same seed) never produces the same ciphertext.
type Salt [SaltSize]byte

func GenerateSalt() Salt {
	var s Salt
	if _, err := io.ReadFull(rand.Reader, s[:]); err != nil {
		panic(err)
	}
	return s
}

func (s Salt) Bytes() []byte {
	return s[:]
}

func (s Salt) Base64() string {
	return base64.StdEncoding.EncodeToString(s[:])
}

func SaltFromBase64(v string) (Salt, error) {
	var s Salt
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil || len(raw) != SaltSize {
		return s, NewError(CodeBadSalt, "invalid salt encoding")
	}
	copy(s[:], raw)
	return s, nil
}
