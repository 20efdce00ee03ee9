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
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/piprate/metalocker-seedvault/utils/zero"
)

// SeedSize is the fixed width of every seed in the derivation tree.
const SeedSize = 32

// Seed is 32 bytes of secret from which keys and further seeds are
// derived via HKDF. It never leaves process memory in cleartext except
// when deliberately packaged inside a Bundle for sharing.
type Seed [SeedSize]byte

func (s Seed) Bytes() []byte {
	return s[:]
}

func (s *Seed) Zero() {
	zero.Bytea32((*[32]byte)(s))
}

func (s Seed) Base64() string {
	return base64.StdEncoding.EncodeToString(s[:])
}

// MarshalJSON renders a Seed as {"bytes": "<base64>"}, per the wire
// format table in SPEC_FULL.md.
func (s Seed) MarshalJSON() ([]byte, error) {
	return []byte(`{"bytes":"` + s.Base64() + `"}`), nil
}

func (s *Seed) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Bytes string `json:"bytes"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return NewError(CodeBadJSON, err.Error())
	}
	raw, err := base64.StdEncoding.DecodeString(wrapper.Bytes)
	if err != nil || len(raw) != SeedSize {
		return NewError(CodeBadJSON, "invalid seed encoding")
	}
	copy(s[:], raw)
	return nil
}

// GenerateSeed returns a cryptographically random seed, used for
// filesystem node seeds minted on node creation.
func GenerateSeed() Seed {
	var s Seed
	if _, err := io.ReadFull(rand.Reader, s[:]); err != nil {
		panic(err)
	}
	return s
}

// SeedFromBytes copies val (truncated/zero-padded to SeedSize) into a Seed.
func SeedFromBytes(val []byte) Seed {
	var s Seed
	copy(s[:], val)
	return s
}

// hkdfExpand is the single HKDF primitive used by every derivation below:
// HKDF-Extract+Expand over SHA-256 with ikm as the secret and label as
// the expansion info. Every derivation path that should converge on the
// same seed MUST route through this one function with matching
// (ikm, label) pairs — that is the canonical labelling scheme the
// invariants in spec.md §8 rely on.
func hkdfExpand(ikm []byte, label string) Seed {
	r := hkdf.New(sha256.New, ikm, nil, []byte(label))
	var out Seed
	if _, err := io.ReadFull(r, out[:]); err != nil {
		panic(err)
	}
	return out
}

const (
	labelRoot   = "root"
	labelFS     = "fs"
	labelDB     = "db"
	tablePrefix = "table:"
	colPrefix   = "column:"
)

// rootOfIdentity is the first step of every per-identity derivation: hash
// the identity's private key material down to a single 32-byte root.
func rootOfIdentity(priv *Private) Seed {
	ikm := make([]byte, 0, len(priv.x448Bytes())+len(priv.ed25519Bytes()))
	ikm = append(ikm, priv.x448Bytes()...)
	ikm = append(ikm, priv.ed25519Bytes()...)
	return hkdfExpand(ikm, labelRoot)
}

// FSSeed derives the identity's filesystem root seed.
func FSSeed(priv *Private) Seed {
	root := rootOfIdentity(priv)
	return hkdfExpand(root.Bytes(), labelFS)
}

// DBSeed derives the identity's database root seed.
func DBSeed(priv *Private) Seed {
	root := rootOfIdentity(priv)
	return hkdfExpand(root.Bytes(), labelDB)
}

// DeriveTableSeed derives a table's seed from the database root seed.
func DeriveTableSeed(dbSeed Seed, table string) Seed {
	return hkdfExpand(dbSeed.Bytes(), tablePrefix+table)
}

// DeriveColumnSeedFromTable derives a column's seed from its table seed.
func DeriveColumnSeedFromTable(tableSeed Seed, column string) Seed {
	return hkdfExpand(tableSeed.Bytes(), colPrefix+column)
}

// DeriveColumnSeedFromRoot derives a column's seed directly from the
// database root seed. It must equal DeriveColumnSeedFromTable applied to
// DeriveTableSeed(dbSeed, table) — which it does, by construction, since
// it is implemented as that exact chain (invariant §8.2).
func DeriveColumnSeedFromRoot(dbSeed Seed, table, column string) Seed {
	return DeriveColumnSeedFromTable(DeriveTableSeed(dbSeed, table), column)
}

// DeriveEntrySeedFromColumn derives a per-cell entry seed from a column
// seed and the cell's random salt.
func DeriveEntrySeedFromColumn(columnSeed Seed, salt Salt) Seed {
	return hkdfExpand(columnSeed.Bytes(), "entry:"+salt.Base64())
}

// DeriveEntrySeedFromTable derives the same entry seed, starting from a
// table seed instead of a column seed.
func DeriveEntrySeedFromTable(tableSeed Seed, column string, salt Salt) Seed {
	return DeriveEntrySeedFromColumn(DeriveColumnSeedFromTable(tableSeed, column), salt)
}

// DeriveEntrySeedFromRoot derives the same entry seed top-down, starting
// from the database root seed.
func DeriveEntrySeedFromRoot(dbSeed Seed, table, column string, salt Salt) Seed {
	return DeriveEntrySeedFromTable(DeriveTableSeed(dbSeed, table), column, salt)
}

// EntryCipherKeyIV expands an entry seed into an AES-256-GCM key plus a
// 12-byte base nonce, used for per-cell encryption (model/chunkcipher.go
// reuses the same expansion shape for per-file chunk keys).
func EntryCipherKeyIV(seed Seed) (*AESKey, [gcmNonceSize]byte) {
	r := hkdf.New(sha256.New, seed.Bytes(), nil, []byte("aes-gcm-key-iv"))
	var raw [KeySize + gcmNonceSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		panic(err)
	}
	key := NewAESKey(raw[:KeySize])
	var iv [gcmNonceSize]byte
	copy(iv[:], raw[KeySize:])
	return key, iv
}

const gcmNonceSize = 12
