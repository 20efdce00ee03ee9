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
	"encoding/binary"
	"fmt"
)

// RootID is the Bundle key denoting a namespace's root seed. It is
// numerically identical to GodID, since both happen to be the all-zero
// 64-bit value, but the two are named separately so future divergence
// (e.g. a non-zero god id) stays mechanical rather than requiring a
// search-and-replace across call sites.
const RootID = Uid(0)

// GodID identifies the root owner of an identity tree.
const GodID = Uid(0)

// NoParentID terminates a parent-id walk up the filesystem tree.
const NoParentID = Uid(0xFFFFFFFFFFFFFFFF)

// Uid is an opaque 64-bit identifier for filesystem nodes, database
// tables/columns, and users. On the wire it is the URL-safe base64
// encoding of its 8 big-endian bytes.
type Uid uint64

// NewUid wraps a raw 64-bit value.
func NewUid(v uint64) Uid {
	return Uid(v)
}

// GenerateUid returns a cryptographically random Uid, used to mint fresh
// invitee identifiers (Invite.UserID, InviteIntent.UserID).
func GenerateUid() Uid {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return Uid(binary.BigEndian.Uint64(b[:]))
}

// UidFromBytes derives a Uid deterministically from arbitrary bytes: the
// first 8 bytes of SHA-256(bytes), read big-endian. Used to turn a
// table/column name into a stable Bundle key (see DBIndex.AsID).
func UidFromBytes(b []byte) Uid {
	sum := sha256.Sum256(b)
	return Uid(binary.BigEndian.Uint64(sum[:8]))
}

// Bytes returns the 8 big-endian bytes of the id.
func (u Uid) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(u))
	return b
}

// Uint64 returns the raw numeric value.
func (u Uid) Uint64() uint64 {
	return uint64(u)
}

// String renders the id as URL-safe, unpadded base64 — the canonical
// emission form used everywhere a Uid is serialized.
func (u Uid) String() string {
	b := u.Bytes()
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ParseUid accepts both the canonical unpadded URL-safe base64 form and
// the legacy padded form ("=" suffix) emitted by other platform clients.
// Three fixtures must round-trip to fixed values for cross-platform
// compatibility: see model/uid_test.go.
func ParseUid(s string) (Uid, error) {
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(trimPadding(s))
	if err != nil {
		var padErr error
		raw, padErr = base64.URLEncoding.DecodeString(s)
		if padErr != nil {
			return 0, NewError(CodeBadJSON, fmt.Sprintf("invalid uid %q: %v", s, err))
		}
	}
	if len(raw) != 8 {
		return 0, NewError(CodeBadJSON, fmt.Sprintf("invalid uid %q: wrong length", s))
	}
	return Uid(binary.BigEndian.Uint64(raw)), nil
}

func trimPadding(s string) string {
	end := len(s)
	for end > 0 && s[end-1] == '=' {
		end--
	}
	return s[:end]
}

// MarshalJSON implements json.Marshaler so every Bundle/Export/LockedShare
// field serializes as the wire string form, matching the wire formats
// table in SPEC_FULL.md.
func (u Uid) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler, accepting both padded and
// unpadded base64 forms per ParseUid.
func (u *Uid) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return NewError(CodeBadJSON, "uid must be a json string")
	}
	parsed, err := ParseUid(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
