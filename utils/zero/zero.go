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

// Package zero provides best-effort helpers for scrubbing secret material
// from memory once it's no longer needed.
package zero

// Bytes overwrites every byte of b with zero.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Bytea32 overwrites a fixed 32-byte array, the size of a Seed or an AESKey.
func Bytea32(b *[32]byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}

// Bytea64 overwrites a fixed 64-byte array, the size of a SHA-512 digest.
func Bytea64(b *[64]byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
