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
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/cloudflare/circl/dh/x448"
	"golang.org/x/crypto/hkdf"

	"github.com/piprate/metalocker-seedvault/utils/jsonw"
	"github.com/piprate/metalocker-seedvault/utils/zero"
)

// Private is a user's full identity: an X448 agreement key used to
// receive shares, and an Ed25519 signing key used to authenticate them.
// Mirrors the Signer/Verifier split the teacher's model.DID exposes,
// generalised to two distinct key types per spec.md §3.
type Private struct {
	id      Uid
	x448Sec x448.Key
	edSec   ed25519.PrivateKey

	pub *Public
}

// Public is the half of an identity that travels on the wire: the two
// public keys plus the user's id.
type Public struct {
	ID      Uid    `json:"id"`
	X448Pub string `json:"x448"`
	EdPub   string `json:"ed25519"`

	x448Pub x448.Key
	edPub   ed25519.PublicKey
}

var _ Signer = (*Private)(nil)

// GenerateIdentity creates a fresh identity bound to id. id is GodID for
// the root owner and, for every admin, the Uid the inviter minted for
// them (Invite.UserID / InviteIntent.UserID) — it is never re-derived
// from the freshly generated public keys, since the inviter must be able
// to address the invitee before the invitee's keys exist.
func GenerateIdentity(id Uid) (*Private, error) {
	var x448Pub, x448Sec x448.Key
	x448.KeyGen(&x448Pub, &x448Sec)

	edPub, edSec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	pub := &Public{
		ID:      id,
		X448Pub: base64.StdEncoding.EncodeToString(x448Pub[:]),
		EdPub:   base64.StdEncoding.EncodeToString(edPub),
		x448Pub: x448Pub,
		edPub:   edPub,
	}

	return &Private{
		id:      id,
		x448Sec: x448Sec,
		edSec:   edSec,
		pub:     pub,
	}, nil
}

// Hydrate rebuilds the unexported key-material caches on a Public value
// decoded from JSON (its base64 fields are set, but x448Pub/edPub are
// not until this is called).
func (p *Public) Hydrate() error {
	rawX, err := base64.StdEncoding.DecodeString(p.X448Pub)
	if err != nil || len(rawX) != x448.Size {
		return NewError(CodeBadJSON, "invalid x448 public key")
	}
	copy(p.x448Pub[:], rawX)

	rawE, err := base64.StdEncoding.DecodeString(p.EdPub)
	if err != nil || len(rawE) != ed25519.PublicKeySize {
		return NewError(CodeBadJSON, "invalid ed25519 public key")
	}
	p.edPub = ed25519.PublicKey(rawE)

	return nil
}

func (p *Public) ensureHydrated() {
	if p.edPub == nil {
		_ = p.Hydrate()
	}
}

func (p *Public) Id() Uid {
	return p.ID
}

// IsGod reports whether this public identity is the root owner's.
func (p *Public) IsGod() bool {
	return p.ID == GodID
}

// Verify checks an Ed25519 signature against this identity's signing key.
func (p *Public) Verify(message, signature []byte) bool {
	p.ensureHydrated()
	return ed25519.Verify(p.edPub, message, signature)
}

func (priv *Private) Id() Uid {
	return priv.id
}

func (priv *Private) IsGod() bool {
	return priv.id == GodID
}

func (priv *Private) Public() *Public {
	return priv.pub
}

// Sign produces an Ed25519 signature over message.
func (priv *Private) Sign(message []byte) []byte {
	return ed25519.Sign(priv.edSec, message)
}

func (priv *Private) x448Bytes() []byte {
	return priv.x448Sec[:]
}

func (priv *Private) ed25519Bytes() []byte {
	return priv.edSec[:]
}

// Zero scrubs both secret keys from memory.
func (priv *Private) Zero() {
	zero.Bytes(priv.x448Sec[:])
	zero.Bytes(priv.edSec)
}

// privateWire is the JSON form of a Private — used only to seal it
// inside a PasswordLock (LockedUser.EncryptedPriv), never sent over the
// wire in the clear.
type privateWire struct {
	ID      Uid    `json:"id"`
	X448Sec string `json:"x448"`
	EdSec   string `json:"ed25519"`
}

func (priv *Private) MarshalJSON() ([]byte, error) {
	w := privateWire{
		ID:      priv.id,
		X448Sec: base64.StdEncoding.EncodeToString(priv.x448Sec[:]),
		EdSec:   base64.StdEncoding.EncodeToString(priv.edSec),
	}
	return jsonw.Marshal(w)
}

func (priv *Private) UnmarshalJSON(data []byte) error {
	var w privateWire
	if err := jsonw.Unmarshal(data, &w); err != nil {
		return NewError(CodeBadJSON, err.Error())
	}

	rawX, err := base64.StdEncoding.DecodeString(w.X448Sec)
	if err != nil || len(rawX) != x448.Size {
		return NewError(CodeBadJSON, "invalid x448 private key")
	}
	var x448Sec x448.Key
	copy(x448Sec[:], rawX)

	rawE, err := base64.StdEncoding.DecodeString(w.EdSec)
	if err != nil || len(rawE) != ed25519.PrivateKeySize {
		return NewError(CodeBadJSON, "invalid ed25519 private key")
	}
	edSec := ed25519.PrivateKey(rawE)

	var x448Pub x448.Key
	x448.ScalarBaseMult(&x448Pub, &x448Sec)
	edPub := edSec.Public().(ed25519.PublicKey)

	priv.id = w.ID
	priv.x448Sec = x448Sec
	priv.edSec = edSec
	priv.pub = &Public{
		ID:      w.ID,
		X448Pub: base64.StdEncoding.EncodeToString(x448Pub[:]),
		EdPub:   base64.StdEncoding.EncodeToString(edPub),
		x448Pub: x448Pub,
		edPub:   edPub,
	}
	return nil
}

// Encrypted is an asymmetric ciphertext sealed to a Public's X448 key:
// an ephemeral X448 public key plus an AES-256-GCM envelope whose key is
// HKDF-derived from the X448 shared secret. Generalises the teacher's
// AnonEncrypt/AnonDecrypt (X25519 + NaCl sealed box, model/locker.go) to
// the X448 agreement key spec.md §3 requires.
type Encrypted struct {
	EphemeralPub string `json:"ephPub"`
	CT           string `json:"ct"`
}

const asymEncryptLabel = "asym-encrypt-x448"

// Encrypt seals plaintext so only the holder of this Public's matching
// Private key can open it (used to seal a Bundle inside a LockedShare).
func (p *Public) Encrypt(plaintext []byte) (*Encrypted, error) {
	p.ensureHydrated()

	var ephPub, ephSec x448.Key
	x448.KeyGen(&ephPub, &ephSec)

	var shared x448.Key
	if !x448.Shared(&shared, &ephSec, &p.x448Pub) {
		return nil, NewError(CodeBadKey, "x448 agreement failed (low-order public key)")
	}

	key := hkdfToAESKey(shared[:])
	ct, err := EncryptAESGCM(plaintext, key)
	if err != nil {
		return nil, err
	}

	return &Encrypted{
		EphemeralPub: base64.StdEncoding.EncodeToString(ephPub[:]),
		CT:           base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// Decrypt opens an Encrypted envelope sealed to this Private's public
// X448 key.
func (priv *Private) Decrypt(enc *Encrypted) ([]byte, error) {
	rawEphPub, err := base64.StdEncoding.DecodeString(enc.EphemeralPub)
	if err != nil || len(rawEphPub) != x448.Size {
		return nil, NewError(CodeBadKey, "invalid ephemeral public key")
	}
	var ephPub x448.Key
	copy(ephPub[:], rawEphPub)

	ct, err := base64.StdEncoding.DecodeString(enc.CT)
	if err != nil {
		return nil, NewError(CodeBadJSON, "invalid ciphertext encoding")
	}

	var shared x448.Key
	if !x448.Shared(&shared, &priv.x448Sec, &ephPub) {
		return nil, NewError(CodeBadKey, "x448 agreement failed (low-order public key)")
	}

	key := hkdfToAESKey(shared[:])
	pt, err := DecryptAESGCM(ct, key)
	if err != nil {
		return nil, err
	}
	return pt, nil
}

func hkdfToAESKey(shared []byte) *AESKey {
	r := hkdf.New(sha256.New, shared, nil, []byte(asymEncryptLabel))
	var raw [KeySize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		panic(err)
	}
	return NewAESKey(raw[:])
}
