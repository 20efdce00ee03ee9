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
  PasswordLock is a two-tier envelope: a random master key encrypts the
  payload directly, and the master key itself is scrypt-sealed behind a
  passphrase. This is the same indirection the teacher's
  model/account.Account uses (MasterKeyParams + EncryptedPayloadKey, via
  utils/snacl) so a passphrase change only re-locks the master key
  instead of re-encrypting the payload. snacl itself isn't in this
  retrieval pack, so the scrypt call goes straight to
  golang.org/x/crypto/scrypt — already a transitive teacher dependency
  and a sibling of the bcrypt package model/account/passphrase.go uses.
*/

import (
	"encoding/base64"

	"golang.org/x/crypto/scrypt"
)

// Default cost parameters, matching the teacher's account.hostedAccountConfig
// — already reduced from the scrypt default (2^18) for interactive use.
const (
	DefaultScryptN = 2048
	DefaultScryptR = 8
	DefaultScryptP = 1
)

// MasterKeyLock is a scrypt-sealed random AES key.
type MasterKeyLock struct {
	N    int    `json:"n"`
	R    int    `json:"r"`
	P    int    `json:"p"`
	Salt string `json:"salt"`
	CT   string `json:"ct"`
}

// PasswordLock is a passphrase-sealed envelope built from a MasterKeyLock
// plus a payload ciphertext encrypted directly with the master key. Used
// to seal Invite.Payload (passphrase is the pin) and
// LockedUser.EncryptedPriv (passphrase is the account password).
type PasswordLock struct {
	MasterKey MasterKeyLock `json:"masterKey"`
	CT        string        `json:"ct"`
}

// LockWithPassword seals plaintext behind password: a fresh random master
// key encrypts plaintext, and password (via scrypt) encrypts the master
// key. Returns the envelope and the master key, so callers that need it
// immediately (e.g. registration, which signs the new account in before
// asking the user to log back in) don't have to re-derive it.
func LockWithPassword(password string, plaintext []byte) (*PasswordLock, *AESKey, error) {
	mk := NewEncryptionKey()

	ct, err := EncryptAESGCM(plaintext, mk)
	if err != nil {
		return nil, nil, err
	}

	mkLock, err := lockMasterKey(mk, password, DefaultScryptN, DefaultScryptR, DefaultScryptP)
	if err != nil {
		return nil, nil, err
	}

	return &PasswordLock{
		MasterKey: mkLock,
		CT:        base64.StdEncoding.EncodeToString(ct),
	}, mk, nil
}

func lockMasterKey(mk *AESKey, password string, n, r, p int) (MasterKeyLock, error) {
	salt := GenerateSalt()
	wrapKey, err := deriveScryptKey(password, salt, n, r, p)
	if err != nil {
		return MasterKeyLock{}, err
	}
	defer wrapKey.Zero()

	ct, err := EncryptAESGCM(mk.Bytes(), wrapKey)
	if err != nil {
		return MasterKeyLock{}, err
	}

	return MasterKeyLock{
		N:    n,
		R:    r,
		P:    p,
		Salt: salt.Base64(),
		CT:   base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// DecryptMasterKey recovers the master key behind a MasterKeyLock. A
// wrong password surfaces as ErrWrongPass, never a panic.
func (l MasterKeyLock) DecryptMasterKey(password string) (*AESKey, error) {
	salt, err := SaltFromBase64(l.Salt)
	if err != nil {
		return nil, err
	}

	wrapKey, err := deriveScryptKey(password, salt, l.N, l.R, l.P)
	if err != nil {
		return nil, err
	}
	defer wrapKey.Zero()

	ct, err := base64.StdEncoding.DecodeString(l.CT)
	if err != nil {
		return nil, NewError(CodeBadJSON, "invalid master-key ciphertext")
	}

	raw, err := DecryptAESGCM(ct, wrapKey)
	if err != nil {
		return nil, ErrWrongPass
	}
	return NewAESKey(raw), nil
}

// RelockMasterKey re-seals mk behind a new password, e.g. for a
// passphrase change — the payload ciphertext is untouched.
func RelockMasterKey(mk *AESKey, newPassword string) (MasterKeyLock, error) {
	return lockMasterKey(mk, newPassword, DefaultScryptN, DefaultScryptR, DefaultScryptP)
}

// UnlockWithMasterKey decrypts the payload directly with mk, skipping the
// password layer (used once a caller already holds an unsealed master key).
func (l *PasswordLock) UnlockWithMasterKey(mk *AESKey) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(l.CT)
	if err != nil {
		return nil, NewError(CodeBadJSON, "invalid password-lock ciphertext")
	}
	pt, err := DecryptAESGCM(ct, mk)
	if err != nil {
		return nil, ErrBadKey
	}
	return pt, nil
}

// UnlockWithPassword recovers the master key from password, then decrypts
// the payload with it.
func (l *PasswordLock) UnlockWithPassword(password string) ([]byte, error) {
	mk, err := l.MasterKey.DecryptMasterKey(password)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()

	return l.UnlockWithMasterKey(mk)
}

func deriveScryptKey(password string, salt Salt, n, r, p int) (*AESKey, error) {
	raw, err := scrypt.Key([]byte(password), salt.Bytes(), n, r, p, KeySize)
	if err != nil {
		return nil, NewError(CodeBadKey, err.Error())
	}
	return NewAESKey(raw), nil
}
