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

package wallet

import (
	"encoding/base64"

	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
)

// cellVersion distinguishes the unsigned v1 cell format (ct+salt only,
// matching the upstream wire format) from v2, which adds Sig: an
// Ed25519 signature by the encrypting identity over ct‖salt, closing the
// "announcements aren't authenticated, only encrypted" gap noted as an
// open question. Readers that don't care about provenance can ignore
// Sig; VerifyEntrySignature lets a caller that does check it.
const cellVersion = 2

// Encrypted is the JSON envelope stored for one encrypted database cell.
type Encrypted struct {
	V    int    `json:"v"`
	CT   string `json:"ct"`
	Salt string `json:"salt"`
	Sig  []byte `json:"sig,omitempty"`
}

// EncryptDBEntry seals pt for (table, column) under a fresh salt, using
// the highest-authority seed this user holds for that cell (see
// aesForEntryInTable), and signs the result with this user's own
// identity.
func (u *User) EncryptDBEntry(table string, pt []byte, column string) (string, error) {
	salt := model.GenerateSalt()

	key, err := u.aesForEntryInTable(table, column, salt)
	if err != nil {
		return "", err
	}

	ct, err := model.EncryptAESGCM(pt, key)
	if err != nil {
		return "", err
	}

	ctB64 := base64.StdEncoding.EncodeToString(ct)
	sig := u.identity.Sign(signingContext(ctB64, salt.Base64()))

	raw, err := jsonw.Marshal(Encrypted{
		V:    cellVersion,
		CT:   ctB64,
		Salt: salt.Base64(),
		Sig:  sig,
	})
	if err != nil {
		return "", model.NewError(model.CodeBadJSON, err.Error())
	}
	return string(raw), nil
}

// DecryptDBEntry recovers the plaintext of a cell EncryptDBEntry sealed,
// for any caller holding column, table, or root authority over it (or
// the god identity, which can always derive it directly). It does not by
// itself verify Sig — call VerifyEntrySignature against a known sender
// when provenance matters.
func (u *User) DecryptDBEntry(table, ciphertext, column string) ([]byte, error) {
	var enc Encrypted
	if err := jsonw.Unmarshal([]byte(ciphertext), &enc); err != nil {
		return nil, model.ErrBadJSON
	}

	salt, err := model.SaltFromBase64(enc.Salt)
	if err != nil {
		return nil, err
	}

	key, err := u.aesForEntryInTable(table, column, salt)
	if err != nil {
		return nil, err
	}

	ct, err := base64.StdEncoding.DecodeString(enc.CT)
	if err != nil {
		return nil, model.ErrBadJSON
	}

	pt, err := model.DecryptAESGCM(ct, key)
	if err != nil {
		return nil, model.ErrBadKey
	}
	return pt, nil
}

// VerifyEntrySignature checks a cell's Sig against the identity that is
// claimed to have written it.
func VerifyEntrySignature(ciphertext string, sender *model.Public) (bool, error) {
	var enc Encrypted
	if err := jsonw.Unmarshal([]byte(ciphertext), &enc); err != nil {
		return false, model.ErrBadJSON
	}
	if len(enc.Sig) == 0 {
		return false, nil
	}
	return sender.Verify(signingContext(enc.CT, enc.Salt), enc.Sig), nil
}

func signingContext(ctB64, saltB64 string) []byte {
	ctx := make([]byte, 0, len(ctB64)+len(saltB64))
	ctx = append(ctx, ctB64...)
	ctx = append(ctx, saltB64...)
	return ctx
}

// aesForEntryInTable picks the entry-seed derivation path this user can
// legitimately take for (table, column, salt): an exact column seed if
// held, else a table seed, else a root db seed, else — for god only —
// direct derivation from the identity's own db seed. The first of these
// available wins; anything else is NoAccess.
func (u *User) aesForEntryInTable(table, column string, salt model.Salt) (*model.AESKey, error) {
	colID := model.IDForColumn(table, column)
	tableID := model.IDForTable(table)

	for _, im := range u.Imports {
		if seed, ok := im.Bundle.DB[colID]; ok {
			entrySeed := model.DeriveEntrySeedFromColumn(seed, salt)
			key, _ := model.EntryCipherKeyIV(entrySeed)
			return key, nil
		}
	}
	for _, im := range u.Imports {
		if seed, ok := im.Bundle.DB[tableID]; ok {
			entrySeed := model.DeriveEntrySeedFromTable(seed, column, salt)
			key, _ := model.EntryCipherKeyIV(entrySeed)
			return key, nil
		}
	}
	for _, im := range u.Imports {
		if seed, ok := im.Bundle.DB[model.RootID]; ok {
			entrySeed := model.DeriveEntrySeedFromRoot(seed, table, column, salt)
			key, _ := model.EntryCipherKeyIV(entrySeed)
			return key, nil
		}
	}
	if u.IsGod() {
		dbSeed := model.DBSeed(u.identity)
		entrySeed := model.DeriveEntrySeedFromRoot(dbSeed, table, column, salt)
		key, _ := model.EntryCipherKeyIV(entrySeed)
		return key, nil
	}

	return nil, model.ErrNoAccess
}

// EncryptAnnouncement and DecryptAnnouncement are the table="messages",
// column="text" convention used across this account for simple
// broadcast-style announcements.
func (u *User) EncryptAnnouncement(msg string) (string, error) {
	return u.EncryptDBEntry("messages", []byte(msg), "text")
}

func (u *User) DecryptAnnouncement(ciphertext string) (string, error) {
	pt, err := u.DecryptDBEntry("messages", ciphertext, "text")
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
