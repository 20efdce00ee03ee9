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

package wallet_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
	. "github.com/piprate/metalocker-seedvault/wallet"
)

func TestEncryptDecryptDBEntry_God(t *testing.T) {
	god := newGodUser(t)

	ct, err := god.EncryptDBEntry("messages", []byte("hello, world"), "text")
	require.NoError(t, err)

	pt, err := god.DecryptDBEntry("messages", ct, "text")
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(pt))
}

func TestEncryptAnnouncement_RoundTrip(t *testing.T) {
	god := newGodUser(t)

	ct, err := god.EncryptAnnouncement("scheduled maintenance at 9pm")
	require.NoError(t, err)

	msg, err := god.DecryptAnnouncement(ct)
	require.NoError(t, err)
	assert.Equal(t, "scheduled maintenance at 9pm", msg)
}

func TestEncryptDBEntry_NoAccessWithoutSeed(t *testing.T) {
	admin := adminWithTableShare(t)

	// admin holds "messages" but not "billing" — must get NoAccess, not
	// a generic error, and must not silently succeed.
	_, err := admin.EncryptDBEntry("billing", []byte("x"), "amount")
	assert.ErrorIs(t, err, model.ErrNoAccess)
}

func TestDecryptDBEntry_TamperedCiphertextFailsAsBadKey(t *testing.T) {
	god := newGodUser(t)

	ct, err := god.EncryptDBEntry("messages", []byte("hello"), "text")
	require.NoError(t, err)

	// flip one byte of the AES-GCM ciphertext inside an otherwise valid
	// envelope, so the failure comes from authentication, not parsing.
	var enc Encrypted
	require.NoError(t, jsonw.Unmarshal([]byte(ct), &enc))
	rawCT, err := base64.StdEncoding.DecodeString(enc.CT)
	require.NoError(t, err)
	rawCT[len(rawCT)-1] ^= 0xFF
	enc.CT = base64.StdEncoding.EncodeToString(rawCT)
	tampered, err := jsonw.Marshal(enc)
	require.NoError(t, err)

	_, err = god.DecryptDBEntry("messages", string(tampered), "text")
	assert.ErrorIs(t, err, model.ErrBadKey)
}

func TestVerifyEntrySignature(t *testing.T) {
	god := newGodUser(t)

	ct, err := god.EncryptDBEntry("messages", []byte("signed content"), "text")
	require.NoError(t, err)

	ok, err := VerifyEntrySignature(ct, god.Identity())
	require.NoError(t, err)
	assert.True(t, ok)

	other, err := model.GenerateIdentity(model.GenerateUid())
	require.NoError(t, err)
	ok, err = VerifyEntrySignature(ct, other.Public())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdminCanDecryptEntryWrittenByGodUnderSameTable(t *testing.T) {
	god := newGodUser(t)

	// the admin's table seed must come from this same god, not from the
	// separate god adminWithTableShare creates.
	adminPriv, err := model.GenerateIdentity(model.GenerateUid())
	require.NoError(t, err)
	share, err := god.ExportSeedsToIdentity(nil, []model.DBIndex{model.TableIndex("messages")}, adminPriv.Public())
	require.NoError(t, err)
	admin, err := UnlockWithParams(adminPriv, adminPriv.Public(), []model.LockedShare{*share}, nil, nil)
	require.NoError(t, err)

	ct, err := god.EncryptDBEntry("messages", []byte("from god"), "text")
	require.NoError(t, err)

	pt, err := admin.DecryptDBEntry("messages", ct, "text")
	require.NoError(t, err)
	assert.Equal(t, "from god", string(pt))
}
