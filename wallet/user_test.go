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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
	. "github.com/piprate/metalocker-seedvault/wallet"
)

// newGodUser builds a fully-authorized root user directly through
// UnlockWithParams, bypassing the registration package to keep this test
// package dependency-free of it.
func newGodUser(t *testing.T) *User {
	t.Helper()
	priv, err := model.GenerateIdentity(model.GodID)
	require.NoError(t, err)

	u, err := UnlockWithParams(priv, priv.Public(), nil, nil, nil)
	require.NoError(t, err)
	return u
}

func TestGodUser_SeedsForIDs_Everything(t *testing.T) {
	god := newGodUser(t)

	bundle := god.SeedsForIDs(nil, nil)
	assert.Contains(t, bundle.FS, model.RootID)
	assert.Contains(t, bundle.DB, model.RootID)
}

func TestExportSeedsToIdentity_AttenuationRule(t *testing.T) {
	god := newGodUser(t)

	receiverPriv, err := model.GenerateIdentity(model.GenerateUid())
	require.NoError(t, err)

	tableID := model.IDForTable("messages")
	share, err := god.ExportSeedsToIdentity([]model.Uid{}, []model.DBIndex{model.TableIndex("messages")}, receiverPriv.Public())
	require.NoError(t, err)

	assert.Equal(t, receiverPriv.Id(), share.Export.Receiver)
	assert.Contains(t, share.Export.DB, tableID)
	assert.NotContains(t, share.Export.FS, model.RootID)

	// receiver actually unlocks it into the promised authority, never more.
	raw, err := receiverPriv.Decrypt(&share.Payload)
	require.NoError(t, err)

	var bundle model.Bundle
	require.NoError(t, jsonw.Unmarshal(raw, &bundle))
	_, hasTable := bundle.DB[tableID]
	assert.True(t, hasTable)
	_, hasRoot := bundle.DB[model.RootID]
	assert.False(t, hasRoot)
}

func TestSeedsForIDs_UnrequestableIDSilentlyDropped(t *testing.T) {
	admin := adminWithTableShare(t)

	// admin only holds the "messages" table, not "billing" — requesting
	// an id admin cannot derive must be dropped, not returned or errored.
	bundle := admin.SeedsForIDs(nil, []model.DBIndex{model.TableIndex("billing")})
	assert.Empty(t, bundle.DB)
}

// adminWithTableShare builds a non-god user holding exactly one DB table
// seed, imported from a god account — used by attenuation tests below.
func adminWithTableShare(t *testing.T) *User {
	t.Helper()
	god := newGodUser(t)

	adminPriv, err := model.GenerateIdentity(model.GenerateUid())
	require.NoError(t, err)

	share, err := god.ExportSeedsToIdentity(nil, []model.DBIndex{model.TableIndex("messages")}, adminPriv.Public())
	require.NoError(t, err)

	admin, err := UnlockWithParams(adminPriv, adminPriv.Public(), []model.LockedShare{*share}, nil, nil)
	require.NoError(t, err)
	return admin
}

func TestStartAndFinishInviteIntent(t *testing.T) {
	god := newGodUser(t)
	receiverPriv, err := model.GenerateIdentity(model.GenerateUid())
	require.NoError(t, err)

	intent := god.StartInviteIntentWithSeedsForRefSrc("bob@example.com", receiverPriv.Id(), nil, []model.DBIndex{model.TableIndex("messages")})
	intent.Receiver = receiverPriv.Public()

	finished := god.FinishInviteIntents([]model.InviteIntent{*intent})
	require.Len(t, finished, 1)
	assert.Equal(t, "bob@example.com", finished[0].RefSrc)
	assert.Equal(t, receiverPriv.Id(), finished[0].Share.Export.Receiver)
}

func TestFinishInviteIntents_TamperedIntentSkipped(t *testing.T) {
	god := newGodUser(t)
	receiverPriv, err := model.GenerateIdentity(model.GenerateUid())
	require.NoError(t, err)

	intent := god.StartInviteIntentWithSeedsForRefSrc("carol@example.com", receiverPriv.Id(), nil, nil)
	intent.Receiver = receiverPriv.Public()
	intent.DBIds = append(intent.DBIds, model.TableIndex("extra-after-signing"))

	finished := god.FinishInviteIntents([]model.InviteIntent{*intent})
	assert.Empty(t, finished)
}

func TestInviteWithSeedsForEmailAndPin(t *testing.T) {
	god := newGodUser(t)

	invite, err := god.InviteWithSeedsForEmailAndPin("dave@example.com", "1234", nil, []model.DBIndex{model.TableIndex("messages")})
	require.NoError(t, err)

	pt, err := invite.Payload.UnlockWithPassword("1234")
	require.NoError(t, err)

	var bundle model.Bundle
	require.NoError(t, jsonw.Unmarshal(pt, &bundle))
	assert.Contains(t, bundle.DB, model.IDForTable("messages"))

	_, err = invite.Payload.UnlockWithPassword("0000")
	assert.Error(t, err)
}
