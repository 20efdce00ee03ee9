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

package model_test

import (
	"testing"

	. "github.com/piprate/metalocker-seedvault/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportHash_OrderIndependent(t *testing.T) {
	receiver := GenerateUid()
	a, b, c := GenerateUid(), GenerateUid(), GenerateUid()

	e1 := Export{Receiver: receiver, FS: []Uid{a, b, c}, DB: []Uid{}}
	e2 := Export{Receiver: receiver, FS: []Uid{c, a, b}, DB: []Uid{}}

	assert.Equal(t, e1.Hash(), e2.Hash())
}

func TestExportHash_DifferentReceiverDiffers(t *testing.T) {
	a := GenerateUid()
	e1 := Export{Receiver: GenerateUid(), FS: []Uid{a}}
	e2 := Export{Receiver: GenerateUid(), FS: []Uid{a}}
	assert.NotEqual(t, e1.Hash(), e2.Hash())
}

func TestCtxToSignExport_VerifiesAgainstSig(t *testing.T) {
	sender, err := GenerateIdentity(GenerateUid())
	require.NoError(t, err)

	bundle := NewBundle()
	bundle.SetFS(GenerateUid(), GenerateSeed())
	export := ExportFromBundle(bundle, GenerateUid())

	sig := sender.Sign(CtxToSignExport(sender.Public(), export))
	assert.True(t, sender.Public().Verify(CtxToSignExport(sender.Public(), export), sig))

	// tampering with the export after signing must break verification.
	export.FS = append(export.FS, GenerateUid())
	assert.False(t, sender.Public().Verify(CtxToSignExport(sender.Public(), export), sig))
}

func TestCtxToSignInviteIntent_DetectsTampering(t *testing.T) {
	sender, err := GenerateIdentity(GenerateUid())
	require.NoError(t, err)

	userID := GenerateUid()
	fsIds := []Uid{GenerateUid(), GenerateUid()}
	dbIds := []DBIndex{TableIndex("messages")}

	ctx := CtxToSignInviteIntent(sender.Id(), "alice@example.com", userID, fsIds, dbIds)
	sig := sender.Sign(ctx)

	assert.True(t, sender.Public().Verify(ctx, sig))

	tamperedCtx := CtxToSignInviteIntent(sender.Id(), "mallory@example.com", userID, fsIds, dbIds)
	assert.False(t, sender.Public().Verify(tamperedCtx, sig))
}
