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

// Package registration builds the two kinds of brand-new account this
// system supports: the single root owner ("god") that bootstraps a fresh
// tree, and an admin completing a pin-based invite into an existing one.
// Neither function appears in the retrieved reference implementation
// (only the at-rest LockedUser record does) — both are built fresh here,
// directly against the Bundle/Invite/Welcome/PasswordLock semantics that
// record is grounded on.
package registration

import (
	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
	"github.com/piprate/metalocker-seedvault/wallet"
)

// NewUser bundles the result of a signup: the usable, unlocked wallet
// plus the at-rest record a backend should persist for every later
// unlock.
type NewUser struct {
	User   *wallet.User
	Locked *model.LockedUser
}

// SignupAsGod creates the root identity for a brand-new tree: a fresh
// X448/Ed25519 keypair bound to GodID, a fresh filesystem root node, and
// a password-locked private key. There is no Bundle to unlock — the god
// identity derives its own fs/db root seeds directly from its keys
// (model.FSSeed / model.DBSeed), so the returned wallet already has full
// access before any share is ever received.
func SignupAsGod(password string) (*NewUser, error) {
	priv, err := model.GenerateIdentity(model.GodID)
	if err != nil {
		return nil, err
	}

	rootSeed := model.FSSeed(priv)
	// The root node's id is the well-known RootID, not a freshly minted
	// one: UnlockWithParams seeds a god account's pending-node map with
	// FSSeed(priv) keyed by RootID, so the actual root node has to carry
	// that same id for the two to ever meet.
	rootID := model.RootID

	meta, err := model.EncryptMeta(rootSeed, model.NodeMeta{Name: "/"})
	if err != nil {
		return nil, err
	}

	root := model.LockedNode{
		ID:            rootID,
		ParentID:      model.NoParentID,
		CreatedAt:     0,
		IsDir:         true,
		EncryptedMeta: meta,
	}

	privBytes, err := jsonw.Marshal(priv)
	if err != nil {
		return nil, model.NewError(model.CodeBadJSON, err.Error())
	}

	lock, mk, err := model.LockWithPassword(password, privBytes)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()

	locked := &model.LockedUser{
		EncryptedPriv: lock,
		Pub:           priv.Public(),
		Roots:         []model.LockedNode{root},
	}

	u, err := wallet.UnlockWithParams(priv, priv.Public(), nil, locked.Roots, nil)
	if err != nil {
		return nil, err
	}

	return &NewUser{User: u, Locked: locked}, nil
}

// SignupAsAdminWithPin completes a pin-based Invite: it generates a fresh
// keypair bound to the Uid the inviter minted (welcome.UserID), unlocks
// the pin-sealed Bundle, re-addresses it to the new identity's own public
// key (so it reads back as a normal Import on every later unlock, not a
// special pin-unlock case), and seals the new private key behind
// password.
func SignupAsAdminWithPin(password string, welcome *model.Welcome, pin string) (*NewUser, error) {
	priv, err := model.GenerateIdentity(welcome.UserID)
	if err != nil {
		return nil, err
	}

	raw, err := welcome.Import.UnlockWithPassword(pin)
	if err != nil {
		return nil, model.ErrWrongPass
	}

	var bundle model.Bundle
	if err := jsonw.Unmarshal(raw, &bundle); err != nil {
		return nil, model.ErrBadJSON
	}

	selfShare, err := sealSelfShare(priv, bundle)
	if err != nil {
		return nil, err
	}

	privBytes, err := jsonw.Marshal(priv)
	if err != nil {
		return nil, model.NewError(model.CodeBadJSON, err.Error())
	}

	lock, mk, err := model.LockWithPassword(password, privBytes)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()

	locked := &model.LockedUser{
		EncryptedPriv: lock,
		Pub:           priv.Public(),
		Shares:        []model.LockedShare{*selfShare},
		Roots:         welcome.Nodes,
	}

	u, err := wallet.UnlockWithParams(priv, priv.Public(), locked.Shares, locked.Roots, nil)
	if err != nil {
		return nil, err
	}

	return &NewUser{User: u, Locked: locked}, nil
}

// sealSelfShare re-encrypts bundle to the new identity's own public key so
// it reads back as an ordinary Import on every later unlock. It is signed
// by the new identity itself rather than the original inviter: Sig has to
// verify against the LockedShare's own Sender field, and the inviter never
// actually signs this re-addressed copy, so the only sound Sender here is
// priv itself vouching for its own bundle.
func sealSelfShare(priv *model.Private, bundle model.Bundle) (*model.LockedShare, error) {
	raw, err := jsonw.Marshal(bundle)
	if err != nil {
		return nil, model.NewError(model.CodeBadJSON, err.Error())
	}

	encrypted, err := priv.Public().Encrypt(raw)
	if err != nil {
		return nil, err
	}

	export := model.ExportFromBundle(bundle, priv.Id())
	sender := priv.Public()

	return &model.LockedShare{
		Sender:  sender,
		Export:  export,
		Payload: *encrypted,
		Sig:     priv.Sign(model.CtxToSignExport(sender, export)),
	}, nil
}

// CompleteInviteIntent finishes the pin-less counterpart of
// SignupAsAdminWithPin: by the time this runs, FinishInviteIntents has
// already produced a proper LockedShare addressed to the new identity's
// real public key, so there is no pin to unlock and no re-sealing step —
// the share slots in exactly like any other.
func CompleteInviteIntent(password string, userID model.Uid, priv *model.Private, share model.LockedShare, nodes []model.LockedNode) (*NewUser, error) {
	privBytes, err := jsonw.Marshal(priv)
	if err != nil {
		return nil, model.NewError(model.CodeBadJSON, err.Error())
	}

	lock, mk, err := model.LockWithPassword(password, privBytes)
	if err != nil {
		return nil, err
	}
	defer mk.Zero()

	locked := &model.LockedUser{
		EncryptedPriv: lock,
		Pub:           priv.Public(),
		Shares:        []model.LockedShare{share},
		Roots:         nodes,
	}

	u, err := wallet.UnlockWithParams(priv, priv.Public(), locked.Shares, locked.Roots, nil)
	if err != nil {
		return nil, err
	}

	return &NewUser{User: u, Locked: locked}, nil
}
