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

// Package wallet assembles the data model and primitives in model and
// fs into the user-facing operations of the share protocol: selecting
// seeds to hand out, sealing and verifying shares, and unlocking a
// user's own seed set from a server-delivered share bundle.
package wallet

import (
	"github.com/piprate/metalocker-seedvault/fs"
	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
)

// User aggregates one account's identity, the shares it has received
// (Imports) and issued (Exports), and its private view of the
// filesystem. A User is never shared across goroutines — every method
// here is a synchronous, single-owner mutation of its own state plus
// its arguments, mirroring the teacher's LocalDataWallet discipline.
type User struct {
	identity *model.Private
	public   *model.Public

	Imports []model.Import
	Exports []model.Export
	FS      *fs.FileSystem
}

func (u *User) Identity() *model.Public {
	return u.public
}

func (u *User) PrivateIdentity() *model.Private {
	return u.identity
}

// IsGod reports whether this account is the tree's root owner.
func (u *User) IsGod() bool {
	return u.public.IsGod()
}

// IsPendingSignup is true for a freshly completed admin signup that
// hasn't yet received any shares — a valid, non-error state.
func (u *User) IsPendingSignup() bool {
	return len(u.Imports) == 0 && !u.IsGod()
}

// SeedsForIDs selects the subset of this user's own authority to
// package into a Bundle. A nil slice means "everything I have"; a
// non-nil (possibly empty) slice means "exactly these ids, best effort".
// Requested ids this user cannot derive are silently dropped — this is
// the attenuation rule: the result can never exceed the caller's own
// authority.
func (u *User) SeedsForIDs(fsIds []model.Uid, dbIds []model.DBIndex) model.Bundle {
	bundle := model.NewBundle()

	if fsIds != nil {
		for _, id := range fsIds {
			if seed, err := u.FS.ShareNode(id); err == nil {
				bundle.SetFS(id, seed)
			}
		}
	} else if u.IsGod() {
		bundle.SetFS(model.RootID, model.FSSeed(u.identity))
	} else {
		for _, im := range u.Imports {
			for id, seed := range im.Bundle.FS {
				bundle.SetFS(id, seed)
			}
		}
	}

	if dbIds != nil {
		u.seedsForDBIds(dbIds, &bundle)
	} else if u.IsGod() {
		bundle.SetDB(model.RootID, model.DBSeed(u.identity))
	} else {
		for _, im := range u.Imports {
			for id, seed := range im.Bundle.DB {
				bundle.SetDB(id, seed)
			}
		}
	}

	return bundle
}

func (u *User) seedsForDBIds(dbIds []model.DBIndex, bundle *model.Bundle) {
	if u.IsGod() {
		dbSeed := model.DBSeed(u.identity)
		for _, idx := range dbIds {
			id := idx.AsID()
			switch idx.Kind {
			case model.IndexColumn:
				bundle.SetDB(id, model.DeriveColumnSeedFromRoot(dbSeed, idx.Table, idx.Column))
			default:
				bundle.SetDB(id, model.DeriveTableSeed(dbSeed, idx.Table))
			}
		}
		return
	}

	imported := map[model.Uid]model.Seed{}
	for _, im := range u.Imports {
		for id, seed := range im.Bundle.DB {
			if _, ok := imported[id]; !ok {
				imported[id] = seed
			}
		}
	}

	for _, idx := range dbIds {
		id := idx.AsID()
		if seed, ok := imported[id]; ok {
			bundle.SetDB(id, seed)
			continue
		}

		switch idx.Kind {
		case model.IndexColumn:
			if tableSeed, ok := imported[model.IDForTable(idx.Table)]; ok {
				bundle.SetDB(id, model.DeriveColumnSeedFromTable(tableSeed, idx.Column))
			} else if dbSeed, ok := imported[model.RootID]; ok {
				bundle.SetDB(id, model.DeriveColumnSeedFromRoot(dbSeed, idx.Table, idx.Column))
			}
		default:
			if dbSeed, ok := imported[model.RootID]; ok {
				bundle.SetDB(id, model.DeriveTableSeed(dbSeed, idx.Table))
			}
		}
	}
}

// ExportSeedsToIdentity builds and seals a LockedShare addressed to
// receiver, covering exactly SeedsForIDs(fsIds, dbIds). The manifest is
// also recorded in u.Exports immediately, so it shows up there even
// before any backend hands the same LockedShare back on a later unlock.
func (u *User) ExportSeedsToIdentity(fsIds []model.Uid, dbIds []model.DBIndex, receiver *model.Public) (*model.LockedShare, error) {
	bundle := u.SeedsForIDs(fsIds, dbIds)

	raw, err := jsonw.Marshal(bundle)
	if err != nil {
		return nil, model.NewError(model.CodeBadJSON, err.Error())
	}

	encrypted, err := receiver.Encrypt(raw)
	if err != nil {
		return nil, err
	}

	export := model.ExportFromBundle(bundle, receiver.ID)
	sig := u.identity.Sign(model.CtxToSignExport(u.public, export))

	u.Exports = append(u.Exports, export)

	return &model.LockedShare{
		Sender:  u.public,
		Export:  export,
		Payload: *encrypted,
		Sig:     sig,
	}, nil
}

// InviteWithSeedsForEmailAndPin builds a pin-based Invite: the same
// bundle ExportSeedsToIdentity would build, but sealed with a password
// lock keyed by pin instead of the (not-yet-existing) invitee's public
// key, and addressed to a freshly minted user id.
func (u *User) InviteWithSeedsForEmailAndPin(email, pin string, fsIds []model.Uid, dbIds []model.DBIndex) (*model.Invite, error) {
	bundle := u.SeedsForIDs(fsIds, dbIds)

	raw, err := jsonw.Marshal(bundle)
	if err != nil {
		return nil, model.NewError(model.CodeBadJSON, err.Error())
	}

	payload, _, err := model.LockWithPassword(pin, raw)
	if err != nil {
		return nil, err
	}

	receiverID := model.GenerateUid()
	export := model.ExportFromBundle(bundle, receiverID)
	sig := u.identity.Sign(model.CtxToSignExport(u.public, export))

	return &model.Invite{
		UserID:  receiverID,
		Sender:  u.public,
		RefSrc:  email,
		Payload: payload,
		Export:  export,
		Sig:     sig,
	}, nil
}

// StartInviteIntentWithSeedsForRefSrc commits, up front, to sharing
// fsIds/dbIds with whoever eventually signs up against refSrc carrying
// userID. The seeds themselves aren't sealed yet — that happens in
// FinishInviteIntents, once the invitee's public key is known.
func (u *User) StartInviteIntentWithSeedsForRefSrc(refSrc string, userID model.Uid, fsIds []model.Uid, dbIds []model.DBIndex) *model.InviteIntent {
	toSign := model.CtxToSignInviteIntent(u.public.ID, refSrc, userID, fsIds, dbIds)
	sig := u.identity.Sign(toSign)

	return &model.InviteIntent{
		RefSrc: refSrc,
		Sender: u.public,
		Sig:    sig,
		UserID: userID,
		FSIds:  fsIds,
		DBIds:  dbIds,
	}
}

// FinishInviteIntents seals a LockedShare for every intent this user
// started (sender matches, signature over the original context still
// verifies) and that now carries a receiver public key. Intents failing
// any check — including ones a compromised backend tampered with — are
// silently skipped, same as a forged LockedShare at unlock time.
func (u *User) FinishInviteIntents(intents []model.InviteIntent) []model.FinishInviteIntent {
	var out []model.FinishInviteIntent

	for _, intent := range intents {
		if intent.Receiver == nil || intent.Sender == nil || intent.Sender.ID != u.public.ID {
			continue
		}

		toSign := model.CtxToSignInviteIntent(intent.Sender.ID, intent.RefSrc, intent.UserID, intent.FSIds, intent.DBIds)
		if !intent.Sender.Verify(toSign, intent.Sig) {
			continue
		}

		share, err := u.ExportSeedsToIdentity(intent.FSIds, intent.DBIds, intent.Receiver)
		if err != nil {
			continue
		}

		out = append(out, model.FinishInviteIntent{RefSrc: intent.RefSrc, Share: *share})
	}

	return out
}
