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
	"github.com/piprate/metalocker-seedvault/fs"
	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
)

// RejectReason classifies why one LockedShare in a backend reply was
// discarded during unlock. A forged or corrupted share must never abort
// the whole unlock — it is simply dropped, and reported here for callers
// that want to log or alert on it.
type RejectReason int

const (
	RejectBadDecrypt RejectReason = iota + 1
	RejectBadJSON
	RejectBadSig
	RejectQuantityMismatch
)

func (r RejectReason) String() string {
	switch r {
	case RejectBadDecrypt:
		return "payload did not decrypt under this identity's key"
	case RejectBadJSON:
		return "decrypted payload was not a valid bundle"
	case RejectBadSig:
		return "sender signature over the export manifest did not verify"
	case RejectQuantityMismatch:
		return "decrypted bundle did not match the signed export manifest"
	default:
		return "unknown rejection"
	}
}

// RejectedShareObserver is notified, once per discarded share, during
// UnlockWithParams. A nil observer is fine — rejection is always silent
// as far as the unlock's own return value is concerned.
type RejectedShareObserver func(share model.LockedShare, reason RejectReason)

// UnlockWithParams is the heart of the unlock procedure (spec.md §4.7):
// given this identity's own keys and a backend's full reply — every
// LockedShare either addressed to it or issued by it, plus whatever
// LockedNode records came back with it — reconstruct a User. A share
// this identity itself sent is recognized by sender id, re-verified by
// signature, and retained as an Export without ever being decrypted (it
// is sealed to the receiver's key, not this one). Every other share is
// independently decrypted, parsed, and verified as an Import; anything
// that fails any one of those steps is dropped without touching any
// other share, so a single forged or malformed record can never deny
// service to the rest of the account.
func UnlockWithParams(
	priv *model.Private,
	pub *model.Public,
	shares []model.LockedShare,
	roots []model.LockedNode,
	onRejected RejectedShareObserver,
) (*User, error) {
	u := &User{identity: priv, public: pub}

	combined := model.NewBundle()

	for _, share := range shares {
		// A share this identity issued to someone else can never be
		// decrypted by it: the payload is sealed to the receiver's public
		// key, not this identity's. Recognize it by sender id with a
		// receiver other than self (registration.sealSelfShare addresses
		// a share to its own sender deliberately, precisely so it reads
		// back as an ordinary, self-decryptable Import), re-verify the
		// signature over the manifest, and retain it as an Export
		// without ever attempting priv.Decrypt.
		if share.Sender != nil && share.Sender.ID == pub.ID && share.Export.Receiver != pub.ID {
			if !share.Sender.Verify(model.CtxToSignExport(share.Sender, share.Export), share.Sig) {
				reject(onRejected, share, RejectBadSig)
				continue
			}
			u.Exports = append(u.Exports, share.Export)
			continue
		}

		raw, err := priv.Decrypt(&share.Payload)
		if err != nil {
			reject(onRejected, share, RejectBadDecrypt)
			continue
		}

		var bundle model.Bundle
		if err := jsonw.Unmarshal(raw, &bundle); err != nil {
			reject(onRejected, share, RejectBadJSON)
			continue
		}

		if !share.Sender.Verify(model.CtxToSignExport(share.Sender, share.Export), share.Sig) {
			reject(onRejected, share, RejectBadSig)
			continue
		}

		if !bundleMatchesExport(bundle, share.Export) {
			reject(onRejected, share, RejectQuantityMismatch)
			continue
		}

		u.Imports = append(u.Imports, model.Import{Sender: share.Sender, Bundle: bundle})
		for id, seed := range bundle.FS {
			combined.SetFS(id, seed)
		}
		for id, seed := range bundle.DB {
			combined.SetDB(id, seed)
		}
	}

	if u.IsGod() {
		combined.SetFS(model.RootID, model.FSSeed(priv))
		combined.SetDB(model.RootID, model.DBSeed(priv))
	}

	u.FS = fs.FromLockedNodes(roots, combined.FS)

	return u, nil
}

// bundleMatchesExport checks that a decrypted Bundle carries exactly the
// ids the sender's signed Export manifest promised — no more, no fewer.
// A mismatch means the ciphertext and the signed manifest disagree,
// which can only happen if one of them was tampered with in transit.
func bundleMatchesExport(bundle model.Bundle, export model.Export) bool {
	return sameIDSet(bundleKeys(bundle.FS), export.FS) && sameIDSet(bundleKeys(bundle.DB), export.DB)
}

func bundleKeys(seeds model.Seeds) []model.Uid {
	out := make([]model.Uid, 0, len(seeds))
	for id := range seeds {
		out = append(out, id)
	}
	return out
}

func sameIDSet(a, b []model.Uid) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[model.Uid]int, len(a))
	for _, id := range a {
		set[id]++
	}
	for _, id := range b {
		set[id]--
	}
	for _, count := range set {
		if count != 0 {
			return false
		}
	}
	return true
}

func reject(onRejected RejectedShareObserver, share model.LockedShare, reason RejectReason) {
	if onRejected != nil {
		onRejected(share, reason)
	}
}

// UnlockWithMasterKey reconstructs a User from an at-rest LockedUser
// record given an already-unsealed master key — the fast path used right
// after registration, before the account password has been typed again.
func UnlockWithMasterKey(locked *model.LockedUser, mk *model.AESKey, onRejected RejectedShareObserver) (*User, error) {
	raw, err := locked.EncryptedPriv.UnlockWithMasterKey(mk)
	if err != nil {
		return nil, err
	}
	return unlockFromPrivBytes(raw, locked, onRejected)
}

// UnlockWithPassword reconstructs a User from an at-rest LockedUser
// record and the account password.
func UnlockWithPassword(password string, locked *model.LockedUser, onRejected RejectedShareObserver) (*User, error) {
	raw, err := locked.EncryptedPriv.UnlockWithPassword(password)
	if err != nil {
		return nil, err
	}
	return unlockFromPrivBytes(raw, locked, onRejected)
}

func unlockFromPrivBytes(raw []byte, locked *model.LockedUser, onRejected RejectedShareObserver) (*User, error) {
	var priv model.Private
	if err := jsonw.Unmarshal(raw, &priv); err != nil {
		return nil, model.ErrBadJSON
	}
	return UnlockWithParams(&priv, locked.Pub, locked.Shares, locked.Roots, onRejected)
}
