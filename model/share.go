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
	"crypto/sha256"
	"sort"
)

// Seeds maps a Bundle key (RootID, a filesystem node id, or a DBIndex id)
// to the seed held for it.
type Seeds map[Uid]Seed

// Bundle is the set of seeds one identity is willing to part with: a
// filesystem sub-bundle and a database sub-bundle, each keyed by Uid.
// RootID as a key means "the whole tree", fs or db respectively.
type Bundle struct {
	FS Seeds `json:"fs"`
	DB Seeds `json:"db"`
}

func NewBundle() Bundle {
	return Bundle{FS: Seeds{}, DB: Seeds{}}
}

func (b *Bundle) SetFS(id Uid, seed Seed) {
	b.FS[id] = seed
}

func (b *Bundle) SetDB(id Uid, seed Seed) {
	b.DB[id] = seed
}

// Import is a Bundle received from sender, already decrypted and
// signature-checked — the receiver's record of "what was shared with me".
type Import struct {
	Sender *Public `json:"sender"`
	Bundle Bundle  `json:"bundle"`
}

// Export is the public (unencrypted) manifest of a share: which ids were
// handed to which receiver. It never carries the seeds themselves — only
// their ids — so it is safe to keep around, log, or hand to a backend
// that must route LockedShare records without being able to read them.
type Export struct {
	Receiver Uid   `json:"receiver"`
	FS       []Uid `json:"fs"`
	DB       []Uid `json:"db"`
}

func sortedUids(ids []Uid) []Uid {
	out := make([]Uid, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExportFromBundle builds the manifest of everything in bundle, addressed
// to receiver.
func ExportFromBundle(bundle Bundle, receiver Uid) Export {
	fsIds := make([]Uid, 0, len(bundle.FS))
	for id := range bundle.FS {
		fsIds = append(fsIds, id)
	}
	dbIds := make([]Uid, 0, len(bundle.DB))
	for id := range bundle.DB {
		dbIds = append(dbIds, id)
	}
	return Export{Receiver: receiver, FS: fsIds, DB: dbIds}
}

// Hash is a stable digest of the manifest: both id lists are sorted
// first, so two Exports built from the same bundle/receiver pair — in
// whatever map-iteration order — always hash identically.
func (e Export) Hash() []byte {
	h := sha256.New()
	for _, id := range sortedUids(e.FS) {
		b := id.Bytes()
		h.Write(b[:])
	}
	for _, id := range sortedUids(e.DB) {
		b := id.Bytes()
		h.Write(b[:])
	}
	b := e.Receiver.Bytes()
	h.Write(b[:])
	return h.Sum(nil)
}

// CtxToSignExport is the byte string a sender signs to vouch for an
// Export: "I, sender, shared exactly this manifest." Verifying it catches
// a backend silently adding ids to (or dropping them from) the manifest
// in transit.
func CtxToSignExport(sender *Public, export Export) []byte {
	senderID := sender.ID.Bytes()
	ctx := make([]byte, 0, 8+sha256.Size)
	ctx = append(ctx, senderID[:]...)
	ctx = append(ctx, export.Hash()...)
	return ctx
}

// LockedShare is a sealed, signed share: the Bundle named in Export,
// encrypted to Export.Receiver's public key, with Sender's signature over
// CtxToSignExport(Sender, Export) proving the manifest wasn't tampered
// with. Backends are expected to return every LockedShare where
// Sender.ID == caller.ID (my own exports) or Export.Receiver == caller.ID
// (shares addressed to me).
type LockedShare struct {
	Sender  *Public   `json:"sender"`
	Export  Export    `json:"export"`
	Payload Encrypted `json:"payload"`
	Sig     []byte    `json:"sig"`
}

// Invite is a pin-based share: the recipient doesn't have a keypair yet
// (they're about to sign up), so the Bundle is sealed with a passphrase
// lock keyed by a PIN shared over a trusted side channel instead of
// public-key encryption.
type Invite struct {
	UserID  Uid           `json:"userId"`
	Sender  *Public       `json:"sender"`
	RefSrc  string        `json:"refSrc"`
	Payload *PasswordLock `json:"payload"`
	Export  Export        `json:"export"`
	Sig     []byte        `json:"sig"`
}

// InviteIntent is a pin-less invite: the sender commits up front to
// sharing fsIds/dbIds with whoever signs up against refSrc, but the
// actual seeds aren't sealed until the invitee's public key exists and
// FinishInviteIntents is called.
type InviteIntent struct {
	RefSrc   string    `json:"refSrc"`
	Sender   *Public   `json:"sender"`
	Sig      []byte    `json:"sig"`
	UserID   Uid       `json:"userId"`
	Receiver *Public   `json:"receiver,omitempty"`
	FSIds    []Uid     `json:"fsIds,omitempty"`
	DBIds    []DBIndex `json:"dbIds,omitempty"`
}

// CtxToSignInviteIntent is the byte string a sender signs when starting
// an intent, and that FinishInviteIntents re-derives and re-verifies
// before honoring it — this is what stops a compromised backend from
// widening an intent's fsIds/dbIds between creation and completion.
func CtxToSignInviteIntent(sender Uid, refSrc string, receiver Uid, fsIds []Uid, dbIds []DBIndex) []byte {
	ctx := make([]byte, 0, 64)
	senderB := sender.Bytes()
	ctx = append(ctx, senderB[:]...)
	ctx = append(ctx, []byte(refSrc)...)
	receiverB := receiver.Bytes()
	ctx = append(ctx, receiverB[:]...)
	for _, id := range fsIds {
		b := id.Bytes()
		ctx = append(ctx, b[:]...)
	}
	for _, idx := range dbIds {
		id := idx.AsID()
		b := id.Bytes()
		ctx = append(ctx, b[:]...)
	}
	return ctx
}

// FinishInviteIntent is the sealed share produced once an InviteIntent's
// receiver public key is known.
type FinishInviteIntent struct {
	RefSrc string      `json:"refSrc"`
	Share  LockedShare `json:"share"`
}

// Welcome bundles everything a brand-new admin account needs at signup
// time: the pin-locked seeds (Invite.Payload), enough of the filesystem
// to bootstrap FileSystem.FromLockedNodes, and the inviter's signature
// over the original Export. Welcome does not carry that Export itself,
// and SignupAsAdminWithPin does not check Sig.
type Welcome struct {
	UserID Uid           `json:"userId"`
	Sender *Public       `json:"sender"`
	Import *PasswordLock `json:"imports"`
	Sig    []byte        `json:"sig"`
	Nodes  []LockedNode  `json:"nodes"`
}

// LockedUser is the durable, at-rest record of an account: everything
// needed to reconstruct a User given the right password or master key.
// JSON-tagged "pub" (not "public") to match the wire format every other
// MetaLocker-derived client on this account already expects.
type LockedUser struct {
	EncryptedPriv        *PasswordLock  `json:"encryptedPriv,omitempty"`
	Pub                  *Public        `json:"pub"`
	Shares               []LockedShare  `json:"shares"`
	PendingInviteIntents []InviteIntent `json:"pendingInviteIntents"`
	Roots                []LockedNode   `json:"roots"`
}
