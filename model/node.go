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

// LockedNode is the at-rest, encrypted form of one filesystem entry: a
// directory or a file. It travels flat (parent-linked, not nested) so a
// backend can serve arbitrary subtrees without ever being able to read
// names or child seeds — only the holder of a node's own Seed can do
// that, via EncryptedMeta and (for directories) EncryptedChildSeeds.
//
// Holding a directory's seed is necessary and sufficient to read every
// immediate child's id and seed, and transitively the whole subtree
// beneath it — this is the mechanism ShareNode/SeedsForIDs rely on to
// hand out access to a subtree with a single seed.
type LockedNode struct {
	ID        Uid   `json:"id"`
	ParentID  Uid   `json:"parentId"`
	CreatedAt int64 `json:"createdAt"`
	IsDir     bool  `json:"isDir"`

	// EncryptedMeta is an AES-256-GCM envelope (nonce|ct|tag), base64'd by
	// Encrypted*/Decrypt*Meta below, encrypted under this node's own
	// EntryCipherKeyIV(seed). It carries NodeMeta.
	EncryptedMeta string `json:"encryptedMeta"`

	// EncryptedChildSeeds carries, for a directory only, one AES-GCM
	// envelope per child id, each encrypted under this node's own
	// EntryCipherKeyIV(seed) and containing that child's ChildSeed.
	EncryptedChildSeeds map[Uid]string `json:"encryptedChildSeeds,omitempty"`
}

// NodeMeta is the plaintext sealed inside LockedNode.EncryptedMeta.
type NodeMeta struct {
	Name string `json:"name"`
	// Ext, Size and StorageID are populated for files only. StorageID
	// addresses the encrypted chunk blob in whatever storage backend
	// holds it; this layer never reads or writes chunks, only carries
	// the opaque reference alongside the rest of a file's metadata.
	Ext       string `json:"ext,omitempty"`
	Size      uint64 `json:"size,omitempty"`
	StorageID string `json:"storageId,omitempty"`
}

// ChildSeed is the plaintext sealed inside one entry of
// LockedNode.EncryptedChildSeeds.
type ChildSeed struct {
	Seed  Seed `json:"seed"`
	IsDir bool `json:"isDir"`
}

// Node is the decrypted, in-memory counterpart of LockedNode, organized
// as a tree (Entry.Dir.Children) rather than a flat parent-linked list.
type Node struct {
	ID        Uid
	ParentID  Uid
	CreatedAt int64
	Name      string
	Seed      Seed

	// Dirty marks a directory whose children are not (or no longer
	// known to be) loaded — LsCurMut uses this to trigger exactly one
	// bounded network refetch before giving up.
	Dirty bool

	Entry Entry
}

// Entry is a sum type: exactly one of Dir or File is set.
type Entry struct {
	Dir  *DirEntry
	File *FileEntry
}

func (e Entry) IsDir() bool {
	return e.Dir != nil
}

type DirEntry struct {
	Children []*Node
}

type FileEntry struct {
	Ext       string
	Size      uint64
	StorageID string
}

// EncryptMeta seals name (and, for a file, ext/size) under seed's entry
// key — the same per-seed AES-256-GCM key every cell and chunk in this
// system derives via EntryCipherKeyIV.
func EncryptMeta(seed Seed, meta NodeMeta) (string, error) {
	return encryptJSONUnderSeed(seed, meta)
}

func DecryptMeta(seed Seed, encoded string) (NodeMeta, error) {
	var meta NodeMeta
	err := decryptJSONUnderSeed(seed, encoded, &meta)
	return meta, err
}

// EncryptChildSeed seals a child's seed under its parent directory's
// entry key, so only someone who already holds the parent's seed can
// recover it.
func EncryptChildSeed(parentSeed Seed, child ChildSeed) (string, error) {
	return encryptJSONUnderSeed(parentSeed, child)
}

func DecryptChildSeed(parentSeed Seed, encoded string) (ChildSeed, error) {
	var child ChildSeed
	err := decryptJSONUnderSeed(parentSeed, encoded, &child)
	return child, err
}
