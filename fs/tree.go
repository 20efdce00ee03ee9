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

// Package fs assembles the flat, encrypted LockedNode records a backend
// serves into the navigable in-memory tree a User actually walks —
// decrypting exactly the nodes reachable from the seeds it holds, and
// silently leaving everything else alone.
package fs

import (
	"github.com/piprate/metalocker-seedvault/model"
)

// FileSystem is a lazily-materialized view over a set of LockedNode
// records: only nodes reachable from a known seed (directly, via a
// shared Bundle entry, or transitively via a decrypted parent's
// EncryptedChildSeeds) ever get decrypted.
type FileSystem struct {
	index    map[model.Uid]*model.Node
	pending  map[model.Uid]model.Seed
	expected map[model.Uid]int
}

func New() *FileSystem {
	return &FileSystem{
		index:    map[model.Uid]*model.Node{},
		pending:  map[model.Uid]model.Seed{},
		expected: map[model.Uid]int{},
	}
}

// FromLockedNodes builds a FileSystem from a backend's full reply to a
// signup/unlock call: the seeds held directly (bundle, e.g. the fs root
// for a god account, or every import's fs sub-bundle for an admin) plus
// whatever LockedNode records came back with it.
func FromLockedNodes(locked []model.LockedNode, bundle model.Seeds) *FileSystem {
	fs := New()
	for id, seed := range bundle {
		fs.pending[id] = seed
	}
	fs.ingest(locked)
	return fs
}

// ingest materializes every LockedNode in nodes whose seed is already
// known (in fs.pending), then whatever that newly unlocks, to a fixed
// point. A node that fails to decrypt (wrong seed, corrupt ciphertext,
// truncated JSON) is dropped silently — one bad record must never abort
// the rest of the tree.
func (fs *FileSystem) ingest(nodes []model.LockedNode) {
	byID := make(map[model.Uid]model.LockedNode, len(nodes))
	for _, ln := range nodes {
		byID[ln.ID] = ln
	}

	for {
		progressed := false
		for id, seed := range fs.pending {
			ln, ok := byID[id]
			if !ok {
				continue
			}
			delete(fs.pending, id)
			node, err := fs.materialize(ln, seed)
			if err != nil {
				continue
			}
			fs.index[id] = node
			progressed = true
		}
		if !progressed {
			break
		}
	}

	fs.linkChildren()
	fs.refreshDirtyFlags()
}

func (fs *FileSystem) materialize(ln model.LockedNode, seed model.Seed) (*model.Node, error) {
	meta, err := model.DecryptMeta(seed, ln.EncryptedMeta)
	if err != nil {
		return nil, err
	}

	node := &model.Node{
		ID:        ln.ID,
		ParentID:  ln.ParentID,
		CreatedAt: ln.CreatedAt,
		Name:      meta.Name,
		Seed:      seed,
	}

	if ln.IsDir {
		node.Entry = model.Entry{Dir: &model.DirEntry{}}
		fs.expected[ln.ID] = len(ln.EncryptedChildSeeds)
		for childID, enc := range ln.EncryptedChildSeeds {
			child, err := model.DecryptChildSeed(seed, enc)
			if err != nil {
				// one forged/corrupt child-seed entry must not poison its
				// siblings — skip it, the rest of the directory still works.
				continue
			}
			fs.pending[childID] = child.Seed
		}
	} else {
		node.Entry = model.Entry{File: &model.FileEntry{Ext: meta.Ext, Size: meta.Size, StorageID: meta.StorageID}}
	}

	return node, nil
}

func (fs *FileSystem) linkChildren() {
	for _, node := range fs.index {
		if node.ParentID == model.NoParentID {
			continue
		}
		parent, ok := fs.index[node.ParentID]
		if !ok || !parent.Entry.IsDir() {
			continue
		}
		if containsChild(parent.Entry.Dir.Children, node.ID) {
			continue
		}
		parent.Entry.Dir.Children = append(parent.Entry.Dir.Children, node)
	}
}

func containsChild(children []*model.Node, id model.Uid) bool {
	for _, c := range children {
		if c.ID == id {
			return true
		}
	}
	return false
}

// refreshDirtyFlags marks a directory Dirty when it has fewer decrypted
// children than it declared EncryptedChildSeeds entries for — i.e. the
// backend reply we just ingested didn't include its full subtree, and a
// caller needs to fetch the rest before listing it.
func (fs *FileSystem) refreshDirtyFlags() {
	for id, node := range fs.index {
		if !node.Entry.IsDir() {
			continue
		}
		want, ok := fs.expected[id]
		if !ok {
			continue
		}
		node.Dirty = len(node.Entry.Dir.Children) != want
	}
}

// AddOrUpdateSubtree merges a freshly fetched subtree into the tree,
// rooted at parentID. Used to clear a directory's Dirty flag once its
// children have been fetched over the network.
func (fs *FileSystem) AddOrUpdateSubtree(nodes []model.LockedNode, parentID model.Uid) error {
	if _, ok := fs.index[parentID]; !ok {
		return model.ErrNotFound
	}
	fs.ingest(nodes)
	return nil
}

// NodeByID looks up a node already materialized into the tree.
func (fs *FileSystem) NodeByID(id model.Uid) (*model.Node, bool) {
	n, ok := fs.index[id]
	return n, ok
}

// LsRoot lists every node with no parent in this tree — for a god
// account this is just the filesystem root; for an admin with several
// disjoint imports, one per import.
func (fs *FileSystem) LsRoot() []*model.Node {
	var out []*model.Node
	for _, node := range fs.index {
		if _, hasParent := fs.index[node.ParentID]; node.ParentID == model.NoParentID || !hasParent {
			out = append(out, node)
		}
	}
	return out
}

// ShareNode returns the seed for id, if this tree holds it — the seed
// SeedsForIDs packages up to share a subtree with someone else.
func (fs *FileSystem) ShareNode(id model.Uid) (model.Seed, error) {
	n, ok := fs.index[id]
	if !ok {
		return model.Seed{}, model.ErrNotFound
	}
	return n.Seed, nil
}
