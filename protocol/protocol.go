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

// Package protocol is the navigable view a client actually drives: a
// single current directory, lazily refreshed from the network exactly
// when (and only when) it is known to be stale. Grounded directly on
// original_source/src/protocol.rs, converted from that file's recursive
// re-ls after a refresh into a bounded single-retry loop per the
// open question it left itself about unbounded recursion.
package protocol

import (
	"context"

	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/wallet"
)

// Network is the single capability a Protocol needs from the outside
// world: fetch everything known about id's immediate children. Expressed
// as an interface, not a struct, so callers can point it at an HTTP
// client, a local test double, or a local cache transparently.
type Network interface {
	FetchSubtree(ctx context.Context, id model.Uid) ([]model.LockedNode, error)
}

// DirView is the result of listing the current directory: its immediate
// children plus the breadcrumb trail from the tree root down to it.
type DirView struct {
	Current     *NodeView
	Breadcrumbs []NodeView
	Items       []NodeView
}

// NodeView is the read-only projection of a model.Node a caller actually
// wants to render — no Seed, no raw Entry.
type NodeView struct {
	ID       model.Uid
	ParentID model.Uid
	Name     string
	IsDir    bool
	Dirty    bool
}

func viewOf(n *model.Node) NodeView {
	return NodeView{
		ID:       n.ID,
		ParentID: n.ParentID,
		Name:     n.Name,
		IsDir:    n.Entry.IsDir(),
		Dirty:    n.Dirty,
	}
}

// Protocol is a single, long-lived navigation session over one user's
// filesystem. It is not safe for concurrent use — exactly like the
// User it wraps, operations on a Protocol are sequenced by the caller.
type Protocol struct {
	cd   *model.Uid
	user *wallet.User
	net  Network
}

// New starts a session with no current directory — the first ls_cur_mut
// call will resolve it to the tree root.
func New(user *wallet.User, net Network) *Protocol {
	return &Protocol{user: user, net: net}
}

// LsCurMut returns a DirView for the current directory, fetching its
// children over the network first if (and only if) they are dirty. The
// refresh is a single bounded retry, never a recursive re-ls: if the
// fetched subtree still leaves the directory dirty (e.g. a partial or
// stale backend reply), LsCurMut returns model.ErrNotFound rather than
// fetching again.
func (p *Protocol) LsCurMut(ctx context.Context) (*DirView, error) {
	node, ok := p.resolveCurrent()
	if !ok {
		p.cdToRoot()
		node, ok = p.resolveCurrent()
		if !ok {
			return &DirView{}, nil
		}
	}

	if node.Entry.IsDir() && node.Dirty {
		fetched, err := p.net.FetchSubtree(ctx, node.ID)
		if err != nil {
			// leave the node dirty; the caller can retry later. Never
			// partially apply a failed refresh.
			return nil, err
		}
		if err := p.user.FS.AddOrUpdateSubtree(fetched, node.ID); err != nil {
			return nil, err
		}
		node, ok = p.resolveCurrent()
		if !ok {
			return &DirView{}, nil
		}
		if node.Entry.IsDir() && node.Dirty {
			// still dirty after one refresh: the backend's reply was
			// itself stale or incomplete. Never retry again — surface it
			// instead of looping.
			return nil, model.ErrNotFound
		}
	}

	return p.buildView(node), nil
}

// resolveCurrent returns the node cd points at, or false if cd is unset
// or no longer resolves to a known node.
func (p *Protocol) resolveCurrent() (*model.Node, bool) {
	if p.cd == nil {
		return nil, false
	}
	return p.user.FS.NodeByID(*p.cd)
}

// cdToRoot sets cd to one of the tree's roots (the first one reported by
// LsRoot), or leaves it unset if the tree is empty.
func (p *Protocol) cdToRoot() {
	roots := p.user.FS.LsRoot()
	if len(roots) == 0 {
		p.cd = nil
		return
	}
	id := roots[0].ID
	p.cd = &id
}

// GoBack moves cd to the current node's parent. At the root, or if the
// current node no longer resolves, cd becomes unset.
func (p *Protocol) GoBack() {
	node, ok := p.resolveCurrent()
	if !ok || node.ParentID == model.NoParentID {
		p.cd = nil
		return
	}
	parentID := node.ParentID
	p.cd = &parentID
}

// CdToDir changes the current directory to id. The caller is expected to
// call LsCurMut afterward to actually list it (and trigger a refresh if
// it turns out to be dirty).
func (p *Protocol) CdToDir(id model.Uid) {
	p.cd = &id
}

// maxBreadcrumbDepth caps the parent walk in buildView.
const maxBreadcrumbDepth = 128

func (p *Protocol) buildView(node *model.Node) *DirView {
	view := &DirView{}
	cur := viewOf(node)
	view.Current = &cur

	if node.Entry.IsDir() {
		for _, child := range node.Entry.Dir.Children {
			view.Items = append(view.Items, viewOf(child))
		}
	}

	// Walk parent_id up to NoParentID to assemble breadcrumbs, then
	// reverse so the result reads root-to-leaf. The walk stops after
	// maxBreadcrumbDepth parents, so a corrupted store whose parent ids
	// form a cycle ends the trail there instead of looping forever.
	var crumbs []NodeView
	walk := node
	for depth := 0; walk.ParentID != model.NoParentID && depth < maxBreadcrumbDepth; depth++ {
		parent, ok := p.user.FS.NodeByID(walk.ParentID)
		if !ok {
			break
		}
		crumbs = append(crumbs, viewOf(parent))
		walk = parent
	}
	for i, j := 0, len(crumbs)-1; i < j; i, j = i+1, j-1 {
		crumbs[i], crumbs[j] = crumbs[j], crumbs[i]
	}
	view.Breadcrumbs = crumbs

	return view
}

// ChunkDecryptForFile decrypts one chunk of file_id's content. The
// decryption is deterministic per (file seed, chunkIdx) — see
// model.ChunkCipher — so chunks may arrive and be decrypted in any
// order, independently of one another.
func (p *Protocol) ChunkDecryptForFile(fileID model.Uid, chunkIdx uint32, chunk []byte) ([]byte, error) {
	node, ok := p.user.FS.NodeByID(fileID)
	if !ok || node.Entry.IsDir() {
		return nil, model.ErrNotFound
	}
	cipher := model.NewChunkCipher(node.Seed)
	return cipher.DecryptChunk(chunkIdx, chunk)
}
