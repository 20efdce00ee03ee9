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

package protocol_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piprate/metalocker-seedvault/model"
	. "github.com/piprate/metalocker-seedvault/protocol"
	"github.com/piprate/metalocker-seedvault/registration"
	"github.com/piprate/metalocker-seedvault/wallet"
)

// fakeNetwork serves a fixed set of LockedNode children for known parent
// ids and counts how many times it was called, so tests can assert
// LsCurMut never fetches more than once per dirty directory.
type fakeNetwork struct {
	children map[model.Uid][]model.LockedNode
	calls    int
}

func (n *fakeNetwork) FetchSubtree(_ context.Context, id model.Uid) ([]model.LockedNode, error) {
	n.calls++
	return n.children[id], nil
}

func TestProtocol_LsCurMut_ResolvesToRootByDefault(t *testing.T) {
	god, err := registration.SignupAsGod("pw")
	require.NoError(t, err)

	p := New(god.User, &fakeNetwork{})
	view, err := p.LsCurMut(context.Background())
	require.NoError(t, err)
	require.NotNil(t, view.Current)
	assert.Equal(t, "/", view.Current.Name)
	assert.Empty(t, view.Breadcrumbs)
}

func TestProtocol_CdToDir_AndGoBack(t *testing.T) {
	god, err := registration.SignupAsGod("pw")
	require.NoError(t, err)

	rootID := god.Locked.Roots[0].ID
	p := New(god.User, &fakeNetwork{})
	_, err = p.LsCurMut(context.Background())
	require.NoError(t, err)

	// GoBack at the root unsets cd; the next LsCurMut resolves it to the
	// root again.
	p.GoBack()
	view, err := p.LsCurMut(context.Background())
	require.NoError(t, err)
	require.NotNil(t, view.Current)
	assert.Equal(t, rootID, view.Current.ID)

	p.CdToDir(rootID)
	view, err = p.LsCurMut(context.Background())
	require.NoError(t, err)
	require.NotNil(t, view.Current)
	assert.Equal(t, rootID, view.Current.ID)
}

// buildDirtyRoot builds a god user whose root declares one child seed it
// was never handed the LockedNode record for — exactly the "backend
// reply didn't include the full subtree" situation LsCurMut's refresh
// exists to fix.
func buildDirtyRoot(t *testing.T) (*wallet.User, model.Uid, model.Uid, *fakeNetwork) {
	t.Helper()

	priv, err := model.GenerateIdentity(model.GodID)
	require.NoError(t, err)

	rootSeed := model.FSSeed(priv)
	rootID := model.RootID
	childID := model.GenerateUid()
	childSeed := model.GenerateSeed()

	rootMeta, err := model.EncryptMeta(rootSeed, model.NodeMeta{Name: "/"})
	require.NoError(t, err)
	childMeta, err := model.EncryptMeta(childSeed, model.NodeMeta{Name: "docs"})
	require.NoError(t, err)
	encChildSeed, err := model.EncryptChildSeed(rootSeed, model.ChildSeed{Seed: childSeed, IsDir: true})
	require.NoError(t, err)

	root := model.LockedNode{
		ID:                  rootID,
		ParentID:            model.NoParentID,
		IsDir:               true,
		EncryptedMeta:       rootMeta,
		EncryptedChildSeeds: map[model.Uid]string{childID: encChildSeed},
	}

	u, err := wallet.UnlockWithParams(priv, priv.Public(), nil, []model.LockedNode{root}, nil)
	require.NoError(t, err)

	net := &fakeNetwork{
		children: map[model.Uid][]model.LockedNode{
			rootID: {
				{ID: childID, ParentID: rootID, IsDir: true, EncryptedMeta: childMeta},
			},
		},
	}

	return u, rootID, childID, net
}

// buildStillDirtyRoot builds a god user whose root declares two children
// but whose network only ever serves one of them back — the backend
// reply is itself incomplete, so the directory is still dirty even after
// the one bounded refresh LsCurMut allows.
func buildStillDirtyRoot(t *testing.T) (*wallet.User, model.Uid, *fakeNetwork) {
	t.Helper()

	priv, err := model.GenerateIdentity(model.GodID)
	require.NoError(t, err)

	rootSeed := model.FSSeed(priv)
	rootID := model.RootID
	child1ID, child2ID := model.GenerateUid(), model.GenerateUid()
	child1Seed, child2Seed := model.GenerateSeed(), model.GenerateSeed()

	rootMeta, err := model.EncryptMeta(rootSeed, model.NodeMeta{Name: "/"})
	require.NoError(t, err)
	child1Meta, err := model.EncryptMeta(child1Seed, model.NodeMeta{Name: "docs"})
	require.NoError(t, err)
	encChild1Seed, err := model.EncryptChildSeed(rootSeed, model.ChildSeed{Seed: child1Seed, IsDir: true})
	require.NoError(t, err)
	encChild2Seed, err := model.EncryptChildSeed(rootSeed, model.ChildSeed{Seed: child2Seed, IsDir: true})
	require.NoError(t, err)

	root := model.LockedNode{
		ID:            rootID,
		ParentID:      model.NoParentID,
		IsDir:         true,
		EncryptedMeta: rootMeta,
		EncryptedChildSeeds: map[model.Uid]string{
			child1ID: encChild1Seed,
			child2ID: encChild2Seed,
		},
	}

	u, err := wallet.UnlockWithParams(priv, priv.Public(), nil, []model.LockedNode{root}, nil)
	require.NoError(t, err)

	net := &fakeNetwork{
		children: map[model.Uid][]model.LockedNode{
			rootID: {
				{ID: child1ID, ParentID: rootID, IsDir: true, EncryptedMeta: child1Meta},
			},
		},
	}

	return u, rootID, net
}

func TestProtocol_LsCurMut_StillDirtyAfterOneRefresh_ReturnsNotFound(t *testing.T) {
	u, _, net := buildStillDirtyRoot(t)

	p := New(u, net)
	view, err := p.LsCurMut(context.Background())
	assert.Nil(t, view)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 1, net.calls)
}

func TestProtocol_LsCurMut_RefreshesDirtyDirectoryOnce(t *testing.T) {
	u, rootID, childID, net := buildDirtyRoot(t)

	root, ok := u.FS.NodeByID(rootID)
	require.True(t, ok)
	require.True(t, root.Dirty)

	p := New(u, net)

	view, err := p.LsCurMut(context.Background())
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, childID, view.Items[0].ID)
	assert.Equal(t, 1, net.calls)

	// a second ls with nothing newly dirty must not refetch.
	_, err = p.LsCurMut(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, net.calls)
}

func TestChunkDecryptForFile_UnknownFile(t *testing.T) {
	god, err := registration.SignupAsGod("pw")
	require.NoError(t, err)

	p := New(god.User, &fakeNetwork{})
	_, err = p.ChunkDecryptForFile(model.GenerateUid(), 0, []byte("x"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}
