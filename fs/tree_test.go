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

package fs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/piprate/metalocker-seedvault/fs"
	"github.com/piprate/metalocker-seedvault/model"
)

// buildTree creates root/child/grandchild LockedNode fixtures and
// returns them alongside the root's seed, exactly as a backend reply to
// a signup or unlock call would look.
func buildTree(t *testing.T) ([]model.LockedNode, model.Seed, model.Uid, model.Uid, model.Uid) {
	t.Helper()

	rootID, childID, grandchildID := model.GenerateUid(), model.GenerateUid(), model.GenerateUid()
	rootSeed := model.GenerateSeed()
	childSeed := model.GenerateSeed()
	grandchildSeed := model.GenerateSeed()

	rootMeta, err := model.EncryptMeta(rootSeed, model.NodeMeta{Name: "/"})
	require.NoError(t, err)
	childMeta, err := model.EncryptMeta(childSeed, model.NodeMeta{Name: "docs"})
	require.NoError(t, err)
	grandchildMeta, err := model.EncryptMeta(grandchildSeed, model.NodeMeta{Name: "report.pdf", Ext: "pdf", Size: 10})
	require.NoError(t, err)

	encChildSeed, err := model.EncryptChildSeed(rootSeed, model.ChildSeed{Seed: childSeed, IsDir: true})
	require.NoError(t, err)
	encGrandchildSeed, err := model.EncryptChildSeed(childSeed, model.ChildSeed{Seed: grandchildSeed, IsDir: false})
	require.NoError(t, err)

	nodes := []model.LockedNode{
		{
			ID:                  rootID,
			ParentID:            model.NoParentID,
			IsDir:               true,
			EncryptedMeta:       rootMeta,
			EncryptedChildSeeds: map[model.Uid]string{childID: encChildSeed},
		},
		{
			ID:                  childID,
			ParentID:            rootID,
			IsDir:               true,
			EncryptedMeta:       childMeta,
			EncryptedChildSeeds: map[model.Uid]string{grandchildID: encGrandchildSeed},
		},
		{
			ID:            grandchildID,
			ParentID:      childID,
			IsDir:         false,
			EncryptedMeta: grandchildMeta,
		},
	}

	return nodes, rootSeed, rootID, childID, grandchildID
}

func TestFromLockedNodes_FullTree(t *testing.T) {
	nodes, rootSeed, rootID, childID, grandchildID := buildTree(t)

	bundle := model.Seeds{rootID: rootSeed}
	tree := FromLockedNodes(nodes, bundle)

	root, ok := tree.NodeByID(rootID)
	require.True(t, ok)
	assert.Equal(t, "/", root.Name)
	assert.False(t, root.Dirty)
	require.Len(t, root.Entry.Dir.Children, 1)
	assert.Equal(t, childID, root.Entry.Dir.Children[0].ID)

	child, ok := tree.NodeByID(childID)
	require.True(t, ok)
	assert.False(t, child.Dirty)
	require.Len(t, child.Entry.Dir.Children, 1)

	grandchild, ok := tree.NodeByID(grandchildID)
	require.True(t, ok)
	assert.Equal(t, "report.pdf", grandchild.Name)
	assert.False(t, grandchild.Entry.IsDir())
}

func TestFromLockedNodes_PartialReplyMarksDirty(t *testing.T) {
	nodes, rootSeed, rootID, childID, _ := buildTree(t)

	bundle := model.Seeds{rootID: rootSeed}
	// only hand over the root and child records — the grandchild is
	// "not yet fetched" from the backend's point of view.
	tree := FromLockedNodes(nodes[:2], bundle)

	child, ok := tree.NodeByID(childID)
	require.True(t, ok)
	assert.True(t, child.Dirty)
	assert.Empty(t, child.Entry.Dir.Children)
}

func TestAddOrUpdateSubtree_ClearsDirty(t *testing.T) {
	nodes, rootSeed, rootID, childID, grandchildID := buildTree(t)
	bundle := model.Seeds{rootID: rootSeed}
	tree := FromLockedNodes(nodes[:2], bundle)

	child, _ := tree.NodeByID(childID)
	require.True(t, child.Dirty)

	require.NoError(t, tree.AddOrUpdateSubtree(nodes[2:], childID))

	child, _ = tree.NodeByID(childID)
	assert.False(t, child.Dirty)
	require.Len(t, child.Entry.Dir.Children, 1)
	assert.Equal(t, grandchildID, child.Entry.Dir.Children[0].ID)
}

func TestAddOrUpdateSubtree_UnknownParentFails(t *testing.T) {
	tree := New()
	err := tree.AddOrUpdateSubtree(nil, model.GenerateUid())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIngest_CorruptChildSeedSkippedNotFatal(t *testing.T) {
	nodes, rootSeed, rootID, childID, _ := buildTree(t)

	// corrupt the root's pointer to the child: the rest of the tree
	// must still materialize.
	nodes[0].EncryptedChildSeeds[childID] = "not-valid-base64!!"

	bundle := model.Seeds{rootID: rootSeed}
	tree := FromLockedNodes(nodes, bundle)

	root, ok := tree.NodeByID(rootID)
	require.True(t, ok)
	assert.Empty(t, root.Entry.Dir.Children)

	_, ok = tree.NodeByID(childID)
	assert.False(t, ok)
}

func TestShareNode(t *testing.T) {
	nodes, rootSeed, rootID, _, _ := buildTree(t)
	bundle := model.Seeds{rootID: rootSeed}
	tree := FromLockedNodes(nodes, bundle)

	seed, err := tree.ShareNode(rootID)
	require.NoError(t, err)
	assert.Equal(t, rootSeed, seed)

	_, err = tree.ShareNode(model.GenerateUid())
	assert.ErrorIs(t, err, model.ErrNotFound)
}
