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

func TestDescribeFile_SniffsExtensionWhenAbsent(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n" + "rest of a fake png payload")
	ext, storageID := DescribeFile(png, "")
	assert.Equal(t, ".png", ext)
	assert.NotEmpty(t, storageID)
}

func TestDescribeFile_ExplicitExtensionWins(t *testing.T) {
	ext, _ := DescribeFile([]byte("\x89PNG\r\n\x1a\n"), ".bin")
	assert.Equal(t, ".bin", ext)
}

func TestDescribeFile_DistinctStorageIDsPerCall(t *testing.T) {
	_, id1 := DescribeFile([]byte("a"), ".txt")
	_, id2 := DescribeFile([]byte("a"), ".txt")
	assert.NotEqual(t, id1, id2)
}

func TestNewFileNode_RoundTripsThroughFromLockedNodes(t *testing.T) {
	seed := model.GenerateSeed()
	fileID := model.GenerateUid()
	parentID := model.GenerateUid()
	content := []byte("hello, sealed file")

	node, err := NewFileNode(fileID, parentID, seed, "notes.txt", content, "")
	require.NoError(t, err)

	treeFS := FromLockedNodes([]model.LockedNode{node}, model.Seeds{fileID: seed})
	decrypted, ok := treeFS.NodeByID(fileID)
	require.True(t, ok)
	assert.Equal(t, "notes.txt", decrypted.Name)
	require.NotNil(t, decrypted.Entry.File)
	assert.Equal(t, ".txt", decrypted.Entry.File.Ext)
	assert.Equal(t, uint64(len(content)), decrypted.Entry.File.Size)
	assert.NotEmpty(t, decrypted.Entry.File.StorageID)
}
