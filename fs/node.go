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

package fs

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/gabriel-vasile/mimetype"

	"github.com/piprate/metalocker-seedvault/model"
)

// storageIDSize is arbitrary but generous enough that collisions across a
// single tree are not a practical concern.
const storageIDSize = 16

// newStorageID mints an opaque reference to wherever a file's encrypted
// chunks actually live. It is base58, not the base64 every HKDF-derived
// Uid uses, matching the teacher's own convention of reserving base58 for
// free-form ids (locker public keys, DIDs) and base64 for fixed-width
// binary ones.
func newStorageID() string {
	var b [storageIDSize]byte
	_, _ = rand.Read(b[:])
	return base58.Encode(b[:])
}

// DescribeFile fills in the metadata a file node needs before it can be
// sealed: an extension (sniffed from content when the caller didn't
// already know one) and a fresh StorageID for whatever blob store will
// hold the encrypted chunks. Actually storing or fetching those chunks is
// outside this layer's concern; this only mints the reference.
func DescribeFile(content []byte, explicitExt string) (ext string, storageID string) {
	ext = explicitExt
	if ext == "" && len(content) > 0 {
		ext = mimetype.Detect(content).Extension()
	}
	return ext, newStorageID()
}

// NewFileNode builds a sealed LockedNode for a file, given its parent
// directory's id and the file's own seed. Wrapping that seed under the
// parent directory's seed is left to the caller. Name, ext, size and the
// minted StorageID are sealed into EncryptedMeta the same way a
// directory's name is.
func NewFileNode(id, parentID model.Uid, seed model.Seed, name string, content []byte, explicitExt string) (model.LockedNode, error) {
	ext, storageID := DescribeFile(content, explicitExt)

	meta, err := model.EncryptMeta(seed, model.NodeMeta{
		Name:      name,
		Ext:       ext,
		Size:      uint64(len(content)),
		StorageID: storageID,
	})
	if err != nil {
		return model.LockedNode{}, err
	}

	return model.LockedNode{
		ID:            id,
		ParentID:      parentID,
		IsDir:         false,
		EncryptedMeta: meta,
	}, nil
}
