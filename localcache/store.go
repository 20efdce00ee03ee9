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

// Package localcache is an optional on-disk cache of LockedNode subtrees
// a client has already fetched, keyed by parent id — so that restarting
// a session doesn't force a full Protocol.LsCurMut network refresh at
// every level just to redraw a tree the client already has encrypted
// copies of. Everything it stores is still sealed: caching it changes
// nothing about who can read it.
package localcache

import (
	"context"

	"go.etcd.io/bbolt"

	"github.com/piprate/metalocker-seedvault/model"
	"github.com/piprate/metalocker-seedvault/utils/jsonw"
)

var subtreeBucket = []byte("subtrees")

// Store wraps a bbolt database file with the narrow get/put vocabulary
// Protocol.Network needs; nothing else reaches into it directly.
type Store struct {
	db *bbolt.DB
}

// Open creates or opens a cache database at path, creating subtreeBucket
// if this is a fresh file.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(subtreeBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PutSubtree records the LockedNode children most recently fetched for
// parentID, overwriting whatever was cached before.
func (s *Store) PutSubtree(parentID model.Uid, nodes []model.LockedNode) error {
	raw, err := jsonw.Marshal(nodes)
	if err != nil {
		return model.NewError(model.CodeBadJSON, err.Error())
	}
	key := parentID.Bytes()
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(subtreeBucket).Put(key[:], raw)
	})
}

// GetSubtree returns the cached children for parentID, or ok=false if
// nothing has been cached for it yet.
func (s *Store) GetSubtree(parentID model.Uid) (nodes []model.LockedNode, ok bool, err error) {
	key := parentID.Bytes()
	err = s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(subtreeBucket).Get(key[:])
		if raw == nil {
			return nil
		}
		ok = true
		return jsonw.Unmarshal(raw, &nodes)
	})
	if err != nil {
		return nil, false, model.NewError(model.CodeBadJSON, err.Error())
	}
	return nodes, ok, nil
}

// CachingNetwork wraps another Network implementation, serving a cached
// subtree when one is on disk and otherwise falling through to upstream
// and caching its reply — a drop-in Protocol.Network that trades
// freshness for not re-fetching a subtree the caller already has.
type CachingNetwork struct {
	Store    *Store
	Upstream interface {
		FetchSubtree(ctx context.Context, id model.Uid) ([]model.LockedNode, error)
	}
}

func (c *CachingNetwork) FetchSubtree(ctx context.Context, id model.Uid) ([]model.LockedNode, error) {
	if nodes, ok, err := c.Store.GetSubtree(id); err == nil && ok {
		return nodes, nil
	}

	nodes, err := c.Upstream.FetchSubtree(ctx, id)
	if err != nil {
		return nil, err
	}

	_ = c.Store.PutSubtree(id, nodes)
	return nodes, nil
}
