/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/core"
)

// PathID identifies a path in a PathStore. Index 0 is reserved, so the zero
// PathID is invalid. Core paths are fully canonical; non-core paths are
// synthesized variants (e.g. per-origin) stored under their own IDs.
type PathID struct {
	Index uint32
	Core  bool
}

// Valid reports whether the ID refers to a store slot.
func (id PathID) Valid() bool {
	return id.Index != 0
}

// StorePath is a stored AS path: its canonical encoding, the core flag, and
// a lazily-decoded segment form.
type StorePath struct {
	encoding []byte
	core     bool
	decoded  *bgp.Path
}

// Encoding returns the canonical byte encoding of the path. Callers must not
// modify the returned slice.
func (p *StorePath) Encoding() []byte {
	return p.encoding
}

// Core reports whether this is a core path.
func (p *StorePath) Core() bool {
	return p.core
}

// Path returns the decoded segment form, decoding on first use.
func (p *StorePath) Path() (bgp.Path, error) {
	if p.decoded == nil {
		path, err := bgp.DecodePath(p.encoding)
		if err != nil {
			return bgp.Path{}, err
		}
		p.decoded = &path
	}
	return *p.decoded, nil
}

// PathStore content-addresses AS path encodings. Equal (encoding, core)
// pairs map to equal PathIDs; the store is append-only.
type PathStore struct {
	byHash map[uint64][]uint32 // xxhash(encoding) -> candidate indices
	paths  []StorePath         // index 0 unused
}

// NewPathStore creates an empty path store.
func NewPathStore() *PathStore {
	return &PathStore{
		byHash: make(map[uint64][]uint32),
		paths:  make([]StorePath, 1),
	}
}

// Insert interns the given path encoding and returns its ID. Idempotent per
// (encoding, core).
func (s *PathStore) Insert(encoding []byte, isCore bool) (PathID, error) {
	h := xxhash.Sum64(encoding)
	for _, idx := range s.byHash[h] {
		cand := &s.paths[idx]
		if cand.core == isCore && bytes.Equal(cand.encoding, encoding) {
			return PathID{Index: idx, Core: isCore}, nil
		}
	}
	idx := uint32(len(s.paths))
	owned := make([]byte, len(encoding))
	copy(owned, encoding)
	s.paths = append(s.paths, StorePath{encoding: owned, core: isCore})
	s.byHash[h] = append(s.byHash[h], idx)
	return PathID{Index: idx, Core: isCore}, nil
}

// InsertPath interns the canonical encoding of path.
func (s *PathStore) InsertPath(path bgp.Path, isCore bool) (PathID, error) {
	encoding, err := path.Encode()
	if err != nil {
		return PathID{}, err
	}
	return s.Insert(encoding, isCore)
}

// Get returns the stored path for id, or core.ErrNotFound.
func (s *PathStore) Get(id PathID) (*StorePath, error) {
	if id.Index == 0 || int(id.Index) >= len(s.paths) {
		return nil, fmt.Errorf("path ID %d: %w", id.Index, core.ErrNotFound)
	}
	p := &s.paths[id.Index]
	if p.core != id.Core {
		return nil, fmt.Errorf("path ID %d core mismatch: %w", id.Index, core.ErrNotFound)
	}
	return p, nil
}

// Len returns the number of stored paths.
func (s *PathStore) Len() int {
	return len(s.paths) - 1
}

// Range calls cb for every stored path until cb returns false.
func (s *PathStore) Range(cb func(PathID, *StorePath) bool) {
	for i := 1; i < len(s.paths); i++ {
		p := &s.paths[i]
		if !cb(PathID{Index: uint32(i), Core: p.core}, p) {
			return
		}
	}
}
