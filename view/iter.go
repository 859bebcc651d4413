/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view

import (
	"net/netip"

	"golang.org/x/exp/slices"

	"github.com/sitedata/bgpview/bgp"
)

// StateFilter selects pfx/peer/pfx-peer states during iteration.
type StateFilter uint8

// State filters.
const (
	FilterActive   StateFilter = 1 << 0
	FilterInactive StateFilter = 1 << 1
	FilterAllState StateFilter = FilterActive | FilterInactive
)

func (f StateFilter) match(active bool) bool {
	if active {
		return f&FilterActive != 0
	}
	return f&FilterInactive != 0
}

// FamilyFilter selects address families during prefix iteration.
type FamilyFilter uint8

// Family filters.
const (
	FamilyV4   FamilyFilter = 1 << 0
	FamilyV6   FamilyFilter = 1 << 1
	FamilyBoth FamilyFilter = FamilyV4 | FamilyV6
)

func (f FamilyFilter) match(pfx netip.Prefix) bool {
	if bgp.PrefixIsV4(pfx) {
		return f&FamilyV4 != 0
	}
	return f&FamilyV6 != 0
}

// Iterator is a cursor over a view with three independent sub-cursors: peer,
// pfx, and pfx-peer. The pfx-peer cursor is only valid while the pfx cursor
// is positioned on a prefix; advancing the pfx cursor resets it.
//
// Any mutation of the view invalidates the iterator: all cursor methods
// return false / zero values and Valid reports false. Cursor order is sorted
// (peers by ID, prefixes by address), so iteration is deterministic and
// stable between mutations.
type Iterator struct {
	v   *View
	gen uint64

	peerIDs    []PeerID
	peerPos    int
	peerFilter StateFilter

	pfxKeys   []netip.Prefix
	pfxPos    int
	pfxFilter StateFilter
	pfxFamily FamilyFilter

	ppIDs    []PeerID
	ppPos    int
	ppFilter StateFilter
	ppValid  bool
}

// Iterate returns a fresh iterator over the view's current state.
func (v *View) Iterate() *Iterator {
	return &Iterator{v: v, gen: v.gen, peerPos: -1, pfxPos: -1}
}

// Valid reports whether the iterator still matches the view state it was
// positioned against.
func (it *Iterator) Valid() bool {
	return it.v != nil && it.gen == it.v.gen
}

// FirstPeer positions the peer cursor on the first peer matching the filter,
// reporting whether one exists.
func (it *Iterator) FirstPeer(filter StateFilter) bool {
	if !it.Valid() {
		return false
	}
	it.peerFilter = filter
	it.peerIDs = make([]PeerID, 0, len(it.v.peers))
	for id, info := range it.v.peers {
		if filter.match(info.active) {
			it.peerIDs = append(it.peerIDs, id)
		}
	}
	slices.Sort(it.peerIDs)
	it.peerPos = 0
	return it.peerPos < len(it.peerIDs)
}

// HasMorePeer reports whether the peer cursor is on a peer.
func (it *Iterator) HasMorePeer() bool {
	return it.Valid() && it.peerPos >= 0 && it.peerPos < len(it.peerIDs)
}

// NextPeer advances the peer cursor, reporting whether it still is on a peer.
func (it *Iterator) NextPeer() bool {
	if !it.HasMorePeer() {
		return false
	}
	it.peerPos++
	return it.peerPos < len(it.peerIDs)
}

// PeerID returns the peer under the cursor, or 0.
func (it *Iterator) PeerID() PeerID {
	if !it.HasMorePeer() {
		return 0
	}
	return it.peerIDs[it.peerPos]
}

// PeerInfo returns the info of the peer under the cursor, or nil.
func (it *Iterator) PeerInfo() *PeerInfo {
	if !it.HasMorePeer() {
		return nil
	}
	return it.v.peers[it.peerIDs[it.peerPos]]
}

// PeerSig returns the signature of the peer under the cursor, or nil.
func (it *Iterator) PeerSig() *PeerSignature {
	if !it.HasMorePeer() {
		return nil
	}
	sig, err := it.v.sigs.Lookup(it.peerIDs[it.peerPos])
	if err != nil {
		return nil
	}
	return sig
}

// FirstPfx positions the pfx cursor on the first prefix matching the state
// and family filters, reporting whether one exists. The pfx-peer cursor is
// reset.
func (it *Iterator) FirstPfx(filter StateFilter, family FamilyFilter) bool {
	if !it.Valid() {
		return false
	}
	it.pfxFilter = filter
	it.pfxFamily = family
	it.pfxKeys = make([]netip.Prefix, 0, len(it.v.pfxs))
	for pfx, entry := range it.v.pfxs {
		if filter.match(entry.active) && family.match(pfx) {
			it.pfxKeys = append(it.pfxKeys, pfx)
		}
	}
	slices.SortFunc(it.pfxKeys, func(a, b netip.Prefix) bool {
		if c := a.Addr().Compare(b.Addr()); c != 0 {
			return c < 0
		}
		return a.Bits() < b.Bits()
	})
	it.pfxPos = 0
	it.ppValid = false
	return it.pfxPos < len(it.pfxKeys)
}

// HasMorePfx reports whether the pfx cursor is on a prefix.
func (it *Iterator) HasMorePfx() bool {
	return it.Valid() && it.pfxPos >= 0 && it.pfxPos < len(it.pfxKeys)
}

// NextPfx advances the pfx cursor, invalidating the pfx-peer cursor.
func (it *Iterator) NextPfx() bool {
	if !it.HasMorePfx() {
		return false
	}
	it.pfxPos++
	it.ppValid = false
	return it.pfxPos < len(it.pfxKeys)
}

// Pfx returns the prefix under the cursor, or the zero prefix.
func (it *Iterator) Pfx() netip.Prefix {
	if !it.HasMorePfx() {
		return netip.Prefix{}
	}
	return it.pfxKeys[it.pfxPos]
}

// PfxEntry returns the cell of the prefix under the cursor, or nil.
func (it *Iterator) PfxEntry() *PfxEntry {
	if !it.HasMorePfx() {
		return nil
	}
	return it.v.pfxs[it.pfxKeys[it.pfxPos]]
}

// FirstPfxPeer positions the pfx-peer cursor on the first peer of the
// current prefix matching the filter. Only valid while the pfx cursor is on
// a prefix.
func (it *Iterator) FirstPfxPeer(filter StateFilter) bool {
	if !it.HasMorePfx() {
		return false
	}
	entry := it.v.pfxs[it.pfxKeys[it.pfxPos]]
	it.ppFilter = filter
	it.ppIDs = make([]PeerID, 0, len(entry.peers))
	for id, info := range entry.peers {
		if filter.match(info.active) {
			it.ppIDs = append(it.ppIDs, id)
		}
	}
	slices.Sort(it.ppIDs)
	it.ppPos = 0
	it.ppValid = true
	return it.ppPos < len(it.ppIDs)
}

// HasMorePfxPeer reports whether the pfx-peer cursor is on an edge.
func (it *Iterator) HasMorePfxPeer() bool {
	return it.HasMorePfx() && it.ppValid && it.ppPos < len(it.ppIDs)
}

// NextPfxPeer advances the pfx-peer cursor.
func (it *Iterator) NextPfxPeer() bool {
	if !it.HasMorePfxPeer() {
		return false
	}
	it.ppPos++
	return it.ppPos < len(it.ppIDs)
}

// PfxPeerID returns the peer of the edge under the pfx-peer cursor, or 0.
func (it *Iterator) PfxPeerID() PeerID {
	if !it.HasMorePfxPeer() {
		return 0
	}
	return it.ppIDs[it.ppPos]
}

// PfxPeerInfo returns the info of the edge under the pfx-peer cursor, or nil.
func (it *Iterator) PfxPeerInfo() *PfxPeerInfo {
	if !it.HasMorePfxPeer() {
		return nil
	}
	entry := it.v.pfxs[it.pfxKeys[it.pfxPos]]
	return entry.peers[it.ppIDs[it.ppPos]]
}
