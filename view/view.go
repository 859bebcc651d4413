/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

// Package view implements the shared time-indexed snapshot of the routing
// table: interned peer signatures, content-addressed AS paths, and the
// triply-indexed (prefix x peer x path) container with its iteration
// protocol and wire codecs.
package view

import (
	"fmt"
	"net/netip"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/core"
)

// PfxPeerInfo is the state of one (prefix, peer) edge.
type PfxPeerInfo struct {
	pathID PathID
	active bool

	// User is opaque per-edge consumer state. The routing-table engine hangs
	// its per-(collector,peer,pfx) record here.
	User interface{}
}

// PathID returns the path currently associated with the edge.
func (i *PfxPeerInfo) PathID() PathID {
	return i.pathID
}

// Active reports whether the edge is currently advertised.
func (i *PfxPeerInfo) Active() bool {
	return i.active
}

// PeerInfo is the per-peer state of a view.
type PeerInfo struct {
	id       PeerID
	active   bool
	pfxCntV4 uint32
	pfxCntV6 uint32

	// User is opaque per-peer consumer state.
	User interface{}
}

// ID returns the peer's signature ID.
func (p *PeerInfo) ID() PeerID {
	return p.id
}

// Active reports whether the peer has at least one active pfx-peer.
func (p *PeerInfo) Active() bool {
	return p.active
}

// PfxCount returns the number of active prefixes of the given family
// announced by this peer.
func (p *PeerInfo) PfxCount(v6 bool) uint32 {
	if v6 {
		return p.pfxCntV6
	}
	return p.pfxCntV4
}

// PfxEntry is the per-prefix cell of a view: the set of peers with a route
// for the prefix, plus the prefix-level active flag.
type PfxEntry struct {
	active bool
	peers  map[PeerID]*PfxPeerInfo
}

// Active reports whether at least one pfx-peer of the prefix is active.
func (e *PfxEntry) Active() bool {
	return e.active
}

// PeerCount returns the number of pfx-peers (active or not) on the prefix.
func (e *PfxEntry) PeerCount() int {
	return len(e.peers)
}

// Info returns the pfx-peer info for the given peer, or nil.
func (e *PfxEntry) Info(peer PeerID) *PfxPeerInfo {
	return e.peers[peer]
}

// View is the triply-indexed routing-table snapshot. It exclusively owns its
// peer/prefix maps; the signature and path stores are shared with whoever
// created them (typically the routing-table engine).
//
// A view is single-threaded: one owner task mutates and queries it. Detached
// copies (Dup) may be handed to workers, which treat the shared stores as
// immutable for their lifetime.
type View struct {
	time  uint32
	peers map[PeerID]*PeerInfo
	pfxs  map[netip.Prefix]*PfxEntry

	paths *PathStore
	sigs  *SignatureStore

	// gen invalidates outstanding iterators on mutation.
	gen uint64

	// poisoned is set when an internal invariant breach is detected; all
	// further mutations fail fast with core.ErrInternal.
	poisoned bool
}

// New creates an empty view. Nil stores are created fresh; passing existing
// stores shares them.
func New(sigs *SignatureStore, paths *PathStore) *View {
	if sigs == nil {
		sigs = NewSignatureStore()
	}
	if paths == nil {
		paths = NewPathStore()
	}
	return &View{
		peers: make(map[PeerID]*PeerInfo),
		pfxs:  make(map[netip.Prefix]*PfxEntry),
		paths: paths,
		sigs:  sigs,
	}
}

// Sigs returns the shared signature store.
func (v *View) Sigs() *SignatureStore {
	return v.sigs
}

// Paths returns the shared path store.
func (v *View) Paths() *PathStore {
	return v.paths
}

// Time returns the representative timestamp of the snapshot (seconds).
func (v *View) Time() uint32 {
	return v.time
}

// SetTime sets the representative timestamp of the snapshot.
func (v *View) SetTime(ts uint32) {
	v.time = ts
}

// PeerCount returns the number of peers (active or not) in the view.
func (v *View) PeerCount() int {
	return len(v.peers)
}

// PfxCount returns the number of prefixes (active or not) in the view.
func (v *View) PfxCount() int {
	return len(v.pfxs)
}

// ActivePfxCount returns the number of prefixes of the given family with at
// least one active pfx-peer.
func (v *View) ActivePfxCount(v6 bool) int {
	cnt := 0
	for pfx, entry := range v.pfxs {
		if entry.active && bgp.PrefixIsV4(pfx) != v6 {
			cnt++
		}
	}
	return cnt
}

// Peer returns the peer info for id, or nil.
func (v *View) Peer(id PeerID) *PeerInfo {
	return v.peers[id]
}

// Pfx returns the prefix cell for pfx, or nil.
func (v *View) Pfx(pfx netip.Prefix) *PfxEntry {
	return v.pfxs[pfx]
}

// PfxPeer returns the pfx-peer info for (pfx, peer), or nil.
func (v *View) PfxPeer(pfx netip.Prefix, peer PeerID) *PfxPeerInfo {
	entry := v.pfxs[pfx]
	if entry == nil {
		return nil
	}
	return entry.peers[peer]
}

func (v *View) mutated() {
	v.gen++
}

func (v *View) checkUsable() error {
	if v.poisoned {
		return fmt.Errorf("view is poisoned: %w", core.ErrInternal)
	}
	return nil
}

// AddPeer interns the signature and creates an inactive PeerInfo if the peer
// is not yet part of the view.
func (v *View) AddPeer(collector string, ip netip.Addr, asn uint32) (PeerID, error) {
	if err := v.checkUsable(); err != nil {
		return 0, err
	}
	id, err := v.sigs.Intern(collector, ip, asn)
	if err != nil {
		return 0, err
	}
	if _, ok := v.peers[id]; !ok {
		v.peers[id] = &PeerInfo{id: id}
		v.mutated()
	}
	return id, nil
}

// addPeerByID creates an inactive PeerInfo for an already-interned signature.
// Used by the codecs, which intern against the local store themselves.
func (v *View) addPeerByID(id PeerID) (*PeerInfo, error) {
	if _, err := v.sigs.Lookup(id); err != nil {
		return nil, err
	}
	info, ok := v.peers[id]
	if !ok {
		info = &PeerInfo{id: id}
		v.peers[id] = info
		v.mutated()
	}
	return info, nil
}

// ActivatePeer marks the peer active, reporting whether the state changed.
func (v *View) ActivatePeer(id PeerID) (bool, error) {
	if err := v.checkUsable(); err != nil {
		return false, err
	}
	info, ok := v.peers[id]
	if !ok {
		return false, fmt.Errorf("peer %d: %w", id, core.ErrNotFound)
	}
	if info.active {
		return false, nil
	}
	info.active = true
	v.mutated()
	return true, nil
}

// DeactivatePeer marks the peer inactive and deactivates all of its
// pfx-peers, reporting whether the state changed.
func (v *View) DeactivatePeer(id PeerID) (bool, error) {
	if err := v.checkUsable(); err != nil {
		return false, err
	}
	info, ok := v.peers[id]
	if !ok {
		return false, fmt.Errorf("peer %d: %w", id, core.ErrNotFound)
	}
	changed := false
	for pfx, entry := range v.pfxs {
		ppInfo, ok := entry.peers[id]
		if !ok || !ppInfo.active {
			continue
		}
		if _, err := v.DeactivatePfxPeer(pfx, id); err != nil {
			return changed, err
		}
		changed = true
	}
	if info.active {
		info.active = false
		changed = true
	}
	if changed {
		v.mutated()
	}
	return changed, nil
}

// RemovePeer removes the peer and all of its pfx-peers. Prefixes left with
// no peers stay in the view as inactive cells until GC.
func (v *View) RemovePeer(id PeerID) error {
	if err := v.checkUsable(); err != nil {
		return err
	}
	if _, ok := v.peers[id]; !ok {
		return fmt.Errorf("peer %d: %w", id, core.ErrNotFound)
	}
	for pfx, entry := range v.pfxs {
		ppInfo, ok := entry.peers[id]
		if !ok {
			continue
		}
		if ppInfo.active {
			if _, err := v.DeactivatePfxPeer(pfx, id); err != nil {
				return err
			}
		}
		delete(entry.peers, id)
	}
	delete(v.peers, id)
	v.mutated()
	return nil
}

// AddPfxPeer inserts or updates the (pfx, peer) edge with the given path. A
// freshly inserted edge starts inactive; an existing edge keeps its state
// and only the path is updated.
func (v *View) AddPfxPeer(pfx netip.Prefix, peer PeerID, path PathID) error {
	if err := v.checkUsable(); err != nil {
		return err
	}
	if !pfx.IsValid() {
		return fmt.Errorf("prefix %v: %w", pfx, core.ErrInvalidArg)
	}
	pfx = bgp.CanonicalPrefix(pfx)
	if _, ok := v.peers[peer]; !ok {
		return fmt.Errorf("peer %d: %w", peer, core.ErrNotFound)
	}
	if _, err := v.paths.Get(path); err != nil {
		return err
	}
	entry, ok := v.pfxs[pfx]
	if !ok {
		entry = &PfxEntry{peers: make(map[PeerID]*PfxPeerInfo)}
		v.pfxs[pfx] = entry
	}
	if info, ok := entry.peers[peer]; ok {
		info.pathID = path
	} else {
		entry.peers[peer] = &PfxPeerInfo{pathID: path}
	}
	v.mutated()
	return nil
}

// ActivatePfxPeer marks the (pfx, peer) edge active and propagates the
// prefix and peer active flags and counters, reporting whether the edge
// state changed.
func (v *View) ActivatePfxPeer(pfx netip.Prefix, peer PeerID) (bool, error) {
	if err := v.checkUsable(); err != nil {
		return false, err
	}
	pfx = bgp.CanonicalPrefix(pfx)
	entry, info, peerInfo, err := v.lookupEdge(pfx, peer)
	if err != nil {
		return false, err
	}
	if info.active {
		return false, nil
	}
	info.active = true
	entry.active = true
	if bgp.PrefixIsV4(pfx) {
		peerInfo.pfxCntV4++
	} else {
		peerInfo.pfxCntV6++
	}
	peerInfo.active = true
	v.mutated()
	return true, nil
}

// DeactivatePfxPeer marks the (pfx, peer) edge inactive, recomputes the
// prefix active flag, and drops the peer to inactive when its last active
// prefix goes away. Reports whether the edge state changed.
func (v *View) DeactivatePfxPeer(pfx netip.Prefix, peer PeerID) (bool, error) {
	if err := v.checkUsable(); err != nil {
		return false, err
	}
	pfx = bgp.CanonicalPrefix(pfx)
	entry, info, peerInfo, err := v.lookupEdge(pfx, peer)
	if err != nil {
		return false, err
	}
	if !info.active {
		return false, nil
	}
	info.active = false
	entry.active = false
	for _, other := range entry.peers {
		if other.active {
			entry.active = true
			break
		}
	}
	if bgp.PrefixIsV4(pfx) {
		if peerInfo.pfxCntV4 == 0 {
			v.poisoned = true
			return false, fmt.Errorf("peer %d v4 count underflow: %w", peer, core.ErrInternal)
		}
		peerInfo.pfxCntV4--
	} else {
		if peerInfo.pfxCntV6 == 0 {
			v.poisoned = true
			return false, fmt.Errorf("peer %d v6 count underflow: %w", peer, core.ErrInternal)
		}
		peerInfo.pfxCntV6--
	}
	if peerInfo.pfxCntV4 == 0 && peerInfo.pfxCntV6 == 0 {
		peerInfo.active = false
	}
	v.mutated()
	return true, nil
}

// RemovePfxPeer removes the (pfx, peer) edge. The prefix cell stays in the
// view even when its last peer goes away.
func (v *View) RemovePfxPeer(pfx netip.Prefix, peer PeerID) error {
	if err := v.checkUsable(); err != nil {
		return err
	}
	pfx = bgp.CanonicalPrefix(pfx)
	entry, info, _, err := v.lookupEdge(pfx, peer)
	if err != nil {
		return err
	}
	if info.active {
		if _, err := v.DeactivatePfxPeer(pfx, peer); err != nil {
			return err
		}
	}
	delete(entry.peers, peer)
	v.mutated()
	return nil
}

func (v *View) lookupEdge(pfx netip.Prefix, peer PeerID) (*PfxEntry, *PfxPeerInfo, *PeerInfo, error) {
	entry, ok := v.pfxs[pfx]
	if !ok {
		return nil, nil, nil, fmt.Errorf("prefix %v: %w", pfx, core.ErrNotFound)
	}
	info, ok := entry.peers[peer]
	if !ok {
		return nil, nil, nil, fmt.Errorf("pfx-peer (%v, %d): %w", pfx, peer, core.ErrNotFound)
	}
	peerInfo, ok := v.peers[peer]
	if !ok {
		v.poisoned = true
		return nil, nil, nil, fmt.Errorf("pfx-peer (%v, %d) without peer: %w", pfx, peer, core.ErrInternal)
	}
	return entry, info, peerInfo, nil
}

// GC drops prefixes with no remaining peers and peers with no remaining
// pfx-peers. Only inactive cells qualify.
func (v *View) GC() {
	referenced := make(map[PeerID]struct{}, len(v.peers))
	for pfx, entry := range v.pfxs {
		if len(entry.peers) == 0 && !entry.active {
			delete(v.pfxs, pfx)
			continue
		}
		for id := range entry.peers {
			referenced[id] = struct{}{}
		}
	}
	for id, info := range v.peers {
		if _, ok := referenced[id]; !ok && !info.active {
			delete(v.peers, id)
		}
	}
	v.mutated()
}

// Clear empties the peer and prefix maps. The shared stores are retained.
func (v *View) Clear() {
	v.peers = make(map[PeerID]*PeerInfo)
	v.pfxs = make(map[netip.Prefix]*PfxEntry)
	v.time = 0
	v.mutated()
}

// Dup returns a structural deep copy sharing the same signature and path
// stores. User fields are copied by reference.
func (v *View) Dup() *View {
	dst := New(v.sigs, v.paths)
	dst.copyContents(v)
	return dst
}

// CopyFrom replaces the contents of v with a deep copy of src. Both views
// must share the same stores.
func (v *View) CopyFrom(src *View) error {
	if v.sigs != src.sigs || v.paths != src.paths {
		return fmt.Errorf("copy between views with different stores: %w", core.ErrInvalidArg)
	}
	v.Clear()
	v.copyContents(src)
	return nil
}

func (v *View) copyContents(src *View) {
	v.time = src.time
	for id, info := range src.peers {
		cp := *info
		v.peers[id] = &cp
	}
	for pfx, entry := range src.pfxs {
		cpEntry := &PfxEntry{active: entry.active, peers: make(map[PeerID]*PfxPeerInfo, len(entry.peers))}
		for id, info := range entry.peers {
			cpInfo := *info
			cpEntry.peers[id] = &cpInfo
		}
		v.pfxs[pfx] = cpEntry
	}
	v.mutated()
}
