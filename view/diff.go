/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"

	"golang.org/x/exp/slices"

	"github.com/sitedata/bgpview/core"
)

// MagicDiff starts a diff frame; it takes the place of MagicStart so
// receivers can tell sync and diff frames apart on the same stream.
const MagicDiff uint32 = 0x44494646 // "DIFF"

// Diff record classes inside the prefix-diff section.
const (
	diffRecordAdd    byte = 'A'
	diffRecordRemove byte = 'R'
	diffRecordChange byte = 'C'
)

// DiffStats describes a computed diff between a parent and a current view.
type DiffStats struct {
	CommonPfxsCnt     uint32
	AddedPfxsCnt      uint32
	RemovedPfxsCnt    uint32
	ChangedPfxsCnt    uint32
	AddedPfxPeerCnt   uint32
	ChangedPfxPeerCnt uint32
	RemovedPfxPeerCnt uint32
	SyncPfxCnt        uint32
	PfxCnt            uint32
}

// activeEdges returns the active pfx-peer edges of entry.
func (e *PfxEntry) activeEdges() map[PeerID]PathID {
	edges := make(map[PeerID]PathID, len(e.peers))
	for id, info := range e.peers {
		if info.active {
			edges[id] = info.pathID
		}
	}
	return edges
}

type pfxDiff struct {
	pfx     netip.Prefix
	record  byte
	added   map[PeerID]PathID // record A: the whole edge set; record C: new edges
	changed map[PeerID]PathID // record C: same peer, new path
	removed []PeerID          // record C: edges gone
}

// computeDiff classifies every active prefix of parent and cur. Both views
// must share the same stores, so PathIDs compare directly.
func computeDiff(parent, cur *View) ([]pfxDiff, *DiffStats, error) {
	if parent.sigs != cur.sigs || parent.paths != cur.paths {
		return nil, nil, fmt.Errorf("diff between views with different stores: %w", core.ErrInvalidArg)
	}
	stats := &DiffStats{}
	var diffs []pfxDiff

	for pfx, entry := range cur.pfxs {
		if !entry.active {
			continue
		}
		stats.PfxCnt++
		curEdges := entry.activeEdges()
		parentEntry := parent.pfxs[pfx]
		if parentEntry == nil || !parentEntry.active {
			stats.AddedPfxsCnt++
			stats.AddedPfxPeerCnt += uint32(len(curEdges))
			diffs = append(diffs, pfxDiff{pfx: pfx, record: diffRecordAdd, added: curEdges})
			continue
		}
		parentEdges := parentEntry.activeEdges()
		added := make(map[PeerID]PathID)
		changed := make(map[PeerID]PathID)
		var removed []PeerID
		for id, path := range curEdges {
			if oldPath, ok := parentEdges[id]; !ok {
				added[id] = path
			} else if oldPath != path {
				changed[id] = path
			}
		}
		for id := range parentEdges {
			if _, ok := curEdges[id]; !ok {
				removed = append(removed, id)
			}
		}
		if len(added) == 0 && len(changed) == 0 && len(removed) == 0 {
			stats.CommonPfxsCnt++
			continue
		}
		slices.Sort(removed)
		stats.ChangedPfxsCnt++
		stats.AddedPfxPeerCnt += uint32(len(added))
		stats.ChangedPfxPeerCnt += uint32(len(changed))
		stats.RemovedPfxPeerCnt += uint32(len(removed))
		diffs = append(diffs, pfxDiff{pfx: pfx, record: diffRecordChange, added: added, changed: changed, removed: removed})
	}

	for pfx, entry := range parent.pfxs {
		if !entry.active {
			continue
		}
		if curEntry := cur.pfxs[pfx]; curEntry == nil || !curEntry.active {
			stats.RemovedPfxsCnt++
			stats.RemovedPfxPeerCnt += uint32(len(entry.activeEdges()))
			diffs = append(diffs, pfxDiff{pfx: pfx, record: diffRecordRemove})
		}
	}

	slices.SortFunc(diffs, func(a, b pfxDiff) bool {
		if c := a.pfx.Addr().Compare(b.pfx.Addr()); c != 0 {
			return c < 0
		}
		return a.pfx.Bits() < b.pfx.Bits()
	})
	return diffs, stats, nil
}

// EncodeDiff writes a parent-relative diff frame for cur to w. The frame is
// self-contained: it carries the full peer and path remap sections, so a
// receiver needs no out-of-band ID agreement. Returns the diff statistics.
func EncodeDiff(w io.Writer, parent, cur *View) (*DiffStats, error) {
	diffs, stats, err := computeDiff(parent, cur)
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriter(w)
	writeMagic(bw, MagicDiff)
	writeU32(bw, cur.time)
	writeU32(bw, parent.time)

	// Peer and path remap sections. Unlike a sync frame the peer section
	// carries every peer, so removed-edge records can always be remapped.
	peersSent := uint16(0)
	it := cur.Iterate()
	for ok := it.FirstPeer(FilterAllState); ok; ok = it.NextPeer() {
		id := it.PeerID()
		sig, err := cur.sigs.Lookup(id)
		if err != nil {
			return nil, err
		}
		writeU16(bw, uint16(id))
		bw.WriteByte(byte(len(sig.Collector)))
		bw.WriteString(sig.Collector)
		if err := writeAddr(bw, sig.PeerIP); err != nil {
			return nil, err
		}
		writeU32(bw, sig.PeerASN)
		peersSent++
	}
	writeMagic(bw, MagicPeerEnd)
	writeU16(bw, peersSent)

	pathsSent := uint32(0)
	var pathErr error
	cur.paths.Range(func(id PathID, sp *StorePath) bool {
		if len(sp.encoding) > 0xFFFF {
			pathErr = fmt.Errorf("path %d encoding too long: %w", id.Index, core.ErrInvalidFormat)
			return false
		}
		writeU32(bw, id.Index)
		if sp.core {
			bw.WriteByte(1)
		} else {
			bw.WriteByte(0)
		}
		writeU16(bw, uint16(len(sp.encoding)))
		bw.Write(sp.encoding)
		pathsSent++
		return true
	})
	if pathErr != nil {
		return nil, pathErr
	}
	writeMagic(bw, MagicPaths)
	writeU32(bw, pathsSent)

	// Prefix-diff section: tagged records with count-prefixed edge lists.
	for _, d := range diffs {
		bw.WriteByte(d.record)
		if err := writeAddr(bw, d.pfx.Addr()); err != nil {
			return nil, err
		}
		bw.WriteByte(byte(d.pfx.Bits()))
		switch d.record {
		case diffRecordAdd:
			writeEdgeList(bw, d.added)
		case diffRecordChange:
			writeEdgeList(bw, d.added)
			writeEdgeList(bw, d.changed)
			writeU16(bw, uint16(len(d.removed)))
			for _, id := range d.removed {
				writeU16(bw, uint16(id))
			}
		}
	}
	writeMagic(bw, MagicPfxEnd)
	writeU32(bw, uint32(len(diffs)))
	writeMagic(bw, MagicViewEnd)

	if err := bw.Flush(); err != nil {
		return nil, err
	}
	return stats, nil
}

func writeEdgeList(bw *bufio.Writer, edges map[PeerID]PathID) {
	ids := make([]PeerID, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	writeU16(bw, uint16(len(ids)))
	for _, id := range ids {
		writeU16(bw, uint16(id))
		writeU32(bw, edges[id].Index)
	}
}

// DecodeDiff reads one diff frame from the stream and applies it to v, which
// must hold the parent state. On error v is unchanged: the frame is applied
// to a scratch copy and committed only on success.
func (d *Decoder) DecodeDiff(v *View) (bool, error) {
	if _, err := d.br.Peek(1); err == io.EOF {
		return false, nil
	}
	if err := d.expectMagic(MagicDiff); err != nil {
		return false, err
	}

	scratch := v.Dup()

	time, err := d.readU32()
	if err != nil {
		return false, err
	}
	if _, err := d.readU32(); err != nil { // parent time, informational
		return false, err
	}
	scratch.SetTime(time)

	// Peers are not activated here: a receiver's peer active flags follow
	// from its edges, which the diff records below adjust.
	peerMap, err := d.decodePeerSection(scratch, false)
	if err != nil {
		return false, err
	}
	pathMap, err := d.decodePathSection(scratch)
	if err != nil {
		return false, err
	}

	records := uint32(0)
	for {
		isEnd, err := d.atMagic(MagicPfxEnd)
		if err != nil {
			return false, err
		}
		if isEnd {
			break
		}
		if err := d.applyDiffRecord(scratch, peerMap, pathMap); err != nil {
			return false, err
		}
		records++
	}
	sent, err := d.readU32()
	if err != nil {
		return false, err
	}
	if sent != records {
		return false, fmt.Errorf("diff record count mismatch (sent %d, received %d): %w", sent, records, core.ErrCorruptStream)
	}
	if err := d.expectMagic(MagicViewEnd); err != nil {
		return false, err
	}

	v.adopt(scratch)
	return true, nil
}

func (d *Decoder) applyDiffRecord(scratch *View, peerMap map[PeerID]PeerID, pathMap map[uint32]PathID) error {
	record, err := d.br.ReadByte()
	if err != nil {
		return corrupt(err)
	}
	pfx, err := d.readPfx()
	if err != nil {
		return err
	}
	switch record {
	case diffRecordAdd:
		added, err := d.readEdgeList(peerMap, pathMap)
		if err != nil {
			return err
		}
		return applyEdges(scratch, pfx, added)
	case diffRecordRemove:
		entry := scratch.pfxs[pfx]
		if entry == nil {
			return fmt.Errorf("diff removes unknown prefix %v: %w", pfx, core.ErrCorruptStream)
		}
		for id, info := range entry.peers {
			if !info.active {
				continue
			}
			if err := scratch.RemovePfxPeer(pfx, id); err != nil {
				return err
			}
		}
		return nil
	case diffRecordChange:
		added, err := d.readEdgeList(peerMap, pathMap)
		if err != nil {
			return err
		}
		changed, err := d.readEdgeList(peerMap, pathMap)
		if err != nil {
			return err
		}
		removedCnt, err := d.readU16()
		if err != nil {
			return err
		}
		removed := make([]PeerID, 0, removedCnt)
		for i := 0; i < int(removedCnt); i++ {
			remoteID, err := d.readU16()
			if err != nil {
				return err
			}
			localID, ok := peerMap[PeerID(remoteID)]
			if !ok {
				return fmt.Errorf("diff removes edge of unknown peer %d: %w", remoteID, core.ErrCorruptStream)
			}
			removed = append(removed, localID)
		}
		if err := applyEdges(scratch, pfx, added); err != nil {
			return err
		}
		if err := applyEdges(scratch, pfx, changed); err != nil {
			return err
		}
		for _, id := range removed {
			if err := scratch.RemovePfxPeer(pfx, id); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("diff record class %q: %w", record, core.ErrCorruptStream)
}

func (d *Decoder) readEdgeList(peerMap map[PeerID]PeerID, pathMap map[uint32]PathID) (map[PeerID]PathID, error) {
	cnt, err := d.readU16()
	if err != nil {
		return nil, err
	}
	edges := make(map[PeerID]PathID, cnt)
	for i := 0; i < int(cnt); i++ {
		remoteID, err := d.readU16()
		if err != nil {
			return nil, err
		}
		remoteIdx, err := d.readU32()
		if err != nil {
			return nil, err
		}
		localID, ok := peerMap[PeerID(remoteID)]
		if !ok {
			return nil, fmt.Errorf("diff edge references unknown peer %d: %w", remoteID, core.ErrCorruptStream)
		}
		localPath, ok := pathMap[remoteIdx]
		if !ok {
			return nil, fmt.Errorf("diff edge references unknown path %d: %w", remoteIdx, core.ErrCorruptStream)
		}
		edges[localID] = localPath
	}
	return edges, nil
}

func applyEdges(scratch *View, pfx netip.Prefix, edges map[PeerID]PathID) error {
	for id, path := range edges {
		if err := scratch.AddPfxPeer(pfx, id, path); err != nil {
			return err
		}
		if _, err := scratch.ActivatePfxPeer(pfx, id); err != nil {
			return err
		}
	}
	return nil
}
