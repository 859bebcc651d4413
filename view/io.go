/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"

	"github.com/sitedata/bgpview/core"
)

// Magic markers framing the binary view format. Each marker on the wire is
// ViewMagic followed by one of the sub-magics, both big-endian u32.
const (
	ViewMagic uint32 = 0x42475056 // "BGPV"

	MagicStart   uint32 = 0x53545254 // "STRT"
	MagicPeerEnd uint32 = 0x50454E44 // "PEND"
	MagicPaths   uint32 = 0x50415448 // "PATH"
	MagicPfxEnd  uint32 = 0x58454E44 // "XEND"
	MagicViewEnd uint32 = 0x56454E44 // "VEND"
)

// Filter narrows what Encode emits. Nil callbacks keep everything. A skipped
// peer drops all of its pfx-peers; a prefix whose pfx-peers are all skipped
// is not emitted at all.
type Filter struct {
	Peer    func(id PeerID, info *PeerInfo, sig *PeerSignature) bool
	Pfx     func(pfx netip.Prefix, entry *PfxEntry) bool
	PfxPeer func(pfx netip.Prefix, id PeerID, info *PfxPeerInfo) bool
}

func (f *Filter) keepPeer(id PeerID, info *PeerInfo, sig *PeerSignature) bool {
	return f == nil || f.Peer == nil || f.Peer(id, info, sig)
}

func (f *Filter) keepPfx(pfx netip.Prefix, entry *PfxEntry) bool {
	return f == nil || f.Pfx == nil || f.Pfx(pfx, entry)
}

func (f *Filter) keepPfxPeer(pfx netip.Prefix, id PeerID, info *PfxPeerInfo) bool {
	return f == nil || f.PfxPeer == nil || f.PfxPeer(pfx, id, info)
}

// Encode writes the active contents of v to w in the framed binary format.
// The wire carries advertised (active) state only: active peers, active
// prefixes and their active pfx-peers, further narrowed by the filter.
func Encode(w io.Writer, v *View, filter *Filter) error {
	bw := bufio.NewWriter(w)
	if err := encodeView(bw, v, filter); err != nil {
		return err
	}
	return bw.Flush()
}

func encodeView(bw *bufio.Writer, v *View, filter *Filter) error {
	writeMagic(bw, MagicStart)
	writeU32(bw, v.time)

	// Peer section.
	sent := make(map[PeerID]bool, len(v.peers))
	peersSent := uint16(0)
	it := v.Iterate()
	for ok := it.FirstPeer(FilterActive); ok; ok = it.NextPeer() {
		id := it.PeerID()
		sig, err := v.sigs.Lookup(id)
		if err != nil {
			return err
		}
		if !filter.keepPeer(id, it.PeerInfo(), sig) {
			continue
		}
		sent[id] = true
		writeU16(bw, uint16(id))
		bw.WriteByte(byte(len(sig.Collector)))
		bw.WriteString(sig.Collector)
		if err := writeAddr(bw, sig.PeerIP); err != nil {
			return err
		}
		writeU32(bw, sig.PeerASN)
		peersSent++
	}
	writeMagic(bw, MagicPeerEnd)
	writeU16(bw, peersSent)

	// Path section: the whole shared store, so edge path indices always
	// resolve on the receiver.
	pathsSent := uint32(0)
	var pathErr error
	v.paths.Range(func(id PathID, sp *StorePath) bool {
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
		return pathErr
	}
	writeMagic(bw, MagicPaths)
	writeU32(bw, pathsSent)

	// Prefix section.
	pfxsSent := uint32(0)
	for ok := it.FirstPfx(FilterActive, FamilyBoth); ok; ok = it.NextPfx() {
		pfx := it.Pfx()
		entry := it.PfxEntry()
		if !filter.keepPfx(pfx, entry) {
			continue
		}
		// Collect surviving edges first; prefixes left empty are skipped.
		edges := make([]PeerID, 0, len(entry.peers))
		for ok := it.FirstPfxPeer(FilterActive); ok; ok = it.NextPfxPeer() {
			id := it.PfxPeerID()
			if !sent[id] || !filter.keepPfxPeer(pfx, id, it.PfxPeerInfo()) {
				continue
			}
			edges = append(edges, id)
		}
		if len(edges) == 0 {
			continue
		}
		if err := writeAddr(bw, pfx.Addr()); err != nil {
			return err
		}
		bw.WriteByte(byte(pfx.Bits()))
		edgesSent := uint16(0)
		for _, id := range edges {
			writeU16(bw, uint16(id))
			writeU32(bw, entry.peers[id].pathID.Index)
			edgesSent++
		}
		writeMagic(bw, MagicPeerEnd)
		writeU16(bw, edgesSent)
		pfxsSent++
	}
	writeMagic(bw, MagicPfxEnd)
	writeU32(bw, pfxsSent)

	writeMagic(bw, MagicViewEnd)
	return nil
}

func writeMagic(bw *bufio.Writer, sub uint32) {
	writeU32(bw, ViewMagic)
	writeU32(bw, sub)
}

func writeU16(bw *bufio.Writer, v uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	bw.Write(buf[:])
}

func writeU32(bw *bufio.Writer, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	bw.Write(buf[:])
}

func writeAddr(bw *bufio.Writer, addr netip.Addr) error {
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		bw.WriteByte(4)
		bw.Write(b[:])
		return nil
	}
	if addr.Is6() {
		b := addr.As16()
		bw.WriteByte(16)
		bw.Write(b[:])
		return nil
	}
	return fmt.Errorf("address %v: %w", addr, core.ErrInvalidArg)
}

// Decoder reads a stream of concatenated binary views. EOF at a view
// boundary is the normal termination.
type Decoder struct {
	br *bufio.Reader
}

// NewDecoder wraps r for view decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{br: bufio.NewReader(r)}
}

// Decode reads at most one view from the stream into v. It returns (false,
// nil) on clean EOF before a view starts. On any decode error the caller's
// view is structurally unchanged: the frame is assembled in a scratch view
// sharing v's stores and committed only after the end magic verifies. (The
// shared stores are append-only, so signatures and paths interned before a
// failure remain — they are harmless to the view's contents.)
func (d *Decoder) Decode(v *View) (bool, error) {
	if _, err := d.br.Peek(1); err == io.EOF {
		return false, nil
	}
	if err := d.expectMagic(MagicStart); err != nil {
		return false, err
	}

	scratch := New(v.sigs, v.paths)

	time, err := d.readU32()
	if err != nil {
		return false, err
	}
	scratch.SetTime(time)

	peerMap, err := d.decodePeerSection(scratch, true)
	if err != nil {
		return false, err
	}
	pathMap, err := d.decodePathSection(scratch)
	if err != nil {
		return false, err
	}
	if err := d.decodePfxSection(scratch, peerMap, pathMap); err != nil {
		return false, err
	}
	if err := d.expectMagic(MagicViewEnd); err != nil {
		return false, err
	}

	v.adopt(scratch)
	return true, nil
}

// adopt commits the contents of scratch, which shares v's stores.
func (v *View) adopt(scratch *View) {
	v.time = scratch.time
	v.peers = scratch.peers
	v.pfxs = scratch.pfxs
	v.poisoned = false
	v.mutated()
}

func (d *Decoder) decodePeerSection(scratch *View, activate bool) (map[PeerID]PeerID, error) {
	peerMap := make(map[PeerID]PeerID)
	received := uint16(0)
	for {
		isEnd, err := d.atMagic(MagicPeerEnd)
		if err != nil {
			return nil, err
		}
		if isEnd {
			break
		}
		remoteID, err := d.readU16()
		if err != nil {
			return nil, err
		}
		collectorLen, err := d.br.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		collector := make([]byte, collectorLen)
		if _, err := io.ReadFull(d.br, collector); err != nil {
			return nil, corrupt(err)
		}
		addr, err := d.readAddr()
		if err != nil {
			return nil, err
		}
		asn, err := d.readU32()
		if err != nil {
			return nil, err
		}
		localID, err := scratch.sigs.Intern(string(collector), addr, asn)
		if err != nil {
			return nil, err
		}
		if _, err := scratch.addPeerByID(localID); err != nil {
			return nil, err
		}
		if activate {
			if _, err := scratch.ActivatePeer(localID); err != nil {
				return nil, err
			}
		}
		peerMap[PeerID(remoteID)] = localID
		received++
	}
	sent, err := d.readU16()
	if err != nil {
		return nil, err
	}
	if sent != received {
		return nil, fmt.Errorf("peer count mismatch (sent %d, received %d): %w", sent, received, core.ErrCorruptStream)
	}
	return peerMap, nil
}

func (d *Decoder) decodePathSection(scratch *View) (map[uint32]PathID, error) {
	pathMap := make(map[uint32]PathID)
	received := uint32(0)
	for {
		isEnd, err := d.atMagic(MagicPaths)
		if err != nil {
			return nil, err
		}
		if isEnd {
			break
		}
		remoteIdx, err := d.readU32()
		if err != nil {
			return nil, err
		}
		coreFlag, err := d.br.ReadByte()
		if err != nil {
			return nil, corrupt(err)
		}
		if coreFlag > 1 {
			return nil, fmt.Errorf("path core flag %d: %w", coreFlag, core.ErrInvalidFormat)
		}
		pathLen, err := d.readU16()
		if err != nil {
			return nil, err
		}
		data := make([]byte, pathLen)
		if _, err := io.ReadFull(d.br, data); err != nil {
			return nil, corrupt(err)
		}
		localID, err := scratch.paths.Insert(data, coreFlag == 1)
		if err != nil {
			return nil, err
		}
		pathMap[remoteIdx] = localID
		received++
	}
	sent, err := d.readU32()
	if err != nil {
		return nil, err
	}
	if sent != received {
		return nil, fmt.Errorf("path count mismatch (sent %d, received %d): %w", sent, received, core.ErrCorruptStream)
	}
	return pathMap, nil
}

func (d *Decoder) decodePfxSection(scratch *View, peerMap map[PeerID]PeerID, pathMap map[uint32]PathID) error {
	received := uint32(0)
	for {
		isEnd, err := d.atMagic(MagicPfxEnd)
		if err != nil {
			return err
		}
		if isEnd {
			break
		}
		pfx, err := d.readPfx()
		if err != nil {
			return err
		}
		if err := d.decodePfxPeers(scratch, pfx, peerMap, pathMap, true); err != nil {
			return err
		}
		received++
	}
	sent, err := d.readU32()
	if err != nil {
		return err
	}
	if sent != received {
		return fmt.Errorf("pfx count mismatch (sent %d, received %d): %w", sent, received, core.ErrCorruptStream)
	}
	return nil
}

// decodePfxPeers reads one PEND-terminated pfx-peer list for pfx, adding the
// edges to scratch (activated when activate is set).
func (d *Decoder) decodePfxPeers(scratch *View, pfx netip.Prefix, peerMap map[PeerID]PeerID, pathMap map[uint32]PathID, activate bool) error {
	received := uint16(0)
	for {
		isEnd, err := d.atMagic(MagicPeerEnd)
		if err != nil {
			return err
		}
		if isEnd {
			break
		}
		remoteID, err := d.readU16()
		if err != nil {
			return err
		}
		remoteIdx, err := d.readU32()
		if err != nil {
			return err
		}
		localID, ok := peerMap[PeerID(remoteID)]
		if !ok {
			return fmt.Errorf("pfx-peer references unknown peer %d: %w", remoteID, core.ErrCorruptStream)
		}
		localPath, ok := pathMap[remoteIdx]
		if !ok {
			return fmt.Errorf("pfx-peer references unknown path %d: %w", remoteIdx, core.ErrCorruptStream)
		}
		if err := scratch.AddPfxPeer(pfx, localID, localPath); err != nil {
			return err
		}
		if activate {
			if _, err := scratch.ActivatePfxPeer(pfx, localID); err != nil {
				return err
			}
		}
		received++
	}
	sent, err := d.readU16()
	if err != nil {
		return err
	}
	if sent != received {
		return fmt.Errorf("pfx-peer count mismatch (sent %d, received %d): %w", sent, received, core.ErrCorruptStream)
	}
	return nil
}

// atMagic reports whether the next 8 bytes are the given marker, consuming
// them when they are.
func (d *Decoder) atMagic(sub uint32) (bool, error) {
	buf, err := d.br.Peek(8)
	if err != nil {
		return false, corrupt(err)
	}
	if binary.BigEndian.Uint32(buf) != ViewMagic || binary.BigEndian.Uint32(buf[4:]) != sub {
		return false, nil
	}
	d.br.Discard(8)
	return true, nil
}

func (d *Decoder) expectMagic(sub uint32) error {
	isMagic, err := d.atMagic(sub)
	if err != nil {
		return err
	}
	if !isMagic {
		return fmt.Errorf("missing frame marker %08x: %w", sub, core.ErrCorruptStream)
	}
	return nil
}

func (d *Decoder) readU16() (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(d.br, buf[:]); err != nil {
		return 0, corrupt(err)
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (d *Decoder) readU32() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(d.br, buf[:]); err != nil {
		return 0, corrupt(err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (d *Decoder) readAddr() (netip.Addr, error) {
	ipLen, err := d.br.ReadByte()
	if err != nil {
		return netip.Addr{}, corrupt(err)
	}
	switch ipLen {
	case 4:
		var buf [4]byte
		if _, err := io.ReadFull(d.br, buf[:]); err != nil {
			return netip.Addr{}, corrupt(err)
		}
		return netip.AddrFrom4(buf), nil
	case 16:
		var buf [16]byte
		if _, err := io.ReadFull(d.br, buf[:]); err != nil {
			return netip.Addr{}, corrupt(err)
		}
		return netip.AddrFrom16(buf).Unmap(), nil
	}
	return netip.Addr{}, fmt.Errorf("IP length %d: %w", ipLen, core.ErrInvalidFormat)
}

func (d *Decoder) readPfx() (netip.Prefix, error) {
	addr, err := d.readAddr()
	if err != nil {
		return netip.Prefix{}, err
	}
	maskLen, err := d.br.ReadByte()
	if err != nil {
		return netip.Prefix{}, corrupt(err)
	}
	if int(maskLen) > addr.BitLen() {
		return netip.Prefix{}, fmt.Errorf("mask length %d: %w", maskLen, core.ErrInvalidFormat)
	}
	return netip.PrefixFrom(addr, int(maskLen)), nil
}

// corrupt maps unexpected stream ends to ErrCorruptStream.
func corrupt(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("unexpected end of stream: %w", core.ErrCorruptStream)
	}
	return err
}
