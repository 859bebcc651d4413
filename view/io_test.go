/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"testing"

	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/view"

	"github.com/stretchr/testify/assert"
)

// activeSnapshot renders the active contents of a view in an ID-independent
// canonical form: peer/path IDs may be renumbered across a codec round-trip,
// so edges are keyed by signature and path encoding.
func activeSnapshot(t *testing.T, v *view.View) []string {
	t.Helper()
	var lines []string
	it := v.Iterate()
	for ok := it.FirstPeer(view.FilterActive); ok; ok = it.NextPeer() {
		sig := it.PeerSig()
		lines = append(lines, fmt.Sprintf("peer %s", sig))
	}
	for ok := it.FirstPfx(view.FilterActive, view.FamilyBoth); ok; ok = it.NextPfx() {
		pfx := it.Pfx()
		for ok := it.FirstPfxPeer(view.FilterActive); ok; ok = it.NextPfxPeer() {
			sig, err := v.Sigs().Lookup(it.PfxPeerID())
			assert.NoError(t, err)
			sp, err := v.Paths().Get(it.PfxPeerInfo().PathID())
			assert.NoError(t, err)
			lines = append(lines, fmt.Sprintf("pfxpeer %s %s %s %v",
				pfx, sig, hex.EncodeToString(sp.Encoding()), sp.Core()))
		}
	}
	sort.Strings(lines)
	return lines
}

// buildView assembles a small fully-active view with v4 and v6 prefixes,
// set segments, and boundary mask lengths.
func buildView(t *testing.T) *view.View {
	t.Helper()
	v := view.New(nil, nil)
	v.SetTime(3600)

	p1, err := v.AddPeer("rrc00", netip.MustParseAddr("10.0.0.1"), 65001)
	assert.NoError(t, err)
	p2, err := v.AddPeer("route-views2", netip.MustParseAddr("2001:db8::2"), 3356)
	assert.NoError(t, err)

	path1 := addPath(t, v, 65001)
	path2 := addPath(t, v, 65001, 65002)
	pathSet, err := v.Paths().InsertPath(mustPathFromString(t, "3356 {1299,174}"), true)
	assert.NoError(t, err)

	for _, e := range []struct {
		pfx  string
		peer view.PeerID
		path view.PathID
	}{
		{"10.1.0.0/16", p1, path1},
		{"10.2.0.0/16", p1, path2},
		{"10.2.0.0/16", p2, pathSet},
		{"0.0.0.0/0", p2, pathSet},
		{"192.0.2.1/32", p1, path1},
		{"2001:db8::/32", p2, pathSet},
		{"::/0", p2, pathSet},
		{"2001:db8::1/128", p1, path2},
	} {
		pfx := mustPfx(e.pfx)
		assert.NoError(t, v.AddPfxPeer(pfx, e.peer, e.path))
		_, err := v.ActivatePfxPeer(pfx, e.peer)
		assert.NoError(t, err)
	}
	return v
}

// TestEncodeDecodeRoundTrip checks decode(encode(V)) against V structurally.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	v := buildView(t)

	var buf bytes.Buffer
	assert.NoError(t, view.Encode(&buf, v, nil))

	// Decode into a view with entirely fresh stores: IDs renumber, content
	// must not.
	dst := view.New(nil, nil)
	got, err := view.NewDecoder(&buf).Decode(dst)
	assert.NoError(t, err)
	assert.True(t, got)

	assert.Equal(t, v.Time(), dst.Time())
	assert.Equal(t, activeSnapshot(t, v), activeSnapshot(t, dst))
}

func TestEncodeDecodeEmptyView(t *testing.T) {
	v := view.New(nil, nil)
	v.SetTime(42)

	var buf bytes.Buffer
	assert.NoError(t, view.Encode(&buf, v, nil))

	dst := view.New(nil, nil)
	got, err := view.NewDecoder(&buf).Decode(dst)
	assert.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, uint32(42), dst.Time())
	assert.Equal(t, 0, dst.PeerCount())
	assert.Equal(t, 0, dst.PfxCount())
}

// TestDecodeEOF checks that EOF at a view boundary is the normal "no view"
// termination.
func TestDecodeEOF(t *testing.T) {
	dst := view.New(nil, nil)
	got, err := view.NewDecoder(bytes.NewReader(nil)).Decode(dst)
	assert.NoError(t, err)
	assert.False(t, got)
}

// TestConcatenatedViews checks that encode(V1)||encode(V2) decodes to
// exactly [V1, V2] in order.
func TestConcatenatedViews(t *testing.T) {
	v1 := buildView(t)
	v2 := buildView(t)
	v2.SetTime(7200)
	p := mustPfx("10.9.0.0/16")
	peer, _ := v2.AddPeer("rrc00", netip.MustParseAddr("10.0.0.1"), 65001)
	assert.NoError(t, v2.AddPfxPeer(p, peer, addPath(t, v2, 65009)))
	v2.ActivatePfxPeer(p, peer)

	var buf bytes.Buffer
	assert.NoError(t, view.Encode(&buf, v1, nil))
	assert.NoError(t, view.Encode(&buf, v2, nil))

	dec := view.NewDecoder(&buf)
	dst := view.New(nil, nil)

	got, err := dec.Decode(dst)
	assert.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, activeSnapshot(t, v1), activeSnapshot(t, dst))

	got, err = dec.Decode(dst)
	assert.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, activeSnapshot(t, v2), activeSnapshot(t, dst))

	got, err = dec.Decode(dst)
	assert.NoError(t, err)
	assert.False(t, got)
}

// TestEncodeFilter checks the filter contract: the decoded view equals the
// filter-projected source.
func TestEncodeFilter(t *testing.T) {
	v := buildView(t)

	// Drop everything observed by peer 2 (route-views2).
	filter := &view.Filter{
		Peer: func(id view.PeerID, info *view.PeerInfo, sig *view.PeerSignature) bool {
			return sig.Collector == "rrc00"
		},
	}
	var buf bytes.Buffer
	assert.NoError(t, view.Encode(&buf, v, filter))

	dst := view.New(nil, nil)
	got, err := view.NewDecoder(&buf).Decode(dst)
	assert.NoError(t, err)
	assert.True(t, got)

	for _, line := range activeSnapshot(t, dst) {
		assert.NotContains(t, line, "route-views2")
	}
	// All rrc00 edges survive.
	assert.True(t, dst.Pfx(mustPfx("10.1.0.0/16")).Active())
	assert.True(t, dst.Pfx(mustPfx("2001:db8::1/128")).Active())
	// Prefixes observed only by the dropped peer are not emitted at all.
	assert.Nil(t, dst.Pfx(mustPfx("0.0.0.0/0")))

	// Per-pfx-peer filtering drops single edges.
	shared := mustPfx("10.2.0.0/16")
	edgeFilter := &view.Filter{
		PfxPeer: func(pfx netip.Prefix, id view.PeerID, info *view.PfxPeerInfo) bool {
			sig, _ := v.Sigs().Lookup(id)
			return !(pfx == shared && sig.Collector == "route-views2")
		},
	}
	buf.Reset()
	assert.NoError(t, view.Encode(&buf, v, edgeFilter))
	dst2 := view.New(nil, nil)
	_, err = view.NewDecoder(&buf).Decode(dst2)
	assert.NoError(t, err)
	assert.Equal(t, 1, dst2.Pfx(shared).PeerCount())
}

// TestDecodeCorruptStream truncates the stream between the path section
// magic and the path count; the decoder must fail with CorruptStream and
// leave the caller's view untouched.
func TestDecodeCorruptStream(t *testing.T) {
	v := buildView(t)
	var buf bytes.Buffer
	assert.NoError(t, view.Encode(&buf, v, nil))
	encoded := buf.Bytes()

	// Locate the PATH end marker and cut right after it, before the count.
	marker := []byte{0x42, 0x47, 0x50, 0x56, 0x50, 0x41, 0x54, 0x48}
	idx := bytes.Index(encoded, marker)
	assert.Greater(t, idx, 0)
	truncated := encoded[:idx+len(marker)]

	dst := buildView(t)
	dst.SetTime(99)
	before := activeSnapshot(t, dst)

	got, err := view.NewDecoder(bytes.NewReader(truncated)).Decode(dst)
	assert.False(t, got)
	assert.True(t, errors.Is(err, core.ErrCorruptStream))
	assert.Equal(t, uint32(99), dst.Time())
	assert.Equal(t, before, activeSnapshot(t, dst))
}

// TestDecodeBadMagic checks that a stream not starting with the view marker
// is rejected.
func TestDecodeBadMagic(t *testing.T) {
	dst := view.New(nil, nil)
	_, err := view.NewDecoder(bytes.NewReader([]byte("definitely not a view......."))).Decode(dst)
	assert.True(t, errors.Is(err, core.ErrCorruptStream))
}

// TestDecodeCountMismatch flips the peer count cross-check.
func TestDecodeCountMismatch(t *testing.T) {
	v := buildView(t)
	var buf bytes.Buffer
	assert.NoError(t, view.Encode(&buf, v, nil))
	encoded := buf.Bytes()

	// The two bytes after the PEND marker are the peer count.
	marker := []byte{0x42, 0x47, 0x50, 0x56, 0x50, 0x45, 0x4E, 0x44}
	idx := bytes.Index(encoded, marker)
	assert.Greater(t, idx, 0)
	encoded[idx+8] ^= 0xFF

	dst := view.New(nil, nil)
	_, err := view.NewDecoder(bytes.NewReader(encoded)).Decode(dst)
	assert.True(t, errors.Is(err, core.ErrCorruptStream))
}

func TestDumpASCII(t *testing.T) {
	v := view.New(nil, nil)
	v.SetTime(1000)
	peer, _ := v.AddPeer("rrc00", netip.MustParseAddr("10.0.0.1"), 65001)
	pfx := mustPfx("10.1.0.0/16")
	v.AddPfxPeer(pfx, peer, addPath(t, v, 65001, 65002))
	v.ActivatePfxPeer(pfx, peer)

	var buf bytes.Buffer
	assert.NoError(t, view.DumpASCII(&buf, v))
	out := buf.String()
	assert.Contains(t, out, "# View 1000\n")
	assert.Contains(t, out, "# IPv4 Prefixes: 1\n")
	assert.Contains(t, out, "# IPv6 Prefixes: 0\n")
	assert.Contains(t, out, "1000|10.1.0.0/16|rrc00|65001|10.0.0.1|65001 65002|65002\n")
}
