/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package bgp_test

import (
	"testing"

	"github.com/sitedata/bgpview/bgp"

	"github.com/stretchr/testify/assert"
)

func TestPathEncodeDecode(t *testing.T) {
	path := bgp.Path{Segments: []bgp.PathSegment{
		{Kind: bgp.SegmentAsSequence, Asns: []uint32{65001, 65002}},
		{Kind: bgp.SegmentAsSet, Asns: []uint32{65003, 65004}},
		{Kind: bgp.SegmentConfedSequence, Asns: []uint32{64512}},
	}}
	enc, err := path.Encode()
	assert.NoError(t, err)
	assert.Equal(t, 2+8+2+8+2+4, len(enc))

	decoded, err := bgp.DecodePath(enc)
	assert.NoError(t, err)
	assert.True(t, path.Equal(decoded))

	// Equal paths produce equal encodings.
	enc2, err := path.Encode()
	assert.NoError(t, err)
	assert.Equal(t, enc, enc2)
}

func TestPathDecodeTruncated(t *testing.T) {
	path := bgp.PathFromAsns(65001, 65002, 65003)
	enc, err := path.Encode()
	assert.NoError(t, err)

	_, err = bgp.DecodePath(enc[:len(enc)-2])
	assert.Error(t, err)
	_, err = bgp.DecodePath(enc[:1])
	assert.Error(t, err)
}

func TestPathOrigin(t *testing.T) {
	path, err := bgp.PathFromString("65001 65002 65003")
	assert.NoError(t, err)
	origin := path.Origin()
	assert.Equal(t, bgp.SegmentAsSequence, origin.Kind)
	assert.Equal(t, []uint32{65003}, origin.Asns)

	path, err = bgp.PathFromString("65001 {65003,65004}")
	assert.NoError(t, err)
	origin = path.Origin()
	assert.Equal(t, bgp.SegmentAsSet, origin.Kind)
	assert.Equal(t, []uint32{65003, 65004}, origin.Asns)

	assert.Equal(t, 0, len(bgp.Path{}.Origin().Asns))
}

func TestPathFromString(t *testing.T) {
	path, err := bgp.PathFromString("65001 65002 {65003,65004}")
	assert.NoError(t, err)
	assert.Equal(t, 2, len(path.Segments))
	assert.Equal(t, bgp.SegmentAsSequence, path.Segments[0].Kind)
	assert.Equal(t, []uint32{65001, 65002}, path.Segments[0].Asns)
	assert.Equal(t, bgp.SegmentAsSet, path.Segments[1].Kind)
	assert.Equal(t, "65001 65002 {65003,65004}", path.String())

	_, err = bgp.PathFromString("not-an-asn")
	assert.Error(t, err)
}

func TestPrefixParse(t *testing.T) {
	pfx, err := bgp.ParsePrefix("10.1.0.0/16")
	assert.NoError(t, err)
	assert.True(t, bgp.PrefixIsV4(pfx))
	assert.Equal(t, 16, pfx.Bits())

	pfx, err = bgp.ParsePrefix("2001:db8::/32")
	assert.NoError(t, err)
	assert.False(t, bgp.PrefixIsV4(pfx))

	// Host bits are cleared.
	pfx, err = bgp.ParsePrefix("10.1.2.3/16")
	assert.NoError(t, err)
	assert.Equal(t, "10.1.0.0/16", pfx.String())

	_, err = bgp.ParsePrefix("10.1.0.0/33")
	assert.Error(t, err)
	_, err = bgp.ParsePrefix("junk")
	assert.Error(t, err)
}
