/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package source_test

import (
	"testing"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/source"

	"github.com/stretchr/testify/assert"
)

func TestParseAnnouncement(t *testing.T) {
	msg := `{
		"type": "ris_message",
		"data": {
			"timestamp": 1700000000.123,
			"peer": "192.0.2.1",
			"peer_asn": "65001",
			"type": "UPDATE",
			"path": [65001, 65002, [65003, 65004]],
			"announcements": [{"prefixes": ["10.1.0.0/16", "10.2.0.0/16"]}],
			"withdrawals": ["10.3.0.0/16"]
		}
	}`
	elems, err := source.ParseMessage([]byte(msg), "rrc00")
	assert.NoError(t, err)
	assert.Equal(t, 3, len(elems))

	ann := elems[0]
	assert.Equal(t, bgp.ElemAnnounce, ann.Type)
	assert.Equal(t, "rrc00", ann.Collector)
	assert.Equal(t, uint32(1700000000), ann.Timestamp)
	assert.Equal(t, uint32(65001), ann.PeerASN)
	assert.Equal(t, "192.0.2.1", ann.PeerIP.String())
	assert.Equal(t, "10.1.0.0/16", ann.Prefix.String())
	assert.Equal(t, "65001 65002 {65003,65004}", ann.Path.String())

	assert.Equal(t, "10.2.0.0/16", elems[1].Prefix.String())

	wd := elems[2]
	assert.Equal(t, bgp.ElemWithdrawal, wd.Type)
	assert.Equal(t, "10.3.0.0/16", wd.Prefix.String())
}

func TestParseNumericASN(t *testing.T) {
	msg := `{
		"type": "ris_message",
		"data": {
			"timestamp": 1700000000,
			"peer": "2001:db8::1",
			"peer_asn": 3356,
			"type": "UPDATE",
			"path": [3356],
			"announcements": [{"prefixes": ["2001:db8::/32"]}]
		}
	}`
	elems, err := source.ParseMessage([]byte(msg), "rrc01")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(elems))
	assert.Equal(t, uint32(3356), elems[0].PeerASN)
	assert.False(t, bgp.PrefixIsV4(elems[0].Prefix))
}

func TestParseStateChange(t *testing.T) {
	msg := `{
		"type": "ris_message",
		"data": {
			"timestamp": 1700000000,
			"peer": "192.0.2.1",
			"peer_asn": "65001",
			"type": "RIS_PEER_STATE",
			"state": "connected"
		}
	}`
	elems, err := source.ParseMessage([]byte(msg), "rrc00")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(elems))
	assert.Equal(t, bgp.ElemState, elems[0].Type)
	assert.Equal(t, bgp.FSMEstablished, elems[0].NewState)

	msg = `{"type":"ris_message","data":{"timestamp":1,"peer":"192.0.2.1","peer_asn":"65001","type":"STATE","state":"down"}}`
	elems, err = source.ParseMessage([]byte(msg), "rrc00")
	assert.NoError(t, err)
	assert.Equal(t, bgp.FSMIdle, elems[0].NewState)
}

func TestParseIgnoresNonUpdates(t *testing.T) {
	elems, err := source.ParseMessage([]byte(`{"type":"ris_rrc_list","data":{}}`), "rrc00")
	assert.NoError(t, err)
	assert.Nil(t, elems)

	_, err = source.ParseMessage([]byte(`not json`), "rrc00")
	assert.Error(t, err)
}
