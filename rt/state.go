/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package rt

import (
	"net/netip"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/view"
)

// Per-edge status bits.
const (
	statusAnnounced   uint8 = 0x01
	statusUCAnnounced uint8 = 0x10
)

// pfxPeerData is the engine's per-(collector, peer, pfx) record, hung off
// the view's pfx-peer user pointer. It exists iff the peer has been observed
// announcing the prefix in the current reference RIB or the current UC RIB.
type pfxPeerData struct {
	ucPathID view.PathID

	// ucTs is the timestamp of the entry recorded in the open UC RIB;
	// liveTs is the timestamp of the last directly-applied update. The
	// newer of the two wins at promotion, ties favoring the UC entry.
	ucTs   uint32
	liveTs uint32

	// bgpTimeLast is the last time anything touched this record; the
	// deprecation sweep keys off it.
	bgpTimeLast uint32

	status uint8
}

// CollectorState tracks whether a collector is currently delivering data.
type CollectorState uint8

// Collector states.
const (
	CollectorUnknown CollectorState = iota
	CollectorUp
	CollectorDown
)

// collectorData is the engine's per-collector record.
type collectorData struct {
	name      string
	gSafeName string

	peers map[view.PeerID]struct{}

	bgpTimeRefRibDumpStart uint32
	bgpTimeRefRibDumpEnd   uint32
	bgpTimeUCRibDumpStart  uint32
	bgpTimeUCRibDumpEnd    uint32

	state CollectorState

	validRecordCnt     uint64
	corruptedRecordCnt uint64
	emptyRecordCnt     uint64
}

// peerCounters are the per-peer interval counters, reset at every interval
// start.
type peerCounters struct {
	announcements         uint32
	withdrawals           uint32
	stateMessages         uint32
	ribPositiveMismatches uint32
	ribNegativeMismatches uint32

	announcingOrigins map[string]struct{}
	announcedPfxs     map[netip.Prefix]struct{}
	withdrawnPfxs     map[netip.Prefix]struct{}
}

func newPeerCounters() peerCounters {
	return peerCounters{
		announcingOrigins: make(map[string]struct{}),
		announcedPfxs:     make(map[netip.Prefix]struct{}),
		withdrawnPfxs:     make(map[netip.Prefix]struct{}),
	}
}

func (c *peerCounters) reset() {
	*c = newPeerCounters()
}

// peerData is the engine's per-(collector, peer) record, hung off the view's
// peer user pointer. A PeerID binds the peer to exactly one collector, since
// the collector name is part of the interned signature.
type peerData struct {
	collector *collectorData
	fsmState  bgp.FSMState

	bgpTimeRefRibStart uint32
	bgpTimeRefRibEnd   uint32
	bgpTimeUCRibStart  uint32
	bgpTimeUCRibEnd    uint32
	ucOpen             bool

	lastTs           uint32
	metricsGenerated bool

	counters peerCounters
}

// peerState returns the engine record of a view peer, or nil.
func peerState(info *view.PeerInfo) *peerData {
	if info == nil {
		return nil
	}
	data, _ := info.User.(*peerData)
	return data
}

// edgeState returns the engine record of a pfx-peer edge, or nil.
func edgeState(info *view.PfxPeerInfo) *pfxPeerData {
	if info == nil {
		return nil
	}
	data, _ := info.User.(*pfxPeerData)
	return data
}

// up reports whether the peer's FSM considers the session established.
func (p *peerData) up() bool {
	return p.fsmState == bgp.FSMEstablished
}

// FSM returns the peer's current FSM state (exported for consumers/tests).
func (rt *RoutingTables) FSM(id view.PeerID) bgp.FSMState {
	data := peerState(rt.view.Peer(id))
	if data == nil {
		return bgp.FSMUnknown
	}
	return data.fsmState
}

// RefRibWindow returns the peer's reference RIB window.
func (rt *RoutingTables) RefRibWindow(id view.PeerID) (start, end uint32) {
	data := peerState(rt.view.Peer(id))
	if data == nil {
		return 0, 0
	}
	return data.bgpTimeRefRibStart, data.bgpTimeRefRibEnd
}

// UCRibWindow returns the peer's under-construction RIB window; ok reports
// whether a UC RIB is open.
func (rt *RoutingTables) UCRibWindow(id view.PeerID) (start, end uint32, ok bool) {
	data := peerState(rt.view.Peer(id))
	if data == nil {
		return 0, 0, false
	}
	return data.bgpTimeUCRibStart, data.bgpTimeUCRibEnd, data.ucOpen
}

// CollectorInfo is a read-only snapshot of a collector's engine state.
type CollectorInfo struct {
	Name               string
	PeerCnt            int
	State              CollectorState
	ValidRecordCnt     uint64
	CorruptedRecordCnt uint64
	EmptyRecordCnt     uint64
}

// Collector returns a snapshot of the named collector's state.
func (rt *RoutingTables) Collector(name string) (CollectorInfo, error) {
	c, ok := rt.collectors[name]
	if !ok {
		return CollectorInfo{}, core.ErrNotFound
	}
	return CollectorInfo{
		Name:               c.name,
		PeerCnt:            len(c.peers),
		State:              c.state,
		ValidRecordCnt:     c.validRecordCnt,
		CorruptedRecordCnt: c.corruptedRecordCnt,
		EmptyRecordCnt:     c.emptyRecordCnt,
	}, nil
}
