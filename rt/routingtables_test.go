/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package rt_test

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/rt"
	"github.com/sitedata/bgpview/view"

	"github.com/stretchr/testify/assert"
)

var (
	peerIP = netip.MustParseAddr("10.0.0.1")
	pfxA   = netip.MustParsePrefix("10.1.0.0/16")
	pfxB   = netip.MustParsePrefix("10.2.0.0/16")
)

func ribElem(ts uint32, pfx netip.Prefix, asns ...uint32) *bgp.Elem {
	return &bgp.Elem{
		RecordType: bgp.RecordRib,
		Timestamp:  ts,
		Collector:  "rrc00",
		PeerIP:     peerIP,
		PeerASN:    65001,
		Type:       bgp.ElemRib,
		Prefix:     pfx,
		Path:       bgp.PathFromAsns(asns...),
	}
}

func announceElem(ts uint32, pfx netip.Prefix, asns ...uint32) *bgp.Elem {
	elem := ribElem(ts, pfx, asns...)
	elem.RecordType = bgp.RecordUpdate
	elem.Type = bgp.ElemAnnounce
	return elem
}

func withdrawElem(ts uint32, pfx netip.Prefix) *bgp.Elem {
	return &bgp.Elem{
		RecordType: bgp.RecordUpdate,
		Timestamp:  ts,
		Collector:  "rrc00",
		PeerIP:     peerIP,
		PeerASN:    65001,
		Type:       bgp.ElemWithdrawal,
		Prefix:     pfx,
	}
}

func stateElem(ts uint32, state bgp.FSMState) *bgp.Elem {
	return &bgp.Elem{
		RecordType: bgp.RecordUpdate,
		Timestamp:  ts,
		Collector:  "rrc00",
		PeerIP:     peerIP,
		PeerASN:    65001,
		Type:       bgp.ElemState,
		NewState:   state,
	}
}

// loadRib drives the engine through the reference scenario: one interval,
// a two-prefix RIB dump, promotion at the interval end.
func loadRib(t *testing.T) (*rt.RoutingTables, *view.View, view.PeerID) {
	t.Helper()
	v := view.New(nil, nil)
	engine := rt.New(v)

	engine.IntervalStart(1000)
	assert.NoError(t, engine.Process(ribElem(1000, pfxA, 65001)))
	assert.NoError(t, engine.Process(ribElem(1000, pfxB, 65001, 65002)))
	assert.NoError(t, engine.IntervalEnd(1010, true))

	peer, err := v.Sigs().Intern("rrc00", peerIP, 65001)
	assert.NoError(t, err)
	return engine, v, peer
}

// TestRibPromotion: a full dump becomes the active state at the interval
// end, and the UC window rolls into the reference window.
func TestRibPromotion(t *testing.T) {
	engine, v, peer := loadRib(t)

	assert.True(t, v.Peer(peer).Active())
	assert.True(t, v.PfxPeer(pfxA, peer).Active())
	assert.True(t, v.PfxPeer(pfxB, peer).Active())
	assert.Equal(t, uint32(2), v.Peer(peer).PfxCount(false))

	start, end := engine.RefRibWindow(peer)
	assert.Equal(t, uint32(1000), start)
	assert.Equal(t, uint32(1010), end)
	_, _, ucOpen := engine.UCRibWindow(peer)
	assert.False(t, ucOpen)

	// The dump established the session.
	assert.Equal(t, bgp.FSMEstablished, engine.FSM(peer))
	assert.Equal(t, uint32(1010), v.Time())
}

// TestWithdrawalInsideRefWindow: a live withdrawal after promotion turns the
// edge and the prefix off but keeps the peer up through its other prefix.
func TestWithdrawalInsideRefWindow(t *testing.T) {
	engine, v, peer := loadRib(t)

	assert.NoError(t, engine.Process(withdrawElem(1020, pfxA)))

	assert.False(t, v.PfxPeer(pfxA, peer).Active())
	assert.False(t, v.Pfx(pfxA).Active())
	assert.True(t, v.PfxPeer(pfxB, peer).Active())
	assert.True(t, v.Peer(peer).Active())
	assert.Equal(t, uint32(1), v.Peer(peer).PfxCount(false))
}

// TestPeerStateDown: leaving ESTABLISHED tears everything down and opens a
// new trust epoch.
func TestPeerStateDown(t *testing.T) {
	engine, v, peer := loadRib(t)

	assert.NoError(t, engine.Process(stateElem(1030, bgp.FSMIdle)))

	assert.False(t, v.Peer(peer).Active())
	assert.False(t, v.PfxPeer(pfxA, peer).Active())
	assert.False(t, v.PfxPeer(pfxB, peer).Active())
	assert.Equal(t, bgp.FSMIdle, engine.FSM(peer))
	start, _ := engine.RefRibWindow(peer)
	assert.Equal(t, uint32(1030), start)

	// Updates older than the new epoch are dropped.
	assert.NoError(t, engine.Process(stateElem(1040, bgp.FSMEstablished)))
	assert.NoError(t, engine.Process(announceElem(1025, pfxA, 65001)))
	assert.False(t, v.PfxPeer(pfxA, peer).Active())

	// Updates inside the epoch apply again.
	assert.NoError(t, engine.Process(announceElem(1050, pfxA, 65001)))
	assert.True(t, v.PfxPeer(pfxA, peer).Active())
	assert.True(t, v.Peer(peer).Active())
}

// TestAnnounceAfterPromotion: live announcements inside the trust window
// activate fresh prefixes directly.
func TestAnnounceAfterPromotion(t *testing.T) {
	engine, v, peer := loadRib(t)

	fresh := netip.MustParsePrefix("10.3.0.0/16")
	assert.NoError(t, engine.Process(announceElem(1015, fresh, 65001, 65003)))
	assert.True(t, v.PfxPeer(fresh, peer).Active())
	assert.Equal(t, uint32(3), v.Peer(peer).PfxCount(false))
}

// TestPositiveMismatch: an edge active before a new dump but missing from it
// is deactivated at promotion.
func TestPositiveMismatch(t *testing.T) {
	engine, v, peer := loadRib(t)

	// Second dump containing only pfxB.
	assert.NoError(t, engine.Process(ribElem(1100, pfxB, 65001, 65002)))
	assert.NoError(t, engine.IntervalEnd(1110, true))

	assert.False(t, v.PfxPeer(pfxA, peer).Active())
	assert.True(t, v.PfxPeer(pfxB, peer).Active())
	start, end := engine.RefRibWindow(peer)
	assert.Equal(t, uint32(1100), start)
	assert.Equal(t, uint32(1110), end)
}

// TestAnnounceDuringDumpJoinsSnapshot: an announcement arriving while a
// dump is in flight is folded into the snapshot under construction and
// survives the promotion.
func TestAnnounceDuringDumpJoinsSnapshot(t *testing.T) {
	engine, v, peer := loadRib(t)

	// Dump at 1100 lists only pfxB; an announce at 1150 lands inside the
	// open UC window for a prefix the dump has never seen.
	assert.NoError(t, engine.Process(ribElem(1100, pfxB, 65001, 65002)))
	fresh := netip.MustParsePrefix("10.4.0.0/16")
	assert.NoError(t, engine.Process(announceElem(1150, fresh, 65001)))
	assert.NoError(t, engine.IntervalEnd(1160, true))

	assert.True(t, v.PfxPeer(fresh, peer).Active())
	assert.True(t, v.PfxPeer(pfxB, peer).Active())
	// pfxA was absent from the new snapshot and nothing refreshed it.
	assert.False(t, v.PfxPeer(pfxA, peer).Active())
}

// TestWithdrawalInsideUCWindow: a withdrawal during a dump removes the entry
// from the snapshot before promotion.
func TestWithdrawalInsideUCWindow(t *testing.T) {
	v := view.New(nil, nil)
	engine := rt.New(v)

	engine.IntervalStart(1000)
	assert.NoError(t, engine.Process(ribElem(1000, pfxA, 65001)))
	assert.NoError(t, engine.Process(ribElem(1000, pfxB, 65001, 65002)))
	// The peer is not established yet, so make it so before the withdrawal.
	assert.NoError(t, engine.Process(stateElem(1001, bgp.FSMEstablished)))
	assert.NoError(t, engine.Process(withdrawElem(1005, pfxA)))
	assert.NoError(t, engine.IntervalEnd(1010, true))

	peer, _ := v.Sigs().Intern("rrc00", peerIP, 65001)
	assert.False(t, v.PfxPeer(pfxA, peer).Active())
	assert.True(t, v.PfxPeer(pfxB, peer).Active())
}

// TestOutOfOrderBarrier: after IntervalEnd returns, elements at or before
// the boundary fail.
func TestOutOfOrderBarrier(t *testing.T) {
	engine, _, _ := loadRib(t)

	err := engine.Process(announceElem(1010, pfxA, 65001))
	assert.True(t, errors.Is(err, core.ErrOutOfOrder))
	err = engine.Process(announceElem(900, pfxA, 65001))
	assert.True(t, errors.Is(err, core.ErrOutOfOrder))
	assert.NoError(t, engine.Process(announceElem(1011, pfxA, 65001)))

	err = engine.IntervalEnd(1010, false)
	assert.True(t, errors.Is(err, core.ErrOutOfOrder))
}

// TestCorruptedAndEmptyRecords: bad records are counted and dropped, never
// fatal.
func TestCorruptedAndEmptyRecords(t *testing.T) {
	v := view.New(nil, nil)
	engine := rt.New(v)

	corrupted := announceElem(1000, pfxA, 65001)
	corrupted.RecordStatus = bgp.StatusCorrupted
	assert.NoError(t, engine.Process(corrupted))

	empty := announceElem(1001, pfxA, 65001)
	empty.RecordStatus = bgp.StatusEmpty
	assert.NoError(t, engine.Process(empty))

	info, err := engine.Collector("rrc00")
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), info.CorruptedRecordCnt)
	assert.Equal(t, uint64(1), info.EmptyRecordCnt)
	assert.Equal(t, uint64(0), info.ValidRecordCnt)
	assert.Equal(t, 0, v.PfxCount())
}

// TestNotEstablishedDropped: updates from a peer that never reached
// ESTABLISHED do not touch the view.
func TestNotEstablishedDropped(t *testing.T) {
	v := view.New(nil, nil)
	engine := rt.New(v)

	assert.NoError(t, engine.Process(announceElem(1000, pfxA, 65001)))
	peer, _ := v.Sigs().Intern("rrc00", peerIP, 65001)
	assert.False(t, v.Peer(peer).Active())
	assert.Equal(t, 0, v.PfxCount())
}

// TestDeprecationSweep: inactive per-pfx records untouched for longer than
// the deprecation interval are dropped at the interval end.
func TestDeprecationSweep(t *testing.T) {
	v := view.New(nil, nil)
	engine := rt.New(v)
	base := uint32(rt.DeprecatedInfoInterval)

	engine.IntervalStart(base)
	assert.NoError(t, engine.Process(ribElem(base, pfxA, 65001)))
	assert.NoError(t, engine.Process(ribElem(base, pfxB, 65001, 65002)))
	assert.NoError(t, engine.IntervalEnd(base+10, true))

	peer, _ := v.Sigs().Intern("rrc00", peerIP, 65001)
	assert.NoError(t, engine.Process(withdrawElem(base+20, pfxA)))
	assert.False(t, v.PfxPeer(pfxA, peer).Active())

	// Keep pfxB fresh; let pfxA age out past the deprecation horizon.
	farFuture := base + 20 + rt.DeprecatedInfoInterval + 10
	assert.NoError(t, engine.Process(announceElem(farFuture, pfxB, 65001, 65002)))
	assert.NoError(t, engine.IntervalEnd(farFuture+10, false))

	assert.Nil(t, v.PfxPeer(pfxA, peer))
	assert.NotNil(t, v.PfxPeer(pfxB, peer))
	assert.True(t, v.PfxPeer(pfxB, peer).Active())
}
