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

// handleRibEntry records one RIB dump entry into the peer's UC RIB, opening
// it if necessary. The entry stays invisible to the active state until the
// end-of-valid-RIB promotion.
func (rt *RoutingTables) handleRibEntry(collector *collectorData, peerID view.PeerID, data *peerData, elem *bgp.Elem) error {
	ts := elem.Timestamp
	if !data.ucOpen {
		data.ucOpen = true
		data.bgpTimeUCRibStart = ts
		data.bgpTimeUCRibEnd = ts
		if collector.bgpTimeUCRibDumpStart == 0 || ts < collector.bgpTimeUCRibDumpStart {
			collector.bgpTimeUCRibDumpStart = ts
		}
	}
	if ts > data.bgpTimeUCRibEnd {
		data.bgpTimeUCRibEnd = ts
	}
	if ts > collector.bgpTimeUCRibDumpEnd {
		collector.bgpTimeUCRibDumpEnd = ts
	}

	pfx := bgp.CanonicalPrefix(elem.Prefix)
	pathID, err := rt.internPath(elem.Path)
	if err != nil {
		return err
	}
	_, edge, err := rt.getOrCreateEdge(pfx, peerID, pathID)
	if err != nil {
		return err
	}
	// A live update newer than this dump entry wins; the snapshot entry is
	// ignored for that edge.
	if edge.liveTs > ts {
		return nil
	}
	edge.ucPathID = pathID
	edge.ucTs = ts
	edge.status |= statusUCAnnounced
	if ts > edge.bgpTimeLast {
		edge.bgpTimeLast = ts
	}
	return nil
}

// handleAnnounce applies a live announcement: into the open UC RIB when the
// timestamp falls inside its window, directly to the view when inside the
// peer's reference trust window, dropped otherwise.
func (rt *RoutingTables) handleAnnounce(peerID view.PeerID, data *peerData, elem *bgp.Elem) error {
	if !data.up() {
		core.LogTrace("RoutingTables", "dropping announcement from peer ", uint16(peerID), " not established")
		return nil
	}
	ts := elem.Timestamp
	pfx := bgp.CanonicalPrefix(elem.Prefix)

	data.counters.announcements++
	data.counters.announcedPfxs[pfx] = struct{}{}
	if origin := elem.Path.Origin(); len(origin.Asns) > 0 {
		data.counters.announcingOrigins[origin.String()] = struct{}{}
	}

	pathID, err := rt.internPath(elem.Path)
	if err != nil {
		return err
	}

	if data.ucOpen && ts >= data.bgpTimeUCRibStart {
		// Inside the UC window: the announcement becomes part of the
		// snapshot under construction.
		_, edge, err := rt.getOrCreateEdge(pfx, peerID, pathID)
		if err != nil {
			return err
		}
		if edge.ucTs > ts {
			return nil
		}
		edge.ucPathID = pathID
		edge.ucTs = ts
		edge.status |= statusUCAnnounced
		if ts > data.bgpTimeUCRibEnd {
			data.bgpTimeUCRibEnd = ts
		}
		if ts > edge.bgpTimeLast {
			edge.bgpTimeLast = ts
		}
		return nil
	}

	if ts < data.bgpTimeRefRibStart {
		// Positive-stale: predates the peer's trust epoch.
		return nil
	}
	_, edge, err := rt.getOrCreateEdge(pfx, peerID, pathID)
	if err != nil {
		return err
	}
	if edge.liveTs > ts {
		return nil
	}
	if err := rt.view.AddPfxPeer(pfx, peerID, pathID); err != nil {
		return err
	}
	if _, err := rt.view.ActivatePfxPeer(pfx, peerID); err != nil {
		return err
	}
	edge.liveTs = ts
	edge.status |= statusAnnounced
	if ts > edge.bgpTimeLast {
		edge.bgpTimeLast = ts
	}
	return nil
}

// handleWithdrawal clears the edge from the open UC RIB when the timestamp
// falls inside its window, and deactivates the live edge when inside the
// reference trust window. The edge itself stays present.
func (rt *RoutingTables) handleWithdrawal(peerID view.PeerID, data *peerData, elem *bgp.Elem) error {
	if !data.up() {
		core.LogTrace("RoutingTables", "dropping withdrawal from peer ", uint16(peerID), " not established")
		return nil
	}
	ts := elem.Timestamp
	pfx := bgp.CanonicalPrefix(elem.Prefix)

	data.counters.withdrawals++
	data.counters.withdrawnPfxs[pfx] = struct{}{}

	info := rt.view.PfxPeer(pfx, peerID)
	edge := edgeState(info)
	if edge == nil {
		return nil
	}

	if data.ucOpen && ts >= data.bgpTimeUCRibStart && ts >= edge.ucTs {
		edge.status &^= statusUCAnnounced
		edge.ucTs = ts
	}
	if ts >= data.bgpTimeRefRibStart && ts >= edge.liveTs {
		if _, err := rt.view.DeactivatePfxPeer(pfx, peerID); err != nil {
			return err
		}
		edge.liveTs = ts
		edge.status &^= statusAnnounced
	}
	if ts > edge.bgpTimeLast {
		edge.bgpTimeLast = ts
	}
	return nil
}

// handleState applies a peer FSM transition. Leaving ESTABLISHED tears down
// the peer's active state and opens a new trust epoch; entering ESTABLISHED
// resets the interval counters and waits for a RIB or live announcements.
func (rt *RoutingTables) handleState(peerID view.PeerID, data *peerData, elem *bgp.Elem) error {
	ts := elem.Timestamp
	newState := elem.NewState
	oldState := data.fsmState
	data.counters.stateMessages++
	if newState == oldState {
		return nil
	}
	data.fsmState = newState

	if oldState == bgp.FSMEstablished && newState != bgp.FSMEstablished {
		if _, err := rt.view.DeactivatePeer(peerID); err != nil {
			return err
		}
		data.bgpTimeRefRibStart = ts
		data.bgpTimeRefRibEnd = 0
		data.ucOpen = false
		data.bgpTimeUCRibStart = 0
		data.bgpTimeUCRibEnd = 0
		core.LogDebug("RoutingTables", "peer ", uint16(peerID), " left established (", newState.String(), ")")
		return nil
	}
	if newState == bgp.FSMEstablished {
		data.counters.reset()
	}
	return nil
}

// promoteUCRibs applies the end-of-valid-RIB promotion for every peer with
// an open UC RIB: UC entries become the active state, previously-active
// edges absent from the snapshot are deactivated (positive mismatches), and
// snapshot entries never seen live are counted as negative mismatches.
func (rt *RoutingTables) promoteUCRibs(ts uint32) error {
	promoting := make(map[view.PeerID]*peerData)
	it := rt.view.Iterate()
	for ok := it.FirstPeer(view.FilterAllState); ok; ok = it.NextPeer() {
		data := peerState(it.PeerInfo())
		if data != nil && data.ucOpen {
			if ts > data.bgpTimeUCRibEnd {
				data.bgpTimeUCRibEnd = ts
			}
			promoting[it.PeerID()] = data
		}
	}
	if len(promoting) == 0 {
		return nil
	}

	type edgeRef struct {
		pfx  netip.Prefix
		peer view.PeerID
	}
	var activate, deactivate []edgeRef

	for ok := it.FirstPfx(view.FilterAllState, view.FamilyBoth); ok; ok = it.NextPfx() {
		pfx := it.Pfx()
		for ok := it.FirstPfxPeer(view.FilterAllState); ok; ok = it.NextPfxPeer() {
			peerID := it.PfxPeerID()
			data, isPromoting := promoting[peerID]
			if !isPromoting {
				continue
			}
			info := it.PfxPeerInfo()
			edge := edgeState(info)
			if edge == nil {
				continue
			}
			if edge.status&statusUCAnnounced != 0 {
				if edge.liveTs > edge.ucTs {
					// A newer live update superseded the snapshot entry.
					edge.status &^= statusUCAnnounced
					continue
				}
				if edge.status&statusAnnounced == 0 {
					data.counters.ribNegativeMismatches++
				}
				activate = append(activate, edgeRef{pfx: pfx, peer: peerID})
				continue
			}
			if info.Active() && edge.liveTs <= data.bgpTimeUCRibEnd {
				// Active before the dump, absent from it, and not refreshed
				// by anything newer: withdrawn while we were not looking.
				data.counters.ribPositiveMismatches++
				deactivate = append(deactivate, edgeRef{pfx: pfx, peer: peerID})
			}
		}
	}

	// Mutations happen after the scan so the cursor stays valid.
	for _, ref := range activate {
		info := rt.view.PfxPeer(ref.pfx, ref.peer)
		edge := edgeState(info)
		if err := rt.view.AddPfxPeer(ref.pfx, ref.peer, edge.ucPathID); err != nil {
			return err
		}
		if _, err := rt.view.ActivatePfxPeer(ref.pfx, ref.peer); err != nil {
			return err
		}
		edge.status &^= statusUCAnnounced
		edge.status |= statusAnnounced
		if edge.ucTs > edge.bgpTimeLast {
			edge.bgpTimeLast = edge.ucTs
		}
	}
	for _, ref := range deactivate {
		info := rt.view.PfxPeer(ref.pfx, ref.peer)
		edge := edgeState(info)
		if _, err := rt.view.DeactivatePfxPeer(ref.pfx, ref.peer); err != nil {
			return err
		}
		edge.status &^= statusAnnounced
	}

	for _, data := range promoting {
		data.bgpTimeRefRibStart = data.bgpTimeUCRibStart
		data.bgpTimeRefRibEnd = data.bgpTimeUCRibEnd
		data.ucOpen = false
		data.bgpTimeUCRibStart = 0
		data.bgpTimeUCRibEnd = 0
		// A peer delivering a full RIB is necessarily up.
		data.fsmState = bgp.FSMEstablished
		collector := data.collector
		collector.bgpTimeRefRibDumpStart = collector.bgpTimeUCRibDumpStart
		collector.bgpTimeRefRibDumpEnd = collector.bgpTimeUCRibDumpEnd
		collector.bgpTimeUCRibDumpStart = 0
		collector.bgpTimeUCRibDumpEnd = 0
	}
	return nil
}

// sweepDeprecated drops per-pfx records that are inactive and untouched for
// longer than DeprecatedInfoInterval, releasing their memory.
func (rt *RoutingTables) sweepDeprecated(ts uint32) {
	if ts < DeprecatedInfoInterval {
		return
	}
	cutoff := ts - DeprecatedInfoInterval

	type edgeRef struct {
		pfx  netip.Prefix
		peer view.PeerID
	}
	var drop []edgeRef

	it := rt.view.Iterate()
	for ok := it.FirstPfx(view.FilterAllState, view.FamilyBoth); ok; ok = it.NextPfx() {
		pfx := it.Pfx()
		for ok := it.FirstPfxPeer(view.FilterInactive); ok; ok = it.NextPfxPeer() {
			edge := edgeState(it.PfxPeerInfo())
			if edge != nil && edge.bgpTimeLast < cutoff {
				drop = append(drop, edgeRef{pfx: pfx, peer: it.PfxPeerID()})
			}
		}
	}
	for _, ref := range drop {
		if err := rt.view.RemovePfxPeer(ref.pfx, ref.peer); err != nil {
			core.LogWarn("RoutingTables", "sweep failed for ", ref.pfx.String(), ": ", err)
		}
	}
	if len(drop) > 0 {
		core.LogDebug("RoutingTables", "swept ", len(drop), " deprecated pfx records")
	}
}

// allPeerData returns the engine records of every known peer.
func (rt *RoutingTables) allPeerData() []*peerData {
	var out []*peerData
	it := rt.view.Iterate()
	for ok := it.FirstPeer(view.FilterAllState); ok; ok = it.NextPeer() {
		if data := peerState(it.PeerInfo()); data != nil {
			out = append(out, data)
		}
	}
	return out
}
