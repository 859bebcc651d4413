/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

// Package rt implements the routing-table state engine: a per-collector /
// per-peer state machine that consumes BGP elements and maintains the shared
// view, reconciling under-construction RIB dumps against the live update
// stream.
package rt

import (
	"fmt"
	"net/netip"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/view"
)

// DeprecatedInfoInterval is how long an inactive per-pfx record survives
// without being touched before the interval sweep drops it.
const DeprecatedInfoInterval = 24 * 3600

// defaultMetricPrefix prefixes every stats key the engine emits.
const defaultMetricPrefix = "bgp"

var metricPrefix = defaultMetricPrefix

// Configure configures the routing-table engine from the loaded config.
func Configure() {
	metricPrefix = core.GetConfigStringDefault("rt.metric_prefix", defaultMetricPrefix)
}

// RoutingTables is the state engine. It does not own the view: the caller
// injects it and remains free to read it between calls. All methods must be
// called from the single owner task.
type RoutingTables struct {
	view       *view.View
	collectors map[string]*collectorData

	intervalStart   uint32
	lastIntervalEnd uint32
	intervalOpen    bool
	barrierArmed    bool
	stopped         bool
}

// New creates an engine over the given view.
func New(v *view.View) *RoutingTables {
	return &RoutingTables{
		view:       v,
		collectors: make(map[string]*collectorData),
	}
}

// View returns the view the engine maintains.
func (rt *RoutingTables) View() *view.View {
	return rt.view
}

// Stop cancels the engine. Since the engine is single-threaded cooperative,
// cancellation is naturally observed at an element boundary: whatever
// element was being handled has completed. All engine-owned state is
// released; further elements are rejected. The view is left as-is for its
// owner.
func (rt *RoutingTables) Stop() {
	rt.stopped = true
	rt.collectors = make(map[string]*collectorData)
}

// IntervalStart signals the beginning of a statistics interval. Per-peer
// interval counters are reset.
func (rt *RoutingTables) IntervalStart(ts uint32) {
	rt.intervalStart = ts
	rt.intervalOpen = true
	for _, info := range rt.allPeerData() {
		info.counters.reset()
		info.metricsGenerated = false
	}
}

// IntervalEnd closes the current interval at ts. When eovrib is set, every
// open UC RIB is promoted to reference state first. Afterwards the interval
// statistics are dumped and deprecated per-pfx records are swept. IntervalEnd
// is a barrier: once it returns, elements with timestamps at or before ts
// fail with core.ErrOutOfOrder.
func (rt *RoutingTables) IntervalEnd(ts uint32, eovrib bool) error {
	if rt.barrierArmed && ts <= rt.lastIntervalEnd {
		return fmt.Errorf("interval end at %d after barrier %d: %w", ts, rt.lastIntervalEnd, core.ErrOutOfOrder)
	}
	if eovrib {
		if err := rt.promoteUCRibs(ts); err != nil {
			return err
		}
	}
	rt.dumpMetrics(ts)
	rt.sweepDeprecated(ts)
	rt.view.SetTime(ts)
	rt.lastIntervalEnd = ts
	rt.barrierArmed = true
	rt.intervalOpen = false
	return nil
}

// Process applies one BGP element to the engine state. Per-element failures
// of the input (corrupted or empty records, stale timestamps, unknown types)
// never abort: they are counted or logged and dropped. The errors returned
// are ordering violations, a nil element, a stopped engine, and failures
// passed up from the view and its stores (for example a path or peer
// signature the stores reject).
func (rt *RoutingTables) Process(elem *bgp.Elem) error {
	if elem == nil {
		return fmt.Errorf("nil element: %w", core.ErrInvalidArg)
	}
	if rt.stopped {
		return fmt.Errorf("engine stopped: %w", core.ErrInternal)
	}
	if rt.barrierArmed && elem.Timestamp <= rt.lastIntervalEnd {
		return fmt.Errorf("element at %d after barrier %d: %w", elem.Timestamp, rt.lastIntervalEnd, core.ErrOutOfOrder)
	}

	collector := rt.getCollector(elem.Collector)
	switch elem.RecordStatus {
	case bgp.StatusCorrupted:
		collector.corruptedRecordCnt++
		return nil
	case bgp.StatusEmpty:
		collector.emptyRecordCnt++
		return nil
	}
	collector.validRecordCnt++
	collector.state = CollectorUp

	peerID, data, err := rt.getPeer(collector, elem)
	if err != nil {
		return err
	}
	if elem.Timestamp > data.lastTs {
		data.lastTs = elem.Timestamp
	}

	switch elem.Type {
	case bgp.ElemRib:
		return rt.handleRibEntry(collector, peerID, data, elem)
	case bgp.ElemAnnounce:
		return rt.handleAnnounce(peerID, data, elem)
	case bgp.ElemWithdrawal:
		return rt.handleWithdrawal(peerID, data, elem)
	case bgp.ElemState:
		return rt.handleState(peerID, data, elem)
	}
	core.LogDebug("RoutingTables", "dropping element of unknown type ", uint8(elem.Type))
	return nil
}

func (rt *RoutingTables) getCollector(name string) *collectorData {
	c, ok := rt.collectors[name]
	if !ok {
		c = &collectorData{
			name:      name,
			gSafeName: core.GraphiteSafe(name),
			peers:     make(map[view.PeerID]struct{}),
		}
		rt.collectors[name] = c
		core.LogInfo("RoutingTables", "registered collector ", name)
	}
	return c
}

func (rt *RoutingTables) getPeer(collector *collectorData, elem *bgp.Elem) (view.PeerID, *peerData, error) {
	id, err := rt.view.AddPeer(elem.Collector, elem.PeerIP, elem.PeerASN)
	if err != nil {
		// Signature capacity exhaustion is unrecoverable for the engine.
		return 0, nil, err
	}
	info := rt.view.Peer(id)
	data := peerState(info)
	if data == nil {
		data = &peerData{
			collector: collector,
			fsmState:  bgp.FSMUnknown,
			counters:  newPeerCounters(),
		}
		info.User = data
		collector.peers[id] = struct{}{}
	}
	return id, data, nil
}

// getOrCreateEdge materializes the (pfx, peer) edge and its engine record.
func (rt *RoutingTables) getOrCreateEdge(pfx netip.Prefix, peerID view.PeerID, path view.PathID) (*view.PfxPeerInfo, *pfxPeerData, error) {
	info := rt.view.PfxPeer(pfx, peerID)
	if info == nil {
		if err := rt.view.AddPfxPeer(pfx, peerID, path); err != nil {
			return nil, nil, err
		}
		info = rt.view.PfxPeer(pfx, peerID)
	}
	data := edgeState(info)
	if data == nil {
		data = &pfxPeerData{}
		info.User = data
	}
	return info, data, nil
}

func (rt *RoutingTables) internPath(path bgp.Path) (view.PathID, error) {
	return rt.view.Paths().InsertPath(path, true)
}
