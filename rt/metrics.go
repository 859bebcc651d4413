/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package rt

import (
	"strconv"
	"strings"

	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/view"
)

// metricKey assembles a graphite metric path under the engine prefix.
func metricKey(parts ...string) string {
	return metricPrefix + ".routingtables." + strings.Join(parts, ".")
}

// peerMetricName returns the graphite-safe identity of a peer within its
// collector subtree: "peer.<asn>__<ip>".
func peerMetricName(sig *view.PeerSignature) string {
	return "peer." + strconv.FormatUint(uint64(sig.PeerASN), 10) + "__" + core.GraphiteSafe(sig.PeerIP.String())
}

// dumpMetrics publishes the per-peer and per-collector interval statistics
// into the process stats table. Values are absolute counters keyed by
// graphite-safe metric paths; a time-series sink samples them from there.
func (rt *RoutingTables) dumpMetrics(ts uint32) {
	perCollectorActive := make(map[*collectorData]uint64)

	it := rt.view.Iterate()
	for ok := it.FirstPeer(view.FilterAllState); ok; ok = it.NextPeer() {
		info := it.PeerInfo()
		data := peerState(info)
		if data == nil {
			continue
		}
		sig := it.PeerSig()
		if sig == nil {
			continue
		}
		if info.Active() {
			perCollectorActive[data.collector]++
		}
		base := data.collector.gSafeName + "." + peerMetricName(sig)
		core.ResetStat(metricKey(base, "active_v4_pfxs_cnt"), uint64(info.PfxCount(false)))
		core.ResetStat(metricKey(base, "active_v6_pfxs_cnt"), uint64(info.PfxCount(true)))
		core.ResetStat(metricKey(base, "announcements_cnt"), uint64(data.counters.announcements))
		core.ResetStat(metricKey(base, "withdrawals_cnt"), uint64(data.counters.withdrawals))
		core.ResetStat(metricKey(base, "state_messages_cnt"), uint64(data.counters.stateMessages))
		core.ResetStat(metricKey(base, "rib_positive_mismatches_cnt"), uint64(data.counters.ribPositiveMismatches))
		core.ResetStat(metricKey(base, "rib_negative_mismatches_cnt"), uint64(data.counters.ribNegativeMismatches))
		core.ResetStat(metricKey(base, "announcing_origin_ases_cnt"), uint64(len(data.counters.announcingOrigins)))
		core.ResetStat(metricKey(base, "announced_pfxs_cnt"), uint64(len(data.counters.announcedPfxs)))
		core.ResetStat(metricKey(base, "withdrawn_pfxs_cnt"), uint64(len(data.counters.withdrawnPfxs)))
		data.metricsGenerated = true
	}

	for _, collector := range rt.collectors {
		base := collector.gSafeName
		core.ResetStat(metricKey(base, "peers_cnt"), uint64(len(collector.peers)))
		core.ResetStat(metricKey(base, "active_peers_cnt"), perCollectorActive[collector])
		core.ResetStat(metricKey(base, "valid_record_cnt"), collector.validRecordCnt)
		core.ResetStat(metricKey(base, "corrupted_record_cnt"), collector.corruptedRecordCnt)
		core.ResetStat(metricKey(base, "empty_record_cnt"), collector.emptyRecordCnt)
	}
	core.ResetStat(metricKey("interval_end"), uint64(ts))
}
