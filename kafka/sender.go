/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

// Package kafka publishes view snapshots to a Kafka topic namespace: full
// sync frames on a fixed cadence and parent-relative diff frames in between.
package kafka

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/view"
)

// Config configures a Sender.
type Config struct {
	Brokers   []string
	Namespace string
	// Identity names this producer inside the namespace; it must already be
	// graphite-safe.
	Identity string
	// SyncInterval is the cadence (in view-time seconds) of full syncs.
	SyncInterval uint32
}

// DefaultSyncInterval is the default cadence of full sync frames.
const DefaultSyncInterval = 3600

// Sender publishes views. Publication runs on a background worker per
// (identity, topic-group); the owner task hands over detached frames and
// never touches them again.
type Sender struct {
	cfg    Config
	worker *worker

	// parent is a detached copy of the last published view, the base for
	// diff frames.
	parent *view.View
	synced bool

	lastStats *view.DiffStats
}

// NewSender creates a sender and starts its background worker.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.Namespace == "" || cfg.Identity == "" {
		return nil, fmt.Errorf("kafka sender needs namespace and identity: %w", core.ErrInvalidArg)
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	return &Sender{
		cfg:    cfg,
		worker: newWorker(cfg.Brokers),
	}, nil
}

func (s *Sender) topic(suffix string) string {
	return s.cfg.Namespace + "." + s.cfg.Identity + "." + suffix
}

// metaMessage is the JSON payload on the meta topics.
type metaMessage struct {
	Identity   string          `json:"identity"`
	Time       uint32          `json:"time"`
	Type       string          `json:"type"` // "sync" or "diff"
	ParentTime uint32          `json:"parent_time,omitempty"`
	Stats      *view.DiffStats `json:"stats,omitempty"`
}

// Publish serializes v and hands it to the worker. A full sync frame is
// emitted when the view time aligns with the sync cadence; otherwise a diff
// against the previously published view. Until the first aligned sync the
// view is skipped entirely, so late-started producers join the cadence
// cleanly.
func (s *Sender) Publish(v *view.View, filter *view.Filter) error {
	t := v.Time()
	aligned := t%s.cfg.SyncInterval == 0

	if !s.synced && !aligned {
		core.LogDebug("KafkaSender", "skipping out-of-step view at ", t)
		return nil
	}

	var payload bytes.Buffer
	meta := metaMessage{Identity: s.cfg.Identity, Time: t}

	if aligned || s.parent == nil {
		if err := view.Encode(&payload, v, filter); err != nil {
			return err
		}
		meta.Type = "sync"
		s.lastStats = nil
	} else {
		stats, err := view.EncodeDiff(&payload, s.parent, v)
		if err != nil {
			return err
		}
		meta.Type = "diff"
		meta.ParentTime = s.parent.Time()
		meta.Stats = stats
		s.lastStats = stats
	}

	metaPayload, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	peersPayload, err := json.Marshal(peerTable(v, filter))
	if err != nil {
		return err
	}
	key := []byte(s.cfg.Identity)
	j := &job{frames: []frame{
		{topic: s.topic("pfxs"), key: key, payload: payload.Bytes()},
		{topic: s.topic("peers"), key: key, payload: peersPayload},
		{topic: s.topic("meta"), key: key, payload: metaPayload},
		{topic: s.cfg.Namespace + ".members", key: key, payload: metaPayload},
		{topic: s.cfg.Namespace + ".globalmeta", key: key, payload: metaPayload},
	}}
	if err := s.worker.submit(j); err != nil {
		return fmt.Errorf("submit view at %d: %w", t, err)
	}

	// The parent for the next diff is a detached copy; the live view keeps
	// changing under the engine.
	s.parent = v.Dup()
	if aligned {
		s.synced = true
	}
	return nil
}

// peerRecord is one row of the peers-topic table.
type peerRecord struct {
	Collector string `json:"collector"`
	PeerIP    string `json:"peer_ip"`
	PeerASN   uint32 `json:"peer_asn"`
	PfxCntV4  uint32 `json:"pfx_cnt_v4"`
	PfxCntV6  uint32 `json:"pfx_cnt_v6"`
}

// peerTable renders the active peers surviving the filter.
func peerTable(v *view.View, filter *view.Filter) []peerRecord {
	var peers []peerRecord
	it := v.Iterate()
	for ok := it.FirstPeer(view.FilterActive); ok; ok = it.NextPeer() {
		sig := it.PeerSig()
		info := it.PeerInfo()
		if sig == nil || info == nil {
			continue
		}
		if filter != nil && filter.Peer != nil && !filter.Peer(it.PeerID(), info, sig) {
			continue
		}
		peers = append(peers, peerRecord{
			Collector: sig.Collector,
			PeerIP:    sig.PeerIP.String(),
			PeerASN:   sig.PeerASN,
			PfxCntV4:  info.PfxCount(false),
			PfxCntV6:  info.PfxCount(true),
		})
	}
	return peers
}

// LastDiffStats returns the statistics of the most recent diff frame, or nil
// if the last frame was a sync.
func (s *Sender) LastDiffStats() *view.DiffStats {
	return s.lastStats
}

// Close shuts down the background worker, draining pending frames for a
// bounded time.
func (s *Sender) Close() {
	s.worker.shutdown()
}
