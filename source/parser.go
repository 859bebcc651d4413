/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package source

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/core"
)

// risMessage is the top-level message from RIS Live.
type risMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// risUpdateData is the BGP update data from RIS Live.
type risUpdateData struct {
	Timestamp     float64           `json:"timestamp"`
	Peer          string            `json:"peer"`
	PeerASN       json.RawMessage   `json:"peer_asn"` // can be string or number
	Type          string            `json:"type"`
	Path          json.RawMessage   `json:"path"`
	Announcements []risAnnouncement `json:"announcements"`
	Withdrawals   []string          `json:"withdrawals"`
	State         string            `json:"state"`
}

// risAnnouncement represents announced prefixes.
type risAnnouncement struct {
	Prefixes []string `json:"prefixes"`
}

// ParseMessage parses one RIS Live websocket message into BGP elements: one
// per announced prefix, one per withdrawal, one per peer state change.
// Messages that are not BGP data (rrc lists, pongs, errors) yield nil, nil.
func ParseMessage(data []byte, collector string) ([]bgp.Elem, error) {
	var msg risMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.Type != "ris_message" {
		return nil, nil
	}

	var update risUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		return nil, fmt.Errorf("unmarshal update data: %w", err)
	}

	peerIP, err := bgp.ParsePeerIP(update.Peer)
	if err != nil {
		return nil, err
	}
	peerASN := parseASN(update.PeerASN)
	base := bgp.Elem{
		RecordType:   bgp.RecordUpdate,
		RecordStatus: bgp.StatusValid,
		Timestamp:    uint32(update.Timestamp),
		Collector:    collector,
		PeerIP:       peerIP,
		PeerASN:      peerASN,
	}

	if update.Type == "STATE" || update.Type == "RIS_PEER_STATE" {
		elem := base
		elem.Type = bgp.ElemState
		elem.NewState = parseFSMState(update.State)
		return []bgp.Elem{elem}, nil
	}

	path, err := parseASPath(update.Path)
	if err != nil {
		return nil, err
	}

	var elems []bgp.Elem
	for _, ann := range update.Announcements {
		for _, prefix := range ann.Prefixes {
			pfx, err := bgp.ParsePrefix(prefix)
			if err != nil {
				return nil, err
			}
			elem := base
			elem.Type = bgp.ElemAnnounce
			elem.Prefix = pfx
			elem.Path = path
			elems = append(elems, elem)
		}
	}
	for _, prefix := range update.Withdrawals {
		pfx, err := bgp.ParsePrefix(prefix)
		if err != nil {
			return nil, err
		}
		elem := base
		elem.Type = bgp.ElemWithdrawal
		elem.Prefix = pfx
		elems = append(elems, elem)
	}
	return elems, nil
}

// parseASN handles both string and numeric ASN encodings.
func parseASN(raw json.RawMessage) uint32 {
	var asnNum uint32
	if err := json.Unmarshal(raw, &asnNum); err == nil {
		return asnNum
	}
	var asnStr string
	if err := json.Unmarshal(raw, &asnStr); err == nil {
		if asn, err := strconv.ParseUint(asnStr, 10, 32); err == nil {
			return uint32(asn)
		}
	}
	return 0
}

// parseASPath parses a RIS path array, which may contain nested arrays for
// AS sets.
func parseASPath(raw json.RawMessage) (bgp.Path, error) {
	if len(raw) == 0 {
		return bgp.Path{}, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return bgp.Path{}, fmt.Errorf("AS path: %w", core.ErrInvalidFormat)
	}
	var path bgp.Path
	appendAsn := func(asn uint32) {
		if n := len(path.Segments); n > 0 && path.Segments[n-1].Kind == bgp.SegmentAsSequence {
			path.Segments[n-1].Asns = append(path.Segments[n-1].Asns, asn)
		} else {
			path.Segments = append(path.Segments, bgp.PathSegment{Kind: bgp.SegmentAsSequence, Asns: []uint32{asn}})
		}
	}
	for _, elem := range elems {
		var asn uint32
		if err := json.Unmarshal(elem, &asn); err == nil {
			appendAsn(asn)
			continue
		}
		var set []uint32
		if err := json.Unmarshal(elem, &set); err == nil {
			path.Segments = append(path.Segments, bgp.PathSegment{Kind: bgp.SegmentAsSet, Asns: set})
			continue
		}
		return bgp.Path{}, fmt.Errorf("AS path element %s: %w", string(elem), core.ErrInvalidFormat)
	}
	return path, nil
}

// parseFSMState maps RIS peer state strings onto FSM states.
func parseFSMState(state string) bgp.FSMState {
	switch state {
	case "connected", "up", "established":
		return bgp.FSMEstablished
	case "down":
		return bgp.FSMIdle
	}
	return bgp.FSMUnknown
}
