/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package bgp

import "net/netip"

// RecordType identifies the kind of record an element was extracted from.
type RecordType uint8

// Record types.
const (
	RecordRib RecordType = iota
	RecordUpdate
)

// RecordStatus is the parse status of the record an element belongs to.
type RecordStatus uint8

// Record statuses.
const (
	StatusValid RecordStatus = iota
	StatusCorrupted
	StatusEmpty
)

// ElemType identifies what an element carries.
type ElemType uint8

// Element types.
const (
	ElemRib ElemType = iota
	ElemAnnounce
	ElemWithdrawal
	ElemState
)

func (t ElemType) String() string {
	switch t {
	case ElemRib:
		return "RIB"
	case ElemAnnounce:
		return "A"
	case ElemWithdrawal:
		return "W"
	case ElemState:
		return "S"
	}
	return "?"
}

// FSMState is a BGP finite-state-machine state (RFC 4271 codes).
type FSMState uint8

// Peer FSM states. A peer is considered up only in FSMEstablished.
const (
	FSMUnknown     FSMState = 0
	FSMIdle        FSMState = 1
	FSMConnect     FSMState = 2
	FSMActive      FSMState = 3
	FSMOpenSent    FSMState = 4
	FSMOpenConfirm FSMState = 5
	FSMEstablished FSMState = 6
)

func (s FSMState) String() string {
	switch s {
	case FSMIdle:
		return "IDLE"
	case FSMConnect:
		return "CONNECT"
	case FSMActive:
		return "ACTIVE"
	case FSMOpenSent:
		return "OPENSENT"
	case FSMOpenConfirm:
		return "OPENCONFIRM"
	case FSMEstablished:
		return "ESTABLISHED"
	}
	return "UNKNOWN"
}

// Elem is one BGP element: a RIB entry, an announcement, a withdrawal or a
// peer state change, tagged with its record metadata and origin peer.
type Elem struct {
	RecordType   RecordType
	RecordStatus RecordStatus
	Timestamp    uint32

	Collector string
	PeerIP    netip.Addr
	PeerASN   uint32

	Type   ElemType
	Prefix netip.Prefix // valid for RIB, ANNOUNCE, WITHDRAWAL
	Path   Path         // valid for RIB, ANNOUNCE

	OldState FSMState // valid for STATE
	NewState FSMState // valid for STATE
}
