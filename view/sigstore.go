/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view

import (
	"fmt"
	"math"
	"net/netip"

	"github.com/sitedata/bgpview/core"
)

// PeerID is a compact identifier for an interned peer signature. ID 0 is
// reserved as invalid.
type PeerID uint16

// PeerSignature identifies a peer as seen from a collector.
type PeerSignature struct {
	Collector string
	PeerIP    netip.Addr
	PeerASN   uint32
}

func (s PeerSignature) String() string {
	return s.Collector + "|" + s.PeerIP.String() + "|" + fmt.Sprint(s.PeerASN)
}

// maxCollectorLen bounds collector names so they fit the codec's u8 length field.
const maxCollectorLen = 255

// SignatureStore interns (collector, peer IP, peer ASN) triples to PeerIDs.
// It is append-only; IDs are stable for the lifetime of the store.
type SignatureStore struct {
	bySig map[PeerSignature]PeerID
	byID  []PeerSignature // index 0 unused
}

// NewSignatureStore creates an empty signature store.
func NewSignatureStore() *SignatureStore {
	return &SignatureStore{
		bySig: make(map[PeerSignature]PeerID),
		byID:  make([]PeerSignature, 1),
	}
}

// Intern returns the PeerID for the given signature, assigning a fresh ID on
// first sight. The same triple always yields the same ID. Collector names
// longer than 255 bytes and invalid addresses fail with core.ErrInvalidArg;
// exhausting the 16-bit ID space fails with core.ErrCapacity.
func (s *SignatureStore) Intern(collector string, ip netip.Addr, asn uint32) (PeerID, error) {
	if len(collector) > maxCollectorLen || !ip.IsValid() {
		return 0, fmt.Errorf("peer signature (%q, %v, %d): %w", collector, ip, asn, core.ErrInvalidArg)
	}
	sig := PeerSignature{Collector: collector, PeerIP: ip.Unmap(), PeerASN: asn}
	if id, ok := s.bySig[sig]; ok {
		return id, nil
	}
	if len(s.byID) >= math.MaxUint16 {
		return 0, fmt.Errorf("peer signature store: %w", core.ErrCapacity)
	}
	id := PeerID(len(s.byID))
	s.byID = append(s.byID, sig)
	s.bySig[sig] = id
	return id, nil
}

// Lookup returns the signature interned under id, or core.ErrNotFound.
func (s *SignatureStore) Lookup(id PeerID) (*PeerSignature, error) {
	if id == 0 || int(id) >= len(s.byID) {
		return nil, fmt.Errorf("peer ID %d: %w", id, core.ErrNotFound)
	}
	return &s.byID[id], nil
}

// Len returns the number of interned signatures.
func (s *SignatureStore) Len() int {
	return len(s.byID) - 1
}

// Range calls cb for every interned signature until cb returns false.
func (s *SignatureStore) Range(cb func(PeerID, *PeerSignature) bool) {
	for i := 1; i < len(s.byID); i++ {
		if !cb(PeerID(i), &s.byID[i]) {
			return
		}
	}
}
