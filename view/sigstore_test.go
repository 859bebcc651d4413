/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view_test

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"testing"

	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/view"

	"github.com/stretchr/testify/assert"
)

func TestSignatureInternIdempotent(t *testing.T) {
	store := view.NewSignatureStore()
	ip := netip.MustParseAddr("10.0.0.1")

	id1, err := store.Intern("rrc00", ip, 65001)
	assert.NoError(t, err)
	assert.NotEqual(t, view.PeerID(0), id1)

	id2, err := store.Intern("rrc00", ip, 65001)
	assert.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Distinct signatures get distinct IDs.
	id3, err := store.Intern("rrc00", ip, 65002)
	assert.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	id4, err := store.Intern("rrc01", ip, 65001)
	assert.NoError(t, err)
	assert.NotEqual(t, id1, id4)
	assert.Equal(t, 3, store.Len())
}

func TestSignatureRoundTrip(t *testing.T) {
	store := view.NewSignatureStore()
	ip := netip.MustParseAddr("2001:db8::1")

	id, err := store.Intern("route-views2", ip, 3356)
	assert.NoError(t, err)
	sig, err := store.Lookup(id)
	assert.NoError(t, err)
	assert.Equal(t, "route-views2", sig.Collector)
	assert.Equal(t, ip, sig.PeerIP)
	assert.Equal(t, uint32(3356), sig.PeerASN)

	_, err = store.Lookup(0)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	_, err = store.Lookup(42)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSignatureInvalidArgs(t *testing.T) {
	store := view.NewSignatureStore()
	_, err := store.Intern(strings.Repeat("x", 256), netip.MustParseAddr("10.0.0.1"), 1)
	assert.True(t, errors.Is(err, core.ErrInvalidArg))
	_, err = store.Intern("rrc00", netip.Addr{}, 1)
	assert.True(t, errors.Is(err, core.ErrInvalidArg))
}

func TestSignatureCapacity(t *testing.T) {
	store := view.NewSignatureStore()
	ip := netip.MustParseAddr("10.0.0.1")
	for i := 0; i < 65534; i++ {
		_, err := store.Intern("rrc00", ip, uint32(i))
		assert.NoError(t, err)
	}
	_, err := store.Intern("rrc00", ip, 70000)
	assert.True(t, errors.Is(err, core.ErrCapacity))
}

func TestSignatureRange(t *testing.T) {
	store := view.NewSignatureStore()
	ip := netip.MustParseAddr("10.0.0.1")
	for i := 0; i < 5; i++ {
		_, err := store.Intern(fmt.Sprintf("rrc%02d", i), ip, 65000)
		assert.NoError(t, err)
	}
	seen := 0
	store.Range(func(id view.PeerID, sig *view.PeerSignature) bool {
		seen++
		return true
	})
	assert.Equal(t, 5, seen)
}
