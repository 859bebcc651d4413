/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package bgp

import (
	"fmt"
	"net/netip"

	"github.com/sitedata/bgpview/core"
)

// ParsePrefix parses a prefix in CIDR notation and returns it in canonical
// (masked, unmapped) form. Malformed input fails with core.ErrInvalidArg.
func ParsePrefix(s string) (netip.Prefix, error) {
	pfx, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("prefix %q: %w", s, core.ErrInvalidArg)
	}
	return CanonicalPrefix(pfx), nil
}

// CanonicalPrefix returns the canonical form of pfx: the address is unmapped
// (no IPv4-in-IPv6) and host bits are cleared. Prefixes are map keys, so all
// code paths must store them in this form.
func CanonicalPrefix(pfx netip.Prefix) netip.Prefix {
	return netip.PrefixFrom(pfx.Addr().Unmap(), pfx.Bits()).Masked()
}

// PrefixIsV4 reports whether pfx is an IPv4 prefix.
func PrefixIsV4(pfx netip.Prefix) bool {
	return pfx.Addr().Unmap().Is4()
}

// ParsePeerIP parses a peer address, unmapping IPv4-in-IPv6 forms.
func ParsePeerIP(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("peer address %q: %w", s, core.ErrInvalidArg)
	}
	return addr.Unmap(), nil
}
