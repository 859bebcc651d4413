/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package view

import (
	"bufio"
	"fmt"
	"io"
)

// DumpASCII writes the active contents of v as a human-readable table: three
// header lines, then one pipe-separated line per active pfx-peer:
//
//	TIME|PFX|COLLECTOR|PEER_ASN|PEER_IP|AS_PATH|ORIGIN_SEG
func DumpASCII(w io.Writer, v *View) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# View %d\n", v.time)
	fmt.Fprintf(bw, "# IPv4 Prefixes: %d\n", v.ActivePfxCount(false))
	fmt.Fprintf(bw, "# IPv6 Prefixes: %d\n", v.ActivePfxCount(true))

	it := v.Iterate()
	for ok := it.FirstPfx(FilterActive, FamilyBoth); ok; ok = it.NextPfx() {
		pfx := it.Pfx()
		for ok := it.FirstPfxPeer(FilterActive); ok; ok = it.NextPfxPeer() {
			sig, err := v.sigs.Lookup(it.PfxPeerID())
			if err != nil {
				return err
			}
			sp, err := v.paths.Get(it.PfxPeerInfo().PathID())
			if err != nil {
				return err
			}
			path, err := sp.Path()
			if err != nil {
				return err
			}
			fmt.Fprintf(bw, "%d|%s|%s|%d|%s|%s|%s\n",
				v.time, pfx, sig.Collector, sig.PeerASN, sig.PeerIP, path, path.Origin())
		}
	}
	return bw.Flush()
}
