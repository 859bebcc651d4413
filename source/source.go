/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

// Package source provides BGP element sources feeding the routing-table
// engine. The concrete source shipped here is a RIS Live websocket client.
package source

import "github.com/sitedata/bgpview/bgp"

// ElemSource is a live stream of BGP elements. Start begins delivery into
// Elems; Stop terminates it and closes the channel.
type ElemSource interface {
	Start()
	Stop()
	Elems() <-chan bgp.Elem
}
