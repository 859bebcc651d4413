/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package source

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/core"
)

// RISLiveURL is the websocket endpoint for RIS Live.
const RISLiveURL = "wss://ris-live.ripe.net/v1/ws/"

// Connection settings.
const (
	initialReconnectDelay = 5 * time.Second
	maxReconnectDelay     = 5 * time.Minute
	reconnectBackoff      = 2.0
	connectionTimeout     = 60 * time.Second
	writeTimeout          = 10 * time.Second
)

// RISClient is a websocket client for one RIS Live collector with automatic
// reconnection. Parsed elements are delivered on Elems.
type RISClient struct {
	collector string
	url       string
	elems     chan bgp.Elem
	done      chan struct{}
	wg        sync.WaitGroup

	messagesReceived uint64
	elemsParsed      uint64
	parseErrors      uint64
	reconnects       uint64

	running   atomic.Bool
	connected atomic.Bool
}

var _ ElemSource = &RISClient{}

// NewRISClient creates a RIS Live client for the given collector (e.g.
// "rrc00").
func NewRISClient(collector string) *RISClient {
	return &RISClient{
		collector: collector,
		url:       RISLiveURL,
		elems:     make(chan bgp.Elem, 1024),
		done:      make(chan struct{}),
	}
}

func (c *RISClient) String() string {
	return "RISClient " + c.collector
}

// Elems returns the element delivery channel. It is closed after Stop.
func (c *RISClient) Elems() <-chan bgp.Elem {
	return c.elems
}

// Start begins the websocket connection in a background task.
func (c *RISClient) Start() {
	if c.running.Swap(true) {
		core.LogWarn(c, "already running")
		return
	}
	c.wg.Add(1)
	go c.runLoop()
	core.LogInfo(c, "started")
}

// Stop shuts the client down and closes the element channel.
func (c *RISClient) Stop() {
	if !c.running.Swap(false) {
		return
	}
	close(c.done)
	c.wg.Wait()
	close(c.elems)
	core.LogInfo(c, "stopped")
}

// Connected reports whether a websocket session is currently up.
func (c *RISClient) Connected() bool {
	return c.connected.Load()
}

func (c *RISClient) runLoop() {
	defer c.wg.Done()

	reconnectDelay := initialReconnectDelay
	for c.running.Load() {
		err := c.connectAndStream()
		if err != nil {
			atomic.AddUint64(&c.reconnects, 1)
			core.LogWarn(c, "connection error: ", err, ", reconnecting in ", reconnectDelay)
		}
		select {
		case <-c.done:
			return
		case <-time.After(reconnectDelay):
			reconnectDelay = time.Duration(float64(reconnectDelay) * reconnectBackoff)
			if reconnectDelay > maxReconnectDelay {
				reconnectDelay = maxReconnectDelay
			}
		}
	}
}

func (c *RISClient) connectAndStream() error {
	dialer := websocket.Dialer{HandshakeTimeout: connectionTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, core.ErrTransport)
	}
	defer conn.Close()

	subscribe := map[string]interface{}{
		"type": "ris_subscribe",
		"data": map[string]string{"host": c.collector},
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.collector, core.ErrTransport)
	}

	c.connected.Store(true)
	defer c.connected.Store(false)
	core.LogInfo(c, "subscribed")

	for {
		select {
		case <-c.done:
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(connectionTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", core.ErrTransport)
		}
		atomic.AddUint64(&c.messagesReceived, 1)

		elems, err := ParseMessage(data, c.collector)
		if err != nil {
			atomic.AddUint64(&c.parseErrors, 1)
			core.LogDebug(c, "parse error: ", err)
			continue
		}
		for _, elem := range elems {
			select {
			case c.elems <- elem:
				atomic.AddUint64(&c.elemsParsed, 1)
			case <-c.done:
				return nil
			}
		}
	}
}

// Stats returns delivery statistics for monitoring.
func (c *RISClient) Stats() map[string]uint64 {
	return map[string]uint64{
		"messages_received": atomic.LoadUint64(&c.messagesReceived),
		"elems_parsed":      atomic.LoadUint64(&c.elemsParsed),
		"parse_errors":      atomic.LoadUint64(&c.parseErrors),
		"reconnects":        atomic.LoadUint64(&c.reconnects),
	}
}
