/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

// Package consumers contains the view consumers: the file archiver and the
// view sender, which publishes full-feed-filtered views over a transport.
package consumers

import (
	"fmt"

	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/kafka"
	"github.com/sitedata/bgpview/view"
)

// Full-feed defaults: peers announcing fewer prefixes than these thresholds
// are dropped from published views.
const (
	DefaultFilterFFV4Min = 400000
	DefaultFilterFFV6Min = 10000
)

// ViewSenderConfig configures a ViewSender.
type ViewSenderConfig struct {
	// IOModule selects the transport; only "kafka" is built. "zmq" is
	// recognized but rejected.
	IOModule string
	// Instance identifies this sender; it is rewritten graphite-safe.
	Instance      string
	SyncInterval  uint32
	FilterFFV4Min uint32
	FilterFFV6Min uint32

	Brokers   []string
	Namespace string
}

// ViewSenderConfigure builds a ViewSenderConfig from the loaded configuration.
func ViewSenderConfigure() ViewSenderConfig {
	return ViewSenderConfig{
		IOModule:      core.GetConfigStringDefault("consumers.viewsender.io_module", "kafka"),
		Instance:      core.GetConfigStringDefault("consumers.viewsender.instance", "default"),
		SyncInterval:  core.GetConfigUint32Default("consumers.viewsender.sync_interval", kafka.DefaultSyncInterval),
		FilterFFV4Min: core.GetConfigUint32Default("consumers.viewsender.filter_ff_v4_min", DefaultFilterFFV4Min),
		FilterFFV6Min: core.GetConfigUint32Default("consumers.viewsender.filter_ff_v6_min", DefaultFilterFFV6Min),
		Brokers:       core.GetConfigArrayString("consumers.viewsender.brokers"),
		Namespace:     core.GetConfigStringDefault("consumers.viewsender.namespace", "bgpview"),
	}
}

// ViewSender publishes views over a transport, keeping only full-feed peers.
type ViewSender struct {
	cfg    ViewSenderConfig
	sender *kafka.Sender
}

// NewViewSender creates a view sender over the configured transport.
func NewViewSender(cfg ViewSenderConfig) (*ViewSender, error) {
	switch cfg.IOModule {
	case "kafka":
	case "zmq":
		return nil, fmt.Errorf("io module zmq is not built: %w", core.ErrTransport)
	default:
		return nil, fmt.Errorf("io module %q: %w", cfg.IOModule, core.ErrInvalidArg)
	}
	if cfg.FilterFFV4Min == 0 {
		cfg.FilterFFV4Min = DefaultFilterFFV4Min
	}
	if cfg.FilterFFV6Min == 0 {
		cfg.FilterFFV6Min = DefaultFilterFFV6Min
	}
	sender, err := kafka.NewSender(kafka.Config{
		Brokers:      cfg.Brokers,
		Namespace:    cfg.Namespace,
		Identity:     core.GraphiteSafe(cfg.Instance),
		SyncInterval: cfg.SyncInterval,
	})
	if err != nil {
		return nil, err
	}
	return &ViewSender{cfg: cfg, sender: sender}, nil
}

// FullFeedFilter returns the encode filter keeping only full-feed peers.
func (vs *ViewSender) FullFeedFilter() *view.Filter {
	return &view.Filter{
		Peer: func(id view.PeerID, info *view.PeerInfo, sig *view.PeerSignature) bool {
			return info.PfxCount(false) >= vs.cfg.FilterFFV4Min ||
				info.PfxCount(true) >= vs.cfg.FilterFFV6Min
		},
	}
}

// ProcessView publishes one view snapshot.
func (vs *ViewSender) ProcessView(v *view.View) error {
	return vs.sender.Publish(v, vs.FullFeedFilter())
}

// Close shuts down the transport.
func (vs *ViewSender) Close() {
	vs.sender.Close()
}
