/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/consumers"
	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/rt"
	"github.com/sitedata/bgpview/source"
	"github.com/sitedata/bgpview/view"
)

// Version of BGPView.
var Version string

func main() {
	core.Version = Version
	core.StartTimestamp = time.Now()

	var shouldPrintVersion bool
	flag.BoolVar(&shouldPrintVersion, "version", false, "Print version and exit")
	var configFileName string
	flag.StringVar(&configFileName, "config", "/usr/local/etc/bgpview/bgpview.toml", "Configuration file location")
	var logFile string
	flag.StringVar(&logFile, "log-file", "", "Log to the specified file instead of stdout")
	flag.Parse()

	if shouldPrintVersion {
		fmt.Println("bgpview-archiver")
		fmt.Println("Version " + core.Version)
		os.Exit(0)
	}

	core.LoadConfig(configFileName)
	core.InitializeLogger(logFile)
	defer core.ShutdownLogger()
	rt.Configure()

	interval := core.GetConfigUint32Default("rt.interval", 60)
	collectors := core.GetConfigArrayString("sources.ris.collectors")
	if len(collectors) == 0 {
		collectors = []string{"rrc00"}
	}

	v := view.New(nil, nil)
	engine := rt.New(v)

	archiver, err := consumers.NewArchiver(consumers.ArchiverConfigure())
	if err != nil {
		core.LogFatal("Main", "Unable to create archiver: ", err)
	}

	elems := make(chan bgp.Elem, 4096)
	var sources []*source.RISClient
	for _, collector := range collectors {
		client := source.NewRISClient(collector)
		sources = append(sources, client)
		go func(c *source.RISClient) {
			for elem := range c.Elems() {
				elems <- elem
			}
		}(client)
		client.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	core.LogInfo("Main", "bgpview-archiver running with ", len(sources), " collectors")

	var nextInterval uint32
	running := true
	for running {
		select {
		case elem := <-elems:
			if nextInterval == 0 {
				nextInterval = (elem.Timestamp/interval + 1) * interval
				engine.IntervalStart(elem.Timestamp)
			}
			for elem.Timestamp >= nextInterval {
				if err := engine.IntervalEnd(nextInterval, true); err != nil {
					core.LogWarn("Main", "interval end: ", err)
				}
				if err := archiver.ProcessView(v); err != nil {
					core.LogWarn("Main", "archive: ", err)
				}
				engine.IntervalStart(nextInterval)
				nextInterval += interval
			}
			if err := engine.Process(&elem); err != nil {
				core.LogWarn("Main", "element dropped: ", err)
			}
		case sig := <-sigChan:
			core.LogInfo("Main", "received signal ", sig, ", shutting down")
			running = false
		}
	}

	for _, client := range sources {
		client.Stop()
	}
	if err := archiver.Close(); err != nil {
		core.LogError("Main", "closing archive: ", err)
	}
}
