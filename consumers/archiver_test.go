/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package consumers_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sitedata/bgpview/bgp"
	"github.com/sitedata/bgpview/consumers"
	"github.com/sitedata/bgpview/view"

	"github.com/stretchr/testify/assert"
)

func TestExpandPattern(t *testing.T) {
	// 2023-11-14 22:13:20 UTC
	assert.Equal(t, "bgpview.1700000000.bin", consumers.ExpandPattern("bgpview.%s.bin", 1700000000))
	assert.Equal(t, "2023/11/14/view-221320", consumers.ExpandPattern("%Y/%m/%d/view-%H%M%S", 1700000000))
	assert.Equal(t, "plain", consumers.ExpandPattern("plain", 1700000000))
}

func testView(t *testing.T, ts uint32) *view.View {
	t.Helper()
	v := view.New(nil, nil)
	v.SetTime(ts)
	peer, err := v.AddPeer("rrc00", netip.MustParseAddr("10.0.0.1"), 65001)
	assert.NoError(t, err)
	path, err := v.Paths().InsertPath(bgp.PathFromAsns(65001), true)
	assert.NoError(t, err)
	pfx := netip.MustParsePrefix("10.1.0.0/16")
	assert.NoError(t, v.AddPfxPeer(pfx, peer, path))
	_, err = v.ActivatePfxPeer(pfx, peer)
	assert.NoError(t, err)
	return v
}

func TestArchiverRotation(t *testing.T) {
	dir := t.TempDir()
	latest := filepath.Join(dir, "latest")
	archiver, err := consumers.NewArchiver(consumers.ArchiverConfig{
		OutfilePattern:   filepath.Join(dir, "view.%s.bin"),
		RotationInterval: 60,
		RotationAlign:    true,
		OutputFormat:     consumers.FormatBinary,
		LatestFilename:   latest,
	})
	assert.NoError(t, err)

	assert.NoError(t, archiver.ProcessView(testView(t, 1000)))
	assert.NoError(t, archiver.ProcessView(testView(t, 1010))) // same file, before 1020
	assert.NoError(t, archiver.ProcessView(testView(t, 1080))) // rotated
	assert.NoError(t, archiver.Close())

	first := filepath.Join(dir, "view.1000.bin")
	second := filepath.Join(dir, "view.1080.bin")
	_, err = os.Stat(first)
	assert.NoError(t, err)
	_, err = os.Stat(second)
	assert.NoError(t, err)

	// The first file holds two concatenated views.
	f, err := os.Open(first)
	assert.NoError(t, err)
	defer f.Close()
	dec := view.NewDecoder(f)
	dst := view.New(nil, nil)
	got, err := dec.Decode(dst)
	assert.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, uint32(1000), dst.Time())
	got, err = dec.Decode(dst)
	assert.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, uint32(1010), dst.Time())
	got, err = dec.Decode(dst)
	assert.NoError(t, err)
	assert.False(t, got)

	// The latest file names the most recently completed output.
	data, err := os.ReadFile(latest)
	assert.NoError(t, err)
	assert.Equal(t, second+"\n", string(data))
}

func TestArchiverASCIIGzip(t *testing.T) {
	dir := t.TempDir()
	archiver, err := consumers.NewArchiver(consumers.ArchiverConfig{
		OutfilePattern:   filepath.Join(dir, "view.%s.txt.gz"),
		CompressionLevel: 6,
		OutputFormat:     consumers.FormatASCII,
	})
	assert.NoError(t, err)
	assert.NoError(t, archiver.ProcessView(testView(t, 2000)))
	assert.NoError(t, archiver.Close())

	name := filepath.Join(dir, "view.2000.txt.gz")
	data, err := os.ReadFile(name)
	assert.NoError(t, err)
	// Gzip magic.
	assert.True(t, len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b)
	// No stray .part file remains.
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".part"))
	}
}

func TestArchiverBadConfig(t *testing.T) {
	_, err := consumers.NewArchiver(consumers.ArchiverConfig{})
	assert.Error(t, err)
	_, err = consumers.NewArchiver(consumers.ArchiverConfig{OutfilePattern: "x", CompressionLevel: 11})
	assert.Error(t, err)
}
