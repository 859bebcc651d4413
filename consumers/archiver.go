/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package consumers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/sitedata/bgpview/core"
	"github.com/sitedata/bgpview/view"
)

// OutputFormat selects what the archiver writes.
type OutputFormat uint8

// Output formats.
const (
	FormatBinary OutputFormat = iota
	FormatASCII
)

// ArchiverConfig configures an Archiver.
type ArchiverConfig struct {
	// OutfilePattern names output files. "%s" expands to the view unix time;
	// %Y %m %d %H %M %S expand to calendar fields (UTC). Files ending in
	// ".gz" are gzip-compressed.
	OutfilePattern string
	// RotationInterval rotates the output every N view-seconds; 0 disables
	// rotation.
	RotationInterval uint32
	// RotationAlign aligns rotation times to multiples of the interval.
	RotationAlign bool
	// CompressionLevel is the gzip level (0..9) for ".gz" outputs.
	CompressionLevel int
	OutputFormat     OutputFormat
	// LatestFilename, when set, receives the name of each completed output
	// file after rotation.
	LatestFilename string
}

// Archiver writes successive views to rotating files. Completed files become
// visible atomically via rename-on-close; no fsync is issued, which is
// acceptable because a torn file never appears under its final name.
type Archiver struct {
	cfg ArchiverConfig

	file     *os.File
	gz       *gzip.Writer
	out      io.Writer
	partName string
	name     string

	nextRotateTime uint32
}

// NewArchiver creates an archiver. Nothing is opened until the first view.
func NewArchiver(cfg ArchiverConfig) (*Archiver, error) {
	if cfg.OutfilePattern == "" {
		return nil, fmt.Errorf("archiver needs an outfile pattern: %w", core.ErrInvalidArg)
	}
	if cfg.CompressionLevel < 0 || cfg.CompressionLevel > 9 {
		return nil, fmt.Errorf("compression level %d: %w", cfg.CompressionLevel, core.ErrInvalidArg)
	}
	return &Archiver{cfg: cfg}, nil
}

// ArchiverConfigure builds an ArchiverConfig from the loaded configuration.
func ArchiverConfigure() ArchiverConfig {
	cfg := ArchiverConfig{
		OutfilePattern:   core.GetConfigStringDefault("consumers.archiver.outfile_pattern", "bgpview.%s.gz"),
		RotationInterval: core.GetConfigUint32Default("consumers.archiver.rotation_interval", 0),
		RotationAlign:    core.GetConfigBoolDefault("consumers.archiver.rotation_align", true),
		CompressionLevel: core.GetConfigIntDefault("consumers.archiver.compression_level", 6),
		LatestFilename:   core.GetConfigStringDefault("consumers.archiver.latest_filename", ""),
	}
	if core.GetConfigStringDefault("consumers.archiver.output_format", "binary") == "ascii" {
		cfg.OutputFormat = FormatASCII
	}
	return cfg
}

// ExpandPattern expands the outfile pattern for the given view time.
func ExpandPattern(pattern string, ts uint32) string {
	t := time.Unix(int64(ts), 0).UTC()
	replacer := strings.NewReplacer(
		"%s", strconv.FormatInt(t.Unix(), 10),
		"%Y", fmt.Sprintf("%04d", t.Year()),
		"%m", fmt.Sprintf("%02d", int(t.Month())),
		"%d", fmt.Sprintf("%02d", t.Day()),
		"%H", fmt.Sprintf("%02d", t.Hour()),
		"%M", fmt.Sprintf("%02d", t.Minute()),
		"%S", fmt.Sprintf("%02d", t.Second()),
	)
	return replacer.Replace(pattern)
}

func (a *Archiver) shouldRotate(ts uint32) bool {
	if a.file == nil {
		return true
	}
	return a.cfg.RotationInterval > 0 && ts >= a.nextRotateTime
}

// ProcessView writes one view, rotating the output file first when due.
func (a *Archiver) ProcessView(v *view.View) error {
	ts := v.Time()
	if a.shouldRotate(ts) {
		if err := a.rotate(ts); err != nil {
			return err
		}
	}
	switch a.cfg.OutputFormat {
	case FormatASCII:
		return view.DumpASCII(a.out, v)
	default:
		return view.Encode(a.out, v, nil)
	}
}

func (a *Archiver) rotate(ts uint32) error {
	if err := a.closeCurrent(); err != nil {
		return err
	}

	name := ExpandPattern(a.cfg.OutfilePattern, ts)
	partName := name + ".part"
	if dir := filepath.Dir(name); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, core.ErrIo)
		}
	}
	file, err := os.Create(partName)
	if err != nil {
		return fmt.Errorf("create %s: %w", partName, core.ErrIo)
	}
	a.file = file
	a.partName = partName
	a.name = name
	a.out = file
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewWriterLevel(file, a.cfg.CompressionLevel)
		if err != nil {
			file.Close()
			return err
		}
		a.gz = gz
		a.out = gz
	}

	if a.cfg.RotationInterval > 0 {
		if a.cfg.RotationAlign {
			a.nextRotateTime = (ts/a.cfg.RotationInterval + 1) * a.cfg.RotationInterval
		} else {
			a.nextRotateTime = ts + a.cfg.RotationInterval
		}
	}
	core.LogInfo("Archiver", "rotated to ", name)
	return nil
}

func (a *Archiver) closeCurrent() error {
	if a.file == nil {
		return nil
	}
	if a.gz != nil {
		if err := a.gz.Close(); err != nil {
			return err
		}
		a.gz = nil
	}
	if err := a.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", a.partName, core.ErrIo)
	}
	if err := os.Rename(a.partName, a.name); err != nil {
		return fmt.Errorf("rename %s: %w", a.partName, core.ErrIo)
	}
	a.file = nil

	if a.cfg.LatestFilename != "" {
		if err := os.WriteFile(a.cfg.LatestFilename, []byte(a.name+"\n"), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", a.cfg.LatestFilename, core.ErrIo)
		}
	}
	return nil
}

// Close finishes and publishes the current output file.
func (a *Archiver) Close() error {
	return a.closeCurrent()
}
