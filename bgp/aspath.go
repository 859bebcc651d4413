/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package bgp

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/sitedata/bgpview/core"
)

// SegmentKind identifies the kind of an AS path segment, using the BGP wire
// codes (RFC 4271, RFC 5065).
type SegmentKind uint8

// AS path segment kinds.
const (
	SegmentAsSet          SegmentKind = 1
	SegmentAsSequence     SegmentKind = 2
	SegmentConfedSequence SegmentKind = 3
	SegmentConfedSet      SegmentKind = 4
)

func (k SegmentKind) valid() bool {
	return k >= SegmentAsSet && k <= SegmentConfedSet
}

// PathSegment is one segment of an AS path: a set or sequence of ASNs.
type PathSegment struct {
	Kind SegmentKind
	Asns []uint32
}

// Equal reports whether two segments have the same kind and ASN list.
func (s PathSegment) Equal(o PathSegment) bool {
	if s.Kind != o.Kind || len(s.Asns) != len(o.Asns) {
		return false
	}
	for i, asn := range s.Asns {
		if o.Asns[i] != asn {
			return false
		}
	}
	return true
}

// String renders the segment: sequences as space-separated ASNs, sets inside
// braces, confederation segments inside parentheses or brackets.
func (s PathSegment) String() string {
	var sb strings.Builder
	open, sep, closing := "", " ", ""
	switch s.Kind {
	case SegmentAsSet:
		open, sep, closing = "{", ",", "}"
	case SegmentConfedSequence:
		open, closing = "(", ")"
	case SegmentConfedSet:
		open, sep, closing = "[", ",", "]"
	}
	sb.WriteString(open)
	for i, asn := range s.Asns {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(strconv.FormatUint(uint64(asn), 10))
	}
	sb.WriteString(closing)
	return sb.String()
}

// Path is an ordered list of AS path segments.
type Path struct {
	Segments []PathSegment
}

// Equal reports whether two paths have identical segment lists.
func (p Path) Equal(o Path) bool {
	if len(p.Segments) != len(o.Segments) {
		return false
	}
	for i, seg := range p.Segments {
		if !seg.Equal(o.Segments[i]) {
			return false
		}
	}
	return true
}

// String renders the path with segments separated by spaces.
func (p Path) String() string {
	parts := make([]string, len(p.Segments))
	for i, seg := range p.Segments {
		parts[i] = seg.String()
	}
	return strings.Join(parts, " ")
}

// Origin returns the origin segment of the path: the last segment, narrowed
// to the final ASN when that segment is a plain sequence. An empty path has
// an empty origin segment.
func (p Path) Origin() PathSegment {
	if len(p.Segments) == 0 {
		return PathSegment{}
	}
	last := p.Segments[len(p.Segments)-1]
	if last.Kind == SegmentAsSequence && len(last.Asns) > 0 {
		return PathSegment{Kind: SegmentAsSequence, Asns: last.Asns[len(last.Asns)-1:]}
	}
	return last
}

// Encode serializes the path to its canonical byte form: for each segment a
// {kind u8, count u8} header followed by count big-endian u32 ASNs. Equal
// paths always produce equal encodings. Segments longer than 255 ASNs fail
// with core.ErrInvalidArg.
func (p Path) Encode() ([]byte, error) {
	size := 0
	for _, seg := range p.Segments {
		if !seg.Kind.valid() || len(seg.Asns) > 255 {
			return nil, fmt.Errorf("path segment %v: %w", seg.Kind, core.ErrInvalidArg)
		}
		size += 2 + 4*len(seg.Asns)
	}
	buf := make([]byte, 0, size)
	for _, seg := range p.Segments {
		buf = append(buf, byte(seg.Kind), byte(len(seg.Asns)))
		for _, asn := range seg.Asns {
			buf = binary.BigEndian.AppendUint32(buf, asn)
		}
	}
	return buf, nil
}

// DecodePath parses a canonical path encoding. Truncated or malformed input
// fails with core.ErrInvalidFormat.
func DecodePath(buf []byte) (Path, error) {
	var path Path
	for len(buf) > 0 {
		if len(buf) < 2 {
			return Path{}, fmt.Errorf("truncated path segment header: %w", core.ErrInvalidFormat)
		}
		kind := SegmentKind(buf[0])
		count := int(buf[1])
		buf = buf[2:]
		if !kind.valid() {
			return Path{}, fmt.Errorf("path segment kind %d: %w", kind, core.ErrInvalidFormat)
		}
		if len(buf) < 4*count {
			return Path{}, fmt.Errorf("truncated path segment body: %w", core.ErrInvalidFormat)
		}
		asns := make([]uint32, count)
		for i := 0; i < count; i++ {
			asns[i] = binary.BigEndian.Uint32(buf[4*i:])
		}
		buf = buf[4*count:]
		path.Segments = append(path.Segments, PathSegment{Kind: kind, Asns: asns})
	}
	return path, nil
}

// PathFromString parses a rendering produced by Path.String, e.g.
// "65001 65002 {65003,65004}". Used by tests.
func PathFromString(s string) (Path, error) {
	var path Path
	fields := strings.Fields(s)
	for i := 0; i < len(fields); i++ {
		field := fields[i]
		switch {
		case strings.HasPrefix(field, "{"):
			asns, err := parseAsnList(strings.Trim(field, "{}"))
			if err != nil {
				return Path{}, err
			}
			path.Segments = append(path.Segments, PathSegment{Kind: SegmentAsSet, Asns: asns})
		case strings.HasPrefix(field, "["):
			asns, err := parseAsnList(strings.Trim(field, "[]"))
			if err != nil {
				return Path{}, err
			}
			path.Segments = append(path.Segments, PathSegment{Kind: SegmentConfedSet, Asns: asns})
		case strings.HasPrefix(field, "("):
			// Confederation sequences span fields until the closing parenthesis.
			var parts []string
			for ; i < len(fields); i++ {
				parts = append(parts, strings.Trim(fields[i], "()"))
				if strings.HasSuffix(fields[i], ")") {
					break
				}
			}
			asns, err := parseAsnList(strings.Join(parts, ","))
			if err != nil {
				return Path{}, err
			}
			path.Segments = append(path.Segments, PathSegment{Kind: SegmentConfedSequence, Asns: asns})
		default:
			asn, err := strconv.ParseUint(field, 10, 32)
			if err != nil {
				return Path{}, fmt.Errorf("ASN %q: %w", field, core.ErrInvalidArg)
			}
			// Consecutive plain ASNs collapse into one sequence segment.
			if n := len(path.Segments); n > 0 && path.Segments[n-1].Kind == SegmentAsSequence {
				path.Segments[n-1].Asns = append(path.Segments[n-1].Asns, uint32(asn))
			} else {
				path.Segments = append(path.Segments, PathSegment{Kind: SegmentAsSequence, Asns: []uint32{uint32(asn)}})
			}
		}
	}
	return path, nil
}

func parseAsnList(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	asns := make([]uint32, 0, len(parts))
	for _, part := range parts {
		asn, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("ASN %q: %w", part, core.ErrInvalidArg)
		}
		asns = append(asns, uint32(asn))
	}
	return asns, nil
}

// PathFromAsns builds a single-sequence path from a plain ASN list.
func PathFromAsns(asns ...uint32) Path {
	if len(asns) == 0 {
		return Path{}
	}
	return Path{Segments: []PathSegment{{Kind: SegmentAsSequence, Asns: asns}}}
}
