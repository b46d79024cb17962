// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stream holds the archive stream model shared by the fetcher,
// stitcher, waveform generator and persister.
package stream

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Type classifies an archive stream. The type decides the destination
// container during persistence: stitched audio is public, everything else
// is private.
type Type string

const (
	TypeUserVideo     Type = "USER_VIDEO"
	TypeUserAudio     Type = "USER_AUDIO"
	TypeStitchedAudio Type = "STITCHED_AUDIO"
)

// Valid reports whether t is a known stream type.
func (t Type) Valid() bool {
	switch t {
	case TypeUserVideo, TypeUserAudio, TypeStitchedAudio:
		return true
	}
	return false
}

// Stream is an in-pipeline handle to a media artifact held in a storage
// backend under Filename.
type Stream struct {
	Filename string
	Type     Type
	// LengthMS is the measured duration in milliseconds; 0 means not yet
	// measured (persisted as NULL).
	LengthMS int64
	Users    []int64
	OffsetMS int64
	// WaveformData is the JSON-encoded normalized amplitude vector, set by
	// the waveform generator.
	WaveformData     string
	WaveformFilename string
}

func (s Stream) String() string {
	return fmt.Sprintf("Stream(filename=%q, type=%s, length_ms=%d, offset_ms=%d)",
		s.Filename, s.Type, s.LengthMS, s.OffsetMS)
}

// Manifest is the fetcher's output: the per-participant media tracks of one
// session, ordered by offset.
type Manifest struct {
	Streams []Stream
}

// Empty reports whether the manifest describes no recordings at all.
func (m *Manifest) Empty() bool {
	return m == nil || len(m.Streams) == 0
}

// Sort orders streams ascending by offset, ties broken by filename.
func (m *Manifest) Sort() {
	if m == nil {
		return
	}
	sort.SliceStable(m.Streams, func(i, j int) bool {
		a, b := m.Streams[i], m.Streams[j]
		if a.OffsetMS != b.OffsetMS {
			return a.OffsetMS < b.OffsetMS
		}
		return a.Filename < b.Filename
	})
}

// EncodeSessionID returns the URL-safe encoded form of a session id used to
// derive stable artifact names. The encoding is uppercase base-16 and a
// pure function of the id (42 encodes to "2A").
func EncodeSessionID(id int64) string {
	return strings.ToUpper(strconv.FormatInt(id, 16))
}
