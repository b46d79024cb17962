// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeSessionID(t *testing.T) {
	cases := []struct {
		id   int64
		want string
	}{
		{42, "2A"},
		{10, "A"},
		{15, "F"},
		{16, "10"},
		{255, "FF"},
		{1, "1"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, EncodeSessionID(tc.id), "id=%d", tc.id)
	}
}

func TestManifestSort(t *testing.T) {
	m := &Manifest{Streams: []Stream{
		{Filename: "archive/2A-2.mp3", OffsetMS: 10288},
		{Filename: "archive/2A-1.mp3", OffsetMS: 2380},
		{Filename: "archive/2A-3.mp3", OffsetMS: 2380},
	}}
	m.Sort()

	require.Equal(t, "archive/2A-1.mp3", m.Streams[0].Filename)
	require.Equal(t, "archive/2A-3.mp3", m.Streams[1].Filename)
	require.Equal(t, "archive/2A-2.mp3", m.Streams[2].Filename)
}

func TestManifestEmpty(t *testing.T) {
	var m *Manifest
	require.True(t, m.Empty())
	require.True(t, (&Manifest{}).Empty())
	require.False(t, (&Manifest{Streams: []Stream{{}}}).Empty())
}

func TestTypeValid(t *testing.T) {
	require.True(t, TypeUserAudio.Valid())
	require.True(t, TypeUserVideo.Valid())
	require.True(t, TypeStitchedAudio.Valid())
	require.False(t, Type("MYSTERY").Valid())
}
