// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stitch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/archivesvc/internal/stream"
)

const soxStatOutput = `Samples read:           5980160
Length (seconds):     67.801360
Scaled by:         2147483647.0
Maximum amplitude:     0.999969
Minimum amplitude:    -1.000000
Midline amplitude:    -0.000015
Mean    norm:          0.062026
Mean    amplitude:    -0.000115
RMS     amplitude:     0.112304
Maximum delta:         0.577362
Minimum delta:         0.000000
Mean    delta:         0.021022
RMS     delta:         0.039810
Rough   frequency:         2489
Volume adjustment:        1.000
`

func TestParseStats(t *testing.T) {
	stats := parseStats(soxStatOutput)

	require.InDelta(t, 0.112304, stats["RMS amplitude"], 1e-9)
	require.InDelta(t, 1.0, stats["Volume adjustment"], 1e-9)
	require.InDelta(t, 67.801360, stats["Length (seconds)"], 1e-9)
	require.InDelta(t, 5980160, stats["Samples read"], 1e-9)
}

func TestParseStatsSkipsMalformedLines(t *testing.T) {
	stats := parseStats("sox WARN: something\nnot a pair\nRMS amplitude: abc\nMean norm: 0.5\n")

	require.NotContains(t, stats, "RMS amplitude")
	require.InDelta(t, 0.5, stats["Mean norm"], 1e-9)
}

func TestStatValueMissingKey(t *testing.T) {
	stats := parseStats("Mean norm: 0.5\n")

	_, err := statValue(stats, statRMSAmplitude, "archive/2A-1.mp3")
	require.Error(t, err)
	require.Contains(t, err.Error(), "RMS amplitude")
	require.Contains(t, err.Error(), "archive/2A-1.mp3")
}

func TestNormName(t *testing.T) {
	require.Equal(t, "archive/2A-1-norm.mp3", normName("archive/2A-1.mp3"))
	require.Equal(t, "plain-norm", normName("plain"))
}

func TestFormatSeconds(t *testing.T) {
	require.Equal(t, "2.38", formatSeconds(2380))
	require.Equal(t, "0", formatSeconds(0))
	require.Equal(t, "10.288", formatSeconds(10288))
}

func TestUnionUsersAndMinOffset(t *testing.T) {
	ss := []stream.Stream{
		{Users: []int64{12}, OffsetMS: 2380},
		{Users: []int64{11, 12}, OffsetMS: 10288},
	}

	require.Equal(t, []int64{12, 11}, unionUsers(ss))
	require.Equal(t, int64(2380), minOffset(ss))
}
