// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stitch

import (
	"strconv"
	"strings"
)

// Stat keys emitted by `sox <file> -n stat` that the pipeline depends on.
const (
	statRMSAmplitude     = "RMS amplitude"
	statVolumeAdjustment = "Volume adjustment"
	statLengthSeconds    = "Length (seconds)"
)

// parseStats parses `sox <file> -n stat` output into a key/value map.
// Keys have their inner whitespace collapsed to single spaces; lines that
// are not "key: float" pairs are skipped.
func parseStats(output string) map[string]float64 {
	stats := make(map[string]float64)
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		stats[strings.Join(strings.Fields(key), " ")] = f
	}
	return stats
}

// statValue looks up a required stat key. A missing key means the tool
// output changed shape and the pipeline must not guess.
func statValue(stats map[string]float64, key, filename string) (float64, error) {
	v, ok := stats[key]
	if !ok {
		return 0, errorf("sox stat output for %s is missing %q", filename, key)
	}
	return v, nil
}
