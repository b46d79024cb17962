// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package waveform

import (
	"encoding/binary"
	"io"
	"math"
	"os"
)

// wavData is decoded 16-bit PCM audio: interleaved samples plus the
// channel count.
type wavData struct {
	samples  []int16
	channels int
}

// readWAV parses a RIFF/WAVE file containing 16-bit PCM. Only the fmt
// and data chunks are interpreted; everything else is skipped.
func readWAV(path string) (*wavData, error) {
	f, err := os.Open(path) // #nosec G304 -- path confined by storage backend
	if err != nil {
		return nil, wrap(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, wrap(err, "read RIFF header of %s", path)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errorf("%s is not a RIFF/WAVE file", path)
	}

	var (
		channels      int
		bitsPerSample int
		data          []byte
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, wrap(err, "read chunk header of %s", path)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, wrap(err, "read fmt chunk of %s", path)
			}
			if len(body) < 16 {
				return nil, errorf("%s has a truncated fmt chunk", path)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 {
				return nil, errorf("%s uses audio format %d, want PCM", path, format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, wrap(err, "read data chunk of %s", path)
			}
		default:
			// Chunks are word-aligned; odd sizes carry a pad byte.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, wrap(err, "skip %s chunk of %s", id, path)
			}
		}
	}

	if channels == 0 || data == nil {
		return nil, errorf("%s is missing fmt or data chunk", path)
	}
	if bitsPerSample != 16 {
		return nil, errorf("%s has %d-bit samples, want 16", path, bitsPerSample)
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i : 2*i+2]))
	}
	return &wavData{samples: samples, channels: channels}, nil
}

// extractEnvelope buckets the file's samples into size normalized
// max-amplitude values in [0, 1]. Stereo input is decimated by taking
// every other frame; the bucket value is the loudest sample across the
// remaining frames and channels.
func extractEnvelope(path string, size int) ([]float64, error) {
	wav, err := readWAV(path)
	if err != nil {
		return nil, err
	}

	stride := 1
	if wav.channels == 2 {
		stride = 2
	}
	frames := len(wav.samples) / wav.channels / stride
	perBucket := frames / size
	if perBucket == 0 {
		return nil, errorf("%s is too short for a %d-bucket waveform", path, size)
	}

	data := make([]float64, size)
	for x := 0; x < size; x++ {
		var peak float64
		for f := x * perBucket; f < (x+1)*perBucket; f++ {
			base := f * stride * wav.channels
			for c := 0; c < wav.channels; c++ {
				v := math.Abs(float64(wav.samples[base+c]) / 32768.0)
				if v > peak {
					peak = v
				}
			}
		}
		data[x] = peak
	}
	return data, nil
}
