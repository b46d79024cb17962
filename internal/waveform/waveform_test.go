// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package waveform

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/archivesvc/internal/storage"
	"github.com/ManuGH/archivesvc/internal/stream"
)

// writeWAV produces a 16-bit PCM RIFF file with the given interleaved
// samples.
func writeWAV(t *testing.T, path string, channels int, samples []int16) {
	t.Helper()

	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(44100))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(44100*channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, 1, []int16{0, 16384, -16384, 32767})

	wav, err := readWAV(path)
	require.NoError(t, err)
	require.Equal(t, 1, wav.channels)
	require.Equal(t, []int16{0, 16384, -16384, 32767}, wav.samples)
}

func TestReadWAVRejectsNonWave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a riff file at all"), 0o644))

	_, err := readWAV(path)
	require.Error(t, err)
}

func TestExtractEnvelopeMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	// Two buckets of four frames: peaks 16384 and 32767.
	writeWAV(t, path, 1, []int16{0, 16384, 0, 0, 0, 0, -32767, 0})

	data, err := extractEnvelope(path, 2)
	require.NoError(t, err)
	require.Len(t, data, 2)
	require.InDelta(t, 0.5, data[0], 1e-3)
	require.InDelta(t, 1.0, data[1], 1e-3)
}

func TestExtractEnvelopeStereoDecimates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	// Four stereo frames; frames 1 and 3 are dropped by decimation, so
	// their louder samples must not show up.
	writeWAV(t, path, 2, []int16{
		8192, 0, // frame 0 (kept)
		32767, 32767, // frame 1 (dropped)
		0, 4096, // frame 2 (kept)
		32767, 32767, // frame 3 (dropped)
	})

	data, err := extractEnvelope(path, 2)
	require.NoError(t, err)
	require.Len(t, data, 2)
	require.InDelta(t, 0.25, data[0], 1e-3)
	require.InDelta(t, 0.125, data[1], 1e-3)
}

func TestExtractEnvelopeTooShort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	writeWAV(t, path, 1, []int16{1, 2, 3})

	_, err := extractEnvelope(path, 1800)
	require.Error(t, err)
}

func TestEncodeEnvelopeRounds(t *testing.T) {
	out, err := encodeEnvelope([]float64{0.123456, 0.5, 1})
	require.NoError(t, err)
	require.Equal(t, `[0.1235,0.5,1]`, out)

	var back []float64
	require.NoError(t, json.Unmarshal([]byte(out), &back))
	require.Len(t, back, 3)
}

func TestRenderPNG(t *testing.T) {
	var buf bytes.Buffer
	data := []float64{0.5, 1.0, 0.0}
	require.NoError(t, renderPNG(&buf, data, 280))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 3, img.Bounds().Dx())
	require.Equal(t, 280, img.Bounds().Dy())

	// Max bucket reaches full height: its center pixel is punched out,
	// the background elsewhere stays opaque grey.
	_, _, _, a := img.At(1, 140).RGBA()
	require.Zero(t, a)
	r, g, b, a := img.At(2, 5).RGBA()
	require.Equal(t, uint32(238*257), r)
	require.Equal(t, uint32(238*257), g)
	require.Equal(t, uint32(238*257), b)
	require.Equal(t, uint32(0xffff), a)
}

func TestGenerateFromExistingWAV(t *testing.T) {
	root := t.TempDir()

	// Pre-seed the decoded audio so the (absent) ffmpeg binary is never
	// invoked: the extract stage is idempotent on its output.
	samples := make([]int16, 44100)
	for i := range samples {
		samples[i] = int16(i % 8192)
	}
	writeWAV(t, filepath.Join(root, "archive", "2A.wav"), 1, samples)
	require.NoError(t, os.WriteFile(filepath.Join(root, "archive", "2A.mp3"), []byte("audio"), 0o644))

	pool := storage.NewPool(1, func() storage.Backend {
		return storage.NewFilesystem(root)
	})
	g := NewFFmpeg("/nonexistent/ffmpeg", pool, t.TempDir())

	out, err := g.Generate(context.Background(), stream.Stream{
		Filename: "archive/2A.mp3",
		Type:     stream.TypeStitchedAudio,
		Users:    []int64{11, 12},
	}, "archive/2A")
	require.NoError(t, err)

	require.Equal(t, "archive/2A.png", out.WaveformFilename)
	require.NotEmpty(t, out.WaveformData)

	var vector []float64
	require.NoError(t, json.Unmarshal([]byte(out.WaveformData), &vector))
	require.Len(t, vector, waveformWidth)

	_, err = os.Stat(filepath.Join(root, "archive", "2A.png"))
	require.NoError(t, err)
}
