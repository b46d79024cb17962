// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package waveform renders a stream's amplitude envelope into a PNG
// image and a JSON vector for players that draw their own waveform.
package waveform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/metrics"
	"github.com/ManuGH/archivesvc/internal/storage"
	"github.com/ManuGH/archivesvc/internal/stream"
)

const (
	// waveformWidth is the number of amplitude buckets, one per pixel column.
	waveformWidth = 1800
	// waveformHeight is the rendered image height in pixels.
	waveformHeight = 280
)

// Generator computes waveform artifacts for a stream.
type Generator interface {
	// Generate extracts the stream's amplitude envelope, stores the
	// rendered image under baseName+".png" and returns the stream with
	// WaveformData and WaveformFilename populated.
	Generate(ctx context.Context, st stream.Stream, baseName string) (stream.Stream, error)
}

// Error is the waveform generation failure kind.
type Error struct {
	msg string
	err error
}

func errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

func wrap(err error, format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...), err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("waveform: %s: %v", e.msg, e.err)
	}
	return "waveform: " + e.msg
}

func (e *Error) Unwrap() error { return e.err }

// FFmpeg generates waveforms by decoding the stream to PCM with ffmpeg
// and bucketing the samples. Decoding needs the input on the local
// filesystem; streams on a remote pool are copied into the working
// directory first.
type FFmpeg struct {
	ffmpegPath string
	pool       *storage.Pool
	local      *storage.Pool
	logger     zerolog.Logger
}

// NewFFmpeg builds a generator over the stream pool, with
// workingDirectory as the local scratch area.
func NewFFmpeg(ffmpegPath string, pool *storage.Pool, workingDirectory string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{
		ffmpegPath: ffmpegPath,
		pool:       pool,
		local: storage.NewPool(1, func() storage.Backend {
			return storage.NewFilesystem(workingDirectory)
		}),
		logger: log.WithComponent("waveform"),
	}
}

// Generate implements Generator.
func (g *FFmpeg) Generate(ctx context.Context, st stream.Stream, baseName string) (stream.Stream, error) {
	pool, err := g.bindLocal(ctx, st)
	if err != nil {
		return stream.Stream{}, err
	}

	var data []float64
	err = pool.With(ctx, func(backend storage.Backend) error {
		wavName := baseName + ".wav"
		if err := g.extractWAV(ctx, backend, st.Filename, wavName); err != nil {
			return err
		}
		wavPath, err := storage.LocalPath(backend, wavName)
		if err != nil {
			return wrap(err, "resolve %s", wavName)
		}
		data, err = extractEnvelope(wavPath, waveformWidth)
		return err
	})
	if err != nil {
		return stream.Stream{}, err
	}

	pngName := baseName + ".png"
	var img bytes.Buffer
	if err := renderPNG(&img, data, waveformHeight); err != nil {
		return stream.Stream{}, err
	}
	if err := g.pool.With(ctx, func(backend storage.Backend) error {
		g.logger.Info().Str(log.FieldPath, pngName).Msg("storing waveform image")
		return backend.Save(ctx, pngName, &img)
	}); err != nil {
		return stream.Stream{}, wrap(err, "store %s", pngName)
	}

	encoded, err := encodeEnvelope(data)
	if err != nil {
		return stream.Stream{}, err
	}

	out := st
	out.WaveformData = encoded
	out.WaveformFilename = pngName
	return out, nil
}

// bindLocal returns the pool the decode runs against, copying the input
// into the working directory when the stream pool has no local paths.
func (g *FFmpeg) bindLocal(ctx context.Context, st stream.Stream) (*storage.Pool, error) {
	rebound := false
	err := g.pool.With(ctx, func(remote storage.Backend) error {
		if _, err := storage.LocalPath(remote, st.Filename); err != nil {
			if !errors.Is(err, storage.ErrNoLocalPath) {
				return wrap(err, "resolve %s", st.Filename)
			}
			rebound = true
			return g.local.With(ctx, func(local storage.Backend) error {
				g.logger.Info().Str(log.FieldPath, st.Filename).Msg("copying stream to working directory")
				if err := storage.Copy(ctx, local, remote, st.Filename); err != nil {
					return wrap(err, "download %s", st.Filename)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rebound {
		return g.local, nil
	}
	return g.pool, nil
}

// extractWAV decodes the stream to 44.1 kHz PCM, skipping the decode
// when the scratch file is already present from an earlier attempt.
func (g *FFmpeg) extractWAV(ctx context.Context, backend storage.Backend, inName, outName string) error {
	outPath, err := storage.LocalPath(backend, outName)
	if err != nil {
		return wrap(err, "resolve %s", outName)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil { // #nosec G301
		return wrap(err, "create directory for %s", outName)
	}
	exists, err := backend.Exists(ctx, outName)
	if err != nil {
		return wrap(err, "check %s", outName)
	}
	if exists {
		g.logger.Debug().Str(log.FieldPath, outName).Msg("decoded audio already present, skipping")
		return nil
	}

	inPath, err := storage.LocalPath(backend, inName)
	if err != nil {
		return wrap(err, "resolve %s", inName)
	}
	g.logger.Info().Str(log.FieldPath, inName).Msg("decoding audio for waveform")

	cmd := exec.CommandContext(ctx, g.ffmpegPath,
		"-y", "-i", inPath, "-vn", "-ar", "44100", outPath)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		metrics.ToolRuns.WithLabelValues("ffmpeg", "error").Inc()
		return wrap(err, "decode %s: %s", inName, out.String())
	}
	metrics.ToolRuns.WithLabelValues("ffmpeg", "ok").Inc()
	return nil
}

// encodeEnvelope serializes the bucket vector as a JSON array with
// values rounded to four decimal places.
func encodeEnvelope(data []float64) (string, error) {
	rounded := make([]json.Number, len(data))
	for i, v := range data {
		v = math.Round(v*10000) / 10000
		rounded[i] = json.Number(strconv.FormatFloat(v, 'f', -1, 64))
	}
	b, err := json.Marshal(rounded)
	if err != nil {
		return "", wrap(err, "encode envelope")
	}
	return string(b), nil
}
