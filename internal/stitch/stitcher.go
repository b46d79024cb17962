// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stitch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/storage"
	"github.com/ManuGH/archivesvc/internal/stream"
)

// headroomFactor is applied to sox's maximum clip-free volume adjustment
// when raising the quietest stream, leaving room before clipping.
const headroomFactor = 0.7

// FFmpegSox stitches recordings with ffmpeg and sox. Both tools need the
// inputs on the local filesystem; when the stream pool's backend is not
// locally addressable the inputs are copied into the working directory
// first and the final artifacts copied back.
type FFmpegSox struct {
	ffmpegPath string
	soxPath    string
	pool       *storage.Pool
	local      *storage.Pool
	run        *runner
	logger     zerolog.Logger
}

// NewFFmpegSox builds a stitcher over the stream pool, with
// workingDirectory as the local scratch area.
func NewFFmpegSox(ffmpegPath, soxPath string, pool *storage.Pool, workingDirectory string) *FFmpegSox {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if soxPath == "" {
		soxPath = "sox"
	}
	return &FFmpegSox{
		ffmpegPath: ffmpegPath,
		soxPath:    soxPath,
		pool:       pool,
		local: storage.NewPool(1, func() storage.Backend {
			return storage.NewFilesystem(workingDirectory)
		}),
		run:    newRunner(),
		logger: log.WithComponent("stitch"),
	}
}

// Stitch implements Stitcher. Every stage checks for its output before
// running its tool, so a retried job resumes after the last completed
// stage instead of redoing the work.
func (s *FFmpegSox) Stitch(ctx context.Context, streams []stream.Stream, baseName string) ([]stream.Stream, error) {
	if len(streams) == 0 {
		return nil, nil
	}

	pool, rebound, err := s.bindLocal(ctx, streams)
	if err != nil {
		return nil, err
	}

	var outputs []stream.Stream
	err = pool.With(ctx, func(backend storage.Backend) error {
		audio := make([]stream.Stream, 0, len(streams))
		for i, st := range streams {
			extracted, err := s.extractAudio(ctx, backend, st, fmt.Sprintf("%s-%d.mp3", baseName, i+1))
			if err != nil {
				return err
			}
			audio = append(audio, extracted)
		}

		normalized, err := s.normalize(ctx, backend, audio)
		if err != nil {
			return err
		}

		mixed, err := s.mix(ctx, backend, normalized, baseName+".mp3")
		if err != nil {
			return err
		}

		remuxed, err := s.remux(ctx, backend, mixed, baseName+".mp4")
		if err != nil {
			return err
		}

		outputs = []stream.Stream{remuxed, mixed}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rebound {
		if err := s.uploadOutputs(ctx, outputs); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

// bindLocal decides which pool the tool stages run against. When the
// stream pool is not locally addressable, all inputs are copied into the
// working directory and the local pool is used instead.
func (s *FFmpegSox) bindLocal(ctx context.Context, streams []stream.Stream) (*storage.Pool, bool, error) {
	rebound := false
	err := s.pool.With(ctx, func(remote storage.Backend) error {
		if _, err := storage.LocalPath(remote, streams[0].Filename); err != nil {
			if !errors.Is(err, storage.ErrNoLocalPath) {
				return wrap(err, "resolve %s", streams[0].Filename)
			}
			rebound = true
			return s.local.With(ctx, func(local storage.Backend) error {
				for _, st := range streams {
					s.logger.Info().Str(log.FieldPath, st.Filename).Msg("copying stream to working directory")
					if err := storage.Copy(ctx, local, remote, st.Filename); err != nil {
						return wrap(err, "download %s", st.Filename)
					}
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if rebound {
		return s.local, true, nil
	}
	return s.pool, false, nil
}

func (s *FFmpegSox) uploadOutputs(ctx context.Context, outputs []stream.Stream) error {
	return s.pool.With(ctx, func(remote storage.Backend) error {
		return s.local.With(ctx, func(local storage.Backend) error {
			for _, st := range outputs {
				s.logger.Info().Str(log.FieldPath, st.Filename).Msg("uploading stitched stream")
				if err := storage.Copy(ctx, remote, local, st.Filename); err != nil {
					return wrap(err, "upload %s", st.Filename)
				}
			}
			return nil
		})
	})
}

// extractAudio pulls the audio track out of one recording at 44.1 kHz.
func (s *FFmpegSox) extractAudio(ctx context.Context, backend storage.Backend, st stream.Stream, outName string) (stream.Stream, error) {
	outPath, skip, err := s.prepareOutput(ctx, backend, outName)
	if err != nil {
		return stream.Stream{}, err
	}
	if !skip {
		inPath, err := storage.LocalPath(backend, st.Filename)
		if err != nil {
			return stream.Stream{}, wrap(err, "resolve %s", st.Filename)
		}
		s.logger.Info().Str(log.FieldPath, st.Filename).Msg("extracting audio")
		if _, err := s.run.run(ctx, "ffmpeg", s.ffmpegPath,
			"-y", "-i", inPath, "-vn", "-ar", "44100", outPath); err != nil {
			return stream.Stream{}, err
		}
	}
	return stream.Stream{
		Filename: outName,
		Type:     stream.TypeUserAudio,
		LengthMS: st.LengthMS,
		Users:    st.Users,
		OffsetMS: st.OffsetMS,
	}, nil
}

// normalize levels the streams: the quietest one (lowest RMS amplitude)
// is raised by 70% of its clip-free maximum, and its resulting RMS
// becomes the target every other stream is adjusted to.
func (s *FFmpegSox) normalize(ctx context.Context, backend storage.Backend, streams []stream.Stream) ([]stream.Stream, error) {
	stats := make([]map[string]float64, len(streams))
	quietest := 0
	for i, st := range streams {
		m, err := s.stats(ctx, backend, st.Filename)
		if err != nil {
			return nil, err
		}
		stats[i] = m
		rms, err := statValue(m, statRMSAmplitude, st.Filename)
		if err != nil {
			return nil, err
		}
		if qr, err := statValue(stats[quietest], statRMSAmplitude, streams[quietest].Filename); err != nil {
			return nil, err
		} else if rms < qr {
			quietest = i
		}
	}

	adjustment, err := statValue(stats[quietest], statVolumeAdjustment, streams[quietest].Filename)
	if err != nil {
		return nil, err
	}
	pivot, err := s.adjustVolume(ctx, backend, streams[quietest],
		adjustment*headroomFactor, normName(streams[quietest].Filename))
	if err != nil {
		return nil, err
	}

	pivotStats, err := s.stats(ctx, backend, pivot.Filename)
	if err != nil {
		return nil, err
	}
	target, err := statValue(pivotStats, statRMSAmplitude, pivot.Filename)
	if err != nil {
		return nil, err
	}

	results := []stream.Stream{pivot}
	for i, st := range streams {
		if i == quietest {
			continue
		}
		rms, err := statValue(stats[i], statRMSAmplitude, st.Filename)
		if err != nil {
			return nil, err
		}
		adjusted, err := s.adjustVolume(ctx, backend, st, target/rms, normName(st.Filename))
		if err != nil {
			return nil, err
		}
		results = append(results, adjusted)
	}
	return results, nil
}

func (s *FFmpegSox) adjustVolume(ctx context.Context, backend storage.Backend, st stream.Stream, factor float64, outName string) (stream.Stream, error) {
	outPath, skip, err := s.prepareOutput(ctx, backend, outName)
	if err != nil {
		return stream.Stream{}, err
	}
	if !skip {
		inPath, err := storage.LocalPath(backend, st.Filename)
		if err != nil {
			return stream.Stream{}, wrap(err, "resolve %s", st.Filename)
		}
		s.logger.Info().
			Str(log.FieldPath, st.Filename).
			Float64("factor", factor).
			Msg("adjusting stream volume")
		if _, err := s.run.run(ctx, "sox", s.soxPath,
			inPath, outPath, "vol", formatFloat(factor)); err != nil {
			return stream.Stream{}, err
		}
	}
	out := st
	out.Filename = outName
	return out, nil
}

// mix pads each stream to its session offset and merges them into one
// track. The stitched stream carries the union of participant ids and
// the earliest offset; its length is measured from the result.
func (s *FFmpegSox) mix(ctx context.Context, backend storage.Backend, streams []stream.Stream, outName string) (stream.Stream, error) {
	outPath, skip, err := s.prepareOutput(ctx, backend, outName)
	if err != nil {
		return stream.Stream{}, err
	}
	if !skip {
		s.logger.Info().Int("streams", len(streams)).Str(log.FieldPath, outName).Msg("mixing streams")

		var args []string
		if len(streams) > 1 {
			args = []string{"-m", "--norm"}
			for _, st := range streams {
				inPath, err := storage.LocalPath(backend, st.Filename)
				if err != nil {
					return stream.Stream{}, wrap(err, "resolve %s", st.Filename)
				}
				args = append(args, fmt.Sprintf("|sox %s -p pad %s", inPath, formatSeconds(st.OffsetMS)))
			}
			args = append(args, outPath)
		} else {
			inPath, err := storage.LocalPath(backend, streams[0].Filename)
			if err != nil {
				return stream.Stream{}, wrap(err, "resolve %s", streams[0].Filename)
			}
			args = []string{"--norm", inPath, outPath, "pad", formatSeconds(streams[0].OffsetMS)}
		}
		if _, err := s.run.run(ctx, "sox", s.soxPath, args...); err != nil {
			return stream.Stream{}, err
		}
	}

	out := stream.Stream{
		Filename: outName,
		Type:     stream.TypeStitchedAudio,
		Users:    unionUsers(streams),
		OffsetMS: minOffset(streams),
	}
	length, err := s.measureLength(ctx, backend, outName)
	if err != nil {
		return stream.Stream{}, err
	}
	out.LengthMS = length
	return out, nil
}

// remux wraps the mixed audio in an mp4 container.
func (s *FFmpegSox) remux(ctx context.Context, backend storage.Backend, st stream.Stream, outName string) (stream.Stream, error) {
	outPath, skip, err := s.prepareOutput(ctx, backend, outName)
	if err != nil {
		return stream.Stream{}, err
	}
	if !skip {
		inPath, err := storage.LocalPath(backend, st.Filename)
		if err != nil {
			return stream.Stream{}, wrap(err, "resolve %s", st.Filename)
		}
		s.logger.Info().Str(log.FieldPath, outName).Msg("converting stitched stream to mp4")
		if _, err := s.run.run(ctx, "ffmpeg", s.ffmpegPath, "-y", "-i", inPath, outPath); err != nil {
			return stream.Stream{}, err
		}
	}
	out := st
	out.Filename = outName
	return out, nil
}

// prepareOutput resolves the output path, ensures its directory exists
// and reports whether the artifact is already present.
func (s *FFmpegSox) prepareOutput(ctx context.Context, backend storage.Backend, outName string) (string, bool, error) {
	outPath, err := storage.LocalPath(backend, outName)
	if err != nil {
		return "", false, wrap(err, "resolve %s", outName)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil { // #nosec G301
		return "", false, wrap(err, "create directory for %s", outName)
	}
	exists, err := backend.Exists(ctx, outName)
	if err != nil {
		return "", false, wrap(err, "check %s", outName)
	}
	if exists {
		s.logger.Debug().Str(log.FieldPath, outName).Msg("output already present, skipping stage")
	}
	return outPath, exists, nil
}

func (s *FFmpegSox) stats(ctx context.Context, backend storage.Backend, name string) (map[string]float64, error) {
	p, err := storage.LocalPath(backend, name)
	if err != nil {
		return nil, wrap(err, "resolve %s", name)
	}
	out, err := s.run.run(ctx, "sox", s.soxPath, p, "-n", "stat")
	if err != nil {
		return nil, err
	}
	return parseStats(out), nil
}

func (s *FFmpegSox) measureLength(ctx context.Context, backend storage.Backend, name string) (int64, error) {
	stats, err := s.stats(ctx, backend, name)
	if err != nil {
		return 0, err
	}
	seconds, err := statValue(stats, statLengthSeconds, name)
	if err != nil {
		return 0, err
	}
	return int64(seconds * 1000), nil
}

// normName inserts "-norm" before the filename extension.
func normName(name string) string {
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)] + "-norm" + ext
}

func unionUsers(streams []stream.Stream) []int64 {
	seen := make(map[int64]bool)
	var users []int64
	for _, st := range streams {
		for _, u := range st.Users {
			if !seen[u] {
				seen[u] = true
				users = append(users, u)
			}
		}
	}
	return users
}

func minOffset(streams []stream.Stream) int64 {
	min := streams[0].OffsetMS
	for _, st := range streams[1:] {
		if st.OffsetMS < min {
			min = st.OffsetMS
		}
	}
	return min
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000.0, 'f', -1, 64)
}
