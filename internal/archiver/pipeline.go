// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package archiver

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/archivesvc/internal/fetch"
	"github.com/ManuGH/archivesvc/internal/jobqueue"
	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/metrics"
	"github.com/ManuGH/archivesvc/internal/persist"
	"github.com/ManuGH/archivesvc/internal/stitch"
	"github.com/ManuGH/archivesvc/internal/stream"
	"github.com/ManuGH/archivesvc/internal/waveform"
)

// Pipeline runs one job through the archive stages in strict order:
// fetch, stitch, waveform, persist, delete at provider.
type Pipeline struct {
	fetcher   fetch.Fetcher
	stitcher  stitch.Stitcher
	generator waveform.Generator
	persister persist.Persister

	// timestampNames appends epoch seconds to artifact base names, used
	// outside production to keep replayed sessions from colliding.
	timestampNames bool
	now            func() time.Time
	logger         zerolog.Logger
}

// NewPipeline wires the stage collaborators together.
func NewPipeline(f fetch.Fetcher, s stitch.Stitcher, w waveform.Generator, p persist.Persister, timestampNames bool) *Pipeline {
	return &Pipeline{
		fetcher:        f,
		stitcher:       s,
		generator:      w,
		persister:      p,
		timestampNames: timestampNames,
		now:            time.Now,
		logger:         log.WithComponent("archiver"),
	}
}

// Run executes the pipeline for one leased job. An empty manifest is a
// success: the session simply has nothing to archive.
func (p *Pipeline) Run(ctx context.Context, job jobqueue.Job) error {
	base := p.baseName(job.SessionID)
	logger := log.WithContext(ctx, p.logger)
	logger.Info().Str(log.FieldBaseName, base).Msg("creating archive")

	manifest, err := p.fetchStage(ctx, job, base)
	if err != nil {
		return err
	}
	if manifest.Empty() {
		logger.Info().Msg("no recordings for session")
		metrics.JobsTotal.WithLabelValues("no_archive").Inc()
		return nil
	}

	stitched, err := p.stitchStage(ctx, manifest, base)
	if err != nil {
		return err
	}

	stitched, err = p.waveformStage(ctx, stitched, base)
	if err != nil {
		return err
	}

	if err := p.persistStage(ctx, job.SessionID, manifest, stitched); err != nil {
		return err
	}

	if err := p.deleteStage(ctx, job); err != nil {
		return err
	}

	logger.Info().Str(log.FieldBaseName, base).Msg("archive complete")
	metrics.JobsTotal.WithLabelValues("success").Inc()
	return nil
}

// baseName derives the artifact path prefix from the encoded session id.
func (p *Pipeline) baseName(sessionID int64) string {
	base := "archive/" + stream.EncodeSessionID(sessionID)
	if p.timestampNames {
		base += "-" + strconv.FormatInt(p.now().Unix(), 10)
	}
	return base
}

func (p *Pipeline) fetchStage(ctx context.Context, job jobqueue.Job, base string) (*stream.Manifest, error) {
	defer p.observe("fetch", p.now())
	return p.fetcher.Fetch(ctx, job.SessionID, job.Data, base)
}

func (p *Pipeline) stitchStage(ctx context.Context, manifest *stream.Manifest, base string) ([]stream.Stream, error) {
	defer p.observe("stitch", p.now())
	return p.stitcher.Stitch(ctx, manifest.Streams, base)
}

// waveformStage generates the waveform for the primary stitched stream
// and shares it with the sibling stitched variants.
func (p *Pipeline) waveformStage(ctx context.Context, stitched []stream.Stream, base string) ([]stream.Stream, error) {
	defer p.observe("waveform", p.now())

	primary, err := p.generator.Generate(ctx, stitched[0], base)
	if err != nil {
		return nil, err
	}
	stitched[0] = primary
	for i := range stitched[1:] {
		stitched[i+1].WaveformData = primary.WaveformData
		stitched[i+1].WaveformFilename = primary.WaveformFilename
	}
	return stitched, nil
}

// persistStage stores the primary stitched stream together with every
// non-stitched manifest stream.
func (p *Pipeline) persistStage(ctx context.Context, sessionID int64, manifest *stream.Manifest, stitched []stream.Stream) error {
	defer p.observe("persist", p.now())

	persisted := []stream.Stream{stitched[0]}
	for _, st := range manifest.Streams {
		if st.Type != stream.TypeStitchedAudio {
			persisted = append(persisted, st)
		}
	}
	return p.persister.Persist(ctx, sessionID, persisted)
}

func (p *Pipeline) deleteStage(ctx context.Context, job jobqueue.Job) error {
	defer p.observe("delete", p.now())
	return p.fetcher.Delete(ctx, job.SessionID, job.Data)
}

func (p *Pipeline) observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(p.now().Sub(start).Seconds())
}
