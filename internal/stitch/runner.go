// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package stitch

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/metrics"
)

// outputTail limits how much captured tool output an error carries.
const outputTail = 4096

// runner executes an external media tool and captures its combined
// output. Both ffmpeg and sox write diagnostics to stderr, so stdout and
// stderr are collected into one buffer.
type runner struct {
	logger zerolog.Logger
}

func newRunner() *runner {
	return &runner{logger: log.WithComponent("stitch")}
}

// run invokes path with args. tool is the short name used for logging
// and metrics ("ffmpeg", "sox"). The combined output is returned on
// success and attached to the error on failure.
func (r *runner) run(ctx context.Context, tool, path string, args ...string) (string, error) {
	r.logger.Debug().
		Str(log.FieldTool, tool).
		Strs("args", args).
		Msg("running tool")

	cmd := exec.CommandContext(ctx, path, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		metrics.ToolRuns.WithLabelValues(tool, "error").Inc()
		e := wrap(err, "%s %s", tool, strings.Join(args, " "))
		e.output = tail(out.String())
		return "", e
	}
	metrics.ToolRuns.WithLabelValues(tool, "ok").Inc()
	return out.String(), nil
}

func tail(s string) string {
	if len(s) <= outputTail {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-outputTail:])
}
