// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/metrics"
	"github.com/ManuGH/archivesvc/internal/storage"
	"github.com/ManuGH/archivesvc/internal/stream"
)

const (
	transientAttempts = 3
	transientDelay    = time.Second
)

// ProviderConfig carries the recording provider credentials.
type ProviderConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	// RequestsPerSecond throttles provider API calls; 0 means 10/s.
	RequestsPerSecond float64
}

// Provider fetches recordings over the provider's REST API. One recording
// exists per call; recordings are listed by call id, downloaded as MP3 and
// deleted individually.
type Provider struct {
	cfg     ProviderConfig
	http    *http.Client
	limiter *rate.Limiter
	local   *storage.Pool
	logger  zerolog.Logger
}

// NewProvider builds a provider fetcher writing into the local storage
// pool.
func NewProvider(cfg ProviderConfig, local *storage.Pool) *Provider {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Provider{
		cfg: cfg,
		http: &http.Client{
			Timeout:   2 * time.Minute,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		local:   local,
		logger:  log.WithComponent("fetch"),
	}
}

// recording is the provider's recording resource.
type recording struct {
	SID      string `json:"sid"`
	CallSID  string `json:"call_sid"`
	MediaURL string `json:"media_url"`
}

// Fetch implements Fetcher.
func (p *Provider) Fetch(ctx context.Context, sessionID int64, data []byte, baseName string) (*stream.Manifest, error) {
	calls, err := parseCalls(data)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, nil
	}

	manifest := &stream.Manifest{}
	for _, call := range calls {
		filename := fmt.Sprintf("%s-%s.mp3", baseName, call.CallID)
		if err := p.fetchRecording(ctx, call, filename); err != nil {
			return nil, err
		}
		manifest.Streams = append(manifest.Streams, stream.Stream{
			Filename: filename,
			Type:     stream.TypeUserAudio,
			LengthMS: call.DurationMS,
			Users:    []int64{call.UserID},
			OffsetMS: call.OffsetMS,
		})
	}
	manifest.Sort()
	return manifest, nil
}

// fetchRecording downloads one call's recording into local storage,
// skipping the download when the file is already present.
func (p *Provider) fetchRecording(ctx context.Context, call callRef, filename string) error {
	return p.local.With(ctx, func(backend storage.Backend) error {
		exists, err := backend.Exists(ctx, filename)
		if err != nil {
			return wrap(err, "check %s", filename)
		}
		if exists {
			p.logger.Debug().Str(log.FieldPath, filename).Msg("recording already downloaded, skipping")
			return nil
		}

		rec, err := p.findRecording(ctx, call.CallID)
		if err != nil {
			return err
		}
		if rec == nil {
			return errorf("no recording for call %s", call.CallID)
		}

		p.logger.Info().
			Str(log.FieldCallID, call.CallID).
			Str(log.FieldPath, filename).
			Msg("downloading recording")

		res, err := p.get(ctx, rec.MediaURL+".mp3")
		if err != nil {
			return err
		}
		defer func() { _ = res.Body.Close() }()

		if err := backend.Save(ctx, filename, res.Body); err != nil {
			return wrap(err, "save %s", filename)
		}
		return nil
	})
}

// Delete implements Fetcher. Calls without a recording are skipped; a 404
// on delete counts as success.
func (p *Provider) Delete(ctx context.Context, sessionID int64, data []byte) error {
	calls, err := parseCalls(data)
	if err != nil {
		return err
	}
	for _, call := range calls {
		rec, err := p.findRecording(ctx, call.CallID)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}

		p.logger.Info().
			Str(log.FieldCallID, call.CallID).
			Str("recording_sid", rec.SID).
			Msg("deleting recording at provider")

		if err := p.deleteRecording(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// findRecording returns the first recording listed for a call, or nil.
func (p *Provider) findRecording(ctx context.Context, callID string) (*recording, error) {
	u := fmt.Sprintf("%s/Accounts/%s/Recordings.json?CallSid=%s",
		strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.AccountSID, callID)

	res, err := p.get(ctx, u)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("list", "error").Inc()
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	var body struct {
		Recordings []recording `json:"recordings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		metrics.ProviderRequests.WithLabelValues("list", "error").Inc()
		return nil, wrap(err, "decode recordings for call %s", callID)
	}
	metrics.ProviderRequests.WithLabelValues("list", "ok").Inc()
	if len(body.Recordings) == 0 {
		return nil, nil
	}
	return &body.Recordings[0], nil
}

func (p *Provider) deleteRecording(ctx context.Context, rec *recording) error {
	u := fmt.Sprintf("%s/Accounts/%s/Recordings/%s.json",
		strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.AccountSID, rec.SID)

	if err := p.limiter.Wait(ctx); err != nil {
		return wrap(err, "rate limit")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return wrap(err, "delete recording %s", rec.SID)
	}
	req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

	res, err := p.http.Do(req)
	if err != nil {
		metrics.ProviderRequests.WithLabelValues("delete", "error").Inc()
		return wrap(err, "delete recording %s", rec.SID)
	}
	defer func() { _ = res.Body.Close() }()

	switch {
	case res.StatusCode == http.StatusNotFound:
		// Already gone; deletes are idempotent.
		metrics.ProviderRequests.WithLabelValues("delete", "ok").Inc()
		return nil
	case res.StatusCode >= 300:
		metrics.ProviderRequests.WithLabelValues("delete", "error").Inc()
		return errorf("delete recording %s: provider returned %s", rec.SID, res.Status)
	}
	metrics.ProviderRequests.WithLabelValues("delete", "ok").Inc()
	return nil
}

// get issues an authenticated GET, retrying transient network and 5xx
// failures. Authorization failures propagate immediately.
func (p *Provider) get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 1; attempt <= transientAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, wrap(err, "rate limit")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, wrap(err, "request %s", url)
		}
		req.SetBasicAuth(p.cfg.AccountSID, p.cfg.AuthToken)

		res, err := p.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			switch {
			case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
				_ = res.Body.Close()
				return nil, errorf("provider rejected credentials: %s", res.Status)
			case res.StatusCode >= 500:
				_ = res.Body.Close()
				lastErr = fmt.Errorf("provider returned %s", res.Status)
			case res.StatusCode >= 300:
				_ = res.Body.Close()
				return nil, errorf("GET %s: provider returned %s", url, res.Status)
			default:
				return res, nil
			}
		}

		if attempt < transientAttempts {
			p.logger.Warn().Err(lastErr).Int(log.FieldAttempt, attempt).Str("url", url).Msg("transient provider error, retrying")
			select {
			case <-ctx.Done():
				return nil, wrap(ctx.Err(), "GET %s", url)
			case <-time.After(transientDelay):
			}
		}
	}
	return nil, wrap(lastErr, "GET %s after %d attempts", url, transientAttempts)
}
