// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics provides Prometheus metrics for the archive subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal counts terminated archive jobs by outcome.
	// Outcomes: success, no_archive, failed, retried, exhausted, already_owned.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivesvc_jobs_total",
		Help: "Total number of archive jobs processed, by outcome.",
	}, []string{"outcome"})

	// StageDuration observes per-stage pipeline latency.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archivesvc_stage_duration_seconds",
		Help:    "Duration of archive pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"stage"})

	// QueueCandidates tracks the number of pre-lease candidates buffered in memory.
	QueueCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archivesvc_queue_candidates",
		Help: "Number of eligible job candidates currently buffered by the poller.",
	})

	// LeaseRaces counts lease attempts that lost the conditional update.
	LeaseRaces = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archivesvc_lease_races_total",
		Help: "Total number of lease attempts that found the job already owned.",
	})

	// ToolRuns counts external audio tool invocations by tool and result.
	ToolRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivesvc_tool_runs_total",
		Help: "Total number of external tool invocations, by tool and result.",
	}, []string{"tool", "result"})

	// UploadsTotal counts artifact uploads by destination container class.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivesvc_uploads_total",
		Help: "Total number of artifact uploads, by container class and result.",
	}, []string{"class", "result"})

	// ProviderRequests counts provider API calls by operation and result.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archivesvc_provider_requests_total",
		Help: "Total number of recording provider API requests, by operation and result.",
	}, []string{"op", "result"})
)
