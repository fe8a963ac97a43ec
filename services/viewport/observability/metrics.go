// Copyright (C) 2026 Kodiak Visual Systems (eng@kodiakviz.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the viewport
// service: the render queue's freshness arbitration, render pass
// latency, and the consumer-facing delivery path.
//
// Metrics are exposed on /metrics. All operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "kodiakview"
	queueSubsystem   = "renderqueue"
)

// QueueMetrics holds all Prometheus metrics for one viewport service.
//
// Label conventions:
//   - outcome: accepted | rejected (arbiter publish decisions)
//   - result:  ok | error | converged (render pass completions)
//   - quality: the ladder level ordinal, as a string
type QueueMetrics struct {
	// PoseUpdatesTotal counts accepted camera pose updates. Equals the
	// current generation at any quiescent point.
	PoseUpdatesTotal prometheus.Counter

	// PoseRejectionsTotal counts pose updates refused by validation.
	PoseRejectionsTotal prometheus.Counter

	// PublishesTotal counts arbiter publish attempts by outcome.
	PublishesTotal *prometheus.CounterVec

	// SupersessionsTotal counts generations abandoned because a newer
	// pose arrived mid-ladder.
	SupersessionsTotal prometheus.Counter

	// PassDurationSeconds measures render pass wall time by quality
	// level and result.
	PassDurationSeconds *prometheus.HistogramVec

	// ImagesDeliveredTotal counts non-empty GetImage results.
	ImagesDeliveredTotal prometheus.Counter

	// EmptyPollsTotal counts GetImage calls that found nothing new.
	EmptyPollsTotal prometheus.Counter

	// CurrentGeneration tracks the newest accepted generation.
	CurrentGeneration prometheus.Gauge

	// DeliveredGeneration tracks the arbiter high-watermark.
	DeliveredGeneration prometheus.Gauge

	// ActiveStreams tracks open WebSocket viewer sessions.
	ActiveStreams prometheus.Gauge
}

var (
	defaultMetrics *QueueMetrics
	initOnce       sync.Once
)

// InitMetrics initializes and registers the default metrics instance on
// the global registry. Safe to call more than once; registration
// happens on the first call only (later calls return the same
// instance), which keeps parallel test packages from tripping duplicate
// registration panics.
func InitMetrics() *QueueMetrics {
	initOnce.Do(func() {
		defaultMetrics = newQueueMetrics()
	})
	return defaultMetrics
}

func newQueueMetrics() *QueueMetrics {
	return &QueueMetrics{
		PoseUpdatesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "pose_updates_total",
			Help:      "Accepted camera pose updates (generation increments)",
		}),
		PoseRejectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "pose_rejections_total",
			Help:      "Camera pose updates rejected by validation",
		}),
		PublishesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "publishes_total",
			Help:      "Arbiter publish attempts by outcome",
		}, []string{"outcome"}),
		SupersessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "supersessions_total",
			Help:      "Generations abandoned because a newer pose arrived",
		}),
		PassDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "pass_duration_seconds",
			Help:      "Render pass wall time by quality level and result",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"quality", "result"}),
		ImagesDeliveredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "images_delivered_total",
			Help:      "Non-empty image deliveries to consumers",
		}),
		EmptyPollsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "empty_polls_total",
			Help:      "GetImage calls that found nothing new",
		}),
		CurrentGeneration: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "current_generation",
			Help:      "Newest accepted pose generation",
		}),
		DeliveredGeneration: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "delivered_generation",
			Help:      "Highest generation ever delivered to a consumer",
		}),
		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: queueSubsystem,
			Name:      "active_streams",
			Help:      "Open WebSocket viewer sessions",
		}),
	}
}

// =============================================================================
// Nil-safe recording helpers
// =============================================================================
//
// The queue accepts a nil *QueueMetrics (unit tests construct queues
// without observability); these helpers keep the call sites free of nil
// checks.

// RecordPublish records an arbiter decision.
func (m *QueueMetrics) RecordPublish(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.PublishesTotal.WithLabelValues("accepted").Inc()
	} else {
		m.PublishesTotal.WithLabelValues("rejected").Inc()
	}
}

// RecordPass records one render pass completion.
func (m *QueueMetrics) RecordPass(quality int, result string, seconds float64) {
	if m == nil {
		return
	}
	m.PassDurationSeconds.WithLabelValues(strconv.Itoa(quality), result).Observe(seconds)
}

// RecordPoseUpdate records an accepted pose update at the given
// generation.
func (m *QueueMetrics) RecordPoseUpdate(generation uint64) {
	if m == nil {
		return
	}
	m.PoseUpdatesTotal.Inc()
	m.CurrentGeneration.Set(float64(generation))
}

// RecordPoseRejection records a validation failure.
func (m *QueueMetrics) RecordPoseRejection() {
	if m == nil {
		return
	}
	m.PoseRejectionsTotal.Inc()
}

// RecordSupersession records a generation abandoned mid-ladder.
func (m *QueueMetrics) RecordSupersession() {
	if m == nil {
		return
	}
	m.SupersessionsTotal.Inc()
}

// RecordDelivery records a GetImage outcome.
func (m *QueueMetrics) RecordDelivery(generation uint64, delivered bool) {
	if m == nil {
		return
	}
	if delivered {
		m.ImagesDeliveredTotal.Inc()
		m.DeliveredGeneration.Set(float64(generation))
	} else {
		m.EmptyPollsTotal.Inc()
	}
}

// StreamOpened / StreamClosed track WebSocket session lifetimes.
func (m *QueueMetrics) StreamOpened() {
	if m != nil {
		m.ActiveStreams.Inc()
	}
}

func (m *QueueMetrics) StreamClosed() {
	if m != nil {
		m.ActiveStreams.Dec()
	}
}
