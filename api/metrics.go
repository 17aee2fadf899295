// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redirplot_samples_received_total",
		Help: "Samples decoded from producer connections",
	})

	decodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redirplot_decode_errors_total",
		Help: "Frames that could not be turned into samples",
	}, []string{"reason"})

	producerConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redirplot_producer_connections_total",
		Help: "Producer connections accepted",
	})

	seriesRewinds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redirplot_series_rewinds_total",
		Help: "Series resets caused by a producer clock going back",
	})

	renderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redirplot_render_duration_seconds",
		Help:    "Chart render duration",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"format"})

	oscErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "redirplot_osc_errors_total",
		Help: "Samples that could not be forwarded over OSC",
	})
)
