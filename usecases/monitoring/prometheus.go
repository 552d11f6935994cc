//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusMetrics struct {
	Registerer prometheus.Registerer

	Rolls         *prometheus.CounterVec
	LeasedOutputs prometheus.Gauge

	CoalesceGroups   *prometheus.CounterVec
	CoalescedBytes   prometheus.Counter
	CoalesceDuration prometheus.Histogram
	QuarantinedFiles prometheus.Counter
	DataLoss         prometheus.Counter
	OrphansCleaned   *prometheus.CounterVec

	MetricsConnections prometheus.Gauge
}

// NewPrometheusMetrics registers all roller metrics with reg. A nil reg
// falls back to the no-op registry, the metrics still work but are never
// exported.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = noop
	}

	return &PrometheusMetrics{
		Registerer: reg,

		Rolls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "roller_rolls_total",
			Help: "Number of journaler rolls by status",
		}, []string{"status"}),
		LeasedOutputs: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "roller_leased_outputs",
			Help: "Number of part files currently leased to producers",
		}),

		CoalesceGroups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "roller_coalesce_groups_total",
			Help: "Number of journal groups processed by outcome",
		}, []string{"outcome"}),
		CoalescedBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "roller_coalesced_bytes_total",
			Help: "Bytes copied from part files into final outputs",
		}),
		CoalesceDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "roller_coalesce_duration_seconds",
			Help:    "Duration of a full coalesce run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		QuarantinedFiles: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "roller_quarantined_files_total",
			Help: "Part and journal files renamed to the error state",
		}),
		DataLoss: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "roller_data_loss_total",
			Help: "Part files found shorter than their last journaled offset",
		}),
		OrphansCleaned: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "roller_orphans_cleaned_total",
			Help: "Orphaned files finalized or removed by kind",
		}, []string{"kind"}),

		MetricsConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "roller_metrics_open_connections",
			Help: "Open connections to the metrics endpoint",
		}),
	}
}
