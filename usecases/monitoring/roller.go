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

import "time"

const (
	RollSucceeded = "succeeded"
	RollFailed    = "failed"

	GroupMerged    = "merged"
	GroupResumed   = "resumed"
	GroupFailed    = "failed"
	GroupExhausted = "exhausted"
	GroupDeferred  = "deferred"

	OrphanRolled    = "rolled"
	OrphanEmptyPart = "empty_part"
)

func (pm *PrometheusMetrics) Roll(status string) {
	if pm == nil {
		return
	}

	pm.Rolls.WithLabelValues(status).Inc()
}

// A part file was handed out to a producer
func (pm *PrometheusMetrics) LeaseAcquired() {
	if pm == nil {
		return
	}

	pm.LeasedOutputs.Inc()
}

// A part file was returned to its pool
func (pm *PrometheusMetrics) LeaseReleased() {
	if pm == nil {
		return
	}

	pm.LeasedOutputs.Dec()
}

func (pm *PrometheusMetrics) CoalesceGroup(outcome string) {
	if pm == nil {
		return
	}

	pm.CoalesceGroups.WithLabelValues(outcome).Inc()
}

func (pm *PrometheusMetrics) CoalescedBytesAdd(n int64) {
	if pm == nil || n <= 0 {
		return
	}

	pm.CoalescedBytes.Add(float64(n))
}

func (pm *PrometheusMetrics) CoalesceRun(started time.Time) {
	if pm == nil {
		return
	}

	pm.CoalesceDuration.Observe(time.Since(started).Seconds())
}

func (pm *PrometheusMetrics) Quarantined(files int) {
	if pm == nil || files <= 0 {
		return
	}

	pm.QuarantinedFiles.Add(float64(files))
}

func (pm *PrometheusMetrics) DataLossDetected() {
	if pm == nil {
		return
	}

	pm.DataLoss.Inc()
}

func (pm *PrometheusMetrics) OrphanCleaned(kind string) {
	if pm == nil {
		return
	}

	pm.OrphansCleaned.WithLabelValues(kind).Inc()
}
