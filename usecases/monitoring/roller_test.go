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
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRollerMetrics(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewPedanticRegistry())

	t.Run("leases", func(t *testing.T) {
		m.LeaseAcquired()
		m.LeaseAcquired()
		m.LeaseReleased()
		assert.Equal(t, float64(1), testutil.ToFloat64(m.LeasedOutputs))
	})

	t.Run("rolls", func(t *testing.T) {
		m.Roll(RollSucceeded)
		m.Roll(RollSucceeded)
		m.Roll(RollFailed)
		assert.Equal(t, float64(2), testutil.ToFloat64(m.Rolls.WithLabelValues(RollSucceeded)))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Rolls.WithLabelValues(RollFailed)))
	})

	t.Run("coalesce", func(t *testing.T) {
		m.CoalesceGroup(GroupMerged)
		m.CoalescedBytesAdd(10)
		m.CoalescedBytesAdd(-1)
		m.Quarantined(2)
		m.Quarantined(0)
		m.DataLossDetected()
		m.OrphanCleaned(OrphanEmptyPart)
		m.CoalesceRun(time.Now())

		assert.Equal(t, float64(1), testutil.ToFloat64(m.CoalesceGroups.WithLabelValues(GroupMerged)))
		assert.Equal(t, float64(10), testutil.ToFloat64(m.CoalescedBytes))
		assert.Equal(t, float64(2), testutil.ToFloat64(m.QuarantinedFiles))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.DataLoss))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.OrphansCleaned.WithLabelValues(OrphanEmptyPart)))
		assert.Equal(t, 1, testutil.CollectAndCount(m.CoalesceDuration))
	})
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PrometheusMetrics

	assert.NotPanics(t, func() {
		m.Roll(RollFailed)
		m.LeaseAcquired()
		m.LeaseReleased()
		m.CoalesceGroup(GroupFailed)
		m.CoalescedBytesAdd(1)
		m.CoalesceRun(time.Now())
		m.Quarantined(1)
		m.DataLossDetected()
		m.OrphanCleaned(OrphanRolled)
	})
}

func TestNoopRegistryAllowsDuplicates(t *testing.T) {
	a := NewPrometheusMetrics(nil)
	b := NewPrometheusMetrics(nil)
	a.LeaseAcquired()
	b.LeaseAcquired()
	assert.Equal(t, float64(1), testutil.ToFloat64(b.LeasedOutputs))
}

func TestCountingListener(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewPedanticRegistry())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cl := m.CountingListener(l)
	defer cl.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := cl.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	conn := <-accepted
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MetricsConnections))

	require.NoError(t, conn.Close())
	conn.Close()
	assert.Equal(t, float64(0), testutil.ToFloat64(m.MetricsConnections))

	var nilMetrics *PrometheusMetrics
	assert.Equal(t, l, nilMetrics.CountingListener(l))
}
