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

package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entjournal "github.com/weaviate/roller/entities/journal"
	"github.com/weaviate/roller/usecases/monitoring"
)

func countFiles(t *testing.T, dir, suffix string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+suffix))
	require.NoError(t, err)
	return len(matches)
}

func TestPoolCapacityBound(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	pool, err := NewPool(dir, "key", 3, logger)
	require.NoError(t, err)

	leases := make([]*KeyedOutput, 3)
	for i := range leases {
		leases[i], err = pool.GetFree()
		require.NoError(t, err)
	}
	assert.Equal(t, 3, pool.CreatedCount())
	assert.Equal(t, 0, pool.FreeCount())

	fourth := make(chan *KeyedOutput)
	go func() {
		o, err := pool.GetFree()
		if err == nil {
			fourth <- o
		}
	}()

	select {
	case <-fourth:
		t.Fatal("fourth lease must block while three are outstanding")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, leases[1].Close())

	var got *KeyedOutput
	select {
	case got = <-fourth:
	case <-time.After(5 * time.Second):
		t.Fatal("fourth lease was not handed out after a release")
	}
	assert.Equal(t, leases[1].Path(), got.Path())
	assert.Equal(t, 3, pool.CreatedCount())
	assert.Equal(t, 3, countFiles(t, dir, entjournal.PartExt))

	for _, o := range []*KeyedOutput{leases[0], leases[2], got} {
		require.NoError(t, o.Close())
	}
	require.NoError(t, pool.Close())
}

func TestPoolPartFileNames(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	pool, err := NewPool(dir, "key", 2, logger)
	require.NoError(t, err)

	o, err := pool.GetFree()
	require.NoError(t, err)
	defer pool.Close()
	defer o.Close()

	name := filepath.Base(o.Path())
	assert.True(t, strings.HasPrefix(name, "key_"))
	assert.True(t, strings.HasSuffix(name, entjournal.PartExt))
	assert.Equal(t, filepath.Join(dir, "key"), o.FinalDestination())

	// the initial commit creates the journal right away
	_, err = os.Stat(o.Path() + entjournal.Ext)
	assert.NoError(t, err)
}

func TestLeaseStartsAtLastCommit(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()
	pool, err := NewPool(dir, "key", 1, logger)
	require.NoError(t, err)

	o, err := pool.GetFree()
	require.NoError(t, err)
	_, err = o.Write([]byte("committed"))
	require.NoError(t, err)
	require.NoError(t, o.Commit())
	_, err = o.Write([]byte("-dropped"))
	require.NoError(t, err)
	path := o.Path()
	require.NoError(t, o.Close())

	o, err = pool.GetFree()
	require.NoError(t, err)
	pos, err := o.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(len("committed")), pos)

	_, err = o.ReadFrom(bytes.NewReader([]byte("+next")))
	require.NoError(t, err)
	require.NoError(t, o.Commit())
	require.NoError(t, o.Close())
	require.NoError(t, pool.Close())

	j, err := Load(path+entjournal.Ext, logger)
	require.NoError(t, err)
	assert.Equal(t, "key", j.Key)
	last, ok := j.LastEntry()
	require.True(t, ok)
	assert.Equal(t, int64(len("committed+next")), last.Offset)
	assert.Equal(t, path, last.Value)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "committed+next", string(content[:last.Offset]))
}

func TestLeaseClose(t *testing.T) {
	logger, hook := test.NewNullLogger()
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewPedanticRegistry())
	pool, err := NewPool(t.TempDir(), "key", 2, logger, WithPoolMetrics(metrics))
	require.NoError(t, err)

	o, err := pool.GetFree()
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LeasedOutputs))

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.Equal(t, 1, pool.FreeCount())
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.LeasedOutputs))
	assert.Empty(t, hook.AllEntries())

	_, err = o.Write([]byte("x"))
	assert.True(t, errors.Is(err, ErrLeaseReleased))
	assert.True(t, errors.Is(o.Commit(), ErrLeaseReleased))

	t.Run("duplicate return is ignored", func(t *testing.T) {
		pool.giveBack(o.channel)
		assert.Equal(t, 1, pool.FreeCount())
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, "roller_pool_free", hook.LastEntry().Data["action"])
		assert.Equal(t, 0, hook.LastEntry().Data["channel"])
	})

	require.NoError(t, pool.Close())
}

func TestLargeWritesAreChunked(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool, err := NewPool(t.TempDir(), "key", 1, logger)
	require.NoError(t, err)
	o, err := pool.GetFree()
	require.NoError(t, err)

	data := bytes.Repeat([]byte("0123456789abcdef"), 3*BufferSize/16+7)
	n, err := o.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	copied, err := o.ReadFrom(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), copied)
	require.NoError(t, o.Commit())

	path := o.Path()
	require.NoError(t, o.Close())
	require.NoError(t, pool.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, data...), data...), content)
}

func TestPoolCloseWaitsForLeases(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool, err := NewPool(t.TempDir(), "key", 2, logger)
	require.NoError(t, err)

	o, err := pool.GetFree()
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() {
		closed <- pool.Close()
	}()

	select {
	case <-closed:
		t.Fatal("close must wait for the outstanding lease")
	case <-time.After(100 * time.Millisecond):
	}

	// closing pools hand out nothing, even with free capacity
	_, err = pool.GetFree()
	assert.True(t, errors.Is(err, ErrPoolClosed))

	require.NoError(t, o.Close())
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return after the lease was released")
	}

	assert.NoError(t, pool.Close())
	_, err = pool.GetFree()
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

func TestPoolCloseWakesWaiters(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pool, err := NewPool(t.TempDir(), "key", 1, logger)
	require.NoError(t, err)

	o, err := pool.GetFree()
	require.NoError(t, err)

	waiting := make(chan error, 1)
	go func() {
		_, err := pool.GetFree()
		waiting <- err
	}()
	time.Sleep(50 * time.Millisecond)

	go pool.Close()

	select {
	case err := <-waiting:
		assert.True(t, errors.Is(err, ErrPoolClosed))
	case <-time.After(5 * time.Second):
		t.Fatal("waiting lease was not woken up by close")
	}

	require.NoError(t, o.Close())
}

func TestNewPoolValidation(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewPool(t.TempDir(), "key", 0, logger)
	assert.Error(t, err)

	_, err = NewPool(t.TempDir(), "", 1, logger)
	assert.True(t, errors.Is(err, entjournal.ErrInvalidEntry))

	t.Run("failed channel creation leaves nothing behind", func(t *testing.T) {
		pool, err := NewPool(filepath.Join(t.TempDir(), "missing"), "key", 1, logger)
		require.NoError(t, err)
		_, err = pool.GetFree()
		assert.Error(t, err)
		assert.Equal(t, 0, pool.CreatedCount())
	})
}
