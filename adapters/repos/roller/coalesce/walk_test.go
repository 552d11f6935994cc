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


package coalesce

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entjournal "github.com/weaviate/roller/entities/journal"
	"github.com/weaviate/roller/usecases/monitoring"
)

func TestWalkDirectory(t *testing.T) {
	logger, _ := test.NewNullLogger()
	root := t.TempDir()

	a := filepath.Join(root, "a")
	b := filepath.Join(root, "b")
	deep := filepath.Join(root, "b", "deep")
	for _, d := range []string{a, b, deep} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	writeParts(t, a, "out", "from ", "a")
	writeParts(t, b, "out", "from b")
	writeParts(t, deep, "out", "too deep")
	writeParts(t, root, "out", "at root")

	c, err := NewWalkDirectory(root, "/*", 3, logger)
	require.NoError(t, err)
	require.NoError(t, c.Coalesce())

	assert.Equal(t, "from a", readFile(t, filepath.Join(a, "out")))
	assert.Equal(t, "from b", readFile(t, filepath.Join(b, "out")))
	assertNoSources(t, a)
	assertNoSources(t, b)

	// outside of the pattern
	assert.NoFileExists(t, filepath.Join(root, "out"))
	assert.NoFileExists(t, filepath.Join(deep, "out"))
	assert.Equal(t, 1, countFiles(t, deep, entjournal.Ext))

	t.Run("any depth", func(t *testing.T) {
		c, err := NewWalkDirectory(root, "/**", 3, logger)
		require.NoError(t, err)
		require.NoError(t, c.Coalesce())

		assert.Equal(t, "at root", readFile(t, filepath.Join(root, "out")))
		assert.Equal(t, "too deep", readFile(t, filepath.Join(deep, "out")))
		assertNoSources(t, root)
		assertNoSources(t, deep)
	})
}

func TestWalkDiscovererFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "dir"+entjournal.RolledExt), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x", "b"+entjournal.RolledExt), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x", "a"+entjournal.RolledExt), nil, 0o644))

	d, err := NewWalkDiscoverer(root, "/*")
	require.NoError(t, err)
	files, err := d.Files(entjournal.RolledExt)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "x", "a"+entjournal.RolledExt),
		filepath.Join(root, "x", "b"+entjournal.RolledExt),
	}, files)
}

func TestOpenJournalsAreDeferred(t *testing.T) {
	logger, _ := test.NewNullLogger()
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewPedanticRegistry())
	dir := t.TempDir()

	parts := writeParts(t, dir, "out", "abc", "def")
	checker := newFakeChecker(parts[1] + entjournal.Ext)

	c, err := NewLsof(dir, "", 3, checker, logger, WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, c.Coalesce())

	assert.NoFileExists(t, filepath.Join(dir, "out"))
	assert.FileExists(t, parts[0])
	assert.NoFileExists(t, filepath.Join(dir, "out"+entjournal.AttemptExt))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CoalesceGroups.WithLabelValues(monitoring.GroupDeferred)))

	checker.setOpen(parts[1]+entjournal.Ext, false)
	require.NoError(t, c.Coalesce())

	assert.Equal(t, "abcdef", readFile(t, filepath.Join(dir, "out")))
	assertNoSources(t, dir)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CoalesceGroups.WithLabelValues(monitoring.GroupMerged)))
}

func TestEmptyPartCleanup(t *testing.T) {
	logger, _ := test.NewNullLogger()
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewPedanticRegistry())
	dir := t.TempDir()

	orphan := filepath.Join(dir, "a_1"+entjournal.PartExt)
	inUse := filepath.Join(dir, "a_2"+entjournal.PartExt)
	quarantined := filepath.Join(dir, "a_3"+entjournal.PartExt)
	withData := filepath.Join(dir, "a_4"+entjournal.PartExt)

	for _, p := range []string{orphan, inUse, quarantined} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}
	require.NoError(t, os.WriteFile(quarantined+entjournal.Ext+entjournal.ErrorExt, nil, 0o644))
	require.NoError(t, os.WriteFile(withData, []byte("data"), 0o644))

	checker := newFakeChecker(inUse)
	c, err := NewLsof(dir, "", 3, checker, logger, WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, c.Coalesce())

	assert.NoFileExists(t, orphan)
	assert.FileExists(t, inUse)
	assert.FileExists(t, quarantined)
	assert.FileExists(t, withData)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.OrphansCleaned.WithLabelValues(monitoring.OrphanEmptyPart)))

	t.Run("plain coalescers leave empty parts alone", func(t *testing.T) {
		dir := t.TempDir()
		part := filepath.Join(dir, "a_1"+entjournal.PartExt)
		require.NoError(t, os.WriteFile(part, nil, 0o644))

		c, err := NewMaxAttempt(dir, 3, logger)
		require.NoError(t, err)
		require.NoError(t, c.Coalesce())
		assert.FileExists(t, part)
	})
}
