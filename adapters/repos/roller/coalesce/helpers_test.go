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
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/roller/adapters/repos/roller/journal"
	entjournal "github.com/weaviate/roller/entities/journal"
)

var clockMillis atomic.Int64

// increasingClock gives every journal a distinct start sequence, so groups
// are merged in creation order.
func increasingClock() journal.WriterOption {
	return journal.WithClock(func() time.Time {
		return time.UnixMilli(1_700_000_000_000 + clockMillis.Add(1))
	})
}

// writeParts creates one part file per content in dir, all under key, and
// returns the part paths in creation order. Every "|" in a content marks a
// commit, the end of a content is always committed.
func writeParts(t *testing.T, dir, key string, contents ...string) []string {
	t.Helper()
	logger, _ := test.NewNullLogger()

	pool, err := journal.NewPool(dir, key, len(contents), logger,
		journal.WithWriterOptions(increasingClock()))
	require.NoError(t, err)

	outputs := make([]*journal.KeyedOutput, len(contents))
	for i := range contents {
		outputs[i], err = pool.GetFree()
		require.NoError(t, err)
	}

	paths := make([]string, len(contents))
	for i, content := range contents {
		for _, chunk := range strings.Split(content, "|") {
			_, err := outputs[i].Write([]byte(chunk))
			require.NoError(t, err)
			require.NoError(t, outputs[i].Commit())
		}
		paths[i] = outputs[i].Path()
		require.NoError(t, outputs[i].Close())
	}
	require.NoError(t, pool.Close())

	return paths
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func countFiles(t *testing.T, dir, suffix string) int {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)

	count := 0
	for _, entry := range list {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == suffix {
			count++
		}
	}
	return count
}

func assertNoSources(t *testing.T, dir string) {
	t.Helper()
	require.Equal(t, 0, countFiles(t, dir, entjournal.PartExt), "part files left in %s", dir)
	require.Equal(t, 0, countFiles(t, dir, entjournal.Ext), "journals left in %s", dir)
	require.Equal(t, 0, countFiles(t, dir, entjournal.RollingExt), "rolling files left in %s", dir)
	require.Equal(t, 0, countFiles(t, dir, entjournal.RolledExt), "rolled files left in %s", dir)
	require.Equal(t, 0, countFiles(t, dir, entjournal.AttemptExt), "attempt files left in %s", dir)
}

type fakeChecker struct {
	sync.Mutex
	open map[string]bool
	asked []string
}

func newFakeChecker(open ...string) *fakeChecker {
	f := &fakeChecker{open: map[string]bool{}}
	for _, p := range open {
		f.open[p] = true
	}
	return f
}

func (f *fakeChecker) IsOpen(path string) bool {
	f.Lock()
	defer f.Unlock()
	f.asked = append(f.asked, path)
	return f.open[path]
}

func (f *fakeChecker) setOpen(path string, open bool) {
	f.Lock()
	defer f.Unlock()
	f.open[path] = open
}
