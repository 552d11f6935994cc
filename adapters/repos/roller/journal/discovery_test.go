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

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	entjournal "github.com/weaviate/roller/entities/journal"
)

func TestJournalPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.bgjournal", "a.bgjournal", "a.bgpart", "c.bgjournal.bgerror"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.bgjournal"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested.bgjournal", "d.bgjournal"), []byte("x"), 0o644))

	paths, err := JournalPaths(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.bgjournal"),
		filepath.Join(dir, "b.bgjournal"),
	}, paths)

	_, err = JournalPaths(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestGroupByKey(t *testing.T) {
	logger, hook := test.NewNullLogger()
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	entries := sampleEntries(t, 1)
	p1 := writeEntries(t, root, "one", "alpha", entries, fixedClock(20))
	p2 := writeEntries(t, root, "two", "alpha", entries, fixedClock(10))
	p3 := writeEntries(t, root, "three", "beta", entries, fixedClock(5))
	p4 := writeEntries(t, sub, "four", "alpha", entries, fixedClock(1))
	broken := filepath.Join(root, "broken.bgjournal")
	require.NoError(t, os.WriteFile(broken, []byte("garbage"), 0o644))

	groups := GroupByKey([]string{p1, p2, p3, p4, broken}, logger)
	require.Len(t, groups, 3)

	assert.Equal(t, "alpha", groups[0].Key)
	assert.Equal(t, root, groups[0].Dir)
	require.Len(t, groups[0].Journals, 2)
	assert.Equal(t, p2, groups[0].Journals[0].Path)
	assert.Equal(t, p1, groups[0].Journals[1].Path)

	assert.Equal(t, "beta", groups[1].Key)
	assert.Equal(t, root, groups[1].Dir)

	assert.Equal(t, "alpha", groups[2].Key)
	assert.Equal(t, sub, groups[2].Dir)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "roller_journal_load", hook.LastEntry().Data["action"])
	assert.Equal(t, broken, hook.LastEntry().Data["path"])
}

func TestDump(t *testing.T) {
	logger, _ := test.NewNullLogger()
	e, err := entjournal.NewEntry("/out/k_1.bgpart", 12)
	require.NoError(t, err)
	path := writeEntries(t, t.TempDir(), "k_1.bgpart", "k", []entjournal.Entry{e}, fixedClock(77))

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, path, logger))

	out := buf.String()
	assert.True(t, strings.Contains(out, "Journal Key: k\n"))
	assert.True(t, strings.Contains(out, "Start Sequence: 77\n"))
	assert.True(t, strings.Contains(out, e.String()))

	assert.Error(t, Dump(&buf, filepath.Join(t.TempDir(), "missing"), logger))
}
