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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	entjournal "github.com/weaviate/roller/entities/journal"
)

// Group is the set of journals sharing one key in one directory. The union
// of their entries names every part file that makes up the final output
// Dir/Key.
type Group struct {
	Key      string
	Dir      string
	Journals []*entjournal.Journal
}

// JournalPaths lists the journal files directly inside dir.
func JournalPaths(dir string) ([]string, error) {
	list, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list journals in %q", dir)
	}

	var paths []string
	for _, fileInfo := range list {
		if fileInfo.IsDir() || !strings.HasSuffix(fileInfo.Name(), entjournal.Ext) {
			continue
		}
		paths = append(paths, filepath.Join(dir, fileInfo.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// GroupByKey loads every journal and groups them by directory and key.
// Journals that cannot be loaded are logged and left out. Groups are sorted
// by directory and key, journals within a group by start sequence.
func GroupByKey(paths []string, logger logrus.FieldLogger, opts ...ReaderOption) []*Group {
	byID := map[string]*Group{}

	for _, path := range paths {
		j, err := Load(path, logger, opts...)
		if err != nil {
			logger.WithField("action", "roller_journal_load").
				WithField("path", path).
				Warn(errors.Wrap(err, "skipping unreadable journal"))
			continue
		}

		dir := filepath.Dir(path)
		id := dir + string(filepath.Separator) + j.Key
		g, ok := byID[id]
		if !ok {
			g = &Group{Key: j.Key, Dir: dir}
			byID[id] = g
		}
		g.Journals = append(g.Journals, j)
	}

	groups := make([]*Group, 0, len(byID))
	for _, g := range byID {
		sort.Slice(g.Journals, func(a, b int) bool {
			ja, jb := g.Journals[a], g.Journals[b]
			if ja.StartSequence != jb.StartSequence {
				return ja.StartSequence < jb.StartSequence
			}
			return ja.Path < jb.Path
		})
		groups = append(groups, g)
	}
	sort.Slice(groups, func(a, b int) bool {
		if groups[a].Dir != groups[b].Dir {
			return groups[a].Dir < groups[b].Dir
		}
		return groups[a].Key < groups[b].Key
	})

	return groups
}

// Dump prints a human readable form of the journal at path.
func Dump(w io.Writer, path string, logger logrus.FieldLogger) error {
	j, err := Load(path, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Journal File: %s\n", path)
	fmt.Fprintf(w, "Journal Key: %s\n", j.Key)
	fmt.Fprintf(w, "Journal Version: %d\n", j.Version)
	fmt.Fprintf(w, "Start Sequence: %d\n", j.StartSequence)
	for _, e := range j.Entries {
		fmt.Fprintln(w, e.String())
	}
	return nil
}
