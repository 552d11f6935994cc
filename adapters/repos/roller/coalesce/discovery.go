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
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/pkg/errors"

	"github.com/weaviate/roller/adapters/repos/roller/journal"
	entjournal "github.com/weaviate/roller/entities/journal"
)

// Discoverer decides which directories a coalescer works on.
type Discoverer interface {
	// Journals lists all journal files.
	Journals() ([]string, error)
	// Files lists all files with the given extension.
	Files(ext string) ([]string, error)
}

// FlatDiscoverer covers a single directory.
type FlatDiscoverer struct {
	dir string
}

func NewFlatDiscoverer(dir string) *FlatDiscoverer {
	return &FlatDiscoverer{dir: dir}
}

func (d *FlatDiscoverer) Journals() ([]string, error) {
	return journal.JournalPaths(d.dir)
}

func (d *FlatDiscoverer) Files(ext string) ([]string, error) {
	list, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %q", d.dir)
	}

	var paths []string
	for _, entry := range list {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		paths = append(paths, filepath.Join(d.dir, entry.Name()))
	}
	return paths, nil
}

// WalkDiscoverer covers every directory matching root + subDirPattern. The
// pattern uses doublestar syntax: "" is root itself, "/*" its children,
// "/**" root and everything below it.
type WalkDiscoverer struct {
	root    string
	pattern string
}

func NewWalkDiscoverer(root, subDirPattern string) (*WalkDiscoverer, error) {
	if subDirPattern != "" && !strings.HasPrefix(subDirPattern, "/") {
		return nil, errors.Wrapf(doublestar.ErrBadPattern,
			"sub directory pattern %q must be empty or start with /", subDirPattern)
	}
	return &WalkDiscoverer{root: root, pattern: subDirPattern}, nil
}

func (d *WalkDiscoverer) Journals() ([]string, error) {
	return d.Files(entjournal.Ext)
}

func (d *WalkDiscoverer) Files(ext string) ([]string, error) {
	glob := d.root + d.pattern + "/*" + ext
	matches, err := doublestar.Glob(glob)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %q", glob)
	}

	paths := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, m)
	}
	sort.Strings(paths)
	return paths, nil
}
