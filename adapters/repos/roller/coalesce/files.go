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

	"github.com/bmatcuk/doublestar"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/entities/diskio"
	entjournal "github.com/weaviate/roller/entities/journal"
	"github.com/weaviate/roller/usecases/monitoring"
)

// fileOps are the file system transitions shared by the merge engine, the
// attempt limiter and the cleanup passes.
type fileOps struct {
	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics
}

// quarantine renames path to path.bgerror. Failures are logged only.
func (f *fileOps) quarantine(path string) {
	if err := os.Rename(path, path+entjournal.ErrorExt); err != nil {
		f.logger.WithField("action", "roller_coalesce_quarantine").
			WithField("path", path).
			WithError(err).
			Warn("could not quarantine file")
		return
	}

	f.metrics.Quarantined(1)
}

// quarantineJournal quarantines every part file named by the journal and
// the journal itself.
func (f *fileOps) quarantineJournal(j *entjournal.Journal) {
	exists, err := diskio.FileExists(j.Path)
	if err != nil || !exists {
		return
	}

	for _, part := range j.Values() {
		f.quarantine(part)
	}
	f.quarantine(j.Path)
}

// finalizeRolled renames a non-empty rolled file to final and removes an
// empty one. A missing rolled file is not an error.
func (f *fileOps) finalizeRolled(rolled, final string) error {
	size, err := diskio.FileSize(rolled)
	if err != nil {
		return errors.Wrapf(err, "stat %q", rolled)
	}
	if size < 0 {
		return nil
	}

	logger := f.logger.WithField("action", "roller_coalesce_finalize").
		WithField("path", final)

	if size == 0 {
		if err := os.Remove(rolled); err != nil {
			return errors.Wrapf(err, "remove empty %q", rolled)
		}
		logger.Info("nothing was committed, removed empty rolled file")
		return nil
	}

	exists, err := diskio.FileExists(final)
	if err != nil {
		return errors.Wrapf(err, "stat %q", final)
	}
	if exists {
		return errors.Wrapf(ErrFinalExists, "%q", final)
	}

	if err := os.Rename(rolled, final); err != nil {
		return errors.Wrapf(err, "rename %q", rolled)
	}
	if err := diskio.Fsync(filepath.Dir(final)); err != nil {
		return errors.Wrapf(err, "sync directory of %q", final)
	}

	logger.WithField("size", size).Info("removed part files and moved rolled file to final output")
	return nil
}

// removeRollFiles removes key*.bgrolling and key*.bgrolled in dir.
func (f *fileOps) removeRollFiles(dir, key string) error {
	matches, err := globKey(dir, key, entjournal.RollingExt, entjournal.RolledExt)
	if err != nil {
		return err
	}

	for _, path := range matches {
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "remove roll file %q", path)
		}
		f.logger.WithField("action", "roller_coalesce_remove_roll_file").
			WithField("path", path).
			Debug("removed roll file")
	}
	return nil
}

// hasSources reports whether dir still holds part files or journals for
// key, i.e. whether a rolled file of key is still needed for a regular
// resume.
func hasSources(dir, key string) (bool, error) {
	matches, err := globKey(dir, key, entjournal.PartExt, entjournal.Ext)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// globKey lists dir/key*{exts...}. Glob syntax in dir and key is matched
// literally.
func globKey(dir, key string, exts ...string) ([]string, error) {
	pattern := filepath.Join(escapeGlob(dir), escapeGlob(key)+"*{"+strings.Join(exts, ",")+"}")
	matches, err := doublestar.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "glob %q", pattern)
	}
	return matches, nil
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`,
)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
