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
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/weaviate/roller/adapters/repos/roller/journal"
	"github.com/weaviate/roller/entities/diskio"
)

// attemptLimiter counts merge attempts per key in key.bgattempt. Once
// maxAttempts were made the group's files are quarantined instead of merged
// again. Resuming an already rolled group is not counted.
type attemptLimiter struct {
	next        Merger
	maxAttempts int
	files       *fileOps
}

func newAttemptLimiter(next Merger, maxAttempts int, files *fileOps) *attemptLimiter {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &attemptLimiter{next: next, maxAttempts: maxAttempts, files: files}
}

func (a *attemptLimiter) Merge(g *journal.Group) (string, error) {
	p := pathsFor(g)

	resumable, err := diskio.FileExists(p.rolled)
	if err != nil {
		return "", errors.Wrapf(err, "stat %q", p.rolled)
	}
	if !resumable {
		if err := a.countAttempt(g, p); err != nil {
			return "", err
		}
	}

	outcome, err := a.next.Merge(g)
	if err != nil {
		return outcome, err
	}

	if err := diskio.RemoveIfExists(p.attempt); err != nil {
		return outcome, errors.Wrapf(err, "remove attempt file %q", p.attempt)
	}
	return outcome, nil
}

func (a *attemptLimiter) countAttempt(g *journal.Group, p groupPaths) error {
	attempt := readAttempts(p.attempt)
	if attempt >= a.maxAttempts {
		a.cleanupFailedAttempts(g, p)
		return errors.Wrapf(ErrTooManyAttempts, "key %q in %q after %d attempts", g.Key, g.Dir, attempt)
	}

	next := attempt + 1
	a.files.logger.WithField("action", "roller_coalesce_attempt").
		WithField("key", g.Key).
		WithField("dir", g.Dir).
		Debugf("coalescing attempt %d of %d", next, a.maxAttempts)

	if err := os.WriteFile(p.attempt, []byte(strconv.Itoa(next)), 0o644); err != nil {
		return errors.Wrapf(err, "write attempt file %q", p.attempt)
	}
	return nil
}

func (a *attemptLimiter) cleanupFailedAttempts(g *journal.Group, p groupPaths) {
	for _, j := range g.Journals {
		a.files.quarantineJournal(j)
	}

	if err := a.files.removeRollFiles(g.Dir, g.Key); err != nil {
		a.files.logger.WithField("action", "roller_coalesce_exhausted").
			WithField("key", g.Key).
			WithError(err).
			Warn("could not remove roll files")
	}
	if err := diskio.RemoveIfExists(p.attempt); err != nil {
		a.files.logger.WithField("action", "roller_coalesce_exhausted").
			WithField("key", g.Key).
			WithError(err).
			Warn("could not remove attempt file")
	}
}

// readAttempts returns 0 for a missing attempt file. A file that exists but
// cannot be read or parsed counts as one attempt, as does any number below
// one.
func readAttempts(path string) int {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		return 1
	}

	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 1
	}
	return max(n, 1)
}
