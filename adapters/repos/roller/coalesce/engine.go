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
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/weaviate/roller/adapters/repos/roller/journal"
	"github.com/weaviate/roller/entities/diskio"
	entjournal "github.com/weaviate/roller/entities/journal"
	"github.com/weaviate/roller/usecases/monitoring"
)

// Merger coalesces one journal group and reports the outcome as one of the
// monitoring.Group* values.
type Merger interface {
	Merge(g *journal.Group) (string, error)
}

// groupPaths are the working files of a group, all located in the directory
// of the group's journals.
type groupPaths struct {
	working string
	rolled  string
	final   string
	attempt string
}

func pathsFor(g *journal.Group) groupPaths {
	base := filepath.Join(g.Dir, g.Key)
	return groupPaths{
		working: base + entjournal.RollingExt,
		rolled:  base + entjournal.RolledExt,
		final:   base,
		attempt: base + entjournal.AttemptExt,
	}
}

// engine merges a group's part files in journal order into the rolling
// file, commits it as rolled and finalizes it. A rolled file that already
// exists means an earlier run merged successfully and only needs to be
// finalized.
type engine struct {
	files *fileOps
}

func (e *engine) Merge(g *journal.Group) (string, error) {
	p := pathsFor(g)
	logger := e.files.logger.WithField("key", g.Key).WithField("dir", g.Dir)

	resumable, err := diskio.FileExists(p.rolled)
	if err != nil {
		return "", errors.Wrapf(err, "stat %q", p.rolled)
	}
	if resumable {
		logger.WithField("action", "roller_coalesce_resume").
			WithField("path", p.rolled).
			Info("rolled output already exists, removing part files")
		return monitoring.GroupResumed, e.finalize(g, p)
	}

	if err := e.merge(g, p); err != nil {
		return "", err
	}
	return monitoring.GroupMerged, e.finalize(g, p)
}

func (e *engine) merge(g *journal.Group, p groupPaths) error {
	logger := e.files.logger.WithField("action", "roller_coalesce_merge").
		WithField("key", g.Key).
		WithField("dir", g.Dir)
	logger.Info("coalescing part files")

	// truncates what a crashed run left behind
	out, err := os.OpenFile(p.working, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "open working file %q", p.working)
	}
	defer out.Close()

	for _, j := range g.Journals {
		if err := e.combine(j, out); err != nil {
			return err
		}
	}

	size, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrapf(err, "position of %q", p.working)
	}
	if err := out.Sync(); err != nil {
		return errors.Wrapf(err, "sync %q", p.working)
	}
	if err := out.Close(); err != nil {
		return errors.Wrapf(err, "close %q", p.working)
	}
	if err := os.Rename(p.working, p.rolled); err != nil {
		return errors.Wrapf(err, "rename %q", p.working)
	}
	if err := diskio.Fsync(g.Dir); err != nil {
		return errors.Wrapf(err, "sync directory %q", g.Dir)
	}

	logger.WithField("path", p.rolled).
		WithField("size", size).
		Infof("coalesced %d journals", len(g.Journals))
	return nil
}

// combine appends the committed bytes of the journal's part file to out. A
// part that cannot be copied completely is quarantined together with its
// journal and out is truncated back to where this part started; the merge
// continues with the next journal. Only failing to restore out is returned.
func (e *engine) combine(j *entjournal.Journal, out *os.File) error {
	logger := e.files.logger.WithField("journal", j.Path).WithField("key", j.Key)

	last, ok := j.LastEntry()
	if !ok {
		logger.WithField("action", "roller_coalesce_transfer").
			Debug("empty journal, nothing to copy")
		return nil
	}

	start, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "position of working file")
	}

	n, err := e.transfer(j, last, out)
	if err == nil {
		logger.WithField("action", "roller_coalesce_transfer").
			WithField("path", last.Value).
			Debugf("appended %d bytes", n)
		e.files.metrics.CoalescedBytesAdd(n)
		return nil
	}

	logger.WithField("action", "roller_coalesce_transfer").
		WithField("path", last.Value).
		WithError(err).
		Error("could not copy part file, quarantining it")
	e.files.quarantine(last.Value)
	e.files.quarantine(j.Path)

	if err := out.Truncate(start); err != nil {
		return errors.Wrapf(err, "truncate working file to %d", start)
	}
	if _, err := out.Seek(start, io.SeekStart); err != nil {
		return errors.Wrapf(err, "seek working file to %d", start)
	}
	return nil
}

// transfer copies [0, offset) of the part file named by the last entry. If
// the part is shorter than that offset the data after the last offset it
// still contains is lost.
func (e *engine) transfer(j *entjournal.Journal, last entjournal.Entry, out *os.File) (int64, error) {
	part, err := os.Open(last.Value)
	if err != nil {
		return 0, errors.Wrapf(err, "open part file")
	}
	defer part.Close()

	info, err := part.Stat()
	if err != nil {
		return 0, errors.Wrapf(err, "stat part file")
	}

	offset := last.Offset
	if info.Size() < offset {
		valid, ok, err := j.LastValidEntry(info.Size())
		if err != nil {
			return 0, err
		}
		offset = 0
		if ok {
			offset = valid.Offset
		}
		e.files.logger.WithField("action", "roller_coalesce_data_loss").
			WithField("path", last.Value).
			WithField("journal", j.Path).
			WithField("part_size", info.Size()).
			WithField("expected", last.Offset).
			WithField("actual", offset).
			Warn("part file is shorter than journaled, data was likely lost in a crash")
		e.files.metrics.DataLossDetected()
	}

	// *os.File to *os.File copies stay in the kernel
	n, err := io.CopyN(out, part, offset)
	if err == io.EOF {
		return n, errors.Errorf("premature EOF, expected %d bytes but only transferred %d", offset, n)
	}
	if err != nil {
		return n, errors.Wrapf(err, "copy %d bytes", offset)
	}
	return n, nil
}

// finalize removes every part file and journal of the group and promotes
// the rolled file.
func (e *engine) finalize(g *journal.Group, p groupPaths) error {
	for _, j := range g.Journals {
		for _, part := range j.Values() {
			if err := diskio.RemoveIfExists(part); err != nil {
				return errors.Wrapf(err, "remove part file %q", part)
			}
		}
		if err := diskio.RemoveIfExists(j.Path); err != nil {
			return errors.Wrapf(err, "remove journal %q", j.Path)
		}
	}

	return e.files.finalizeRolled(p.rolled, p.final)
}
