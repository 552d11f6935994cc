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

	"github.com/weaviate/roller/entities/diskio"
	entjournal "github.com/weaviate/roller/entities/journal"
	"github.com/weaviate/roller/usecases/monitoring"
)

// sweepOrphanedRolled finalizes rolled files whose part files and journals
// are all gone. Rolled files with remaining sources are left to the regular
// resume of their group.
func (c *Coalescer) sweepOrphanedRolled() error {
	rolled, err := c.discoverer.Files(entjournal.RolledExt)
	if err != nil {
		return err
	}

	for _, path := range rolled {
		dir := filepath.Dir(path)
		key := strings.TrimSuffix(filepath.Base(path), entjournal.RolledExt)
		logger := c.logger.WithField("action", "roller_coalesce_orphan").
			WithField("path", path)

		sources, err := hasSources(dir, key)
		if err != nil {
			logger.WithError(err).Warn("could not check for part files")
			continue
		}
		if sources {
			continue
		}

		if err := c.files.finalizeRolled(path, filepath.Join(dir, key)); err != nil {
			logger.WithError(err).Error("could not finalize orphaned rolled file")
			continue
		}
		if err := diskio.RemoveIfExists(filepath.Join(dir, key+entjournal.AttemptExt)); err != nil {
			logger.WithError(err).Warn("could not remove attempt file")
		}

		logger.Info("finalized orphaned rolled file")
		c.metrics.OrphanCleaned(monitoring.OrphanRolled)
	}
	return nil
}

// cleanupEmptyParts removes empty part files without a journal that no
// process holds open. They are left behind by a crash between creating a
// part file and its journal.
func (c *Coalescer) cleanupEmptyParts() {
	parts, err := c.discoverer.Files(entjournal.PartExt)
	if err != nil {
		c.logger.WithField("action", "roller_coalesce_empty_part").
			WithField("dir", c.outputDir).
			WithError(err).
			Error("could not list part files")
		return
	}

	for _, part := range parts {
		if !c.isOrphanedEmptyPart(part) {
			continue
		}

		logger := c.logger.WithField("action", "roller_coalesce_empty_part").
			WithField("path", part)
		if err := diskio.RemoveIfExists(part); err != nil {
			logger.WithError(err).Warn("could not remove empty part file")
			continue
		}
		logger.Info("removed empty part file without journal")
		c.metrics.OrphanCleaned(monitoring.OrphanEmptyPart)
	}
}

func (c *Coalescer) isOrphanedEmptyPart(part string) bool {
	info, err := os.Stat(part)
	if err != nil || info.Size() != 0 {
		return false
	}

	for _, companion := range []string{
		part + entjournal.Ext,
		part + entjournal.Ext + entjournal.ErrorExt,
	} {
		if exists, err := diskio.FileExists(companion); err != nil || exists {
			return false
		}
	}

	return !c.emptyParts.IsOpen(part)
}
