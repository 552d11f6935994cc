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
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/adapters/openfiles"
	"github.com/weaviate/roller/adapters/repos/roller/journal"
)

// Readiness decides whether a discovered group may be merged now.
type Readiness interface {
	Ready(g *journal.Group) bool
}

type AlwaysReady struct{}

func (AlwaysReady) Ready(*journal.Group) bool {
	return true
}

// OpenFilesReadiness holds back every group with a journal that is still
// open, its pool has not been rolled yet.
type OpenFilesReadiness struct {
	checker openfiles.OpenFileChecker
	logger  logrus.FieldLogger
}

func NewOpenFilesReadiness(checker openfiles.OpenFileChecker, logger logrus.FieldLogger) *OpenFilesReadiness {
	return &OpenFilesReadiness{checker: checker, logger: logger}
}

func (r *OpenFilesReadiness) Ready(g *journal.Group) bool {
	for _, j := range g.Journals {
		if r.checker.IsOpen(j.Path) {
			r.logger.WithField("action", "roller_coalesce_deferred").
				WithField("key", g.Key).
				WithField("journal", j.Path).
				Debug("journal is still open")
			return false
		}
	}
	return true
}
