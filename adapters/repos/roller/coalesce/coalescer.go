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

// Package coalesce merges the part files of rolled journal groups into their
// final outputs. All progress is recorded in the file system: a crashed run
// is resumed by simply running again.
//
// Per group the files move through
//
//	key_*.bgpart + key_*.bgpart.bgjournal
//	  -> key.bgrolling (merge in progress)
//	  -> key.bgrolled  (merged, sources not yet removed)
//	  -> key           (final output)
//
// with key.bgattempt counting attempts and .bgerror marking quarantined
// files.
package coalesce

import (
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/adapters/openfiles"
	"github.com/weaviate/roller/adapters/repos/roller/journal"
	"github.com/weaviate/roller/entities/diskio"
	"github.com/weaviate/roller/usecases/monitoring"
)

// DefaultMaxAttempts is the number of merge attempts per key before its
// files are quarantined.
const DefaultMaxAttempts = 3

var (
	ErrTooManyAttempts = errors.New("maximum number of coalesce attempts reached")
	ErrFinalExists     = errors.New("final output already exists")
)

type config struct {
	setupOutputPath bool
	metrics         *monitoring.PrometheusMetrics
}

type Option func(c *config)

// WithSetupOutputPath creates the output directory if it does not exist.
func WithSetupOutputPath(enabled bool) Option {
	return func(c *config) {
		c.setupOutputPath = enabled
	}
}

func WithMetrics(metrics *monitoring.PrometheusMetrics) Option {
	return func(c *config) {
		c.metrics = metrics
	}
}

// Coalescer finds journal groups, merges the ones that are ready and cleans
// up after itself. A single Coalescer must own a directory tree, two
// instances working on the same files corrupt each other's outputs.
type Coalescer struct {
	outputDir  string
	discoverer Discoverer
	readiness  Readiness
	merger     Merger
	files      *fileOps
	logger     logrus.FieldLogger
	metrics    *monitoring.PrometheusMetrics

	// non-nil when empty orphaned part files are cleaned after every run
	emptyParts openfiles.OpenFileChecker
}

// New coalesces the journals directly inside outputDir, without attempt
// limit or open file checks.
func New(outputDir string, logger logrus.FieldLogger, opts ...Option) (*Coalescer, error) {
	c, err := newCoalescer(outputDir, logger, opts, func(dir string) (Discoverer, error) {
		return NewFlatDiscoverer(dir), nil
	})
	if err != nil {
		return nil, err
	}
	return c, c.start()
}

// NewMaxAttempt is New with at most maxAttempts merge attempts per key.
func NewMaxAttempt(outputDir string, maxAttempts int, logger logrus.FieldLogger,
	opts ...Option,
) (*Coalescer, error) {
	c, err := newCoalescer(outputDir, logger, opts, func(dir string) (Discoverer, error) {
		return NewFlatDiscoverer(dir), nil
	})
	if err != nil {
		return nil, err
	}
	c.merger = newAttemptLimiter(c.merger, maxAttempts, c.files)
	return c, c.start()
}

// NewWalkDirectory discovers journals in every directory below outputDir
// matching subDirPattern, e.g. "" for outputDir only, "/*" for its direct
// children or "/**" for any depth. Every group is merged inside the
// directory holding its journals.
func NewWalkDirectory(outputDir, subDirPattern string, maxAttempts int,
	logger logrus.FieldLogger, opts ...Option,
) (*Coalescer, error) {
	c, err := newCoalescer(outputDir, logger, opts, func(dir string) (Discoverer, error) {
		return NewWalkDiscoverer(dir, subDirPattern)
	})
	if err != nil {
		return nil, err
	}
	c.merger = newAttemptLimiter(c.merger, maxAttempts, c.files)
	return c, c.start()
}

// NewLsof is NewWalkDirectory that skips every group with a journal still
// held open by some process, and removes empty part files nobody writes to
// after each run.
func NewLsof(outputDir, subDirPattern string, maxAttempts int,
	checker openfiles.OpenFileChecker, logger logrus.FieldLogger, opts ...Option,
) (*Coalescer, error) {
	c, err := newCoalescer(outputDir, logger, opts, func(dir string) (Discoverer, error) {
		return NewWalkDiscoverer(dir, subDirPattern)
	})
	if err != nil {
		return nil, err
	}
	c.merger = newAttemptLimiter(c.merger, maxAttempts, c.files)
	c.readiness = NewOpenFilesReadiness(checker, logger)
	c.emptyParts = checker
	return c, c.start()
}

func newCoalescer(outputDir string, logger logrus.FieldLogger, opts []Option,
	discoverer func(dir string) (Discoverer, error),
) (*Coalescer, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve output path %q", outputDir)
	}
	if cfg.setupOutputPath {
		if err := diskio.SetupDir(abs); err != nil {
			return nil, err
		}
	}
	if err := diskio.ValidateDir(abs); err != nil {
		return nil, err
	}

	d, err := discoverer(abs)
	if err != nil {
		return nil, err
	}

	files := &fileOps{logger: logger, metrics: cfg.metrics}
	return &Coalescer{
		outputDir:  abs,
		discoverer: d,
		readiness:  AlwaysReady{},
		merger:     &engine{files: files},
		files:      files,
		logger:     logger,
		metrics:    cfg.metrics,
	}, nil
}

// start finalizes rolled outputs left behind by a run that crashed after
// merging but before its cleanup completed.
func (c *Coalescer) start() error {
	if err := c.sweepOrphanedRolled(); err != nil {
		if errors.Is(err, doublestar.ErrBadPattern) {
			return err
		}
		c.logger.WithField("action", "roller_coalesce_orphan").
			WithField("dir", c.outputDir).
			WithError(err).
			Error("could not clean up rolled files")
	}
	return nil
}

func (c *Coalescer) OutputDir() string {
	return c.outputDir
}

// Coalesce merges every ready journal group. Failures of single groups are
// logged and never stop the run, only a failure to discover journals is
// returned.
func (c *Coalescer) Coalesce() error {
	defer c.metrics.CoalesceRun(time.Now())

	paths, err := c.discoverer.Journals()
	if err != nil {
		return errors.Wrapf(err, "discover journals in %q", c.outputDir)
	}

	for _, g := range journal.GroupByKey(paths, c.logger) {
		if !c.readiness.Ready(g) {
			c.logger.WithField("action", "roller_coalesce_deferred").
				WithField("key", g.Key).
				WithField("dir", g.Dir).
				Debug("journal group is still in use, skipping")
			c.metrics.CoalesceGroup(monitoring.GroupDeferred)
			continue
		}
		c.coalesceGroup(g)
	}

	if c.emptyParts != nil {
		c.cleanupEmptyParts()
	}
	return nil
}

// CoalescePaths merges the groups formed by the given journals, e.g. the
// journals returned by a roll. No readiness check is done.
func (c *Coalescer) CoalescePaths(paths []string) {
	if len(paths) == 0 {
		return
	}

	defer c.metrics.CoalesceRun(time.Now())
	for _, g := range journal.GroupByKey(paths, c.logger) {
		c.coalesceGroup(g)
	}
}

func (c *Coalescer) coalesceGroup(g *journal.Group) {
	logger := c.logger.WithField("key", g.Key).
		WithField("dir", g.Dir).
		WithField("journals", len(g.Journals))

	outcome, err := c.merger.Merge(g)
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		logger.WithField("action", "roller_coalesce_exhausted").
			WithError(err).
			Error("giving up on journal group, files were quarantined")
		outcome = monitoring.GroupExhausted
	case err != nil:
		logger.WithField("action", "roller_coalesce_group").
			WithError(err).
			Error("could not coalesce journal group")
		outcome = monitoring.GroupFailed
	default:
		logger.WithField("action", "roller_coalesce_group").
			WithField("outcome", outcome).
			Debug("coalesced journal group")
	}

	c.metrics.CoalesceGroup(outcome)
}
