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
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/entities/diskio"
	"github.com/weaviate/roller/usecases/monitoring"
)

// FileNameGenerator supplies the key of the next pool on every roll.
type FileNameGenerator interface {
	NextFileName() string
}

type journalerConfig struct {
	preRoll  func() error
	postRoll func(paths []string) error
	poolOpts []PoolOption
	metrics  *monitoring.PrometheusMetrics
}

type JournalerOption func(c *journalerConfig)

// WithPreRoll runs fn at the start of every roll, before the current pool is
// closed. An error aborts the roll.
func WithPreRoll(fn func() error) JournalerOption {
	return func(c *journalerConfig) {
		c.preRoll = fn
	}
}

// WithPostRoll receives the journals that existed when the next pool was
// initialized, i.e. the journals that are now ready to be coalesced.
func WithPostRoll(fn func(paths []string) error) JournalerOption {
	return func(c *journalerConfig) {
		c.postRoll = fn
	}
}

func WithPoolOptions(opts ...PoolOption) JournalerOption {
	return func(c *journalerConfig) {
		c.poolOpts = append(c.poolOpts, opts...)
	}
}

func WithMetrics(metrics *monitoring.PrometheusMetrics) JournalerOption {
	return func(c *journalerConfig) {
		c.metrics = metrics
	}
}

// Journaler owns the pool that producers currently write to. A roll retires
// that pool and starts a new one under a freshly generated key, which makes
// the journals of the retired pool eligible for coalescing.
type Journaler struct {
	sync.Mutex

	outputDir string
	gen       FileNameGenerator
	poolSize  int
	cfg       journalerConfig
	logger    logrus.FieldLogger

	pool    atomic.Pointer[Pool]
	rolling atomic.Bool
	closed  bool
}

func NewJournaler(outputDir string, gen FileNameGenerator, poolSize int,
	logger logrus.FieldLogger, opts ...JournalerOption,
) (*Journaler, error) {
	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve output path %q", outputDir)
	}
	if err := diskio.ValidateDir(abs); err != nil {
		return nil, err
	}
	if poolSize < 1 {
		poolSize = DefaultPoolSize
	}

	cfg := journalerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	j := &Journaler{
		outputDir: abs,
		gen:       gen,
		poolSize:  poolSize,
		cfg:       cfg,
		logger:    logger,
	}

	if _, err := j.initializeNextPool(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journaler) OutputDir() string {
	return j.outputDir
}

// Key is the key of the pool currently handing out outputs. It does not
// wait for a roll or a blocked GetOutput, lease holders may call it.
func (j *Journaler) Key() string {
	return j.pool.Load().Key()
}

func (j *Journaler) IsRolling() bool {
	return j.rolling.Load()
}

// GetOutput leases a part file of the current pool. It blocks while every
// part file of the pool is leased. If a roll retires the pool while waiting,
// the lease is taken from the next pool instead.
func (j *Journaler) GetOutput() (*KeyedOutput, error) {
	pool, err := j.currentPool()
	if err != nil {
		return nil, err
	}

	for {
		out, err := pool.GetFree()
		if !errors.Is(err, ErrPoolClosed) {
			return out, err
		}

		next, err := j.currentPool()
		if err != nil {
			return nil, err
		}
		if next == pool {
			return nil, ErrPoolClosed
		}
		pool = next
	}
}

// currentPool waits for a roll in progress.
func (j *Journaler) currentPool() (*Pool, error) {
	j.Lock()
	defer j.Unlock()

	if j.closed {
		return nil, ErrJournalerClosed
	}
	return j.pool.Load(), nil
}

// Roll closes the current pool, waiting for outstanding leases, and starts
// the next one. It returns the journals that were present before the new
// pool was created. Failures are logged and yield nil; the next roll retries.
func (j *Journaler) Roll() []string {
	j.rolling.Store(true)
	defer j.rolling.Store(false)

	logger := j.logger.WithField("action", "roller_roll").
		WithField("dir", j.outputDir)

	if j.cfg.preRoll != nil {
		if err := j.cfg.preRoll(); err != nil {
			logger.WithError(err).Error("pre roll hook failed")
			j.cfg.metrics.Roll(monitoring.RollFailed)
			return nil
		}
	}

	paths, err := j.initializeNextPool()
	if err != nil {
		logger.WithError(err).Error("could not initialize next pool")
		j.cfg.metrics.Roll(monitoring.RollFailed)
		return nil
	}

	if j.cfg.postRoll != nil {
		if err := j.cfg.postRoll(paths); err != nil {
			logger.WithError(err).Error("post roll hook failed")
			j.cfg.metrics.Roll(monitoring.RollFailed)
			return nil
		}
	}

	logger.WithField("journals", len(paths)).Debug("rolled")
	j.cfg.metrics.Roll(monitoring.RollSucceeded)
	return paths
}

func (j *Journaler) initializeNextPool() ([]string, error) {
	j.Lock()
	defer j.Unlock()

	if j.closed {
		return nil, ErrJournalerClosed
	}

	if current := j.pool.Load(); current != nil {
		if err := current.Close(); err != nil {
			return nil, errors.Wrapf(err, "close pool %q", current.Key())
		}
	}

	paths, err := JournalPaths(j.outputDir)
	if err != nil {
		return nil, err
	}

	opts := append([]PoolOption{WithPoolMetrics(j.cfg.metrics)}, j.cfg.poolOpts...)
	pool, err := NewPool(j.outputDir, j.gen.NextFileName(), j.poolSize, j.logger, opts...)
	if err != nil {
		return nil, err
	}
	j.pool.Store(pool)

	j.logger.WithField("action", "roller_roll").
		WithField("key", pool.Key()).
		Debug("initialized next pool")
	return paths, nil
}

// Close closes the current pool, waiting for outstanding leases. Outputs
// committed so far remain on disk for the next coalesce run.
func (j *Journaler) Close() error {
	j.Lock()
	defer j.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.pool.Load().Close()
}
