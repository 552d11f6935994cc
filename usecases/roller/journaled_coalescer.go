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


package roller

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/adapters/repos/roller/coalesce"
	"github.com/weaviate/roller/adapters/repos/roller/journal"
	"github.com/weaviate/roller/usecases/monitoring"
)

type journaledConfig struct {
	metrics     *monitoring.PrometheusMetrics
	writerOpts  []journal.WriterOption
	maxAttempts int
}

type JournaledOption func(c *journaledConfig)

func WithMetrics(metrics *monitoring.PrometheusMetrics) JournaledOption {
	return func(c *journaledConfig) {
		c.metrics = metrics
	}
}

func WithWriterOptions(opts ...journal.WriterOption) JournaledOption {
	return func(c *journaledConfig) {
		c.writerOpts = append(c.writerOpts, opts...)
	}
}

func WithMaxAttempts(n int) JournaledOption {
	return func(c *journaledConfig) {
		c.maxAttempts = n
	}
}

// JournaledCoalescer hands out part files like a Journaler and merges the
// retired pool's parts into their final output right after every roll.
// Groups left behind by a previous process are merged on construction,
// before the first pool is created.
type JournaledCoalescer struct {
	*journal.Journaler

	closeOnce sync.Once
	closeErr  error
}

func NewJournaledCoalescer(outputDir string, gen journal.FileNameGenerator, poolSize int,
	logger logrus.FieldLogger, opts ...JournaledOption,
) (*JournaledCoalescer, error) {
	cfg := journaledConfig{maxAttempts: coalesce.DefaultMaxAttempts}
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := coalesce.NewMaxAttempt(outputDir, cfg.maxAttempts, logger,
		coalesce.WithMetrics(cfg.metrics))
	if err != nil {
		return nil, err
	}
	if err := c.Coalesce(); err != nil {
		return nil, err
	}

	j, err := journal.NewJournaler(outputDir, gen, poolSize, logger,
		journal.WithMetrics(cfg.metrics),
		journal.WithPoolOptions(journal.WithWriterOptions(cfg.writerOpts...)),
		journal.WithPostRoll(func(paths []string) error {
			c.CoalescePaths(paths)
			return nil
		}))
	if err != nil {
		return nil, err
	}
	return &JournaledCoalescer{Journaler: j}, nil
}

// Close rolls a last time, so everything committed so far ends up in a final
// output, and refuses further outputs.
func (jc *JournaledCoalescer) Close() error {
	jc.closeOnce.Do(func() {
		jc.Roll()
		jc.closeErr = jc.Journaler.Close()
	})
	return jc.closeErr
}
