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
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	entjournal "github.com/weaviate/roller/entities/journal"
	"github.com/weaviate/roller/usecases/monitoring"
)

// DefaultPoolSize is the number of part files a pool creates at most unless
// configured otherwise.
const DefaultPoolSize = 10

var (
	ErrPoolClosed      = errors.New("channel pool is closed")
	ErrLeaseReleased   = errors.New("output was already returned to its pool")
	ErrJournalerClosed = errors.New("journaler is closed")
)

type poolConfig struct {
	writerOpts []WriterOption
	metrics    *monitoring.PrometheusMetrics
}

type PoolOption func(c *poolConfig)

// WithWriterOptions configures the journal writers of every channel created
// by the pool.
func WithWriterOptions(opts ...WriterOption) PoolOption {
	return func(c *poolConfig) {
		c.writerOpts = append(c.writerOpts, opts...)
	}
}

func WithPoolMetrics(metrics *monitoring.PrometheusMetrics) PoolOption {
	return func(c *poolConfig) {
		c.metrics = metrics
	}
}

// Pool hands out up to max part files for one key. Channels are created
// lazily, the first lease of a fresh pool creates the first part file.
// GetFree blocks while every channel is leased; Close blocks until every
// lease was returned.
type Pool struct {
	sync.Mutex
	cond *sync.Cond

	dir    string
	key    string
	max    int
	cfg    poolConfig
	logger logrus.FieldLogger

	all     []*channel
	free    []*channel
	created int
	closing bool
	closed  bool
}

func NewPool(dir, key string, max int, logger logrus.FieldLogger,
	opts ...PoolOption,
) (*Pool, error) {
	if max < 1 {
		return nil, errors.Errorf("pool size must be at least 1, got %d", max)
	}
	if key == "" {
		return nil, errors.Wrap(entjournal.ErrInvalidEntry, "pool key must not be empty")
	}

	var cfg poolConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{
		dir:    dir,
		key:    key,
		max:    max,
		cfg:    cfg,
		logger: logger,
		all:    make([]*channel, max),
	}
	p.cond = sync.NewCond(&p.Mutex)
	return p, nil
}

func (p *Pool) Key() string {
	return p.key
}

func (p *Pool) Dir() string {
	return p.dir
}

func (p *Pool) FreeCount() int {
	p.Lock()
	defer p.Unlock()
	return len(p.free)
}

func (p *Pool) CreatedCount() int {
	p.Lock()
	defer p.Unlock()
	return p.created
}

// GetFree leases a channel positioned at its last committed offset. It
// blocks while all channels are leased and fails with ErrPoolClosed once the
// pool is closing.
func (p *Pool) GetFree() (*KeyedOutput, error) {
	p.Lock()
	defer p.Unlock()

	c, err := p.findFree()
	if err != nil {
		return nil, err
	}

	if err := c.reposition(); err != nil {
		p.logger.WithField("action", "roller_pool_get_free").
			WithField("key", p.key).
			WithField("channel", c.index).
			WithField("path", c.path).
			Debug("returning channel to pool after failed lease")
		p.release(c)
		return nil, errors.Wrapf(err, "lease %q", c.path)
	}

	p.cfg.metrics.LeaseAcquired()
	return &KeyedOutput{pool: p, channel: c}, nil
}

// findFree must be called with the lock held.
func (p *Pool) findFree() (*channel, error) {
	for {
		if p.closing || p.closed {
			return nil, ErrPoolClosed
		}
		if len(p.free) > 0 {
			break
		}
		if p.created < p.max {
			if err := p.createChannel(); err != nil {
				return nil, err
			}
			continue
		}
		p.cond.Wait()
	}

	c := p.free[0]
	p.free[0] = nil
	p.free = p.free[1:]
	return c, nil
}

func (p *Pool) createChannel() error {
	path := filepath.Join(p.dir, fmt.Sprintf("%s_%s%s", p.key, uuid.New().String(), entjournal.PartExt))
	c, err := newChannel(path, p.key, p.created, p.cfg.writerOpts...)
	if err != nil {
		return errors.Wrapf(err, "create channel %d of pool %q", p.created, p.key)
	}

	p.all[p.created] = c
	p.created++
	p.free = append(p.free, c)

	p.logger.WithField("action", "roller_pool_create_channel").
		WithField("key", p.key).
		WithField("channel", c.index).
		WithField("path", path).
		Debugf("created channel %d of %d", p.created, p.max)
	return nil
}

// giveBack returns a leased channel and wakes up every waiter, both GetFree and
// Close may be blocked on the condition.
func (p *Pool) giveBack(c *channel) {
	p.Lock()
	defer p.Unlock()
	p.release(c)
}

func (p *Pool) release(c *channel) {
	defer p.cond.Broadcast()

	for _, f := range p.free {
		if f == c {
			p.logger.WithField("action", "roller_pool_free").
				WithField("key", p.key).
				WithField("channel", c.index).
				WithField("path", c.path).
				Warn("channel is already free, ignoring duplicate return")
			return
		}
	}
	if p.closed {
		p.logger.WithField("action", "roller_pool_free").
			WithField("key", p.key).
			WithField("channel", c.index).
			WithField("path", c.path).
			Warn("could not return channel to closed pool")
		return
	}
	p.free = append(p.free, c)
}

// Close waits until every leased channel was returned, then closes all
// channels. No new leases are handed out once Close was called. Calling Close
// again is a no-op.
func (p *Pool) Close() error {
	p.Lock()
	defer p.Unlock()

	p.closing = true
	p.cond.Broadcast()

	for !p.closed && len(p.free) < p.created {
		p.logger.WithField("action", "roller_pool_close").
			WithField("key", p.key).
			Debugf("waiting for %d leased outputs", p.created-len(p.free))
		p.cond.Wait()
	}
	if p.closed {
		return nil
	}

	var result *multierror.Error
	for _, c := range p.all[:p.created] {
		if err := c.close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close %q", c.path))
		}
	}

	p.all = nil
	p.free = nil
	p.closed = true
	p.cond.Broadcast()

	return result.ErrorOrNil()
}
