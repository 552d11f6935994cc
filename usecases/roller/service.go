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
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/entities/cyclemanager"
	enterrors "github.com/weaviate/roller/entities/errors"
)

var ErrAlreadyStarted = errors.New("service already started")

// Roller retires the current pool, see journal.Journaler.
type Roller interface {
	Roll() []string
}

// Coalescer merges all groups that are ready, see coalesce.Coalescer.
type Coalescer interface {
	Coalesce() error
}

type ServiceOption func(s *Service)

// WithRoll rolls r every interval.
func WithRoll(r Roller, interval time.Duration) ServiceOption {
	return func(s *Service) {
		s.roller = r
		s.rollInterval = interval
	}
}

// WithCoalesce runs c every interval.
func WithCoalesce(c Coalescer, interval time.Duration) ServiceOption {
	return func(s *Service) {
		s.coalescer = c
		s.coalesceInterval = interval
	}
}

// Service drives rolls and coalesce runs on fixed intervals. Each cycle runs
// its work sequentially, a slow run delays the next tick instead of
// overlapping with it.
type Service struct {
	roller           Roller
	rollInterval     time.Duration
	coalescer        Coalescer
	coalesceInterval time.Duration
	logger           logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(logger logrus.FieldLogger, opts ...ServiceOption) *Service {
	s := &Service{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the configured cycles. They end when ctx is done or Stop is
// called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	var cycles []cyclemanager.CycleManager
	if s.roller != nil && s.rollInterval > 0 {
		cycles = append(cycles, s.cycle("roller_service_roll", s.rollInterval, func() {
			s.roller.Roll()
		}))
	}
	if s.coalescer != nil && s.coalesceInterval > 0 {
		cycles = append(cycles, s.cycle("roller_service_coalesce", s.coalesceInterval, func() {
			if err := s.coalescer.Coalesce(); err != nil {
				s.logger.WithField("action", "roller_service_coalesce").
					WithError(err).
					Error("coalesce run failed")
			}
		}))
	}

	enterrors.GoWrapper(func() {
		defer close(s.done)
		<-ctx.Done()

		for _, cm := range cycles {
			if err := cm.StopAndWait(context.Background()); err != nil {
				s.logger.WithField("action", "roller_service_stop").
					WithError(err).
					Error("could not stop cycle")
			}
		}
		s.logger.WithField("action", "roller_service_stop").Debug("stopped")
	}, s.logger)
	return nil
}

func (s *Service) cycle(action string, interval time.Duration, fn func()) cyclemanager.CycleManager {
	cm := cyclemanager.NewManager(cyclemanager.NewFixedTicker(interval),
		func(shouldBreak cyclemanager.ShouldBreakFunc) bool {
			fn()
			return true
		}, s.logger)
	cm.Start()

	s.logger.WithField("action", action).
		WithField("interval", interval).
		Debug("started")
	return cm
}

// Stop ends all cycles and waits for a run in progress to finish. It is safe
// to call Stop more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
