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

package cyclemanager

import "time"

// CycleTicker paces a cycle manager. CycleExecuted reports whether the last
// cycle did any work, tickers may use it to adjust their interval.
type CycleTicker interface {
	Start()
	Stop()
	C() <-chan time.Time
	CycleExecuted(executed bool)
}

type fixedTicker struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewFixedTicker ticks every interval, regardless of whether cycles do any
// work. interval must be positive. No tick is delivered before Start.
func NewFixedTicker(interval time.Duration) CycleTicker {
	ticker := time.NewTicker(interval)
	ticker.Stop()
	return &fixedTicker{interval: interval, ticker: ticker}
}

func (t *fixedTicker) Start() {
	t.ticker.Reset(t.interval)
}

func (t *fixedTicker) Stop() {
	t.ticker.Stop()
}

func (t *fixedTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *fixedTicker) CycleExecuted(executed bool) {}
