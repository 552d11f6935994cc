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
	"io"
	"path/filepath"
	"sync/atomic"
)

// KeyedOutput is a lease on one part file of a pool. Only committed bytes
// become part of the final output. Close returns the part file to its pool,
// a lease must not be used afterwards.
type KeyedOutput struct {
	pool     *Pool
	channel  *channel
	released atomic.Bool
}

var (
	_ io.WriteCloser = (*KeyedOutput)(nil)
	_ io.ReaderFrom  = (*KeyedOutput)(nil)
)

func (o *KeyedOutput) Write(p []byte) (int, error) {
	if o.released.Load() {
		return 0, ErrLeaseReleased
	}
	return o.channel.Write(p)
}

func (o *KeyedOutput) ReadFrom(r io.Reader) (int64, error) {
	if o.released.Load() {
		return 0, ErrLeaseReleased
	}
	return o.channel.ReadFrom(r)
}

// Commit journals everything written so far.
func (o *KeyedOutput) Commit() error {
	if o.released.Load() {
		return ErrLeaseReleased
	}
	return o.channel.Commit()
}

func (o *KeyedOutput) Position() (int64, error) {
	if o.released.Load() {
		return 0, ErrLeaseReleased
	}
	return o.channel.Position()
}

// Path is the part file backing this lease.
func (o *KeyedOutput) Path() string {
	return o.channel.Path()
}

// FinalDestination is where the data ends up once the pool was rolled and
// its part files coalesced.
func (o *KeyedOutput) FinalDestination() string {
	return filepath.Join(o.pool.dir, o.pool.key)
}

// Close returns the part file to its pool. Only the first call has an
// effect.
func (o *KeyedOutput) Close() error {
	if !o.released.CompareAndSwap(false, true) {
		return nil
	}
	o.pool.giveBack(o.channel)
	o.pool.cfg.metrics.LeaseReleased()
	return nil
}
