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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TimestampGenerator names journals prefix-<UTC timestamp>-<counter>. All
// names have the same length for a given prefix, so no name is a prefix of
// another one.
type TimestampGenerator struct {
	prefix  string
	now     func() time.Time
	counter atomic.Uint64
}

func NewTimestampGenerator(prefix string) *TimestampGenerator {
	return &TimestampGenerator{prefix: prefix, now: time.Now}
}

func (g *TimestampGenerator) NextFileName() string {
	return fmt.Sprintf("%s-%s-%06d", g.prefix,
		g.now().UTC().Format("20060102150405"), g.counter.Add(1)%1_000_000)
}

// UUIDGenerator names journals prefix-<random uuid>.
type UUIDGenerator struct {
	prefix string
}

func NewUUIDGenerator(prefix string) *UUIDGenerator {
	return &UUIDGenerator{prefix: prefix}
}

func (g *UUIDGenerator) NextFileName() string {
	return g.prefix + "-" + uuid.NewString()
}
