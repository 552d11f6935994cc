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

// Package journal contains the durable facts recorded for part files: the
// Entry ("value V was flushed up to offset O") and the Journal, the ordered
// list of entries read back from a single .bgjournal file.
package journal

import (
	"github.com/pkg/errors"
)

const (
	// Magic starts every journal file.
	Magic = "BGJRNL"
	// CurrentVersion is the only format version that can be read or written.
	CurrentVersion byte = 1
	// EntryLength is the fixed size of every record following the header.
	EntryLength = 1024
	// MaxValueLength bounds an entry value so a record always fits EntryLength.
	MaxValueLength = 512
	// MaxKeyLength bounds the key stored in the header.
	MaxKeyLength = 1024
	// Separator is written between fields and used for padding.
	Separator byte = 0x00

	Ext        = ".bgjournal"
	PartExt    = ".bgpart"
	RollingExt = ".bgrolling"
	RolledExt  = ".bgrolled"
	AttemptExt = ".bgattempt"
	ErrorExt   = ".bgerror"
)

var (
	ErrInvalidEntry       = errors.New("invalid journal entry")
	ErrNegativeSize       = errors.New("channel size must not be negative")
	ErrImmutableJournal   = errors.New("journals are immutable")
	ErrNoSuchJournal      = errors.New("journal does not exist")
	ErrInvalidMagic       = errors.New("not a journal file, invalid magic")
	ErrUnsupportedVersion = errors.New("unsupported journal version")
	ErrCorruptJournal     = errors.New("corrupt journal")
)

// Journal is the in-memory form of a journal file. Entries are in append
// order, which is chronological but not necessarily monotonic in offset.
type Journal struct {
	Key           string
	Version       byte
	Path          string
	StartSequence int64
	Entries       []Entry
}

func New(path string) *Journal {
	return &Journal{Path: path}
}

// LastEntry returns the most recently appended entry.
func (j *Journal) LastEntry() (Entry, bool) {
	if len(j.Entries) == 0 {
		return Entry{}, false
	}
	return j.Entries[len(j.Entries)-1], true
}

// LastValidEntry returns the most recent entry whose offset is contained in a
// file of channelSize bytes. It is used when a part file turned out shorter
// than its last journaled offset, i.e. data was recorded as flushed but never
// reached the disk.
func (j *Journal) LastValidEntry(channelSize int64) (Entry, bool, error) {
	if channelSize < 0 {
		return Entry{}, false, errors.Wrapf(ErrNegativeSize, "size %d", channelSize)
	}

	for i := len(j.Entries) - 1; i >= 0; i-- {
		if j.Entries[i].Offset <= channelSize {
			return j.Entries[i], true, nil
		}
	}
	return Entry{}, false, nil
}

// Values returns the distinct entry values (part file paths) in order of
// first appearance.
func (j *Journal) Values() []string {
	seen := make(map[string]struct{}, 1)
	var out []string
	for _, e := range j.Entries {
		if _, ok := seen[e.Value]; ok {
			continue
		}
		seen[e.Value] = struct{}{}
		out = append(out, e.Value)
	}
	return out
}
