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
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Entry records that the file named by Value was durably written up to
// Offset.
type Entry struct {
	Value  string
	Offset int64
}

func NewEntry(value string, offset int64) (Entry, error) {
	if len(value) == 0 {
		return Entry{}, errors.Wrap(ErrInvalidEntry, "value must not be empty")
	}
	if len(value) > MaxValueLength {
		return Entry{}, errors.Wrapf(ErrInvalidEntry,
			"value is %d bytes, max is %d", len(value), MaxValueLength)
	}
	if offset < 0 {
		return Entry{}, errors.Wrapf(ErrInvalidEntry, "negative offset %d", offset)
	}
	return Entry{Value: value, Offset: offset}, nil
}

// SameValue reports whether both entries describe the same file, regardless
// of offset. Use list order, never this comparison, to find the latest offset.
func (e Entry) SameValue(other Entry) bool {
	return e.Value == other.Value
}

// SerializedSize is the number of bytes Serialize writes.
func (e Entry) SerializedSize() int {
	return 4 + 1 + len(e.Value) + 1 + 8
}

// Serialize writes len | sep | value | sep | offset to the start of buf and
// returns the number of bytes written.
func (e Entry) Serialize(buf []byte) (int, error) {
	size := e.SerializedSize()
	if len(buf) < size {
		return 0, errors.Errorf("buffer of %d bytes too small for entry of %d", len(buf), size)
	}

	pos := 0
	binary.BigEndian.PutUint32(buf[pos:], uint32(len(e.Value)))
	pos += 4
	buf[pos] = Separator
	pos++
	pos += copy(buf[pos:], e.Value)
	buf[pos] = Separator
	pos++
	binary.BigEndian.PutUint64(buf[pos:], uint64(e.Offset))
	pos += 8

	return pos, nil
}

// DeserializeEntry is the inverse of Serialize.
func DeserializeEntry(buf []byte) (Entry, int, error) {
	pos := 0
	if len(buf) < 5 {
		return Entry{}, 0, errors.Wrap(ErrCorruptJournal, "short entry")
	}

	valLen := int(binary.BigEndian.Uint32(buf[pos:]))
	pos += 4
	if buf[pos] != Separator {
		return Entry{}, 0, errors.Wrap(ErrCorruptJournal, "missing separator after value length")
	}
	pos++

	if valLen < 1 || valLen > MaxValueLength || len(buf) < pos+valLen+1+8 {
		return Entry{}, 0, errors.Wrapf(ErrCorruptJournal, "value length %d out of range", valLen)
	}
	value := string(buf[pos : pos+valLen])
	pos += valLen

	if buf[pos] != Separator {
		return Entry{}, 0, errors.Wrap(ErrCorruptJournal, "missing separator after value")
	}
	pos++

	offset := int64(binary.BigEndian.Uint64(buf[pos:]))
	pos += 8
	if offset < 0 {
		return Entry{}, 0, errors.Wrapf(ErrCorruptJournal, "negative offset %d", offset)
	}

	return Entry{Value: value, Offset: offset}, pos, nil
}

func (e Entry) String() string {
	return fmt.Sprintf("JournalEntry{val=%s, offset=%d}", e.Value, e.Offset)
}
