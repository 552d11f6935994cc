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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/weaviate/roller/entities/diskio"
	entjournal "github.com/weaviate/roller/entities/journal"
)

// writeJournalHeader is replaced in tests to simulate short writes.
var writeJournalHeader = func(f *os.File, header []byte) error {
	_, err := f.Write(header)
	return err
}

// Clock supplies the wall-clock time used to seed journal start sequences.
type Clock func() time.Time

type writerConfig struct {
	clock Clock
	sync  bool
}

type WriterOption func(c *writerConfig)

// WithClock replaces time.Now as the source of start sequences.
func WithClock(clock Clock) WriterOption {
	return func(c *writerConfig) {
		c.clock = clock
	}
}

// WithSync fsyncs the journal after every record.
func WithSync(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.sync = enabled
	}
}

// Writer appends fixed-length records to a journal file. The file starts with
//
//	MAGIC | VERSION | KEY_LEN | KEY | START_SEQ | 0x00
//
// followed by records of exactly entjournal.EntryLength bytes:
//
//	SEQ | 0x00 | VAL_LEN | 0x00 | VAL | 0x00 | OFFSET | zero padding
//
// All integers are big endian. A writer only ever creates a new file, an
// existing non-empty journal is never reopened.
type Writer struct {
	sync.Mutex

	path     string
	key      string
	cfg      writerConfig
	file     *os.File
	buf      []byte
	sequence int64
	prev     *entjournal.Entry
	closed   bool
}

func NewWriter(dir, journalFileName, key string, opts ...WriterOption) (*Writer, error) {
	if len(key) == 0 || len(key) > entjournal.MaxKeyLength {
		return nil, errors.Wrapf(entjournal.ErrInvalidEntry,
			"journal key must be between 1 and %d bytes", entjournal.MaxKeyLength)
	}

	cfg := writerConfig{clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Writer{
		path: filepath.Join(dir, journalFileName+entjournal.Ext),
		key:  key,
		cfg:  cfg,
		buf:  make([]byte, entjournal.EntryLength),
	}

	if err := w.checkJournal(); err != nil {
		return nil, err
	}

	return w, nil
}

func (w *Writer) checkJournal() error {
	size, err := diskio.FileSize(w.path)
	if err != nil {
		return errors.Wrapf(err, "stat journal %q", w.path)
	}
	if size > 0 {
		return errors.Wrapf(entjournal.ErrImmutableJournal, "journal %q already written", w.path)
	}
	return diskio.RemoveIfExists(w.path)
}

func (w *Writer) Path() string {
	return w.path
}

// Write appends e and returns the distance between its offset and the offset
// of the previously written entry, or 0 for the first entry.
func (w *Writer) Write(e entjournal.Entry) (int64, error) {
	w.Lock()
	defer w.Unlock()

	if w.closed {
		return 0, errors.Errorf("journal %q is closed", w.path)
	}

	if w.file == nil {
		if err := w.writeHeader(); err != nil {
			return 0, err
		}
	}

	clear(w.buf)
	binary.BigEndian.PutUint64(w.buf, uint64(w.sequence+1))
	w.buf[8] = entjournal.Separator
	if _, err := e.Serialize(w.buf[9:]); err != nil {
		return 0, errors.Wrapf(err, "serialize entry for %q", w.path)
	}

	if _, err := w.file.Write(w.buf); err != nil {
		return 0, errors.Wrapf(err, "append record to %q", w.path)
	}
	if w.cfg.sync {
		if err := w.file.Sync(); err != nil {
			return 0, errors.Wrapf(err, "sync journal %q", w.path)
		}
	}
	w.sequence++

	var delta int64
	if w.prev != nil {
		delta = e.Offset - w.prev.Offset
	}
	w.prev = &e
	return delta, nil
}

func (w *Writer) writeHeader() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "create journal %q", w.path)
	}

	w.sequence = w.cfg.clock().UnixMilli()

	header := make([]byte, 0, len(entjournal.Magic)+1+4+len(w.key)+9)
	header = append(header, entjournal.Magic...)
	header = append(header, entjournal.CurrentVersion)
	header = binary.BigEndian.AppendUint32(header, uint32(len(w.key)))
	header = append(header, w.key...)
	header = binary.BigEndian.AppendUint64(header, uint64(w.sequence))
	header = append(header, entjournal.Separator)

	if err := writeJournalHeader(f, header); err != nil {
		f.Close()
		// a partial header would make every retry fail on O_EXCL
		if rmErr := os.Remove(w.path); rmErr != nil {
			return errors.Wrapf(err, "write header of %q (remove partial journal: %v)", w.path, rmErr)
		}
		return errors.Wrapf(err, "write header of %q", w.path)
	}

	w.file = f
	return nil
}

// Close releases the journal file. Further writes fail.
func (w *Writer) Close() error {
	w.Lock()
	defer w.Unlock()

	w.closed = true
	w.buf = nil
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
