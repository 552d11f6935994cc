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
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/roller/entities/diskio"
	entjournal "github.com/weaviate/roller/entities/journal"
)

type readerConfig struct {
	onRead diskio.MeteredReaderCallback
}

type ReaderOption func(c *readerConfig)

// WithReadObserver reports the number of bytes read from journal files.
func WithReadObserver(cb diskio.MeteredReaderCallback) ReaderOption {
	return func(c *readerConfig) {
		c.onRead = cb
	}
}

type reader struct {
	path     string
	src      io.Reader
	buf      []byte
	logger   logrus.FieldLogger
	startSeq int64
}

// Load parses the journal file at path.
//
// The header must be intact and of the current version. Records are read
// until the first one that is incomplete, out of sequence or undecodable; a
// journal cut off by a crash mid-append therefore loads as the prefix that
// was fully written.
func Load(path string, logger logrus.FieldLogger, opts ...ReaderOption) (*entjournal.Journal, error) {
	var cfg readerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	size, err := diskio.FileSize(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat journal %q", path)
	}
	if size <= 0 {
		return nil, errors.Wrapf(entjournal.ErrNoSuchJournal, "%q is missing or empty", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal %q", path)
	}
	defer f.Close()

	r := &reader{
		path:   path,
		src:    bufio.NewReaderSize(diskio.NewMeteredReader(f, cfg.onRead), 32*1024),
		buf:    make([]byte, entjournal.EntryLength),
		logger: logger,
	}

	j := entjournal.New(path)
	if err := r.readHeader(j); err != nil {
		return nil, err
	}
	if err := r.loadEntries(j); err != nil {
		return nil, err
	}

	return j, nil
}

func (r *reader) readHeader(j *entjournal.Journal) error {
	magic := r.buf[:len(entjournal.Magic)]
	if _, err := io.ReadFull(r.src, magic); err != nil {
		return errors.Wrapf(entjournal.ErrInvalidMagic, "%q: %v", r.path, err)
	}
	if !bytes.Equal(magic, []byte(entjournal.Magic)) {
		return errors.Wrapf(entjournal.ErrInvalidMagic, "%q", r.path)
	}

	if _, err := io.ReadFull(r.src, r.buf[:1]); err != nil {
		return errors.Wrapf(entjournal.ErrCorruptJournal, "read version of %q: %v", r.path, err)
	}
	j.Version = r.buf[0]
	if j.Version != entjournal.CurrentVersion {
		return errors.Wrapf(entjournal.ErrUnsupportedVersion, "%q has version %d", r.path, j.Version)
	}

	key, err := r.readKey()
	if err != nil {
		return err
	}
	j.Key = key

	if _, err := io.ReadFull(r.src, r.buf[:9]); err != nil {
		return errors.Wrapf(entjournal.ErrCorruptJournal, "read start sequence of %q: %v", r.path, err)
	}
	seq, ok := sequenceOf(r.buf)
	if !ok {
		return errors.Wrapf(entjournal.ErrCorruptJournal, "invalid start sequence in %q", r.path)
	}
	r.startSeq = seq
	j.StartSequence = seq

	return nil
}

func (r *reader) readKey() (string, error) {
	if _, err := io.ReadFull(r.src, r.buf[:4]); err != nil {
		return "", errors.Wrapf(entjournal.ErrCorruptJournal, "read key length of %q: %v", r.path, err)
	}
	keyLen := int(binary.BigEndian.Uint32(r.buf))
	if keyLen < 1 || keyLen > entjournal.MaxKeyLength {
		return "", errors.Wrapf(entjournal.ErrCorruptJournal, "key length %d in %q", keyLen, r.path)
	}

	if _, err := io.ReadFull(r.src, r.buf[:keyLen]); err != nil {
		return "", errors.Wrapf(entjournal.ErrCorruptJournal, "read key of %q: %v", r.path, err)
	}
	return string(r.buf[:keyLen]), nil
}

func (r *reader) loadEntries(j *entjournal.Journal) error {
	sequence := r.startSeq

	for {
		n, err := io.ReadFull(r.src, r.buf)
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			r.logger.WithField("action", "roller_journal_read_truncated").
				WithField("path", r.path).
				WithField("key", j.Key).
				WithField("start_sequence", r.startSeq).
				WithField("last_sequence", sequence).
				WithField("entries", len(j.Entries)).
				Warnf("incomplete journal record, expected %d bytes but read %d", entjournal.EntryLength, n)
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read journal %q", r.path)
		}

		seq, ok := sequenceOf(r.buf)
		if !ok || seq != sequence+1 {
			r.logger.WithField("action", "roller_journal_read_sequence").
				WithField("path", r.path).
				WithField("key", j.Key).
				WithField("entries", len(j.Entries)).
				Warnf("incorrect sequence value, expected %d received %d", sequence+1, seq)
			return nil
		}

		e, _, err := entjournal.DeserializeEntry(r.buf[9:])
		if err != nil {
			r.logger.WithField("action", "roller_journal_read_corrupt").
				WithField("path", r.path).
				WithField("key", j.Key).
				WithField("entries", len(j.Entries)).
				Warn(errors.Wrap(err, "journal record could not be decoded"))
			return nil
		}

		sequence = seq
		j.Entries = append(j.Entries, e)
	}
}

// sequenceOf decodes the 8 byte sequence and its trailing separator.
func sequenceOf(b []byte) (int64, bool) {
	seq := int64(binary.BigEndian.Uint64(b))
	if b[8] != entjournal.Separator {
		return -1, false
	}
	return seq, true
}
