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
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	entjournal "github.com/weaviate/roller/entities/journal"
)

// BufferSize bounds the chunk size of every write to a part file.
const BufferSize = 128 * 1024

// AppendOnlyChannel is a write-forward-only file. Reading, seeking and
// truncating are not part of the contract.
type AppendOnlyChannel interface {
	io.Writer
	io.ReaderFrom
	// Commit records the current position in the journal, making every byte
	// written so far durable from the point of view of a coalescer.
	Commit() error
	Position() (int64, error)
	Size() (int64, error)
	Path() string
}

// channel is a part file paired with its journal writer. It is created once
// by a pool, leased many times and closed exactly once.
type channel struct {
	path    string
	index   int
	file    *os.File
	journal *Writer
	entry   *entjournal.Entry
	buf     []byte
}

var _ AppendOnlyChannel = (*channel)(nil)

func newChannel(path, key string, index int, opts ...WriterOption) (*channel, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "create part file %q", path)
	}

	w, err := NewWriter(filepath.Dir(path), filepath.Base(path), key, opts...)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	c := &channel{
		path:    path,
		index:   index,
		file:    f,
		journal: w,
		buf:     make([]byte, BufferSize),
	}

	// every part file has a journal record before any data is written
	if err := c.Commit(); err != nil {
		c.close()
		return nil, err
	}

	return c, nil
}

func (c *channel) Path() string {
	return c.path
}

func (c *channel) Write(p []byte) (int, error) {
	if c.file == nil {
		return 0, os.ErrClosed
	}

	written := 0
	for written < len(p) {
		limit := min(len(p)-written, BufferSize)
		n, err := c.file.Write(p[written : written+limit])
		written += n
		if err != nil {
			return written, errors.Wrapf(err, "write to %q", c.path)
		}
	}
	return written, nil
}

// ReadFrom copies r to the part file through the channel's own buffer, so
// memory use stays bounded regardless of the source.
func (c *channel) ReadFrom(r io.Reader) (int64, error) {
	if c.file == nil {
		return 0, os.ErrClosed
	}
	return io.CopyBuffer(writerOnly{c}, readerOnly{r}, c.buf)
}

func (c *channel) Position() (int64, error) {
	if c.file == nil {
		return 0, os.ErrClosed
	}
	return c.file.Seek(0, io.SeekCurrent)
}

func (c *channel) Size() (int64, error) {
	if c.file == nil {
		return 0, os.ErrClosed
	}
	info, err := c.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (c *channel) Commit() error {
	pos, err := c.Position()
	if err != nil {
		return errors.Wrapf(err, "position of %q", c.path)
	}

	e, err := entjournal.NewEntry(c.path, pos)
	if err != nil {
		return err
	}

	if _, err := c.journal.Write(e); err != nil {
		return err
	}
	c.entry = &e
	return nil
}

// reposition moves the file position back to the last committed offset, so
// a new lease starts exactly where the last commit left off. Bytes written
// after that commit are overwritten by the next writer.
func (c *channel) reposition() error {
	if c.file == nil || c.entry == nil {
		return os.ErrClosed
	}

	pos, err := c.Position()
	if err != nil {
		return err
	}
	if pos == c.entry.Offset {
		return nil
	}

	_, err = c.file.Seek(c.entry.Offset, io.SeekStart)
	return errors.Wrapf(err, "reposition %q to %d", c.path, c.entry.Offset)
}

func (c *channel) close() error {
	var result *multierror.Error
	if c.file != nil {
		result = multierror.Append(result, c.file.Close())
		c.file = nil
	}
	result = multierror.Append(result, c.journal.Close())
	c.entry = nil
	c.buf = nil
	return result.ErrorOrNil()
}

type writerOnly struct {
	io.Writer
}

type readerOnly struct {
	io.Reader
}
