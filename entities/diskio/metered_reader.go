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

package diskio

import (
	"io"
)

type MeteredReaderCallback func(read int64)

// MeteredReader reports the size of every successful read to a callback.
type MeteredReader struct {
	r  io.Reader
	cb MeteredReaderCallback
}

func (m *MeteredReader) Read(p []byte) (n int, err error) {
	n, err = m.r.Read(p)
	if n > 0 && m.cb != nil {
		m.cb(int64(n))
	}
	return
}

func NewMeteredReader(r io.Reader, cb MeteredReaderCallback) *MeteredReader {
	return &MeteredReader{r: r, cb: cb}
}
