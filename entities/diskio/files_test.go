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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDir(t *testing.T) {
	t.Run("valid directory", func(t *testing.T) {
		assert.NoError(t, ValidateDir(t.TempDir()))
	})

	t.Run("missing directory", func(t *testing.T) {
		assert.Error(t, ValidateDir(filepath.Join(t.TempDir(), "nope", "nope")))
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		assert.True(t, errors.Is(ValidateDir(path), ErrNotDirectory))
	})

	t.Run("not writable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("permission checks do not apply to root")
		}
		dir := filepath.Join(t.TempDir(), "ro")
		require.NoError(t, os.Mkdir(dir, 0o500))
		defer os.Chmod(dir, 0o700)
		assert.True(t, errors.Is(ValidateDir(dir), ErrNotAccessible))
	})
}

func TestSetupDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, SetupDir(dir))
	assert.NoError(t, ValidateDir(dir))
}

func TestFileHelpers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")

	exists, err := FileExists(path)
	require.NoError(t, err)
	assert.False(t, exists)

	size, err := FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), size)

	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	exists, err = FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	size, err = FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	require.NoError(t, Fsync(path))
	require.NoError(t, Fsync(dir))

	require.NoError(t, RemoveIfExists(path))
	require.NoError(t, RemoveIfExists(path))
}

func TestMeteredReader(t *testing.T) {
	var total int64
	r := NewMeteredReader(bytes.NewReader(make([]byte, 100)), func(read int64) {
		total += read
	})
	_, err := io.Copy(io.Discard, r)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}
