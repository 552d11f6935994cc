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
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var (
	ErrNotDirectory  = errors.New("not a directory")
	ErrNotAccessible = errors.New("directory is not readable and writable")
)

func FileExists(file string) (bool, error) {
	_, err := os.Stat(file)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FileSize returns the size of file, or -1 if it does not exist.
func FileSize(file string) (int64, error) {
	info, err := os.Stat(file)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Fsync flushes a file or a directory. Syncing the parent directory after a
// rename makes the rename itself durable.
func Fsync(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Sync()
}

// RemoveIfExists deletes path and ignores a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ValidateDir checks that dir exists, is a directory and can be read and
// written by the current process.
func ValidateDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "stat output path %q", dir)
	}
	if !info.IsDir() {
		return errors.Wrapf(ErrNotDirectory, "output path %q", dir)
	}
	if err := unix.Access(dir, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return errors.Wrapf(ErrNotAccessible, "output path %q: %v", dir, err)
	}
	return nil
}

// SetupDir creates dir and its parents if needed.
func SetupDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create output path %q", dir)
	}
	return nil
}
