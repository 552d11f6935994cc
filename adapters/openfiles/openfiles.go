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

// Package openfiles answers whether any process on the host still holds a
// file open. Coalescing uses it to leave journals of live writers alone.
package openfiles

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultProcRoot   = "/proc"
	DefaultLsofBinary = "lsof"

	MethodProc = "proc"
	MethodLsof = "lsof"
)

type OpenFileChecker interface {
	IsOpen(path string) bool
}

// New returns the checker for method, one of MethodProc and MethodLsof.
func New(method string, logger logrus.FieldLogger) (OpenFileChecker, error) {
	switch method {
	case MethodProc:
		return NewProcChecker(DefaultProcRoot, logger), nil
	case MethodLsof:
		return NewLsofChecker(DefaultLsofBinary, logger), nil
	default:
		return nil, errors.Errorf("unknown open files method %q", method)
	}
}

// ProcChecker resolves the file descriptor links of every process below a
// procfs root. Processes that exit while scanning are skipped. When the fd
// directory of some process cannot be read and no readable one holds the
// file, the fallback checker decides.
type ProcChecker struct {
	procRoot string
	fallback OpenFileChecker
	logger   logrus.FieldLogger
}

type ProcOption func(c *ProcChecker)

// WithFallback replaces lsof as the checker consulted for processes whose
// file descriptors are not visible, e.g. those of other users.
func WithFallback(fallback OpenFileChecker) ProcOption {
	return func(c *ProcChecker) {
		c.fallback = fallback
	}
}

func NewProcChecker(procRoot string, logger logrus.FieldLogger, opts ...ProcOption) *ProcChecker {
	c := &ProcChecker{
		procRoot: procRoot,
		fallback: NewLsofChecker(DefaultLsofBinary, logger),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ProcChecker) IsOpen(path string) bool {
	logger := c.logger.WithField("action", "roller_open_files_check").
		WithField("path", path)

	target, err := canonicalPath(path)
	if err != nil {
		logger.WithError(err).Warn("could not resolve path, assuming it is open")
		return true
	}

	procs, err := os.ReadDir(c.procRoot)
	if err != nil {
		logger.WithError(err).Warn("could not list processes, assuming file is open")
		return true
	}

	hidden := 0
	for _, proc := range procs {
		fdDir := filepath.Join(c.procRoot, proc.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			if os.IsPermission(err) {
				hidden++
			}
			continue
		}

		for _, fd := range fds {
			resolved, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if resolved == target {
				return true
			}
		}
	}

	if hidden > 0 {
		logger.WithField("processes", hidden).
			Debug("file descriptors of some processes are not readable, asking fallback")
		return c.fallback.IsOpen(target)
	}
	return false
}

// canonicalPath resolves symlinks the way the kernel reports fd targets. A
// file that does not exist keeps its absolute path, nothing can hold it open.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if os.IsNotExist(err) {
		return abs, nil
	}
	return resolved, err
}

// LsofChecker asks lsof. Exit status 1 means no process has the file open,
// any other failure is treated as open so a live file is never merged.
type LsofChecker struct {
	binary string
	logger logrus.FieldLogger
}

func NewLsofChecker(binary string, logger logrus.FieldLogger) *LsofChecker {
	return &LsofChecker{binary: binary, logger: logger}
}

func (c *LsofChecker) IsOpen(path string) bool {
	var stderr bytes.Buffer
	cmd := exec.Command(c.binary, "-t", "--", path)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err == nil {
		return len(bytes.TrimSpace(out)) > 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false
	}

	c.logger.WithField("action", "roller_open_files_check").
		WithField("path", path).
		WithField("stderr", stderr.String()).
		WithError(err).
		Warn("lsof failed, assuming file is open")
	return true
}
