// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package process

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCancelled is returned by Run when the context was cancelled before
	// the child exited on its own. The context's error is wrapped as well.
	ErrCancelled = errors.New("process cancelled")
	// ErrStale is recorded as the fault when no output arrived within the
	// stale timeout.
	ErrStale = errors.New("process produced no output within stale timeout")
	// ErrAlreadyStarted is returned when Run is called twice.
	ErrAlreadyStarted = errors.New("process already started")
)

// SpawnError means the child could not be created.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the run faulted: either the child exited with a non-zero
// code or handling one of its lines failed (Cause is set).
type ExitError struct {
	Code int
	// Excerpt holds the two most recent lines, newest first. Nil if fewer
	// than two lines were captured.
	Excerpt []string
	Cause   error
}

func (e *ExitError) Error() string {
	var b strings.Builder
	if e.Cause != nil {
		fmt.Fprintf(&b, "process faulted (exit code %d): %v", e.Code, e.Cause)
	} else {
		fmt.Fprintf(&b, "process exited with code %d", e.Code)
	}
	if len(e.Excerpt) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Excerpt, " | "))
	}
	return b.String()
}

func (e *ExitError) Unwrap() error { return e.Cause }
