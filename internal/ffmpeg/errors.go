// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package ffmpeg

import (
	"errors"
	"fmt"
)

var (
	ErrBinaryNotFound = errors.New("ffmpeg binary not found")
	ErrEmptyCommand   = errors.New("command is empty")
	ErrInvalidCommand = errors.New("command can't be parsed")
	ErrInvalidInput   = errors.New("invalid input address")
	ErrInvalidOutput  = errors.New("invalid output address")
)

// SetupError is returned before any process is spawned.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func setupError(op string, err error) error {
	return &SetupError{Op: op, Err: err}
}
