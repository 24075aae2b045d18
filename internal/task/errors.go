// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package task

import "errors"

var (
	ErrNotFound        = errors.New("task not found")
	ErrTaskExists      = errors.New("task already exists")
	ErrInvalidConfig   = errors.New("invalid config: need a command or an input and an output")
	ErrNotRunning      = errors.New("task is not running")
	ErrCancelRequested = errors.New("cancel requested")
	ErrStoreClosed     = errors.New("task store is closed")
)
