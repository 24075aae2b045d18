// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package events

import (
	"time"

	"github.com/ZSC714725/ffwatch/internal/ffmpeg/parse"
)

// NewLine wraps a raw line.
func NewLine(rc RunContext, line string, now time.Time) LineEvent {
	return LineEvent{RunID: rc.RunID, Line: line, Time: now}
}

// NewProgress binds a progress sample to the run. The sample's total is
// always taken from rc.
func NewProgress(rc RunContext, p parse.Progress, now time.Time) ProgressEvent {
	p.Total = rc.Duration
	return ProgressEvent{Run: rc, Progress: p, Time: now}
}

// NewCompletion binds a completion sample to the run. A duration carried by
// the completion line wins over the one in rc.
func NewCompletion(rc RunContext, c parse.Completion, now time.Time) CompletionEvent {
	if c.Duration > 0 {
		rc.Duration = c.Duration
	}
	return CompletionEvent{Run: rc, Overhead: c.Overhead, Duration: rc.Duration, Time: now}
}
