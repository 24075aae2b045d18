// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

// Package events turns classified diagnostic lines into immutable run events
// and fans them out over a process-wide bus.
package events

import (
	"time"

	"github.com/ZSC714725/ffwatch/internal/ffmpeg/parse"
)

// Event type constants for kelindar/event.
const (
	TypeLine uint32 = iota + 1
	TypeProgress
	TypeCompletion
	TypeState
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// RunContext describes one run. Duration is zero until the first duration
// announcement has been seen.
type RunContext struct {
	RunID    string        `json:"run_id"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Command  string        `json:"command"`
	Duration time.Duration `json:"duration"`
}

// LineEvent carries one raw diagnostic line.
type LineEvent struct {
	RunID string    `json:"run_id"`
	Line  string    `json:"line"`
	Time  time.Time `json:"time"`
}

// Type returns the event type identifier for LineEvent.
func (e LineEvent) Type() uint32 { return TypeLine }

// ProgressEvent is one progress sample bound to its run.
type ProgressEvent struct {
	Run      RunContext     `json:"run"`
	Progress parse.Progress `json:"progress"`
	Time     time.Time      `json:"time"`
}

// Type returns the event type identifier for ProgressEvent.
func (e ProgressEvent) Type() uint32 { return TypeProgress }

// Percent returns processed/total in [0,100], or -1 while the total
// duration is unknown.
func (e ProgressEvent) Percent() float64 {
	total := e.Progress.Total
	if total <= 0 {
		return -1
	}
	done := e.Progress.Processed
	if done < 0 {
		done = 0
	}
	pct := float64(done) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// CompletionEvent is the terminal summary of a run.
type CompletionEvent struct {
	Run      RunContext    `json:"run"`
	Overhead float64       `json:"muxing_overhead"`
	Duration time.Duration `json:"duration"`
	Time     time.Time     `json:"time"`
}

// Type returns the event type identifier for CompletionEvent.
func (e CompletionEvent) Type() uint32 { return TypeCompletion }

// State of a run as published on the bus.
type State string

// Run states.
const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFaulted   State = "faulted"
)

// StateEvent reports a run lifecycle transition.
type StateEvent struct {
	Run      RunContext `json:"run"`
	State    State      `json:"state"`
	ExitCode int        `json:"exit_code"`
	Error    string     `json:"error,omitempty"`
	Time     time.Time  `json:"time"`
}

// Type returns the event type identifier for StateEvent.
func (e StateEvent) Type() uint32 { return TypeState }
