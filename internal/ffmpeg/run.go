// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package ffmpeg

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZSC714725/ffwatch/internal/events"
	"github.com/ZSC714725/ffwatch/internal/ffmpeg/parse"
	"github.com/ZSC714725/ffwatch/internal/process"
)

// Run is one prepared invocation. It owns its process and run context and
// shares nothing with other runs.
type Run struct {
	proc     *process.Process
	handlers Handlers
	bus      *events.Bus
	now      func() time.Time

	rc           events.RunContext
	durationSeen bool
	lock         sync.RWMutex
}

// ID returns the run id
func (r *Run) ID() string {
	return r.Context().RunID
}

// Context returns a snapshot of the run context
func (r *Run) Context() events.RunContext {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.rc
}

// Status returns the process status
func (r *Run) Status() process.Status {
	return r.proc.Status()
}

// Log returns the captured diagnostic lines, oldest first
func (r *Run) Log() []process.Line {
	return r.proc.Log()
}

// Start runs the process and blocks until it reaches a terminal state.
func (r *Run) Start(ctx context.Context) error {
	err := r.proc.Run(ctx)
	r.publish(r.stateEvent(err))
	return err
}

func (r *Run) stateEvent(err error) events.StateEvent {
	ev := events.StateEvent{Run: r.Context(), State: events.StateCompleted, Time: r.now()}
	if err == nil {
		return ev
	}

	ev.Error = err.Error()
	ev.State = events.StateFaulted
	ev.ExitCode = -1

	var exitErr *process.ExitError
	switch {
	case errors.Is(err, process.ErrCancelled):
		ev.State = events.StateCancelled
	case errors.As(err, &exitErr):
		ev.ExitCode = exitErr.Code
	}
	return ev
}

func (r *Run) onStateChange(_, to process.State) {
	if to == process.StateRunning {
		r.publish(events.StateEvent{Run: r.Context(), State: events.StateRunning, Time: r.now()})
	}
}

func (r *Run) onLine(line string) {
	ev := events.NewLine(r.Context(), line, r.now())
	if r.handlers.OnLine != nil {
		r.handlers.OnLine(ev)
	}
	r.publish(ev)
}

// Parse implements process.Parser. It is only called from the run's reader
// goroutine.
func (r *Run) Parse(line string) error {
	if d, ok := parse.ExtractDuration(line); ok {
		r.lock.Lock()
		if !r.durationSeen {
			r.rc.Duration = d
			r.durationSeen = true
		}
		r.lock.Unlock()
	}

	switch {
	case parse.IsProgressLine(line):
		rc := r.Context()
		ev := events.NewProgress(rc, parse.ExtractProgress(line, rc.Duration), r.now())
		if r.handlers.OnProgress != nil {
			r.handlers.OnProgress(ev)
		}
		r.publish(ev)
	case parse.IsCompletionLine(line):
		c := parse.ExtractCompletion(line)
		if c.Duration > 0 {
			// a completion line may correct the announced duration
			r.lock.Lock()
			r.rc.Duration = c.Duration
			r.durationSeen = true
			r.lock.Unlock()
		}
		ev := events.NewCompletion(r.Context(), c, r.now())
		if r.handlers.OnCompletion != nil {
			r.handlers.OnCompletion(ev)
		}
		r.publish(ev)
	}

	return nil
}

func (r *Run) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
