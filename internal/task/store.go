// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package task

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/ffwatch/internal/events"
	"github.com/ZSC714725/ffwatch/internal/ffmpeg"
	"github.com/ZSC714725/ffwatch/internal/logger"
	"github.com/ZSC714725/ffwatch/internal/process"
)

// Task is one supervised ffmpeg run
type Task struct {
	ID        string
	Reference string
	Config    *Config
	CreatedAt int64

	seq    uint64
	run    *ffmpeg.Run
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu         sync.RWMutex
	progress   *events.ProgressEvent
	completion *events.CompletionEvent
	err        error
	finishedAt time.Time
}

// Status returns process status
func (t *Task) Status() process.Status {
	return t.run.Status()
}

// Context returns the run context, including the detected input duration
func (t *Task) Context() events.RunContext {
	return t.run.Context()
}

// Progress returns the latest progress sample, if any
func (t *Task) Progress() (events.ProgressEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.progress == nil {
		return events.ProgressEvent{}, false
	}
	return *t.progress, true
}

// Completion returns the completion summary, if ffmpeg printed one
func (t *Task) Completion() (events.CompletionEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.completion == nil {
		return events.CompletionEvent{}, false
	}
	return *t.completion, true
}

// Log returns process log lines
func (t *Task) Log() []process.Line {
	return t.run.Log()
}

// Done is closed once the run reached a terminal state
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// IsRunning returns whether the run has not finished yet
func (t *Task) IsRunning() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Err returns the outcome of a finished run. It is nil while running and
// after a successful run.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// ExitCode returns the exit code of a finished run, 0 on success and -1 if
// the process did not exit on its own.
func (t *Task) ExitCode() int {
	err := t.Err()
	if err == nil {
		return 0
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// FinishedAt returns the time the run finished, zero while running
func (t *Task) FinishedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finishedAt
}

func (t *Task) setProgress(e events.ProgressEvent) {
	t.mu.Lock()
	t.progress = &e
	t.mu.Unlock()
}

func (t *Task) setCompletion(e events.CompletionEvent) {
	t.mu.Lock()
	t.completion = &e
	t.mu.Unlock()
}

func (t *Task) finish(err error) {
	t.mu.Lock()
	t.err = err
	t.finishedAt = time.Now()
	t.mu.Unlock()
	close(t.done)
}

// Store manages tasks in memory
type Store interface {
	Add(config *Config) (*Task, error)
	Get(id string) (*Task, error)
	List(ids []string, reference string) []*Task
	Cancel(id string) error
	Delete(id string) error
	Wait(ctx context.Context, id string) error
	Close()
}

type store struct {
	ffmpeg  *ffmpeg.FFmpeg
	logger  logger.Logger
	history int

	tasks  map[string]*Task
	seq    uint64
	closed bool
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

// NewStore creates a task store. history is the number of finished tasks
// kept; 0 keeps all of them.
func NewStore(ff *ffmpeg.FFmpeg, log logger.Logger, history int) Store {
	return &store{
		ffmpeg:  ff,
		logger:  logger.OrNop(log),
		history: history,
		tasks:   make(map[string]*Task),
	}
}

// Add validates config and starts the run in the background
func (s *store) Add(config *Config) (*Task, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if len(config.ID) == 0 {
		config.ID = shortuuid.New()
	}
	if _, exists := s.tasks[config.ID]; exists {
		return nil, ErrTaskExists
	}

	s.seq++
	task := &Task{
		seq:       s.seq,
		ID:        config.ID,
		Reference: config.Reference,
		Config:    config,
		CreatedAt: time.Now().Unix(),
		done:      make(chan struct{}),
	}

	run, err := s.ffmpeg.Prepare(config.Request(ffmpeg.Handlers{
		OnProgress:   task.setProgress,
		OnCompletion: task.setCompletion,
	}))
	if err != nil {
		return nil, err
	}
	task.run = run

	ctx, cancel := context.WithCancelCause(context.Background())
	task.cancel = cancel
	s.tasks[task.ID] = task

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel(nil)

		s.logger.Info("task started", "task_id", task.ID, "command", run.Context().Command)
		err := run.Start(ctx)
		task.finish(err)

		if err != nil {
			s.logger.Warn("task finished", "task_id", task.ID, "state", run.Status().State, "error", err)
		} else {
			s.logger.Info("task finished", "task_id", task.ID, "state", run.Status().State)
		}

		s.trim()
	}()

	return task, nil
}

func (s *store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// List returns the tasks matching ids and reference, oldest first. Empty
// filters match everything.
func (s *store) List(ids []string, reference string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if len(reference) > 0 && t.Reference != reference {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, t.ID) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Cancel asks a running task to stop. It does not wait for the process to
// exit, use Wait for that.
func (s *store) Cancel(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}
	if !t.IsRunning() {
		return ErrNotRunning
	}
	t.cancel(ErrCancelRequested)
	return nil
}

// Delete cancels the task, waits for it to finish and removes it
func (s *store) Delete(id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}

	t.cancel(ErrCancelRequested)
	<-t.done

	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
	return nil
}

// Wait blocks until the task finished or ctx is done and returns the
// task's outcome.
func (s *store) Wait(ctx context.Context, id string) error {
	t, err := s.Get(id)
	if err != nil {
		return err
	}

	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels all running tasks and waits for them
func (s *store) Close() {
	s.mu.Lock()
	s.closed = true
	for _, t := range s.tasks {
		t.cancel(ErrCancelRequested)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// trim drops the oldest finished tasks beyond the history limit
func (s *store) trim() {
	if s.history <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var finished []*Task
	for _, t := range s.tasks {
		if !t.IsRunning() {
			finished = append(finished, t)
		}
	}
	if len(finished) <= s.history {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		if a, b := finished[i].FinishedAt(), finished[j].FinishedAt(); !a.Equal(b) {
			return a.Before(b)
		}
		return finished[i].seq < finished[j].seq
	})
	for _, t := range finished[:len(finished)-s.history] {
		delete(s.tasks, t.ID)
	}
}
