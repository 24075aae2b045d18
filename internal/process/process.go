// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

// Package process supervises a single child process run: it spawns the
// binary, pumps its stderr line by line while it runs, watches for
// cancellation and stale output, and reports how the run ended.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ZSC714725/ffwatch/internal/logger"
)

const (
	defaultLogLines     = 100
	defaultPollInterval = 250 * time.Millisecond
	defaultGracePeriod  = 5 * time.Second
	drainTimeout        = 2 * time.Second
	excerptLines        = 2
)

// Parser handles one diagnostic line. A returned error faults the run.
type Parser interface {
	Parse(line string) error
}

// ParserFunc adapts a function to Parser
type ParserFunc func(line string) error

// Parse calls f(line)
func (f ParserFunc) Parse(line string) error { return f(line) }

// Config for a process
type Config struct {
	Binary string
	Args   []string
	// Parser classifies each line, after OnLine and after the line was logged.
	Parser Parser
	// OnLine receives every line unconditionally.
	OnLine func(line string)
	// LogLines is the size of the recent line log. Default 100.
	LogLines int
	// PollInterval of the wait loop. Default 250ms.
	PollInterval time.Duration
	// GracePeriod between SIGINT and SIGKILL on cancellation. Default 5s.
	GracePeriod time.Duration
	// StaleTimeout faults the run if no line arrives for this long. Zero disables it.
	StaleTimeout  time.Duration
	Monitor       Monitor
	Logger        logger.Logger
	OnStateChange func(from, to State)
}

// Status of a process
type Status struct {
	State    State
	PID      int
	Duration time.Duration
	Time     time.Time
	CPU      float64
	Memory   uint64
}

// Process supervises one run of a binary. It is not reusable: create a new
// one per run.
type Process struct {
	binary        string
	args          []string
	parser        Parser
	onLine        func(string)
	pollInterval  time.Duration
	gracePeriod   time.Duration
	staleTimeout  time.Duration
	monitor       Monitor
	logger        logger.Logger
	onStateChange func(from, to State)
	now           func() time.Time

	log *lineLog
	pid int

	state struct {
		state State
		time  time.Time
		lock  sync.Mutex
	}
	fault struct {
		err  error
		lock sync.Mutex
	}
	stale struct {
		last time.Time
		lock sync.Mutex
	}
	faulted chan struct{}
}

// New creates a new process
func New(config Config) (*Process, error) {
	if len(config.Binary) == 0 {
		return nil, fmt.Errorf("no valid binary given")
	}

	p := &Process{
		binary:        config.Binary,
		args:          config.Args,
		parser:        config.Parser,
		onLine:        config.OnLine,
		pollInterval:  config.PollInterval,
		gracePeriod:   config.GracePeriod,
		staleTimeout:  config.StaleTimeout,
		monitor:       config.Monitor,
		logger:        logger.OrNop(config.Logger),
		onStateChange: config.OnStateChange,
		now:           time.Now,
		faulted:       make(chan struct{}, 1),
	}

	if p.parser == nil {
		p.parser = ParserFunc(func(string) error { return nil })
	}
	if p.monitor == nil {
		p.monitor = NewNullMonitor()
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	if p.gracePeriod <= 0 {
		p.gracePeriod = defaultGracePeriod
	}

	logLines := config.LogLines
	if logLines <= 0 {
		logLines = defaultLogLines
	}
	p.log = newLineLog(logLines)

	p.state.state = StateNotStarted
	p.state.time = p.now()

	return p, nil
}

// Status returns a snapshot of the run
func (p *Process) Status() Status {
	cpu, memory := p.monitor.Current()

	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	return Status{
		State:    p.state.state,
		PID:      p.pid,
		Duration: p.now().Sub(p.state.time),
		Time:     p.state.time,
		CPU:      cpu,
		Memory:   memory,
	}
}

// Log returns the captured lines, oldest first
func (p *Process) Log() []Line {
	return p.log.lines()
}

// Tail returns up to n captured lines, newest first
func (p *Process) Tail(n int) []string {
	return p.log.tail(n)
}

// Run spawns the child and blocks until the run reaches a terminal state.
// It returns nil on a clean exit, an error wrapping ErrCancelled when ctx was
// cancelled first, a *SpawnError when the child could not be started, and an
// *ExitError for any other outcome.
func (p *Process) Run(ctx context.Context) error {
	if p.getState() != StateNotStarted {
		return ErrAlreadyStarted
	}

	if err := ctx.Err(); err != nil {
		p.setState(StateCancelled)
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		p.setState(StateFaulted)
		return &SpawnError{Binary: p.binary, Err: err}
	}
	defer pr.Close()

	cmd := exec.Command(p.binary, p.args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		p.logger.Error("process spawn failed", "binary", p.binary, "error", err)
		p.setState(StateFaulted)
		return &SpawnError{Binary: p.binary, Err: err}
	}
	// the child holds its own copy
	pw.Close()

	p.state.lock.Lock()
	p.pid = cmd.Process.Pid
	p.state.lock.Unlock()

	if err := p.monitor.Start(cmd.Process.Pid); err != nil {
		p.logger.Debug("process monitor unavailable", "pid", cmd.Process.Pid, "error", err)
	}
	defer p.monitor.Stop()

	p.touch()
	p.setState(StateRunning)
	p.logger.Info("process started", "pid", cmd.Process.Pid, "binary", p.binary)

	readerDone := make(chan struct{})
	go p.reader(pr, readerDone)

	processDone := make(chan error, 1)
	go func() {
		processDone <- cmd.Wait()
	}()

	var killTimer *time.Timer
	defer func() {
		if killTimer != nil {
			killTimer.Stop()
		}
	}()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	cancelled := false
	done := ctx.Done()
	var waitErr error

wait:
	for {
		select {
		case waitErr = <-processDone:
			break wait
		case <-done:
			done = nil
			cancelled = true
			p.logger.Info("run cancelled, stopping process", "pid", cmd.Process.Pid)
			killTimer = p.terminate(cmd)
		case <-p.faulted:
			p.logger.Warn("line handling failed, killing process", "pid", cmd.Process.Pid, "error", p.getFault())
			p.kill(cmd)
		case <-ticker.C:
			if p.staleTimeout > 0 && !cancelled && p.isStale() {
				if p.setFault(ErrStale) {
					p.logger.Warn("process is stale, killing", "pid", cmd.Process.Pid, "timeout", p.staleTimeout)
					p.kill(cmd)
				}
			}
		}
	}

	p.drain(pr, readerDone)

	code := exitCode(cmd, waitErr)
	fault := p.getFault()

	switch {
	case cancelled:
		p.setState(StateCancelled)
		p.logger.Info("process cancelled", "pid", cmd.Process.Pid, "exit_code", code)
		return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	case fault != nil || code != 0:
		p.setState(StateFaulted)
		p.logger.Info("process faulted", "pid", cmd.Process.Pid, "exit_code", code, "error", fault)
		return &ExitError{Code: code, Excerpt: p.excerpt(), Cause: fault}
	default:
		p.setState(StateCompleted)
		p.logger.Info("process finished", "pid", cmd.Process.Pid)
		return nil
	}
}

// drain waits for the reader to consume everything the child wrote. A
// grandchild holding the pipe open must not block the run forever.
func (p *Process) drain(pr *os.File, readerDone <-chan struct{}) {
	select {
	case <-readerDone:
		return
	case <-time.After(drainTimeout):
		p.logger.Warn("output still open after exit, closing")
	}
	pr.Close()
	<-readerDone
}

func (p *Process) excerpt() []string {
	tail := p.log.tail(excerptLines)
	if len(tail) < excerptLines {
		return nil
	}
	return tail
}

// terminate asks the child to stop and arms a SIGKILL after the grace period.
func (p *Process) terminate(cmd *exec.Cmd) *time.Timer {
	if runtime.GOOS == "windows" {
		p.kill(cmd)
		return nil
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		p.kill(cmd)
		return nil
	}
	return time.AfterFunc(p.gracePeriod, func() {
		p.logger.Warn("graceful stop timed out, killing process", "pid", cmd.Process.Pid)
		p.kill(cmd)
	})
}

// kill is best effort: a child that is already gone is not an error.
func (p *Process) kill(cmd *exec.Cmd) {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Debug("kill failed", "pid", cmd.Process.Pid, "error", err)
	}
}

func (p *Process) reader(r io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLine)

	for scanner.Scan() {
		p.handleLine(scanner.Text())
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Warn("error reading output", "error", err)
		p.recordFault(fmt.Errorf("read output: %w", err))
		// keep the pipe empty so the child can't block on a full stderr
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *Process) handleLine(line string) {
	p.touch()

	if p.onLine != nil {
		if err := safeCall(func() error { p.onLine(line); return nil }); err != nil {
			p.recordFault(err)
		}
	}

	p.log.push(Line{Timestamp: p.now(), Data: line})

	// after a fault keep draining the pipe so the child never blocks on it
	if p.getFault() != nil {
		return
	}
	if err := safeCall(func() error { return p.parser.Parse(line) }); err != nil {
		p.recordFault(err)
	}
}

func (p *Process) recordFault(err error) {
	if p.setFault(err) {
		select {
		case p.faulted <- struct{}{}:
		default:
		}
	}
}

func safeCall(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling line: %v", r)
		}
	}()
	return f()
}

// setFault records err if no fault was recorded yet
func (p *Process) setFault(err error) bool {
	p.fault.lock.Lock()
	defer p.fault.lock.Unlock()
	if p.fault.err != nil {
		return false
	}
	p.fault.err = err
	return true
}

func (p *Process) getFault() error {
	p.fault.lock.Lock()
	defer p.fault.lock.Unlock()
	return p.fault.err
}

func (p *Process) touch() {
	p.stale.lock.Lock()
	p.stale.last = p.now()
	p.stale.lock.Unlock()
}

func (p *Process) isStale() bool {
	p.stale.lock.Lock()
	defer p.stale.lock.Unlock()
	return p.now().Sub(p.stale.last) > p.staleTimeout
}

// exitCode returns the child's exit code, or -1 if it was killed by a signal
// or the wait itself failed.
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// scanLine splits on \n and \r; ffmpeg rewrites its progress line with \r.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}
