// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

// Package ffmpeg runs supervised ffmpeg invocations and turns their
// diagnostic output into progress and completion events.
package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/ffwatch/internal/events"
	"github.com/ZSC714725/ffwatch/internal/logger"
	"github.com/ZSC714725/ffwatch/internal/process"
)

// StandardFlags precede every command: no stdin interaction, overwrite
// outputs, informational log level.
var StandardFlags = []string{"-nostdin", "-y", "-loglevel", "info"}

// Config for FFmpeg
type Config struct {
	Binary       string
	LogLines     int
	PollInterval time.Duration
	GracePeriod  time.Duration
	StaleTimeout time.Duration

	ValidatorInput  Validator
	ValidatorOutput Validator

	// Bus receives every run event in addition to the request handlers. Optional.
	Bus    *events.Bus
	Logger logger.Logger
	// NewMonitor creates the resource monitor of each run. Nil uses gopsutil.
	NewMonitor func() process.Monitor
}

// Handlers are called on the run's reader goroutine, in line arrival order,
// before the next line is read. A slow handler delays the run's progress
// reporting but never loses lines; a panicking handler faults the run.
type Handlers struct {
	OnLine       func(events.LineEvent)
	OnProgress   func(events.ProgressEvent)
	OnCompletion func(events.CompletionEvent)
}

// Request describes one run. Command is everything after the standard flags.
type Request struct {
	ID       string
	Input    string
	Output   string
	Command  string
	Handlers Handlers
}

// FFmpeg runs supervised ffmpeg processes. It holds no per-run state and is
// safe for concurrent use.
type FFmpeg struct {
	binary       string
	logLines     int
	pollInterval time.Duration
	gracePeriod  time.Duration
	staleTimeout time.Duration
	validatorIn  Validator
	validatorOut Validator
	bus          *events.Bus
	logger       logger.Logger
	newMonitor   func() process.Monitor
}

// New resolves the binary and creates FFmpeg
func New(config Config) (*FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, setupError("ffmpeg", fmt.Errorf("%w: %w", ErrBinaryNotFound, err))
	}

	f := &FFmpeg{
		binary:       binary,
		logLines:     config.LogLines,
		pollInterval: config.PollInterval,
		gracePeriod:  config.GracePeriod,
		staleTimeout: config.StaleTimeout,
		validatorIn:  config.ValidatorInput,
		validatorOut: config.ValidatorOutput,
		bus:          config.Bus,
		logger:       logger.OrNop(config.Logger),
		newMonitor:   config.NewMonitor,
	}

	if f.validatorIn == nil {
		f.validatorIn = allowAll{}
	}
	if f.validatorOut == nil {
		f.validatorOut = allowAll{}
	}
	if f.newMonitor == nil {
		f.newMonitor = process.NewSysMonitor
	}

	return f, nil
}

// Binary returns the resolved binary path
func (f *FFmpeg) Binary() string {
	return f.binary
}

// Run validates req, runs it and blocks until the process reaches a
// terminal state. See process.Process.Run for the returned errors.
func (f *FFmpeg) Run(ctx context.Context, req Request) error {
	r, err := f.Prepare(req)
	if err != nil {
		return err
	}
	return r.Start(ctx)
}

// Prepare validates req and builds the run without starting it. Any
// returned error is a *SetupError.
func (f *FFmpeg) Prepare(req Request) (*Run, error) {
	if strings.TrimSpace(req.Command) == "" {
		return nil, setupError("prepare", ErrEmptyCommand)
	}
	if req.Input != "" && !f.validatorIn.IsValid(req.Input) {
		return nil, setupError("prepare", fmt.Errorf("%w: %s", ErrInvalidInput, req.Input))
	}
	if req.Output != "" && !f.validatorOut.IsValid(req.Output) {
		return nil, setupError("prepare", fmt.Errorf("%w: %s", ErrInvalidOutput, req.Output))
	}

	cmdArgs, err := process.ParseCommand(req.Command)
	if err != nil {
		return nil, setupError("prepare", fmt.Errorf("%w: %w", ErrInvalidCommand, err))
	}

	args := make([]string, 0, len(StandardFlags)+len(cmdArgs))
	args = append(args, StandardFlags...)
	args = append(args, cmdArgs...)

	id := req.ID
	if id == "" {
		id = shortuuid.New()
	}

	r := &Run{
		handlers: req.Handlers,
		bus:      f.bus,
		now:      time.Now,
	}
	r.rc = events.RunContext{
		RunID:   id,
		Input:   req.Input,
		Output:  req.Output,
		Command: f.binary + " " + strings.Join(args, " "),
	}

	proc, err := process.New(process.Config{
		Binary:        f.binary,
		Args:          args,
		Parser:        r,
		OnLine:        r.onLine,
		LogLines:      f.logLines,
		PollInterval:  f.pollInterval,
		GracePeriod:   f.gracePeriod,
		StaleTimeout:  f.staleTimeout,
		Monitor:       f.newMonitor(),
		Logger:        wrapLogger(f.logger, id),
		OnStateChange: r.onStateChange,
	})
	if err != nil {
		return nil, setupError("prepare", err)
	}
	r.proc = proc

	return r, nil
}

func wrapLogger(l logger.Logger, id string) *loggerWrapper {
	return &loggerWrapper{logger: l, args: []any{"run_id", id}}
}

// loggerWrapper tags every record with the run id
type loggerWrapper struct {
	logger logger.Logger
	args   []any
}

func (w *loggerWrapper) Debug(msg string, args ...any) { w.logger.Debug(msg, append(args, w.args...)...) }
func (w *loggerWrapper) Info(msg string, args ...any)  { w.logger.Info(msg, append(args, w.args...)...) }
func (w *loggerWrapper) Warn(msg string, args ...any)  { w.logger.Warn(msg, append(args, w.args...)...) }
func (w *loggerWrapper) Error(msg string, args ...any) { w.logger.Error(msg, append(args, w.args...)...) }
