// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package process

import (
	"bufio"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newShell creates a Process running script with sh and short timeouts.
func newShell(t *testing.T, script string, mod func(*Config)) *Process {
	t.Helper()
	cfg := Config{
		Binary:       "sh",
		Args:         []string{"-c", script},
		PollInterval: 10 * time.Millisecond,
		GracePeriod:  100 * time.Millisecond,
	}
	if mod != nil {
		mod(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

// runAsync runs p in a goroutine and returns the result channel.
func runAsync(ctx context.Context, p *Process) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()
	return done
}

func waitRun(t *testing.T, done <-chan error, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
		return nil
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func TestNewRequiresBinary(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRunCompleted(t *testing.T) {
	var raw collector
	var states []State
	p := newShell(t, `echo one >&2; echo two >&2; echo ignored`, func(c *Config) {
		c.OnLine = raw.add
		c.OnStateChange = func(_, to State) { states = append(states, to) }
	})

	require.NoError(t, p.Run(t.Context()))
	require.Equal(t, []string{"one", "two"}, raw.get())
	require.Equal(t, []State{StateRunning, StateCompleted}, states)
	require.Equal(t, StateCompleted, p.Status().State)

	lines := p.Log()
	require.Len(t, lines, 2)
	require.Equal(t, "one", lines[0].Data)
	require.False(t, lines[0].Timestamp.IsZero())
}

func TestRunCompletedWithoutOutput(t *testing.T) {
	p := newShell(t, `exit 0`, nil)
	require.NoError(t, p.Run(t.Context()))
	require.Equal(t, StateCompleted, p.Status().State)
	require.Empty(t, p.Log())
}

func TestRunSplitsCarriageReturns(t *testing.T) {
	var raw collector
	p := newShell(t, `printf 'a\rb\r\nc\n' >&2`, func(c *Config) { c.OnLine = raw.add })

	require.NoError(t, p.Run(t.Context()))
	require.Equal(t, []string{"a", "b", "c"}, raw.get())
}

func TestRunLineOrder(t *testing.T) {
	var order []string
	var p *Process
	p = newShell(t, `echo first >&2; echo second >&2`, func(c *Config) {
		c.OnLine = func(line string) { order = append(order, "raw:"+line) }
		c.Parser = ParserFunc(func(line string) error {
			// the line is logged before it is parsed
			assert.Equal(t, []string{line}, p.Tail(1))
			order = append(order, "parse:"+line)
			return nil
		})
	})

	require.NoError(t, p.Run(t.Context()))
	require.Equal(t, []string{"raw:first", "parse:first", "raw:second", "parse:second"}, order)
}

func TestRunExitCode(t *testing.T) {
	var testCases = []struct {
		scenario string
		script   string
		code     int
		excerpt  []string
	}{
		{"exit 2 with excerpt", `echo one >&2; echo two >&2; echo three >&2; exit 2`, 2, []string{"three", "two"}},
		{"exit 2 single line", `echo only >&2; exit 2`, 2, nil},
		{"exit 2 no lines", `exit 2`, 2, nil},
		{"exit 1 is a failure", `echo a >&2; echo b >&2; exit 1`, 1, []string{"b", "a"}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			p := newShell(t, tt.script, nil)
			err := p.Run(t.Context())

			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			require.Equal(t, tt.code, exitErr.Code)
			require.Equal(t, tt.excerpt, exitErr.Excerpt)
			require.NoError(t, exitErr.Cause)
			require.Equal(t, StateFaulted, p.Status().State)
		})
	}
}

func TestRunCancel(t *testing.T) {
	ready := make(chan struct{})
	var once sync.Once
	p := newShell(t, `echo ready >&2; exec sleep 10`, func(c *Config) {
		c.OnLine = func(string) { once.Do(func() { close(ready) }) }
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := runAsync(ctx, p)

	<-ready
	start := time.Now()
	cancel()

	err := waitRun(t, done, 2*time.Second)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateCancelled, p.Status().State)
	require.Less(t, time.Since(start), time.Second)
}

func TestRunCancelForceKill(t *testing.T) {
	ready := make(chan struct{})
	var once sync.Once
	p := newShell(t, `trap '' INT; echo ready >&2; exec sleep 10`, func(c *Config) {
		c.GracePeriod = 50 * time.Millisecond
		c.OnLine = func(string) { once.Do(func() { close(ready) }) }
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	done := runAsync(ctx, p)

	<-ready
	cancel()

	err := waitRun(t, done, 2*time.Second)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, StateCancelled, p.Status().State)
}

func TestRunAlreadyCancelled(t *testing.T) {
	var raw collector
	p := newShell(t, `echo never >&2`, func(c *Config) { c.OnLine = raw.add })

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := p.Run(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, StateCancelled, p.Status().State)
	require.Empty(t, raw.get())
}

func TestRunParserFault(t *testing.T) {
	errBoom := errors.New("boom")
	var raw collector
	p := newShell(t, `echo fine >&2; echo boom >&2; exec sleep 10`, func(c *Config) {
		c.OnLine = raw.add
		c.Parser = ParserFunc(func(line string) error {
			if line == "boom" {
				return errBoom
			}
			return nil
		})
	})

	start := time.Now()
	err := p.Run(t.Context())

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, []string{"boom", "fine"}, exitErr.Excerpt)
	require.Equal(t, []string{"fine", "boom"}, raw.get())
	require.Equal(t, StateFaulted, p.Status().State)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestRunParserPanic(t *testing.T) {
	p := newShell(t, `echo crash >&2; exec sleep 10`, func(c *Config) {
		c.Parser = ParserFunc(func(string) error { panic("bad line") })
	})

	err := p.Run(t.Context())

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.ErrorContains(t, exitErr.Cause, "bad line")
	require.Nil(t, exitErr.Excerpt)
}

func TestRunOverlongLine(t *testing.T) {
	var raw collector
	p := newShell(t, `echo before >&2; head -c 2000000 /dev/zero | tr '\0' a >&2; echo >&2; echo after >&2`, func(c *Config) {
		c.OnLine = raw.add
	})

	done := runAsync(t.Context(), p)
	err := waitRun(t, done, 5*time.Second)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.ErrorIs(t, err, bufio.ErrTooLong)
	require.Equal(t, StateFaulted, p.Status().State)
	require.Equal(t, "before", raw.get()[0])
}

func TestRunStale(t *testing.T) {
	p := newShell(t, `echo started >&2; exec sleep 10`, func(c *Config) {
		c.StaleTimeout = 100 * time.Millisecond
	})

	err := p.Run(t.Context())
	require.ErrorIs(t, err, ErrStale)
	require.Equal(t, StateFaulted, p.Status().State)
}

func TestRunSpawnError(t *testing.T) {
	p, err := New(Config{Binary: "/nonexistent/ffmpeg"})
	require.NoError(t, err)

	err = p.Run(t.Context())
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	require.Equal(t, "/nonexistent/ffmpeg", spawnErr.Binary)
	require.Equal(t, StateFaulted, p.Status().State)
}

func TestRunTwice(t *testing.T) {
	p := newShell(t, `exit 0`, nil)
	require.NoError(t, p.Run(t.Context()))
	require.ErrorIs(t, p.Run(t.Context()), ErrAlreadyStarted)
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Code: 2, Excerpt: []string{"b", "a"}}
	require.Equal(t, "process exited with code 2: b | a", err.Error())

	err = &ExitError{Code: -1, Cause: ErrStale}
	require.Contains(t, err.Error(), "faulted")
	require.ErrorIs(t, err, ErrStale)
}
