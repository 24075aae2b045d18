// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package process

import "fmt"

// State of a supervised run
type State string

// Run states. Completed, Cancelled and Faulted are terminal.
const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFaulted    State = "faulted"
)

func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFaulted
}

func (p *Process) setState(state State) error {
	p.state.lock.Lock()
	prev := p.state.state

	ok := false
	switch prev {
	case StateNotStarted:
		// spawn failure and an already cancelled context skip Running
		ok = state == StateRunning || state == StateFaulted || state == StateCancelled
	case StateRunning:
		ok = state.IsTerminal()
	}
	if !ok {
		p.state.lock.Unlock()
		return fmt.Errorf("can't change from %s to %s", prev, state)
	}

	p.state.state = state
	p.state.time = p.now()
	cb := p.onStateChange
	p.state.lock.Unlock()

	if cb != nil {
		cb(prev, state)
	}
	return nil
}

func (p *Process) getState() State {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}
