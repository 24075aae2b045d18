// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/ffwatch/internal/events"
	"github.com/ZSC714725/ffwatch/internal/ffmpeg/parse"
)

func progressEvent(id string, total time.Duration) events.ProgressEvent {
	rc := events.RunContext{RunID: id, Duration: total}
	return events.NewProgress(rc, parse.Progress{
		Processed: 30 * time.Second,
		FPS:       25,
		Speed:     1.5,
	}, time.Now())
}

func TestObserveProgress(t *testing.T) {
	ObserveProgress(progressEvent("metrics-a", time.Minute))

	require.InDelta(t, 25.0, testutil.ToFloat64(runFPS.WithLabelValues("metrics-a")), 1e-9)
	require.InDelta(t, 1.5, testutil.ToFloat64(runSpeed.WithLabelValues("metrics-a")), 1e-9)
	require.InDelta(t, 30.0, testutil.ToFloat64(runProcessed.WithLabelValues("metrics-a")), 1e-9)
	require.InDelta(t, 50.0, testutil.ToFloat64(runPercent.WithLabelValues("metrics-a")), 1e-9)

	Delete("metrics-a")
	Delete("non-existent-run")
}

func TestObserveProgressUnknownDuration(t *testing.T) {
	ObserveProgress(progressEvent("metrics-b", 0))
	defer Delete("metrics-b")

	// never created, so there is nothing to delete
	require.False(t, runPercent.DeleteLabelValues("metrics-b"))
}

func TestObserveState(t *testing.T) {
	rc := events.RunContext{RunID: "metrics-c"}
	active := testutil.ToFloat64(runsActive)
	cancelled := testutil.ToFloat64(runsFinished.WithLabelValues(string(events.StateCancelled)))

	ObserveState(events.StateEvent{Run: rc, State: events.StateRunning})
	require.InDelta(t, active+1, testutil.ToFloat64(runsActive), 1e-9)

	ObserveProgress(progressEvent("metrics-c", time.Minute))
	ObserveState(events.StateEvent{Run: rc, State: events.StateCancelled})

	require.InDelta(t, active, testutil.ToFloat64(runsActive), 1e-9)
	require.InDelta(t, cancelled+1, testutil.ToFloat64(runsFinished.WithLabelValues(string(events.StateCancelled))), 1e-9)
	require.False(t, runFPS.DeleteLabelValues("metrics-c"))
}

func TestAttach(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	detach := Attach(bus)
	defer detach()

	bus.Publish(progressEvent("metrics-d", time.Minute))
	defer Delete("metrics-d")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(runFPS.WithLabelValues("metrics-d")) == 25
	}, time.Second, 10*time.Millisecond)
}

func TestObserveStateWithoutRunning(t *testing.T) {
	active := testutil.ToFloat64(runsActive)
	faulted := testutil.ToFloat64(runsFinished.WithLabelValues(string(events.StateFaulted)))

	// spawn failures and runs cancelled before start never report running
	ObserveState(events.StateEvent{Run: events.RunContext{RunID: "metrics-e"}, State: events.StateFaulted})
	ObserveState(events.StateEvent{Run: events.RunContext{RunID: "metrics-f"}, State: events.StateCancelled})

	require.InDelta(t, active, testutil.ToFloat64(runsActive), 1e-9)
	require.InDelta(t, faulted+1, testutil.ToFloat64(runsFinished.WithLabelValues(string(events.StateFaulted))), 1e-9)

	// a repeated running event counts once
	rc := events.RunContext{RunID: "metrics-g"}
	ObserveState(events.StateEvent{Run: rc, State: events.StateRunning})
	ObserveState(events.StateEvent{Run: rc, State: events.StateRunning})
	require.InDelta(t, active+1, testutil.ToFloat64(runsActive), 1e-9)

	ObserveState(events.StateEvent{Run: rc, State: events.StateCompleted})
	ObserveState(events.StateEvent{Run: rc, State: events.StateCompleted})
	require.InDelta(t, active, testutil.ToFloat64(runsActive), 1e-9)
}
