// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

// Package metrics exposes Prometheus metrics of running ffmpeg processes.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ZSC714725/ffwatch/internal/events"
)

var (
	runFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ffwatch",
		Subsystem: "run",
		Name:      "fps",
		Help:      "Current encoding FPS",
	}, []string{"run_id"})

	runSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ffwatch",
		Subsystem: "run",
		Name:      "speed",
		Help:      "Processing speed multiplier",
	}, []string{"run_id"})

	runProcessed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ffwatch",
		Subsystem: "run",
		Name:      "processed_seconds",
		Help:      "Media time processed so far",
	}, []string{"run_id"})

	runPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ffwatch",
		Subsystem: "run",
		Name:      "progress_percent",
		Help:      "Progress in percent, only set when the input duration is known",
	}, []string{"run_id"})

	runsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ffwatch",
		Name:      "runs_active",
		Help:      "Runs currently running",
	})

	// runs seen running and not finished yet
	active   = make(map[string]struct{})
	activeMu sync.Mutex

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ffwatch",
		Name:      "runs_finished_total",
		Help:      "Finished runs by final state",
	}, []string{"state"})
)

// Attach feeds the metrics from bus and returns the func that detaches them.
func Attach(bus *events.Bus) func() {
	unsubProgress := bus.Subscribe(ObserveProgress)
	unsubState := bus.Subscribe(ObserveState)
	return func() {
		unsubProgress()
		unsubState()
	}
}

// ObserveProgress updates the per-run gauges.
func ObserveProgress(e events.ProgressEvent) {
	id := e.Run.RunID
	runFPS.WithLabelValues(id).Set(e.Progress.FPS)
	runSpeed.WithLabelValues(id).Set(e.Progress.Speed)
	runProcessed.WithLabelValues(id).Set(e.Progress.Processed.Seconds())
	if pct := e.Percent(); pct >= 0 {
		runPercent.WithLabelValues(id).Set(pct)
	}
}

// ObserveState tracks active runs and drops the gauges of finished ones.
// A run that never reached running, like a spawn failure, is counted as
// finished without touching the active gauge.
func ObserveState(e events.StateEvent) {
	id := e.Run.RunID

	activeMu.Lock()
	_, seen := active[id]
	switch {
	case e.State == events.StateRunning && !seen:
		active[id] = struct{}{}
		runsActive.Inc()
	case e.State != events.StateRunning && seen:
		delete(active, id)
		runsActive.Dec()
	}
	activeMu.Unlock()

	if e.State == events.StateRunning {
		return
	}
	runsFinished.WithLabelValues(string(e.State)).Inc()
	Delete(id)
}

// Delete removes all gauges of a run.
func Delete(runID string) {
	runFPS.DeleteLabelValues(runID)
	runSpeed.DeleteLabelValues(runID)
	runProcessed.DeleteLabelValues(runID)
	runPercent.DeleteLabelValues(runID)
}
