// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package api

import "github.com/ZSC714725/ffwatch/internal/ffmpeg/parse"

// RunConfigIO is API input/output
type RunConfigIO struct {
	Address string   `json:"address"`
	Options []string `json:"options"`
}

// RunTemplate selects a built-in command template. Times are in seconds.
type RunTemplate struct {
	Name    string  `json:"name" binding:"required,oneof=thumbnail cut subtitle audio"`
	At      float64 `json:"at_seconds"`
	From    float64 `json:"from_seconds"`
	Length  float64 `json:"length_seconds"`
	Stream  int     `json:"stream"`
	Codec   string  `json:"codec"`
	Bitrate int     `json:"bitrate_kbps"`
}

// RunConfigRequest for Add
type RunConfigRequest struct {
	ID        string       `json:"id"`
	Reference string       `json:"reference"`
	Input     RunConfigIO  `json:"input"`
	Output    RunConfigIO  `json:"output"`
	Options   []string     `json:"options"`
	Command   string       `json:"command"`
	Template  *RunTemplate `json:"template"`
}

// Run represents a task in API response
type Run struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Reference string     `json:"reference"`
	CreatedAt int64      `json:"created_at"`
	Config    *RunConfig `json:"config,omitempty"`
	State     *RunState  `json:"state,omitempty"`
	Report    *RunReport `json:"report,omitempty"`
}

// RunConfig in API format
type RunConfig struct {
	ID        string      `json:"id"`
	Reference string      `json:"reference"`
	Input     RunConfigIO `json:"input"`
	Output    RunConfigIO `json:"output"`
	Options   []string    `json:"options"`
	Command   string      `json:"command"`
}

// RunState for API
type RunState struct {
	State      string          `json:"exec"`
	Runtime    int64           `json:"runtime_seconds"`
	PID        int             `json:"pid"`
	Memory     uint64          `json:"memory_bytes"`
	CPU        float64         `json:"cpu_usage"`
	Command    string          `json:"command"`
	Duration   float64         `json:"duration_seconds"`
	Percent    float64         `json:"percent"`
	LastLog    string          `json:"last_logline"`
	Progress   *parse.Progress `json:"progress"`
	Completion *Completion     `json:"completion"`
	ExitCode   *int            `json:"exit_code"`
	Error      string          `json:"error,omitempty"`
}

// Completion is the final summary of a run
type Completion struct {
	Overhead float64 `json:"muxing_overhead"`
	Duration float64 `json:"duration_seconds"`
}

// RunReport for logs
type RunReport struct {
	CreatedAt int64       `json:"created_at"`
	Log       [][2]string `json:"log"`
}

// CommandRequest for cancel
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
