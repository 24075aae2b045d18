// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package task

import (
	"strings"

	"github.com/ZSC714725/ffwatch/internal/ffmpeg"
)

// ConfigIO is input/output config
type ConfigIO struct {
	Address string   `json:"address"`
	Options []string `json:"options"`
}

// Config for a run. If Command is set it is used as-is after the standard
// flags and Options and the per-address options are ignored.
type Config struct {
	ID        string   `json:"id"`
	Reference string   `json:"reference"`
	Input     ConfigIO `json:"input"`
	Output    ConfigIO `json:"output"`
	Options   []string `json:"options"`
	Command   string   `json:"command"`
}

// Validate checks that a command can be built from c
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Command) != "" {
		return nil
	}
	if c.Input.Address == "" || c.Output.Address == "" {
		return ErrInvalidConfig
	}
	return nil
}

// CreateCommand builds the ffmpeg command from config
func (c *Config) CreateCommand() string {
	if strings.TrimSpace(c.Command) != "" {
		return c.Command
	}

	var cmd []string
	cmd = append(cmd, c.Options...)
	cmd = append(cmd, c.Input.Options...)
	cmd = append(cmd, "-i", c.Input.Address)
	cmd = append(cmd, c.Output.Options...)
	cmd = append(cmd, c.Output.Address)
	return ffmpeg.JoinCommand(cmd)
}

// Request turns c into an ffmpeg run request
func (c *Config) Request(handlers ffmpeg.Handlers) ffmpeg.Request {
	return ffmpeg.Request{
		ID:       c.ID,
		Input:    c.Input.Address,
		Output:   c.Output.Address,
		Command:  c.CreateCommand(),
		Handlers: handlers,
	}
}
