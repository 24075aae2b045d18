// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server ServerConfig `yaml:"server" toml:"server"`
	FFmpeg FFmpegConfig `yaml:"ffmpeg" toml:"ffmpeg"`
	Log    LogConfig    `yaml:"log" toml:"log"`
	Tasks  TasksConfig  `yaml:"tasks" toml:"tasks"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Bind string `yaml:"bind" toml:"bind"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path         string       `yaml:"path" toml:"path"`
	LogLines     int          `yaml:"log_lines" toml:"log_lines"`
	PollInterval Duration     `yaml:"poll_interval" toml:"poll_interval"`
	GracePeriod  Duration     `yaml:"grace_period" toml:"grace_period"`
	StaleTimeout Duration     `yaml:"stale_timeout" toml:"stale_timeout"`
	Access       AccessConfig `yaml:"access" toml:"access"`
}

// AccessConfig 输入输出地址白名单/黑名单（正则）
type AccessConfig struct {
	Input  AccessRules `yaml:"input" toml:"input"`
	Output AccessRules `yaml:"output" toml:"output"`
}

// AccessRules allow/block 正则列表
type AccessRules struct {
	Allow []string `yaml:"allow" toml:"allow"`
	Block []string `yaml:"block" toml:"block"`
}

// LogConfig 日志配置
type LogConfig struct {
	Verbose bool   `yaml:"verbose" toml:"verbose"`
	Format  string `yaml:"format" toml:"format"`
}

// TasksConfig 任务存储配置
type TasksConfig struct {
	// History 保留的已结束任务数量，0 表示不清理
	History int `yaml:"history" toml:"history"`
}

// Duration 支持 "250ms"、"5s" 形式的时长
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std 返回 time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Bind: ":8080"},
		FFmpeg: FFmpegConfig{
			Path:         "ffmpeg",
			LogLines:     100,
			PollInterval: Duration(250 * time.Millisecond),
			GracePeriod:  Duration(5 * time.Second),
		},
		Log:   LogConfig{Format: "json"},
		Tasks: TasksConfig{History: 100},
	}
}

// Load 从 YAML 或 TOML（.toml 后缀）文件加载配置，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.fill()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// fill 填充空值
func (c *Config) fill() {
	def := Default()
	if c.Server.Bind == "" {
		c.Server.Bind = def.Server.Bind
	}
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = def.FFmpeg.Path
	}
	if c.FFmpeg.LogLines <= 0 {
		c.FFmpeg.LogLines = def.FFmpeg.LogLines
	}
	if c.FFmpeg.PollInterval <= 0 {
		c.FFmpeg.PollInterval = def.FFmpeg.PollInterval
	}
	if c.FFmpeg.GracePeriod <= 0 {
		c.FFmpeg.GracePeriod = def.FFmpeg.GracePeriod
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format '%s'", c.Log.Format)
	}
	if c.FFmpeg.StaleTimeout < 0 {
		return fmt.Errorf("invalid stale timeout %s", c.FFmpeg.StaleTimeout.Std())
	}
	if c.Tasks.History < 0 {
		return fmt.Errorf("invalid task history %d", c.Tasks.History)
	}
	return nil
}
