// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/ffwatch/internal/config"
	"github.com/ZSC714725/ffwatch/internal/events"
	"github.com/ZSC714725/ffwatch/internal/ffmpeg"
	"github.com/ZSC714725/ffwatch/internal/logger"
	"github.com/ZSC714725/ffwatch/internal/process"
)

type options struct {
	config  string
	ffmpeg  string
	input   string
	output  string
	verbose bool
}

func main() {
	os.Exit(execute())
}

func execute() int {
	var opts options

	root := &cobra.Command{
		Use:           "ffwatch",
		Short:         "Run ffmpeg and report its progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.config, "config", "c", "", "Path to YAML or TOML config file")
	root.PersistentFlags().StringVar(&opts.ffmpeg, "ffmpeg", "", "FFmpeg binary path (overrides config)")
	root.PersistentFlags().StringVarP(&opts.input, "input", "i", "", "Input address")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "", "Output address")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print every diagnostic line")

	root.AddCommand(newRunCmd(&opts), newThumbnailCmd(&opts), newCutCmd(&opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return 1
}

func newRunCmd(opts *options) *cobra.Command {
	var command string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an ffmpeg command (without the binary and standard flags)",
		Example: `  ffwatch run -i in.mkv -o out.mp4 --command "-i in.mkv -c:v libx264 out.mp4"
  ffwatch run -- -i in.mkv -c:v libx264 out.mp4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" {
				command = ffmpeg.JoinCommand(args)
			}
			return runRequest(cmd.Context(), opts, ffmpeg.Request{
				Input:   opts.input,
				Output:  opts.output,
				Command: command,
			})
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "Command to run, as one string")

	return cmd
}

func newThumbnailCmd(opts *options) *cobra.Command {
	var at time.Duration

	cmd := &cobra.Command{
		Use:   "thumbnail",
		Short: "Grab a single frame of the input",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRequest(cmd.Context(), opts, ffmpeg.Thumbnail(opts.input, opts.output, at))
		},
	}
	cmd.Flags().DurationVar(&at, "at", 0, "Offset of the frame")

	return cmd
}

func newCutCmd(opts *options) *cobra.Command {
	var from, length time.Duration

	cmd := &cobra.Command{
		Use:   "cut",
		Short: "Copy a section of the input without re-encoding",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRequest(cmd.Context(), opts, ffmpeg.Cut(opts.input, opts.output, from, length))
		},
	}
	cmd.Flags().DurationVar(&from, "from", 0, "Start offset")
	cmd.Flags().DurationVar(&length, "length", 0, "Length of the section")
	_ = cmd.MarkFlagRequired("length")

	return cmd
}

func runRequest(ctx context.Context, opts *options, req ffmpeg.Request) error {
	cfg, err := config.Load(opts.config)
	if err != nil {
		return err
	}
	if opts.ffmpeg != "" {
		cfg.FFmpeg.Path = opts.ffmpeg
	}
	if opts.verbose {
		cfg.Log.Verbose = true
	}

	log := logger.New("ffwatch", logger.Options{Verbose: cfg.Log.Verbose, Format: "text"})

	validatorIn, err := ffmpeg.NewValidator(cfg.FFmpeg.Access.Input.Allow, cfg.FFmpeg.Access.Input.Block)
	if err != nil {
		return err
	}
	validatorOut, err := ffmpeg.NewValidator(cfg.FFmpeg.Access.Output.Allow, cfg.FFmpeg.Access.Output.Block)
	if err != nil {
		return err
	}

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:          cfg.FFmpeg.Path,
		LogLines:        cfg.FFmpeg.LogLines,
		PollInterval:    cfg.FFmpeg.PollInterval.Std(),
		GracePeriod:     cfg.FFmpeg.GracePeriod.Std(),
		StaleTimeout:    cfg.FFmpeg.StaleTimeout.Std(),
		ValidatorInput:  validatorIn,
		ValidatorOutput: validatorOut,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	req.Handlers = printer(log)

	start := time.Now()
	err = ff.Run(ctx, req)
	if err != nil {
		log.Error("run failed", "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		return err
	}
	log.Info("run completed", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func printer(log *slog.Logger) ffmpeg.Handlers {
	return ffmpeg.Handlers{
		OnLine: func(e events.LineEvent) {
			log.Debug(e.Line)
		},
		OnProgress: func(e events.ProgressEvent) {
			args := []any{
				"frame", e.Progress.Frame,
				"fps", e.Progress.FPS,
				"time", e.Progress.Processed,
				"size_kb", e.Progress.SizeKB,
				"bitrate_kbps", e.Progress.Bitrate,
				"speed", e.Progress.Speed,
			}
			if pct := e.Percent(); pct >= 0 {
				args = append(args, "percent", fmt.Sprintf("%.1f", pct))
			}
			log.Info("progress", args...)
		},
		OnCompletion: func(e events.CompletionEvent) {
			log.Info("completion", "muxing_overhead", e.Overhead, "duration", e.Duration)
		},
	}
}
