// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ZSC714725/ffwatch/internal/api"
	"github.com/ZSC714725/ffwatch/internal/config"
	"github.com/ZSC714725/ffwatch/internal/events"
	"github.com/ZSC714725/ffwatch/internal/ffmpeg"
	"github.com/ZSC714725/ffwatch/internal/logger"
	"github.com/ZSC714725/ffwatch/internal/metrics"
	"github.com/ZSC714725/ffwatch/internal/task"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML or TOML config file")
	bind := flag.String("bind", "", "Bind address (overrides config)")
	ffmpegBin := flag.String("ffmpeg", "", "FFmpeg binary path (overrides config)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
	}

	if *bind != "" {
		cfg.Server.Bind = *bind
	}
	if *ffmpegBin != "" {
		cfg.FFmpeg.Path = *ffmpegBin
	}
	if *verbose {
		cfg.Log.Verbose = true
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Server: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger := logger.New("ffwatch", logger.Options{Verbose: cfg.Log.Verbose, Format: cfg.Log.Format})

	validatorIn, err := ffmpeg.NewValidator(cfg.FFmpeg.Access.Input.Allow, cfg.FFmpeg.Access.Input.Block)
	if err != nil {
		return err
	}
	validatorOut, err := ffmpeg.NewValidator(cfg.FFmpeg.Access.Output.Allow, cfg.FFmpeg.Access.Output.Block)
	if err != nil {
		return err
	}

	bus := events.NewBus()
	defer bus.Close()
	defer metrics.Attach(bus)()

	ff, err := ffmpeg.New(ffmpeg.Config{
		Binary:          cfg.FFmpeg.Path,
		LogLines:        cfg.FFmpeg.LogLines,
		PollInterval:    cfg.FFmpeg.PollInterval.Std(),
		GracePeriod:     cfg.FFmpeg.GracePeriod.Std(),
		StaleTimeout:    cfg.FFmpeg.StaleTimeout.Std(),
		ValidatorInput:  validatorIn,
		ValidatorOutput: validatorOut,
		Bus:             bus,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	store := task.NewStore(ff, logger, cfg.Tasks.History)
	handler := api.NewHandler(store, bus, logger)

	if !cfg.Log.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handler.Register(r)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// event streams end with the server
	srv := &http.Server{
		Addr:        cfg.Server.Bind,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return sigCtx },
	}

	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		logger.Info("listening", "bind", cfg.Server.Bind, "ffmpeg", ff.Binary())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		store.Close()
		return err
	})

	return g.Wait()
}
