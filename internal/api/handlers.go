// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/ffwatch/internal/events"
	"github.com/ZSC714725/ffwatch/internal/ffmpeg"
	"github.com/ZSC714725/ffwatch/internal/logger"
	"github.com/ZSC714725/ffwatch/internal/task"
)

// Handler holds dependencies
type Handler struct {
	store  task.Store
	bus    *events.Bus
	logger logger.Logger
}

// NewHandler creates API handler. bus may be nil, /events then reports 503.
func NewHandler(store task.Store, bus *events.Bus, log logger.Logger) *Handler {
	return &Handler{store: store, bus: bus, logger: logger.OrNop(log)}
}

// Register mounts the API routes on r
func (h *Handler) Register(r gin.IRouter) {
	v3 := r.Group("/api/v3")
	{
		v3.GET("/run", h.ListRuns)
		v3.POST("/run", h.AddRun)
		v3.GET("/run/:id", h.GetRun)
		v3.DELETE("/run/:id", h.DeleteRun)
		v3.GET("/run/:id/config", h.GetConfig)
		v3.GET("/run/:id/state", h.GetState)
		v3.GET("/run/:id/report", h.GetReport)
		v3.PUT("/run/:id/command", h.Command)
		v3.GET("/events", h.Events)
	}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// AddRun POST /api/v3/run
func (h *Handler) AddRun(c *gin.Context) {
	var req RunConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	cfg := requestToConfig(&req)

	t, err := h.store.Add(cfg)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrTaskExists):
			errResp(c, http.StatusBadRequest, "Run exists", err.Error())
		case errors.Is(err, ffmpeg.ErrInvalidInput), errors.Is(err, ffmpeg.ErrInvalidOutput):
			errResp(c, http.StatusBadRequest, "Invalid address", err.Error())
		case errors.Is(err, task.ErrStoreClosed):
			errResp(c, http.StatusServiceUnavailable, "Shutting down", err.Error())
		default:
			errResp(c, http.StatusBadRequest, "Invalid config", err.Error())
		}
		return
	}

	h.logger.Info("run added", "task_id", t.ID, "reference", t.Reference)
	c.JSON(http.StatusOK, taskToRunConfig(t))
}

// ListRuns GET /api/v3/run
func (h *Handler) ListRuns(c *gin.Context) {
	filter := c.DefaultQuery("filter", "")
	reference := c.DefaultQuery("reference", "")
	idStr := c.DefaultQuery("id", "")

	var ids []string
	if idStr != "" {
		ids = strings.FieldsFunc(idStr, func(r rune) bool { return r == ',' })
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
	}

	tasks := h.store.List(ids, reference)
	runs := make([]Run, 0, len(tasks))
	for _, t := range tasks {
		runs = append(runs, taskToRun(t, filter))
	}

	c.JSON(http.StatusOK, runs)
}

// GetRun GET /api/v3/run/:id
func (h *Handler) GetRun(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, taskToRun(t, c.DefaultQuery("filter", "")))
}

// DeleteRun DELETE /api/v3/run/:id
func (h *Handler) DeleteRun(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		errResp(c, http.StatusNotFound, "Unknown run ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// GetConfig GET /api/v3/run/:id/config
func (h *Handler) GetConfig(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, taskToRunConfig(t))
}

// GetState GET /api/v3/run/:id/state
func (h *Handler) GetState(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, taskToRunState(t))
}

// GetReport GET /api/v3/run/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	t, ok := h.task(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, taskToRunReport(t))
}

// Command PUT /api/v3/run/:id/command
func (h *Handler) Command(c *gin.Context) {
	id := c.Param("id")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	var err error
	switch req.Command {
	case "cancel", "stop":
		err = h.store.Cancel(id)
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: cancel")
		return
	}

	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown run ID", err.Error())
			return
		}
		errResp(c, http.StatusBadRequest, "Command failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, "OK")
}

func (h *Handler) task(c *gin.Context) (*task.Task, bool) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown run ID", err.Error())
		return nil, false
	}
	return t, true
}

func requestToConfig(req *RunConfigRequest) *task.Config {
	cfg := &task.Config{
		ID:        req.ID,
		Reference: req.Reference,
		Input:     task.ConfigIO{Address: req.Input.Address, Options: req.Input.Options},
		Output:    task.ConfigIO{Address: req.Output.Address, Options: req.Output.Options},
		Options:   req.Options,
		Command:   req.Command,
	}

	if tpl := req.Template; tpl != nil {
		cfg.Command = templateRequest(tpl, req.Input.Address, req.Output.Address).Command
	}

	return cfg
}

func templateRequest(tpl *RunTemplate, input, output string) ffmpeg.Request {
	switch tpl.Name {
	case "thumbnail":
		return ffmpeg.Thumbnail(input, output, seconds(tpl.At))
	case "cut":
		return ffmpeg.Cut(input, output, seconds(tpl.From), seconds(tpl.Length))
	case "subtitle":
		return ffmpeg.ExtractSubtitle(input, output, tpl.Stream)
	default:
		return ffmpeg.TranscodeAudio(input, output, tpl.Codec, tpl.Bitrate)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func taskToRunConfig(t *task.Task) *RunConfig {
	return &RunConfig{
		ID:        t.ID,
		Reference: t.Reference,
		Input:     RunConfigIO{Address: t.Config.Input.Address, Options: t.Config.Input.Options},
		Output:    RunConfigIO{Address: t.Config.Output.Address, Options: t.Config.Output.Options},
		Options:   t.Config.Options,
		Command:   t.Config.CreateCommand(),
	}
}

func taskToRunState(t *task.Task) *RunState {
	status := t.Status()
	rc := t.Context()

	state := &RunState{
		State:    status.State.String(),
		Runtime:  int64(status.Duration.Seconds()),
		PID:      status.PID,
		Memory:   status.Memory,
		CPU:      status.CPU,
		Command:  rc.Command,
		Duration: rc.Duration.Seconds(),
		Percent:  -1,
	}

	if lines := t.Log(); len(lines) > 0 {
		state.LastLog = lines[len(lines)-1].Data
	}
	if p, ok := t.Progress(); ok {
		state.Progress = &p.Progress
		state.Percent = p.Percent()
	}
	if e, ok := t.Completion(); ok {
		state.Completion = &Completion{Overhead: e.Overhead, Duration: e.Duration.Seconds()}
	}
	if !t.IsRunning() {
		code := t.ExitCode()
		state.ExitCode = &code
		if err := t.Err(); err != nil {
			state.Error = err.Error()
		}
	}

	return state
}

func taskToRunReport(t *task.Task) *RunReport {
	lines := t.Log()
	report := &RunReport{CreatedAt: t.CreatedAt, Log: make([][2]string, len(lines))}
	for i, line := range lines {
		report.Log[i] = [2]string{
			line.Timestamp.Format("2006-01-02 15:04:05.000"),
			line.Data,
		}
	}
	return report
}

func taskToRun(t *task.Task, filter string) Run {
	r := Run{
		ID:        t.ID,
		Type:      "ffmpeg",
		Reference: t.Reference,
		CreatedAt: t.CreatedAt,
	}

	includeAll := filter == ""
	if includeAll || strings.Contains(filter, "config") {
		r.Config = taskToRunConfig(t)
	}
	if includeAll || strings.Contains(filter, "state") {
		r.State = taskToRunState(t)
	}
	if includeAll || strings.Contains(filter, "report") {
		r.Report = taskToRunReport(t)
	}

	return r
}
