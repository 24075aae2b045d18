// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/ffwatch/internal/events"
)

const eventBuffer = 256

// Events GET /api/v3/events streams bus events as server-sent events.
// ?run_id= limits the stream to one run, ?lines=true adds raw log lines.
func (h *Handler) Events(c *gin.Context) {
	if h.bus == nil {
		errResp(c, http.StatusServiceUnavailable, "No event bus", "")
		return
	}

	runID := c.Query("run_id")
	ch := make(chan events.Event, eventBuffer)

	unsubs := []func(){
		events.SubscribeToChannel[events.StateEvent](h.bus, ch),
		events.SubscribeToChannel[events.ProgressEvent](h.bus, ch),
		events.SubscribeToChannel[events.CompletionEvent](h.bus, ch),
	}
	if c.Query("lines") == "true" {
		unsubs = append(unsubs, events.SubscribeToChannel[events.LineEvent](h.bus, ch))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	ctx := c.Request.Context()
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-ch:
			if runID != "" && eventRunID(ev) != runID {
				return true
			}
			c.SSEvent(eventName(ev), ev)
			return true
		}
	})
}

func eventName(ev events.Event) string {
	switch ev.(type) {
	case events.LineEvent:
		return "line"
	case events.ProgressEvent:
		return "progress"
	case events.CompletionEvent:
		return "completion"
	case events.StateEvent:
		return "state"
	default:
		return "message"
	}
}

func eventRunID(ev events.Event) string {
	switch e := ev.(type) {
	case events.LineEvent:
		return e.RunID
	case events.ProgressEvent:
		return e.Run.RunID
	case events.CompletionEvent:
		return e.Run.RunID
	case events.StateEvent:
		return e.Run.RunID
	default:
		return ""
	}
}
