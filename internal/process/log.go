// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package process

import (
	"container/ring"
	"sync"
	"time"
)

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}

// lineLog keeps the most recent lines of a run
type lineLog struct {
	r    *ring.Ring
	lock sync.RWMutex
}

func newLineLog(size int) *lineLog {
	return &lineLog{r: ring.New(size)}
}

func (l *lineLog) push(line Line) {
	l.lock.Lock()
	l.r.Value = line
	l.r = l.r.Next()
	l.lock.Unlock()
}

// lines returns the captured lines, oldest first
func (l *lineLog) lines() []Line {
	var out []Line
	l.lock.RLock()
	l.r.Do(func(v any) {
		if v != nil {
			out = append(out, v.(Line))
		}
	})
	l.lock.RUnlock()
	return out
}

// tail returns up to n lines, newest first
func (l *lineLog) tail(n int) []string {
	l.lock.RLock()
	defer l.lock.RUnlock()

	out := make([]string, 0, n)
	for r := l.r.Prev(); len(out) < n; r = r.Prev() {
		line, ok := r.Value.(Line)
		if !ok {
			break
		}
		out = append(out, line.Data)
		if r == l.r {
			break
		}
	}
	return out
}
