// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

// Package parse classifies single lines of ffmpeg diagnostic output and
// extracts typed fields from them. All functions are pure.
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	markerSize       = "size="
	markerTime       = "time="
	markerBitrate    = "bitrate="
	markerCompletion = "muxing overhead"
)

// Pattern table. Compiled once, never mutated.
var (
	reDuration  = regexp.MustCompile(`Duration:\s*([0-9]+:[0-9]{2}:[0-9]{2}(?:\.[0-9]+)?)`)
	reTime      = regexp.MustCompile(`time=\s*(-?[0-9]+:[0-9]{2}:[0-9]{2}(?:\.[0-9]+)?)`)
	reFrame     = regexp.MustCompile(`frame=\s*([0-9]+)`)
	reFPS       = regexp.MustCompile(`fps=\s*([0-9]+(?:\.[0-9]+)?)`)
	reSize      = regexp.MustCompile(`size=\s*([0-9]+)\s*(?:kB|KiB)`)
	reBitrate   = regexp.MustCompile(`bitrate=\s*([0-9]+(?:\.[0-9]+)?)\s*kbits/s`)
	reSpeed     = regexp.MustCompile(`speed=\s*([0-9]+(?:\.[0-9]+)?)x`)
	reQuantizer = regexp.MustCompile(`q=\s*(-?[0-9]+(?:\.[0-9]+)?)`)
	reDrop      = regexp.MustCompile(`drop=\s*([0-9]+)`)
	reDup       = regexp.MustCompile(`dup=\s*([0-9]+)`)
	reOverhead  = regexp.MustCompile(`muxing overhead:\s*([0-9]+(?:\.[0-9]+)?)%`)
)

// Progress is one point-in-time encode snapshot. Zero means the field was
// not present on the line.
type Progress struct {
	Processed time.Duration `json:"processed"`
	Total     time.Duration `json:"total"`
	Frame     uint64        `json:"frame"`
	FPS       float64       `json:"fps"`
	SizeKB    uint64        `json:"size_kb"`
	Bitrate   float64       `json:"bitrate_kbits"`
	Speed     float64       `json:"speed"`
	Quantizer float64       `json:"q"`
	Drop      uint64        `json:"drop"`
	Dup       uint64        `json:"dup"`
}

// Completion is the terminal summary printed by ffmpeg
type Completion struct {
	Overhead float64       `json:"muxing_overhead"`
	Duration time.Duration `json:"duration"`
}

// IsProgressLine reports whether line carries the size, time and bitrate markers.
func IsProgressLine(line string) bool {
	return strings.Contains(line, markerSize) &&
		strings.Contains(line, markerTime) &&
		strings.Contains(line, markerBitrate)
}

// ExtractProgress runs every field matcher against line. total is copied into
// the result as-is.
func ExtractProgress(line string, total time.Duration) Progress {
	p := Progress{Total: total}

	if m := reTime.FindStringSubmatch(line); m != nil {
		if d, ok := ParseTimestamp(m[1]); ok {
			p.Processed = d
		}
	}
	p.Frame = matchUint(reFrame, line)
	p.FPS = matchFloat(reFPS, line)
	p.SizeKB = matchUint(reSize, line)
	p.Bitrate = matchFloat(reBitrate, line)
	p.Speed = matchFloat(reSpeed, line)
	p.Quantizer = matchFloat(reQuantizer, line)
	p.Drop = matchUint(reDrop, line)
	p.Dup = matchUint(reDup, line)

	return p
}

// IsCompletionLine reports whether line carries the muxing overhead marker.
func IsCompletionLine(line string) bool {
	return strings.Contains(line, markerCompletion)
}

// ExtractCompletion reads the muxing overhead and, independently, a
// duration announcement on the same line.
func ExtractCompletion(line string) Completion {
	c := Completion{Overhead: matchFloat(reOverhead, line)}
	if d, ok := ExtractDuration(line); ok {
		c.Duration = d
	}
	return c
}

// ExtractDuration finds a "Duration: H:MM:SS.ff" announcement.
func ExtractDuration(line string) (time.Duration, bool) {
	m := reDuration.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return ParseTimestamp(m[1])
}

// maxHours keeps H:59:59.999999999 within time.Duration
const maxHours = uint64((math.MaxInt64 - int64(time.Hour)) / int64(time.Hour))

// ParseTimestamp parses [-]H:MM:SS[.fff]. Fractions longer than nanosecond
// precision are truncated.
func ParseTimestamp(s string) (time.Duration, bool) {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}

	h, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || h > maxHours {
		return 0, false
	}
	m, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || m > 59 {
		return 0, false
	}

	sec, frac, _ := strings.Cut(parts[2], ".")
	ss, err := strconv.ParseUint(sec, 10, 8)
	if err != nil || ss > 59 {
		return 0, false
	}

	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(ss)*time.Second

	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		n, err := strconv.ParseUint(frac, 10, 64)
		if err != nil {
			return 0, false
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		d += time.Duration(n)
	}

	if neg {
		d = -d
	}
	return d, true
}

func matchUint(re *regexp.Regexp, line string) uint64 {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0
	}
	x, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0
	}
	return x
}

func matchFloat(re *regexp.Regexp, line string) float64 {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return 0
	}
	x, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return x
}
