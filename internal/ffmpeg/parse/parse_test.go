// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package parse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZSC714725/ffwatch/internal/ffmpeg/parse"
)

const (
	progressLine   = "frame=  120 fps=25 q=-1.0 size=    512kB time=00:00:05.00 bitrate= 838.8kbits/s speed=1.02x"
	completionLine = "video:500kB audio:50kB subtitle:0kB other streams:0kB global headers:0kB muxing overhead: 1.234560%"
	durationLine   = "  Duration: 00:12:34.50, start: 0.000000, bitrate: 128 kb/s"
)

func TestExtractProgress(t *testing.T) {
	t.Parallel()

	require.True(t, parse.IsProgressLine(progressLine))

	p := parse.ExtractProgress(progressLine, time.Minute)
	require.Equal(t, uint64(120), p.Frame)
	require.InDelta(t, 25.0, p.FPS, 1e-9)
	require.Equal(t, uint64(512), p.SizeKB)
	require.Equal(t, 5*time.Second, p.Processed)
	require.InDelta(t, 838.8, p.Bitrate, 1e-9)
	require.InDelta(t, 1.02, p.Speed, 1e-9)
	require.InDelta(t, -1.0, p.Quantizer, 1e-9)
	require.Equal(t, time.Minute, p.Total)
}

func TestExtractProgressNewerOutput(t *testing.T) {
	t.Parallel()

	line := "frame= 2400 fps=118 q=28.0 size=   10240KiB time=00:01:40.04 bitrate= 838.5kbits/s dup=3 drop=7 speed=4.91x"
	p := parse.ExtractProgress(line, 0)
	require.Equal(t, uint64(2400), p.Frame)
	require.Equal(t, uint64(10240), p.SizeKB)
	require.Equal(t, 100*time.Second+40*time.Millisecond, p.Processed)
	require.Equal(t, uint64(3), p.Dup)
	require.Equal(t, uint64(7), p.Drop)
	require.InDelta(t, 4.91, p.Speed, 1e-9)
}

func TestExtractProgressDegradesMissingFields(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		line     string
		then     parse.Progress
	}{
		{
			"audio only",
			"size=     256kB time=00:00:16.32 bitrate= 128.5kbits/s speed=32.6x",
			parse.Progress{SizeKB: 256, Processed: 16*time.Second + 320*time.Millisecond, Bitrate: 128.5, Speed: 32.6},
		},
		{
			"bitrate N/A",
			"frame=    1 fps=0.0 q=0.0 size=N/A time=00:00:00.00 bitrate=N/A speed=N/A",
			parse.Progress{Frame: 1},
		},
		{
			"malformed time",
			"frame=10 size=1kB time=xx:yy:zz bitrate=1.0kbits/s",
			parse.Progress{Frame: 10, SizeKB: 1, Bitrate: 1},
		},
		{
			"negative time",
			"size=0kB time=-00:00:00.03 bitrate=-0.0kbits/s",
			parse.Progress{Processed: -30 * time.Millisecond},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			require.True(t, parse.IsProgressLine(tt.line))
			require.NotPanics(t, func() {
				require.Equal(t, tt.then, parse.ExtractProgress(tt.line, 0))
			})
		})
	}
}

func TestIsProgressLineRequiresAllMarkers(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"frame=  120 fps=25 size=512kB time=00:00:05.00",
		"size=512kB bitrate=1kbits/s",
		"time=00:00:05.00 bitrate=1kbits/s",
		durationLine,
		completionLine,
		"Press [q] to stop, [?] for help",
	} {
		require.False(t, parse.IsProgressLine(line), line)
	}
}

func TestExtractCompletion(t *testing.T) {
	t.Parallel()

	require.True(t, parse.IsCompletionLine(completionLine))
	require.False(t, parse.IsCompletionLine(progressLine))

	c := parse.ExtractCompletion(completionLine)
	require.InDelta(t, 1.234560, c.Overhead, 1e-9)
	require.Zero(t, c.Duration)

	c = parse.ExtractCompletion("muxing overhead: unknown")
	require.Zero(t, c.Overhead)

	c = parse.ExtractCompletion("Duration: 00:00:10.00 muxing overhead: 0.5%")
	require.InDelta(t, 0.5, c.Overhead, 1e-9)
	require.Equal(t, 10*time.Second, c.Duration)
}

func TestExtractDuration(t *testing.T) {
	t.Parallel()

	d, ok := parse.ExtractDuration(durationLine)
	require.True(t, ok)
	require.Equal(t, 12*time.Minute+34*time.Second+500*time.Millisecond, d)

	_, ok = parse.ExtractDuration("  Duration: N/A, bitrate: N/A")
	require.False(t, ok)

	_, ok = parse.ExtractDuration(progressLine)
	require.False(t, ok)
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		given string
		then  time.Duration
		ok    bool
	}{
		{"00:00:00", 0, true},
		{"01:02:03", time.Hour + 2*time.Minute + 3*time.Second, true},
		{"00:00:01.5", 1500 * time.Millisecond, true},
		{"00:00:01.123456789123", time.Second + 123456789, true},
		{"123:00:00.00", 123 * time.Hour, true},
		{"-00:00:00.50", -500 * time.Millisecond, true},
		{"00:61:00", 0, false},
		{"00:00", 0, false},
		{"aa:bb:cc", 0, false},
		{"2562046:59:59.999999999", 2562046*time.Hour + 59*time.Minute + 59*time.Second + 999999999, true},
		{"2562047:00:00", 0, false},
		{"3000000:00:00", 0, false},
		{"99999999999999999999:00:00", 0, false},
	}

	for _, tt := range testCases {
		d, ok := parse.ParseTimestamp(tt.given)
		require.Equal(t, tt.ok, ok, tt.given)
		require.Equal(t, tt.then, d, tt.given)
	}
}
