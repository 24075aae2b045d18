// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package ffmpeg

import (
	"fmt"
	"strings"
	"time"
)

// Thumbnail grabs a single frame at the given offset.
func Thumbnail(input, output string, at time.Duration) Request {
	return Request{
		Input:   input,
		Output:  output,
		Command: fmt.Sprintf("-ss %s -i %s -frames:v 1 %s", FormatTimestamp(at), quote(input), quote(output)),
	}
}

// Cut copies length of input starting at from, without re-encoding.
func Cut(input, output string, from, length time.Duration) Request {
	return Request{
		Input:  input,
		Output: output,
		Command: fmt.Sprintf("-ss %s -i %s -t %s -c copy %s",
			FormatTimestamp(from), quote(input), FormatTimestamp(length), quote(output)),
	}
}

// ExtractSubtitle writes the n-th subtitle stream of input to output.
func ExtractSubtitle(input, output string, stream int) Request {
	return Request{
		Input:   input,
		Output:  output,
		Command: fmt.Sprintf("-i %s -map 0:s:%d %s", quote(input), stream, quote(output)),
	}
}

// TranscodeAudio re-encodes the audio of input, dropping video.
func TranscodeAudio(input, output, codec string, bitrateKbps int) Request {
	return Request{
		Input:  input,
		Output: output,
		Command: fmt.Sprintf("-i %s -vn -c:a %s -b:a %dk %s",
			quote(input), quote(codec), bitrateKbps, quote(output)),
	}
}

// FormatTimestamp renders d as HH:MM:SS.mmm
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", int64(h), int64(m), int64(s), int64(d/time.Millisecond))
}

var quoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote wraps s so that process.ParseCommand yields it back as one argument
func quote(s string) string {
	return `"` + quoter.Replace(s) + `"`
}

// JoinCommand renders args as a command string. Arguments containing
// whitespace, quotes or backslashes are quoted.
func JoinCommand(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\r\n\"'\\") {
			a = quote(a)
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
