// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// FFWatch - FFmpeg 转码进程监控工具

package process

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	var testCases = []struct {
		given string
		then  []string
	}{
		{"", nil},
		{"-i in.mp4 out.mkv", []string{"-i", "in.mp4", "out.mkv"}},
		{`-i "my movie.mp4" -vf 'scale=1280:-2' out.mp4`, []string{"-i", "my movie.mp4", "-vf", "scale=1280:-2", "out.mp4"}},
		{`  -ss   5   -t 10  `, []string{"-ss", "5", "-t", "10"}},
		{`-metadata title="" out.mp4`, []string{"-metadata", "title=", "out.mp4"}},
		{`-i a\ b.mp4`, []string{"-i", "a b.mp4"}},
		{`-vf "drawtext=text='hi'"`, []string{"-vf", "drawtext=text='hi'"}},
	}

	for _, tt := range testCases {
		got, err := ParseCommand(tt.given)
		require.NoError(t, err, tt.given)
		require.Equal(t, tt.then, got, tt.given)
	}
}

func TestParseCommandUnclosedQuote(t *testing.T) {
	_, err := ParseCommand(`-i "broken.mp4`)
	require.Error(t, err)
}

func TestLineLogTail(t *testing.T) {
	l := newLineLog(3)
	require.Empty(t, l.tail(2))

	l.push(Line{Data: "a"})
	require.Equal(t, []string{"a"}, l.tail(2))

	l.push(Line{Data: "b"})
	l.push(Line{Data: "c"})
	l.push(Line{Data: "d"})
	require.Equal(t, []string{"d", "c"}, l.tail(2))
	require.Equal(t, []string{"d", "c", "b"}, l.tail(10))

	var data []string
	for _, line := range l.lines() {
		data = append(data, line.Data)
	}
	require.Equal(t, []string{"b", "c", "d"}, data)
}
