package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressApplyLine(t *testing.T) {
	var p Progress
	p.ApplyLine("frame=120")
	p.ApplyLine("fps=29.97")
	p.ApplyLine("bitrate=2048.0kbits/s")
	p.ApplyLine("total_size=1048576")
	p.ApplyLine("out_time_ms=4000000")
	p.ApplyLine("speed=1.5x")
	p.ApplyLine("progress=continue")

	assert.Equal(t, 120, p.Frame)
	assert.InDelta(t, 29.97, p.FPS, 0.001)
	assert.Equal(t, "2048.0kbits/s", p.Bitrate)
	assert.EqualValues(t, 1048576, p.TotalSize)
	assert.EqualValues(t, 4000000, p.OutTimeMicros)
	assert.InDelta(t, 1.5, p.Speed, 0.001)
	assert.False(t, p.Done)
}

func TestProgressEndMarksComplete(t *testing.T) {
	var p Progress
	p.ApplyLine("progress=end")
	assert.True(t, p.Done)
	assert.Equal(t, 100.0, p.Percent)
}

func TestProgressIgnoresUnknownKeys(t *testing.T) {
	var p Progress
	p.ApplyLine("stream_0_0_q=-1.0")
	assert.Equal(t, Progress{}, p)
}

func TestProgressSwallowsMalformedValues(t *testing.T) {
	var p Progress
	p.ApplyLine("frame=not-a-number")
	p.ApplyLine("garbage line with no equals")
	assert.Equal(t, 0, p.Frame)
}

func TestScanProgressInvokesOnUpdateAtCycleBoundary(t *testing.T) {
	input := "frame=1\nfps=25\nbitrate=100kbits/s\nprogress=continue\n" +
		"frame=2\nfps=25\nbitrate=110kbits/s\nprogress=end\n"

	var p Progress
	var updates []Progress
	ScanProgress(strings.NewReader(input), &p, func(snapshot Progress) {
		updates = append(updates, snapshot)
	})

	assert.Len(t, updates, 2)
	assert.Equal(t, 2, updates[1].Frame)
	assert.True(t, updates[1].Done)
}
