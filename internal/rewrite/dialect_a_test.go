package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodnarbrox/gpuxcode/internal/config"
)

func TestRewriteUpstreamABasicQSV(t *testing.T) {
	req := Request{
		JobID:   "j1",
		Dialect: DialectUpstreamA,
		RawArgs: []string{
			"-i", "/m/x.mkv",
			"-ss", "10",
			"-map", "0:0",
			"-f", "dash", "dash",
		},
		Accelerator: config.AccelQSV,
		OutputDir:   "/temp/j1",
	}

	res, err := Rewrite(req)
	require.NoError(t, err)

	assert.True(t, res.VideoPresent)
	assert.Contains(t, res.Args, "0:v:0")
	assert.Contains(t, res.Args, "h264_qsv")
	assert.Equal(t, "/temp/j1/output.mpd", res.Args[len(res.Args)-1])
	assert.True(t, indexOf(res.Args, "-ss") < indexOf(res.Args, "-i"))
}

func TestRewriteUpstreamAVNHasNoVideo(t *testing.T) {
	req := Request{
		Dialect: DialectUpstreamA,
		RawArgs: []string{
			"-i", "/m/x.mkv", "-vn", "-map", "0:1", "-f", "dash", "dash",
		},
		Accelerator: config.AccelQSV,
		OutputDir:   "/temp/j2",
	}

	res, err := Rewrite(req)
	require.NoError(t, err)

	assert.False(t, res.VideoPresent)
	assert.NotContains(t, res.Args, "0:v:0")
	assert.NotContains(t, res.Args, "h264_qsv")
}

func TestRewriteUpstreamABeamStreamSeekAfterInput(t *testing.T) {
	req := Request{
		Dialect:     DialectUpstreamA,
		RawArgs:     []string{"-i", "/m/x.mkv", "-ss", "600", "-map", "0:0", "-f", "dash", "dash"},
		Accelerator: config.AccelQSV,
		BeamStream:  true,
		OutputDir:   "/temp/j3",
	}

	res, err := Rewrite(req)
	require.NoError(t, err)

	ssIdx := indexOf(res.Args, "-ss")
	iIdx := indexOf(res.Args, "-i")
	require.GreaterOrEqual(t, ssIdx, 0)
	assert.Greater(t, ssIdx, iIdx)
	assert.Equal(t, "pipe:0", res.Args[iIdx+1])
}

func TestRewriteUpstreamAHexStreamRef(t *testing.T) {
	req := Request{
		Dialect: DialectUpstreamA,
		RawArgs: []string{
			"-i", "/m/x.mkv",
			"-map", "0:0",
			"-filter_complex", "[0:#0x81]aresample=48000[aout]",
			"-map", "#0x81",
			"-f", "dash", "dash",
		},
		Accelerator: config.AccelNone,
		OutputDir:   "/temp/j4",
	}

	res, err := Rewrite(req)
	require.NoError(t, err)

	for _, a := range res.Args {
		assert.NotContains(t, a, "#0x81")
	}
	joined := stringsJoin(res.Args)
	assert.Contains(t, joined, "129")
}

func stringsJoin(args []string) string {
	out := ""
	for _, a := range args {
		out += a + " "
	}
	return out
}
