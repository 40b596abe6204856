// Package rewrite implements the Argument Rewriter: a pure function family
// that turns a caller-supplied FFmpeg-style argument vector into one that is
// correct for the worker's local hardware accelerator and a stock FFmpeg
// binary.
//
// Two source dialects are supported. Dialect A ("upstream-A") comes from a
// heavily customized FFmpeg fork that emits non-standard options and
// accelerator-specific filter graphs; the rewriter salvages the meaningful
// fields and rebuilds the command from first principles. Dialect B
// ("upstream-B") emits stock FFmpeg commands; the rewriter makes targeted
// in-place replacements instead.
package rewrite

import (
	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/pathmap"
)

// Dialect identifies the source of a raw argument vector.
type Dialect string

// Supported dialects.
const (
	DialectUpstreamA Dialect = "upstream-A"
	DialectUpstreamB Dialect = "upstream-B"
)

// Request describes one rewrite invocation.
type Request struct {
	JobID       string
	RawArgs     []string
	Dialect     Dialect
	Accelerator config.Accelerator

	// Device is the accelerator device path, e.g. /dev/dri/renderD128.
	Device string

	// BeamStream indicates the input is delivered via pipe:0 rather than a
	// filesystem path; under dialect A it affects seek placement,
	// stream-label collapsing and output segment duration. Dialect B does
	// not read it.
	BeamStream bool

	// OutputDir is the job's working/output directory, used to resolve the
	// dash/hls output literal tokens into concrete file paths.
	OutputDir string

	// FFmpegMajorVersion gates the ochl/ocl filter-name rewrite under
	// dialect A (ffmpeg <5 only understands ocl=).
	FFmpegMajorVersion int

	// Mapper rewrites filesystem paths the caller embedded in the argument
	// vector into paths this worker can see locally.
	Mapper *pathmap.Mapper

	// UploadedInputPath, when set, overrides the extracted/caller-supplied
	// input path — the beam-upload mode has already placed the input on
	// disk under the worker's temp tree before the job is submitted.
	UploadedInputPath string

	// BeamMaxBitrate, when set, switches the NVENC video pipeline from
	// constant-QP to a CBR cap matching the configured beam-mode bitrate.
	BeamMaxBitrate string
}

// Result is the rewritten argument vector plus bookkeeping the Transcoder
// Driver and tests care about.
type Result struct {
	Args []string

	// HWReplace reports whether a hardware encoder was substituted for a
	// software one. Only dialect B sets it; dialect A rebuilds the video
	// pipeline unconditionally and leaves it false.
	HWReplace bool

	// VideoPresent reports whether the rewritten vector still carries a
	// video stream (false for -vn / audio-only dialect-A requests).
	VideoPresent bool
}

// videoEncoders maps accelerator to the H.264 hardware encoder name.
var videoEncoders = map[config.Accelerator]string{
	config.AccelQSV:   "h264_qsv",
	config.AccelNVENC: "h264_nvenc",
	config.AccelVAAPI: "h264_vaapi",
	config.AccelNone:  "libx264",
}

// hevcEncoders maps accelerator to the HEVC hardware encoder name.
var hevcEncoders = map[config.Accelerator]string{
	config.AccelQSV:   "hevc_qsv",
	config.AccelNVENC: "hevc_nvenc",
	config.AccelVAAPI: "hevc_vaapi",
	config.AccelNone:  "libx265",
}

// encoderFor returns the hardware (or software) encoder matching codec for
// the given accelerator. Unknown codecs are returned unchanged so that
// "copy" and caller-specific codec names pass through untouched.
func encoderFor(codec string, accel config.Accelerator) string {
	switch normalizeCodecFamily(codec) {
	case "h264":
		if enc, ok := videoEncoders[accel]; ok {
			return enc
		}
		return videoEncoders[config.AccelNone]
	case "hevc":
		if enc, ok := hevcEncoders[accel]; ok {
			return enc
		}
		return hevcEncoders[config.AccelNone]
	default:
		return codec
	}
}

func normalizeCodecFamily(codec string) string {
	switch codec {
	case "h264", "avc", "libx264", "h264_qsv", "h264_nvenc", "h264_vaapi":
		return "h264"
	case "hevc", "h265", "libx265", "hevc_qsv", "hevc_nvenc", "hevc_vaapi":
		return "hevc"
	default:
		return codec
	}
}

// isSoftwareVideoEncoder reports whether codec names an x264/x265 software
// encoder that a hardware run should replace.
func isSoftwareVideoEncoder(codec string) bool {
	return codec == "libx264" || codec == "libx265"
}

// mapPath applies the Path Mapper, returning arg unchanged if no mapper is
// configured or no rule matches.
func mapPath(mapper *pathmap.Mapper, arg string) string {
	if mapper == nil {
		return arg
	}
	rewritten, ok := mapper.Rewrite(arg)
	if !ok {
		return arg
	}
	return rewritten
}

// stripFileScheme removes a leading "file:" protocol prefix, including the
// quoted form some callers emit ("file:\"/path\"").
func stripFileScheme(arg string) string {
	const scheme = "file:"
	if len(arg) > len(scheme)+1 && arg[:len(scheme)+1] == scheme+`"` && arg[len(arg)-1] == '"' {
		return arg[len(scheme)+1 : len(arg)-1]
	}
	if len(arg) > len(scheme) && arg[:len(scheme)] == scheme {
		return arg[len(scheme):]
	}
	return arg
}

// outputPathFor resolves the dash/hls literal output tokens (or a bare
// "dash"/"hls" final argument) to a concrete path under outDir.
func outputPathFor(token, outDir string) string {
	switch token {
	case "dash":
		return outDir + "/output.mpd"
	case "hls":
		return outDir + "/output.m3u8"
	default:
		return token
	}
}

// Rewrite dispatches to the dialect-specific rewriter.
func Rewrite(req Request) (Result, error) {
	switch req.Dialect {
	case DialectUpstreamA:
		return rewriteUpstreamA(req)
	case DialectUpstreamB:
		return rewriteUpstreamB(req)
	default:
		return Result{}, errUnknownDialect(req.Dialect)
	}
}

type errUnknownDialect Dialect

func (e errUnknownDialect) Error() string {
	return "rewrite: unknown dialect " + string(e)
}
