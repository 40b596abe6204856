package rewrite

import (
	"strings"

	"github.com/nodnarbrox/gpuxcode/internal/config"
)

var videoCodecFlags = map[string]bool{
	"-codec:v:0": true, "-codec:0": true, "-c:v": true, "-c:v:0": true, "-vcodec": true,
}

// hwIncompatibleRateFlags interact badly with HW quality modes and are
// stripped, along with their value, whenever a hardware encoder is swapped
// in.
var hwIncompatibleRateFlags = map[string]bool{
	"-maxrate": true, "-maxrate:0": true, "-bufsize": true, "-bufsize:0": true,
}

// rewriteUpstreamA lives in dialect_a.go; rewriteUpstreamB implements the
// stock-FFmpeg dialect: targeted in-place replacements rather than a full
// rebuild.
func rewriteUpstreamB(req Request) (Result, error) {
	accel := req.Accelerator
	hwReplace := accel != config.AccelNone && needsHWReplaceB(req.RawArgs)

	filtered := make([]string, 0, len(req.RawArgs)+8)
	videoPresent := true
	skipNext := false
	vfAbandoned := false

	for i, arg := range req.RawArgs {
		if skipNext {
			skipNext = false
			continue
		}

		arg = stripFileScheme(arg)

		if hwReplace && videoCodecFlags[arg] && i+1 < len(req.RawArgs) && isSoftwareVideoEncoder(req.RawArgs[i+1]) {
			enc := encoderFor(req.RawArgs[i+1], accel)
			filtered = append(filtered, arg, enc)
			filtered = append(filtered, tuningFlags(accel)...)
			skipNext = true
			continue
		}

		if accel != config.AccelNone && strings.HasPrefix(arg, "-x264opts") {
			skipNext = true
			continue
		}

		if hwReplace && hwIncompatibleRateFlags[arg] {
			skipNext = true
			continue
		}

		if accel == config.AccelQSV && (arg == "-crf" || arg == "-crf:0") {
			filtered = append(filtered, "-global_quality")
			continue
		}

		if accel == config.AccelVAAPI && (arg == "-preset" || arg == "-preset:0") {
			skipNext = true
			continue
		}

		if (accel == config.AccelQSV || accel == config.AccelNVENC) && i > 0 {
			prev := req.RawArgs[i-1]
			if prev == "-preset" || prev == "-preset:0" {
				if remapped, ok := x264PresetRemap[arg]; ok {
					arg = remapped
				}
			}
		}

		if arg == "-vf" && i+1 < len(req.RawArgs) {
			filtered = append(filtered, arg)
			continue
		}
		if i > 0 && req.RawArgs[i-1] == "-vf" {
			converted := convertVF(arg, accel)
			if converted == arg {
				vfAbandoned = true
			}
			arg = converted
		}

		if arg == "libfdk_aac" {
			arg = "aac"
		}

		if arg == "vod" && i > 0 && req.RawArgs[i-1] == "-hls_playlist_type" {
			arg = "event"
		}

		arg = mapPath(req.Mapper, arg)
		filtered = append(filtered, arg)
	}

	if hwReplace && !vfAbandoned {
		filtered = injectBeforeInput(filtered, hwAccelInit(accel, req.Device))
	}

	filtered = resolveOutputLiteral(filtered, req.OutputDir)

	return Result{Args: filtered, HWReplace: hwReplace, VideoPresent: videoPresent}, nil
}

var x264PresetRemap = map[string]string{
	"ultrafast": "veryfast",
	"superfast": "veryfast",
}

func tuningFlags(accel config.Accelerator) []string {
	switch accel {
	case config.AccelQSV:
		return []string{"-low_power", "1", "-async_depth", "1"}
	case config.AccelNVENC:
		return []string{"-tune", "ull"}
	default:
		return nil
	}
}

func needsHWReplaceB(args []string) bool {
	for i, arg := range args {
		if videoCodecFlags[arg] && i+1 < len(args) && isSoftwareVideoEncoder(args[i+1]) {
			return true
		}
	}
	return false
}

// convertVF rewrites a software -vf chain into its accelerator-native
// equivalent. If the chain contains anything beyond scale/format/setparams
// stages the original chain is returned unchanged and the caller must
// skip hardware decode.
func convertVF(chain string, accel config.Accelerator) string {
	stages := strings.Split(chain, ",")

	var width, height string
	for _, stage := range stages {
		if w, h, ok := parseScaleStage(stage); ok {
			width, height = w, h
			continue
		}
		if isBenignStage(stage) {
			continue
		}
		// Non-scale, non-format, non-setparams stage: abandon conversion.
		return chain
	}

	if width == "" {
		return chain
	}

	switch accel {
	case config.AccelQSV:
		// scale_qsv doesn't understand swscale's "-2" even-height token;
		// its own auto-aspect token is "-1".
		if height == "-2" {
			height = "-1"
		}
		return "scale_qsv=w=" + width + ":h=" + height + ":format=nv12"
	case config.AccelNVENC:
		return "scale_cuda=" + width + ":" + height + ":format=nv12"
	case config.AccelVAAPI:
		return "scale=" + width + ":" + height + ",format=nv12,hwupload"
	default:
		return chain
	}
}

func parseScaleStage(stage string) (width, height string, ok bool) {
	stage = strings.TrimSpace(stage)
	if !strings.HasPrefix(stage, "scale=") {
		return "", "", false
	}
	value := strings.TrimPrefix(stage, "scale=")
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func isBenignStage(stage string) bool {
	stage = strings.TrimSpace(stage)
	return strings.HasPrefix(stage, "format=") || strings.HasPrefix(stage, "setparams") || strings.HasPrefix(stage, "scale=")
}

func hwAccelInit(accel config.Accelerator, device string) []string {
	switch accel {
	case config.AccelQSV:
		args := []string{"-hwaccel", "qsv"}
		if device != "" {
			args = append(args, "-qsv_device", device)
		}
		return append(args, "-hwaccel_output_format", "qsv")
	case config.AccelNVENC:
		return []string{"-hwaccel", "cuda", "-hwaccel_output_format", "cuda"}
	case config.AccelVAAPI:
		dev := device
		if dev == "" {
			dev = "/dev/dri/renderD128"
		}
		return []string{"-hwaccel", "vaapi", "-vaapi_device", dev}
	default:
		return nil
	}
}

func injectBeforeInput(args []string, init []string) []string {
	if len(init) == 0 {
		return args
	}
	for i, a := range args {
		if a == "-i" {
			out := make([]string, 0, len(args)+len(init))
			out = append(out, args[:i]...)
			out = append(out, init...)
			out = append(out, args[i:]...)
			return out
		}
	}
	return args
}

func resolveOutputLiteral(args []string, outDir string) []string {
	if len(args) == 0 {
		return args
	}
	last := len(args) - 1
	if args[last] == "dash" || args[last] == "hls" {
		args[last] = outputPathFor(args[last], outDir)
	}
	return args
}
