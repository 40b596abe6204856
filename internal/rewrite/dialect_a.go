package rewrite

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nodnarbrox/gpuxcode/internal/config"
)

// extractedA holds the fields salvaged from a dialect-A argument vector.
// Each field corresponds to a named, individually testable extraction rule
// rather than being folded into a single scan (see spec §9).
type extractedA struct {
	inputPath      string
	seek           string
	duration       string
	startAtZero    bool
	copyts         bool
	framerate      string // value of the first -r:N seen, reapplied as -r:0
	forceKeyframes string // value of the first -force_key_frames:N seen
	filterComplex  string
	audioStreams   []audioStreamA
	metadata       []metadataPair
	outputFormat   string
	outputToken    string
	videoPresent   bool
}

type audioStreamA struct {
	mapRef      string
	codec       string
	bitrate     string
	copyPriorSS string
}

type metadataPair struct {
	flag  string
	value string
}

var hexStreamRef = regexp.MustCompile(`#0x([0-9A-Fa-f]+)`)
var absoluteStreamRef = regexp.MustCompile(`\[0:([1-9][0-9]*)\]`)

// rewriteUpstreamA implements the custom-fork dialect: extract meaningful
// fields from raw args, then rebuild a clean command from first principles.
func rewriteUpstreamA(req Request) (Result, error) {
	ex := extractA(req.RawArgs)

	if req.BeamStream {
		ex.filterComplex = absoluteStreamRef.ReplaceAllString(ex.filterComplex, "[0:a:0]")
	}
	ex.filterComplex = rewriteHexStreamRefs(ex.filterComplex)
	if req.FFmpegMajorVersion > 0 && req.FFmpegMajorVersion < 5 {
		ex.filterComplex = strings.ReplaceAll(ex.filterComplex, "ochl=", "ocl=")
	}
	for i := range ex.audioStreams {
		ex.audioStreams[i].mapRef = rewriteHexStreamRefs(ex.audioStreams[i].mapRef)
	}

	accel := req.Accelerator
	args := []string{"-y", "-nostdin", "-threads", "0", "-progress", "pipe:1", "-stats_period", "0.5", "-loglevel", "error"}

	if ex.videoPresent {
		args = append(args, hwAccelInitA(accel, req.Device)...)
	}

	seekBeforeInput := ex.seek != "" && !req.BeamStream
	if seekBeforeInput {
		args = append(args, "-ss", ex.seek)
	}

	input := resolveInputA(req, ex)
	args = append(args, "-i", input)

	if req.BeamStream && ex.seek != "" {
		args = append(args, "-ss", ex.seek)
	}

	if ex.startAtZero {
		args = append(args, "-start_at_zero")
	}
	if ex.copyts {
		args = append(args, "-copyts")
	}
	if ex.duration != "" {
		args = append(args, "-t", ex.duration)
	}

	if ex.videoPresent {
		args = append(args, videoPipelineA(accel, req)...)
		if ex.framerate != "" {
			args = append(args, "-r:0", ex.framerate)
		}
		if ex.forceKeyframes != "" {
			args = append(args, "-force_key_frames:0", ex.forceKeyframes)
		}
	}

	if ex.filterComplex != "" {
		args = append(args, "-filter_complex", ex.filterComplex)
	}
	videoStreams := 0
	if ex.videoPresent {
		videoStreams = 1
	}
	for i, as := range ex.audioStreams {
		k := videoStreams + i
		args = append(args, "-map", as.mapRef)
		if as.codec != "" {
			args = append(args, streamFlag("-codec", k), as.codec)
		}
		if as.bitrate != "" {
			args = append(args, streamFlag("-b", k), as.bitrate)
		}
		if as.copyPriorSS != "" {
			args = append(args, streamFlag("-copypriorss", k), as.copyPriorSS)
		}
	}

	for _, m := range ex.metadata {
		args = append(args, m.flag, m.value)
	}

	outputFormat := ex.outputFormat
	if outputFormat == "" {
		outputFormat = "dash"
	}
	args = append(args, "-f", outputFormat)
	if outputFormat == "dash" {
		args = append(args, "-dash_segment_type", "mp4")
	}
	args = append(args, "-avoid_negative_ts", "disabled", "-map_metadata", "-1", "-map_chapters", "-1")
	if req.BeamStream {
		args = append(args, "-seg_duration", "1")
	}

	outputPath := resolveOutputA(req, ex)
	args = append(args, outputPath)

	return Result{Args: args, VideoPresent: ex.videoPresent}, nil
}

func streamFlag(prefix string, k int) string {
	return prefix + ":" + strconv.Itoa(k)
}

func rewriteHexStreamRefs(s string) string {
	return hexStreamRef.ReplaceAllStringFunc(s, func(match string) string {
		sub := hexStreamRef.FindStringSubmatch(match)
		n, err := strconv.ParseInt(sub[1], 16, 64)
		if err != nil {
			return match
		}
		return strconv.FormatInt(n, 10)
	})
}

// audioOnlyMarkers are dialect-specific flag prefixes that, like -vn,
// indicate the request carries no video stream.
var audioOnlyMarkers = []string{"-vn", "-audio_only"}

func extractA(raw []string) extractedA {
	ex := extractedA{videoPresent: true}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		switch {
		case arg == "-i" && i+1 < len(raw) && ex.inputPath == "":
			ex.inputPath = raw[i+1]
		case arg == "-ss" && i+1 < len(raw) && ex.seek == "":
			ex.seek = raw[i+1]
		case arg == "-t" && i+1 < len(raw) && ex.duration == "":
			ex.duration = raw[i+1]
		case arg == "-start_at_zero":
			ex.startAtZero = true
		case arg == "-copyts":
			ex.copyts = true
		case strings.HasPrefix(arg, "-r:") && i+1 < len(raw) && ex.framerate == "":
			ex.framerate = raw[i+1]
		case strings.HasPrefix(arg, "-force_key_frames:") && i+1 < len(raw) && ex.forceKeyframes == "":
			ex.forceKeyframes = raw[i+1]
		case arg == "-filter_complex" && i+1 < len(raw) && ex.filterComplex == "" && looksLikeResample(raw[i+1]):
			ex.filterComplex = raw[i+1]
		case strings.HasPrefix(arg, "-metadata:s:") && i+1 < len(raw):
			ex.metadata = append(ex.metadata, metadataPair{flag: arg, value: raw[i+1]})
		case arg == "-f" && i+1 < len(raw) && ex.outputFormat == "":
			ex.outputFormat = raw[i+1]
		case isAudioOnlyMarker(arg):
			ex.videoPresent = false
		case arg == "-map" && i+1 < len(raw):
			ex.audioStreams = append(ex.audioStreams, audioStreamA{mapRef: raw[i+1]})
		}
	}

	// First -map is the video stream unless video is absent; drop it from
	// the audio-stream list (re-emitted separately as -map 0:v:0).
	if ex.videoPresent && len(ex.audioStreams) > 0 {
		ex.audioStreams = ex.audioStreams[1:]
	}

	codecByStream := map[string]string{}
	bitrateByStream := map[string]string{}
	copyPriorByStream := map[string]string{}
	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if i+1 >= len(raw) {
			continue
		}
		if idx, ok := streamIndex(arg, "-codec:"); ok {
			codecByStream[idx] = raw[i+1]
		}
		if idx, ok := streamIndex(arg, "-b:"); ok {
			bitrateByStream[idx] = raw[i+1]
		}
		if idx, ok := streamIndex(arg, "-copypriorss:"); ok {
			copyPriorByStream[idx] = raw[i+1]
		}
	}
	for i := range ex.audioStreams {
		idx := strconv.Itoa(i + 1)
		codec := codecByStream[idx]
		if codec == "libfdk_aac" {
			codec = "aac"
		}
		ex.audioStreams[i].codec = codec
		ex.audioStreams[i].bitrate = bitrateByStream[idx]
		ex.audioStreams[i].copyPriorSS = copyPriorByStream[idx]
	}

	if last := len(raw) - 1; last >= 0 {
		token := raw[last]
		if strings.HasSuffix(token, ".mpd") || strings.HasSuffix(token, ".m3u8") || token == "dash" || token == "hls" {
			ex.outputToken = token
		}
	}

	return ex
}

func isAudioOnlyMarker(arg string) bool {
	for _, marker := range audioOnlyMarkers {
		if arg == marker {
			return true
		}
	}
	return false
}

func looksLikeResample(filterBody string) bool {
	return strings.Contains(filterBody, "aresample") || strings.Contains(filterBody, "amix") || strings.Contains(filterBody, "pan=")
}

func streamIndex(arg, prefix string) (string, bool) {
	if !strings.HasPrefix(arg, prefix) {
		return "", false
	}
	return strings.TrimPrefix(arg, prefix), true
}

func hwAccelInitA(accel config.Accelerator, device string) []string {
	switch accel {
	case config.AccelQSV:
		args := []string{"-hwaccel", "qsv"}
		if device != "" {
			args = append(args, "-qsv_device", device)
		}
		return append(args, "-hwaccel_output_format", "qsv", "-extra_hw_frames", "8")
	case config.AccelVAAPI:
		dev := device
		if dev == "" {
			dev = "/dev/dri/renderD128"
		}
		return []string{"-hwaccel", "vaapi", "-vaapi_device", dev}
	default:
		// NVENC: no hwaccel directive; decode stays on CPU and hwupload_cuda
		// happens in the filter chain. "none": software decode.
		return nil
	}
}

func videoPipelineA(accel config.Accelerator, req Request) []string {
	args := []string{"-map", "0:v:0"}
	switch accel {
	case config.AccelQSV:
		args = append(args, "-vf", "scale_qsv=w=1920:h=-1:format=nv12", "-c:v", "h264_qsv",
			"-preset", "veryfast", "-global_quality", "25", "-low_power", "1", "-async_depth", "1")
	case config.AccelNVENC:
		args = append(args, "-vf", "scale=1920:-2,format=nv12,hwupload_cuda", "-c:v", "h264_nvenc",
			"-preset", "p1", "-tune", "ull")
		if req.BeamMaxBitrate != "" {
			args = append(args, "-b:v", req.BeamMaxBitrate, "-maxrate", req.BeamMaxBitrate, "-bufsize", req.BeamMaxBitrate,
				"-g", "24", "-bf", "0", "-forced-idr", "1")
		} else {
			args = append(args, "-qp", "25")
		}
	case config.AccelVAAPI:
		args = append(args, "-vf", "scale=1920:-2,format=nv12,hwupload", "-c:v", "h264_vaapi",
			"-low_power", "1", "-qp", "25")
	default:
		args = append(args, "-vf", "scale=1920:-2", "-c:v", "libx264", "-preset", "veryfast", "-crf", "25")
	}
	return args
}

func resolveInputA(req Request, ex extractedA) string {
	if req.BeamStream {
		return "pipe:0"
	}
	if req.UploadedInputPath != "" {
		return req.UploadedInputPath
	}
	return mapPath(req.Mapper, ex.inputPath)
}

func resolveOutputA(req Request, ex extractedA) string {
	if req.BeamStream || req.UploadedInputPath != "" {
		return outputPathFor(defaultToken(ex), req.OutputDir)
	}
	if ex.outputToken == "dash" || ex.outputToken == "hls" {
		return outputPathFor(ex.outputToken, req.OutputDir)
	}
	if ex.outputToken != "" {
		return mapPath(req.Mapper, ex.outputToken)
	}
	return outputPathFor(defaultToken(ex), req.OutputDir)
}

func defaultToken(ex extractedA) string {
	if ex.outputFormat == "hls" {
		return "hls"
	}
	return "dash"
}
