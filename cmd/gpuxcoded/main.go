// Package main is the entry point for gpuxcoded.
//
// gpuxcoded is a remote GPU transcoding worker: it accepts FFmpeg-style
// transcode requests over HTTP, rewrites them for the local hardware
// accelerator, and supervises the resulting FFmpeg subprocess through to a
// terminal state.
package main

import (
	"os"

	"github.com/nodnarbrox/gpuxcode/cmd/gpuxcoded/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
