//go:build linux

package job

import (
	"os"

	"golang.org/x/sys/unix"
)

// beamPipeSize is the target OS pipe buffer size for beam-stream stdin,
// matching FFmpeg's own default read chunk on Linux.
const beamPipeSize = 1 << 20

// enlargePipeBuffer grows the kernel pipe buffer backing f. Best-effort: a
// failure (e.g. insufficient privilege) just leaves the default size.
func enlargePipeBuffer(f *os.File) {
	_, _ = unix.FcntlInt(f.Fd(), unix.F_SETPIPE_SZ, beamPipeSize)
}
