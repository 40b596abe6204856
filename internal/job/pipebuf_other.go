//go:build !linux

package job

import "os"

// enlargePipeBuffer is a no-op outside Linux; pipe-buffer enlargement is
// best-effort and silently skipped on unsupported platforms.
func enlargePipeBuffer(f *os.File) {}
