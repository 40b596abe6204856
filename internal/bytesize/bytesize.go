// Package bytesize provides human-readable byte size parsing and formatting
// for configuration values such as the beam-mode output bitrate cap.
//
// Supported units (case-insensitive): B, K/KB/KiB, M/MB/MiB, G/GB/GiB,
// T/TB/TiB, P/PB/PiB. A bare number is interpreted as bytes.
package bytesize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Size is a byte count that supports human-readable parsing via
// encoding.TextUnmarshaler (Viper/YAML) and json.Unmarshaler.
type Size int64

// Common size constants using binary (1024) base.
const (
	B  Size = 1
	KB Size = 1024 * B
	MB Size = 1024 * KB
	GB Size = 1024 * MB
	TB Size = 1024 * GB
	PB Size = 1024 * TB
)

var unitMultipliers = map[string]Size{
	"b": B, "byte": B, "bytes": B,
	"k": KB, "kb": KB, "kib": KB,
	"m": MB, "mb": MB, "mib": MB,
	"g": GB, "gb": GB, "gib": GB,
	"t": TB, "tb": TB, "tib": TB,
	"p": PB, "pb": PB, "pib": PB,
}

var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([a-z]*)\s*$`)

// Parse parses a human-readable byte size string, e.g. "4M", "4MB", "1.5 GB".
func Parse(s string) (Size, error) {
	if s == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("bytesize: invalid format %q", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number %q: %w", matches[1], err)
	}

	multiplier := B
	if unitStr := strings.ToLower(matches[2]); unitStr != "" {
		var ok bool
		multiplier, ok = unitMultipliers[unitStr]
		if !ok {
			return 0, fmt.Errorf("bytesize: unknown unit %q", unitStr)
		}
	}

	return Size(value * float64(multiplier)), nil
}

// Bytes returns the size in bytes.
func (s Size) Bytes() int64 { return int64(s) }

// Bits returns the size in bits, useful for bitrate caps expressed as
// bytes/sec against a per-second rate limiter.
func (s Size) Bits() int64 { return int64(s) * 8 }

// String renders the size in the largest unit that keeps the value >= 1.
func (s Size) String() string {
	if s == 0 {
		return "0B"
	}
	neg := s < 0
	if neg {
		s = -s
	}
	var out string
	switch {
	case s >= PB:
		out = formatFloat(float64(s)/float64(PB), "PB")
	case s >= TB:
		out = formatFloat(float64(s)/float64(TB), "TB")
	case s >= GB:
		out = formatFloat(float64(s)/float64(GB), "GB")
	case s >= MB:
		out = formatFloat(float64(s)/float64(MB), "MB")
	case s >= KB:
		out = formatFloat(float64(s)/float64(KB), "KB")
	default:
		out = fmt.Sprintf("%dB", int64(s))
	}
	if neg {
		return "-" + out
	}
	return out
}

func formatFloat(v float64, unit string) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d%s", int64(v), unit)
	}
	formatted := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	return formatted + unit
}

// UnmarshalText implements encoding.TextUnmarshaler for Viper/YAML decoding.
func (s *Size) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler, accepting either a string
// ("4MB") or a raw byte count (4194304).
func (s *Size) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		return s.UnmarshalText([]byte(str))
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("bytesize: cannot unmarshal %s", data)
	}
	*s = Size(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
