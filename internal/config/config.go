// Package config provides configuration management for gpuxcode using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/nodnarbrox/gpuxcode/internal/bytesize"
)

// Default configuration values.
const (
	defaultServerPort         = 8765
	defaultMaxConcurrentJobs  = 2
	defaultJobTimeout         = time.Hour
	defaultSegmentTimeout     = 30 * time.Second
	defaultOrphanPollInterval = 15 * time.Second
	defaultOrphanMaxSilence   = 90 * time.Second
	defaultTempCleanInterval  = 60 * time.Second
	defaultTempRetention      = 60 * time.Second
	defaultOrphanDirMaxAge    = 24 * time.Hour
	defaultQSVPreset          = "veryfast"
	defaultQSVQuality         = 25
	defaultNVENCPreset        = "p1"
	defaultNVENCTune          = "ull"
)

// Accelerator identifies the hardware-encode family targeted by the
// Argument Rewriter and the Transcoder Driver.
type Accelerator string

// Supported accelerators.
const (
	AccelQSV   Accelerator = "qsv"
	AccelNVENC Accelerator = "nvenc"
	AccelVAAPI Accelerator = "vaapi"
	AccelNone  Accelerator = "none"
)

// Config holds all configuration for the worker.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Accelerator AcceleratorConfig `mapstructure:"accelerator"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PathMap     PathMapConfig     `mapstructure:"pathmap"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	Beam        BeamConfig        `mapstructure:"beam"`
	Auth        AuthConfig        `mapstructure:"auth"`
	FFmpeg      FFmpegConfig      `mapstructure:"ffmpeg"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AcceleratorConfig holds hardware-acceleration settings consumed by the
// Argument Rewriter.
type AcceleratorConfig struct {
	Type        Accelerator `mapstructure:"type"`
	Device      string      `mapstructure:"device"`
	QSVPreset   string      `mapstructure:"qsv_preset"`
	QSVQuality  int         `mapstructure:"qsv_quality"`
	QSVLowPower bool        `mapstructure:"qsv_low_power"`
	NVENCPreset string      `mapstructure:"nvenc_preset"`
	NVENCTune   string      `mapstructure:"nvenc_tune"`
	NVENCGPU    int         `mapstructure:"nvenc_gpu"`
}

// StorageConfig holds filesystem paths used for job working directories.
type StorageConfig struct {
	TempDir         string        `mapstructure:"temp_dir"`
	LogDir          string        `mapstructure:"log_dir"`
	SharedOutputDir string        `mapstructure:"shared_output_dir"`
	OrphanDirMaxAge time.Duration `mapstructure:"orphan_dir_max_age"`
}

// PathMapConfig holds the path-prefix rewrite rules applied by the Path
// Mapper before any argument reaches FFmpeg.
type PathMapConfig struct {
	From  string `mapstructure:"from"`
	To    string `mapstructure:"to"`
	Extra string `mapstructure:"extra"` // semicolon-delimited "from=to" pairs
}

// Pairs returns all (from, to) mappings in declaration order: From/To
// first, then the Extra pairs as written. pathmap.New does the
// longest-prefix-first sort.
func (c PathMapConfig) Pairs() [][2]string {
	var pairs [][2]string
	if c.From != "" && c.To != "" {
		pairs = append(pairs, [2]string{c.From, c.To})
	}
	for _, pair := range strings.Split(c.Extra, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		pairs = append(pairs, [2]string{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])})
	}
	return pairs
}

// JobsConfig holds scheduling and janitor timing.
type JobsConfig struct {
	MaxConcurrent      int           `mapstructure:"max_concurrent"`
	Timeout            time.Duration `mapstructure:"timeout"`
	SegmentTimeout     time.Duration `mapstructure:"segment_timeout"`
	OrphanPollInterval time.Duration `mapstructure:"orphan_poll_interval"`
	OrphanMaxSilence   time.Duration `mapstructure:"orphan_max_silence"`
	TempCleanInterval  time.Duration `mapstructure:"temp_clean_interval"`
	TempRetention      time.Duration `mapstructure:"temp_retention"`
}

// BeamConfig holds beam-mode specific settings.
type BeamConfig struct {
	MaxBitrate bytesize.Size `mapstructure:"max_bitrate"`
}

// AuthConfig holds the pre-shared secret used to authenticate mutating
// requests.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// FFmpegConfig holds FFmpeg/FFprobe binary locations.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	ProbePath  string `mapstructure:"probe_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with GPUXCODE_, nested fields joined with underscores, e.g.
// GPUXCODE_ACCELERATOR_TYPE.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/gpuxcode")
	}

	v.SetEnvPrefix("GPUXCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)

	v.SetDefault("accelerator.type", string(AccelQSV))
	v.SetDefault("accelerator.qsv_preset", defaultQSVPreset)
	v.SetDefault("accelerator.qsv_quality", defaultQSVQuality)
	v.SetDefault("accelerator.qsv_low_power", true)
	v.SetDefault("accelerator.nvenc_preset", defaultNVENCPreset)
	v.SetDefault("accelerator.nvenc_tune", defaultNVENCTune)
	v.SetDefault("accelerator.nvenc_gpu", 0)
	v.SetDefault("accelerator.device", "")

	v.SetDefault("storage.temp_dir", "./transcode_temp")
	v.SetDefault("storage.log_dir", "./logs")
	v.SetDefault("storage.shared_output_dir", "")
	v.SetDefault("storage.orphan_dir_max_age", defaultOrphanDirMaxAge)

	v.SetDefault("pathmap.from", "")
	v.SetDefault("pathmap.to", "")
	v.SetDefault("pathmap.extra", "")
	v.SetDefault("beam.max_bitrate", 0)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("jobs.max_concurrent", defaultMaxConcurrentJobs)
	v.SetDefault("jobs.timeout", defaultJobTimeout)
	v.SetDefault("jobs.segment_timeout", defaultSegmentTimeout)
	v.SetDefault("jobs.orphan_poll_interval", defaultOrphanPollInterval)
	v.SetDefault("jobs.orphan_max_silence", defaultOrphanMaxSilence)
	v.SetDefault("jobs.temp_clean_interval", defaultTempCleanInterval)
	v.SetDefault("jobs.temp_retention", defaultTempRetention)

	v.SetDefault("ffmpeg.binary_path", "ffmpeg")
	v.SetDefault("ffmpeg.probe_path", "ffprobe")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validAccel := map[Accelerator]bool{AccelQSV: true, AccelNVENC: true, AccelVAAPI: true, AccelNone: true}
	if !validAccel[c.Accelerator.Type] {
		return fmt.Errorf("accelerator.type must be one of: qsv, nvenc, vaapi, none")
	}

	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be at least 1")
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
