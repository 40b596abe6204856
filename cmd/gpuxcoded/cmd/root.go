// Package cmd implements the CLI commands for gpuxcoded.
package cmd

import (
	"fmt"

	"github.com/nodnarbrox/gpuxcode/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "gpuxcoded",
	Short:   "Remote GPU transcoding worker",
	Version: version.Short(),
	Long: `gpuxcoded accepts FFmpeg-style transcode requests over HTTP, rewrites
them for the worker's local hardware accelerator, and supervises the
resulting FFmpeg subprocess through to a terminal state.

Configuration is read from a YAML file (default ./config.yaml or
/etc/gpuxcode/config.yaml) and environment variables prefixed GPUXCODE_,
e.g. GPUXCODE_ACCELERATOR_TYPE, GPUXCODE_SERVER_PORT.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format override (text, json)")
}
