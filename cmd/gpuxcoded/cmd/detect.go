package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nodnarbrox/gpuxcode/internal/config"
	"github.com/nodnarbrox/gpuxcode/internal/ffmpeg"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Print the detected FFmpeg/FFprobe binary info as JSON",
	Long: `detect runs the same binary-reachability check as GET /health and prints
the result as JSON. Useful for verifying a worker's configured FFmpeg/FFprobe
paths before starting the server.`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	detector := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath)
	info, err := detector.Detect(cmd.Context())
	if err != nil {
		return fmt.Errorf("detecting ffmpeg: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
