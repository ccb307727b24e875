package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bnema/peakclips/config"
	"github.com/bnema/peakclips/internal/adapter/converter/ffmpeg"
	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/service"
	"github.com/spf13/cobra"
)

var (
	detectJSON     bool
	detectNumClips int
)

var detectCmd = &cobra.Command{
	Use:   "detect <video>",
	Short: "Print candidate clip start times for a local video",
	Long: `Run peak detection on a local file and print the chosen clip start times.

Examples:
  peakclips detect match.mp4
  peakclips detect match.mp4 --json
  peakclips detect match.mp4 --clips 6`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "Print start times as a JSON array")
	detectCmd.Flags().IntVar(&detectNumClips, "clips", 0, "Number of clips to select (default from config)")
}

func runDetect(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open video: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	numClips := cfg.NumClips
	if detectNumClips > 0 {
		numClips = detectNumClips
	}

	converter := ffmpeg.NewConverter(cfg.FFmpegPath, cfg.FFprobePath)
	starts := service.NewPeakDetector(converter, numClips).Detect(cmd.Context(), path)

	out := cmd.OutOrStdout()
	if detectJSON {
		return json.NewEncoder(out).Encode(starts)
	}
	for i, s := range starts {
		fmt.Fprintf(out, "%s\t%s\t%.3fs\n", domain.ClipDisplayName(i+1), domain.FormatDuration(s), s)
	}
	return nil
}
