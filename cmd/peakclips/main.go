package main

import (
	"fmt"
	"os"

	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "peakclips",
	Short: "Extract the most active moments of a video as short vertical clips",
	Long: `peakclips finds the highest-motion moments of a video and cuts them into
short vertical MP4 clips, served over HTTP.

Examples:
  peakclips serve                   # Run the HTTP service
  peakclips detect ./match.mp4      # Print candidate clip starts for a local file`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (default: peakclips.yaml in . or /etc/peakclips)")
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
