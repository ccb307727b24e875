package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const ytdlpFormat = "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/mp4"

// YtDlp uses the local yt-dlp binary to download page URLs.
type YtDlp struct {
	binaryPath string
}

func NewYtDlp(binaryPath string) *YtDlp {
	if binaryPath == "" {
		binaryPath = "yt-dlp" // Assumes yt-dlp is in PATH
	}
	return &YtDlp{binaryPath: binaryPath}
}

func ytdlpArgs(videoURL, destPath string) []string {
	return []string{
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"-f", ytdlpFormat,
		"--merge-output-format", "mp4",
		"-o", destPath,
		videoURL,
	}
}

func (d *YtDlp) Download(ctx context.Context, videoURL, destPath string) (string, error) {
	cmd := exec.CommandContext(ctx, d.binaryPath, ytdlpArgs(videoURL, destPath)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, lastLines(stderr.String(), 5))
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return "", fmt.Errorf("yt-dlp produced no file: %w", err)
	}
	if info.Size() == 0 {
		return "", errors.New("yt-dlp produced an empty file")
	}
	return destPath, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
