package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/bnema/peakclips/internal/domain"
)

func (c *Converter) Probe(ctx context.Context, inputPath string) (*domain.ProbeResult, error) {
	if err := validatePath(inputPath); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	}
	output, err := exec.CommandContext(ctx, c.ffprobePath, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*domain.ProbeResult, error) {
	var result domain.ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if result.VideoStream() == nil {
		return nil, fmt.Errorf("no video stream found")
	}
	return &result, nil
}

// FrameRate reports the source frame rate, or an error when it cannot be
// determined.
func (c *Converter) FrameRate(ctx context.Context, path string) (float64, error) {
	probe, err := c.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	fps := probe.FrameRate()
	if fps <= 0 {
		return 0, fmt.Errorf("frame rate unavailable")
	}
	return fps, nil
}
