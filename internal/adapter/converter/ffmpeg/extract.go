package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/bnema/peakclips/internal/domain"
)

const (
	outputWidth  = 720
	outputHeight = 1280

	// diagnosticTailBytes bounds how much encoder stderr is kept for logging.
	diagnosticTailBytes = 8 << 10
)

// verticalFilter center-crops the source to 9:16 (whatever its orientation)
// and scales it to the fixed output size.
var verticalFilter = fmt.Sprintf(
	"crop='min(iw,ih*9/16)':'min(ih,iw*16/9)',scale=%d:%d,setsar=1",
	outputWidth, outputHeight,
)

// Extract encodes one vertical clip. A non-zero exit is reported as a
// *domain.ExtractError carrying the tail of ffmpeg's stderr.
func (c *Converter) Extract(ctx context.Context, spec domain.ClipSpec) error {
	if err := validatePath(spec.SourcePath); err != nil {
		return fmt.Errorf("invalid source path: %w", err)
	}
	if err := validatePath(spec.OutputPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if spec.DurationSeconds <= 0 {
		return fmt.Errorf("invalid clip duration: %v", spec.DurationSeconds)
	}

	stderr := newTailBuffer(diagnosticTailBytes)
	cmd := exec.CommandContext(ctx, c.ffmpegPath, clipArgs(spec)...)
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(spec.OutputPath)

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &domain.ExtractError{
			ExitCode: exitCode,
			Output:   stderr.String(),
			Err:      err,
		}
	}
	return nil
}

func clipArgs(spec domain.ClipSpec) []string {
	start := spec.StartSeconds
	if start < 0 {
		start = 0
	}
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(spec.DurationSeconds),
		"-i", spec.SourcePath,
		"-vf", verticalFilter,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "28",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		spec.OutputPath,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
