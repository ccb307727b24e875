package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// Sample decodes every stride-th frame of path, scaled to width x height
// grayscale, and hands each to fn. Scaling and color conversion happen inside
// ffmpeg so only width*height bytes per sample cross the pipe.
func (c *Converter) Sample(ctx context.Context, path string, stride, width, height int, fn func(frameIndex int, luma []byte) error) error {
	if err := validatePath(path); err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	if stride < 1 {
		stride = 1
	}
	if width < 1 || height < 1 {
		return fmt.Errorf("invalid sample size %dx%d", width, height)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stderr := newTailBuffer(diagnosticTailBytes)
	cmd := exec.CommandContext(ctx, c.ffmpegPath, sampleArgs(path, stride, width, height)...)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	readErr := readFrames(stdout, stride, width*height, fn)
	if readErr != nil {
		// Stop the decoder; it would otherwise block on a full pipe.
		cancel()
	}
	waitErr := cmd.Wait()

	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("ffmpeg frame decode failed: %w: %s", waitErr, stderr.String())
	}
	return nil
}

func sampleArgs(path string, stride, width, height int) []string {
	filter := fmt.Sprintf("select=not(mod(n\\,%d)),scale=%d:%d:flags=area,format=gray", stride, width, height)
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", path,
		"-an",
		"-vf", filter,
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"pipe:1",
	}
}

// readFrames splits a raw gray8 stream into frames of frameSize bytes. A
// trailing partial frame ends the stream without error.
func readFrames(r io.Reader, stride, frameSize int, fn func(frameIndex int, luma []byte) error) error {
	for k := 0; ; k++ {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read frame %d: %w", k, err)
		}
		if err := fn(k*stride, buf); err != nil {
			return err
		}
	}
}
