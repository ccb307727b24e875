package ffmpeg

import (
	"errors"
	"strings"

	"github.com/bnema/peakclips/internal/port"
)

var (
	ErrEmptyPath   = errors.New("path is empty")
	ErrInvalidPath = errors.New("path contains invalid characters")
)

// Converter shells out to ffmpeg and ffprobe. It implements both the clip
// extractor and the frame sampler used by peak detection.
type Converter struct {
	ffmpegPath  string
	ffprobePath string
}

func NewConverter(ffmpegPath, ffprobePath string) *Converter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Converter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return ErrInvalidPath
	}
	return nil
}

var (
	_ port.ClipExtractor = (*Converter)(nil)
	_ port.FrameSampler  = (*Converter)(nil)
)
