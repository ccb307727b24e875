package port

import "context"

// FrameSampler decodes a video into downscaled single-channel luminance
// frames. Sample invokes fn for every stride-th frame, starting at frame 0,
// with exactly width*height bytes. A non-nil error from fn stops the scan and
// is returned.
type FrameSampler interface {
	FrameRate(ctx context.Context, path string) (float64, error)
	Sample(ctx context.Context, path string, stride, width, height int, fn func(frameIndex int, luma []byte) error) error
}
