package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bnema/peakclips/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSampler synthesises a video of totalFrames frames where every pixel of
// frame i has brightness shade(i).
type fakeSampler struct {
	fps         float64
	fpsErr      error
	totalFrames int
	shade       func(frameIndex int) byte
	failAfter   int // stop with an error after this many samples; 0 means never
	gotStride   int
	calls       int
}

func (f *fakeSampler) FrameRate(_ context.Context, _ string) (float64, error) {
	return f.fps, f.fpsErr
}

func (f *fakeSampler) Sample(_ context.Context, _ string, stride, width, height int, fn func(int, []byte) error) error {
	f.calls++
	f.gotStride = stride
	sent := 0
	for i := 0; i < f.totalFrames; i += stride {
		if f.failAfter > 0 && sent == f.failAfter {
			return errors.New("decode error")
		}
		frame := make([]byte, width*height)
		v := f.shade(i)
		for p := range frame {
			frame[p] = v
		}
		if err := fn(i, frame); err != nil {
			return err
		}
		sent++
	}
	return nil
}

func sceneCutAt(fps, seconds float64) func(int) byte {
	return func(i int) byte {
		if float64(i)/fps >= seconds {
			return 200
		}
		return 0
	}
}

func TestPeakDetector_SceneCut(t *testing.T) {
	sampler := &fakeSampler{fps: 30, totalFrames: 30 * 120, shade: sceneCutAt(30, 20)}
	d := NewPeakDetector(sampler, 4)

	starts := d.Detect(context.Background(), "in.mp4")

	assert.Equal(t, 60, sampler.gotStride)
	require.NotEmpty(t, starts)
	assert.Contains(t, starts, 19.0)
	assert.Equal(t, []float64{19, 51, 83, 115}, starts)
}

func TestPeakDetector_Separation(t *testing.T) {
	// Alternating brightness scores every sample equally; only spacing limits the pick.
	sampler := &fakeSampler{fps: 25, totalFrames: 25 * 300, shade: func(i int) byte {
		if (i/50)%2 == 0 {
			return 10
		}
		return 250
	}}
	starts := NewPeakDetector(sampler, 4).Detect(context.Background(), "in.mp4")

	require.Len(t, starts, 4)
	for i := 1; i < len(starts); i++ {
		assert.Greater(t, starts[i]-starts[i-1], 30.0)
	}
}

func TestPeakDetector_Deterministic(t *testing.T) {
	newSampler := func() *fakeSampler {
		return &fakeSampler{fps: 24, totalFrames: 24 * 200, shade: func(i int) byte { return byte((i * 37) % 251) }}
	}
	a := NewPeakDetector(newSampler(), 4).Detect(context.Background(), "x")
	b := NewPeakDetector(newSampler(), 4).Detect(context.Background(), "x")
	assert.Equal(t, a, b)
}

func TestPeakDetector_FallbackWhenNoFrames(t *testing.T) {
	sampler := &fakeSampler{fps: 30, totalFrames: 0, shade: func(int) byte { return 0 }}
	starts := NewPeakDetector(sampler, 4).Detect(context.Background(), "x")
	assert.Equal(t, []float64{5, 15, 25, 35}, starts)
}

func TestPeakDetector_FallbackWhenSingleFrame(t *testing.T) {
	sampler := &fakeSampler{fps: 30, totalFrames: 10, shade: func(int) byte { return 0 }}
	starts := NewPeakDetector(sampler, 4).Detect(context.Background(), "x")
	assert.Equal(t, []float64{5, 15, 25, 35}, starts)
}

func TestPeakDetector_FrameRateFallback(t *testing.T) {
	sampler := &fakeSampler{fpsErr: errors.New("no probe"), totalFrames: 600, shade: func(int) byte { return 0 }}
	NewPeakDetector(sampler, 4).Detect(context.Background(), "x")
	assert.Equal(t, 60, sampler.gotStride, "missing frame rate defaults to 30fps")

	sampler = &fakeSampler{fps: 0.2, totalFrames: 10, shade: func(int) byte { return 0 }}
	NewPeakDetector(sampler, 4).Detect(context.Background(), "x")
	assert.Equal(t, 1, sampler.gotStride, "stride is at least one frame")
}

func TestPeakDetector_PartialScanKeepsResults(t *testing.T) {
	sampler := &fakeSampler{fps: 30, totalFrames: 30 * 120, shade: sceneCutAt(30, 10), failAfter: 8}
	starts := NewPeakDetector(sampler, 4).Detect(context.Background(), "x")
	assert.Equal(t, []float64{9}, starts)
}

func TestPeakDetector_LeadIn(t *testing.T) {
	sampler := &fakeSampler{fps: 1, totalFrames: 10, shade: func(i int) byte {
		if i >= 2 {
			return 255
		}
		return 0
	}}
	starts := NewPeakDetector(sampler, 4).Detect(context.Background(), "x")
	assert.Equal(t, []float64{1}, starts)
}

func TestSelectPeaks_LeadInClamped(t *testing.T) {
	cands := []domain.PeakCandidate{{TimestampSeconds: 0.5, MotionScore: 7}}
	assert.Equal(t, []float64{0}, selectPeaks(cands, 4))
}

func TestPeakDetector_NumClips(t *testing.T) {
	d := NewPeakDetector(&fakeSampler{}, 2)
	assert.Equal(t, []float64{5, 15}, d.FallbackStarts())

	d = NewPeakDetector(&fakeSampler{}, 0)
	assert.Len(t, d.FallbackStarts(), DefaultNumClips)
}

func TestSelectPeaks(t *testing.T) {
	cands := []domain.PeakCandidate{
		{TimestampSeconds: 10, MotionScore: 5},
		{TimestampSeconds: 12, MotionScore: 9},
		{TimestampSeconds: 50, MotionScore: 9},
		{TimestampSeconds: 70, MotionScore: 1},
		{TimestampSeconds: 100, MotionScore: 3},
	}
	assert.Equal(t, []float64{11, 49, 99}, selectPeaks(cands, 4))
	assert.Equal(t, []float64{11}, selectPeaks(cands, 1))
	assert.Empty(t, selectPeaks(nil, 4))
}

func TestMotionScore(t *testing.T) {
	assert.Equal(t, uint64(0), motionScore([]byte{1, 2, 3}, []byte{1, 2, 3}))
	assert.Equal(t, uint64(6), motionScore([]byte{0, 5, 3}, []byte{3, 2, 3}))
}
