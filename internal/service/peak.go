package service

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/bnema/peakclips/internal/domain"
	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/port"
	"go.uber.org/zap"
)

const (
	DefaultNumClips   = 4
	defaultFrameRate  = 30.0
	sampleIntervalSec = 2.0
	signatureSize     = 40
	minSeparationSec  = 30.0
	leadInSec         = 1.0
)

var fallbackStarts = []float64{5, 15, 25, 35}

// errStopScan ends a scan early without being treated as a decode failure.
var errStopScan = errors.New("stop scan")

// PeakDetector picks the most visually active moments of a video by scoring
// frame-to-frame luminance change on small grayscale signatures.
type PeakDetector struct {
	sampler  port.FrameSampler
	numClips int
}

func NewPeakDetector(sampler port.FrameSampler, numClips int) *PeakDetector {
	if numClips <= 0 {
		numClips = DefaultNumClips
	}
	return &PeakDetector{sampler: sampler, numClips: numClips}
}

// FallbackStarts is the fixed start list used when a video yields no usable
// motion data.
func (d *PeakDetector) FallbackStarts() []float64 {
	n := min(d.numClips, len(fallbackStarts))
	return append([]float64(nil), fallbackStarts[:n]...)
}

// Detect returns clip start times in ascending order. It never fails: an
// undecodable source degrades to FallbackStarts, and a decode error mid-scan
// keeps whatever was scored so far.
func (d *PeakDetector) Detect(ctx context.Context, path string) []float64 {
	log := logger.Named("peaks").With(zap.String("path", path))

	fps, err := d.sampler.FrameRate(ctx, path)
	if err != nil || fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		if err != nil {
			log.Debug("frame rate unavailable, assuming default", zap.Error(err))
		}
		fps = defaultFrameRate
	}
	stride := max(1, int(math.Round(fps*sampleIntervalSec)))

	var (
		reference  []byte
		candidates []domain.PeakCandidate
	)
	err = d.sampler.Sample(ctx, path, stride, signatureSize, signatureSize, func(frameIndex int, luma []byte) error {
		if ctx.Err() != nil {
			return errStopScan
		}
		if reference != nil {
			candidates = append(candidates, domain.PeakCandidate{
				TimestampSeconds: float64(frameIndex) / fps,
				MotionScore:      motionScore(reference, luma),
			})
		}
		reference = luma
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		log.Warn("frame scan stopped early", zap.Error(err), zap.Int("scored", len(candidates)))
	}

	if reference == nil {
		log.Info("no decodable frames, using fallback starts")
		return d.FallbackStarts()
	}

	starts := selectPeaks(candidates, d.numClips)
	if len(starts) == 0 {
		log.Info("no peak candidates, using fallback starts")
		return d.FallbackStarts()
	}
	log.Debug("peaks selected", zap.Float64s("starts", starts), zap.Int("candidates", len(candidates)))
	return starts
}

// motionScore is the sum of absolute per-pixel differences between two
// equally sized signatures.
func motionScore(prev, cur []byte) uint64 {
	n := min(len(prev), len(cur))
	var sum uint64
	for i := 0; i < n; i++ {
		a, b := prev[i], cur[i]
		if a > b {
			sum += uint64(a - b)
		} else {
			sum += uint64(b - a)
		}
	}
	return sum
}

// selectPeaks ranks candidates by score, highest first with earlier samples
// winning ties, then greedily keeps up to n of them spaced more than
// minSeparationSec apart. The result is lead-in adjusted and ascending.
func selectPeaks(candidates []domain.PeakCandidate, n int) []float64 {
	ranked := append([]domain.PeakCandidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MotionScore > ranked[j].MotionScore
	})

	var accepted []float64
	for _, c := range ranked {
		if len(accepted) == n {
			break
		}
		ok := true
		for _, ts := range accepted {
			if math.Abs(c.TimestampSeconds-ts) <= minSeparationSec {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c.TimestampSeconds)
		}
	}

	sort.Float64s(accepted)
	starts := make([]float64, len(accepted))
	for i, ts := range accepted {
		starts[i] = math.Max(0, ts-leadInSec)
	}
	return starts
}
