package port

import (
	"context"

	"github.com/bnema/peakclips/internal/domain"
)

type ClipExtractor interface {
	Extract(ctx context.Context, spec domain.ClipSpec) error
}
