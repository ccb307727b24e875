package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/bnema/peakclips/internal/infrastructure/logger"
	"github.com/bnema/peakclips/internal/port"
	"go.uber.org/zap"
)

// Error wraps an acquisition failure with the source it came from.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", logger.SanitizeForLog(e.URL), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var directMediaExts = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
	".avi":  true,
}

// Router sends direct media links to a plain HTTP download and every other
// page URL through yt-dlp.
type Router struct {
	direct *HTTPDownloader
	ytdlp  *YtDlp
}

func NewRouter(direct *HTTPDownloader, ytdlp *YtDlp) *Router {
	return &Router{direct: direct, ytdlp: ytdlp}
}

func (r *Router) Fetch(ctx context.Context, sourceURL, destPath string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", &Error{URL: sourceURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &Error{URL: sourceURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	log := logger.Named("fetch").With(logger.UserString("url", sourceURL))
	var out string
	if IsDirectMedia(u) {
		log.Debug("downloading direct media")
		out, err = r.direct.Download(ctx, sourceURL, destPath)
	} else {
		log.Debug("resolving with yt-dlp")
		out, err = r.ytdlp.Download(ctx, sourceURL, destPath)
	}
	if err != nil {
		removePartial(destPath)
		return "", &Error{URL: sourceURL, Err: err}
	}
	log.Info("source fetched", zap.String("path", out))
	return out, nil
}

// IsDirectMedia reports whether the URL path names a video file.
func IsDirectMedia(u *url.URL) bool {
	return directMediaExts[strings.ToLower(path.Ext(u.Path))]
}

func removePartial(destPath string) {
	for _, p := range []string{destPath, destPath + ".part"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Named("fetch").Warn("failed to remove partial download", zap.String("path", p), zap.Error(err))
		}
	}
}

var _ port.SourceFetcher = (*Router)(nil)
