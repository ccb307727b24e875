package port

import "context"

// SourceFetcher acquires a remote video and writes it to destPath. It returns
// the local path of the acquired file.
type SourceFetcher interface {
	Fetch(ctx context.Context, sourceURL, destPath string) (string, error)
}
