package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxFilenameLength = 255

var ErrInvalidClipName = errors.New("invalid clip name")

// clipNamePattern matches names produced for extracted clips: {jobId}_clip{n}.mp4
var clipNamePattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}_clip[0-9]{1,3}\.mp4$`)

// ValidateClipName rejects anything that is not a clip file name, which
// rules out path traversal before the name reaches the filesystem.
func ValidateClipName(name string) error {
	if !clipNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidClipName, truncateToBytes(name, 64))
	}
	return nil
}

// dangerousChars break Content-Disposition quoting or act as path separators.
var dangerousChars = map[rune]bool{
	'"':  true,
	'\\': true,
	'/':  true,
	':':  true,
	'\n': true,
	'\r': true,
}

// SanitizeFilename makes a client-supplied name safe for headers and logs.
// Unicode is preserved, dangerous and control characters become underscores,
// and the result is at most 255 bytes with its extension kept.
func SanitizeFilename(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))

	for _, r := range name {
		if shouldReplace(r) {
			sb.WriteRune('_')
		} else {
			sb.WriteRune(r)
		}
	}

	result := strings.TrimSpace(sb.String())
	if result == "" || strings.Trim(result, "_") == "" {
		return "file"
	}

	if len(result) > maxFilenameLength {
		result = truncatePreservingExtension(result)
	}
	return result
}

func shouldReplace(r rune) bool {
	if r < 32 || r == 127 {
		return true
	}
	return dangerousChars[r]
}

func truncatePreservingExtension(name string) string {
	ext := filepath.Ext(name)
	if len(ext) == 0 || len(ext) >= maxFilenameLength {
		return truncateToBytes(name, maxFilenameLength)
	}
	base := name[:len(name)-len(ext)]
	return truncateToBytes(base, maxFilenameLength-len(ext)) + ext
}

// truncateToBytes cuts s to at most maxBytes without splitting a rune.
func truncateToBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// ContentDisposition returns a header value with a sanitized filename.
func ContentDisposition(filename string, inline bool) string {
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	return fmt.Sprintf("%s; filename=%q", disposition, SanitizeFilename(filename))
}
