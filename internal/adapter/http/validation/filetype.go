// Package validation checks uploaded content and user-supplied names before
// they reach storage.
package validation

import (
	"errors"
	"io"
	"net/http"
)

var ErrDisallowedFileType = errors.New("file type not allowed")

// allowedMIMETypes is the allowlist of container types accepted for upload.
var allowedMIMETypes = map[string]bool{
	"video/mp4":        true,
	"video/webm":       true,
	"video/quicktime":  true,
	"video/x-matroska": true,
	"video/avi":        true,
	"video/mpeg":       true,
	"video/mp2t":       true,
}

const magicBytesBufferSize = 512

// ValidateMagicBytes sniffs the first bytes of reader and reports the
// detected MIME type and whether it is an accepted video container. The
// reader is rewound before returning.
func ValidateMagicBytes(reader io.ReadSeeker) (mime string, allowed bool, err error) {
	buf := make([]byte, magicBytesBufferSize)
	n, err := io.ReadFull(reader, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", false, err
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return "", false, err
	}

	if n == 0 {
		return "application/octet-stream", false, nil
	}
	buf = buf[:n]

	mime = detectVideoMagicBytes(buf)
	if mime == "" {
		mime = http.DetectContentType(buf)
	}
	return mime, allowedMIMETypes[mime], nil
}

// detectVideoMagicBytes covers containers http.DetectContentType misses or
// misreports.
func detectVideoMagicBytes(buf []byte) string {
	if len(buf) < 4 {
		return ""
	}

	// EBML header: WebM or Matroska, told apart by the DocType string.
	if buf[0] == 0x1A && buf[1] == 0x45 && buf[2] == 0xDF && buf[3] == 0xA3 {
		if containsASCII(buf, "matroska") {
			return "video/x-matroska"
		}
		return "video/webm"
	}

	// ISO BMFF: [4 bytes size]["ftyp"][brand]
	if len(buf) >= 12 && buf[4] == 'f' && buf[5] == 't' && buf[6] == 'y' && buf[7] == 'p' {
		switch string(buf[8:12]) {
		case "qt  ":
			return "video/quicktime"
		case "M4A ", "M4B ", "M4P ":
			return "audio/mp4"
		default:
			return "video/mp4"
		}
	}

	// MPEG transport stream: sync byte every 188 bytes.
	if len(buf) >= 189 && buf[0] == 0x47 && buf[188] == 0x47 {
		return "video/mp2t"
	}

	return ""
}

func containsASCII(buf []byte, s string) bool {
	for i := 0; i+len(s) <= len(buf); i++ {
		if string(buf[i:i+len(s)]) == s {
			return true
		}
	}
	return false
}
