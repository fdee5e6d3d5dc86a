package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

var (
	// ErrInvalidURL reports a link that is not a supported video URL.
	ErrInvalidURL = errors.New("invalid YouTube URL")
	// ErrAudioTooLarge reports an audio payload above the configured limit.
	ErrAudioTooLarge = errors.New("audio exceeds size limit")
)

// Audio is a fully materialized audio payload.
type Audio struct {
	VideoID  string
	Title    string
	MimeType string // bare media type, e.g. audio/webm
	Data     []byte
}

// Downloader resolves a video URL to its audio payload.
type Downloader interface {
	Download(ctx context.Context, url string) (Audio, error)
}

// ReadLimited reads r fully, failing with ErrAudioTooLarge once more than max bytes arrive.
// max <= 0 disables the limit.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w (%d bytes)", ErrAudioTooLarge, max)
	}
	return data, nil
}

// BareMediaType strips parameters such as codecs from a MIME type.
func BareMediaType(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt, _, _ = strings.Cut(mimeType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
