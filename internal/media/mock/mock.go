package mock

import (
	"context"
	"time"

	"github.com/jo-hoe/khmerscribe/internal/media"
	"github.com/jo-hoe/khmerscribe/internal/media/youtube"
)

var _ media.Downloader = (*Downloader)(nil)

const mockMimeType = "audio/webm"

// Downloader validates links like the YouTube downloader but returns canned audio.
type Downloader struct {
	delay time.Duration
}

// New creates a mock downloader that waits delay before returning.
func New(delay time.Duration) *Downloader {
	return &Downloader{delay: delay}
}

func (d *Downloader) Download(ctx context.Context, url string) (media.Audio, error) {
	id, err := youtube.ParseVideoURL(url)
	if err != nil {
		return media.Audio{}, err
	}
	if d.delay > 0 {
		timer := time.NewTimer(d.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return media.Audio{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return media.Audio{}, err
	}
	return media.Audio{
		VideoID:  id,
		Title:    "Mock video " + id,
		MimeType: mockMimeType,
		Data:     []byte("mock-audio:" + id),
	}, nil
}
