package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	ytclient "github.com/kkdai/youtube/v2"

	"github.com/jo-hoe/khmerscribe/internal/config"
	"github.com/jo-hoe/khmerscribe/internal/media"
)

var _ media.Downloader = (*Downloader)(nil)

const (
	hostShort       = "youtu.be"
	pathWatch       = "/watch"
	queryVideoParam = "v"
)

var videoHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

// Path prefixes that carry the video id as the next segment.
var idPathPrefixes = []string{"/shorts/", "/embed/", "/live/", "/v/"}

var reVideoID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ParseVideoURL validates a YouTube video link and returns its video id.
func ParseVideoURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", media.ErrInvalidURL, raw)
	}
	host := strings.ToLower(u.Hostname())

	var id string
	switch {
	case host == hostShort:
		id, _, _ = strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	case videoHosts[host]:
		if u.Path == pathWatch {
			id = u.Query().Get(queryVideoParam)
			break
		}
		for _, p := range idPathPrefixes {
			if rest, ok := strings.CutPrefix(u.Path, p); ok {
				id, _, _ = strings.Cut(rest, "/")
				break
			}
		}
	}
	if !reVideoID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", media.ErrInvalidURL, raw)
	}
	return id, nil
}

// Downloader fetches the lowest-bitrate audio-only stream of a video into memory.
type Downloader struct {
	log     *slog.Logger
	client  *ytclient.Client
	maxSize int64
}

// New creates a YouTube downloader.
func New(log *slog.Logger, cfg config.DownloadConfig) *Downloader {
	return &Downloader{
		log:     log,
		client:  &ytclient.Client{HTTPClient: &http.Client{Timeout: cfg.RequestTimeout}},
		maxSize: safeInt64(cfg.MaxAudioSize),
	}
}

// Download resolves url, selects an audio format and reads the whole stream.
func (d *Downloader) Download(ctx context.Context, rawURL string) (media.Audio, error) {
	id, err := ParseVideoURL(rawURL)
	if err != nil {
		return media.Audio{}, err
	}

	video, err := d.client.GetVideoContext(ctx, id)
	if err != nil {
		return media.Audio{}, fmt.Errorf("get video info: %w", err)
	}
	format, err := pickAudioFormat(video.Formats)
	if err != nil {
		return media.Audio{}, err
	}
	if d.log != nil {
		d.log.Debug("audio format selected",
			"video_id", id,
			"itag", format.ItagNo,
			"mime", format.MimeType,
			"bitrate", format.Bitrate)
	}

	stream, _, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return media.Audio{}, fmt.Errorf("open audio stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	data, err := media.ReadLimited(stream, d.maxSize)
	if err != nil {
		return media.Audio{}, fmt.Errorf("read audio stream: %w", err)
	}
	return media.Audio{
		VideoID:  id,
		Title:    video.Title,
		MimeType: media.BareMediaType(format.MimeType),
		Data:     data,
	}, nil
}

// pickAudioFormat chooses the audio-only format with the lowest bitrate.
func pickAudioFormat(formats ytclient.FormatList) (*ytclient.Format, error) {
	var chosen *ytclient.Format
	for i := range formats {
		f := &formats[i]
		if f.AudioChannels == 0 || !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if chosen == nil || f.Bitrate < chosen.Bitrate {
			chosen = f
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("no audio-only format available")
	}
	return chosen, nil
}

func safeInt64(u config.ByteSize) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if u > config.ByteSize(maxInt64) {
		return maxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}
