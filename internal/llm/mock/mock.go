package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/jo-hoe/khmerscribe/internal/config"
	"github.com/jo-hoe/khmerscribe/internal/llm"
	"github.com/jo-hoe/khmerscribe/internal/media"
)

var _ llm.Client = (*Client)(nil)

// Client returns deterministic text after a configurable delay.
type Client struct {
	delay  time.Duration
	prefix string
}

func New(cfg config.MockSettings) *Client {
	return &Client{delay: cfg.Delay, prefix: cfg.Prefix}
}

func (c *Client) Transcribe(ctx context.Context, audio media.Audio) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s transcript of %s (%d bytes, %s)", c.prefix, audio.VideoID, len(audio.Data), audio.MimeType), nil
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s response (%d prompt chars)", c.prefix, len([]rune(prompt))), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
