package llm

import (
	"context"

	"github.com/jo-hoe/khmerscribe/internal/media"
)

// Transcriber turns an audio payload into transcript text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio media.Audio) (string, error)
}

// Generator returns generated text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is a provider offering both capabilities.
type Client interface {
	Transcriber
	Generator
}
