package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/khmerscribe/internal/llm"
	"github.com/jo-hoe/khmerscribe/internal/media"
)

// Emitter writes one event to the open stream. A returned error means the
// stream is gone.
type Emitter func(Event) error

// Pipeline runs download, transcribe, clean and summarize for one URL.
type Pipeline struct {
	log         *slog.Logger
	downloader  media.Downloader
	transcriber llm.Transcriber
	generator   llm.Generator
	prompts     *Prompts
}

func New(log *slog.Logger, d media.Downloader, t llm.Transcriber, g llm.Generator, prompts *Prompts) *Pipeline {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{
		log:         log,
		downloader:  d,
		transcriber: t,
		generator:   g,
		prompts:     prompts,
	}
}

// Run executes the job and emits its events in order. A stage failure is
// emitted as a single error event and returned. If the stream itself fails,
// Run stops without emitting anything further and returns an ErrStream error.
func (p *Pipeline) Run(ctx context.Context, jobID, url string, emit Emitter) error {
	log := p.log.With("job_id", jobID)
	start := time.Now()

	err := p.run(ctx, log, url, emit)
	switch {
	case err == nil:
		log.Info("job completed", "duration", time.Since(start))
		return nil
	case errors.Is(err, ErrStream):
		log.Warn("stream closed before completion", "err", err, "duration", time.Since(start))
		return err
	}

	log.Error("job failed", "err", err, "duration", time.Since(start))
	if emitErr := emit(Failure(Message(err))); emitErr != nil {
		log.Warn("error event not delivered", "err", emitErr)
	}
	return err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, url string, emit Emitter) error {
	if err := send(emit, StepDownloading, Progress(StepDownloading)); err != nil {
		return err
	}
	audio, err := runStage(ctx, log, StepDownloading, func() (media.Audio, error) {
		return p.downloader.Download(ctx, url)
	})
	if err != nil {
		return err
	}
	log.Info("audio downloaded", "video_id", audio.VideoID, "bytes", len(audio.Data), "mime", audio.MimeType)

	if err := send(emit, StepTranscribing, Progress(StepTranscribing)); err != nil {
		return err
	}
	raw, err := runStage(ctx, log, StepTranscribing, func() (string, error) {
		return nonEmpty(p.transcriber.Transcribe(ctx, audio))
	})
	if err != nil {
		return err
	}
	// The audio payload is not needed past this point.
	audio.Data = nil

	// Progress precedes the call; the cleaned text follows it.
	if err := send(emit, StepCleaning, Progress(StepCleaning)); err != nil {
		return err
	}
	cleaned, err := runStage(ctx, log, StepCleaning, func() (string, error) {
		prompt, err := p.prompts.Clean(raw)
		if err != nil {
			return "", err
		}
		return nonEmpty(p.generator.Generate(ctx, prompt))
	})
	if err != nil {
		return err
	}
	if err := send(emit, StepCleaning, Transcript(cleaned)); err != nil {
		return err
	}

	if err := send(emit, StepSummarizing, Progress(StepSummarizing)); err != nil {
		return err
	}
	summary, err := runStage(ctx, log, StepSummarizing, func() (string, error) {
		prompt, err := p.prompts.Summarize(cleaned)
		if err != nil {
			return "", err
		}
		return nonEmpty(p.generator.Generate(ctx, prompt))
	})
	if err != nil {
		return err
	}
	return send(emit, StepComplete, Complete(summary))
}

func runStage[T any](ctx context.Context, log *slog.Logger, step Step, fn func() (T, error)) (T, error) {
	start := time.Now()
	log.Debug("stage started", "stage", step)
	out, err := fn()
	if err != nil {
		var zero T
		return zero, classify(ctx, step, err)
	}
	log.Info("stage finished", "stage", step, "duration", time.Since(start))
	return out, nil
}

func classify(ctx context.Context, step Step, err error) error {
	switch {
	case errors.Is(err, media.ErrInvalidURL):
		return &StageError{Stage: step, Kind: ErrInvalidInput, Err: err}
	case errors.Is(ctx.Err(), context.Canceled):
		// The request context is cancelled only when the client went away.
		return &StageError{Stage: step, Kind: ErrStream, Err: ctx.Err()}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &StageError{Stage: step, Kind: ErrUpstream, Err: fmt.Errorf("processing time limit exceeded during %s", step)}
	default:
		return &StageError{Stage: step, Kind: ErrUpstream, Err: err}
	}
}

func send(emit Emitter, step Step, e Event) error {
	if err := emit(e); err != nil {
		return &StageError{Stage: step, Kind: ErrStream, Err: err}
	}
	return nil
}

func nonEmpty(s string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	s = stripFences(s)
	if s == "" {
		return "", errors.New("service returned empty text")
	}
	return s, nil
}

// stripFences trims s and removes a markdown code fence wrapping the whole text.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 6 || !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.ContainsAny(body[:nl], " \t") {
		body = body[nl+1:]
	}
	return strings.TrimSpace(body)
}
