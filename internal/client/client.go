// Package client submits a video link to the transcription endpoint and
// folds the returned event stream into a single observable State.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jo-hoe/khmerscribe/internal/common"
	"github.com/jo-hoe/khmerscribe/internal/pipeline"
	"github.com/jo-hoe/khmerscribe/internal/sse"
)

var (
	// ErrEmptyURL is returned before any request is made.
	ErrEmptyURL = errors.New(common.MsgEnterURL)
	// ErrIncompleteStream reports a stream that closed without a terminal record.
	ErrIncompleteStream = fmt.Errorf("%w: stream ended before completion", pipeline.ErrStream)
)

// maxErrorBody bounds how much of a non-success response is read.
const maxErrorBody = 64 * 1024

// State is what the user sees of the current job.
type State struct {
	Step          pipeline.Step
	Transcription string
	Summary       string
	Error         string
}

// Processing reports whether a job is in flight.
func (s State) Processing() bool {
	return s.Step.Processing()
}

// StepMessage returns the status line for step.
func StepMessage(step pipeline.Step) string {
	switch step {
	case pipeline.StepDownloading:
		return "Downloading audio from YouTube..."
	case pipeline.StepTranscribing:
		return "Transcribing audio with Whisper..."
	case pipeline.StepCleaning:
		return "Removing sponsors and filler content..."
	case pipeline.StepSummarizing:
		return "Generating Khmer summary..."
	case pipeline.StepComplete:
		return "Processing complete!"
	default:
		return ""
	}
}

// Consumer talks to one transcription server.
type Consumer struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a consumer for baseURL. A nil httpClient uses a client without
// a timeout, since streams stay open for the whole job.
func New(baseURL string, httpClient *http.Client) *Consumer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = common.DefaultServerURL
	}
	return &Consumer{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type submitRequest struct {
	URL string `json:"url"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Submit runs one job for url. onUpdate, when set, receives the state before
// the request is sent and after every record. The returned error carries the
// user-visible message; the returned state is then idle with Error set.
func (c *Consumer) Submit(ctx context.Context, url string, onUpdate func(State)) (State, error) {
	notify := func(s State) {
		if onUpdate != nil {
			onUpdate(s)
		}
	}

	url = strings.TrimSpace(url)
	if url == "" {
		s := State{Step: pipeline.StepIdle, Error: ErrEmptyURL.Error()}
		notify(s)
		return s, ErrEmptyURL
	}

	state := State{Step: pipeline.StepDownloading}
	notify(state)

	fail := func(err error) (State, error) {
		state.Step = pipeline.StepIdle
		state.Error = failureMessage(err)
		notify(state)
		return state, err
	}

	body, err := json.Marshal(submitRequest{URL: url})
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+common.PathTranscribe, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set(common.HeaderContentType, common.ContentTypeJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fail(errors.New(statusMessage(resp.Body)))
	}

	rd := sse.NewReader(resp.Body)
	for {
		var e pipeline.Event
		err := rd.Next(&e)
		if errors.Is(err, io.EOF) {
			return fail(ErrIncompleteStream)
		}
		if err != nil {
			return fail(fmt.Errorf("%w: %w", pipeline.ErrStream, err))
		}

		if e.Error != "" {
			return fail(errors.New(e.Error))
		}
		if e.Step != "" {
			state.Step = e.Step
		}
		if e.Transcription != "" {
			state.Transcription = e.Transcription
		}
		if e.Summary != "" {
			state.Summary = e.Summary
		}
		notify(state)

		if e.Terminal() {
			return state, nil
		}
	}
}

func statusMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return common.MsgRequestFailed
	}
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || strings.TrimSpace(eb.Error) == "" {
		return common.MsgRequestFailed
	}
	return eb.Error
}

func failureMessage(err error) string {
	if err == nil || err.Error() == "" {
		return common.MsgGenericError
	}
	return err.Error()
}
