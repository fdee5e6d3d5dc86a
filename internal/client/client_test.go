package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/khmerscribe/internal/common"
	"github.com/jo-hoe/khmerscribe/internal/pipeline"
	"github.com/jo-hoe/khmerscribe/internal/sse"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// streamServer replays events as an event stream and records the submitted url.
func streamServer(t *testing.T, seen *string, events ...pipeline.Event) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, common.PathTranscribe, r.URL.Path)
		var body submitRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if seen != nil {
			*seen = body.URL
		}
		sse.SetHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		sw := sse.NewWriter(w)
		for _, e := range events {
			assert.NoError(t, sw.WriteEvent(e))
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func happyEvents() []pipeline.Event {
	return []pipeline.Event{
		pipeline.Progress(pipeline.StepDownloading),
		pipeline.Progress(pipeline.StepTranscribing),
		pipeline.Progress(pipeline.StepCleaning),
		pipeline.Transcript("clean text"),
		pipeline.Progress(pipeline.StepSummarizing),
		pipeline.Complete("summary text"),
	}
}

func TestSubmit_HappyPath(t *testing.T) {
	var seen string
	ts := streamServer(t, &seen, happyEvents()...)

	var updates []State
	st, err := New(ts.URL, nil).Submit(context.Background(), "  "+videoURL+"  ", func(s State) {
		updates = append(updates, s)
	})
	require.NoError(t, err)

	assert.Equal(t, videoURL, seen, "url is trimmed before sending")
	assert.Equal(t, State{Step: pipeline.StepComplete, Transcription: "clean text", Summary: "summary text"}, st)
	assert.False(t, st.Processing())

	// One local update before the request plus one per record.
	require.Len(t, updates, 7)
	assert.Equal(t, State{Step: pipeline.StepDownloading}, updates[0])
	assert.Equal(t, pipeline.StepCleaning, updates[4].Step, "transcript record keeps the current stage")
	assert.Equal(t, "clean text", updates[4].Transcription)
	for _, u := range updates[:6] {
		assert.True(t, u.Processing())
	}
}

func TestSubmit_EmptyURLMakesNoRequest(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	st, err := New(ts.URL, nil).Submit(context.Background(), "   ", nil)
	require.ErrorIs(t, err, ErrEmptyURL)
	assert.Equal(t, "Please enter a YouTube URL", st.Error)
	assert.Equal(t, pipeline.StepIdle, st.Step)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestSubmit_ErrorRecordResetsToIdle(t *testing.T) {
	ts := streamServer(t, nil,
		pipeline.Progress(pipeline.StepDownloading),
		pipeline.Failure("invalid YouTube URL: \"not a url\""),
	)

	st, err := New(ts.URL, nil).Submit(context.Background(), "not a url", nil)
	require.Error(t, err)
	assert.Equal(t, `invalid YouTube URL: "not a url"`, err.Error())
	assert.Equal(t, pipeline.StepIdle, st.Step)
	assert.Equal(t, err.Error(), st.Error)
	assert.False(t, st.Processing())
}

func TestSubmit_ErrorAfterTranscriptKeepsTranscript(t *testing.T) {
	ts := streamServer(t, nil,
		pipeline.Progress(pipeline.StepDownloading),
		pipeline.Progress(pipeline.StepTranscribing),
		pipeline.Progress(pipeline.StepCleaning),
		pipeline.Transcript("clean text"),
		pipeline.Progress(pipeline.StepSummarizing),
		pipeline.Failure("quota exceeded"),
	)

	st, err := New(ts.URL, nil).Submit(context.Background(), videoURL, nil)
	require.EqualError(t, err, "quota exceeded")
	assert.Equal(t, State{Step: pipeline.StepIdle, Transcription: "clean text", Error: "quota exceeded"}, st)
}

func TestSubmit_StreamEndsWithoutTerminal(t *testing.T) {
	ts := streamServer(t, nil,
		pipeline.Progress(pipeline.StepDownloading),
		pipeline.Progress(pipeline.StepTranscribing),
	)

	st, err := New(ts.URL, nil).Submit(context.Background(), videoURL, nil)
	require.ErrorIs(t, err, pipeline.ErrStream)
	assert.Equal(t, pipeline.StepIdle, st.Step)
	assert.NotEmpty(t, st.Error)
}

func TestSubmit_ResubmitClearsPreviousOutput(t *testing.T) {
	ts := streamServer(t, nil, happyEvents()...)
	c := New(ts.URL, nil)

	_, err := c.Submit(context.Background(), videoURL, nil)
	require.NoError(t, err)

	var first *State
	_, err = c.Submit(context.Background(), videoURL, func(s State) {
		if first == nil {
			first = &s
		}
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, State{Step: pipeline.StepDownloading}, *first)
}

func TestSubmit_NonSuccessStatus(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"json error body", `{"error":"invalid request body"}`, "invalid request body"},
		{"plain body", "upstream exploded", "Failed to process video"},
		{"empty error field", `{"error":""}`, "Failed to process video"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = fmt.Fprint(w, tc.body)
			}))
			defer ts.Close()

			st, err := New(ts.URL, nil).Submit(context.Background(), videoURL, nil)
			require.EqualError(t, err, tc.want)
			assert.Equal(t, tc.want, st.Error)
			assert.Equal(t, pipeline.StepIdle, st.Step)
		})
	}
}

func TestSubmit_SkipsNonDataLines(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse.SetHeaders(w.Header())
		_, _ = fmt.Fprint(w, ": keepalive\n\n")
		_, _ = fmt.Fprint(w, "event: ignored\n")
		_, _ = fmt.Fprint(w, `data: {"summary":"s","step":"complete"}`+"\n\n")
	}))
	defer ts.Close()

	st, err := New(ts.URL, nil).Submit(context.Background(), videoURL, nil)
	require.NoError(t, err)
	assert.Equal(t, "s", st.Summary)
}

func TestSubmit_ConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	st, err := New(url, nil).Submit(context.Background(), videoURL, nil)
	require.Error(t, err)
	assert.Equal(t, pipeline.StepIdle, st.Step)
	assert.NotEmpty(t, st.Error)
}

func TestSubmit_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := sse.NewWriter(w)
		_ = sw.WriteEvent(pipeline.Progress(pipeline.StepDownloading))
		cancel()
		<-r.Context().Done()
	}))
	defer ts.Close()

	st, err := New(ts.URL, nil).Submit(ctx, videoURL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "canceled"), "got %v", err)
	assert.Equal(t, pipeline.StepIdle, st.Step)
}

func TestStepMessage(t *testing.T) {
	assert.Equal(t, "Downloading audio from YouTube...", StepMessage(pipeline.StepDownloading))
	assert.Equal(t, "Transcribing audio with Whisper...", StepMessage(pipeline.StepTranscribing))
	assert.Equal(t, "Removing sponsors and filler content...", StepMessage(pipeline.StepCleaning))
	assert.Equal(t, "Generating Khmer summary...", StepMessage(pipeline.StepSummarizing))
	assert.Equal(t, "Processing complete!", StepMessage(pipeline.StepComplete))
	assert.Empty(t, StepMessage(pipeline.StepIdle))
}

func TestNew_DefaultsBaseURL(t *testing.T) {
	c := New("", nil)
	assert.Equal(t, common.DefaultServerURL, c.baseURL)
	assert.Equal(t, "http://x", New("http://x/", nil).baseURL)
}
