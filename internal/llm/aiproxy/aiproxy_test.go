package aiproxy

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jo-hoe/khmerscribe/internal/config"
	"github.com/jo-hoe/khmerscribe/internal/media"
)

func TestAIProxy_Generate_Success(t *testing.T) {
	var seenAuth string
	var seenBody chatCompletionRequest

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&seenBody); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		resp := chatCompletionResponse{
			ID:      "id-123",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Choices: []chatCompletionChoice{
				{
					Index: 0,
					Message: responseMsg{
						Role:    "assistant",
						Content: "Cleaned text",
					},
					FinishReason: "stop",
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	c := New(config.AIProxySettings{
		BaseURL:     ts.URL + "/",
		APIKey:      "k123",
		ChatModel:   "gpt-4o",
		Temperature: 0.2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := c.Generate(ctx, "Remove sponsors:\n\nraw")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out != "Cleaned text" {
		t.Fatalf("unexpected content: %q", out)
	}
	if seenAuth != "Bearer k123" {
		t.Fatalf("missing/incorrect auth header, got %q", seenAuth)
	}
	if seenBody.Model != "gpt-4o" {
		t.Fatalf("expected model gpt-4o, got %q", seenBody.Model)
	}
	if len(seenBody.Messages) != 1 || seenBody.Messages[0].Role != RoleUser {
		t.Fatalf("expected one user message, got %+v", seenBody.Messages)
	}
	if seenBody.Messages[0].Content != "Remove sponsors:\n\nraw" {
		t.Fatalf("prompt not forwarded: %q", seenBody.Messages[0].Content)
	}
	if seenBody.Temperature == nil || *seenBody.Temperature != 0.2 {
		t.Fatalf("temperature not forwarded: %v", seenBody.Temperature)
	}
	if seenBody.MaxTokens != nil {
		t.Fatalf("max_tokens should be omitted when unset")
	}
}

func TestAIProxy_Generate_Non200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests"}}`)
	}))
	defer ts.Close()

	c := New(config.AIProxySettings{BaseURL: ts.URL, ChatModel: "gpt-4o"})

	_, err := c.Generate(context.Background(), "x")
	if err == nil {
		t.Fatalf("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "Rate limit reached") {
		t.Fatalf("error should carry status and api message, got %v", err)
	}
}

func TestAIProxy_Generate_EmptyCompletion(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatCompletionResponse{})
	}))
	defer ts.Close()

	c := New(config.AIProxySettings{BaseURL: ts.URL})
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Fatalf("expected error for empty completion")
	}
}

func TestAIProxy_Transcribe_Success(t *testing.T) {
	var seenModel, seenFormat, seenFilename, seenPartType, seenAudio string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		seenModel = r.FormValue("model")
		seenFormat = r.FormValue("response_format")
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		seenAudio = string(b)
		seenFilename = fh.Filename
		seenPartType = fh.Header.Get("Content-Type")
		_ = json.NewEncoder(w).Encode(transcriptionResponse{Text: "hello world"})
	}))
	defer ts.Close()

	c := New(config.AIProxySettings{BaseURL: ts.URL, TranscriptionModel: "whisper-1"})

	out, err := c.Transcribe(context.Background(), media.Audio{
		MimeType: "audio/mp4",
		Data:     []byte("audio-bytes"),
	})
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("unexpected transcript: %q", out)
	}
	if seenModel != "whisper-1" || seenFormat != "json" {
		t.Fatalf("form fields = %q / %q", seenModel, seenFormat)
	}
	if seenFilename != "audio.m4a" || seenPartType != "audio/mp4" {
		t.Fatalf("file part = %q (%q)", seenFilename, seenPartType)
	}
	if seenAudio != "audio-bytes" {
		t.Fatalf("audio payload = %q", seenAudio)
	}
}

func TestAIProxy_Transcribe_EmptyAudio(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("server should not be called for empty audio")
	}))
	defer ts.Close()

	c := New(config.AIProxySettings{BaseURL: ts.URL})

	if _, err := c.Transcribe(context.Background(), media.Audio{MimeType: "audio/webm"}); err == nil {
		t.Fatalf("expected error for empty audio")
	}
}

func TestAIProxy_ContextCancel(t *testing.T) {
	var started int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.StoreInt32(&started, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	c := New(config.AIProxySettings{BaseURL: ts.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Generate(ctx, "data")
	if err == nil {
		t.Fatalf("expected context cancellation error")
	}
	if atomic.LoadInt32(&started) == 0 {
		t.Fatalf("server was not invoked; test invalid")
	}
}

func TestFilePartHeader_UnknownMimeFallsBack(t *testing.T) {
	h := filePartHeader("")
	if !strings.Contains(h.Get("Content-Disposition"), `filename="audio.webm"`) {
		t.Fatalf("unexpected disposition: %q", h.Get("Content-Disposition"))
	}
	if h.Get("Content-Type") != "application/octet-stream" {
		t.Fatalf("unexpected part type: %q", h.Get("Content-Type"))
	}
}
