package aiproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/khmerscribe/internal/common"
	"github.com/jo-hoe/khmerscribe/internal/config"
	"github.com/jo-hoe/khmerscribe/internal/llm"
	"github.com/jo-hoe/khmerscribe/internal/media"
)

var _ llm.Client = (*Client)(nil)

const (
	// Headers
	headerAuthorization = "Authorization"

	// Auth
	authSchemeBearer = "Bearer"

	// Endpoints
	endpointChatCompletions    = "v1/chat/completions"
	endpointAudioTranscription = "v1/audio/transcriptions"

	// Multipart fields
	fieldFile           = "file"
	fieldModel          = "model"
	fieldResponseFormat = "response_format"
	responseFormatJSON  = "json"
	audioBaseName       = "audio"

	// Timeouts and limits
	defaultTimeout    = 2 * time.Minute
	errorSnippetLimit = 400
)

// Whisper infers the container from the file extension.
var audioExtensions = map[string]string{
	"audio/webm":  ".webm",
	"audio/mp4":   ".m4a",
	"audio/m4a":   ".m4a",
	"audio/mpeg":  ".mp3",
	"audio/ogg":   ".ogg",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/flac":  ".flac",
}

// Role represents the sender role for a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Client implements llm.Client against an OpenAI-compatible API.
type Client struct {
	httpClient         *http.Client
	baseURL            string
	apiKey             string
	chatModel          string
	transcriptionModel string
	temperature        *float32
	maxTokens          *int
}

// New creates a new AI Proxy LLM client.
func New(cfg config.AIProxySettings) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient:         &http.Client{Timeout: timeout},
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:             cfg.APIKey,
		chatModel:          cfg.ChatModel,
		transcriptionModel: cfg.TranscriptionModel,
		temperature:        optionalFloat32(cfg.Temperature),
		maxTokens:          optionalInt(cfg.MaxTokens),
	}
}

// Generate sends prompt as a single user message and returns the first choice.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	reqBody := chatCompletionRequest{
		Model:       c.chatModel,
		Messages:    []chatMessage{{Role: RoleUser, Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	respBytes, err := c.post(ctx, endpointChatCompletions, common.ContentTypeJSON, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}

	var comp chatCompletionResponse
	if err := json.Unmarshal(respBytes, &comp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(comp.Choices) == 0 || strings.TrimSpace(comp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty completion")
	}
	return comp.Choices[0].Message.Content, nil
}

// Transcribe uploads the audio payload to the transcription endpoint.
func (c *Client) Transcribe(ctx context.Context, audio media.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("audio is empty")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField(fieldModel, c.transcriptionModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.WriteField(fieldResponseFormat, responseFormatJSON); err != nil {
		return "", fmt.Errorf("write format field: %w", err)
	}
	part, err := mw.CreatePart(filePartHeader(audio.MimeType))
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", fmt.Errorf("write file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	respBytes, err := c.post(ctx, endpointAudioTranscription, mw.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(respBytes, &tr); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if strings.TrimSpace(tr.Text) == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return tr.Text, nil
}

func (c *Client) post(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	u, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(common.HeaderContentType, contentType)
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set(headerAuthorization, authSchemeBearer+" "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("aiproxy status %d: %s", resp.StatusCode, truncate(apiErrorMessage(respBytes), errorSnippetLimit))
	}
	return respBytes, nil
}

func filePartHeader(mimeType string) textproto.MIMEHeader {
	mt := media.BareMediaType(mimeType)
	ext, ok := audioExtensions[mt]
	if !ok {
		ext = ".webm"
	}
	if mt == "" {
		mt = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fieldFile, audioBaseName+ext))
	h.Set(common.HeaderContentType, mt)
	return h
}

// apiErrorMessage prefers the OpenAI error.message field over the raw body.
func apiErrorMessage(body []byte) string {
	var e apiErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func optionalFloat32(v float32) *float32 {
	if v == 0 {
		return nil
	}
	return &v
}

func optionalInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// OpenAI-compatible request/response types

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   *chatCompletionUsage   `json:"usage,omitempty"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      responseMsg `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type responseMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
