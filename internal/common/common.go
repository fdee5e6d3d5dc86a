package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderJobID         = "X-Job-ID"
	HeaderContentType   = "Content-Type"
	HeaderCacheControl  = "Cache-Control"
	HeaderConnection    = "Connection"
	ContentTypeJSON     = "application/json"
	ContentTypeSSE      = "text/event-stream"
	CacheControlNoCache = "no-cache"
	ConnectionKeepAlive = "keep-alive"
)

// API paths
const (
	PathHealthz    = "/healthz"
	PathTranscribe = "/api/transcribe"
)

// Provider names
const (
	ProviderMock    = "mock"
	ProviderAIProxy = "aiproxy"
	ProviderYouTube = "youtube"
)

// Defaults and limits
const (
	DefaultTargetLanguage = "Khmer"
	DefaultServerURL      = "http://localhost:8080"
)

// User-visible fallback messages
const (
	MsgEnterURL         = "Please enter a YouTube URL"
	MsgRequestFailed    = "Failed to process video"
	MsgProcessingFailed = "Processing failed"
	MsgGenericError     = "An error occurred"
	MsgInvalidBody      = "invalid request body"
)
