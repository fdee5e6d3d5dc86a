package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/khmerscribe/internal/common"
)

// Default instruction templates. Both receive .Text; the summary also receives .Language.
const (
	DefaultCleanPrompt     = "Remove all sponsor messages, advertisements, promotional content, and unnecessary filler words from this transcription. Keep only the main content and valuable information:\n\n{{ .Text }}"
	DefaultSummarizePrompt = "Create a well-structured summary of the following content in {{ .Language }} language. Include main points, key takeaways, and organize it with clear sections:\n\n{{ .Text }}"
)

const (
	envConfigPath     = "KHMERSCRIBE_CONFIG"
	defaultConfigPath = "config.yaml"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Download DownloadConfig `yaml:"download"`
	LLM      LLMConfig      `yaml:"llm"`
	Prompts  PromptsConfig  `yaml:"prompts"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr            string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"` // 0 disables; streams outlive typical write timeouts
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownGrace   time.Duration `yaml:"shutdownGrace"`
	PipelineTimeout time.Duration `yaml:"pipelineTimeout"` // overall ceiling for one job
	MaxRequestSize  ByteSize      `yaml:"maxRequestSize"`
	LogLevel        string        `yaml:"logLevel"` // debug|info|warn|error
}

// DownloadConfig selects the video download provider.
type DownloadConfig struct {
	Provider       string        `yaml:"provider"` // "youtube" or "mock"
	MaxAudioSize   ByteSize      `yaml:"maxAudioSize"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// LLMConfig selects provider and provider-specific options.
type LLMConfig struct {
	Provider string          `yaml:"provider"` // "mock" or "aiproxy"
	Mock     MockSettings    `yaml:"mock"`
	AIProxy  AIProxySettings `yaml:"aiproxy"`
}

// MockSettings config for the mock LLM.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"`
	Prefix string        `yaml:"prefix"`
}

// AIProxySettings config for an OpenAI-compatible endpoint.
type AIProxySettings struct {
	BaseURL            string        `yaml:"baseUrl"` // e.g. https://api.openai.com
	APIKey             string        `yaml:"apiKey"`
	ChatModel          string        `yaml:"chatModel"`
	TranscriptionModel string        `yaml:"transcriptionModel"`
	Temperature        float32       `yaml:"temperature"` // optional
	MaxTokens          int           `yaml:"maxTokens"`   // optional
	Timeout            time.Duration `yaml:"timeout"`     // per call
}

// PromptsConfig holds the cleaning and summary instruction templates.
type PromptsConfig struct {
	Clean     string `yaml:"clean"`
	Summarize string `yaml:"summarize"`
	Language  string `yaml:"language"`
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	// Longer suffixes first so "MIB" is not read as "B".
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			if val < 0 {
				return 0, fmt.Errorf("negative size in %q", orig)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var KHMERSCRIBE_CONFIG, then default to "config.yaml".
// A missing default file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		if env := os.Getenv(envConfigPath); env != "" {
			path = env
		} else {
			path = defaultConfigPath
			explicit = false
		}
	}

	var cfg Config
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 - reading sanitized config file path is expected
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.PipelineTimeout == 0 {
		cfg.Server.PipelineTimeout = 300 * time.Second
	}
	if cfg.Server.MaxRequestSize == 0 {
		cfg.Server.MaxRequestSize = ByteSize(64 * 1024)
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}

	// Download defaults
	cfg.Download.Provider = strings.ToLower(strings.TrimSpace(cfg.Download.Provider))
	if cfg.Download.Provider == "" {
		cfg.Download.Provider = common.ProviderYouTube
	}
	if cfg.Download.MaxAudioSize == 0 {
		cfg.Download.MaxAudioSize = ByteSize(25 * 1024 * 1024) // Whisper upload limit
	}
	if cfg.Download.RequestTimeout == 0 {
		cfg.Download.RequestTimeout = 2 * time.Minute
	}

	// LLM defaults
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = common.ProviderMock
	}
	if cfg.LLM.Mock.Prefix == "" {
		cfg.LLM.Mock.Prefix = "Generated by Mock"
	}
	if cfg.LLM.Provider == common.ProviderAIProxy {
		if strings.TrimSpace(cfg.LLM.AIProxy.BaseURL) == "" {
			cfg.LLM.AIProxy.BaseURL = "https://api.openai.com"
		}
		if strings.TrimSpace(cfg.LLM.AIProxy.ChatModel) == "" {
			cfg.LLM.AIProxy.ChatModel = "gpt-4o"
		}
		if strings.TrimSpace(cfg.LLM.AIProxy.TranscriptionModel) == "" {
			cfg.LLM.AIProxy.TranscriptionModel = "whisper-1"
		}
		if cfg.LLM.AIProxy.Timeout == 0 {
			cfg.LLM.AIProxy.Timeout = 2 * time.Minute
		}
	}

	// Prompt defaults
	if strings.TrimSpace(cfg.Prompts.Clean) == "" {
		cfg.Prompts.Clean = DefaultCleanPrompt
	}
	if strings.TrimSpace(cfg.Prompts.Summarize) == "" {
		cfg.Prompts.Summarize = DefaultSummarizePrompt
	}
	if strings.TrimSpace(cfg.Prompts.Language) == "" {
		cfg.Prompts.Language = common.DefaultTargetLanguage
	}
}

func validate(cfg *Config) error {
	switch cfg.Download.Provider {
	case common.ProviderYouTube, common.ProviderMock:
	default:
		return fmt.Errorf("download.provider %q not supported", cfg.Download.Provider)
	}
	switch cfg.LLM.Provider {
	case common.ProviderMock:
	case common.ProviderAIProxy:
		if strings.TrimSpace(cfg.LLM.AIProxy.BaseURL) == "" {
			return fmt.Errorf("llm.aiproxy.baseUrl is required")
		}
	default:
		return fmt.Errorf("llm.provider %q not supported", cfg.LLM.Provider)
	}
	if _, err := ParseLogLevel(cfg.Server.LogLevel); err != nil {
		return err
	}
	if cfg.Server.PipelineTimeout < 0 {
		return fmt.Errorf("server.pipelineTimeout must not be negative")
	}
	if _, err := template.New("clean").Parse(cfg.Prompts.Clean); err != nil {
		return fmt.Errorf("prompts.clean: %w", err)
	}
	if _, err := template.New("summarize").Parse(cfg.Prompts.Summarize); err != nil {
		return fmt.Errorf("prompts.summarize: %w", err)
	}
	return nil
}
