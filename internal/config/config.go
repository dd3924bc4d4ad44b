package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/recipeimport/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Store         StoreConfig         `yaml:"store"`
	Blob          BlobConfig          `yaml:"blob"`
	LLM           LLMConfig           `yaml:"llm"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Fetch         FetchConfig         `yaml:"fetch"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr            string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"` // cleared per response for event streams
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxBodySize     ByteSize      `yaml:"maxBodySize"`
	ShutdownGrace   time.Duration `yaml:"shutdownGrace"`   // time to wait for extractions before forced stop
	JobRetention    time.Duration `yaml:"jobRetention"`    // how long finished jobs stay in memory
	StreamHeartbeat time.Duration `yaml:"streamHeartbeat"` // interval of keep-alive comments on streams
	LogLevel        string        `yaml:"logLevel"`        // debug|info|warn|error
	LogFormat       string        `yaml:"logFormat"`       // text|json|auto
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Provider string             `yaml:"provider"` // "supabase" or "static"
	Supabase SupabaseAuthConfig `yaml:"supabase"`
	Static   StaticAuthConfig   `yaml:"static"`
}

// SupabaseAuthConfig verifies tokens against a hosted auth endpoint.
type SupabaseAuthConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	AnonKey string        `yaml:"anonKey"`
	Timeout time.Duration `yaml:"timeout"`
}

// StaticAuthConfig maps fixed tokens to user ids (local development).
type StaticAuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

// StoreConfig selects the durable recipe record store.
type StoreConfig struct {
	Driver   string         `yaml:"driver"` // "sqlite" or "postgres"
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig for the embedded store.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig for the pooled Postgres store.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
}

// BlobConfig selects where persisted images go.
type BlobConfig struct {
	Provider string             `yaml:"provider"` // "supabase" or "local"
	Supabase SupabaseBlobConfig `yaml:"supabase"`
	Local    LocalBlobConfig    `yaml:"local"`
}

// SupabaseBlobConfig for the storage REST API.
type SupabaseBlobConfig struct {
	BaseURL    string        `yaml:"baseUrl"`
	ServiceKey string        `yaml:"serviceKey"`
	Bucket     string        `yaml:"bucket"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LocalBlobConfig stores blobs on disk and serves them under PublicBaseURL.
type LocalBlobConfig struct {
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"publicBaseUrl"`
}

// LLMConfig selects provider and provider-specific options.
type LLMConfig struct {
	Provider   string             `yaml:"provider"` // "openrouter" or "mock"
	OpenRouter OpenRouterSettings `yaml:"openrouter"`
	Mock       MockSettings       `yaml:"mock"`
}

// OpenRouterSettings config for an OpenAI-compatible chat completions endpoint.
type OpenRouterSettings struct {
	BaseURL     string        `yaml:"baseUrl"`
	APIKey      string        `yaml:"apiKey"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Referer     string        `yaml:"referer"` // sent as HTTP-Referer
	Title       string        `yaml:"title"`   // sent as X-Title
}

// MockSettings config for the mock LLM.
type MockSettings struct {
	Delay    time.Duration `yaml:"delay"`
	Response string        `yaml:"response"` // raw completion returned verbatim
}

// TranscriptionConfig for the speech-to-text service.
type TranscriptionConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	APIKey  string        `yaml:"apiKey"` // transcription is skipped when empty
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// FetchConfig controls outbound content fetching.
type FetchConfig struct {
	UserAgent         string        `yaml:"userAgent"`
	RateLimit         float64       `yaml:"rateLimit"` // requests per second, 0 disables limiting
	RateBurst         int           `yaml:"rateBurst"`
	MaxBodySize       ByteSize      `yaml:"maxBodySize"`
	MetadataTimeout   time.Duration `yaml:"metadataTimeout"`
	ImageTimeout      time.Duration `yaml:"imageTimeout"`
	PageTimeout       time.Duration `yaml:"pageTimeout"`
	ShortVideoTimeout time.Duration `yaml:"shortVideoTimeout"`
	AudioTimeout      time.Duration `yaml:"audioTimeout"`
	VideoInfoTimeout  time.Duration `yaml:"videoInfoTimeout"`
	ShortVideoAPIURL  string        `yaml:"shortVideoApiUrl"`
	YtDlpPath         string        `yaml:"ytDlpPath"`
}

// MetricsConfig exposes Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
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
	units := []unit{
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
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
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var RECIPEIMPORT_CONFIG, then default to "config.yaml".
func Load(path string) (*Config, error) {
	if path == "" {
		if env := os.Getenv("RECIPEIMPORT_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Store.Driver == "sqlite" {
		if dir := filepath.Dir(cfg.Store.SQLite.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("ensure sqlite dir: %w", err)
			}
		}
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for local runs.
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
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = ByteSize(1024 * 1024)
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}
	if cfg.Server.JobRetention == 0 {
		cfg.Server.JobRetention = 10 * time.Minute
	}
	if cfg.Server.StreamHeartbeat == 0 {
		cfg.Server.StreamHeartbeat = 15 * time.Second
	}
	if strings.TrimSpace(cfg.Server.LogLevel) == "" {
		cfg.Server.LogLevel = "info"
	}
	if strings.TrimSpace(cfg.Server.LogFormat) == "" {
		cfg.Server.LogFormat = "auto"
	}

	// Auth defaults
	cfg.Auth.Provider = strings.ToLower(strings.TrimSpace(cfg.Auth.Provider))
	if cfg.Auth.Provider == "" {
		cfg.Auth.Provider = "supabase"
	}
	if cfg.Auth.Supabase.Timeout == 0 {
		cfg.Auth.Supabase.Timeout = 5 * time.Second
	}

	// Store defaults
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = filepath.Join("data", "recipeimport.db")
	}
	if cfg.Store.Postgres.MaxConns == 0 {
		cfg.Store.Postgres.MaxConns = 10
	}
	if cfg.Store.Postgres.MaxConnLifetime == 0 {
		cfg.Store.Postgres.MaxConnLifetime = time.Hour
	}
	if cfg.Store.Postgres.MaxConnIdleTime == 0 {
		cfg.Store.Postgres.MaxConnIdleTime = 30 * time.Minute
	}
	if cfg.Store.Postgres.DialTimeout == 0 {
		cfg.Store.Postgres.DialTimeout = 5 * time.Second
	}

	// Blob defaults
	cfg.Blob.Provider = strings.ToLower(strings.TrimSpace(cfg.Blob.Provider))
	if cfg.Blob.Provider == "" {
		cfg.Blob.Provider = "local"
	}
	if cfg.Blob.Supabase.Bucket == "" {
		cfg.Blob.Supabase.Bucket = common.RecipeImagesBucket
	}
	if cfg.Blob.Supabase.Timeout == 0 {
		cfg.Blob.Supabase.Timeout = 30 * time.Second
	}
	if cfg.Blob.Local.Dir == "" {
		cfg.Blob.Local.Dir = filepath.Join("data", "blobs")
	}

	// LLM defaults
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "openrouter"
	}
	or := &cfg.LLM.OpenRouter
	if strings.TrimSpace(or.BaseURL) == "" {
		or.BaseURL = "https://openrouter.ai/api"
	}
	if strings.TrimSpace(or.Model) == "" {
		or.Model = "openai/gpt-4o-mini"
	}
	if or.Temperature == 0 {
		or.Temperature = 0.3
	}
	if or.MaxTokens == 0 {
		or.MaxTokens = 2000
	}
	if or.Timeout == 0 {
		or.Timeout = 30 * time.Second
	}
	if or.Referer == "" {
		or.Referer = "https://cooked.app"
	}
	if or.Title == "" {
		or.Title = "Cooked Recipe Import"
	}

	// Transcription defaults
	if strings.TrimSpace(cfg.Transcription.BaseURL) == "" {
		cfg.Transcription.BaseURL = "https://api.groq.com/openai"
	}
	if cfg.Transcription.Model == "" {
		cfg.Transcription.Model = "whisper-large-v3"
	}
	if cfg.Transcription.Timeout == 0 {
		cfg.Transcription.Timeout = 120 * time.Second
	}

	// Fetch defaults
	f := &cfg.Fetch
	if f.UserAgent == "" {
		f.UserAgent = common.DefaultUserAgent
	}
	if f.RateBurst <= 0 {
		f.RateBurst = 4
	}
	if f.MaxBodySize == 0 {
		f.MaxBodySize = ByteSize(common.DefaultMaxBodySize)
	}
	if f.MetadataTimeout == 0 {
		f.MetadataTimeout = 3 * time.Second
	}
	if f.ImageTimeout == 0 {
		f.ImageTimeout = 15 * time.Second
	}
	if f.PageTimeout == 0 {
		f.PageTimeout = 10 * time.Second
	}
	if f.ShortVideoTimeout == 0 {
		f.ShortVideoTimeout = 30 * time.Second
	}
	if f.AudioTimeout == 0 {
		f.AudioTimeout = 60 * time.Second
	}
	if f.VideoInfoTimeout == 0 {
		f.VideoInfoTimeout = 90 * time.Second
	}
	if f.ShortVideoAPIURL == "" {
		f.ShortVideoAPIURL = common.DefaultShortVideoAPIURL
	}
	if f.YtDlpPath == "" {
		f.YtDlpPath = common.DefaultYtDlpPath
	}

	// Metrics defaults
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = common.PathMetrics
	}
}

func validate(cfg *Config) error {
	switch cfg.Auth.Provider {
	case "supabase":
		if strings.TrimSpace(cfg.Auth.Supabase.BaseURL) == "" {
			return errors.New("auth.supabase.baseUrl is required")
		}
	case "static":
		if len(cfg.Auth.Static.Tokens) == 0 {
			return errors.New("auth.static.tokens must not be empty")
		}
	default:
		return fmt.Errorf("unsupported auth provider %q", cfg.Auth.Provider)
	}

	switch cfg.Store.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(cfg.Store.Postgres.DSN) == "" {
			return errors.New("store.postgres.dsn is required")
		}
		if cfg.Store.Postgres.MinConns > cfg.Store.Postgres.MaxConns {
			return errors.New("store.postgres.minConns exceeds maxConns")
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	switch cfg.Blob.Provider {
	case "supabase":
		if strings.TrimSpace(cfg.Blob.Supabase.BaseURL) == "" {
			return errors.New("blob.supabase.baseUrl is required")
		}
		if strings.TrimSpace(cfg.Blob.Supabase.ServiceKey) == "" {
			return errors.New("blob.supabase.serviceKey is required")
		}
	case "local":
		if strings.TrimSpace(cfg.Blob.Local.PublicBaseURL) == "" {
			return errors.New("blob.local.publicBaseUrl is required")
		}
	default:
		return fmt.Errorf("unsupported blob provider %q", cfg.Blob.Provider)
	}

	switch cfg.LLM.Provider {
	case "openrouter", "mock":
	default:
		return fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}

	if cfg.Fetch.RateLimit < 0 {
		return errors.New("fetch.rateLimit must not be negative")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/': %q", cfg.Metrics.Path)
	}
	return nil
}
