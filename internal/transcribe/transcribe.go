// Package transcribe sends audio to an OpenAI-compatible speech-to-text
// endpoint (Groq Whisper by default).
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/config"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/logging"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("transcription not configured")

const (
	endpointTranscriptions = "v1/audio/transcriptions"
	responseFormatVerbose  = "verbose_json"
	defaultFilename        = "audio.m4a"
	defaultMime            = "audio/mpeg"
)

var mimeTypes = map[string]string{
	"m4a":  "audio/m4a",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"webm": "audio/webm",
	"ogg":  "audio/ogg",
	"mp4":  "audio/mp4",
	"flac": "audio/flac",
}

// Transcript is the recognised text of an audio file.
type Transcript struct {
	Text     string
	Language string
}

// Client calls the transcription endpoint.
type Client struct {
	fetch   *fetch.Client
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Client.
func New(client *fetch.Client, cfg config.TranscriptionConfig, logger *slog.Logger) *Client {
	return &Client{
		fetch:   client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     logging.OrDiscard(logger).With("component", "transcription"),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Transcribe uploads audio as filename; the extension selects the declared
// mime type.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (Transcript, error) {
	if !c.Enabled() {
		return Transcript{}, ErrNotConfigured
	}
	if len(audio) == 0 {
		return Transcript{}, errors.New("audio is empty")
	}
	if filename == "" {
		filename = defaultFilename
	}

	body, contentType, err := c.buildForm(audio, filename)
	if err != nil {
		return Transcript{}, err
	}
	u, err := url.JoinPath(c.baseURL, endpointTranscriptions)
	if err != nil {
		return Transcript{}, fmt.Errorf("join url: %w", err)
	}

	c.log.Info("transcribing audio", "bytes", len(audio), "file", filename)
	resp, err := c.fetch.Do(ctx, http.MethodPost, u, body, c.timeout, map[string]string{
		common.HeaderAuthorization: common.AuthSchemeBearer + " " + c.apiKey,
		common.HeaderContentType:   contentType,
	})
	if err != nil {
		return Transcript{}, fmt.Errorf("transcription request: %w", err)
	}

	var out struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return Transcript{}, fmt.Errorf("parse transcription: %w", err)
	}
	c.log.Info("transcription complete", "chars", len(out.Text), "language", out.Language)
	return Transcript{Text: strings.TrimSpace(out.Text), Language: out.Language}, nil
}

func (c *Client) buildForm(audio []byte, filename string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set(common.HeaderContentType, MimeType(filename))
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.WriteField("model", c.model); err != nil {
		return nil, "", fmt.Errorf("write model field: %w", err)
	}
	if err := w.WriteField("response_format", responseFormatVerbose); err != nil {
		return nil, "", fmt.Errorf("write format field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// MimeType maps a filename extension to an audio mime type.
func MimeType(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	return defaultMime
}
