package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jo-hoe/recipeimport/internal/config"
	"github.com/jo-hoe/recipeimport/internal/fetch"
)

func TestTranscribe_SendsMultipartForm(t *testing.T) {
	var gotAuth, gotModel, gotFormat, gotFilename, gotPartType string
	var gotAudio []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/v1/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer func() { _ = f.Close() }()
		gotFilename = hdr.Filename
		gotPartType = hdr.Header.Get("Content-Type")
		gotAudio, _ = io.ReadAll(f)
		_, _ = w.Write([]byte(`{"text":"  add two cups of flour ","language":"english"}`))
	}))
	defer ts.Close()

	c := New(fetch.New(fetch.Options{}), config.TranscriptionConfig{
		BaseURL: ts.URL + "/openai",
		APIKey:  "gsk",
		Model:   "whisper-large-v3",
		Timeout: 2 * time.Second,
	}, nil)

	tr, err := c.Transcribe(context.Background(), []byte("RIFF"), "clip.mp4")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "add two cups of flour" || tr.Language != "english" {
		t.Fatalf("transcript = %+v", tr)
	}
	if gotAuth != "Bearer gsk" || gotModel != "whisper-large-v3" || gotFormat != "verbose_json" {
		t.Fatalf("auth=%q model=%q format=%q", gotAuth, gotModel, gotFormat)
	}
	if gotFilename != "clip.mp4" || gotPartType != "audio/mp4" || string(gotAudio) != "RIFF" {
		t.Fatalf("file part: name=%q type=%q body=%q", gotFilename, gotPartType, gotAudio)
	}
}

func TestTranscribe_NotConfigured(t *testing.T) {
	c := New(fetch.New(fetch.Options{}), config.TranscriptionConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	if c.Enabled() {
		t.Fatalf("client without key should be disabled")
	}
	if _, err := c.Transcribe(context.Background(), []byte("x"), "a.mp3"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestTranscribe_Non200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer ts.Close()
	c := New(fetch.New(fetch.Options{}), config.TranscriptionConfig{BaseURL: ts.URL, APIKey: "k", Model: "m"}, nil)
	if _, err := c.Transcribe(context.Background(), []byte("x"), ""); !fetch.IsStatus(err, http.StatusRequestEntityTooLarge) {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestMimeType(t *testing.T) {
	cases := map[string]string{
		"a.m4a":  "audio/m4a",
		"a.MP3":  "audio/mpeg",
		"a.wav":  "audio/wav",
		"a.webm": "audio/webm",
		"a.ogg":  "audio/ogg",
		"a.mp4":  "audio/mp4",
		"a.flac": "audio/flac",
		"a.opus": "audio/mpeg",
		"noext":  "audio/mpeg",
	}
	for in, want := range cases {
		if got := MimeType(in); got != want {
			t.Fatalf("MimeType(%q) = %q, want %q", in, got, want)
		}
	}
}
