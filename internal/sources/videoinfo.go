package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
)

const defaultVideoInfoTimeout = 90 * time.Second

// VideoInfo is the subset of yt-dlp's JSON dump used for extraction.
type VideoInfo struct {
	ID                string                    `json:"id"`
	Title             string                    `json:"title"`
	Description       string                    `json:"description"`
	Uploader          string                    `json:"uploader"`
	Channel           string                    `json:"channel"`
	Thumbnail         string                    `json:"thumbnail"`
	Extractor         string                    `json:"extractor_key"`
	Subtitles         map[string][]CaptionTrack `json:"subtitles"`
	AutomaticCaptions map[string][]CaptionTrack `json:"automatic_captions"`
	Formats           []Format                  `json:"formats"`
	Comments          []Comment                 `json:"comments"`
}

// Author returns the uploader, falling back to the channel name.
func (v *VideoInfo) Author() string {
	if v.Uploader != "" {
		return v.Uploader
	}
	return v.Channel
}

// CaptionTrack is one downloadable subtitle rendition.
type CaptionTrack struct {
	Ext  string `json:"ext"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Format is one downloadable media rendition.
type Format struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	URL            string   `json:"url"`
	ACodec         string   `json:"acodec"`
	VCodec         string   `json:"vcodec"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	ABR            *float64 `json:"abr"`
}

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool {
	return f.ACodec != "" && f.ACodec != "none"
}

// AudioOnly reports whether the format is audio without video.
func (f Format) AudioOnly() bool {
	return f.HasAudio() && (f.VCodec == "" || f.VCodec == "none")
}

// Size returns the exact or approximate size in bytes, or 0 when unknown.
func (f Format) Size() int64 {
	switch {
	case f.Filesize != nil && *f.Filesize > 0:
		return int64(*f.Filesize)
	case f.FilesizeApprox != nil && *f.FilesizeApprox > 0:
		return int64(*f.FilesizeApprox)
	}
	return 0
}

// Comment is a viewer comment.
type Comment struct {
	Text      string `json:"text"`
	Author    string `json:"author"`
	LikeCount int    `json:"like_count"`
}

// CommandRunner executes name with args and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// YtDlp fetches video info by running yt-dlp.
type YtDlp struct {
	binary  string
	timeout time.Duration
	run     CommandRunner
}

// NewYtDlp creates a YtDlp. A nil runner executes the real binary.
func NewYtDlp(binary string, timeout time.Duration, run CommandRunner) *YtDlp {
	if binary == "" {
		binary = common.DefaultYtDlpPath
	}
	if timeout <= 0 {
		timeout = defaultVideoInfoTimeout
	}
	if run == nil {
		run = execRunner
	}
	return &YtDlp{binary: binary, timeout: timeout, run: run}
}

// Info dumps the video's metadata without downloading media. Comments are
// requested only when withComments is set since they slow the dump down.
func (y *YtDlp) Info(ctx context.Context, rawURL string, withComments bool) (*VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	args := []string{"--dump-single-json", "--skip-download", "--no-warnings", "--no-playlist"}
	if withComments {
		args = append(args, "--write-comments", "--extractor-args", "youtube:max_comments=100,all,100")
	}
	args = append(args, "--", rawURL)

	out, err := y.run(ctx, y.binary, args...)
	if err != nil {
		return nil, fmt.Errorf("video info: %w", err)
	}
	var info VideoInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse video info: %w", err)
	}
	return &info, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(truncate(stderr.String(), common.ErrorSnippetLimit)))
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
