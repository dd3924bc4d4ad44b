package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/metrics"
	"github.com/jo-hoe/recipeimport/internal/platform"
	"github.com/jo-hoe/recipeimport/internal/sources"
)

// Containers the transcription service accepts for audio-only streams.
var supportedAudioExts = map[string]bool{
	"m4a": true, "mp3": true, "webm": true, "ogg": true, "wav": true, "flac": true, "mp4": true,
}

const videoAudioExt = "mp4"

// VideoInfoSource dumps a video's metadata.
type VideoInfoSource interface {
	Info(ctx context.Context, rawURL string, withComments bool) (*sources.VideoInfo, error)
}

// LongVideo extracts videos whose info comes from yt-dlp.
type LongVideo struct {
	info           VideoInfoSource
	downloads      *fetch.Client
	captionTimeout time.Duration
	audioTimeout   time.Duration
	images         ImagePersister
	audio          audioTranscriber
	log            *slog.Logger
}

// LongVideoOptions configures NewLongVideo.
type LongVideoOptions struct {
	Info           VideoInfoSource
	HTTP           *fetch.Client // captions and audio downloads
	CaptionTimeout time.Duration
	AudioTimeout   time.Duration
	Images         ImagePersister
	Transcriber    Transcriber
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// NewLongVideo creates a LongVideo adapter.
func NewLongVideo(opts LongVideoOptions) *LongVideo {
	log := logging.OrDiscard(opts.Logger).With("component", "extraction", "adapter", "long_video")
	return &LongVideo{
		info:           opts.Info,
		downloads:      opts.HTTP,
		captionTimeout: opts.CaptionTimeout,
		audioTimeout:   opts.AudioTimeout,
		images:         opts.Images,
		audio:          audioTranscriber{t: opts.Transcriber, metrics: opts.Metrics, log: log},
		log:            log,
	}
}

// alwaysTranscribe reports whether the platform's descriptions are too
// thin to be worth checking first.
func alwaysTranscribe(p platform.Platform) bool { return p == platform.Instagram }

func minesComments(p platform.Platform) bool { return p == platform.YouTube }

// Extract implements Adapter.
func (a *LongVideo) Extract(ctx context.Context, req Request) (Content, error) {
	req.progress(common.StageFetchingInfo, "Fetching video information...")

	info, err := a.info.Info(ctx, req.URL, minesComments(req.Platform))
	if err != nil {
		return Content{}, fmt.Errorf("fetch video information: %w", err)
	}

	c := Content{
		Title:       info.Title,
		Description: info.Description,
		SourceName:  info.Author(),
		ImageURL:    info.Thumbnail,
	}
	if c.ImageURL != "" {
		req.progress(common.StageDownloadingImage, "Saving thumbnail...")
		c.Image = StartImage(ctx, a.images, c.ImageURL, req.RecipeID)
	}

	if minesComments(req.Platform) {
		if mined := MineComments(info.Comments, common.MaxRecipeComments); len(mined) > 0 {
			c.Description = strings.TrimSpace(c.Description + "\n\nComments:\n" + strings.Join(mined, "\n"))
		}
	}

	tracks := sources.EnglishCaptionTracks(info)
	transcribeNow := alwaysTranscribe(req.Platform)

	if len(tracks) > 0 {
		req.progress(common.StageExtractingCaptions, "Extracting captions...")
	}
	if transcribeNow {
		req.progress(common.StageTranscribing, "Transcribing audio...")
	}

	// Captions and transcription are independent; neither failure aborts
	// the other, so the group never returns an error.
	var g errgroup.Group
	g.Go(func() error {
		if len(tracks) == 0 {
			return nil
		}
		text, err := sources.FetchCaptions(ctx, a.downloads, tracks, a.captionTimeout)
		if err != nil {
			a.log.Warn("captions unavailable", "recipe_id", req.RecipeID, "err", err)
		}
		c.Captions = text
		return nil
	})
	if transcribeNow {
		g.Go(func() error {
			c.Transcript = a.transcribeVideo(ctx, req.RecipeID, info)
			return nil
		})
	}
	_ = g.Wait()

	if !transcribeNow && IsSparse(c.Captions+"\n"+c.Description) {
		req.progress(common.StageTranscribing, "Transcribing audio...")
		c.Transcript = a.transcribeVideo(ctx, req.RecipeID, info)
	}
	return c, nil
}

func (a *LongVideo) transcribeVideo(ctx context.Context, recipeID string, info *sources.VideoInfo) string {
	f, ext, err := SelectAudioFormat(info.Formats)
	if err != nil {
		a.log.Warn("no audio format", "recipe_id", recipeID, "err", err)
		return ""
	}
	resp, err := a.downloads.Get(ctx, f.URL, a.audioTimeout, nil)
	if err != nil {
		a.log.Warn("audio download failed", "recipe_id", recipeID, "format", f.FormatID, "err", err)
		return ""
	}
	return a.audio.transcribe(ctx, resp.Body, "audio."+ext)
}

// SelectAudioFormat picks the smallest audio-only stream in a supported
// container. Without one it falls back to the smallest format carrying both
// audio and video, hinted as mp4. Formats of unknown size rank last.
func SelectAudioFormat(formats []sources.Format) (sources.Format, string, error) {
	var best *sources.Format
	for i := range formats {
		f := &formats[i]
		if f.URL == "" || !f.AudioOnly() || !supportedAudioExts[strings.ToLower(f.Ext)] {
			continue
		}
		if best == nil || smaller(*f, *best) {
			best = f
		}
	}
	if best != nil {
		return *best, strings.ToLower(best.Ext), nil
	}
	for i := range formats {
		f := &formats[i]
		if f.URL == "" || !f.HasAudio() || f.AudioOnly() {
			continue
		}
		if best == nil || smaller(*f, *best) {
			best = f
		}
	}
	if best != nil {
		return *best, videoAudioExt, nil
	}
	return sources.Format{}, "", errors.New("no format with audio")
}

func smaller(a, b sources.Format) bool {
	as, bs := a.Size(), b.Size()
	switch {
	case as == 0:
		return false
	case bs == 0:
		return true
	}
	return as < bs
}

// MineComments returns up to limit comments that look like they carry
// recipe details, in their original order.
func MineComments(comments []sources.Comment, limit int) []string {
	var out []string
	for _, cm := range comments {
		if len(out) >= limit {
			break
		}
		text := strings.TrimSpace(cm.Text)
		if text != "" && KeywordHits(text) > 0 {
			out = append(out, text)
		}
	}
	return out
}
