package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/metadata"
	"github.com/jo-hoe/recipeimport/internal/metrics"
	"github.com/jo-hoe/recipeimport/internal/sources"
)

// ShortVideoSource looks up clips and their audio.
type ShortVideoSource interface {
	Info(ctx context.Context, rawURL string) (*sources.ShortVideoInfo, error)
	DownloadAudio(ctx context.Context, info *sources.ShortVideoInfo) ([]byte, error)
}

// ShortVideo extracts clips from short-video platforms.
type ShortVideo struct {
	source      ShortVideoSource
	pages       *fetch.Client
	pageTimeout time.Duration
	images      ImagePersister
	audio       audioTranscriber
	log         *slog.Logger
}

// ShortVideoOptions configures NewShortVideo.
type ShortVideoOptions struct {
	Source      ShortVideoSource
	Pages       *fetch.Client // used when the API fails
	PageTimeout time.Duration
	Images      ImagePersister
	Transcriber Transcriber
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewShortVideo creates a ShortVideo adapter.
func NewShortVideo(opts ShortVideoOptions) *ShortVideo {
	log := logging.OrDiscard(opts.Logger).With("component", "extraction", "adapter", "short_video")
	return &ShortVideo{
		source:      opts.Source,
		pages:       opts.Pages,
		pageTimeout: opts.PageTimeout,
		images:      opts.Images,
		audio:       audioTranscriber{t: opts.Transcriber, metrics: opts.Metrics, log: log},
		log:         log,
	}
}

// Extract implements Adapter.
func (a *ShortVideo) Extract(ctx context.Context, req Request) (Content, error) {
	req.progress(common.StageFetchingInfo, "Fetching video information...")

	info, err := a.source.Info(ctx, req.URL)
	if err != nil {
		a.log.Warn("short video api failed, scraping page", "recipe_id", req.RecipeID, "err", err)
		c, scrapeErr := a.scrape(ctx, req.URL)
		if scrapeErr != nil {
			return Content{}, fmt.Errorf("fetch video information: %w", err)
		}
		if c.ImageURL != "" {
			req.progress(common.StageDownloadingImage, "Saving thumbnail...")
			c.Image = StartImage(ctx, a.images, c.ImageURL, req.RecipeID)
		}
		return c, nil
	}

	c := Content{
		Title:       info.Title,
		Description: info.Description,
		SourceName:  info.Author,
		ImageURL:    info.Thumbnail,
	}
	if c.ImageURL != "" {
		req.progress(common.StageDownloadingImage, "Saving thumbnail...")
		c.Image = StartImage(ctx, a.images, c.ImageURL, req.RecipeID)
	}

	if IsSparse(c.Title + "\n" + c.Description) {
		req.progress(common.StageTranscribing, "Transcribing audio...")
		audio, err := a.source.DownloadAudio(ctx, info)
		if err != nil {
			a.log.Warn("short video audio unavailable", "recipe_id", req.RecipeID, "err", err)
		} else {
			c.Transcript = a.audio.transcribe(ctx, audio, "audio.mp3")
		}
	}
	return c, nil
}

// scrape reads the clip page's meta tags when the API is unavailable.
func (a *ShortVideo) scrape(ctx context.Context, rawURL string) (Content, error) {
	if a.pages == nil {
		return Content{}, fmt.Errorf("no page fetcher")
	}
	resp, err := a.pages.Get(ctx, rawURL, a.pageTimeout, nil)
	if err != nil {
		return Content{}, err
	}
	page := string(resp.Body)
	desc := firstNonEmpty(metadata.MetaContent(page, "og:description"), metadata.MetaContent(page, "description"))
	title := metadata.MetaContent(page, "og:title")
	if strings.TrimSpace(desc+title) == "" {
		return Content{}, fmt.Errorf("page has no description")
	}
	return Content{
		Title:       title,
		Description: desc,
		SourceName:  metadata.Hostname(rawURL),
		ImageURL:    metadata.MetaContent(page, "og:image"),
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
