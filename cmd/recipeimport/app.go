package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/jo-hoe/recipeimport/internal/adapters"
	"github.com/jo-hoe/recipeimport/internal/config"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/jobs"
	"github.com/jo-hoe/recipeimport/internal/llm"
	"github.com/jo-hoe/recipeimport/internal/llm/mock"
	"github.com/jo-hoe/recipeimport/internal/llm/openrouter"
	"github.com/jo-hoe/recipeimport/internal/metadata"
	"github.com/jo-hoe/recipeimport/internal/metrics"
	"github.com/jo-hoe/recipeimport/internal/pipeline"
	"github.com/jo-hoe/recipeimport/internal/platform"
	"github.com/jo-hoe/recipeimport/internal/recipes"
	"github.com/jo-hoe/recipeimport/internal/sources"
	"github.com/jo-hoe/recipeimport/internal/storage"
	"github.com/jo-hoe/recipeimport/internal/structured"
	"github.com/jo-hoe/recipeimport/internal/transcribe"
)

// app holds the wired components shared by serve and extract.
type app struct {
	log      *slog.Logger
	cfg      *config.Config
	metrics  *metrics.Metrics
	jobs     *jobs.Store
	records  recipes.Store
	runner   *jobs.Runner
	worker   *pipeline.Worker
	metadata *metadata.Fetcher
	images   *storage.ImagePersister

	blobPrefix  string
	blobHandler http.Handler
}

func newApp(cfg *config.Config, log *slog.Logger, records recipes.Store) (*app, error) {
	client := fetch.New(fetch.Options{
		UserAgent:   cfg.Fetch.UserAgent,
		RateLimit:   cfg.Fetch.RateLimit,
		RateBurst:   cfg.Fetch.RateBurst,
		MaxBodySize: int64(cfg.Fetch.MaxBodySize), // #nosec G115 - bounded by config parsing
	})
	m := metrics.New()

	a := &app{log: log, cfg: cfg, metrics: m, records: records}

	blob, err := a.openBlob()
	if err != nil {
		return nil, err
	}
	a.images = storage.NewImagePersister(client, blob, cfg.Fetch.ImageTimeout, log)
	a.metadata = metadata.NewFetcher(client, cfg.Fetch.MetadataTimeout, nil, log)

	var tr adapters.Transcriber
	if t := transcribe.New(client, cfg.Transcription, log); t.Enabled() {
		tr = t
	} else {
		log.Warn("transcription not configured; sparse videos use their description only")
	}

	set := adapters.NewSet()
	set.Register(adapters.NewShortVideo(adapters.ShortVideoOptions{
		Source:      sources.NewShortVideoClient(client, cfg.Fetch.ShortVideoAPIURL, cfg.Fetch.ShortVideoTimeout, cfg.Fetch.AudioTimeout),
		Pages:       client,
		PageTimeout: cfg.Fetch.PageTimeout,
		Images:      a.images,
		Transcriber: tr,
		Metrics:     m,
		Logger:      log,
	}), platform.TikTok)
	set.Register(adapters.NewLongVideo(adapters.LongVideoOptions{
		Info:           sources.NewYtDlp(cfg.Fetch.YtDlpPath, cfg.Fetch.VideoInfoTimeout, nil),
		HTTP:           client,
		CaptionTimeout: cfg.Fetch.PageTimeout,
		AudioTimeout:   cfg.Fetch.AudioTimeout,
		Images:         a.images,
		Transcriber:    tr,
		Metrics:        m,
		Logger:         log,
	}), platform.YouTube, platform.Instagram)
	set.Register(adapters.NewWebsite(client, cfg.Fetch.PageTimeout, log), platform.Website)

	a.jobs = jobs.NewStore(cfg.Server.JobRetention, log)
	a.runner = jobs.NewRunner(log)
	a.worker = pipeline.New(log, a.jobs, records, set, structured.NewExtractor(newLLMClient(cfg.LLM, log), log), m)
	return a, nil
}

func (a *app) openBlob() (storage.Blob, error) {
	switch a.cfg.Blob.Provider {
	case "supabase":
		s := a.cfg.Blob.Supabase
		return storage.NewSupabaseStore(s.BaseURL, s.ServiceKey, s.Bucket, s.Timeout), nil
	case "local":
		l := a.cfg.Blob.Local
		store := storage.NewLocalStore(l.Dir, l.PublicBaseURL)
		if u, err := url.Parse(l.PublicBaseURL); err == nil && strings.Trim(u.Path, "/") != "" {
			a.blobPrefix = "/" + strings.Trim(u.Path, "/")
			a.blobHandler = store.Handler(a.blobPrefix + "/")
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported blob provider: %s", a.cfg.Blob.Provider)
	}
}

// newLLMClient returns nil when no usable model is configured, which makes
// the extractor use its fallback.
func newLLMClient(cfg config.LLMConfig, log *slog.Logger) llm.Client {
	switch cfg.Provider {
	case "mock":
		return mock.New(cfg.Mock)
	case "openrouter":
		if strings.TrimSpace(cfg.OpenRouter.APIKey) == "" {
			log.Warn("llm api key missing; using fallback extraction")
			return nil
		}
		return openrouter.New(cfg.OpenRouter)
	default:
		return nil
	}
}

func openRecords(ctx context.Context, cfg *config.Config, log *slog.Logger) (recipes.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		p := cfg.Store.Postgres
		store, err := recipes.OpenPostgres(ctx, recipes.PostgresConfig{
			DSN:             p.DSN,
			MaxConns:        p.MaxConns,
			MinConns:        p.MinConns,
			MaxConnLifetime: p.MaxConnLifetime,
			MaxConnIdleTime: p.MaxConnIdleTime,
			DialTimeout:     p.DialTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "sqlite":
		store, err := recipes.NewSQLiteStore(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
