package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/platform"
)

// Metadata is the best-effort preview of an import source.
type Metadata struct {
	Title      string
	SourceName string
	ImageURL   string // empty when unknown
}

// DefaultOEmbedEndpoints maps video platforms to their oEmbed endpoint. The
// source URL is appended query-escaped in place of %s.
var DefaultOEmbedEndpoints = map[platform.Platform]string{
	platform.YouTube:   "https://www.youtube.com/oembed?url=%s&format=json",
	platform.TikTok:    "https://www.tiktok.com/oembed?url=%s",
	platform.Instagram: "https://graph.facebook.com/v18.0/instagram_oembed?url=%s&access_token=client",
}

// Fetcher resolves quick metadata. It never returns an error.
type Fetcher struct {
	client    *fetch.Client
	timeout   time.Duration
	endpoints map[platform.Platform]string
	log       *slog.Logger
}

// NewFetcher creates a Fetcher. A nil endpoints map uses DefaultOEmbedEndpoints.
func NewFetcher(client *fetch.Client, timeout time.Duration, endpoints map[platform.Platform]string, log *slog.Logger) *Fetcher {
	if endpoints == nil {
		endpoints = DefaultOEmbedEndpoints
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Fetcher{client: client, timeout: timeout, endpoints: endpoints, log: logging.OrDiscard(log)}
}

// Fetch tries oEmbed for video platforms, then the page's Open Graph tags,
// then placeholders.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, p platform.Platform) Metadata {
	if p.IsVideo() {
		if md, ok := f.fetchOEmbed(ctx, rawURL, p); ok {
			return md
		}
	}
	return f.fetchOpenGraph(ctx, rawURL)
}

type oembedResponse struct {
	Title        any `json:"title"`
	AuthorName   any `json:"author_name"`
	ProviderName any `json:"provider_name"`
	ThumbnailURL any `json:"thumbnail_url"`
}

func (f *Fetcher) fetchOEmbed(ctx context.Context, rawURL string, p platform.Platform) (Metadata, bool) {
	tmpl, ok := f.endpoints[p]
	if !ok {
		return Metadata{}, false
	}
	endpoint := fmt.Sprintf(tmpl, url.QueryEscape(rawURL))
	resp, err := f.client.Get(ctx, endpoint, f.timeout, nil)
	if err != nil {
		f.log.Debug("oembed unavailable", "platform", p, "err", err)
		return Metadata{}, false
	}
	var data oembedResponse
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		f.log.Debug("oembed decode", "platform", p, "err", err)
		return Metadata{}, false
	}
	md := Metadata{
		Title:      firstNonEmpty(stringOf(data.Title), common.UntitledPlaceholder),
		SourceName: firstNonEmpty(stringOf(data.AuthorName), stringOf(data.ProviderName)),
	}
	if s, ok := data.ThumbnailURL.(string); ok {
		md.ImageURL = s
	}
	return md, true
}

func (f *Fetcher) fetchOpenGraph(ctx context.Context, rawURL string) Metadata {
	host := Hostname(rawURL)
	placeholder := Metadata{Title: common.UntitledPlaceholder, SourceName: host}

	resp, err := f.client.Get(ctx, rawURL, f.timeout, nil)
	if err != nil {
		f.log.Debug("page metadata unavailable", "url", rawURL, "err", err)
		return placeholder
	}
	page := string(resp.Body)
	return Metadata{
		Title:      firstNonEmpty(MetaContent(page, "og:title"), titleText(page), common.UntitledPlaceholder),
		SourceName: firstNonEmpty(MetaContent(page, "og:site_name"), host),
		ImageURL:   MetaContent(page, "og:image"),
	}
}

// Hostname returns the host of rawURL, or "unknown" if it cannot be parsed.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return common.UnknownHostPlaceholder
	}
	return u.Hostname()
}

// Precompiled for the properties looked up on every import.
var metaCache = map[string][2]*regexp.Regexp{
	"og:title":     compileMeta("og:title"),
	"og:image":     compileMeta("og:image"),
	"og:site_name": compileMeta("og:site_name"),
}

func compileMeta(property string) [2]*regexp.Regexp {
	q := regexp.QuoteMeta(property)
	return [2]*regexp.Regexp{
		regexp.MustCompile(`(?i)<meta[^>]+(?:property|name)=["']` + q + `["'][^>]+content=["']([^"']+)["']`),
		regexp.MustCompile(`(?i)<meta[^>]+content=["']([^"']+)["'][^>]+(?:property|name)=["']` + q + `["']`),
	}
}

func metaPatterns(property string) [2]*regexp.Regexp {
	if p, ok := metaCache[property]; ok {
		return p
	}
	return compileMeta(property)
}

// MetaContent extracts a <meta> content value by property or name, accepting
// either attribute order.
func MetaContent(page, property string) string {
	for _, re := range metaPatterns(property) {
		if m := re.FindStringSubmatch(page); len(m) == 2 {
			if v := strings.TrimSpace(html.UnescapeString(m[1])); v != "" {
				return v
			}
		}
	}
	return ""
}

var reTitle = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)

func titleText(page string) string {
	if m := reTitle.FindStringSubmatch(page); len(m) == 2 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return ""
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
