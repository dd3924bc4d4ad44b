package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/metadata"
	"github.com/jo-hoe/recipeimport/internal/structured"
)

const defaultPageTimeout = 10 * time.Second

// Website extracts recipe pages.
type Website struct {
	client  *fetch.Client
	timeout time.Duration
	log     *slog.Logger
}

// NewWebsite creates a Website adapter.
func NewWebsite(client *fetch.Client, timeout time.Duration, logger *slog.Logger) *Website {
	if timeout <= 0 {
		timeout = defaultPageTimeout
	}
	return &Website{
		client:  client,
		timeout: timeout,
		log:     logging.OrDiscard(logger).With("component", "extraction", "adapter", "website"),
	}
}

// Extract implements Adapter. A page that cannot be fetched yields empty
// content rather than an error.
func (a *Website) Extract(ctx context.Context, req Request) (Content, error) {
	req.progress(common.StageScrapingPage, "Scraping recipe page...")

	c := Content{Title: common.UntitledPlaceholder, SourceName: metadata.Hostname(req.URL)}
	resp, err := a.client.Get(ctx, req.URL, a.timeout, nil)
	if err != nil {
		a.log.Warn("page fetch failed", "recipe_id", req.RecipeID, "err", err)
		return c, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		a.log.Warn("page parse failed", "recipe_id", req.RecipeID, "err", err)
		return c, nil
	}

	if recipe, ok := FindJSONLDRecipe(doc); ok {
		if name, _ := recipe["name"].(string); strings.TrimSpace(name) != "" {
			c.Title = strings.TrimSpace(name)
		}
		if raw, err := json.Marshal(recipe); err == nil {
			c.Description = string(raw)
			return c, nil
		}
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		c.Title = strings.TrimSpace(og)
	}
	c.Description = PageText(doc, common.WebsiteTextLimit)
	return c, nil
}

// FindJSONLDRecipe returns the first Recipe object embedded in the page's
// ld+json blocks, looking inside top-level arrays and @graph containers.
func FindJSONLDRecipe(doc *goquery.Document) (map[string]any, bool) {
	var found map[string]any
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return true
		}
		found = findRecipe(data)
		return found == nil
	})
	return found, found != nil
}

func findRecipe(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if r := findRecipe(item); r != nil {
				return r
			}
		}
	case map[string]any:
		if structured.IsRecipeType(t["@type"]) {
			return t
		}
		if graph, ok := t["@graph"].([]any); ok {
			for _, node := range graph {
				if m, ok := node.(map[string]any); ok && structured.IsRecipeType(m["@type"]) {
					return m
				}
			}
		}
	}
	return nil
}

// PageText returns the visible text of the page with whitespace collapsed,
// cut to at most limit characters.
func PageText(doc *goquery.Document, limit int) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body = body.Clone()
	body.Find("script, style, noscript, template").Remove()
	text := strings.Join(strings.Fields(body.Text()), " ")
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}
