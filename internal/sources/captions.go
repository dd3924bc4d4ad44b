package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/jo-hoe/recipeimport/internal/fetch"
)

// Caption formats in order of preference.
var captionFormats = []string{"vtt", "srt", "json3"}

var englishBase, _ = language.English.Base()

var (
	reCueTiming = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?[.,]\d{3}\s+-->`)
	reInlineTag = regexp.MustCompile(`<[^>]*>`)
)

// IsEnglish reports whether a caption language code denotes English,
// including regional and yt-dlp suffixed variants such as "en-US" or
// "en-orig".
func IsEnglish(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	tag, err := language.Parse(code)
	if err != nil {
		head, _, _ := strings.Cut(code, "-")
		if tag, err = language.Parse(head); err != nil {
			return false
		}
	}
	base, conf := tag.Base()
	return conf != language.No && base == englishBase
}

// EnglishCaptionTracks returns the English tracks of info in priority order:
// uploaded subtitles before automatic captions, plain "en" before regional
// variants, and within a language vtt before srt before json3. Tracks in
// other formats are omitted.
func EnglishCaptionTracks(info *VideoInfo) []CaptionTrack {
	if info == nil {
		return nil
	}
	var out []CaptionTrack
	for _, group := range []map[string][]CaptionTrack{info.Subtitles, info.AutomaticCaptions} {
		for _, code := range englishCodes(group) {
			out = append(out, orderByFormat(group[code])...)
		}
	}
	return out
}

func englishCodes(group map[string][]CaptionTrack) []string {
	var codes []string
	for code := range group {
		if IsEnglish(code) {
			codes = append(codes, code)
		}
	}
	sort.Slice(codes, func(i, j int) bool {
		if (codes[i] == "en") != (codes[j] == "en") {
			return codes[i] == "en"
		}
		return codes[i] < codes[j]
	})
	return codes
}

func orderByFormat(tracks []CaptionTrack) []CaptionTrack {
	var out []CaptionTrack
	for _, f := range captionFormats {
		for _, t := range tracks {
			if strings.EqualFold(t.Ext, f) && t.URL != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// FetchCaptions downloads tracks in order and returns the first non-empty
// plain-text rendering.
func FetchCaptions(ctx context.Context, client *fetch.Client, tracks []CaptionTrack, timeout time.Duration) (string, error) {
	var lastErr error
	for _, t := range tracks {
		resp, err := client.Get(ctx, t.URL, timeout, nil)
		if err != nil {
			lastErr = err
			continue
		}
		text, err := ParseCaptions(resp.Body, t.Ext)
		if err != nil {
			lastErr = err
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", nil
}

// ParseCaptions converts a timed-text document to plain text, one cue per
// line, with consecutive duplicate lines collapsed.
func ParseCaptions(data []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case "json3":
		return parseJSON3(data)
	case "vtt", "srt":
		return parseCueText(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported caption format %q", ext)
	}
}

// parseCueText handles both WebVTT and SubRip.
func parseCueText(doc string) string {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	raw := strings.Split(doc, "\n")
	var lines []string
	skipBlock := false
	for i := range raw {
		line := strings.TrimSpace(raw[i])
		switch {
		case line == "":
			skipBlock = false
			continue
		case skipBlock:
			continue
		case strings.HasPrefix(line, "WEBVTT"), strings.HasPrefix(line, "Kind:"), strings.HasPrefix(line, "Language:"):
			continue
		case strings.HasPrefix(line, "NOTE"), strings.HasPrefix(line, "STYLE"), strings.HasPrefix(line, "REGION"):
			skipBlock = true
			continue
		case reCueTiming.MatchString(line), isCueIdentifier(raw, i):
			continue
		}
		lines = appendLine(lines, cleanCueLine(line))
	}
	return strings.Join(lines, "\n")
}

// isCueIdentifier reports whether raw[i] names the cue whose timing line
// follows it, such as an SRT sequence number. Numeric cue text stays.
func isCueIdentifier(raw []string, i int) bool {
	return i+1 < len(raw) && reCueTiming.MatchString(strings.TrimSpace(raw[i+1]))
}

type json3Doc struct {
	Events []struct {
		Segs []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

func parseJSON3(data []byte) (string, error) {
	var doc json3Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse json3 captions: %w", err)
	}
	var lines []string
	for _, ev := range doc.Events {
		var b strings.Builder
		for _, s := range ev.Segs {
			b.WriteString(s.UTF8)
		}
		for _, l := range strings.Split(b.String(), "\n") {
			lines = appendLine(lines, cleanCueLine(l))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func cleanCueLine(line string) string {
	line = reInlineTag.ReplaceAllString(line, "")
	line = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&nbsp;", " ").Replace(line)
	return strings.Join(strings.Fields(line), " ")
}

func appendLine(lines []string, line string) []string {
	if line == "" {
		return lines
	}
	if n := len(lines); n > 0 && lines[n-1] == line {
		return lines
	}
	return append(lines, line)
}
