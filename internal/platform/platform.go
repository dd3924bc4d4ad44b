package platform

import "regexp"

// Platform identifies the family of a source URL.
type Platform string

const (
	YouTube   Platform = "youtube"
	TikTok    Platform = "tiktok"
	Instagram Platform = "instagram"
	Website   Platform = "website"
)

// SourceType is the coarse kind of source stored on a recipe record.
type SourceType string

const (
	SourceVideo SourceType = "video"
	SourceURL   SourceType = "url"
)

type rule struct {
	platform Platform
	pattern  *regexp.Regexp
}

// Evaluated in order; first match wins.
var rules = []rule{
	{YouTube, regexp.MustCompile(`(?i)(?:youtube\.com|youtu\.be)`)},
	{TikTok, regexp.MustCompile(`(?i)tiktok\.com`)},
	{Instagram, regexp.MustCompile(`(?i)instagram\.com`)},
}

// Classify maps a raw URL to its platform. Anything unmatched is a Website.
func Classify(rawURL string) Platform {
	for _, r := range rules {
		if r.pattern.MatchString(rawURL) {
			return r.platform
		}
	}
	return Website
}

// SourceType returns video for every non-website platform.
func (p Platform) SourceType() SourceType {
	if p == Website {
		return SourceURL
	}
	return SourceVideo
}

// IsVideo reports whether p is served by one of the video adapters.
func (p Platform) IsVideo() bool {
	return p == YouTube || p == TikTok || p == Instagram
}

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	return p.IsVideo() || p == Website
}
