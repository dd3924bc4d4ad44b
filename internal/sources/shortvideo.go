package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/fetch"
)

const (
	defaultShortVideoTimeout = 30 * time.Second
	defaultAudioTimeout      = 60 * time.Second
)

// ShortVideoInfo is what the short-video API reports about one clip.
type ShortVideoInfo struct {
	ID             string
	Title          string
	Description    string
	Thumbnail      string
	VideoURL       string
	AudioURL       string
	Author         string
	AuthorUsername string
	Duration       float64
}

// ShortVideoClient talks to a TikWM-compatible metadata API.
type ShortVideoClient struct {
	fetch        *fetch.Client
	apiURL       string
	timeout      time.Duration
	audioTimeout time.Duration
}

// NewShortVideoClient creates a ShortVideoClient.
func NewShortVideoClient(client *fetch.Client, apiURL string, timeout, audioTimeout time.Duration) *ShortVideoClient {
	if apiURL == "" {
		apiURL = common.DefaultShortVideoAPIURL
	}
	if timeout <= 0 {
		timeout = defaultShortVideoTimeout
	}
	if audioTimeout <= 0 {
		audioTimeout = defaultAudioTimeout
	}
	return &ShortVideoClient{fetch: client, apiURL: apiURL, timeout: timeout, audioTimeout: audioTimeout}
}

type tikwmResponse struct {
	Code int        `json:"code"`
	Msg  string     `json:"msg"`
	Data *tikwmData `json:"data"`
}

type tikwmData struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	ContentDesc []string `json:"content_desc"`
	Cover       string   `json:"cover"`
	OriginCover string   `json:"origin_cover"`
	Duration    float64  `json:"duration"`
	Play        string   `json:"play"`
	HDPlay      string   `json:"hdplay"`
	Music       string   `json:"music"`
	Author      struct {
		UniqueID string `json:"unique_id"`
		Nickname string `json:"nickname"`
	} `json:"author"`
}

// Info looks up a clip. Tracking parameters are removed from rawURL first.
func (c *ShortVideoClient) Info(ctx context.Context, rawURL string) (*ShortVideoInfo, error) {
	api, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	q := api.Query()
	q.Set("url", CleanURL(rawURL))
	api.RawQuery = q.Encode()

	resp, err := c.fetch.Get(ctx, api.String(), c.timeout, map[string]string{
		common.HeaderUserAgent: common.BrowserUserAgent,
		"Accept":               common.ContentTypeJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("short video api: %w", err)
	}

	var out tikwmResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("parse short video api response: %w", err)
	}
	if out.Code != 0 || out.Data == nil {
		return nil, fmt.Errorf("short video api failed: code %d: %s", out.Code, out.Msg)
	}

	d := out.Data
	desc := strings.Join(d.ContentDesc, "\n")
	if strings.TrimSpace(desc) == "" {
		desc = d.Title
	}
	return &ShortVideoInfo{
		ID:             d.ID,
		Title:          d.Title,
		Description:    desc,
		Thumbnail:      firstNonEmpty(d.OriginCover, d.Cover),
		VideoURL:       firstNonEmpty(d.HDPlay, d.Play),
		AudioURL:       d.Music,
		Author:         d.Author.Nickname,
		AuthorUsername: d.Author.UniqueID,
		Duration:       d.Duration,
	}, nil
}

// DownloadAudio fetches the clip's audio track.
func (c *ShortVideoClient) DownloadAudio(ctx context.Context, info *ShortVideoInfo) ([]byte, error) {
	if info == nil || info.AudioURL == "" {
		return nil, errors.New("no audio url")
	}
	resp, err := c.fetch.Get(ctx, info.AudioURL, c.audioTimeout, map[string]string{
		common.HeaderUserAgent: common.BrowserUserAgent,
		common.HeaderReferer:   common.ShortVideoReferer,
	})
	if err != nil {
		return nil, fmt.Errorf("download short video audio: %w", err)
	}
	if len(resp.Body) == 0 {
		return nil, errors.New("short video audio is empty")
	}
	return resp.Body, nil
}

// CleanURL drops the query string and fragment. Unparsable input is
// returned unchanged.
func CleanURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	return u.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
