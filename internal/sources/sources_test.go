package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/recipeimport/internal/fetch"
)

func TestCleanURL(t *testing.T) {
	cases := map[string]string{
		"https://www.tiktok.com/@chef/video/123?is_from_webapp=1&sender_device=pc": "https://www.tiktok.com/@chef/video/123",
		"https://vm.tiktok.com/ZM123/#frag":                                          "https://vm.tiktok.com/ZM123/",
		"not a url": "not a url",
	}
	for in, want := range cases {
		if got := CleanURL(in); got != want {
			t.Fatalf("CleanURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShortVideoClient_Info(t *testing.T) {
	var gotURL, gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Query().Get("url")
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"code":0,"msg":"success","data":{"id":"123","title":"Pasta night",
			"content_desc":["Line one","Line two"],"cover":"c.jpg","origin_cover":"oc.jpg",
			"play":"p.mp4","music":"m.mp3","duration":42,"author":{"unique_id":"chef","nickname":"Chef"}}}`))
	}))
	defer ts.Close()

	c := NewShortVideoClient(fetch.New(fetch.Options{}), ts.URL+"/api/", time.Second, time.Second)
	info, err := c.Info(context.Background(), "https://www.tiktok.com/@chef/video/123?utm=x")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if gotURL != "https://www.tiktok.com/@chef/video/123" {
		t.Fatalf("api called with url=%q", gotURL)
	}
	if !strings.HasPrefix(gotUA, "Mozilla/5.0 (Macintosh") {
		t.Fatalf("browser UA not sent: %q", gotUA)
	}
	if info.Description != "Line one\nLine two" || info.Thumbnail != "oc.jpg" || info.AudioURL != "m.mp3" || info.Author != "Chef" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestShortVideoClient_InfoFallbacksAndErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Query().Get("url"), "/2") {
			_, _ = w.Write([]byte(`{"code":-1,"msg":"Url parsing is failed!","data":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"title":"Only title","cover":"c.jpg","music":"m.mp3","author":{}}}`))
	}))
	defer ts.Close()
	c := NewShortVideoClient(fetch.New(fetch.Options{}), ts.URL, time.Second, time.Second)

	info, err := c.Info(context.Background(), "https://www.tiktok.com/@a/video/1")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Description != "Only title" || info.Thumbnail != "c.jpg" {
		t.Fatalf("fallbacks not applied: %+v", info)
	}

	if _, err := c.Info(context.Background(), "https://www.tiktok.com/@a/video/2"); err == nil || !strings.Contains(err.Error(), "Url parsing") {
		t.Fatalf("expected api failure, got %v", err)
	}
}

func TestShortVideoClient_DownloadAudioSendsReferer(t *testing.T) {
	var referer string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer = r.Header.Get("Referer")
		_, _ = w.Write([]byte("ID3"))
	}))
	defer ts.Close()
	c := NewShortVideoClient(fetch.New(fetch.Options{}), ts.URL, time.Second, time.Second)
	data, err := c.DownloadAudio(context.Background(), &ShortVideoInfo{AudioURL: ts.URL + "/m.mp3"})
	if err != nil || string(data) != "ID3" {
		t.Fatalf("data=%q err=%v", data, err)
	}
	if referer != "https://www.tiktok.com/" {
		t.Fatalf("referer = %q", referer)
	}
	if _, err := c.DownloadAudio(context.Background(), &ShortVideoInfo{}); err == nil {
		t.Fatalf("expected error without audio url")
	}
}

func TestYtDlp_InfoArgsAndDecode(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "yt-dlp" {
			t.Fatalf("binary = %q", name)
		}
		gotArgs = args
		return []byte(`{"id":"v1","title":"Soup","description":"desc","uploader":"Cook",
			"subtitles":{"en":[{"ext":"vtt","url":"http://x/en.vtt"}]},
			"formats":[{"format_id":"140","ext":"m4a","acodec":"mp4a","vcodec":"none","filesize":1000}],
			"comments":[{"text":"Great recipe","author":"a","like_count":3}]}`), nil
	}
	y := NewYtDlp("", time.Second, run)

	info, err := y.Info(context.Background(), "https://youtu.be/v1", true)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if gotArgs[len(gotArgs)-1] != "https://youtu.be/v1" || !contains(gotArgs, "--write-comments") || !contains(gotArgs, "--skip-download") {
		t.Fatalf("args = %v", gotArgs)
	}
	if info.Title != "Soup" || info.Author() != "Cook" || len(info.Comments) != 1 || len(info.Formats) != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if f := info.Formats[0]; !f.AudioOnly() || f.Size() != 1000 {
		t.Fatalf("format helpers: %+v", f)
	}

	_, _ = y.Info(context.Background(), "https://youtu.be/v1", false)
	if contains(gotArgs, "--write-comments") {
		t.Fatalf("comments requested without withComments: %v", gotArgs)
	}

	failing := NewYtDlp("yt-dlp", time.Second, func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	})
	if _, err := failing.Info(context.Background(), "u", false); err == nil {
		t.Fatalf("expected runner error")
	}
}

func TestIsEnglish(t *testing.T) {
	for _, code := range []string{"en", "en-US", "en-GB", "en-orig", "EN"} {
		if !IsEnglish(code) {
			t.Fatalf("IsEnglish(%q) = false", code)
		}
	}
	for _, code := range []string{"", "de", "es-419", "fr-CA", "live_chat"} {
		if IsEnglish(code) {
			t.Fatalf("IsEnglish(%q) = true", code)
		}
	}
}

func TestEnglishCaptionTracks_Priority(t *testing.T) {
	info := &VideoInfo{
		Subtitles: map[string][]CaptionTrack{
			"de":    {{Ext: "vtt", URL: "de.vtt"}},
			"en-GB": {{Ext: "json3", URL: "gb.json3"}, {Ext: "vtt", URL: "gb.vtt"}},
			"en":    {{Ext: "srv3", URL: "en.srv3"}, {Ext: "srt", URL: "en.srt"}},
		},
		AutomaticCaptions: map[string][]CaptionTrack{
			"en": {{Ext: "json3", URL: "auto.json3"}},
			"fr": {{Ext: "vtt", URL: "fr.vtt"}},
		},
	}
	var got []string
	for _, tr := range EnglishCaptionTracks(info) {
		got = append(got, tr.URL)
	}
	want := []string{"en.srt", "gb.vtt", "gb.json3", "auto.json3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tracks = %v, want %v", got, want)
	}
}

func TestParseCaptions_Formats(t *testing.T) {
	vtt := "WEBVTT\nKind: captions\nLanguage: en\n\nNOTE generated\nignored line\n\n00:00:01.000 --> 00:00:02.000 align:start\n<c>Add</c> two cups of <00:00:01.500>flour\n\n00:00:02.000 --> 00:00:03.000\nAdd two cups of flour\n\n00:00:03.000 --> 00:00:04.000\nthen mix &amp; bake\n"
	got, err := ParseCaptions([]byte(vtt), "vtt")
	if err != nil || got != "Add two cups of flour\nthen mix & bake" {
		t.Fatalf("vtt = %q err=%v", got, err)
	}

	srt := "1\r\n00:00:01,000 --> 00:00:02,000\r\nChop the onion\r\n\r\n2\r\n00:00:02,000 --> 00:00:04,000\r\n<i>Fry it</i>\r\n"
	got, err = ParseCaptions([]byte(srt), "srt")
	if err != nil || got != "Chop the onion\nFry it" {
		t.Fatalf("srt = %q err=%v", got, err)
	}

	json3 := `{"events":[{"segs":[{"utf8":"Boil "},{"utf8":"water"}]},{"segs":[{"utf8":"\n"}]},{"tStartMs":5},{"segs":[{"utf8":"Salt it"}]}]}`
	got, err = ParseCaptions([]byte(json3), "json3")
	if err != nil || got != "Boil water\nSalt it" {
		t.Fatalf("json3 = %q err=%v", got, err)
	}

	if _, err := ParseCaptions([]byte("x"), "ttml"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestParseCaptions_KeepsNumericCueText(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:02,000\nPreheat the oven to\n\n2\n00:00:02,000 --> 00:00:03,000\n350\n\n3\n00:00:03,000 --> 00:00:04,000\n2\n"
	got, err := ParseCaptions([]byte(srt), "srt")
	if err != nil || got != "Preheat the oven to\n350\n2" {
		t.Fatalf("srt = %q err=%v", got, err)
	}

	vtt := "WEBVTT\n\nintro\n00:00:01.000 --> 00:00:02.000\nBake for\n\n00:00:02.000 --> 00:00:03.000\n25\n"
	got, err = ParseCaptions([]byte(vtt), "vtt")
	if err != nil || got != "Bake for\n25" {
		t.Fatalf("vtt = %q err=%v", got, err)
	}
}

func TestFetchCaptions_SkipsFailingTracks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.vtt" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = w.Write([]byte("WEBVTT\n\n00:00.000 --> 00:01.000\nWhisk eggs\n"))
	}))
	defer ts.Close()

	client := fetch.New(fetch.Options{})
	text, err := FetchCaptions(context.Background(), client, []CaptionTrack{
		{Ext: "vtt", URL: ts.URL + "/bad.vtt"},
		{Ext: "vtt", URL: ts.URL + "/good.vtt"},
	}, time.Second)
	if err != nil || text != "Whisk eggs" {
		t.Fatalf("text=%q err=%v", text, err)
	}

	if _, err := FetchCaptions(context.Background(), client, []CaptionTrack{{Ext: "vtt", URL: ts.URL + "/bad.vtt"}}, time.Second); err == nil {
		t.Fatalf("expected error when every track fails")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
