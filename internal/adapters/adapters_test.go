package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/recipeimport/internal/fetch"
	"github.com/jo-hoe/recipeimport/internal/platform"
	"github.com/jo-hoe/recipeimport/internal/sources"
	"github.com/jo-hoe/recipeimport/internal/transcribe"
)

type progressLog struct {
	mu     sync.Mutex
	stages []string
}

func (p *progressLog) record(stage, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, stage)
}

func (p *progressLog) get() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stages...)
}

type transcriberMock struct {
	mu        sync.Mutex
	calls     []string
	text      string
	err       error
	audioSeen [][]byte
}

func (m *transcriberMock) Transcribe(_ context.Context, audio []byte, filename string) (transcribe.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, filename)
	m.audioSeen = append(m.audioSeen, audio)
	return transcribe.Transcript{Text: m.text}, m.err
}

func (m *transcriberMock) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type imagesMock struct {
	mu    sync.Mutex
	calls []string
}

func (m *imagesMock) Persist(_ context.Context, remoteURL, recipeID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, remoteURL)
	return "https://blob/" + recipeID + ".jpg"
}

type shortSourceMock struct {
	info     *sources.ShortVideoInfo
	infoErr  error
	audio    []byte
	audioErr error
}

func (m *shortSourceMock) Info(context.Context, string) (*sources.ShortVideoInfo, error) {
	return m.info, m.infoErr
}

func (m *shortSourceMock) DownloadAudio(context.Context, *sources.ShortVideoInfo) ([]byte, error) {
	return m.audio, m.audioErr
}

type videoInfoMock struct {
	info         *sources.VideoInfo
	err          error
	withComments bool
}

func (m *videoInfoMock) Info(_ context.Context, _ string, withComments bool) (*sources.VideoInfo, error) {
	m.withComments = withComments
	return m.info, m.err
}

func TestKeywordHits_WholeWords(t *testing.T) {
	cases := map[string]int{
		"Just boil it":               1,
		"Boil the oil":               2,
		"cookies and cupcakes":       0,
		"Ingredients: 2 cups flour.": 3,
	}
	for in, want := range cases {
		if got := KeywordHits(in); got != want {
			t.Fatalf("KeywordHits(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestIsSparse(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"no keywords", "Look at this amazing dinner #foodtok", true},
		{"one keyword", "best recipe ever", true},
		{"two keywords", "mix the flour well", false},
		{"long without keywords", strings.Repeat("lovely ", 80), false},
		{"keyword inside another keyword", "Just boil it", true},
		{"keywords inside other words", "cupcake and cookie in the soil", true},
		{"repeated keyword counts once", "salt salt salt", true},
		{"plural forms", "two cups and some onions", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsSparse(c.text); got != c.want {
				t.Fatalf("IsSparse(%q) = %v, want %v", c.text, got, c.want)
			}
		})
	}
}

// Sparse short-video description: transcription runs before the adapter
// returns.
func TestShortVideo_SparseDescriptionTriggersTranscription(t *testing.T) {
	tr := &transcriberMock{text: "add two cups of flour and mix"}
	images := &imagesMock{}
	a := NewShortVideo(ShortVideoOptions{
		Source: &shortSourceMock{
			info:  &sources.ShortVideoInfo{Title: "dinner vibes", Description: "so good 😍", Thumbnail: "https://cdn/t.jpg", Author: "Chef", AudioURL: "https://cdn/a.mp3"},
			audio: []byte("ID3"),
		},
		Images:      images,
		Transcriber: tr,
	})
	progress := &progressLog{}

	c, err := a.Extract(context.Background(), Request{URL: "https://www.tiktok.com/@c/video/1", RecipeID: "r1", Platform: platform.TikTok, Progress: progress.record})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if tr.count() != 1 {
		t.Fatalf("transcriber calls = %d", tr.count())
	}
	if c.Transcript != "add two cups of flour and mix" || c.SourceName != "Chef" {
		t.Fatalf("unexpected content: %+v", c)
	}
	if got := c.Image.Wait(context.Background()); got != "https://blob/r1.jpg" {
		t.Fatalf("image = %q", got)
	}
	want := []string{"fetching_info", "downloading_image", "transcribing"}
	if !reflect.DeepEqual(progress.get(), want) {
		t.Fatalf("stages = %v, want %v", progress.get(), want)
	}
}

func TestShortVideo_RichDescriptionSkipsTranscription(t *testing.T) {
	tr := &transcriberMock{}
	a := NewShortVideo(ShortVideoOptions{
		Source:      &shortSourceMock{info: &sources.ShortVideoInfo{Title: "Pasta", Description: "Ingredients: 1 cup flour, 2 tbsp butter. Mix and bake."}},
		Transcriber: tr,
	})
	c, err := a.Extract(context.Background(), Request{URL: "u", RecipeID: "r"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if tr.count() != 0 || c.Image != nil {
		t.Fatalf("unexpected transcription or image: calls=%d image=%v", tr.count(), c.Image)
	}
}

func TestShortVideo_TranscriptionFailureDegrades(t *testing.T) {
	a := NewShortVideo(ShortVideoOptions{
		Source:      &shortSourceMock{info: &sources.ShortVideoInfo{Title: "x"}, audio: []byte("a")},
		Transcriber: &transcriberMock{err: errors.New("groq down")},
	})
	c, err := a.Extract(context.Background(), Request{URL: "u", RecipeID: "r"})
	if err != nil || c.Transcript != "" {
		t.Fatalf("expected empty transcript without error, got %q, %v", c.Transcript, err)
	}
}

func TestShortVideo_APIFailureFallsBackToPage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			_, _ = w.Write([]byte("<html></html>"))
			return
		}
		_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="Tacos"><meta property="og:description" content="Ingredients: tortillas"><meta property="og:image" content="https://cdn/x.jpg"></head></html>`))
	}))
	defer ts.Close()

	images := &imagesMock{}
	a := NewShortVideo(ShortVideoOptions{
		Source:      &shortSourceMock{infoErr: errors.New("api down")},
		Pages:       fetch.New(fetch.Options{}),
		PageTimeout: time.Second,
		Images:      images,
	})
	c, err := a.Extract(context.Background(), Request{URL: ts.URL + "/v", RecipeID: "r"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if c.Title != "Tacos" || c.Description != "Ingredients: tortillas" || c.ImageURL != "https://cdn/x.jpg" {
		t.Fatalf("unexpected content: %+v", c)
	}
	_ = c.Image.Wait(context.Background())

	if _, err := a.Extract(context.Background(), Request{URL: ts.URL + "/empty", RecipeID: "r"}); err == nil {
		t.Fatalf("expected error when api and page both fail")
	}
}

func TestLongVideo_InstagramAlwaysTranscribesWithVideoFormat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("media:" + r.URL.Path))
	}))
	defer ts.Close()

	tr := &transcriberMock{text: "spoken steps"}
	src := &videoInfoMock{info: &sources.VideoInfo{
		Title:       "Reel",
		Description: "Full recipe: 2 cups flour, 1 tsp salt, mix and bake for 20 minutes at 180C.",
		Uploader:    "insta_chef",
		Formats: []sources.Format{
			{FormatID: "big", URL: ts.URL + "/big", ACodec: "aac", VCodec: "h264", Filesize: ptr(5000)},
			{FormatID: "small", URL: ts.URL + "/small", ACodec: "aac", VCodec: "h264", Filesize: ptr(1000)},
			{FormatID: "silent", URL: ts.URL + "/silent", ACodec: "none", VCodec: "h264", Filesize: ptr(10)},
		},
	}}
	a := NewLongVideo(LongVideoOptions{Info: src, HTTP: fetch.New(fetch.Options{}), AudioTimeout: time.Second, Transcriber: tr})

	c, err := a.Extract(context.Background(), Request{URL: "https://instagram.com/reel/x", RecipeID: "r", Platform: platform.Instagram})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.withComments {
		t.Fatalf("comments requested for instagram")
	}
	if tr.count() != 1 || tr.calls[0] != "audio.mp4" || string(tr.audioSeen[0]) != "media:/small" {
		t.Fatalf("transcription calls = %v audio=%q", tr.calls, tr.audioSeen)
	}
	if c.Transcript != "spoken steps" || c.SourceName != "insta_chef" {
		t.Fatalf("unexpected content: %+v", c)
	}
}

func TestLongVideo_YouTubeCaptionsCommentsAndConditionalTranscription(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/en.vtt":
			_, _ = w.Write([]byte("WEBVTT\n\n00:00.000 --> 00:02.000\nToday we cook pasta with garlic and butter\n"))
		default:
			_, _ = w.Write([]byte("audio"))
		}
	}))
	defer ts.Close()

	info := &sources.VideoInfo{
		Title:       "Pasta",
		Description: "New video!",
		Subtitles:   map[string][]sources.CaptionTrack{"en": {{Ext: "vtt", URL: ts.URL + "/en.vtt"}}},
		Formats:     []sources.Format{{FormatID: "140", Ext: "m4a", URL: ts.URL + "/a.m4a", ACodec: "mp4a", VCodec: "none"}},
		Comments: []sources.Comment{
			{Text: "first!"},
			{Text: "I added 1 tsp chili flakes"},
			{Text: "How long to boil?"},
		},
	}
	tr := &transcriberMock{text: "t"}
	src := &videoInfoMock{info: info}
	a := NewLongVideo(LongVideoOptions{Info: src, HTTP: fetch.New(fetch.Options{}), CaptionTimeout: time.Second, AudioTimeout: time.Second, Transcriber: tr})
	progress := &progressLog{}

	c, err := a.Extract(context.Background(), Request{URL: "https://youtu.be/x", RecipeID: "r", Platform: platform.YouTube, Progress: progress.record})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !src.withComments {
		t.Fatalf("comments not requested for youtube")
	}
	if c.Captions != "Today we cook pasta with garlic and butter" {
		t.Fatalf("captions = %q", c.Captions)
	}
	if !strings.Contains(c.Description, "I added 1 tsp chili flakes") || !strings.Contains(c.Description, "How long to boil?") || strings.Contains(c.Description, "first!") {
		t.Fatalf("description = %q", c.Description)
	}
	if tr.count() != 0 {
		t.Fatalf("captions are rich, transcription should be skipped")
	}
	if !reflect.DeepEqual(progress.get(), []string{"fetching_info", "extracting_captions"}) {
		t.Fatalf("stages = %v", progress.get())
	}

	// Without captions the sparse description triggers transcription.
	info.Subtitles = nil
	info.Comments = nil
	c, err = a.Extract(context.Background(), Request{URL: "https://youtu.be/x", RecipeID: "r", Platform: platform.YouTube})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if tr.count() != 1 || tr.calls[0] != "audio.m4a" || c.Transcript != "t" {
		t.Fatalf("transcription calls = %v transcript=%q", tr.calls, c.Transcript)
	}
}

func TestLongVideo_InfoFailureIsFatal(t *testing.T) {
	a := NewLongVideo(LongVideoOptions{Info: &videoInfoMock{err: errors.New("yt-dlp missing")}})
	if _, err := a.Extract(context.Background(), Request{URL: "u", Platform: platform.YouTube}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSelectAudioFormat(t *testing.T) {
	formats := []sources.Format{
		{FormatID: "v", URL: "v", ACodec: "aac", VCodec: "h264", Filesize: ptr(100)},
		{FormatID: "opus-unknown", URL: "o", Ext: "webm", ACodec: "opus", VCodec: "none"},
		{FormatID: "m4a", URL: "m", Ext: "m4a", ACodec: "mp4a", VCodec: "none", FilesizeApprox: ptr(3000)},
		{FormatID: "aiff", URL: "x", Ext: "aiff", ACodec: "pcm", VCodec: "none", Filesize: ptr(1)},
	}
	f, ext, err := SelectAudioFormat(formats)
	if err != nil || f.FormatID != "m4a" || ext != "m4a" {
		t.Fatalf("got %s %s %v", f.FormatID, ext, err)
	}

	f, ext, err = SelectAudioFormat(formats[:1])
	if err != nil || f.FormatID != "v" || ext != "mp4" {
		t.Fatalf("video fallback: got %s %s %v", f.FormatID, ext, err)
	}

	if _, _, err := SelectAudioFormat([]sources.Format{{URL: "x", ACodec: "none", VCodec: "h264"}}); err == nil {
		t.Fatalf("expected error without audio")
	}
}

func TestMineComments_Cap(t *testing.T) {
	var comments []sources.Comment
	for i := 0; i < 10; i++ {
		comments = append(comments, sources.Comment{Text: "add more salt"})
	}
	if got := MineComments(comments, 5); len(got) != 5 {
		t.Fatalf("mined %d comments", len(got))
	}
}

func TestWebsite_JSONLDRecipe(t *testing.T) {
	page := `<html><head><title>x</title>
<script type="application/ld+json">{not json</script>
<script type="application/ld+json">{"@context":"https://schema.org","@graph":[{"@type":"WebPage"},{"@type":"Recipe","name":"Best Chili","recipeIngredient":["1 lb beef"],"recipeInstructions":["Brown beef"]}]}</script>
</head><body>hello</body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer ts.Close()

	progress := &progressLog{}
	a := NewWebsite(fetch.New(fetch.Options{}), time.Second, nil)
	c, err := a.Extract(context.Background(), Request{URL: ts.URL + "/recipe", RecipeID: "r", Platform: platform.Website, Progress: progress.record})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if c.Title != "Best Chili" || !strings.Contains(c.Description, `"recipeIngredient":["1 lb beef"]`) {
		t.Fatalf("unexpected content: %+v", c)
	}
	if !reflect.DeepEqual(progress.get(), []string{"scraping_page"}) {
		t.Fatalf("stages = %v", progress.get())
	}
}

func TestWebsite_TextFallback(t *testing.T) {
	long := strings.Repeat("word ", 2000)
	page := `<html><head><meta property="og:title" content="Grandma's Pie"><style>.x{}</style></head><body><script>var a=1;</script><p>` + long + `</p></body></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer ts.Close()

	a := NewWebsite(fetch.New(fetch.Options{}), time.Second, nil)
	c, err := a.Extract(context.Background(), Request{URL: ts.URL, RecipeID: "r"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if c.Title != "Grandma's Pie" {
		t.Fatalf("title = %q", c.Title)
	}
	if len(c.Description) != 5000 || strings.Contains(c.Description, "var a") {
		t.Fatalf("description length %d", len(c.Description))
	}
}

func TestWebsite_FetchFailureDegrades(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()
	a := NewWebsite(fetch.New(fetch.Options{}), time.Second, nil)
	c, err := a.Extract(context.Background(), Request{URL: ts.URL})
	if err != nil || c.Title != "Untitled" || c.Description != "" {
		t.Fatalf("content=%+v err=%v", c, err)
	}
}

func TestSet_For(t *testing.T) {
	s := NewSet()
	w := NewWebsite(nil, 0, nil)
	s.Register(w, platform.Website)
	if a, err := s.For(platform.Website); err != nil || a != Adapter(w) {
		t.Fatalf("For(website) = %v, %v", a, err)
	}
	if _, err := s.For(platform.TikTok); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter, got %v", err)
	}
}

func TestImageFuture_NilAndCancelled(t *testing.T) {
	var f *ImageFuture
	if f.Wait(context.Background()) != "" {
		t.Fatalf("nil future should yield empty url")
	}
	if StartImage(context.Background(), &imagesMock{}, "", "r") != nil {
		t.Fatalf("empty url should not start a future")
	}
	block := make(chan struct{})
	defer close(block)
	slow := StartImage(context.Background(), blockingImages(block), "https://x", "r")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if slow.Wait(ctx) != "" {
		t.Fatalf("cancelled wait should yield empty url")
	}
}

type blockingImages chan struct{}

func (b blockingImages) Persist(context.Context, string, string) string {
	<-b
	return "late"
}

func ptr(v float64) *float64 { return &v }
