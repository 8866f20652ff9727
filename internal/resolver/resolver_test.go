package resolver

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbpage-agent/internal/ai"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
	"github.com/fbpage-agent/pkg/ratelimit"
)

// mp4 header: size, "ftyp", brand "isom"
var mp4Bytes = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'm', 'p', '4', '2'}

type fakeGenerator struct {
	imageCalls   int
	rewriteCalls int
	newsCalls    int
	lastImage    ai.Image
	lastText     string
	err          error
}

func (f *fakeGenerator) CaptionFromImage(_ context.Context, img ai.Image, _ ai.CaptionRequest) (string, error) {
	f.imageCalls++
	f.lastImage = img
	return "image caption", f.err
}

func (f *fakeGenerator) RewriteCaption(_ context.Context, text string, _ ai.CaptionRequest) (string, error) {
	f.rewriteCalls++
	f.lastText = text
	return "rewritten caption", f.err
}

func (f *fakeGenerator) NewsCard(_ context.Context, a models.Article, _ ai.CaptionRequest) (string, error) {
	f.newsCalls++
	f.lastText = a.Title
	return "fact card", f.err
}

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func upload(path string) models.QueueItem {
	return models.QueueItem{Kind: models.ItemKindUpload, FilePath: path}
}

func TestParseCaptionMode(t *testing.T) {
	m, err := ParseCaptionMode("image_analysis")
	require.NoError(t, err)
	assert.Equal(t, ModeImageAnalysis, m)

	m, err = ParseCaptionMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFilename, m)

	_, err = ParseCaptionMode("vibes")
	assert.Error(t, err)
}

func TestUploadFilenameMode(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen, nil, logger.Nop())

	path := writeFile(t, "sunset_over-the_bay.png", pngBytes(t, 4, 4))
	p, err := r.Resolve(context.Background(), upload(path), Options{Mode: ModeFilename})
	require.NoError(t, err)

	assert.Equal(t, models.PayloadPhoto, p.Kind)
	assert.Equal(t, "Sunset over the bay", p.Caption)
	assert.Equal(t, "sunset_over-the_bay.png", p.FileName)
	assert.Equal(t, "image/png", p.MIMEType)
	assert.Zero(t, gen.imageCalls+gen.rewriteCalls)
}

func TestUploadDemoMode(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen, nil, logger.Nop())

	path := writeFile(t, "clip.mp4", mp4Bytes)
	p, err := r.Resolve(context.Background(), upload(path), Options{Mode: ModeDemo})
	require.NoError(t, err)

	assert.Equal(t, models.PayloadVideo, p.Kind)
	assert.Equal(t, "rewritten caption", p.Caption)
	assert.Equal(t, DefaultDemoCaption, gen.lastText)
}

func TestImageAnalysisRequiresImage(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen, nil, logger.Nop())

	video := writeFile(t, "clip.mp4", mp4Bytes)
	_, err := r.Resolve(context.Background(), upload(video), Options{Mode: ModeImageAnalysis})
	assert.ErrorIs(t, err, ErrNoImageBytes)

	empty := writeFile(t, "empty.jpg", nil)
	_, err = r.Resolve(context.Background(), upload(empty), Options{Mode: ModeImageAnalysis})
	assert.ErrorIs(t, err, ErrNoImageBytes)

	// never falls back to another mode
	assert.Zero(t, gen.imageCalls+gen.rewriteCalls)
}

func TestImageAnalysisDownscales(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen, nil, logger.Nop())

	path := writeFile(t, "wide.png", pngBytes(t, 3200, 40))
	p, err := r.Resolve(context.Background(), upload(path), Options{Mode: ModeImageAnalysis})
	require.NoError(t, err)
	assert.Equal(t, "image caption", p.Caption)
	assert.Equal(t, 1, gen.imageCalls)
	assert.Equal(t, "image/jpeg", gen.lastImage.MIMEType)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(gen.lastImage.Data))
	require.NoError(t, err)
	assert.LessOrEqual(t, cfg.Width, maxAnalysisDimension)

	// the published bytes stay the original
	assert.Equal(t, "image/png", p.MIMEType)
}

func TestUploadErrors(t *testing.T) {
	r := New(&fakeGenerator{}, nil, logger.Nop())

	_, err := r.Resolve(context.Background(), upload(filepath.Join(t.TempDir(), "missing.jpg")), Options{})
	assert.Error(t, err)

	text := writeFile(t, "notes.txt", []byte("just some words"))
	_, err = r.Resolve(context.Background(), upload(text), Options{Mode: ModeFilename})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)

	gen := &fakeGenerator{err: errors.New("model overloaded")}
	r = New(gen, nil, logger.Nop())
	img := writeFile(t, "a.png", pngBytes(t, 2, 2))
	_, err = r.Resolve(context.Background(), upload(img), Options{Mode: ModeImageAnalysis})
	assert.ErrorContains(t, err, "model overloaded")
	assert.Equal(t, 1, gen.imageCalls)
}

func crossPost(url, message string) models.QueueItem {
	return models.QueueItem{
		Kind:       models.ItemKindCrossPost,
		SourcePost: &models.SourcePost{ID: "1_2", Message: message, PictureURL: url},
	}
}

func TestCrossPostFallsBackToTextOnce(t *testing.T) {
	failures := []*fakeFetcher{
		{err: errors.New("cross-origin request blocked")},
		{data: nil},
		{data: []byte("<html>not an image</html>")},
	}
	for _, fetcher := range failures {
		gen := &fakeGenerator{}
		r := New(gen, fetcher, logger.Nop())

		p, err := r.Resolve(context.Background(), crossPost("https://cdn/x.jpg", "original words"), Options{})
		require.NoError(t, err)

		assert.Equal(t, 1, gen.rewriteCalls)
		assert.Equal(t, 0, gen.imageCalls)
		assert.Equal(t, "original words", gen.lastText)
		assert.Equal(t, "rewritten caption", p.Caption)
		assert.Equal(t, models.PayloadPhotoURL, p.Kind)
		assert.Equal(t, "https://cdn/x.jpg", p.URL)
	}
}

func TestCrossPostUsesImage(t *testing.T) {
	gen := &fakeGenerator{}
	fetcher := &fakeFetcher{data: pngBytes(t, 8, 8)}
	r := New(gen, fetcher, logger.Nop())

	p, err := r.Resolve(context.Background(), crossPost("https://cdn/x.jpg", "original"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "image caption", p.Caption)
	assert.Equal(t, 1, gen.imageCalls)
	assert.Equal(t, 0, gen.rewriteCalls)
}

func TestCrossPostWithoutPicture(t *testing.T) {
	r := New(&fakeGenerator{}, &fakeFetcher{}, logger.Nop())
	_, err := r.Resolve(context.Background(), crossPost("", "text"), Options{})
	assert.ErrorIs(t, err, ErrNoPhotoURL)
}

func TestNewsItem(t *testing.T) {
	gen := &fakeGenerator{}
	r := New(gen, nil, logger.Nop())

	p, err := r.Resolve(context.Background(), models.QueueItem{
		Kind:    models.ItemKindNews,
		Article: &models.Article{Title: "Honey never spoils", URL: "https://example.com/honey"},
	}, Options{})
	require.NoError(t, err)
	assert.Equal(t, models.PayloadLink, p.Kind)
	assert.Equal(t, "fact card", p.Caption)
	assert.Equal(t, "https://example.com/honey", p.URL)
}

func TestHTTPFetcher(t *testing.T) {
	body := pngBytes(t, 3, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(ratelimit.NewUnlimited(), logger.Nop())
	data, err := f.Fetch(context.Background(), srv.URL+"/img.png")
	require.NoError(t, err)
	assert.Equal(t, body, data)

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)
}

func TestCaptionFromFilename(t *testing.T) {
	cases := map[string]string{
		"/photos/sunset_over-the_bay.jpg": "Sunset over the bay",
		"IMG_20240101_123456.jpg":         "",
		"PXL_20230405_0042(1).mp4":        "",
		"family picnic 2023.png":          "Family picnic",
		"new.york.skyline.jpeg":           "New york skyline",
		"12345.jpg":                       "",
	}
	for in, want := range cases {
		assert.Equal(t, want, CaptionFromFilename(in), in)
	}
}
