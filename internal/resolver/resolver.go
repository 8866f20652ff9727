// Package resolver turns queue items into publishable payloads.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"

	"github.com/fbpage-agent/internal/ai"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
)

var (
	// ErrNoImageBytes is returned when image analysis is requested for something that is not an image
	ErrNoImageBytes = errors.New("image analysis needs image bytes")
	// ErrNoPhotoURL is returned for cross-post sources without a picture
	ErrNoPhotoURL = errors.New("source post has no photo url")
	// ErrUnsupportedMedia is returned for uploads that are neither image nor video
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// CaptionMode selects how upload captions are derived
type CaptionMode string

const (
	ModeDemo          CaptionMode = "demo"
	ModeFilename      CaptionMode = "filename"
	ModeImageAnalysis CaptionMode = "image_analysis"
)

// DefaultDemoCaption is rewritten for every item in demo mode
const DefaultDemoCaption = "A moment worth sharing with everyone who follows our page."

// ParseCaptionMode validates a mode name
func ParseCaptionMode(s string) (CaptionMode, error) {
	switch m := CaptionMode(s); m {
	case ModeDemo, ModeFilename, ModeImageAnalysis:
		return m, nil
	case "":
		return ModeFilename, nil
	default:
		return "", fmt.Errorf("unknown caption mode %q (want demo, filename or image_analysis)", s)
	}
}

// Options are the caption settings of one run
type Options struct {
	Mode        CaptionMode
	Language    string
	Context     string
	DemoCaption string
}

func (o Options) request() ai.CaptionRequest {
	return ai.CaptionRequest{Language: o.Language, Context: o.Context}
}

// Resolver builds payloads, calling the caption generator where the mode needs it
type Resolver struct {
	generator ai.CaptionGenerator
	fetcher   ImageFetcher
	readFile  func(string) ([]byte, error)
	log       *logger.Logger
}

// New creates a resolver
func New(generator ai.CaptionGenerator, fetcher ImageFetcher, log *logger.Logger) *Resolver {
	return &Resolver{
		generator: generator,
		fetcher:   fetcher,
		readFile:  os.ReadFile,
		log:       log.WithComponent("resolver"),
	}
}

// Resolve produces the payload for one item. Generator failures are returned as is.
func (r *Resolver) Resolve(ctx context.Context, item models.QueueItem, opts Options) (*models.Payload, error) {
	switch item.Kind {
	case models.ItemKindUpload:
		return r.resolveUpload(ctx, item.FilePath, opts)
	case models.ItemKindCrossPost:
		return r.resolveCrossPost(ctx, item.SourcePost, opts)
	case models.ItemKindNews:
		return r.resolveNews(ctx, item.Article, opts)
	default:
		return nil, fmt.Errorf("unknown item kind %q", item.Kind)
	}
}

func (r *Resolver) resolveUpload(ctx context.Context, path string, opts Options) (*models.Payload, error) {
	data, err := r.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}

	isImage := len(data) > 0 && filetype.IsImage(data)
	isVideo := len(data) > 0 && filetype.IsVideo(data)

	if opts.Mode == ModeImageAnalysis && !isImage {
		return nil, fmt.Errorf("%w: %s", ErrNoImageBytes, filepath.Base(path))
	}
	if !isImage && !isVideo {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, filepath.Base(path))
	}

	payload := &models.Payload{
		Kind:     models.PayloadPhoto,
		Data:     data,
		FileName: filepath.Base(path),
		MIMEType: mimeOf(data),
	}
	if isVideo {
		payload.Kind = models.PayloadVideo
	}

	r.log.Debug().
		Str("file", payload.FileName).
		Str("mime", payload.MIMEType).
		Str("size", humanize.Bytes(uint64(len(data)))).
		Msg("Read upload")

	switch opts.Mode {
	case ModeDemo:
		sample := opts.DemoCaption
		if sample == "" {
			sample = DefaultDemoCaption
		}
		payload.Caption, err = r.generator.RewriteCaption(ctx, sample, opts.request())
	case ModeImageAnalysis:
		img := prepareForAnalysis(data, payload.MIMEType)
		payload.Caption, err = r.generator.CaptionFromImage(ctx, img, opts.request())
	default:
		payload.Caption = CaptionFromFilename(path)
	}
	if err != nil {
		return nil, fmt.Errorf("caption generation failed: %w", err)
	}
	return payload, nil
}

// resolveCrossPost prefers an image-based caption; when the picture cannot be
// fetched it rewrites the original caption instead.
func (r *Resolver) resolveCrossPost(ctx context.Context, post *models.SourcePost, opts Options) (*models.Payload, error) {
	if post == nil || post.PictureURL == "" {
		return nil, ErrNoPhotoURL
	}

	payload := &models.Payload{
		Kind: models.PayloadPhotoURL,
		URL:  post.PictureURL,
	}

	data, err := r.fetchImage(ctx, post.PictureURL)
	if err != nil {
		r.log.Warn().
			Err(err).
			Str("post_id", post.ID).
			Msg("Could not load source image, rewriting caption text instead")

		payload.Caption, err = r.generator.RewriteCaption(ctx, post.Message, opts.request())
		if err != nil {
			return nil, fmt.Errorf("caption rewrite failed: %w", err)
		}
		return payload, nil
	}

	img := prepareForAnalysis(data, mimeOf(data))
	payload.Caption, err = r.generator.CaptionFromImage(ctx, img, opts.request())
	if err != nil {
		return nil, fmt.Errorf("caption generation failed: %w", err)
	}
	return payload, nil
}

// fetchImage treats empty or non-image bodies as a failed fetch
func (r *Resolver) fetchImage(ctx context.Context, url string) ([]byte, error) {
	if r.fetcher == nil {
		return nil, errors.New("no image fetcher configured")
	}
	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image body is empty")
	}
	if !filetype.IsImage(data) {
		return nil, errors.New("fetched body is not an image")
	}
	return data, nil
}

func (r *Resolver) resolveNews(ctx context.Context, article *models.Article, opts Options) (*models.Payload, error) {
	if article == nil {
		return nil, errors.New("news item has no article")
	}
	caption, err := r.generator.NewsCard(ctx, *article, opts.request())
	if err != nil {
		return nil, fmt.Errorf("fact card generation failed: %w", err)
	}
	return &models.Payload{
		Kind:    models.PayloadLink,
		Caption: caption,
		URL:     article.URL,
	}, nil
}

func mimeOf(data []byte) string {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
