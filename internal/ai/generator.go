// Package ai turns images, captions and articles into Facebook captions with a
// generative model.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/pkg/logger"
	"github.com/fbpage-agent/pkg/ratelimit"
)

// ErrEmptyCaption is returned when the model produced no usable text
var ErrEmptyCaption = errors.New("generator returned an empty caption")

// Image is inline image data sent along with a prompt
type Image struct {
	Data     []byte
	MIMEType string
}

// Completer is a single-turn text model
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userMessage string, img *Image) (string, error)
}

// CaptionRequest carries the per-run caption settings
type CaptionRequest struct {
	Language string
	Context  string
}

// CaptionGenerator produces captions; failures are returned, never retried
type CaptionGenerator interface {
	CaptionFromImage(ctx context.Context, img Image, req CaptionRequest) (string, error)
	RewriteCaption(ctx context.Context, text string, req CaptionRequest) (string, error)
	NewsCard(ctx context.Context, article models.Article, req CaptionRequest) (string, error)
}

// Generator builds caption prompts on top of a Completer
type Generator struct {
	completer Completer
	log       *logger.Logger
}

var _ CaptionGenerator = (*Generator)(nil)

// NewGenerator creates a caption generator
func NewGenerator(completer Completer, log *logger.Logger) *Generator {
	return &Generator{
		completer: completer,
		log:       log.WithComponent("captions"),
	}
}

// NewFromConfig wires the configured provider
func NewFromConfig(ctx context.Context, cfg *config.Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*Generator, error) {
	switch cfg.AI.Provider {
	case "anthropic":
		return NewGenerator(NewAnthropicClient(cfg.Anthropic, limiter, log), log), nil
	case "gemini", "":
		gc, err := NewGeminiClient(ctx, cfg.Gemini, limiter, log)
		if err != nil {
			return nil, err
		}
		return NewGenerator(gc, log), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}

// CaptionFromImage describes an image in the requested language
func (g *Generator) CaptionFromImage(ctx context.Context, img Image, req CaptionRequest) (string, error) {
	if len(img.Data) == 0 {
		return "", errors.New("image has no data")
	}
	user := fmt.Sprintf(ImageCaptionUserPrompt, contextFor(req))
	return g.caption(ctx, systemFor(CaptionSystemPrompt, req), user, &img)
}

// RewriteCaption rewords existing caption text
func (g *Generator) RewriteCaption(ctx context.Context, text string, req CaptionRequest) (string, error) {
	user := fmt.Sprintf(RewriteCaptionUserPrompt, text, contextFor(req))
	return g.caption(ctx, systemFor(CaptionSystemPrompt, req), user, nil)
}

// NewsCard writes a fact card from an article
func (g *Generator) NewsCard(ctx context.Context, article models.Article, req CaptionRequest) (string, error) {
	user := fmt.Sprintf(NewsCardUserPrompt, article.Title, article.Summary, article.FeedName)
	if req.Context != "" {
		user += "\n" + contextFor(req)
	}
	return g.caption(ctx, systemFor(NewsCardSystemPrompt, req), user, nil)
}

func (g *Generator) caption(ctx context.Context, system, user string, img *Image) (string, error) {
	raw, err := g.completer.Complete(ctx, system, user, img)
	if err != nil {
		return "", err
	}
	caption := parseCaption(raw)
	if caption == "" {
		return "", ErrEmptyCaption
	}
	g.log.Debug().Int("length", len(caption)).Msg("Generated caption")
	return caption, nil
}

func systemFor(prompt string, req CaptionRequest) string {
	lang := req.Language
	if lang == "" {
		lang = "English"
	}
	return fmt.Sprintf(prompt, lang)
}

func contextFor(req CaptionRequest) string {
	if req.Context == "" {
		return ""
	}
	return fmt.Sprintf(contextLine, req.Context)
}

// parseCaption accepts {"caption": ...}, optionally wrapped in a markdown
// code block, and falls back to the trimmed raw text.
func parseCaption(response string) string {
	payload := stripMarkdownCodeBlock(response)
	var parsed struct {
		Caption string `json:"caption"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err == nil {
		return strings.TrimSpace(parsed.Caption)
	}
	return strings.Trim(strings.TrimSpace(response), `"`)
}

// stripMarkdownCodeBlock cuts the response down to its outermost JSON object
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)

	startIdx := strings.Index(response, "{")
	if startIdx == -1 {
		return response
	}

	endIdx := strings.LastIndex(response, "}")
	if endIdx == -1 || endIdx < startIdx {
		return response
	}

	return response[startIdx : endIdx+1]
}
