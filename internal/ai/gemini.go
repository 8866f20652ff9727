package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/pkg/logger"
	"github.com/fbpage-agent/pkg/ratelimit"
)

// GeminiClient calls the Gemini API through the genai SDK
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

var _ Completer = (*GeminiClient)(nil)

// NewGeminiClient creates a Gemini client for the Gemini Developer API
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		rateLimiter: limiter,
		log:         log.WithComponent("gemini"),
	}, nil
}

// Complete sends the prompt, and the image when given, as one user turn
func (c *GeminiClient) Complete(ctx context.Context, systemPrompt, userMessage string, img *Image) (string, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterGemini); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	parts := []*genai.Part{{Text: userMessage}}
	if img != nil {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data}})
	}
	contents := []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: parts,
		},
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		ResponseMIMEType: "application/json",
	}
	if systemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	c.log.Debug().
		Str("model", c.model).
		Bool("image", img != nil).
		Msg("Sending request to Gemini")

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
	if err != nil {
		c.log.Error().Err(err).Msg("Gemini API error")
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	if result == nil {
		return "", fmt.Errorf("gemini returned no result")
	}

	if result.UsageMetadata != nil {
		c.log.Debug().
			Int32("prompt_tokens", result.UsageMetadata.PromptTokenCount).
			Int32("output_tokens", result.UsageMetadata.CandidatesTokenCount).
			Msg("Received Gemini response")
	}

	return strings.TrimSpace(result.Text()), nil
}
