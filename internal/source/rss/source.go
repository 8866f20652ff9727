package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/source"
	"github.com/fbpage-agent/pkg/logger"
	"github.com/fbpage-agent/pkg/ratelimit"
)

const defaultMaxAge = 2 * 24 * time.Hour

// Source implements NewsSource for RSS feeds
type Source struct {
	name        string
	url         string
	maxAge      time.Duration
	parser      *gofeed.Parser
	rateLimiter *ratelimit.MultiLimiter
	now         func() time.Time
	log         *logger.Logger
}

// New creates a new RSS source for a single feed
func New(feed config.RSSFeed, maxAgeDays int, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	maxAge := defaultMaxAge
	if maxAgeDays > 0 {
		maxAge = time.Duration(maxAgeDays) * 24 * time.Hour
	}
	return &Source{
		name:        feed.Name,
		url:         feed.URL,
		maxAge:      maxAge,
		parser:      gofeed.NewParser(),
		rateLimiter: limiter,
		now:         time.Now,
		log:         log.WithSource("rss", feed.Name),
	}
}

// NewMultiple creates multiple RSS sources from config
func NewMultiple(cfg config.RSSConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		sources = append(sources, New(feed, cfg.MaxAgeDays, limiter, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Type returns "rss"
func (s *Source) Type() string {
	return "rss"
}

// Fetch retrieves recent articles from the feed
func (s *Source) Fetch(ctx context.Context) ([]models.Article, error) {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	s.log.Debug().Str("url", s.url).Msg("Fetching RSS feed")

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", s.name, err)
	}

	now := s.now()
	articles := make([]models.Article, 0, len(feed.Items))

	for _, item := range feed.Items {
		if item.Link == "" || strings.TrimSpace(item.Title) == "" {
			continue
		}

		publishedAt := now
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}
		if now.Sub(publishedAt) > s.maxAge {
			continue
		}

		guid := item.GUID
		if guid == "" {
			guid = source.GenerateGUID("rss", item.Link)
		}

		articles = append(articles, models.Article{
			GUID:        guid,
			Title:       cleanText(item.Title),
			Summary:     cleanText(item.Description),
			URL:         item.Link,
			FeedName:    s.name,
			PublishedAt: publishedAt,
		})
	}

	s.log.Info().
		Int("count", len(articles)).
		Str("feed", s.name).
		Msg("Fetched RSS articles")

	return articles, nil
}

// HealthCheck verifies the RSS feed is accessible
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.parser.ParseURLWithContext(s.url, ctx)
	return err
}

// cleanText removes HTML tags and extra whitespace
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "<br>", " ")
	text = strings.ReplaceAll(text, "<br/>", " ")
	text = strings.ReplaceAll(text, "<br />", " ")
	text = strings.ReplaceAll(text, "</p>", " ")
	text = strings.ReplaceAll(text, "<p>", "")

	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
		} else if r == '>' {
			inTag = false
		} else if !inTag {
			result.WriteRune(r)
		}
	}

	text = result.String()
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

var _ source.NewsSource = (*Source)(nil)
