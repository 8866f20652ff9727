package custom

import (
	"context"
	"time"

	"github.com/fbpage-agent/internal/config"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/source"
	"github.com/fbpage-agent/pkg/logger"
)

// Source serves hand-written facts from the config as fact card articles
type Source struct {
	facts []config.CustomFact
	log   *logger.Logger
}

// New creates a new custom source
func New(cfg config.CustomConfig, log *logger.Logger) *Source {
	return &Source{
		facts: cfg.Facts,
		log:   log.WithSource("custom", "facts"),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "custom-facts"
}

// Type returns "custom"
func (s *Source) Type() string {
	return "custom"
}

// Fetch returns every configured fact; the history store filters the ones already posted
func (s *Source) Fetch(ctx context.Context) ([]models.Article, error) {
	s.log.Debug().Int("count", len(s.facts)).Msg("Returning custom facts")

	articles := make([]models.Article, 0, len(s.facts))
	for i, f := range s.facts {
		key := f.URL
		if key == "" {
			key = f.Title
		}
		// keep config order when sorted newest first
		published := time.Unix(0, 0).Add(-time.Duration(i) * time.Second)
		articles = append(articles, models.Article{
			GUID:        source.GenerateGUID("custom", key),
			Title:       f.Title,
			Summary:     f.Summary,
			URL:         f.URL,
			FeedName:    "custom",
			PublishedAt: published,
		})
	}
	return articles, nil
}

// HealthCheck always succeeds for custom sources
func (s *Source) HealthCheck(ctx context.Context) error {
	return nil
}

var _ source.NewsSource = (*Source)(nil)
