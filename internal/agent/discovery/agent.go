package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/fbpage-agent/internal/history"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/source"
	"github.com/fbpage-agent/pkg/logger"
)

// Seen reports whether a history key was already published
type Seen interface {
	Has(key string) bool
}

// Agent turns fresh news articles into queue items for a fact card run
type Agent struct {
	sourceManager *source.Manager
	history       Seen
	log           *logger.Logger
}

// NewAgent creates a new discovery agent
func NewAgent(sourceManager *source.Manager, seen Seen, log *logger.Logger) *Agent {
	return &Agent{
		sourceManager: sourceManager,
		history:       seen,
		log:           log.WithComponent("discovery"),
	}
}

// Result contains the results of a discovery run
type Result struct {
	ArticlesFound int
	AlreadyPosted int
	Items         []models.QueueItem
	Errors        []error
	Duration      time.Duration
}

// Run fetches every source and picks up to n articles not yet posted to dest
func (a *Agent) Run(ctx context.Context, dest models.Destination, n int) (*Result, error) {
	startTime := time.Now()
	result := &Result{}

	a.log.Info().Str("page_id", dest.ID).Int("wanted", n).Msg("Starting news discovery")

	articles, fetchErrors := a.sourceManager.FetchAll(ctx)
	result.Errors = append(result.Errors, fetchErrors...)
	result.ArticlesFound = len(articles)

	a.log.Info().
		Int("articles_found", len(articles)).
		Int("fetch_errors", len(fetchErrors)).
		Msg("Fetched articles from sources")

	if len(articles) == 0 && len(fetchErrors) > 0 {
		result.Duration = time.Since(startTime)
		return result, fmt.Errorf("all sources failed: %w", fetchErrors[0])
	}

	a.pick(result, articles, dest, n)
	result.Duration = time.Since(startTime)

	a.log.Info().
		Int("selected", len(result.Items)).
		Int("already_posted", result.AlreadyPosted).
		Dur("duration", result.Duration).
		Msg("Discovery completed")

	return result, nil
}

// RunForSource runs discovery for a single named source
func (a *Agent) RunForSource(ctx context.Context, sourceName string, dest models.Destination, n int) (*Result, error) {
	startTime := time.Now()
	result := &Result{}

	src := a.sourceManager.GetSourceByName(sourceName)
	if src == nil {
		return nil, fmt.Errorf("source not found: %s", sourceName)
	}

	a.log.Info().Str("source", sourceName).Msg("Running discovery for source")

	articles, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from %s: %w", sourceName, err)
	}
	result.ArticlesFound = len(articles)

	a.pick(result, articles, dest, n)
	result.Duration = time.Since(startTime)
	return result, nil
}

func (a *Agent) pick(result *Result, articles []models.Article, dest models.Destination, n int) {
	seen := func(guid string) bool {
		if a.history == nil {
			return false
		}
		if a.history.Has(history.Key(guid, dest.ID)) {
			result.AlreadyPosted++
			return true
		}
		return false
	}

	for _, article := range source.Select(articles, n, seen) {
		article := article
		result.Items = append(result.Items, models.QueueItem{
			Kind:    models.ItemKindNews,
			Article: &article,
		})
	}
}
