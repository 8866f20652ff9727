package source

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/fbpage-agent/internal/models"
)

// NewsSource defines the interface for fact card article sources
type NewsSource interface {
	// Name returns the unique name of this source
	Name() string

	// Type returns the source type (rss, custom)
	Type() string

	// Fetch retrieves articles from the source
	Fetch(ctx context.Context) ([]models.Article, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// GenerateGUID creates a stable ID for an article from its source type and URL
func GenerateGUID(sourceType, url string) string {
	data := fmt.Sprintf("%s:%s", sourceType, url)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16]) // Use first 16 bytes (32 hex chars)
}

// Manager manages multiple news sources
type Manager struct {
	sources []NewsSource
}

// NewManager creates a new source manager
func NewManager() *Manager {
	return &Manager{
		sources: make([]NewsSource, 0),
	}
}

// Register adds a source to the manager
func (m *Manager) Register(source NewsSource) {
	m.sources = append(m.sources, source)
}

// GetSources returns all registered sources
func (m *Manager) GetSources() []NewsSource {
	return m.sources
}

// GetSourceByName returns the source with the given name, or nil
func (m *Manager) GetSourceByName(name string) NewsSource {
	for _, s := range m.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// FetchAll fetches articles from all sources concurrently, newest first
func (m *Manager) FetchAll(ctx context.Context) ([]models.Article, []error) {
	type result struct {
		articles []models.Article
		err      error
	}

	results := make(chan result, len(m.sources))

	for _, source := range m.sources {
		go func(s NewsSource) {
			articles, err := s.Fetch(ctx)
			results <- result{articles: articles, err: err}
		}(source)
	}

	var all []models.Article
	var errs []error

	for range m.sources {
		r := <-results
		if r.err != nil {
			errs = append(errs, r.err)
		} else {
			all = append(all, r.articles...)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedAt.After(all[j].PublishedAt)
	})
	return all, errs
}

// Select returns up to n articles, in order, that seen does not report and
// that are not duplicates of an earlier article
func Select(articles []models.Article, n int, seen func(guid string) bool) []models.Article {
	picked := make([]models.Article, 0, n)
	dup := make(map[string]bool)
	for _, a := range articles {
		if len(picked) >= n {
			break
		}
		if dup[a.GUID] || (seen != nil && seen(a.GUID)) {
			continue
		}
		dup[a.GUID] = true
		picked = append(picked, a)
	}
	return picked
}
