package storage

import (
	"context"
	"errors"

	"github.com/fbpage-agent/internal/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	// Settings are small named values, e.g. the serialized publish history
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key, value string) error

	// OAuth token operations
	SaveToken(ctx context.Context, token *models.OAuthToken) error
	GetToken(ctx context.Context, provider string) (*models.OAuthToken, error)
	DeleteToken(ctx context.Context, provider string) error

	// Insights snapshots
	SaveInsights(ctx context.Context, snapshot *models.InsightsSnapshot) error
	LatestInsights(ctx context.Context, pageID string) (*models.InsightsSnapshot, error)

	// Run records
	SaveRun(ctx context.Context, run *models.RunRecord) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.RunRecord, error)

	// Maintenance
	Close() error
	Migrate() error
}

// RunFilter defines filtering options for run records
type RunFilter struct {
	PageID *string
	State  *models.RunState
	Limit  int
	Offset int
}

// DefaultRunFilter returns a filter with sensible defaults
func DefaultRunFilter() RunFilter {
	return RunFilter{
		Limit: 20,
	}
}
