package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

var _ storage.Repository = (*Repository)(nil)

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	inMemory := strings.Contains(dsn, ":memory:")

	if !inMemory {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every new connection to :memory: is a fresh empty database
	if inMemory {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Setting{},
		&models.OAuthToken{},
		&models.InsightsSnapshot{},
		&models.RunRecord{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Settings

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	if err := r.db.WithContext(ctx).Where("name = ?", key).First(&setting).Error; err != nil {
		return "", notFound(err)
	}
	return setting.Value, nil
}

func (r *Repository) SaveSetting(ctx context.Context, key, value string) error {
	setting := models.Setting{Key: key, Value: value}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

// OAuth token operations

func (r *Repository) SaveToken(ctx context.Context, token *models.OAuthToken) error {
	// Upsert - update if exists, create if not
	var existing models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", token.Provider).First(&existing).Error; err == nil {
		token.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(token).Error
}

func (r *Repository) GetToken(ctx context.Context, provider string) (*models.OAuthToken, error) {
	var token models.OAuthToken
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).First(&token).Error; err != nil {
		return nil, notFound(err)
	}
	return &token, nil
}

func (r *Repository) DeleteToken(ctx context.Context, provider string) error {
	return r.db.WithContext(ctx).Where("provider = ?", provider).Delete(&models.OAuthToken{}).Error
}

// Insights snapshots

func (r *Repository) SaveInsights(ctx context.Context, snapshot *models.InsightsSnapshot) error {
	return r.db.WithContext(ctx).Create(snapshot).Error
}

func (r *Repository) LatestInsights(ctx context.Context, pageID string) (*models.InsightsSnapshot, error) {
	var snapshot models.InsightsSnapshot
	if err := r.db.WithContext(ctx).
		Where("page_id = ?", pageID).
		Order("fetched_at DESC").
		First(&snapshot).Error; err != nil {
		return nil, notFound(err)
	}
	return &snapshot, nil
}

// Run records

func (r *Repository) SaveRun(ctx context.Context, run *models.RunRecord) error {
	var existing models.RunRecord
	if err := r.db.WithContext(ctx).Where("run_id = ?", run.RunID).First(&existing).Error; err == nil {
		run.ID = existing.ID
	}
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *Repository) ListRuns(ctx context.Context, filter storage.RunFilter) ([]*models.RunRecord, error) {
	var runs []*models.RunRecord
	query := r.db.WithContext(ctx).Model(&models.RunRecord{})

	if filter.PageID != nil {
		query = query.Where("page_id = ?", *filter.PageID)
	}
	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}

	query = query.Order("started_at DESC")

	// Pagination
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
