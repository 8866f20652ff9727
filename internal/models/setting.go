package models

import (
	"time"
)

// Setting is a named value in the key/value settings table
type Setting struct {
	Key       string    `gorm:"primaryKey;column:name" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// InsightsSnapshot caches a page's hourly engagement curve
type InsightsSnapshot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PageID    string    `gorm:"index;not null" json:"page_id"`
	Hourly    JSON      `gorm:"type:json" json:"hourly"` // {"scores": [24]float64}
	Source    string    `json:"source"`                  // graph or simulated
	FetchedAt time.Time `gorm:"index" json:"fetched_at"`
}
