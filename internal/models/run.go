package models

import (
	"time"
)

// RunState is the lifecycle state of a scheduling run
type RunState string

const (
	RunStateIdle           RunState = "idle"
	RunStateRunning        RunState = "running"
	RunStatePaused         RunState = "paused"
	RunStateCancelled      RunState = "cancelled"
	RunStateCompleted      RunState = "completed"
	RunStateFatalAuthError RunState = "fatal_auth_error"
)

// IsTerminal reports whether the run has finished
func (s RunState) IsTerminal() bool {
	return s == RunStateCancelled || s == RunStateCompleted || s == RunStateFatalAuthError
}

// IsActive reports whether a run is currently owning the controller
func (s RunState) IsActive() bool {
	return s == RunStateRunning || s == RunStatePaused
}

// LogStatus is the severity of a run log entry
type LogStatus string

const (
	LogInfo    LogStatus = "info"
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
)

// LogEntry is an immutable record of one event in a run
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	ItemLabel string    `json:"item_label"`
	Status    LogStatus `json:"status"`
	Message   string    `json:"message"`
}

// Progress reports how many queue positions have been visited
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// RunRecord is the persisted summary of a finished run
type RunRecord struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RunID      string     `gorm:"uniqueIndex;not null" json:"run_id"`
	PageID     string     `gorm:"index" json:"page_id"`
	ItemKind   string     `json:"item_kind"`
	State      RunState   `json:"state"`
	Total      int        `json:"total"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	LastError  string     `gorm:"type:text" json:"last_error"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
