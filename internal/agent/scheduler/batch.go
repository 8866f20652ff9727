package scheduler

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/planner"
	"github.com/fbpage-agent/internal/resolver"
)

var (
	// ErrInvalidBatch is returned by Start for batches that cannot run
	ErrInvalidBatch = errors.New("invalid batch")
	// ErrNoRun is returned by Wait before any run was started
	ErrNoRun = errors.New("no run has been started")
)

// Batch is everything one run needs
type Batch struct {
	Items       []models.QueueItem
	Destination models.Destination

	// Schedule is planned at start unless Slots already holds one slot per item
	Schedule planner.ScheduleConfig
	Slots    []time.Time
	// Scores ranks the hours of the day for smart schedules
	Scores [24]float64

	Caption resolver.Options
	PlaceID string
}

// Validate rejects batches before any state changes
func (b Batch) Validate() error {
	modes := validation.In(resolver.ModeDemo, resolver.ModeFilename, resolver.ModeImageAnalysis)
	err := validation.Errors{
		"items":        validation.Validate(b.Items, validation.Required),
		"destination":  validation.Validate(b.Destination.ID, validation.Required),
		"access_token": validation.Validate(b.Destination.AccessToken, validation.Required),
		"caption_mode": validation.Validate(b.Caption.Mode, modes),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBatch, err)
	}

	if b.Slots != nil {
		if len(b.Slots) < len(b.Items) {
			return fmt.Errorf("%w: %d slots for %d items", ErrInvalidBatch, len(b.Slots), len(b.Items))
		}
		return nil
	}
	return b.Schedule.Validate()
}

func (b Batch) plan(now time.Time, rng planner.Rand) ([]time.Time, error) {
	if b.Slots != nil {
		return append([]time.Time(nil), b.Slots[:len(b.Items)]...), nil
	}
	return planner.Plan(b.Schedule, len(b.Items), now, b.Scores, rng)
}

// Summary is the outcome of a finished run
type Summary struct {
	RunID      string
	State      models.RunState
	Total      int
	Succeeded  int
	Failed     int
	Skipped    int
	LastError  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time the run took
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

func (s Summary) record(dest models.Destination, kind models.ItemKind) *models.RunRecord {
	rec := &models.RunRecord{
		RunID:     s.RunID,
		PageID:    dest.ID,
		ItemKind:  string(kind),
		State:     s.State,
		Total:     s.Total,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		LastError: s.LastError,
		StartedAt: s.StartedAt,
	}
	if !s.FinishedAt.IsZero() {
		finished := s.FinishedAt
		rec.FinishedAt = &finished
	}
	return rec
}
