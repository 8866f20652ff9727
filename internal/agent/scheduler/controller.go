// Package scheduler runs a batch of queue items through resolve and publish,
// one item at a time, with pause and cancel controls.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fbpage-agent/internal/history"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/planner"
	"github.com/fbpage-agent/internal/resolver"
	"github.com/fbpage-agent/pkg/logger"
)

// ContentResolver turns a queue item into a payload
type ContentResolver interface {
	Resolve(ctx context.Context, item models.QueueItem, opts resolver.Options) (*models.Payload, error)
}

// Publisher sends a payload to the destination page
type Publisher interface {
	Publish(ctx context.Context, payload *models.Payload, dest models.Destination, scheduleAt *time.Time, placeID string) (*models.PublishResult, error)
}

// HistorySet remembers which items were already published where
type HistorySet interface {
	Has(key string) bool
	Add(ctx context.Context, key string) error
}

// Recorder mirrors successful items to an external tracker
type Recorder interface {
	Record(ctx context.Context, rec models.PublishRecord) error
}

// RunStore persists run summaries
type RunStore interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
}

// Option configures a Controller
type Option func(*Controller)

// WithNotifier sets where log entries and run outcomes are reported
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithRecorder sets the tracker that receives successful items
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithRunStore persists a record of every run
func WithRunStore(s RunStore) Option {
	return func(c *Controller) { c.runs = s }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRand fixes the minute jitter of smart schedules
func WithRand(rng planner.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// Controller owns at most one run at a time
type Controller struct {
	resolver  ContentResolver
	publisher Publisher
	history   HistorySet
	notifier  Notifier
	recorder  Recorder
	runs      RunStore
	now       func() time.Time
	rng       planner.Rand
	log       *logger.Logger

	mu        sync.Mutex
	state     models.RunState
	runID     string
	progress  models.Progress
	entries   []models.LogEntry
	paused    bool
	resume    chan struct{} // closed when a pause ends
	cancelled bool
	cancel    chan struct{} // closed on the first cancel request
	done      chan struct{}
	summary   Summary
}

// NewController creates an idle controller
func NewController(res ContentResolver, pub Publisher, hist HistorySet, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		resolver:  res,
		publisher: pub,
		history:   hist,
		notifier:  nopNotifier{},
		now:       time.Now,
		log:       log.WithComponent("scheduler"),
		state:     models.RunStateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches a run for batch. While a run is active it requests
// cancellation of that run instead and returns false. An invalid batch is
// rejected with the error and the state does not change.
func (c *Controller) Start(ctx context.Context, batch Batch) (bool, error) {
	c.mu.Lock()
	if c.state.IsActive() {
		c.requestCancelLocked()
		c.mu.Unlock()
		return false, nil
	}
	c.mu.Unlock()

	slots, err := c.prepare(batch)
	if err != nil {
		c.notifier.RunRejected(err)
		return false, err
	}

	c.mu.Lock()
	// Lost a race with another Start
	if c.state.IsActive() {
		c.mu.Unlock()
		return false, nil
	}
	runID := uuid.NewString()
	c.state = models.RunStateRunning
	c.runID = runID
	c.progress = models.Progress{Current: 0, Total: len(batch.Items)}
	c.entries = nil
	c.paused = false
	c.resume = nil
	c.cancelled = false
	c.cancel = make(chan struct{})
	c.done = make(chan struct{})
	c.summary = Summary{
		RunID:     runID,
		State:     models.RunStateRunning,
		Total:     len(batch.Items),
		StartedAt: c.now(),
	}
	c.mu.Unlock()

	c.log.Info().
		Str("run_id", runID).
		Str("page_id", batch.Destination.ID).
		Int("items", len(batch.Items)).
		Bool("smart", batch.Schedule.Smart && batch.Slots == nil).
		Msg("Starting run")

	c.saveRun(ctx, batch)
	go c.run(ctx, runID, batch, slots)
	return true, nil
}

func (c *Controller) prepare(batch Batch) ([]time.Time, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	slots, err := batch.plan(c.now(), c.rng)
	if err != nil {
		return nil, err
	}
	return slots, nil
}

// TogglePause pauses a running run or resumes a paused one and returns the new state
func (c *Controller) TogglePause() models.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case models.RunStateRunning:
		c.paused = true
		c.resume = make(chan struct{})
		c.state = models.RunStatePaused
	case models.RunStatePaused:
		c.paused = false
		close(c.resume)
		c.state = models.RunStateRunning
	}
	return c.state
}

// RequestCancel asks the active run to stop before its next item.
// It reports whether a run was active.
func (c *Controller) RequestCancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsActive() {
		return false
	}
	c.requestCancelLocked()
	return true
}

func (c *Controller) requestCancelLocked() {
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.cancel)
}

// State returns the current run state
func (c *Controller) State() models.RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RunID returns the id of the current or last run
func (c *Controller) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// Progress returns how many queue positions the run has visited
func (c *Controller) Progress() models.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// Log returns the run log, newest entry first
func (c *Controller) Log() []models.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.LogEntry, len(c.entries))
	for i, e := range c.entries {
		out[len(c.entries)-1-i] = e
	}
	return out
}

// Wait blocks until the current run reaches a terminal state
func (c *Controller) Wait(ctx context.Context) (Summary, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return Summary{}, ErrNoRun
	}

	select {
	case <-done:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary, nil
}

func (c *Controller) run(ctx context.Context, runID string, batch Batch, slots []time.Time) {
	log := c.log.WithRunID(runID).WithPageID(batch.Destination.ID)
	total := len(batch.Items)
	final := models.RunStateCompleted
	var authErr error

	for i, item := range batch.Items {
		if !c.awaitTurn(ctx) {
			final = models.RunStateCancelled
			break
		}

		outcome, err := c.processItem(ctx, runID, batch, i, item, slots[i])
		c.mu.Lock()
		switch outcome {
		case outcomeSucceeded:
			c.summary.Succeeded++
		case outcomeSkipped:
			c.summary.Skipped++
		default:
			c.summary.Failed++
			c.summary.LastError = err.Error()
		}
		c.progress = models.Progress{Current: i + 1, Total: total}
		c.mu.Unlock()

		if outcome == outcomeAuthFailed {
			final = models.RunStateFatalAuthError
			authErr = err
			break
		}
	}

	c.finish(ctx, log, batch, final, authErr)
}

// awaitTurn reports whether the next item may start. It blocks while the run
// is paused and returns false once cancellation is requested.
func (c *Controller) awaitTurn(ctx context.Context) bool {
	for {
		c.mu.Lock()
		cancelled := c.cancelled
		paused := c.paused
		resume := c.resume
		cancel := c.cancel
		c.mu.Unlock()

		if cancelled || ctx.Err() != nil {
			return false
		}
		if !paused {
			return true
		}

		select {
		case <-resume:
		case <-cancel:
		case <-ctx.Done():
		}
	}
}

type itemOutcome int

const (
	outcomeSucceeded itemOutcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeAuthFailed
)

// processItem is the catch boundary for a single item
func (c *Controller) processItem(ctx context.Context, runID string, batch Batch, index int, item models.QueueItem, slot time.Time) (outcome itemOutcome, err error) {
	label := item.Label()
	log := c.log.WithRunID(runID).WithItem(index, label)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing item: %v", r)
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			c.addEntry(runID, label, models.LogError, err.Error())
			outcome = outcomeFailed
		}
	}()

	key := history.Key(item.SourceID(), batch.Destination.ID)
	if c.history.Has(key) {
		c.addEntry(runID, label, models.LogInfo, "Skipped: already processed")
		return outcomeSkipped, nil
	}

	if adjusted, moved := planner.AdjustPastSlot(slot, c.now()); moved {
		c.addEntry(runID, label, models.LogInfo, fmt.Sprintf("Slot %s already passed, moved to %s",
			slot.Format(time.RFC3339), adjusted.Format(time.RFC3339)))
		slot = adjusted
	}

	payload, err := c.resolver.Resolve(ctx, item, batch.Caption)
	if err != nil {
		c.addEntry(runID, label, models.LogError, err.Error())
		return outcomeFailed, err
	}

	result, err := c.publisher.Publish(ctx, payload, batch.Destination, &slot, batch.PlaceID)
	if err != nil {
		c.addEntry(runID, label, models.LogError, err.Error())
		if Classify(err) == ErrorKindAuth {
			return outcomeAuthFailed, err
		}
		return outcomeFailed, err
	}

	if err := c.history.Add(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to persist history")
	}

	c.addEntry(runID, label, models.LogSuccess, fmt.Sprintf("Scheduled for %s (post %s)",
		slot.Format("Mon Jan 2 15:04 MST"), result.PostID))

	if c.recorder != nil {
		rec := models.PublishRecord{
			RunID:       runID,
			ItemKind:    item.Kind,
			ItemLabel:   label,
			SourceID:    item.SourceID(),
			PageID:      batch.Destination.ID,
			PageName:    batch.Destination.Name,
			PostID:      result.PostID,
			Caption:     payload.Caption,
			ScheduledAt: result.ScheduledAt,
			RecordedAt:  c.now(),
		}
		if err := c.recorder.Record(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("Failed to record published item")
		}
	}

	return outcomeSucceeded, nil
}

func (c *Controller) addEntry(runID, label string, status models.LogStatus, message string) {
	entry := models.LogEntry{
		Timestamp: c.now(),
		ItemLabel: label,
		Status:    status,
		Message:   message,
	}
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()
	c.notifier.Entry(runID, entry)
}

func (c *Controller) finish(ctx context.Context, log *logger.Logger, batch Batch, final models.RunState, authErr error) {
	c.mu.Lock()
	c.state = final
	c.paused = false
	c.summary.State = final
	c.summary.FinishedAt = c.now()
	summary := c.summary
	done := c.done
	c.mu.Unlock()

	// the final record is written even when the run ended because ctx was cancelled
	c.saveRun(context.WithoutCancel(ctx), batch)

	log.Info().
		Str("state", string(final)).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Run finished")

	if final == models.RunStateFatalAuthError {
		c.notifier.ReauthRequired(batch.Destination, authErr)
	} else {
		c.notifier.RunFinished(summary)
	}
	close(done)
}

func (c *Controller) saveRun(ctx context.Context, batch Batch) {
	if c.runs == nil {
		return
	}
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()

	var kind models.ItemKind
	if len(batch.Items) > 0 {
		kind = batch.Items[0].Kind
	}
	if err := c.runs.SaveRun(ctx, summary.record(batch.Destination, kind)); err != nil {
		c.log.Warn().Err(err).Str("run_id", summary.RunID).Msg("Failed to save run record")
	}
}
