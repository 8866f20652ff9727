package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbpage-agent/internal/history"
	"github.com/fbpage-agent/internal/models"
	"github.com/fbpage-agent/internal/planner"
	"github.com/fbpage-agent/internal/resolver"
	"github.com/fbpage-agent/pkg/logger"
)

var testNow = time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)

var testDest = models.Destination{ID: "page-1", Name: "Beach Club", AccessToken: "page-token"}

type stubResolver struct {
	panicOn string
	failOn  map[string]error
}

func (r *stubResolver) Resolve(_ context.Context, item models.QueueItem, _ resolver.Options) (*models.Payload, error) {
	if item.FilePath == r.panicOn {
		panic("boom")
	}
	if err := r.failOn[item.FilePath]; err != nil {
		return nil, err
	}
	return &models.Payload{Kind: models.PayloadPhoto, Caption: "caption " + item.FilePath, Data: []byte("x")}, nil
}

type publishCall struct {
	Caption string
	At      time.Time
}

// stubPublisher fails at chosen positions and can run a hook during a call
type stubPublisher struct {
	mu     sync.Mutex
	calls  []publishCall
	failAt map[int]error
	during map[int]func()
}

func (p *stubPublisher) Publish(_ context.Context, payload *models.Payload, _ models.Destination, at *time.Time, _ string) (*models.PublishResult, error) {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, publishCall{Caption: payload.Caption, At: *at})
	hook := p.during[n]
	err := p.failAt[n]
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return &models.PublishResult{PostID: fmt.Sprintf("post-%d", n), ScheduledAt: at}, nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type failingPersister struct{}

func (failingPersister) LoadKeys(context.Context) ([]string, error) { return nil, nil }
func (failingPersister) SaveKeys(context.Context, []string) error {
	return errors.New("disk full")
}

type recordingNotifier struct {
	mu       sync.Mutex
	entries  []models.LogEntry
	finished []Summary
	reauth   []error
	rejected []error
}

func (n *recordingNotifier) Entry(_ string, e models.LogEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, e)
}

func (n *recordingNotifier) RunFinished(s Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished = append(n.finished, s)
}

func (n *recordingNotifier) ReauthRequired(_ models.Destination, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reauth = append(n.reauth, err)
}

func (n *recordingNotifier) RunRejected(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejected = append(n.rejected, err)
}

type memRunStore struct {
	mu   sync.Mutex
	runs map[string]models.RunRecord
}

func (s *memRunStore) SaveRun(_ context.Context, run *models.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs == nil {
		s.runs = make(map[string]models.RunRecord)
	}
	s.runs[run.RunID] = *run
	return nil
}

type memRecorder struct {
	mu      sync.Mutex
	records []models.PublishRecord
}

func (r *memRecorder) Record(_ context.Context, rec models.PublishRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type harness struct {
	ctrl     *Controller
	pub      *stubPublisher
	res      *stubResolver
	hist     *history.Store
	notifier *recordingNotifier
	runs     *memRunStore
	recorder *memRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		pub:      &stubPublisher{failAt: map[int]error{}, during: map[int]func(){}},
		res:      &stubResolver{failOn: map[string]error{}},
		hist:     history.New(nil),
		notifier: &recordingNotifier{},
		runs:     &memRunStore{},
		recorder: &memRecorder{},
	}
	h.ctrl = NewController(h.res, h.pub, h.hist, logger.Nop(),
		WithNotifier(h.notifier),
		WithRunStore(h.runs),
		WithRecorder(h.recorder),
		WithClock(func() time.Time { return testNow }),
	)
	return h
}

func uploads(n int) []models.QueueItem {
	items := make([]models.QueueItem, n)
	for i := range items {
		items[i] = models.QueueItem{Kind: models.ItemKindUpload, FilePath: fmt.Sprintf("/photos/img%d.jpg", i)}
	}
	return items
}

// futureSlots are hourly slots starting the day after testNow
func futureSlots(n int) []time.Time {
	slots := make([]time.Time, n)
	for i := range slots {
		slots[i] = testNow.Add(24*time.Hour + time.Duration(i)*time.Hour)
	}
	return slots
}

func batchOf(n int) Batch {
	return Batch{
		Items:       uploads(n),
		Destination: testDest,
		Slots:       futureSlots(n),
		Caption:     resolver.Options{Mode: resolver.ModeFilename},
	}
}

func (h *harness) run(t *testing.T, b Batch) Summary {
	t.Helper()
	started, err := h.ctrl.Start(context.Background(), b)
	require.NoError(t, err)
	require.True(t, started)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := h.ctrl.Wait(ctx)
	require.NoError(t, err)
	return summary
}

func statuses(entries []models.LogEntry) []models.LogStatus {
	out := make([]models.LogStatus, len(entries))
	for i, e := range entries {
		out[i] = e.Status
	}
	return out
}

func TestRunCompletes(t *testing.T) {
	h := newHarness(t)
	b := batchOf(3)

	summary := h.run(t, b)

	assert.Equal(t, models.RunStateCompleted, summary.State)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, models.RunStateCompleted, h.ctrl.State())
	assert.Equal(t, models.Progress{Current: 3, Total: 3}, h.ctrl.Progress())

	var got []time.Time
	for _, c := range h.pub.calls {
		got = append(got, c.At)
	}
	if diff := cmp.Diff(b.Slots, got); diff != "" {
		t.Errorf("publish times mismatch (-want +got):\n%s", diff)
	}

	for _, item := range b.Items {
		assert.True(t, h.hist.Has(history.Key(item.SourceID(), testDest.ID)))
	}

	require.Len(t, h.notifier.finished, 1)
	assert.Empty(t, h.notifier.reauth)
	assert.Len(t, h.recorder.records, 3)
	assert.Equal(t, "post-0", h.recorder.records[0].PostID)

	rec, ok := h.runs.runs[summary.RunID]
	require.True(t, ok)
	assert.Equal(t, models.RunStateCompleted, rec.State)
	assert.Equal(t, 3, rec.Succeeded)
	assert.NotNil(t, rec.FinishedAt)
}

func TestLogIsNewestFirst(t *testing.T) {
	h := newHarness(t)
	h.run(t, batchOf(2))

	log := h.ctrl.Log()
	require.Len(t, log, 2)
	assert.Equal(t, "img1.jpg", log[0].ItemLabel)
	assert.Equal(t, "img0.jpg", log[1].ItemLabel)
}

func TestSkipsItemsAlreadyInHistory(t *testing.T) {
	for pos := 0; pos < 4; pos++ {
		t.Run(fmt.Sprintf("position %d", pos), func(t *testing.T) {
			h := newHarness(t)
			b := batchOf(4)
			require.NoError(t, h.hist.Add(context.Background(), history.Key(b.Items[pos].SourceID(), testDest.ID)))

			summary := h.run(t, b)

			assert.Equal(t, 3, h.pub.count())
			assert.Equal(t, 1, summary.Skipped)

			var skipped []models.LogEntry
			for _, e := range h.notifier.entries {
				if e.ItemLabel == b.Items[pos].Label() {
					skipped = append(skipped, e)
				}
			}
			require.Len(t, skipped, 1)
			assert.Equal(t, models.LogInfo, skipped[0].Status)
			assert.Contains(t, skipped[0].Message, "already processed")
			for _, c := range h.pub.calls {
				assert.NotEqual(t, "caption "+b.Items[pos].FilePath, c.Caption)
			}
		})
	}
}

func TestPastSlotMovesOneDay(t *testing.T) {
	h := newHarness(t)
	b := batchOf(1)
	past := testNow.Add(5 * time.Minute) // inside the 10 minute margin
	b.Slots = []time.Time{past}

	h.run(t, b)

	require.Equal(t, 1, h.pub.count())
	assert.Equal(t, past.AddDate(0, 0, 1), h.pub.calls[0].At)

	entries := h.notifier.entries
	require.Len(t, entries, 2)
	assert.Equal(t, models.LogInfo, entries[0].Status)
	assert.Contains(t, entries[0].Message, "moved to")
	assert.Equal(t, models.LogSuccess, entries[1].Status)
}

func TestAuthFailureHaltsRun(t *testing.T) {
	const n, k = 5, 3
	h := newHarness(t)
	h.pub.failAt[k-1] = errors.New("Error validating access: the user has not authorized application (OAuth)")

	summary := h.run(t, batchOf(n))

	assert.Equal(t, k, h.pub.count())
	assert.Equal(t, models.RunStateFatalAuthError, summary.State)
	assert.Equal(t, models.RunStateFatalAuthError, h.ctrl.State())
	assert.Equal(t, models.Progress{Current: k, Total: n}, h.ctrl.Progress())
	assert.Len(t, h.notifier.reauth, 1)
	assert.Empty(t, h.notifier.finished)
	assert.Equal(t, models.LogError, h.ctrl.Log()[0].Status)
}

func TestGenericFailureContinues(t *testing.T) {
	const n, k = 5, 2
	h := newHarness(t)
	h.pub.failAt[k-1] = errors.New("network timeout")

	summary := h.run(t, batchOf(n))

	assert.Equal(t, n, h.pub.count())
	assert.Equal(t, models.RunStateCompleted, summary.State)
	assert.Equal(t, n-1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "network timeout", summary.LastError)

	want := []models.LogStatus{models.LogSuccess, models.LogError, models.LogSuccess, models.LogSuccess, models.LogSuccess}
	if diff := cmp.Diff(want, statuses(h.notifier.entries)); diff != "" {
		t.Errorf("log statuses mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "network timeout", h.notifier.entries[k-1].Message)
}

func TestResolveFailureIsPerItem(t *testing.T) {
	h := newHarness(t)
	b := batchOf(3)
	h.res.failOn[b.Items[0].FilePath] = fmt.Errorf("%w: img0.jpg", resolver.ErrNoImageBytes)
	h.res.panicOn = b.Items[1].FilePath

	summary := h.run(t, b)

	assert.Equal(t, models.RunStateCompleted, summary.State)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, h.pub.count())
	assert.Contains(t, h.notifier.entries[1].Message, "panic")
}

func TestPauseBlocksProgress(t *testing.T) {
	const n = 4
	h := newHarness(t)
	// pause while the second item is being published
	h.pub.during[1] = func() { h.ctrl.TogglePause() }

	started, err := h.ctrl.Start(context.Background(), batchOf(n))
	require.NoError(t, err)
	require.True(t, started)

	require.Eventually(t, func() bool {
		return h.ctrl.Progress().Current == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, models.RunStatePaused, h.ctrl.State())

	entries := len(h.ctrl.Log())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, h.ctrl.Log(), entries)
	assert.Equal(t, 2, h.ctrl.Progress().Current)
	assert.Equal(t, 2, h.pub.count())

	assert.Equal(t, models.RunStateRunning, h.ctrl.TogglePause())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	summary, err := h.ctrl.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCompleted, summary.State)
	assert.Equal(t, n, h.pub.count())
}

func TestCancelWhilePaused(t *testing.T) {
	h := newHarness(t)
	h.pub.during[0] = func() { h.ctrl.TogglePause() }

	_, err := h.ctrl.Start(context.Background(), batchOf(3))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.ctrl.Progress().Current == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, h.ctrl.RequestCancel())

	summary, err := h.ctrl.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCancelled, summary.State)
	assert.Equal(t, 1, h.pub.count())
	require.Len(t, h.notifier.finished, 1)
	assert.Equal(t, models.RunStateCancelled, h.notifier.finished[0].State)
}

func TestStartWhileRunningCancels(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	inFlight := make(chan struct{})
	h.pub.during[0] = func() {
		close(inFlight)
		<-release
	}

	b := batchOf(3)
	started, err := h.ctrl.Start(context.Background(), b)
	require.NoError(t, err)
	require.True(t, started)
	<-inFlight

	started, err = h.ctrl.Start(context.Background(), b)
	require.NoError(t, err)
	assert.False(t, started)
	close(release)

	summary, err := h.ctrl.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RunStateCancelled, summary.State)
	assert.Equal(t, 1, h.pub.count(), "in-flight publish finishes, nothing after it starts")
	assert.Equal(t, 1, summary.Succeeded)
}

func TestStartRejectsBadConfig(t *testing.T) {
	h := newHarness(t)
	b := batchOf(2)
	b.Slots = nil
	b.Schedule = planner.ScheduleConfig{
		StartDate:       testNow,
		IntervalMinutes: 30,
		Window:          planner.Window{Start: planner.TimeOfDay{Hour: 10}, End: planner.TimeOfDay{Hour: 9}},
	}

	started, err := h.ctrl.Start(context.Background(), b)
	assert.False(t, started)
	assert.ErrorIs(t, err, planner.ErrInvalidWindow)
	assert.Equal(t, models.RunStateIdle, h.ctrl.State())
	assert.Len(t, h.notifier.rejected, 1)
	assert.Equal(t, 0, h.pub.count())

	b.Schedule.Window = planner.Window{Start: planner.TimeOfDay{Hour: 9}, End: planner.TimeOfDay{Hour: 10}}
	b.Schedule.IntervalMinutes = 0
	_, err = h.ctrl.Start(context.Background(), b)
	assert.ErrorIs(t, err, planner.ErrInvalidInterval)

	_, err = h.ctrl.Start(context.Background(), Batch{Destination: testDest})
	assert.ErrorIs(t, err, ErrInvalidBatch)

	_, err = h.ctrl.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestStartPlansManualSlots(t *testing.T) {
	h := newHarness(t)
	b := batchOf(3)
	b.Slots = nil
	b.Schedule = planner.ScheduleConfig{
		StartDate:       time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		IntervalMinutes: 30,
		Window:          planner.Window{Start: planner.TimeOfDay{Hour: 9}, End: planner.TimeOfDay{Hour: 10}},
		Location:        time.UTC,
	}

	h.run(t, b)

	require.Equal(t, 3, h.pub.count())
	assert.Equal(t, time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC), h.pub.calls[0].At)
	assert.Equal(t, time.Date(2030, 1, 2, 10, 0, 0, 0, time.UTC), h.pub.calls[2].At)
}

func TestHistoryWriteFailureKeepsItemSuccessful(t *testing.T) {
	h := newHarness(t)
	h.hist = history.New(failingPersister{})
	h.ctrl.history = h.hist

	summary := h.run(t, batchOf(2))

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, models.RunStateCompleted, summary.State)
	assert.Equal(t, 2, h.hist.Len())
	for _, e := range h.notifier.entries {
		assert.Equal(t, models.LogSuccess, e.Status)
	}
}

func TestRestartResetsLogAndProgress(t *testing.T) {
	h := newHarness(t)
	first := h.run(t, batchOf(2))

	second := h.run(t, batchOf(3))

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, models.Progress{Current: 3, Total: 3}, h.ctrl.Progress())
	log := h.ctrl.Log()
	require.Len(t, log, 3)
	skipped := 0
	for _, e := range log {
		if strings.Contains(e.Message, "already processed") {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)
	assert.Len(t, h.runs.runs, 2)
}
