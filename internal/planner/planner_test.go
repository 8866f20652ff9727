package planner

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func manualConfig(t *testing.T, window string, interval int) ScheduleConfig {
	t.Helper()
	w, err := ParseWindow(window)
	require.NoError(t, err)
	return ScheduleConfig{
		StartDate:       date(2024, time.January, 1, 0, 0),
		IntervalMinutes: interval,
		Window:          w,
		Location:        time.UTC,
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("09:05-21:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{9, 5}, w.Start)
	assert.Equal(t, TimeOfDay{21, 30}, w.End)
	assert.Equal(t, "09:05-21:30", w.String())

	for _, bad := range []string{"", "9", "09:00", "25:00-26:00", "09:60-10:00", "ab:cd-10:00"} {
		_, err := ParseWindow(bad)
		assert.Error(t, err, bad)
	}
}

func TestPlanManualRollover(t *testing.T) {
	cfg := manualConfig(t, "09:00-10:00", 30)

	slots, err := PlanManual(cfg, 4)
	require.NoError(t, err)

	want := []time.Time{
		date(2024, time.January, 1, 9, 0),
		date(2024, time.January, 1, 9, 30),
		date(2024, time.January, 1, 10, 0),
		date(2024, time.January, 2, 9, 0),
	}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Errorf("slots mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanManualDeterministic(t *testing.T) {
	cfg := manualConfig(t, "08:15-19:40", 47)

	first, err := PlanManual(cfg, 50)
	require.NoError(t, err)
	second, err := PlanManual(cfg, 50)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("plans differ:\n%s", diff)
	}
}

func TestPlanManualWindowContainment(t *testing.T) {
	cases := []struct {
		window   string
		interval int
	}{
		{"09:00-10:00", 30},
		{"08:15-19:40", 47},
		{"22:00-23:50", 25},
		{"00:00-23:59", 180},
		{"12:00-12:01", 1},
		{"06:00-07:00", 90},
	}
	for _, tc := range cases {
		t.Run(tc.window, func(t *testing.T) {
			cfg := manualConfig(t, tc.window, tc.interval)
			slots, err := PlanManual(cfg, 40)
			require.NoError(t, err)
			require.Len(t, slots, 40)

			for i, s := range slots {
				assert.True(t, cfg.Window.Contains(s), "slot %d at %s outside %s", i, s, cfg.Window)
				if i > 0 {
					assert.True(t, s.After(slots[i-1]), "slot %d not after slot %d", i, i-1)
				}
			}
		})
	}
}

func TestPlanManualRejectsBadConfig(t *testing.T) {
	cfg := manualConfig(t, "10:00-09:00", 30)
	_, err := PlanManual(cfg, 3)
	assert.True(t, errors.Is(err, ErrInvalidWindow))

	cfg = manualConfig(t, "10:00-10:00", 30)
	_, err = PlanManual(cfg, 3)
	assert.ErrorIs(t, err, ErrInvalidWindow)

	cfg = manualConfig(t, "09:00-10:00", 0)
	_, err = PlanManual(cfg, 3)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	cfg = manualConfig(t, "09:00-10:00", 30)
	_, err = PlanManual(cfg, -1)
	assert.ErrorIs(t, err, ErrNegativeCount)
}

func TestPlanManualZeroItems(t *testing.T) {
	slots, err := PlanManual(manualConfig(t, "09:00-10:00", 30), 0)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestAdjustPastSlot(t *testing.T) {
	now := date(2024, time.March, 10, 12, 0)

	adjusted, moved := AdjustPastSlot(date(2024, time.March, 10, 9, 30), now)
	assert.True(t, moved)
	assert.Equal(t, date(2024, time.March, 11, 9, 30), adjusted)

	// inside the 10 minute margin
	adjusted, moved = AdjustPastSlot(date(2024, time.March, 10, 12, 9), now)
	assert.True(t, moved)
	assert.Equal(t, date(2024, time.March, 11, 12, 9), adjusted)

	adjusted, moved = AdjustPastSlot(date(2024, time.March, 10, 12, 10), now)
	assert.False(t, moved)
	assert.Equal(t, date(2024, time.March, 10, 12, 10), adjusted)
}

func TestPlanDispatch(t *testing.T) {
	cfg := manualConfig(t, "10:00-09:00", 30)
	cfg.Smart = true

	slots, err := Plan(cfg, 4, date(2024, time.January, 1, 0, 0), [24]float64{}, fixedRand(0))
	require.NoError(t, err)
	assert.Len(t, slots, 4)

	cfg.Smart = false
	_, err = Plan(cfg, 4, date(2024, time.January, 1, 0, 0), [24]float64{}, nil)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}
