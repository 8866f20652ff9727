package planner

import (
	"math/rand/v2"
	"sort"
	"time"
)

const (
	smartTopHours    = 5
	smartItemsPerDay = 3
)

// Rand is the source of minute jitter for smart schedules
type Rand interface {
	IntN(n int) int
}

// RankHours orders the 24 hours by descending score; equal scores keep the earlier hour first
func RankHours(scores [24]float64) []int {
	hours := make([]int, 24)
	for h := range hours {
		hours[h] = h
	}
	sort.SliceStable(hours, func(i, j int) bool {
		return scores[hours[i]] > scores[hours[j]]
	})
	return hours
}

// PlanSmart spreads n items round-robin over the five best hours, three items
// per calendar day, with a random minute within the hour. Slots closer than
// PastSlotMargin to now move forward one day. The result is sorted by time,
// which can bunch items at the best hour; callers rely on that ordering.
func PlanSmart(cfg ScheduleConfig, n int, now time.Time, scores [24]float64, rng Rand) []time.Time {
	if n <= 0 {
		return []time.Time{}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(now.UnixNano()), 0x5eed))
	}

	loc := cfg.location()
	base := cfg.StartDate
	if base.IsZero() {
		base = now
	}
	y, m, d := base.In(loc).Date()

	top := RankHours(scores)[:smartTopHours]
	slots := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		hour := top[i%smartTopHours]
		slot := time.Date(y, m, d+i/smartItemsPerDay, hour, rng.IntN(60), 0, 0, loc)
		slot, _ = AdjustPastSlot(slot, now)
		slots = append(slots, slot)
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}
