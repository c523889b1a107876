// Package engine implements the combat state engine: per-player
// accounting, boss HP tracking, death reporting and fight lifecycle.
//
// The per-entity map-of-mutex-guarded-structs shape follows the teacher's
// decoder/ipProfile.go atomicIPProfileMap: a map guarded by an outer
// mutex, whose values are themselves lockable for fine-grained field
// updates from multiple call sites.
package engine

import (
	"math"
	"time"
)

// RealtimeWindow is the sliding window used for instantaneous DPS/HPS.
const RealtimeWindow = time.Second

// Buckets holds the monotonic value sums a StatisticData tracks: the four
// crit/lucky buckets, the hp_lessen sum, and their Total.
// this structure has an optimized field order to avoid excessive padding.
type Buckets struct {
	Normal    int64
	Critical  int64
	Lucky     int64
	CritLucky int64
	HPLessen  int64
	Total     int64
}

// Counts holds per-bucket occurrence counts. Total is derived, not
// independently tracked: per spec §9's open question on crit+lucky
// counting, a record with both flags set increments both Critical and
// Lucky, so Total (= Normal+Critical+Lucky) legitimately exceeds the
// number of records observed. This is a preserved invariant, not a bug.
type Counts struct {
	Normal   int64
	Critical int64
	Lucky    int64
	Total    int64
}

// MinMax tracks the smallest and largest single value observed.
type MinMax struct {
	Min int64
	Max int64
}

func newMinMax() MinMax {
	return MinMax{Min: math.MaxInt64, Max: 0}
}

// realtimeEntry is one (timestamp, value) pair in the sliding window.
type realtimeEntry struct {
	ts    time.Time
	value int64
}

// RealtimeStats is the live sum/max over the trailing RealtimeWindow.
type RealtimeStats struct {
	Value int64
	Max   int64
}

// TimeRange is the first/last timestamp a StatisticData observed a record.
type TimeRange struct {
	First time.Time
	Last  time.Time
}

// StatisticData aggregates one kind of numeric event (damage, healing, or
// a single skill/target breakdown of either) for one player.
type StatisticData struct {
	Stats  Buckets
	Count  Counts
	MinMax MinMax

	Realtime     RealtimeStats
	window       []realtimeEntry
	TimeRange    TimeRange
	hasTimeRange bool
}

// NewStatisticData returns a zero-valued StatisticData ready for use.
func NewStatisticData() *StatisticData {
	return &StatisticData{MinMax: newMinMax()}
}

// AddRecord folds one observation into the statistic. hpLessen is the
// actual HP reduction caused (may differ from value, e.g. absorbed by a
// shield); pass 0 for healing records.
func (s *StatisticData) AddRecord(value int64, isCrit, isLucky bool, hpLessen int64, now time.Time) {
	switch {
	case isCrit && isLucky:
		s.Stats.CritLucky += value
		s.Count.Critical++
		s.Count.Lucky++
	case isCrit:
		s.Stats.Critical += value
		s.Count.Critical++
	case isLucky:
		s.Stats.Lucky += value
		s.Count.Lucky++
	default:
		s.Stats.Normal += value
		s.Count.Normal++
	}

	s.Stats.HPLessen += hpLessen
	s.Stats.Total = s.Stats.Normal + s.Stats.Critical + s.Stats.Lucky + s.Stats.CritLucky
	s.Count.Total = s.Count.Normal + s.Count.Critical + s.Count.Lucky

	if value < s.MinMax.Min {
		s.MinMax.Min = value
	}

	if value > s.MinMax.Max {
		s.MinMax.Max = value
	}

	if !s.hasTimeRange {
		s.TimeRange.First = now
		s.hasTimeRange = true
	}

	s.TimeRange.Last = now

	s.window = append(s.window, realtimeEntry{ts: now, value: value})
	s.UpdateRealtime(now)
}

// UpdateRealtime trims window entries older than RealtimeWindow and
// recomputes Realtime.Value/Max. Called both inline by AddRecord and by
// the engine's 100ms periodic tick so idle players decay to zero.
func (s *StatisticData) UpdateRealtime(now time.Time) {
	cutoff := now.Add(-RealtimeWindow)

	i := 0
	for ; i < len(s.window); i++ {
		if !s.window[i].ts.Before(cutoff) {
			break
		}
	}

	if i > 0 {
		s.window = s.window[i:]
	}

	var sum int64
	for _, e := range s.window {
		sum += e.value
	}

	s.Realtime.Value = sum
	if sum > s.Realtime.Max {
		s.Realtime.Max = sum
	}
}

// MeanPerSecond computes the lifetime mean throughput: total * 1000 /
// max(1, last - first), per spec §4.8.3. The degenerate same-timestamp
// case divides by 1 rather than short-circuiting to 0.
func (s *StatisticData) MeanPerSecond() int64 {
	if !s.hasTimeRange {
		return 0
	}

	elapsedMs := s.TimeRange.Last.Sub(s.TimeRange.First).Milliseconds()
	if elapsedMs < 1 {
		elapsedMs = 1
	}

	return s.Stats.Total * 1000 / elapsedMs
}
