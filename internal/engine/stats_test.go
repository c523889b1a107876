package engine

import (
	"testing"
	"time"
)

func TestStatisticData_BucketClassification(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name           string
		isCrit         bool
		isLucky        bool
		wantBucket     func(Buckets) int64
		wantCritCount  int64
		wantLuckyCount int64
	}{
		{"normal", false, false, func(b Buckets) int64 { return b.Normal }, 0, 0},
		{"crit", true, false, func(b Buckets) int64 { return b.Critical }, 1, 0},
		{"lucky", false, true, func(b Buckets) int64 { return b.Lucky }, 0, 1},
		{"crit and lucky", true, true, func(b Buckets) int64 { return b.CritLucky }, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd := NewStatisticData()
			sd.AddRecord(100, tt.isCrit, tt.isLucky, 0, now)

			if got := tt.wantBucket(sd.Stats); got != 100 {
				t.Errorf("expected bucket value 100, got %d", got)
			}

			if sd.Count.Critical != tt.wantCritCount {
				t.Errorf("Count.Critical = %d, want %d", sd.Count.Critical, tt.wantCritCount)
			}

			if sd.Count.Lucky != tt.wantLuckyCount {
				t.Errorf("Count.Lucky = %d, want %d", sd.Count.Lucky, tt.wantLuckyCount)
			}
		})
	}
}

// TestStatisticData_CritLuckyAsymmetry pins the documented invariant that a
// single crit+lucky record increments both Count.Critical and Count.Lucky,
// so Count.Total can exceed the number of records actually observed.
func TestStatisticData_CritLuckyAsymmetry(t *testing.T) {
	sd := NewStatisticData()
	sd.AddRecord(50, true, true, 0, time.Now())

	if sd.Count.Total != 2 {
		t.Fatalf("Count.Total = %d, want 2 for a single crit+lucky record", sd.Count.Total)
	}

	if sd.Stats.Total != 50 {
		t.Fatalf("Stats.Total = %d, want 50", sd.Stats.Total)
	}

	if sd.Stats.Normal != 0 || sd.Stats.Critical != 0 || sd.Stats.Lucky != 0 {
		t.Fatalf("crit+lucky value must only land in CritLucky, got %+v", sd.Stats)
	}
}

func TestStatisticData_MinMax(t *testing.T) {
	sd := NewStatisticData()
	now := time.Now()

	sd.AddRecord(10, false, false, 0, now)
	sd.AddRecord(500, false, false, 0, now)
	sd.AddRecord(3, false, false, 0, now)

	if sd.MinMax.Min != 3 {
		t.Errorf("Min = %d, want 3", sd.MinMax.Min)
	}

	if sd.MinMax.Max != 500 {
		t.Errorf("Max = %d, want 500", sd.MinMax.Max)
	}
}

func TestStatisticData_RealtimeWindowDecay(t *testing.T) {
	sd := NewStatisticData()
	base := time.Now()

	sd.AddRecord(100, false, false, 0, base)

	if sd.Realtime.Value != 100 {
		t.Fatalf("Realtime.Value = %d, want 100 immediately after record", sd.Realtime.Value)
	}

	sd.UpdateRealtime(base.Add(2 * time.Second))

	if sd.Realtime.Value != 0 {
		t.Fatalf("Realtime.Value = %d, want 0 after window expires", sd.Realtime.Value)
	}

	if sd.Realtime.Max != 100 {
		t.Fatalf("Realtime.Max = %d, want 100 (max persists after decay)", sd.Realtime.Max)
	}
}

func TestStatisticData_MeanPerSecond(t *testing.T) {
	sd := NewStatisticData()
	base := time.Now()

	sd.AddRecord(1000, false, false, 0, base)
	sd.AddRecord(1000, false, false, 0, base.Add(2*time.Second))

	mean := sd.MeanPerSecond()
	if mean != 1000 {
		t.Fatalf("MeanPerSecond() = %d, want 1000 (2000 total over 2s)", mean)
	}
}

func TestStatisticData_MeanPerSecondSameTimestamp(t *testing.T) {
	sd := NewStatisticData()
	base := time.Now()

	sd.AddRecord(500, false, false, 0, base)
	sd.AddRecord(500, false, false, 0, base)

	// total * 1000 / max(1, last-first) per spec §4.8.3: same timestamp
	// divides by 1, not 0, so this must not short-circuit to 0.
	if got := sd.MeanPerSecond(); got != 1_000_000 {
		t.Fatalf("MeanPerSecond() at identical timestamps = %d, want 1000000 (1000 total * 1000 / max(1, 0ms))", got)
	}
}

func TestStatisticData_MeanPerSecondDegenerate(t *testing.T) {
	sd := NewStatisticData()

	if got := sd.MeanPerSecond(); got != 0 {
		t.Fatalf("MeanPerSecond() on empty data = %d, want 0", got)
	}
}
