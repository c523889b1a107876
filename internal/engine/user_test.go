package engine

import "testing"

func TestPushDeathRing_BoundedSize(t *testing.T) {
	u := newUserData(1)

	for i := 0; i < deathRingSize+3; i++ {
		u.pushDeathRing(gameDamageEvent{AttackerID: uint64(i)})
	}

	ring := u.drainDeathRing()

	if len(ring) != deathRingSize {
		t.Fatalf("ring length = %d, want %d", len(ring), deathRingSize)
	}

	// oldest entries should have been evicted: the surviving ring should
	// start at attacker id 3 (0..2 evicted) through 7.
	if ring[0].AttackerID != 3 {
		t.Fatalf("oldest surviving entry AttackerID = %d, want 3", ring[0].AttackerID)
	}
}

func TestDrainDeathRing_ClearsRing(t *testing.T) {
	u := newUserData(1)
	u.pushDeathRing(gameDamageEvent{AttackerID: 1})

	first := u.drainDeathRing()
	if len(first) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(first))
	}

	second := u.drainDeathRing()
	if len(second) != 0 {
		t.Fatalf("expected ring to be empty after drain, got %d entries", len(second))
	}
}

func TestIsValidValue(t *testing.T) {
	tests := []struct {
		value int64
		want  bool
	}{
		{0, true},
		{1, true},
		{-1, false},
		{maxSafeValue - 1, true},
		{maxSafeValue, false},
		{maxSafeValue + 1, false},
	}

	for _, tt := range tests {
		if got := isValidValue(tt.value); got != tt.want {
			t.Errorf("isValidValue(%d) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestStatisticDataForTarget_CreatesDistinctEntries(t *testing.T) {
	m := make(map[uint64]map[uint64]*StatisticData)

	a := statisticDataForTarget(m, 10, 100)
	b := statisticDataForTarget(m, 10, 200)
	c := statisticDataForTarget(m, 10, 100)

	if a == b {
		t.Fatal("different targets must get distinct StatisticData")
	}

	if a != c {
		t.Fatal("same (skill, target) must return the same StatisticData")
	}
}
