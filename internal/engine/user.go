package engine

import (
	"sync"
	"time"
)

// healingSkillOffset disambiguates a healing skill's id from a damage
// skill of the same number within a single skill_usage map, per spec §3.
const healingSkillOffset = 1_000_000_000

// maxSafeValue bounds numeric event values accepted by the engine (2^53),
// per spec §4.8.1.
const maxSafeValue = 1 << 53

// deathRingSize bounds recent_damage_events per player, per spec §4.8.6.
const deathRingSize = 5

// UserData is the per-player aggregate the combat engine maintains.
// this structure has an optimized field order to avoid excessive padding.
type UserData struct {
	mu sync.Mutex

	UID           uint64
	Name          string
	Profession    string
	SubProfession string
	FightPoint    int64
	Attributes    map[string]int64

	DamageStats  *StatisticData
	HealingStats *StatisticData

	SkillUsage         map[uint64]*StatisticData
	SkillUsageByTarget map[uint64]map[uint64]*StatisticData

	TakenDamage  int64
	DeadCount    int64
	LastUpdateTS time.Time
	LastFightID  int64

	deathRing []gameDamageEvent
}

// gameDamageEvent is one entry in a player's rolling death-context ring,
// mirroring spec §3's DamageEvent.
type gameDamageEvent struct {
	TS             time.Time
	AttackerID     uint64
	AttackerName   string
	AttackerAttrID uint64
	SkillID        uint64
	Damage         int64
}

// newUserData returns a freshly initialized UserData for uid.
func newUserData(uid uint64) *UserData {
	return &UserData{
		UID:                uid,
		Attributes:         make(map[string]int64),
		DamageStats:        NewStatisticData(),
		HealingStats:       NewStatisticData(),
		SkillUsage:         make(map[uint64]*StatisticData),
		SkillUsageByTarget: make(map[uint64]map[uint64]*StatisticData),
	}
}

// statisticDataFor returns (creating if necessary) the StatisticData for
// skill within m.
func statisticDataFor(m map[uint64]*StatisticData, skill uint64) *StatisticData {
	sd, ok := m[skill]
	if !ok {
		sd = NewStatisticData()
		m[skill] = sd
	}

	return sd
}

// statisticDataForTarget returns (creating if necessary) the per-target
// StatisticData for (skill, target).
func statisticDataForTarget(m map[uint64]map[uint64]*StatisticData, skill, target uint64) *StatisticData {
	byTarget, ok := m[skill]
	if !ok {
		byTarget = make(map[uint64]*StatisticData)
		m[skill] = byTarget
	}

	sd, ok := byTarget[target]
	if !ok {
		sd = NewStatisticData()
		byTarget[target] = sd
	}

	return sd
}

// pushDeathRing appends e and evicts the oldest entry once the ring
// exceeds deathRingSize, per spec §4.8.6/§8 invariant 7.
func (u *UserData) pushDeathRing(e gameDamageEvent) {
	u.deathRing = append(u.deathRing, e)
	if len(u.deathRing) > deathRingSize {
		u.deathRing = u.deathRing[len(u.deathRing)-deathRingSize:]
	}
}

// drainDeathRing returns a snapshot of the ring and clears it.
func (u *UserData) drainDeathRing() []gameDamageEvent {
	snap := make([]gameDamageEvent, len(u.deathRing))
	copy(snap, u.deathRing)
	u.deathRing = nil

	return snap
}

func isValidValue(v int64) bool {
	return v >= 0 && v < maxSafeValue
}
