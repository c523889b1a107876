package engine

import "time"

// BossRef is one entry in a fight's encountered_bosses list.
type BossRef struct {
	EntityID    uint64 `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// DeathEvent mirrors spec §3's DeathEvent: the moment a player died, with a
// snapshot of the damage that led to it.
type DeathEvent struct {
	TS             time.Time          `json:"ts"`
	PlayerID       uint64             `json:"player_id"`
	PlayerName     string             `json:"player_name"`
	KillerName     string             `json:"killer_name"`
	KilledByPlayer bool               `json:"killed_by_player"`
	RecentDamage   []DamageEventEntry `json:"recent_damage"`
}

// DamageEventEntry is one entry of a DeathEvent's recent-damage ring.
type DamageEventEntry struct {
	TS             time.Time `json:"ts"`
	AttackerID     uint64    `json:"attacker_id"`
	AttackerName   string    `json:"attacker_name"`
	AttackerAttrID uint64    `json:"attacker_attr_id,omitempty"`
	SkillID        uint64    `json:"skill_id"`
	Damage         int64     `json:"damage"`
}

// ActiveBoss is the single boss the engine currently tracks, or nil.
type ActiveBoss struct {
	EntityID uint64
	Name     string
	HP       int64
	MaxHP    int64
	AttrID   uint64
}

// lastSeenBossInfo is the engine's memory of the most recently observed
// boss entity, used to classify spawn/wipe/update transitions per
// spec §4.8.5.
type lastSeenBossInfo struct {
	EntityID   uint64
	Name       string
	MaxHP      int64
	LastSeenHP int64
	AttrID     uint64
}

// enemyCacheEntry holds the four parallel fields spec §3's EnemyCache
// tracks per entity id.
type enemyCacheEntry struct {
	Name   string
	HP     int64
	MaxHP  int64
	AttrID uint64
}

// bossHPThreshold is the max_hp cutoff above which an enemy's identity is
// shadowed into PersistentEnemyData so a transient cache flush doesn't
// lose boss identity, per spec §3/§4.8.7.
const bossHPThreshold = 10000

// FightSnapshot is the data persisted (and broadcast) when a fight ends.
type FightSnapshot struct {
	FightID           int64
	StartTS           time.Time
	EndTS             time.Time
	Users             map[uint64]*UserSummary
	UserDetails       map[uint64]*UserDetail
	EncounteredBosses []BossRef
	DeathEvents       []DeathEvent
	MaxHPMonster      int64

	// LogLines is the fight.log append-log content buffered since the
	// fight started, drained under the engine's dedicated log mutex, per
	// spec §4.9/§5's "flush buffered log bytes before the JSON siblings
	// are rewritten".
	LogLines []string
}
