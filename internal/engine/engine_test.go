package engine

import (
	"testing"
	"time"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/gameevent"
)

type recordingPublisher struct {
	topics []string
}

func (r *recordingPublisher) Publish(topic string, _ interface{}) {
	r.topics = append(r.topics, topic)
}

type recordingPersister struct {
	snapshots []FightSnapshot
}

func (r *recordingPersister) Persist(snap FightSnapshot) error {
	r.snapshots = append(r.snapshots, snap)

	return nil
}

func newTestEngine() (*Engine, *recordingPublisher, *recordingPersister) {
	pub := &recordingPublisher{}
	per := &recordingPersister{}

	eng := New(DefaultConfig(), nil, WithPublisher(pub), WithPersister(per))

	return eng, pub, per
}

func TestAddDamage_AccumulatesAndStartsFight(t *testing.T) {
	eng, pub, _ := newTestEngine()

	eng.handleDamage(&gameevent.Damage{
		AttackerUID: 1,
		TargetUID:   2,
		TargetKind:  gameevent.KindPlayer,
		Damage:      100,
		HPLessen:    100,
	})

	snap := eng.Snapshot()

	u, ok := snap[1]
	if !ok {
		t.Fatal("expected attacker to have an entry after a damage event")
	}

	if u.TotalDamage.Normal != 100 {
		t.Fatalf("TotalDamage.Normal = %d, want 100", u.TotalDamage.Normal)
	}

	found := false

	for _, topic := range pub.topics {
		if topic == "new_fight_started" {
			found = true
		}
	}

	if !found {
		t.Fatal("expected new_fight_started to be published on the first damage event")
	}
}

func TestAddDamage_RejectsUnsafeValue(t *testing.T) {
	eng, _, _ := newTestEngine()

	eng.handleDamage(&gameevent.Damage{AttackerUID: 1, Damage: -5})

	snap := eng.Snapshot()
	if len(snap) != 0 {
		t.Fatal("expected an out-of-range damage value to be dropped, not recorded")
	}
}

func TestHandleHealing_UsesOffsetSkillBucket(t *testing.T) {
	eng, _, _ := newTestEngine()

	eng.handleHealing(&gameevent.Healing{HealerUID: 1, TargetUID: 2, SkillID: 5, Healing: 200})

	eng.mu.Lock()
	u := eng.users[1]
	eng.mu.Unlock()

	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.SkillUsage[5]; ok {
		t.Fatal("a healing record must not land in the damage skill's bucket")
	}

	if _, ok := u.SkillUsage[5+healingSkillOffset]; !ok {
		t.Fatal("expected the healing record in the offset skill bucket")
	}
}

func TestHandleDeath_CapturesRecentDamage(t *testing.T) {
	eng, _, _ := newTestEngine()

	eng.handleDamage(&gameevent.Damage{AttackerUID: 10, TargetUID: 99, TargetKind: gameevent.KindPlayer, Damage: 50, HPLessen: 50})
	eng.handleDeath(&gameevent.Death{VictimID: 99, KillerID: 10})

	eng.mu.Lock()
	defer eng.mu.Unlock()

	if len(eng.deathEvents) != 1 {
		t.Fatalf("expected 1 death event, got %d", len(eng.deathEvents))
	}

	de := eng.deathEvents[0]
	if de.PlayerID != 99 {
		t.Fatalf("PlayerID = %d, want 99", de.PlayerID)
	}

	if len(de.RecentDamage) != 1 || de.RecentDamage[0].AttackerID != 10 {
		t.Fatalf("expected recent damage ring to carry the prior attacker, got %+v", de.RecentDamage)
	}
}

func TestClearAll_PersistsAndResets(t *testing.T) {
	eng, pub, per := newTestEngine()

	eng.handleDamage(&gameevent.Damage{AttackerUID: 1, Damage: 100})
	eng.ClearAll()

	if len(per.snapshots) != 1 {
		t.Fatalf("expected ClearAll to persist exactly one fight, got %d", len(per.snapshots))
	}

	if _, ok := per.snapshots[0].Users[1]; !ok {
		t.Fatal("expected the persisted snapshot to include the attacker's summary")
	}

	if _, ok := per.snapshots[0].UserDetails[1]; !ok {
		t.Fatal("expected the persisted snapshot to include the attacker's skill-detail breakdown")
	}

	if len(per.snapshots[0].LogLines) != 1 {
		t.Fatalf("expected 1 buffered fight.log line, got %d", len(per.snapshots[0].LogLines))
	}

	if len(eng.Snapshot()) != 0 {
		t.Fatal("expected ClearAll to reset in-memory user state")
	}

	sawCleared := false

	for _, topic := range pub.topics {
		if topic == "data_cleared" {
			sawCleared = true
		}
	}

	if !sawCleared {
		t.Fatal("expected data_cleared to be published by ClearAll")
	}
}

func TestClearAll_NoOpWithoutAFight(t *testing.T) {
	eng, _, per := newTestEngine()

	eng.ClearAll()

	if len(per.snapshots) != 0 {
		t.Fatal("ClearAll must not persist when no fight was ever started")
	}
}

func TestBossSpawnDetection_FullHPTriggersClear(t *testing.T) {
	eng, pub, _ := newTestEngine()

	// seed an ongoing fight so ClearAll on spawn has something to persist.
	eng.handleDamage(&gameevent.Damage{AttackerUID: 1, Damage: 10})

	eng.handleEntityAttr(&gameevent.EntityAttr{EntityID: 500, Kind: gameevent.KindEnemy, Key: gameevent.AttrName, Value: "Drake"})
	eng.handleEntityAttr(&gameevent.EntityAttr{EntityID: 500, Kind: gameevent.KindEnemy, Key: gameevent.AttrMaxHP, Value: int64(50000)})
	eng.handleEntityAttr(&gameevent.EntityAttr{EntityID: 500, Kind: gameevent.KindEnemy, Key: gameevent.AttrHP, Value: int64(50000)})

	eng.mu.Lock()
	boss := eng.activeBoss
	eng.mu.Unlock()

	if boss == nil || boss.EntityID != 500 {
		t.Fatalf("expected boss 500 to become the active boss, got %+v", boss)
	}

	sawSpawnClear := false

	for _, topic := range pub.topics {
		if topic == "data_cleared" {
			sawSpawnClear = true
		}
	}

	if !sawSpawnClear {
		t.Fatal("expected a boss spawn at full HP to trigger an auto-clear")
	}
}

func TestBossHPZero_ClearsActiveBoss(t *testing.T) {
	eng, _, _ := newTestEngine()

	eng.handleEntityAttr(&gameevent.EntityAttr{EntityID: 500, Kind: gameevent.KindEnemy, Key: gameevent.AttrName, Value: "Drake"})
	eng.handleEntityAttr(&gameevent.EntityAttr{EntityID: 500, Kind: gameevent.KindEnemy, Key: gameevent.AttrMaxHP, Value: int64(50000)})
	eng.handleEntityAttr(&gameevent.EntityAttr{EntityID: 500, Kind: gameevent.KindEnemy, Key: gameevent.AttrHP, Value: int64(50000)})
	eng.handleEntityAttr(&gameevent.EntityAttr{EntityID: 500, Kind: gameevent.KindEnemy, Key: gameevent.AttrHP, Value: int64(0)})

	eng.mu.Lock()
	boss := eng.activeBoss
	eng.mu.Unlock()

	if boss != nil {
		t.Fatalf("expected active boss to clear at 0 hp, got %+v", boss)
	}
}

func TestDetailize_CarriesSkillAndTargetBreakdown(t *testing.T) {
	eng, _, _ := newTestEngine()

	eng.handleDamage(&gameevent.Damage{AttackerUID: 1, TargetUID: 2, TargetKind: gameevent.KindPlayer, SkillID: 9, Damage: 100, HPLessen: 100})

	eng.mu.Lock()
	u := eng.users[1]
	eng.mu.Unlock()

	u.mu.Lock()
	detail := detailize(u)
	u.mu.Unlock()

	if len(detail.SkillUsage) != 1 || detail.SkillUsage[0].SkillID != 9 {
		t.Fatalf("expected one skill_usage entry for skill 9, got %+v", detail.SkillUsage)
	}

	if detail.SkillUsage[0].Stats.Normal != 100 {
		t.Fatalf("SkillUsage[0].Stats.Normal = %d, want 100", detail.SkillUsage[0].Stats.Normal)
	}

	if len(detail.SkillUsageByTarget) != 1 || detail.SkillUsageByTarget[0].TargetID != 2 {
		t.Fatalf("expected one skill_usage_by_target entry for target 2, got %+v", detail.SkillUsageByTarget)
	}
}

func TestSummarize_CountTotalInvariant(t *testing.T) {
	u := newUserData(1)
	now := time.Now()

	u.DamageStats.AddRecord(10, false, false, 0, now)
	u.DamageStats.AddRecord(20, true, false, 0, now)
	u.DamageStats.AddRecord(30, false, true, 0, now)
	u.DamageStats.AddRecord(40, true, true, 0, now)

	s := summarize(u)

	wantTotal := s.TotalCount.Normal + s.TotalCount.Critical + s.TotalCount.Lucky
	if s.TotalCount.Total != wantTotal {
		t.Fatalf("TotalCount.Total = %d, want %d (sum of the three buckets)", s.TotalCount.Total, wantTotal)
	}

	// 4 records observed, but the crit+lucky one double-counts, so Total
	// legitimately reads 5, not 4.
	if s.TotalCount.Total != 5 {
		t.Fatalf("TotalCount.Total = %d, want 5 given the documented crit+lucky double count", s.TotalCount.Total)
	}
}
