package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/gameevent"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/telemetry"
)

// SnapshotPeriod, TimeoutTick and the debounce constant are the periodic
// cadences named in spec §6.
const (
	SnapshotPeriod       = 100 * time.Millisecond
	TimeoutTick          = 5 * time.Second
	UserCacheDebounce    = 2 * time.Second
	DefaultFightTimeout  = 15 * time.Second
)

// Config holds the four optional settings keys from spec §6.
type Config struct {
	FightTimeout            time.Duration
	AutoClearOnTimeout      bool
	AutoClearOnServerChange bool
	AutoClearOnBossSpawn    bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FightTimeout:            DefaultFightTimeout,
		AutoClearOnTimeout:      true,
		AutoClearOnServerChange: true,
		AutoClearOnBossSpawn:    true,
	}
}

// Publisher is the fan-out sink the engine emits topics and discrete
// events to. eventbus.Bus satisfies this interface.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Persister durably stores a finished fight. persistence.Writer satisfies
// this interface.
type Persister interface {
	Persist(snap FightSnapshot) error
}

// UserCachePersister durably stores the coalesced per-user cache
// (profession/name/fight-point/max-hp), per spec §4.8.8.
type UserCachePersister interface {
	PersistUserCache(entries map[uint64]UserCacheEntry) error
}

// UserCacheEntry is the subset of UserData mirrored into users.json.
type UserCacheEntry struct {
	Name          string `json:"name"`
	Profession    string `json:"profession"`
	SubProfession string `json:"sub_profession"`
	FightPoint    int64  `json:"fight_point"`
	MaxHP         int64  `json:"max_hp"`
}

// noopPublisher/noopPersister let Engine be constructed without wiring a
// real bus/persistence layer, e.g. in unit tests exercising only the
// accounting logic.
type noopPublisher struct{}

func (noopPublisher) Publish(string, interface{}) {}

type noopPersister struct{}

func (noopPersister) Persist(FightSnapshot) error { return nil }

type noopUserCache struct{}

func (noopUserCache) PersistUserCache(map[uint64]UserCacheEntry) error { return nil }

// Engine is the combat state engine: per-player accounting, boss HP
// tracking, death reporting, and fight lifecycle management.
//
// The per-entity map-of-mutex-guarded-structs shape follows the teacher's
// decoder/ipProfile.go atomicIPProfileMap: an outer mutex guards the map
// itself; each UserData has its own mutex for field updates, so a
// snapshot of one player never blocks accounting for another.
type Engine struct {
	mu    sync.Mutex
	users map[uint64]*UserData

	cfg     Config
	log     *zap.Logger
	bus     Publisher
	persist Persister
	ucache  UserCachePersister
	metrics *telemetry.Metrics

	hasFight  bool
	fightID   int64
	startTS   time.Time
	lastLogTS time.Time

	deathEvents       []DeathEvent
	encounteredBosses []BossRef
	seenBossIDs       map[uint64]bool
	maxHPMonster      int64

	enemyCache      map[uint64]*enemyCacheEntry
	persistentEnemy map[uint64]*enemyCacheEntry

	activeBoss   *ActiveBoss
	lastSeenBoss *lastSeenBossInfo

	userCacheDirty   bool
	userCacheDirtyAt time.Time

	flog fightLog

	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithPublisher sets the fan-out sink.
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.bus = p } }

// WithPersister sets the fight persistence sink.
func WithPersister(p Persister) Option { return func(e *Engine) { e.persist = p } }

// WithUserCachePersister sets the user-cache persistence sink.
func WithUserCachePersister(p UserCachePersister) Option {
	return func(e *Engine) { e.ucache = p }
}

// WithMetrics wires a Prometheus metrics sink. A nil *Metrics is valid.
func WithMetrics(m *telemetry.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// New constructs an Engine with the given config and logger, applying opts.
func New(cfg Config, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		users:           make(map[uint64]*UserData),
		cfg:             cfg,
		log:             log.Named("combatengine"),
		bus:             noopPublisher{},
		persist:         noopPersister{},
		ucache:          noopUserCache{},
		seenBossIDs:     make(map[uint64]bool),
		enemyCache:      make(map[uint64]*enemyCacheEntry),
		persistentEnemy: make(map[uint64]*enemyCacheEntry),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) publish(topic string, payload interface{}) {
	e.bus.Publish(topic, payload)
}

// getOrCreateUserLocked returns uid's UserData, creating it if absent.
// Caller must hold e.mu; the returned UserData is NOT locked.
func (e *Engine) getOrCreateUserLocked(uid uint64) *UserData {
	u, ok := e.users[uid]
	if !ok {
		u = newUserData(uid)
		e.users[uid] = u
	}

	return u
}

// markLog records that a combat-relevant event happened at now, starting a
// new fight if none is active. Caller must hold e.mu.
func (e *Engine) markLogLocked(now time.Time) {
	e.lastLogTS = now

	if e.hasFight {
		return
	}

	e.hasFight = true
	e.startTS = now
	e.fightID = now.UnixMilli()

	e.metrics.IncFightsStarted()
	e.publish("new_fight_started", map[string]int64{"fight_id": e.fightID})
}

// HandleEvent dispatches a decoded game event to the appropriate handler.
func (e *Engine) HandleEvent(ev gameevent.Event) {
	switch ev.Kind {
	case gameevent.KindDamage:
		if ev.Damage != nil {
			e.handleDamage(ev.Damage)
		}
	case gameevent.KindHealing:
		if ev.Healing != nil {
			e.handleHealing(ev.Healing)
		}
	case gameevent.KindEntityAttr:
		if ev.Attr != nil {
			e.handleEntityAttr(ev.Attr)
		}
	case gameevent.KindDeath:
		if ev.Death != nil {
			e.handleDeath(ev.Death)
		}
	}
}

func (e *Engine) handleDamage(d *gameevent.Damage) {
	if !isValidValue(d.Damage) {
		e.log.Warn("dropping damage record with unsafe value", zap.Int64("value", d.Damage))

		return
	}

	now := time.Now()

	e.mu.Lock()
	e.markLogLocked(now)

	attacker := e.getOrCreateUserLocked(d.AttackerUID)
	e.mu.Unlock()

	attacker.mu.Lock()

	if sub := subProfessionForSkill(uint64(d.SkillID)); sub != "" {
		attacker.SubProfession = sub
	}

	attacker.DamageStats.AddRecord(d.Damage, d.IsCrit, d.IsLucky, d.HPLessen, now)

	sd := statisticDataFor(attacker.SkillUsage, uint64(d.SkillID))
	sd.AddRecord(d.Damage, d.IsCrit, d.IsLucky, d.HPLessen, now)

	if d.TargetUID != 0 {
		byTarget := statisticDataForTarget(attacker.SkillUsageByTarget, uint64(d.SkillID), d.TargetUID)
		byTarget.AddRecord(d.Damage, d.IsCrit, d.IsLucky, d.HPLessen, now)
	}

	attacker.LastUpdateTS = now

	if e.hasFightLocked() {
		attacker.LastFightID = e.fightIDLocked()
	}

	attackerName := attacker.Name
	attacker.mu.Unlock()

	tgtName := ""
	tgtKind := "enemy"

	if d.TargetKind == gameevent.KindPlayer && d.TargetUID != 0 {
		e.mu.Lock()
		target := e.getOrCreateUserLocked(d.TargetUID)
		e.mu.Unlock()

		target.mu.Lock()
		target.pushDeathRing(gameDamageEvent{
			TS:           now,
			AttackerID:   d.AttackerUID,
			AttackerName: attackerName,
			SkillID:      uint64(d.SkillID),
			Damage:       d.Damage,
		})

		if d.Lethal {
			target.DeadCount++
		}

		target.TakenDamage += d.HPLessen
		tgtName = target.Name
		target.mu.Unlock()

		tgtKind = "player"
	} else if d.TargetUID != 0 {
		tgtName = e.enemyName(d.TargetUID)
	}

	e.flog.append(formatLogLine(now, "DMG", d.Element, attackerName, d.AttackerUID,
		tgtName, d.TargetUID, tgtKind, uint64(d.SkillID), d.Damage,
		extTag(d.IsCrit, d.IsLucky, d.IsCauseLucky)))
}

// enemyName returns the cached display name for an enemy entity id, or ""
// if the engine has never observed an EntityAttr for it.
func (e *Engine) enemyName(id uint64) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.enemyCache[id]; ok {
		return entry.Name
	}

	return ""
}

// hasFightLocked/fightIDLocked are tiny helpers to read fight state under
// the engine's own lock from a context where the per-user lock is held
// separately.
func (e *Engine) hasFightLocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.hasFight
}

func (e *Engine) fightIDLocked() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.fightID
}

func (e *Engine) handleHealing(h *gameevent.Healing) {
	if h.HealerUID == 0 {
		return
	}

	if !isValidValue(h.Healing) {
		e.log.Warn("dropping healing record with unsafe value", zap.Int64("value", h.Healing))

		return
	}

	now := time.Now()

	e.mu.Lock()
	e.markLogLocked(now)

	healer := e.getOrCreateUserLocked(h.HealerUID)
	e.mu.Unlock()

	healer.mu.Lock()

	if sub := subProfessionForSkill(uint64(h.SkillID)); sub != "" {
		healer.SubProfession = sub
	}

	healer.HealingStats.AddRecord(h.Healing, h.IsCrit, h.IsLucky, 0, now)

	healingSkillID := uint64(h.SkillID) + healingSkillOffset
	sd := statisticDataFor(healer.SkillUsage, healingSkillID)
	sd.AddRecord(h.Healing, h.IsCrit, h.IsLucky, 0, now)

	if h.TargetUID != 0 {
		byTarget := statisticDataForTarget(healer.SkillUsageByTarget, healingSkillID, h.TargetUID)
		byTarget.AddRecord(h.Healing, h.IsCrit, h.IsLucky, 0, now)
	}

	healer.LastUpdateTS = now
	healerName := healer.Name
	healer.mu.Unlock()

	tgtName := ""

	if h.TargetUID != 0 {
		e.mu.Lock()
		target, ok := e.users[h.TargetUID]
		e.mu.Unlock()

		if ok {
			target.mu.Lock()
			tgtName = target.Name
			target.mu.Unlock()
		}
	}

	e.flog.append(formatLogLine(now, "HEAL", h.Element, healerName, h.HealerUID,
		tgtName, h.TargetUID, "player", uint64(h.SkillID), h.Healing,
		extTag(h.IsCrit, h.IsLucky, h.IsCauseLucky)))
}

func (e *Engine) handleDeath(d *gameevent.Death) {
	now := time.Now()

	e.mu.Lock()
	e.markLogLocked(now)
	victim := e.getOrCreateUserLocked(d.VictimID)
	e.mu.Unlock()

	victim.mu.Lock()
	ring := victim.drainDeathRing()
	victimName := victim.Name
	victim.mu.Unlock()

	entry := DeathEvent{
		TS:             now,
		PlayerID:       d.VictimID,
		PlayerName:     victimName,
		KilledByPlayer: d.KillerID != 0,
	}

	for _, r := range ring {
		entry.RecentDamage = append(entry.RecentDamage, DamageEventEntry{
			TS:             r.TS,
			AttackerID:     r.AttackerID,
			AttackerName:   r.AttackerName,
			AttackerAttrID: r.AttackerAttrID,
			SkillID:        r.SkillID,
			Damage:         r.Damage,
		})

		entry.KillerName = r.AttackerName
	}

	e.mu.Lock()
	e.deathEvents = append(e.deathEvents, entry)
	e.mu.Unlock()
}

// handleEntityAttr updates the engine's player/enemy attribute caches and,
// for enemy hp/max_hp changes, runs boss spawn/wipe detection.
func (e *Engine) handleEntityAttr(a *gameevent.EntityAttr) {
	now := time.Now()

	if a.Kind == gameevent.KindPlayer {
		e.mu.Lock()
		u := e.getOrCreateUserLocked(a.EntityID)
		e.mu.Unlock()

		u.mu.Lock()

		switch a.Key {
		case gameevent.AttrName:
			if s, ok := a.Value.(string); ok {
				u.Name = s
			}
		case gameevent.AttrProfession:
			if s, ok := a.Value.(string); ok {
				u.Profession = s
			}
		case gameevent.AttrFightPoint:
			if v, ok := toInt64(a.Value); ok {
				u.FightPoint = v
			}
		case gameevent.AttrHP:
			if v, ok := toInt64(a.Value); ok {
				u.Attributes["hp"] = v
			}
		case gameevent.AttrMaxHP:
			if v, ok := toInt64(a.Value); ok {
				u.Attributes["max_hp"] = v
			}
		}

		u.LastUpdateTS = now
		u.mu.Unlock()

		e.markUserCacheDirty(now)

		return
	}

	// enemy
	e.mu.Lock()
	entry, ok := e.enemyCache[a.EntityID]
	if !ok {
		entry = &enemyCacheEntry{}
		e.enemyCache[a.EntityID] = entry
	}

	switch a.Key {
	case gameevent.AttrName:
		if s, ok := a.Value.(string); ok {
			entry.Name = s
		}
	case gameevent.AttrID:
		if v, ok := toInt64(a.Value); ok {
			entry.AttrID = uint64(v)
		}
	case gameevent.AttrHP:
		if v, ok := toInt64(a.Value); ok {
			entry.HP = v
		}
	case gameevent.AttrMaxHP:
		if v, ok := toInt64(a.Value); ok {
			entry.MaxHP = v
		}
	}

	if entry.MaxHP > bossHPThreshold {
		shadow := *entry
		e.persistentEnemy[a.EntityID] = &shadow
	}

	isHPUpdate := a.Key == gameevent.AttrHP || a.Key == gameevent.AttrMaxHP
	e.mu.Unlock()

	if isHPUpdate {
		e.updateActiveBoss(a.EntityID)
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// updateActiveBoss implements the six-case spawn/wipe/update matrix of
// spec §4.8.5.
func (e *Engine) updateActiveBoss(entityID uint64) {
	e.mu.Lock()

	entry, ok := e.enemyCache[entityID]
	if !ok {
		e.mu.Unlock()

		return
	}

	if !isBossEntity(entry.Name, entry.AttrID) {
		e.mu.Unlock()

		return
	}

	hp, maxHP, name, attrID := entry.HP, entry.MaxHP, entry.Name, entry.AttrID

	spawn := false
	prev := e.lastSeenBoss

	switch {
	case prev == nil:
		spawn = hp == maxHP && maxHP > 0
		e.lastSeenBoss = &lastSeenBossInfo{EntityID: entityID, Name: name, MaxHP: maxHP, LastSeenHP: hp, AttrID: attrID}
	case prev.EntityID == entityID:
		spawn = prev.LastSeenHP < maxHP && hp == maxHP
		prev.LastSeenHP = hp
		prev.MaxHP = maxHP
		prev.Name = name
	default:
		spawn = hp == maxHP && maxHP > 0
		e.lastSeenBoss = &lastSeenBossInfo{EntityID: entityID, Name: name, MaxHP: maxHP, LastSeenHP: hp, AttrID: attrID}
	}

	e.mu.Unlock()

	if spawn && e.cfg.AutoClearOnBossSpawn {
		e.ClearAll()

		e.mu.Lock()
		e.lastSeenBoss = &lastSeenBossInfo{EntityID: entityID, Name: name, MaxHP: maxHP, LastSeenHP: hp, AttrID: attrID}
		e.addEncounteredBossLocked(entityID, name)
		e.mu.Unlock()
	} else {
		e.mu.Lock()
		e.addEncounteredBossLocked(entityID, name)
		e.mu.Unlock()
	}

	e.mu.Lock()
	if hp <= 0 {
		e.activeBoss = nil
		e.mu.Unlock()
		e.metrics.SetBossHP(0)
		e.publish("boss_hp_update", nil)

		return
	}

	e.activeBoss = &ActiveBoss{EntityID: entityID, Name: name, HP: hp, MaxHP: maxHP, AttrID: attrID}
	if maxHP > e.maxHPMonster {
		e.maxHPMonster = maxHP
	}
	e.mu.Unlock()

	e.metrics.SetBossHP(hp)
	e.publish("boss_hp_update", map[string]interface{}{"name": name, "hp": hp, "max_hp": maxHP})
}

// addEncounteredBossLocked records id/name in encounteredBosses if not
// already present. Caller must hold e.mu.
func (e *Engine) addEncounteredBossLocked(id uint64, name string) {
	if e.seenBossIDs[id] {
		return
	}

	e.seenBossIDs[id] = true
	e.encounteredBosses = append(e.encounteredBosses, BossRef{EntityID: id, Name: name, DisplayName: name})
}

func (e *Engine) markUserCacheDirty(now time.Time) {
	e.mu.Lock()
	e.userCacheDirty = true
	e.userCacheDirtyAt = now
	e.mu.Unlock()
}

// ClearAll snapshots the current fight, persists it, resets in-memory
// state, and emits data_cleared (and its fight_ended alias), per
// spec §4.8.4/§9.
func (e *Engine) ClearAll() {
	e.mu.Lock()

	snap := FightSnapshot{
		FightID:           e.fightID,
		StartTS:           e.startTS,
		EndTS:             time.Now(),
		Users:             make(map[uint64]*UserSummary, len(e.users)),
		UserDetails:       make(map[uint64]*UserDetail, len(e.users)),
		EncounteredBosses: e.encounteredBosses,
		DeathEvents:       e.deathEvents,
		MaxHPMonster:      e.maxHPMonster,
	}

	for uid, u := range e.users {
		u.mu.Lock()
		snap.Users[uid] = summarize(u)
		snap.UserDetails[uid] = detailize(u)
		u.mu.Unlock()
	}

	// fight.log must be flushed before the JSON siblings are (re)written,
	// per spec §4.9/§5.
	snap.LogLines = e.flog.drain()

	wasFight := e.hasFight

	e.users = make(map[uint64]*UserData)
	e.hasFight = false
	e.deathEvents = nil
	e.encounteredBosses = nil
	e.seenBossIDs = make(map[uint64]bool)
	e.maxHPMonster = 0
	e.activeBoss = nil

	e.mu.Unlock()

	if wasFight {
		if err := e.persist.Persist(snap); err != nil {
			e.log.Error("failed to persist fight", zap.Error(err), zap.Int64("fight_id", snap.FightID))
		}
	}

	e.metrics.IncFightsCleared()
	e.publish("data_cleared", nil)
	e.publish("fight_ended", nil)
	e.publish("boss_hp_update", nil)
}

// Snapshot returns the current per-user summary map for the `data` topic.
func (e *Engine) Snapshot() map[uint64]*UserSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[uint64]*UserSummary, len(e.users))

	for uid, u := range e.users {
		u.mu.Lock()
		out[uid] = summarize(u)
		u.mu.Unlock()
	}

	e.metrics.SetActiveUsers(len(out))

	return out
}

// Run drives the periodic ticks (100ms realtime/snapshot, 5s timeout
// check, 2s user-cache debounce) until ctx-equivalent Stop is called.
func (e *Engine) Run() {
	go e.loop()
}

func (e *Engine) loop() {
	defer close(e.doneCh)

	snapshotTicker := time.NewTicker(SnapshotPeriod)
	defer snapshotTicker.Stop()

	timeoutTicker := time.NewTicker(TimeoutTick)
	defer timeoutTicker.Stop()

	for {
		select {
		case <-e.stopCh:
			return

		case <-snapshotTicker.C:
			now := time.Now()
			e.tickRealtime(now)
			e.publish("data", map[string]interface{}{"code": 0, "user": e.Snapshot()})
			e.tickUserCacheDebounce(now)

		case <-timeoutTicker.C:
			e.tickTimeout(time.Now())
		}
	}
}

func (e *Engine) tickRealtime(now time.Time) {
	e.mu.Lock()
	users := make([]*UserData, 0, len(e.users))
	for _, u := range e.users {
		users = append(users, u)
	}
	e.mu.Unlock()

	for _, u := range users {
		u.mu.Lock()
		u.DamageStats.UpdateRealtime(now)
		u.HealingStats.UpdateRealtime(now)
		u.mu.Unlock()
	}
}

func (e *Engine) tickTimeout(now time.Time) {
	e.mu.Lock()
	shouldClear := e.hasFight && len(e.users) > 0 && now.Sub(e.lastLogTS) > e.cfg.FightTimeout
	e.mu.Unlock()

	if shouldClear && e.cfg.AutoClearOnTimeout {
		e.ClearAll()
	}
}

func (e *Engine) tickUserCacheDebounce(now time.Time) {
	e.mu.Lock()
	dirty := e.userCacheDirty
	due := dirty && now.Sub(e.userCacheDirtyAt) >= UserCacheDebounce
	e.mu.Unlock()

	if !due {
		return
	}

	e.FlushUserCache()
}

// FlushUserCache persists the coalesced per-player identity cache
// synchronously. Called from the debounce tick and unconditionally on
// shutdown, per spec §4.8.8/§5.
func (e *Engine) FlushUserCache() {
	e.mu.Lock()

	entries := make(map[uint64]UserCacheEntry, len(e.users))
	for uid, u := range e.users {
		u.mu.Lock()
		entries[uid] = UserCacheEntry{
			Name:          u.Name,
			Profession:    u.Profession,
			SubProfession: u.SubProfession,
			FightPoint:    u.FightPoint,
			MaxHP:         u.Attributes["max_hp"],
		}
		u.mu.Unlock()
	}

	e.userCacheDirty = false
	e.mu.Unlock()

	if err := e.ucache.PersistUserCache(entries); err != nil {
		e.log.Error("failed to persist user cache", zap.Error(err))
	}
}

// Stop halts the periodic loop, flushes all user data and the user cache,
// per spec §5's shutdown ordering, then returns once everything is
// flushed.
func (e *Engine) Stop() {
	close(e.stopCh)
	<-e.doneCh

	e.FlushUserCache()
	e.ClearAll()
}

// OnServerChange clears all combat state, per spec §4.5's
// clearDataOnServerChange, gated by AutoClearOnServerChange.
func (e *Engine) OnServerChange() {
	if !e.cfg.AutoClearOnServerChange {
		return
	}

	e.ClearAll()
}

// AddTakenDamage is exposed directly for decoders that only have a
// taken-damage signal without a full Damage event (e.g. a boss's own
// damage-log stream). Mirrors spec §4.8.1.
func (e *Engine) AddTakenDamage(uid uint64, value int64, lethal bool) {
	if !isValidValue(value) {
		e.log.Warn("dropping taken-damage record with unsafe value", zap.Int64("value", value))

		return
	}

	now := time.Now()

	e.mu.Lock()
	e.markLogLocked(now)
	u := e.getOrCreateUserLocked(uid)
	e.mu.Unlock()

	u.mu.Lock()
	u.TakenDamage += value
	if lethal {
		u.DeadCount++
	}
	u.LastUpdateTS = now
	u.mu.Unlock()
}
