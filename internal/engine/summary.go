package engine

// UserSummary is the wire shape broadcast on the `data` topic and written
// to allUserData.json, matching spec §6's UserSummary field list exactly.
type UserSummary struct {
	RealtimeDPS    int64 `json:"realtime_dps"`
	RealtimeDPSMax int64 `json:"realtime_dps_max"`
	TotalDPS       int64 `json:"total_dps"`

	TotalDamage BucketsJSON `json:"total_damage"`
	TotalCount  CountsJSON  `json:"total_count"`

	RealtimeHPS    int64 `json:"realtime_hps"`
	RealtimeHPSMax int64 `json:"realtime_hps_max"`
	TotalHPS       int64 `json:"total_hps"`

	TotalHealing BucketsJSON `json:"total_healing"`
	HealingCount CountsJSON  `json:"healing_count"`

	TakenDamage int64  `json:"taken_damage"`
	Profession  string `json:"profession"`
	Name        string `json:"name"`
	FightPoint  int64  `json:"fight_point"`
	HP          int64  `json:"hp"`
	MaxHP       int64  `json:"max_hp"`
	DeadCount   int64  `json:"dead_count"`
}

// BucketsJSON is the JSON-facing view of Buckets (hp_lessen included).
type BucketsJSON struct {
	Normal    int64 `json:"normal"`
	Critical  int64 `json:"critical"`
	Lucky     int64 `json:"lucky"`
	CritLucky int64 `json:"crit_lucky"`
	HPLessen  int64 `json:"hp_lessen"`
	Total     int64 `json:"total"`
}

// CountsJSON is the JSON-facing view of Counts.
type CountsJSON struct {
	Normal   int64 `json:"normal"`
	Critical int64 `json:"critical"`
	Lucky    int64 `json:"lucky"`
	Total    int64 `json:"total"`
}

func toBucketsJSON(b Buckets) BucketsJSON {
	return BucketsJSON{
		Normal:    b.Normal,
		Critical:  b.Critical,
		Lucky:     b.Lucky,
		CritLucky: b.CritLucky,
		HPLessen:  b.HPLessen,
		Total:     b.Total,
	}
}

func toCountsJSON(c Counts) CountsJSON {
	return CountsJSON{
		Normal:   c.Normal,
		Critical: c.Critical,
		Lucky:    c.Lucky,
		Total:    c.Total,
	}
}

// professionDisplay appends " (<sub>)" when a sub-profession is set, per
// spec §6.
func professionDisplay(profession, sub string) string {
	if sub == "" {
		return profession
	}

	return profession + " (" + sub + ")"
}

// SkillDetail is one skill's damage/healing breakdown within a UserDetail's
// skill_usage, mirroring UserData.SkillUsage's value type.
type SkillDetail struct {
	SkillID uint64      `json:"skill_id"`
	Stats   BucketsJSON `json:"stats"`
	Count   CountsJSON  `json:"count"`
}

// SkillTargetDetail further breaks a skill down by the target it was used
// on, mirroring UserData.SkillUsageByTarget.
type SkillTargetDetail struct {
	SkillID  uint64      `json:"skill_id"`
	TargetID uint64      `json:"target_id"`
	Stats    BucketsJSON `json:"stats"`
	Count    CountsJSON  `json:"count"`
}

// UserDetail is the per-user skill-detail snapshot written to
// users/<uid>.json, per spec §4.9: the full skill_usage/
// skill_usage_by_target breakdown the bus-facing UserSummary omits.
type UserDetail struct {
	*UserSummary

	SkillUsage         []SkillDetail       `json:"skill_usage"`
	SkillUsageByTarget []SkillTargetDetail `json:"skill_usage_by_target"`
}

// detailize converts a UserData into its full skill-detail wire
// representation. Caller must hold u's lock.
func detailize(u *UserData) *UserDetail {
	skills := make([]SkillDetail, 0, len(u.SkillUsage))

	for id, sd := range u.SkillUsage {
		skills = append(skills, SkillDetail{SkillID: id, Stats: toBucketsJSON(sd.Stats), Count: toCountsJSON(sd.Count)})
	}

	var byTarget []SkillTargetDetail

	for id, targets := range u.SkillUsageByTarget {
		for tgt, sd := range targets {
			byTarget = append(byTarget, SkillTargetDetail{
				SkillID:  id,
				TargetID: tgt,
				Stats:    toBucketsJSON(sd.Stats),
				Count:    toCountsJSON(sd.Count),
			})
		}
	}

	return &UserDetail{
		UserSummary:        summarize(u),
		SkillUsage:         skills,
		SkillUsageByTarget: byTarget,
	}
}

// summarize converts a UserData into its wire representation. Caller must
// hold u's lock.
func summarize(u *UserData) *UserSummary {
	return &UserSummary{
		RealtimeDPS:    u.DamageStats.Realtime.Value,
		RealtimeDPSMax: u.DamageStats.Realtime.Max,
		TotalDPS:       u.DamageStats.MeanPerSecond(),
		TotalDamage:    toBucketsJSON(u.DamageStats.Stats),
		TotalCount:     toCountsJSON(u.DamageStats.Count),

		RealtimeHPS:    u.HealingStats.Realtime.Value,
		RealtimeHPSMax: u.HealingStats.Realtime.Max,
		TotalHPS:       u.HealingStats.MeanPerSecond(),
		TotalHealing:   toBucketsJSON(u.HealingStats.Stats),
		HealingCount:   toCountsJSON(u.HealingStats.Count),

		TakenDamage: u.TakenDamage,
		Profession:  professionDisplay(u.Profession, u.SubProfession),
		Name:        u.Name,
		FightPoint:  u.FightPoint,
		HP:          u.Attributes["hp"],
		MaxHP:       u.Attributes["max_hp"],
		DeadCount:   u.DeadCount,
	}
}
