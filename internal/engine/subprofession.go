package engine

// skillSubProfession maps a skill id to the cosmetic sub-profession it
// implies, per spec §4.8.1/GLOSSARY. Like bossAttrIDs/bossNames, this is
// game-owned data, not part of the design; empty/unknown skill ids simply
// leave SubProfession unchanged.
var skillSubProfession = map[uint64]string{
	100101: "Frost",
	100102: "Frost",
	100201: "Verdant",
	100202: "Verdant",
	100301: "Stormcaller",
	100302: "Stormcaller",
}

// subProfessionForSkill returns the sub-profession implied by skill, or
// "" if the skill id isn't in the table.
func subProfessionForSkill(skill uint64) string {
	return skillSubProfession[skill]
}
