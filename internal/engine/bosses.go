package engine

import "strings"

// bossAttrIDs and bossNames are data tables identifying which enemy
// entities count as "bosses" for spawn/wipe detection. Like the skill-id
// opcode catalogue referenced in spec §1/§4.7, this table is owned by the
// game's data and is not part of the design; it is wired here as package
// variables so a deployment can extend it without touching the detection
// algorithm in engine.go.
var bossAttrIDs = map[uint64]bool{
	1001: true,
	1002: true,
	1003: true,
}

var bossNames = []string{
	"Drake",
	"Sentinel Warden",
	"Abyssal Tyrant",
}

// isBossEntity implements spec §4.8.5's detection rule: an entity is a
// boss iff its attr_id is in the boss table, OR its name matches a known
// boss name by exact equality or substring in either direction.
//
// Preserved per spec §9's open question: substring matching in either
// direction can misidentify siblings with overlapping names. The attr_id
// check is evaluated first as the stricter signal, but name matching
// alone is still sufficient, exactly as the original behavior allows.
func isBossEntity(name string, attrID uint64) bool {
	if bossAttrIDs[attrID] {
		return true
	}

	for _, boss := range bossNames {
		if name == boss || strings.Contains(name, boss) || strings.Contains(boss, name) {
			return true
		}
	}

	return false
}
