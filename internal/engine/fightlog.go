package engine

import (
	"fmt"
	"sync"
	"time"
)

// fightLogTimeFormat is the ISO-8601 timestamp spec §6's fight.log format
// calls for.
const fightLogTimeFormat = time.RFC3339Nano

// extTag classifies a record's crit/lucky flags into the fight.log EXT
// tag, per spec §6.
func extTag(isCrit, isLucky, isCauseLucky bool) string {
	switch {
	case isCrit && isLucky:
		return "Crit+Lucky"
	case isCrit:
		return "Crit"
	case isLucky:
		return "Lucky"
	case isCauseLucky:
		return "CauseLucky"
	default:
		return "Normal"
	}
}

// formatLogLine renders one fight.log line, bit-exact to spec §6's format
// and consumer regex:
//
//	[<ISO-8601-ts>] [<DMG|HEAL>] DS: <dataset> SRC: <name>#<uid>(player) TGT: <name>#<uid>(<enemy|player>) ID: <skill_id> VAL: <int> EXT: <tag>
//
// An empty dataset or name renders as "-", since the regex needs at least
// one character before each '#'.
func formatLogLine(now time.Time, kind, dataset, srcName string, srcUID uint64, tgtName string, tgtUID uint64, tgtKind string, skillID uint64, value int64, ext string) string {
	if dataset == "" {
		dataset = "-"
	}

	if srcName == "" {
		srcName = "-"
	}

	if tgtName == "" {
		tgtName = "-"
	}

	return fmt.Sprintf(
		"[%s] [%s] DS: %s SRC: %s#%d(player) TGT: %s#%d(%s) ID: %d VAL: %d EXT: %s",
		now.Format(fightLogTimeFormat), kind, dataset, srcName, srcUID, tgtName, tgtUID, tgtKind, skillID, value, ext,
	)
}

// fightLog is the in-memory append-log buffer for one fight's worth of
// fight.log lines. Guarded by its own mutex, distinct from Engine.mu and
// any UserData.mu, per spec §5's "fight.log append ... serialized by a
// log mutex".
type fightLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *fightLog) append(line string) {
	l.mu.Lock()
	l.lines = append(l.lines, line)
	l.mu.Unlock()
}

// drain returns and clears the buffered lines, for flush-then-persist at
// clear_all, per spec §4.9.
func (l *fightLog) drain() []string {
	l.mu.Lock()
	lines := l.lines
	l.lines = nil
	l.mu.Unlock()

	return lines
}
