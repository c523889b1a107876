package engine

import (
	"regexp"
	"testing"
	"time"
)

// fightLogLineRegex mirrors spec §6's consumer-side regex verbatim.
var fightLogLineRegex = regexp.MustCompile(
	`\[([^\]]+)\] \[(DMG|HEAL)\].*SRC: ([^#]+)#(\d+)\(player\).*TGT: ([^#]+)#(\d+)\((enemy|player)\).*ID: (\d+).*VAL: (\d+).*EXT: (\w+)`,
)

func TestFormatLogLine_MatchesConsumerRegex(t *testing.T) {
	line := formatLogLine(time.Now(), "DMG", "Physical", "Alice", 1, "Goblin", 2, "enemy", 42, 1000, "Crit")

	if !fightLogLineRegex.MatchString(line) {
		t.Fatalf("line %q does not match the documented consumer regex", line)
	}
}

func TestFormatLogLine_HealMatchesConsumerRegex(t *testing.T) {
	line := formatLogLine(time.Now(), "HEAL", "", "Bob", 3, "Alice", 1, "player", 7, 250, "Normal")

	if !fightLogLineRegex.MatchString(line) {
		t.Fatalf("line %q does not match the documented consumer regex", line)
	}

	if !regexp.MustCompile(`DS: -`).MatchString(line) {
		t.Fatalf("expected an empty dataset to render as '-', got %q", line)
	}
}

func TestExtTag(t *testing.T) {
	cases := []struct {
		crit, lucky, causeLucky bool
		want                    string
	}{
		{false, false, false, "Normal"},
		{true, false, false, "Crit"},
		{false, true, false, "Lucky"},
		{true, true, false, "Crit+Lucky"},
		{false, false, true, "CauseLucky"},
		{true, true, true, "Crit+Lucky"},
	}

	for _, c := range cases {
		if got := extTag(c.crit, c.lucky, c.causeLucky); got != c.want {
			t.Fatalf("extTag(%v,%v,%v) = %q, want %q", c.crit, c.lucky, c.causeLucky, got, c.want)
		}
	}
}

func TestFightLog_AppendAndDrain(t *testing.T) {
	var l fightLog

	l.append("one")
	l.append("two")

	lines := l.drain()
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("drain() = %v, want [one two]", lines)
	}

	if drained := l.drain(); len(drained) != 0 {
		t.Fatalf("second drain() = %v, want empty after the first drain", drained)
	}
}
