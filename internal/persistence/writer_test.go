package persistence

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/engine"
)

func readGz(t *testing.T, path string) []byte {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}

	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip open %s: %v", path, err)
	}

	defer gr.Close()

	raw, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return raw
}

func TestPersist_WritesFightLogAndSummaryFields(t *testing.T) {
	root := t.TempDir()

	w, err := NewWriter(root, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	start := time.Now()
	end := start.Add(5 * time.Second)

	snap := engine.FightSnapshot{
		FightID:     1,
		StartTS:     start,
		EndTS:       end,
		Users:       map[uint64]*engine.UserSummary{7: {Name: "Alice"}},
		UserDetails: map[uint64]*engine.UserDetail{7: {UserSummary: &engine.UserSummary{Name: "Alice"}}},
		LogLines:    []string{"[ts] [DMG] DS: - SRC: Alice#7(player) TGT: Goblin#2(enemy) ID: 1 VAL: 100 EXT: Normal"},
	}

	if err := w.Persist(snap); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	dir := filepath.Join(root, "fights", "1")

	logRaw := readGz(t, filepath.Join(dir, "fight.log.gz"))
	if string(logRaw) != snap.LogLines[0]+"\n" {
		t.Fatalf("fight.log content = %q, want %q", logRaw, snap.LogLines[0]+"\n")
	}

	var summary fightSummary

	summaryRaw := readGz(t, filepath.Join(dir, "summary.json.gz"))
	if err := json.Unmarshal(summaryRaw, &summary); err != nil {
		t.Fatalf("unmarshal summary.json: %v", err)
	}

	if summary.Duration != end.Sub(start) {
		t.Fatalf("summary.Duration = %v, want %v", summary.Duration, end.Sub(start))
	}

	if summary.Version != SummaryVersion {
		t.Fatalf("summary.Version = %q, want %q", summary.Version, SummaryVersion)
	}

	if _, err := os.Stat(filepath.Join(dir, "users", "7.json.gz")); err != nil {
		t.Fatalf("expected per-user detail file: %v", err)
	}
}

func TestPersist_EmptyFightLogStillWritten(t *testing.T) {
	root := t.TempDir()

	w, err := NewWriter(root, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	snap := engine.FightSnapshot{
		FightID:     2,
		Users:       map[uint64]*engine.UserSummary{},
		UserDetails: map[uint64]*engine.UserDetail{},
	}

	if err := w.Persist(snap); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	path := filepath.Join(root, "fights", "2", "fight.log.gz")

	raw := readGz(t, path)
	if len(raw) != 0 {
		t.Fatalf("expected an empty fight.log for a fight with no events, got %q", raw)
	}
}
