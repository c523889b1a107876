// Package persistence durably stores finished fights to disk, following
// the teacher's decoder/stream/saveFile.go save-to-disk idiom: write to a
// temp path, hash the bytes with cryptoutils, gzip-compress with
// klauspost/pgzip, then rename into place so readers never observe a
// partially written fight directory.
package persistence

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dreadl0ck/cryptoutils"
	gzip "github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/engine"
)

// DirectoryPermission matches the teacher's defaults.DirectoryPermission
// (0755) used by decoder/stream/saveFile.go's os.MkdirAll calls.
const DirectoryPermission = 0o755

// SummaryVersion is the summary.json schema version, per spec §4.9.
const SummaryVersion = "1"

// Writer persists FightSnapshots as gzip-compressed fight directories
// under Root, one subdirectory per fight id.
type Writer struct {
	Root string
	log  *zap.Logger
}

// NewWriter returns a Writer rooted at root, creating it if necessary.
func NewWriter(root string, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := os.MkdirAll(root, DirectoryPermission); err != nil {
		return nil, errors.Wrapf(err, "create persistence root %s", root)
	}

	return &Writer{Root: root, log: log.Named("persistence")}, nil
}

// Persist implements engine.Persister. It flushes fight.log first, then
// writes summary.json, encountered_boss.json, death_events.json,
// allUserData.json and per-user skill-detail snapshots into
// fights/<fight_id>/, each gzip-compressed, and logs the MD5 of every
// file written for integrity auditing, mirroring saveFile's hash-and-log
// pattern.
func (w *Writer) Persist(snap engine.FightSnapshot) error {
	dir := filepath.Join(w.Root, "fights", strconv.FormatInt(snap.FightID, 10))

	tmp := dir + ".tmp"
	if err := os.MkdirAll(tmp, DirectoryPermission); err != nil {
		return errors.Wrapf(err, "create fight dir %s", tmp)
	}

	// fight.log is flushed before the JSON siblings are (re)written, per
	// spec §4.9/§5. Written (possibly empty) even when no events occurred.
	if err := w.writeFightLogGz(filepath.Join(tmp, "fight.log.gz"), snap.LogLines); err != nil {
		return err
	}

	if err := w.writeJSONGz(filepath.Join(tmp, "summary.json.gz"), fightSummary{
		FightID:      snap.FightID,
		StartTS:      snap.StartTS,
		EndTS:        snap.EndTS,
		Duration:     snap.EndTS.Sub(snap.StartTS),
		Version:      SummaryVersion,
		MaxHPMonster: snap.MaxHPMonster,
		UserCount:    len(snap.Users),
	}); err != nil {
		return err
	}

	if err := w.writeJSONGz(filepath.Join(tmp, "encountered_boss.json.gz"), snap.EncounteredBosses); err != nil {
		return err
	}

	if err := w.writeJSONGz(filepath.Join(tmp, "death_events.json.gz"), snap.DeathEvents); err != nil {
		return err
	}

	if err := w.writeJSONGz(filepath.Join(tmp, "allUserData.json.gz"), snap.Users); err != nil {
		return err
	}

	usersDir := filepath.Join(tmp, "users")
	if err := os.MkdirAll(usersDir, DirectoryPermission); err != nil {
		return errors.Wrapf(err, "create users dir %s", usersDir)
	}

	for uid, u := range snap.UserDetails {
		fname := filepath.Join(usersDir, strconv.FormatUint(uid, 10)+".json.gz")
		if err := w.writeJSONGz(fname, u); err != nil {
			return err
		}
	}

	// Remove any stale previous attempt, then atomically publish this one.
	_ = os.RemoveAll(dir)

	if err := os.Rename(tmp, dir); err != nil {
		return errors.Wrapf(err, "publish fight dir %s", dir)
	}

	w.log.Info("persisted fight",
		zap.Int64("fight_id", snap.FightID),
		zap.Int("users", len(snap.Users)),
		zap.String("dir", dir),
	)

	return nil
}

type fightSummary struct {
	FightID      int64         `json:"fight_id"`
	StartTS      time.Time     `json:"start_ts"`
	EndTS        time.Time     `json:"end_ts"`
	Duration     time.Duration `json:"duration"`
	Version      string        `json:"version"`
	MaxHPMonster int64         `json:"max_hp_monster"`
	UserCount    int           `json:"user_count"`
}

// writeJSONGz marshals v, gzip-compresses it via pgzip (same library the
// teacher uses for on-disk file compression), and writes it to path,
// logging the MD5 hash of the uncompressed JSON bytes.
func (w *Writer) writeJSONGz(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", path)
	}

	return w.writeRawGz(path, raw)
}

// writeFightLogGz joins lines with newlines (possibly zero of them, per
// spec §4.9's "created empty so downstream readers may skip empty fights
// deterministically") and gzip-compresses the result to path.
func (w *Writer) writeFightLogGz(path string, lines []string) error {
	var raw []byte
	if len(lines) > 0 {
		raw = []byte(strings.Join(lines, "\n") + "\n")
	}

	return w.writeRawGz(path, raw)
}

// writeRawGz gzip-compresses raw via pgzip and writes it to path, logging
// the MD5 hash of the uncompressed bytes for integrity auditing.
func (w *Writer) writeRawGz(path string, raw []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}

	defer f.Close()

	gw := gzip.NewWriter(f)

	if _, err := gw.Write(raw); err != nil {
		_ = gw.Close()

		return errors.Wrapf(err, "gzip write %s", path)
	}

	if err := gw.Close(); err != nil {
		return errors.Wrapf(err, "gzip close %s", path)
	}

	hash := hex.EncodeToString(cryptoutils.MD5Data(raw))
	w.log.Debug("wrote fight artifact", zap.String("path", path), zap.String("md5", hash), zap.Int("bytes", len(raw)))

	return nil
}

// PersistUserCache implements engine.UserCachePersister, writing the
// coalesced per-player identity cache to users.json.gz at the root,
// overwriting the previous snapshot in place via the same temp-then-rename
// sequence Persist uses.
func (w *Writer) PersistUserCache(entries map[uint64]engine.UserCacheEntry) error {
	path := filepath.Join(w.Root, "users.json.gz")
	tmp := path + ".tmp"

	if err := w.writeJSONGz(tmp, entries); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "publish user cache %s", path)
	}

	return nil
}

// ReadFightLog reads back a fight's allUserData.json.gz for reporting
// tools, mirroring the round-trip a real deployment's fightreport CLI
// needs.
func ReadFightLog(root string, fightID int64) (map[uint64]*engine.UserSummary, error) {
	path := filepath.Join(root, "fights", strconv.FormatInt(fightID, 10), "allUserData.json.gz")

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "gzip open fight log")
	}

	defer gr.Close()

	var out map[uint64]*engine.UserSummary

	dec := json.NewDecoder(gr)
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode fight log")
	}

	return out, nil
}
