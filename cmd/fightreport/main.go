// Command fightreport prints a persisted fight's per-player summary as a
// table, the same way the teacher's tcpConnection.go renders its
// reassembly stats via evilsocket/islazy/tui.Table.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/evilsocket/islazy/tui"
	"github.com/mgutz/ansi"

	"github.com/kar-mi/bpsr-combat-telemetry/internal/engine"
	"github.com/kar-mi/bpsr-combat-telemetry/internal/persistence"
)

func main() {
	var (
		root    = flag.String("root", "./data", "persistence root directory")
		fightID = flag.Int64("fight", 0, "fight id to report on")
	)

	flag.Parse()

	if *fightID == 0 {
		fmt.Println(ansi.Red + "missing -fight id" + ansi.Reset)
		os.Exit(1)
	}

	users, err := persistence.ReadFightLog(*root, *fightID)
	if err != nil {
		fmt.Println(ansi.Red+"failed to read fight log:", err, ansi.Reset)
		os.Exit(1)
	}

	rows := toRows(users)

	tui.Table(os.Stdout, []string{"UID", "Name", "Profession", "DPS", "Total Damage", "HPS", "Total Healing", "Deaths"}, rows)
}

func toRows(users map[uint64]*engine.UserSummary) [][]string {
	type entry struct {
		uid uint64
		u   *engine.UserSummary
	}

	entries := make([]entry, 0, len(users))
	for uid, u := range users {
		entries = append(entries, entry{uid: uid, u: u})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].u.TotalDPS > entries[j].u.TotalDPS
	})

	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		rows = append(rows, []string{
			strconv.FormatUint(e.uid, 10),
			e.u.Name,
			e.u.Profession,
			strconv.FormatInt(e.u.TotalDPS, 10),
			strconv.FormatInt(e.u.TotalDamage.Total, 10),
			strconv.FormatInt(e.u.TotalHPS, 10),
			strconv.FormatInt(e.u.TotalHealing.Total, 10),
			strconv.FormatInt(e.u.DeadCount, 10),
		})
	}

	return rows
}
