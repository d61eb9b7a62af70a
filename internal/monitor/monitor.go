// Package monitor writes the human-readable snapshot file consumed by
// the TUI monitor tool, which parses it line by line: every header,
// field order and separator here must stay byte-compatible with that
// parser.
package monitor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/comprl/server/internal/gamemanager"
	"github.com/comprl/server/internal/matchmaking"
	"github.com/comprl/server/internal/playermgr"
)

// Data is everything one snapshot needs to render.
type Data struct {
	ConnectedPlayers []playermgr.ConnectedPlayer
	Games            []gamemanager.ActiveGame
	Queue            []matchmaking.QueueEntry
	QualityScores    []matchmaking.QualityScore
}

// timestampLayout is the microsecond-precision, space-separated
// date/time format the monitor's timestamp parser expects.
const timestampLayout = "2006-01-02 15:04:05.000000"

// WriteSnapshot renders Data and writes it to path. No temp-file plus
// rename dance: readers of this file tolerate torn writes, so a direct
// truncating write is sufficient.
func WriteSnapshot(path string, d Data) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n\n", time.Now().Format(timestampLayout))

	fmt.Fprintf(&buf, "Connected players (%d):\n", len(d.ConnectedPlayers))
	for _, p := range d.ConnectedPlayers {
		fmt.Fprintf(&buf, "\t%s [%s]\n", p.Username, p.PlayerID)
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "Games (%d):\n", len(d.Games))
	for _, g := range d.Games {
		fmt.Fprintf(&buf, "\t%s (%s, %s)\n", g.GameID, g.Player1, g.Player2)
	}
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "Players in queue (%d):\n", len(d.Queue))
	for _, q := range d.Queue {
		fmt.Fprintf(&buf, "\t%s [%s] since %s\n", q.Username, q.PlayerID, q.EnqueuedAt.Format(timestampLayout))
	}
	buf.WriteString("\n")

	buf.WriteString("Match quality scores:\n")
	for _, q := range d.QualityScores {
		fmt.Fprintf(&buf, "\t%s vs %s: %.4f\n", q.User1, q.User2, q.Score)
	}
	buf.WriteString("\n")

	buf.WriteString("END\n")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("monitor: create snapshot directory: %w", err)
	}

	return os.WriteFile(path, buf.Bytes(), 0o644)
}
