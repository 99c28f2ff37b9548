package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"wirecraft.ai/internal/persistence/blocktext"
	persistlog "wirecraft.ai/internal/persistence/log"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "metrics":
			metricsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	rect := fs.String("rect", "", "rectangle filter: x1,y1:x2,y2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback edits since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback edits up to tick (inclusive, optional; defaults to snapshot tick)")
	actor := fs.String("actor", "", "only roll back edits by this client id (optional)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*rect) == "" {
		fmt.Fprintln(os.Stderr, "missing -rect")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseRect(*rect)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -rect:", err)
		os.Exit(2)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	f := auditFilter{Since: *sinceTick, To: endTick, Min: min, Max: max, Actor: strings.TrimSpace(*actor)}
	recs, err := readAudit(filepath.Join(worldDir, "audit"), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}

	applied, skipped, err := applyRollback(&snap, recs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollback:", err)
		os.Exit(1)
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d rect=%s since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *rect, *sinceTick, endTick, len(recs), applied, skipped, *outPath)
}

type auditFilter struct {
	Since, To uint64
	Min, Max  [2]int
	Actor     string
}

func (f auditFilter) match(e world.AuditEntry) bool {
	if e.Action != protocol.OpPlace && e.Action != protocol.OpRemove {
		return false
	}
	if e.Tick < f.Since || e.Tick > f.To {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	return withinRect(e.Pos, f.Min, f.Max)
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

// readAudit returns matching entries newest first, the order they must be undone in.
func readAudit(dir string, f auditFilter) ([]auditRec, error) {
	files, err := persistlog.ListFiles(dir, "audit")
	if err != nil {
		return nil, err
	}

	out := make([]auditRec, 0, 1024)
	var seq uint64
	for _, path := range files {
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			seq++
			if f.match(e) {
				out = append(out, auditRec{Seq: seq, Entry: e})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// applyRollback restores each record's prior cell contents. Touched cells and their
// neighbours are queued so the engine re-derives power after import.
func applyRollback(snap *snapshot.SnapshotV1, recs []auditRec) (applied, skipped int, err error) {
	if snap == nil || len(recs) == 0 {
		return 0, 0, nil
	}
	cells := make(map[grid.Coord]blocktext.Placed, len(snap.Blocks))
	for i, line := range snap.Blocks {
		p, err := blocktext.Decode(line)
		if err != nil {
			return 0, 0, fmt.Errorf("snapshot block %d: %w", i, err)
		}
		cells[p.Pos] = p
	}

	var touched []grid.Coord
	for _, r := range recs {
		pos := grid.FromArray(r.Entry.Pos)
		if r.Entry.From == "" {
			delete(cells, pos)
		} else {
			p, err := blocktext.Decode(r.Entry.From)
			if err != nil || p.Pos != pos {
				skipped++
				continue
			}
			cells[pos] = p
		}
		touched = append(touched, pos)
		applied++
	}

	coords := make([]grid.Coord, 0, len(cells))
	for c := range cells {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	snap.Blocks = snap.Blocks[:0]
	for _, c := range coords {
		snap.Blocks = append(snap.Blocks, blocktext.Encode(cells[c]))
	}

	queued := make(map[[2]int]bool, len(snap.Pending))
	for _, p := range snap.Pending {
		queued[p] = true
	}
	enqueue := func(c grid.Coord) {
		a := c.ToArray()
		if !queued[a] {
			queued[a] = true
			snap.Pending = append(snap.Pending, a)
		}
	}
	for _, c := range touched {
		enqueue(c)
		for _, n := range c.Neighbors() {
			enqueue(n)
		}
	}
	return applied, skipped, nil
}

func withinRect(pos, min, max [2]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1]
}

func parseRect(s string) (min, max [2]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1:x2,y2")
	}
	a, err := parseVec2(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec2(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 2; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec2(s string) ([2]int, error) {
	var v [2]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return v, fmt.Errorf("expected x,y")
	}
	for i := 0; i < 2; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
