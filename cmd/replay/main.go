package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	persistlog "wirecraft.ai/internal/persistence/log"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		eventsDir = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		fromTick  = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick    = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		verbose   = flag.Bool("v", false, "log every verified tick")
	)
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		log.WithError(err).Fatal("read snapshot")
	}
	log.WithFields(logrus.Fields{
		"version":  snap.Header.Version,
		"world":    snap.Header.WorldID,
		"tick":     snap.Header.Tick,
		"blocks":   len(snap.Blocks),
		"pending":  len(snap.Pending),
		"chunks":   len(snap.Loaded),
		"gate":     snap.GateOutput,
		"budget":   snap.RelaxBudget,
		"tickRate": snap.TickRate,
	}).Info("snapshot")

	if *eventsDir == "" {
		return
	}

	w := world.New(world.WorldConfig{ID: snap.Header.WorldID})
	if err := w.ImportSnapshot(snap); err != nil {
		log.WithError(err).Fatal("import snapshot")
	}

	files, err := persistlog.ListFiles(*eventsDir, "events")
	if err != nil {
		log.WithError(err).Fatal("list events")
	}
	if len(files) == 0 {
		log.WithField("dir", *eventsDir).Fatal("no events files found")
	}

	checked, err := replay(w, files, *fromTick, *toTick, log)
	if err != nil {
		log.WithError(err).Fatal("replay")
	}
	log.WithFields(logrus.Fields{
		"checked":       checked,
		"snapshot_tick": snap.Header.Tick,
		"last_tick":     w.CurrentTick() - 1,
	}).Info("replay ok")
}

var errStop = errors.New("stop")

// replay steps w through every logged tick after its current tick and compares
// the resulting digests from verifyFrom on (0 means from the first replayed tick).
func replay(w *world.World, files []string, verifyFrom, toTick uint64, log logrus.FieldLogger) (uint64, error) {
	startTick := w.CurrentTick()
	if verifyFrom == 0 {
		verifyFrom = startTick
	}

	var checked uint64
	for _, path := range files {
		name := filepath.Base(path)
		err := persistlog.ReadJSONL(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			if entry.Tick < startTick {
				return nil
			}
			if toTick != 0 && entry.Tick > toTick {
				return errStop
			}
			if entry.Tick != w.CurrentTick() {
				return fmt.Errorf("tick gap: want=%d got=%d (file=%s)", w.CurrentTick(), entry.Tick, name)
			}

			tick, digest := w.StepOnce(entry.Edits)
			if tick != entry.Tick {
				return fmt.Errorf("internal tick mismatch: stepped=%d entry=%d (file=%s)", tick, entry.Tick, name)
			}
			if tick < verifyFrom {
				return nil
			}
			checked++
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
			log.WithField("tick", tick).Debug("verified")
			return nil
		})
		if err == errStop {
			break
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}
