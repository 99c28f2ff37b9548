package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"wirecraft.ai/internal/persistence/indexdb"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/sim/tuning"
	"wirecraft.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	world.AuditLogger
	Close() error
	Stats() indexdb.Stats
	UpsertTuning(worldID string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	LatestSnapshot(ctx context.Context, maxTick uint64) (tick uint64, path string, ok bool, err error)
}

func openRuntimeIndex(worldDir string, disableDB bool, logger logrus.FieldLogger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("WC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath, logger.WithField("component", "indexdb"))
	default:
		return nil, fmt.Errorf("unsupported WC_INDEX_BACKEND: %s", backend)
	}
}

// resolveSnapshot picks the snapshot to resume from: the explicit path, else the newest
// one the index knows about, else the newest file in the snapshots dir.
func resolveSnapshot(ctx context.Context, explicit string, loadLatest bool, worldDir string, idx runtimeIndex, logger logrus.FieldLogger) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if !loadLatest {
		return ""
	}
	if idx != nil {
		_, path, ok, err := idx.LatestSnapshot(ctx, math.MaxInt64)
		if err != nil {
			logger.WithError(err).Warn("index latest snapshot")
		} else if ok {
			if _, err := os.Stat(path); err == nil {
				return path
			}
			logger.WithField("path", path).Warn("indexed snapshot missing on disk")
		}
	}
	return latestSnapshot(worldDir)
}
