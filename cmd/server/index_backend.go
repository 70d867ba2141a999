package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gridswarm/internal/persistence/indexdb"
	"gridswarm/internal/sim/tuning"
	"gridswarm/internal/sim/world"
)

type runtimeIndex interface {
	world.TickLogger
	Close() error
	RecordRun(worldID string, tune tuning.Tuning, workers int) error
	RecordFault(worldID string, ie *world.InvariantError)
	Stats() indexdb.Stats
}

func openRuntimeIndex(worldDir, run string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("GS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath, run)
	default:
		return nil, fmt.Errorf("unsupported GS_INDEX_BACKEND: %s", backend)
	}
}
