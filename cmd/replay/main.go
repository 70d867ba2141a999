package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gridswarm/internal/persistence/indexdb"
	persistlog "gridswarm/internal/persistence/log"
	"gridswarm/internal/sim/tuning"
	"gridswarm/internal/sim/world"
)

func main() {
	var (
		worldDir   = flag.String("world_dir", "", "world data dir containing runs/ (e.g. ./data/worlds/world_1)")
		runFlag    = flag.String("run", "", "run id to verify (default: latest run)")
		tuningPath = flag.String("tuning", "", "tuning.yaml used by the run (default: tuning recorded in <world_dir>/index/world.sqlite)")
		workers    = flag.Int("workers", 0, "worker count used by the run (default: recorded in the index)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *worldDir == "" {
		fmt.Fprintln(os.Stderr, "missing -world_dir")
		os.Exit(2)
	}

	var tune tuning.Tuning
	run := *runFlag
	runWorkers := *workers
	if *tuningPath != "" {
		t, err := tuning.Load(*tuningPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = t
		if run == "" {
			if run, err = persistlog.LatestRun(*worldDir); err != nil {
				fmt.Fprintln(os.Stderr, "find run:", err)
				os.Exit(1)
			}
		}
	} else {
		ri, err := indexdb.ReadRun(filepath.Join(*worldDir, "index", "world.sqlite"), run)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read index (pass -tuning and -workers to replay without it):", err)
			os.Exit(1)
		}
		run = ri.RunID
		tune = ri.Tuning
		if runWorkers == 0 {
			runWorkers = ri.Workers
		}
		fmt.Printf("run %s world=%s started=%s seed=%d workers=%d\n", ri.RunID, ri.WorldID, ri.StartedAt, tune.Seed, ri.Workers)
	}
	if runWorkers <= 0 {
		fmt.Fprintln(os.Stderr, "worker count unknown; pass -workers")
		os.Exit(2)
	}
	tune.Workers = runWorkers

	checked, err := replay(tune, *worldDir, run, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: run=%s checked=%d ticks\n", run, checked)
}

var errReachedTick = errors.New("reached to_tick")

// replay rebuilds the initial world of run from tune, steps it once per logged
// tick and compares state digests.
func replay(tune tuning.Tuning, worldDir, run string, toTick uint64) (uint64, error) {
	w, err := tune.NewWorld()
	if err != nil {
		return 0, fmt.Errorf("world: %w", err)
	}
	p := world.NewProcessor(w, tune.ProcessorConfig("replay"))

	var checked uint64
	err = persistlog.ReadTickLogs(worldDir, run, func(entry world.TickLogEntry) error {
		if toTick != 0 && entry.Tick > toTick {
			return errReachedTick
		}
		if want := p.CurrentTick(); entry.Tick != want {
			return fmt.Errorf("tick mismatch: want=%d got=%d", want, entry.Tick)
		}

		tick, gotDigest, err := p.StepOnce()
		if err != nil {
			return err
		}
		checked++
		if gotDigest != entry.Digest {
			return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, gotDigest, entry.Digest)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errReachedTick) {
		return checked, err
	}
	return checked, nil
}
