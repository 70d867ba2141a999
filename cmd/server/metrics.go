package main

import (
	"fmt"
	"io"

	"gridswarm/internal/persistence/indexdb"
	"gridswarm/internal/sim/world"
)

// writeMetrics renders the minimal Prometheus exposition format.
func writeMetrics(w io.Writer, worldID string, tick uint64, m world.WorldMetrics, idx *indexdb.Stats) {
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(w, "# HELP gridswarm_world_tick Current world tick.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_world_tick gauge\n")
	fmt.Fprintf(w, "gridswarm_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(w, "# HELP gridswarm_world_entities Live entities in the world.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_world_entities gauge\n")
	fmt.Fprintf(w, "gridswarm_world_entities{world=%q} %d\n", worldID, m.Entities)

	fmt.Fprintf(w, "# HELP gridswarm_world_observers Connected observer sessions.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_world_observers gauge\n")
	fmt.Fprintf(w, "gridswarm_world_observers{world=%q} %d\n", worldID, m.Observers)

	fmt.Fprintf(w, "# HELP gridswarm_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_world_step_ms gauge\n")
	fmt.Fprintf(w, "gridswarm_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(w, "# HELP gridswarm_world_ticks_per_second Tick rate averaged over the last 32 ticks.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_world_ticks_per_second gauge\n")
	fmt.Fprintf(w, "gridswarm_world_ticks_per_second{world=%q} %.3f\n", worldID, m.TicksPerSec)

	fmt.Fprintf(w, "# HELP gridswarm_world_outcomes_total Resolved entity outcomes.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_world_outcomes_total counter\n")
	fmt.Fprintf(w, "gridswarm_world_outcomes_total{world=%q,outcome=%q} %d\n", worldID, "move", m.MovedTotal)
	fmt.Fprintf(w, "gridswarm_world_outcomes_total{world=%q,outcome=%q} %d\n", worldID, "blocked", m.BlockedTotal)
	fmt.Fprintf(w, "gridswarm_world_outcomes_total{world=%q,outcome=%q} %d\n", worldID, "wait", m.WaitedTotal)
	fmt.Fprintf(w, "gridswarm_world_outcomes_total{world=%q,outcome=%q} %d\n", worldID, "turn", m.TurnedTotal)

	if idx == nil {
		return
	}
	fmt.Fprintf(w, "# HELP gridswarm_index_queue_depth Index writer backlog depth.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_index_queue_depth gauge\n")
	fmt.Fprintf(w, "gridswarm_index_queue_depth{world=%q} %d\n", worldID, idx.QueueDepth)

	fmt.Fprintf(w, "# HELP gridswarm_index_dropped_total Index writes dropped because the queue was full.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_index_dropped_total counter\n")
	fmt.Fprintf(w, "gridswarm_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "tick", idx.DropTickTotal)
	fmt.Fprintf(w, "gridswarm_index_dropped_total{world=%q,kind=%q} %d\n", worldID, "fault", idx.DropFaultTotal)

	fmt.Fprintf(w, "# HELP gridswarm_index_write_errors_total Index rows lost to failed writes.\n")
	fmt.Fprintf(w, "# TYPE gridswarm_index_write_errors_total counter\n")
	fmt.Fprintf(w, "gridswarm_index_write_errors_total{world=%q} %d\n", worldID, idx.WriteErrTotal)
}
