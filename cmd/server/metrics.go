package main

import (
	"fmt"
	"io"

	"wirecraft.ai/internal/persistence/indexdb"
	"wirecraft.ai/internal/sim/world"
)

// writeMetrics renders the Prometheus text exposition format.
func writeMetrics(out io.Writer, worldID string, tick uint64, m world.WorldMetrics) {
	if m.Tick != 0 {
		tick = m.Tick
	}

	gauge := func(name, help string) {
		fmt.Fprintf(out, "# HELP %s %s\n", name, help)
		fmt.Fprintf(out, "# TYPE %s gauge\n", name)
	}

	gauge("wirecraft_world_tick", "Current world tick.")
	fmt.Fprintf(out, "wirecraft_world_tick{world=%q} %d\n", worldID, tick)

	gauge("wirecraft_world_blocks", "Blocks held in memory.")
	fmt.Fprintf(out, "wirecraft_world_blocks{world=%q} %d\n", worldID, m.Blocks)

	gauge("wirecraft_world_pending", "Coordinates waiting in the propagation queue.")
	fmt.Fprintf(out, "wirecraft_world_pending{world=%q} %d\n", worldID, m.Pending)

	gauge("wirecraft_world_edit_backlog", "Edit ops deferred to later ticks.")
	fmt.Fprintf(out, "wirecraft_world_edit_backlog{world=%q} %d\n", worldID, m.Backlog)

	gauge("wirecraft_world_clients", "Current number of connected clients.")
	fmt.Fprintf(out, "wirecraft_world_clients{world=%q} %d\n", worldID, m.Clients)

	gauge("wirecraft_world_loaded_chunks", "Loaded chunk count.")
	fmt.Fprintf(out, "wirecraft_world_loaded_chunks{world=%q} %d\n", worldID, m.LoadedChunks)

	gauge("wirecraft_world_queue_depth", "Channel backlog depth.")
	fmt.Fprintf(out, "wirecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "wirecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(out, "wirecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)
	fmt.Fprintf(out, "wirecraft_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "query", m.QueueDepths.Query)

	gauge("wirecraft_world_step_ms", "Last tick step duration in milliseconds.")
	fmt.Fprintf(out, "wirecraft_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	gauge("wirecraft_engine_last_tick", "Propagation work done by the last tick.")
	e := m.Engine
	for _, kv := range []struct {
		name string
		v    int
	}{
		{"popped", e.Popped},
		{"stale", e.Stale},
		{"relaxations", e.Relaxations},
		{"wire_writes", e.WireWrites},
		{"gate_writes", e.GateWrites},
		{"notified", e.Notified},
		{"budget_hits", e.BudgetHits},
	} {
		fmt.Fprintf(out, "wirecraft_engine_last_tick{world=%q,stat=%q} %d\n", worldID, kv.name, kv.v)
	}
}

func writeIndexMetrics(out io.Writer, s indexdb.Stats) {
	fmt.Fprintf(out, "# HELP wirecraft_index_queue_depth Index writer queue depth.\n")
	fmt.Fprintf(out, "# TYPE wirecraft_index_queue_depth gauge\n")
	fmt.Fprintf(out, "wirecraft_index_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(out, "wirecraft_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(out, "# HELP wirecraft_index_dropped_total Index records dropped because the queue was full.\n")
	fmt.Fprintf(out, "# TYPE wirecraft_index_dropped_total counter\n")
	fmt.Fprintf(out, "wirecraft_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(out, "wirecraft_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
	fmt.Fprintf(out, "wirecraft_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)

	fmt.Fprintf(out, "# HELP wirecraft_index_write_errors_total Failed index transactions.\n")
	fmt.Fprintf(out, "# TYPE wirecraft_index_write_errors_total counter\n")
	fmt.Fprintf(out, "wirecraft_index_write_errors_total %d\n", s.WriteErrorTotal)
}
