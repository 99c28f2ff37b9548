package world

import "wirecraft.ai/internal/sim/propagate"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Blocks       int `json:"blocks"`
	Pending      int `json:"pending"`
	Backlog      int `json:"backlog"`
	Clients      int `json:"clients"`
	LoadedChunks int `json:"loaded_chunks"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64         `json:"step_ms"`
	Engine propagate.Stats `json:"engine"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
	Query int `json:"query"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
