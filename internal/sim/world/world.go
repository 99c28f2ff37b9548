package world

import (
	"sync"
	"sync/atomic"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/protocol"
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
	"wirecraft.ai/internal/sim/propagate"
	"wirecraft.ai/internal/sim/worklist"
)

type JoinRequest struct {
	Name string
	Out  chan []byte
	// Resp should be buffered; the loop drops the response if nobody is receiving.
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// EditEnvelope carries one EDIT message from a session.
type EditEnvelope struct {
	ClientID string
	Ops      []protocol.EditOp
}

type QueryRequest struct {
	ClientID string
	Query    protocol.QueryMsg
}

type RecordedEdit struct {
	ClientID string          `json:"client_id,omitempty"`
	Op       protocol.EditOp `json:"op"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type TickLogEntry struct {
	Tick   uint64          `json:"tick"`
	Edits  []RecordedEdit  `json:"edits,omitempty"`
	Stats  propagate.Stats `json:"stats"`
	Digest string          `json:"digest"`
}

type AuditEntry struct {
	Tick   uint64 `json:"tick"`
	Actor  string `json:"actor"`
	Action string `json:"action"` // e.g. "PLACE"
	Pos    [2]int `json:"pos"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ChunkStore persists chunk contents while they are unloaded.
type ChunkStore interface {
	Load(k grid.ChunkKey) ([]blocktext.Placed, bool, error)
	Save(k grid.ChunkKey, blocks []blocktext.Placed) error
}

type clientState struct {
	Name string
	Out  chan []byte
}

type World struct {
	cfg WorldConfig

	tick    atomic.Uint64
	metrics atomic.Value

	grid       *grid.Grid
	queue      *worklist.Queue
	engine     *propagate.Engine
	nextHandle uint64

	store  ChunkStore
	loaded map[grid.ChunkKey]bool

	clients       map[string]*clientState
	nextClientNum atomic.Uint64

	// Cells touched during the current tick, flushed as a TICK delta.
	dirty map[grid.Coord]struct{}
	// Ops over MaxEditsPerTick wait here for the next tick.
	backlog []RecordedEdit

	inbox chan EditEnvelope
	join  chan JoinRequest
	leave chan string
	query chan QueryRequest
	admin chan adminSnapshotReq

	stop     chan struct{}
	stopOnce sync.Once

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
}

func New(cfg WorldConfig) *World {
	cfg.applyDefaults()
	w := &World{
		cfg:     cfg,
		grid:    grid.New(),
		queue:   worklist.New(),
		loaded:  map[grid.ChunkKey]bool{},
		clients: map[string]*clientState{},
		dirty:   map[grid.Coord]struct{}{},
		inbox:   make(chan EditEnvelope, 1024),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan string, 64),
		query:   make(chan QueryRequest, 256),
		admin:   make(chan adminSnapshotReq, 16),
		stop:    make(chan struct{}),
	}
	w.engine = propagate.New(w.grid, w.queue, propagate.Options{
		GateRule:    cfg.GateRule,
		RelaxBudget: cfg.RelaxBudget,
		OnChange:    w.onEngineChange,
	})
	return w
}

func (w *World) SetTickLogger(l TickLogger)                    { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)                  { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

// SetChunkStore enables chunk streaming. Call before Run.
func (w *World) SetChunkStore(s ChunkStore) { w.store = s }

func (w *World) Inbox() chan<- EditEnvelope   { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- string         { return w.leave }
func (w *World) Queries() chan<- QueryRequest { return w.query }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.TickRateHz
}

func (w *World) onEngineChange(pos grid.Coord, _, _ block.Block) {
	w.markDirty(pos)
}

func (w *World) markDirty(pos grid.Coord) {
	w.dirty[pos] = struct{}{}
}
