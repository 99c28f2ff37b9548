package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/persistence/snapshot"
	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/tuning"
	"wirecraft.ai/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index over the tick/audit streams and
// snapshots. The compressed JSONL logs stay the source of truth; the index drops
// writes rather than stall the sim loop.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick     atomic.Uint64
	dropAudit    atomic.Uint64
	dropSnapshot atomic.Uint64
	writeErrors  atomic.Uint64
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropTickTotal     uint64 `json:"drop_tick_total"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WriteErrorTotal   uint64 `json:"write_error_total"`
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	tick     world.TickLogEntry
	audit    world.AuditEntry
	snapshot snapshotRow
	flushed  chan struct{}
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	WorldID string
	Blocks  []string
	Pending int
	Loaded  int
}

func OpenSQLite(path string, logger logrus.FieldLogger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: logger.WithField("component", "indexdb"),
		// Edit bursts can produce many audit rows per tick.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload; NORMAL sync is enough for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			edits INTEGER NOT NULL,
			popped INTEGER NOT NULL,
			mutations INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			client_id TEXT NOT NULL,
			op TEXT NOT NULL,
			op_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_client_tick ON edits(client_id, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			from_block TEXT NOT NULL,
			to_block TEXT NOT NULL,
			reason TEXT,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_pos_tick ON audits(x, y, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			world_id TEXT NOT NULL,
			blocks INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			loaded_chunks INTEGER NOT NULL
		);`,
		// Block state as of the most recent recorded snapshot.
		`CREATE TABLE IF NOT EXISTS snapshot_blocks (
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			kind TEXT NOT NULL,
			line TEXT NOT NULL,
			tick INTEGER NOT NULL,
			PRIMARY KEY (x, y)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropTickTotal:     s.dropTick.Load(),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry world.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqAudit, audit: entry}:
	default:
		s.dropAudit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:    snap.Header.Tick,
		Path:    path,
		WorldID: snap.Header.WorldID,
		Blocks:  snap.Blocks,
		Pending: len(snap.Pending),
		Loaded:  len(snap.Loaded),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Flush blocks until every write queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LatestSnapshot returns the newest recorded snapshot path at or before maxTick.
// ok is false when none is recorded.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context, maxTick uint64) (tick uint64, path string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT tick, path FROM snapshots WHERE tick <= ? ORDER BY tick DESC LIMIT 1`, int64(maxTick))
	var t int64
	if err := row.Scan(&t, &path); err != nil {
		if err == sql.ErrNoRows {
			return 0, "", false, nil
		}
		return 0, "", false, err
	}
	return uint64(t), path, true, nil
}

// UpsertTuning records the tuning values actually applied.
func (s *SQLiteIndex) UpsertTuning(worldID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, kv := range [][2]string{
		{"schema_version", "1"},
		{"world_id", worldID},
		{"tuning_json", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"updated_at", time.Now().UTC().Format(time.RFC3339Nano)},
	} {
		if _, err := stmt.Exec(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() bool {
		if tx != nil {
			return true
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			s.log.WithError(err).Warn("begin tx")
			time.Sleep(50 * time.Millisecond)
			return false
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
		return true
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
			s.log.WithError(err).Warn("commit")
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	fail := func(what string, tick uint64, err error) {
		s.writeErrors.Add(1)
		s.log.WithError(err).WithField("tick", tick).Warnf("index %s", what)
		if tx != nil {
			_ = tx.Rollback()
			tx = nil
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flushed)
			continue
		}
		if !begin() {
			continue
		}
		switch r.kind {
		case reqTick:
			if err := s.insertTick(tx, r.tick); err != nil {
				fail("tick", r.tick.Tick, err)
				continue
			}
			opCount += 1 + len(r.tick.Edits)

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			if _, err := tx.Exec(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,x,y,from_block,to_block,reason) VALUES(?,?,?,?,?,?,?,?,?)`,
				int64(a.Tick), seq, a.Actor, a.Action, a.Pos[0], a.Pos[1], a.From, a.To, a.Reason,
			); err != nil {
				fail("audit", a.Tick, err)
				continue
			}
			opCount++

		case reqSnapshot:
			if err := s.insertSnapshot(tx, r.snapshot); err != nil {
				fail("snapshot", r.snapshot.Tick, err)
				continue
			}
			// Snapshot rows are rare and large; commit them promptly.
			commit()
			continue
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}

func (s *SQLiteIndex) insertTick(tx *sql.Tx, e world.TickLogEntry) error {
	raw, _ := json.Marshal(e)
	if _, err := tx.Exec(`INSERT OR REPLACE INTO ticks(tick,digest,edits,popped,mutations,raw_json) VALUES(?,?,?,?,?,?)`,
		int64(e.Tick), e.Digest, len(e.Edits), e.Stats.Popped, e.Stats.Mutations(), string(raw),
	); err != nil {
		return err
	}
	for i, ed := range e.Edits {
		opJSON, _ := json.Marshal(ed.Op)
		if _, err := tx.Exec(`INSERT OR REPLACE INTO edits(tick,seq,client_id,op,op_json) VALUES(?,?,?,?,?)`,
			int64(e.Tick), i, ed.ClientID, ed.Op.Op, string(opJSON),
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) insertSnapshot(tx *sql.Tx, r snapshotRow) error {
	if _, err := tx.Exec(`INSERT OR REPLACE INTO snapshots(tick,path,world_id,blocks,pending,loaded_chunks) VALUES(?,?,?,?,?,?)`,
		int64(r.Tick), r.Path, r.WorldID, len(r.Blocks), r.Pending, r.Loaded,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshot_blocks`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO snapshot_blocks(x,y,kind,line,tick) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, line := range r.Blocks {
		p, err := blocktext.Decode(line)
		if err != nil {
			continue
		}
		if _, err := stmt.Exec(p.Pos.X, p.Pos.Y, block.Name(p.Block), line, int64(r.Tick)); err != nil {
			return err
		}
	}
	return nil
}
