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

	_ "modernc.org/sqlite"

	"gridswarm/internal/sim/tuning"
	"gridswarm/internal/sim/world"
)

// SQLiteIndex is a queryable secondary index over the runs of one world:
// per-tick stats, the tuning each run used, and invariant faults. An index
// handle writes for exactly one run. Writes are queued and applied by a single
// goroutine in batched transactions; the JSONL tick log stays the source of
// truth.
type SQLiteIndex struct {
	db  *sql.DB
	run string

	insertTick  *sql.Stmt
	insertFault *sql.Stmt

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick  atomic.Uint64
	dropFault atomic.Uint64
	writeErr  atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqFault
)

type req struct {
	kind reqKind

	tick  world.TickLogEntry
	fault faultRow
}

type faultRow struct {
	WorldID    string
	Tick       uint64
	Phase      string
	X, Y       uint
	Error      string
	RecordedAt string
}

// Stats is a point-in-time view of the write queue.
type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	DropTickTotal  uint64 `json:"drop_tick_total"`
	DropFaultTotal uint64 `json:"drop_fault_total"`
	WriteErrTotal  uint64 `json:"write_err_total"`
}

// OpenSQLite opens (or creates) the index at path for writing rows of run.
func OpenSQLite(path, run string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if run == "" {
		return nil, fmt.Errorf("empty run id")
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
	insertTick, insertFault, err := prepareInserts(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:          db,
		run:         run,
		insertTick:  insertTick,
		insertFault: insertFault,
		// A few minutes of ticks at 60 Hz.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
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
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			started_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			workers INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			tuning_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			moved INTEGER NOT NULL,
			blocked INTEGER NOT NULL,
			waited INTEGER NOT NULL,
			turned INTEGER NOT NULL,
			step_us INTEGER NOT NULL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS faults (
			run_id TEXT NOT NULL,
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			phase TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			error TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, tick)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func prepareInserts(db *sql.DB) (tick, fault *sql.Stmt, err error) {
	tick, err = db.Prepare(`INSERT OR REPLACE INTO ticks(run_id,tick,entities,moved,blocked,waited,turned,step_us,digest,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare tick insert: %w", err)
	}
	fault, err = db.Prepare(`INSERT OR REPLACE INTO faults(run_id,world_id,tick,phase,x,y,error,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		_ = tick.Close()
		return nil, nil, fmt.Errorf("prepare fault insert: %w", err)
	}
	return tick, fault, nil
}

// Run is the id of the run this handle writes for.
func (s *SQLiteIndex) Run() string { return s.run }

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
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropTickTotal:  s.dropTick.Load(),
		DropFaultTotal: s.dropFault.Load(),
		WriteErrTotal:  s.writeErr.Load(),
	}
}

func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordFault(worldID string, ie *world.InvariantError) {
	if s == nil || s.closed.Load() || ie == nil {
		return
	}
	r := faultRow{
		WorldID:    worldID,
		Tick:       ie.Tick,
		Phase:      ie.Phase,
		X:          ie.Location.X(),
		Y:          ie.Location.Y(),
		Error:      ie.Error(),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqFault, fault: r}:
	default:
		s.dropFault.Add(1)
	}
}

// RecordRun stores the tuning this run actually applies (canonical JSON)
// together with the effective worker count, which replays need to reproduce
// digests.
func (s *SQLiteIndex) RecordRun(worldID string, tune tuning.Tuning, workers int) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('world_id',?)`, worldID); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO runs(run_id,world_id,started_at,seed,workers,width,height,entities,tuning_digest,tuning_json) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		s.run, worldID, now, int64(tune.Seed), workers, tune.Width, tune.Height, tune.Entities, hex.EncodeToString(sum[:]), string(b),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	defer func() {
		_ = s.insertTick.Close()
		_ = s.insertFault.Close()
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.writeErr.Add(1)
			continue
		}
		var err error
		switch r.kind {
		case reqTick:
			t := r.tick
			b, _ := json.Marshal(t)
			_, err = tx.Stmt(s.insertTick).Exec(
				s.run,
				int64(t.Tick),
				t.Entities,
				t.Moved,
				t.Blocked,
				t.Waited,
				t.Turned,
				t.StepMicros,
				t.Digest,
				string(b),
			)
		case reqFault:
			f := r.fault
			_, err = tx.Stmt(s.insertFault).Exec(
				s.run,
				f.WorldID,
				int64(f.Tick),
				f.Phase,
				int64(f.X),
				int64(f.Y),
				f.Error,
				f.RecordedAt,
			)
		}
		if err != nil {
			// The rollback also loses the uncommitted rows batched before this one.
			s.writeErr.Add(uint64(opCount) + 1)
			rollback()
			continue
		}
		opCount++
		flushIfNeeded()
	}

	commit()
}

// RunInfo describes one recorded run.
type RunInfo struct {
	RunID     string
	WorldID   string
	StartedAt string
	Workers   int
	Tuning    tuning.Tuning
}

// ReadRun opens the index at path read-only and returns the run with the given
// id, or the most recently recorded run when run is empty.
func ReadRun(path, run string) (RunInfo, error) {
	var ri RunInfo
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return ri, err
	}
	defer db.Close()

	const cols = `SELECT run_id,world_id,started_at,workers,tuning_json FROM runs`
	var row *sql.Row
	if run == "" {
		// rowid follows insertion order; started_at strings do not sort reliably.
		row = db.QueryRow(cols + ` ORDER BY rowid DESC LIMIT 1`)
	} else {
		row = db.QueryRow(cols+` WHERE run_id=?`, run)
	}
	var raw string
	if err := row.Scan(&ri.RunID, &ri.WorldID, &ri.StartedAt, &ri.Workers, &raw); err != nil {
		return ri, fmt.Errorf("read run %q: %w", run, err)
	}
	if err := json.Unmarshal([]byte(raw), &ri.Tuning); err != nil {
		return ri, fmt.Errorf("decode run tuning: %w", err)
	}
	return ri, nil
}
