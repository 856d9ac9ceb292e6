// Package indexdb keeps a SQLite audit trail of purchases and phase
// transitions. It is write-only from the session's point of view.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"pharcryption.gg/internal/phase"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropPurchase atomic.Uint64
	dropPhase    atomic.Uint64
	writeErrors  atomic.Uint64
}

type reqKind int

const (
	reqPurchase reqKind = iota + 1
	reqPhase
)

type req struct {
	kind reqKind
	at   time.Time
	slot int

	block    int
	location int64
	cost     int

	from, to phase.Phase
}

// Stats reports queue pressure and failures of the background writer.
type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropPurchaseTotal uint64
	DropPhaseTotal    uint64
	WriteErrorTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
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

	s := &SQLiteIndex{db: db, ch: make(chan req, 1024)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS purchases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			slot INTEGER NOT NULL,
			block INTEGER NOT NULL,
			location INTEGER NOT NULL,
			cost INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_purchases_slot_at ON purchases(slot, at);`,
		`CREATE TABLE IF NOT EXISTS phases (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			slot INTEGER NOT NULL,
			from_phase TEXT NOT NULL,
			to_phase TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_phases_slot_at ON phases(slot, at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
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
		DropPurchaseTotal: s.dropPurchase.Load(),
		DropPhaseTotal:    s.dropPhase.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
	}
}

func (s *SQLiteIndex) RecordPurchase(at time.Time, slot, block int, location int64, cost int) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqPurchase, at: at, slot: slot, block: block, location: location, cost: cost}:
	default:
		// Never stall the session loop on the index.
		s.dropPurchase.Add(1)
	}
}

func (s *SQLiteIndex) RecordPhase(at time.Time, slot int, from, to phase.Phase) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqPhase, at: at, slot: slot, from: from, to: to}:
	default:
		s.dropPhase.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 64
		commitMaxWait = 2 * time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
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
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
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
		s.writeErrors.Add(1)
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		at := r.at.UTC().Format(time.RFC3339Nano)
		var err error
		switch r.kind {
		case reqPurchase:
			_, err = tx.Exec(`INSERT INTO purchases(at,slot,block,location,cost) VALUES(?,?,?,?,?)`,
				at, r.slot, r.block, r.location, r.cost)
		case reqPhase:
			_, err = tx.Exec(`INSERT INTO phases(at,slot,from_phase,to_phase) VALUES(?,?,?,?)`,
				at, r.slot, r.from.String(), r.to.String())
		}
		if err != nil {
			rollback()
			continue
		}
		opCount++
		// A client writes rarely; commit whenever the queue goes idle too.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}
