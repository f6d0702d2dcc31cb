// Package archive exports class transcripts to a local sqlite file. It
// is an export, not a backing store: the session store stays purely
// in-memory and restart durability is explicitly not a goal. Archiving
// is triggered per class over HTTP and for every live class at graceful
// shutdown.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"classboard/pkg/types"
)

// Archiver owns the sqlite handle. All writes funnel through a single
// goroutine; sqlite serializes writers anyway, and a single writer keeps
// busy-timeout churn out of the request path.
type Archiver struct {
	db       *sql.DB
	writes   chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// Open creates or opens the archive file and ensures the schema exists.
func Open(path string) (*Archiver, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}

	a := &Archiver{
		db:       db,
		writes:   make(chan writeOp, 16),
		shutdown: make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writeLoop()
	return a, nil
}

func (a *Archiver) writeLoop() {
	defer a.wg.Done()

	for {
		select {
		case op := <-a.writes:
			err := op.fn(a.db)
			if err != nil {
				// One retry after a beat covers transient lock contention.
				log.Printf("archive write failed, retrying: %v", err)
				time.Sleep(time.Second)
				err = op.fn(a.db)
			}
			op.result <- err
		case <-a.shutdown:
			return
		}
	}
}

func (a *Archiver) executeWrite(ctx context.Context, fn func(*sql.DB) error) error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return fmt.Errorf("archiver is closed")
	}
	a.mu.RUnlock()

	result := make(chan error, 1)
	select {
	case a.writes <- writeOp{fn: fn, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-a.shutdown:
		return fmt.Errorf("archiver is shutting down")
	}
}

// ArchiveClass writes one class transcript, replacing any rows from a
// previous archive of the same class.
func (a *Archiver) ArchiveClass(ctx context.Context, t types.ClassTranscript) error {
	return a.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := insertTranscript(tx, t); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Counts reports archived row counts for one class, keyed by table.
func (a *Archiver) Counts(classID string) (map[string]int, error) {
	counts := make(map[string]int)
	for table, column := range map[string]string{
		"classes":            "id",
		"student_questions":  "class_id",
		"released_questions": "class_id",
		"question_answers":   "class_id",
		"exit_tickets":       "class_id",
	} {
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", table, column)
		if err := a.db.QueryRow(query, classID).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}

// Close stops the writer and closes the database. Safe to call once.
func (a *Archiver) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.shutdown)
	a.wg.Wait()
	return a.db.Close()
}
