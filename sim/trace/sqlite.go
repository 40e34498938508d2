package trace

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// SQLiteWriter stores event-log records in the event_log table of a SQLite
// database, inserting in batched transactions.
type SQLiteWriter struct {
	*sql.DB
	statement *sql.Stmt

	dbName    string
	pending   []Record
	batchSize int
	closed    bool
}

// NewSQLiteWriter creates a new database file. An empty path picks a unique
// name. Refuses to touch an existing file.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if path == "" {
		path = "bay_sim_trace_" + xid.New().String() + ".sqlite3"
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("file %s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite trace: %w", err)
	}
	w := &SQLiteWriter{
		DB:        db,
		dbName:    path,
		batchSize: 100000,
	}
	if err := w.createTable(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := w.prepareStatement(); err != nil {
		_ = db.Close()
		return nil, err
	}

	atexit.Register(func() {
		_ = w.Close()
	})
	return w, nil
}

// Path returns the database file name.
func (w *SQLiteWriter) Path() string {
	return w.dbName
}

// Write buffers a record, flushing a full batch.
func (w *SQLiteWriter) Write(r Record) error {
	if w.closed {
		return fmt.Errorf("sqlite trace %s is closed", w.dbName)
	}
	w.pending = append(w.pending, r)
	if len(w.pending) >= w.batchSize {
		return w.Flush()
	}
	return nil
}

// Flush inserts all buffered records in one transaction.
func (w *SQLiteWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}

	tx, err := w.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt := tx.Stmt(w.statement)
	for _, r := range w.pending {
		if _, err := stmt.Exec(r.Run, r.EntityID, r.Pathway, string(r.EventType), r.Event, r.Time, r.ResourceID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("inserting record %+v: %w", r, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	w.pending = nil
	return nil
}

// Close flushes and closes the database. Closing twice is a no-op.
func (w *SQLiteWriter) Close() error {
	if w.closed {
		return nil
	}
	flushErr := w.Flush()
	w.closed = true
	_ = w.statement.Close()
	if err := w.DB.Close(); err != nil {
		return err
	}
	return flushErr
}

func (w *SQLiteWriter) createTable() error {
	_, err := w.Exec(`
		CREATE TABLE event_log (
			run         INTEGER NOT NULL,
			entity_id   INTEGER NOT NULL,
			pathway     TEXT,
			event_type  TEXT NOT NULL,
			event       TEXT NOT NULL,
			time        REAL NOT NULL,
			resource_id INTEGER
		)`)
	if err != nil {
		return fmt.Errorf("creating event_log table: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) prepareStatement() error {
	stmt, err := w.Prepare(`INSERT INTO event_log VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	w.statement = stmt
	return nil
}
