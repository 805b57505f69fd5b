// Package store is the durable home of application state and conversation
// history. A single dedicated worker goroutine owns the only database
// connection; every operation is a message with a reply channel, so access
// is serialized without lock contention and an I/O failure in one call never
// corrupts another caller's view.
package store

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var (
	// ErrFutureSchema is returned when the on-disk schema version exceeds
	// the newest version this binary knows. Opening such a database would
	// risk silent corruption, so the store refuses to start.
	ErrFutureSchema = errors.New("database schema is newer than this binary")

	// ErrClosed is returned for operations issued after Close.
	ErrClosed = errors.New("store is closed")
)

// Key identifies one conversation.
type Key struct {
	ProjectSlug   string
	WorkspaceName string
	ThreadID      string
}

// Store serializes all database access through one worker goroutine.
type Store struct {
	ops       chan func(*worker)
	closed    chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// worker owns the connection. Only the run loop touches it.
type worker struct {
	conn  *sqlite.Conn
	fatal error
}

// Open starts the store worker and brings the schema up to date. On
// migration failure the error is returned here and reproduced for every
// operation on the returned store; the store is permanently inoperative in
// that case but still safe to Close.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}

	s := &Store{
		ops:    make(chan func(*worker)),
		closed: make(chan struct{}),
		logger: logger,
	}

	ready := make(chan error, 1)
	go s.run(path, ready)

	if err := <-ready; err != nil {
		return s, err
	}
	logger.Info("store opened", "path", path)
	return s, nil
}

// Close stops the worker and closes the connection. Safe to call more than
// once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}

func (s *Store) run(path string, ready chan<- error) {
	w := &worker{}
	w.fatal = w.open(path)
	if w.fatal != nil {
		s.logger.Error("store open failed", "path", path, "error", w.fatal)
		if w.conn != nil {
			w.conn.Close()
			w.conn = nil
		}
	}
	ready <- w.fatal

	for {
		select {
		case op := <-s.ops:
			op(w)
		case <-s.closed:
			if w.conn != nil {
				w.conn.Close()
			}
			return
		}
	}
}

// open creates the parent directory, opens the database, applies the
// standard pragmas, and migrates the schema.
func (w *worker) open(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite|sqlite.OpenCreate|sqlite.OpenWAL)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	w.conn = conn

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	return migrate(conn)
}

type result[T any] struct {
	value T
	err   error
}

// do submits one operation to the worker and waits for its reply.
func do[T any](s *Store, fn func(conn *sqlite.Conn) (T, error)) (T, error) {
	var zero T
	select {
	case <-s.closed:
		return zero, ErrClosed
	default:
	}

	reply := make(chan result[T], 1)

	op := func(w *worker) {
		if w.fatal != nil {
			reply <- result[T]{err: w.fatal}
			return
		}
		value, err := fn(w.conn)
		reply <- result[T]{value: value, err: err}
	}

	select {
	case s.ops <- op:
	case <-s.closed:
		return zero, ErrClosed
	}

	select {
	case r := <-reply:
		return r.value, r.err
	case <-s.closed:
		return zero, ErrClosed
	}
}
