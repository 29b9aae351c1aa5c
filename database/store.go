// Package database is the hierarchical chain -> branch -> product/promotion
// store. Children reference internal row ids, so a chain's published code can
// be assigned later without touching branch, product or promotion rows.
package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("database")

var (
	// ErrStore marks a failed transactional write. The transaction was rolled
	// back and the previous state is intact.
	ErrStore             = errors.New("store error")
	ErrNotFound          = errors.New("not found")
	ErrChainCodeAssigned = errors.New("chain code already assigned")
	ErrCodeConflict      = errors.New("chain code belongs to another chain")
)

//go:embed schema.sql
var schemaSQL string

const (
	dsnOptions      = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1&_txlock=immediate"
	timestampLayout = "2006-01-02 15:04:05"
)

type Store struct {
	db   *sqlx.DB
	path string

	// locks holds one *sync.Mutex per branch key; writes to the same branch
	// never interleave.
	locks sync.Map

	now func() time.Time

	// beforeInsert is called before each child row insert. Tests use it to
	// fail a replace part way through.
	beforeInsert func(table string, index int) error
}

// Open opens (creating if needed) the sqlite database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := New(db)
	s.path = path
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Infof("database ready at %s", path)
	return s, nil
}

// New wraps an already opened connection. Call InitSchema before first use
// unless the schema is known to exist.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only reporting.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) timestamp() string {
	return s.now().Format(timestampLayout)
}

// lockBranch resolves the chain and takes the branch's write lock. Either
// chain code locks the same branch.
func (s *Store) lockBranch(ctx context.Context, chainCode, branchCode string) (func(), error) {
	cid, err := chainID(ctx, s.db, chainCode)
	if err != nil {
		return nil, fmt.Errorf("lock branch %s: %w", branchCode, err)
	}
	m, _ := s.locks.LoadOrStore(fmt.Sprintf("%d/%s", cid, branchCode), &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock, nil
}

// inTx runs fn in one transaction, committing when fn returns nil and rolling
// back otherwise. A cancelled ctx rolls the transaction back.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: failed to begin transaction: %w", ErrStore, op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Debugf("rolling back %s: %v", op, err)
			tx.Rollback()
			err = classify(op, err)
		} else {
			if err = tx.Commit(); err != nil {
				log.Warningf("commit of %s failed: %v", op, err)
				err = fmt.Errorf("%w: %s: commit failed: %w", ErrStore, op, err)
			}
		}
	}()

	return fn(tx)
}

// classify keeps lookup and conflict errors as they are and marks everything
// else as a store failure.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrChainCodeAssigned), errors.Is(err, ErrCodeConflict):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s failed: %w", ErrStore, op, err)
	}
}

func (s *Store) checkInsert(table string, index int) error {
	if s.beforeInsert == nil {
		return nil
	}
	return s.beforeInsert(table, index)
}
