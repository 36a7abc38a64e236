// Package store persists the playback session to SQLite.
package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/osa030/tunedeck/internal/domain/queue"
)

const (
	appName             = "tunedeck"
	dbFileName          = "tunedeck.db"
	DefaultSaveDebounce = 500 * time.Millisecond
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("store closed")

// SessionState is the saved playback session.
type SessionState struct {
	Queue        []queue.Entry
	Base         []queue.Entry // unshuffled order; empty unless Shuffle
	CurrentIndex int
	Position     time.Duration
	Repeat       string
	Shuffle      bool
	SavedAt      time.Time
}

// Manager reads and writes the session with debounced saves.
type Manager struct {
	db       *sql.DB
	debounce time.Duration

	// writeMu serializes database writes and Close; take it before saveMu.
	writeMu sync.Mutex
	closed  bool

	saveMu    sync.Mutex
	saveTimer *time.Timer
	pending   *SessionState
}

// Open opens (or creates) the database at path.
// An empty path means $XDG_DATA_HOME/tunedeck/tunedeck.db.
func Open(path string, debounce time.Duration) (*Manager, error) {
	if path == "" {
		p, err := xdg.DataFile(filepath.Join(appName, dbFileName))
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve database path")
		}
		path = p
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", path)
	}
	// One connection keeps :memory: databases intact and serializes writers.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to init schema")
	}

	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	zlog.Info().Msgf("store: opened %s", path)
	return &Manager{db: db, debounce: debounce}, nil
}

// Close flushes any pending save and closes the database.
// A debounced save already running finishes first.
func (m *Manager) Close() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.closed {
		return nil
	}
	pending := m.takePending()
	if pending != nil {
		if err := saveSession(m.db, *pending); err != nil {
			zlog.Error().Msgf("store: final save failed: %v", err)
		}
	}
	m.closed = true
	return m.db.Close()
}

// takePending stops the debounce timer and returns the unsaved state.
func (m *Manager) takePending() *SessionState {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}
	pending := m.pending
	m.pending = nil
	return pending
}

// flush writes the pending state. It runs on the debounce timer.
func (m *Manager) flush() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.closed {
		return
	}
	m.saveMu.Lock()
	pending := m.pending
	m.pending = nil
	m.saveMu.Unlock()

	if pending != nil {
		if err := saveSession(m.db, *pending); err != nil {
			zlog.Error().Msgf("store: save failed: %v", err)
		}
	}
}

// Load returns the saved session, or nil when nothing was saved.
func (m *Manager) Load() (*SessionState, error) {
	state, err := getSession(m.db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load session")
	}
	return state, nil
}

// SaveNow writes state immediately, replacing any pending save.
func (m *Manager) SaveNow(state SessionState) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.takePending()
	return errors.Wrap(saveSession(m.db, state), "failed to save session")
}

// Save schedules state to be written after the debounce interval.
// Later calls within the interval replace earlier ones.
func (m *Manager) Save(state SessionState) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.pending = &state

	if m.saveTimer != nil {
		m.saveTimer.Stop()
	}

	m.saveTimer = time.AfterFunc(m.debounce, m.flush)
}

// Clear deletes the saved session.
func (m *Manager) Clear() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.takePending()
	return withTx(m.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM session_entries`); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM session_state`)
		return err
	})
}

// withTx executes fn within a transaction.
func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
