// Package persistence provides a durable SQLite history of peer sightings
// and transfers beyond what the wire protocol itself requires. The console
// binaries open it only when -db is given and use it for the /healthz
// database check; they write no rows to it, and /nodes reads the in-memory
// registry.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrTransferNotFound is returned when a lookup finds no matching row.
var ErrTransferNotFound = errors.New("persistence: transfer not found")

// TransferRecord is a durable summary of one completed or failed transfer.
type TransferRecord struct {
	Filename    string
	PeerID      string
	Direction   string // "send" or "receive"
	FileSize    int64
	State       string
	StartedAt   time.Time
	FinishedAt  time.Time
	ErrorMessage string
}

// Store wraps a SQLite database recording peer sightings and transfer
// history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS peers (
			node_id TEXT PRIMARY KEY,
			role TEXT,
			last_seen TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS transfers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			peer_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			state TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			error_message TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_transfers_peer ON transfers(peer_id);
		CREATE INDEX IF NOT EXISTS idx_transfers_state ON transfers(state);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("persistence: init schema: %w", err)
	}
	return nil
}

// UpsertPeer records or refreshes a sighting of a peer.
func (s *Store) UpsertPeer(nodeID, role string, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO peers (node_id, role, last_seen) VALUES (?, ?, ?)
		 ON CONFLICT(node_id) DO UPDATE SET role = excluded.role, last_seen = excluded.last_seen`,
		nodeID, role, lastSeen,
	)
	if err != nil {
		return fmt.Errorf("persistence: upsert peer: %w", err)
	}
	return nil
}

// ListPeers returns every peer ever sighted, most recently seen first.
func (s *Store) ListPeers() ([]struct {
	NodeID   string
	Role     string
	LastSeen time.Time
}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT node_id, role, last_seen FROM peers ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("persistence: list peers: %w", err)
	}
	defer rows.Close()

	var out []struct {
		NodeID   string
		Role     string
		LastSeen time.Time
	}
	for rows.Next() {
		var rec struct {
			NodeID   string
			Role     string
			LastSeen time.Time
		}
		if err := rows.Scan(&rec.NodeID, &rec.Role, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("persistence: scan peer: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// RecordTransferStart inserts a new in-progress transfer row and returns its id.
func (s *Store) RecordTransferStart(rec TransferRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO transfers (filename, peer_id, direction, file_size, state, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Filename, rec.PeerID, rec.Direction, rec.FileSize, rec.State, rec.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("persistence: record transfer start: %w", err)
	}
	return res.LastInsertId()
}

// RecordTransferFinish updates a transfer row with its final state.
func (s *Store) RecordTransferFinish(id int64, state string, finishedAt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE transfers SET state = ?, finished_at = ?, error_message = ? WHERE id = ?`,
		state, finishedAt, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("persistence: record transfer finish: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTransferNotFound
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database connection is alive, for health checks.
func (s *Store) Ping() error {
	return s.db.Ping()
}
