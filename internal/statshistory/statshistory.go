// Package statshistory persists an operational history of stats samples and
// lifecycle transitions to a local SQLite database, grounded on the
// teacher's db.Database (open, migrate-on-start, MaxOpenConns(1)). It is
// pure audit trail: nothing in the lifecycle supervisor or stats sampler
// reads back from it, so it can never influence a lifecycle decision.
package statshistory

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pyrohost/pyro-node-agent/internal/eventbus"
)

// Store wraps the SQLite connection used to record stats samples and
// state transitions. Only methods on Store are exposed; callers never
// see the underlying *sql.DB.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS stats_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    instance_id TEXT NOT NULL,
    cpu_percent REAL NOT NULL,
    memory_used_mib INTEGER NOT NULL,
    memory_total_mib INTEGER NOT NULL,
    memory_percent REAL NOT NULL,
    network_rx_bytes INTEGER NOT NULL,
    network_tx_bytes INTEGER NOT NULL,
    sampled_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS state_transitions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    instance_id TEXT NOT NULL,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    transitioned_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stats_samples_instance ON stats_samples(instance_id, sampled_at);
CREATE INDEX IF NOT EXISTS idx_state_transitions_instance ON state_transitions(instance_id, transitioned_at);
`

// Open opens (creating if absent) the SQLite database at path and applies
// the schema. the directory is created first so callers don't need to
// pre-create it.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create stats history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats history database at %q: %w", path, err)
	}

	// SQLite rejects concurrent writers; a single connection serializes
	// every insert from the stats ticker and the supervisor's transition
	// hook instead of racing on "database is locked".
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate stats history schema: %w", err)
	}

	logger.Info("stats history database opened", "path", path)
	return &Store{db: conn, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// RecordStats appends one row for a single sample. Failures are logged and
// swallowed: stats history is best-effort and must never interrupt the
// sampling ticker (mirrors §4.9's "sampling errors are swallowed").
func (s *Store) RecordStats(instanceID string, payload eventbus.StatsPayload) {
	_, err := s.db.Exec(
		`INSERT INTO stats_samples
		 (instance_id, cpu_percent, memory_used_mib, memory_total_mib, memory_percent, network_rx_bytes, network_tx_bytes, sampled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		instanceID, payload.CPU, payload.Memory.Used, payload.Memory.Total, payload.Memory.Percent,
		payload.Network.RX, payload.Network.TX, time.Now().UTC(),
	)
	if err != nil {
		s.logger.Warn("failed to record stats sample", "instance", instanceID, "error", err)
	}
}

// RecordTransition appends one row for a lifecycle state change.
func (s *Store) RecordTransition(instanceID, from, to, reason string) {
	_, err := s.db.Exec(
		`INSERT INTO state_transitions (instance_id, from_state, to_state, reason, transitioned_at) VALUES (?, ?, ?, ?, ?)`,
		instanceID, from, to, reason, time.Now().UTC(),
	)
	if err != nil {
		s.logger.Warn("failed to record state transition", "instance", instanceID, "error", err)
	}
}

// PruneOlderThan deletes stats samples and state transitions older than
// cutoff, keeping the SQLite retention policy in lockstep with the log
// file retention sweep (§4.10, §11.1).
func (s *Store) PruneOlderThan(cutoff time.Time) (int64, error) {
	var total int64

	res, err := s.db.Exec(`DELETE FROM stats_samples WHERE sampled_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stats samples: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = s.db.Exec(`DELETE FROM state_transitions WHERE transitioned_at < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("failed to prune state transitions: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}
