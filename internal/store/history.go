// Package store keeps a local ledger of completed sweeps.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ogulcanaydogan/ehreval/internal/report"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
	sweep_id      TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL,
	config_digest TEXT NOT NULL,
	data_root     TEXT NOT NULL,
	out_root      TEXT NOT NULL,
	manifest_path TEXT,
	record_count  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	sweep_id          TEXT NOT NULL,
	task              TEXT NOT NULL,
	dataset           TEXT NOT NULL,
	train_index       INTEGER NOT NULL,
	model             TEXT NOT NULL,
	checkpoint_path   TEXT,
	checkpoint_digest TEXT,
	checkpoint_size   INTEGER,
	metrics_json      TEXT NOT NULL,
	FOREIGN KEY (sweep_id) REFERENCES sweeps(sweep_id)
);

CREATE INDEX IF NOT EXISTS results_sweep ON results(sweep_id);
`

// Store records sweeps and their result rows in SQLite.
type Store struct {
	db *sql.DB
}

// SweepSummary is one row of the sweep ledger.
type SweepSummary struct {
	SweepID      string
	StartedAt    time.Time
	FinishedAt   time.Time
	ConfigDigest string
	OutRoot      string
	ManifestPath string
	Records      int
}

// Open creates the database file and its directory when missing.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := EnsureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSweep stores the manifest and every record it carries in one transaction.
func (s *Store) SaveSweep(ctx context.Context, m report.Manifest, manifestPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sweeps (sweep_id, started_at, finished_at, config_digest, data_root, out_root, manifest_path, record_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.SweepID, m.StartedAt.UTC().Format(time.RFC3339Nano), m.FinishedAt.UTC().Format(time.RFC3339Nano),
		m.ConfigDigest, m.DataRoot, m.OutRoot, manifestPath, m.RecordCount(),
	)
	if err != nil {
		return fmt.Errorf("insert sweep %s: %w", m.SweepID, err)
	}

	for _, section := range m.Tasks {
		for _, r := range section.Records {
			metricsJSON, err := json.Marshal(r.Metrics)
			if err != nil {
				return fmt.Errorf("marshal metrics: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO results (sweep_id, task, dataset, train_index, model, checkpoint_path, checkpoint_digest, checkpoint_size, metrics_json)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.SweepID, string(r.Task), r.Dataset, r.TrainIndex, r.Model,
				r.Checkpoint.Path, r.Checkpoint.Digest, r.Checkpoint.SizeBytes, string(metricsJSON),
			)
			if err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}
	}
	return tx.Commit()
}

// ListSweeps returns the most recent sweeps first. limit <= 0 returns all.
func (s *Store) ListSweeps(ctx context.Context, limit int) ([]SweepSummary, error) {
	query := `SELECT sweep_id, started_at, finished_at, config_digest, out_root, COALESCE(manifest_path, ''), record_count
		FROM sweeps ORDER BY started_at DESC, sweep_id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sweeps: %w", err)
	}
	defer rows.Close()

	var out []SweepSummary
	for rows.Next() {
		var sum SweepSummary
		var started, finished string
		if err := rows.Scan(&sum.SweepID, &started, &finished, &sum.ConfigDigest, &sum.OutRoot, &sum.ManifestPath, &sum.Records); err != nil {
			return nil, fmt.Errorf("scan sweep: %w", err)
		}
		if sum.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if sum.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Records returns a sweep's rows in the order they were evaluated.
func (s *Store) Records(ctx context.Context, sweepID string) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task, dataset, train_index, model, COALESCE(checkpoint_path, ''), COALESCE(checkpoint_digest, ''),
		        COALESCE(checkpoint_size, 0), metrics_json
		 FROM results WHERE sweep_id = ? ORDER BY id`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var r types.Record
		var task, metricsJSON string
		if err := rows.Scan(&task, &r.Dataset, &r.TrainIndex, &r.Model,
			&r.Checkpoint.Path, &r.Checkpoint.Digest, &r.Checkpoint.SizeBytes, &metricsJSON); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Task = types.Task(task)
		if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
