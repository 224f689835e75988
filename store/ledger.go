package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/YuminosukeSato/landstack/pkg/errors"
	"github.com/YuminosukeSato/landstack/stacking"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	seed        INTEGER NOT NULL,
	config      TEXT,
	status      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS scores (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	label    TEXT NOT NULL,
	stage    TEXT NOT NULL,
	band     TEXT NOT NULL,
	auc      REAL NOT NULL,
	n        INTEGER NOT NULL,
	positive INTEGER NOT NULL,
	PRIMARY KEY (run_id, label, stage, band)
);`

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// Ledger records every run and its validation scores in SQLite.
type Ledger struct {
	db *sql.DB
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Seed       uint64
	Config     string
	Status     string
}

// Score is one validation AUC of a run.
type Score struct {
	RunID     string
	Label     string
	Stage     string
	Band      string
	AUC       float64
	N         int
	Positives int
}

// OpenLedger opens (and migrates) the ledger at path.
func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger %s", path)
	}
	// SQLite は単一ライターなので接続を一本に絞る
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, ledgerSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate ledger")
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// BeginRun inserts a running run with a fresh id.
func (l *Ledger) BeginRun(ctx context.Context, seed uint64, config string) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, seed, config, status) VALUES (?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), int64(seed), config, RunRunning)
	if err != nil {
		return "", errors.Wrap(err, "insert run")
	}
	return id, nil
}

// RecordValidation stores the scores of a run.
func (l *Ledger) RecordValidation(ctx context.Context, runID string, results []stacking.ValidationResult) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO scores (run_id, label, stage, band, auc, n, positive) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, "prepare")
	}
	defer stmt.Close()
	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, runID, r.Label, r.Stage, r.Band, r.AUC, r.N, r.Positives); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert score %s/%s", r.Label, r.Band)
		}
	}
	return tx.Commit()
}

// FinishRun marks a run finished, or failed when runErr is set.
func (l *Ledger) FinishRun(ctx context.Context, runID string, runErr error) error {
	status := RunFinished
	if runErr != nil {
		status = RunFailed
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), status, runID)
	return errors.Wrap(err, "update run")
}

// Run returns one run.
func (l *Ledger) Run(ctx context.Context, runID string) (*RunRecord, error) {
	var (
		rec              RunRecord
		started          string
		finished, config sql.NullString
		seed             int64
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, seed, config, status FROM runs WHERE id = ?`, runID).
		Scan(&rec.ID, &started, &finished, &seed, &config, &rec.Status)
	if err != nil {
		return nil, errors.Wrapf(err, "run %s", runID)
	}
	rec.Seed = uint64(seed)
	rec.Config = config.String
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return &rec, nil
}

// Scores lists the scores of a run ordered by label, stage and band.
func (l *Ledger) Scores(ctx context.Context, runID string) ([]Score, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, label, stage, band, auc, n, positive FROM scores WHERE run_id = ? ORDER BY label, stage, band`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query scores")
	}
	defer rows.Close()
	var out []Score
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.RunID, &s.Label, &s.Stage, &s.Band, &s.AUC, &s.N, &s.Positives); err != nil {
			return nil, errors.Wrap(err, "scan score")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
