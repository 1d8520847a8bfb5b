package export

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/egm722/geomap-cli/internal/analysis"
)

// Run is a persisted wards summary.
type Run struct {
	ID                    string              `json:"id"`
	Command               string              `json:"command"`
	Input                 string              `json:"input"`
	CreatedAt             time.Time           `json:"created_at"`
	MaxCounty             analysis.KeyedValue `json:"max_county"`
	MinCounty             analysis.KeyedValue `json:"min_county"`
	MaxWard               analysis.KeyedValue `json:"max_ward"`
	MinWard               analysis.KeyedValue `json:"min_ward"`
	MultiCountyPopulation float64             `json:"multi_county_population"`
}

// SQLiteStore keeps wards summaries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                      TEXT PRIMARY KEY,
	command                 TEXT NOT NULL,
	input                   TEXT NOT NULL DEFAULT '',
	max_county              TEXT,
	max_county_population   REAL,
	min_county              TEXT,
	min_county_population   REAL,
	max_ward                TEXT,
	max_ward_population     REAL,
	min_ward                TEXT,
	min_ward_population     REAL,
	multi_county_population REAL NOT NULL DEFAULT 0,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS county_population (
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	county     TEXT NOT NULL,
	population REAL NOT NULL,
	PRIMARY KEY (run_id, county)
);

CREATE TABLE IF NOT EXISTS multi_county_wards (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	ward   TEXT NOT NULL,
	PRIMARY KEY (run_id, ward)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun stores a summary under a new run ID and returns the run.
func (s *SQLiteStore) SaveRun(ctx context.Context, command, input string, sum *analysis.CountySummary) (*Run, error) {
	if sum == nil {
		return nil, eris.New("sqlite: nil summary")
	}
	run := &Run{
		ID:                    uuid.New().String(),
		Command:               command,
		Input:                 input,
		CreatedAt:             time.Now().UTC(),
		MaxCounty:             sum.MaxCounty,
		MinCounty:             sum.MinCounty,
		MaxWard:               sum.MaxWard,
		MinWard:               sum.MinWard,
		MultiCountyPopulation: sum.MultiCountyPopulation,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, command, input, max_county, max_county_population, min_county, min_county_population,
			max_ward, max_ward_population, min_ward, min_ward_population, multi_county_population, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Input,
		run.MaxCounty.Key, run.MaxCounty.Value, run.MinCounty.Key, run.MinCounty.Value,
		run.MaxWard.Key, run.MaxWard.Value, run.MinWard.Key, run.MinWard.Value,
		run.MultiCountyPopulation, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	for _, r := range PopulationRows(sum) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO county_population (run_id, county, population) VALUES (?, ?, ?)`,
			run.ID, r.County, r.Population,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert county %s", r.County)
		}
	}
	for _, w := range sum.MultiCountyWards {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO multi_county_wards (run_id, ward) VALUES (?, ?)`,
			run.ID, w,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert ward %s", w)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit run")
	}
	return run, nil
}

// GetRun loads a run header.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, command, input, max_county, max_county_population, min_county, min_county_population,
			max_ward, max_ward_population, min_ward, min_ward_population, multi_county_population, created_at
		FROM runs WHERE id = ?`, id)
	var r Run
	err := row.Scan(&r.ID, &r.Command, &r.Input,
		&r.MaxCounty.Key, &r.MaxCounty.Value, &r.MinCounty.Key, &r.MinCounty.Value,
		&r.MaxWard.Key, &r.MaxWard.Value, &r.MinWard.Key, &r.MinWard.Value,
		&r.MultiCountyPopulation, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, input, created_at FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Command, &r.Input, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

// CountyPopulations returns a run's county totals ordered by county.
func (s *SQLiteStore) CountyPopulations(ctx context.Context, runID string) ([]PopulationRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT county, population FROM county_population WHERE run_id = ? ORDER BY county`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: county populations %s", runID)
	}
	defer rows.Close()

	var out []PopulationRow
	for rows.Next() {
		var r PopulationRow
		if err := rows.Scan(&r.County, &r.Population); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan county population")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: county populations")
}

// MultiCountyWards returns the wards of a run that fall in several counties.
func (s *SQLiteStore) MultiCountyWards(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ward FROM multi_county_wards WHERE run_id = ? ORDER BY ward`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: multi-county wards %s", runID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ward")
		}
		out = append(out, w)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: multi-county wards")
}
