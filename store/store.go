// Package store archives run results in a SQLite database so that
// reruns can be compared.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kshedden/mipool/pipeline"
	"github.com/kshedden/mipool/pool"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	seed INTEGER NOT NULL,
	created TEXT NOT NULL,
	n_rows INTEGER NOT NULL,
	m INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS estimates (
	run_id TEXT NOT NULL REFERENCES runs(id),
	model TEXT NOT NULL,
	position INTEGER NOT NULL,
	predictor TEXT NOT NULL,
	mean REAL,
	se REAL,
	PRIMARY KEY (run_id, model, predictor)
);
CREATE TABLE IF NOT EXISTS auc (
	run_id TEXT NOT NULL REFERENCES runs(id),
	model TEXT NOT NULL,
	imputation INTEGER NOT NULL,
	auc REAL,
	PRIMARY KEY (run_id, model, imputation)
);
`

// Store is a run archive.
type Store struct {
	db *sql.DB
}

// Run is the summary row of an archived run.
type Run struct {
	ID      string
	Seed    uint64
	Created time.Time
	NumRows int
	M       int
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nullable maps NaN to NULL.
func nullable(x float64) interface{} {
	if math.IsNaN(x) {
		return nil
	}
	return x
}

func fromNull(x sql.NullFloat64) float64 {
	if !x.Valid {
		return math.NaN()
	}
	return x.Float64
}

// Save archives the pooled estimates and per-imputation AUCs of a run
// in one transaction.
func (s *Store) Save(ctx context.Context, rslt *pipeline.Result) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, seed, created, n_rows, m) VALUES (?, ?, ?, ?, ?)",
		rslt.RunID, int64(rslt.Seed), rslt.Created.UTC().Format(time.RFC3339Nano),
		rslt.Prepared.NumRows(), len(rslt.Imputed))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, mr := range rslt.Models {
		for j, e := range mr.Estimates {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO estimates (run_id, model, position, predictor, mean, se) VALUES (?, ?, ?, ?, ?, ?)",
				rslt.RunID, mr.Name, j, e.Predictor, nullable(e.Mean), nullable(e.SE))
			if err != nil {
				return fmt.Errorf("failed to insert estimate: %w", err)
			}
		}
		for j, a := range mr.Discrimination.AUC {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO auc (run_id, model, imputation, auc) VALUES (?, ?, ?, ?)",
				rslt.RunID, mr.Name, mr.Pooled[j], nullable(a))
			if err != nil {
				return fmt.Errorf("failed to insert auc: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Runs returns the archived runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {

	rows, err := s.db.QueryContext(ctx, "SELECT id, seed, created, n_rows, m FROM runs ORDER BY created, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var seed int64
		var created string
		if err := rows.Scan(&r.ID, &seed, &created, &r.NumRows, &r.M); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		if r.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("run %s: %w", r.ID, err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Estimates returns the pooled estimates of a model in a run, in design
// order.  Only the predictor, mean and standard error are archived.
func (s *Store) Estimates(ctx context.Context, runID, model string) ([]pool.Estimate, error) {

	rows, err := s.db.QueryContext(ctx,
		"SELECT predictor, mean, se FROM estimates WHERE run_id = ? AND model = ? ORDER BY position",
		runID, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var est []pool.Estimate
	for rows.Next() {
		var e pool.Estimate
		var mean, se sql.NullFloat64
		if err := rows.Scan(&e.Predictor, &mean, &se); err != nil {
			return nil, err
		}
		e.Mean = fromNull(mean)
		e.SE = fromNull(se)
		est = append(est, e)
	}

	return est, rows.Err()
}

// AUC returns the test set AUC of a model in a run, keyed by imputation.
func (s *Store) AUC(ctx context.Context, runID, model string) (map[int]float64, error) {

	rows, err := s.db.QueryContext(ctx,
		"SELECT imputation, auc FROM auc WHERE run_id = ? AND model = ?", runID, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	auc := make(map[int]float64)
	for rows.Next() {
		var k int
		var a sql.NullFloat64
		if err := rows.Scan(&k, &a); err != nil {
			return nil, err
		}
		auc[k] = fromNull(a)
	}

	return auc, rows.Err()
}
