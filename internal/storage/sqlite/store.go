// Package sqlite persists scan matching runs and their per-pair
// registration results in a SQLite database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scanmatch/internal/lidar"
	"github.com/banshee-data/scanmatch/internal/timeutil"
)

// ErrRunNotFound is returned when a run id has no stored record.
var ErrRunNotFound = errors.New("registration run not found")

// Store wraps a SQLite handle holding registration runs and pairs.
type Store struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Run is a stored scan matching run.
type Run struct {
	RunID     string          `json:"run_id"`
	Dataset   string          `json:"dataset"`
	Method    string          `json:"method"`
	Keyframes int             `json:"keyframes"`
	Params    json.RawMessage `json:"params,omitempty"`
	Version   string          `json:"version"`
	CreatedAt int64           `json:"created_at"`
}

// Pair is the stored outcome of registering one keyframe pair.
type Pair struct {
	RunID           string  `json:"run_id"`
	Index           int     `json:"index"`
	SourceTimestamp int64   `json:"source_timestamp"`
	TargetTimestamp int64   `json:"target_timestamp"`
	TX              float64 `json:"tx"`
	TY              float64 `json:"ty"`
	TZ              float64 `json:"tz"`
	Alpha           float64 `json:"alpha"`
	Beta            float64 `json:"beta"`
	Gamma           float64 `json:"gamma"`
	Fitness         float64 `json:"fitness"`
	RMSE            float64 `json:"rmse"`
	Iterations      int     `json:"iterations"`
	Status          string  `json:"status"`
	LowConfidence   bool    `json:"low_confidence"`
	Error           string  `json:"error,omitempty"`
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema. Use ":memory:" for a private in-memory database.
func Open(path string, clock timeutil.Clock) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serialises
	// writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if clock == nil {
		clock = timeutil.RealClock{}
	}
	s := &Store{db: db, clock: clock}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRun stores run, assigning RunID and CreatedAt when they are unset.
func (s *Store) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}

	var params *string
	if len(run.Params) > 0 {
		p := string(run.Params)
		params = &p
	}

	query := `
		INSERT INTO registration_runs (
			run_id, dataset, method, keyframes, params_json, version, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	return retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			run.RunID, run.Dataset, run.Method, run.Keyframes, params, run.Version, run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run %s: %w", run.RunID, err)
		}
		return nil
	})
}

// GetRun returns the run with the given id, or ErrRunNotFound.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, dataset, method, keyframes, params_json, version, created_at
		FROM registration_runs WHERE run_id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, at most limit of them.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("list runs limit %d: %w", limit, lidar.ErrInvalidConfig)
	}
	rows, err := s.db.Query(`
		SELECT run_id, dataset, method, keyframes, params_json, version, created_at
		FROM registration_runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (*Run, error) {
	var (
		run    Run
		params sql.NullString
	)
	if err := r.Scan(&run.RunID, &run.Dataset, &run.Method, &run.Keyframes, &params, &run.Version, &run.CreatedAt); err != nil {
		return nil, err
	}
	if params.Valid {
		run.Params = json.RawMessage(params.String)
	}
	return &run, nil
}

const insertPairQuery = `
	INSERT INTO registration_pairs (
		run_id, pair_index, source_timestamp, target_timestamp,
		tx, ty, tz, alpha, beta, gamma,
		fitness, rmse, iterations, status, low_confidence, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func pairArgs(p Pair) []any {
	return []any{
		p.RunID, p.Index, p.SourceTimestamp, p.TargetTimestamp,
		p.TX, p.TY, p.TZ, p.Alpha, p.Beta, p.Gamma,
		p.Fitness, p.RMSE, p.Iterations, p.Status, p.LowConfidence, p.Error,
	}
}

// InsertPair stores a single pair result.
func (s *Store) InsertPair(p Pair) error {
	return retryOnBusy(func() error {
		if _, err := s.db.Exec(insertPairQuery, pairArgs(p)...); err != nil {
			return fmt.Errorf("insert pair %s/%d: %w", p.RunID, p.Index, err)
		}
		return nil
	})
}

// InsertPairs stores all pairs in one transaction.
func (s *Store) InsertPairs(pairs []Pair) error {
	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(insertPairQuery)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, p := range pairs {
			if _, err := stmt.Exec(pairArgs(p)...); err != nil {
				return fmt.Errorf("insert pair %s/%d: %w", p.RunID, p.Index, err)
			}
		}
		return tx.Commit()
	})
}

// ListPairs returns the pairs of a run ordered by pair index.
func (s *Store) ListPairs(runID string) ([]Pair, error) {
	rows, err := s.db.Query(`
		SELECT run_id, pair_index, source_timestamp, target_timestamp,
			tx, ty, tz, alpha, beta, gamma,
			fitness, rmse, iterations, status, low_confidence, error
		FROM registration_pairs
		WHERE run_id = ?
		ORDER BY pair_index
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list pairs %s: %w", runID, err)
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(
			&p.RunID, &p.Index, &p.SourceTimestamp, &p.TargetTimestamp,
			&p.TX, &p.TY, &p.TZ, &p.Alpha, &p.Beta, &p.Gamma,
			&p.Fitness, &p.RMSE, &p.Iterations, &p.Status, &p.LowConfidence, &p.Error,
		); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
