package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/gilchrisn/temporal-community-service/pkg/modularity"
	"github.com/gilchrisn/temporal-community-service/pkg/partition"
	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
)

// SQLiteStore keeps artefacts in a single SQLite database.
// All methods are safe for concurrent use.
type SQLiteStore struct {
	db    *sql.DB
	runID string
	mu    sync.RWMutex
}

// OpenSQLite opens or creates the database at path and its tables.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path, runID string) (*SQLiteStore, error) {
	connStr := path
	if path == ":memory:" {
		// a unique name keeps in-memory stores of one process apart
		connStr = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &SQLiteStore{db: db, runID: runID}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS partitions (
		number INTEGER PRIMARY KEY,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		events TEXT NOT NULL,
		actors TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS matrices (
		part INTEGER PRIMARY KEY,
		num_rows INTEGER NOT NULL,
		num_cols INTEGER NOT NULL,
		data BLOB
	);

	CREATE TABLE IF NOT EXISTS results (
		part INTEGER PRIMARY KEY,
		run_id TEXT,
		status TEXT NOT NULL,
		modularity REAL NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS modularities (
		part INTEGER PRIMARY KEY,
		run_id TEXT,
		value REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// RunID returns the identifier written with results
func (s *SQLiteStore) RunID() string {
	return s.runID
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SavePartition inserts or replaces a partition
func (s *SQLiteStore) SavePartition(ctx context.Context, p partition.Partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := p.Events
	if events == nil {
		events = []temporal.Event{}
	}
	actors := p.Actors
	if actors == nil {
		actors = []string{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	actorsJSON, err := json.Marshal(actors)
	if err != nil {
		return fmt.Errorf("encode actors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO partitions (number, start_time, end_time, events, actors)
		VALUES (?, ?, ?, ?, ?)
	`, p.Number, p.Start, p.End, string(eventsJSON), string(actorsJSON))
	if err != nil {
		return fmt.Errorf("save partition %d: %w", p.Number, err)
	}
	return nil
}

// LoadPartition reads a partition
func (s *SQLiteStore) LoadPartition(ctx context.Context, number int) (partition.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := partition.Partition{Number: number}
	var eventsJSON, actorsJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT start_time, end_time, events, actors FROM partitions WHERE number = ?", number,
	).Scan(&p.Start, &p.End, &eventsJSON, &actorsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("partition %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("load partition %d: %w", number, err)
	}

	if err := json.Unmarshal([]byte(eventsJSON), &p.Events); err != nil {
		return p, fmt.Errorf("decode events: %w", err)
	}
	if err := json.Unmarshal([]byte(actorsJSON), &p.Actors); err != nil {
		return p, fmt.Errorf("decode actors: %w", err)
	}
	return p, nil
}

// LoadActors reads the actor list of a partition
func (s *SQLiteStore) LoadActors(ctx context.Context, number int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var actorsJSON string
	err := s.db.QueryRowContext(ctx, "SELECT actors FROM partitions WHERE number = ?", number).Scan(&actorsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("actors of partition %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load actors %d: %w", number, err)
	}

	var actors []string
	if err := json.Unmarshal([]byte(actorsJSON), &actors); err != nil {
		return nil, fmt.Errorf("decode actors: %w", err)
	}
	return actors, nil
}

// Partitions lists stored partition numbers in ascending order
func (s *SQLiteStore) Partitions(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT number FROM partitions ORDER BY number")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	numbers := make([]int, 0)
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// SaveMatrix stores the matrix as little-endian float64 bits
func (s *SQLiteStore) SaveMatrix(ctx context.Context, number int, m *mat.Dense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, cols, data := 0, 0, []byte{}
	if m != nil && !m.IsEmpty() {
		rows, cols = m.Dims()
		data = make([]byte, 0, rows*cols*8)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				data = binary.LittleEndian.AppendUint64(data, math.Float64bits(m.At(i, j)))
			}
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO matrices (part, num_rows, num_cols, data) VALUES (?, ?, ?, ?)",
		number, rows, cols, data)
	if err != nil {
		return fmt.Errorf("save matrix %d: %w", number, err)
	}
	return nil
}

// LoadMatrix reads a matrix written by SaveMatrix
func (s *SQLiteStore) LoadMatrix(ctx context.Context, number int) (*mat.Dense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows, cols int
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT num_rows, num_cols, data FROM matrices WHERE part = ?", number,
	).Scan(&rows, &cols, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("matrix of partition %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load matrix %d: %w", number, err)
	}

	if rows == 0 || cols == 0 {
		return &mat.Dense{}, nil
	}
	if len(data) != rows*cols*8 {
		return nil, fmt.Errorf("matrix %d: %d bytes for %dx%d values", number, len(data), rows, cols)
	}
	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return mat.NewDense(rows, cols, values), nil
}

// SaveResult stores the result together with the current run ID
func (s *SQLiteStore) SaveResult(ctx context.Context, number int, r *modularity.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO results (part, run_id, status, modularity, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, number, s.runID, string(r.Status), r.Modularity, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save result %d: %w", number, err)
	}
	return nil
}

// LoadResult reads the result of a partition
func (s *SQLiteStore) LoadResult(ctx context.Context, number int) (*modularity.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM results WHERE part = ?", number).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("result of partition %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load result %d: %w", number, err)
	}

	var r modularity.Result
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}

// SaveModularities replaces the modularity table in one transaction
func (s *SQLiteStore) SaveModularities(ctx context.Context, q map[int]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM modularities"); err != nil {
		return fmt.Errorf("clear modularities: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO modularities (part, run_id, value) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for number, value := range q {
		if _, err := stmt.ExecContext(ctx, number, s.runID, value); err != nil {
			return fmt.Errorf("save modularity %d: %w", number, err)
		}
	}
	return tx.Commit()
}

// LoadModularities reads the modularity table
func (s *SQLiteStore) LoadModularities(ctx context.Context) (map[int]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT part, value FROM modularities")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	q := make(map[int]float64)
	for rows.Next() {
		var number int
		var value float64
		if err := rows.Scan(&number, &value); err != nil {
			return nil, err
		}
		q[number] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(q) == 0 {
		return nil, fmt.Errorf("modularities: %w", ErrNotFound)
	}
	return q, nil
}

// Reset deletes all rows
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"partitions", "matrices", "results", "modularities"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}
