package store

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/temporal-community-service/pkg/modularity"
	"github.com/gilchrisn/temporal-community-service/pkg/partition"
	"github.com/gilchrisn/temporal-community-service/pkg/temporal"
)

const (
	nodesFile        = "nodes.csv"
	modularitiesFile = "modularities.json"
)

var partFilePattern = regexp.MustCompile(`^part(\d{3,})\.txt$`)

// FileStore keeps every artefact as a plain file under one directory:
// partNNN.txt event rows (CSV, so any label survives), nodes.csv actor lists, matrixNNN.txt distance
// matrices and communitiesNNN.json results.
type FileStore struct {
	dir string
	mu  sync.Mutex // serialises nodes.csv rewrites
}

// NewFileStore creates dir if needed and returns a store rooted there
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(prefix string, number int, ext string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%03d%s", prefix, number, ext))
}

// SavePartition writes the partition's events and replaces its rows in nodes.csv
func (s *FileStore) SavePartition(ctx context.Context, p partition.Partition) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Create(s.path("part", p.Number, ".txt"))
	if err != nil {
		return fmt.Errorf("create partition file: %w", err)
	}
	if err := writeEvents(f, p.Events); err != nil {
		f.Close()
		return fmt.Errorf("write partition %d: %w", p.Number, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.readNodes()
	if err != nil {
		return err
	}
	nodes[p.Number] = append([]string(nil), p.Actors...)
	return s.writeNodes(nodes)
}

// LoadPartition reads a partition back. Window bounds are not kept by the
// file layout and are left zero.
func (s *FileStore) LoadPartition(ctx context.Context, number int) (partition.Partition, error) {
	if err := ctx.Err(); err != nil {
		return partition.Partition{}, err
	}

	f, err := os.Open(s.path("part", number, ".txt"))
	if errors.Is(err, os.ErrNotExist) {
		return partition.Partition{}, fmt.Errorf("partition %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return partition.Partition{}, err
	}
	defer f.Close()

	events, err := readEvents(f)
	if err != nil {
		return partition.Partition{}, fmt.Errorf("read partition %d: %w", number, err)
	}
	actors, err := s.LoadActors(ctx, number)
	if err != nil {
		return partition.Partition{}, err
	}
	return partition.Partition{Number: number, Events: events, Actors: actors}, nil
}

// LoadActors returns the actor list saved with the partition
func (s *FileStore) LoadActors(ctx context.Context, number int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nodes, err := s.readNodes()
	if err != nil {
		return nil, err
	}
	actors, ok := nodes[number]
	if !ok {
		return nil, fmt.Errorf("actors of partition %d: %w", number, ErrNotFound)
	}
	return actors, nil
}

// Partitions lists the stored partition numbers in ascending order
func (s *FileStore) Partitions(ctx context.Context) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0)
	for _, entry := range entries {
		match := partFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// SaveMatrix writes the distance matrix of a partition
func (s *FileStore) SaveMatrix(ctx context.Context, number int, m *mat.Dense) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Create(s.path("matrix", number, ".txt"))
	if err != nil {
		return fmt.Errorf("create matrix file: %w", err)
	}
	if err := WriteMatrix(f, m); err != nil {
		f.Close()
		return fmt.Errorf("write matrix %d: %w", number, err)
	}
	return f.Close()
}

// LoadMatrix reads the distance matrix of a partition
func (s *FileStore) LoadMatrix(ctx context.Context, number int) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path("matrix", number, ".txt"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("matrix of partition %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ReadMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("read matrix %d: %w", number, err)
	}
	return m, nil
}

// SaveResult writes the detection result of a partition as JSON
func (s *FileStore) SaveResult(ctx context.Context, number int, r *modularity.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSON(s.path("communities", number, ".json"), r)
}

// LoadResult reads the detection result of a partition
func (s *FileStore) LoadResult(ctx context.Context, number int) (*modularity.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r modularity.Result
	err := readJSON(s.path("communities", number, ".json"), &r)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("result of partition %d: %w", number, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveModularities writes the per-partition modularity table
func (s *FileStore) SaveModularities(ctx context.Context, q map[int]float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSON(filepath.Join(s.dir, modularitiesFile), q)
}

// LoadModularities reads the per-partition modularity table
func (s *FileStore) LoadModularities(ctx context.Context) (map[int]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := make(map[int]float64)
	err := readJSON(filepath.Join(s.dir, modularitiesFile), &q)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("modularities: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Reset deletes the directory contents
func (s *FileStore) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	return os.MkdirAll(s.dir, 0o755)
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

// readNodes loads nodes.csv as partition -> actors. Caller holds mu.
func (s *FileStore) readNodes() (map[int][]string, error) {
	nodes := make(map[int][]string)

	f, err := os.Open(filepath.Join(s.dir, nodesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nodes, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	header := true
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", nodesFile, err)
		}
		if header {
			header = false
			continue
		}
		n, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("parse %s: partition %q: %w", nodesFile, record[0], err)
		}
		if _, ok := nodes[n]; !ok {
			nodes[n] = make([]string, 0)
		}
		if record[1] != "" {
			nodes[n] = append(nodes[n], record[1])
		}
	}
	return nodes, nil
}

// writeNodes rewrites nodes.csv. Partitions without actors keep a row with an
// empty actor so that they remain known. Caller holds mu.
func (s *FileStore) writeNodes(nodes map[int][]string) error {
	numbers := make([]int, 0, len(nodes))
	for n := range nodes {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	f, err := os.Create(filepath.Join(s.dir, nodesFile))
	if err != nil {
		return fmt.Errorf("create %s: %w", nodesFile, err)
	}
	w := csv.NewWriter(f)
	w.Write([]string{"partition", "actor"})
	for _, n := range numbers {
		id := strconv.Itoa(n)
		if len(nodes[n]) == 0 {
			w.Write([]string{id, ""})
		}
		for _, actor := range nodes[n] {
			w.Write([]string{id, actor})
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", nodesFile, err)
	}
	return f.Close()
}

// writeEvents stores events as quoted CSV rows. Unlike the raw log format it
// has no comment syntax, so labels starting with '#' or '%' are kept.
func writeEvents(w io.Writer, events []temporal.Event) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"src", "dst", "time"})
	for _, e := range events {
		cw.Write([]string{e.Source, e.Destination, strconv.FormatInt(e.Timestamp, 10)})
	}
	cw.Flush()
	return cw.Error()
}

func readEvents(r io.Reader) ([]temporal.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3

	events := make([]temporal.Event, 0)
	header := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header {
			header = false
			continue
		}
		ts, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			line, _ := cr.FieldPos(2)
			return nil, fmt.Errorf("line %d: invalid timestamp %q: %w", line, record[2], err)
		}
		events = append(events, temporal.Event{Source: record[0], Destination: record[1], Timestamp: ts})
	}
	return events, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
