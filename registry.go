// Registry is the top-level service (spec §4.H): an in-memory map from
// table name to table state, one RWMutex protecting the map, per-table
// write serialization via the write lock, and atomic reader-snapshot
// replacement on every successful write.
package feastore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	units "github.com/docker/go-units"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config configures a Registry. The zero value is usable: defaults are
// applied inside NewRegistry, matching the teacher's zero-value-safe
// Config/Open pattern.
type Config struct {
	// Logger receives structured events for recovery, writes, and
	// snapshot rebuilds. A nil Logger installs zap.NewNop().
	Logger *zap.Logger

	// MaxSegmentBytes is a soft cap on a single segment's encoded size,
	// checked after each write: a larger segment is still committed, and a
	// warning with both sizes in units.HumanSize form is logged.
	MaxSegmentBytes int64

	// HashAlgorithm selects the key index's hash function
	// (HashXXHash3, HashFNV1a, HashBlake2b). Zero defaults to HashXXHash3.
	HashAlgorithm int
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.MaxSegmentBytes == 0 {
		c.MaxSegmentBytes = 512 * 1024 * 1024
	}
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = HashXXHash3
	}
	return c
}

// tableState is one table's entry in the registry: its storage backend,
// schema, and an optional current reader snapshot. cached is nil while
// the table is Empty (schema present, zero segments).
type tableState struct {
	dir    TableDirectory
	schema TableSchema
	cached *TableReader
	view   *TableView
}

// Registry is the process-wide mapping of table name to state. The zero
// value is not usable; construct with NewRegistry.
type Registry struct {
	config Config
	root   string

	mu     sync.RWMutex
	tables map[string]*tableState
}

// NewRegistry returns a Registry rooted at root (a directory holding one
// subdirectory per table), applying config defaults.
func NewRegistry(root string, config Config) *Registry {
	return &Registry{
		config: config.withDefaults(),
		root:   root,
		tables: make(map[string]*tableState),
	}
}

// Startup walks root for table subdirectories (those containing a
// catalog descriptor) and populates the registry, opening a reader
// snapshot for every non-empty table. Recovery of independent tables
// runs concurrently.
func (r *Registry) Startup() error {
	entries, err := os.ReadDir(r.root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return wrapErr(KindIo, "reading registry root", err)
	}

	type recovered struct {
		name        string
		state       *tableState
		numSegments int
	}
	results := make([]recovered, len(entries))

	var g errgroup.Group
	for i, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		i, name := i, entry.Name()
		g.Go(func() error {
			dir := NewLocalTableDirectory(filepath.Join(r.root, name))
			idx, err := dir.Index()
			if err != nil {
				return fmt.Errorf("recovering table %q: %w", name, err)
			}
			if idx == nil {
				return nil // no catalog descriptor: not a table directory
			}

			state := &tableState{dir: dir, schema: idx.Schema}
			if len(idx.Segments) > 0 {
				view, err := openTableView(dir, idx.Schema, idx.Segments, r.config.HashAlgorithm)
				if err != nil {
					return fmt.Errorf("recovering table %q: %w", name, err)
				}
				state.view = view
				state.cached = newTableReader(view)
			}
			results[i] = recovered{name: name, state: state, numSegments: len(idx.Segments)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range results {
		if rec.state == nil {
			continue
		}
		r.tables[rec.name] = rec.state
		r.config.Logger.Info("table recovered at startup",
			zap.String("table", rec.name),
			zap.Int("segments", rec.numSegments))
	}
	return nil
}

// Create registers a new table named name with the given schema.
func (r *Registry) Create(name string, schema TableSchema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[name]; exists {
		return ErrTableAlreadyExists
	}

	dir := NewLocalTableDirectory(filepath.Join(r.root, name))
	if _, err := createTableWriter(schema, dir); err != nil {
		return err
	}

	r.tables[name] = &tableState{dir: dir, schema: schema}
	r.config.Logger.Info("table created", zap.String("table", name))
	return nil
}

// Write appends batch as a new segment to name's table and rebuilds its
// reader snapshot. The write lock is held for the whole operation,
// serializing writes to the same table (and to every other table, since
// the lock is process-wide over the map — see spec.md §5).
func (r *Registry) Write(name string, batch *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.tables[name]
	if !ok {
		return ErrTableNotFound
	}

	writer, err := openTableWriter(state.dir)
	if err != nil {
		return err
	}

	info, err := writer.AddSegment(batch)
	if err != nil {
		return err
	}
	if info.Size > r.config.MaxSegmentBytes {
		r.config.Logger.Warn("segment exceeds configured soft cap",
			zap.String("table", name),
			zap.String("size", units.HumanSize(float64(info.Size))),
			zap.String("limit", units.HumanSize(float64(r.config.MaxSegmentBytes))))
	}

	idx, err := state.dir.Index()
	if err != nil {
		return err
	}

	oldView := state.view
	newView, err := openTableView(state.dir, idx.Schema, idx.Segments, r.config.HashAlgorithm)
	if err != nil {
		return err
	}

	state.view = newView
	state.cached = newTableReader(newView)
	state.schema = idx.Schema
	if oldView != nil {
		oldView.Close()
	}
	r.config.Logger.Info("reader snapshot rebuilt",
		zap.String("table", name),
		zap.Int("segments", len(idx.Segments)))

	r.config.Logger.Info("segment committed",
		zap.String("table", name),
		zap.Int("segment_id", info.ID),
		zap.String("size", units.HumanSize(float64(info.Size))),
		zap.Int("rows", batch.NumRows))
	return nil
}

// Read resolves keys against name's current snapshot and gathers columns.
// The registry lock is held only long enough to clone the snapshot
// handle and acquire a reference on its TableView; Get itself runs
// without any lock held (spec.md §5). Acquiring the reference under the
// lock, rather than after releasing it, is what keeps a concurrent Write
// from unmapping the segments this read is about to gather from: Write
// cannot install and close the old view until it takes the write lock,
// which cannot happen until this RLock is released.
func (r *Registry) Read(name string, keys []string, columns []string) (*Batch, error) {
	r.mu.RLock()
	state, ok := r.tables[name]
	if !ok {
		r.mu.RUnlock()
		return nil, ErrTableNotFound
	}
	reader := state.cached
	view := state.view
	if view != nil {
		view.acquire()
	}
	r.mu.RUnlock()

	if reader == nil {
		return nil, ErrNoData
	}
	defer view.release()
	return reader.Get(keys, columns)
}

// GetSchema returns the schema for name.
func (r *Registry) GetSchema(name string) (TableSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.tables[name]
	if !ok {
		return TableSchema{}, ErrTableNotFound
	}
	return state.schema, nil
}

// ListTables returns every registered table's schema, by name.
func (r *Registry) ListTables() map[string]TableSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]TableSchema, len(r.tables))
	for name, state := range r.tables {
		out[name] = state.schema
	}
	return out
}

// Close releases every table's open segment mappings.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for _, state := range r.tables {
		if state.view != nil {
			if cerr := state.view.Close(); err == nil {
				err = cerr
			}
		}
	}
	return err
}
