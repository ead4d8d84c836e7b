// Package memory provides an in-process Driver. Suitable for development and
// testing. Data is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

type table struct {
	fields  []types.CrudField
	key     string
	rows    []types.FieldMap
	nextSeq int64
}

// Store is an in-memory implementation of backend.Driver.
type Store struct {
	tables map[string]*table
	mu     sync.RWMutex
	closed bool
	logger *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tables: make(map[string]*table),
		logger: logger.With(zap.String("component", "memory_backend")),
	}
}

// Close closes the store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrClosed
	}
	return nil
}

// CreateTable registers the table's descriptors. Existing tables are left alone.
func (s *Store) CreateTable(ctx context.Context, name string, fields []types.CrudField) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	if t, ok := s.tables[name]; ok {
		if t.fields == nil {
			t.fields = append([]types.CrudField(nil), fields...)
			t.key = record.PrimaryKeyName(fields)
		}
		return nil
	}
	s.tables[name] = &table{
		fields: append([]types.CrudField(nil), fields...),
		key:    record.PrimaryKeyName(fields),
	}
	s.logger.Debug("table created", zap.String("table", name), zap.Int("fields", len(fields)))
	return nil
}

// InsertFields appends one row, creating the table on first use.
func (s *Store) InsertFields(ctx context.Context, name string, fields types.FieldMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}

	t, ok := s.tables[name]
	if !ok {
		t = &table{}
		s.tables[name] = t
	}

	row := fields.Clone()
	for _, f := range t.fields {
		v, present := row[f.Name]
		if f.AutoIncrement && (!present || v.IsNull()) {
			t.nextSeq++
			row[f.Name] = types.Integer(t.nextSeq)
			continue
		}
		if i, isInt := v.AsInteger(); f.AutoIncrement && isInt && i > t.nextSeq {
			t.nextSeq = i
		}
		if !present {
			row[f.Name] = types.Null()
		}
	}

	if t.key != "" {
		key := row[t.key]
		for _, existing := range t.rows {
			if existing[t.key].Equal(key) {
				return fmt.Errorf("%w: %s.%s = %s", backend.ErrDuplicateKey, name, t.key, key)
			}
		}
	}
	t.rows = append(t.rows, row)
	return nil
}

// snapshot copies the matching rows so callers can write while iterating.
func (s *Store) snapshot(name string, cond backend.Condition) ([]types.FieldMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, backend.ErrClosed
	}
	t, ok := s.tables[name]
	if !ok {
		return nil, nil
	}
	out := make([]types.FieldMap, 0, len(t.rows))
	for _, r := range t.rows {
		if cond.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// ReadAllValues yields every row projected onto columns. Unknown tables are empty.
func (s *Store) ReadAllValues(ctx context.Context, name string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	return s.SelectWhere(ctx, name, columns, backend.Condition{})
}

// SelectWhere yields matching rows in insertion order.
func (s *Store) SelectWhere(ctx context.Context, name string, columns []string, cond backend.Condition) (*backend.Cursor[types.FieldMap], error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.snapshot(name, cond)
	if err != nil {
		return nil, err
	}
	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		for _, r := range rows {
			if !yield(backend.Project(name, r, columns)) {
				return
			}
		}
	}, nil), nil
}

// UpdateFields overwrites columns on every row matching key.
func (s *Store) UpdateFields(ctx context.Context, name string, key backend.Condition, fields types.FieldMap) error {
	if key.IsZero() {
		return types.MissingPrimaryKey("update " + name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	for _, r := range t.rows {
		if key.Matches(r) {
			for k, v := range fields {
				r[k] = v
			}
		}
	}
	return nil
}

// DeleteWhere removes every row matching cond.
func (s *Store) DeleteWhere(ctx context.Context, name string, cond backend.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	kept := t.rows[:0]
	for _, r := range t.rows {
		if !cond.Matches(r) {
			kept = append(kept, r)
		}
	}
	clear(t.rows[len(kept):])
	t.rows = kept
	return nil
}

// DeleteAll drops every row but keeps the table's descriptors.
func (s *Store) DeleteAll(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrClosed
	}
	if t, ok := s.tables[name]; ok {
		t.rows = nil
	}
	return nil
}

// Len returns the number of rows stored in table.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tables[name]; ok {
		return len(t.rows)
	}
	return 0
}

var _ backend.Driver = (*Store)(nil)
