// Package bolt provides a backend.Driver on an embedded bbolt file.
//
// Every table is a bucket whose keys are the encoded primary key, so rows
// iterate in key order. Field descriptors live in a separate metadata bucket.
// Reads copy the matching rows out of a read transaction before yielding them,
// which leaves the file free for writes while a cursor is being drained.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// MetaBucket holds one JSON descriptor entry per created table.
const MetaBucket = "__tymigrawr_tables"

type tableMeta struct {
	Fields []types.CrudField `json:"fields"`
	Key    string            `json:"key"`
}

func (m *tableMeta) autoIncrement() bool {
	for _, f := range m.Fields {
		if f.Name == m.Key {
			return f.AutoIncrement
		}
	}
	return false
}

// Store implements backend.Driver on a bbolt database.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the file named by cfg.Path.
func Open(cfg config.BoltConfig, logger *zap.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, types.NewError(types.ErrInvalidInput, "bolt path is required")
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{
		Timeout: cfg.Timeout,
		NoSync:  cfg.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt file %s: %w", cfg.Path, err)
	}
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("bolt backend initialized", zap.String("path", cfg.Path), zap.Bool("no_sync", cfg.NoSync))
	return s, nil
}

// New wraps an open database and ensures the metadata bucket exists.
func New(db *bolt.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(MetaBucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: init metadata: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "bolt_backend")),
	}, nil
}

// DB returns the underlying database.
func (s *Store) DB() *bolt.DB { return s.db }

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrClosed
	}
	return nil
}

// Ping checks the store is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(MetaBucket)) == nil {
			return fmt.Errorf("bolt: metadata bucket missing")
		}
		return nil
	})
}

// Close closes the file. Later calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func readMeta(tx *bolt.Tx, table string) (*tableMeta, error) {
	data := tx.Bucket([]byte(MetaBucket)).Get([]byte(table))
	if data == nil {
		return nil, nil
	}
	var m tableMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode schema of %s: %w", table, err)
	}
	return &m, nil
}

// CreateTable creates the table's bucket and records its descriptors.
// Existing descriptors are kept.
func (s *Store) CreateTable(ctx context.Context, table string, fields []types.CrudField) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := backend.ValidateIdentifier(table); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
			return fmt.Errorf("bolt: create table %s: %w", table, err)
		}
		meta := tx.Bucket([]byte(MetaBucket))
		if meta.Get([]byte(table)) != nil {
			return nil
		}
		data, err := json.Marshal(tableMeta{Fields: fields, Key: record.PrimaryKeyName(fields)})
		if err != nil {
			return err
		}
		s.logger.Debug("table created", zap.String("table", table), zap.Int("fields", len(fields)))
		return meta.Put([]byte(table), data)
	})
}

// =============================================================================
// ✍️ 写入
// =============================================================================

// InsertFields stores one row. A key collision wraps backend.ErrDuplicateKey.
func (s *Store) InsertFields(ctx context.Context, table string, fields types.FieldMap) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := backend.ValidateRow(table, fields); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := readMeta(tx, table)
		if err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return fmt.Errorf("bolt: insert %s: %w", table, err)
		}

		row := fields.Clone()
		var key []byte
		if meta == nil || meta.Key == "" {
			n, err := b.NextSequence()
			if err != nil {
				return err
			}
			key = seqKey(n)
		} else {
			if key, err = assignKey(b, meta, row); err != nil {
				return fmt.Errorf("bolt: insert %s: %w", table, err)
			}
			for _, f := range meta.Fields {
				if _, ok := row[f.Name]; !ok {
					row[f.Name] = types.Null()
				}
			}
		}

		if b.Get(key) != nil {
			return fmt.Errorf("%w: %s", backend.ErrDuplicateKey, table)
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("bolt: encode row of %s: %w", table, err)
		}
		return b.Put(key, data)
	})
}

// assignKey returns the row's bucket key, drawing an autoincrement key from
// the bucket sequence when the row carries none.
func assignKey(b *bolt.Bucket, meta *tableMeta, row types.FieldMap) ([]byte, error) {
	v, present := row[meta.Key]
	if !meta.autoIncrement() {
		return EncodeKey(v), nil
	}
	if !present || v.IsNull() {
		n, err := b.NextSequence()
		if err != nil {
			return nil, err
		}
		v = types.Integer(int64(n))
		row[meta.Key] = v
	} else if i, ok := v.AsInteger(); ok && i > 0 && uint64(i) > b.Sequence() {
		if err := b.SetSequence(uint64(i)); err != nil {
			return nil, err
		}
	}
	return EncodeKey(v), nil
}

type storedRow struct {
	key []byte
	row types.FieldMap
}

// matching decodes rows of b that satisfy cond. A row that fails to decode
// aborts the scan.
func matching(b *bolt.Bucket, meta *tableMeta, table string, cond backend.Condition) ([]storedRow, error) {
	decode := func(k, v []byte) (storedRow, error) {
		var row types.FieldMap
		if err := json.Unmarshal(v, &row); err != nil {
			return storedRow{}, types.RowDecode(table, err)
		}
		return storedRow{key: bytes.Clone(k), row: row}, nil
	}

	if meta != nil && meta.Key != "" && cond.Column == meta.Key && cond.Op == backend.Eq {
		k := EncodeKey(cond.Value)
		v := b.Get(k)
		if v == nil {
			return nil, nil
		}
		r, err := decode(k, v)
		if err != nil {
			return nil, err
		}
		return []storedRow{r}, nil
	}

	var out []storedRow
	err := b.ForEach(func(k, v []byte) error {
		r, err := decode(k, v)
		if err != nil {
			return err
		}
		if cond.Matches(r.row) {
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

// UpdateFields merges fields into every row matching key. A row whose
// primary key changes is moved to its new key.
func (s *Store) UpdateFields(ctx context.Context, table string, key backend.Condition, fields types.FieldMap) error {
	if key.IsZero() {
		return types.MissingPrimaryKey("update " + table)
	}
	if err := s.check(); err != nil {
		return err
	}
	if err := key.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		meta, err := readMeta(tx, table)
		if err != nil {
			return err
		}
		rows, err := matching(b, meta, table, key)
		if err != nil {
			return fmt.Errorf("bolt: update %s: %w", table, err)
		}
		for _, r := range rows {
			for k, v := range fields {
				r.row[k] = v
			}
			newKey := r.key
			if meta != nil && meta.Key != "" {
				newKey = EncodeKey(r.row[meta.Key])
			}
			if !bytes.Equal(newKey, r.key) {
				if b.Get(newKey) != nil {
					return fmt.Errorf("%w: %s", backend.ErrDuplicateKey, table)
				}
				if err := b.Delete(r.key); err != nil {
					return err
				}
			}
			data, err := json.Marshal(r.row)
			if err != nil {
				return fmt.Errorf("bolt: encode row of %s: %w", table, err)
			}
			if err := b.Put(newKey, data); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteWhere removes rows matching cond. A zero condition removes every row.
func (s *Store) DeleteWhere(ctx context.Context, table string, cond backend.Condition) error {
	if cond.IsZero() {
		return s.DeleteAll(ctx, table)
	}
	if err := s.check(); err != nil {
		return err
	}
	if err := cond.Validate(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		meta, err := readMeta(tx, table)
		if err != nil {
			return err
		}
		rows, err := matching(b, meta, table, cond)
		if err != nil {
			return fmt.Errorf("bolt: delete from %s: %w", table, err)
		}
		for _, r := range rows {
			if err := b.Delete(r.key); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteAll drops and recreates the table's bucket. Descriptors and the
// autoincrement sequence survive.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		seq := b.Sequence()
		if err := tx.DeleteBucket([]byte(table)); err != nil {
			return fmt.Errorf("bolt: clear %s: %w", table, err)
		}
		nb, err := tx.CreateBucket([]byte(table))
		if err != nil {
			return fmt.Errorf("bolt: clear %s: %w", table, err)
		}
		return nb.SetSequence(seq)
	})
}

// =============================================================================
// 📖 读取
// =============================================================================

// ReadAllValues yields every row in key order. A table that was never
// created reads as empty.
func (s *Store) ReadAllValues(ctx context.Context, table string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	return s.SelectWhere(ctx, table, columns, backend.Condition{})
}

// SelectWhere yields rows matching cond in key order. Rows that fail to
// decode are per-item ROW_DECODE errors.
func (s *Store) SelectWhere(ctx context.Context, table string, columns []string, cond backend.Condition) (*backend.Cursor[types.FieldMap], error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := backend.ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := cond.Validate(); err != nil {
		return nil, err
	}

	var raw [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			raw = append(raw, bytes.Clone(v))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: read %s: %w", table, err)
	}

	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		for _, data := range raw {
			var row types.FieldMap
			if err := json.Unmarshal(data, &row); err != nil {
				if !yield(nil, types.RowDecode(table, err)) {
					return
				}
				continue
			}
			if !cond.Matches(row) {
				continue
			}
			if !yield(backend.Project(table, row, columns)) {
				return
			}
		}
	}, nil), nil
}

var _ backend.Driver = (*Store)(nil)
