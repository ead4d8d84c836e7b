// Package redis provides a backend.Driver on Redis.
//
// Each table keeps its rows as JSON strings under {prefix}:{table}:row:{id},
// an insertion-ordered sorted set of row ids, and a hash with the table's
// field descriptors. Row ids are derived from the primary key so inserts can
// detect collisions with SET NX; tables without known descriptors use random
// ids. A row and its index entry are written by one Lua script.
package redis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// batchSize bounds MGET and DEL argument lists.
const batchSize = 256

// Store implements backend.Driver on a Redis client.
type Store struct {
	client goredis.UniversalClient
	prefix string
	logger *zap.Logger

	meta sync.Map // table → *tableMeta

	mu     sync.RWMutex
	closed bool
}

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

// Open connects to the server described by cfg and pings it.
func Open(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := New(client, cfg.KeyPrefix, logger)
	s.logger.Info("redis backend initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("key_prefix", cfg.KeyPrefix),
	)
	return s, nil
}

// New wraps client. Keys are namespaced under prefix.
func New(client goredis.UniversalClient, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "tymigrawr"
	}
	return &Store{
		client: client,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis_backend")),
	}
}

// =============================================================================
// 🔑 键布局
// =============================================================================

func (s *Store) rowKey(table, id string) string { return s.prefix + ":" + table + ":row:" + id }
func (s *Store) indexKey(table string) string   { return s.prefix + ":" + table + ":index" }
func (s *Store) seqKey(table string) string     { return s.prefix + ":" + table + ":seq" }
func (s *Store) autoKey(table string) string    { return s.prefix + ":" + table + ":autoinc" }
func (s *Store) metaKey(table string) string    { return s.prefix + ":" + table + ":meta" }

// RowID encodes a primary key value as a row id. Distinct values of distinct
// kinds never share an id.
func RowID(v types.Value) string {
	switch v.Kind() {
	case types.KindInteger:
		i, _ := v.AsInteger()
		return "i" + strconv.FormatInt(i, 10)
	case types.KindFloat:
		f, _ := v.AsFloat()
		return "f" + strconv.FormatFloat(f, 'g', -1, 64)
	case types.KindText:
		t, _ := v.AsText()
		return "t" + t
	case types.KindBytes:
		b, _ := v.AsBytes()
		return "b" + base64.RawURLEncoding.EncodeToString(b)
	default:
		return "n"
	}
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrClosed
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.client.Ping(ctx).Err()
}

// Close closes the client. Later calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}

// CreateTable records the table's descriptors. Existing descriptors are kept.
func (s *Store) CreateTable(ctx context.Context, table string, fields []types.CrudField) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := backend.ValidateIdentifier(table); err != nil {
		return err
	}
	data, err := json.Marshal(tableMeta{Fields: fields, Key: record.PrimaryKeyName(fields)})
	if err != nil {
		return err
	}
	created, err := s.client.HSetNX(ctx, s.metaKey(table), "schema", data).Result()
	if err != nil {
		return fmt.Errorf("redis: create table %s: %w", table, err)
	}
	s.meta.Delete(table)
	if created {
		s.logger.Debug("table created", zap.String("table", table), zap.Int("fields", len(fields)))
	}
	return nil
}

// tableMeta returns the table's descriptors, or nil if it was never created.
func (s *Store) tableMeta(ctx context.Context, table string) (*tableMeta, error) {
	if m, ok := s.meta.Load(table); ok {
		return m.(*tableMeta), nil
	}
	data, err := s.client.HGet(ctx, s.metaKey(table), "schema").Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m tableMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode schema of %s: %w", table, err)
	}
	s.meta.Store(table, &m)
	return &m, nil
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
	meta, err := s.tableMeta(ctx, table)
	if err != nil {
		return fmt.Errorf("redis: insert %s: %w", table, err)
	}

	row := fields.Clone()
	var id string
	switch {
	case meta == nil || meta.Key == "":
		id = uuid.NewString()
	default:
		key, present := row[meta.Key]
		if (!present || key.IsNull()) && meta.autoIncrement() {
			n, err := s.client.Incr(ctx, s.autoKey(table)).Result()
			if err != nil {
				return fmt.Errorf("redis: insert %s: %w", table, err)
			}
			key = types.Integer(n)
			row[meta.Key] = key
		}
		id = RowID(key)
	}
	if meta != nil {
		for _, f := range meta.Fields {
			if _, ok := row[f.Name]; !ok {
				row[f.Name] = types.Null()
			}
		}
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("redis: encode row of %s: %w", table, err)
	}
	// 行与索引在同一脚本内写入，避免出现未索引的孤儿行
	result, err := insertScript.Run(ctx, s.client,
		[]string{s.rowKey(table, id), s.seqKey(table), s.indexKey(table)},
		data, id).Int()
	if err != nil {
		return fmt.Errorf("redis: insert %s: %w", table, err)
	}
	if result == 0 {
		return fmt.Errorf("%w: %s row %s", backend.ErrDuplicateKey, table, id)
	}
	return nil
}

// insertScript 原子写入一行：SET NX 行键，成功后取序号并加入插入顺序索引
var insertScript = goredis.NewScript(`
	local rowKey = KEYS[1]
	local seqKey = KEYS[2]
	local indexKey = KEYS[3]

	if not redis.call('SET', rowKey, ARGV[1], 'NX') then
		return 0  -- 主键冲突
	end
	local seq = redis.call('INCR', seqKey)
	redis.call('ZADD', indexKey, seq, ARGV[2])
	return 1
`)

// UpdateFields merges fields into every row matching key.
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
	matches, err := s.matching(ctx, table, key)
	if err != nil {
		return fmt.Errorf("redis: update %s: %w", table, err)
	}
	if len(matches) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, m := range matches {
		for k, v := range fields {
			m.row[k] = v
		}
		data, err := json.Marshal(m.row)
		if err != nil {
			return fmt.Errorf("redis: encode row of %s: %w", table, err)
		}
		pipe.SetXX(ctx, s.rowKey(table, m.id), data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: update %s: %w", table, err)
	}
	return nil
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
	matches, err := s.matching(ctx, table, cond)
	if err != nil {
		return fmt.Errorf("redis: delete from %s: %w", table, err)
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.id
	}
	return s.deleteIDs(ctx, table, ids)
}

// DeleteAll removes every row but keeps the table's descriptors.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if err := s.check(); err != nil {
		return err
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(table), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis: clear %s: %w", table, err)
	}
	if err := s.deleteIDs(ctx, table, ids); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.indexKey(table)).Err(); err != nil {
		return fmt.Errorf("redis: clear %s: %w", table, err)
	}
	return nil
}

func (s *Store) deleteIDs(ctx context.Context, table string, ids []string) error {
	for start := 0; start < len(ids); start += batchSize {
		chunk := ids[start:min(start+batchSize, len(ids))]
		keys := make([]string, len(chunk))
		members := make([]any, len(chunk))
		for i, id := range chunk {
			keys[i] = s.rowKey(table, id)
			members[i] = id
		}
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.indexKey(table), members...)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis: delete from %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// 📖 读取
// =============================================================================

// ReadAllValues streams every row in insertion order.
func (s *Store) ReadAllValues(ctx context.Context, table string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	return s.SelectWhere(ctx, table, columns, backend.Condition{})
}

// SelectWhere streams rows matching cond in insertion order. Row ids are
// snapshotted up front and rows are fetched in batches as the cursor advances.
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
	ids, err := s.client.ZRange(ctx, s.indexKey(table), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read %s: %w", table, err)
	}
	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		for r, err := range s.fetch(ctx, table, ids) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !cond.Matches(r.row) {
				continue
			}
			if !yield(backend.Project(table, r.row, columns)) {
				return
			}
		}
	}, nil), nil
}

type storedRow struct {
	id  string
	row types.FieldMap
}

// fetch loads ids in batches. Rows deleted since the snapshot are skipped; a
// row that fails to decode is yielded as a ROW_DECODE item.
func (s *Store) fetch(ctx context.Context, table string, ids []string) func(yield func(storedRow, error) bool) {
	return func(yield func(storedRow, error) bool) {
		for start := 0; start < len(ids); start += batchSize {
			chunk := ids[start:min(start+batchSize, len(ids))]
			keys := make([]string, len(chunk))
			for i, id := range chunk {
				keys[i] = s.rowKey(table, id)
			}
			vals, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				yield(storedRow{}, fmt.Errorf("redis: read %s: %w", table, err))
				return
			}
			for i, v := range vals {
				str, ok := v.(string)
				if !ok {
					continue
				}
				var row types.FieldMap
				if err := json.Unmarshal([]byte(str), &row); err != nil {
					if !yield(storedRow{}, types.RowDecode(table, err)) {
						return
					}
					continue
				}
				if !yield(storedRow{id: chunk[i], row: row}, nil) {
					return
				}
			}
		}
	}
}

// matching collects rows matching cond, going straight to the row key when
// cond is an equality on the primary key.
func (s *Store) matching(ctx context.Context, table string, cond backend.Condition) ([]storedRow, error) {
	meta, err := s.tableMeta(ctx, table)
	if err != nil {
		return nil, err
	}
	var ids []string
	if meta != nil && meta.Key != "" && cond.Column == meta.Key && cond.Op == backend.Eq {
		ids = []string{RowID(cond.Value)}
	} else if ids, err = s.client.ZRange(ctx, s.indexKey(table), 0, -1).Result(); err != nil {
		return nil, err
	}

	var out []storedRow
	for r, err := range s.fetch(ctx, table, ids) {
		if err != nil {
			return nil, err
		}
		if cond.Matches(r.row) {
			out = append(out, r)
		}
	}
	return out, nil
}

var _ backend.Driver = (*Store)(nil)
