// Package mongo provides a backend.Driver on MongoDB.
//
// Each table is a collection in one database. Documents store every column
// plus an _id equal to the primary key, so the server rejects duplicate keys.
// Field descriptors and autoincrement counters live in a metadata collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// MetaCollection holds one descriptor document per created table.
const MetaCollection = "__tymigrawr_tables"

// codeNamespaceExists is returned by create on an existing collection.
const codeNamespaceExists = 48

type tableMeta struct {
	Table  string            `bson:"_id"`
	Fields []types.CrudField `bson:"fields"`
	Key    string            `bson:"key"`
	Seq    int64             `bson:"seq"`
}

func (m *tableMeta) autoIncrement() bool {
	for _, f := range m.Fields {
		if f.Name == m.Key {
			return f.AutoIncrement
		}
	}
	return false
}

// Store implements backend.Driver on a MongoDB database.
type Store struct {
	client *mongodrv.Client
	db     *mongodrv.Database
	logger *zap.Logger

	meta sync.Map // table → *tableMeta

	mu     sync.RWMutex
	closed bool
}

// Open connects to cfg.URI and pings the primary.
func Open(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*Store, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}
	client, err := mongodrv.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s := New(client, cfg.Database, logger)
	s.logger.Info("mongodb backend initialized", zap.String("database", cfg.Database))
	return s, nil
}

// New wraps a connected client using database.
func New(client *mongodrv.Client, database string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		db:     client.Database(database),
		logger: logger.With(zap.String("component", "mongo_backend")),
	}
}

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrClosed
	}
	return nil
}

// Ping pings the primary.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. Later calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateTable creates the collection and records its descriptors. Existing
// collections and descriptors are kept.
func (s *Store) CreateTable(ctx context.Context, table string, fields []types.CrudField) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := backend.ValidateIdentifier(table); err != nil {
		return err
	}
	err := s.db.CreateCollection(ctx, table)
	var cmdErr mongodrv.CommandError
	if err != nil && !(errors.As(err, &cmdErr) && cmdErr.HasErrorCode(codeNamespaceExists)) {
		return fmt.Errorf("mongo: create table %s: %w", table, err)
	}

	_, err = s.db.Collection(MetaCollection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: table}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{
			{Key: "fields", Value: fields},
			{Key: "key", Value: record.PrimaryKeyName(fields)},
			{Key: "seq", Value: int64(0)},
		}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: record schema of %s: %w", table, err)
	}
	s.meta.Delete(table)
	s.logger.Debug("table created", zap.String("table", table), zap.Int("fields", len(fields)))
	return nil
}

func (s *Store) tableMeta(ctx context.Context, table string) (*tableMeta, error) {
	if m, ok := s.meta.Load(table); ok {
		return m.(*tableMeta), nil
	}
	var m tableMeta
	err := s.db.Collection(MetaCollection).FindOne(ctx, bson.D{{Key: "_id", Value: table}}).Decode(&m)
	if errors.Is(err, mongodrv.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: load schema of %s: %w", table, err)
	}
	s.meta.Store(table, &m)
	return &m, nil
}

// nextSeq atomically advances the table's autoincrement counter.
func (s *Store) nextSeq(ctx context.Context, table string) (int64, error) {
	var m tableMeta
	err := s.db.Collection(MetaCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: table}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return 0, fmt.Errorf("mongo: next id of %s: %w", table, err)
	}
	return m.Seq, nil
}

// assignKey draws a key for rows without one and keeps the counter ahead of
// explicitly supplied integer keys.
func (s *Store) assignKey(ctx context.Context, table, key string, row types.FieldMap) error {
	v, ok := row[key]
	if !ok || v.IsNull() {
		n, err := s.nextSeq(ctx, table)
		if err != nil {
			return err
		}
		row[key] = types.Integer(n)
		return nil
	}
	if i, ok := v.AsInteger(); ok {
		_, err := s.db.Collection(MetaCollection).UpdateOne(ctx,
			bson.D{{Key: "_id", Value: table}},
			bson.D{{Key: "$max", Value: bson.D{{Key: "seq", Value: i}}}},
		)
		if err != nil {
			return fmt.Errorf("mongo: advance id of %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// ✍️ 写入
// =============================================================================

// InsertFields stores one document. A key collision wraps
// backend.ErrDuplicateKey.
func (s *Store) InsertFields(ctx context.Context, table string, fields types.FieldMap) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := backend.ValidateRow(table, fields); err != nil {
		return err
	}
	meta, err := s.tableMeta(ctx, table)
	if err != nil {
		return err
	}

	row := fields.Clone()
	key := ""
	if meta != nil {
		key = meta.Key
		if meta.autoIncrement() {
			if err := s.assignKey(ctx, table, key, row); err != nil {
				return err
			}
		}
		for _, f := range meta.Fields {
			if _, ok := row[f.Name]; !ok {
				row[f.Name] = types.Null()
			}
		}
	}
	return s.insert(ctx, table, ToDocument(row, key))
}

func (s *Store) insert(ctx context.Context, table string, doc bson.D) error {
	_, err := s.db.Collection(table).InsertOne(ctx, doc)
	switch {
	case mongodrv.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s", backend.ErrDuplicateKey, table)
	case err != nil:
		return fmt.Errorf("mongo: insert into %s: %w", table, err)
	}
	return nil
}

// UpdateFields merges fields into every document matching cond. A document
// whose key changes is reinserted under the new _id.
func (s *Store) UpdateFields(ctx context.Context, table string, cond backend.Condition, fields types.FieldMap) error {
	if cond.IsZero() {
		return types.MissingPrimaryKey("update " + table)
	}
	if err := s.check(); err != nil {
		return err
	}
	if err := cond.Validate(); err != nil {
		return err
	}
	meta, err := s.tableMeta(ctx, table)
	if err != nil {
		return err
	}
	key := ""
	if meta != nil {
		key = meta.Key
	}

	coll := s.db.Collection(table)
	cur, err := coll.Find(ctx, Filter(cond))
	if err != nil {
		return fmt.Errorf("mongo: update %s: %w", table, err)
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return fmt.Errorf("mongo: update %s: %w", table, err)
	}

	for _, doc := range docs {
		id := doc[idField]
		row := FromDocument(doc)
		old := row[key]
		for k, v := range fields {
			row[k] = v
		}
		if key == "" || row[key].Equal(old) {
			replacement := ToDocument(row, "")
			if _, err := coll.ReplaceOne(ctx, bson.D{{Key: idField, Value: id}}, replacement); err != nil {
				return fmt.Errorf("mongo: update %s: %w", table, err)
			}
			continue
		}
		if err := s.insert(ctx, table, ToDocument(row, key)); err != nil {
			return err
		}
		if _, err := coll.DeleteOne(ctx, bson.D{{Key: idField, Value: id}}); err != nil {
			return fmt.Errorf("mongo: update %s: %w", table, err)
		}
	}
	return nil
}

// DeleteWhere removes documents matching cond. A zero condition removes all.
func (s *Store) DeleteWhere(ctx context.Context, table string, cond backend.Condition) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := cond.Validate(); err != nil {
		return err
	}
	if _, err := s.db.Collection(table).DeleteMany(ctx, Filter(cond)); err != nil {
		return fmt.Errorf("mongo: delete from %s: %w", table, err)
	}
	return nil
}

// DeleteAll removes every document but keeps the collection and descriptors.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	return s.DeleteWhere(ctx, table, backend.Condition{})
}

// =============================================================================
// 📖 读取
// =============================================================================

// ReadAllValues streams every document in natural order. A collection that
// was never created reads as empty.
func (s *Store) ReadAllValues(ctx context.Context, table string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	return s.SelectWhere(ctx, table, columns, backend.Condition{})
}

// SelectWhere streams documents matching cond. The server cursor is closed
// with the returned cursor.
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
	cur, err := s.db.Collection(table).Find(ctx, Filter(cond),
		options.Find().SetSort(bson.D{{Key: "$natural", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: read %s: %w", table, err)
	}

	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		for cur.Next(ctx) {
			var doc bson.M
			if err := cur.Decode(&doc); err != nil {
				if !yield(nil, types.RowDecode(table, err)) {
					return
				}
				continue
			}
			if !yield(backend.Project(table, FromDocument(doc), columns)) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(nil, fmt.Errorf("mongo: read %s: %w", table, err))
		}
	}, func() error {
		return cur.Close(context.Background())
	}), nil
}

var _ backend.Driver = (*Store)(nil)
