// Package dynamodb provides a backend.Driver on Amazon DynamoDB.
//
// Each table maps to a DynamoDB table with a single HASH key named after the
// record's primary key. Conditions other than equality on that key are
// evaluated client-side over a Scan, and writes can be throttled with a
// token-bucket limiter to stay under provisioned capacity.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

// batchWriteLimit is the DynamoDB cap on requests per BatchWriteItem call.
const batchWriteLimit = 25

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	ddb.DescribeTableAPIClient
	ddb.ScanAPIClient
	ddb.ListTablesAPIClient
	CreateTable(ctx context.Context, params *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
	BatchWriteItem(ctx context.Context, params *ddb.BatchWriteItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error)
}

// Options tunes a Store.
type Options struct {
	// TablePrefix is prepended to every table name.
	TablePrefix string
	// WritesPerSecond throttles writes; zero means unlimited.
	WritesPerSecond float64
	// TableWaitTimeout bounds how long CreateTable waits for ACTIVE.
	TableWaitTimeout time.Duration
}

// Store implements backend.Driver on DynamoDB.
type Store struct {
	client  Client
	opts    Options
	limiter *rate.Limiter
	logger  *zap.Logger

	keys   sync.Map // table → key attribute name
	fields sync.Map // table → []types.CrudField

	mu     sync.RWMutex
	closed bool
}

// Open builds a client from the default AWS credential chain, overridden by
// any static credentials or endpoint in cfg.
func Open(ctx context.Context, cfg config.DynamoDBConfig, logger *zap.Logger) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := ddb.NewFromConfig(awsCfg, func(o *ddb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	s := New(client, Options{
		TablePrefix:      cfg.TablePrefix,
		WritesPerSecond:  cfg.WritesPerSecond,
		TableWaitTimeout: cfg.TableWaitTimeout,
	}, logger)
	s.logger.Info("dynamodb backend initialized",
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint),
		zap.String("table_prefix", cfg.TablePrefix),
	)
	return s, nil
}

// New wraps client.
func New(client Client, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TableWaitTimeout <= 0 {
		opts.TableWaitTimeout = 2 * time.Minute
	}
	s := &Store{
		client: client,
		opts:   opts,
		logger: logger.With(zap.String("component", "dynamodb_backend")),
	}
	if opts.WritesPerSecond > 0 {
		burst := int(opts.WritesPerSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.WritesPerSecond), burst)
	}
	return s
}

func (s *Store) physical(table string) string { return s.opts.TablePrefix + table }

func (s *Store) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrClosed
	}
	return nil
}

func (s *Store) waitWrite(ctx context.Context, n int) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.WaitN(ctx, min(n, s.limiter.Burst()))
}

// Ping lists at most one table.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.client.ListTables(ctx, &ddb.ListTablesInput{Limit: aws.Int32(1)})
	return err
}

// Close marks the store closed. The SDK client holds no resources to release.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// CreateTable creates an on-demand table keyed by the primary key and waits
// for it to become ACTIVE. A table that already exists is left alone.
func (s *Store) CreateTable(ctx context.Context, table string, fields []types.CrudField) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := backend.ValidateIdentifier(table); err != nil {
		return err
	}
	key := record.PrimaryKeyName(fields)
	if key == "" {
		return types.MissingPrimaryKey("create table " + table)
	}
	var keyKind types.Kind
	for _, f := range fields {
		if f.Name == key {
			keyKind = f.Kind
		}
	}
	s.fields.Store(table, append([]types.CrudField(nil), fields...))

	_, err := s.client.CreateTable(ctx, &ddb.CreateTableInput{
		TableName: aws.String(s.physical(table)),
		AttributeDefinitions: []dbtypes.AttributeDefinition{
			{AttributeName: aws.String(key), AttributeType: scalarType(keyKind)},
		},
		KeySchema: []dbtypes.KeySchemaElement{
			{AttributeName: aws.String(key), KeyType: dbtypes.KeyTypeHash},
		},
		BillingMode: dbtypes.BillingModePayPerRequest,
	})
	var inUse *dbtypes.ResourceInUseException
	switch {
	case errors.As(err, &inUse):
		return nil
	case err != nil:
		return fmt.Errorf("dynamodb: create table %s: %w", table, err)
	}

	waiter := ddb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &ddb.DescribeTableInput{TableName: aws.String(s.physical(table))}, s.opts.TableWaitTimeout); err != nil {
		return fmt.Errorf("dynamodb: wait for table %s: %w", table, err)
	}
	s.keys.Store(table, key)
	s.logger.Debug("table created", zap.String("table", table), zap.String("key", key))
	return nil
}

// keyName returns the table's HASH key attribute, asking DynamoDB once.
func (s *Store) keyName(ctx context.Context, table string) (string, error) {
	if k, ok := s.keys.Load(table); ok {
		return k.(string), nil
	}
	out, err := s.client.DescribeTable(ctx, &ddb.DescribeTableInput{TableName: aws.String(s.physical(table))})
	if err != nil {
		return "", fmt.Errorf("dynamodb: describe %s: %w", table, err)
	}
	for _, el := range out.Table.KeySchema {
		if el.KeyType == dbtypes.KeyTypeHash {
			name := aws.ToString(el.AttributeName)
			s.keys.Store(table, name)
			return name, nil
		}
	}
	return "", fmt.Errorf("dynamodb: table %s has no hash key", table)
}

// =============================================================================
// ✍️ 写入
// =============================================================================

// InsertFields puts one item unless its key already exists. A collision wraps
// backend.ErrDuplicateKey. DynamoDB assigns no keys, so the row must carry one.
func (s *Store) InsertFields(ctx context.Context, table string, fields types.FieldMap) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := backend.ValidateRow(table, fields); err != nil {
		return err
	}
	key, err := s.keyName(ctx, table)
	if err != nil {
		return err
	}
	if v, ok := fields[key]; !ok || v.IsNull() {
		return types.MissingPrimaryKey("insert into " + table)
	}

	row := fields.Clone()
	if descs, ok := s.fields.Load(table); ok {
		for _, f := range descs.([]types.CrudField) {
			if _, ok := row[f.Name]; !ok {
				row[f.Name] = types.Null()
			}
		}
	}
	return s.put(ctx, table, key, row, "attribute_not_exists(#k)")
}

func (s *Store) put(ctx context.Context, table, key string, row types.FieldMap, condition string) error {
	item, err := ToItem(row)
	if err != nil {
		return err
	}
	if err := s.waitWrite(ctx, 1); err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &ddb.PutItemInput{
		TableName:                aws.String(s.physical(table)),
		Item:                     item,
		ConditionExpression:      aws.String(condition),
		ExpressionAttributeNames: map[string]string{"#k": key},
	})
	var failed *dbtypes.ConditionalCheckFailedException
	switch {
	case errors.As(err, &failed):
		return fmt.Errorf("%w: %s", backend.ErrDuplicateKey, table)
	case err != nil:
		return fmt.Errorf("dynamodb: put into %s: %w", table, err)
	}
	return nil
}

func (s *Store) deleteKey(ctx context.Context, table, key string, v types.Value) error {
	av, err := ToAttribute(v)
	if err != nil {
		return err
	}
	if err := s.waitWrite(ctx, 1); err != nil {
		return err
	}
	_, err = s.client.DeleteItem(ctx, &ddb.DeleteItemInput{
		TableName: aws.String(s.physical(table)),
		Key:       map[string]dbtypes.AttributeValue{key: av},
	})
	if err != nil {
		return fmt.Errorf("dynamodb: delete from %s: %w", table, err)
	}
	return nil
}

// UpdateFields merges fields into every item matching cond. An item whose key
// changes is written under the new key and removed from the old one.
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
	key, err := s.keyName(ctx, table)
	if err != nil {
		return err
	}
	rows, err := s.matching(ctx, table, key, cond)
	if err != nil {
		return err
	}
	for _, row := range rows {
		old := row[key]
		for k, v := range fields {
			row[k] = v
		}
		if row[key].Equal(old) {
			if err := s.put(ctx, table, key, row, "attribute_exists(#k)"); err != nil {
				return err
			}
			continue
		}
		if err := s.put(ctx, table, key, row, "attribute_not_exists(#k)"); err != nil {
			return err
		}
		if err := s.deleteKey(ctx, table, key, old); err != nil {
			return err
		}
	}
	return nil
}

// DeleteWhere removes items matching cond. A zero condition removes every item.
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
	key, err := s.keyName(ctx, table)
	if err != nil {
		return err
	}
	rows, err := s.matching(ctx, table, key, cond)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.deleteKey(ctx, table, key, row[key]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteAll scans the table's keys and removes them with batched writes,
// resubmitting unprocessed requests.
func (s *Store) DeleteAll(ctx context.Context, table string) error {
	if err := s.check(); err != nil {
		return err
	}
	key, err := s.keyName(ctx, table)
	if err != nil {
		return err
	}

	p := ddb.NewScanPaginator(s.client, &ddb.ScanInput{
		TableName:                aws.String(s.physical(table)),
		ProjectionExpression:     aws.String("#k"),
		ExpressionAttributeNames: map[string]string{"#k": key},
		ConsistentRead:           aws.Bool(true),
	})
	var pending []dbtypes.WriteRequest
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("dynamodb: clear %s: %w", table, err)
		}
		for _, item := range page.Items {
			pending = append(pending, dbtypes.WriteRequest{
				DeleteRequest: &dbtypes.DeleteRequest{Key: map[string]dbtypes.AttributeValue{key: item[key]}},
			})
		}
	}

	for len(pending) > 0 {
		n := min(batchWriteLimit, len(pending))
		batch := pending[:n]
		pending = pending[n:]
		if err := s.waitWrite(ctx, len(batch)); err != nil {
			return err
		}
		out, err := s.client.BatchWriteItem(ctx, &ddb.BatchWriteItemInput{
			RequestItems: map[string][]dbtypes.WriteRequest{s.physical(table): batch},
		})
		if err != nil {
			return fmt.Errorf("dynamodb: clear %s: %w", table, err)
		}
		pending = append(pending, out.UnprocessedItems[s.physical(table)]...)
	}
	return nil
}

// =============================================================================
// 📖 读取
// =============================================================================

// ReadAllValues yields every item in scan order.
func (s *Store) ReadAllValues(ctx context.Context, table string, columns []string) (*backend.Cursor[types.FieldMap], error) {
	return s.SelectWhere(ctx, table, columns, backend.Condition{})
}

// SelectWhere yields items matching cond. Equality on the key is a single
// GetItem; everything else is a consistent Scan filtered client-side, fetched
// page by page as the cursor advances.
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
	key, err := s.keyName(ctx, table)
	if err != nil {
		return nil, err
	}

	if s.isKeyLookup(key, cond) {
		rows, err := s.matching(ctx, table, key, cond)
		if err != nil {
			return nil, err
		}
		return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
			for _, row := range rows {
				if !yield(backend.Project(table, row, columns)) {
					return
				}
			}
		}, nil), nil
	}

	p := ddb.NewScanPaginator(s.client, &ddb.ScanInput{
		TableName:      aws.String(s.physical(table)),
		ConsistentRead: aws.Bool(true),
	})
	// 首页同步读取，表不存在等错误直接返回
	first, err := p.NextPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: read %s: %w", table, err)
	}

	return backend.NewCursor(func(yield func(types.FieldMap, error) bool) {
		page := first
		for {
			for _, item := range page.Items {
				row := FromItem(item)
				if !cond.Matches(row) {
					continue
				}
				if !yield(backend.Project(table, row, columns)) {
					return
				}
			}
			if !p.HasMorePages() {
				return
			}
			if page, err = p.NextPage(ctx); err != nil {
				yield(nil, fmt.Errorf("dynamodb: read %s: %w", table, err))
				return
			}
		}
	}, nil), nil
}

func (s *Store) isKeyLookup(key string, cond backend.Condition) bool {
	return cond.Column == key && cond.Op == backend.Eq && !cond.Value.IsNull()
}

// matching collects items satisfying cond.
func (s *Store) matching(ctx context.Context, table, key string, cond backend.Condition) ([]types.FieldMap, error) {
	if s.isKeyLookup(key, cond) {
		av, err := ToAttribute(cond.Value)
		if err != nil {
			return nil, err
		}
		out, err := s.client.GetItem(ctx, &ddb.GetItemInput{
			TableName:      aws.String(s.physical(table)),
			Key:            map[string]dbtypes.AttributeValue{key: av},
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb: get from %s: %w", table, err)
		}
		if out.Item == nil {
			return nil, nil
		}
		return []types.FieldMap{FromItem(out.Item)}, nil
	}

	var rows []types.FieldMap
	p := ddb.NewScanPaginator(s.client, &ddb.ScanInput{
		TableName:      aws.String(s.physical(table)),
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb: scan %s: %w", table, err)
		}
		for _, item := range page.Items {
			if row := FromItem(item); cond.Matches(row) {
				rows = append(rows, row)
			}
		}
	}
	return rows, nil
}

var _ backend.Driver = (*Store)(nil)
