// Package registry opens the backends named in configuration and routes
// tables to them.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/backend/bolt"
	"github.com/BaSui01/tymigrawr/backend/dynamodb"
	"github.com/BaSui01/tymigrawr/backend/gormdb"
	"github.com/BaSui01/tymigrawr/backend/memory"
	"github.com/BaSui01/tymigrawr/backend/mongo"
	"github.com/BaSui01/tymigrawr/backend/redis"
	"github.com/BaSui01/tymigrawr/backend/sqlite"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/migrate"
	"github.com/BaSui01/tymigrawr/types"
)

// Registry holds named backends and a table routing table.
type Registry struct {
	backends    map[string]backend.Driver
	routes      map[string]string
	defaultName string
	logger      *zap.Logger
}

// New builds a registry over already opened backends. Every route and the
// default must name a backend in backends.
func New(backends map[string]backend.Driver, routing config.RoutingConfig, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, ok := backends[routing.Default]; !ok {
		return nil, types.NewError(types.ErrInvalidInput, fmt.Sprintf("default backend %q is not defined", routing.Default))
	}
	routes := make(map[string]string, len(routing.Tables))
	for table, name := range routing.Tables {
		if _, ok := backends[name]; !ok {
			return nil, types.NewError(types.ErrInvalidInput, fmt.Sprintf("table %q routes to undefined backend %q", table, name))
		}
		routes[table] = name
	}
	return &Registry{
		backends:    backends,
		routes:      routes,
		defaultName: routing.Default,
		logger:      logger.With(zap.String("component", "registry")),
	}, nil
}

// Open opens every backend in cfg. If any fails, the ones already opened are
// closed again.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opened := make(map[string]backend.Driver, len(cfg.Backends))
	for _, name := range sortedNames(cfg.Backends) {
		d, err := OpenBackend(ctx, cfg.Backends[name], logger.With(zap.String("backend", name)))
		if err != nil {
			var result *multierror.Error
			result = multierror.Append(result, fmt.Errorf("open backend %q: %w", name, err))
			for other, d := range opened {
				if cerr := d.Close(); cerr != nil {
					result = multierror.Append(result, fmt.Errorf("close backend %q: %w", other, cerr))
				}
			}
			return nil, result.ErrorOrNil()
		}
		opened[name] = d
	}
	return New(opened, cfg.Routing, logger)
}

// OpenBackend opens a single backend of the configured type.
func OpenBackend(ctx context.Context, bc config.BackendConfig, logger *zap.Logger) (backend.Driver, error) {
	switch backend.Type(bc.Type) {
	case backend.TypeMemory:
		return memory.New(logger), nil
	case backend.TypeSQLite:
		return sqlite.Open(ctx, bc.SQLite, logger)
	case backend.TypeGorm:
		return gormdb.Open(bc.Database, logger)
	case backend.TypeRedis:
		return redis.Open(ctx, bc.Redis, logger)
	case backend.TypeBolt:
		return bolt.Open(bc.Bolt, logger)
	case backend.TypeDynamoDB:
		return dynamodb.Open(ctx, bc.DynamoDB, logger)
	case backend.TypeMongo:
		return mongo.Open(ctx, bc.Mongo, logger)
	default:
		return nil, types.NewError(types.ErrInvalidInput, fmt.Sprintf("unknown backend type %q", bc.Type))
	}
}

// Names returns the backend names in sorted order.
func (r *Registry) Names() []string { return sortedNames(r.backends) }

// Get returns the backend called name.
func (r *Registry) Get(name string) (backend.Driver, bool) {
	d, ok := r.backends[name]
	return d, ok
}

// Default returns the default backend.
func (r *Registry) Default() backend.Driver { return r.backends[r.defaultName] }

// For returns the backend that holds table.
func (r *Registry) For(table string) backend.Driver {
	if name, ok := r.routes[table]; ok {
		return r.backends[name]
	}
	return r.Default()
}

// BackendName returns the name of the backend that holds table.
func (r *Registry) BackendName(table string) string {
	if name, ok := r.routes[table]; ok {
		return name
	}
	return r.defaultName
}

// Resolver adapts the routing table for migrate.Chain.RunWith.
func (r *Registry) Resolver() migrate.Resolver {
	return func(table string) backend.Bulk { return r.For(table) }
}

// PingAll pings every backend concurrently and reports every failure.
func (r *Registry) PingAll(ctx context.Context) error {
	names := r.Names()
	errs := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		d := r.backends[name]
		g.Go(func() error {
			if err := d.Ping(gctx); err != nil {
				errs[i] = fmt.Errorf("ping backend %q: %w", name, err)
			}
			return nil // 收集全部失败，不提前取消
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Close closes every backend and reports every failure.
func (r *Registry) Close() error {
	var result *multierror.Error
	for _, name := range r.Names() {
		if err := r.backends[name].Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close backend %q: %w", name, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		r.logger.Warn("closing backends failed", zap.Error(err))
		return err
	}
	return nil
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
