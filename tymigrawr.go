// Package tymigrawr provides a top-level convenience entry point for opening
// configured storage backends and migrating versioned records between them.
//
// Usage:
//
//	import "github.com/BaSui01/tymigrawr"
//
//	reg, err := tymigrawr.Open(ctx, "tymigrawr.yaml", logger)
//	defer reg.Close()
//	chain := migrate.Then(migrate.Then(migrate.Start[PlayerV1](), V2FromV1), V3FromV2)
//	err = chain.RunWith(ctx, reg.Resolver())
//
// This is a thin wrapper around [config] and [registry]; chains are built
// with the [migrate] package directly.
package tymigrawr

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/backend/memory"
	"github.com/BaSui01/tymigrawr/backend/registry"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/migrate"
	"github.com/BaSui01/tymigrawr/types"
)

// Re-export the core types so callers rarely need the sub packages.

// Value is a single stored cell.
type Value = types.Value

// FieldMap is one row keyed by column name.
type FieldMap = types.FieldMap

// CrudField describes one column.
type CrudField = types.CrudField

// Driver is a storage backend.
type Driver = backend.Driver

// Registry routes tables to named backends.
type Registry = registry.Registry

// Resolver maps a table to the backend holding it.
type Resolver = migrate.Resolver

// Open loads configuration from path (defaults and TYMIGRAWR_* environment
// variables when path is empty), validates it and opens every backend.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Registry, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return OpenConfig(ctx, cfg, logger)
}

// OpenConfig validates cfg and opens every backend it names.
func OpenConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrInvalidInput, err.Error())
	}
	return registry.Open(ctx, cfg, logger)
}

// NewMemory creates an in-process backend, handy for tests.
func NewMemory() Driver { return memory.New(nil) }
