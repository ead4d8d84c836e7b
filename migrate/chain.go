package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/record"
	"github.com/BaSui01/tymigrawr/types"
)

const instrumentationName = "github.com/BaSui01/tymigrawr/migrate"

// Resolver maps a table name to the backend holding it.
type Resolver func(table string) backend.Bulk

// Single routes every table to one backend.
func Single(b backend.Bulk) Resolver {
	return func(string) backend.Bulk { return b }
}

// Routes sends the listed tables to their backends and everything else to fallback.
func Routes(fallback backend.Bulk, routes map[string]backend.Bulk) Resolver {
	return func(table string) backend.Bulk {
		if b, ok := routes[table]; ok {
			return b
		}
		return fallback
	}
}

// Option configures a Chain.
type Option func(*options)

type options struct {
	observer Observer
	tracer   trace.Tracer
}

// WithObserver reports pass progress to o.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithLogger logs pass progress through logger.
func WithLogger(logger *zap.Logger) Option {
	return func(opts *options) { opts.observer = Observers(opts.observer, NewLogObserver(logger)) }
}

// WithTracerProvider sets the provider passes are traced with. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(opts *options) { opts.tracer = tp.Tracer(instrumentationName) }
}

// Chain is an ordered sequence of record versions ending at T. Each version
// after the first is reached from its predecessor by a conversion checked at
// compile time.
type Chain[T any] struct {
	steps []Step
	opts  options
}

// Start begins a chain whose first version is T.
func Start[T any, P record.Ptr[T]](opts ...Option) *Chain[T] {
	o := options{observer: NopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = NopObserver{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	return &Chain[T]{
		steps: []Step{NewStep[T, T, P](identity[T])},
		opts:  o,
	}
}

// Then appends version Next, reached from the chain's current head through
// convert. The receiver chain is left unchanged.
func Then[Cur, Next any, P record.Ptr[Next]](c *Chain[Cur], convert func(Cur) Next) *Chain[Next] {
	steps := make([]Step, len(c.steps), len(c.steps)+1)
	copy(steps, c.steps)
	return &Chain[Next]{
		steps: append(steps, NewStep[Cur, Next, P](convert)),
		opts:  c.opts,
	}
}

// Len returns the number of versions.
func (c *Chain[T]) Len() int { return len(c.steps) }

// Steps returns a copy of the chain's steps in append order.
func (c *Chain[T]) Steps() []Step { return append([]Step(nil), c.steps...) }

// Tables returns each version's table in append order.
func (c *Chain[T]) Tables() []string {
	out := make([]string, len(c.steps))
	for i, s := range c.steps {
		out[i] = s.table
	}
	return out
}

// Name identifies the chain by its final version.
func (c *Chain[T]) Name() string { return c.steps[len(c.steps)-1].name }

// Prepare creates every version's table on backends that need tables
// created ahead of use.
func (c *Chain[T]) Prepare(ctx context.Context, resolve Resolver) error {
	for _, s := range c.steps {
		b := resolve(s.table)
		if b == nil {
			return noBackend(s.table)
		}
		creator, ok := b.(backend.TableCreator)
		if !ok {
			continue
		}
		if err := creator.CreateTable(ctx, s.table, s.Fields()); err != nil {
			return fmt.Errorf("create table %s: %w", s.table, err)
		}
	}
	return nil
}

// Run migrates every earlier version into T on a single backend.
func (c *Chain[T]) Run(ctx context.Context, b backend.Bulk) error {
	return c.RunWith(ctx, Single(b))
}

// RunWith migrates every row of every earlier version into T, resolving each
// table's backend through resolve.
//
// Versions are visited front to back. Each source table is drained by
// decoding every row as its own version, advancing it through all later
// versions and inserting it into T's table. A drained source table is
// cleared afterwards. When the source and T share a table, rows are left in
// place and nothing is cleared. The first failing row aborts the pass; rows
// already inserted stay inserted and the source table is not cleared, so a
// rerun may insert them again.
func (c *Chain[T]) RunWith(ctx context.Context, resolve Resolver) (err error) {
	pass := PassInfo{RunID: uuid.NewString(), Chain: c.Name(), Versions: len(c.steps)}
	started := time.Now()

	ctx, span := c.opts.tracer.Start(ctx, "migrate.run", trace.WithAttributes(
		attribute.String("tymigrawr.run_id", pass.RunID),
		attribute.String("tymigrawr.chain", pass.Chain),
		attribute.Int("tymigrawr.versions", pass.Versions),
	))
	c.opts.observer.PassStarted(pass)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		c.opts.observer.PassFinished(pass, err, time.Since(started))
	}()

	queue := c.steps
	for len(queue) > 0 {
		source := queue[0]
		queue = queue[1:]
		if len(queue) == 0 {
			break
		}
		if err := c.drain(ctx, pass, source, queue, resolve); err != nil {
			return err
		}
	}
	return nil
}

// drain moves every row of source through rest into the last step's table.
func (c *Chain[T]) drain(ctx context.Context, pass PassInfo, source Step, rest []Step, resolve Resolver) (err error) {
	target := rest[len(rest)-1]
	moves := source.table != target.table

	ctx, span := c.opts.tracer.Start(ctx, "migrate.drain", trace.WithAttributes(
		attribute.String("tymigrawr.source", source.table),
		attribute.String("tymigrawr.target", target.table),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	c.opts.observer.SourceStarted(pass, source.table)

	src := resolve(source.table)
	if src == nil {
		return noBackend(source.table)
	}
	var dst backend.Bulk
	if moves {
		if dst = resolve(target.table); dst == nil {
			return noBackend(target.table)
		}
	}

	rows, err := src.ReadAllValues(ctx, source.table, source.Columns())
	if err != nil {
		return types.BackendIO("read "+source.table, err)
	}
	defer rows.Close()

	n := 0
	for row, rowErr := range rows.All() {
		if rowErr != nil {
			return fmt.Errorf("migrate %s: %w", source.table, rowErr)
		}
		payload, err := source.reconstruct(row)
		if err != nil {
			return types.RowDecode(source.table, err)
		}
		for _, step := range rest {
			payload = step.advance(payload)
		}
		if moves {
			if err := dst.InsertFields(ctx, target.table, target.extract(payload)); err != nil {
				return types.BackendIO(fmt.Sprintf("insert %s into %s", source.table, target.table), err)
			}
		}
		n++
	}
	span.SetAttributes(attribute.Int("tymigrawr.rows", n))
	c.opts.observer.SourceFinished(pass, source.table, target.table, n)

	if !moves {
		return nil
	}
	if err := src.DeleteAll(ctx, source.table); err != nil {
		return types.BackendIO("clear "+source.table, err)
	}
	c.opts.observer.TableCleared(pass, source.table)
	return nil
}

func noBackend(table string) error {
	return types.NewError(types.ErrInvalidInput, "no backend resolves table "+table)
}
