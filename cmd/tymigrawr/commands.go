package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/examples/players"
)

// =============================================================================
// 🏥 ping 命令
// =============================================================================

func runPing(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("ping", out)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	failed := 0
	for _, name := range a.registry.Names() {
		d, _ := a.registry.Get(name)
		start := time.Now()
		err := d.Ping(ctx)
		a.collector.RecordBackendOp(name, "ping", err, time.Since(start))
		if err != nil {
			failed++
			fmt.Fprintf(out, "%-12s FAIL  %v\n", name, err)
			continue
		}
		fmt.Fprintf(out, "%-12s OK\n", name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d backends unreachable", failed, len(a.registry.Names()))
	}
	return nil
}

// =============================================================================
// 🎮 demo 命令
// =============================================================================

func runDemo(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		fmt.Fprintln(out, "Usage: tymigrawr demo <seed|forward|backward|dump> [options]")
		return errUsage
	}
	sub := args[0]

	fs, configPath := newFlagSet("demo "+sub, out)
	n := fs.Int("n", 10, "Number of players to seed")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}

	switch sub {
	case "seed", "forward", "backward", "dump":
	default:
		fmt.Fprintf(out, "Unknown demo subcommand: %s\n", sub)
		return errUsage
	}

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	resolve := a.registry.Resolver()
	// 正反两条链覆盖同样的三张表
	if err := players.Forward().Prepare(ctx, resolve); err != nil {
		return err
	}

	switch sub {
	case "seed":
		return demoSeed(ctx, a, *n, out)
	case "forward":
		chain := players.Forward(a.chainOptions()...)
		if err := chain.RunWith(ctx, resolve); err != nil {
			return err
		}
		fmt.Fprintf(out, "migrated players to %s\n", chain.Name())
	case "backward":
		chain := players.Backward(a.chainOptions()...)
		if err := chain.RunWith(ctx, resolve); err != nil {
			return err
		}
		fmt.Fprintf(out, "migrated players to %s\n", chain.Name())
	case "dump":
		return demoDump(ctx, a, out)
	}
	return nil
}

func demoSeed(ctx context.Context, a *app, n int, out io.Writer) error {
	table := backend.NewTable[players.PlayerV1](a.registry.For("playerv1"))
	for _, p := range players.Seed(n) {
		if err := table.Insert(ctx, p); err != nil {
			return fmt.Errorf("seed player %d: %w", p.ID, err)
		}
	}
	a.logger.Info("seeded players", zap.Int("count", n), zap.String("backend", a.registry.BackendName(table.Name())))
	fmt.Fprintf(out, "seeded %d players into %s\n", n, table.Name())
	return nil
}

// demoDump 以 JSON Lines 输出三张表，每行带表名
func demoDump(ctx context.Context, a *app, out io.Writer) error {
	enc := json.NewEncoder(out)
	for _, table := range players.Forward().Tables() {
		rows, err := a.registry.For(table).ReadAllValues(ctx, table, nil)
		if err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
		count := 0
		for row, err := range rows.All() {
			if err != nil {
				rows.Close()
				return fmt.Errorf("read %s: %w", table, err)
			}
			if err := enc.Encode(map[string]any{"table": table, "row": row}); err != nil {
				rows.Close()
				return err
			}
			count++
		}
		rows.Close()
		fmt.Fprintf(out, "# %s: %d rows on %s\n", table, count, a.registry.BackendName(table))
	}
	return nil
}

// =============================================================================
// 🧹 clear 命令
// =============================================================================

func runClear(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("clear", out)
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(out, "Usage: tymigrawr clear [--config <path>] <table>")
		return errUsage
	}
	table := fs.Arg(0)

	a, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	name := a.registry.BackendName(table)
	start := time.Now()
	err = a.registry.For(table).DeleteAll(ctx, table)
	a.collector.RecordBackendOp(name, "delete_all", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	fmt.Fprintf(out, "cleared %s on %s\n", table, name)
	return nil
}
