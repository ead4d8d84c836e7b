package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/backend/memory"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/examples/players"
	"github.com/BaSui01/tymigrawr/testutil"
	"github.com/BaSui01/tymigrawr/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()

	primary := config.DefaultBackendConfig("sqlite")
	primary.SQLite.Path = filepath.Join(dir, "primary.db")
	archive := config.DefaultBackendConfig("bolt")
	archive.Bolt.Path = filepath.Join(dir, "archive.bolt")

	cfg.Backends = map[string]config.BackendConfig{
		"primary": primary,
		"archive": archive,
		"scratch": config.DefaultBackendConfig("memory"),
	}
	cfg.Routing = config.RoutingConfig{
		Default: "primary",
		Tables:  map[string]string{"playerv3": "archive"},
	}
	return cfg
}

func TestOpen_RoutesTables(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, err := Open(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, []string{"archive", "primary", "scratch"}, reg.Names())
	assert.Equal(t, "archive", reg.BackendName("playerv3"))
	assert.Equal(t, "primary", reg.BackendName("playerv1"))

	archive, ok := reg.Get("archive")
	require.True(t, ok)
	assert.Same(t, archive, reg.For("playerv3"))
	assert.Same(t, reg.Default(), reg.For("anything_else"))

	require.NoError(t, reg.PingAll(ctx))
}

func TestRegistry_MigratesAcrossBackends(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, err := Open(ctx, testConfig(t), nil)
	require.NoError(t, err)
	defer reg.Close()

	resolve := reg.Resolver()
	fwd := players.Forward()
	require.NoError(t, fwd.Prepare(ctx, resolve))

	v1 := backend.NewTable[players.PlayerV1](reg.For("playerv1"))
	for _, p := range players.Seed(100) {
		require.NoError(t, v1.Insert(ctx, p))
	}

	require.NoError(t, fwd.RunWith(ctx, resolve))

	rows := testutil.MustCollect(t, mustCursor(reg.For("playerv1").ReadAllValues(ctx, "playerv1", nil)))
	assert.Empty(t, rows)

	v3 := testutil.MustCollect(t, mustCursor(backend.NewTable[players.PlayerV3](reg.For("playerv3")).ReadAll(ctx)))
	require.Len(t, v3, 100)
	assert.Equal(t, "0 years old", v3[42].Description)

	// playerv3 只存在于 archive
	_, err = reg.For("playerv1").ReadAllValues(ctx, "playerv3", nil)
	assert.Error(t, err, "sqlite has no playerv3 table")

	require.NoError(t, players.Backward().RunWith(ctx, resolve))
	back := testutil.MustCollect(t, mustCursor(v1.ReadAll(ctx)))
	assert.Equal(t, players.Seed(100), back)
}

func TestNew_RejectsUnknownRoutes(t *testing.T) {
	backends := map[string]backend.Driver{"mem": memory.New(nil)}

	_, err := New(backends, config.RoutingConfig{Default: "nope"}, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))

	_, err = New(backends, config.RoutingConfig{Default: "mem", Tables: map[string]string{"t": "nope"}}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `routes to undefined backend "nope"`)
}

func TestOpen_FailureReportsBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backends = map[string]config.BackendConfig{
		"a": config.DefaultBackendConfig("memory"),
		"b": {Type: "bolt"},
	}
	cfg.Routing.Default = "a"

	_, err := Open(testutil.TestContext(t), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `open backend "b"`)
}

func TestOpenBackend_UnknownType(t *testing.T) {
	_, err := OpenBackend(testutil.TestContext(t), config.BackendConfig{Type: "cassandra"}, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

func TestRegistry_PingAllCollectsFailures(t *testing.T) {
	a, b := memory.New(nil), memory.New(nil)
	reg, err := New(map[string]backend.Driver{"a": a, "b": b}, config.RoutingConfig{Default: "a"}, nil)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())

	err = reg.PingAll(testutil.TestContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `ping backend "a"`)
	assert.Contains(t, err.Error(), `ping backend "b"`)
	assert.ErrorIs(t, err, backend.ErrClosed)
}

func mustCursor[T any](c *backend.Cursor[T], err error) *backend.Cursor[T] {
	if err != nil {
		panic(err)
	}
	return c
}
