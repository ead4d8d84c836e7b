package tymigrawr

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/tymigrawr/backend"
	"github.com/BaSui01/tymigrawr/config"
	"github.com/BaSui01/tymigrawr/examples/players"
	"github.com/BaSui01/tymigrawr/testutil"
	"github.com/BaSui01/tymigrawr/types"
)

func TestOpen_Defaults(t *testing.T) {
	ctx := testutil.TestContext(t)
	reg, err := Open(ctx, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, []string{config.DefaultBackendName}, reg.Names())
	require.NoError(t, reg.PingAll(ctx))
}

func TestOpen_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tymigrawr.yaml")
	yaml := "backends:\n  main:\n    type: bolt\n    bolt:\n      path: " + filepath.Join(dir, "main.bolt") +
		"\nrouting:\n  default: main\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	ctx := testutil.TestContext(t)
	reg, err := Open(ctx, path, nil)
	require.NoError(t, err)
	defer reg.Close()

	fwd := players.Forward()
	require.NoError(t, fwd.Prepare(ctx, reg.Resolver()))
	v1 := backend.NewTable[players.PlayerV1](reg.Default())
	for _, p := range players.Seed(4) {
		require.NoError(t, v1.Insert(ctx, p))
	}
	require.NoError(t, fwd.RunWith(ctx, reg.Resolver()))

	cur, err := backend.NewTable[players.PlayerV3](reg.Default()).ReadAll(ctx)
	require.NoError(t, err)
	got := testutil.MustCollect(t, cur)
	assert.Len(t, got, 4)
}

func TestOpenConfig_Invalid(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Routing.Default = "nowhere"

	_, err := OpenConfig(testutil.TestContext(t), cfg, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidInput))
}

func TestNewMemory(t *testing.T) {
	ctx := testutil.TestContext(t)
	d := NewMemory()
	require.NoError(t, d.InsertFields(ctx, "t", FieldMap{"id": types.Integer(1)}))

	cur, err := d.ReadAllValues(ctx, "t", nil)
	require.NoError(t, err)
	rows := testutil.MustCollect(t, cur)
	require.Len(t, rows, 1)
	assert.Equal(t, Value(types.Integer(1)), rows[0]["id"])
}
