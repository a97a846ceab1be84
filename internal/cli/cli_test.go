package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/strata/internal/demo"
)

// execute runs the full command tree with the given arguments and
// returns the captured output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	root := NewRootCommand()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// migratedDB prepares a migrated database file for the data commands.
func migratedDB(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping CLI test in short mode")
	}
	path := filepath.Join(t.TempDir(), "stratactl_test.db")
	out, err := execute(t, "migrate", "--db", path)
	require.NoError(t, err)
	require.Contains(t, out, "Migrations applied")
	return path
}

func TestRootCommandWiring(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "stratactl", root.Use)

	for _, name := range []string{"tables", "migrate", "query", "sql"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	dbFlag := root.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "strata.db", dbFlag.DefValue)
}

func TestTablesCommand(t *testing.T) {
	out, err := execute(t, "tables")
	require.NoError(t, err)

	assert.Contains(t, out, "Order (table orders)")
	assert.Contains(t, out, "Customer (table customers)")
	assert.Contains(t, out, "[pk,auto]")
	assert.Contains(t, out, "Items")
	assert.Contains(t, out, "many-to-many")
}

func TestQueryCommand(t *testing.T) {
	path := migratedDB(t)

	out, err := execute(t, "query", "Order", "--db", path,
		"--filter", "Total > 40", "--order", "-Total")
	require.NoError(t, err)

	var orders []*demo.Order
	require.NoError(t, json.Unmarshal([]byte(out), &orders))
	require.Len(t, orders, 2)
	assert.InDelta(t, 109.50, orders[0].Total, 1e-9)
	assert.InDelta(t, 42.75, orders[1].Total, 1e-9)
}

func TestQueryCommandIncludes(t *testing.T) {
	path := migratedDB(t)

	out, err := execute(t, "query", "Order", "--db", path,
		"--filter", "ID == 3", "--include", "Customer,Items")
	require.NoError(t, err)

	var orders []*demo.Order
	require.NoError(t, json.Unmarshal([]byte(out), &orders))
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].Customer)
	assert.Equal(t, "Grace Hopper", orders[0].Customer.Name)
	assert.Len(t, orders[0].Items, 3)
}

func TestQueryCommandLimitOffset(t *testing.T) {
	path := migratedDB(t)

	out, err := execute(t, "query", "Order", "--db", path,
		"--order", "Total", "--limit", "2", "--offset", "1")
	require.NoError(t, err)

	var orders []*demo.Order
	require.NoError(t, json.Unmarshal([]byte(out), &orders))
	require.Len(t, orders, 2)
	assert.InDelta(t, 33.50, orders[0].Total, 1e-9)
	assert.InDelta(t, 42.75, orders[1].Total, 1e-9)
}

func TestQueryCommandErrors(t *testing.T) {
	path := migratedDB(t)

	_, err := execute(t, "query", "Widget", "--db", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown entity")

	_, err = execute(t, "query", "Order", "--db", path, "--filter", "Total >")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse filter")

	_, err = execute(t, "query", "Order", "--db", path, "--filter", "Bogus > 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no mapped column")
}

func TestSQLCommand(t *testing.T) {
	path := migratedDB(t)

	out, err := execute(t, "sql", "--db", path,
		"SELECT status, COUNT(*) AS n FROM orders GROUP BY status ORDER BY status")
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "draft", rows[0]["status"])

	_, err = execute(t, "sql", "--db", path, "DELETE FROM orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only SELECT")
}
