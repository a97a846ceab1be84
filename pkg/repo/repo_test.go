package repo

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/sanitize"
	"github.com/nexuscrm/strata/pkg/schema"
	"github.com/nexuscrm/strata/pkg/schema/schematest"
	"github.com/nexuscrm/strata/pkg/store"
)

var repoPlaced = time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)

func mockOrderRepo(t *testing.T) (*Repository[schematest.Order], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r, err := New[schematest.Order](db, schematest.Registry(), "Order", sanitize.SQLite)
	require.NoError(t, err)
	return r, mock
}

// note is a text-keyed entity for exercising UUID key defaulting; the
// shared fixture uses auto-increment keys throughout.
type note struct {
	ID   string
	Body string
}

func noteRegistry() *schema.Registry {
	r := schema.NewRegistry()
	r.MustRegister(schema.NewTable[note]("Note", "notes").
		Column("ID", "id", func(n *note) any { return &n.ID }, schema.PrimaryKey()).
		Column("Body", "body", func(n *note) any { return &n.Body }).
		Build())
	if err := r.Freeze(); err != nil {
		panic(err)
	}
	return r
}

func TestNewValidatesDescriptor(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = New[schematest.Order](db, schematest.Registry(), "Nope", sanitize.SQLite)
	require.Error(t, err)
	assert.True(t, qerrors.IsSchema(err))

	_, err = New[schematest.Customer](db, schematest.Registry(), "Order", sanitize.SQLite)
	require.Error(t, err)
	assert.True(t, qerrors.IsSchema(err))
	assert.Contains(t, err.Error(), "descriptor builds")
}

func TestInsertBindsColumnsAndBacksfillsKey(t *testing.T) {
	r, mock := mockOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO orders (customer_id, total, status, placed_at) VALUES (?, ?, ?, ?)")).
		WithArgs(int64(7), 99.5, "paid", repoPlaced).
		WillReturnResult(sqlmock.NewResult(42, 1))

	o := &schematest.Order{CustomerID: 7, Total: 99.5, Status: "paid", PlacedAt: repoPlaced}
	require.NoError(t, r.Insert(context.Background(), o))

	assert.Equal(t, int64(42), o.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDefaultsTextKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r, err := New[note](db, noteRegistry(), "Note", sanitize.SQLite)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notes (id, body) VALUES (?, ?)")).
		WithArgs(sqlmock.AnyArg(), "hello").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n := &note{Body: "hello"}
	require.NoError(t, r.Insert(context.Background(), n))
	_, err = uuid.Parse(n.ID)
	assert.NoError(t, err, "empty key should have been defaulted to a UUID")

	// A caller-provided key is kept as-is.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notes (id, body) VALUES (?, ?)")).
		WithArgs("fixed", "again").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n2 := &note{ID: "fixed", Body: "again"}
	require.NoError(t, r.Insert(context.Background(), n2))
	assert.Equal(t, "fixed", n2.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertManyWritesOneBatch(t *testing.T) {
	r, mock := mockOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO orders (customer_id, total, status, placed_at) VALUES (?, ?, ?, ?), (?, ?, ?, ?)")).
		WithArgs(
			int64(1), 10.0, "draft", repoPlaced,
			int64(2), 20.0, "paid", repoPlaced,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := r.InsertMany(context.Background(), []*schematest.Order{
		{CustomerID: 1, Total: 10, Status: "draft", PlacedAt: repoPlaced},
		{CustomerID: 2, Total: 20, Status: "paid", PlacedAt: repoPlaced},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	// No rows, no statement.
	require.NoError(t, r.InsertMany(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRewritesRowByKey(t *testing.T) {
	r, mock := mockOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE orders SET customer_id = ?, total = ?, status = ?, placed_at = ? WHERE id = ?")).
		WithArgs(int64(7), 120.0, "paid", repoPlaced, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	o := &schematest.Order{ID: 42, CustomerID: 7, Total: 120, Status: "paid", PlacedAt: repoPlaced}
	require.NoError(t, r.Update(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRequiresKey(t *testing.T) {
	r, mock := mockOrderRepo(t)

	err := r.Update(context.Background(), &schematest.Order{Total: 5})
	require.Error(t, err)
	assert.True(t, qerrors.IsSchema(err))
	assert.Contains(t, err.Error(), "primary key not set")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldsRendersExpressions(t *testing.T) {
	r, mock := mockOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE orders SET total = (total * 1.1), status = 'void' WHERE id = ?")).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := r.UpdateFields(context.Background(), int64(42),
		ast.Set("Total", ast.Col("Total").Mul(1.1)),
		ast.Set("Status", "void"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateFieldsRejectsUnknownField(t *testing.T) {
	r, mock := mockOrderRepo(t)

	_, err := r.UpdateFields(context.Background(), int64(1), ast.Set("Nope", 1))
	require.Error(t, err)
	assert.True(t, qerrors.IsTranslate(err))
	assert.Contains(t, err.Error(), "no mapped column")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByKey(t *testing.T) {
	r, mock := mockOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE id = ?")).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, r.Delete(context.Background(), int64(42)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteWhereReportsAffectedRows(t *testing.T) {
	r, mock := mockOrderRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE (status = 'draft')")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := r.DeleteWhere(context.Background(), ast.Col("Status").Eq("draft"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadByID(t *testing.T) {
	r, mock := mockOrderRepo(t)
	cols := []string{"id", "customer_id", "total", "status", "placed_at"}

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, customer_id, total, status, placed_at FROM orders WHERE id = ? LIMIT 1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(42), int64(7), 99.5, "paid", repoPlaced))

	o, err := r.ReadByID(context.Background(), int64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), o.ID)
	assert.Equal(t, int64(7), o.CustomerID)
	assert.Equal(t, 99.5, o.Total)
	assert.Equal(t, "paid", o.Status)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, customer_id, total, status, placed_at FROM orders WHERE id = ? LIMIT 1")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err = r.ReadByID(context.Background(), int64(9))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExistsAndCount(t *testing.T) {
	r, mock := mockOrderRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := r.Exists(context.Background(), int64(1))
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM orders WHERE id = ?)")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	ok, err = r.Exists(context.Background(), int64(9))
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM orders")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))
	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryOpensPlanOverTable(t *testing.T) {
	r, _ := mockOrderRepo(t)

	c, err := r.Query().Where(ast.Col("Total").Gt(100)).Compile()
	require.NoError(t, err)
	assert.Equal(t, "SELECT t0.* FROM orders t0 WHERE (t0.total > 100)", c.Query)
}

func TestRepositoryRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live database test in short mode")
	}

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "repo_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL,
		total REAL NOT NULL,
		status TEXT NOT NULL,
		placed_at DATETIME NOT NULL
	)`)
	require.NoError(t, err)

	r := MustNew[schematest.Order](db, schematest.Registry(), "Order", db.Dialect())

	first := &schematest.Order{CustomerID: 1, Total: 10, Status: "draft", PlacedAt: repoPlaced}
	require.NoError(t, r.Insert(ctx, first))
	require.NotZero(t, first.ID, "generated key should be read back")

	require.NoError(t, r.InsertMany(ctx, []*schematest.Order{
		{CustomerID: 1, Total: 25, Status: "paid", PlacedAt: repoPlaced},
		{CustomerID: 2, Total: 40, Status: "paid", PlacedAt: repoPlaced},
	}))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := r.ReadByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "draft", got.Status)
	assert.WithinDuration(t, repoPlaced, got.PlacedAt, time.Second)

	affected, err := r.UpdateFields(ctx, first.ID, ast.Set("Total", ast.Col("Total").Add(5)))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	got, err = r.ReadByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 15.0, got.Total)

	got.Status = "paid"
	require.NoError(t, r.Update(ctx, got))

	paid, err := r.Query().
		Where(ast.Col("Status").Eq("paid")).
		OrderBy("Total").
		All(ctx)
	require.NoError(t, err)
	require.Len(t, paid, 3)
	assert.Equal(t, 15.0, paid[0].Total)
	assert.Equal(t, 40.0, paid[2].Total)

	removed, err := r.DeleteWhere(ctx, ast.Col("Total").Gt(20))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	ok, err := r.Exists(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.Delete(ctx, first.ID))
	ok, err = r.Exists(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}
