package query

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/sanitize"
	"github.com/nexuscrm/strata/pkg/schema/schematest"
)

var testReg = schematest.Registry()

func orderPlan(d sanitize.Dialect) *Plan[schematest.Order] {
	return NewPlan[schematest.Order](nil, testReg, testReg.MustTable("Order"), d)
}

func customerPlan(d sanitize.Dialect) *Plan[schematest.Customer] {
	return NewPlan[schematest.Customer](nil, testReg, testReg.MustTable("Customer"), d)
}

func mustSQL(t *testing.T, sub Subquery) (string, []any) {
	t.Helper()
	q, args, err := sub.SQL()
	require.NoError(t, err)
	return q, args
}

func TestRenderBareSelect(t *testing.T) {
	q, args := mustSQL(t, orderPlan(sanitize.SQLite))
	assert.Equal(t, "SELECT t0.* FROM orders t0", q)
	assert.Empty(t, args)
}

func TestRenderClauseOrder(t *testing.T) {
	p := orderPlan(sanitize.SQLite).
		Include("Customer").
		Where(ast.Col("Total").Gt(100)).
		Where(ast.Col("Status").Eq("paid")).
		OrderByDesc("Total").
		ThenBy("ID").
		Skip(10).
		Take(5).
		Distinct()

	q, args := mustSQL(t, p)
	assert.Equal(t,
		"SELECT DISTINCT t0.*, t1.id AS t1_id, t1.name AS t1_name, t1.email AS t1_email, t1.age AS t1_age "+
			"FROM orders t0 "+
			"LEFT JOIN customers t1 ON t0.customer_id = t1.id "+
			"WHERE (t0.total > 100) AND (t0.status = 'paid') "+
			"ORDER BY t0.total DESC, t0.id "+
			"LIMIT 5 OFFSET 10",
		q)
	assert.Empty(t, args)
}

func TestRenderCollectionIncludeStaysOut(t *testing.T) {
	// Inverse collections hydrate separately; the primary statement
	// must not join or select them.
	p := customerPlan(sanitize.SQLite).Include("Orders")
	q, _ := mustSQL(t, p)
	assert.Equal(t, "SELECT t0.* FROM customers t0", q)
}

func TestRenderGroupHaving(t *testing.T) {
	p := orderPlan(sanitize.SQLite).
		GroupBy("Status").
		HavingRaw("COUNT(*) > ?", 2)

	q, args := mustSQL(t, p)
	assert.Equal(t, "SELECT t0.* FROM orders t0 GROUP BY t0.status HAVING COUNT(*) > ?", q)
	assert.Equal(t, []any{2}, args)
}

func TestRenderWindowAugmentsSelect(t *testing.T) {
	p := orderPlan(sanitize.SQLite).
		Window("rn", "ROW_NUMBER()", []string{"Status"}, Sort{Field: "Total", Desc: true})

	q, _ := mustSQL(t, p)
	assert.Equal(t,
		"SELECT t0.*, ROW_NUMBER() OVER (PARTITION BY t0.status ORDER BY t0.total DESC) AS rn FROM orders t0",
		q)
}

func TestRenderCustomSelectOverrides(t *testing.T) {
	p := orderPlan(sanitize.SQLite).
		SelectRaw("t0.status").
		SelectRaw("COUNT(*) AS n").
		GroupBy("Status")

	q, _ := mustSQL(t, p)
	assert.Equal(t, "SELECT t0.status, COUNT(*) AS n FROM orders t0 GROUP BY t0.status", q)
}

func TestRenderCTE(t *testing.T) {
	p := orderPlan(sanitize.SQLite).
		With("recent", Raw("SELECT id FROM orders WHERE placed_at > ?", "2024-01-01")).
		WhereRaw("t0.id IN (SELECT id FROM recent)")

	q, args := mustSQL(t, p)
	assert.Equal(t,
		"WITH recent AS (SELECT id FROM orders WHERE placed_at > ?) "+
			"SELECT t0.* FROM orders t0 WHERE t0.id IN (SELECT id FROM recent)",
		q)
	assert.Equal(t, []any{"2024-01-01"}, args)
}

func TestRenderSubqueryPredicates(t *testing.T) {
	sub := customerPlan(sanitize.SQLite).
		SelectRaw("t0.id").
		Where(ast.Col("Age").Ge(30))

	p := orderPlan(sanitize.SQLite).
		WhereInQuery("CustomerID", sub).
		WhereNotInRaw("Status", "'void', 'failed'").
		WhereExists(Raw("SELECT 1 FROM order_items i WHERE i.order_id = t0.id"))

	q, args := mustSQL(t, p)
	assert.Equal(t,
		"SELECT t0.* FROM orders t0 WHERE "+
			"t0.customer_id IN (SELECT t0.id FROM customers t0 WHERE (t0.age >= 30)) AND "+
			"t0.status NOT IN ('void', 'failed') AND "+
			"EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = t0.id)",
		q)
	assert.Empty(t, args)
}

func TestRenderOffsetWithoutLimit(t *testing.T) {
	sq, _ := mustSQL(t, orderPlan(sanitize.SQLite).Skip(3))
	assert.Equal(t, "SELECT t0.* FROM orders t0 LIMIT -1 OFFSET 3", sq)

	mq, _ := mustSQL(t, orderPlan(sanitize.MySQL).Skip(3))
	assert.Equal(t, "SELECT t0.* FROM orders t0 LIMIT 18446744073709551615 OFFSET 3", mq)
}

func TestCompileMemoized(t *testing.T) {
	p := orderPlan(sanitize.SQLite).Where(ast.Col("Total").Gt(10))

	first, err := p.Compile()
	require.NoError(t, err)
	second, err := p.Compile()
	require.NoError(t, err)
	assert.Same(t, first, second)

	p.Where(ast.Col("Status").Eq("paid"))
	third, err := p.Compile()
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.NotEqual(t, first.Query, third.Query)
	assert.Contains(t, third.Query, "AND (t0.status = 'paid')")
}

func TestPlanGuards(t *testing.T) {
	cases := []struct {
		name    string
		build   func() error
		isPlan  bool
		message string
	}{
		{
			name:    "then by without order by",
			build:   func() error { return orderPlan(sanitize.SQLite).ThenBy("Total").Err() },
			isPlan:  true,
			message: "no prior OrderBy",
		},
		{
			name:    "having without group by",
			build:   func() error { return orderPlan(sanitize.SQLite).Having(ast.Col("Total").Gt(1)).Err() },
			isPlan:  true,
			message: "no prior GroupBy",
		},
		{
			name:    "having raw without group by",
			build:   func() error { return orderPlan(sanitize.SQLite).HavingRaw("COUNT(*) > 1").Err() },
			isPlan:  true,
			message: "no prior GroupBy",
		},
		{
			name:    "then include without include",
			build:   func() error { return orderPlan(sanitize.SQLite).ThenInclude("Items").Err() },
			isPlan:  true,
			message: "no prior Include",
		},
		{
			name:    "negative skip",
			build:   func() error { return orderPlan(sanitize.SQLite).Skip(-1).Err() },
			isPlan:  true,
			message: "negative offset",
		},
		{
			name:    "negative take",
			build:   func() error { return orderPlan(sanitize.SQLite).Take(-1).Err() },
			isPlan:  true,
			message: "negative limit",
		},
		{
			name:    "empty group by",
			build:   func() error { return orderPlan(sanitize.SQLite).GroupBy().Err() },
			isPlan:  true,
			message: "no fields",
		},
		{
			name:    "window without alias",
			build:   func() error { return orderPlan(sanitize.SQLite).Window("", "RANK()", nil).Err() },
			isPlan:  true,
			message: "alias and function required",
		},
		{
			name:    "order by unknown field",
			build:   func() error { return orderPlan(sanitize.SQLite).OrderBy("Nope").Err() },
			isPlan:  false,
			message: "no mapped column",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.build()
			require.Error(t, err)
			if tc.isPlan {
				assert.True(t, qerrors.IsPlan(err))
			} else {
				assert.True(t, qerrors.IsTranslate(err))
			}
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestIncludeFailsBeforeRender(t *testing.T) {
	unknown := orderPlan(sanitize.SQLite).Include("Nope").Err()
	require.Error(t, unknown)
	assert.True(t, qerrors.IsSchema(unknown))

	dup := orderPlan(sanitize.SQLite).Include("Customer").Include("Customer").Err()
	require.Error(t, dup)
	assert.True(t, qerrors.IsNavigation(dup))

	cycle := orderPlan(sanitize.SQLite).Include("Customer").ThenInclude("Orders").Err()
	require.Error(t, cycle)
	assert.True(t, qerrors.IsNavigation(cycle))

	deep := orderPlan(sanitize.SQLite).MaxIncludeDepth(1).Include("Items.Product").Err()
	require.Error(t, deep)
	assert.True(t, qerrors.IsNavigation(deep))
}

func TestThenIncludeExtendsLastPath(t *testing.T) {
	p := orderPlan(sanitize.SQLite).Include("Items").ThenInclude("Product")
	require.NoError(t, p.Err())

	q, _ := mustSQL(t, p)
	// Items is a collection, so the chain lives in its follow-up
	// statement, not the primary one.
	assert.Equal(t, "SELECT t0.* FROM orders t0", q)
	require.NotNil(t, p.nav)
	require.Len(t, p.nav.Collections(), 1)
	sub := p.nav.Collections()[0]
	assert.Equal(t, []string{"LEFT JOIN products t2 ON t1.product_id = t2.id"}, sub.SubJoinClauses())
}

func TestErrorSticksAcrossCalls(t *testing.T) {
	p := orderPlan(sanitize.SQLite).
		ThenBy("Total").
		Where(ast.Col("Status").Eq("paid")).
		Take(1)

	_, err := p.Compile()
	require.Error(t, err)
	assert.True(t, qerrors.IsPlan(err))
	assert.Contains(t, err.Error(), "no prior OrderBy")
}

func TestRenderGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	kitchen := orderPlan(sanitize.SQLite).
		With("recent", Raw("SELECT id FROM orders WHERE placed_at > ?", "2024-01-01")).
		Include("Customer").
		Include("Items.Product").
		Window("rn", "ROW_NUMBER()", []string{"Status"}, Sort{Field: "Total", Desc: true}).
		Where(ast.Col("Total").Gt(100)).
		WhereRaw("t0.id IN (SELECT id FROM recent)").
		JoinRaw("JOIN customers c2 ON c2.id = t0.customer_id").
		GroupBy("Status").
		HavingRaw("SUM(t0.total) > ?", 50).
		OrderBy("Status").
		ThenByDesc("Total").
		Skip(2).
		Take(10)
	q, _ := mustSQL(t, kitchen)
	g.Assert(t, "kitchen_sink", []byte(q))

	paid := orderPlan(sanitize.SQLite).Where(ast.Col("Status").Eq("paid"))
	draft := orderPlan(sanitize.SQLite).Where(ast.Col("Status").Eq("draft"))
	set := paid.Union(draft).UnionAll(Raw("SELECT * FROM orders WHERE total = 0"))
	q, _ = mustSQL(t, set)
	g.Assert(t, "set_operations", []byte(q))

	seq := orderPlan(sanitize.SQLite).
		WithRecursive("seq", Raw("SELECT 1 AS n UNION ALL SELECT n + 1 FROM seq WHERE n < 10")).
		FromRaw("seq t0").
		Take(5)
	q, _ = mustSQL(t, seq)
	g.Assert(t, "recursive_cte", []byte(q))
}

// Compiled statements and frozen registries may be shared; this pins
// the former's independence from later plan mutation.
func TestCompiledDetachedFromPlan(t *testing.T) {
	p := orderPlan(sanitize.SQLite).Where(ast.Col("Total").Gt(10))
	c, err := p.Compile()
	require.NoError(t, err)
	was := c.Query

	p.Take(1)
	assert.Equal(t, was, c.Query)
	assert.Equal(t, "orders", p.Table().Name)
}
