package query

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
)

func TestGroupsInMemory(t *testing.T) {
	db, mock := mockDB(t)
	p := mockOrderPlan(db).GroupBy("Status")

	// Without HAVING the members come from one ungrouped fetch.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t0.* FROM orders t0")).
		WillReturnRows(sqlmock.NewRows(orderCols()).
			AddRow(1, 7, 100.0, "paid", execPlaced).
			AddRow(2, 7, 20.0, "draft", execPlaced).
			AddRow(3, 8, 250.0, "paid", execPlaced))

	groups, err := p.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, []any{"paid"}, groups[0].Key)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, int64(1), groups[0].Items[0].ID)
	assert.Equal(t, int64(3), groups[0].Items[1].ID)

	assert.Equal(t, []any{"draft"}, groups[1].Key)
	require.Len(t, groups[1].Items, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupsWithHavingKeepsFullMemberSets(t *testing.T) {
	db, mock := mockDB(t)
	p := mockOrderPlan(db).
		GroupBy("Status").
		HavingRaw("COUNT(*) > ?", 1)

	// Qualifying keys come from the grouped statement first.
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT t0.status FROM orders t0 GROUP BY t0.status HAVING COUNT(*) > ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("paid"))

	// Then the full filtered set is fetched and regrouped.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t0.* FROM orders t0")).
		WillReturnRows(sqlmock.NewRows(orderCols()).
			AddRow(1, 7, 100.0, "paid", execPlaced).
			AddRow(2, 7, 20.0, "draft", execPlaced).
			AddRow(3, 8, 250.0, "paid", execPlaced))

	groups, err := p.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []any{"paid"}, groups[0].Key)
	require.Len(t, groups[0].Items, 2)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupsCompositeKey(t *testing.T) {
	db, mock := mockDB(t)
	p := mockOrderPlan(db).GroupBy("Status", "CustomerID")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT t0.* FROM orders t0")).
		WillReturnRows(sqlmock.NewRows(orderCols()).
			AddRow(1, 7, 100.0, "paid", execPlaced).
			AddRow(2, 7, 20.0, "draft", execPlaced).
			AddRow(3, 8, 250.0, "paid", execPlaced).
			AddRow(4, 7, 70.0, "paid", execPlaced))

	groups, err := p.Groups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, []any{"paid", int64(7)}, groups[0].Key)
	require.Len(t, groups[0].Items, 2)
	assert.Equal(t, int64(4), groups[0].Items[1].ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupsRequiresGroupBy(t *testing.T) {
	db, _ := mockDB(t)
	_, err := mockOrderPlan(db).Groups(context.Background())
	require.Error(t, err)
	assert.True(t, qerrors.IsPlan(err))
	assert.Contains(t, err.Error(), "no prior GroupBy")
}
