package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/sanitize"
	"github.com/nexuscrm/strata/pkg/schema/schematest"
	"github.com/nexuscrm/strata/pkg/translate"
)

// renderFilter parses and then renders against the order table, so the
// cases below pin the full filter-to-SQL path.
func renderFilter(t *testing.T, filter string) string {
	t.Helper()
	e, err := Parse(filter)
	require.NoError(t, err)

	tr := translate.New(schematest.Registry().MustTable("Order"), "t0", sanitize.SQLite)
	sql, err := tr.Translate(e.Node())
	require.NoError(t, err)
	return sql
}

func TestParseRendersSupportedFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   string
	}{
		{
			name:   "comparison",
			filter: `Total > 100`,
			want:   `(t0.total > 100)`,
		},
		{
			name:   "conjunction with contains",
			filter: `Total > 100 && Contains(Status, "pa")`,
			want:   `((t0.total > 100) AND t0.status LIKE '%pa%' ESCAPE '\')`,
		},
		{
			name:   "disjunction",
			filter: `Status == "paid" || Status == "draft"`,
			want:   `((t0.status = 'paid') OR (t0.status = 'draft'))`,
		},
		{
			name:   "word operators",
			filter: `Total >= 10 and Total <= 20 or Status == "void"`,
			want:   `(((t0.total >= 10) AND (t0.total <= 20)) OR (t0.status = 'void'))`,
		},
		{
			name:   "membership",
			filter: `Status in ["paid", "draft"]`,
			want:   `t0.status IN ('paid', 'draft')`,
		},
		{
			name:   "contains operator form",
			filter: `Status contains "ai"`,
			want:   `t0.status LIKE '%ai%' ESCAPE '\'`,
		},
		{
			name:   "starts with operator form",
			filter: `Status startsWith "pa"`,
			want:   `t0.status LIKE 'pa%' ESCAPE '\'`,
		},
		{
			name:   "negation",
			filter: `!(Total >= 10)`,
			want:   `NOT ((t0.total >= 10))`,
		},
		{
			name:   "null comparison",
			filter: `Status == nil`,
			want:   `(t0.status IS NULL)`,
		},
		{
			name:   "null identifier spelling",
			filter: `Status != null`,
			want:   `(t0.status IS NOT NULL)`,
		},
		{
			name:   "arithmetic",
			filter: `Total + 5 > 20`,
			want:   `((t0.total + 5) > 20)`,
		},
		{
			name:   "unary minus",
			filter: `Total > -5`,
			want:   `(t0.total > -(5))`,
		},
		{
			name:   "string length",
			filter: `Length(Status) > 3`,
			want:   `(LENGTH(t0.status) > 3)`,
		},
		{
			name:   "lowercase builtin",
			filter: `upper(Status) == "PAID"`,
			want:   `(UPPER(t0.status) = 'PAID')`,
		},
		{
			name:   "date part",
			filter: `Year(PlacedAt) == 2024`,
			want:   `(CAST(strftime('%Y', t0.placed_at) AS INTEGER) = 2024)`,
		},
		{
			name:   "between",
			filter: `Between(Total, 10, 20)`,
			want:   `t0.total BETWEEN 10 AND 20`,
		},
		{
			name:   "conditional",
			filter: `(Total > 100 ? Status : "small") == "paid"`,
			want:   `(CASE WHEN (t0.total > 100) THEN t0.status ELSE 'small' END = 'paid')`,
		},
		{
			name:   "is null helper",
			filter: `IsNotNull(Status)`,
			want:   `(t0.status IS NOT NULL)`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderFilter(t, tt.filter))
		})
	}
}

func TestParseRejectsUnsupportedConstructs(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		wantIn string
	}{
		{
			name:   "member access",
			filter: `Customer.Name == "x"`,
			wantIn: "Customer.Name",
		},
		{
			name:   "matches operator",
			filter: `Status matches "pa.*"`,
			wantIn: "matches",
		},
		{
			name:   "unknown function",
			filter: `Reverse(Status) == "x"`,
			wantIn: "Reverse",
		},
		{
			name:   "membership needs a literal list",
			filter: `Status in Total`,
			wantIn: "literal list",
		},
		{
			name:   "bare array",
			filter: `[1, 2, 3]`,
			wantIn: "array literal",
		},
		{
			name:   "wrong arity",
			filter: `Contains(Status)`,
			wantIn: "takes 2 argument(s)",
		},
		{
			name:   "map literal",
			filter: `{a: 1}`,
			wantIn: "unsupported construct",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.filter)
			require.Error(t, err)
			assert.True(t, qerrors.IsTranslate(err), "want a translate error, got %v", err)
			assert.Contains(t, err.Error(), tt.wantIn)
		})
	}
}

func TestParseSyntaxErrorSurfaces(t *testing.T) {
	_, err := Parse(`Total >`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse filter")
}

func TestUnknownFieldFailsAtTranslation(t *testing.T) {
	e, err := Parse(`Bogus > 1`)
	require.NoError(t, err, "field names resolve at translation, not parse")

	tr := translate.New(schematest.Registry().MustTable("Order"), "t0", sanitize.SQLite)
	_, err = tr.Translate(e.Node())
	require.Error(t, err)
	assert.True(t, qerrors.IsTranslate(err))
	assert.Contains(t, err.Error(), "no mapped column")
}
