package sqlguard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAcceptsSelects(t *testing.T) {
	g := New()

	tests := []struct {
		name string
		sql  string
	}{
		{"plain select", "SELECT id, total FROM orders WHERE status = 'paid'"},
		{"lowercase", "select 1"},
		{"aggregate", "SELECT status, COUNT(*) FROM orders GROUP BY status HAVING COUNT(*) > 1"},
		{"join", "SELECT o.id FROM orders o JOIN customers c ON c.id = o.customer_id"},
		{"union", "SELECT id FROM orders UNION SELECT id FROM customers"},
		{"subquery", "SELECT id FROM orders WHERE customer_id IN (SELECT id FROM customers)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			restored, err := g.Check(tt.sql)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(restored, "SELECT"), "restored: %s", restored)
		})
	}
}

func TestCheckRestoresFromParseTree(t *testing.T) {
	g := New()

	restored, err := g.Check("SELECT id FROM orders /* sneak */ -- trailing")
	require.NoError(t, err)
	assert.NotContains(t, restored, "sneak")
	assert.NotContains(t, restored, "trailing")
	assert.Contains(t, restored, "orders")
}

func TestCheckRejectsNonSelects(t *testing.T) {
	g := New()

	tests := []struct {
		name   string
		sql    string
		wantIn string
	}{
		{"delete", "DELETE FROM orders", "only SELECT"},
		{"update", "UPDATE orders SET total = 0", "only SELECT"},
		{"insert", "INSERT INTO orders (id) VALUES (1)", "only SELECT"},
		{"drop", "DROP TABLE orders", "only SELECT"},
		{"multi statement", "SELECT 1; SELECT 2", "one statement"},
		{"piggybacked write", "SELECT 1; DELETE FROM orders", "one statement"},
		{"locking read", "SELECT * FROM orders FOR UPDATE", "locking reads"},
		{"syntax error", "SELEC 1", "parse statement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Check(tt.sql)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantIn)
		})
	}
}

func TestCheckIsSafeForConcurrentUse(t *testing.T) {
	g := New()
	done := make(chan error, 8)

	for i := 0; i < 8; i++ {
		go func() {
			var err error
			for j := 0; j < 50; j++ {
				if _, err = g.Check("SELECT id FROM orders WHERE total > 5"); err != nil {
					break
				}
			}
			done <- err
		}()
	}

	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}
