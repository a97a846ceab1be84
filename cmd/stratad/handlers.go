package main

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/strata/internal/auth"
	"github.com/nexuscrm/strata/internal/demo"
	"github.com/nexuscrm/strata/pkg/ast"
	qerrors "github.com/nexuscrm/strata/pkg/errors"
	"github.com/nexuscrm/strata/pkg/expression"
	"github.com/nexuscrm/strata/pkg/query"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      gin.H  `json:"user"`
}

// handleLogin handles POST /auth/login
func (s *server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.users.Query().Where(ast.Col("Email").Eq(req.Email)).First(c.Request.Context())
	if errors.Is(err, sql.ErrNoRows) {
		respondError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		respondQueryError(c, err)
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		respondError(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expires, err := auth.GenerateToken(s.secret, user.ID, user.Email, 24*time.Hour)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "could not issue token")
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expires.Format(time.RFC3339),
		User:      gin.H{"id": user.ID, "name": user.Name, "email": user.Email},
	})
}

// handleListOrders handles GET /api/orders
//
// Query parameters: filter (expression string), include (comma-separated
// navigation paths), order (comma-separated fields, "-" prefix for
// descending), limit, offset.
func (s *server) handleListOrders(c *gin.Context) {
	plan := s.orders.Query()
	if !applyListParams(c, plan) {
		return
	}
	items, err := plan.All(c.Request.Context())
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "count": len(items)})
}

// handleGetOrder handles GET /api/orders/:id
func (s *server) handleGetOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid order id")
		return
	}

	plan := s.orders.Query().Where(ast.Col("ID").Eq(id))
	for _, path := range splitParam(c.Query("include")) {
		plan.Include(path)
	}

	order, err := plan.First(c.Request.Context())
	if errors.Is(err, sql.ErrNoRows) {
		respondError(c, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

// handleOrderGroups handles GET /api/orders/groups
//
// Groups the filtered set by the fields named in "by" and returns the
// full member list per group.
func (s *server) handleOrderGroups(c *gin.Context) {
	fields := splitParam(c.Query("by"))
	if len(fields) == 0 {
		respondError(c, http.StatusBadRequest, "by parameter is required")
		return
	}

	plan := s.orders.Query().GroupBy(fields...)
	if f := c.Query("filter"); f != "" {
		pred, err := expression.Parse(f)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		plan.Where(pred)
	}

	groups, err := plan.Groups(c.Request.Context())
	if err != nil {
		respondQueryError(c, err)
		return
	}

	out := make([]gin.H, len(groups))
	for i, g := range groups {
		out[i] = gin.H{"key": g.Key, "count": len(g.Items), "items": g.Items}
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

// handleOrderStats handles GET /api/orders/stats
//
// Each aggregate runs its own statement, so the plan is rebuilt per
// call rather than reused.
func (s *server) handleOrderStats(c *gin.Context) {
	var pred ast.Expr
	if f := c.Query("filter"); f != "" {
		p, err := expression.Parse(f)
		if err != nil {
			respondQueryError(c, err)
			return
		}
		pred = p
	}

	base := func() *query.Plan[demo.Order] {
		plan := s.orders.Query()
		if pred.Node() != nil {
			plan.Where(pred)
		}
		return plan
	}

	ctx := c.Request.Context()
	count, err := base().Count(ctx)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	sum, err := base().Sum(ctx, "Total")
	if err != nil {
		respondQueryError(c, err)
		return
	}
	avg, err := base().Avg(ctx, "Total")
	if err != nil {
		respondQueryError(c, err)
		return
	}
	minTotal, err := base().Min(ctx, "Total")
	if err != nil {
		respondQueryError(c, err)
		return
	}
	maxTotal, err := base().Max(ctx, "Total")
	if err != nil {
		respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"count": count,
			"total": gin.H{
				"sum": sum,
				"avg": avg,
				"min": normalizeValue(minTotal),
				"max": normalizeValue(maxTotal),
			},
		},
	})
}

// handleListCustomers handles GET /api/customers
func (s *server) handleListCustomers(c *gin.Context) {
	plan := s.customers.Query()
	if !applyListParams(c, plan) {
		return
	}
	items, err := plan.All(c.Request.Context())
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items, "count": len(items)})
}

type sqlRequest struct {
	Query string `json:"query" binding:"required"`
}

// handleSQL handles POST /api/sql
//
// The statement is parsed and vetted first; only the restored text of a
// single plain SELECT reaches the database.
func (s *server) handleSQL(c *gin.Context) {
	var req sqlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	restored, err := s.guard.Check(req.Query)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.db.QueryContext(c.Request.Context(), restored)
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	defer rows.Close()

	results, err := rowsToMaps(rows)
	if err != nil {
		respondQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
}

// applyListParams applies the shared list query parameters to a plan.
// On a bad parameter it writes the error response and returns false,
// like BindJSON.
func applyListParams[T any](c *gin.Context, plan *query.Plan[T]) bool {
	if f := c.Query("filter"); f != "" {
		pred, err := expression.Parse(f)
		if err != nil {
			respondQueryError(c, err)
			return false
		}
		plan.Where(pred)
	}

	for _, path := range splitParam(c.Query("include")) {
		plan.Include(path)
	}

	for i, field := range splitParam(c.Query("order")) {
		desc := strings.HasPrefix(field, "-")
		field = strings.TrimPrefix(field, "-")
		switch {
		case i == 0 && desc:
			plan.OrderByDesc(field)
		case i == 0:
			plan.OrderBy(field)
		case desc:
			plan.ThenByDesc(field)
		default:
			plan.ThenBy(field)
		}
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "invalid limit")
			return false
		}
		plan.Take(n)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "invalid offset")
			return false
		}
		plan.Skip(n)
	}
	return true
}

// splitParam splits a comma-separated query parameter, dropping empty
// entries.
func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// respondQueryError maps query building errors to 400 and everything
// else to 500, in the standard error envelope.
func respondQueryError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if qerrors.IsTranslate(err) || qerrors.IsPlan(err) || qerrors.IsNavigation(err) || qerrors.IsSchema(err) {
		status = http.StatusBadRequest
	}
	if status >= 500 {
		log.Printf("ERROR [%d] %s %s: %v", status, c.Request.Method, c.Request.URL.Path, err)
	}

	c.JSON(status, gin.H{
		"error":   err.Error(),
		"message": err.Error(),
		"code":    qerrors.GetCode(err),
		"data":    nil,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error":   message,
		"message": message,
		"data":    nil,
	})
}

// rowsToMaps drains a result set into column-keyed maps. Text columns
// come back from the driver as byte slices and would JSON-encode as
// base64, so they normalize to strings.
func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		holders := make([]any, len(cols))
		for i := range holders {
			var v any
			holders[i] = &v
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, name := range cols {
			row[name] = normalizeValue(*(holders[i].(*any)))
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
