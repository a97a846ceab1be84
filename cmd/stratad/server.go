package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexuscrm/strata/internal/auth"
	"github.com/nexuscrm/strata/internal/demo"
	"github.com/nexuscrm/strata/internal/sqlguard"
	"github.com/nexuscrm/strata/pkg/repo"
	"github.com/nexuscrm/strata/pkg/schema"
	"github.com/nexuscrm/strata/pkg/store"
)

type server struct {
	db        *store.DB
	reg       *schema.Registry
	users     *repo.Repository[demo.User]
	customers *repo.Repository[demo.Customer]
	orders    *repo.Repository[demo.Order]
	guard     *sqlguard.Guard
	secret    []byte
}

func newServer(db *store.DB, reg *schema.Registry, secret []byte) (*server, error) {
	users, err := repo.New[demo.User](db, reg, "User", db.Dialect())
	if err != nil {
		return nil, err
	}
	customers, err := repo.New[demo.Customer](db, reg, "Customer", db.Dialect())
	if err != nil {
		return nil, err
	}
	orders, err := repo.New[demo.Order](db, reg, "Order", db.Dialect())
	if err != nil {
		return nil, err
	}

	return &server{
		db:        db,
		reg:       reg,
		users:     users,
		customers: customers,
		orders:    orders,
		guard:     sqlguard.New(),
		secret:    secret,
	}, nil
}

func (s *server) routes() *gin.Engine {
	router := gin.Default()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"server": "stratad",
		})
	})

	router.POST("/auth/login", rateLimit(30, 15), s.handleLogin)

	api := router.Group("/api")
	api.Use(requireAuth(s.secret))
	{
		api.GET("/orders", s.handleListOrders)
		api.GET("/orders/groups", s.handleOrderGroups)
		api.GET("/orders/stats", s.handleOrderStats)
		api.GET("/orders/:id", s.handleGetOrder)
		api.GET("/customers", s.handleListCustomers)
		api.POST("/sql", s.handleSQL)
	}

	return router
}

// ensureAdmin seeds the initial login when the users table is empty.
// The password hash cannot live in a SQL migration, so the seed happens
// here through the repository.
func (s *server) ensureAdmin(ctx context.Context, email, password string) error {
	n, err := s.users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &demo.User{
		Email:        email,
		Name:         "Admin",
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Insert(ctx, admin); err != nil {
		return err
	}
	log.Printf("Seeded admin user %s", email)
	return nil
}
