// Command stratad serves the sample commerce domain over HTTP: filtered
// and grouped order queries, vetted ad-hoc SQL, and token login.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nexuscrm/strata/internal/auth"
	"github.com/nexuscrm/strata/internal/demo"
	"github.com/nexuscrm/strata/pkg/store"
)

func main() {
	// Load .env if present; real environments set variables directly.
	for _, p := range []string{".env", "../.env"} {
		if err := godotenv.Load(p); err == nil {
			log.Printf("Loaded .env from %s", p)
			break
		}
	}

	addr := envOr("STRATAD_ADDR", ":8080")
	dbPath := envOr("STRATAD_DB", "strata.db")

	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	log.Printf("Database open at %s", dbPath)

	if err := demo.Migrate(db.DB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	reg := demo.Registry()

	srv, err := newServer(db, reg, auth.SecretFromEnv())
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := srv.ensureAdmin(ctx,
		envOr("STRATAD_ADMIN_EMAIL", "admin@strata.local"),
		envOr("STRATAD_ADMIN_PASSWORD", "admin123"),
	); err != nil {
		cancel()
		log.Fatalf("Failed to seed admin user: %v", err)
	}
	cancel()

	maintenance := store.NewMaintenance(db, demo.TableNames(reg))
	if spec := envOr("STRATAD_MAINTENANCE", "0 3 * * *"); spec != "off" {
		if err := maintenance.Start(spec); err != nil {
			log.Fatalf("Failed to schedule maintenance: %v", err)
		}
		log.Printf("Maintenance scheduled (%s)", spec)
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.routes(),
	}

	go func() {
		log.Printf("stratad listening on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	maintenance.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	log.Println("Server exiting")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
