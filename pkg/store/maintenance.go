package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nexuscrm/strata/pkg/sanitize"
)

// Maintenance runs periodic housekeeping against an open database:
// statistics refresh for the query planner and, for SQLite, WAL
// checkpointing so the log file does not grow without bound.
type Maintenance struct {
	db     *DB
	tables []string
	cron   *cron.Cron
}

// NewMaintenance prepares a runner for the given tables. Table names
// come from the schema registry and are quoted per dialect.
func NewMaintenance(db *DB, tables []string) *Maintenance {
	return &Maintenance{db: db, tables: tables}
}

// Start schedules RunOnce on the given cron spec, for example
// "0 3 * * *" for three in the morning daily.
func (m *Maintenance) Start(spec string) error {
	if m.cron != nil {
		return fmt.Errorf("maintenance already started")
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := m.RunOnce(ctx); err != nil {
			log.Printf("maintenance run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	m.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule. Safe to call when never started.
func (m *Maintenance) Stop() {
	if m.cron != nil {
		m.cron.Stop()
		m.cron = nil
	}
}

// RunOnce performs one housekeeping pass.
func (m *Maintenance) RunOnce(ctx context.Context) error {
	switch m.db.Dialect() {
	case sanitize.SQLite:
		if _, err := m.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("wal checkpoint: %w", err)
		}
		if _, err := m.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
			return fmt.Errorf("optimize: %w", err)
		}
	case sanitize.MySQL:
		for _, table := range m.tables {
			stmt := fmt.Sprintf("ANALYZE TABLE %s", m.db.Dialect().QuoteIdent(table))
			if _, err := m.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("analyze %s: %w", table, err)
			}
		}
	}
	return nil
}
