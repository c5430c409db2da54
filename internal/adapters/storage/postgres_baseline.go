package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
)

// PostgresBaselineStore serves tenant baselines from PostgreSQL. The profile
// columns hold JSON because baselines are written and read wholesale; nothing
// queries inside them.
type PostgresBaselineStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresBaselineStore connects and ensures the schema exists.
func NewPostgresBaselineStore(dsn string, logger *zap.Logger) (*PostgresBaselineStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tenant_baselines (
			tenant_id TEXT PRIMARY KEY,
			profile JSONB NOT NULL,
			calculated_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create baselines table: %w", err)
	}
	return &PostgresBaselineStore{db: db, logger: logger}, nil
}

// GetBaseline returns the tenant's baseline, or nil when none has been
// computed yet.
func (s *PostgresBaselineStore) GetBaseline(ctx context.Context, tenantID string) (*core.TenantBaseline, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT profile FROM tenant_baselines WHERE tenant_id = $1
	`, tenantID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}

	var baseline core.TenantBaseline
	if err := json.Unmarshal(raw, &baseline); err != nil {
		return nil, fmt.Errorf("corrupt baseline for tenant %s: %w", tenantID, err)
	}
	return &baseline, nil
}

// PutBaseline replaces the tenant's baseline wholesale. Used by the
// out-of-band recomputation job, not the detection path.
func (s *PostgresBaselineStore) PutBaseline(ctx context.Context, baseline *core.TenantBaseline) error {
	raw, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_baselines (tenant_id, profile, calculated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE SET profile = $2, calculated_at = $3
	`, baseline.TenantID, raw, baseline.CalculatedAt)
	if err != nil {
		return fmt.Errorf("failed to store baseline: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresBaselineStore) Close() error {
	return s.db.Close()
}
