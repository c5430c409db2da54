package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
)

// MySQLBaselineStore serves tenant baselines from MySQL, for deployments
// already standardized on it.
type MySQLBaselineStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLBaselineStore connects and ensures the schema exists. The DSN must
// include parseTime=true so timestamps scan into time.Time.
func NewMySQLBaselineStore(dsn string, logger *zap.Logger) (*MySQLBaselineStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS tenant_baselines (
			tenant_id VARCHAR(255) PRIMARY KEY,
			profile JSON NOT NULL,
			calculated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create baselines table: %w", err)
	}
	return &MySQLBaselineStore{db: db, logger: logger}, nil
}

// GetBaseline returns the tenant's baseline, or nil when none has been
// computed yet.
func (s *MySQLBaselineStore) GetBaseline(ctx context.Context, tenantID string) (*core.TenantBaseline, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT profile FROM tenant_baselines WHERE tenant_id = ?
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

// PutBaseline replaces the tenant's baseline wholesale.
func (s *MySQLBaselineStore) PutBaseline(ctx context.Context, baseline *core.TenantBaseline) error {
	raw, err := json.Marshal(baseline)
	if err != nil {
		return fmt.Errorf("failed to encode baseline: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_baselines (tenant_id, profile, calculated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE profile = VALUES(profile), calculated_at = VALUES(calculated_at)
	`, baseline.TenantID, raw, baseline.CalculatedAt)
	if err != nil {
		return fmt.Errorf("failed to store baseline: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *MySQLBaselineStore) Close() error {
	return s.db.Close()
}
