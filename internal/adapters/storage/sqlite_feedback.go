// Package storage provides the baseline and feedback persistence adapters.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/inboxguard/inboxguard/internal/core"
)

// SQLiteFeedbackStore is an append-only feedback log backed by SQLite, the
// default for single-node deployments.
type SQLiteFeedbackStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteFeedbackStore opens (or creates) the feedback database.
func NewSQLiteFeedbackStore(dbPath string, logger *zap.Logger) (*SQLiteFeedbackStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS anomaly_feedback (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			email_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			anomaly_types TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create feedback table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_feedback_tenant ON anomaly_feedback(tenant_id, created_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create feedback index: %w", err)
	}

	return &SQLiteFeedbackStore{db: db, logger: logger}, nil
}

// Append writes one feedback record. Records are never updated or deleted.
func (s *SQLiteFeedbackStore) Append(ctx context.Context, rec core.FeedbackRecord) error {
	types, err := json.Marshal(rec.AnomalyTypes)
	if err != nil {
		return fmt.Errorf("failed to encode anomaly types: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO anomaly_feedback (id, tenant_id, email_id, kind, anomaly_types, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID.String(), rec.TenantID, rec.EmailID.String(), string(rec.Kind), string(types), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append feedback: %w", err)
	}
	return nil
}

// ListByTenant returns a tenant's full feedback log, oldest first.
func (s *SQLiteFeedbackStore) ListByTenant(ctx context.Context, tenantID string) ([]core.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, email_id, kind, anomaly_types, created_at
		FROM anomaly_feedback
		WHERE tenant_id = ?
		ORDER BY created_at ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var records []core.FeedbackRecord
	for rows.Next() {
		rec, err := scanFeedback(rows)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("Skipping unreadable feedback row", zap.Error(err))
			}
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteFeedbackStore) Close() error {
	return s.db.Close()
}

func scanFeedback(rows *sql.Rows) (core.FeedbackRecord, error) {
	var rec core.FeedbackRecord
	var id, emailID, kind, types string
	if err := rows.Scan(&id, &rec.TenantID, &emailID, &kind, &types, &rec.CreatedAt); err != nil {
		return rec, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return rec, fmt.Errorf("invalid feedback id %q: %w", id, err)
	}
	rec.ID = parsed
	if parsedEmail, err := uuid.Parse(emailID); err == nil {
		rec.EmailID = parsedEmail
	}
	rec.Kind = core.FeedbackKind(kind)
	if err := json.Unmarshal([]byte(types), &rec.AnomalyTypes); err != nil {
		return rec, fmt.Errorf("invalid anomaly types %q: %w", types, err)
	}
	return rec, nil
}
