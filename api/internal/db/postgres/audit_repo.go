package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// RecordApply persists one pipeline outcome.
func (r *AuditRepository) RecordApply(ctx context.Context, entry domain.ApplyAuditEntry) error {
	query := `
		INSERT INTO proxy_audit (service, action, status, reason, backup, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.Service,
		entry.Action,
		string(entry.Status),
		entry.Reason,
		entry.Backup,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record proxy apply: %w", err)
	}
	return nil
}

// Recent returns the latest pipeline outcomes, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]domain.ApplyAuditEntry, error) {
	// 🛡️ SLA Pagination Limits
	switch {
	case limit <= 0:
		limit = 50
	case limit > 100:
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT service, action, status, reason, backup, created_at
		FROM proxy_audit
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proxy audit: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ApplyAuditEntry, error) {
		var e domain.ApplyAuditEntry
		var status string
		err := row.Scan(&e.Service, &e.Action, &status, &e.Reason, &e.Backup, &e.CreatedAt)
		e.Status = domain.ApplyStatus(status)
		return e, err
	})
}
