package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

// ServiceRepository implements domain.ServiceRepository on sqlx.
type ServiceRepository struct {
	db *sqlx.DB
}

func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

func (r *ServiceRepository) GetByName(ctx context.Context, name string) (*domain.ManagedService, error) {
	var svc domain.ManagedService
	query := `
		SELECT name, image, subdomain, port, client_max_body_size, updated_at
		FROM services
		WHERE name = $1
	`
	err := r.db.GetContext(ctx, &svc, query, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load service %q: %w", name, err)
	}
	return &svc, nil
}

func (r *ServiceRepository) List(ctx context.Context) ([]domain.ManagedService, error) {
	svcs := []domain.ManagedService{}
	query := `
		SELECT name, image, subdomain, port, client_max_body_size, updated_at
		FROM services
		ORDER BY name
	`
	if err := r.db.SelectContext(ctx, &svcs, query); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return svcs, nil
}

// UpdateProxy records the mapping that is now live in the proxy configuration.
func (r *ServiceRepository) UpdateProxy(ctx context.Context, name, subdomain, port, clientMaxBodySize string) error {
	query := `
		UPDATE services
		SET subdomain = :subdomain, port = :port, client_max_body_size = :client_max_body_size, updated_at = NOW()
		WHERE name = :name
	`
	res, err := r.db.NamedExecContext(ctx, query, map[string]any{
		"name":                 name,
		"subdomain":            subdomain,
		"port":                 port,
		"client_max_body_size": clientMaxBodySize,
	})
	if err != nil {
		return fmt.Errorf("failed to update proxy mapping for %q: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
