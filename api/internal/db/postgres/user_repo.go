package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

// UserRepo implements domain.UserRepository and domain.PermissionChecker.
type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// HasPermission utilizes a 3-way join to verify access in a single atomic query.
func (r *UserRepo) HasPermission(ctx context.Context, userID uuid.UUID, resource string, action string) (bool, error) {
	// 🛡️ SLA: Inactive users or roles lacking the perm both yield false.
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM users u
			JOIN roles r ON u.role_id = r.id
			JOIN role_permissions rp ON r.id = rp.role_id
			JOIN permissions p ON rp.permission_id = p.id
			WHERE u.id = $1
			  AND u.is_active = true
			  AND p.resource = $2
			  AND p.action = $3
		)
	`

	var exists bool
	err := r.pool.QueryRow(ctx, query, userID, resource, action).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to verify permissions: %w", err)
	}

	return exists, nil
}

const userSelect = `
	SELECT u.id, u.email, u.password_hash, u.is_active, u.created_at, u.updated_at,
	       r.id, r.name, r.rank,
	       COALESCE(ARRAY(
	           SELECT p.resource || ':' || p.action
	           FROM role_permissions rp
	           JOIN permissions p ON rp.permission_id = p.id
	           WHERE rp.role_id = r.id
	           ORDER BY 1
	       ), '{}')
	FROM users u
	JOIN roles r ON u.role_id = r.id
`

// GetByID fetches the user and eagerly loads their role metadata.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, userSelect+` WHERE u.id = $1`, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, userSelect+` WHERE lower(u.email) = lower($1)`, email)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	var role domain.Role

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
		&role.ID, &role.Name, &role.Rank,
		&user.Permissions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	user.Role = role
	return &user, nil
}
