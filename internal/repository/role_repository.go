package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fitstack/identity-service/internal/database"
	"github.com/fitstack/identity-service/internal/domain"
	"github.com/fitstack/identity-service/internal/model"
)

// RoleRepository is the persistence contract for role rows.
type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*model.Role, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Save(ctx context.Context, role *model.Role) error
}

// RoleRepo implements RoleRepository on MySQL.
type RoleRepo struct{ q database.DBTX }

// NewRoleRepo binds a repo to a pool or an open transaction.
func NewRoleRepo(q database.DBTX) *RoleRepo { return &RoleRepo{q: q} }

// FindByName fetches a role by its unique name, or ROLE_NOT_FOUND.
func (r *RoleRepo) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	err := r.q.QueryRowContext(ctx,
		"SELECT id, name FROM roles WHERE name=? LIMIT 1", name).
		Scan(&role.ID, &role.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.E(domain.KindRoleNotFound, fmt.Sprintf("role %s was not found", name))
		}
		return nil, err
	}
	return &role, nil
}

// ExistsByName reports whether a role row claims the name.
func (r *RoleRepo) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM roles WHERE name=?)", name).Scan(&exists)
	return exists, err
}

// Save inserts a role row, assigning its ID.
func (r *RoleRepo) Save(ctx context.Context, role *model.Role) error {
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO roles (name) VALUES (?)", role.Name)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	role.ID = id
	return nil
}
