package repository

import (
	"context"
	"database/sql"

	"github.com/ccm-platform/carbon-admin/internal/model"
	"github.com/jmoiron/sqlx"
)

type AdminUsersRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*model.AdminUser, error)
	GetByID(ctx context.Context, id int64) (*model.AdminUser, error)
}

type AdminUsersRepositoryImpl struct {
	db *sqlx.DB
}

func NewAdminUsersRepository(db *sqlx.DB) *AdminUsersRepositoryImpl {
	return &AdminUsersRepositoryImpl{db: db}
}

var _ AdminUsersRepository = (*AdminUsersRepositoryImpl)(nil)

func (r *AdminUsersRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*model.AdminUser, error) {
	var a model.AdminUser
	err := r.db.GetContext(ctx, &a, `
		SELECT id, username, email, api_key, role, status, rate_limit_rps, created_at, updated_at
		  FROM admin_users
		 WHERE api_key = ? LIMIT 1
	`, apiKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AdminUsersRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.AdminUser, error) {
	var a model.AdminUser
	err := r.db.GetContext(ctx, &a, `
		SELECT id, username, email, api_key, role, status, rate_limit_rps, created_at, updated_at
		  FROM admin_users
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
